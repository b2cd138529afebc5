package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"

	"github.com/stackitapp/stackit-sync/internal/errors"
)

const handshakeTimeout = 10 * time.Second

// StompDialer opens STOMP 1.2 sessions over a websocket.
type StompDialer struct {
	Heartbeat time.Duration
	Logger    *slog.Logger
	WS        *websocket.Dialer
}

// NewStompDialer creates a dialer sending and expecting heartbeats every heartbeat.
func NewStompDialer(heartbeat time.Duration, logger *slog.Logger) *StompDialer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StompDialer{
		Heartbeat: heartbeat,
		Logger:    logger,
		WS: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial performs the websocket handshake and the STOMP CONNECT exchange.
func (d *StompDialer) Dial(ctx context.Context, endpoint string, identity Identity) (Session, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Transport(err, "invalid push endpoint "+endpoint)
	}

	header := http.Header{}
	if identity.Token != "" {
		header.Set("Authorization", "Bearer "+identity.Token)
	}
	ws, resp, err := d.WS.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Transport(err, "websocket handshake rejected: "+resp.Status)
		}
		return nil, errors.Transport(err, "websocket handshake failed")
	}

	conn := newWSConn(ws)
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.HeartBeat(d.Heartbeat, d.Heartbeat),
	}
	if identity.UserID != "" {
		opts = append(opts, stomp.ConnOpt.Header("userId", identity.UserID))
	}
	if identity.Token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+identity.Token))
	}

	type result struct {
		conn *stomp.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sc, err := stomp.Connect(conn, opts...)
		done <- result{sc, err}
	}()

	select {
	case <-ctx.Done():
		_ = conn.Close()
		return nil, errors.Transport(ctx.Err(), "stomp connect aborted")
	case r := <-done:
		if r.err != nil {
			_ = conn.Close()
			return nil, errors.Transport(r.err, "stomp connect failed")
		}
		return &stompSession{conn: r.conn, ws: conn, logger: d.Logger}, nil
	}
}

// stompSession is a live go-stomp connection.
type stompSession struct {
	conn   *stomp.Conn
	ws     *wsConn
	logger *slog.Logger
}

func (s *stompSession) Subscribe(destination string, handler func([]byte)) (Subscription, error) {
	sub, err := s.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, errors.Transport(err, "subscribe to "+destination+" failed")
	}
	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				s.logger.Debug("subscription ended",
					slog.String("destination", destination),
					slog.String("error", msg.Err.Error()))
				return
			}
			handler(msg.Body)
		}
	}()
	return stompSubscription{sub: sub}, nil
}

func (s *stompSession) Send(destination string, body []byte) error {
	if err := s.conn.Send(destination, "application/json", body); err != nil {
		return errors.Transport(err, "send to "+destination+" failed")
	}
	return nil
}

func (s *stompSession) Done() <-chan struct{} {
	return s.ws.done
}

func (s *stompSession) Close() error {
	err := s.conn.MustDisconnect()
	_ = s.ws.Close()
	return err
}

type stompSubscription struct {
	sub *stomp.Subscription
}

func (s stompSubscription) Unsubscribe() error {
	if !s.sub.Active() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// wsConn adapts a message-oriented websocket to the byte stream go-stomp reads and writes.
// Every Write becomes one text message.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, done: make(chan struct{})}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				c.markDone()
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			c.markDone()
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.markDone()
	return c.ws.Close()
}

func (c *wsConn) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}
