// Package transport maintains the single push connection of a session.
//
// The client is a small state machine:
//
//	IDLE -> CONNECTING -> CONNECTED -> DISCONNECTED -> CONNECTING ...
//
// Disconnect returns it to IDLE from any state. While an identity is set,
// an unexpected drop starts a cancellable reconnect task with bounded
// exponential backoff and jitter.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stackitapp/stackit-sync/internal/errors"
)

// State is the connection state.
type State string

// Connection states.
const (
	StateIdle         State = "IDLE"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
)

var (
	// ErrNotConnected is returned by Subscribe and Publish outside CONNECTED.
	ErrNotConnected = errors.NotConnected("push transport is not connected")
	// ErrConnectionLost marks an unexpected drop of a live session.
	ErrConnectionLost = errors.Transport(nil, "push connection lost")
	// ErrReconnectExhausted is the fatal error surfaced after the last reconnect attempt.
	ErrReconnectExhausted = errors.Transport(nil, "push reconnect attempts exhausted")
	// ErrNoEndpoints is returned when the client has nothing to dial.
	ErrNoEndpoints = errors.Transport(nil, "no push endpoints configured")
)

// Identity is who the connection is opened for.
type Identity struct {
	UserID string
	Token  string
}

// Session is one live STOMP session.
type Session interface {
	Subscribe(destination string, handler func(body []byte)) (Subscription, error)
	Send(destination string, body []byte) error
	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}
	Close() error
}

// Subscription is an active destination subscription.
type Subscription interface {
	Unsubscribe() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, identity Identity) (Session, error)
}

// StateChange is delivered to state listeners.
type StateChange struct {
	Previous State
	Current  State
	Err      error
	// Fatal is set when reconnecting has been given up.
	Fatal bool
}

// Listener observes state changes.
type Listener func(StateChange)

// Observer receives reconnect activity, typically for metrics.
type Observer interface {
	ReconnectAttempt(attempt int, err error)
}

// Options configures a Client.
type Options struct {
	Endpoints        []string
	Dialer           Dialer
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	MaxAttempts      int
	Logger           *slog.Logger
	Observer         Observer
}

func (o Options) withDefaults() Options {
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = time.Second
	}
	if o.ReconnectMax < o.ReconnectInitial {
		o.ReconnectMax = max(30*time.Second, o.ReconnectInitial)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type subscription struct {
	key     string
	topic   string
	handler func([]byte)
	sub     Subscription
}

// Client owns the push connection.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	identity   Identity
	hasIdent   bool
	session    Session
	generation uint64
	subs       map[string]*subscription
	connecting *pending
	reconnect  *reconnectTask

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

type pending struct {
	identity Identity
	done     chan struct{}
	err      error
}

type reconnectTask struct {
	cancel context.CancelFunc
}

// New creates a client in IDLE.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:      opts,
		logger:    opts.Logger,
		state:     StateIdle,
		subs:      make(map[string]*subscription),
		listeners: make(map[int]Listener),
	}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a listener and returns a function removing it.
// Listeners run on the goroutine that caused the change and must not block.
func (c *Client) OnStateChange(l Listener) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Connect opens the connection for identity. It returns nil at once when
// already connected for the same identity, and joins an in-flight attempt
// for the same identity.
func (c *Client) Connect(ctx context.Context, identity Identity) error {
	c.mu.Lock()
	if c.hasIdent && c.identity.UserID == identity.UserID {
		if c.state == StateConnected {
			c.identity = identity
			c.mu.Unlock()
			return nil
		}
		if p := c.connecting; p != nil {
			c.mu.Unlock()
			select {
			case <-p.done:
				return p.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	var stale Session
	if c.hasIdent && c.identity.UserID != identity.UserID {
		stale = c.teardownLocked()
	}
	if c.stopReconnectLocked() {
		// An attempt of the cancelled task may still be dialing; its session must not install.
		c.generation++
	}

	c.identity = identity
	c.hasIdent = true
	p := &pending{identity: identity, done: make(chan struct{})}
	c.connecting = p
	change := c.setStateLocked(StateConnecting, nil, false)
	gen := c.generation
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	c.notify(change)

	err := c.dialAndInstall(ctx, identity, gen)

	c.mu.Lock()
	if c.connecting == p {
		c.connecting = nil
	}
	if err != nil && c.hasIdent && c.generation == gen && c.identity.UserID == identity.UserID {
		c.startReconnectLocked()
	}
	c.mu.Unlock()

	p.err = err
	close(p.done)
	return err
}

// Disconnect tears down the session, drops every subscription, cancels any
// reconnect task and returns to IDLE. It is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.hasIdent = false
	c.identity = Identity{}
	c.stopReconnectLocked()
	session := c.teardownLocked()
	var changes []StateChange
	if c.state != StateIdle {
		changes = append(changes, c.setStateLocked(StateIdle, nil, false))
	}
	c.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			c.logger.Debug("push session close failed", slog.String("error", err.Error()))
		}
	}
	c.notify(changes...)
}

// Subscribe attaches handler to topic under key. Re-using a key replaces its subscription.
func (c *Client) Subscribe(key, topic string, handler func(body []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.session == nil {
		return ErrNotConnected
	}
	if old, ok := c.subs[key]; ok {
		delete(c.subs, key)
		c.unsubscribe(old)
	}

	entry := &subscription{key: key, topic: topic, handler: handler}
	gen := c.generation
	sub, err := c.session.Subscribe(topic, func(body []byte) {
		if !c.live(entry, gen) {
			return
		}
		entry.handler(body)
	})
	if err != nil {
		return err
	}
	entry.sub = sub
	c.subs[key] = entry

	c.logger.Debug("subscribed", slog.String("key", key), slog.String("topic", topic))
	return nil
}

// Unsubscribe drops the subscription under key. Unknown keys are ignored.
func (c *Client) Unsubscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.subs[key]; ok {
		delete(c.subs, key)
		c.unsubscribe(entry)
	}
}

// Subscribed reports whether key names a live subscription.
func (c *Client) Subscribed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[key]
	return ok
}

// Keys returns the live subscription keys.
func (c *Client) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	return keys
}

// Publish JSON-encodes payload and sends it to destination.
func (c *Client) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode push payload")
	}

	c.mu.Lock()
	session := c.session
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || session == nil {
		return ErrNotConnected
	}
	return session.Send(destination, body)
}

func (c *Client) live(entry *subscription, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.subs[entry.key] == entry
}

func (c *Client) unsubscribe(entry *subscription) {
	if entry.sub == nil {
		return
	}
	if err := entry.sub.Unsubscribe(); err != nil {
		c.logger.Debug("unsubscribe failed",
			slog.String("key", entry.key),
			slog.String("error", err.Error()))
	}
}

// dialAndInstall tries every endpoint in order and installs the first session that handshakes.
func (c *Client) dialAndInstall(ctx context.Context, identity Identity, gen uint64) error {
	if len(c.opts.Endpoints) == 0 {
		c.failConnect(gen, ErrNoEndpoints)
		return ErrNoEndpoints
	}

	var lastErr error
	for _, endpoint := range c.opts.Endpoints {
		session, err := c.opts.Dialer.Dial(ctx, endpoint, identity)
		if err != nil {
			lastErr = err
			c.logger.Warn("push endpoint unavailable",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		c.mu.Lock()
		if c.generation != gen || !c.hasIdent || c.identity.UserID != identity.UserID {
			c.mu.Unlock()
			_ = session.Close()
			return ErrNotConnected
		}
		c.session = session
		// Any reconnect task is finished; a drop seen by watch starts a new one.
		c.reconnect = nil
		change := c.setStateLocked(StateConnected, nil, false)
		c.mu.Unlock()

		c.logger.Info("push connected",
			slog.String("endpoint", endpoint),
			slog.String("user_id", identity.UserID))
		go c.watch(session, gen)
		c.notify(change)
		return nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	err := errors.Transport(lastErr, "push connect failed")
	c.failConnect(gen, err)
	return err
}

func (c *Client) failConnect(gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	change := c.setStateLocked(StateDisconnected, err, false)
	c.mu.Unlock()
	c.notify(change)
}

// watch turns an unexpected end of session into DISCONNECTED and a reconnect.
func (c *Client) watch(session Session, gen uint64) {
	<-session.Done()

	c.mu.Lock()
	if c.generation != gen || c.session != session {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	change := c.setStateLocked(StateDisconnected, ErrConnectionLost, false)
	c.startReconnectLocked()
	c.mu.Unlock()

	c.logger.Warn("push connection lost")
	_ = session.Close()
	c.notify(change)
}

// teardownLocked invalidates the session and every subscription. The caller closes the returned session.
func (c *Client) teardownLocked() Session {
	c.generation++
	session := c.session
	c.session = nil
	for key, entry := range c.subs {
		delete(c.subs, key)
		if session != nil {
			c.unsubscribe(entry)
		}
	}
	return session
}

func (c *Client) setStateLocked(next State, err error, fatal bool) StateChange {
	change := StateChange{Previous: c.state, Current: next, Err: err, Fatal: fatal}
	c.state = next
	return change
}

func (c *Client) notify(changes ...StateChange) {
	c.listenersMu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenersMu.RUnlock()

	for _, change := range changes {
		if change.Previous == change.Current && change.Err == nil {
			continue
		}
		for _, l := range listeners {
			l(change)
		}
	}
}

func (c *Client) startReconnectLocked() {
	if c.reconnect != nil || !c.hasIdent {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &reconnectTask{cancel: cancel}
	c.reconnect = task
	go c.reconnectLoop(ctx, task, c.identity)
}

func (c *Client) stopReconnectLocked() bool {
	task := c.reconnect
	if task == nil {
		return false
	}
	c.reconnect = nil
	task.cancel()
	return true
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.opts.ReconnectInitial,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         c.opts.ReconnectMax,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (c *Client) reconnectLoop(ctx context.Context, task *reconnectTask, identity Identity) {
	b := c.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		wait := b.NextBackOff()
		c.logger.Info("push reconnect scheduled",
			slog.Int("attempt", attempt),
			slog.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.reconnect != task || !c.hasIdent {
			c.mu.Unlock()
			return
		}
		change := c.setStateLocked(StateConnecting, nil, false)
		gen := c.generation
		c.mu.Unlock()
		c.notify(change)

		lastErr = c.dialAndInstall(ctx, identity, gen)
		if c.opts.Observer != nil {
			c.opts.Observer.ReconnectAttempt(attempt, lastErr)
		}
		if lastErr == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	c.mu.Lock()
	if c.reconnect != task {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	err := errors.Transport(lastErr, ErrReconnectExhausted.Message)
	change := c.setStateLocked(StateDisconnected, err, true)
	c.mu.Unlock()

	c.logger.Error("push reconnect gave up",
		slog.Int("attempts", c.opts.MaxAttempts),
		slog.String("error", err.Error()))
	c.notify(change)
}
