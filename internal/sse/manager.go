package sse

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackitapp/stackit-sync/internal/id"
)

const (
	queueSize      = 1000
	clientBuffer   = 100
	historySize    = 256
	keepaliveEvery = 30 * time.Second
)

// Filter selects which events a feed subscriber receives.
type Filter struct {
	// UserID drops events addressed to other users. Empty receives everything.
	UserID string
	// Types limits delivery to the listed event types. Empty receives every type.
	Types []EventType
}

// Accepts reports whether e passes the filter.
func (f Filter) Accepts(e Event) bool {
	if e.UserID != "" && f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, e.Type)
}

// Client is one subscriber of the change feed.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	Filter      Filter
}

// DropObserver is told about every event dropped for a slow client or a full queue.
type DropObserver interface {
	EventDropped(eventType string)
}

// Manager fans published events out to feed subscribers and keeps a short
// history so reconnecting subscribers can resume from their last seen seq.
type Manager struct {
	log   *slog.Logger
	drops DropObserver

	queue chan Event
	seq   atomic.Uint64

	mu      sync.RWMutex
	clients map[string]*Client
	history []Event

	closeMu sync.RWMutex
	closed  bool

	running           sync.WaitGroup
	heartbeatInterval time.Duration
}

// NewManager creates a Manager. Call Start to begin delivery.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		log:               logger,
		queue:             make(chan Event, queueSize),
		clients:           make(map[string]*Client),
		history:           make([]Event, 0, historySize),
		heartbeatInterval: keepaliveEvery,
	}
}

// SetDropObserver registers the observer for dropped events.
func (m *Manager) SetDropObserver(o DropObserver) {
	m.drops = o
}

// Start delivers queued events until ctx is done or Shutdown closes the queue.
func (m *Manager) Start(ctx context.Context) {
	m.running.Add(1)
	defer m.running.Done()

	m.log.Info("change feed started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("change feed stopped")
			m.disconnectAll()
			return
		case e, ok := <-m.queue:
			if !ok {
				return
			}
			m.publish(e)
		}
	}
}

// Shutdown refuses further events, delivers what is still queued and
// closes every subscriber.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range m.queue {
			m.publish(e)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.log.Warn("change feed drain timed out", slog.Int("pending", len(m.queue)))
	}

	m.running.Wait()
	m.disconnectAll()
	m.log.Info("change feed shut down")
	return nil
}

// publish stamps e with the next seq, records it and hands it to every
// matching subscriber without blocking.
func (m *Manager) publish(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Seq = m.seq.Add(1)

	if len(m.history) == historySize {
		m.history = slices.Delete(m.history, 0, 1)
	}
	m.history = append(m.history, e)

	var matched, lost int
	for _, c := range m.clients {
		if !c.Filter.Accepts(e) {
			continue
		}
		matched++
		select {
		case c.EventChan <- e:
		default:
			lost++
			m.dropped(e.Type)
			m.log.Warn("subscriber too slow, event dropped",
				slog.String("client_id", c.ID),
				slog.String("event_type", string(e.Type)),
				slog.Uint64("seq", e.Seq))
		}
	}
	m.log.Debug("event published",
		slog.String("event_type", string(e.Type)),
		slog.Uint64("seq", e.Seq),
		slog.Int("subscribers", matched),
		slog.Int("dropped", lost))
}

// Since returns the retained events after seq that pass f, oldest first.
// The bool is false when events after seq have already been evicted, or when
// seq was never issued by this Manager.
func (m *Manager) Since(seq uint64, f Filter) ([]Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if seq > m.seq.Load() {
		return nil, false
	}
	complete := len(m.history) == 0 || m.history[0].Seq <= seq+1
	var out []Event
	for _, e := range m.history {
		if e.Seq > seq && f.Accepts(e) {
			out = append(out, e)
		}
	}
	return out, complete
}

// Connect registers a subscriber.
func (m *Manager) Connect(f Filter) (*Client, error) {
	clientID, err := id.Generate("feed")
	if err != nil {
		return nil, err
	}
	c := &Client{
		ID:          clientID,
		Filter:      f,
		EventChan:   make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[clientID] = c
	n := len(m.clients)
	m.mu.Unlock()

	m.log.Info("feed subscriber connected",
		slog.String("client_id", clientID),
		slog.String("user_id", f.UserID),
		slog.Int("types", len(f.Types)),
		slog.Int("subscribers", n))
	return c, nil
}

// Disconnect removes a subscriber. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
		closeClient(c)
	}
	n := len(m.clients)
	m.mu.Unlock()

	if ok {
		m.log.Info("feed subscriber disconnected",
			slog.String("client_id", clientID),
			slog.Duration("connected_for", time.Since(c.ConnectedAt)),
			slog.Int("subscribers", n))
	}
}

// Emit queues an event for delivery. Values that are not an Event are
// rejected. Emit never blocks; a full queue drops the event.
func (m *Manager) Emit(event any) {
	e, ok := event.(Event)
	if !ok {
		m.log.Error("feed rejected non-event value")
		return
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- e:
	default:
		m.dropped(e.Type)
		m.log.Error("feed queue full, event dropped", slog.String("event_type", string(e.Type)))
	}
}

// ClientCount returns the number of connected subscribers.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// LastSeq returns the seq of the most recently published event.
func (m *Manager) LastSeq() uint64 {
	return m.seq.Load()
}

func (m *Manager) dropped(t EventType) {
	if m.drops != nil {
		m.drops.EventDropped(string(t))
	}
}

func (m *Manager) disconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for clientID, c := range m.clients {
		closeClient(c)
		delete(m.clients, clientID)
	}
}

func closeClient(c *Client) {
	close(c.Done)
	close(c.EventChan)
}
