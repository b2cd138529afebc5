package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackitapp/stackit-sync/internal/errors"
)

type fakeSub struct {
	topic   string
	handler func([]byte)
	active  atomic.Bool
}

func (s *fakeSub) Unsubscribe() error {
	s.active.Store(false)
	return nil
}

type sentFrame struct {
	destination string
	body        string
}

type fakeSession struct {
	mu   sync.Mutex
	subs []*fakeSub
	sent []sentFrame
	done chan struct{}
	once sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Subscribe(destination string, handler func([]byte)) (Subscription, error) {
	sub := &fakeSub{topic: destination, handler: handler}
	sub.active.Store(true)
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub, nil
}

func (s *fakeSession) Send(destination string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentFrame{destination, string(body)})
	return nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// deliver hands body to every handler ever subscribed to topic, including
// ones already unsubscribed, the way in-flight frames can still arrive.
func (s *fakeSession) deliver(topic string, body string) {
	s.mu.Lock()
	var handlers []func([]byte)
	for _, sub := range s.subs {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h([]byte(body))
	}
}

func (s *fakeSession) activeSubs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.active.Load() {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu         sync.Mutex
	failing    map[string]bool
	failAll    atomic.Bool
	gate       chan struct{}
	dials      []string
	identities []Identity
	sessions   []*fakeSession
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{failing: make(map[string]bool)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, identity Identity) (Session, error) {
	d.mu.Lock()
	d.dials = append(d.dials, endpoint)
	d.identities = append(d.identities, identity)
	gate := d.gate
	fail := d.failing[endpoint] || d.failAll.Load()
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.Transport(nil, "refused")
	}

	s := newFakeSession()
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

type changeLog struct {
	mu      sync.Mutex
	changes []StateChange
}

func (l *changeLog) listen(c StateChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, 0, len(l.changes))
	for _, c := range l.changes {
		out = append(out, c.Current)
	}
	return out
}

func (l *changeLog) fatal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.changes {
		if c.Fatal {
			return true
		}
	}
	return false
}

type attemptCounter struct {
	n atomic.Int32
}

func (a *attemptCounter) ReconnectAttempt(int, error) { a.n.Add(1) }

func newTestClient(t *testing.T, dialer *fakeDialer, endpoints ...string) (*Client, *changeLog) {
	t.Helper()
	if len(endpoints) == 0 {
		endpoints = []string{"ws://primary/ws"}
	}
	c := New(Options{
		Endpoints:        endpoints,
		Dialer:           dialer,
		ReconnectInitial: time.Millisecond,
		ReconnectMax:     5 * time.Millisecond,
		MaxAttempts:      3,
	})
	log := &changeLog{}
	c.OnStateChange(log.listen)
	t.Cleanup(c.Disconnect)
	return c, log
}

func TestClient_Connect(t *testing.T) {
	dialer := newFakeDialer()
	c, log := newTestClient(t, dialer)

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42", Token: "tok"}))

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, []State{StateConnecting, StateConnected}, log.states())
	assert.Equal(t, "42", dialer.identities[0].UserID)
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	c, _ := newTestClient(t, dialer)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, Identity{UserID: "42"}))
	require.NoError(t, c.Connect(ctx, Identity{UserID: "42"}))

	assert.Equal(t, 1, dialer.dialCount())
}

func TestClient_ConcurrentConnectJoins(t *testing.T) {
	dialer := newFakeDialer()
	dialer.gate = make(chan struct{})
	c, _ := newTestClient(t, dialer)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Go(func() { errs <- c.Connect(ctx, Identity{UserID: "42"}) })
	}
	require.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(dialer.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, dialer.dialCount())
}

func TestClient_FallsBackThroughEndpoints(t *testing.T) {
	dialer := newFakeDialer()
	dialer.failing["ws://primary/ws"] = true
	c, _ := newTestClient(t, dialer, "ws://primary/ws", "ws://fallback/ws")

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42"}))

	assert.Equal(t, []string{"ws://primary/ws", "ws://fallback/ws"}, dialer.dials)
}

func TestClient_RequiresConnection(t *testing.T) {
	c, _ := newTestClient(t, newFakeDialer())

	err := c.Subscribe("all-questions", "/topic/questions", func([]byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.Publish("/app/ping", map[string]string{})
	assert.ErrorIs(t, err, ErrNotConnected)

	c.Unsubscribe("unknown")
}

func TestClient_SubscribeAndReplace(t *testing.T) {
	dialer := newFakeDialer()
	c, _ := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42"}))

	var first, second atomic.Int32
	require.NoError(t, c.Subscribe("all-questions", "/topic/questions", func([]byte) { first.Add(1) }))
	dialer.last().deliver("/topic/questions", `{}`)
	assert.Equal(t, int32(1), first.Load())

	require.NoError(t, c.Subscribe("all-questions", "/topic/questions", func([]byte) { second.Add(1) }))
	dialer.last().deliver("/topic/questions", `{}`)

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, 1, dialer.last().activeSubs())

	c.Unsubscribe("all-questions")
	assert.False(t, c.Subscribed("all-questions"))
	assert.Zero(t, dialer.last().activeSubs())
}

func TestClient_Publish(t *testing.T) {
	dialer := newFakeDialer()
	c, _ := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42"}))

	require.NoError(t, c.Publish("/app/question/q1/typing", map[string]any{"isTyping": true}))

	sent := dialer.last().sent
	require.Len(t, sent, 1)
	assert.Equal(t, "/app/question/q1/typing", sent[0].destination)
	assert.JSONEq(t, `{"isTyping":true}`, sent[0].body)
}

func TestClient_DisconnectInvalidatesSubscriptions(t *testing.T) {
	dialer := newFakeDialer()
	c, log := newTestClient(t, dialer)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, Identity{UserID: "42"}))

	var hits atomic.Int32
	require.NoError(t, c.Subscribe("typing-q1", "/topic/questions/q1/typing", func([]byte) { hits.Add(1) }))
	old := dialer.last()

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Subscribed("typing-q1"))
	assert.Empty(t, c.Keys())

	old.deliver("/topic/questions/q1/typing", `{}`)
	assert.Zero(t, hits.Load())
	c.Unsubscribe("typing-q1")

	require.NoError(t, c.Connect(ctx, Identity{UserID: "42"}))
	assert.Empty(t, c.Keys())
	assert.Equal(t, []State{StateConnecting, StateConnected, StateIdle, StateConnecting, StateConnected}, log.states())
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	dialer := newFakeDialer()
	c, log := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42"}))
	require.NoError(t, c.Subscribe("all-questions", "/topic/questions", func([]byte) {}))

	first := dialer.last()
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool {
		return c.State() == StateConnected && dialer.dialCount() == 2
	}, time.Second, time.Millisecond)

	assert.Empty(t, c.Keys())
	states := log.states()
	assert.Contains(t, states, StateDisconnected)
	assert.Equal(t, StateConnected, states[len(states)-1])
	assert.Equal(t, "42", dialer.identities[1].UserID)
}

func TestClient_ReconnectGivesUp(t *testing.T) {
	dialer := newFakeDialer()
	attempts := &attemptCounter{}
	c := New(Options{
		Endpoints:        []string{"ws://primary/ws"},
		Dialer:           dialer,
		ReconnectInitial: time.Millisecond,
		ReconnectMax:     2 * time.Millisecond,
		MaxAttempts:      3,
		Observer:         attempts,
	})
	log := &changeLog{}
	c.OnStateChange(log.listen)
	t.Cleanup(c.Disconnect)

	dialer.failAll.Store(true)
	err := c.Connect(context.Background(), Identity{UserID: "42"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)

	require.Eventually(t, log.fatal, time.Second, time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, int32(3), attempts.n.Load())
	assert.Equal(t, 4, dialer.dialCount())
}

func TestClient_DisconnectCancelsReconnect(t *testing.T) {
	dialer := newFakeDialer()
	c := New(Options{
		Endpoints:        []string{"ws://primary/ws"},
		Dialer:           dialer,
		ReconnectInitial: 50 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
		MaxAttempts:      5,
	})
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42"}))

	require.NoError(t, dialer.last().Close())
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, time.Second, time.Millisecond)

	c.Disconnect()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestClient_IdentityChangeReconnects(t *testing.T) {
	dialer := newFakeDialer()
	c, _ := newTestClient(t, dialer)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, Identity{UserID: "1"}))
	require.NoError(t, c.Subscribe("notifications-1", "/user/1/queue/notifications", func([]byte) {}))
	first := dialer.last()

	require.NoError(t, c.Connect(ctx, Identity{UserID: "2"}))

	assert.Equal(t, 2, dialer.dialCount())
	assert.Empty(t, c.Keys())
	select {
	case <-first.Done():
	default:
		t.Fatal("previous session left open")
	}
}

func TestClient_DropWhileListenersRunKeepsReconnecting(t *testing.T) {
	dialer := newFakeDialer()
	c, _ := newTestClient(t, dialer)

	var connects atomic.Int32
	c.OnStateChange(func(ch StateChange) {
		if ch.Current != StateConnected {
			return
		}
		if connects.Add(1) == 2 {
			// The session installed by the reconnect task dies before its
			// listeners have finished.
			_ = dialer.last().Close()
			time.Sleep(50 * time.Millisecond)
		}
	})

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "42"}))
	require.NoError(t, dialer.last().Close())

	require.Eventually(t, func() bool {
		return c.State() == StateConnected && dialer.dialCount() == 3
	}, 2*time.Second, time.Millisecond)
	assert.EqualValues(t, 3, connects.Load())
}
