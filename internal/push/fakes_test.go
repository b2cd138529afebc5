package push

import (
	"context"
	"sync"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/store"
	"github.com/stackitapp/stackit-sync/internal/transport"
)

type published struct {
	destination string
	payload     any
}

// fakeTransport mimics transport.Client: subscriptions only exist while connected.
type fakeTransport struct {
	mu        sync.Mutex
	state     transport.State
	listeners map[int]transport.Listener
	nextID    int
	subs      map[string]func([]byte)
	topics    map[string]string
	published []published
}

func newFakeTransport(state transport.State) *fakeTransport {
	return &fakeTransport{
		state:     state,
		listeners: make(map[int]transport.Listener),
		subs:      make(map[string]func([]byte)),
		topics:    make(map[string]string),
	}
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) OnStateChange(l transport.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeTransport) Subscribe(key, topic string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	f.subs[key] = handler
	f.topics[key] = topic
	return nil
}

func (f *fakeTransport) Unsubscribe(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, key)
	delete(f.topics, key)
}

func (f *fakeTransport) Publish(destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnected {
		return transport.ErrNotConnected
	}
	f.published = append(f.published, published{destination, payload})
	return nil
}

// setState moves to next; leaving CONNECTED drops every subscription.
func (f *fakeTransport) setState(next transport.State) {
	f.mu.Lock()
	prev := f.state
	f.state = next
	if next != transport.StateConnected {
		clear(f.subs)
		clear(f.topics)
	}
	listeners := make([]transport.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(transport.StateChange{Previous: prev, Current: next})
	}
}

func (f *fakeTransport) deliver(key string, body string) bool {
	f.mu.Lock()
	h, ok := f.subs[key]
	f.mu.Unlock()
	if ok {
		h([]byte(body))
	}
	return ok
}

func (f *fakeTransport) subscribed(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[key]
	return ok
}

func (f *fakeTransport) topic(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics[key]
}

func (f *fakeTransport) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

// fakeQuestions upserts by id and counts calls.
type fakeQuestions struct {
	mu         sync.Mutex
	questions  map[string]domain.Question
	accepted   map[string]string
	increments map[string]int
	fetches    []domain.PageRequest
	fetchErr   error
}

func newFakeQuestions() *fakeQuestions {
	return &fakeQuestions{
		questions:  make(map[string]domain.Question),
		accepted:   make(map[string]string),
		increments: make(map[string]int),
	}
}

func (f *fakeQuestions) MergeFromPush(q domain.Question) store.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.questions[q.ID]
	f.questions[q.ID] = q
	if ok {
		return store.Updated
	}
	return store.Inserted
}

func (f *fakeQuestions) ApplyAccepted(questionID, answerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted[questionID] = answerID
}

func (f *fakeQuestions) IncrementAnswerCount(questionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments[questionID]++
}

func (f *fakeQuestions) FetchPage(_ context.Context, req domain.PageRequest, _ bool) ([]domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, req)
	return nil, f.fetchErr
}

func (f *fakeQuestions) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

type fakeAnswers struct {
	mu      sync.Mutex
	answers map[string]domain.Answer
}

func (f *fakeAnswers) MergeFromPush(a domain.Answer) store.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers == nil {
		f.answers = make(map[string]domain.Answer)
	}
	_, ok := f.answers[a.ID]
	f.answers[a.ID] = a
	if ok {
		return store.Updated
	}
	return store.Inserted
}

type fakeVotes struct {
	mu      sync.Mutex
	changes []domain.ScoreChange
}

func (f *fakeVotes) ApplyScore(change domain.ScoreChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
}

type fakeNotifications struct {
	mu            sync.Mutex
	merged        []domain.Notification
	fetchedFor    []string
	countsFetched int
}

func (f *fakeNotifications) MergeFromPush(n domain.Notification) store.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, n)
	return store.Inserted
}

func (f *fakeNotifications) FetchPage(_ context.Context, userID string, _ domain.PageRequest) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedFor = append(f.fetchedFor, userID)
	return nil, nil
}

func (f *fakeNotifications) FetchUnreadCount(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countsFetched++
	return 0, nil
}

func (f *fakeNotifications) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetchedFor...)
}

type countingObserver struct {
	mu      sync.Mutex
	routed  map[string]int
	dropped map[string]int
	resyncs int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{routed: make(map[string]int), dropped: make(map[string]int)}
}

func (o *countingObserver) MessageRouted(t string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routed[t]++
}

func (o *countingObserver) MessageDropped(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[kind]++
}

func (o *countingObserver) Resynced(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resyncs++
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *recordingEmitter) Emit(v any) {
	if ev, ok := v.(sse.Event); ok {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	}
}

func (e *recordingEmitter) ofType(t sse.EventType) []sse.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []sse.Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	transport     *fakeTransport
	questions     *fakeQuestions
	answers       *fakeAnswers
	votes         *fakeVotes
	notifications *fakeNotifications
	observer      *countingObserver
	emitter       *recordingEmitter
	router        *Router
}

func newHarness(state transport.State) *harness {
	h := &harness{
		transport:     newFakeTransport(state),
		questions:     newFakeQuestions(),
		answers:       &fakeAnswers{},
		votes:         &fakeVotes{},
		notifications: &fakeNotifications{},
		observer:      newCountingObserver(),
		emitter:       &recordingEmitter{},
	}
	h.router = NewRouter(h.transport, Sinks{
		Questions:     h.questions,
		Answers:       h.answers,
		Votes:         h.votes,
		Notifications: h.notifications,
	}, Options{Emitter: h.emitter, Observer: h.observer, PageSize: 15})
	return h
}
