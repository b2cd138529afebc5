// Package push routes STOMP messages into the resource stores.
//
// The router owns the set of watched topics. Whenever the transport reaches
// CONNECTED it subscribes every watched topic again and refetches the first
// page of questions and notifications, so events missed while offline are
// recovered. Typing state never outlives a connection.
package push

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/store"
	"github.com/stackitapp/stackit-sync/internal/transport"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// Transport is the part of transport.Client the router drives.
type Transport interface {
	State() transport.State
	OnStateChange(l transport.Listener) func()
	Subscribe(key, topic string, handler func(body []byte)) error
	Unsubscribe(key string)
	Publish(destination string, payload any) error
}

// QuestionSink receives question events.
type QuestionSink interface {
	MergeFromPush(q domain.Question) store.Outcome
	ApplyAccepted(questionID, answerID string)
	IncrementAnswerCount(questionID string)
	FetchPage(ctx context.Context, req domain.PageRequest, reset bool) ([]domain.Question, error)
}

// AnswerSink receives answer events.
type AnswerSink interface {
	MergeFromPush(a domain.Answer) store.Outcome
}

// ScoreSink receives vote events.
type ScoreSink interface {
	ApplyScore(change domain.ScoreChange)
}

// NotificationSink receives notification events.
type NotificationSink interface {
	MergeFromPush(n domain.Notification) store.Outcome
	FetchPage(ctx context.Context, userID string, req domain.PageRequest) ([]domain.Notification, error)
	FetchUnreadCount(ctx context.Context, userID string) (int64, error)
}

// Sinks are the stores the router writes to.
type Sinks struct {
	Questions     QuestionSink
	Answers       AnswerSink
	Votes         ScoreSink
	Notifications NotificationSink
}

// Observer is told about routed and dropped messages, typically for metrics.
type Observer interface {
	MessageRouted(msgType string)
	MessageDropped(kind string)
	Resynced(err error)
}

type noopObserver struct{}

func (noopObserver) MessageRouted(string)  {}
func (noopObserver) MessageDropped(string) {}
func (noopObserver) Resynced(error)        {}

// Options configures a Router.
type Options struct {
	Logger   *slog.Logger
	Emitter  store.EventEmitter
	Observer Observer
	// PageSize is the page size of resync fetches.
	PageSize int
	Now      func() time.Time
}

// Router dispatches push messages and keeps subscriptions alive across reconnects.
type Router struct {
	transport Transport
	sinks     Sinks
	logger    *slog.Logger
	emitter   store.EventEmitter
	observer  Observer
	pageSize  int
	now       func() time.Time

	typing   *TypingTracker
	presence *Presence

	mu       sync.Mutex
	watched  map[string]Topic
	userID   string
	ctx      context.Context
	cancel   context.CancelFunc
	detach   func()
	resyncWG sync.WaitGroup
	lastPong time.Time
}

// NewRouter creates a router over t. Start must be called before messages flow.
func NewRouter(t Transport, sinks Sinks, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Emitter == nil {
		opts.Emitter = store.NewNoopEmitter()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Router{
		transport: t,
		sinks:     sinks,
		logger:    opts.Logger,
		emitter:   opts.Emitter,
		observer:  opts.Observer,
		pageSize:  opts.PageSize,
		now:       opts.Now,
		typing:    NewTypingTracker(),
		presence:  NewPresence(),
		watched:   make(map[string]Topic),
	}
	for _, topic := range []Topic{AllQuestionsTopic(), UserStatusTopic(), AnnouncementsTopic(), PongTopic()} {
		r.watched[topic.Key] = topic
	}
	return r
}

// Start attaches the router to the transport. Resync fetches run under ctx.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	if r.detach != nil {
		r.mu.Unlock()
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.detach = r.transport.OnStateChange(r.onStateChange)
	connected := r.transport.State() == transport.StateConnected
	r.mu.Unlock()

	if connected {
		r.onConnected()
	}
}

// Stop detaches from the transport and waits for running resyncs.
func (r *Router) Stop() {
	r.mu.Lock()
	detach, cancel := r.detach, r.cancel
	r.detach, r.cancel = nil, nil
	r.mu.Unlock()

	if detach != nil {
		detach()
	}
	if cancel != nil {
		cancel()
	}
	r.resyncWG.Wait()
}

// SetUser switches the private notification queue to userID. An empty id drops it.
func (r *Router) SetUser(userID string) {
	r.mu.Lock()
	prev := r.userID
	if prev == userID {
		r.mu.Unlock()
		return
	}
	r.userID = userID
	var drop string
	if prev != "" {
		drop = NotificationsTopic(prev).Key
		delete(r.watched, drop)
	}
	var add Topic
	if userID != "" {
		add = NotificationsTopic(userID)
		r.watched[add.Key] = add
	}
	r.mu.Unlock()

	if drop != "" {
		r.transport.Unsubscribe(drop)
	}
	if add.Key != "" {
		r.subscribe(add)
	}
}

// User returns the user whose notifications are routed.
func (r *Router) User() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// WatchQuestion follows updates, answers and typing of one question.
func (r *Router) WatchQuestion(questionID string) {
	r.Watch(QuestionTopic(questionID))
	r.Watch(TypingTopic(questionID))
}

// UnwatchQuestion stops following a question and forgets who was typing on it.
func (r *Router) UnwatchQuestion(questionID string) {
	r.Unwatch(QuestionTopic(questionID).Key)
	r.Unwatch(TypingTopic(questionID).Key)
	if r.typing.ClearQuestion(questionID) {
		r.emitter.Emit(sse.NewTypingEvent(questionID, nil))
	}
}

// WatchAnswer follows the score of one answer.
func (r *Router) WatchAnswer(answerID string) {
	r.Watch(AnswerTopic(answerID))
}

// UnwatchAnswer stops following an answer's score.
func (r *Router) UnwatchAnswer(answerID string) {
	r.Unwatch(AnswerTopic(answerID).Key)
}

// Watch adds t to the watched set and subscribes at once when connected.
func (r *Router) Watch(t Topic) {
	r.mu.Lock()
	r.watched[t.Key] = t
	r.mu.Unlock()
	r.subscribe(t)
}

// Unwatch removes key from the watched set.
func (r *Router) Unwatch(key string) {
	r.mu.Lock()
	delete(r.watched, key)
	r.mu.Unlock()
	r.transport.Unsubscribe(key)
}

// Watched returns the watched subscription keys, sorted.
func (r *Router) Watched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.watched))
}

// Typing returns who is typing on questionID.
func (r *Router) Typing(questionID string) []string {
	return r.typing.Users(questionID)
}

// AnyoneTyping reports whether anybody is typing on questionID.
func (r *Router) AnyoneTyping(questionID string) bool {
	return r.typing.AnyoneTyping(questionID)
}

// Online reports whether userID was last reported online.
func (r *Router) Online(userID string) bool {
	return r.presence.Online(userID)
}

// OnlineUsers returns every user reported online.
func (r *Router) OnlineUsers() []string {
	return r.presence.OnlineUsers()
}

// LastPong returns when the last pong arrived.
func (r *Router) LastPong() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPong
}

// Reset forgets typing and presence state, as on sign-out.
func (r *Router) Reset() {
	r.clearTyping()
	r.presence.Clear()
}

// SendTyping publishes that username started or stopped typing on questionID.
func (r *Router) SendTyping(questionID, username string, isTyping bool) error {
	return r.transport.Publish(TypingDestination(questionID), wire.TypingMessage{Username: username, IsTyping: isTyping})
}

// SendStatus publishes the online state of userID.
func (r *Router) SendStatus(userID string, online bool) error {
	return r.transport.Publish(StatusDestination, wire.StatusMessage{UserID: wire.ID(userID), IsOnline: online})
}

// Ping publishes a ping stamped with the current time.
func (r *Router) Ping() error {
	return r.transport.Publish(PingDestination, wire.PingMessage{Timestamp: r.now().UnixMilli()})
}

func (r *Router) subscribe(t Topic) {
	err := r.transport.Subscribe(t.Key, t.Destination, func(body []byte) {
		r.Handle(t, body)
	})
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrNotConnected):
		// Picked up on the next CONNECTED.
	default:
		r.logger.Warn("push subscribe failed",
			slog.String("key", t.Key),
			slog.String("topic", t.Destination),
			slog.String("error", err.Error()))
	}
}

func (r *Router) onStateChange(change transport.StateChange) {
	switch change.Current {
	case transport.StateConnected:
		r.onConnected()
	case transport.StateDisconnected, transport.StateIdle:
		r.clearTyping()
	}
}

// onConnected resubscribes every watched topic and refetches first pages in the background.
func (r *Router) onConnected() {
	r.clearTyping()

	r.mu.Lock()
	topics := make([]Topic, 0, len(r.watched))
	for _, key := range slices.Sorted(maps.Keys(r.watched)) {
		topics = append(topics, r.watched[key])
	}
	ctx, userID := r.ctx, r.userID
	r.mu.Unlock()

	for _, t := range topics {
		r.subscribe(t)
	}
	if ctx == nil {
		return
	}

	r.resyncWG.Add(1)
	go func() {
		defer r.resyncWG.Done()
		err := r.resync(ctx, userID)
		r.observer.Resynced(err)
		if err != nil && ctx.Err() == nil {
			r.logger.Warn("resync after connect failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Router) resync(ctx context.Context, userID string) error {
	req := domain.PageRequest{Page: 0, Size: r.pageSize}
	g, gctx := errgroup.WithContext(ctx)
	if r.sinks.Questions != nil {
		g.Go(func() error {
			_, err := r.sinks.Questions.FetchPage(gctx, req, true)
			return err
		})
	}
	if r.sinks.Notifications != nil && userID != "" {
		g.Go(func() error {
			if _, err := r.sinks.Notifications.FetchPage(gctx, userID, req); err != nil {
				return err
			}
			_, err := r.sinks.Notifications.FetchUnreadCount(gctx, userID)
			return err
		})
	}
	return g.Wait()
}

func (r *Router) clearTyping() {
	for _, qid := range r.typing.Clear() {
		r.emitter.Emit(sse.NewTypingEvent(qid, nil))
	}
}

// Handle decodes body received on t and applies it. Malformed bodies are
// logged and dropped; they never affect the subscription.
func (r *Router) Handle(t Topic, body []byte) {
	msg, err := Decode(t, body)
	if err != nil {
		r.observer.MessageDropped(t.Kind.String())
		r.logger.Warn("dropping malformed push payload",
			slog.String("topic", t.Destination),
			slog.String("error", err.Error()))
		return
	}
	r.apply(msg)
	r.observer.MessageRouted(msg.Type)
}

func (r *Router) apply(msg Message) {
	switch msg.Type {
	case wire.PushQuestionCreated, wire.PushQuestionUpdated:
		if r.sinks.Questions != nil {
			r.logOutcome(msg.Type, msg.Question.ID, r.sinks.Questions.MergeFromPush(*msg.Question))
		}

	case wire.PushNewAnswer, wire.PushAnswerUpdated:
		if r.sinks.Answers == nil {
			return
		}
		outcome := r.sinks.Answers.MergeFromPush(*msg.Answer)
		r.logOutcome(msg.Type, msg.Answer.ID, outcome)
		if msg.Type == wire.PushNewAnswer && outcome == store.Inserted && r.sinks.Questions != nil {
			r.sinks.Questions.IncrementAnswerCount(msg.Answer.QuestionID)
		}

	case wire.PushAnswerAccepted:
		if r.sinks.Questions != nil {
			r.sinks.Questions.ApplyAccepted(msg.Accepted.QuestionID, msg.Accepted.AnswerID)
		}

	case wire.PushVoteChanged:
		if r.sinks.Votes != nil {
			r.sinks.Votes.ApplyScore(*msg.Score)
		}

	case wire.PushNewNotification:
		if r.sinks.Notifications != nil {
			r.logOutcome(msg.Type, msg.Notification.ID, r.sinks.Notifications.MergeFromPush(*msg.Notification))
		}

	case wire.PushTypingIndicator:
		ti := msg.Typing
		if r.typing.Apply(ti.QuestionID, ti.Username, ti.IsTyping) {
			r.emitter.Emit(sse.NewTypingEvent(ti.QuestionID, r.typing.Users(ti.QuestionID)))
		}

	case wire.PushUserStatus:
		if r.presence.Set(msg.Status.UserID, msg.Status.IsOnline) {
			r.emitter.Emit(sse.NewPresenceEvent(*msg.Status))
		}

	case wire.PushSystemAnnouncement:
		a := *msg.Announcement
		if a.Timestamp.IsZero() {
			a.Timestamp = r.now()
		}
		r.logger.Info("system announcement", slog.String("title", a.Title), slog.String("type", a.Type))
		r.emitter.Emit(sse.NewAnnouncementEvent(a))

	case wire.PushPong:
		at := msg.Pong
		if at.IsZero() {
			at = r.now()
		}
		r.mu.Lock()
		r.lastPong = at
		r.mu.Unlock()
	}
}

func (r *Router) logOutcome(msgType, id string, outcome store.Outcome) {
	r.logger.Debug("push applied",
		slog.String("type", msgType),
		slog.String("id", id),
		slog.String("outcome", outcome.String()))
}
