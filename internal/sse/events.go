// Package sse implements the Server-Sent Events change feed for locally reconciled state.
package sse

import (
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

// Every store mutation, whether it came from a REST response or a push
// message, is republished here so embedding consumers see one ordered
// stream of reconciled changes.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventQuestionUpserted represents a question entering or changing in the cache.
	EventQuestionUpserted EventType = "question.upserted"
	// EventQuestionDeleted represents a question removed from the cache.
	EventQuestionDeleted EventType = "question.deleted"
	// EventQuestionsPage represents a page load replacing or extending the question view.
	EventQuestionsPage EventType = "questions.page"

	// EventAnswerUpserted represents an answer entering or changing in the cache.
	EventAnswerUpserted EventType = "answer.upserted"
	// EventAnswerDeleted represents an answer removed from the cache.
	EventAnswerDeleted EventType = "answer.deleted"
	// EventAnswerAccepted represents a question's accepted answer changing.
	EventAnswerAccepted EventType = "answer.accepted"

	// EventScoreChanged represents a new server-confirmed answer score.
	EventScoreChanged EventType = "vote.score_changed"
	// EventUserVoteChanged represents the current user's vote changing.
	EventUserVoteChanged EventType = "vote.user_changed"
	// EventVotesCleared represents all per-user vote data being dropped.
	EventVotesCleared EventType = "vote.cleared"

	// EventTagUpserted represents a tag entering or changing in the cache.
	EventTagUpserted EventType = "tag.upserted"

	// EventNotificationCreated represents a new notification.
	EventNotificationCreated EventType = "notification.created"
	// EventNotificationRead represents a notification being marked read.
	EventNotificationRead EventType = "notification.read"
	// EventNotificationCount represents a change of the unread counter.
	EventNotificationCount EventType = "notification.count"

	// EventTyping represents a change of who is typing on a question.
	EventTyping EventType = "typing.changed"
	// EventPresence represents a user going online or offline.
	EventPresence EventType = "presence.changed"
	// EventAnnouncement represents a system announcement.
	EventAnnouncement EventType = "announcement"

	// EventSession represents a session state transition.
	EventSession EventType = "session.changed"
	// EventTransport represents a push connection state transition.
	EventTransport EventType = "transport.changed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// UserID restricts delivery to clients registered for that user.
	// Empty means broadcast to all.
	UserID string `json:"-"`

	// Seq is assigned by the Manager when the event is published and is
	// written as the frame id. Heartbeats carry zero.
	Seq uint64 `json:"seq,omitempty"`
}

// QuestionEventData is the data payload for question events.
type QuestionEventData struct {
	Question *domain.Question `json:"question"`
}

// QuestionDeletedEventData is the data payload for question delete events.
type QuestionDeletedEventData struct {
	QuestionID string `json:"question_id"`
}

// QuestionsPageEventData is the data payload for question page loads.
// IDs is the full ordered view after the load.
type QuestionsPageEventData struct {
	IDs      []string      `json:"ids"`
	Cursor   domain.Cursor `json:"cursor"`
	Replaced bool          `json:"replaced"`
}

// AnswerEventData is the data payload for answer events.
type AnswerEventData struct {
	Answer *domain.Answer `json:"answer"`
}

// AnswerDeletedEventData is the data payload for answer delete events.
type AnswerDeletedEventData struct {
	AnswerID   string `json:"answer_id"`
	QuestionID string `json:"question_id"`
}

// ScoreEventData is the data payload for score events.
type ScoreEventData struct {
	AnswerID string           `json:"answer_id"`
	Score    domain.VoteScore `json:"score"`
}

// UserVoteEventData is the data payload for user vote events.
type UserVoteEventData struct {
	AnswerID string          `json:"answer_id"`
	Vote     domain.VoteType `json:"vote"`
}

// TagEventData is the data payload for tag events.
type TagEventData struct {
	Tag *domain.Tag `json:"tag"`
}

// NotificationEventData is the data payload for notification events.
type NotificationEventData struct {
	Notification *domain.Notification `json:"notification"`
}

// NotificationCountEventData is the data payload for unread counter events.
type NotificationCountEventData struct {
	Unread int64 `json:"unread"`
}

// TypingEventData is the data payload for typing events.
type TypingEventData struct {
	QuestionID string   `json:"question_id"`
	Usernames  []string `json:"usernames"`
}

// SessionEventData is the data payload for session events.
type SessionEventData struct {
	State  string `json:"state"`
	UserID string `json:"user_id,omitempty"`
}

// TransportEventData is the data payload for transport events.
type TransportEventData struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Error    string `json:"error,omitempty"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// NewQuestionUpsertedEvent creates a question.upserted event.
func NewQuestionUpsertedEvent(q domain.Question) Event {
	return newEvent(EventQuestionUpserted, QuestionEventData{Question: &q})
}

// NewQuestionDeletedEvent creates a question.deleted event.
func NewQuestionDeletedEvent(questionID string) Event {
	return newEvent(EventQuestionDeleted, QuestionDeletedEventData{QuestionID: questionID})
}

// NewQuestionsPageEvent creates a questions.page event.
func NewQuestionsPageEvent(ids []string, cursor domain.Cursor, replaced bool) Event {
	return newEvent(EventQuestionsPage, QuestionsPageEventData{IDs: ids, Cursor: cursor, Replaced: replaced})
}

// NewAnswerUpsertedEvent creates an answer.upserted event.
func NewAnswerUpsertedEvent(a domain.Answer) Event {
	return newEvent(EventAnswerUpserted, AnswerEventData{Answer: &a})
}

// NewAnswerDeletedEvent creates an answer.deleted event.
func NewAnswerDeletedEvent(answerID, questionID string) Event {
	return newEvent(EventAnswerDeleted, AnswerDeletedEventData{AnswerID: answerID, QuestionID: questionID})
}

// NewAnswerAcceptedEvent creates an answer.accepted event.
func NewAnswerAcceptedEvent(accepted domain.AcceptedAnswer) Event {
	return newEvent(EventAnswerAccepted, accepted)
}

// NewScoreChangedEvent creates a vote.score_changed event.
func NewScoreChangedEvent(answerID string, score domain.VoteScore) Event {
	return newEvent(EventScoreChanged, ScoreEventData{AnswerID: answerID, Score: score})
}

// NewUserVoteChangedEvent creates a vote.user_changed event for one user.
func NewUserVoteChangedEvent(userID, answerID string, vote domain.VoteType) Event {
	e := newEvent(EventUserVoteChanged, UserVoteEventData{AnswerID: answerID, Vote: vote})
	e.UserID = userID
	return e
}

// NewVotesClearedEvent creates a vote.cleared event.
func NewVotesClearedEvent() Event {
	return newEvent(EventVotesCleared, struct{}{})
}

// NewTagUpsertedEvent creates a tag.upserted event.
func NewTagUpsertedEvent(t domain.Tag) Event {
	return newEvent(EventTagUpserted, TagEventData{Tag: &t})
}

// NewNotificationCreatedEvent creates a notification.created event for the recipient.
func NewNotificationCreatedEvent(n domain.Notification) Event {
	e := newEvent(EventNotificationCreated, NotificationEventData{Notification: &n})
	e.UserID = n.RecipientID
	return e
}

// NewNotificationReadEvent creates a notification.read event for the recipient.
func NewNotificationReadEvent(n domain.Notification) Event {
	e := newEvent(EventNotificationRead, NotificationEventData{Notification: &n})
	e.UserID = n.RecipientID
	return e
}

// NewNotificationCountEvent creates a notification.count event.
func NewNotificationCountEvent(userID string, unread int64) Event {
	e := newEvent(EventNotificationCount, NotificationCountEventData{Unread: unread})
	e.UserID = userID
	return e
}

// NewTypingEvent creates a typing.changed event.
func NewTypingEvent(questionID string, usernames []string) Event {
	if usernames == nil {
		usernames = []string{}
	}
	return newEvent(EventTyping, TypingEventData{QuestionID: questionID, Usernames: usernames})
}

// NewPresenceEvent creates a presence.changed event.
func NewPresenceEvent(status domain.UserStatus) Event {
	return newEvent(EventPresence, status)
}

// NewAnnouncementEvent creates an announcement event.
func NewAnnouncementEvent(a domain.Announcement) Event {
	return newEvent(EventAnnouncement, a)
}

// NewSessionEvent creates a session.changed event.
func NewSessionEvent(state, userID string) Event {
	return newEvent(EventSession, SessionEventData{State: state, UserID: userID})
}

// NewTransportEvent creates a transport.changed event.
func NewTransportEvent(previous, current string, err error) Event {
	data := TransportEventData{Previous: previous, Current: current}
	if err != nil {
		data.Error = err.Error()
	}
	return newEvent(EventTransport, data)
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return newEvent(EventHeartbeat, HeartbeatEventData{ServerTime: time.Now()})
}
