package wire

import (
	"bytes"
	"encoding/json"
)

// Push message types.
const (
	PushQuestionCreated    = "QUESTION_CREATED"
	PushQuestionUpdated    = "QUESTION_UPDATED"
	PushNewAnswer          = "NEW_ANSWER"
	PushAnswerUpdated      = "ANSWER_UPDATED"
	PushAnswerAccepted     = "ANSWER_ACCEPTED"
	PushVoteChanged        = "VOTE_CHANGED"
	PushNewNotification    = "NEW_NOTIFICATION"
	PushTypingIndicator    = "TYPING_INDICATOR"
	PushUserStatus         = "USER_STATUS"
	PushSystemAnnouncement = "SYSTEM_ANNOUNCEMENT"
	PushPong               = "PONG"
)

// PushEnvelope is the outer shape of a STOMP MESSAGE body. Entity events
// carry the entity under data; the others are flat. A body without a type
// is a bare payload.
type PushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the envelope wraps a payload under data.
func (e PushEnvelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Payload returns data when present, else the whole body.
func (e PushEnvelope) Payload(body []byte) []byte {
	if e.HasData() {
		return e.Data
	}
	return body
}

// AcceptedPush is the flat ANSWER_ACCEPTED body.
type AcceptedPush struct {
	QuestionID ID `json:"questionId"`
	AnswerID   ID `json:"answerId"`
}

// VotePush is the flat VOTE_CHANGED body.
type VotePush struct {
	AnswerID ID   `json:"answerId"`
	NewScore *int `json:"newScore"`
}

// TypingPush is the flat TYPING_INDICATOR body.
type TypingPush struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// StatusPush is the flat USER_STATUS body.
type StatusPush struct {
	UserID   ID   `json:"userId"`
	IsOnline bool `json:"isOnline"`
}

// AnnouncementPush is the flat SYSTEM_ANNOUNCEMENT body.
type AnnouncementPush struct {
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	AnnouncementType string    `json:"announcementType"`
	Timestamp        Timestamp `json:"timestamp"`
}

// PongPush is the reply to a ping.
type PongPush struct {
	Timestamp Timestamp `json:"timestamp"`
}
