package push

import (
	"encoding/json"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// Message is one decoded push event. Exactly one payload field is set, matching Type.
type Message struct {
	Type string

	Question     *domain.Question
	Answer       *domain.Answer
	Accepted     *domain.AcceptedAnswer
	Score        *domain.ScoreChange
	Notification *domain.Notification
	Typing       *domain.TypingIndicator
	Status       *domain.UserStatus
	Announcement *domain.Announcement
	Pong         time.Time
}

// Decode parses body received on topic. Untyped bodies get their type from
// the topic. Every error is a MALFORMED_PAYLOAD error.
func Decode(topic Topic, body []byte) (Message, error) {
	var env wire.PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Message{}, errors.Malformed(err, "push body is not a JSON object")
	}

	msgType := env.Type
	if msgType == "" {
		inferred, err := inferType(topic, env, body)
		if err != nil {
			return Message{}, err
		}
		msgType = inferred
	}

	payload := env.Payload(body)
	msg := Message{Type: msgType}

	switch msgType {
	case wire.PushQuestionCreated, wire.PushQuestionUpdated:
		var q wire.Question
		if err := json.Unmarshal(payload, &q); err != nil {
			return Message{}, errors.Malformed(err, "invalid question payload")
		}
		if q.ID == "" {
			return Message{}, errors.Malformed(nil, "question payload without id")
		}
		dq := normalize.Question(q)
		msg.Question = &dq

	case wire.PushNewAnswer, wire.PushAnswerUpdated:
		var a wire.Answer
		if err := json.Unmarshal(payload, &a); err != nil {
			return Message{}, errors.Malformed(err, "invalid answer payload")
		}
		if a.ID == "" {
			return Message{}, errors.Malformed(nil, "answer payload without id")
		}
		da := normalize.Answer(a, questionScope(topic))
		if da.QuestionID == "" {
			return Message{}, errors.Malformed(nil, "answer payload without question")
		}
		msg.Answer = &da

	case wire.PushAnswerAccepted:
		var p wire.AcceptedPush
		if err := json.Unmarshal(payload, &p); err != nil {
			return Message{}, errors.Malformed(err, "invalid acceptance payload")
		}
		qid := string(p.QuestionID)
		if qid == "" {
			qid = questionScope(topic)
		}
		if qid == "" || p.AnswerID == "" {
			return Message{}, errors.Malformed(nil, "acceptance payload without question or answer")
		}
		msg.Accepted = &domain.AcceptedAnswer{QuestionID: qid, AnswerID: string(p.AnswerID)}

	case wire.PushVoteChanged:
		var p wire.VotePush
		if err := json.Unmarshal(payload, &p); err != nil {
			return Message{}, errors.Malformed(err, "invalid vote payload")
		}
		aid := string(p.AnswerID)
		if aid == "" && topic.Kind == KindAnswer {
			aid = topic.ID
		}
		if aid == "" || p.NewScore == nil {
			return Message{}, errors.Malformed(nil, "vote payload without answer or score")
		}
		msg.Score = &domain.ScoreChange{AnswerID: aid, NewScore: *p.NewScore}

	case wire.PushNewNotification:
		var n wire.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return Message{}, errors.Malformed(err, "invalid notification payload")
		}
		if n.ID == "" {
			return Message{}, errors.Malformed(nil, "notification payload without id")
		}
		dn := normalize.Notification(n)
		if dn.RecipientID == "" && topic.Kind == KindNotifications {
			dn.RecipientID = topic.ID
		}
		msg.Notification = &dn

	case wire.PushTypingIndicator:
		if topic.Kind != KindTyping {
			return Message{}, errors.Malformed(nil, "typing indicator outside a typing topic")
		}
		var p wire.TypingPush
		if err := json.Unmarshal(payload, &p); err != nil {
			return Message{}, errors.Malformed(err, "invalid typing payload")
		}
		if p.Username == "" {
			return Message{}, errors.Malformed(nil, "typing payload without username")
		}
		msg.Typing = &domain.TypingIndicator{QuestionID: topic.ID, Username: p.Username, IsTyping: p.IsTyping}

	case wire.PushUserStatus:
		var p wire.StatusPush
		if err := json.Unmarshal(payload, &p); err != nil {
			return Message{}, errors.Malformed(err, "invalid status payload")
		}
		if p.UserID == "" {
			return Message{}, errors.Malformed(nil, "status payload without user")
		}
		msg.Status = &domain.UserStatus{UserID: string(p.UserID), IsOnline: p.IsOnline}

	case wire.PushSystemAnnouncement:
		var p wire.AnnouncementPush
		if err := json.Unmarshal(payload, &p); err != nil {
			return Message{}, errors.Malformed(err, "invalid announcement payload")
		}
		if p.Title == "" && p.Message == "" {
			return Message{}, errors.Malformed(nil, "empty announcement")
		}
		msg.Announcement = &domain.Announcement{
			Title:     p.Title,
			Message:   p.Message,
			Type:      p.AnnouncementType,
			Timestamp: p.Timestamp.Time,
		}

	case wire.PushPong:
		var p wire.PongPush
		if err := json.Unmarshal(payload, &p); err != nil {
			return Message{}, errors.Malformed(err, "invalid pong payload")
		}
		msg.Pong = p.Timestamp.Time

	default:
		return Message{}, errors.Malformed(nil, "unknown push type "+msgType)
	}
	return msg, nil
}

func questionScope(topic Topic) string {
	if topic.Kind == KindQuestion || topic.Kind == KindTyping {
		return topic.ID
	}
	return ""
}

// inferType names the event an untyped body represents.
func inferType(topic Topic, env wire.PushEnvelope, body []byte) (string, error) {
	switch topic.Kind {
	case KindAllQuestions:
		return wire.PushQuestionCreated, nil
	case KindNotifications:
		return wire.PushNewNotification, nil
	case KindTyping:
		return wire.PushTypingIndicator, nil
	case KindUserStatus:
		return wire.PushUserStatus, nil
	case KindAnswer:
		return wire.PushVoteChanged, nil
	case KindAnnouncements:
		return wire.PushSystemAnnouncement, nil
	case KindPong:
		return wire.PushPong, nil
	case KindQuestion:
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(env.Payload(body), &keys); err != nil {
			return "", errors.Malformed(err, "untyped question payload is not an object")
		}
		_, hasID := keys["id"]
		_, hasTitle := keys["title"]
		_, hasContent := keys["content"]
		_, hasAnswerID := keys["answerId"]
		switch {
		case hasID && hasTitle:
			return wire.PushQuestionUpdated, nil
		case hasID && hasContent:
			return wire.PushAnswerUpdated, nil
		case !env.HasData() && hasAnswerID:
			return wire.PushAnswerAccepted, nil
		}
	}
	return "", errors.Malformed(nil, "cannot infer push type on "+topic.Destination)
}
