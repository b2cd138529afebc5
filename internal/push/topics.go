package push

import "fmt"

// Kind classifies a subscribed destination.
type Kind int

// Topic kinds.
const (
	KindQuestion Kind = iota
	KindAllQuestions
	KindNotifications
	KindTyping
	KindUserStatus
	KindAnswer
	KindAnnouncements
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindAllQuestions:
		return "all-questions"
	case KindNotifications:
		return "notifications"
	case KindTyping:
		return "typing"
	case KindUserStatus:
		return "user-status"
	case KindAnswer:
		return "answer"
	case KindAnnouncements:
		return "announcements"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Topic is a subscription: the key it is registered under, the STOMP
// destination, and the entity id embedded in the destination if any.
type Topic struct {
	Key         string
	Destination string
	Kind        Kind
	ID          string
}

// QuestionTopic carries updates, answers and acceptances of one question.
func QuestionTopic(questionID string) Topic {
	return Topic{
		Key:         "question-" + questionID,
		Destination: "/topic/questions/" + questionID,
		Kind:        KindQuestion,
		ID:          questionID,
	}
}

// AllQuestionsTopic carries every created or updated question.
func AllQuestionsTopic() Topic {
	return Topic{Key: "all-questions", Destination: "/topic/questions", Kind: KindAllQuestions}
}

// NotificationsTopic is the private notification queue of userID.
func NotificationsTopic(userID string) Topic {
	return Topic{
		Key:         "notifications-" + userID,
		Destination: "/user/" + userID + "/queue/notifications",
		Kind:        KindNotifications,
		ID:          userID,
	}
}

// TypingTopic carries typing indicators of one question.
func TypingTopic(questionID string) Topic {
	return Topic{
		Key:         "typing-" + questionID,
		Destination: "/topic/questions/" + questionID + "/typing",
		Kind:        KindTyping,
		ID:          questionID,
	}
}

// UserStatusTopic carries presence changes.
func UserStatusTopic() Topic {
	return Topic{Key: "user-status", Destination: "/topic/users/status", Kind: KindUserStatus}
}

// AnswerTopic carries score changes of one answer.
func AnswerTopic(answerID string) Topic {
	return Topic{
		Key:         "answer-" + answerID,
		Destination: "/topic/answers/" + answerID,
		Kind:        KindAnswer,
		ID:          answerID,
	}
}

// AnnouncementsTopic carries system announcements.
func AnnouncementsTopic() Topic {
	return Topic{Key: "announcements", Destination: "/topic/announcements", Kind: KindAnnouncements}
}

// PongTopic carries replies to Ping.
func PongTopic() Topic {
	return Topic{Key: "pong", Destination: "/user/queue/pong", Kind: KindPong}
}

// Published destinations.
const (
	StatusDestination = "/app/user/status"
	PingDestination   = "/app/ping"
)

// TypingDestination is where typing indicators for questionID are published.
func TypingDestination(questionID string) string {
	return fmt.Sprintf("/app/question/%s/typing", questionID)
}
