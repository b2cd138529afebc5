package domain

import "time"

// NotificationType tags the notification payload.
type NotificationType string

// Notification types delivered by the backend.
const (
	NotificationQuestionAnswered  NotificationType = "QUESTION_ANSWERED"
	NotificationAnswerCommented   NotificationType = "ANSWER_COMMENTED"
	NotificationUserMentioned     NotificationType = "USER_MENTIONED"
	NotificationAnswerAccepted    NotificationType = "ANSWER_ACCEPTED"
	NotificationQuestionUpvoted   NotificationType = "QUESTION_UPVOTED"
	NotificationAnswerUpvoted     NotificationType = "ANSWER_UPVOTED"
	NotificationQuestionDownvoted NotificationType = "QUESTION_DOWNVOTED"
	NotificationAnswerDownvoted   NotificationType = "ANSWER_DOWNVOTED"
)

// IsVote reports whether the notification was triggered by a vote.
func (t NotificationType) IsVote() bool {
	switch t {
	case NotificationQuestionUpvoted, NotificationAnswerUpvoted,
		NotificationQuestionDownvoted, NotificationAnswerDownvoted:
		return true
	default:
		return false
	}
}

// Notification is a message addressed to the current user.
type Notification struct {
	ID            string           `json:"id"`
	RecipientID   string           `json:"recipient_id,omitempty"`
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	ReferenceType string           `json:"reference_type,omitempty"`
	ActionURL     string           `json:"action_url,omitempty"`
	TriggeredBy   *User            `json:"triggered_by,omitempty"`
	IsRead        bool             `json:"is_read"`
	ReadAt        *time.Time       `json:"read_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Version orders notification writes: a read receipt is newer than the delivery.
func (n Notification) Version() time.Time {
	if n.ReadAt != nil && n.ReadAt.After(n.CreatedAt) {
		return *n.ReadAt
	}
	return n.CreatedAt
}

// NotificationStats summarizes the cached notifications.
type NotificationStats struct {
	Total  int                      `json:"total"`
	Unread int                      `json:"unread"`
	ByType map[NotificationType]int `json:"by_type"`
}
