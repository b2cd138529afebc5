package domain

import "time"

// TypingIndicator reports that a user started or stopped typing an answer.
type TypingIndicator struct {
	QuestionID string `json:"question_id"`
	Username   string `json:"username"`
	IsTyping   bool   `json:"is_typing"`
}

// UserStatus reports a presence change.
type UserStatus struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// Announcement is a system-wide message.
type Announcement struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoreChange is a pushed score update for one answer.
type ScoreChange struct {
	AnswerID string `json:"answer_id"`
	NewScore int    `json:"new_score"`
}

// AcceptedAnswer marks answerID as the accepted answer of questionID.
type AcceptedAnswer struct {
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id"`
}
