package domain

import "time"

// Answer is a reply to a question.
type Answer struct {
	Syncable
	ID              string     `json:"id"`
	QuestionID      string     `json:"question_id"`
	Content         string     `json:"content"`
	Author          User       `json:"author"`
	Score           int        `json:"score"`
	UpvoteCount     int        `json:"upvote_count"`
	DownvoteCount   int        `json:"downvote_count"`
	CurrentUserVote VoteType   `json:"current_user_vote,omitempty"`
	IsAccepted      bool       `json:"is_accepted"`
	IsActive        bool       `json:"is_active"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
}

// Version returns the latest of the edit, update and creation timestamps.
func (a Answer) Version() time.Time {
	v := a.Syncable.Version()
	if a.EditedAt != nil && a.EditedAt.After(v) {
		return *a.EditedAt
	}
	return v
}

// AnswerInput is the payload for posting or editing an answer.
type AnswerInput struct {
	QuestionID string `json:"question_id" validate:"required"`
	Content    string `json:"content" validate:"required,min=10"`
}
