// Package domain contains the canonical entities of the StackIt sync client.
// Upstream payloads are converted into these types by the normalize package; nothing else in the module sees raw shapes.
package domain

import "slices"

// Question is a community question.
type Question struct {
	Syncable
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Tags              []string `json:"tags"`
	Author            User     `json:"author"`
	Score             int      `json:"score"`
	ViewCount         int      `json:"view_count"`
	AnswerCount       int      `json:"answer_count"`
	AcceptedAnswerID  string   `json:"accepted_answer_id,omitempty"`
	HasAcceptedAnswer bool     `json:"has_accepted_answer"`
	IsClosed          bool     `json:"is_closed"`
	CloseReason       string   `json:"close_reason,omitempty"`
	IsActive          bool     `json:"is_active"`
}

// HasTag reports whether the question carries tag, ignoring case.
func (q *Question) HasTag(tag string) bool {
	return slices.ContainsFunc(q.Tags, func(t string) bool { return FoldTag(t) == FoldTag(tag) })
}

// QuestionInput is the payload for creating or editing a question.
type QuestionInput struct {
	Title       string   `json:"title" validate:"required,min=5,max=200"`
	Description string   `json:"description" validate:"required,min=10"`
	Tags        []string `json:"tags" validate:"max=5,dive,required,max=40"`
}
