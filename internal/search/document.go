// Package search keeps a local full-text index of cached questions using Bleve.
// It backs offline search over everything the question store has seen.
package search

import (
	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
)

// QuestionDocument is the indexed form of a question.
//
// Author names are denormalized so a single query covers the title, the body
// and who asked.
type QuestionDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Author      string   `json:"author,omitempty"`
	Score       int      `json:"score"`
	AnswerCount int      `json:"answer_count"`
	Answered    bool     `json:"answered"`
	Closed      bool     `json:"closed"`

	CreatedAt int64 `json:"created_at"` // Unix millis
	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// ToMap converts the document to a map keyed by the mapped field names.
func (d *QuestionDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":           d.ID,
		"title":        d.Title,
		"score":        d.Score,
		"answer_count": d.AnswerCount,
		"answered":     d.Answered,
		"closed":       d.Closed,
		"created_at":   d.CreatedAt,
		"updated_at":   d.UpdatedAt,
	}
	if d.Body != "" {
		m["body"] = d.Body
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	return m
}

// QuestionToDocument converts a domain Question. The description is reduced
// to plain text and tags are case folded.
func QuestionToDocument(q *domain.Question) *QuestionDocument {
	doc := &QuestionDocument{
		ID:          q.ID,
		Title:       q.Title,
		Body:        normalize.PlainText(q.Description),
		Score:       q.Score,
		AnswerCount: q.AnswerCount,
		Answered:    q.HasAcceptedAnswer,
		Closed:      q.IsClosed,
		CreatedAt:   q.CreatedAt.UnixMilli(),
		UpdatedAt:   q.Version().UnixMilli(),
	}
	if q.Author.DisplayName != "" {
		doc.Author = q.Author.DisplayName + " " + q.Author.Username
	} else {
		doc.Author = q.Author.Username
	}
	for _, t := range q.Tags {
		doc.Tags = append(doc.Tags, domain.FoldTag(t))
	}
	return doc
}
