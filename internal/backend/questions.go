package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceQuestions = "questions"

// QuestionDetail is a question with the answers embedded in its detail response.
type QuestionDetail struct {
	Question domain.Question
	Answers  []domain.Answer
}

// CreateQuestion posts a new question on behalf of userID.
func (c *Client) CreateQuestion(ctx context.Context, in domain.QuestionInput, userID string) (domain.Question, error) {
	var out wire.Question
	err := c.do(ctx, call{
		op:       "create question",
		method:   http.MethodPost,
		resource: resourceQuestions,
		path:     "/questions",
		body: wire.CreateQuestion{
			Title:       in.Title,
			Description: in.Description,
			Tags:        normalize.TagInput(in.Tags),
			UserID:      wire.ID(userID),
		},
		fallback: "Failed to create question",
	}, &out)
	if err != nil {
		return domain.Question{}, err
	}
	return normalize.Question(out), nil
}

// ListQuestions fetches one page of questions.
func (c *Client) ListQuestions(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Question], error) {
	return c.questionPage(ctx, "list questions", "/questions", pageQuery(req.Page, req.Size, req.SortBy, string(req.Dir)), "Failed to fetch questions")
}

// SearchQuestions runs a backend full-text search.
func (c *Client) SearchQuestions(ctx context.Context, query string, req domain.PageRequest) (domain.Page[domain.Question], error) {
	q := pageQuery(req.Page, req.Size, "", "")
	q.Set("q", query)
	return c.questionPage(ctx, "search questions", "/questions/search", q, "Failed to search questions")
}

// TaggedQuestions fetches questions carrying any of tags.
func (c *Client) TaggedQuestions(ctx context.Context, tags []string, req domain.PageRequest) (domain.Page[domain.Question], error) {
	q := pageQuery(req.Page, req.Size, "", "")
	q.Set("tags", strings.Join(tags, ","))
	return c.questionPage(ctx, "tagged questions", "/questions/tagged", q, "Failed to fetch questions by tags")
}

// UnansweredQuestions fetches questions without answers.
func (c *Client) UnansweredQuestions(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Question], error) {
	return c.questionPage(ctx, "unanswered questions", "/questions/unanswered", pageQuery(req.Page, req.Size, "", ""), "Failed to fetch unanswered questions")
}

// RecentQuestions fetches questions created in the last days days.
func (c *Client) RecentQuestions(ctx context.Context, days int, req domain.PageRequest) (domain.Page[domain.Question], error) {
	q := pageQuery(req.Page, req.Size, "", "")
	q.Set("days", strconv.Itoa(days))
	return c.questionPage(ctx, "recent questions", "/questions/recent", q, "Failed to fetch recent questions")
}

func (c *Client) questionPage(ctx context.Context, op, path string, q url.Values, fallback string) (domain.Page[domain.Question], error) {
	var out wire.Page[wire.Question]
	err := c.do(ctx, call{
		op:       op,
		method:   http.MethodGet,
		resource: resourceQuestions,
		path:     path,
		query:    q,
		fallback: fallback,
	}, &out)
	if err != nil {
		return domain.Page[domain.Question]{}, err
	}
	return normalize.Page(out, normalize.Question), nil
}

// GetQuestion fetches a question with its embedded answers.
func (c *Client) GetQuestion(ctx context.Context, id, currentUserID string) (QuestionDetail, error) {
	q := url.Values{}
	if currentUserID != "" {
		q.Set("currentUserId", currentUserID)
	}
	var out wire.Question
	err := c.do(ctx, call{
		op:       "get question",
		method:   http.MethodGet,
		resource: resourceQuestions,
		path:     "/questions/" + escape(id),
		query:    q,
		fallback: "Failed to fetch question",
	}, &out)
	if err != nil {
		return QuestionDetail{}, err
	}
	question := normalize.Question(out)
	return QuestionDetail{Question: question, Answers: normalize.Answers(out.Answers, question.ID)}, nil
}

// UpdateQuestion edits a question as currentUserID.
func (c *Client) UpdateQuestion(ctx context.Context, id string, in domain.QuestionInput, currentUserID string) (domain.Question, error) {
	var out wire.Question
	err := c.do(ctx, call{
		op:       "update question",
		method:   http.MethodPut,
		resource: resourceQuestions,
		path:     "/questions/" + escape(id),
		query:    url.Values{"currentUserId": {currentUserID}},
		body: wire.UpdateQuestion{
			Title:       in.Title,
			Description: in.Description,
			Tags:        normalize.TagInput(in.Tags),
		},
		fallback: "Failed to update question",
	}, &out)
	if err != nil {
		return domain.Question{}, err
	}
	return normalize.Question(out), nil
}

// AcceptAnswer marks answerID as accepted on questionID.
func (c *Client) AcceptAnswer(ctx context.Context, questionID, answerID, currentUserID string) (domain.Question, error) {
	var out wire.Question
	err := c.do(ctx, call{
		op:       "accept answer",
		method:   http.MethodPost,
		resource: resourceQuestions,
		path:     "/questions/" + escape(questionID) + "/accept-answer/" + escape(answerID),
		query:    url.Values{"currentUserId": {currentUserID}},
		fallback: "Failed to accept answer",
	}, &out)
	if err != nil {
		return domain.Question{}, err
	}
	return normalize.Question(out), nil
}

// DeleteQuestion deletes a question as currentUserID.
func (c *Client) DeleteQuestion(ctx context.Context, id, currentUserID string) error {
	return c.do(ctx, call{
		op:       "delete question",
		method:   http.MethodDelete,
		resource: resourceQuestions,
		path:     "/questions/" + escape(id),
		query:    url.Values{"currentUserId": {currentUserID}},
		fallback: "Failed to delete question",
	}, nil)
}
