package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceAnswers = "answers"

// CreateAnswer posts an answer on behalf of userID.
func (c *Client) CreateAnswer(ctx context.Context, in domain.AnswerInput, userID string) (domain.Answer, error) {
	var out wire.Answer
	err := c.do(ctx, call{
		op:       "create answer",
		method:   http.MethodPost,
		resource: resourceAnswers,
		path:     "/answers",
		body: wire.CreateAnswer{
			Content:    in.Content,
			QuestionID: wire.ID(in.QuestionID),
			UserID:     wire.ID(userID),
		},
		fallback: "Failed to create answer",
	}, &out)
	if err != nil {
		return domain.Answer{}, err
	}
	return normalize.Answer(out, in.QuestionID), nil
}

// GetAnswer fetches one answer.
func (c *Client) GetAnswer(ctx context.Context, id string) (domain.Answer, error) {
	var out wire.Answer
	err := c.do(ctx, call{
		op:       "get answer",
		method:   http.MethodGet,
		resource: resourceAnswers,
		path:     "/answers/" + escape(id),
		fallback: "Failed to fetch answer",
	}, &out)
	if err != nil {
		return domain.Answer{}, err
	}
	return normalize.Answer(out, ""), nil
}

// AnswersForQuestion fetches every answer of a question. The endpoint is not paginated.
func (c *Client) AnswersForQuestion(ctx context.Context, questionID string) ([]domain.Answer, error) {
	var out []wire.Answer
	err := c.do(ctx, call{
		op:       "list answers",
		method:   http.MethodGet,
		resource: resourceAnswers,
		path:     "/answers/question/" + escape(questionID),
		fallback: "Failed to fetch answers",
	}, &out)
	if err != nil {
		return nil, err
	}
	return normalize.Answers(out, questionID), nil
}

// AnswersByUser fetches one page of a user's answers.
func (c *Client) AnswersByUser(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Answer], error) {
	var out wire.Page[wire.Answer]
	err := c.do(ctx, call{
		op:       "list user answers",
		method:   http.MethodGet,
		resource: resourceAnswers,
		path:     "/answers/user/" + escape(userID),
		query:    pageQuery(req.Page, req.Size, "", ""),
		fallback: "Failed to fetch user answers",
	}, &out)
	if err != nil {
		return domain.Page[domain.Answer]{}, err
	}
	return normalize.Page(out, func(a wire.Answer) domain.Answer { return normalize.Answer(a, "") }), nil
}

// UpdateAnswer edits an answer as currentUserID.
func (c *Client) UpdateAnswer(ctx context.Context, id, content, currentUserID string) (domain.Answer, error) {
	var out wire.Answer
	err := c.do(ctx, call{
		op:       "update answer",
		method:   http.MethodPut,
		resource: resourceAnswers,
		path:     "/answers/" + escape(id),
		query:    url.Values{"currentUserId": {currentUserID}},
		body:     wire.UpdateAnswer{Content: content},
		fallback: "Failed to update answer",
	}, &out)
	if err != nil {
		return domain.Answer{}, err
	}
	return normalize.Answer(out, ""), nil
}

// MarkAccepted accepts an answer through the answer resource.
func (c *Client) MarkAccepted(ctx context.Context, id, currentUserID string) (domain.Answer, error) {
	var out wire.Answer
	err := c.do(ctx, call{
		op:       "accept answer",
		method:   http.MethodPost,
		resource: resourceAnswers,
		path:     "/answers/" + escape(id) + "/accept",
		query:    url.Values{"currentUserId": {currentUserID}},
		fallback: "Failed to accept answer",
	}, &out)
	if err != nil {
		return domain.Answer{}, err
	}
	return normalize.Answer(out, ""), nil
}

// DeleteAnswer deletes an answer as currentUserID.
func (c *Client) DeleteAnswer(ctx context.Context, id, currentUserID string) error {
	return c.do(ctx, call{
		op:       "delete answer",
		method:   http.MethodDelete,
		resource: resourceAnswers,
		path:     "/answers/" + escape(id),
		query:    url.Values{"currentUserId": {currentUserID}},
		fallback: "Failed to delete answer",
	}, nil)
}
