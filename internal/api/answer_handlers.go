package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/domain"
	domainerrors "github.com/stackitapp/stackit-sync/internal/errors"
)

func (s *Server) registerAnswerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAnswers",
		Method:      http.MethodGet,
		Path:        "/api/v1/questions/{id}/answers",
		Summary:     "List answers",
		Description: "Returns cached answers for a question, accepted first then by score",
		Tags:        []string{"Answers"},
	}, s.handleListAnswers)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createAnswer",
		Method:        http.MethodPost,
		Path:          "/api/v1/questions/{id}/answers",
		Summary:       "Post an answer",
		Tags:          []string{"Answers"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAnswer)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleVote",
		Method:      http.MethodPost,
		Path:        "/api/v1/answers/{id}/vote",
		Summary:     "Toggle vote",
		Description: "Casts the vote, or removes it when the same direction is already active",
		Tags:        []string{"Answers"},
	}, s.handleToggleVote)
}

// ListAnswersInput contains parameters for listing answers.
type ListAnswersInput struct {
	ID      string `path:"id" doc:"Question ID"`
	Refresh bool   `query:"refresh" doc:"Fetch from the backend even when cached"`
}

// AnswerListResponse contains answers for a question.
type AnswerListResponse struct {
	Answers []domain.Answer `json:"answers" doc:"Answers in display order"`
}

// AnswerListOutput wraps the answer list for Huma.
type AnswerListOutput struct {
	Body AnswerListResponse
}

// CreateAnswerRequest is the request body for posting an answer.
type CreateAnswerRequest struct {
	Content string `json:"content" doc:"Answer body, at least 10 characters"`
}

// CreateAnswerInput wraps the create answer request for Huma.
type CreateAnswerInput struct {
	ID   string `path:"id" doc:"Question ID"`
	Body CreateAnswerRequest
}

// AnswerOutput wraps an answer for Huma.
type AnswerOutput struct {
	Body domain.Answer
}

// VoteRequest is the request body for voting.
type VoteRequest struct {
	Type string `json:"type" doc:"UPVOTE, DOWNVOTE, up or down"`
}

// VoteInput wraps the vote request for Huma.
type VoteInput struct {
	ID   string `path:"id" doc:"Answer ID"`
	Body VoteRequest
}

// VoteResponse reports the score after the vote.
type VoteResponse struct {
	AnswerID string           `json:"answer_id" doc:"Answer ID"`
	Score    domain.VoteScore `json:"score" doc:"Score after the vote"`
	UserVote domain.VoteType  `json:"user_vote,omitempty" doc:"Active vote of the signed-in user"`
}

// VoteOutput wraps the vote response for Huma.
type VoteOutput struct {
	Body VoteResponse
}

func (s *Server) handleListAnswers(ctx context.Context, input *ListAnswersInput) (*AnswerListOutput, error) {
	answers := s.services.Answers.ForQuestion(input.ID)
	if input.Refresh || len(answers) == 0 {
		fetched, err := s.services.Answers.FetchForQuestion(ctx, input.ID)
		if err != nil {
			return nil, toStatus(err)
		}
		answers = fetched
	}
	return &AnswerListOutput{Body: AnswerListResponse{Answers: nonNil(answers)}}, nil
}

func (s *Server) handleCreateAnswer(ctx context.Context, input *CreateAnswerInput) (*AnswerOutput, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	in := domain.AnswerInput{QuestionID: input.ID, Content: input.Body.Content}
	if err := s.validator.Validate(in); err != nil {
		return nil, toStatus(err)
	}
	a, err := s.services.Answers.Create(ctx, in, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AnswerOutput{Body: a}, nil
}

func (s *Server) handleToggleVote(ctx context.Context, input *VoteInput) (*VoteOutput, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	vote, err := domain.ParseVoteType(input.Body.Type)
	if err != nil || vote == domain.VoteNone {
		return nil, toStatus(domainerrors.ValidationWithDetails("type must be UPVOTE or DOWNVOTE",
			map[string]string{"type": "must be UPVOTE or DOWNVOTE"}))
	}
	score, err := s.services.Votes.ToggleVote(ctx, input.ID, vote, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &VoteOutput{Body: VoteResponse{
		AnswerID: input.ID,
		Score:    score,
		UserVote: s.services.Votes.UserVote(input.ID),
	}}, nil
}
