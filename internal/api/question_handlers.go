package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

func (s *Server) registerQuestionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listQuestions",
		Method:      http.MethodGet,
		Path:        "/api/v1/questions",
		Summary:     "List questions",
		Description: "Returns the cached question list, loading a page first when asked or when the cache is empty",
		Tags:        []string{"Questions"},
	}, s.handleListQuestions)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createQuestion",
		Method:        http.MethodPost,
		Path:          "/api/v1/questions",
		Summary:       "Ask a question",
		Tags:          []string{"Questions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateQuestion)

	huma.Register(s.api, huma.Operation{
		OperationID: "getQuestion",
		Method:      http.MethodGet,
		Path:        "/api/v1/questions/{id}",
		Summary:     "Get question",
		Description: "Returns a cached question, fetching it when absent or when refresh is set",
		Tags:        []string{"Questions"},
	}, s.handleGetQuestion)

	huma.Register(s.api, huma.Operation{
		OperationID: "acceptAnswer",
		Method:      http.MethodPost,
		Path:        "/api/v1/questions/{id}/accept",
		Summary:     "Accept an answer",
		Tags:        []string{"Questions"},
	}, s.handleAcceptAnswer)

	huma.Register(s.api, huma.Operation{
		OperationID:   "watchQuestion",
		Method:        http.MethodPut,
		Path:          "/api/v1/questions/{id}/watch",
		Summary:       "Watch question",
		Description:   "Subscribes to the question's push topics",
		Tags:          []string{"Live"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleWatchQuestion)

	huma.Register(s.api, huma.Operation{
		OperationID:   "unwatchQuestion",
		Method:        http.MethodDelete,
		Path:          "/api/v1/questions/{id}/watch",
		Summary:       "Stop watching question",
		Tags:          []string{"Live"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleUnwatchQuestion)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTyping",
		Method:      http.MethodGet,
		Path:        "/api/v1/questions/{id}/typing",
		Summary:     "Who is typing",
		Tags:        []string{"Live"},
	}, s.handleGetTyping)

	huma.Register(s.api, huma.Operation{
		OperationID:   "sendTyping",
		Method:        http.MethodPost,
		Path:          "/api/v1/questions/{id}/typing",
		Summary:       "Publish typing state",
		Tags:          []string{"Live"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleSendTyping)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPresence",
		Method:      http.MethodGet,
		Path:        "/api/v1/presence",
		Summary:     "Online users",
		Tags:        []string{"Live"},
	}, s.handleGetPresence)
}

// ListQuestionsInput contains parameters for listing questions.
type ListQuestionsInput struct {
	Page    int  `query:"page" minimum:"0" default:"0" doc:"Page to load when fetching"`
	Size    int  `query:"size" minimum:"1" maximum:"100" default:"20" doc:"Page size when fetching"`
	Refresh bool `query:"refresh" doc:"Fetch the page from the backend before answering"`
}

// QuestionListResponse contains the cached question list.
type QuestionListResponse struct {
	Questions []domain.Question `json:"questions" doc:"Cached questions in view order"`
	Cursor    domain.Cursor     `json:"cursor" doc:"Last loaded page"`
}

// QuestionListOutput wraps the question list for Huma.
type QuestionListOutput struct {
	Body QuestionListResponse
}

// CreateQuestionRequest is the request body for asking a question.
type CreateQuestionRequest struct {
	Title       string   `json:"title" doc:"Title, 5 to 200 characters"`
	Description string   `json:"description" doc:"Body in markdown or HTML"`
	Tags        []string `json:"tags,omitempty" doc:"Up to 5 tags"`
}

// CreateQuestionInput wraps the create question request for Huma.
type CreateQuestionInput struct {
	Body CreateQuestionRequest
}

// QuestionOutput wraps a question for Huma.
type QuestionOutput struct {
	Body domain.Question
}

// QuestionIDInput identifies a question.
type QuestionIDInput struct {
	ID string `path:"id" doc:"Question ID"`
}

// GetQuestionInput contains parameters for getting a question.
type GetQuestionInput struct {
	ID      string `path:"id" doc:"Question ID"`
	Refresh bool   `query:"refresh" doc:"Fetch from the backend even when cached"`
}

// AcceptAnswerRequest is the request body for accepting an answer.
type AcceptAnswerRequest struct {
	AnswerID string `json:"answer_id" minLength:"1" doc:"Answer to accept"`
}

// AcceptAnswerInput wraps the accept request for Huma.
type AcceptAnswerInput struct {
	ID   string `path:"id" doc:"Question ID"`
	Body AcceptAnswerRequest
}

// TypingResponse lists users typing on a question.
type TypingResponse struct {
	QuestionID string   `json:"question_id" doc:"Question ID"`
	Usernames  []string `json:"usernames" doc:"Users typing, sorted"`
}

// TypingOutput wraps the typing response for Huma.
type TypingOutput struct {
	Body TypingResponse
}

// SendTypingRequest is the request body for publishing typing state.
type SendTypingRequest struct {
	Typing bool `json:"typing" doc:"Whether the signed-in user is typing"`
}

// SendTypingInput wraps the typing request for Huma.
type SendTypingInput struct {
	ID   string `path:"id" doc:"Question ID"`
	Body SendTypingRequest
}

// PresenceResponse lists online users.
type PresenceResponse struct {
	Online []string `json:"online" doc:"Online user IDs, sorted"`
}

// PresenceOutput wraps the presence response for Huma.
type PresenceOutput struct {
	Body PresenceResponse
}

func (s *Server) handleListQuestions(ctx context.Context, input *ListQuestionsInput) (*QuestionListOutput, error) {
	qs := s.services.Questions
	if input.Refresh || len(qs.List()) == 0 {
		req := domain.PageRequest{Page: input.Page, Size: input.Size}
		if _, err := qs.FetchPage(ctx, req, input.Refresh && input.Page == 0); err != nil {
			return nil, toStatus(err)
		}
	}
	return &QuestionListOutput{Body: QuestionListResponse{
		Questions: nonNil(qs.List()),
		Cursor:    qs.Cursor(),
	}}, nil
}

func (s *Server) handleCreateQuestion(ctx context.Context, input *CreateQuestionInput) (*QuestionOutput, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	in := domain.QuestionInput{
		Title:       input.Body.Title,
		Description: input.Body.Description,
		Tags:        input.Body.Tags,
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, toStatus(err)
	}
	q, err := s.services.Questions.Create(ctx, in, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QuestionOutput{Body: q}, nil
}

func (s *Server) handleGetQuestion(ctx context.Context, input *GetQuestionInput) (*QuestionOutput, error) {
	if !input.Refresh {
		if q, ok := s.services.Questions.Get(input.ID); ok {
			return &QuestionOutput{Body: q}, nil
		}
	}
	q, err := s.services.Questions.FetchByID(ctx, input.ID, s.services.Session.UserID())
	if err != nil {
		return nil, toStatus(err)
	}
	return &QuestionOutput{Body: q}, nil
}

func (s *Server) handleAcceptAnswer(ctx context.Context, input *AcceptAnswerInput) (*QuestionOutput, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	q, err := s.services.Questions.AcceptAnswer(ctx, input.ID, input.Body.AnswerID, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QuestionOutput{Body: q}, nil
}

func (s *Server) handleWatchQuestion(_ context.Context, input *QuestionIDInput) (*struct{}, error) {
	s.services.Push.WatchQuestion(input.ID)
	return nil, nil
}

func (s *Server) handleUnwatchQuestion(_ context.Context, input *QuestionIDInput) (*struct{}, error) {
	s.services.Push.UnwatchQuestion(input.ID)
	return nil, nil
}

func (s *Server) handleGetTyping(_ context.Context, input *QuestionIDInput) (*TypingOutput, error) {
	return &TypingOutput{Body: TypingResponse{
		QuestionID: input.ID,
		Usernames:  nonNil(s.services.Push.Typing(input.ID)),
	}}, nil
}

func (s *Server) handleSendTyping(_ context.Context, input *SendTypingInput) (*struct{}, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	identity, _ := s.services.Session.Identity()
	if err := s.services.Push.SendTyping(input.ID, identity.Username, input.Body.Typing); err != nil {
		return nil, toStatus(err)
	}
	return nil, nil
}

func (s *Server) handleGetPresence(_ context.Context, _ *struct{}) (*PresenceOutput, error) {
	return &PresenceOutput{Body: PresenceResponse{Online: nonNil(s.services.Push.OnlineUsers())}}, nil
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
