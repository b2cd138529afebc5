package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/session"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/session",
		Summary:     "Get session",
		Description: "Returns the session state and the signed-in identity",
		Tags:        []string{"Session"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "signIn",
		Method:        http.MethodPost,
		Path:          "/api/v1/session/login",
		Summary:       "Sign in",
		Description:   "Signs in with a username or email and password",
		Tags:          []string{"Session"},
		DefaultStatus: http.StatusOK,
	}, s.handleSignIn)

	huma.Register(s.api, huma.Operation{
		OperationID:   "signUp",
		Method:        http.MethodPost,
		Path:          "/api/v1/session/signup",
		Summary:       "Sign up",
		Description:   "Registers an account and signs in",
		Tags:          []string{"Session"},
		DefaultStatus: http.StatusCreated,
	}, s.handleSignUp)

	huma.Register(s.api, huma.Operation{
		OperationID:   "signOut",
		Method:        http.MethodDelete,
		Path:          "/api/v1/session",
		Summary:       "Sign out",
		Description:   "Ends the session and clears user-scoped state",
		Tags:          []string{"Session"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleSignOut)
}

// SessionResponse describes the session.
type SessionResponse struct {
	State    string           `json:"state" enum:"LOADING,AUTHENTICATED,ANONYMOUS" doc:"Session state"`
	Identity *domain.Identity `json:"identity,omitempty" doc:"Signed-in user"`
}

// SessionOutput wraps the session response for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// SignInRequest is the request body for signing in.
type SignInRequest struct {
	Login    string `json:"login" minLength:"1" doc:"Username or email"`
	Password string `json:"password" minLength:"1" doc:"Password"`
}

// SignInInput wraps the sign-in request for Huma.
type SignInInput struct {
	Body SignInRequest
}

// SignUpRequest is the request body for registering.
type SignUpRequest struct {
	Username string `json:"username" doc:"Username, 3 to 50 characters"`
	Email    string `json:"email" doc:"Email address"`
	Password string `json:"password" doc:"Password, at least 6 characters"`
	FullName string `json:"full_name,omitempty" doc:"Display name"`
}

// SignUpInput wraps the sign-up request for Huma.
type SignUpInput struct {
	Body SignUpRequest
}

func (s *Server) sessionOutput() *SessionOutput {
	out := &SessionOutput{Body: SessionResponse{State: string(s.services.Session.State())}}
	if id, ok := s.services.Session.Identity(); ok {
		out.Body.Identity = &id
	}
	return out
}

func (s *Server) handleGetSession(_ context.Context, _ *struct{}) (*SessionOutput, error) {
	return s.sessionOutput(), nil
}

func (s *Server) handleSignIn(ctx context.Context, input *SignInInput) (*SessionOutput, error) {
	_, err := s.services.Session.SignIn(ctx, session.Credentials{
		Login:    input.Body.Login,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return s.sessionOutput(), nil
}

func (s *Server) handleSignUp(ctx context.Context, input *SignUpInput) (*SessionOutput, error) {
	_, err := s.services.Session.SignUp(ctx, session.Registration{
		Username: input.Body.Username,
		Email:    input.Body.Email,
		Password: input.Body.Password,
		FullName: input.Body.FullName,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return s.sessionOutput(), nil
}

func (s *Server) handleSignOut(_ context.Context, _ *struct{}) (*struct{}, error) {
	s.services.Session.SignOut()
	return nil, nil
}

// requireUser returns the signed-in user id or a 401.
func (s *Server) requireUser() (string, error) {
	if uid := s.services.Session.UserID(); uid != "" {
		return uid, nil
	}
	return "", huma.Error401Unauthorized("Sign in required")
}
