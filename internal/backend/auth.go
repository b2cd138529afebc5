package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceAuth = "auth"

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, login, password string) (string, error) {
	return c.tokenCall(ctx, "login", "/auth/login", wire.Login{Login: login, Password: password}, "Login failed")
}

// Signup registers a new account and returns its bearer token.
func (c *Client) Signup(ctx context.Context, req wire.Signup) (string, error) {
	return c.tokenCall(ctx, "signup", "/auth/signup", req, "Signup failed")
}

func (c *Client) tokenCall(ctx context.Context, op, path string, body any, fallback string) (string, error) {
	var env wire.AuthResponse
	err := c.do(ctx, call{
		op:       op,
		method:   http.MethodPost,
		resource: resourceAuth,
		path:     path,
		body:     body,
		fallback: fallback,
	}, &env)
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", &RequestError{Op: op, Method: http.MethodPost, Status: http.StatusOK, Message: ResolveMessage(wire.ErrorBody{Message: env.Message}, fallback)}
	}

	var data wire.TokenData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", &RequestError{Op: op, Method: http.MethodPost, Status: http.StatusOK, Message: fallback, cause: fmt.Errorf("decode token: %w", err)}
	}
	token := data.Token
	if token == "" {
		token = data.AccessToken
	}
	if token == "" {
		return "", &RequestError{Op: op, Method: http.MethodPost, Status: http.StatusOK, Message: fallback, cause: fmt.Errorf("response carried no token")}
	}
	return token, nil
}

// Me resolves the current bearer token into the signed-in identity.
func (c *Client) Me(ctx context.Context) (domain.Identity, error) {
	var env wire.AuthResponse
	err := c.do(ctx, call{
		op:       "me",
		method:   http.MethodGet,
		resource: resourceAuth,
		path:     "/auth/me",
		fallback: "Failed to fetch user profile",
	}, &env)
	if err != nil {
		return domain.Identity{}, err
	}

	var user wire.User
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return domain.Identity{}, &RequestError{Op: "me", Method: http.MethodGet, Status: http.StatusOK, Message: "Failed to fetch user profile", cause: fmt.Errorf("decode profile: %w", err)}
	}
	return normalize.Identity(&user), nil
}
