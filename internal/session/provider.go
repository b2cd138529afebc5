// Package session owns the signed-in identity and its bearer token.
//
// States move LOADING -> AUTHENTICATED or ANONYMOUS. Every identity change
// drops per-user vote data before anything else reads it, and a 401 from any
// backend call ends the session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/store"
	"github.com/stackitapp/stackit-sync/internal/transport"
	"github.com/stackitapp/stackit-sync/internal/validation"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// State is the session state.
type State string

// Session states.
const (
	StateLoading       State = "LOADING"
	StateAuthenticated State = "AUTHENTICATED"
	StateAnonymous     State = "ANONYMOUS"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.Unauthorized("not signed in")

// AuthAPI is the slice of the backend client the provider uses.
type AuthAPI interface {
	Login(ctx context.Context, login, password string) (string, error)
	Signup(ctx context.Context, req wire.Signup) (string, error)
	Me(ctx context.Context) (domain.Identity, error)
}

// TokenStore persists the bearer token.
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// Connector opens and closes the push connection.
type Connector interface {
	Connect(ctx context.Context, identity transport.Identity) error
	Disconnect()
}

// VoteResetter drops per-user vote data.
type VoteResetter interface {
	ClearVoteData()
}

// NotificationLoader loads and clears the user's notifications.
type NotificationLoader interface {
	FetchPage(ctx context.Context, userID string, req domain.PageRequest) ([]domain.Notification, error)
	Clear()
}

// PushRouter routes user-scoped push traffic.
type PushRouter interface {
	SetUser(userID string)
	Reset()
}

// Deps are the provider's collaborators. Transport, Votes, Notifications and Router may be nil.
type Deps struct {
	Auth          AuthAPI
	Tokens        TokenStore
	Transport     Connector
	Votes         VoteResetter
	Notifications NotificationLoader
	Router        PushRouter
	Emitter       store.EventEmitter
	Logger        *slog.Logger
	PageSize      int
	Now           func() time.Time
}

// Credentials are the sign-in inputs.
type Credentials struct {
	Login    string `json:"login" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// Registration are the sign-up inputs.
type Registration struct {
	Username string `json:"username" validate:"notblank,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"fullName,omitempty" validate:"max=100"`
}

// Change is delivered to listeners after every transition.
type Change struct {
	Previous State
	Current  State
	Identity domain.Identity
}

// Provider is the session/identity provider.
type Provider struct {
	deps     Deps
	validate *validation.Validator

	mu        sync.RWMutex
	state     State
	identity  domain.Identity
	token     string
	claims    Claims
	epoch     uint64
	listeners []func(Change)
}

// NewProvider creates a provider in LOADING. Call Restore to settle it.
func NewProvider(deps Deps) *Provider {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Emitter == nil {
		deps.Emitter = store.NewNoopEmitter()
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 20
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Provider{deps: deps, validate: validation.New(), state: StateLoading}
}

// Token implements backend.TokenSource.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Identity returns the signed-in identity.
func (p *Provider) Identity() (domain.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity, p.state == StateAuthenticated
}

// UserID returns the signed-in user id, or "".
func (p *Provider) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateAuthenticated {
		return ""
	}
	return p.identity.ID
}

// Claims returns the unverified claims of the current token.
func (p *Provider) Claims() Claims {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.claims
}

// OnChange registers a listener for state transitions.
func (p *Provider) OnChange(fn func(Change)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Restore resumes a persisted session. A missing, expired or rejected token
// ends in ANONYMOUS; only an unreadable keystore is returned as an error.
func (p *Provider) Restore(ctx context.Context) error {
	epoch := p.begin()

	token, err := p.deps.Tokens.Token()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			p.becomeAnonymous(epoch, "no stored token")
			return nil
		}
		p.becomeAnonymous(epoch, "keystore unreadable")
		return err
	}

	claims, _ := ParseClaims(token)
	if claims.Expired(p.deps.Now()) {
		p.clearStoredToken()
		p.becomeAnonymous(epoch, "stored token expired")
		return nil
	}

	p.mu.Lock()
	p.token, p.claims = token, claims
	p.mu.Unlock()

	identity, err := p.deps.Auth.Me(ctx)
	if err != nil {
		p.deps.Logger.Info("stored session rejected", slog.String("error", err.Error()))
		p.clearStoredToken()
		p.becomeAnonymous(epoch, "profile lookup failed")
		return nil
	}
	p.establish(ctx, epoch, token, claims, identity)
	return nil
}

// SignIn exchanges credentials for a token and starts the session.
func (p *Provider) SignIn(ctx context.Context, creds Credentials) (domain.Identity, error) {
	if err := p.validate.Validate(creds); err != nil {
		return domain.Identity{}, err
	}
	return p.signIn(ctx, func(ctx context.Context) (string, error) {
		return p.deps.Auth.Login(ctx, creds.Login, creds.Password)
	})
}

// SignUp registers an account and starts its session.
func (p *Provider) SignUp(ctx context.Context, reg Registration) (domain.Identity, error) {
	if err := p.validate.Validate(reg); err != nil {
		return domain.Identity{}, err
	}
	return p.signIn(ctx, func(ctx context.Context) (string, error) {
		return p.deps.Auth.Signup(ctx, wire.Signup{
			Username: reg.Username,
			Email:    reg.Email,
			Password: reg.Password,
			FullName: reg.FullName,
		})
	})
}

func (p *Provider) signIn(ctx context.Context, obtain func(context.Context) (string, error)) (domain.Identity, error) {
	token, err := obtain(ctx)
	if err != nil {
		return domain.Identity{}, err
	}

	epoch := p.begin()
	claims, _ := ParseClaims(token)
	p.mu.Lock()
	p.token, p.claims = token, claims
	p.mu.Unlock()

	identity, err := p.deps.Auth.Me(ctx)
	if err != nil {
		p.end(epoch, "profile lookup failed")
		return domain.Identity{}, err
	}
	if err := p.deps.Tokens.SetToken(token); err != nil {
		p.deps.Logger.Warn("failed to persist token", slog.String("error", err.Error()))
	}
	p.establish(ctx, epoch, token, claims, identity)
	return identity, nil
}

// RefreshToken swaps in a renewed token. A token for the same subject keeps
// the session; a different subject is an identity change.
func (p *Provider) RefreshToken(ctx context.Context, token string) error {
	p.mu.RLock()
	state, prevClaims, identity, epoch := p.state, p.claims, p.identity, p.epoch
	p.mu.RUnlock()
	if state != StateAuthenticated {
		return ErrNotAuthenticated
	}

	claims, _ := ParseClaims(token)
	if claims.Expired(p.deps.Now()) {
		return errors.Unauthorized("refreshed token already expired")
	}

	if claims.Subject != "" && claims.Subject == prevClaims.Subject {
		p.mu.Lock()
		if p.epoch != epoch {
			p.mu.Unlock()
			return ErrNotAuthenticated
		}
		p.token, p.claims = token, claims
		p.mu.Unlock()
		if err := p.deps.Tokens.SetToken(token); err != nil {
			p.deps.Logger.Warn("failed to persist token", slog.String("error", err.Error()))
		}
		p.connect(ctx, identity.ID, token)
		p.notify(Change{Previous: StateAuthenticated, Current: StateAuthenticated, Identity: identity})
		return nil
	}

	// Unknown or different subject: resolve who the token belongs to.
	p.mu.Lock()
	p.token, p.claims = token, claims
	p.mu.Unlock()
	next, err := p.deps.Auth.Me(ctx)
	if err != nil {
		p.mu.Lock()
		if p.epoch == epoch {
			p.token, p.claims = "", Claims{}
		}
		p.mu.Unlock()
		p.end(epoch, "refreshed token rejected")
		return err
	}
	if err := p.deps.Tokens.SetToken(token); err != nil {
		p.deps.Logger.Warn("failed to persist token", slog.String("error", err.Error()))
	}
	p.establish(ctx, epoch, token, claims, next)
	return nil
}

// SignOut ends the session and forgets every user-scoped cache.
func (p *Provider) SignOut() {
	p.mu.Lock()
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()
	p.end(epoch, "signed out")
}

// HandleUnauthorized ends the session after the backend rejected the token.
func (p *Provider) HandleUnauthorized() {
	p.mu.Lock()
	if p.state == StateAnonymous {
		p.mu.Unlock()
		return
	}
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()
	p.end(epoch, "backend answered 401")
}

// begin starts a transition and returns its epoch.
func (p *Provider) begin() uint64 {
	p.mu.Lock()
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()
	return epoch
}

// establish installs identity if epoch is still current.
func (p *Provider) establish(ctx context.Context, epoch uint64, token string, claims Claims, identity domain.Identity) {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return
	}
	prevID := p.identity.ID
	prevState := p.state
	if prevState != StateAuthenticated {
		prevID = ""
	}
	p.state = StateAuthenticated
	p.identity = identity
	p.token, p.claims = token, claims
	p.mu.Unlock()

	if prevID != identity.ID && p.deps.Votes != nil {
		p.deps.Votes.ClearVoteData()
	}
	if prevID != "" && prevID != identity.ID && p.deps.Notifications != nil {
		p.deps.Notifications.Clear()
	}
	if p.deps.Router != nil {
		p.deps.Router.SetUser(identity.ID)
	}

	p.deps.Logger.Info("session authenticated",
		slog.String("user_id", identity.ID),
		slog.String("username", identity.Username))
	p.notify(Change{Previous: prevState, Current: StateAuthenticated, Identity: identity})

	if p.deps.Notifications != nil {
		if _, err := p.deps.Notifications.FetchPage(ctx, identity.ID, domain.PageRequest{Page: 0, Size: p.deps.PageSize}); err != nil {
			p.deps.Logger.Warn("initial notification load failed", slog.String("error", err.Error()))
		}
	}
	p.connect(ctx, identity.ID, token)
}

func (p *Provider) connect(ctx context.Context, userID, token string) {
	if p.deps.Transport == nil {
		return
	}
	if err := p.deps.Transport.Connect(ctx, transport.Identity{UserID: userID, Token: token}); err != nil {
		p.deps.Logger.Warn("push connect failed; reconnecting in background", slog.String("error", err.Error()))
	}
}

// end tears the session down to ANONYMOUS.
func (p *Provider) end(epoch uint64, reason string) {
	if p.deps.Transport != nil {
		p.deps.Transport.Disconnect()
	}
	if p.deps.Votes != nil {
		p.deps.Votes.ClearVoteData()
	}
	if p.deps.Notifications != nil {
		p.deps.Notifications.Clear()
	}
	if p.deps.Router != nil {
		p.deps.Router.Reset()
		p.deps.Router.SetUser("")
	}
	p.clearStoredToken()
	p.becomeAnonymous(epoch, reason)
}

func (p *Provider) clearStoredToken() {
	if err := p.deps.Tokens.ClearToken(); err != nil {
		p.deps.Logger.Warn("failed to clear token", slog.String("error", err.Error()))
	}
}

func (p *Provider) becomeAnonymous(epoch uint64, reason string) {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return
	}
	prev := p.state
	p.state = StateAnonymous
	p.identity = domain.Identity{}
	p.token, p.claims = "", Claims{}
	p.mu.Unlock()

	p.deps.Logger.Info("session anonymous", slog.String("reason", reason))
	p.notify(Change{Previous: prev, Current: StateAnonymous})
}

func (p *Provider) notify(change Change) {
	p.mu.RLock()
	listeners := append([]func(Change){}, p.listeners...)
	p.mu.RUnlock()

	p.deps.Emitter.Emit(sse.NewSessionEvent(string(change.Current), change.Identity.ID))
	for _, fn := range listeners {
		fn(change)
	}
}
