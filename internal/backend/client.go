// Package backend is the REST client for the StackIt API.
// Every response is decoded into wire types and converted to domain types before it leaves the package.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/stackitapp/stackit-sync/internal/id"
	"github.com/stackitapp/stackit-sync/internal/ratelimit"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRPS     = 20.0
	defaultBurst   = 10

	userAgent = "stackit-sync/1.0"
)

// TokenSource supplies the bearer token for each request. An empty token sends no Authorization header.
type TokenSource interface {
	Token() string
}

// RequestObserver receives one call per completed HTTP exchange. Status is 0 when no response arrived.
type RequestObserver interface {
	ObserveRequest(resource, method string, status int, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	MaxRetries int // idempotent GETs only
	Tokens     TokenSource
	Observer   RequestObserver
}

// Client is a rate-limited StackIt API client.
type Client struct {
	http       *http.Client
	baseURL    string
	limiter    *ratelimit.KeyedRateLimiter
	logger     *slog.Logger
	tokens     TokenSource
	observer   RequestObserver
	maxRetries int

	// retryInitial is the first GET retry delay; tests shorten it.
	retryInitial time.Duration

	mu             sync.RWMutex
	onUnauthorized func()
}

// New creates a new API client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RPS == 0 && opts.Burst == 0 {
		opts.RPS, opts.Burst = defaultRPS, defaultBurst
	}
	return &Client{
		http:         &http.Client{Timeout: opts.Timeout},
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		limiter:      ratelimit.New(opts.RPS, opts.Burst),
		logger:       logger,
		tokens:       opts.Tokens,
		observer:     opts.Observer,
		maxRetries:   opts.MaxRetries,
		retryInitial: 250 * time.Millisecond,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// SetTokenSource replaces the bearer token source.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// OnUnauthorized registers the hook run whenever the backend answers 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// call describes one API request.
type call struct {
	op       string // operation name for errors and logs
	method   string
	resource string // rate limit bucket
	path     string
	query    url.Values
	body     any
	fallback string // user-facing message when the backend gives none

	// raw bodies (multipart uploads) bypass JSON encoding and are never retried.
	rawBody       io.Reader
	contentLength int64
	contentType   string
}

// do executes c and decodes a successful response into out (may be nil).
func (c *Client) do(ctx context.Context, cl call, out any) error {
	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return &RequestError{Op: cl.op, Method: cl.method, Message: cl.fallback, cause: fmt.Errorf("encode body: %w", err)}
		}
	}

	idempotencyKey := ""
	if cl.method == http.MethodPost && cl.rawBody == nil {
		idempotencyKey = uuid.NewString()
	}

	attempt := func() ([]byte, error) {
		var body io.Reader = cl.rawBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		return c.send(ctx, cl, body, idempotencyKey)
	}

	var (
		data []byte
		err  error
	)
	if cl.method == http.MethodGet && c.maxRetries > 0 {
		data, err = c.retryGet(ctx, cl, attempt)
	} else {
		data, err = attempt()
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Op: cl.op, Method: cl.method, Status: http.StatusOK, Message: cl.fallback, cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// retryGet retries transient failures with jittered exponential backoff.
func (c *Client) retryGet(ctx context.Context, cl call, attempt func() ([]byte, error)) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.RandomizationFactor = 0.5
	policy.Multiplier = 2
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	var data []byte
	tries := 0
	op := func() error {
		tries++
		var err error
		data, err = attempt()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying request",
			slog.String("op", cl.op),
			slog.Int("attempt", tries),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return data, nil
}

// send performs a single HTTP exchange.
func (c *Client) send(ctx context.Context, cl call, body io.Reader, idempotencyKey string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, cl.resource); err != nil {
		return nil, &RequestError{Op: cl.op, Method: cl.method, Message: cl.fallback, cause: fmt.Errorf("rate limit wait: %w", err)}
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, &RequestError{Op: cl.op, Method: cl.method, Message: cl.fallback, cause: fmt.Errorf("create request: %w", err)}
	}

	if cl.contentLength > 0 {
		req.ContentLength = cl.contentLength
	}

	requestID := id.Request()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	switch {
	case cl.contentType != "":
		req.Header.Set("Content-Type", cl.contentType)
	case body != nil:
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request",
		slog.String("op", cl.op),
		slog.String("method", cl.method),
		slog.String("path", cl.path),
		slog.String("request_id", requestID))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(cl, 0, start)
		return nil, &RequestError{Op: cl.op, Method: cl.method, Message: cl.fallback, cause: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(cl, resp.StatusCode, start)
	if err != nil {
		return nil, &RequestError{Op: cl.op, Method: cl.method, Status: resp.StatusCode, Message: cl.fallback, cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	reqErr := newStatusError(cl, resp.StatusCode, data)
	if resp.StatusCode == http.StatusUnauthorized {
		c.unauthorized()
	}
	c.logger.Debug("api request failed",
		slog.String("op", cl.op),
		slog.Int("status", resp.StatusCode),
		slog.String("message", reqErr.Message))
	return nil, reqErr
}

func (c *Client) token() string {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.Token()
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) observe(cl call, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(cl.resource, cl.method, status, time.Since(start))
	}
}

// retryable reports whether a GET failure may succeed on another attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	switch {
	case reqErr.Status == 0:
		return reqErr.cause != nil
	case reqErr.Status == http.StatusTooManyRequests:
		return true
	default:
		return reqErr.Status >= 500
	}
}

// pageQuery encodes the common page parameters.
func pageQuery(page, size int, sortBy, sortDir string) url.Values {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	if size > 0 {
		q.Set("size", fmt.Sprint(size))
	}
	if sortBy != "" {
		q.Set("sortBy", sortBy)
	}
	if sortDir != "" {
		q.Set("sortDir", sortDir)
	}
	return q
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
