package backend

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// RequestError is the single error type returned for failed API calls.
// Message is already resolved for display.
type RequestError struct {
	Op          string
	Method      string
	Status      int // 0 when no response was received
	Message     string
	FieldErrors map[string]string
	cause       error
}

func (e *RequestError) Error() string {
	if e.cause != nil && e.Status == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.cause)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes both the domain code and the underlying cause to errors.Is.
func (e *RequestError) Unwrap() []error {
	errs := []error{e.code()}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Code returns the domain error code for this failure.
func (e *RequestError) Code() errors.Code {
	return e.code().Code
}

func (e *RequestError) code() *errors.Error {
	switch e.Status {
	case http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.ErrValidation
	case http.StatusConflict:
		return errors.ErrConflict
	default:
		return errors.ErrRequest
	}
}

// ResolveMessage picks the user-facing message for an error body:
// field-level validation messages joined with ", " (ordered by field name),
// else the top-level message, else fallback.
func ResolveMessage(body wire.ErrorBody, fallback string) string {
	if len(body.FieldErrors) > 0 {
		msgs := make([]string, 0, len(body.FieldErrors))
		for _, field := range slices.Sorted(maps.Keys(body.FieldErrors)) {
			if m := strings.TrimSpace(body.FieldErrors[field]); m != "" {
				msgs = append(msgs, m)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, ", ")
		}
	}
	if len(body.Errors) > 0 {
		return strings.Join(body.Errors, ", ")
	}
	if m := strings.TrimSpace(body.Message); m != "" {
		return m
	}
	return fallback
}

func newStatusError(cl call, status int, data []byte) *RequestError {
	var body wire.ErrorBody
	// Non-JSON bodies (proxies, HTML error pages) resolve to the fallback.
	_ = json.Unmarshal(data, &body)
	if len(body.FieldErrors) == 0 && len(body.Data) > 0 {
		var fields map[string]string
		if json.Unmarshal(body.Data, &fields) == nil {
			body.FieldErrors = fields
		}
	}
	return &RequestError{
		Op:          cl.op,
		Method:      cl.method,
		Status:      status,
		Message:     ResolveMessage(body, cl.fallback),
		FieldErrors: body.FieldErrors,
	}
}

// MessageOf returns the display message of err, or fallback when err is not a RequestError.
func MessageOf(err error, fallback string) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return fallback
}
