package store

import "github.com/stackitapp/stackit-sync/internal/errors"

// Sentinel errors for cache lookups. Network failures surface as *backend.RequestError.
var (
	ErrQuestionNotFound     = errors.NotFound("question not found")
	ErrAnswerNotFound       = errors.NotFound("answer not found")
	ErrTagNotFound          = errors.NotFound("tag not found")
	ErrNotificationNotFound = errors.NotFound("notification not found")

	ErrNoUser = errors.Unauthorized("operation requires a signed-in user")
)
