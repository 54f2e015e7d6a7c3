// Package errors defines the platform's error taxonomy. Services wrap
// failures in these sentinels (or an AppError carrying its own status) and
// the HTTP edges map them to status codes with HTTPStatusCode, so transport
// concerns stay out of the domain packages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, matched with errors.Is.
var (
	// Document lifecycle.
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentExists      = errors.New("document already exists")
	ErrIdempotencyConflict = errors.New("idempotency key already used")

	// Corpus scoring.
	ErrCorpusNotFound    = errors.New("corpus not found")
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	ErrInvalidInput      = errors.New("invalid input")

	// Request admission.
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnauthorized = errors.New("unauthorized")

	// Everything else.
	ErrInternal = errors.New("internal error")
	ErrTimeout  = errors.New("operation timed out")
)

// AppError pairs a sentinel with a human-readable message and an explicit
// HTTP status, for cases the sentinel mapping alone cannot express.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError around sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Newf is New with Sprintf formatting.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps err to an HTTP status. An AppError's own StatusCode
// wins; otherwise the outermost recognised sentinel decides; anything else
// is a 500. Context deadline errors count as timeouts, since they reach
// here wrapped in whatever the blocked call reported.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrCorpusNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentExists), errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCorpusUnavailable), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
