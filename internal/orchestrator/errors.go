package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/allaspectsdev/genrelay/internal/catalog"
)

var (
	// ErrInvalidTaskType is returned for an unknown task-type tag.
	ErrInvalidTaskType = catalog.ErrInvalidTaskType

	// ErrNoProvidersConfigured is returned when no credentialed provider
	// exists for the requested task type. No call is attempted.
	ErrNoProvidersConfigured = catalog.ErrNoProvidersConfigured

	// ErrAllProvidersFailed is matched by *AllProvidersFailedError.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrCancelled is returned when the caller's context ends before a
	// result is produced. It is always joined with the context error.
	ErrCancelled = errors.New("generation cancelled")

	// ErrEmptyContent marks a provider response with no usable text.
	ErrEmptyContent = errors.New("provider returned empty content")

	// ErrInvalidRequest is wrapped by request validation failures.
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrCircuitOpen is the last error when every candidate was skipped by
	// its circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ProviderAttemptError reports that one provider exhausted its attempts.
type ProviderAttemptError struct {
	Provider string
	Model    string
	Attempts int
	Err      error
}

func (e *ProviderAttemptError) Error() string {
	return fmt.Sprintf("provider %s (%s) failed after %d attempt(s): %v", e.Provider, e.Model, e.Attempts, e.Err)
}

func (e *ProviderAttemptError) Unwrap() error { return e.Err }

// AllProvidersFailedError is returned once every candidate for a task type
// has been exhausted. It carries enough to diagnose the outage without
// reading the telemetry log.
type AllProvidersFailedError struct {
	TaskType catalog.TaskType
	Tried    int
	LastErr  error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed for %s (%d tried): %v", e.TaskType, e.Tried, e.LastErr)
}

// Unwrap exposes both ErrAllProvidersFailed and the last provider error.
func (e *AllProvidersFailedError) Unwrap() []error {
	return []error{ErrAllProvidersFailed, e.LastErr}
}

// LastMessage returns the last provider error text, or "" when none.
func (e *AllProvidersFailedError) LastMessage() string {
	if e.LastErr == nil {
		return ""
	}
	return e.LastErr.Error()
}

func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying against the same provider.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// statusCoder is implemented by transport errors that carry an upstream
// HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// IsPermanent reports whether retrying err against the same provider is
// pointless: errors wrapped with Permanent, or upstream 4xx responses other
// than 408 and 429.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
			return false
		}
		return code >= 400 && code < 500
	}
	return false
}
