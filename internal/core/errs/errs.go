// Package errs defines the error taxonomy shared by the feed core.
//
// Callers classify failures with errors.Is against the sentinels below; the
// underlying cause stays reachable through the wrap chain.
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient marks timeouts and connection loss. Safe to retry with backoff.
	ErrTransient = errors.New("transient store error")
	// ErrNotFound marks a referenced post or user that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input or task payloads. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrCapacity marks a store refusing a write because of quota or memory limits.
	ErrCapacity = errors.New("store capacity exceeded")
	// ErrExhaustedRetries marks a task moved to the dead-letter record.
	ErrExhaustedRetries = errors.New("retries exhausted")
	// ErrCacheMiss is returned by timeline reads when the owner is not cached.
	ErrCacheMiss = errors.New("timeline not cached")
	// ErrLeaseLost is returned when a task lease expired and was taken by another worker.
	ErrLeaseLost = errors.New("task lease lost")
	// ErrForbidden marks an operation on a resource the caller does not own.
	ErrForbidden = errors.New("forbidden")
)

// Transient wraps err as a transient failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds a not-found error naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Capacity wraps err as a capacity failure.
func Capacity(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCapacity, err)
}

// IsRetryable reports whether an operation that failed with err may be retried.
// Context deadlines count as transient; validation, not-found and capacity
// errors do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCapacity), errors.Is(err, ErrForbidden):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
