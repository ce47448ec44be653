// Package apperrors provides structured application errors classified by
// sentinel, so callers can branch with errors.Is without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrInternal    = errors.New("internal error")
)

// Error carries a sentinel plus context about what failed.
type Error struct {
	Sentinel error  // wrapped sentinel for errors.Is() classification
	Message  string // human-readable message
	Resource string // affected resource key, when applicable
	Op       string // operation that failed (e.g. "queue.createItem")
	Cause    error  // underlying error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel so errors.Is sees the classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error.
func Validation(message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
	}
}

// NotFound creates a not-found error for a resource key.
func NotFound(resource string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("resource %s not found", resource),
		Resource: resource,
	}
}

// Unavailable creates a retryable infrastructure error.
func Unavailable(op, message string, cause error) error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  message,
		Op:       op,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
