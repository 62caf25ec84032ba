// Package domain defines entities, ports and the error taxonomy shared by all layers.
package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels). The HTTP adapter maps these to status codes once
// at the edge; services translate downstream failures into these and never panic.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrUnavailable     = errors.New("upstream unavailable")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrInternal        = errors.New("internal error")
)

// AppError carries the structured error contract surfaced by service methods:
// a machine code, an operator message, a user-safe message, retryability and
// optional details. It wraps one of the sentinel errors above so callers can
// keep using errors.Is.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Retryable   bool
	Details     map[string]any
	sentinel    error
}

// NewAppError builds an AppError wrapping the given sentinel.
func NewAppError(sentinel error, code, message, userMessage string, retryable bool) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Retryable:   retryable,
		sentinel:    sentinel,
	}
}

// WithDetails attaches structured details and returns the receiver for chaining.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *AppError) Unwrap() error { return e.sentinel }

// Unavailablef builds the standard "upstream unavailable" error for a ticker or
// resource after retries and a stale-read miss.
func Unavailablef(format string, args ...any) *AppError {
	return NewAppError(ErrUnavailable, "UNAVAILABLE", fmt.Sprintf(format, args...),
		"Market data is temporarily unavailable. Please try again shortly.", true)
}
