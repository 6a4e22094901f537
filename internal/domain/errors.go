package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used across all layers. Handlers classify with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrTooLarge     = errors.New("request too large")

	ErrDuplicateUser = fmt.Errorf("user already exists: %w", ErrConflict)
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// RateLimitError is returned when an (action, identifier) pair exceeded its window.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Action, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// CodeFailure enumerates why a verification code was rejected.
type CodeFailure string

const (
	CodeMissing   CodeFailure = "no_code"
	CodeExpired   CodeFailure = "expired"
	CodeExhausted CodeFailure = "too_many_attempts"
	CodeInvalid   CodeFailure = "invalid"
)

// CodeError reports a rejected verification code.
type CodeError struct {
	Reason            CodeFailure
	AttemptsRemaining int
}

func (e *CodeError) Error() string {
	switch e.Reason {
	case CodeMissing:
		return "no verification code found, request a new one"
	case CodeExpired:
		return "verification code expired"
	case CodeExhausted:
		return "too many attempts, request a new code"
	default:
		return fmt.Sprintf("invalid verification code, %d attempts remaining", e.AttemptsRemaining)
	}
}

func (e *CodeError) Unwrap() error { return ErrValidation }

// TokenFailure enumerates why a JWT was rejected.
type TokenFailure string

const (
	TokenExpired      TokenFailure = "expired"
	TokenInvalid      TokenFailure = "invalid"
	TokenTypeMismatch TokenFailure = "type_mismatch"
)

// TokenError reports a rejected JWT.
type TokenError struct {
	Reason TokenFailure
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
	}
	return "token " + string(e.Reason)
}

func (e *TokenError) Unwrap() error { return ErrUnauthorized }

// Known reports whether err unwraps to one of the sentinel kinds above.
// Anything else is an infrastructure failure.
func Known(err error) bool {
	for _, s := range []error{ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrRateLimited, ErrTooLarge} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
