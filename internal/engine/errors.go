package engine

import (
	"errors"
	"fmt"
)

// ReducerError represents a transaction rejected by a reducer.
//
// Every rejection aborts the whole transaction with no partial writes.
// The submitting client never receives the error directly (submission is
// fire-and-forget); it surfaces only on the engine's log. The overlay
// layer has no error channel at all and self-heals from snapshots.
type ReducerError struct {
	// Code identifies the error category.
	Code ReducerErrorCode

	// Message is a human-readable description.
	Message string
}

// ReducerErrorCode categorizes reducer failures.
type ReducerErrorCode string

const (
	// ErrCodeValidation indicates malformed, empty, or oversized input.
	// Raised before any write.
	ErrCodeValidation ReducerErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates a referenced entity is absent.
	ErrCodeNotFound ReducerErrorCode = "NOT_FOUND"

	// ErrCodeUnauthorized indicates the caller does not own the entity.
	ErrCodeUnauthorized ReducerErrorCode = "UNAUTHORIZED"
)

// Error implements the error interface.
func (e *ReducerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a ReducerError for rejected input.
func NewValidationError(format string, args ...any) *ReducerError {
	return &ReducerError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a ReducerError for an absent entity.
func NewNotFoundError(format string, args ...any) *ReducerError {
	return &ReducerError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError creates a ReducerError for an ownership violation.
func NewAuthorizationError(format string, args ...any) *ReducerError {
	return &ReducerError{Code: ErrCodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a VALIDATION rejection.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsNotFoundError reports whether err is a NOT_FOUND rejection.
func IsNotFoundError(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsAuthorizationError reports whether err is an UNAUTHORIZED rejection.
func IsAuthorizationError(err error) bool { return hasCode(err, ErrCodeUnauthorized) }

func hasCode(err error, code ReducerErrorCode) bool {
	var re *ReducerError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
