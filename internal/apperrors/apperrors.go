// Package apperrors defines the error kinds surfaced by the service layer.
// Handlers map them to HTTP statuses with errors.Is; background jobs never
// propagate them past a row or item boundary.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected synchronously at submission.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced entity that is absent or soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated marks a missing or invalid caller credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden marks a principal/owner or principal/language mismatch.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks an operation rejected because of current entity state.
	ErrConflict = errors.New("conflict")
	// ErrGeneration marks a completion-generator failure of any kind.
	ErrGeneration = errors.New("generation failed")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrForbidden}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}
