package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed submission.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals that the referenced job or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate signals that a job or artifact is already registered.
	ErrDuplicate = errors.New("already exists")
)

// ValidationError describes which submission field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%q %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
