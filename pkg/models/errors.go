package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across service layers. Handlers translate these to
// HTTP status codes; everything else maps to 500.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create conflicts with an existing entity.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotCancellable indicates the session or execution is already terminal.
	ErrNotCancellable = errors.New("not in a cancellable state")

	// ErrCapacity indicates a bounded resource (pool, queue, session slots)
	// is exhausted. Callers retry with back-off; the condition is not fatal.
	ErrCapacity = errors.New("capacity exhausted")
)

// ValidationError carries field-level detail for input rejections. It maps
// to HTTP 422 at the API boundary and is never retried.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-scoped validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AsValidationError unwraps err to a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
