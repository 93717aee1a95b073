package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrNotFound is returned when an id does not resolve
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique key is already taken
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput is returned for payloads or parameters that fail validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFormat is returned when no parser accepts an uploaded file
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// NotFoundError names the entity that could not be resolved.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFound builds a NotFoundError for an integer id.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError reports a unique-constraint violation.
type ConflictError struct {
	Entity string
	Key    string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}
