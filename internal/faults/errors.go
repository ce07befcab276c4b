// Package faults defines the typed error kinds shared across the engine:
// validation failures that must be rejected before storage, and not-found
// signals for id-addressed lookups. "Not enough data yet" is intentionally
// not an error kind; callers return nil/empty results for that case.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError reports an input that violates a documented constraint
// (e.g., satisfaction outside 1-5, an unknown pattern result value).
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s must satisfy %s", e.Field, e.Constraint)
}

// NewValidation creates a ValidationError for a field and the constraint it violated.
func NewValidation(field, constraint string) *ValidationError {
	return &ValidationError{Field: field, Constraint: constraint}
}

// IsValidation returns true if the error (or any error in its chain) is a
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports an operation referencing a missing entity id.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// NewNotFound creates a NotFoundError for an entity kind and id.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound returns true if the error (or any error in its chain) is a
// NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
