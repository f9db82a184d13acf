package store

import "fmt"

// The four recoverable error classes reported to callers. None triggers a
// retry inside the engine; retries are the caller's business.

// ValidationError reports malformed input, rejected before any state
// change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError reports a state conflict caught by the atomic check
// inside a mutating operation: duplicate active registration, request
// already filled, registration already dispatched.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// NotEligibleError reports a procedural-rule rejection: bidding window
// closed, suspension or blackout active, exemption past the maximum.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string { return e.Reason }

// NotFoundError reports an unknown entity reference.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func conflictErr(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func notEligibleErr(format string, args ...any) error {
	return &NotEligibleError{Reason: fmt.Sprintf(format, args...)}
}

func notFoundErr(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}
