package types

import (
	"errors"
	"fmt"
)

// Error classes returned by the store and the backend.
//
// Check them with errors.Is():
//
//	if errors.Is(err, types.ErrNotFound) {
//	    // the id raced with a remote deletion
//	}
var (
	// ErrValidation is returned when a mutation's input violates a
	// structural invariant. Nothing has been written when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced id is not in the store.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition is returned when a referential precondition is unmet,
	// such as deleting a non-empty list.
	ErrPrecondition = errors.New("precondition failed")

	// ErrLoadState is returned for reads and writes attempted before the
	// store has finished loading for the current user.
	ErrLoadState = errors.New("store is not loaded")

	// ErrMultipleMatches is returned by single-entity views that found
	// more than one candidate.
	ErrMultipleMatches = errors.New("multiple matches")
)

// ValidationError describes the offending property.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s property '%s' %s", e.Entity, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PreconditionError explains why an operation was refused.
type PreconditionError struct {
	Entity string
	ID     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s '%s': %s", e.Entity, e.ID, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// LoadStateError records which operation was attempted too early.
type LoadStateError struct {
	Op    string
	State string
}

func (e *LoadStateError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s: store is not loaded", e.Op)
	}
	return fmt.Sprintf("%s: store is not loaded (state %s)", e.Op, e.State)
}

func (e *LoadStateError) Is(target error) bool { return target == ErrLoadState }

// MultipleMatchesError reports how many lists matched a single-list view.
type MultipleMatchesError struct {
	What  string
	Count int
}

func (e *MultipleMatchesError) Error() string {
	return fmt.Sprintf("%s: expected a single match but found %d", e.What, e.Count)
}

func (e *MultipleMatchesError) Is(target error) bool { return target == ErrMultipleMatches }
