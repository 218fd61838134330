/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The polls and household packages reuse these types so the API layer
  maps every domain failure the same way.

ERROR CATEGORIES:
  1. Validation errors - bad input (non-positive amount, payer in split set,
     missing house/expense reference, overpayment)
  2. Not-found errors  - a referenced house/expense/member/poll is absent
  3. Persistence errors - opaque passthrough from the store
  4. Store conflicts - unique-constraint violations mapped to sentinels

USAGE:
  Callers branch with errors.Is on the sentinels, or errors.As on the
  structured types when they need the field name or id:

    if errors.Is(err, ledger.ErrValidation) {
        // 400
    }

SEE ALSO:
  - writer.go: returns these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the category for bad input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the category for missing referenced records.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is the category for store failures. The underlying cause
	// is never decoded by the engine.
	ErrPersistence = errors.New("persistence failure")
)

// Store-level conflicts. Stores map unique-constraint violations to these so
// callers can retry or report without decoding driver errors.
var (
	// ErrDuplicateInviteCode is returned when a new house reuses an invite
	// code. The caller generates a fresh code and retries.
	ErrDuplicateInviteCode = errors.New("duplicate invite code")

	// ErrDuplicateVote is returned when a user votes twice for one option.
	// It is a validation error: the request itself is the problem.
	ErrDuplicateVote = &ValidationError{Field: "option_id", Reason: "already voted for this option"}
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError names the kind of record and the id that was looked up.
type NotFoundError struct {
	Kind string // "house", "expense", "member", "poll", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound builds a *NotFoundError.
func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Persistence wraps err as a *PersistenceError unless it is already a domain
// error, which passes through untouched.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) || IsPersistence(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPersistence returns true if the store failed.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
