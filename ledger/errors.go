/*
errors.go - Centralized error types for the investment ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps error classes to HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors  - Bad input, rejected with no side effect
  2. Conflict errors    - Rejected state transitions, no side effect
  3. Store errors       - Constraint and concurrency failures

USAGE:
  if errors.Is(err, ledger.ErrDuplicatePeriod) {
      // Period was already closed by an earlier run; not a failure.
  }

SEE ALSO:
  - accrual.go: Swallows ErrDuplicatePeriod as "already processed"
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvestmentNotFound is returned when a referenced investment doesn't exist.
	ErrInvestmentNotFound = errors.New("investment not found")

	// ErrReturnNotFound is returned when a referenced return entry doesn't exist.
	ErrReturnNotFound = errors.New("investment return not found")

	// ErrInvestorNotFound is returned when a referenced investor doesn't exist.
	ErrInvestorNotFound = errors.New("investor not found")

	// ErrOutletNotFound is returned when a referenced outlet doesn't exist.
	ErrOutletNotFound = errors.New("outlet not found")

	// ErrDuplicateCode is returned when an investment code collides. The
	// registry retries code generation on this error.
	ErrDuplicateCode = errors.New("duplicate investment code")

	// ErrDuplicatePeriod is returned when a return entry for the same
	// (investment, period_end) pair already exists. The accrual engine treats
	// this as "already processed", not as a failure.
	ErrDuplicatePeriod = errors.New("period already accrued")

	// ErrConcurrentModification is returned when the optimistic version check
	// detects a conflicting write. Callers retry a bounded number of times.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrTerminalStatus is returned when an operation would transition an
	// investment out of a terminal status.
	ErrTerminalStatus = errors.New("investment is in a terminal status")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError rejects bad input with no side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError rejects an operation that would contradict recorded state:
// deleting an investment with ledger rows, or an edit that would retroactively
// shift closed period boundaries.
type ConflictError struct {
	InvestmentID InvestmentID
	Reason       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on investment %s: %s", e.InvestmentID, e.Reason)
}

// InsufficientPrincipalError rejects a withdrawal that exceeds the current
// principal. The investment is left untouched.
type InsufficientPrincipalError struct {
	InvestmentID InvestmentID
	Available    decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientPrincipalError) Error() string {
	return fmt.Sprintf("insufficient principal on investment %s: available %s, requested %s",
		e.InvestmentID, e.Available, e.Requested)
}

// AlreadyPaidError rejects settling a return that is already paid.
type AlreadyPaidError struct {
	ReturnID ReturnID
	PaidDate *Date
}

func (e *AlreadyPaidError) Error() string {
	if e.PaidDate != nil {
		return fmt.Sprintf("return %s already paid on %s", e.ReturnID, e.PaidDate)
	}
	return fmt.Sprintf("return %s already paid", e.ReturnID)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict returns true if the error is a rejected state transition.
func IsConflict(err error) bool {
	var ce *ConflictError
	var ipe *InsufficientPrincipalError
	var ape *AlreadyPaidError
	return errors.As(err, &ce) ||
		errors.As(err, &ipe) ||
		errors.As(err, &ape) ||
		errors.Is(err, ErrTerminalStatus) ||
		errors.Is(err, ErrDuplicateCode)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvestmentNotFound) ||
		errors.Is(err, ErrReturnNotFound) ||
		errors.Is(err, ErrInvestorNotFound) ||
		errors.Is(err, ErrOutletNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
