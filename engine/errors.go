/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Transition errors - Illegal work-unit or order state edges
  2. Validation errors - Bad input (zero workers, non-positive amounts)
  3. Balance errors    - Overpayment attempts
  4. Invariant errors  - Defensive checks that should be unreachable

USAGE:
  Callers classify with errors.Is():

    if errors.Is(err, engine.ErrInvalidTransition) {
        // reject with the attempted edge
    }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransition is returned when an illegal state edge is
	// attempted (e.g. approving a unit that is not completed).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoWorkersAssigned is returned when a payment split is requested
	// with zero workers. Rejected before any division happens.
	ErrNoWorkersAssigned = errors.New("no workers assigned")

	// ErrInsufficientBalance is returned when a payment exceeds the
	// remaining balance. Payments are rejected, never clamped.
	ErrInsufficientBalance = errors.New("payment exceeds remaining balance")

	// ErrInvalidAmount is returned for non-positive payment amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActiveDebt is returned when more than one non-paid debt
	// exists for a work order. The per-order serialization should make
	// this unreachable; it is checked and reported rather than merged.
	ErrDuplicateActiveDebt = errors.New("duplicate active debt")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError reports the attempted edge.
type InvalidTransitionError struct {
	From  UnitStatus
	Event UnitEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s from %s", e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// InsufficientBalanceError reports how far a payment overshot.
type InsufficientBalanceError struct {
	Remaining Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: remaining %s, requested %s",
		e.Remaining, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// NotFoundError reports which record was missing.
type NotFoundError struct {
	Kind string // "work order", "assignment", "item", "worker", "debt", "batch"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateActiveDebtError reports an at-most-one-active violation.
type DuplicateActiveDebtError struct {
	WorkOrderID WorkOrderID
	Count       int
}

func (e *DuplicateActiveDebtError) Error() string {
	return fmt.Sprintf("work order %s has %d active debts, expected at most one",
		e.WorkOrderID, e.Count)
}

func (e *DuplicateActiveDebtError) Unwrap() error {
	return ErrDuplicateActiveDebt
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNoWorkersAssigned) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
