/*
errors.go - Centralized error types for the generic engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Counter exhausted, duplicate or missing allocations
  2. Guard errors - Approval already decided
  3. Store errors - Missing records, lock acquisition

USAGE:
  Callers test with errors.Is / errors.As:

    var stockErr *generic.InsufficientStockError
    if errors.As(err, &stockErr) {
        log.Warn().Str("resource", string(stockErr.ResourceID)).Msg("out of stock")
    }

SEE ALSO:
  - resource.go: ResourceLedger uses these errors
  - approval.go: ApprovalGuard uses these errors
  - production/errors.go: Domain errors that wrap these
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a decrement exceeds the on-hand quantity.
	// Surfaced to the user, never retried automatically.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateAllocation is returned by stores when an allocation key
	// has already been used. ResourceLedger turns it into a replay.
	ErrDuplicateAllocation = errors.New("duplicate allocation key")

	// ErrAllocationNotFound is returned when releasing a key that was never allocated.
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrAlreadyReleased is returned when releasing an allocation twice.
	ErrAlreadyReleased = errors.New("allocation already released")

	// ErrResourceNotFound is returned when a referenced resource doesn't exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrApprovalNotFound is returned when a referenced approval record doesn't exist.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrAlreadyApplied is returned when a one-shot action hits a non-pending entity.
	ErrAlreadyApplied = errors.New("action already applied")

	// ErrInvalidAmount is returned for zero, negative or unit-mismatched amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDuplicateRecord is returned when inserting a record whose ID already exists.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError provides details about a shortage.
type InsufficientStockError struct {
	ResourceID ResourceID
	Available  Amount
	Requested  Amount
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %v, requested %v",
		e.ResourceID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Shortfall is how much more would have been needed.
func (e *InsufficientStockError) Shortfall() Amount {
	return e.Requested.Sub(e.Available)
}

// AlreadyAppliedError carries the entity's current status so callers can
// present an accurate message ("already approved").
type AlreadyAppliedError struct {
	EntityID EntityID
	Current  ApprovalStatus
}

func (e *AlreadyAppliedError) Error() string {
	return fmt.Sprintf("%s already %s", e.EntityID, e.Current)
}

func (e *AlreadyAppliedError) Unwrap() error {
	return ErrAlreadyApplied
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true if the error is a state conflict the client can
// resolve by refetching (409-class).
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyApplied) ||
		errors.Is(err, ErrAlreadyReleased) ||
		errors.Is(err, ErrDuplicateAllocation) ||
		errors.Is(err, ErrDuplicateRecord)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrApprovalNotFound) ||
		errors.Is(err, ErrAllocationNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}
