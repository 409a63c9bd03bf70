package production

import (
	"errors"
	"fmt"

	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrStaleStage: the client acted on an outdated stage. Refetch and retry.
	ErrStaleStage = errors.New("stale stage")

	// ErrOverInvoice: the request invoices more than remains. Never partially applied.
	ErrOverInvoice = errors.New("over invoice")

	// ErrArchiveFailure aborts the transition into cleared.
	ErrArchiveFailure = errors.New("archive failure")

	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrOrderFrozen          = errors.New("order is archived and frozen")
	ErrNotInvoiceable       = errors.New("order is not in an invoiceable stage")
	ErrOrderInvoiced        = errors.New("order has invoices")
	ErrConcurrentUpdate     = errors.New("order was modified concurrently")

	ErrInvalidOrder   = errors.New("invalid order")
	ErrInvalidInvoice = errors.New("invalid invoice request")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type StaleStageError struct {
	OrderID  string
	Expected Stage // what the client sent as from_stage
	Actual   Stage
}

func (e *StaleStageError) Error() string {
	return fmt.Sprintf("order %s is in %s, not %s", e.OrderID, e.Actual, e.Expected)
}

func (e *StaleStageError) Unwrap() error { return ErrStaleStage }

type OverInvoiceError struct {
	OrderID   string
	ProductID string
	Requested int
	Remaining int
}

func (e *OverInvoiceError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("order %s: cannot invoice %d, only %d remaining", e.OrderID, e.Requested, e.Remaining)
	}
	return fmt.Sprintf("order %s: cannot invoice %d of %s, only %d remaining",
		e.OrderID, e.Requested, e.ProductID, e.Remaining)
}

func (e *OverInvoiceError) Unwrap() error { return ErrOverInvoice }

// ArchiveError wraps the storage failure that stopped an archive write.
// It matches both ErrArchiveFailure and the underlying error.
type ArchiveError struct {
	OrderID string
	Err     error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to archive order %s: %v", e.OrderID, e.Err)
}

func (e *ArchiveError) Unwrap() []error { return []error{ErrArchiveFailure, e.Err} }

type TransitionError struct {
	From   Stage
	To     Stage
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
	}
	return fmt.Sprintf("transition %s -> %s not allowed: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrTransitionNotAllowed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrArchiveNotFound) ||
		generic.IsNotFound(err)
}

// IsConflict covers errors caused by the entity's current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStaleStage) ||
		errors.Is(err, ErrOverInvoice) ||
		errors.Is(err, ErrTransitionNotAllowed) ||
		errors.Is(err, ErrOrderFrozen) ||
		errors.Is(err, ErrNotInvoiceable) ||
		errors.Is(err, ErrOrderInvoiced) ||
		errors.Is(err, ErrConcurrentUpdate) ||
		generic.IsConflict(err)
}

func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrInvalidInvoice) ||
		generic.IsClientError(err)
}
