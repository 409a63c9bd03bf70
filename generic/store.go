/*
store.go - Persistence interfaces for counters, movements and approvals

PURPOSE:
  Defines the interface between the engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  ResourceStore: Guarded counters plus their append-only movement log
  ApprovalStore: One-shot approval records
  Transactor:    Runs a function inside one storage transaction

ATOMIC COUNTERS:
  Decrement() is the only way to lower OnHand. Implementations MUST perform
  the check and the write as one conditional update (SQL:
  UPDATE ... SET on_hand = on_hand - ? WHERE id = ? AND on_hand >= ?) or
  inside a per-entry critical section. A read-then-write without a guard is
  exactly the bug this interface exists to prevent.

TRANSACTIONS IN CONTEXT:
  RunInTx places the open transaction in the context it hands to fn.
  Every store method called with that context joins the transaction.
  Calling RunInTx with a context that already carries a transaction joins
  the outer one, so services compose without knowing who opened it.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - resource.go: ResourceLedger built on ResourceStore
  - approval.go: ApprovalGuard built on ApprovalStore
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// RESOURCE STORE
// =============================================================================

type ResourceStore interface {
	// SaveResource creates or replaces a resource definition. OnHand is only
	// taken from r when the resource is new.
	SaveResource(ctx context.Context, r Resource) error

	// GetResource returns ErrResourceNotFound for unknown ids.
	GetResource(ctx context.Context, id ResourceID) (*Resource, error)

	ListResources(ctx context.Context) ([]Resource, error)

	// Decrement atomically lowers OnHand by amount if and only if OnHand >= amount,
	// and records an allocation movement under key.
	// Returns *InsufficientStockError or ErrDuplicateAllocation.
	Decrement(ctx context.Context, id ResourceID, amount Amount, key AllocationKey, reason string) (Movement, error)

	// Release credits back the allocation recorded under key and marks it released.
	// Returns ErrAllocationNotFound or ErrAlreadyReleased.
	Release(ctx context.Context, key AllocationKey, reason string) (Movement, error)

	// Restock atomically raises OnHand.
	Restock(ctx context.Context, id ResourceID, amount Amount, reason string) (Movement, error)

	// GetAllocation returns the allocation recorded under key, or ErrAllocationNotFound.
	GetAllocation(ctx context.Context, key AllocationKey) (*Movement, error)

	// AllocationsByOwner returns every allocation whose key has the given owner.
	AllocationsByOwner(ctx context.Context, ownerID string) ([]Movement, error)

	// Movements returns the audit log for one resource, oldest first.
	Movements(ctx context.Context, id ResourceID) ([]Movement, error)
}

// =============================================================================
// APPROVAL STORE
// =============================================================================

type ApprovalStore interface {
	// CreateApproval inserts a new pending approval. Returns ErrDuplicateRecord if it exists.
	CreateApproval(ctx context.Context, a Approval) error

	// GetApproval returns ErrApprovalNotFound for unknown ids.
	GetApproval(ctx context.Context, id EntityID) (*Approval, error)

	// DecideApproval atomically moves a pending approval to status.
	// If the approval is not pending it returns the stored record together
	// with an *AlreadyAppliedError carrying the current status.
	DecideApproval(ctx context.Context, id EntityID, d Decision, at time.Time) (*Approval, error)
}

// =============================================================================
// TRANSACTOR
// =============================================================================

// Transactor runs fn inside one storage transaction. If fn returns an error
// every write made through the context passed to fn is rolled back.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is the full persistence surface the engine needs.
type Store interface {
	ResourceStore
	ApprovalStore
	Transactor
}
