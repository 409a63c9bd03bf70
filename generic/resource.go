/*
resource.go - Resource type registry and the ResourceLedger

PURPOSE:
  1. A registry so domain packages can register their resource types and
     storage can turn stored strings back into concrete types.
  2. ResourceLedger: the only component allowed to change a counter.
     Stock on hand and leave balances are shared across requests, so every
     change goes through a guarded check-and-decrement.

AT-MOST-ONE-WINNER:
  K concurrent TryDecrement calls of amount a against OnHand = Q succeed for
  at most floor(Q/a) callers. The rest get *InsufficientStockError. The store
  does the check and the write as one step, so no caller ever observes a
  stale quantity.

IDEMPOTENCY:
  Each allocation carries an AllocationKey. For orders the key is
  (order id, stage), so entering paper_slitting twice, or retrying the
  request, never takes the stock twice. A replayed key returns the original
  allocation with Replayed=true.

RELEASE:
  Release(key) is the inverse used when an order is cancelled after it
  took stock, or when a later step of the same transaction fails.

SEE ALSO:
  - store.go: ResourceStore contract
  - production/stages.go: paper_slitting hook
  - staffing/leave.go: leave balance decrement on approval
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// =============================================================================
// RESOURCE REGISTRY
// =============================================================================

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
// Call this from domain package init() functions.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID.
// Returns nil if not found.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// ListResourcesByDomain returns resource types for a specific domain.
func ListResourcesByDomain(domain string) []ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	var result []ResourceType
	for _, r := range resourceRegistry {
		if r.ResourceDomain() == domain {
			result = append(result, r)
		}
	}
	return result
}

// StringResource is a simple string-based resource type.
// Use only for testing or as a fallback when domain types aren't available.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }

// GetOrCreateResource looks up a resource type, or creates a StringResource fallback.
// Use this in deserialization when the domain might not be loaded.
func GetOrCreateResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: "unknown"}
}

// =============================================================================
// RESOURCE LEDGER
// =============================================================================

type ResourceLedger struct {
	Store ResourceStore
	Log   zerolog.Logger
}

func NewResourceLedger(store ResourceStore, log zerolog.Logger) *ResourceLedger {
	return &ResourceLedger{Store: store, Log: log}
}

// TryDecrement takes amount from the resource, or fails with
// *InsufficientStockError leaving the counter untouched.
func (l *ResourceLedger) TryDecrement(ctx context.Context, id ResourceID, amount Amount, key AllocationKey) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("%w: decrement of %s must be positive", ErrInvalidAmount, amount)
	}
	if key.IsZero() {
		return Allocation{}, fmt.Errorf("%w: allocation key is required", ErrInvalidAmount)
	}

	res, err := l.Store.GetResource(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	if res.OnHand.Unit != amount.Unit {
		return Allocation{}, fmt.Errorf("%w: %s is tracked in %s, got %s", ErrInvalidAmount, id, res.OnHand.Unit, amount.Unit)
	}

	mv, err := l.Store.Decrement(ctx, id, amount, key, "allocated to "+key.String())
	if errors.Is(err, ErrDuplicateAllocation) {
		existing, getErr := l.Store.GetAllocation(ctx, key)
		if getErr != nil {
			return Allocation{}, fmt.Errorf("failed to load existing allocation %s: %w", key, getErr)
		}
		if existing.ResourceID != id {
			return Allocation{}, fmt.Errorf("%w: key %s already allocated from %s", ErrDuplicateAllocation, key, existing.ResourceID)
		}
		current, getErr := l.Store.GetResource(ctx, id)
		if getErr != nil {
			return Allocation{}, getErr
		}
		l.Log.Debug().Str("resource", string(id)).Str("key", key.String()).Msg("allocation replayed")
		return Allocation{Movement: *existing, Remaining: current.OnHand, Replayed: true}, nil
	}
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			l.Log.Info().
				Str("resource", string(id)).
				Str("key", key.String()).
				Str("available", stockErr.Available.Value.String()).
				Str("requested", stockErr.Requested.Value.String()).
				Msg("allocation refused")
		}
		return Allocation{}, err
	}

	l.Log.Info().
		Str("resource", string(id)).
		Str("key", key.String()).
		Str("amount", amount.Value.String()).
		Str("remaining", mv.Remaining.Value.String()).
		Msg("allocated")
	return Allocation{Movement: mv, Remaining: mv.Remaining}, nil
}

// Release returns the quantity allocated under key to its resource.
func (l *ResourceLedger) Release(ctx context.Context, key AllocationKey, reason string) (Movement, error) {
	mv, err := l.Store.Release(ctx, key, reason)
	if err != nil {
		return Movement{}, err
	}
	l.Log.Info().
		Str("resource", string(mv.ResourceID)).
		Str("key", key.String()).
		Str("amount", mv.Delta.Value.String()).
		Str("remaining", mv.Remaining.Value.String()).
		Msg("released")
	return mv, nil
}

// ReleaseOwner releases every outstanding allocation held by ownerID.
// Already released allocations are skipped.
func (l *ResourceLedger) ReleaseOwner(ctx context.Context, ownerID string, reason string) ([]Movement, error) {
	allocs, err := l.Store.AllocationsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var released []Movement
	for _, a := range allocs {
		if a.Released {
			continue
		}
		mv, err := l.Release(ctx, a.Key, reason)
		if err != nil {
			return nil, fmt.Errorf("failed to release %s: %w", a.Key, err)
		}
		released = append(released, mv)
	}
	return released, nil
}

// Restock adds goods received (or granted balance) to a resource.
func (l *ResourceLedger) Restock(ctx context.Context, id ResourceID, amount Amount, reason string) (Movement, error) {
	if !amount.IsPositive() {
		return Movement{}, fmt.Errorf("%w: restock of %s must be positive", ErrInvalidAmount, amount)
	}
	mv, err := l.Store.Restock(ctx, id, amount, reason)
	if err != nil {
		return Movement{}, err
	}
	l.Log.Info().Str("resource", string(id)).Str("amount", amount.Value.String()).Msg("restocked")
	return mv, nil
}

// Balance returns the current on-hand amount of a resource.
func (l *ResourceLedger) Balance(ctx context.Context, id ResourceID) (Amount, error) {
	res, err := l.Store.GetResource(ctx, id)
	if err != nil {
		return Amount{}, err
	}
	return res.OnHand, nil
}
