/*
Package generic provides the core shared-resource engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for managing
  finite shared resources and one-shot approvals. Whether tracking paper
  reels on the shop floor or an employee's annual leave balance, the same
  engine handles atomic check-and-decrement, release, and audit history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 120 kg, 5 days, 37.5 hours)
  - Resource: A counter entry (stock on hand, leave balance)
  - AllocationKey: Idempotency key for one logical allocation (owner + purpose)
  - Movement: An immutable audit row recording a counter change

DESIGN PRINCIPLES:
  1. Counters never go negative: decrements are conditional, never read-then-write
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing resource/entity IDs
  4. Auditability: Every counter change has a movement with a reason and key

USAGE:
  amount := generic.NewAmount(250, generic.UnitKilograms)
  alloc, err := ledger.TryDecrement(ctx, "reel-90gsm", amount,
      generic.AllocationKey{OwnerID: orderID, Purpose: "paper_slitting"})

SEE ALSO:
  - resource.go: ResourceLedger and the resource type registry
  - approval.go: ApprovalGuard
  - store.go: Persistence interfaces
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitKilograms Unit = "kg"
	UnitPieces    Unit = "pieces"
	UnitMetres    Unit = "m"
	UnitDays      Unit = "days"
	UnitHours     Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Value.String(), a.Unit)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID string
type EntityID string
type MovementID string

// ResourceType identifies what kind of counter is being tracked.
// This is an interface so domain packages define their own concrete types.
// The generic package has NO knowledge of specific resource types.
//
// Domain packages implement this:
//
//	// In production/types.go
//	type Material string
//	func (m Material) ResourceID() string     { return string(m) }
//	func (m Material) ResourceDomain() string { return "production" }
//	const MaterialPaperReel Material = "paper_reel"
type ResourceType interface {
	// ResourceID returns the unique identifier for this resource type.
	ResourceID() string

	// ResourceDomain returns which domain this resource belongs to.
	ResourceDomain() string
}

// =============================================================================
// RESOURCE - A guarded counter
// =============================================================================

// Resource is one ledger entry: a stock item or a leave balance.
// OnHand is only ever changed through a ResourceStore conditional update.
type Resource struct {
	ID           ResourceID
	Type         ResourceType
	Name         string
	OwnerID      EntityID // employee for leave balances, empty for shared stock
	OnHand       Amount
	ReorderLevel Amount
	UpdatedAt    time.Time
}

// BelowReorderLevel reports whether on-hand stock has dropped to the reorder level.
func (r Resource) BelowReorderLevel() bool {
	if r.ReorderLevel.IsZero() {
		return false
	}
	return !r.OnHand.GreaterThan(r.ReorderLevel)
}

// AllocationKey identifies one logical allocation. A resource is decremented
// at most once per key; for orders the key is (order id, stage).
type AllocationKey struct {
	OwnerID string
	Purpose string
}

func (k AllocationKey) String() string {
	return k.OwnerID + "/" + k.Purpose
}

func (k AllocationKey) IsZero() bool {
	return k.OwnerID == "" && k.Purpose == ""
}

// =============================================================================
// MOVEMENT - Immutable audit of a counter change
// =============================================================================

type MovementType string

const (
	MovementAllocation MovementType = "allocation" // check-and-decrement
	MovementRelease    MovementType = "release"    // inverse of an allocation
	MovementRestock    MovementType = "restock"    // goods received, balance granted
)

type Movement struct {
	ID         MovementID
	ResourceID ResourceID
	Type       MovementType
	Key        AllocationKey
	Delta      Amount // negative for allocations
	Remaining  Amount // on-hand after this movement
	Released   bool   // allocations only: a release has been recorded against it
	Reason     string
	CreatedAt  time.Time
}

// Allocation is the result of a successful TryDecrement.
type Allocation struct {
	Movement  Movement
	Remaining Amount

	// Replayed is true when the key had already been allocated and no new
	// decrement happened.
	Replayed bool
}
