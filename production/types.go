/*
Package production implements paper-core order fulfillment.

PURPOSE:
  An order moves through a fixed production pipeline, consumes raw material
  when slitting starts, is invoiced in one or more partial invoices against
  its fixed ordered quantity, and is archived when it clears accounting.

PIPELINE:
  order_entered ──▶ pending_material ──▶ paper_slitting ──▶ winding
        │                                     ▲
        └─────────────────────────────────────┘
  winding ──▶ finishing ──▶ delivery ──▶ invoicing
                               │            │
                               └─────┬──────┘
                                     ▼ (fully invoiced only)
                          accounting_transaction ──▶ cleared (archived)

KEY CONCEPTS IN THIS FILE (types.go):
  - Material: Registered resource types consumed by production
  - Stage: One step of the pipeline
  - Order: The live order, its items and invoice history
  - InvoiceRecord: One append-only invoice against an order
  - InvoiceState: Derived NotInvoiced | Partial(remaining) | Complete

SEE ALSO:
  - stages.go: Transition table and StageMachine
  - fulfillment.go: FulfillmentLedger (partial invoicing)
  - archive.go: ArchiveWriter
  - service.go: Service facade used by the API
*/
package production

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// MATERIALS - Resource types consumed on the shop floor
// =============================================================================

// Material implements generic.ResourceType for production stock.
type Material string

const (
	MaterialPaperReel Material = "paper_reel"
	MaterialCoreBoard Material = "core_board"
	MaterialGlue      Material = "glue"
)

func (m Material) ResourceID() string     { return string(m) }
func (m Material) ResourceDomain() string { return "production" }

func init() {
	generic.RegisterResource(MaterialPaperReel)
	generic.RegisterResource(MaterialCoreBoard)
	generic.RegisterResource(MaterialGlue)
}

// =============================================================================
// STAGES
// =============================================================================

type Stage string

const (
	StageOrderEntered          Stage = "order_entered"
	StagePendingMaterial       Stage = "pending_material"
	StagePaperSlitting         Stage = "paper_slitting"
	StageWinding               Stage = "winding"
	StageFinishing             Stage = "finishing"
	StageDelivery              Stage = "delivery"
	StageInvoicing             Stage = "invoicing"
	StageAccountingTransaction Stage = "accounting_transaction"
	StageCleared               Stage = "cleared"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageOrderEntered,
	StagePendingMaterial,
	StagePaperSlitting,
	StageWinding,
	StageFinishing,
	StageDelivery,
	StageInvoicing,
	StageAccountingTransaction,
	StageCleared,
}

func (s Stage) Valid() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

// Invoiceable reports whether invoices may be recorded while an order sits in s.
func (s Stage) Invoiceable() bool {
	return s == StageDelivery || s == StageInvoicing
}

type OrderStatus string

const (
	OrderActive  OrderStatus = "active"
	OrderCleared OrderStatus = "cleared"
)

// =============================================================================
// ORDER
// =============================================================================

type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// MaterialRequirement is stock taken from the ResourceLedger when the
// order enters paper_slitting.
type MaterialRequirement struct {
	ResourceID generic.ResourceID
	Quantity   generic.Amount
}

// StageEvent records one committed transition.
type StageEvent struct {
	From  Stage
	To    Stage
	At    time.Time
	Actor string
}

type Order struct {
	ID                string
	OrderNumber       string
	ClientID          string
	ClientName        string
	CurrentStage      Stage
	Status            OrderStatus
	Items             []OrderItem
	Materials         []MaterialRequirement
	InvoiceHistory    []InvoiceRecord
	BaseInvoiceNumber string
	JobSequence       int
	StageHistory      []StageEvent
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Version is bumped on every update and checked by the store.
	Version int
}

// OrderedQuantity is the authoritative quantity across all item lines.
func (o *Order) OrderedQuantity() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

func (o *Order) InvoicedQuantity() int {
	total := 0
	for _, inv := range o.InvoiceHistory {
		total += inv.QuantityInvoiced
	}
	return total
}

// RemainingQuantity is ordered minus invoiced.
func (o *Order) RemainingQuantity() int {
	return o.OrderedQuantity() - o.InvoicedQuantity()
}

// RemainingByProduct returns the quantity left to invoice per product id.
func (o *Order) RemainingByProduct() map[string]int {
	remaining := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		remaining[it.ProductID] += it.Quantity
	}
	for _, inv := range o.InvoiceHistory {
		for _, l := range inv.Lines {
			remaining[l.ProductID] -= l.Quantity
		}
	}
	return remaining
}

// InvoiceState derives the invoicing state from the history. It is the only
// source of the partially/fully invoiced flags.
func (o *Order) InvoiceState() InvoiceState {
	if len(o.InvoiceHistory) == 0 {
		return InvoiceState{Kind: NotInvoiced, Remaining: o.OrderedQuantity()}
	}
	remaining := o.RemainingQuantity()
	if remaining <= 0 {
		return InvoiceState{Kind: FullyInvoiced}
	}
	return InvoiceState{Kind: PartiallyInvoiced, Remaining: remaining}
}

// Frozen orders have been archived and accept no further mutation.
func (o *Order) Frozen() bool {
	return o.Status == OrderCleared
}

// Clone returns a deep copy. Archives are built from clones so later
// changes to the live order never leak into the snapshot.
func (o *Order) Clone() Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.Materials = append([]MaterialRequirement(nil), o.Materials...)
	c.StageHistory = append([]StageEvent(nil), o.StageHistory...)
	c.InvoiceHistory = make([]InvoiceRecord, len(o.InvoiceHistory))
	for i, inv := range o.InvoiceHistory {
		inv.Lines = append([]InvoiceLine(nil), inv.Lines...)
		c.InvoiceHistory[i] = inv
	}
	if o.InvoiceHistory == nil {
		c.InvoiceHistory = nil
	}
	return c
}

// =============================================================================
// INVOICE STATE - Tagged variant, never three independent booleans
// =============================================================================

type InvoiceStateKind string

const (
	NotInvoiced       InvoiceStateKind = "not_invoiced"
	PartiallyInvoiced InvoiceStateKind = "partial"
	FullyInvoiced     InvoiceStateKind = "complete"
)

type InvoiceState struct {
	Kind InvoiceStateKind

	// Remaining is only meaningful for NotInvoiced and PartiallyInvoiced.
	Remaining int
}

func (s InvoiceState) PartiallyInvoiced() bool { return s.Kind == PartiallyInvoiced }
func (s InvoiceState) FullyInvoiced() bool     { return s.Kind == FullyInvoiced }
func (s InvoiceState) Invoiced() bool          { return s.Kind != NotInvoiced }

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceType string

const (
	InvoicePartial InvoiceType = "partial"
	InvoiceFull    InvoiceType = "full"
)

type InvoiceLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// InvoiceRecord is append-only: created once, never mutated or deleted.
type InvoiceRecord struct {
	ID               string
	OrderID          string
	InvoiceNumber    string
	Sequence         int // k in INV-NNNN~k, 1 for the base invoice
	Type             InvoiceType
	Lines            []InvoiceLine
	QuantityInvoiced int
	Subtotal         decimal.Decimal
	GST              decimal.Decimal
	TotalAmount      decimal.Decimal
	IdempotencyToken string
	CreatedBy        string
	CreatedAt        time.Time
}

// ApprovalKindInvoice tags approval records opened for invoices.
const ApprovalKindInvoice generic.ApprovalKind = "invoice"

// =============================================================================
// ARCHIVE
// =============================================================================

// ArchivedOrder is the immutable snapshot written when an order clears.
type ArchivedOrder struct {
	ID              string
	OriginalOrderID string
	Order           Order
	ArchivedAt      time.Time
	ArchivedBy      string
}

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	Stage    Stage
	Status   OrderStatus
	ClientID string
}
