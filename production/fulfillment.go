/*
fulfillment.go - Partial invoicing against a fixed ordered quantity

PURPOSE:
  Records invoices against an order and keeps the books consistent:
  invoiced quantity never exceeds ordered quantity, per product line.

INVOICE NUMBERING:
  The first invoice on an order draws the next number from the global
  "invoice" sequence and becomes the base (INV-0036). Every later invoice on
  the same order is base~k where k = len(invoice_history)+1 (INV-0036~2,
  INV-0036~3, ...). k is never taken from the client. Numbers are drawn
  inside the storage transaction, so a rolled back invoice consumes neither
  a sequence number nor a suffix.

COMPLETION:
  After the record is appended the remaining quantity is recomputed. When it
  reaches zero the ledger moves the order to accounting_transaction through
  the StageMachine's internal path, in the same transaction.

IDEMPOTENCY:
  A retried call carries the same token. If one of the last DedupWindow
  records of the order has that token, the stored record is returned and
  nothing is written.

CONCURRENCY:
  Calls on one order serialize on the StageMachine's per-order lock, so the
  second caller sees the first caller's record before computing its own
  suffix and remaining quantity.
*/
package production

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/generic"
)

const invoiceSequence = "invoice"

// =============================================================================
// CONFIGURATION
// =============================================================================

type InvoiceConfig struct {
	Prefix      string
	GSTRate     decimal.Decimal
	DedupWindow int
}

func DefaultInvoiceConfig() InvoiceConfig {
	return InvoiceConfig{
		Prefix:      "INV",
		GSTRate:     decimal.NewFromFloat(0.15),
		DedupWindow: 20,
	}
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

type InvoiceItem struct {
	ProductID string
	Quantity  int
}

type InvoiceRequest struct {
	OrderID string

	// Items may be empty for InvoiceFull, which then covers everything remaining.
	Items            []InvoiceItem
	Type             InvoiceType
	IdempotencyToken string
	Actor            string
}

type InvoiceResult struct {
	Invoice  InvoiceRecord
	Order    *Order
	State    InvoiceState
	Replayed bool
}

// =============================================================================
// FULFILLMENT LEDGER
// =============================================================================

type FulfillmentLedger struct {
	Store   Store
	Machine *StageMachine
	Guard   *generic.ApprovalGuard
	Config  InvoiceConfig
	Log     zerolog.Logger
	Now     func() time.Time
}

func NewFulfillmentLedger(store Store, machine *StageMachine, guard *generic.ApprovalGuard, cfg InvoiceConfig, log zerolog.Logger) *FulfillmentLedger {
	return &FulfillmentLedger{
		Store:   store,
		Machine: machine,
		Guard:   guard,
		Config:  cfg,
		Log:     log,
		Now:     time.Now,
	}
}

// RecordInvoice appends one invoice to the order.
func (f *FulfillmentLedger) RecordInvoice(ctx context.Context, req InvoiceRequest) (InvoiceResult, error) {
	if req.Type == "" {
		req.Type = InvoicePartial
	}
	if err := validateInvoiceRequest(req); err != nil {
		return InvoiceResult{}, err
	}

	unlock, err := f.Machine.locks.Lock(ctx, req.OrderID)
	if err != nil {
		return InvoiceResult{}, err
	}
	defer unlock()

	var result InvoiceResult
	err = f.Store.RunInTx(ctx, func(ctx context.Context) error {
		o, err := f.Store.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}

		if prev, ok := f.findByToken(o, req.IdempotencyToken); ok {
			result = InvoiceResult{Invoice: prev, Order: o, State: o.InvoiceState(), Replayed: true}
			return nil
		}

		if o.Frozen() {
			return fmt.Errorf("%w: %s", ErrOrderFrozen, o.OrderNumber)
		}
		if !o.CurrentStage.Invoiceable() {
			return fmt.Errorf("%w: order %s is in %s", ErrNotInvoiceable, o.OrderNumber, o.CurrentStage)
		}

		lines, quantity, err := buildLines(o, req)
		if err != nil {
			return err
		}

		inv, err := f.newRecord(ctx, o, req, lines, quantity)
		if err != nil {
			return err
		}
		if err := f.Store.AppendInvoice(ctx, inv); err != nil {
			return fmt.Errorf("failed to append invoice %s: %w", inv.InvoiceNumber, err)
		}
		if _, err := f.Guard.Open(ctx, generic.EntityID(inv.ID), ApprovalKindInvoice); err != nil {
			return err
		}
		o.InvoiceHistory = append(o.InvoiceHistory, inv)
		o.UpdatedAt = inv.CreatedAt

		state := o.InvoiceState()
		if state.FullyInvoiced() {
			if err := f.Machine.apply(ctx, o, StageAccountingTransaction, req.Actor); err != nil {
				return err
			}
		} else if err := f.Store.UpdateOrder(ctx, o); err != nil {
			return err
		}

		result = InvoiceResult{Invoice: inv, Order: o, State: state}
		return nil
	})
	if err != nil {
		f.Log.Info().Err(err).Str("order", req.OrderID).Msg("invoice rejected")
		return InvoiceResult{}, err
	}

	if result.Replayed {
		f.Log.Debug().
			Str("order", result.Order.OrderNumber).
			Str("invoice", result.Invoice.InvoiceNumber).
			Msg("invoice replayed")
	} else {
		f.Log.Info().
			Str("order", result.Order.OrderNumber).
			Str("invoice", result.Invoice.InvoiceNumber).
			Int("quantity", result.Invoice.QuantityInvoiced).
			Int("remaining", result.Order.RemainingQuantity()).
			Str("state", string(result.State.Kind)).
			Msg("invoice recorded")
	}
	return result, nil
}

// findByToken looks for token among the last DedupWindow records.
func (f *FulfillmentLedger) findByToken(o *Order, token string) (InvoiceRecord, bool) {
	if token == "" {
		return InvoiceRecord{}, false
	}
	window := f.Config.DedupWindow
	if window <= 0 {
		window = DefaultInvoiceConfig().DedupWindow
	}
	start := len(o.InvoiceHistory) - window
	if start < 0 {
		start = 0
	}
	for i := len(o.InvoiceHistory) - 1; i >= start; i-- {
		if o.InvoiceHistory[i].IdempotencyToken == token {
			return o.InvoiceHistory[i], true
		}
	}
	return InvoiceRecord{}, false
}

func (f *FulfillmentLedger) newRecord(ctx context.Context, o *Order, req InvoiceRequest, lines []InvoiceLine, quantity int) (InvoiceRecord, error) {
	seq := len(o.InvoiceHistory) + 1
	if o.BaseInvoiceNumber == "" {
		n, err := f.Store.NextSequence(ctx, invoiceSequence)
		if err != nil {
			return InvoiceRecord{}, fmt.Errorf("failed to draw invoice number: %w", err)
		}
		o.BaseInvoiceNumber = fmt.Sprintf("%s-%04d", f.prefix(), n)
	}
	number := o.BaseInvoiceNumber
	if seq > 1 {
		number = fmt.Sprintf("%s~%d", o.BaseInvoiceNumber, seq)
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total)
	}
	gst := subtotal.Mul(f.Config.GSTRate).Round(2)

	return InvoiceRecord{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		InvoiceNumber:    number,
		Sequence:         seq,
		Type:             req.Type,
		Lines:            lines,
		QuantityInvoiced: quantity,
		Subtotal:         subtotal,
		GST:              gst,
		TotalAmount:      subtotal.Add(gst),
		IdempotencyToken: req.IdempotencyToken,
		CreatedBy:        req.Actor,
		CreatedAt:        f.now(),
	}, nil
}

func (f *FulfillmentLedger) prefix() string {
	if f.Config.Prefix == "" {
		return DefaultInvoiceConfig().Prefix
	}
	return f.Config.Prefix
}

func (f *FulfillmentLedger) now() time.Time {
	if f.Now == nil {
		return time.Now().UTC()
	}
	return f.Now().UTC()
}

// =============================================================================
// LINE BUILDING
// =============================================================================

func validateInvoiceRequest(req InvoiceRequest) error {
	if req.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidInvoice)
	}
	if req.Type != InvoicePartial && req.Type != InvoiceFull {
		return fmt.Errorf("%w: unknown invoice type %q", ErrInvalidInvoice, req.Type)
	}
	if req.Type == InvoicePartial && len(req.Items) == 0 {
		return fmt.Errorf("%w: a partial invoice needs at least one item", ErrInvalidInvoice)
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: product id is required", ErrInvalidInvoice)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidInvoice, it.ProductID)
		}
	}
	return nil
}

// buildLines turns the request into priced lines in order-item order and
// checks every line against its remaining quantity.
func buildLines(o *Order, req InvoiceRequest) ([]InvoiceLine, int, error) {
	remaining := o.RemainingByProduct()

	requested := make(map[string]int)
	if req.Type == InvoiceFull && len(req.Items) == 0 {
		for id, qty := range remaining {
			if qty > 0 {
				requested[id] = qty
			}
		}
	}
	for _, it := range req.Items {
		if _, ok := remaining[it.ProductID]; !ok {
			return nil, 0, fmt.Errorf("%w: product %s is not on order %s", ErrInvalidInvoice, it.ProductID, o.OrderNumber)
		}
		requested[it.ProductID] += it.Quantity
	}

	var lines []InvoiceLine
	total := 0
	seen := make(map[string]bool)
	for _, item := range o.Items {
		qty, ok := requested[item.ProductID]
		if !ok || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		if qty > remaining[item.ProductID] {
			return nil, 0, &OverInvoiceError{
				OrderID:   o.ID,
				ProductID: item.ProductID,
				Requested: qty,
				Remaining: remaining[item.ProductID],
			}
		}
		lines = append(lines, InvoiceLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    qty,
			UnitPrice:   item.UnitPrice,
			Total:       item.UnitPrice.Mul(decimal.NewFromInt(int64(qty))),
		})
		total += qty
	}

	if total == 0 {
		return nil, 0, &OverInvoiceError{OrderID: o.ID, Requested: 0, Remaining: o.RemainingQuantity()}
	}
	if req.Type == InvoiceFull && total != o.RemainingQuantity() {
		return nil, 0, fmt.Errorf("%w: a full invoice must cover the remaining %d, got %d",
			ErrInvalidInvoice, o.RemainingQuantity(), total)
	}
	return lines, total, nil
}
