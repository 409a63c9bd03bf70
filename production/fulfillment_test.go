package production_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/production"
)

// =============================================================================
// PARTIAL INVOICING
// =============================================================================

// TestRecordInvoice_PartialInvoicingScenario walks an order of 2640 cores
// through four partial invoices when the global invoice counter is at 35.
func TestRecordInvoice_PartialInvoicingScenario(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	require.NoError(t, store.SetSequence(ctx, "invoice", 35))

	o := createOrder(t, svc, 2640)
	advance(t, svc, o.ID, production.StageDelivery)

	steps := []struct {
		qty       int
		number    string
		remaining int
		state     production.InvoiceStateKind
	}{
		{1000, "INV-0036", 1640, production.PartiallyInvoiced},
		{500, "INV-0036~2", 1140, production.PartiallyInvoiced},
		{640, "INV-0036~3", 500, production.PartiallyInvoiced},
		{500, "INV-0036~4", 0, production.FullyInvoiced},
	}

	for _, step := range steps {
		res, err := invoice(svc, o.ID, step.qty, "")
		require.NoError(t, err)
		assert.Equal(t, step.number, res.Invoice.InvoiceNumber)
		assert.Equal(t, step.qty, res.Invoice.QuantityInvoiced)
		assert.Equal(t, step.remaining, res.Order.RemainingQuantity())
		assert.Equal(t, step.state, res.State.Kind)
	}

	// THEN: The ledger moved the order on by itself
	got, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, production.StageAccountingTransaction, got.CurrentStage)
	assert.Equal(t, "INV-0036", got.BaseInvoiceNumber)
	assert.True(t, got.InvoiceState().FullyInvoiced())
	assert.Len(t, got.InvoiceHistory, 4)

	last := got.StageHistory[len(got.StageHistory)-1]
	assert.Equal(t, production.StageDelivery, last.From)
	assert.Equal(t, production.StageAccountingTransaction, last.To)

	// AND: The next order starts a new base number
	other := createOrder(t, svc, 10)
	advance(t, svc, other.ID, production.StageDelivery)
	res, err := invoice(svc, other.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-0037", res.Invoice.InvoiceNumber)
}

func TestRecordInvoice_Totals(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)

	o := createOrder(t, svc, 2640)
	advance(t, svc, o.ID, production.StageInvoicing)

	res, err := invoice(svc, o.ID, 1000, "")
	require.NoError(t, err)

	// 1000 x 0.85 = 850.00, GST 15% = 127.50
	assert.True(t, res.Invoice.Subtotal.Equal(decimal.NewFromInt(850)))
	assert.True(t, res.Invoice.GST.Equal(decimal.RequireFromString("127.50")))
	assert.True(t, res.Invoice.TotalAmount.Equal(decimal.RequireFromString("977.50")))
	require.Len(t, res.Invoice.Lines, 1)
	assert.Equal(t, "76mm core", res.Invoice.Lines[0].ProductName)
	assert.Equal(t, "accounts", res.Invoice.CreatedBy)
}

func TestRecordInvoice_OverInvoiceNotApplied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)

	o := createOrder(t, svc, 2640)
	advance(t, svc, o.ID, production.StageDelivery)
	_, err := invoice(svc, o.ID, 2000, "")
	require.NoError(t, err)

	// WHEN: Invoicing more than the remaining 640
	_, err = invoice(svc, o.ID, 700, "")

	// THEN: Refused with the numbers, nothing appended
	var over *production.OverInvoiceError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, 700, over.Requested)
	assert.Equal(t, 640, over.Remaining)
	assert.Equal(t, "core-76", over.ProductID)

	got, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.InvoiceHistory, 1)
	assert.Equal(t, 640, got.RemainingQuantity())

	// AND: The refused call consumed no suffix
	res, err := invoice(svc, o.ID, 640, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-0001~2", res.Invoice.InvoiceNumber)
}

func TestRecordInvoice_UnknownProductAndBadInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	o := createOrder(t, svc, 100)
	advance(t, svc, o.ID, production.StageDelivery)

	_, err := svc.RecordInvoice(ctx, production.InvoiceRequest{
		OrderID: o.ID,
		Items:   []production.InvoiceItem{{ProductID: "core-152", Quantity: 1}},
	})
	assert.ErrorIs(t, err, production.ErrInvalidInvoice)

	_, err = invoice(svc, o.ID, 0, "")
	assert.ErrorIs(t, err, production.ErrInvalidInvoice)

	_, err = svc.RecordInvoice(ctx, production.InvoiceRequest{OrderID: o.ID, Type: "proforma"})
	assert.ErrorIs(t, err, production.ErrInvalidInvoice)

	_, err = invoice(svc, "missing", 1, "")
	assert.ErrorIs(t, err, production.ErrOrderNotFound)
}

func TestRecordInvoice_OnlyInInvoiceableStages(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	o := createOrder(t, svc, 100)
	advance(t, svc, o.ID, production.StageFinishing)

	_, err := invoice(svc, o.ID, 10, "")
	assert.ErrorIs(t, err, production.ErrNotInvoiceable)
}

// =============================================================================
// FULL INVOICES
// =============================================================================

func TestRecordInvoice_FullCoversRemaining(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	o := createOrder(t, svc, 2640)
	advance(t, svc, o.ID, production.StageDelivery)

	_, err := invoice(svc, o.ID, 1000, "")
	require.NoError(t, err)

	// WHEN: A full invoice without items
	res, err := svc.RecordInvoice(ctx, production.InvoiceRequest{OrderID: o.ID, Type: production.InvoiceFull, Actor: "accounts"})

	// THEN: It takes exactly what remained and completes the order
	require.NoError(t, err)
	assert.Equal(t, production.InvoiceFull, res.Invoice.Type)
	assert.Equal(t, 1640, res.Invoice.QuantityInvoiced)
	assert.Equal(t, "INV-0001~2", res.Invoice.InvoiceNumber)
	assert.True(t, res.State.FullyInvoiced())
	assert.Equal(t, production.StageAccountingTransaction, res.Order.CurrentStage)
}

func TestRecordInvoice_FullMustExhaustRemaining(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	o := createOrder(t, svc, 100)
	advance(t, svc, o.ID, production.StageDelivery)

	_, err := svc.RecordInvoice(ctx, production.InvoiceRequest{
		OrderID: o.ID,
		Type:    production.InvoiceFull,
		Items:   []production.InvoiceItem{{ProductID: "core-76", Quantity: 60}},
	})
	assert.ErrorIs(t, err, production.ErrInvalidInvoice)
}

// =============================================================================
// IDEMPOTENCY AND CONCURRENCY
// =============================================================================

func TestRecordInvoice_TokenReplaysStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	o := createOrder(t, svc, 2640)
	advance(t, svc, o.ID, production.StageDelivery)

	first, err := invoice(svc, o.ID, 1000, "retry-me")
	require.NoError(t, err)

	// WHEN: The client retries with the same token
	second, err := invoice(svc, o.ID, 1000, "retry-me")

	// THEN: Same record, nothing written
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Equal(t, first.Invoice.InvoiceNumber, second.Invoice.InvoiceNumber)

	got, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.InvoiceHistory, 1)
	assert.Equal(t, 1640, got.RemainingQuantity())
}

func TestRecordInvoice_ConcurrentCallsSerialize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	seedReel(t, store, 100)
	o := createOrder(t, svc, 1000)
	advance(t, svc, o.ID, production.StageDelivery)

	// WHEN: 12 callers each invoice 100 of 1000 at once
	var wg sync.WaitGroup
	var mu sync.Mutex
	var numbers []string
	refused := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := invoice(svc, o.ID, 100, fmt.Sprintf("tok-%d", i))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, production.IsConflict(err), "unexpected error: %v", err)
				refused++
				return
			}
			numbers = append(numbers, res.Invoice.InvoiceNumber)
		}(i)
	}
	wg.Wait()

	// THEN: Exactly ten land, with gap-free unique suffixes
	assert.Equal(t, 2, refused)
	require.Len(t, numbers, 10)
	expected := []string{"INV-0001"}
	for k := 2; k <= 10; k++ {
		expected = append(expected, fmt.Sprintf("INV-0001~%d", k))
	}
	assert.ElementsMatch(t, expected, numbers)

	got, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingQuantity())
	assert.Equal(t, production.StageAccountingTransaction, got.CurrentStage)
	for i, inv := range got.InvoiceHistory {
		assert.Equal(t, i+1, inv.Sequence)
	}
}
