/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Order lifecycle over HTTP (create, transition, invoice, archive)
- Error mapping (400 / 404 / 409 with the current state)
- Idempotency-Key replay for invoices and approvals
- Leave and timesheet approval flows
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
	"github.com/warp/fulfillment-engine/store/sqlite"
)

func setupTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	ledger := generic.NewResourceLedger(store, log)
	guard := generic.NewApprovalGuard(store, store, log)
	prod := production.NewService(store, ledger, guard, production.DefaultInvoiceConfig(), log)
	staff := staffing.NewService(store, ledger, guard, nil, log)

	h := NewHandler(store, prod, staff, log)
	return h, NewRouter(h, nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createReel(t *testing.T, router http.Handler, onHand int) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/resources", map[string]any{
		"id": "reel-90gsm", "type": "paper_reel", "name": "90gsm kraft reel", "unit": "kg", "on_hand": onHand,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func createOrder(t *testing.T, router http.Handler, quantity int) OrderDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/orders", map[string]any{
		"client_id":   "acme",
		"client_name": "Acme Tubes",
		"items": []map[string]any{
			{"product_id": "core-76", "product_name": "76mm core", "quantity": quantity, "unit_price": "0.85"},
		},
		"materials": []map[string]any{{"resource_id": "reel-90gsm", "quantity": 40}},
		"actor":     "sam",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[OrderDTO](t, rec)
}

func transition(t *testing.T, router http.Handler, id, from, to string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, http.MethodPost, "/api/orders/"+id+"/transition", map[string]string{
		"from_stage": from, "to_stage": to, "actor": "floor",
	})
}

func advanceToDelivery(t *testing.T, router http.Handler, id string) {
	t.Helper()
	path := []string{"order_entered", "paper_slitting", "winding", "finishing", "delivery"}
	for i := 0; i+1 < len(path); i++ {
		rec := transition(t, router, id, path[i], path[i+1])
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// ORDERS
// =============================================================================

func TestOrderLifecycle_OverHTTP(t *testing.T) {
	// GIVEN: 100kg of reel and an order that needs 40kg
	_, router := setupTestHandler(t)
	createReel(t, router, 100)
	o := createOrder(t, router, 2640)

	assert.Equal(t, "ACME-0001", o.OrderNumber)
	assert.Equal(t, "order_entered", o.CurrentStage)
	assert.Equal(t, []string{"pending_material", "paper_slitting"}, o.NextStages)
	assert.Equal(t, "not_invoiced", o.InvoiceState.Kind)
	assert.Equal(t, 2640, o.RemainingQuantity)

	// WHEN: The order enters paper_slitting
	rec := transition(t, router, o.ID, "order_entered", "paper_slitting")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The reel was decremented
	rec = do(t, router, http.MethodGet, "/api/resources/reel-90gsm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reel := decode[ResourceDTO](t, rec)
	assert.True(t, reel.OnHand.Equal(decimal.NewFromInt(60)), reel.OnHand.String())

	rec = do(t, router, http.MethodGet, "/api/resources/reel-90gsm/movements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decode[[]MovementDTO](t, rec)
	require.Len(t, movements, 1)
	assert.Equal(t, "allocation", movements[0].Type)
	assert.Equal(t, o.ID+"/paper_slitting/reel-90gsm", movements[0].AllocationKey)

	// AND: A client still showing order_entered gets 409 with the real stage
	rec = transition(t, router, o.ID, "order_entered", "pending_material")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "paper_slitting", decode[ErrorResponse](t, rec).Current)

	// AND: The order can be listed by stage
	rec = do(t, router, http.MethodGet, "/api/orders?stage=paper_slitting", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]OrderDTO](t, rec), 1)
}

func TestRecordInvoice_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)
	createReel(t, router, 100)
	o := createOrder(t, router, 2640)
	advanceToDelivery(t, router, o.ID)

	body := map[string]any{"items": []map[string]any{{"product_id": "core-76", "quantity": 1000}}}

	// WHEN: The first partial invoice is recorded
	rec := do(t, router, http.MethodPost, "/api/orders/"+o.ID+"/invoices", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[InvoiceResultDTO](t, rec)

	// THEN: Numbered, priced and the order is partially invoiced
	assert.Equal(t, "INV-0001", first.Invoice.InvoiceNumber)
	assert.True(t, first.Invoice.TotalAmount.Equal(decimal.RequireFromString("977.50")))
	assert.Equal(t, "partial", first.State.Kind)
	assert.Equal(t, 1640, first.Order.RemainingQuantity)

	// AND: A retry with the same key replays it
	rec = do(t, router, http.MethodPost, "/api/orders/"+o.ID+"/invoices", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decode[InvoiceResultDTO](t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Invoice.ID, replay.Invoice.ID)

	// AND: Invoicing more than remains is a conflict and appends nothing
	over := map[string]any{"items": []map[string]any{{"product_id": "core-76", "quantity": 2000}}}
	rec = do(t, router, http.MethodPost, "/api/orders/"+o.ID+"/invoices", over)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: A full invoice takes the rest and moves the order to accounting
	rec = do(t, router, http.MethodPost, "/api/orders/"+o.ID+"/invoices", map[string]any{"type": "full"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	full := decode[InvoiceResultDTO](t, rec)
	assert.Equal(t, "INV-0001~2", full.Invoice.InvoiceNumber)
	assert.Equal(t, "complete", full.State.Kind)
	assert.Equal(t, "accounting_transaction", full.Order.CurrentStage)
	assert.Len(t, full.Order.InvoiceHistory, 2)
}

func TestApproveInvoice_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)
	createReel(t, router, 100)
	o := createOrder(t, router, 100)
	advanceToDelivery(t, router, o.ID)

	rec := do(t, router, http.MethodPost, "/api/orders/"+o.ID+"/invoices", map[string]any{"type": "full"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[InvoiceResultDTO](t, rec).Invoice

	// WHEN: Approved, then approved by a second clerk
	rec = do(t, router, http.MethodPost, "/api/invoices/"+inv.ID+"/approve", map[string]string{"actor": "kim"}, "Idempotency-Key", "a-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[InvoiceApprovalDTO](t, rec)
	assert.Equal(t, "approved", approved.Approval.Status)
	assert.Equal(t, "kim", approved.Approval.DecidedBy)
	assert.False(t, approved.Approval.Replayed)

	rec = do(t, router, http.MethodPost, "/api/invoices/"+inv.ID+"/approve", map[string]string{"actor": "lee"}, "Idempotency-Key", "a-2")

	// THEN: The second is refused with the current decision
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "approved", decode[ErrorResponse](t, rec).Current)

	// AND: The first clerk's retry replays
	rec = do(t, router, http.MethodPost, "/api/invoices/"+inv.ID+"/approve", map[string]string{"actor": "kim"}, "Idempotency-Key", "a-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[InvoiceApprovalDTO](t, rec).Approval.Replayed)
}

func TestClearOrder_ArchiveOverHTTP(t *testing.T) {
	h, router := setupTestHandler(t)
	createReel(t, router, 100)
	o := createOrder(t, router, 100)
	advanceToDelivery(t, router, o.ID)

	rec := do(t, router, http.MethodPost, "/api/orders/"+o.ID+"/invoices", map[string]any{"type": "full"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// accounting_transaction -> cleared is requested by the accounting sync
	rec = transition(t, router, o.ID, "accounting_transaction", "cleared")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := decode[OrderDTO](t, rec)
	assert.Equal(t, "cleared", cleared.Status)
	assert.Empty(t, cleared.NextStages)

	rec = do(t, router, http.MethodGet, "/api/orders/"+o.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	archive := decode[ArchiveDTO](t, rec)
	assert.Equal(t, o.ID, archive.OriginalOrderID)
	assert.Equal(t, "ACME-0001", archive.Order.OrderNumber)
	assert.Len(t, archive.Order.InvoiceHistory, 1)

	archives, err := h.Production.ListArchives(context.Background())
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestCancelOrder_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)
	createReel(t, router, 100)
	o := createOrder(t, router, 100)
	require.Equal(t, http.StatusOK, transition(t, router, o.ID, "order_entered", "paper_slitting").Code)

	// WHEN: The order is cancelled
	rec := do(t, router, http.MethodDelete, "/api/orders/"+o.ID+"?actor=sam", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// THEN: It is gone and its reel came back
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/orders/"+o.ID, nil).Code)
	reel := decode[ResourceDTO](t, do(t, router, http.MethodGet, "/api/resources/reel-90gsm", nil))
	assert.True(t, reel.OnHand.Equal(decimal.NewFromInt(100)))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorMapping(t *testing.T) {
	_, router := setupTestHandler(t)
	createReel(t, router, 10)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown order", http.MethodGet, "/api/orders/missing", nil, http.StatusNotFound},
		{"unknown invoice", http.MethodPost, "/api/invoices/missing/approve", nil, http.StatusNotFound},
		{"unknown resource", http.MethodGet, "/api/resources/nope", nil, http.StatusNotFound},
		{"unknown stage filter", http.MethodGet, "/api/orders?stage=shipped", nil, http.StatusBadRequest},
		{"order without items", http.MethodPost, "/api/orders", map[string]any{"client_id": "acme"}, http.StatusBadRequest},
		{"unknown material", http.MethodPost, "/api/orders", map[string]any{
			"client_id": "acme",
			"items":     []map[string]any{{"product_id": "core-76", "quantity": 1, "unit_price": "1"}},
			"materials": []map[string]any{{"resource_id": "reel-999", "quantity": 1, "unit": "kg"}},
		}, http.StatusBadRequest},
		{"unknown resource type", http.MethodPost, "/api/resources", map[string]any{"id": "x", "type": "cardboard", "unit": "kg"}, http.StatusBadRequest},
		{"negative restock", http.MethodPost, "/api/resources/reel-90gsm/restock", map[string]any{"quantity": -5}, http.StatusBadRequest},
		{"missing stages", http.MethodPost, "/api/orders/x/transition", map[string]any{}, http.StatusBadRequest},
		{"unknown scenario", http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestErrorMapping_MalformedBody(t *testing.T) {
	_, router := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[ErrorResponse](t, rec).Error)
}

func TestTransition_InsufficientStockIsConflict(t *testing.T) {
	_, router := setupTestHandler(t)
	createReel(t, router, 30)
	o := createOrder(t, router, 100)

	rec := transition(t, router, o.ID, "order_entered", "paper_slitting")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The order did not move
	got := decode[OrderDTO](t, do(t, router, http.MethodGet, "/api/orders/"+o.ID, nil))
	assert.Equal(t, "order_entered", got.CurrentStage)
}

// =============================================================================
// STAFFING
// =============================================================================

func TestLeaveApproval_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/employees", map[string]any{"id": "emp-1", "name": "Robin Hale", "hourly_rate": "30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/api/employees/emp-1/leave", map[string]any{"type": "annual_leave", "days": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: A Monday to Friday request is submitted and approved
	rec = do(t, router, http.MethodPost, "/api/leave", map[string]any{
		"employee_id": "emp-1", "start": "2026-03-02", "end": "2026-03-06",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	leave := decode[LeaveDTO](t, rec)
	assert.True(t, leave.Days.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "pending", leave.Status)

	rec = do(t, router, http.MethodPost, "/api/leave/"+leave.ID+"/approve", map[string]string{"actor": "mgr"}, "Idempotency-Key", "click-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decode[LeaveDecisionDTO](t, rec).Leave.Status)

	// THEN: The balance was charged once
	rec = do(t, router, http.MethodGet, "/api/resources/annual_leave:emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[ResourceDTO](t, rec).OnHand.Equal(decimal.NewFromInt(5)))

	// AND: A reject after approval conflicts
	rec = do(t, router, http.MethodPost, "/api/leave/"+leave.ID+"/reject", map[string]string{"actor": "hr", "reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/employees/emp-1/leave", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LeaveDTO](t, rec), 1)

	// AND: Bad dates are rejected before reaching the service
	rec = do(t, router, http.MethodPost, "/api/leave", map[string]any{"employee_id": "emp-1", "start": "02/03/2026", "end": "2026-03-06"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimesheetApproval_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/employees", map[string]any{"id": "emp-1", "name": "Robin Hale", "hourly_rate": "25"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/timesheets", map[string]any{"employee_id": "emp-1", "week_start": "2026-03-02", "hours": 40})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ts := decode[TimesheetDTO](t, rec)

	// WHEN: Approved
	rec = do(t, router, http.MethodPost, "/api/timesheets/"+ts.ID+"/approve", map[string]string{"actor": "mgr"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decode[TimesheetDecisionDTO](t, rec)

	// THEN: One payslip of 40 x 25
	assert.Equal(t, "approved", decision.Timesheet.Status)
	require.NotNil(t, decision.Payslip)
	assert.True(t, decision.Payslip.Gross.Equal(decimal.NewFromInt(1000)))

	rec = do(t, router, http.MethodGet, "/api/employees/emp-1/payslips", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PayslipDTO](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/timesheets/"+ts.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decode[TimesheetDTO](t, rec).Status)
}
