/*
handlers.go - HTTP API handlers for the fulfillment engine

PURPOSE:
  Exposes the fulfillment engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the production and staffing services.

ENDPOINTS:
  Orders:
    POST   /api/orders                      Create order (order_entered)
    GET    /api/orders                      List (?stage=&status=&client_id=)
    GET    /api/orders/{id}                 Order with invoice state
    DELETE /api/orders/{id}                 Cancel (releases stock)
    POST   /api/orders/{id}/transition      Move stage {from_stage, to_stage}
    PUT    /api/orders/{id}/sequence        Manual job order within a stage
    POST   /api/orders/{id}/invoices        Record partial/full invoice
    GET    /api/orders/{id}/archive         Archive of a cleared order

  Invoices and archives:
    GET    /api/invoices/{id}
    POST   /api/invoices/{id}/approve       Exactly-once approval
    GET    /api/archives

  Resources:
    GET    /api/resources                   (?domain=&low=true)
    POST   /api/resources
    GET    /api/resources/{id}
    POST   /api/resources/{id}/restock
    GET    /api/resources/{id}/movements

  Staffing:
    GET    /api/employees
    POST   /api/employees
    POST   /api/employees/{id}/leave        Grant leave balance
    GET    /api/employees/{id}/leave        Leave requests
    GET    /api/employees/{id}/payslips
    POST   /api/leave, GET /api/leave/{id}, POST /api/leave/{id}/approve|reject
    POST   /api/timesheets, GET /api/timesheets/{id},
    POST   /api/timesheets/{id}/approve|reject

IDEMPOTENCY:
  The Idempotency-Key header (or idempotency_token in the body) is passed as
  the invoice token or the approval decision token. A retry with the same
  key returns the stored result with "replayed": true.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Order, invoice, resource, employee or request not found
  - 409: Stale stage, over-invoice, insufficient stock, already applied,
         transition not allowed, frozen order
  - 500: Internal errors (including archive failures)

SECURITY NOTE:
  Currently NO authentication or authorization. The actor recorded on
  transitions and approvals is whatever the client sends.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/fulfillment-engine/factory"
	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
	"github.com/warp/fulfillment-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Production *production.Service
	Staffing   *staffing.Service
	Seeder     *factory.Seeder
	Log        zerolog.Logger

	// mu serializes scenario loads and resets.
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given store and services.
func NewHandler(store *sqlite.Store, prod *production.Service, staff *staffing.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      store,
		Production: prod,
		Staffing:   staff,
		Seeder:     factory.NewSeeder(prod, staff, log),
		Log:        log,
	}
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// CreateOrder creates an order in order_entered.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := production.CreateOrderInput{
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Notes:      req.Notes,
		Actor:      actorOr(req.Actor),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, production.OrderItemInput{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	for _, m := range req.Materials {
		unit := generic.Unit(m.Unit)
		if unit == "" {
			// Unknown resources are reported by the service.
			if res, err := h.Store.GetResource(r.Context(), generic.ResourceID(m.ResourceID)); err == nil {
				unit = res.OnHand.Unit
			}
		}
		in.Materials = append(in.Materials, production.MaterialRequirement{
			ResourceID: generic.ResourceID(m.ResourceID),
			Quantity:   generic.NewAmountFromDecimal(m.Quantity, unit),
		})
	}

	o, err := h.Production.CreateOrder(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

// ListOrders returns live orders, optionally filtered.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := production.OrderFilter{
		Stage:    production.Stage(q.Get("stage")),
		Status:   production.OrderStatus(q.Get("status")),
		ClientID: q.Get("client_id"),
	}
	if filter.Stage != "" && !filter.Stage.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown stage", nil)
		return
	}

	orders, err := h.Production.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i := range orders {
		dtos[i] = toOrderDTO(&orders[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Production.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// CancelOrder deletes a live order and releases the stock it took.
// DELETE /api/orders/{id}?actor=
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Production.CancelOrder(r.Context(), id, actorOr(r.URL.Query().Get("actor"))); err != nil {
		writeDomainError(w, "Failed to cancel order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionOrder moves an order from the stage the client saw to the next.
// POST /api/orders/{id}/transition
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FromStage == "" || req.ToStage == "" {
		writeError(w, http.StatusBadRequest, "from_stage and to_stage are required", nil)
		return
	}

	o, err := h.Production.TransitionStage(r.Context(), chi.URLParam(r, "id"),
		production.Stage(req.FromStage), production.Stage(req.ToStage), actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to transition order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// ReorderOrder sets the manual job sequence of an order within its stage.
// PUT /api/orders/{id}/sequence
func (h *Handler) ReorderOrder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.Production.Reorder(r.Context(), chi.URLParam(r, "id"), production.Stage(req.Stage), req.Sequence)
	if err != nil {
		writeDomainError(w, "Failed to reorder", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// RecordInvoice appends a partial or full invoice to an order.
// POST /api/orders/{id}/invoices
func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	var req RecordInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	invReq := production.InvoiceRequest{
		OrderID:          chi.URLParam(r, "id"),
		Type:             production.InvoiceType(req.Type),
		IdempotencyToken: idempotencyToken(r, req.IdempotencyToken),
		Actor:            actorOr(req.Actor),
	}
	for _, it := range req.Items {
		invReq.Items = append(invReq.Items, production.InvoiceItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	res, err := h.Production.RecordInvoice(r.Context(), invReq)
	if err != nil {
		writeDomainError(w, "Failed to record invoice", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, InvoiceResultDTO{
		Invoice:  toInvoiceDTO(res.Invoice),
		Order:    toOrderDTO(res.Order),
		State:    InvoiceStateDTO{Kind: string(res.State.Kind), Remaining: res.State.Remaining},
		Replayed: res.Replayed,
	})
}

// GetOrderArchive returns the archive written when the order cleared.
func (h *Handler) GetOrderArchive(w http.ResponseWriter, r *http.Request) {
	a, err := h.Production.GetArchiveByOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get archive", err)
		return
	}
	writeJSON(w, http.StatusOK, toArchiveDTO(a))
}

// =============================================================================
// INVOICE AND ARCHIVE HANDLERS
// =============================================================================

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Production.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// ApproveInvoice approves an invoice for accounting exactly once.
// POST /api/invoices/{id}/approve
func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	inv, res, err := h.Production.ApproveInvoice(r.Context(), chi.URLParam(r, "id"),
		actorOr(req.Actor), idempotencyToken(r, req.IdempotencyToken))
	if err != nil {
		writeDomainError(w, "Failed to approve invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceApprovalDTO{
		Invoice:  toInvoiceDTO(*inv),
		Approval: toApprovalDTO(res),
	})
}

func (h *Handler) ListArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.Production.ListArchives(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list archives", err)
		return
	}
	dtos := make([]ArchiveDTO, len(archives))
	for i := range archives {
		dtos[i] = toArchiveDTO(&archives[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// ListResources returns ledger entries. ?domain=production narrows to stock,
// ?low=true to entries at or below their reorder level.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.Store.ListResources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list resources", err)
		return
	}

	domain := r.URL.Query().Get("domain")
	lowOnly := r.URL.Query().Get("low") == "true"

	dtos := []ResourceDTO{}
	for _, res := range resources {
		if domain != "" && (res.Type == nil || res.Type.ResourceDomain() != domain) {
			continue
		}
		if lowOnly && !res.BelowReorderLevel() {
			continue
		}
		dtos = append(dtos, toResourceDTO(res))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.Store.GetResource(r.Context(), generic.ResourceID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get resource", err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(*res))
}

// CreateResource defines a stock item. Redefining an existing id keeps its
// on-hand quantity; use restock to add stock.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req CreateResourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Unit == "" {
		writeError(w, http.StatusBadRequest, "id and unit are required", nil)
		return
	}
	resourceType := generic.LookupResource(req.Type)
	if resourceType == nil {
		writeError(w, http.StatusBadRequest, "Unknown resource type: "+req.Type, nil)
		return
	}

	unit := generic.Unit(req.Unit)
	res := generic.Resource{
		ID:           generic.ResourceID(req.ID),
		Type:         resourceType,
		Name:         req.Name,
		OnHand:       generic.NewAmountFromDecimal(req.OnHand, unit),
		ReorderLevel: generic.NewAmountFromDecimal(req.ReorderLevel, unit),
	}
	if err := h.Store.SaveResource(r.Context(), res); err != nil {
		writeDomainError(w, "Failed to save resource", err)
		return
	}

	saved, err := h.Store.GetResource(r.Context(), res.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceDTO(*saved))
}

// RestockResource records goods received.
// POST /api/resources/{id}/restock
func (h *Handler) RestockResource(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := generic.ResourceID(chi.URLParam(r, "id"))

	res, err := h.Store.GetResource(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get resource", err)
		return
	}

	mv, err := h.Production.Ledger.Restock(ctx, id, generic.NewAmountFromDecimal(req.Quantity, res.OnHand.Unit), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to restock", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(mv))
}

// ListMovements returns the audit trail of one resource.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.ResourceID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetResource(ctx, id); err != nil {
		writeDomainError(w, "Failed to get resource", err)
		return
	}
	movements, err := h.Store.Movements(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}

	dtos := make([]MovementDTO, len(movements))
	for i, mv := range movements {
		dtos[i] = toMovementDTO(mv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Staffing.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	emp := staffing.Employee{
		ID:         req.ID,
		Name:       req.Name,
		Email:      req.Email,
		HourlyRate: req.HourlyRate,
	}
	if err := h.Staffing.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GrantLeave credits days to an employee's leave balance.
// POST /api/employees/{id}/leave
func (h *Handler) GrantLeave(w http.ResponseWriter, r *http.Request) {
	var req GrantLeaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	leave, ok := parseLeaveType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown leave type: "+req.Type, nil)
		return
	}

	mv, err := h.Staffing.GrantLeave(r.Context(), chi.URLParam(r, "id"), leave, req.Days, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to grant leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(mv))
}

func (h *Handler) ListEmployeeLeave(w http.ResponseWriter, r *http.Request) {
	list, err := h.Staffing.ListLeave(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to list leave", err)
		return
	}
	dtos := make([]LeaveDTO, len(list))
	for i := range list {
		dtos[i] = toLeaveDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListPayslips(w http.ResponseWriter, r *http.Request) {
	slips, err := h.Staffing.ListPayslips(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to list payslips", err)
		return
	}
	dtos := make([]PayslipDTO, len(slips))
	for i, p := range slips {
		dtos[i] = toPayslipDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// SubmitLeave records a pending leave request.
// POST /api/leave
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	leave, ok := parseLeaveType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown leave type: "+req.Type, nil)
		return
	}
	start, err := time.Parse(dateLayout, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse(dateLayout, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end format (use YYYY-MM-DD)", err)
		return
	}

	l, err := h.Staffing.SubmitLeave(r.Context(), staffing.LeaveInput{
		EmployeeID: req.EmployeeID,
		Type:       leave,
		Start:      start,
		End:        end,
		Reason:     req.Reason,
	})
	if err != nil {
		writeDomainError(w, "Failed to submit leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(l))
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	l, err := h.Staffing.GetLeave(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get leave request", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, res, err := h.Staffing.ApproveLeave(r.Context(), chi.URLParam(r, "id"),
		actorOr(req.Actor), idempotencyToken(r, req.IdempotencyToken))
	if err != nil {
		writeDomainError(w, "Failed to approve leave", err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveDecisionDTO{Leave: toLeaveDTO(l), Replayed: res.Replayed})
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, res, err := h.Staffing.RejectLeave(r.Context(), chi.URLParam(r, "id"),
		actorOr(req.Actor), req.Reason, idempotencyToken(r, req.IdempotencyToken))
	if err != nil {
		writeDomainError(w, "Failed to reject leave", err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveDecisionDTO{Leave: toLeaveDTO(l), Replayed: res.Replayed})
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

// SubmitTimesheet records a pending timesheet.
// POST /api/timesheets
func (h *Handler) SubmitTimesheet(w http.ResponseWriter, r *http.Request) {
	var req SubmitTimesheetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var weekStart time.Time
	if req.WeekStart != "" {
		var err error
		if weekStart, err = time.Parse(dateLayout, req.WeekStart); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid week_start format (use YYYY-MM-DD)", err)
			return
		}
	}

	ts, err := h.Staffing.SubmitTimesheet(r.Context(), staffing.TimesheetInput{
		EmployeeID: req.EmployeeID,
		WeekStart:  weekStart,
		Hours:      req.Hours,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		writeDomainError(w, "Failed to submit timesheet", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimesheetDTO(ts))
}

func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Staffing.GetTimesheet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get timesheet", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTO(ts))
}

// ApproveTimesheet approves once and issues the payslip. A replayed approval
// returns the timesheet without a payslip.
func (h *Handler) ApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ts, slip, err := h.Staffing.ApproveTimesheet(r.Context(), chi.URLParam(r, "id"),
		actorOr(req.Actor), idempotencyToken(r, req.IdempotencyToken))
	if err != nil {
		writeDomainError(w, "Failed to approve timesheet", err)
		return
	}

	resp := TimesheetDecisionDTO{Timesheet: toTimesheetDTO(ts)}
	if slip != nil {
		dto := toPayslipDTO(*slip)
		resp.Payslip = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RejectTimesheet(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ts, err := h.Staffing.RejectTimesheet(r.Context(), chi.URLParam(r, "id"),
		actorOr(req.Actor), req.Reason, idempotencyToken(r, req.IdempotencyToken))
	if err != nil {
		writeDomainError(w, "Failed to reject timesheet", err)
		return
	}
	writeJSON(w, http.StatusOK, TimesheetDecisionDTO{Timesheet: toTimesheetDTO(ts)})
}

// =============================================================================
// HELPERS
// =============================================================================

const defaultActor = "api"

func actorOr(actor string) string {
	if actor == "" {
		return defaultActor
	}
	return actor
}

// idempotencyToken prefers the Idempotency-Key header over the body field.
func idempotencyToken(r *http.Request, body string) string {
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		return key
	}
	return body
}

func parseLeaveType(s string) (staffing.LeaveType, bool) {
	switch staffing.LeaveType(s) {
	case "":
		return staffing.LeaveAnnual, true
	case staffing.LeaveAnnual, staffing.LeaveSick:
		return staffing.LeaveType(s), true
	}
	return "", false
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst zero.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case production.IsNotFound(err), staffing.IsNotFound(err), errors.Is(err, factory.ErrUnknownScenario):
		return http.StatusNotFound
	case production.IsClientError(err), staffing.IsClientError(err):
		return http.StatusBadRequest
	case production.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status it maps to. Stale-state
// conflicts carry the current value so the client can refetch and retry.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var stale *production.StaleStageError
	var applied *generic.AlreadyAppliedError
	switch {
	case errors.As(err, &stale):
		resp.Current = string(stale.Actual)
	case errors.As(err, &applied):
		resp.Current = string(applied.Current)
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// requestLogger returns the request-scoped logger carrying the chi request id.
func (h *Handler) requestLogger(r *http.Request) zerolog.Logger {
	return h.Log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
}
