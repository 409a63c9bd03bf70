/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - Derived fields (remaining quantity, invoice state) computed once here
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DECIMALS:
  Money and stock quantities are shopspring decimals. They encode as JSON
  strings ("977.5") and decode from either strings or numbers, so clients
  never lose precision to float64.

DATES:
  Timestamps are RFC3339. Calendar dates (leave, timesheet weeks) are
  YYYY-MM-DD.

VALIDATION:
  Validation is done in handlers and services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - production/types.go, staffing/types.go: Domain records
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fulfillment-engine/factory"
	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
)

const dateLayout = "2006-01-02"

// =============================================================================
// ORDERS
// =============================================================================

type OrderItemDTO struct {
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name,omitempty"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	RemainingQuantity int             `json:"remaining_quantity"`
}

type MaterialDTO struct {
	ResourceID string          `json:"resource_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
}

type StageEventDTO struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	At    string `json:"at"`
	Actor string `json:"actor,omitempty"`
}

type InvoiceStateDTO struct {
	Kind      string `json:"kind"`
	Remaining int    `json:"remaining"`
}

// OrderDTO is an order with its derived quantities and the stages it may
// move to next.
type OrderDTO struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"order_number"`
	ClientID          string          `json:"client_id"`
	ClientName        string          `json:"client_name,omitempty"`
	CurrentStage      string          `json:"current_stage"`
	Status            string          `json:"status"`
	Items             []OrderItemDTO  `json:"items"`
	Materials         []MaterialDTO   `json:"materials"`
	InvoiceHistory    []InvoiceDTO    `json:"invoice_history"`
	BaseInvoiceNumber string          `json:"base_invoice_number,omitempty"`
	InvoiceState      InvoiceStateDTO `json:"invoice_state"`
	OrderedQuantity   int             `json:"ordered_quantity"`
	InvoicedQuantity  int             `json:"invoiced_quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
	JobSequence       int             `json:"job_sequence"`
	NextStages        []string        `json:"next_stages"`
	StageHistory      []StageEventDTO `json:"stage_history"`
	Notes             string          `json:"notes,omitempty"`
	Version           int             `json:"version"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

type OrderItemRequest struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// MaterialRequest names stock the order takes at paper_slitting. Unit
// defaults to the resource's own unit.
type MaterialRequest struct {
	ResourceID string          `json:"resource_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit,omitempty"`
}

type CreateOrderRequest struct {
	ClientID   string             `json:"client_id"`
	ClientName string             `json:"client_name"`
	Items      []OrderItemRequest `json:"items"`
	Materials  []MaterialRequest  `json:"materials"`
	Notes      string             `json:"notes"`
	Actor      string             `json:"actor"`
}

// TransitionRequest carries the stage the client believes the order is in.
type TransitionRequest struct {
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
	Actor     string `json:"actor"`
}

type ReorderRequest struct {
	Stage    string `json:"stage"`
	Sequence int    `json:"sequence"`
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceLineDTO struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

type InvoiceDTO struct {
	ID               string           `json:"id"`
	OrderID          string           `json:"order_id"`
	InvoiceNumber    string           `json:"invoice_number"`
	Sequence         int              `json:"sequence"`
	Type             string           `json:"type"`
	Lines            []InvoiceLineDTO `json:"lines"`
	QuantityInvoiced int              `json:"quantity_invoiced"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	GST              decimal.Decimal  `json:"gst"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	CreatedBy        string           `json:"created_by,omitempty"`
	CreatedAt        string           `json:"created_at"`
}

type InvoiceItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// RecordInvoiceRequest is the body of POST /api/orders/{id}/invoices. The
// Idempotency-Key header takes precedence over IdempotencyToken.
type RecordInvoiceRequest struct {
	Type             string               `json:"type"`
	Items            []InvoiceItemRequest `json:"items"`
	IdempotencyToken string               `json:"idempotency_token"`
	Actor            string               `json:"actor"`
}

type InvoiceResultDTO struct {
	Invoice  InvoiceDTO      `json:"invoice"`
	Order    OrderDTO        `json:"order"`
	State    InvoiceStateDTO `json:"state"`
	Replayed bool            `json:"replayed"`
}

// =============================================================================
// ARCHIVES
// =============================================================================

type ArchiveDTO struct {
	ID              string   `json:"id"`
	OriginalOrderID string   `json:"original_order_id"`
	Order           OrderDTO `json:"order"`
	ArchivedAt      string   `json:"archived_at"`
	ArchivedBy      string   `json:"archived_by,omitempty"`
}

// =============================================================================
// APPROVALS
// =============================================================================

// DecisionRequest approves or rejects anything guarded by an approval.
type DecisionRequest struct {
	Actor            string `json:"actor"`
	Reason           string `json:"reason"`
	IdempotencyToken string `json:"idempotency_token"`
}

type ApprovalDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	DecidedBy string `json:"decided_by,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Replayed  bool   `json:"replayed"`
}

type InvoiceApprovalDTO struct {
	Invoice  InvoiceDTO  `json:"invoice"`
	Approval ApprovalDTO `json:"approval"`
}

// =============================================================================
// RESOURCES
// =============================================================================

type ResourceDTO struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	Domain            string          `json:"domain"`
	Name              string          `json:"name,omitempty"`
	OwnerID           string          `json:"owner_id,omitempty"`
	OnHand            decimal.Decimal `json:"on_hand"`
	Unit              string          `json:"unit"`
	ReorderLevel      decimal.Decimal `json:"reorder_level"`
	BelowReorderLevel bool            `json:"below_reorder_level"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
}

type MovementDTO struct {
	ID            string          `json:"id"`
	ResourceID    string          `json:"resource_id"`
	Type          string          `json:"type"`
	AllocationKey string          `json:"allocation_key,omitempty"`
	Delta         decimal.Decimal `json:"delta"`
	Remaining     decimal.Decimal `json:"remaining"`
	Unit          string          `json:"unit"`
	Released      bool            `json:"released,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

type CreateResourceRequest struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	OnHand       decimal.Decimal `json:"on_hand"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

type RestockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

// =============================================================================
// STAFFING
// =============================================================================

type EmployeeDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email,omitempty"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

type CreateEmployeeRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

type GrantLeaveRequest struct {
	Type   string          `json:"type"`
	Days   decimal.Decimal `json:"days"`
	Reason string          `json:"reason"`
}

type LeaveDTO struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employee_id"`
	BalanceID  string          `json:"balance_id"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	Days       decimal.Decimal `json:"days"`
	Reason     string          `json:"reason,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"created_at"`
}

type SubmitLeaveRequest struct {
	EmployeeID string `json:"employee_id"`
	Type       string `json:"type"`
	Start      string `json:"start"` // YYYY-MM-DD
	End        string `json:"end"`   // YYYY-MM-DD, inclusive
	Reason     string `json:"reason"`
}

type LeaveDecisionDTO struct {
	Leave    LeaveDTO `json:"leave"`
	Replayed bool     `json:"replayed"`
}

type TimesheetDTO struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employee_id"`
	WeekStart  string          `json:"week_start"`
	Hours      decimal.Decimal `json:"hours"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"created_at"`
}

type SubmitTimesheetRequest struct {
	EmployeeID string          `json:"employee_id"`
	WeekStart  string          `json:"week_start"` // YYYY-MM-DD
	Hours      decimal.Decimal `json:"hours"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

type TimesheetDecisionDTO struct {
	Timesheet TimesheetDTO `json:"timesheet"`
	Payslip   *PayslipDTO  `json:"payslip,omitempty"`
}

type PayslipDTO struct {
	ID          string          `json:"id"`
	TimesheetID string          `json:"timesheet_id"`
	EmployeeID  string          `json:"employee_id"`
	Hours       decimal.Decimal `json:"hours"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	Gross       decimal.Decimal `json:"gross"`
	CreatedAt   string          `json:"created_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario  string   `json:"scenario"`
	Resources int      `json:"resources"`
	Employees int      `json:"employees"`
	Orders    []string `json:"orders"`
	Invoices  []string `json:"invoices"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response. Current is set when
// the client acted on stale state (the stage or decision it should refetch).
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Current string `json:"current,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toOrderDTO(o *production.Order) OrderDTO {
	remaining := o.RemainingByProduct()
	state := o.InvoiceState()

	dto := OrderDTO{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		ClientID:          o.ClientID,
		ClientName:        o.ClientName,
		CurrentStage:      string(o.CurrentStage),
		Status:            string(o.Status),
		Items:             make([]OrderItemDTO, 0, len(o.Items)),
		Materials:         make([]MaterialDTO, 0, len(o.Materials)),
		InvoiceHistory:    make([]InvoiceDTO, 0, len(o.InvoiceHistory)),
		BaseInvoiceNumber: o.BaseInvoiceNumber,
		InvoiceState:      InvoiceStateDTO{Kind: string(state.Kind), Remaining: state.Remaining},
		OrderedQuantity:   o.OrderedQuantity(),
		InvoicedQuantity:  o.InvoicedQuantity(),
		RemainingQuantity: o.RemainingQuantity(),
		JobSequence:       o.JobSequence,
		NextStages:        []string{},
		StageHistory:      make([]StageEventDTO, 0, len(o.StageHistory)),
		Notes:             o.Notes,
		Version:           o.Version,
		CreatedAt:         formatTime(o.CreatedAt),
		UpdatedAt:         formatTime(o.UpdatedAt),
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
			TotalPrice:        it.TotalPrice,
			RemainingQuantity: remaining[it.ProductID],
		})
	}
	for _, m := range o.Materials {
		dto.Materials = append(dto.Materials, MaterialDTO{
			ResourceID: string(m.ResourceID),
			Quantity:   m.Quantity.Value,
			Unit:       string(m.Quantity.Unit),
		})
	}
	for _, inv := range o.InvoiceHistory {
		dto.InvoiceHistory = append(dto.InvoiceHistory, toInvoiceDTO(inv))
	}
	if !o.Frozen() {
		for _, s := range production.NextStages(o.CurrentStage) {
			dto.NextStages = append(dto.NextStages, string(s))
		}
	}
	for _, ev := range o.StageHistory {
		dto.StageHistory = append(dto.StageHistory, StageEventDTO{
			From:  string(ev.From),
			To:    string(ev.To),
			At:    formatTime(ev.At),
			Actor: ev.Actor,
		})
	}
	return dto
}

func toInvoiceDTO(inv production.InvoiceRecord) InvoiceDTO {
	dto := InvoiceDTO{
		ID:               inv.ID,
		OrderID:          inv.OrderID,
		InvoiceNumber:    inv.InvoiceNumber,
		Sequence:         inv.Sequence,
		Type:             string(inv.Type),
		Lines:            make([]InvoiceLineDTO, 0, len(inv.Lines)),
		QuantityInvoiced: inv.QuantityInvoiced,
		Subtotal:         inv.Subtotal,
		GST:              inv.GST,
		TotalAmount:      inv.TotalAmount,
		CreatedBy:        inv.CreatedBy,
		CreatedAt:        formatTime(inv.CreatedAt),
	}
	for _, l := range inv.Lines {
		dto.Lines = append(dto.Lines, InvoiceLineDTO{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       l.Total,
		})
	}
	return dto
}

func toArchiveDTO(a *production.ArchivedOrder) ArchiveDTO {
	return ArchiveDTO{
		ID:              a.ID,
		OriginalOrderID: a.OriginalOrderID,
		Order:           toOrderDTO(&a.Order),
		ArchivedAt:      formatTime(a.ArchivedAt),
		ArchivedBy:      a.ArchivedBy,
	}
}

func toApprovalDTO(res generic.Result) ApprovalDTO {
	a := res.Approval
	dto := ApprovalDTO{
		ID:        string(a.ID),
		Kind:      string(a.Kind),
		Status:    string(a.Status),
		DecidedBy: a.DecidedBy,
		Reason:    a.Reason,
		Replayed:  res.Replayed,
	}
	if a.DecidedAt != nil {
		dto.DecidedAt = formatTime(*a.DecidedAt)
	}
	return dto
}

func toResourceDTO(r generic.Resource) ResourceDTO {
	dto := ResourceDTO{
		ID:                string(r.ID),
		Name:              r.Name,
		OwnerID:           string(r.OwnerID),
		OnHand:            r.OnHand.Value,
		Unit:              string(r.OnHand.Unit),
		ReorderLevel:      r.ReorderLevel.Value,
		BelowReorderLevel: r.BelowReorderLevel(),
		UpdatedAt:         formatTime(r.UpdatedAt),
	}
	if r.Type != nil {
		dto.Type = r.Type.ResourceID()
		dto.Domain = r.Type.ResourceDomain()
	}
	return dto
}

func toMovementDTO(mv generic.Movement) MovementDTO {
	dto := MovementDTO{
		ID:         string(mv.ID),
		ResourceID: string(mv.ResourceID),
		Type:       string(mv.Type),
		Delta:      mv.Delta.Value,
		Remaining:  mv.Remaining.Value,
		Unit:       string(mv.Delta.Unit),
		Released:   mv.Released,
		Reason:     mv.Reason,
		CreatedAt:  formatTime(mv.CreatedAt),
	}
	if !mv.Key.IsZero() {
		dto.AllocationKey = mv.Key.String()
	}
	return dto
}

func toEmployeeDTO(e staffing.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:         e.ID,
		Name:       e.Name,
		Email:      e.Email,
		HourlyRate: e.HourlyRate,
		CreatedAt:  formatTime(e.CreatedAt),
	}
}

func toLeaveDTO(l *staffing.LeaveRequest) LeaveDTO {
	return LeaveDTO{
		ID:         l.ID,
		EmployeeID: l.EmployeeID,
		BalanceID:  string(l.BalanceID),
		Start:      l.Start.Format(dateLayout),
		End:        l.End.Format(dateLayout),
		Days:       l.Days,
		Reason:     l.Reason,
		Status:     string(l.Status),
		CreatedAt:  formatTime(l.CreatedAt),
	}
}

func toTimesheetDTO(ts *staffing.Timesheet) TimesheetDTO {
	return TimesheetDTO{
		ID:         ts.ID,
		EmployeeID: ts.EmployeeID,
		WeekStart:  ts.WeekStart.Format(dateLayout),
		Hours:      ts.Hours,
		HourlyRate: ts.HourlyRate,
		Status:     string(ts.Status),
		CreatedAt:  formatTime(ts.CreatedAt),
	}
}

func toPayslipDTO(p staffing.Payslip) PayslipDTO {
	return PayslipDTO{
		ID:          p.ID,
		TimesheetID: p.TimesheetID,
		EmployeeID:  p.EmployeeID,
		Hours:       p.Hours,
		HourlyRate:  p.HourlyRate,
		Gross:       p.Gross,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

func toScenarioDTO(s factory.ScenarioInfo) ScenarioDTO {
	return ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
}
