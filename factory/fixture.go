/*
Package factory provides YAML to Go fixture conversion.

PURPOSE:
  Turns YAML fixture files into stock, employees, leave balances and demo
  orders, and seeds them through the real services. Nothing is written
  around the engine: every order is created, moved and invoiced through the
  same StageMachine and FulfillmentLedger the API uses, so a fixture can
  never produce a state the engine itself would refuse.

YAML SCHEMA:
  name: Paper core basic
  invoice_sequence: 35          # next invoice is INV-0036
  materials:
    - id: reel-90gsm
      type: paper_reel          # registered resource type
      unit: kg
      on_hand: "500"
      reorder_level: "100"
  employees:
    - id: emp-robin
      name: Robin Hale
      hourly_rate: "32.50"
      leave:
        annual_leave: "20"
  orders:
    - client_id: acme
      items:
        - {product_id: core-76, quantity: 2640, unit_price: "0.85"}
      materials:
        - {resource_id: reel-90gsm, quantity: "40"}
      advance_to: delivery
      invoices: [1000, 500]

  Decimal values are strings so YAML never turns them into floats.

USAGE:
  fx, err := factory.LoadFixtureFile("fixtures/demo.yaml")
  if err != nil {
      return err
  }
  summary, err := factory.NewSeeder(prod, staff, log).Apply(ctx, fx)

SEE ALSO:
  - scenarios.go: Embedded demo scenarios
  - production/service.go, staffing/service.go: Services the seeder drives
*/
package factory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
)

// ErrUnknownScenario is returned for scenario ids with no embedded file.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

type Fixture struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description,omitempty"`
	InvoiceSequence int            `yaml:"invoice_sequence,omitempty"`
	Materials       []MaterialYAML `yaml:"materials"`
	Employees       []EmployeeYAML `yaml:"employees,omitempty"`
	Orders          []OrderYAML    `yaml:"orders,omitempty"`
}

type MaterialYAML struct {
	ID           string `yaml:"id"`
	Type         string `yaml:"type"`
	Name         string `yaml:"name,omitempty"`
	Unit         string `yaml:"unit"`
	OnHand       string `yaml:"on_hand"`
	ReorderLevel string `yaml:"reorder_level,omitempty"`
}

type EmployeeYAML struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Email      string            `yaml:"email,omitempty"`
	HourlyRate string            `yaml:"hourly_rate,omitempty"`
	Leave      map[string]string `yaml:"leave,omitempty"` // leave type -> days granted
}

type OrderYAML struct {
	ClientID   string            `yaml:"client_id"`
	ClientName string            `yaml:"client_name,omitempty"`
	Notes      string            `yaml:"notes,omitempty"`
	Items      []OrderItemYAML   `yaml:"items"`
	Materials  []RequirementYAML `yaml:"materials,omitempty"`
	AdvanceTo  string            `yaml:"advance_to,omitempty"`
	Invoices   []int             `yaml:"invoices,omitempty"` // quantities of the first item
}

type OrderItemYAML struct {
	ProductID   string `yaml:"product_id"`
	ProductName string `yaml:"product_name,omitempty"`
	Quantity    int    `yaml:"quantity"`
	UnitPrice   string `yaml:"unit_price"`
}

type RequirementYAML struct {
	ResourceID string `yaml:"resource_id"`
	Quantity   string `yaml:"quantity"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseFixture decodes and validates a fixture.
func ParseFixture(data []byte) (Fixture, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Fixture{}, fmt.Errorf("fixture: payload is empty")
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixture{}, fmt.Errorf("fixture: decode: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return Fixture{}, err
	}
	return fx, nil
}

// LoadFixtureFile reads and parses a fixture from disk.
func LoadFixtureFile(path string) (Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	fx, err := ParseFixture(content)
	if err != nil {
		return Fixture{}, fmt.Errorf("fixture: %s: %w", path, err)
	}
	return fx, nil
}

// Validate checks references and decimal syntax before anything is written.
func (fx Fixture) Validate() error {
	materials := make(map[string]string)
	for _, m := range fx.Materials {
		if m.ID == "" || m.Unit == "" {
			return fmt.Errorf("fixture: material needs id and unit")
		}
		rt := generic.LookupResource(m.Type)
		if rt == nil || rt.ResourceDomain() != "production" {
			return fmt.Errorf("fixture: material %s: unknown material type %q", m.ID, m.Type)
		}
		if _, err := parseDecimal("on_hand", m.OnHand); err != nil {
			return fmt.Errorf("fixture: material %s: %w", m.ID, err)
		}
		if _, err := parseOptionalDecimal("reorder_level", m.ReorderLevel); err != nil {
			return fmt.Errorf("fixture: material %s: %w", m.ID, err)
		}
		materials[m.ID] = m.Unit
	}

	for _, e := range fx.Employees {
		if e.ID == "" || e.Name == "" {
			return fmt.Errorf("fixture: employee needs id and name")
		}
		if _, err := parseOptionalDecimal("hourly_rate", e.HourlyRate); err != nil {
			return fmt.Errorf("fixture: employee %s: %w", e.ID, err)
		}
		for leave, days := range e.Leave {
			if rt := generic.LookupResource(leave); rt == nil || rt.ResourceDomain() != "staffing" {
				return fmt.Errorf("fixture: employee %s: unknown leave type %q", e.ID, leave)
			}
			if _, err := parseDecimal(leave, days); err != nil {
				return fmt.Errorf("fixture: employee %s: %w", e.ID, err)
			}
		}
	}

	for i, o := range fx.Orders {
		if o.ClientID == "" || len(o.Items) == 0 {
			return fmt.Errorf("fixture: order %d needs a client and items", i+1)
		}
		for _, it := range o.Items {
			if _, err := parseDecimal("unit_price", it.UnitPrice); err != nil {
				return fmt.Errorf("fixture: order %d: %w", i+1, err)
			}
		}
		for _, req := range o.Materials {
			if _, ok := materials[req.ResourceID]; !ok {
				return fmt.Errorf("fixture: order %d: material %s is not defined", i+1, req.ResourceID)
			}
			if _, err := parseDecimal("quantity", req.Quantity); err != nil {
				return fmt.Errorf("fixture: order %d: %w", i+1, err)
			}
		}
		if o.AdvanceTo != "" && !production.Stage(o.AdvanceTo).Valid() {
			return fmt.Errorf("fixture: order %d: unknown stage %q", i+1, o.AdvanceTo)
		}
	}
	return nil
}

// =============================================================================
// SEEDER
// =============================================================================

// Seeder applies fixtures through the domain services.
type Seeder struct {
	Production *production.Service
	Staffing   *staffing.Service
	Log        zerolog.Logger
}

func NewSeeder(prod *production.Service, staff *staffing.Service, log zerolog.Logger) *Seeder {
	return &Seeder{Production: prod, Staffing: staff, Log: log}
}

// Summary reports what a fixture created.
type Summary struct {
	Resources int
	Employees int
	Orders    []string // order numbers
	Invoices  []string // invoice numbers
}

// Apply seeds a validated fixture. It stops at the first error; callers
// that need a clean slate reset the store first.
func (s *Seeder) Apply(ctx context.Context, fx Fixture) (Summary, error) {
	var sum Summary

	if fx.InvoiceSequence > 0 {
		if err := s.Production.Store.SetSequence(ctx, "invoice", fx.InvoiceSequence); err != nil {
			return sum, err
		}
	}

	for _, m := range fx.Materials {
		if err := s.applyMaterial(ctx, m); err != nil {
			return sum, fmt.Errorf("failed to seed material %s: %w", m.ID, err)
		}
		sum.Resources++
	}

	for _, e := range fx.Employees {
		if err := s.applyEmployee(ctx, e); err != nil {
			return sum, fmt.Errorf("failed to seed employee %s: %w", e.ID, err)
		}
		sum.Employees++
	}

	for i, o := range fx.Orders {
		number, invoices, err := s.applyOrder(ctx, o)
		if err != nil {
			return sum, fmt.Errorf("failed to seed order %d: %w", i+1, err)
		}
		sum.Orders = append(sum.Orders, number)
		sum.Invoices = append(sum.Invoices, invoices...)
	}

	s.Log.Info().
		Str("fixture", fx.Name).
		Int("resources", sum.Resources).
		Int("employees", sum.Employees).
		Int("orders", len(sum.Orders)).
		Msg("fixture applied")
	return sum, nil
}

func (s *Seeder) applyMaterial(ctx context.Context, m MaterialYAML) error {
	onHand, _ := parseDecimal("on_hand", m.OnHand)
	reorder, _ := parseOptionalDecimal("reorder_level", m.ReorderLevel)
	unit := generic.Unit(m.Unit)
	name := m.Name
	if name == "" {
		name = m.ID
	}
	return s.Production.Store.SaveResource(ctx, generic.Resource{
		ID:           generic.ResourceID(m.ID),
		Type:         generic.LookupResource(m.Type),
		Name:         name,
		OnHand:       generic.NewAmountFromDecimal(onHand, unit),
		ReorderLevel: generic.NewAmountFromDecimal(reorder, unit),
	})
}

func (s *Seeder) applyEmployee(ctx context.Context, e EmployeeYAML) error {
	rate, _ := parseOptionalDecimal("hourly_rate", e.HourlyRate)
	if err := s.Staffing.SaveEmployee(ctx, staffing.Employee{
		ID:         e.ID,
		Name:       e.Name,
		Email:      e.Email,
		HourlyRate: rate,
	}); err != nil {
		return err
	}
	for leave, days := range e.Leave {
		d, _ := parseDecimal(leave, days)
		if d.IsZero() {
			continue
		}
		if _, err := s.Staffing.GrantLeave(ctx, e.ID, staffing.LeaveType(leave), d, "fixture grant"); err != nil {
			return err
		}
	}
	return nil
}

// seedPath is the route fixtures take through the pipeline. Invoices are
// recorded on reaching delivery, which may complete the order.
var seedPath = []production.Stage{
	production.StageOrderEntered,
	production.StagePaperSlitting,
	production.StageWinding,
	production.StageFinishing,
	production.StageDelivery,
}

func (s *Seeder) applyOrder(ctx context.Context, oy OrderYAML) (string, []string, error) {
	const actor = "fixture"

	in := production.CreateOrderInput{
		ClientID:   oy.ClientID,
		ClientName: oy.ClientName,
		Notes:      oy.Notes,
		Actor:      actor,
	}
	for _, it := range oy.Items {
		price, _ := parseDecimal("unit_price", it.UnitPrice)
		in.Items = append(in.Items, production.OrderItemInput{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   price,
		})
	}
	for _, req := range oy.Materials {
		qty, _ := parseDecimal("quantity", req.Quantity)
		res, err := s.Production.Store.GetResource(ctx, generic.ResourceID(req.ResourceID))
		if err != nil {
			return "", nil, err
		}
		in.Materials = append(in.Materials, production.MaterialRequirement{
			ResourceID: res.ID,
			Quantity:   generic.NewAmountFromDecimal(qty, res.OnHand.Unit),
		})
	}

	o, err := s.Production.CreateOrder(ctx, in)
	if err != nil {
		return "", nil, err
	}

	target := production.Stage(oy.AdvanceTo)
	if target == "" {
		target = production.StageOrderEntered
	}

	if target == production.StagePendingMaterial {
		o, err = s.Production.TransitionStage(ctx, o.ID, production.StageOrderEntered, production.StagePendingMaterial, actor)
		if err != nil {
			return "", nil, err
		}
	}

	var invoices []string
	for i := 0; i+1 < len(seedPath) && o.CurrentStage != target; i++ {
		if seedPath[i] != o.CurrentStage {
			continue
		}
		if o, err = s.Production.TransitionStage(ctx, o.ID, seedPath[i], seedPath[i+1], actor); err != nil {
			return "", nil, err
		}
	}

	if len(oy.Invoices) > 0 {
		if !o.CurrentStage.Invoiceable() {
			return "", nil, fmt.Errorf("order %s must reach delivery before it can be invoiced", o.OrderNumber)
		}
		for _, qty := range oy.Invoices {
			res, err := s.Production.RecordInvoice(ctx, production.InvoiceRequest{
				OrderID: o.ID,
				Items:   []production.InvoiceItem{{ProductID: oy.Items[0].ProductID, Quantity: qty}},
				Actor:   actor,
			})
			if err != nil {
				return "", nil, err
			}
			invoices = append(invoices, res.Invoice.InvoiceNumber)
			o = res.Order
		}
	}

	// Stages past delivery are only reachable by invoicing or clearing.
	switch {
	case target == production.StageInvoicing && o.CurrentStage == production.StageDelivery:
		o, err = s.Production.TransitionStage(ctx, o.ID, production.StageDelivery, production.StageInvoicing, actor)
	case target == production.StageCleared && o.CurrentStage == production.StageAccountingTransaction:
		o, err = s.Production.TransitionStage(ctx, o.ID, production.StageAccountingTransaction, production.StageCleared, actor)
	}
	if err != nil {
		return "", nil, err
	}
	if o.CurrentStage != target {
		return "", nil, fmt.Errorf("order %s stopped in %s, fixture wants %s", o.OrderNumber, o.CurrentStage, target)
	}
	return o.OrderNumber, invoices, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a decimal", field, v)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: %s must not be negative", field, v)
	}
	return d, nil
}

func parseOptionalDecimal(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(field, v)
}
