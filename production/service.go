package production

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// SERVICE - Facade used by the transport layer
// =============================================================================

type Service struct {
	Store       Store
	Ledger      *generic.ResourceLedger
	Guard       *generic.ApprovalGuard
	Machine     *StageMachine
	Fulfillment *FulfillmentLedger
	Archiver    *ArchiveWriter
	Log         zerolog.Logger
	Now         func() time.Time
}

// NewService wires the production components on one store. ledger and
// guard are shared with other domains.
func NewService(store Store, ledger *generic.ResourceLedger, guard *generic.ApprovalGuard, cfg InvoiceConfig, log zerolog.Logger) *Service {
	archiver := NewArchiveWriter(store, log.With().Str("component", "archive-writer").Logger())
	machine := NewStageMachine(store, ledger, archiver, log.With().Str("component", "stage-machine").Logger())
	fulfillment := NewFulfillmentLedger(store, machine, guard, cfg, log.With().Str("component", "fulfillment-ledger").Logger())
	return &Service{
		Store:       store,
		Ledger:      ledger,
		Guard:       guard,
		Machine:     machine,
		Fulfillment: fulfillment,
		Archiver:    archiver,
		Log:         log,
		Now:         time.Now,
	}
}

// SetClock pins every component to one clock. Used by tests and scenarios.
func (s *Service) SetClock(now func() time.Time) {
	s.Now = now
	s.Machine.Now = now
	s.Fulfillment.Now = now
	s.Archiver.Now = now
}

// =============================================================================
// ORDERS
// =============================================================================

type CreateOrderInput struct {
	ClientID   string
	ClientName string
	Items      []OrderItemInput
	Materials  []MaterialRequirement
	Notes      string
	Actor      string
}

type OrderItemInput struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// CreateOrder creates an order in order_entered with a client-scoped number.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := validateOrderInput(in); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:           uuid.NewString(),
		ClientID:     in.ClientID,
		ClientName:   in.ClientName,
		CurrentStage: StageOrderEntered,
		Status:       OrderActive,
		Materials:    in.Materials,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
		StageHistory: []StageEvent{{To: StageOrderEntered, At: now, Actor: in.Actor}},
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}

	err := s.Store.RunInTx(ctx, func(ctx context.Context) error {
		for _, m := range in.Materials {
			res, err := s.Store.GetResource(ctx, m.ResourceID)
			if err != nil {
				return fmt.Errorf("%w: material %s: %v", ErrInvalidOrder, m.ResourceID, err)
			}
			if res.OnHand.Unit != m.Quantity.Unit {
				return fmt.Errorf("%w: material %s is tracked in %s", ErrInvalidOrder, m.ResourceID, res.OnHand.Unit)
			}
		}
		n, err := s.Store.NextSequence(ctx, "order:"+in.ClientID)
		if err != nil {
			return err
		}
		o.OrderNumber = fmt.Sprintf("%s-%04d", strings.ToUpper(in.ClientID), n)
		return s.Store.CreateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("order", o.OrderNumber).Str("client", o.ClientID).Int("quantity", o.OrderedQuantity()).Msg("order created")
	return o, nil
}

func validateOrderInput(in CreateOrderInput) error {
	if strings.TrimSpace(in.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidOrder)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: product id is required", ErrInvalidOrder)
		}
		if it.Quantity < 0 {
			return fmt.Errorf("%w: quantity for %s must not be negative", ErrInvalidOrder, it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: unit price for %s must not be negative", ErrInvalidOrder, it.ProductID)
		}
	}
	for _, m := range in.Materials {
		if !m.Quantity.IsPositive() {
			return fmt.Errorf("%w: material %s quantity must be positive", ErrInvalidOrder, m.ResourceID)
		}
	}
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.Store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	return s.Store.ListOrders(ctx, filter)
}

func (s *Service) TransitionStage(ctx context.Context, orderID string, from, to Stage, actor string) (*Order, error) {
	return s.Machine.Transition(ctx, orderID, from, to, actor)
}

func (s *Service) Reorder(ctx context.Context, orderID string, stage Stage, sequence int) (*Order, error) {
	return s.Machine.Reorder(ctx, orderID, stage, sequence)
}

// CancelOrder deletes a live order. Active orders release the stock they
// took; orders with invoices cannot be cancelled. A cleared order is purged
// from the live table and its archive stays.
func (s *Service) CancelOrder(ctx context.Context, orderID, actor string) error {
	unlock, err := s.Machine.locks.Lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.Store.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Frozen() {
			if o.InvoiceState().Invoiced() {
				return fmt.Errorf("%w: %s has %d invoices", ErrOrderInvoiced, o.OrderNumber, len(o.InvoiceHistory))
			}
			released, err := s.Ledger.ReleaseOwner(ctx, o.ID, "order "+o.OrderNumber+" cancelled by "+actor)
			if err != nil {
				return err
			}
			s.Log.Info().Str("order", o.OrderNumber).Int("released", len(released)).Str("actor", actor).Msg("order cancelled")
		} else {
			s.Log.Info().Str("order", o.OrderNumber).Str("actor", actor).Msg("cleared order purged")
		}
		return s.Store.DeleteOrder(ctx, o.ID)
	})
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Service) RecordInvoice(ctx context.Context, req InvoiceRequest) (InvoiceResult, error) {
	return s.Fulfillment.RecordInvoice(ctx, req)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*InvoiceRecord, error) {
	return s.Store.GetInvoice(ctx, id)
}

// ApproveInvoice approves an invoice exactly once.
func (s *Service) ApproveInvoice(ctx context.Context, invoiceID, actor, token string) (*InvoiceRecord, generic.Result, error) {
	inv, err := s.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, generic.Result{}, err
	}
	res, err := s.Guard.Apply(ctx, generic.EntityID(inv.ID), generic.Approve(actor, token, nil))
	if err != nil {
		return nil, generic.Result{}, err
	}
	return inv, res, nil
}

// =============================================================================
// ARCHIVES
// =============================================================================

func (s *Service) GetArchive(ctx context.Context, id string) (*ArchivedOrder, error) {
	return s.Store.GetArchive(ctx, id)
}

func (s *Service) GetArchiveByOrder(ctx context.Context, orderID string) (*ArchivedOrder, error) {
	return s.Store.GetArchiveByOrder(ctx, orderID)
}

func (s *Service) ListArchives(ctx context.Context) ([]ArchivedOrder, error) {
	return s.Store.ListArchives(ctx)
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
