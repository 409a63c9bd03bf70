/*
stages.go - Order stage transition table and StageMachine

PURPOSE:
  Validates and executes stage transitions. The table below is the single
  source of truth for which (from, to) pairs exist and which side effect
  runs when the target stage is entered.

RULES:
  1. A request names both from and to. If the order is no longer in from,
     the request fails with *StaleStageError and nothing changes.
  2. Entering paper_slitting takes the order's materials from the
     ResourceLedger. InsufficientStock aborts the transition.
  3. delivery/invoicing -> accounting_transaction is internal. Only the
     FulfillmentLedger enters it, once the order is fully invoiced.
  4. Entering cleared writes the archive before the stage commits. If the
     archive write fails the whole transition rolls back.
  5. Reordering jobs inside a stage is metadata only: no hooks, no history.

LOCKING:
  One KeyedMutex entry per order. The FulfillmentLedger shares the same
  KeyedMutex so invoices and transitions on one order serialize while
  different orders run in parallel.

SEE ALSO:
  - fulfillment.go: drives the internal accounting_transaction transition
  - archive.go: ArchiveWriter used by the cleared hook
*/
package production

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

type Transition struct {
	From Stage
	To   Stage
}

// Hook runs after the order has been moved to the target stage in memory
// and before the update is written.
type Hook func(m *StageMachine, ctx context.Context, o *Order, actor string) error

type Rule struct {
	// Internal transitions are rejected when requested from outside.
	Internal bool
	OnEnter  Hook
}

var transitionTable = map[Transition]Rule{
	{StageOrderEntered, StagePendingMaterial}:    {},
	{StageOrderEntered, StagePaperSlitting}:      {OnEnter: (*StageMachine).allocateMaterials},
	{StagePendingMaterial, StagePaperSlitting}:   {OnEnter: (*StageMachine).allocateMaterials},
	{StagePaperSlitting, StageWinding}:           {},
	{StageWinding, StageFinishing}:               {},
	{StageFinishing, StageDelivery}:              {},
	{StageDelivery, StageInvoicing}:              {},
	{StageDelivery, StageAccountingTransaction}:  {Internal: true},
	{StageInvoicing, StageAccountingTransaction}: {Internal: true},
	{StageAccountingTransaction, StageCleared}:   {OnEnter: (*StageMachine).archive},
}

// LookupRule returns the rule for from -> to.
func LookupRule(from, to Stage) (Rule, bool) {
	r, ok := transitionTable[Transition{From: from, To: to}]
	return r, ok
}

// NextStages returns the stages a client may request from the given stage,
// in pipeline order.
func NextStages(from Stage) []Stage {
	var next []Stage
	for _, to := range Stages {
		if r, ok := LookupRule(from, to); ok && !r.Internal {
			next = append(next, to)
		}
	}
	return next
}

// =============================================================================
// STAGE MACHINE
// =============================================================================

// StageMachine must be built with NewStageMachine.
type StageMachine struct {
	Orders   OrderStore
	Tx       generic.Transactor
	Ledger   *generic.ResourceLedger
	Archiver *ArchiveWriter
	Log      zerolog.Logger
	Now      func() time.Time

	locks *generic.KeyedMutex
}

func NewStageMachine(store Store, ledger *generic.ResourceLedger, archiver *ArchiveWriter, log zerolog.Logger) *StageMachine {
	return &StageMachine{
		Orders:   store,
		Tx:       store,
		Ledger:   ledger,
		Archiver: archiver,
		Log:      log,
		Now:      time.Now,
		locks:    generic.NewKeyedMutex(),
	}
}

// Transition moves an order from one stage to another.
func (m *StageMachine) Transition(ctx context.Context, orderID string, from, to Stage, actor string) (*Order, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: unknown stage in %s -> %s", ErrInvalidOrder, from, to)
	}

	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Order
	err = m.Tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := m.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CurrentStage != from {
			return &StaleStageError{OrderID: orderID, Expected: from, Actual: o.CurrentStage}
		}
		rule, ok := LookupRule(from, to)
		if !ok {
			return &TransitionError{From: from, To: to}
		}
		if rule.Internal {
			return &TransitionError{From: from, To: to, Reason: "entered automatically once the order is fully invoiced"}
		}
		if err := m.apply(ctx, o, to, actor); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		m.Log.Info().Err(err).
			Str("order", orderID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("transition rejected")
		return nil, err
	}
	return out, nil
}

// apply moves o to the target stage, runs the entry hook and writes the
// order. The caller holds the order lock and an open transaction.
func (m *StageMachine) apply(ctx context.Context, o *Order, to Stage, actor string) error {
	from := o.CurrentStage
	rule, ok := LookupRule(from, to)
	if !ok {
		return &TransitionError{From: from, To: to}
	}

	now := m.now()
	o.CurrentStage = to
	o.JobSequence = 0
	o.StageHistory = append(o.StageHistory, StageEvent{From: from, To: to, At: now, Actor: actor})
	o.UpdatedAt = now
	if to == StageCleared {
		o.Status = OrderCleared
	}

	if rule.OnEnter != nil {
		if err := rule.OnEnter(m, ctx, o, actor); err != nil {
			return err
		}
	}
	if err := m.Orders.UpdateOrder(ctx, o); err != nil {
		return err
	}

	m.Log.Info().
		Str("order", o.OrderNumber).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor).
		Msg("stage changed")
	return nil
}

// Reorder sets the manual job sequence of an order inside its current stage.
func (m *StageMachine) Reorder(ctx context.Context, orderID string, stage Stage, sequence int) (*Order, error) {
	if sequence < 0 {
		return nil, fmt.Errorf("%w: job sequence must not be negative", ErrInvalidOrder)
	}

	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Order
	err = m.Tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := m.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Frozen() {
			return fmt.Errorf("%w: %s", ErrOrderFrozen, o.OrderNumber)
		}
		if o.CurrentStage != stage {
			return &StaleStageError{OrderID: orderID, Expected: stage, Actual: o.CurrentStage}
		}
		o.JobSequence = sequence
		o.UpdatedAt = m.now()
		if err := m.Orders.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// HOOKS
// =============================================================================

// allocateMaterials takes every material requirement from the ledger under
// the key (order id, stage/resource). Re-entering never takes stock twice.
func (m *StageMachine) allocateMaterials(ctx context.Context, o *Order, actor string) error {
	for _, req := range o.Materials {
		key := generic.AllocationKey{
			OwnerID: o.ID,
			Purpose: string(o.CurrentStage) + "/" + string(req.ResourceID),
		}
		if _, err := m.Ledger.TryDecrement(ctx, req.ResourceID, req.Quantity, key); err != nil {
			return fmt.Errorf("failed to allocate %s for order %s: %w", req.ResourceID, o.OrderNumber, err)
		}
	}
	return nil
}

func (m *StageMachine) archive(ctx context.Context, o *Order, actor string) error {
	_, err := m.Archiver.Archive(ctx, o, actor)
	return err
}

func (m *StageMachine) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}
