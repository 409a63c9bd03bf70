/*
approval.go - One-shot approval guard

PURPOSE:
  Status-changing actions (approve leave, approve a timesheet, approve an
  invoice) must take effect exactly once, even when two managers click
  "approve" at the same moment. ApprovalGuard owns that guarantee.

APPROVAL FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  Apply(id) ──▶ lock(id) ──▶ BEGIN ──▶ pending? ──no──▶ AlreadyApplied
  │                                         │                        │
  │                                        yes                       │
  │                                         ▼                        │
  │                              status := approved/rejected         │
  │                                         │                        │
  │                                         ▼                        │
  │                               run side effects ──fail──▶ ROLLBACK│
  │                                         │                        │
  │                                         ▼                        │
  │                                       COMMIT                     │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

  The status flip and the side effects commit together. If side effects
  fail, the flip is rolled back so the approval can be retried. The
  per-entity mutex serializes Apply calls for one entity even when the
  storage layer cannot make the flip atomic by itself.

IDEMPOTENCY TOKENS:
  A client retrying the same decision sends the same token. If the stored
  decision carries that token, Apply returns the stored record instead of
  an AlreadyAppliedError.

SEE ALSO:
  - staffing/leave.go: leave approval decrements the leave balance
  - staffing/timesheet.go: timesheet approval creates a payslip
  - production/service.go: invoice approval
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// APPROVAL RECORD
// =============================================================================

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type ApprovalKind string

type Approval struct {
	ID        EntityID
	Kind      ApprovalKind
	Status    ApprovalStatus
	DecidedBy string
	DecidedAt *time.Time
	Reason    string
	Token     string
	CreatedAt time.Time
}

// Decision is what DecideApproval writes.
type Decision struct {
	Status ApprovalStatus
	Actor  string
	Reason string
	Token  string
}

// =============================================================================
// ACTIONS
// =============================================================================

// Effect runs inside the same transaction as the status flip.
type Effect func(ctx context.Context, a Approval) error

type Action struct {
	Decision ApprovalStatus
	Actor    string
	Reason   string
	Token    string
	Effect   Effect
}

func Approve(actor, token string, effect Effect) Action {
	return Action{Decision: ApprovalApproved, Actor: actor, Token: token, Effect: effect}
}

func Reject(actor, reason, token string, effect Effect) Action {
	return Action{Decision: ApprovalRejected, Actor: actor, Reason: reason, Token: token, Effect: effect}
}

// Result is what Apply returns.
type Result struct {
	Approval Approval
	Replayed bool
}

// =============================================================================
// GUARD
// =============================================================================

// ApprovalGuard must be built with NewApprovalGuard.
type ApprovalGuard struct {
	Store ApprovalStore
	Tx    Transactor
	Log   zerolog.Logger
	Now   func() time.Time

	locks *KeyedMutex
}

func NewApprovalGuard(store ApprovalStore, tx Transactor, log zerolog.Logger) *ApprovalGuard {
	return &ApprovalGuard{Store: store, Tx: tx, Log: log, Now: time.Now, locks: NewKeyedMutex()}
}

// Open registers a new pending approval for an entity.
func (g *ApprovalGuard) Open(ctx context.Context, id EntityID, kind ApprovalKind) (Approval, error) {
	a := Approval{ID: id, Kind: kind, Status: ApprovalPending, CreatedAt: g.now()}
	if err := g.Store.CreateApproval(ctx, a); err != nil {
		return Approval{}, fmt.Errorf("failed to open approval %s: %w", id, err)
	}
	return a, nil
}

// Apply flips a pending approval and runs the action's side effects as one unit.
func (g *ApprovalGuard) Apply(ctx context.Context, id EntityID, action Action) (Result, error) {
	if action.Decision != ApprovalApproved && action.Decision != ApprovalRejected {
		return Result{}, fmt.Errorf("unsupported decision %q", action.Decision)
	}

	unlock, err := g.locks.Lock(ctx, string(id))
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var result Result
	err = g.Tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err := g.Store.DecideApproval(ctx, id, Decision{
			Status: action.Decision,
			Actor:  action.Actor,
			Reason: action.Reason,
			Token:  action.Token,
		}, g.now())

		var applied *AlreadyAppliedError
		if errors.As(err, &applied) {
			if action.Token != "" && a != nil && a.Token == action.Token && a.Status == action.Decision {
				result = Result{Approval: *a, Replayed: true}
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		if action.Effect != nil {
			if err := action.Effect(ctx, *a); err != nil {
				return fmt.Errorf("side effects of %s on %s failed: %w", action.Decision, id, err)
			}
		}
		result = Result{Approval: *a}
		return nil
	})
	if err != nil {
		g.Log.Info().Err(err).Str("entity", string(id)).Str("decision", string(action.Decision)).Msg("approval not applied")
		return Result{}, err
	}

	if !result.Replayed {
		g.Log.Info().
			Str("entity", string(id)).
			Str("kind", string(result.Approval.Kind)).
			Str("decision", string(action.Decision)).
			Str("actor", action.Actor).
			Msg("approval applied")
	}
	return result, nil
}

// Status returns the current status of an approval.
func (g *ApprovalGuard) Status(ctx context.Context, id EntityID) (ApprovalStatus, error) {
	a, err := g.Store.GetApproval(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

func (g *ApprovalGuard) now() time.Time {
	if g.Now == nil {
		return time.Now().UTC()
	}
	return g.Now().UTC()
}
