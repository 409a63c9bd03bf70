package staffing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type LeaveInput struct {
	EmployeeID string
	Type       LeaveType
	Start      time.Time
	End        time.Time
	Reason     string
}

// SubmitLeave records a pending leave request. The balance is only checked
// and charged on approval.
func (s *Service) SubmitLeave(ctx context.Context, in LeaveInput) (*LeaveRequest, error) {
	if in.Type == "" {
		in.Type = LeaveAnnual
	}
	if in.End.Before(in.Start) {
		return nil, fmt.Errorf("%w: leave ends before it starts", ErrInvalidRequest)
	}
	days := generic.WorkdaysBetween(in.Start, in.End, s.Calendar)
	if days == 0 {
		return nil, fmt.Errorf("%w: no working days between %s and %s",
			ErrInvalidRequest, in.Start.Format("2006-01-02"), in.End.Format("2006-01-02"))
	}

	l := LeaveRequest{
		ID:         uuid.NewString(),
		EmployeeID: in.EmployeeID,
		BalanceID:  BalanceID(in.Type, in.EmployeeID),
		Start:      generic.Day(in.Start),
		End:        generic.Day(in.End),
		Days:       decimal.NewFromInt(int64(days)),
		Reason:     in.Reason,
		CreatedAt:  s.now(),
		Status:     generic.ApprovalPending,
	}

	err := s.Store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Store.GetEmployee(ctx, in.EmployeeID); err != nil {
			return err
		}
		if _, err := s.Store.GetResource(ctx, l.BalanceID); err != nil {
			return fmt.Errorf("no %s balance for %s: %w", in.Type, in.EmployeeID, err)
		}
		if err := s.Store.CreateLeave(ctx, l); err != nil {
			return err
		}
		_, err := s.Guard.Open(ctx, generic.EntityID(l.ID), ApprovalKindLeave)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("leave", l.ID).Str("employee", l.EmployeeID).Str("days", l.Days.String()).Msg("leave submitted")
	return &l, nil
}

// ApproveLeave approves once and charges the balance once, under the key
// (leave id, "approval").
func (s *Service) ApproveLeave(ctx context.Context, id, actor, token string) (*LeaveRequest, generic.Result, error) {
	l, err := s.Store.GetLeave(ctx, id)
	if err != nil {
		return nil, generic.Result{}, err
	}

	charge := func(ctx context.Context, a generic.Approval) error {
		_, err := s.Ledger.TryDecrement(ctx, l.BalanceID,
			generic.NewAmountFromDecimal(l.Days, generic.UnitDays),
			generic.AllocationKey{OwnerID: l.ID, Purpose: "approval"})
		return err
	}

	res, err := s.Guard.Apply(ctx, generic.EntityID(id), generic.Approve(actor, token, charge))
	if err != nil {
		return nil, generic.Result{}, err
	}
	l.Status = res.Approval.Status
	return l, res, nil
}

func (s *Service) RejectLeave(ctx context.Context, id, actor, reason, token string) (*LeaveRequest, generic.Result, error) {
	l, err := s.Store.GetLeave(ctx, id)
	if err != nil {
		return nil, generic.Result{}, err
	}
	res, err := s.Guard.Apply(ctx, generic.EntityID(id), generic.Reject(actor, reason, token, nil))
	if err != nil {
		return nil, generic.Result{}, err
	}
	l.Status = res.Approval.Status
	return l, res, nil
}

func (s *Service) GetLeave(ctx context.Context, id string) (*LeaveRequest, error) {
	l, err := s.Store.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status, err = s.status(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) ListLeave(ctx context.Context, employeeID string) ([]LeaveRequest, error) {
	list, err := s.Store.ListLeave(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Status, err = s.status(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}
