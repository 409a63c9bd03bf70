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
// TIMESHEETS AND PAY
// =============================================================================

type TimesheetInput struct {
	EmployeeID string
	WeekStart  time.Time
	Hours      decimal.Decimal

	// HourlyRate overrides the employee's rate when set.
	HourlyRate decimal.Decimal
}

func (s *Service) SubmitTimesheet(ctx context.Context, in TimesheetInput) (*Timesheet, error) {
	if !in.Hours.IsPositive() {
		return nil, fmt.Errorf("%w: hours must be positive", ErrInvalidRequest)
	}
	if in.Hours.GreaterThan(decimal.NewFromInt(168)) {
		return nil, fmt.Errorf("%w: %s hours do not fit in one week", ErrInvalidRequest, in.Hours)
	}

	ts := Timesheet{
		ID:         uuid.NewString(),
		EmployeeID: in.EmployeeID,
		WeekStart:  generic.Day(in.WeekStart),
		Hours:      in.Hours,
		HourlyRate: in.HourlyRate,
		CreatedAt:  s.now(),
		Status:     generic.ApprovalPending,
	}

	err := s.Store.RunInTx(ctx, func(ctx context.Context) error {
		emp, err := s.Store.GetEmployee(ctx, in.EmployeeID)
		if err != nil {
			return err
		}
		if ts.HourlyRate.IsZero() {
			ts.HourlyRate = emp.HourlyRate
		}
		if err := s.Store.CreateTimesheet(ctx, ts); err != nil {
			return err
		}
		_, err = s.Guard.Open(ctx, generic.EntityID(ts.ID), ApprovalKindTimesheet)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// CalculatePay is hours times rate, rounded to cents.
func CalculatePay(hours, rate decimal.Decimal) decimal.Decimal {
	return hours.Mul(rate).Round(2)
}

// ApproveTimesheet approves once and writes exactly one payslip.
func (s *Service) ApproveTimesheet(ctx context.Context, id, actor, token string) (*Timesheet, *Payslip, error) {
	ts, err := s.Store.GetTimesheet(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var slip *Payslip
	pay := func(ctx context.Context, a generic.Approval) error {
		p := Payslip{
			ID:          uuid.NewString(),
			TimesheetID: ts.ID,
			EmployeeID:  ts.EmployeeID,
			Hours:       ts.Hours,
			HourlyRate:  ts.HourlyRate,
			Gross:       CalculatePay(ts.Hours, ts.HourlyRate),
			CreatedAt:   s.now(),
		}
		if err := s.Store.CreatePayslip(ctx, p); err != nil {
			return fmt.Errorf("failed to create payslip: %w", err)
		}
		slip = &p
		return nil
	}

	res, err := s.Guard.Apply(ctx, generic.EntityID(id), generic.Approve(actor, token, pay))
	if err != nil {
		return nil, nil, err
	}
	ts.Status = res.Approval.Status
	if slip != nil {
		s.Log.Info().Str("timesheet", ts.ID).Str("employee", ts.EmployeeID).Str("gross", slip.Gross.StringFixed(2)).Msg("payslip created")
	}
	return ts, slip, nil
}

func (s *Service) RejectTimesheet(ctx context.Context, id, actor, reason, token string) (*Timesheet, error) {
	ts, err := s.Store.GetTimesheet(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.Guard.Apply(ctx, generic.EntityID(id), generic.Reject(actor, reason, token, nil))
	if err != nil {
		return nil, err
	}
	ts.Status = res.Approval.Status
	return ts, nil
}

func (s *Service) GetTimesheet(ctx context.Context, id string) (*Timesheet, error) {
	ts, err := s.Store.GetTimesheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if ts.Status, err = s.status(ctx, id); err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *Service) ListPayslips(ctx context.Context, employeeID string) ([]Payslip, error) {
	return s.Store.ListPayslips(ctx, employeeID)
}
