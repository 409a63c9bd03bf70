package staffing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/generic"
)

type Service struct {
	Store    Store
	Ledger   *generic.ResourceLedger
	Guard    *generic.ApprovalGuard
	Calendar generic.HolidayCalendar
	Log      zerolog.Logger
	Now      func() time.Time
}

func NewService(store Store, ledger *generic.ResourceLedger, guard *generic.ApprovalGuard, calendar generic.HolidayCalendar, log zerolog.Logger) *Service {
	return &Service{
		Store:    store,
		Ledger:   ledger,
		Guard:    guard,
		Calendar: calendar,
		Log:      log,
		Now:      time.Now,
	}
}

func (s *Service) SaveEmployee(ctx context.Context, e Employee) error {
	if e.ID == "" || e.Name == "" {
		return fmt.Errorf("%w: employee id and name are required", ErrInvalidRequest)
	}
	if e.HourlyRate.IsNegative() {
		return fmt.Errorf("%w: hourly rate must not be negative", ErrInvalidRequest)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.Store.SaveEmployee(ctx, e)
}

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	return s.Store.GetEmployee(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context) ([]Employee, error) {
	return s.Store.ListEmployees(ctx)
}

// GrantLeave adds days to an employee's leave balance, opening the balance
// on first use.
func (s *Service) GrantLeave(ctx context.Context, employeeID string, leave LeaveType, days decimal.Decimal, reason string) (generic.Movement, error) {
	id := BalanceID(leave, employeeID)
	var mv generic.Movement
	err := s.Store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Store.GetEmployee(ctx, employeeID); err != nil {
			return err
		}
		if _, err := s.Store.GetResource(ctx, id); generic.IsNotFound(err) {
			if err := s.Store.SaveResource(ctx, generic.Resource{
				ID:      id,
				Type:    leave,
				Name:    string(leave) + " " + employeeID,
				OwnerID: generic.EntityID(employeeID),
				OnHand:  generic.NewAmountFromInt(0, generic.UnitDays),
			}); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		var err error
		mv, err = s.Ledger.Restock(ctx, id, generic.NewAmountFromDecimal(days, generic.UnitDays), reason)
		return err
	})
	return mv, err
}

// status fills in the decision state kept by the ApprovalGuard.
func (s *Service) status(ctx context.Context, id string) (generic.ApprovalStatus, error) {
	return s.Guard.Status(ctx, generic.EntityID(id))
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
