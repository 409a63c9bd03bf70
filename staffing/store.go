package staffing

import (
	"context"
	"errors"

	"github.com/warp/fulfillment-engine/generic"
)

var (
	ErrEmployeeNotFound  = errors.New("employee not found")
	ErrLeaveNotFound     = errors.New("leave request not found")
	ErrTimesheetNotFound = errors.New("timesheet not found")
	ErrInvalidRequest    = errors.New("invalid request")
)

// Store is the persistence surface for staffing. Methods join the
// transaction carried in ctx.
type Store interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	CreateLeave(ctx context.Context, l LeaveRequest) error
	GetLeave(ctx context.Context, id string) (*LeaveRequest, error)
	ListLeave(ctx context.Context, employeeID string) ([]LeaveRequest, error)

	CreateTimesheet(ctx context.Context, ts Timesheet) error
	GetTimesheet(ctx context.Context, id string) (*Timesheet, error)

	// CreatePayslip returns generic.ErrDuplicateRecord if the timesheet
	// already has a payslip.
	CreatePayslip(ctx context.Context, p Payslip) error
	ListPayslips(ctx context.Context, employeeID string) ([]Payslip, error)

	generic.Store
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrLeaveNotFound) ||
		errors.Is(err, ErrTimesheetNotFound) ||
		generic.IsNotFound(err)
}

func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || generic.IsClientError(err)
}
