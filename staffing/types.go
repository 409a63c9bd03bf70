/*
Package staffing implements leave requests and timesheets.

PURPOSE:
  Both are one-shot approvals. Approving leave decrements the employee's
  leave balance in the ResourceLedger. Approving a timesheet calculates pay
  and writes exactly one payslip. Both go through generic.ApprovalGuard so
  two managers approving at once apply the side effects once.

KEY CONCEPTS:
  - LeaveType: Registered resource types for leave balances
  - LeaveRequest: Days off, counted in workdays (weekends and holidays free)
  - Timesheet: Weekly hours at an hourly rate
  - Payslip: Created by timesheet approval, one per timesheet

SEE ALSO:
  - generic/approval.go: ApprovalGuard
  - generic/resource.go: ResourceLedger
*/
package staffing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType string

const (
	LeaveAnnual LeaveType = "annual_leave"
	LeaveSick   LeaveType = "sick_leave"
)

func (l LeaveType) ResourceID() string     { return string(l) }
func (l LeaveType) ResourceDomain() string { return "staffing" }

func init() {
	generic.RegisterResource(LeaveAnnual)
	generic.RegisterResource(LeaveSick)
}

// BalanceID is the conventional ledger id of an employee's leave balance.
func BalanceID(leave LeaveType, employeeID string) generic.ResourceID {
	return generic.ResourceID(string(leave) + ":" + employeeID)
}

const (
	ApprovalKindLeave     generic.ApprovalKind = "leave"
	ApprovalKindTimesheet generic.ApprovalKind = "timesheet"
)

// =============================================================================
// RECORDS
// =============================================================================

type Employee struct {
	ID         string
	Name       string
	Email      string
	HourlyRate decimal.Decimal
	CreatedAt  time.Time
}

type LeaveRequest struct {
	ID         string
	EmployeeID string
	BalanceID  generic.ResourceID
	Start      time.Time
	End        time.Time
	Days       decimal.Decimal
	Reason     string
	CreatedAt  time.Time

	// Status is read from the approval record, never stored on the request.
	Status generic.ApprovalStatus
}

type Timesheet struct {
	ID         string
	EmployeeID string
	WeekStart  time.Time
	Hours      decimal.Decimal
	HourlyRate decimal.Decimal
	CreatedAt  time.Time
	Status     generic.ApprovalStatus
}

type Payslip struct {
	ID          string
	TimesheetID string
	EmployeeID  string
	Hours       decimal.Decimal
	HourlyRate  decimal.Decimal
	Gross       decimal.Decimal
	CreatedAt   time.Time
}
