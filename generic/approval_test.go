package generic_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/generic/store"
)

func newTestGuard(t *testing.T) (*generic.ApprovalGuard, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	guard := generic.NewApprovalGuard(mem, mem, zerolog.Nop())
	guard.Now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return guard, mem
}

func TestApprovalGuard_ApproveOnce(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)

	_, err := guard.Open(ctx, "leave-1", "leave")
	require.NoError(t, err)

	calls := 0
	res, err := guard.Apply(ctx, "leave-1", generic.Approve("manager-1", "", func(ctx context.Context, a generic.Approval) error {
		calls++
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, generic.ApprovalApproved, res.Approval.Status)
	assert.Equal(t, "manager-1", res.Approval.DecidedBy)
	require.NotNil(t, res.Approval.DecidedAt)
	assert.Equal(t, 1, calls)

	// second attempt is rejected, not ignored
	_, err = guard.Apply(ctx, "leave-1", generic.Approve("manager-2", "", func(ctx context.Context, a generic.Approval) error {
		calls++
		return nil
	}))
	var applied *generic.AlreadyAppliedError
	require.ErrorAs(t, err, &applied)
	assert.Equal(t, generic.ApprovalApproved, applied.Current)
	assert.Equal(t, "leave-1 already approved", err.Error())
	assert.Equal(t, 1, calls)
}

func TestApprovalGuard_RejectThenApprove(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)
	_, err := guard.Open(ctx, "ts-1", "timesheet")
	require.NoError(t, err)

	res, err := guard.Apply(ctx, "ts-1", generic.Reject("manager-1", "hours missing", "", nil))
	require.NoError(t, err)
	assert.Equal(t, generic.ApprovalRejected, res.Approval.Status)
	assert.Equal(t, "hours missing", res.Approval.Reason)

	_, err = guard.Apply(ctx, "ts-1", generic.Approve("manager-1", "", nil))
	assert.ErrorIs(t, err, generic.ErrAlreadyApplied)

	status, err := guard.Status(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, generic.ApprovalRejected, status)
}

func TestApprovalGuard_EffectFailureRollsBackFlip(t *testing.T) {
	// GIVEN: A pending approval whose side effect fails
	// WHEN: Apply runs
	// THEN: The approval is still pending and a retry succeeds

	ctx := context.Background()
	guard, _ := newTestGuard(t)
	_, err := guard.Open(ctx, "leave-1", "leave")
	require.NoError(t, err)

	boom := errors.New("payroll offline")
	_, err = guard.Apply(ctx, "leave-1", generic.Approve("manager-1", "", func(ctx context.Context, a generic.Approval) error {
		return boom
	}))
	require.ErrorIs(t, err, boom)

	status, err := guard.Status(ctx, "leave-1")
	require.NoError(t, err)
	assert.Equal(t, generic.ApprovalPending, status)

	_, err = guard.Apply(ctx, "leave-1", generic.Approve("manager-1", "", nil))
	require.NoError(t, err)
}

func TestApprovalGuard_EffectFailureRollsBackLedger(t *testing.T) {
	ctx := context.Background()
	guard, mem := newTestGuard(t)
	ledger := generic.NewResourceLedger(mem, zerolog.Nop())
	require.NoError(t, mem.SaveResource(ctx, generic.Resource{ID: "annual-emp-1", Type: testResourceType, OnHand: generic.NewAmount(10, generic.UnitDays)}))
	_, err := guard.Open(ctx, "leave-1", "leave")
	require.NoError(t, err)

	_, err = guard.Apply(ctx, "leave-1", generic.Approve("manager-1", "", func(ctx context.Context, a generic.Approval) error {
		if _, err := ledger.TryDecrement(ctx, "annual-emp-1", generic.NewAmount(3, generic.UnitDays), key(string(a.ID), "approval")); err != nil {
			return err
		}
		return errors.New("payslip write failed")
	}))
	require.Error(t, err)

	bal, _ := ledger.Balance(ctx, "annual-emp-1")
	assert.True(t, bal.Equal(generic.NewAmount(10, generic.UnitDays)), "balance = %s", bal)
}

func TestApprovalGuard_TokenReplay(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)
	_, err := guard.Open(ctx, "inv-1", "invoice")
	require.NoError(t, err)

	first, err := guard.Apply(ctx, "inv-1", generic.Approve("clerk", "tok-1", nil))
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := guard.Apply(ctx, "inv-1", generic.Approve("clerk", "tok-1", nil))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Approval.DecidedAt, again.Approval.DecidedAt)

	_, err = guard.Apply(ctx, "inv-1", generic.Approve("clerk", "tok-2", nil))
	assert.ErrorIs(t, err, generic.ErrAlreadyApplied)

	// same token but a different decision is not a replay
	_, err = guard.Apply(ctx, "inv-1", generic.Reject("clerk", "wrong", "tok-1", nil))
	assert.ErrorIs(t, err, generic.ErrAlreadyApplied)
}

func TestApprovalGuard_ConcurrentApprovalsExactlyOneWins(t *testing.T) {
	// GIVEN: One pending leave request and a 10 day balance
	// WHEN: Two managers approve at the same moment
	// THEN: Exactly one succeeds, the balance is decremented once,
	//       and the other gets AlreadyAppliedError{approved}

	ctx := context.Background()
	guard, mem := newTestGuard(t)
	ledger := generic.NewResourceLedger(mem, zerolog.Nop())
	require.NoError(t, mem.SaveResource(ctx, generic.Resource{ID: "annual-emp-1", Type: testResourceType, OnHand: generic.NewAmount(10, generic.UnitDays)}))
	_, err := guard.Open(ctx, "leave-1", "leave")
	require.NoError(t, err)

	effect := func(ctx context.Context, a generic.Approval) error {
		_, err := ledger.TryDecrement(ctx, "annual-emp-1", generic.NewAmount(4, generic.UnitDays), key(string(a.ID), "approval"))
		return err
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = guard.Apply(ctx, "leave-1", generic.Approve("manager", "", effect))
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		var applied *generic.AlreadyAppliedError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &applied):
			already++
			assert.Equal(t, generic.ApprovalApproved, applied.Current)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, already)

	bal, _ := ledger.Balance(ctx, "annual-emp-1")
	assert.True(t, bal.Equal(generic.NewAmount(6, generic.UnitDays)), "balance = %s", bal)
}

func TestApprovalGuard_UnknownEntity(t *testing.T) {
	guard, _ := newTestGuard(t)
	_, err := guard.Apply(context.Background(), "nope", generic.Approve("x", "", nil))
	assert.True(t, generic.IsNotFound(err))
}

func TestApprovalGuard_OpenTwiceFails(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)
	_, err := guard.Open(ctx, "leave-1", "leave")
	require.NoError(t, err)
	_, err = guard.Open(ctx, "leave-1", "leave")
	assert.ErrorIs(t, err, generic.ErrDuplicateRecord)
}
