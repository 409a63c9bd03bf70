package generic_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// testResource is a concrete ResourceType for tests
type testResource string

func (r testResource) ResourceID() string     { return string(r) }
func (r testResource) ResourceDomain() string { return "test" }

const testResourceType testResource = "test_resource"

func kg(n float64) generic.Amount {
	return generic.NewAmount(n, generic.UnitKilograms)
}

func newTestLedger(t *testing.T, onHand float64) (*generic.ResourceLedger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveResource(context.Background(), generic.Resource{
		ID:     "reel-1",
		Type:   testResourceType,
		Name:   "Kraft reel 120gsm",
		OnHand: kg(onHand),
	}))
	return generic.NewResourceLedger(mem, zerolog.Nop()), mem
}

func key(owner, purpose string) generic.AllocationKey {
	return generic.AllocationKey{OwnerID: owner, Purpose: purpose}
}

// =============================================================================
// TRY DECREMENT
// =============================================================================

func TestTryDecrement_TakesStock(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, 100)

	alloc, err := ledger.TryDecrement(ctx, "reel-1", kg(30), key("order-1", "paper_slitting"))
	require.NoError(t, err)
	assert.False(t, alloc.Replayed)
	assert.True(t, alloc.Remaining.Equal(kg(70)), "remaining = %s", alloc.Remaining)
	assert.True(t, alloc.Movement.Delta.Equal(kg(-30)))

	bal, err := ledger.Balance(ctx, "reel-1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(kg(70)))
}

func TestTryDecrement_InsufficientStockLeavesCounterUntouched(t *testing.T) {
	// GIVEN: 10kg on hand
	// WHEN: 11kg is requested
	// THEN: InsufficientStockError with the shortfall, on-hand still 10kg

	ctx := context.Background()
	ledger, _ := newTestLedger(t, 10)

	_, err := ledger.TryDecrement(ctx, "reel-1", kg(11), key("order-1", "paper_slitting"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrInsufficientStock))

	var stockErr *generic.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Shortfall().Equal(kg(1)))

	bal, err := ledger.Balance(ctx, "reel-1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(kg(10)))
}

func TestTryDecrement_SameKeyReplays(t *testing.T) {
	// GIVEN: An order already took 40kg for paper_slitting
	// WHEN: The same (order, stage) key is decremented again
	// THEN: The original allocation is returned and stock is not taken twice

	ctx := context.Background()
	ledger, _ := newTestLedger(t, 100)
	k := key("order-1", "paper_slitting")

	first, err := ledger.TryDecrement(ctx, "reel-1", kg(40), k)
	require.NoError(t, err)

	second, err := ledger.TryDecrement(ctx, "reel-1", kg(40), k)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Movement.ID, second.Movement.ID)

	bal, _ := ledger.Balance(ctx, "reel-1")
	assert.True(t, bal.Equal(kg(60)), "balance = %s", bal)
}

func TestTryDecrement_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, 100)

	_, err := ledger.TryDecrement(ctx, "reel-1", kg(0), key("o", "s"))
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = ledger.TryDecrement(ctx, "reel-1", kg(1), generic.AllocationKey{})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = ledger.TryDecrement(ctx, "reel-1", generic.NewAmount(1, generic.UnitDays), key("o", "s"))
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = ledger.TryDecrement(ctx, "missing", kg(1), key("o", "s"))
	assert.True(t, generic.IsNotFound(err))
}

func TestTryDecrement_ConcurrentCallersNeverOversell(t *testing.T) {
	// GIVEN: Q = 100kg on hand, K = 50 callers each asking for a = 7kg
	// WHEN: All callers race
	// THEN: At most floor(100/7) = 14 succeed, the rest get InsufficientStock,
	//       and on-hand is never negative

	ctx := context.Background()
	ledger, _ := newTestLedger(t, 100)

	const callers = 50
	var wins, refusals atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.TryDecrement(ctx, "reel-1", kg(7), key(string(rune('A'+i)), "paper_slitting"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, generic.ErrInsufficientStock):
				refusals.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(14), wins.Load())
	assert.Equal(t, int32(callers-14), refusals.Load())

	bal, err := ledger.Balance(ctx, "reel-1")
	require.NoError(t, err)
	assert.False(t, bal.IsNegative())
	assert.True(t, bal.Equal(kg(2)), "balance = %s", bal)
}

func TestTryDecrement_ConcurrentSameKeyDecrementsOnce(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, 100)
	k := key("order-1", "paper_slitting")

	var wg sync.WaitGroup
	var replays atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := ledger.TryDecrement(ctx, "reel-1", kg(10), k)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if alloc.Replayed {
				replays.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(19), replays.Load())
	bal, _ := ledger.Balance(ctx, "reel-1")
	assert.True(t, bal.Equal(kg(90)), "balance = %s", bal)
}

// =============================================================================
// RELEASE
// =============================================================================

func TestRelease_CreditsBackOnce(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newTestLedger(t, 100)
	k := key("order-1", "paper_slitting")

	_, err := ledger.TryDecrement(ctx, "reel-1", kg(25), k)
	require.NoError(t, err)

	mv, err := ledger.Release(ctx, k, "order cancelled")
	require.NoError(t, err)
	assert.Equal(t, generic.MovementRelease, mv.Type)
	assert.True(t, mv.Remaining.Equal(kg(100)))

	_, err = ledger.Release(ctx, k, "order cancelled")
	assert.ErrorIs(t, err, generic.ErrAlreadyReleased)

	_, err = ledger.Release(ctx, key("order-2", "paper_slitting"), "never allocated")
	assert.ErrorIs(t, err, generic.ErrAllocationNotFound)

	mvs, err := mem.Movements(ctx, "reel-1")
	require.NoError(t, err)
	require.Len(t, mvs, 2)
	assert.True(t, mvs[0].Released)
}

func TestReleaseOwner_SkipsReleasedAllocations(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newTestLedger(t, 100)
	require.NoError(t, mem.SaveResource(ctx, generic.Resource{ID: "glue-1", Type: testResourceType, OnHand: kg(5)}))

	_, err := ledger.TryDecrement(ctx, "reel-1", kg(20), key("order-1", "paper_slitting"))
	require.NoError(t, err)
	_, err = ledger.TryDecrement(ctx, "glue-1", kg(2), key("order-1", "paper_slitting/glue-1"))
	require.NoError(t, err)
	_, err = ledger.Release(ctx, key("order-1", "paper_slitting"), "manual")
	require.NoError(t, err)

	released, err := ledger.ReleaseOwner(ctx, "order-1", "order cancelled")
	require.NoError(t, err)
	assert.Len(t, released, 1)

	glue, _ := ledger.Balance(ctx, "glue-1")
	assert.True(t, glue.Equal(kg(5)))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestRunInTx_RollsBackDecrementOnError(t *testing.T) {
	// GIVEN: A decrement made inside a transaction
	// WHEN: A later step of the same transaction fails
	// THEN: Stock, movements and the allocation key are all restored

	ctx := context.Background()
	ledger, mem := newTestLedger(t, 100)
	k := key("order-1", "paper_slitting")
	boom := errors.New("archive unavailable")

	err := mem.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := ledger.TryDecrement(ctx, "reel-1", kg(60), k); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, _ := ledger.Balance(ctx, "reel-1")
	assert.True(t, bal.Equal(kg(100)))

	mvs, _ := mem.Movements(ctx, "reel-1")
	assert.Empty(t, mvs)

	// the key is free again
	alloc, err := ledger.TryDecrement(ctx, "reel-1", kg(60), k)
	require.NoError(t, err)
	assert.False(t, alloc.Replayed)
}

func TestRunInTx_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newTestLedger(t, 100)
	boom := errors.New("outer failed")

	err := mem.RunInTx(ctx, func(ctx context.Context) error {
		inner := mem.RunInTx(ctx, func(ctx context.Context) error {
			_, err := ledger.Restock(ctx, "reel-1", kg(50), "delivery")
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, _ := ledger.Balance(ctx, "reel-1")
	assert.True(t, bal.Equal(kg(100)), "inner restock must roll back with the outer tx")
}
