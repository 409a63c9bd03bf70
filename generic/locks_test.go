package generic_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/generic"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := generic.NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "order-1")
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, km.Len(), "idle keys are freed")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := generic.NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "order-a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "order-b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancelWhileWaiting(t *testing.T) {
	km := generic.NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "order-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "order-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, km.Len())
}

func TestWorkdaysBetween(t *testing.T) {
	cal := generic.StaticCalendar{
		{Date: time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC), Name: "Christmas", Recurring: true},
		{Date: time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), Name: "Boxing Day"},
	}

	// Mon 22 Dec 2025 .. Fri 2 Jan 2026: 10 weekdays, minus 25th and 26th
	from := time.Date(2025, 12, 22, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 8, generic.WorkdaysBetween(from, to, cal))
	assert.Equal(t, 10, generic.WorkdaysBetween(from, to, nil))
	assert.Equal(t, 0, generic.WorkdaysBetween(to, from, cal))

	// recurring holiday repeats the next year
	assert.True(t, cal.IsHoliday(time.Date(2026, 12, 25, 15, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsHoliday(time.Date(2026, 12, 26, 0, 0, 0, 0, time.UTC)))
}
