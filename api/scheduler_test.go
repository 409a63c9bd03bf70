package api

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
	"github.com/warp/fulfillment-engine/store/sqlite"
)

func seedMonitorStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	resources := []generic.Resource{
		{ID: "reel-120gsm", Type: production.MaterialPaperReel, OnHand: generic.NewAmountFromInt(150, generic.UnitKilograms), ReorderLevel: generic.NewAmountFromInt(200, generic.UnitKilograms)},
		{ID: "glue-pva", Type: production.MaterialGlue, OnHand: generic.NewAmountFromInt(80, generic.UnitKilograms), ReorderLevel: generic.NewAmountFromInt(10, generic.UnitKilograms)},
		// Leave balances are never stock, whatever their level
		{ID: staffing.BalanceID(staffing.LeaveAnnual, "emp-1"), Type: staffing.LeaveAnnual, OnHand: generic.NewAmountFromInt(0, generic.UnitDays), ReorderLevel: generic.NewAmountFromInt(1, generic.UnitDays)},
	}
	for _, r := range resources {
		require.NoError(t, store.SaveResource(ctx, r))
	}
	return store
}

func TestLowStockMonitor_CheckNow(t *testing.T) {
	// GIVEN: One reel below its reorder level
	store := seedMonitorStore(t)
	var buf bytes.Buffer
	monitor := NewLowStockMonitor(store, zerolog.New(&buf))
	ctx := context.Background()

	// WHEN: Checked twice
	low := monitor.CheckNow(ctx)
	monitor.CheckNow(ctx)

	// THEN: Only the reel is low, and it is reported once
	require.Len(t, low, 1)
	assert.Equal(t, generic.ResourceID("reel-120gsm"), low[0].ID)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("stock at or below reorder level")))

	// AND: A restock clears it and logs the recovery
	ledger := generic.NewResourceLedger(store, zerolog.Nop())
	_, err := ledger.Restock(ctx, "reel-120gsm", generic.NewAmountFromInt(500, generic.UnitKilograms), "delivery")
	require.NoError(t, err)

	assert.Empty(t, monitor.CheckNow(ctx))
	assert.Contains(t, buf.String(), "stock recovered above reorder level")
}

func TestLowStockMonitor_RunStopsWithContext(t *testing.T) {
	store := seedMonitorStore(t)
	monitor := NewLowStockMonitor(store, zerolog.Nop())
	monitor.CheckInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestLowStockMonitor_Disabled(t *testing.T) {
	monitor := NewLowStockMonitor(seedMonitorStore(t), zerolog.Nop())
	monitor.Enabled = false

	monitor.Start()
	monitor.Stop()
	assert.Nil(t, monitor.ticker)
}
