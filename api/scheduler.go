/*
scheduler.go - Low stock monitor

PURPOSE:
  Periodically scans the resource ledger and warns when production stock
  is at or below its reorder level, so purchasing can restock before an
  order is blocked at paper_slitting.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only production-domain resources are checked (leave balances are not stock)
  - A resource is reported once when it drops low and once when it recovers,
    not on every tick

CONFIGURATION:
  - CheckInterval: How often to check (LOW_STOCK_INTERVAL, default 15m)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewLowStockMonitor(store, log)
  monitor.Start()
  // ... later
  monitor.Stop()

  Or, under an errgroup: g.Go(func() error { return monitor.Run(ctx) })

SEE ALSO:
  - handlers.go: GET /api/resources?low=true (same check on demand)
  - generic/types.go: Resource.BelowReorderLevel
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/fulfillment-engine/generic"
)

// ResourceLister is the slice of the store the monitor needs.
type ResourceLister interface {
	ListResources(ctx context.Context) ([]generic.Resource, error)
}

// LowStockMonitor logs production stock that needs reordering.
type LowStockMonitor struct {
	Store         ResourceLister
	Log           zerolog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// low holds the resources currently reported as low. It has its own
	// lock because Stop holds mu while waiting for an in-flight check.
	lowMu sync.Mutex
	low   map[generic.ResourceID]bool
}

// NewLowStockMonitor creates a new monitor.
func NewLowStockMonitor(store ResourceLister, log zerolog.Logger) *LowStockMonitor {
	return &LowStockMonitor{
		Store:         store,
		Log:           log.With().Str("component", "low_stock_monitor").Logger(),
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		low:           make(map[generic.ResourceID]bool),
	}
}

// Start begins the monitor.
func (m *LowStockMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.Log.Info().Msg("disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.ticker, m.stop)

	m.Log.Info().Dur("interval", m.CheckInterval).Msg("started")
}

// Stop stops the monitor and waits for an in-flight check.
func (m *LowStockMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.Log.Info().Msg("stopped")
	}
}

// Run starts the monitor and blocks until ctx is done.
func (m *LowStockMonitor) Run(ctx context.Context) error {
	m.Start()
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *LowStockMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()

	// Run immediately on start
	m.CheckNow(context.Background())

	for {
		select {
		case <-ticker.C:
			m.CheckNow(context.Background())
		case <-stop:
			return
		}
	}
}

// CheckNow scans the ledger once and returns the production resources that
// are at or below their reorder level.
func (m *LowStockMonitor) CheckNow(ctx context.Context) []generic.Resource {
	resources, err := m.Store.ListResources(ctx)
	if err != nil {
		m.Log.Error().Err(err).Msg("failed to list resources")
		return nil
	}

	var low []generic.Resource
	seen := make(map[generic.ResourceID]bool)
	for _, r := range resources {
		if r.Type == nil || r.Type.ResourceDomain() != "production" {
			continue
		}
		if !r.BelowReorderLevel() {
			continue
		}
		low = append(low, r)
		seen[r.ID] = true
	}

	m.report(low, seen)
	return low
}

func (m *LowStockMonitor) report(low []generic.Resource, seen map[generic.ResourceID]bool) {
	m.lowMu.Lock()
	defer m.lowMu.Unlock()

	for _, r := range low {
		if m.low[r.ID] {
			continue
		}
		m.low[r.ID] = true
		m.Log.Warn().
			Str("resource", string(r.ID)).
			Str("on_hand", r.OnHand.String()).
			Str("reorder_level", r.ReorderLevel.String()).
			Msg("stock at or below reorder level")
	}
	for id := range m.low {
		if !seen[id] {
			delete(m.low, id)
			m.Log.Info().Str("resource", string(id)).Msg("stock recovered above reorder level")
		}
	}
}
