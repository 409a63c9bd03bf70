package factory_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fulfillment-engine/factory"
	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
	"github.com/warp/fulfillment-engine/store/sqlite"
)

func newTestSeeder(t *testing.T) (*factory.Seeder, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := generic.NewResourceLedger(store, zerolog.Nop())
	guard := generic.NewApprovalGuard(store, store, zerolog.Nop())
	prod := production.NewService(store, ledger, guard, production.DefaultInvoiceConfig(), zerolog.Nop())
	staff := staffing.NewService(store, ledger, guard, nil, zerolog.Nop())
	return factory.NewSeeder(prod, staff, zerolog.Nop()), store
}

func TestParseFixture_Valid(t *testing.T) {
	fx, err := factory.ParseFixture([]byte(`
name: tiny
materials:
  - {id: reel-a, type: paper_reel, unit: kg, on_hand: "100"}
orders:
  - client_id: acme
    items:
      - {product_id: core-76, quantity: 10, unit_price: "0.85"}
    materials:
      - {resource_id: reel-a, quantity: "5"}
`))
	require.NoError(t, err)
	assert.Equal(t, "tiny", fx.Name)
	require.Len(t, fx.Orders, 1)
	assert.Equal(t, 10, fx.Orders[0].Items[0].Quantity)
}

func TestParseFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "   "},
		{"bad yaml", "materials: ["},
		{"unknown material type", `materials: [{id: x, type: cardboard, unit: kg, on_hand: "1"}]`},
		{"leave type as material", `materials: [{id: x, type: annual_leave, unit: days, on_hand: "1"}]`},
		{"float-ish garbage", `materials: [{id: x, type: glue, unit: kg, on_hand: "lots"}]`},
		{"negative stock", `materials: [{id: x, type: glue, unit: kg, on_hand: "-1"}]`},
		{"undefined material", `orders: [{client_id: a, items: [{product_id: p, quantity: 1, unit_price: "1"}], materials: [{resource_id: nope, quantity: "1"}]}]`},
		{"unknown stage", `orders: [{client_id: a, items: [{product_id: p, quantity: 1, unit_price: "1"}], advance_to: shipped}]`},
		{"unknown leave", `employees: [{id: e, name: E, leave: {gardening_leave: "5"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestListScenarios(t *testing.T) {
	list, err := factory.ListScenarios()
	require.NoError(t, err)

	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
		assert.NotEmpty(t, s.Name)
	}
	assert.Equal(t, []string{"paper-core-basic", "partial-invoicing"}, ids)

	_, err = factory.LoadScenario("../go.mod")
	assert.ErrorIs(t, err, factory.ErrUnknownScenario)
	_, err = factory.LoadScenario("missing")
	assert.ErrorIs(t, err, factory.ErrUnknownScenario)
}

func TestApply_PartialInvoicingScenario(t *testing.T) {
	ctx := context.Background()
	seeder, store := newTestSeeder(t)

	fx, err := factory.LoadScenario("partial-invoicing")
	require.NoError(t, err)

	// WHEN: The scenario is applied
	sum, err := seeder.Apply(ctx, fx)
	require.NoError(t, err)

	// THEN: Two invoices numbered from the seeded counter
	assert.Equal(t, []string{"ACME-0001"}, sum.Orders)
	assert.Equal(t, []string{"INV-0036", "INV-0036~2"}, sum.Invoices)

	orders, err := store.ListOrders(ctx, production.OrderFilter{ClientID: "acme"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, production.StageDelivery, orders[0].CurrentStage)
	assert.Equal(t, 1140, orders[0].RemainingQuantity())

	// AND: Slitting took the reel
	r, err := store.GetResource(ctx, "reel-90gsm")
	require.NoError(t, err)
	assert.True(t, r.OnHand.Value.Equal(decimal.NewFromInt(180)))
}

func TestApply_PaperCoreBasicScenario(t *testing.T) {
	ctx := context.Background()
	seeder, store := newTestSeeder(t)

	fx, err := factory.LoadScenario("paper-core-basic")
	require.NoError(t, err)

	sum, err := seeder.Apply(ctx, fx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Resources)
	assert.Equal(t, 2, sum.Employees)
	assert.Equal(t, []string{"ACME-0001", "ACME-0002", "KIWI-0001", "KIWI-0002"}, sum.Orders)

	// The cleared order has its archive
	archives, err := store.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, "KIWI-0002", archives[0].Order.OrderNumber)

	// Leave balances were granted
	bal, err := store.GetResource(ctx, staffing.BalanceID(staffing.LeaveAnnual, "emp-robin"))
	require.NoError(t, err)
	assert.True(t, bal.OnHand.Value.Equal(decimal.NewFromInt(20)))

	// 1200 - 140 - 95 taken by the orders that reached slitting
	reel, err := store.GetResource(ctx, "reel-90gsm")
	require.NoError(t, err)
	assert.True(t, reel.OnHand.Value.Equal(decimal.NewFromInt(965)))

	// The 120gsm reel is already below its reorder level
	low, err := store.GetResource(ctx, "reel-120gsm")
	require.NoError(t, err)
	assert.True(t, low.BelowReorderLevel())
}
