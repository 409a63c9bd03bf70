/*
scenarios_test.go - Tests for the demo scenario endpoints

PURPOSE:
	Loads every embedded scenario through the API and checks that the
	database ends up in the state the scenario describes. Loading twice
	must give the same result, since every load starts from a reset.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListScenarios_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)

	require.Len(t, list, 2)
	assert.Equal(t, "paper-core-basic", list[0].ID)
	assert.Equal(t, "partial-invoicing", list[1].ID)
}

func TestLoadScenario_PartialInvoicing(t *testing.T) {
	_, router := setupTestHandler(t)

	// WHEN: The scenario is loaded twice
	for i := 0; i < 2; i++ {
		rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "partial-invoicing"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[LoadScenarioResponse](t, rec)

		// THEN: Each load starts from scratch
		assert.Equal(t, []string{"ACME-0001"}, resp.Orders)
		assert.Equal(t, []string{"INV-0036", "INV-0036~2"}, resp.Invoices)
	}

	rec := do(t, router, http.MethodGet, "/api/orders?client_id=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]OrderDTO](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, "partial", orders[0].InvoiceState.Kind)
	assert.Equal(t, 1140, orders[0].RemainingQuantity)

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial-invoicing", decode[map[string]string](t, rec)["scenario_id"])

	// AND: The next invoice continues the order's suffixes
	rec = do(t, router, http.MethodPost, "/api/orders/"+orders[0].ID+"/invoices", map[string]any{
		"items": []map[string]any{{"product_id": "core-76", "quantity": 640}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "INV-0036~3", decode[InvoiceResultDTO](t, rec).Invoice.InvoiceNumber)
}

func TestLoadScenario_PaperCoreBasic(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "paper-core-basic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[LoadScenarioResponse](t, rec)
	assert.Equal(t, 4, resp.Resources)
	assert.Equal(t, 2, resp.Employees)
	assert.Len(t, resp.Orders, 4)

	rec = do(t, router, http.MethodGet, "/api/archives", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ArchiveDTO](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/resources?domain=production&low=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	low := decode[[]ResourceDTO](t, rec)
	require.Len(t, low, 1)
	assert.Equal(t, "reel-120gsm", low[0].ID)

	rec = do(t, router, http.MethodGet, "/api/resources?domain=staffing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, r := range decode[[]ResourceDTO](t, rec) {
		assert.Equal(t, "days", r.Unit)
	}

	rec = do(t, router, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]EmployeeDTO](t, rec), 2)
}

func TestResetDatabase_OverHTTP(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "paper-core-basic"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]OrderDTO](t, rec))

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "", decode[map[string]string](t, rec)["scenario_id"])

	// Stock can be defined again from scratch
	createReel(t, router, 5)
	reel := decode[ResourceDTO](t, do(t, router, http.MethodGet, "/api/resources/reel-90gsm", nil))
	assert.True(t, reel.OnHand.Equal(decimal.NewFromInt(5)))
}
