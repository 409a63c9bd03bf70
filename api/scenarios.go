/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Exposes the fixtures embedded in the factory package. Loading a scenario
	wipes the database and replays the fixture through the real services, so
	every order, allocation and invoice it creates obeys the same rules as
	live traffic.

AVAILABLE SCENARIOS:

	paper-core-basic:  Stock, two employees, orders at several stages
	partial-invoicing: One order of 2640 cores invoiced in two parts from INV-0036

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load  {"scenario_id": "partial-invoicing"}
	POST /api/scenarios/reset

ADDING NEW SCENARIOS:
 1. Drop a YAML file into factory/scenarios/
 2. Its file name (without .yaml) is the scenario id

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/fixture.go: YAML schema and Seeder
  - factory/scenarios.go: Embedded scenario registry
*/
package api

import (
	"net/http"

	"github.com/warp/fulfillment-engine/factory"
)

// ListScenarios returns the embedded scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := factory.ListScenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenarios", err)
		return
	}
	dtos := make([]ScenarioDTO, len(list))
	for i, s := range list {
		dtos[i] = toScenarioDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the id of the last scenario loaded, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the database and applies a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fx, err := factory.LoadScenario(req.ScenarioID)
	if err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	sum, err := h.Seeder.Apply(ctx, fx)
	if err != nil {
		writeDomainError(w, "Failed to apply scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	logger := h.requestLogger(r)
	logger.Info().
		Str("scenario", req.ScenarioID).
		Int("orders", len(sum.Orders)).
		Int("invoices", len(sum.Invoices)).
		Msg("scenario loaded")

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Scenario:  req.ScenarioID,
		Resources: sum.Resources,
		Employees: sum.Employees,
		Orders:    nonNil(sum.Orders),
		Invoices:  nonNil(sum.Invoices),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	logger := h.requestLogger(r)
	logger.Warn().Msg("database reset")

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
