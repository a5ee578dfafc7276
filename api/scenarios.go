/*
scenarios.go - Demo household batches for testing and demonstrations

PURPOSE:
  Provides pre-built batches that populate the database with realistic
  households. Each scenario lists the requests worth running on it.

AVAILABLE SCENARIOS:
  single-taxpayer:   One declarant, income tax 2013 and 2014
  large-family:      Two parents, three children, complément familial 2014
  employee:          Yearly wage, monthly social contributions
  plfr2014:          Income just above the exceptional reduction threshold

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Validate the batch against the reference entities
  3. Save households and inputs
  4. POST /api/runs with the scenario's requests

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "large-family"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/catalog"
	"github.com/warp/fisc-engine/periods"
)

// ScenarioDTO describes a demo batch.
type ScenarioDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	System      string       `json:"system,omitempty"`
	Requests    []RequestDTO `json:"requests"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type scenario struct {
	ScenarioDTO
	batch func() CalculateRequest
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "single-taxpayer",
			Name:        "Single Taxpayer",
			Description: "One declarant with 30000 of gross income and 500 of reductions",
			Category:    "impot",
			Requests: []RequestDTO{
				foyerRequest("iaidrdi", periods.YearOf(2013)),
				foyerRequest("iaidrdi", periods.YearOf(2014)),
				foyerRequest("iaidrdi", periods.MonthOf(2014, time.January)),
			},
		},
		batch: singleTaxpayer,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "large-family",
			Name:        "Large Family",
			Description: "Two working parents and three children aged 5, 8 and 10",
			Category:    "prestations",
			Requests: []RequestDTO{
				{Kind: catalog.Famille, ID: "f", Variable: "cf", Period: periods.MonthOf(2014, time.June)},
				{Kind: catalog.Famille, ID: "f", Variable: "cf_plafond", Period: periods.MonthOf(2014, time.June)},
				{Kind: catalog.Famille, ID: "f", Variable: "cf_nbenf", Period: periods.MonthOf(2014, time.June)},
			},
		},
		batch: largeFamily,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "employee",
			Name:        "Employee",
			Description: "48000 of yearly base wage in 2014",
			Category:    "cotisations",
			Requests: []RequestDTO{
				{Kind: catalog.Individu, ID: "e", Variable: "cotisations_salariales", Period: periods.MonthOf(2014, time.March)},
				{Kind: catalog.Individu, ID: "e", Variable: "cotisations_salariales", Period: periods.YearOf(2014)},
			},
		},
		batch: employee,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "plfr2014",
			Name:        "PLFR 2014 Threshold",
			Description: "Reference income just above the exceptional reduction threshold",
			Category:    "reformes",
			System:      "plfr2014",
			Requests: []RequestDTO{
				foyerRequest("reduction_impot_exceptionnelle", periods.YearOf(2013)),
				foyerRequest("iaidrdi", periods.YearOf(2013)),
			},
		},
		batch: func() CalculateRequest { return taxpayer("13900", "0") },
	},
}

func foyerRequest(variable string, p periods.Period) RequestDTO {
	return RequestDTO{Kind: catalog.FoyerFiscal, ID: "ff", Variable: variable, Period: p}
}

func taxpayer(rbg, reductions string) CalculateRequest {
	req := CalculateRequest{
		Households: []HouseholdDTO{{
			Kind:    catalog.FoyerFiscal,
			ID:      "ff",
			Members: []MemberDTO{{Kind: catalog.Individu, ID: "a", Role: catalog.RoleDeclarant}},
		}},
	}
	for _, year := range []int{2013, 2014} {
		req.Inputs = append(req.Inputs,
			InputDTO{Kind: catalog.FoyerFiscal, ID: "ff", Variable: "rbg", Period: periods.YearOf(year), Value: decimal.RequireFromString(rbg)},
			InputDTO{Kind: catalog.FoyerFiscal, ID: "ff", Variable: "reductions_diverses", Period: periods.YearOf(year), Value: decimal.RequireFromString(reductions)},
		)
	}
	return req
}

func singleTaxpayer() CalculateRequest { return taxpayer("30000", "500") }

func largeFamily() CalculateRequest {
	june := periods.MonthOf(2014, time.June)
	req := CalculateRequest{
		Households: []HouseholdDTO{{
			Kind: catalog.Famille,
			ID:   "f",
			Members: []MemberDTO{
				{Kind: catalog.Individu, ID: "p1", Role: catalog.RoleParent},
				{Kind: catalog.Individu, ID: "p2", Role: catalog.RoleParent},
				{Kind: catalog.Individu, ID: "c1", Role: catalog.RoleEnfant},
				{Kind: catalog.Individu, ID: "c2", Role: catalog.RoleEnfant},
				{Kind: catalog.Individu, ID: "c3", Role: catalog.RoleEnfant},
			},
		}},
		Inputs: []InputDTO{
			{Kind: catalog.Individu, ID: "p1", Variable: "revenu_activite", Period: periods.YearOf(2012), Value: decimal.NewFromInt(15000)},
			{Kind: catalog.Individu, ID: "p2", Variable: "revenu_activite", Period: periods.YearOf(2012), Value: decimal.NewFromInt(10000)},
		},
	}
	for id, age := range map[string]int64{"c1": 5, "c2": 8, "c3": 10} {
		req.Inputs = append(req.Inputs, InputDTO{Kind: catalog.Individu, ID: id, Variable: "age", Period: june, Value: decimal.NewFromInt(age)})
	}
	return req
}

func employee() CalculateRequest {
	return CalculateRequest{
		Inputs: []InputDTO{
			{Kind: catalog.Individu, ID: "e", Variable: "salaire_de_base", Period: periods.YearOf(2014), Value: decimal.NewFromInt(48000)},
		},
	}
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the database and saves a scenario's batch.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Scenario not found", fmt.Errorf("unknown scenario %q", req.ScenarioID))
		return
	}

	calc := s.batch()
	calc.Requests = s.Requests
	mem, _, err := calc.Batch(h.Reference)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid scenario", err)
		return
	}

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := h.Store.SaveBatch(r.Context(), mem); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}
