package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fisc-engine/batch"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
)

func TestScenario_LargeFamily(t *testing.T) {
	// GIVEN: The large-family scenario loaded into the database
	// WHEN: Running its suggested requests on the stored batch
	// THEN: The family receives the full complément familial

	router, _ := setupRouter(t, true)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "large-family"})
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[ScenarioDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/runs", RunRequest{Requests: s.Requests})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[ReportDTO](t, rec)
	require.Len(t, report.Results, 3)
	assert.True(t, d("169.19").Equal(report.Results[0].Value))
	assert.True(t, d("3").Equal(report.Results[2].Value))

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "large-family", decode[ScenarioDTO](t, rec).ID)
}

func TestScenario_LoadResetsDatabase(t *testing.T) {
	router, h := setupRouter(t, true)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "large-family"}).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "employee"}).Code)

	mem, err := h.Store.LoadBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mem.Members(engine.Ref("famille", "f")))
	assert.Len(t, mem.Inputs(engine.Ref("individu", "e"), "salaire_de_base"), 1)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/reset", nil).Code)
	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenario_Unknown(t *testing.T) {
	router, _ := setupRouter(t, true)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenario_AllScenariosEvaluateWithoutError(t *testing.T) {
	_, h := setupRouter(t, false)

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			calc := s.batch()
			calc.Requests = s.Requests
			mem, requests, err := calc.Batch(h.Reference)
			require.NoError(t, err)

			sys, err := h.system(s.System)
			require.NoError(t, err)
			report, err := batch.NewRunner(nil).Run(context.Background(), sys, mem, mem, requests)
			require.NoError(t, err)
			for _, r := range report.Results {
				assert.NoError(t, r.Err, "%s %s", r.Variable, r.Period)
			}
		})
	}
}

func TestScenario_EmployeeContributions(t *testing.T) {
	_, h := setupRouter(t, false)
	s, ok := findScenario("employee")
	require.True(t, ok)

	calc := s.batch()
	calc.Requests = []RequestDTO{{Kind: "individu", ID: "e", Variable: "cotisations_salariales", Period: periods.MonthOf(2014, time.March)}}
	mem, requests, err := calc.Batch(h.Reference)
	require.NoError(t, err)

	report, err := batch.NewRunner(nil).Run(context.Background(), h.Reference, mem, mem, requests)
	require.NoError(t, err)
	assert.True(t, d("-318.772").Equal(report.Results[0].Value))
}
