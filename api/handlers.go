/*
handlers.go - HTTP API handlers for the evaluation engine

PURPOSE:
  Exposes the catalog, its reforms and the batch runner via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  engine through batch.Runner.

ENDPOINTS:
  Introspection:
    GET    /api/systems                 Reference and registered reforms
    GET    /api/variables?system=       Variables of a system
    GET    /api/parameters/{path}       Legislation item at ?at=YYYY-MM-DD

  Evaluation:
    POST   /api/calculate               Evaluate requests on posted households
    POST   /api/compare                 Same, against the reference and reforms

  Stored batches (only with a store):
    POST   /api/runs                    Evaluate requests on the stored batch
    GET    /api/runs                    List saved runs
    GET    /api/runs/{id}               Saved run with its results
    POST   /api/reset                   Clear the database

  Scenarios (only with a store):
    GET    /api/scenarios               List demo batches
    GET    /api/scenarios/current       Last loaded scenario
    POST   /api/scenarios/load          Reset and load a demo batch

SYSTEMS:
  A system is named by its reform stack: "" or "france" for the reference,
  "ir2007,no_tax_reductions" for two reforms applied in that order. Built
  systems are cached by name.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, unknown system, invalid household
  - 404: Unknown parameter path or run
  - 422: At least one request failed; the full report is still returned
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo batches
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/fisc-engine/batch"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/engine/store"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
	"github.com/warp/fisc-engine/reforms"
	"github.com/warp/fisc-engine/store/sqlite"
)

const timeFormat = time.RFC3339

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reference *engine.System
	Runner    *batch.Runner

	// Store is optional. Without it the stored batch routes are not mounted
	// and "save" is rejected.
	Store *sqlite.Store

	mu              sync.Mutex
	systems         map[string]*engine.System
	currentScenario string
}

// NewHandler creates a handler evaluating against ref and its reforms.
func NewHandler(ref *engine.System, runner *batch.Runner, st *sqlite.Store) *Handler {
	if runner == nil {
		runner = batch.NewRunner(nil)
	}
	return &Handler{
		Reference: ref,
		Runner:    runner,
		Store:     st,
		systems:   make(map[string]*engine.System),
	}
}

// system resolves a reform stack name.
func (h *Handler) system(name string) (*engine.System, error) {
	keys := reforms.ParseStack(name, h.Reference.Name())
	if len(keys) == 0 {
		return h.Reference, nil
	}
	canonical := strings.Join(keys, ",")

	h.mu.Lock()
	defer h.mu.Unlock()
	if sys, ok := h.systems[canonical]; ok {
		return sys, nil
	}
	sys, err := reforms.Build(h.Reference, keys...)
	if err != nil {
		return nil, err
	}
	h.systems[canonical] = sys
	return sys, nil
}

// =============================================================================
// INTROSPECTION HANDLERS
// =============================================================================

// ListSystems returns the reference name and the registered reforms.
func (h *Handler) ListSystems(w http.ResponseWriter, r *http.Request) {
	infos := reforms.List()
	dtos := make([]SystemDTO, len(infos))
	for i, info := range infos {
		dtos[i] = SystemDTO{Key: info.Key, Label: info.Label}
	}
	writeJSON(w, http.StatusOK, SystemsResponse{Reference: h.Reference.Name(), Reforms: dtos})
}

// ListVariables returns the variables of a system.
// GET /api/variables?system=ir2007
func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	sys, err := h.system(r.URL.Query().Get("system"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown system", err)
		return
	}

	vars := sys.Variables()
	dtos := make([]VariableDTO, len(vars))
	for i, v := range vars {
		dtos[i] = VariableDTO{
			Name:     v.Name,
			Label:    v.Label,
			Entity:   v.Entity,
			Policy:   v.Policy.String(),
			Input:    v.Input,
			Formulas: v.Formulas,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"system": sys.Name(), "variables": dtos})
}

// GetParameter resolves the legislation item at a dotted path.
// GET /api/parameters/ir.bareme?at=2013-01-01&system=ir2007
func (h *Handler) GetParameter(w http.ResponseWriter, r *http.Request) {
	sys, err := h.system(r.URL.Query().Get("system"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown system", err)
		return
	}

	at := periods.FromTime(time.Now())
	if s := r.URL.Query().Get("at"); s != "" {
		if at, err = periods.ParseInstant(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid instant, expected YYYY-MM-DD", err)
			return
		}
	}

	path := chi.URLParam(r, "path")
	item, err := sys.Legislation().Lookup(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "Parameter not found", err)
		return
	}

	dto := ParameterDTO{Path: path, Kind: item.Kind(), At: at}
	switch it := item.(type) {
	case *legislation.Parameter:
		v, err := sys.Legislation().Resolve(path, at)
		if err != nil {
			writeError(w, http.StatusNotFound, "No value at instant", err)
			return
		}
		dto.Value = &v
	case *legislation.Scale:
		scale, err := sys.Legislation().ResolveScale(path, at)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, legislation.ErrNoValueAtInstant) {
				status = http.StatusNotFound
			}
			writeError(w, status, "Failed to resolve scale", err)
			return
		}
		for _, b := range scale.Brackets {
			dto.Brackets = append(dto.Brackets, BracketDTO{Threshold: b.Threshold, Rate: b.Rate})
		}
	case *legislation.Node:
		dto.Children = it.Names()
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// EVALUATION HANDLERS
// =============================================================================

// Calculate evaluates requests on the posted households.
// POST /api/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Save && h.Store == nil {
		writeError(w, http.StatusBadRequest, "Persistence is disabled", nil)
		return
	}

	sys, err := h.system(req.System)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown system", err)
		return
	}
	mem, requests, err := req.Batch(sys)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch", err)
		return
	}

	report, err := h.Runner.Run(r.Context(), sys, mem, mem, requests)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Evaluation aborted", err)
		return
	}

	if req.Save {
		if err := h.Store.SaveBatch(r.Context(), mem); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save batch", err)
			return
		}
		if err := h.Store.SaveReport(r.Context(), report); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save report", err)
			return
		}
	}

	writeJSON(w, reportStatus(report), NewReportDTO(report, sys))
}

// Compare evaluates the same batch against a base system and each reform
// stacked on it.
// POST /api/compare
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Reforms) == 0 {
		writeError(w, http.StatusBadRequest, "At least one reform is required", nil)
		return
	}

	base, err := h.system(req.System)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown system", err)
		return
	}
	baseKeys := reforms.ParseStack(req.System, h.Reference.Name())
	alternatives := make([]*engine.System, len(req.Reforms))
	for i, key := range req.Reforms {
		alternatives[i], err = h.system(strings.Join(append(append([]string(nil), baseKeys...), key), ","))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unknown reform", err)
			return
		}
	}

	mem, requests, err := req.CalculateRequest.Batch(base)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch", err)
		return
	}

	reports, err := h.Runner.Compare(r.Context(), base, alternatives, mem, mem, requests)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Evaluation aborted", err)
		return
	}

	resp := CompareResponse{
		Reports: make([]ReportDTO, len(reports)),
		Changes: make(map[string][]ChangeDTO, len(req.Reforms)),
	}
	status := http.StatusOK
	systems := append([]*engine.System{base}, alternatives...)
	for i, report := range reports {
		resp.Reports[i] = NewReportDTO(report, systems[i])
		if reportStatus(report) != http.StatusOK {
			status = http.StatusUnprocessableEntity
		}
		if i > 0 {
			resp.Changes[req.Reforms[i-1]] = toChangeDTOs(batch.Diff(reports[0], report))
		}
	}
	writeJSON(w, status, resp)
}

func reportStatus(report *batch.Report) int {
	if report.Failed > 0 {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

// Batch turns the households and inputs into an input table checked
// against the entity kinds of sys, and returns the requests to evaluate.
func (req CalculateRequest) Batch(sys *engine.System) (*store.Memory, []batch.Request, error) {
	if len(req.Requests) == 0 {
		return nil, nil, errors.New("no requests")
	}

	mem := store.NewMemory()
	for _, hh := range req.Households {
		if _, err := sys.Entity(hh.Kind); err != nil {
			return nil, nil, fmt.Errorf("household %s: %w", hh.ID, err)
		}
		if hh.ID == "" {
			return nil, nil, fmt.Errorf("household of kind %s has no id", hh.Kind)
		}
		group := engine.Ref(hh.Kind, hh.ID)
		mem.AddEntity(group)
		for _, m := range hh.Members {
			if _, err := sys.Entity(m.Kind); err != nil {
				return nil, nil, fmt.Errorf("member %s: %w", m.ID, err)
			}
			if err := mem.AddMember(group, engine.Ref(m.Kind, m.ID), m.Role); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, in := range req.Inputs {
		if in.Variable == "" || in.Period.IsZero() {
			return nil, nil, fmt.Errorf("input for %s:%s needs a variable and a period", in.Kind, in.ID)
		}
		if _, err := sys.Entity(in.Kind); err != nil {
			return nil, nil, fmt.Errorf("input %s: %w", in.Variable, err)
		}
		mem.SetInput(engine.Ref(in.Kind, in.ID), in.Variable, in.Period, in.Value)
	}

	requests, err := toRequests(req.Requests)
	if err != nil {
		return nil, nil, err
	}
	return mem, requests, nil
}

func toRequests(dtos []RequestDTO) ([]batch.Request, error) {
	requests := make([]batch.Request, len(dtos))
	for i, dto := range dtos {
		if dto.Variable == "" || dto.Period.IsZero() {
			return nil, fmt.Errorf("request %d needs a variable and a period", i)
		}
		requests[i] = dto.toRequest()
	}
	return requests, nil
}

// =============================================================================
// STORED BATCH HANDLERS
// =============================================================================

// RunStored evaluates requests against the batch stored in the database
// and saves the report.
// POST /api/runs
func (h *Handler) RunStored(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sys, err := h.system(req.System)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown system", err)
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid batch", errors.New("no requests"))
		return
	}
	requests, err := toRequests(req.Requests)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch", err)
		return
	}

	mem, err := h.Store.LoadBatch(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load batch", err)
		return
	}
	report, err := h.Runner.Run(r.Context(), sys, mem, mem, requests)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Evaluation aborted", err)
		return
	}
	if err := h.Store.SaveReport(r.Context(), report); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save report", err)
		return
	}

	writeJSON(w, reportStatus(report), NewReportDTO(report, sys))
}

// ListRuns returns saved runs, most recent first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.Runs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// GetRun returns a saved run with its results.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.Store.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "Run not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	results, err := h.Store.Results(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get results", err)
		return
	}

	dtos := make([]ResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toStoredResultDTO(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(*run), "results": dtos})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
