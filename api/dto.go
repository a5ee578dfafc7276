/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

ENCODING:
  Periods use their canonical string form: "2013", "2014-03",
  "month:2014-01-01:3".
  Values are decimal strings: "3389.2". Inputs also accept JSON numbers.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/batch"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
	"github.com/warp/fisc-engine/store/sqlite"
)

// =============================================================================
// INTROSPECTION
// =============================================================================

// SystemDTO describes a system the API can evaluate against.
type SystemDTO struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// SystemsResponse lists the reference and the registered reforms.
type SystemsResponse struct {
	Reference string      `json:"reference"`
	Reforms   []SystemDTO `json:"reforms"`
}

// VariableDTO is one variable of a system.
type VariableDTO struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Entity   string `json:"entity"`
	Policy   string `json:"policy"`
	Input    bool   `json:"input"`
	Formulas int    `json:"formulas"`
}

// BracketDTO is a resolved scale bracket.
type BracketDTO struct {
	Threshold decimal.Decimal `json:"threshold"`
	Rate      decimal.Decimal `json:"rate"`
}

// ParameterDTO is the item at a legislation path. Exactly one of Value,
// Brackets or Children is set.
type ParameterDTO struct {
	Path     string           `json:"path"`
	Kind     string           `json:"kind"`
	At       periods.Instant  `json:"at"`
	Value    *decimal.Decimal `json:"value,omitempty"`
	Brackets []BracketDTO     `json:"brackets,omitempty"`
	Children []string         `json:"children,omitempty"`
}

// =============================================================================
// EVALUATION
// =============================================================================

// MemberDTO places a member in a household.
type MemberDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Role string `json:"role"`
}

// HouseholdDTO is a group entity with its members.
type HouseholdDTO struct {
	Kind    string      `json:"kind"`
	ID      string      `json:"id"`
	Members []MemberDTO `json:"members"`
}

// InputDTO supplies one input value.
type InputDTO struct {
	Kind     string          `json:"kind"`
	ID       string          `json:"id"`
	Variable string          `json:"variable"`
	Period   periods.Period  `json:"period"`
	Value    decimal.Decimal `json:"value"`
}

// RequestDTO asks for a variable of an entity over a period.
type RequestDTO struct {
	Kind     string         `json:"kind"`
	ID       string         `json:"id"`
	Variable string         `json:"variable"`
	Period   periods.Period `json:"period"`
}

// CalculateRequest is the body of POST /api/calculate.
//
// System is a reform stack: "" or the reference name for the reference,
// otherwise comma separated reform keys applied in order.
type CalculateRequest struct {
	System     string         `json:"system"`
	Households []HouseholdDTO `json:"households"`
	Inputs     []InputDTO     `json:"inputs"`
	Requests   []RequestDTO   `json:"requests"`
	Save       bool           `json:"save,omitempty"`
}

// CompareRequest is the body of POST /api/compare. The reference named by
// System is evaluated first, then each reform stacked on it.
type CompareRequest struct {
	CalculateRequest
	Reforms []string `json:"reforms"`
}

// RunRequest is the body of POST /api/runs: requests evaluated against the
// stored batch.
type RunRequest struct {
	System   string       `json:"system"`
	Requests []RequestDTO `json:"requests"`
}

// ResultDTO is the outcome of one request. Chain lists the dependency
// frames from the requested variable down to the failure.
type ResultDTO struct {
	Kind     string          `json:"kind"`
	ID       string          `json:"id"`
	Variable string          `json:"variable"`
	Period   periods.Period  `json:"period"`
	Value    decimal.Decimal `json:"value"`
	Error    string          `json:"error,omitempty"`
	Chain    []string        `json:"chain,omitempty"`
}

// StatsDTO mirrors engine.Stats.
type StatsDTO struct {
	FormulaCalls int `json:"formula_calls"`
	CacheHits    int `json:"cache_hits"`
	InputReads   int `json:"input_reads"`
}

// ReportDTO is one run against one system.
type ReportDTO struct {
	RunID      string      `json:"run_id"`
	System     string      `json:"system"`
	Lineage    []string    `json:"lineage,omitempty"`
	StartedAt  string      `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Failed     int         `json:"failed"`
	Results    []ResultDTO `json:"results"`
	Stats      StatsDTO    `json:"stats"`
}

// ChangeDTO is a result that differs from the reference.
type ChangeDTO struct {
	Kind     string          `json:"kind"`
	ID       string          `json:"id"`
	Variable string          `json:"variable"`
	Period   periods.Period  `json:"period"`
	Before   decimal.Decimal `json:"before"`
	After    decimal.Decimal `json:"after"`
	Delta    decimal.Decimal `json:"delta"`
}

// CompareResponse holds one report per system, reference first, and the
// changes of each reform against the reference keyed by reform.
type CompareResponse struct {
	Reports []ReportDTO            `json:"reports"`
	Changes map[string][]ChangeDTO `json:"changes"`
}

// RunDTO is a stored run summary.
type RunDTO struct {
	ID         string   `json:"id"`
	System     string   `json:"system"`
	StartedAt  string   `json:"started_at"`
	DurationMS int64    `json:"duration_ms"`
	Requests   int      `json:"requests"`
	Failed     int      `json:"failed"`
	Stats      StatsDTO `json:"stats"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (r RequestDTO) toRequest() batch.Request {
	return batch.Request{Entity: engine.Ref(r.Kind, r.ID), Variable: r.Variable, Period: r.Period}
}

func toStatsDTO(s engine.Stats) StatsDTO {
	return StatsDTO{FormulaCalls: s.FormulaCalls, CacheHits: s.CacheHits, InputReads: s.InputReads}
}

func toResultDTO(r batch.Result) ResultDTO {
	dto := ResultDTO{
		Kind:     r.Entity.Kind,
		ID:       string(r.Entity.ID),
		Variable: r.Variable,
		Period:   r.Period,
		Value:    r.Value,
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
		for _, f := range r.Chain {
			dto.Chain = append(dto.Chain, f.String())
		}
	}
	return dto
}

// NewReportDTO converts a batch report. sys, when given, adds its lineage.
func NewReportDTO(report *batch.Report, sys *engine.System) ReportDTO {
	dto := ReportDTO{
		RunID:      report.RunID,
		System:     report.System,
		StartedAt:  report.Started.UTC().Format(timeFormat),
		DurationMS: report.Duration.Milliseconds(),
		Failed:     report.Failed,
		Results:    make([]ResultDTO, len(report.Results)),
		Stats:      toStatsDTO(report.Stats),
	}
	if sys != nil {
		dto.Lineage = sys.Lineage()
	}
	for i, r := range report.Results {
		dto.Results[i] = toResultDTO(r)
	}
	return dto
}

func toChangeDTOs(changes []batch.Change) []ChangeDTO {
	dtos := make([]ChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = ChangeDTO{
			Kind:     c.Entity.Kind,
			ID:       string(c.Entity.ID),
			Variable: c.Variable,
			Period:   c.Period,
			Before:   c.Before,
			After:    c.After,
			Delta:    c.Delta(),
		}
	}
	return dtos
}

func toRunDTO(r sqlite.RunRecord) RunDTO {
	return RunDTO{
		ID:         r.ID,
		System:     r.System,
		StartedAt:  r.StartedAt.UTC().Format(timeFormat),
		DurationMS: r.Duration.Milliseconds(),
		Requests:   r.Requests,
		Failed:     r.Failed,
		Stats:      toStatsDTO(r.Stats),
	}
}

func toStoredResultDTO(r sqlite.ResultRecord) ResultDTO {
	return ResultDTO{
		Kind:     r.Entity.Kind,
		ID:       string(r.Entity.ID),
		Variable: r.Variable,
		Period:   r.Period,
		Value:    r.Value,
		Error:    r.Error,
		Chain:    r.Chain,
	}
}
