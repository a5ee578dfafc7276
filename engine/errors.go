package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownVariable is returned when a name is not registered.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrNoApplicableFormula is returned when a variable has formulas but
	// none is valid at the requested period's start.
	ErrNoApplicableFormula = errors.New("no formula applicable")

	// ErrMissingInput is returned when an input variable has no value for
	// the requested period and no default.
	ErrMissingInput = errors.New("missing input")

	// ErrCircularDependency is returned when a variable depends on itself
	// for the same entity and period.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrPeriodPolicyViolation is returned when a formula's returned period
	// cannot be reconciled with the request under the effective policy.
	ErrPeriodPolicyViolation = errors.New("period policy violation")

	// ErrUnknownEntity is returned when a variable names an entity kind
	// the system does not declare.
	ErrUnknownEntity = errors.New("unknown entity kind")

	// ErrWrongEntity is returned when a variable is evaluated on an entity
	// of another kind. Cross-entity reads go through Aggregate and Group.
	ErrWrongEntity = errors.New("variable evaluated on wrong entity kind")

	// ErrNoGroup is returned when a member has no group of the asked kind.
	ErrNoGroup = errors.New("entity has no group of that kind")

	// ErrNoReference is returned by Context.Reference on a reference system.
	ErrNoReference = errors.New("system has no reference")

	ErrDuplicateVariable   = errors.New("duplicate variable")
	ErrOverlappingFormulas = errors.New("overlapping formula validity ranges")
	ErrInvalidFormula      = errors.New("invalid dated formula")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Frame is one step of the dependency chain.
type Frame struct {
	System   string
	Entity   EntityRef
	Variable string
	Period   periods.Period
}

func (f Frame) String() string {
	return fmt.Sprintf("%s@%s[%s]", f.Variable, f.Period, f.Entity)
}

// EvaluationError attributes a failure to the request that triggered it.
// Chain runs from the outermost request to the variable that failed.
type EvaluationError struct {
	System   string
	Entity   EntityRef
	Variable string
	Period   periods.Period
	Chain    []Frame
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s@%s for %s: %v (chain: %s)",
		e.Variable, e.Period, e.Entity, e.Err, formatChain(e.Chain))
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// CycleError lists the frames of a dependency cycle; the first and last
// frames are the same request.
type CycleError struct {
	Path []Frame
}

func (e *CycleError) Error() string {
	return "circular dependency: " + formatChain(e.Path)
}

func (e *CycleError) Unwrap() error { return ErrCircularDependency }

// PolicyError describes an irreconcilable returned period.
type PolicyError struct {
	Variable  string
	Policy    PeriodPolicy
	Requested periods.Period
	Returned  periods.Period
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: requested %s, formula returned %s under policy %s",
		e.Variable, e.Requested, e.Returned, e.Policy)
}

func (e *PolicyError) Unwrap() error { return ErrPeriodPolicyViolation }

// DefinitionError reports a problem found while building a system.
type DefinitionError struct {
	Variable string
	Path     string // legislation path, when relevant
	Err      error
}

func (e *DefinitionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("variable %s: parameter %s: %v", e.Variable, e.Path, e.Err)
	}
	return fmt.Sprintf("variable %s: %v", e.Variable, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDefinitionError returns true if the error was raised while building a
// system or a reform rather than while evaluating.
func IsDefinitionError(err error) bool {
	var def *DefinitionError
	return errors.As(err, &def) ||
		errors.Is(err, ErrDuplicateVariable) ||
		errors.Is(err, ErrOverlappingFormulas)
}

// IsNotFound returns true if the error names something that does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownVariable) ||
		errors.Is(err, ErrUnknownEntity) ||
		errors.Is(err, ErrNoApplicableFormula)
}

// ChainOf returns the dependency chain carried by err, if any.
func ChainOf(err error) []Frame {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr.Chain
	}
	return nil
}

func formatChain(frames []Frame) string {
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = f.String()
	}
	return strings.Join(parts, " -> ")
}
