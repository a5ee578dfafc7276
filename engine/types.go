/*
types.go - Core types shared by the engine

PURPOSE:
  Defines the vocabulary of the evaluation substrate: entity kinds and
  instances, period-mismatch policies, and the shape of a variable and of
  its dated formulas.

KEY CONCEPTS:
  - Entity:       a kind of entity ("individu", "famille", "foyer_fiscal")
  - EntityRef:    one instance of a kind, the unit of evaluation
  - PeriodPolicy: how a value computed at one granularity answers a request
                  at another (NONE, DIVIDE, ADD)
  - Variable:     name, entity kind, default, policy, dated formulas
  - Formula:      func(ctx, period) -> (actual period, value, error)

VALUES:
  Every value is a decimal.Decimal. Booleans travel as 0 and 1; use Bool
  and Truthy at formula boundaries.

SEE ALSO:
  - registry.go:   variable registration and dated-formula selection
  - simulation.go: the evaluation algorithm
*/
package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Entity describes an entity kind of a system.
type Entity struct {
	Key    string   // "individu"
	Plural string   // "individus"
	Label  string   // human readable
	Person bool     // true for the elementary kind others group together
	Roles  []string // roles members can hold in a group of this kind
}

// EntityID identifies an entity instance within its kind.
type EntityID string

// EntityRef names one entity instance.
type EntityRef struct {
	Kind string
	ID   EntityID
}

// Ref is shorthand for EntityRef{Kind: kind, ID: EntityID(id)}.
func Ref(kind, id string) EntityRef {
	return EntityRef{Kind: kind, ID: EntityID(id)}
}

func (r EntityRef) String() string { return r.Kind + ":" + string(r.ID) }

// Member is an entity inside a group, with its role ("parent", "enfant").
type Member struct {
	Entity EntityRef
	Role   string
}

// =============================================================================
// PERIOD POLICY
// =============================================================================

// PeriodPolicy decides how a variable answers a request for a period other
// than the one it is naturally computed or supplied at.
type PeriodPolicy int

const (
	// PolicyNone requires the period to match exactly.
	PolicyNone PeriodPolicy = iota

	// PolicyDivide splits a coarser value evenly across the requested
	// sub-period.
	PolicyDivide

	// PolicyAdd sums finer values over the requested period.
	PolicyAdd
)

// inheritPolicy is passed internally when the variable's own policy applies.
const inheritPolicy PeriodPolicy = -1

func (p PeriodPolicy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyDivide:
		return "divide"
	case PolicyAdd:
		return "add"
	default:
		return fmt.Sprintf("PeriodPolicy(%d)", int(p))
	}
}

// ParsePolicy is the inverse of PeriodPolicy.String.
func ParsePolicy(s string) (PeriodPolicy, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return PolicyNone, nil
	case "divide":
		return PolicyDivide, nil
	case "add":
		return PolicyAdd, nil
	}
	return PolicyNone, fmt.Errorf("unknown period policy %q", s)
}

// =============================================================================
// VARIABLES
// =============================================================================

// Formula computes a variable for an entity. It returns the period it
// actually computed over, normally the requested one. A monthly formula
// asked for a year may return the first month and let the ADD policy sum
// the rest; a yearly formula asked for a month may return the year and let
// the DIVIDE policy split it.
type Formula func(ctx *Context, p periods.Period) (periods.Period, decimal.Decimal, error)

// DatedFormula is a formula valid over [Start, Stop], both inclusive.
// A zero Start or Stop leaves that side unbounded.
type DatedFormula struct {
	Start   periods.Instant
	Stop    periods.Instant
	Compute Formula
}

// Always wraps a formula valid at every date.
func Always(f Formula) []DatedFormula {
	return []DatedFormula{{Compute: f}}
}

// Covers reports whether the validity range contains i.
func (f DatedFormula) Covers(i periods.Instant) bool {
	if !f.Start.IsZero() && i.Before(f.Start) {
		return false
	}
	if !f.Stop.IsZero() && i.After(f.Stop) {
		return false
	}
	return true
}

// Variable is a named quantity attached to an entity kind. A variable with
// no formulas is an input: its values come from the simulation's input
// table.
type Variable struct {
	Name     string
	Label    string
	Entity   string
	Default  *decimal.Decimal
	Policy   PeriodPolicy
	Formulas []DatedFormula

	// Parameters lists the legislation paths the formulas read. They are
	// checked when the system is built.
	Parameters []string
	URL        string
}

// IsInput reports whether the variable has no formula.
func (v *Variable) IsInput() bool { return len(v.Formulas) == 0 }

// Default returns a pointer to d, for Variable.Default.
func Default(d decimal.Decimal) *decimal.Decimal { return &d }

// VariableInfo is the introspection view of a variable.
type VariableInfo struct {
	Name     string
	Label    string
	Entity   string
	Policy   PeriodPolicy
	Input    bool
	Formulas int
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

var one = decimal.NewFromInt(1)

// Bool converts a boolean to 0 or 1.
func Bool(b bool) decimal.Decimal {
	if b {
		return one
	}
	return decimal.Zero
}

// Truthy reports whether v is non-zero.
func Truthy(v decimal.Decimal) bool { return !v.IsZero() }

// Positive returns max(0, v).
func Positive(v decimal.Decimal) decimal.Decimal { return decimal.Max(decimal.Zero, v) }
