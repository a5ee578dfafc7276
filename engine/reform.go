/*
reform.go - Counterfactual systems derived from a reference

PURPOSE:
  A reform is a new System built from a reference one by replacing the
  dated formulas of some variables, adding new variables and patching the
  parameter tree. The reference is never modified, so the reference and
  any number of reforms can be simulated side by side.

EXAMPLE:
  reform, err := engine.BuildReform(reference, engine.Reform{
      Name: "plfr2014",
      Patches: []legislation.Patch{
          {Path: "plfr2014", Item: plfr2014Node},
      },
      Variables: []engine.Variable{reductionImpotExceptionnelle},
      Overrides: []engine.Override{{
          Variable: "reductions",
          Formulas: []engine.DatedFormula{{Start: jan2013, Stop: dec2013, Compute: reductions2013}},
      }},
  })

OVERRIDE SEMANTICS:
  An override replaces the whole dated-formula list of its variable. If the
  override only covers 2013, the variable has no formula outside 2013:
  splice it into the reference formulas (ReferenceFormulas, Splice) to keep
  them active elsewhere.

DELEGATION:
  An override may compute the reference value through Context.Reference().
  It never goes through the reform's own registry, so reform and reference
  cannot recurse into each other.
*/
package engine

import (
	"fmt"

	"github.com/warp/fisc-engine/legislation"
)

// Override replaces the formulas of an existing variable.
type Override struct {
	Variable string
	Formulas []DatedFormula

	// Parameters replaces the declared parameter paths when set.
	Parameters []string
}

// Reform describes the changes a reform applies to its reference.
type Reform struct {
	Name      string
	Patches   []legislation.Patch
	Overrides []Override
	Variables []Variable
}

// BuildReform derives a new system from ref.
func BuildReform(ref *System, r Reform) (*System, error) {
	if ref == nil {
		return nil, fmt.Errorf("reform %s: nil reference", r.Name)
	}

	params := ref.legislation
	if len(r.Patches) > 0 {
		patched, err := ref.legislation.Patch(r.Patches...)
		if err != nil {
			return nil, fmt.Errorf("reform %s: %w", r.Name, err)
		}
		params = patched
	}

	s := &System{
		id:          systemIDs.Add(1),
		name:        r.Name,
		entities:    ref.entities,
		entityIndex: ref.entityIndex,
		registry:    ref.registry.clone(),
		legislation: params,
		reference:   ref,
	}

	for _, o := range r.Overrides {
		v, err := s.registry.get(o.Variable)
		if err != nil {
			return nil, fmt.Errorf("reform %s: override: %w", r.Name, err)
		}
		if len(o.Formulas) == 0 {
			return nil, fmt.Errorf("reform %s: override: %w", r.Name,
				&DefinitionError{Variable: o.Variable, Err: fmt.Errorf("%w: no formulas", ErrInvalidFormula)})
		}
		replaced := *v
		replaced.Formulas = o.Formulas
		if o.Parameters != nil {
			replaced.Parameters = o.Parameters
		}
		if err := s.registry.replace(replaced); err != nil {
			return nil, fmt.Errorf("reform %s: %w", r.Name, err)
		}
	}

	for _, v := range r.Variables {
		if err := s.checkVariable(v); err != nil {
			return nil, fmt.Errorf("reform %s: %w", r.Name, err)
		}
		if err := s.registry.Register(v); err != nil {
			return nil, fmt.Errorf("reform %s: %w", r.Name, err)
		}
	}

	// Inherited variables may read paths the patches removed or replaced.
	for _, v := range s.registry.Variables() {
		if err := s.checkParameters(v.Name, v.Parameters); err != nil {
			return nil, fmt.Errorf("reform %s: %w", r.Name, err)
		}
	}
	return s, nil
}

// ReferenceFormulas returns the dated formulas ref defines for name, for
// overrides that keep them active outside their own range.
func ReferenceFormulas(ref *System, name string) ([]DatedFormula, error) {
	v, err := ref.registry.get(name)
	if err != nil {
		return nil, err
	}
	return append([]DatedFormula(nil), v.Formulas...), nil
}

// Splice returns base with patch taking over [patch.Start, patch.Stop].
// Formulas of base overlapping that range are clipped around it:
//
//	base:   (-inf ................................ +inf)
//	patch:            [2013-01-01, 2013-12-31]
//	result: (-inf, 2012-12-31] [patch] [2014-01-01, +inf)
func Splice(base []DatedFormula, patch DatedFormula) []DatedFormula {
	out := make([]DatedFormula, 0, len(base)+2)
	for _, f := range base {
		if !overlaps(f, patch) {
			out = append(out, f)
			continue
		}
		if !patch.Start.IsZero() && (f.Start.IsZero() || f.Start.Before(patch.Start)) {
			left := f
			left.Stop = patch.Start.AddDays(-1)
			out = append(out, left)
		}
		if !patch.Stop.IsZero() && (f.Stop.IsZero() || f.Stop.After(patch.Stop)) {
			right := f
			right.Start = patch.Stop.AddDays(1)
			out = append(out, right)
		}
	}
	return append(out, patch)
}

func overlaps(a, b DatedFormula) bool {
	if !a.Stop.IsZero() && !b.Start.IsZero() && a.Stop.Before(b.Start) {
		return false
	}
	if !b.Stop.IsZero() && !a.Start.IsZero() && b.Stop.Before(a.Start) {
		return false
	}
	return true
}
