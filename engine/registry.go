package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// VARIABLE REGISTRY
// =============================================================================

// Registry maps variable names to their definitions. A registry belongs to
// one system and is read-only once the system is built.
type Registry struct {
	mu    sync.RWMutex
	vars  map[string]*Variable
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{vars: make(map[string]*Variable)}
}

// Register adds a variable. Its dated formulas are sorted by start and
// checked for overlap.
func (r *Registry) Register(v Variable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.vars[v.Name]; exists {
		return fmt.Errorf("%s: %w", v.Name, ErrDuplicateVariable)
	}
	formulas, err := sortFormulas(v.Name, v.Formulas)
	if err != nil {
		return err
	}
	v.Formulas = formulas
	r.vars[v.Name] = &v
	r.order = append(r.order, v.Name)
	return nil
}

// Lookup returns a copy of the definition of name.
func (r *Registry) Lookup(name string) (Variable, error) {
	v, err := r.get(name)
	if err != nil {
		return Variable{}, err
	}
	return *v, nil
}

func (r *Registry) get(name string) (*Variable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownVariable)
	}
	return v, nil
}

// Formula selects the dated formula of name valid at p.Start. For an input
// variable it returns (nil, true, nil): the value must be read from the
// simulation's inputs.
func (r *Registry) Formula(name string, p periods.Period) (Formula, bool, error) {
	v, err := r.get(name)
	if err != nil {
		return nil, false, err
	}
	if v.IsInput() {
		return nil, true, nil
	}
	// Few variables have more than two or three dated formulas.
	for _, f := range v.Formulas {
		if f.Covers(p.Start) {
			return f.Compute, false, nil
		}
	}
	return nil, false, fmt.Errorf("%s at %s: %w", name, p, ErrNoApplicableFormula)
}

// Names returns the variable names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Variables returns copies of every definition in registration order.
func (r *Registry) Variables() []Variable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Variable, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.vars[name])
	}
	return out
}

// Len returns the number of registered variables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// clone copies the registry. Variables are copied; formula slices are
// shared since they are never modified in place.
func (r *Registry) clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry{vars: make(map[string]*Variable, len(r.vars)), order: append([]string(nil), r.order...)}
	for name, v := range r.vars {
		cp := *v
		c.vars[name] = &cp
	}
	return c
}

// replace swaps the definition of an existing variable.
func (r *Registry) replace(v Variable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vars[v.Name]; !ok {
		return fmt.Errorf("%s: %w", v.Name, ErrUnknownVariable)
	}
	formulas, err := sortFormulas(v.Name, v.Formulas)
	if err != nil {
		return err
	}
	v.Formulas = formulas
	r.vars[v.Name] = &v
	return nil
}

// sortFormulas returns a start-sorted copy of formulas after checking each
// range and that consecutive ranges do not overlap. Gaps are allowed.
func sortFormulas(name string, formulas []DatedFormula) ([]DatedFormula, error) {
	sorted := append([]DatedFormula(nil), formulas...)
	for _, f := range sorted {
		if f.Compute == nil {
			return nil, &DefinitionError{Variable: name, Err: fmt.Errorf("%w: nil compute", ErrInvalidFormula)}
		}
		if !f.Start.IsZero() && !f.Stop.IsZero() && f.Stop.Before(f.Start) {
			return nil, &DefinitionError{Variable: name, Err: fmt.Errorf("%w: stop %s before start %s", ErrInvalidFormula, f.Stop, f.Start)}
		}
	}
	// Zero starts are -inf and sort first.
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Start, sorted[j].Start
		if a.IsZero() || b.IsZero() {
			return a.IsZero() && !b.IsZero()
		}
		return a.Before(b)
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Stop.IsZero() || cur.Start.IsZero() || !prev.Stop.Before(cur.Start) {
			return nil, &DefinitionError{
				Variable: name,
				Err:      fmt.Errorf("%w: formula %d ends %s, formula %d starts %s", ErrOverlappingFormulas, i-1, boundString(prev.Stop, "+inf"), i, boundString(cur.Start, "-inf")),
			}
		}
	}
	return sorted, nil
}

func boundString(i periods.Instant, unbounded string) string {
	if i.IsZero() {
		return unbounded
	}
	return i.String()
}
