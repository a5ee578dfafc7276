/*
simulation.go - On-demand memoized evaluation

PURPOSE:
  A Simulation evaluates variables for the entities of one batch of
  household data against one system. It owns the cache, the cycle guard
  and the statistics of the run, and is discarded at the end of the run.

ALGORITHM (Evaluate):
  1. Cache lookup on (system, entity, variable, period, effective policy)
  2. Cycle guard: the same frame already on the stack fails with a CycleError
  3. Select the dated formula valid at period.Start
  4. Input variables read the input table, reconciling periods
     Formula variables run with a Context that can request dependencies
  5. Reconcile the period the formula returned with the requested one
  6. Pop, memoize, return

CONCURRENCY:
  A Simulation is not safe for concurrent use. Run one per goroutine; the
  systems they share are read-only.

SEE ALSO:
  - context.go: what formulas can ask for
  - inputs.go:  input reconciliation
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
	"go.uber.org/zap"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// InputValue is a value supplied for an input variable over a period.
type InputValue struct {
	Period periods.Period
	Value  decimal.Decimal
}

// InputTable provides the supplied values of input variables.
type InputTable interface {
	// Inputs returns every value supplied for (entity, variable).
	Inputs(entity EntityRef, variable string) []InputValue
}

// Memberships provides the composition of group entities.
type Memberships interface {
	// Members returns the members of group in insertion order.
	Members(group EntityRef) []Member

	// GroupOf returns the group of the given kind member belongs to.
	GroupOf(member EntityRef, kind string) (EntityRef, bool)
}

type noInputs struct{}

func (noInputs) Inputs(EntityRef, string) []InputValue        { return nil }
func (noInputs) Members(EntityRef) []Member                   { return nil }
func (noInputs) GroupOf(EntityRef, string) (EntityRef, bool) { return EntityRef{}, false }

// =============================================================================
// SIMULATION
// =============================================================================

// Stats counts the work done by a simulation.
type Stats struct {
	FormulaCalls int
	CacheHits    int
	InputReads   int
}

// frameKey identifies one evaluation on the stack.
type frameKey struct {
	system   uint64
	entity   EntityRef
	variable string
	period   periods.Period
}

// cacheKey qualifies a frame with the effective period policy: the same
// period read through CalculateAdd and Calculate can differ.
type cacheKey struct {
	frameKey
	policy PeriodPolicy
}

// Simulation is a per-run evaluation context.
type Simulation struct {
	id      string
	system  *System
	inputs  InputTable
	members Memberships
	logger  *zap.Logger
	trace   bool

	cache    map[cacheKey]decimal.Decimal
	visiting map[frameKey]int
	stack    []Frame
	stats    Stats
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger used for traces.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulation) { s.logger = logger }
}

// WithTrace logs every formula call and input read at debug level.
func WithTrace(enabled bool) Option {
	return func(s *Simulation) { s.trace = enabled }
}

// WithID overrides the generated run id.
func WithID(id string) Option {
	return func(s *Simulation) { s.id = id }
}

// NewSimulation creates a simulation with an empty cache. inputs and
// members may be nil.
func NewSimulation(system *System, inputs InputTable, members Memberships, opts ...Option) *Simulation {
	s := &Simulation{
		id:       uuid.NewString(),
		system:   system,
		inputs:   inputs,
		members:  members,
		logger:   zap.NewNop(),
		cache:    make(map[cacheKey]decimal.Decimal),
		visiting: make(map[frameKey]int),
	}
	if s.inputs == nil {
		s.inputs = noInputs{}
	}
	if s.members == nil {
		s.members = noInputs{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulation) ID() string      { return s.id }
func (s *Simulation) System() *System { return s.system }
func (s *Simulation) Stats() Stats    { return s.stats }

// Evaluate computes variable for entity over p, using the variable's own
// period policy. Failures are *EvaluationError values carrying the
// dependency chain.
func (s *Simulation) Evaluate(entity EntityRef, variable string, p periods.Period) (decimal.Decimal, error) {
	return s.evaluate(s.system, entity, variable, p, inheritPolicy)
}

func (s *Simulation) evaluate(sys *System, entity EntityRef, name string, p periods.Period, policy PeriodPolicy) (decimal.Decimal, error) {
	frame := Frame{System: sys.name, Entity: entity, Variable: name, Period: p}
	fk := frameKey{system: sys.id, entity: entity, variable: name, period: p}

	v, err := sys.registry.get(name)
	if err != nil {
		return decimal.Zero, s.fail(frame, err)
	}
	if v.Entity != entity.Kind {
		return decimal.Zero, s.fail(frame, fmt.Errorf("%w: %s belongs to %s, not %s", ErrWrongEntity, name, v.Entity, entity.Kind))
	}
	if policy == inheritPolicy {
		policy = v.Policy
	}
	key := cacheKey{frameKey: fk, policy: policy}

	if value, ok := s.cache[key]; ok {
		s.stats.CacheHits++
		return value, nil
	}
	if at, ok := s.visiting[fk]; ok {
		path := append(append([]Frame(nil), s.stack[at:]...), frame)
		return decimal.Zero, s.fail(frame, &CycleError{Path: path})
	}

	s.visiting[fk] = len(s.stack)
	s.stack = append(s.stack, frame)
	defer func() {
		delete(s.visiting, fk)
		s.stack = s.stack[:len(s.stack)-1]
	}()

	value, err := s.compute(sys, v, entity, p, policy)
	if err != nil {
		return decimal.Zero, s.fail(frame, err)
	}
	s.cache[key] = value
	return value, nil
}

func (s *Simulation) compute(sys *System, v *Variable, entity EntityRef, p periods.Period, policy PeriodPolicy) (decimal.Decimal, error) {
	formula, input, err := sys.registry.Formula(v.Name, p)
	if err != nil {
		return decimal.Zero, err
	}
	if input {
		return s.readInput(v, entity, p, policy)
	}

	s.stats.FormulaCalls++
	if s.trace {
		s.logger.Debug("formula",
			zap.String("system", sys.name),
			zap.Stringer("entity", entity),
			zap.String("variable", v.Name),
			zap.Stringer("period", p),
			zap.Int("depth", len(s.stack)),
		)
	}

	ctx := &Context{sim: s, system: sys, entity: entity, period: p}
	actual, value, err := formula(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}
	return s.reconcile(sys, v, entity, p, policy, actual, value)
}

// reconcile maps the value a formula computed over actual onto the
// requested period.
func (s *Simulation) reconcile(sys *System, v *Variable, entity EntityRef, requested periods.Period, policy PeriodPolicy, actual periods.Period, value decimal.Decimal) (decimal.Decimal, error) {
	if actual == requested {
		return value, nil
	}

	switch policy {
	case PolicyAdd:
		tiles, ok := tile(requested, actual.Unit, actual.Size)
		if !ok || !containsPeriod(tiles, actual) {
			break
		}
		s.remember(sys, entity, v.Name, actual, policy, value)
		total := value
		for _, t := range tiles {
			if t == actual {
				continue
			}
			x, err := s.evaluate(sys, entity, v.Name, t, PolicyAdd)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(x)
		}
		return total, nil

	case PolicyDivide:
		if !actual.Contains(requested) {
			break
		}
		n, err := actual.Count(requested.Unit)
		if err != nil || n == 0 {
			break
		}
		s.remember(sys, entity, v.Name, actual, policy, value)
		return value.Mul(decimal.NewFromInt(int64(requested.Size))).Div(decimal.NewFromInt(int64(n))), nil
	}

	return decimal.Zero, &PolicyError{Variable: v.Name, Policy: policy, Requested: requested, Returned: actual}
}

// remember caches a value computed over a period other than the requested
// one under the same policy, unless that entry is already cached.
func (s *Simulation) remember(sys *System, entity EntityRef, name string, p periods.Period, policy PeriodPolicy, value decimal.Decimal) {
	key := cacheKey{frameKey: frameKey{system: sys.id, entity: entity, variable: name, period: p}, policy: policy}
	if _, ok := s.cache[key]; !ok {
		s.cache[key] = value
	}
}

// fail attributes err to the current dependency chain. Errors that already
// carry a chain pass through unchanged.
func (s *Simulation) fail(frame Frame, err error) error {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	chain := append([]Frame(nil), s.stack...)
	if len(chain) == 0 || chain[len(chain)-1] != frame {
		chain = append(chain, frame)
	}
	if s.trace {
		s.logger.Debug("evaluation failed", zap.Stringer("frame", frame), zap.Error(err))
	}
	return &EvaluationError{
		System:   frame.System,
		Entity:   frame.Entity,
		Variable: frame.Variable,
		Period:   frame.Period,
		Chain:    chain,
		Err:      err,
	}
}

// tile splits p into consecutive periods of the given unit and size. It
// fails when the last tile would overrun p.
func tile(p periods.Period, unit periods.Unit, size int) ([]periods.Period, bool) {
	if size < 1 || !unit.Valid() {
		return nil, false
	}
	stop := p.StopInstant()
	var tiles []periods.Period
	for k := 0; ; k++ {
		start := p.Start.Offset(k*size, unit)
		if start.After(stop) {
			break
		}
		t := periods.Period{Unit: unit, Start: start, Size: size}
		if t.StopInstant().After(stop) {
			return nil, false
		}
		tiles = append(tiles, t)
	}
	return tiles, true
}

func containsPeriod(ps []periods.Period, p periods.Period) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
