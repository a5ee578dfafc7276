package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
	"go.uber.org/zap"
)

// =============================================================================
// INPUT RECONCILIATION
// =============================================================================
//
// An input supplied at the requested period is used as is. Otherwise:
//
//   DIVIDE  an input covering the request is split evenly
//           (salaire_de_base given for 2014, asked for 2014-03: 1/12)
//   ADD     inputs inside the request are summed at their unit; a
//           sub-period with no input takes the default or fails
//   NONE    no conversion
//
// When nothing applies the default is returned, or ErrMissingInput.

func (s *Simulation) readInput(v *Variable, entity EntityRef, p periods.Period, policy PeriodPolicy) (decimal.Decimal, error) {
	s.stats.InputReads++
	inputs := s.inputs.Inputs(entity, v.Name)
	if s.trace {
		s.logger.Debug("input",
			zap.Stringer("entity", entity),
			zap.String("variable", v.Name),
			zap.Stringer("period", p),
			zap.Int("supplied", len(inputs)),
		)
	}

	if value, ok := exactInput(inputs, p); ok {
		return value, nil
	}

	switch policy {
	case PolicyDivide:
		if value, ok := divideInput(inputs, p); ok {
			return value, nil
		}
	case PolicyAdd:
		value, ok, err := addInputs(v, entity, inputs, p)
		if err != nil {
			return decimal.Zero, err
		}
		if ok {
			return value, nil
		}
	}

	if v.Default != nil {
		return *v.Default, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s for %s at %s", ErrMissingInput, v.Name, entity, p)
}

// divideInput finds an input covering p and returns its even share.
func divideInput(inputs []InputValue, p periods.Period) (decimal.Decimal, bool) {
	for _, in := range inputs {
		if !in.Period.Contains(p) {
			continue
		}
		n, err := in.Period.Count(p.Unit)
		if err != nil || n == 0 {
			continue
		}
		return in.Value.Mul(decimal.NewFromInt(int64(p.Size))).Div(decimal.NewFromInt(int64(n))), true
	}
	return decimal.Zero, false
}

// addInputs sums the inputs lying inside p. It reports false when none do.
func addInputs(v *Variable, entity EntityRef, inputs []InputValue, p periods.Period) (decimal.Decimal, bool, error) {
	unit, found := periods.Year, false
	for _, in := range inputs {
		if p.Contains(in.Period) && (!found || in.Period.Unit < unit) {
			unit, found = in.Period.Unit, true
		}
	}
	if !found {
		return decimal.Zero, false, nil
	}

	subs, err := p.Subperiods(unit)
	if err != nil {
		return decimal.Zero, false, nil
	}
	total := decimal.Zero
	for _, sub := range subs {
		value, ok := exactInput(inputs, sub)
		if !ok {
			value, ok = divideInput(inputs, sub)
		}
		if !ok {
			if v.Default == nil {
				return decimal.Zero, false, fmt.Errorf("%w: %s for %s at %s (summing %s)", ErrMissingInput, v.Name, entity, sub, p)
			}
			value = *v.Default
		}
		total = total.Add(value)
	}
	return total, true, nil
}

func exactInput(inputs []InputValue, p periods.Period) (decimal.Decimal, bool) {
	for _, in := range inputs {
		if in.Period == p {
			return in.Value, true
		}
	}
	return decimal.Zero, false
}
