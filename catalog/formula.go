package catalog

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

// deps reads the dependencies of one formula call. The first error sticks
// and later reads return zero, so a formula checks err once at the end.
type deps struct {
	ctx *engine.Context
	leg *legislation.View
	err error
}

func newDeps(ctx *engine.Context, p periods.Period) *deps {
	return &deps{ctx: ctx, leg: ctx.LegislationAt(p.Start)}
}

func (d *deps) keep(v decimal.Decimal, err error) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	if err != nil {
		d.err = err
		return decimal.Zero
	}
	return v
}

func (d *deps) calc(name string, p periods.Period) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	return d.keep(d.ctx.Calculate(name, p))
}

func (d *deps) add(name string, p periods.Period) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	return d.keep(d.ctx.CalculateAdd(name, p))
}

func (d *deps) divide(name string, p periods.Period) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	return d.keep(d.ctx.CalculateDivide(name, p))
}

func (d *deps) truthy(name string, p periods.Period) bool {
	return engine.Truthy(d.calc(name, p))
}

func (d *deps) sum(name string, p periods.Period, roles ...string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	return d.keep(d.ctx.Aggregate(name, p, engine.ReduceSum, roles...))
}

func (d *deps) param(path string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	return d.keep(d.leg.Get(path))
}

func (d *deps) scale(path string, base decimal.Decimal) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	s, err := d.leg.Scale(path)
	if err != nil {
		d.err = err
		return decimal.Zero
	}
	return s.Apply(base)
}

func (d *deps) done(p periods.Period, v decimal.Decimal) (periods.Period, decimal.Decimal, error) {
	if d.err != nil {
		return p, decimal.Zero, d.err
	}
	return p, v, nil
}

// input declares a variable with no formula.
func input(name, label, entity string, policy engine.PeriodPolicy, def *decimal.Decimal) engine.Variable {
	return engine.Variable{Name: name, Label: label, Entity: entity, Policy: policy, Default: def}
}

var (
	zero = engine.Default(decimal.Zero)
	one  = decimal.NewFromInt(1)
)

func count(members []engine.Member, role string) int {
	n := 0
	for _, m := range members {
		if m.Role == role {
			n++
		}
	}
	return n
}
