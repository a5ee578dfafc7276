package reforms

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
)

// NoDeductibleCharges computes the net global income without subtracting
// the deductible charges.
func NoDeductibleCharges(ref *engine.System) (*engine.System, error) {
	return engine.BuildReform(ref, engine.Reform{
		Name: "no_deductible_charges",
		Overrides: []engine.Override{{Variable: "rng", Formulas: engine.Always(
			func(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
				year := p.FirstOf(periods.Year)
				in, err := values(ctx, year, "rbg", "csg_deduc")
				if err != nil {
					return year, decimal.Zero, err
				}
				return year, engine.Positive(in[0].Sub(in[1])), nil
			})}},
	})
}

// NoTaxReductions makes the tax after reductions equal to the net tax.
func NoTaxReductions(ref *engine.System) (*engine.System, error) {
	return engine.BuildReform(ref, engine.Reform{
		Name: "no_tax_reductions",
		Overrides: []engine.Override{{Variable: "iaidrdi", Formulas: engine.Always(
			func(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
				year := p.FirstOf(periods.Year)
				v, err := ctx.Calculate("ip_net", year)
				return year, v, err
			})}},
	})
}
