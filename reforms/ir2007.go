package reforms

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

// 2007 scale: thresholds and rates per tranche.
var bareme2007 = [][2]string{
	{"0", "0"},
	{"5687", "0.055"},
	{"11344", "0.14"},
	{"25195", "0.30"},
	{"67546", "0.40"},
}

// IR2007 applies the 2007 income tax scale to every year from 2007 to 2014,
// and taxes incomes with an effective rate at that rate instead.
func IR2007(ref *engine.System) (*engine.System, error) {
	from := periods.MustParseInstant("2007-01-01")
	to := periods.MustParseInstant("2014-12-31")

	scale := &legislation.Scale{Description: "Tranches de l'IR (barème 2007)", Unit: "currency"}
	for _, tranche := range bareme2007 {
		scale.Brackets = append(scale.Brackets, legislation.Bracket{
			Threshold: legislation.NewParameter("", legislation.ValueRange{Start: from, Stop: to, Value: decimal.RequireFromString(tranche[0])}),
			Rate:      legislation.NewParameter("", legislation.ValueRange{Start: from, Stop: to, Value: decimal.RequireFromString(tranche[1])}),
		})
	}

	return engine.BuildReform(ref, engine.Reform{
		Name:      "ir2007",
		Patches:   []legislation.Patch{{Path: "ir.bareme", Item: scale}},
		Overrides: []engine.Override{{Variable: "ir_brut", Formulas: engine.Always(irBrutTauxEffectif)}},
	})
}

func irBrutTauxEffectif(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	year := p.FirstOf(periods.Year)
	in, err := values(ctx, year, "nbptr", "taux_effectif", "rni")
	if err != nil {
		return year, decimal.Zero, err
	}
	nbptr, taux, rni := in[0], in[1], in[2]

	if !taux.IsZero() {
		return year, taux.Mul(rni), nil
	}
	if !nbptr.IsPositive() {
		return year, decimal.Zero, fmt.Errorf("%w: nbptr is %s", engine.ErrInvalidFormula, nbptr)
	}
	bareme, err := ctx.LegislationAt(year.Start).Scale("ir.bareme")
	if err != nil {
		return year, decimal.Zero, err
	}
	return year, nbptr.Mul(bareme.Apply(rni.Div(nbptr))), nil
}
