package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
)

// Income tax of a foyer fiscal, computed per calendar year. A request for
// a month is answered with the year; iaidrdi divides it.

func impotVariables() []engine.Variable {
	return []engine.Variable{
		input("rbg", "Revenu brut global", FoyerFiscal, engine.PolicyDivide, zero),
		input("csg_deduc", "CSG déductible", FoyerFiscal, engine.PolicyDivide, zero),
		input("charges_deduc", "Charges déductibles", FoyerFiscal, engine.PolicyDivide, zero),
		input("abattements", "Abattements spéciaux", FoyerFiscal, engine.PolicyDivide, zero),
		input("reductions_diverses", "Réductions d'impôt déclarées", FoyerFiscal, engine.PolicyDivide, zero),
		input("nbptr", "Nombre de parts", FoyerFiscal, engine.PolicyNone, engine.Default(one)),
		input("taux_effectif", "Taux effectif", FoyerFiscal, engine.PolicyNone, zero),
		{
			Name:     "nb_adult",
			Label:    "Nombre de déclarants",
			Entity:   FoyerFiscal,
			Formulas: engine.Always(nbAdult),
		},
		{
			Name:     "rng",
			Label:    "Revenu net global",
			Entity:   FoyerFiscal,
			Formulas: engine.Always(rng),
		},
		{
			Name:     "rni",
			Label:    "Revenu net imposable",
			Entity:   FoyerFiscal,
			Formulas: engine.Always(rni),
		},
		{
			Name:     "rfr",
			Label:    "Revenu fiscal de référence",
			Entity:   FoyerFiscal,
			Formulas: engine.Always(yearly(func(d *deps, year periods.Period) decimal.Decimal { return d.calc("rni", year) })),
		},
		{
			Name:       "ir_brut",
			Label:      "Impôt sur le revenu brut",
			Entity:     FoyerFiscal,
			Formulas:   engine.Always(irBrut),
			Parameters: []string{"ir.bareme"},
		},
		{
			Name:       "decote",
			Label:      "Décote",
			Entity:     FoyerFiscal,
			Formulas:   engine.Always(decote),
			Parameters: []string{"ir.decote.seuil", "ir.decote.taux"},
		},
		{
			Name:     "ip_net",
			Label:    "Impôt après décote",
			Entity:   FoyerFiscal,
			Formulas: engine.Always(ipNet),
		},
		{
			Name:     "reductions",
			Label:    "Réductions d'impôt",
			Entity:   FoyerFiscal,
			Formulas: engine.Always(reductions),
		},
		{
			Name:     "iaidrdi",
			Label:    "Impôt après imputation des réductions d'impôt",
			Entity:   FoyerFiscal,
			Policy:   engine.PolicyDivide,
			Formulas: engine.Always(iaidrdi),
		},
	}
}

// yearly wraps a computation on the calendar year containing the request.
func yearly(f func(d *deps, year periods.Period) decimal.Decimal) engine.Formula {
	return func(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
		year := p.FirstOf(periods.Year)
		d := newDeps(ctx, year)
		v := f(d, year)
		return d.done(year, v)
	}
}

func nbAdult(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	return p.FirstOf(periods.Year), decimal.NewFromInt(int64(count(ctx.Members(), RoleDeclarant))), nil
}

var rng = yearly(func(d *deps, year periods.Period) decimal.Decimal {
	return engine.Positive(d.calc("rbg", year).Sub(d.calc("csg_deduc", year)).Sub(d.calc("charges_deduc", year)))
})

var rni = yearly(func(d *deps, year periods.Period) decimal.Decimal {
	return engine.Positive(d.calc("rng", year).Sub(d.calc("abattements", year)))
})

// irBrut applies the progressive scale to one part of income and multiplies
// by the number of parts.
func irBrut(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	year := p.FirstOf(periods.Year)
	d := newDeps(ctx, year)
	nbptr := d.calc("nbptr", year)
	base := d.calc("rni", year)
	if d.err != nil {
		return d.done(year, decimal.Zero)
	}
	if !nbptr.IsPositive() {
		return year, decimal.Zero, fmt.Errorf("%w: nbptr is %s", engine.ErrInvalidFormula, nbptr)
	}
	return d.done(year, nbptr.Mul(d.scale("ir.bareme", base.Div(nbptr))))
}

var decote = yearly(func(d *deps, year periods.Period) decimal.Decimal {
	brut := d.calc("ir_brut", year)
	seuil := d.param("ir.decote.seuil")
	taux := d.param("ir.decote.taux")
	if brut.GreaterThanOrEqual(seuil) {
		return decimal.Zero
	}
	return seuil.Sub(brut).Mul(taux)
})

var ipNet = yearly(func(d *deps, year periods.Period) decimal.Decimal {
	return engine.Positive(d.calc("ir_brut", year).Sub(d.calc("decote", year)))
})

// reductions caps the declared reductions at the tax due.
func reductions(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	year := p.FirstOf(periods.Year)
	d := newDeps(ctx, year)
	return d.done(year, decimal.Min(d.calc("ip_net", year), d.calc("reductions_diverses", year)))
}

var iaidrdi = yearly(func(d *deps, year periods.Period) decimal.Decimal {
	return d.calc("ip_net", year).Sub(d.calc("reductions", year))
})
