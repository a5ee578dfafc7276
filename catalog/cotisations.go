package catalog

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
)

// Employee social contributions. They are computed per month on the
// monthly gross wage, and are negative amounts.

var contributions = []string{
	"vieillesse_plafonnee_salarie",
	"vieillesse_deplafonnee_salarie",
	"chomage_salarie",
}

func cotisationsVariables() []engine.Variable {
	return []engine.Variable{
		input("salaire_de_base", "Salaire de base", Individu, engine.PolicyDivide, zero),
		{
			Name:       "vieillesse_plafonnee_salarie",
			Label:      "Cotisation salariale vieillesse plafonnée",
			Entity:     Individu,
			Policy:     engine.PolicyAdd,
			Formulas:   engine.Always(onScale("cotsoc.sal.vieillesse_plafonnee")),
			Parameters: []string{"cotsoc.sal.vieillesse_plafonnee"},
		},
		{
			Name:       "vieillesse_deplafonnee_salarie",
			Label:      "Cotisation salariale vieillesse déplafonnée",
			Entity:     Individu,
			Policy:     engine.PolicyAdd,
			Formulas:   engine.Always(vieillesseDeplafonnee),
			Parameters: []string{"cotsoc.sal.vieillesse_deplafonnee"},
		},
		{
			Name:       "chomage_salarie",
			Label:      "Cotisation salariale chômage",
			Entity:     Individu,
			Policy:     engine.PolicyAdd,
			Formulas:   engine.Always(onScale("cotsoc.sal.chomage")),
			Parameters: []string{"cotsoc.sal.chomage"},
		},
		{
			Name:     "cotisations_salariales",
			Label:    "Cotisations sociales salariales",
			Entity:   Individu,
			Policy:   engine.PolicyAdd,
			Formulas: engine.Always(cotisationsSalariales),
		},
	}
}

// onScale applies a monthly contribution scale to the wage of the month.
func onScale(path string) engine.Formula {
	return func(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
		month := p.FirstOf(periods.Month)
		d := newDeps(ctx, month)
		salaire := d.calc("salaire_de_base", month)
		return d.done(month, d.scale(path, salaire).Neg())
	}
}

func vieillesseDeplafonnee(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	salaire := d.calc("salaire_de_base", month)
	return d.done(month, d.param("cotsoc.sal.vieillesse_deplafonnee").Mul(salaire).Neg())
}

// cotisationsSalariales sums the contributions over the whole requested
// period.
func cotisationsSalariales(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	d := newDeps(ctx, p)
	total := decimal.Zero
	for _, name := range contributions {
		total = total.Add(d.add(name, p))
	}
	return d.done(p, total)
}
