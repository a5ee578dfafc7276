package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
)

// Complément familial. Every formula works on the first month of the
// requested period; cf itself uses ADD so a yearly request sums the months.
// Resources are yearly amounts of year N-2 compared with yearly ceilings.

var majorationStart = periods.MustParseInstant("2014-04-01")

func familleVariables() []engine.Variable {
	return []engine.Variable{
		input("age", "Âge en années", Individu, engine.PolicyNone, nil),
		input("smic55", "Revenu supérieur à 55% du SMIC", Individu, engine.PolicyNone, zero),
		input("rempli_obligation_scolaire", "Remplit l'obligation scolaire", Individu, engine.PolicyNone, engine.Default(one)),
		input("revenu_activite", "Revenus d'activité", Individu, engine.PolicyAdd, zero),
		input("paje_base_temp", "Allocation de base de la PAJE avant cumul", Famille, engine.PolicyNone, zero),
		input("apje_temp", "APJE avant cumul", Famille, engine.PolicyDivide, zero),
		input("ape_temp", "APE avant cumul", Famille, engine.PolicyDivide, zero),
		input("residence_mayotte", "Résidence à Mayotte", Famille, engine.PolicyNone, zero),
		{
			Name:     "est_enfant_dans_famille",
			Label:    "Enfant dans sa famille",
			Entity:   Individu,
			Formulas: engine.Always(estEnfantDansFamille),
		},
		{
			Name:     "br_pf_i",
			Label:    "Base ressource individuelle des prestations familiales",
			Entity:   Individu,
			Formulas: engine.Always(brPfI),
		},
		{
			Name:       "cf_enfant_a_charge",
			Label:      "Complément familial - Enfant considéré à charge",
			Entity:     Individu,
			Formulas:   engine.Always(cfEnfantACharge),
			Parameters: []string{"fam.cf.age1", "fam.cf.age2", "fam.enfants.age_intermediaire"},
		},
		{
			Name:     "cf_ressources_i",
			Label:    "Complément familial - Ressources de l'individu prises en compte",
			Entity:   Individu,
			Formulas: engine.Always(cfRessourcesI),
		},
		{
			Name:     "isol",
			Label:    "Parent isolé",
			Entity:   Famille,
			Formulas: engine.Always(isol),
		},
		{
			Name:       "biact",
			Label:      "Biactivité",
			Entity:     Famille,
			Formulas:   engine.Always(biact),
			Parameters: []string{"fam.biact.seuil", "fam.af.bmaf"},
		},
		{
			Name:     "cf_nbenf",
			Label:    "Nombre d'enfants à charge au sens du complément familial",
			Entity:   Famille,
			Formulas: engine.Always(cfNbenf),
		},
		{
			Name:     "cf_plafond",
			Label:    "Plafond d'éligibilité au complément familial",
			Entity:   Famille,
			Formulas: engine.Always(cfPlafond),
			Parameters: []string{
				"fam.cf.plafond",
				"fam.cf.majoration_plafond_tx1",
				"fam.cf.majoration_plafond_tx2",
				"fam.cf.majoration_plafond_biact_isole",
			},
		},
		{
			Name:   "cf_majore_plafond",
			Label:  "Plafond d'éligibilité au complément familial majoré",
			Entity: Famille,
			Formulas: []engine.DatedFormula{
				{Stop: majorationStart.AddDays(-1), Compute: monthlyZero},
				{Start: majorationStart, Compute: cfMajorePlafond},
			},
			Parameters: []string{"fam.cf.plafond_cf_majore"},
		},
		{
			Name:     "cf_ressources",
			Label:    "Ressources prises en compte pour le complément familial",
			Entity:   Famille,
			Formulas: engine.Always(cfRessources),
		},
		{
			Name:     "cf_eligibilite_base",
			Label:    "Éligibilité au complément familial avant condition de ressources",
			Entity:   Famille,
			Formulas: engine.Always(cfEligibiliteBase),
		},
		{
			Name:       "cf_non_majore_avant_cumul",
			Label:      "Complément familial non majoré avant cumul",
			Entity:     Famille,
			Formulas:   engine.Always(cfNonMajoreAvantCumul),
			Parameters: []string{"fam.af.bmaf", "fam.cf.tx"},
		},
		{
			Name:   "cf_majore_avant_cumul",
			Label:  "Complément familial majoré avant cumul",
			Entity: Famille,
			Formulas: []engine.DatedFormula{
				{Stop: majorationStart.AddDays(-1), Compute: monthlyZero},
				{Start: majorationStart, Compute: cfMajoreAvantCumul},
			},
			Parameters: []string{"fam.af.bmaf", "fam.cf.tx_majore"},
		},
		{
			Name:     "cf_temp",
			Label:    "Complément familial avant cumuls",
			Entity:   Famille,
			Default:  zero,
			Formulas: engine.Always(cfTemp),
		},
		{
			Name:     "cf",
			Label:    "Complément familial",
			Entity:   Famille,
			Default:  zero,
			Policy:   engine.PolicyAdd,
			Formulas: engine.Always(cf),
			URL:      "http://vosdroits.service-public.fr/particuliers/F13214.xhtml",
		},
	}
}

func monthlyZero(_ *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	return p.FirstOf(periods.Month), decimal.Zero, nil
}

func estEnfantDansFamille(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	role, err := ctx.RoleIn(Famille)
	if errors.Is(err, engine.ErrNoGroup) {
		return month, decimal.Zero, nil
	}
	if err != nil {
		return month, decimal.Zero, err
	}
	return month, engine.Bool(role == RoleEnfant), nil
}

// brPfI is the activity income of year N-2, as a yearly amount.
func brPfI(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	v, err := ctx.CalculateAdd("revenu_activite", periods.YearOf(month.Start.Year-2))
	return month, engine.Positive(v), err
}

func cfEnfantACharge(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	if !d.truthy("est_enfant_dans_famille", month) {
		return d.done(month, decimal.Zero)
	}

	age := d.calc("age", month)
	smic55 := d.truthy("smic55", month)
	scolaire := d.truthy("rempli_obligation_scolaire", month)
	age1 := d.param("fam.cf.age1")
	age2 := d.param("fam.cf.age2")
	ageIntermediaire := d.param("fam.enfants.age_intermediaire")

	enfant := age.GreaterThanOrEqual(age1) && age.LessThan(ageIntermediaire) && scolaire
	jeune := age.GreaterThanOrEqual(ageIntermediaire) && age.LessThan(age2) && !smic55
	return d.done(month, engine.Bool(enfant || jeune))
}

func cfRessourcesI(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	br := d.calc("br_pf_i", month)
	if d.truthy("est_enfant_dans_famille", month) && !d.truthy("cf_enfant_a_charge", month) {
		return d.done(month, decimal.Zero)
	}
	return d.done(month, br)
}

func isol(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	return p.FirstOf(periods.Month), engine.Bool(count(ctx.Members(), RoleParent) == 1), nil
}

// biact is true when both parents earned at least seuil monthly bases.
func biact(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	seuil := d.param("fam.biact.seuil").Mul(d.param("fam.af.bmaf"))
	if d.err != nil {
		return d.done(month, decimal.Zero)
	}

	values, err := ctx.MemberValues("br_pf_i", month, RoleParent)
	if err != nil {
		return month, decimal.Zero, err
	}
	actifs := 0
	for _, mv := range values {
		if mv.Value.GreaterThanOrEqual(seuil) {
			actifs++
		}
	}
	return month, engine.Bool(actifs >= 2), nil
}

func cfNbenf(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	v, err := ctx.SumByEntity("cf_enfant_a_charge", month)
	return month, v, err
}

func cfPlafond(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	nbenf := d.calc("cf_nbenf", month)
	majore := d.truthy("isol", month) || d.truthy("biact", month)

	two := decimal.NewFromInt(2)
	taux := one.
		Add(d.param("fam.cf.majoration_plafond_tx1").Mul(decimal.Min(nbenf, two))).
		Add(d.param("fam.cf.majoration_plafond_tx2").Mul(engine.Positive(nbenf.Sub(two))))
	plafond := d.param("fam.cf.plafond").Mul(taux).
		Add(d.param("fam.cf.majoration_plafond_biact_isole").Mul(engine.Bool(majore)))
	return d.done(month, plafond)
}

func cfMajorePlafond(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	return d.done(month, d.calc("cf_plafond", month).Mul(d.param("fam.cf.plafond_cf_majore")))
}

func cfRessources(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	v, err := ctx.SumByEntity("cf_ressources_i", month)
	return month, v, err
}

func cfEligibiliteBase(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	nbenf, err := ctx.Calculate("cf_nbenf", month)
	return month, engine.Bool(nbenf.GreaterThanOrEqual(decimal.NewFromInt(3))), err
}

// cfNonMajoreAvantCumul pays the full amount under the ceiling, and a
// differential amount for resources up to twelve monthly amounts above it.
func cfNonMajoreAvantCumul(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	base := d.truthy("cf_eligibilite_base", month)
	ressources := d.calc("cf_ressources", month)
	plafond := d.calc("cf_plafond", month)
	montant := d.param("fam.af.bmaf").Mul(d.param("fam.cf.tx"))
	if d.err != nil || !base {
		return d.done(month, decimal.Zero)
	}

	if ressources.LessThanOrEqual(plafond) {
		return d.done(month, montant)
	}
	twelve := decimal.NewFromInt(12)
	plafondDiff := plafond.Add(montant.Mul(twelve))
	if ressources.LessThanOrEqual(plafondDiff) {
		return d.done(month, plafondDiff.Sub(ressources).Div(twelve))
	}
	return d.done(month, decimal.Zero)
}

func cfMajoreAvantCumul(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	base := d.truthy("cf_eligibilite_base", month)
	ressources := d.calc("cf_ressources", month)
	plafond := d.calc("cf_majore_plafond", month)
	montant := d.param("fam.af.bmaf").Mul(d.param("fam.cf.tx_majore"))
	if base && ressources.LessThanOrEqual(plafond) {
		return d.done(month, montant)
	}
	return d.done(month, decimal.Zero)
}

func cfTemp(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	return d.done(month, decimal.Max(
		d.calc("cf_non_majore_avant_cumul", month),
		d.calc("cf_majore_avant_cumul", month),
	))
}

// cf is not paid alongside the PAJE base allowance, the APJE or the APE
// when one of those is higher.
func cf(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	month := p.FirstOf(periods.Month)
	d := newDeps(ctx, month)
	paje := d.calc("paje_base_temp", month)
	apje := d.divide("apje_temp", month)
	ape := d.divide("ape_temp", month)
	temp := d.calc("cf_temp", month)
	mayotte := d.truthy("residence_mayotte", month)

	if mayotte || !paje.LessThan(temp) || apje.GreaterThan(temp) || ape.GreaterThan(temp) {
		return d.done(month, decimal.Zero)
	}
	return d.done(month, temp.RoundBank(2))
}
