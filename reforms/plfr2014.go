package reforms

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/catalog"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

//go:embed plfr2014.json
var plfr2014JSON []byte

var (
	start2013 = periods.MustParseInstant("2013-01-01")
	stop2013  = periods.MustParseInstant("2013-12-31")
	stop2014  = periods.MustParseInstant("2014-12-31")
)

// PLFR2014 adds the exceptional income tax reduction of the 2014 amending
// finance bill. It only applies to 2013 incomes; reductions keeps the
// reference formula for other years.
func PLFR2014(ref *engine.System) (*engine.System, error) {
	patches, err := plfr2014Patches()
	if err != nil {
		return nil, err
	}
	base, err := engine.ReferenceFormulas(ref, "reductions")
	if err != nil {
		return nil, err
	}

	return engine.BuildReform(ref, engine.Reform{
		Name:    "plfr2014",
		Patches: patches,
		Variables: []engine.Variable{{
			Name:   "reduction_impot_exceptionnelle",
			Label:  "Réduction d'impôt exceptionnelle",
			Entity: catalog.FoyerFiscal,
			Formulas: []engine.DatedFormula{
				{Start: start2013, Stop: stop2014, Compute: reductionImpotExceptionnelle},
			},
			Parameters: []string{
				"plfr2014.reduction_impot_exceptionnelle.montant_plafond",
				"plfr2014.reduction_impot_exceptionnelle.seuil",
				"plfr2014.reduction_impot_exceptionnelle.majoration_seuil",
			},
		}},
		Overrides: []engine.Override{{
			Variable: "reductions",
			Formulas: engine.Splice(base, engine.DatedFormula{Start: start2013, Stop: stop2013, Compute: reductions2013}),
		}},
	})
}

// plfr2014Patches adds each top-level node of the embedded document at the
// root of the tree.
func plfr2014Patches() ([]legislation.Patch, error) {
	doc, err := legislation.Load(bytes.NewReader(plfr2014JSON))
	if err != nil {
		return nil, fmt.Errorf("plfr2014 legislation: %w", err)
	}
	var patches []legislation.Patch
	for _, name := range doc.Names() {
		patches = append(patches, legislation.Patch{Path: name, Item: doc.Children[name]})
	}
	return patches, nil
}

// reductionImpotExceptionnelle decreases from the full amount to zero as
// the reference income rises above the ceiling:
//
//	min(max(plafond + montant - rfr, 0), montant)
func reductionImpotExceptionnelle(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	year := p.FirstOf(periods.Year)
	vals, err := ctx.LegislationAt(year.Start).Values(
		"plfr2014.reduction_impot_exceptionnelle.seuil",
		"plfr2014.reduction_impot_exceptionnelle.majoration_seuil",
		"plfr2014.reduction_impot_exceptionnelle.montant_plafond",
	)
	if err != nil {
		return year, decimal.Zero, err
	}
	seuil, majoration, montantPlafond := vals[0], vals[1], vals[2]

	in, err := values(ctx, year, "nb_adult", "nbptr", "rfr")
	if err != nil {
		return year, decimal.Zero, err
	}
	nbAdult, nbptr, rfr := in[0], in[1], in[2]

	plafond := seuil.Mul(nbAdult).Add(nbptr.Sub(nbAdult).Mul(decimal.NewFromInt(2)).Mul(majoration))
	montant := montantPlafond.Mul(nbAdult)
	return year, decimal.Min(engine.Positive(plafond.Add(montant).Sub(rfr)), montant), nil
}

// reductions2013 adds the exceptional reduction to the reference
// reductions, still capped at the tax due.
func reductions2013(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
	year := p.FirstOf(periods.Year)
	refCtx, err := ctx.Reference()
	if err != nil {
		return year, decimal.Zero, err
	}
	reference, err := refCtx.Calculate("reductions", year)
	if err != nil {
		return year, decimal.Zero, err
	}

	in, err := values(ctx, year, "ip_net", "reduction_impot_exceptionnelle")
	if err != nil {
		return year, decimal.Zero, err
	}
	return year, decimal.Min(in[0], reference.Add(in[1])), nil
}

// values evaluates several variables of the current entity for one period.
func values(ctx *engine.Context, p periods.Period, names ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(names))
	for i, name := range names {
		v, err := ctx.Calculate(name, p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
