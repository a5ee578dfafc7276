package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

func doubledRate() legislation.Patch {
	return legislation.Patch{Path: "cot.taux", Values: []legislation.ValueRange{{
		Start: periods.MustParseInstant("2000-01-01"),
		Stop:  periods.MustParseInstant("2030-12-31"),
		Value: decimal.RequireFromString("0.2"),
	}}}
}

// =============================================================================
// ISOLATION TESTS
// =============================================================================

func TestBuildReform_LeavesReferenceUnchanged(t *testing.T) {
	// GIVEN: A reference system
	// WHEN: Building a reform that patches cot.taux and overrides allocation
	// THEN: The reference still evaluates and resolves as before

	ref := newTestSystem(t)
	before := newTestSimulation(t, ref)
	cotBefore, err := before.Evaluate(p1, "cotisation", y2014)
	require.NoError(t, err)

	reform, err := engine.BuildReform(ref, engine.Reform{
		Name:      "double",
		Patches:   []legislation.Patch{doubledRate()},
		Overrides: []engine.Override{{Variable: "allocation", Formulas: engine.Always(constant(10))}},
	})
	require.NoError(t, err)

	refSim := newTestSimulation(t, ref)
	v, err := refSim.Evaluate(p1, "cotisation", y2014)
	require.NoError(t, err)
	assertDecimal(t, cotBefore, v)

	taux, err := ref.Legislation().Resolve("cot.taux", periods.MustParseInstant("2014-01-01"))
	require.NoError(t, err)
	assertDecimal(t, decimal.RequireFromString("0.1"), taux)

	_, err = refSim.Evaluate(p1, "allocation", periods.YearOf(2015))
	assert.ErrorIs(t, err, engine.ErrNoApplicableFormula)

	reformSim := newTestSimulation(t, reform)
	v, err = reformSim.Evaluate(p1, "cotisation", y2014)
	require.NoError(t, err)
	assertDecimal(t, dec(2400), v)

	// The override replaces every dated formula: no gap left in 2015.
	v, err = reformSim.Evaluate(p1, "allocation", periods.YearOf(2015))
	require.NoError(t, err)
	assertDecimal(t, dec(10), v)
}

func TestBuildReform_KeepsReferenceFormulasWhenAsked(t *testing.T) {
	ref := newTestSystem(t)
	formulas, err := engine.ReferenceFormulas(ref, "allocation")
	require.NoError(t, err)

	reform, err := engine.BuildReform(ref, engine.Reform{
		Name: "extend",
		Overrides: []engine.Override{{Variable: "allocation", Formulas: append(formulas, engine.DatedFormula{
			Start:   periods.MustParseInstant("2015-01-01"),
			Compute: constant(3),
		})}},
	})
	require.NoError(t, err)

	sim := newTestSimulation(t, reform)
	for year, want := range map[int]int64{2012: 1, 2014: 2, 2016: 3} {
		v, err := sim.Evaluate(p1, "allocation", periods.YearOf(year))
		require.NoError(t, err)
		assertDecimal(t, dec(want), v, "year %d", year)
	}
}

// =============================================================================
// DELEGATION TESTS
// =============================================================================

func TestBuildReform_DelegatesToReference(t *testing.T) {
	// GIVEN: A reform whose cotisation is the reference cotisation plus 5
	// WHEN: Evaluating the yearly total on the reform
	// THEN: Each month delegates once, without a false cycle

	ref := newTestSystem(t)
	reform, err := engine.BuildReform(ref, engine.Reform{
		Name: "plus5",
		Overrides: []engine.Override{{Variable: "cotisation", Formulas: engine.Always(
			func(ctx *engine.Context, p periods.Period) (periods.Period, decimal.Decimal, error) {
				month := p.FirstOf(periods.Month)
				refCtx, err := ctx.Reference()
				if err != nil {
					return month, decimal.Zero, err
				}
				v, err := refCtx.Calculate("cotisation", month)
				return month, v.Add(dec(5)), err
			})}},
	})
	require.NoError(t, err)

	sim := newTestSimulation(t, reform)
	v, err := sim.Evaluate(p1, "cotisation", y2014)
	require.NoError(t, err)
	assertDecimal(t, dec(1260), v)
	assert.Equal(t, 24, sim.Stats().FormulaCalls)
}

func TestBuildReform_Stacking(t *testing.T) {
	ref := newTestSystem(t)
	first, err := engine.BuildReform(ref, engine.Reform{Name: "double", Patches: []legislation.Patch{doubledRate()}})
	require.NoError(t, err)

	second, err := engine.BuildReform(first, engine.Reform{
		Name:      "bonus",
		Variables: []engine.Variable{{Name: "bonus", Entity: "individu", Formulas: engine.Always(constant(7))}},
	})
	require.NoError(t, err)

	assert.True(t, second.IsReform())
	assert.Same(t, first, second.Reference())
	assert.Equal(t, []string{"bonus", "double", "reference"}, second.Lineage())

	sim := newTestSimulation(t, second)
	v, err := sim.Evaluate(p1, "cotisation", y2014)
	require.NoError(t, err)
	assertDecimal(t, dec(2400), v, "patches of the parent reform are inherited")

	v, err = sim.Evaluate(p1, "bonus", y2014)
	require.NoError(t, err)
	assertDecimal(t, dec(7), v)

	_, err = first.Variable("bonus")
	assert.ErrorIs(t, err, engine.ErrUnknownVariable)
}

// =============================================================================
// BUILD ERROR TESTS
// =============================================================================

func TestBuildReform_Errors(t *testing.T) {
	ref := newTestSystem(t)

	tests := []struct {
		name   string
		reform engine.Reform
		want   error
	}{
		{
			name:   "override of unknown variable",
			reform: engine.Reform{Name: "r", Overrides: []engine.Override{{Variable: "nope", Formulas: engine.Always(constant(1))}}},
			want:   engine.ErrUnknownVariable,
		},
		{
			name:   "new variable collides",
			reform: engine.Reform{Name: "r", Variables: []engine.Variable{{Name: "salaire", Entity: "individu"}}},
			want:   engine.ErrDuplicateVariable,
		},
		{
			name:   "patch path missing",
			reform: engine.Reform{Name: "r", Patches: []legislation.Patch{{Path: "nope.taux", Item: legislation.NewNode("")}}},
			want:   legislation.ErrPatchPathNotFound,
		},
		{
			name:   "patch removes a declared parameter",
			reform: engine.Reform{Name: "r", Patches: []legislation.Patch{{Path: "cot", Item: legislation.NewNode("")}}},
			want:   legislation.ErrParameterNotFound,
		},
		{
			name: "override with overlapping formulas",
			reform: engine.Reform{Name: "r", Overrides: []engine.Override{{Variable: "allocation", Formulas: []engine.DatedFormula{
				{Compute: constant(1)},
				{Start: periods.MustParseInstant("2014-01-01"), Compute: constant(2)},
			}}}},
			want: engine.ErrOverlappingFormulas,
		},
		{
			name:   "override without formulas",
			reform: engine.Reform{Name: "r", Overrides: []engine.Override{{Variable: "present"}}},
			want:   engine.ErrInvalidFormula,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.BuildReform(ref, tt.reform)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := engine.BuildReform(ref, engine.Reform{Name: "r", Overrides: []engine.Override{{Variable: "present"}}})
	assert.True(t, engine.IsDefinitionError(err))
	v, err := ref.Variable("present")
	require.NoError(t, err)
	assert.False(t, v.IsInput(), "the reference formula survives a rejected override")

	// Nothing leaked into the reference.
	_, err = ref.Variable("nope")
	assert.ErrorIs(t, err, engine.ErrUnknownVariable)
	_, err = ref.Legislation().Lookup("cot.taux")
	assert.NoError(t, err)
}

func TestSplice_ClipsAroundPatch(t *testing.T) {
	// GIVEN: An unbounded reference formula
	// WHEN: Splicing a 2013-only formula into it
	// THEN: The reference stays active before and after 2013

	ref := newTestSystem(t)
	base, err := engine.ReferenceFormulas(ref, "present")
	require.NoError(t, err)

	spliced := engine.Splice(base, engine.DatedFormula{
		Start:   periods.MustParseInstant("2013-01-01"),
		Stop:    periods.MustParseInstant("2013-12-31"),
		Compute: constant(9),
	})
	require.Len(t, spliced, 3)

	reform, err := engine.BuildReform(ref, engine.Reform{
		Name:      "splice",
		Overrides: []engine.Override{{Variable: "present", Formulas: spliced}},
	})
	require.NoError(t, err)

	sim := newTestSimulation(t, reform)
	for year, want := range map[int]int64{2012: 1, 2013: 9, 2014: 1} {
		v, err := sim.Evaluate(p1, "present", periods.YearOf(year))
		require.NoError(t, err)
		assertDecimal(t, dec(want), v, "year %d", year)
	}
}

func TestSplice_KeepsDisjointFormulas(t *testing.T) {
	ref := newTestSystem(t)
	base, err := engine.ReferenceFormulas(ref, "allocation")
	require.NoError(t, err)

	spliced := engine.Splice(base, engine.DatedFormula{
		Start:   periods.MustParseInstant("2015-01-01"),
		Compute: constant(5),
	})
	assert.Len(t, spliced, 3)
}
