package reforms_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fisc-engine/catalog"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/engine/store"
	"github.com/warp/fisc-engine/periods"
	"github.com/warp/fisc-engine/reforms"
)

var foyer = engine.Ref(catalog.FoyerFiscal, "ff")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]interface{}{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func reference(t *testing.T) *engine.System {
	t.Helper()
	sys, err := catalog.NewSystem()
	require.NoError(t, err)
	return sys
}

func newFoyer(t *testing.T, year int, declarants int, inputs map[string]string) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	for i := 0; i < declarants; i++ {
		p := engine.Ref(catalog.Individu, string(rune('a'+i)))
		require.NoError(t, mem.AddMember(foyer, p, catalog.RoleDeclarant))
	}
	for name, v := range inputs {
		mem.SetInput(foyer, name, periods.YearOf(year), d(v))
	}
	return mem
}

// evaluate runs the same household on both systems.
func evaluate(t *testing.T, ref, reform *engine.System, mem *store.Memory, name string, p periods.Period) (before, after decimal.Decimal) {
	t.Helper()
	before, err := engine.NewSimulation(ref, mem, mem).Evaluate(foyer, name, p)
	require.NoError(t, err)
	after, err = engine.NewSimulation(reform, mem, mem).Evaluate(foyer, name, p)
	require.NoError(t, err)
	return before, after
}

// =============================================================================
// PLFR 2014
// =============================================================================

func TestPLFR2014(t *testing.T) {
	// GIVEN: A single taxpayer with a reference income just above the seuil
	// WHEN: Evaluating the tax after reductions for 2013
	// THEN: The exceptional reduction lowers it; 2014 is unchanged

	ref := reference(t)
	reform, err := reforms.PLFR2014(ref)
	require.NoError(t, err)

	tests := []struct {
		name   string
		year   int
		rbg    string
		before string
		after  string
	}{
		{"partial reduction", 2013, "13900", "386.24", "141.24"}, // reduction 13795 + 350 - 13900 = 245
		{"reduction capped at tax due", 2013, "13000", "197.24", "0"},
		{"2014 keeps the reference formula", 2014, "13900", "316.6", "316.6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newFoyer(t, tt.year, 1, map[string]string{"rbg": tt.rbg})
			before, after := evaluate(t, ref, reform, mem, "iaidrdi", periods.YearOf(tt.year))
			assertDecimal(t, d(tt.before), before)
			assertDecimal(t, d(tt.after), after)
		})
	}
}

func TestPLFR2014_ReductionForCouple(t *testing.T) {
	reform, err := reforms.PLFR2014(reference(t))
	require.NoError(t, err)

	// plafond = 13795*2 + (3-2)*2*3536 = 34662, montant = 700
	mem := newFoyer(t, 2013, 2, map[string]string{"rbg": "34500", "nbptr": "3"})
	sim := engine.NewSimulation(reform, mem, mem)
	v, err := sim.Evaluate(foyer, "reduction_impot_exceptionnelle", periods.YearOf(2013))
	require.NoError(t, err)
	assertDecimal(t, d("700"), v)

	mem = newFoyer(t, 2013, 2, map[string]string{"rbg": "35000", "nbptr": "3"})
	sim = engine.NewSimulation(reform, mem, mem)
	v, err = sim.Evaluate(foyer, "reduction_impot_exceptionnelle", periods.YearOf(2013))
	require.NoError(t, err)
	assertDecimal(t, d("362"), v)

	_, err = sim.Evaluate(foyer, "reduction_impot_exceptionnelle", periods.YearOf(2015))
	assert.ErrorIs(t, err, engine.ErrNoApplicableFormula)
}

func TestPLFR2014_Legislation(t *testing.T) {
	ref := reference(t)
	reform, err := reforms.PLFR2014(ref)
	require.NoError(t, err)

	at := periods.MustParseInstant("2014-06-01")
	taux, err := reform.Legislation().Resolve("plfrss2014.exonerations_bas_salaires.prive.taux", at)
	require.NoError(t, err)
	assertDecimal(t, d("0.03"), taux)

	_, err = ref.Legislation().Lookup("plfr2014")
	assert.Error(t, err, "the reference tree is not patched")
}

// =============================================================================
// IR 2007
// =============================================================================

func TestIR2007(t *testing.T) {
	ref := reference(t)
	reform, err := reforms.IR2007(ref)
	require.NoError(t, err)

	mem := newFoyer(t, 2013, 1, map[string]string{"rbg": "30000"})
	before, after := evaluate(t, ref, reform, mem, "ir_brut", periods.YearOf(2013))
	assertDecimal(t, d("3389.2"), before)
	// 5657*0.055 + 13851*0.14 + 4805*0.30
	assertDecimal(t, d("3691.775"), after)

	mem = newFoyer(t, 2013, 1, map[string]string{"rbg": "30000", "taux_effectif": "0.1"})
	sim := engine.NewSimulation(reform, mem, mem)
	v, err := sim.Evaluate(foyer, "ir_brut", periods.YearOf(2013))
	require.NoError(t, err)
	assertDecimal(t, d("3000"), v)
}

// =============================================================================
// DEDUCTIONS
// =============================================================================

func TestNoDeductibleCharges(t *testing.T) {
	ref := reference(t)
	reform, err := reforms.NoDeductibleCharges(ref)
	require.NoError(t, err)

	mem := newFoyer(t, 2013, 1, map[string]string{"rbg": "30000", "charges_deduc": "2000", "csg_deduc": "500"})
	before, after := evaluate(t, ref, reform, mem, "rng", periods.YearOf(2013))
	assertDecimal(t, d("27500"), before)
	assertDecimal(t, d("29500"), after)
}

func TestNoTaxReductions(t *testing.T) {
	ref := reference(t)
	reform, err := reforms.NoTaxReductions(ref)
	require.NoError(t, err)

	mem := newFoyer(t, 2013, 1, map[string]string{"rbg": "30000", "reductions_diverses": "500"})
	before, after := evaluate(t, ref, reform, mem, "iaidrdi", periods.YearOf(2013))
	assertDecimal(t, d("2889.2"), before)
	assertDecimal(t, d("3389.2"), after)
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestBuild_Stacks(t *testing.T) {
	ref := reference(t)
	sys, err := reforms.Build(ref, "ir2007", "no_tax_reductions")
	require.NoError(t, err)
	assert.Equal(t, []string{"no_tax_reductions", "ir2007", catalog.ReferenceName}, sys.Lineage())

	mem := newFoyer(t, 2013, 1, map[string]string{"rbg": "30000", "reductions_diverses": "500"})
	v, err := engine.NewSimulation(sys, mem, mem).Evaluate(foyer, "iaidrdi", periods.YearOf(2013))
	require.NoError(t, err)
	assertDecimal(t, d("3691.775"), v)

	same, err := reforms.Build(ref)
	require.NoError(t, err)
	assert.Same(t, ref, same)

	_, err = reforms.Build(ref, "nope")
	assert.ErrorIs(t, err, reforms.ErrUnknownReform)
}

func TestList(t *testing.T) {
	var keys []string
	for _, info := range reforms.List() {
		keys = append(keys, info.Key)
		assert.NotEmpty(t, info.Label)
	}
	assert.Equal(t, []string{"ir2007", "no_deductible_charges", "no_tax_reductions", "plfr2014"}, keys)
}

func TestParseStack(t *testing.T) {
	assert.Empty(t, reforms.ParseStack("", catalog.ReferenceName))
	assert.Empty(t, reforms.ParseStack(catalog.ReferenceName, catalog.ReferenceName))
	assert.Equal(t, []string{"ir2007", "no_tax_reductions"},
		reforms.ParseStack(" ir2007, ,no_tax_reductions ", catalog.ReferenceName))
}
