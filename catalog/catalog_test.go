package catalog_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fisc-engine/catalog"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/engine/store"
	"github.com/warp/fisc-engine/periods"
)

var (
	fam     = engine.Ref(catalog.Famille, "f")
	foyer   = engine.Ref(catalog.FoyerFiscal, "ff")
	parent1 = engine.Ref(catalog.Individu, "p1")
	parent2 = engine.Ref(catalog.Individu, "p2")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]interface{}{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func newSystem(t *testing.T) *engine.System {
	t.Helper()
	sys, err := catalog.NewSystem()
	require.NoError(t, err)
	return sys
}

func TestNewSystem(t *testing.T) {
	sys := newSystem(t)
	assert.Equal(t, catalog.ReferenceName, sys.Name())
	assert.False(t, sys.IsReform())

	for _, name := range []string{"cf", "cotisations_salariales", "iaidrdi", "rfr", "nb_adult"} {
		_, err := sys.Variable(name)
		assert.NoError(t, err, name)
	}

	_, err := sys.Legislation().Lookup("ir.bareme")
	assert.NoError(t, err)
}

func TestLegislation_FreshTreeEachCall(t *testing.T) {
	a, err := catalog.Legislation()
	require.NoError(t, err)
	b, err := catalog.Legislation()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	bmaf, err := a.Resolve("fam.af.bmaf", periods.MustParseInstant("2014-06-01"))
	require.NoError(t, err)
	assertDecimal(t, d("406.21"), bmaf)
}

// =============================================================================
// COMPLÉMENT FAMILIAL
// =============================================================================

type child struct {
	id  string
	age int64
}

// newFamily puts two parents (or one) and children in a family, with ages
// set for every month of 2014 and activity incomes for 2012.
func newFamily(t *testing.T, incomes []int64, children ...child) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	parents := []engine.EntityRef{parent1, parent2}
	for i, income := range incomes {
		require.NoError(t, mem.AddMember(fam, parents[i], catalog.RoleParent))
		mem.SetInput(parents[i], "revenu_activite", periods.YearOf(2012), decimal.NewFromInt(income))
	}

	months, err := periods.YearOf(2014).Subperiods(periods.Month)
	require.NoError(t, err)
	for _, c := range children {
		ref := engine.Ref(catalog.Individu, c.id)
		require.NoError(t, mem.AddMember(fam, ref, catalog.RoleEnfant))
		for _, m := range months {
			mem.SetInput(ref, "age", m, decimal.NewFromInt(c.age))
		}
	}
	return mem
}

func threeChildren() []child {
	return []child{{"c1", 5}, {"c2", 8}, {"c3", 10}}
}

func TestCF_Monthly(t *testing.T) {
	june := periods.MonthOf(2014, time.June)
	feb := periods.MonthOf(2014, time.February)

	tests := []struct {
		name     string
		incomes  []int64
		children []child
		month    periods.Period
		want     string
	}{
		{
			name:     "full amount under the ceiling",
			incomes:  []int64{15000, 10000},
			children: threeChildren(),
			month:    june,
			want:     "169.19", // 406.21 * 0.4165
		},
		{
			name:     "increased amount under the increased ceiling",
			incomes:  []int64{15000, 5000},
			children: threeChildren(),
			month:    june,
			want:     "182.79", // 406.21 * 0.45
		},
		{
			name:     "no increased amount before April 2014",
			incomes:  []int64{15000, 5000},
			children: threeChildren(),
			month:    feb,
			want:     "168.18", // 403.79 * 0.4165
		},
		{
			name:     "differential amount above the ceiling",
			incomes:  []int64{47000},
			children: threeChildren(),
			month:    june,
			want:     "107.55", // (46260.4 + 12*169.186465 - 47000) / 12
		},
		{
			name:     "resources far above the ceiling",
			incomes:  []int64{60000, 10000},
			children: threeChildren(),
			month:    june,
			want:     "0",
		},
		{
			name:     "two children are not enough",
			incomes:  []int64{15000, 10000},
			children: []child{{"c1", 5}, {"c2", 8}},
			month:    june,
			want:     "0",
		},
		{
			name:     "children under three do not count",
			incomes:  []int64{15000, 10000},
			children: []child{{"c1", 1}, {"c2", 8}, {"c3", 10}},
			month:    june,
			want:     "0",
		},
		{
			name:     "young adult without income counts",
			incomes:  []int64{15000, 10000},
			children: []child{{"c1", 17}, {"c2", 8}, {"c3", 10}},
			month:    june,
			want:     "169.19",
		},
	}

	sys := newSystem(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newFamily(t, tt.incomes, tt.children...)
			sim := engine.NewSimulation(sys, mem, mem)
			v, err := sim.Evaluate(fam, "cf", tt.month)
			require.NoError(t, err)
			assertDecimal(t, d(tt.want), v)
		})
	}
}

func TestCF_PlafondAndBiactivite(t *testing.T) {
	// GIVEN: Two working parents and three children in June 2014
	// WHEN: Evaluating the intermediate variables
	// THEN: The ceiling is raised per child and for dual activity

	sys := newSystem(t)
	mem := newFamily(t, []int64{15000, 10000}, threeChildren()...)
	sim := engine.NewSimulation(sys, mem, mem)
	june := periods.MonthOf(2014, time.June)

	for name, want := range map[string]string{
		"cf_nbenf":            "3",
		"biact":               "1",
		"isol":                "0",
		"cf_plafond":          "46260.4", // 21008 * 1.8 + 8446
		"cf_majore_plafond":   "23130.2",
		"cf_ressources":       "25000",
		"cf_eligibilite_base": "1",
	} {
		v, err := sim.Evaluate(fam, name, june)
		require.NoError(t, err, name)
		assertDecimal(t, d(want), v, name)
	}
}

func TestCF_YearlySumsMonths(t *testing.T) {
	sys := newSystem(t)
	mem := newFamily(t, []int64{15000, 10000}, threeChildren()...)
	sim := engine.NewSimulation(sys, mem, mem)

	v, err := sim.Evaluate(fam, "cf", periods.YearOf(2014))
	require.NoError(t, err)
	// Three months at 168.18, nine at 169.19.
	assertDecimal(t, d("2027.25"), v)
}

func TestCF_ExclusiveWithPAJE(t *testing.T) {
	sys := newSystem(t)
	mem := newFamily(t, []int64{15000, 10000}, threeChildren()...)
	june := periods.MonthOf(2014, time.June)
	mem.SetInput(fam, "paje_base_temp", june, d("184.62"))
	sim := engine.NewSimulation(sys, mem, mem)

	v, err := sim.Evaluate(fam, "cf", june)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	// A yearly APE above the monthly amount also excludes it.
	mem = newFamily(t, []int64{15000, 10000}, threeChildren()...)
	mem.SetInput(fam, "ape_temp", periods.YearOf(2014), d("2400"))
	sim = engine.NewSimulation(sys, mem, mem)
	v, err = sim.Evaluate(fam, "cf", june)
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestCF_MissingAgeReportsChain(t *testing.T) {
	sys := newSystem(t)
	mem := newFamily(t, []int64{15000, 10000}, threeChildren()...)
	require.NoError(t, mem.AddMember(fam, engine.Ref(catalog.Individu, "c4"), catalog.RoleEnfant))
	sim := engine.NewSimulation(sys, mem, mem)

	_, err := sim.Evaluate(fam, "cf", periods.MonthOf(2014, time.June))
	require.ErrorIs(t, err, engine.ErrMissingInput)

	chain := engine.ChainOf(err)
	require.NotEmpty(t, chain)
	assert.Equal(t, "cf", chain[0].Variable)
	assert.Equal(t, "age", chain[len(chain)-1].Variable)
}

// =============================================================================
// COTISATIONS
// =============================================================================

func TestCotisations(t *testing.T) {
	// GIVEN: A yearly wage of 48000 in 2014, 4000 a month
	// WHEN: Evaluating the contributions
	// THEN: The capped pension contribution stops at the ceiling

	sys := newSystem(t)
	mem := store.NewMemory()
	mem.SetInput(parent1, "salaire_de_base", periods.YearOf(2014), d("48000"))
	sim := engine.NewSimulation(sys, mem, mem)
	march := periods.MonthOf(2014, time.March)

	for name, want := range map[string]string{
		"vieillesse_plafonnee_salarie":   "-212.772", // 0.068 * 3129
		"vieillesse_deplafonnee_salarie": "-10",
		"chomage_salarie":                "-96",
		"cotisations_salariales":         "-318.772",
	} {
		v, err := sim.Evaluate(parent1, name, march)
		require.NoError(t, err, name)
		assertDecimal(t, d(want), v, name)
	}

	v, err := sim.Evaluate(parent1, "cotisations_salariales", periods.YearOf(2014))
	require.NoError(t, err)
	assertDecimal(t, d("-3825.264"), v)
}

// =============================================================================
// IMPÔT SUR LE REVENU
// =============================================================================

func newFoyer(t *testing.T, year int, inputs map[string]string, declarants int) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	for _, p := range []engine.EntityRef{parent1, parent2}[:declarants] {
		require.NoError(t, mem.AddMember(foyer, p, catalog.RoleDeclarant))
	}
	for name, v := range inputs {
		mem.SetInput(foyer, name, periods.YearOf(year), d(v))
	}
	return mem
}

func TestImpot(t *testing.T) {
	tests := []struct {
		name   string
		year   int
		inputs map[string]string
		want   map[string]string
	}{
		{
			name:   "single 2013",
			year:   2013,
			inputs: map[string]string{"rbg": "30000"},
			want: map[string]string{
				"rni":     "30000",
				"ir_brut": "3389.2", // 5980*0.055 + 14640*0.14 + 3369*0.30
				"decote":  "0",
				"iaidrdi": "3389.2",
			},
		},
		{
			name:   "decote 2013",
			year:   2013,
			inputs: map[string]string{"rbg": "15000"},
			want: map[string]string{
				"ir_brut": "750.16",
				"decote":  "132.92", // (1016 - 750.16) / 2
				"ip_net":  "617.24",
			},
		},
		{
			name:   "two parts 2014",
			year:   2014,
			inputs: map[string]string{"rbg": "40000", "csg_deduc": "1000", "charges_deduc": "1000", "nbptr": "2"},
			want: map[string]string{
				"rng":     "38000",
				"ir_brut": "2606.8", // 2 * 0.14 * (19000 - 9690)
				"ip_net":  "2606.8",
			},
		},
		{
			name:   "reductions capped at tax due",
			year:   2013,
			inputs: map[string]string{"rbg": "30000", "reductions_diverses": "5000"},
			want: map[string]string{
				"reductions": "3389.2",
				"iaidrdi":    "0",
			},
		},
		{
			name:   "reductions",
			year:   2013,
			inputs: map[string]string{"rbg": "30000", "reductions_diverses": "500"},
			want: map[string]string{
				"reductions": "500",
				"iaidrdi":    "2889.2",
			},
		},
	}

	sys := newSystem(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newFoyer(t, tt.year, tt.inputs, 1)
			sim := engine.NewSimulation(sys, mem, mem)
			for name, want := range tt.want {
				v, err := sim.Evaluate(foyer, name, periods.YearOf(tt.year))
				require.NoError(t, err, name)
				assertDecimal(t, d(want), v, name)
			}
		})
	}
}

func TestImpot_MonthlyRequests(t *testing.T) {
	sys := newSystem(t)
	mem := newFoyer(t, 2013, map[string]string{"rbg": "30000"}, 2)
	sim := engine.NewSimulation(sys, mem, mem)
	jan := periods.MonthOf(2013, time.January)

	v, err := sim.Evaluate(foyer, "iaidrdi", jan)
	require.NoError(t, err)
	assertDecimal(t, d("3389.2").Div(decimal.NewFromInt(12)), v)

	_, err = sim.Evaluate(foyer, "rni", jan)
	assert.ErrorIs(t, err, engine.ErrPeriodPolicyViolation)

	v, err = sim.Evaluate(foyer, "nb_adult", periods.YearOf(2013))
	require.NoError(t, err)
	assertDecimal(t, decimal.NewFromInt(2), v)
}

func TestImpot_InvalidParts(t *testing.T) {
	sys := newSystem(t)
	mem := newFoyer(t, 2013, map[string]string{"rbg": "30000", "nbptr": "0"}, 1)
	sim := engine.NewSimulation(sys, mem, mem)

	_, err := sim.Evaluate(foyer, "ir_brut", periods.YearOf(2013))
	assert.ErrorIs(t, err, engine.ErrInvalidFormula)
}
