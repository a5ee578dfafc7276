package legislation_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) periods.Instant { return periods.MustParseInstant(s) }

func vr(start, stop, value string) legislation.ValueRange {
	return legislation.ValueRange{Start: day(start), Stop: day(stop), Value: d(value)}
}

// decimalComparer lets go-cmp compare decimals by value.
var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func newTestTree() *legislation.Node {
	root := legislation.NewNode("root")
	fam := legislation.NewNode("prestations familiales")
	fam.Set("tx", legislation.NewParameter("taux",
		vr("2013-01-01", "2013-12-31", "0.40"),
		vr("2014-01-01", "2014-12-31", "0.45"),
	))
	root.Set("fam", fam)

	root.Set("bareme", &legislation.Scale{Brackets: []legislation.Bracket{
		{
			Threshold: legislation.NewParameter("", vr("2000-01-01", "2020-12-31", "0")),
			Rate:      legislation.NewParameter("", vr("2000-01-01", "2020-12-31", "0")),
		},
		{
			Threshold: legislation.NewParameter("", vr("2000-01-01", "2020-12-31", "10")),
			Rate:      legislation.NewParameter("", vr("2000-01-01", "2020-12-31", "0.10")),
		},
	}})
	return root
}

// =============================================================================
// RESOLUTION TESTS
// =============================================================================

func TestResolve_PicksRangeContainingInstant(t *testing.T) {
	// GIVEN: [2013-01-01, 2013-12-31] -> A and [2014-01-01, 2014-12-31] -> B
	// WHEN: Resolving at dates inside, on the boundary, and after both ranges
	// THEN: A, B, then NoValueAtInstant

	root := newTestTree()

	v, err := root.Resolve("fam.tx", day("2013-06-01"))
	require.NoError(t, err)
	assert.True(t, d("0.40").Equal(v))

	v, err = root.Resolve("fam.tx", day("2014-01-01"))
	require.NoError(t, err)
	assert.True(t, d("0.45").Equal(v))

	_, err = root.Resolve("fam.tx", day("2015-01-01"))
	assert.ErrorIs(t, err, legislation.ErrNoValueAtInstant)
	var noValue *legislation.NoValueError
	require.ErrorAs(t, err, &noValue)
	assert.Equal(t, "fam.tx", noValue.Path)
}

func TestResolve_BoundsAreInclusive(t *testing.T) {
	root := newTestTree()

	v, err := root.Resolve("fam.tx", day("2013-12-31"))
	require.NoError(t, err)
	assert.True(t, d("0.40").Equal(v))

	v, err = root.Resolve("fam.tx", day("2014-12-31"))
	require.NoError(t, err)
	assert.True(t, d("0.45").Equal(v))
}

func TestResolve_GapIsNotExtrapolated(t *testing.T) {
	// GIVEN: A parameter with a gap in 2014
	// WHEN: Resolving inside the gap
	// THEN: The 2013 value is not carried forward

	root := legislation.NewNode("")
	root.Set("p", legislation.NewParameter("",
		vr("2013-01-01", "2013-12-31", "1"),
		vr("2015-01-01", "2015-12-31", "3"),
	))

	_, err := root.Resolve("p", day("2014-06-01"))
	assert.ErrorIs(t, err, legislation.ErrNoValueAtInstant)

	_, err = root.Resolve("p", day("2012-06-01"))
	assert.ErrorIs(t, err, legislation.ErrNoValueAtInstant)
}

func TestResolve_UnknownPath(t *testing.T) {
	root := newTestTree()

	_, err := root.Resolve("fam.nope", day("2014-01-01"))
	assert.ErrorIs(t, err, legislation.ErrParameterNotFound)
	assert.True(t, legislation.IsNotFound(err))

	_, err = root.Resolve("fam.tx.deeper", day("2014-01-01"))
	assert.ErrorIs(t, err, legislation.ErrParameterNotFound)
}

func TestResolve_WrongKind(t *testing.T) {
	root := newTestTree()

	_, err := root.Resolve("fam", day("2014-01-01"))
	assert.ErrorIs(t, err, legislation.ErrNotAParameter)

	_, err = root.Resolve("bareme", day("2014-01-01"))
	assert.ErrorIs(t, err, legislation.ErrNotAParameter)

	_, err = root.ResolveScale("fam.tx", day("2014-01-01"))
	assert.ErrorIs(t, err, legislation.ErrNotAParameter)
}

func TestView_Values(t *testing.T) {
	root := newTestTree()
	root.Set("other", legislation.NewParameter("", vr("2014-01-01", "2014-12-31", "7")))

	view := root.At(day("2014-03-01"))
	assert.Equal(t, day("2014-03-01"), view.Instant())

	vals, err := view.Values("fam.tx", "other")
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.True(t, d("0.45").Equal(vals[0]))
	assert.True(t, d("7").Equal(vals[1]))

	_, err = view.Values("fam.tx", "missing")
	assert.ErrorIs(t, err, legislation.ErrParameterNotFound)
}

// =============================================================================
// SCALE TESTS
// =============================================================================

func TestScale_Apply(t *testing.T) {
	// GIVEN: Brackets (0, 0%) and (10, 10%)
	// WHEN: Applying to 5 and 15
	// THEN: 0 and 0.5

	root := newTestTree()
	scale, err := root.At(day("2014-01-01")).Scale("bareme")
	require.NoError(t, err)
	require.Len(t, scale.Brackets, 2)

	assert.True(t, decimal.Zero.Equal(scale.Apply(d("5"))))
	assert.True(t, d("0.5").Equal(scale.Apply(d("15"))), "got %s", scale.Apply(d("15")))
	assert.True(t, decimal.Zero.Equal(scale.Apply(d("10"))))
	assert.True(t, decimal.Zero.Equal(scale.Apply(d("-3"))))
}

func TestScale_ApplyThreeBrackets(t *testing.T) {
	scale := &legislation.ResolvedScale{Brackets: []legislation.ResolvedBracket{
		{Threshold: d("0"), Rate: d("0")},
		{Threshold: d("100"), Rate: d("0.1")},
		{Threshold: d("200"), Rate: d("0.5")},
	}}

	// 100 * 0.1 + 50 * 0.5
	assert.True(t, d("35").Equal(scale.Apply(d("250"))))
	assert.True(t, d("0.5").Equal(scale.MarginalRate(d("250"))))
	assert.True(t, d("0.1").Equal(scale.MarginalRate(d("150"))))
	assert.True(t, decimal.Zero.Equal(scale.MarginalRate(d("50"))))
}

func TestResolveScale_SkipsBracketWithoutThreshold(t *testing.T) {
	// GIVEN: A top bracket whose threshold stops at the end of 2005
	// WHEN: Resolving in 2006
	// THEN: Only the remaining brackets are returned

	root := legislation.NewNode("")
	root.Set("bareme", &legislation.Scale{Brackets: []legislation.Bracket{
		{
			Threshold: legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "0")),
			Rate:      legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "0")),
		},
		{
			Threshold: legislation.NewParameter("", vr("2000-01-01", "2005-12-31", "50000")),
			Rate:      legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "0.48")),
		},
	}})

	scale, err := root.ResolveScale("bareme", day("2005-06-01"))
	require.NoError(t, err)
	assert.Len(t, scale.Brackets, 2)

	scale, err = root.ResolveScale("bareme", day("2006-06-01"))
	require.NoError(t, err)
	assert.Len(t, scale.Brackets, 1)
}

func TestResolveScale_MissingRateFails(t *testing.T) {
	root := legislation.NewNode("")
	root.Set("bareme", &legislation.Scale{Brackets: []legislation.Bracket{{
		Threshold: legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "0")),
		Rate:      legislation.NewParameter("", vr("2000-01-01", "2004-12-31", "0.1")),
	}}})

	_, err := root.ResolveScale("bareme", day("2006-01-01"))
	assert.ErrorIs(t, err, legislation.ErrNoValueAtInstant)
}

func TestResolveScale_UnsortedThresholds(t *testing.T) {
	root := legislation.NewNode("")
	root.Set("bareme", &legislation.Scale{Brackets: []legislation.Bracket{
		{
			Threshold: legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "100")),
			Rate:      legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "0.1")),
		},
		{
			Threshold: legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "10")),
			Rate:      legislation.NewParameter("", vr("2000-01-01", "2010-12-31", "0.2")),
		},
	}})

	_, err := root.ResolveScale("bareme", day("2006-01-01"))
	assert.ErrorIs(t, err, legislation.ErrUnsortedScale)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate_OverlappingRanges(t *testing.T) {
	root := legislation.NewNode("")
	root.Set("p", legislation.NewParameter("",
		vr("2013-01-01", "2013-12-31", "1"),
		vr("2013-06-01", "2014-12-31", "2"),
	))

	err := root.Validate()
	assert.ErrorIs(t, err, legislation.ErrOverlappingRanges)
	var rangeErr *legislation.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "p", rangeErr.Path)
}

func TestValidate_InvertedRange(t *testing.T) {
	root := legislation.NewNode("")
	root.Set("n", legislation.NewNode("").Set("p", legislation.NewParameter("",
		vr("2014-01-01", "2013-12-31", "1"),
	)))

	assert.ErrorIs(t, root.Validate(), legislation.ErrInvertedRange)
}

func TestValidate_IncompleteBracket(t *testing.T) {
	root := legislation.NewNode("")
	root.Set("s", &legislation.Scale{Brackets: []legislation.Bracket{{
		Threshold: legislation.NewParameter("", vr("2014-01-01", "2014-12-31", "0")),
	}}})

	assert.ErrorIs(t, root.Validate(), legislation.ErrIncompleteBracket)
}

func TestPaths_LexicalOrder(t *testing.T) {
	root := newTestTree()
	assert.Equal(t, []string{"bareme", "fam.tx"}, root.Paths())
}

// =============================================================================
// PATCH TESTS
// =============================================================================

func TestPatch_DoesNotMutateReceiver(t *testing.T) {
	// GIVEN: A reference tree
	// WHEN: Patching a leaf and adding a new subtree
	// THEN: The reference tree is unchanged, the patched tree has both changes

	ref := newTestTree()
	before := ref.Clone()

	patched, err := ref.Patch(
		legislation.Patch{Path: "fam.tx", Values: []legislation.ValueRange{vr("2014-01-01", "2014-12-31", "0.50")}},
		legislation.Patch{Path: "plfr2014", Item: legislation.NewNode("").Set("seuil",
			legislation.NewParameter("", vr("2013-01-01", "2013-12-31", "13795")))},
	)
	require.NoError(t, err)

	if diff := cmp.Diff(before, ref, decimalComparer); diff != "" {
		t.Errorf("reference tree changed (-before +after):\n%s", diff)
	}

	v, err := ref.Resolve("fam.tx", day("2014-06-01"))
	require.NoError(t, err)
	assert.True(t, d("0.45").Equal(v))

	v, err = patched.Resolve("fam.tx", day("2014-06-01"))
	require.NoError(t, err)
	assert.True(t, d("0.50").Equal(v))

	v, err = patched.Resolve("plfr2014.seuil", day("2013-06-01"))
	require.NoError(t, err)
	assert.True(t, d("13795").Equal(v))

	_, err = ref.Resolve("plfr2014.seuil", day("2013-06-01"))
	assert.ErrorIs(t, err, legislation.ErrParameterNotFound)
}

func TestPatch_ItemIsCopied(t *testing.T) {
	// Two trees patched with the same item do not share it.
	ref := newTestTree()
	item := legislation.NewParameter("", vr("2014-01-01", "2014-12-31", "1"))

	a, err := ref.Patch(legislation.Patch{Path: "fam.x", Item: item})
	require.NoError(t, err)
	item.Values[0].Value = d("2")

	v, err := a.Resolve("fam.x", day("2014-01-01"))
	require.NoError(t, err)
	assert.True(t, d("1").Equal(v))
}

func TestPatch_MissingParent(t *testing.T) {
	ref := newTestTree()

	_, err := ref.Patch(legislation.Patch{Path: "nope.tx", Item: legislation.NewNode("")})
	assert.ErrorIs(t, err, legislation.ErrPatchPathNotFound)
	assert.True(t, legislation.IsNotFound(err))

	_, err = ref.Patch(legislation.Patch{Path: "fam.tx.sub", Item: legislation.NewNode("")})
	assert.ErrorIs(t, err, legislation.ErrPatchPathNotFound)

	_, err = ref.Patch(legislation.Patch{Path: "fam.nope", Values: []legislation.ValueRange{vr("2014-01-01", "2014-12-31", "1")}})
	assert.ErrorIs(t, err, legislation.ErrPatchPathNotFound)
}

func TestPatch_ValidatesResult(t *testing.T) {
	ref := newTestTree()

	_, err := ref.Patch(legislation.Patch{Path: "fam.tx", Values: []legislation.ValueRange{
		vr("2014-01-01", "2014-12-31", "1"),
		vr("2014-06-01", "2015-12-31", "2"),
	}})
	assert.ErrorIs(t, err, legislation.ErrOverlappingRanges)
}

// =============================================================================
// LOADER TESTS
// =============================================================================

const irDocument = `{
  "@type": "Node",
  "description": "Législation",
  "children": {
    "ir": {
      "@type": "Node",
      "children": {
        "bareme": {
          "@type": "Scale",
          "unit": "currency",
          "brackets": [
            {
              "threshold": [{"start": "2013-01-01", "stop": "2013-12-31", "value": 0}],
              "rate": [{"start": "2013-01-01", "stop": "2013-12-31", "value": 0}]
            },
            {
              "threshold": [{"start": "2013-01-01", "stop": "2013-12-31", "value": 6011}],
              "rate": [{"start": "2013-01-01", "stop": "2013-12-31", "value": "0.055"}]
            }
          ]
        },
        "active": {
          "@type": "Parameter",
          "format": "boolean",
          "values": [{"start": "2013-01-01", "stop": "2013-12-31", "value": true}]
        }
      }
    }
  }
}`

func TestLoad_OriginalShape(t *testing.T) {
	root, err := legislation.Load(strings.NewReader(irDocument))
	require.NoError(t, err)

	assert.Equal(t, "Législation", root.Description)
	assert.Equal(t, []string{"ir.active", "ir.bareme"}, root.Paths())

	active, err := root.Resolve("ir.active", day("2013-05-01"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(active))

	scale, err := root.ResolveScale("ir.bareme", day("2013-05-01"))
	require.NoError(t, err)
	// (10000 - 6011) * 0.055
	assert.True(t, d("219.395").Equal(scale.Apply(d("10000"))))
}

func TestLoad_YAMLMatchesJSON(t *testing.T) {
	doc := `
"@type": Node
children:
  ir:
    "@type": Node
    children:
      bareme:
        "@type": Scale
        unit: currency
        brackets:
          - threshold: [{start: "2013-01-01", stop: "2013-12-31", value: 0}]
            rate: [{start: "2013-01-01", stop: "2013-12-31", value: 0}]
          - threshold: [{start: "2013-01-01", stop: "2013-12-31", value: 6011}]
            rate: [{start: "2013-01-01", stop: "2013-12-31", value: 0.055}]
      active:
        "@type": Parameter
        format: boolean
        values: [{start: "2013-01-01", stop: "2013-12-31", value: true}]
`
	fromYAML, err := legislation.LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	fromJSON, err := legislation.Load(strings.NewReader(irDocument))
	require.NoError(t, err)

	fromJSON.Description = ""
	if diff := cmp.Diff(fromJSON, fromYAML, decimalComparer); diff != "" {
		t.Errorf("YAML and JSON trees differ (-json +yaml):\n%s", diff)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	root, err := legislation.Load(strings.NewReader(irDocument))
	require.NoError(t, err)

	data, err := legislation.MarshalItem(root)
	require.NoError(t, err)

	again, err := legislation.Load(strings.NewReader(string(data)))
	require.NoError(t, err)
	if diff := cmp.Diff(root, again, decimalComparer); diff != "" {
		t.Errorf("round trip changed the tree (-first +second):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", `{"@type": "Table"}`},
		{"root not a node", `{"@type": "Parameter", "values": []}`},
		{"bad value", `{"@type": "Node", "children": {"p": {"@type": "Parameter", "values": [{"start": "2013-01-01", "stop": "2013-12-31", "value": "abc"}]}}}`},
		{"bad date", `{"@type": "Node", "children": {"p": {"@type": "Parameter", "values": [{"start": "2013-13-01", "stop": "2013-12-31", "value": 1}]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := legislation.Load(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, legislation.ErrInvalidDocument)
		})
	}

	_, err := legislation.Load(strings.NewReader(`{"@type": "Node", "children": {"p": {"@type": "Parameter", "values": [
		{"start": "2013-01-01", "stop": "2013-12-31", "value": 1},
		{"start": "2013-12-31", "stop": "2014-12-31", "value": 2}]}}}`))
	assert.ErrorIs(t, err, legislation.ErrOverlappingRanges)
}

func TestParseItem(t *testing.T) {
	item, err := legislation.ParseItem([]byte(`{"@type": "Parameter", "values": [{"start": "2013-01-01", "stop": "2013-12-31", "value": 350}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Parameter", item.Kind())
}
