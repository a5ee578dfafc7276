package legislation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
)

// Lookup returns the item at a dotted path, relative to n.
func (n *Node) Lookup(path string) (Item, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return n, nil
	}
	var current Item = n
	for _, seg := range segments {
		node, ok := current.(*Node)
		if !ok {
			return nil, &NotFoundError{Path: path}
		}
		child, ok := node.Children[seg]
		if !ok {
			return nil, &NotFoundError{Path: path}
		}
		current = child
	}
	return current, nil
}

// Resolve returns the value of the parameter at path for the given instant.
func (n *Node) Resolve(path string, at periods.Instant) (decimal.Decimal, error) {
	item, err := n.Lookup(path)
	if err != nil {
		return decimal.Zero, err
	}
	param, ok := item.(*Parameter)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s is a %s: %w", path, item.Kind(), ErrNotAParameter)
	}
	v, ok := param.ValueAt(at)
	if !ok {
		return decimal.Zero, &NoValueError{Path: path, At: at}
	}
	return v, nil
}

// ResolveScale resolves every bracket of the scale at path for the given
// instant. Brackets whose threshold has no value at that instant are
// dropped: that is how the legislation removes a tranche from a given year
// on. A threshold without a matching rate is an error.
func (n *Node) ResolveScale(path string, at periods.Instant) (*ResolvedScale, error) {
	item, err := n.Lookup(path)
	if err != nil {
		return nil, err
	}
	scale, ok := item.(*Scale)
	if !ok {
		return nil, fmt.Errorf("%s is a %s: %w", path, item.Kind(), ErrNotAParameter)
	}

	resolved := &ResolvedScale{Path: path, At: at}
	for i, b := range scale.Brackets {
		threshold, ok := b.Threshold.ValueAt(at)
		if !ok {
			continue
		}
		rate, ok := b.Rate.ValueAt(at)
		if !ok {
			return nil, &NoValueError{Path: fmt.Sprintf("%s[%d].rate", path, i), At: at}
		}
		if k := len(resolved.Brackets); k > 0 && threshold.LessThan(resolved.Brackets[k-1].Threshold) {
			return nil, fmt.Errorf("%s at %s: bracket %d: %w", path, at, i, ErrUnsortedScale)
		}
		resolved.Brackets = append(resolved.Brackets, ResolvedBracket{Threshold: threshold, Rate: rate})
	}
	return resolved, nil
}

// =============================================================================
// VIEW - The tree bound to an instant
// =============================================================================

// View is what formulas receive from legislation_at(instant). It answers
// every lookup at the bound instant.
type View struct {
	root *Node
	at   periods.Instant
}

// At binds the tree to an instant.
func (n *Node) At(at periods.Instant) *View {
	return &View{root: n, at: at}
}

func (v *View) Instant() periods.Instant { return v.at }

// Get resolves a parameter at the bound instant.
func (v *View) Get(path string) (decimal.Decimal, error) {
	return v.root.Resolve(path, v.at)
}

// Scale resolves a scale at the bound instant.
func (v *View) Scale(path string) (*ResolvedScale, error) {
	return v.root.ResolveScale(path, v.at)
}

// Values resolves several parameters at once and stops at the first error.
// Formulas reading a handful of constants use it to keep error handling in
// one place:
//
//	vals, err := leg.Values("fam.cf.age1", "fam.cf.age2")
func (v *View) Values(paths ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(paths))
	for i, path := range paths {
		val, err := v.Get(path)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}
