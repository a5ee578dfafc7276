/*
Package legislation provides the parameter store of the engine.

PURPOSE:
  Law changes over time. Every legislative constant (a rate, a ceiling, an
  age limit) is stored as a step function of the date, and progressive
  schedules (income tax brackets) as ordered lists of such step functions.
  Formulas read the tree through a View bound to an instant.

KEY CONCEPTS:
  - Node:       a named group of children (parameters, scales, nodes)
  - Parameter:  ordered value ranges [Start, Stop] -> Value, inclusive
  - Scale:      ordered brackets, each a threshold and a rate parameter
  - View:       the tree resolved at one instant (legislation_at)
  - Patch:      copy-on-write replacement of a subtree, used by reforms

TREE SHAPE:
  root
  ├── fam (Node)
  │   ├── af.bmaf (Parameter)   [2014-01-01, 2014-03-31] -> 403.79
  │   └── cf.tx   (Parameter)   [2014-01-01, 2014-12-31] -> 0.4165
  └── ir (Node)
      └── bareme  (Scale)       tranche0 (0, 0%), tranche1 (6011, 5.5%), ...

IMMUTABILITY:
  A tree is built once (by Load or by hand) and then only read. Reforms never
  mutate a tree; Patch returns a modified deep copy, so a reference system and
  any number of reforms can be evaluated concurrently without locks.

LOOKUP CONVENTION:
  Formulas query parameters at period.Start. Law is assumed constant over
  the period a formula is evaluated for; nothing enforces it.

SEE ALSO:
  - resolve.go: path lookup and instant resolution
  - scale.go:   bracket computation
  - patch.go:   copy-on-write patching
  - loader.go:  JSON / YAML loading
*/
package legislation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// ITEM - Anything that can live in the tree
// =============================================================================

// Item is a *Node, a *Parameter or a *Scale.
type Item interface {
	// Kind returns "Node", "Parameter" or "Scale", the @type of the JSON form.
	Kind() string

	// clone returns a deep copy sharing nothing with the receiver.
	clone() Item
}

// =============================================================================
// NODE
// =============================================================================

// Node groups children by name.
type Node struct {
	Description string
	Children    map[string]Item
}

// NewNode returns an empty node.
func NewNode(description string) *Node {
	return &Node{Description: description, Children: make(map[string]Item)}
}

func (n *Node) Kind() string { return "Node" }

// Set adds or replaces a direct child. Use it only while building a tree,
// before it is shared.
func (n *Node) Set(name string, item Item) *Node {
	if n.Children == nil {
		n.Children = make(map[string]Item)
	}
	n.Children[name] = item
	return n
}

// Names returns the child names in lexical order.
func (n *Node) Names() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node { return n.clone().(*Node) }

func (n *Node) clone() Item {
	c := &Node{Description: n.Description, Children: make(map[string]Item, len(n.Children))}
	for name, child := range n.Children {
		c.Children[name] = child.clone()
	}
	return c
}

// Walk visits every item below n, depth first, children in lexical order.
// Paths are dotted and relative to n.
func (n *Node) Walk(fn func(path string, item Item) error) error {
	return n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, Item) error) error {
	for _, name := range n.Names() {
		child := n.Children[name]
		path := joinPath(prefix, name)
		if err := fn(path, child); err != nil {
			return err
		}
		if sub, ok := child.(*Node); ok {
			if err := sub.walk(path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Paths returns the dotted paths of every parameter and scale below n.
func (n *Node) Paths() []string {
	var paths []string
	_ = n.Walk(func(path string, item Item) error {
		if _, ok := item.(*Node); !ok {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}

// =============================================================================
// PARAMETER - A date-ranged step function
// =============================================================================

// ValueRange is one step of a parameter. Both bounds are inclusive.
type ValueRange struct {
	Start periods.Instant
	Stop  periods.Instant
	Value decimal.Decimal
}

func (r ValueRange) Contains(at periods.Instant) bool {
	return at.AfterOrEqual(r.Start) && at.BeforeOrEqual(r.Stop)
}

// Parameter is a leaf of the tree. Values are kept sorted by Start; gaps
// between ranges are allowed and resolving inside a gap fails rather than
// extrapolating the previous value.
type Parameter struct {
	Description string
	Unit        string // "currency", "year", ... informational
	Format      string // "rate", "integer", "boolean", ... informational
	Values      []ValueRange
}

// NewParameter builds a parameter from its ranges, sorted by Start.
func NewParameter(description string, values ...ValueRange) *Parameter {
	p := &Parameter{Description: description, Values: append([]ValueRange(nil), values...)}
	p.sort()
	return p
}

func (p *Parameter) Kind() string { return "Parameter" }

func (p *Parameter) clone() Item {
	c := *p
	c.Values = append([]ValueRange(nil), p.Values...)
	return &c
}

// ValueAt returns the value whose range contains at.
func (p *Parameter) ValueAt(at periods.Instant) (decimal.Decimal, bool) {
	// Ranges are sorted and non-overlapping: the candidate is the last range
	// starting on or before at.
	i := sort.Search(len(p.Values), func(i int) bool { return p.Values[i].Start.After(at) })
	if i == 0 {
		return decimal.Zero, false
	}
	if r := p.Values[i-1]; r.Contains(at) {
		return r.Value, true
	}
	return decimal.Zero, false
}

func (p *Parameter) sort() {
	sort.SliceStable(p.Values, func(i, j int) bool { return p.Values[i].Start.Before(p.Values[j].Start) })
}

// validate checks Start <= Stop and that ranges do not overlap.
func (p *Parameter) validate(path string) error {
	for i, r := range p.Values {
		if r.Stop.Before(r.Start) {
			return &RangeError{Path: path, Range: r, Err: ErrInvertedRange}
		}
		if i > 0 && !p.Values[i-1].Stop.Before(r.Start) {
			return &RangeError{Path: path, Range: r, Err: ErrOverlappingRanges}
		}
	}
	return nil
}

// =============================================================================
// SCALE - Progressive bracket schedule
// =============================================================================

// Bracket is one tranche of a scale.
type Bracket struct {
	Threshold *Parameter
	Rate      *Parameter
}

// Scale is an ordered list of brackets. At every instant the resolved
// thresholds must be non-decreasing.
type Scale struct {
	Description string
	Unit        string
	Brackets    []Bracket
}

func (s *Scale) Kind() string { return "Scale" }

func (s *Scale) clone() Item {
	c := &Scale{Description: s.Description, Unit: s.Unit, Brackets: make([]Bracket, len(s.Brackets))}
	for i, b := range s.Brackets {
		c.Brackets[i] = Bracket{
			Threshold: b.Threshold.clone().(*Parameter),
			Rate:      b.Rate.clone().(*Parameter),
		}
	}
	return c
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks every leaf of the tree for inverted or overlapping ranges.
func (n *Node) Validate() error {
	return n.Walk(func(path string, item Item) error {
		switch it := item.(type) {
		case *Parameter:
			return it.validate(path)
		case *Scale:
			for i, b := range it.Brackets {
				if b.Threshold == nil || b.Rate == nil {
					return fmt.Errorf("%s: bracket %d: %w", path, i, ErrIncompleteBracket)
				}
				if err := b.Threshold.validate(fmt.Sprintf("%s[%d].threshold", path, i)); err != nil {
					return err
				}
				if err := b.Rate.validate(fmt.Sprintf("%s[%d].rate", path, i)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
