package legislation

import "fmt"

// =============================================================================
// PATCH - Copy-on-write subtree replacement for reforms
// =============================================================================

// Patch inserts or overwrites the item at Path. The parent of Path must be
// an existing Node; the last segment may be new (a reform adding a
// "plfr2014" node at the root) or existing (a reform replacing "ir.bareme").
//
// When Item is nil and Values is set, the patch only replaces the value
// ranges of the existing parameter at Path, keeping its metadata.
type Patch struct {
	Path   string
	Item   Item
	Values []ValueRange
}

// Patch returns a deep copy of n with the patches applied in order.
// n itself is never modified, so several reforms can be derived from the
// same reference tree concurrently.
func (n *Node) Patch(patches ...Patch) (*Node, error) {
	root := n.Clone()
	for _, p := range patches {
		if err := root.apply(p); err != nil {
			return nil, err
		}
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return root, nil
}

func (n *Node) apply(p Patch) error {
	segments := splitPath(p.Path)
	if len(segments) == 0 {
		return fmt.Errorf("empty path: %w", ErrPatchPathNotFound)
	}

	parent := n
	for i, seg := range segments[:len(segments)-1] {
		child, ok := parent.Children[seg]
		if !ok {
			return fmt.Errorf("%s: %s missing: %w", p.Path, joinSegments(segments[:i+1]), ErrPatchPathNotFound)
		}
		node, ok := child.(*Node)
		if !ok {
			return fmt.Errorf("%s: %s is a %s: %w", p.Path, joinSegments(segments[:i+1]), child.Kind(), ErrPatchPathNotFound)
		}
		parent = node
	}
	name := segments[len(segments)-1]

	if p.Item != nil {
		// The patch item may be shared by several reforms; own a copy.
		parent.Children[name] = p.Item.clone()
		return nil
	}

	existing, ok := parent.Children[name].(*Parameter)
	if !ok {
		return fmt.Errorf("%s: values patch needs an existing parameter: %w", p.Path, ErrPatchPathNotFound)
	}
	replaced := existing.clone().(*Parameter)
	replaced.Values = append([]ValueRange(nil), p.Values...)
	replaced.sort()
	parent.Children[name] = replaced
	return nil
}

func joinSegments(segments []string) string {
	path := ""
	for _, s := range segments {
		path = joinPath(path, s)
	}
	return path
}
