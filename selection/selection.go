// Package selection converts GraphQL field ASTs into the flattened
// field trees the loader plans projections from.
package selection

// Tree describes which fields a caller wants populated at one level of
// an entity. A nil *Tree means "no projection constraint": select every
// scalar column and recurse into every relation.
type Tree struct {
	Children map[string]*Node
}

// Node is a single requested field: its literal arguments and, for
// relation fields, the nested selection.
type Node struct {
	Arguments map[string]any
	Children  *Tree
}

// NewTree returns an empty, non-nil tree (a projection that requests
// nothing, as opposed to the nil "select everything" sentinel).
func NewTree() *Tree {
	return &Tree{Children: make(map[string]*Node)}
}

// Field returns the node for a requested field name.
func (t *Tree) Field(name string) (*Node, bool) {
	if t == nil {
		return nil, false
	}
	node, ok := t.Children[name]
	return node, ok
}

// Has reports whether the field name was requested.
func (t *Tree) Has(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// Len returns the number of requested fields at this level.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Children)
}

// merge unions another tree into this one. Children present on both
// sides are merged recursively, never overwritten; arguments from the
// first occurrence win.
func (t *Tree) merge(other *Tree) {
	if other == nil {
		return
	}
	for name, node := range other.Children {
		existing, ok := t.Children[name]
		if !ok {
			t.Children[name] = node
			continue
		}
		if existing.Children == nil {
			existing.Children = node.Children
			continue
		}
		existing.Children.merge(node.Children)
	}
}

// add records a requested field, merging child selections when the
// name is already present (normal when fragments overlap).
func (t *Tree) add(name string, node *Node) {
	existing, ok := t.Children[name]
	if !ok {
		t.Children[name] = node
		return
	}
	if len(node.Arguments) > 0 && len(existing.Arguments) == 0 {
		existing.Arguments = node.Arguments
	}
	if node.Children != nil {
		if existing.Children == nil {
			existing.Children = node.Children
		} else {
			existing.Children.merge(node.Children)
		}
	}
}
