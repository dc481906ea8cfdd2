// Package ui holds the component tree a compiled module embeds and the
// vm.Host that lets bytecode mutate it.
package ui

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/kryon/vm"
)

var log = commonlog.GetLogger("kryon.ui")

var (
	ErrUnknownComponent = errors.New("unknown component")
	ErrDuplicateID      = errors.New("duplicate component id")
	ErrInvalidMove      = errors.New("invalid tree move")
)

// Component is one node of the UI tree. Text and visibility have their
// own fields; every other property lives in Props.
type Component struct {
	ID       uint32                 `cbor:"1,keyasint"`
	Type     string                 `cbor:"2,keyasint"`
	Text     string                 `cbor:"3,keyasint,omitempty"`
	Hidden   bool                   `cbor:"4,keyasint,omitempty"`
	Props    map[vm.PropertyID]Prop `cbor:"5,keyasint,omitempty"`
	Children []*Component           `cbor:"6,keyasint,omitempty"`
}

// Prop is a property value in snapshot form.
type Prop struct {
	Kind vm.Kind `cbor:"1,keyasint"`
	I    int64   `cbor:"2,keyasint,omitempty"`
	F    float32 `cbor:"3,keyasint,omitempty"`
	S    string  `cbor:"4,keyasint,omitempty"`
}

// PropOf converts a runtime value to its snapshot form.
func PropOf(v vm.Value) Prop {
	return Prop{Kind: v.Kind, I: v.I, F: v.F, S: v.S}
}

// Value converts p back to a runtime value.
func (p Prop) Value() vm.Value {
	return vm.Value{Kind: p.Kind, I: p.I, F: p.F, S: p.S}
}

// Tree indexes a component tree by id. Components removed with
// RemoveChild stay indexed, detached, and can be added back.
type Tree struct {
	root   *Component
	index  map[uint32]*Component
	parent map[uint32]uint32
}

// NewTree indexes root. A nil root gives an empty tree.
func NewTree(root *Component) (*Tree, error) {
	t := &Tree{
		root:   root,
		index:  make(map[uint32]*Component),
		parent: make(map[uint32]uint32),
	}
	if root == nil {
		return t, nil
	}
	if err := t.indexSubtree(root); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) indexSubtree(c *Component) error {
	if _, dup := t.index[c.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateID, c.ID)
	}
	t.index[c.ID] = c
	for _, child := range c.Children {
		if child == nil {
			return fmt.Errorf("component %d: nil child", c.ID)
		}
		t.parent[child.ID] = c.ID
		if err := t.indexSubtree(child); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the root component, or nil for an empty tree.
func (t *Tree) Root() *Component {
	return t.root
}

// Find returns the component with the given id, attached or not.
func (t *Tree) Find(id uint32) (*Component, bool) {
	c, ok := t.index[id]
	return c, ok
}

// Len returns the number of indexed components.
func (t *Tree) Len() int {
	return len(t.index)
}

// Parent returns the id of c's parent. ok is false for the root and for
// detached components.
func (t *Tree) Parent(id uint32) (parent uint32, ok bool) {
	parent, ok = t.parent[id]
	return parent, ok
}

func (t *Tree) lookup(id uint32) (*Component, error) {
	c, ok := t.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownComponent, id)
	}
	return c, nil
}

// isAncestor reports whether a is b or one of b's ancestors.
func (t *Tree) isAncestor(a, b uint32) bool {
	for id := b; ; {
		if id == a {
			return true
		}
		p, ok := t.parent[id]
		if !ok {
			return false
		}
		id = p
	}
}

func (t *Tree) detach(child uint32) {
	p, ok := t.parent[child]
	if !ok {
		return
	}
	pc := t.index[p]
	for i, c := range pc.Children {
		if c.ID == child {
			pc.Children = append(pc.Children[:i], pc.Children[i+1:]...)
			break
		}
	}
	delete(t.parent, child)
}
