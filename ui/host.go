package ui

import (
	"fmt"

	"github.com/chazu/kryon/vm"
)

var _ vm.Host = (*Tree)(nil)

// SetText replaces the text of component id.
func (t *Tree) SetText(id uint32, text string) error {
	c, err := t.lookup(id)
	if err != nil {
		return err
	}
	log.Debugf("component %d: text %q", id, text)
	c.Text = text
	return nil
}

// SetVisible shows or hides component id.
func (t *Tree) SetVisible(id uint32, visible bool) error {
	c, err := t.lookup(id)
	if err != nil {
		return err
	}
	c.Hidden = !visible
	return nil
}

// SetProperty stores v. PropText and PropVisible write the dedicated
// fields.
func (t *Tree) SetProperty(id uint32, prop vm.PropertyID, v vm.Value) error {
	c, err := t.lookup(id)
	if err != nil {
		return err
	}
	switch prop {
	case vm.PropText:
		c.Text = v.Text()
	case vm.PropVisible:
		c.Hidden = !v.Truthy()
	default:
		if c.Props == nil {
			c.Props = make(map[vm.PropertyID]Prop)
		}
		c.Props[prop] = PropOf(v)
	}
	log.Debugf("component %d: %s = %s", id, prop, v)
	return nil
}

// Property reads a property. Unset properties read as null.
func (t *Tree) Property(id uint32, prop vm.PropertyID) (vm.Value, error) {
	c, err := t.lookup(id)
	if err != nil {
		return vm.Null, err
	}
	switch prop {
	case vm.PropText:
		return vm.String(c.Text), nil
	case vm.PropVisible:
		return vm.Bool(!c.Hidden), nil
	}
	if p, ok := c.Props[prop]; ok {
		return p.Value(), nil
	}
	return vm.Null, nil
}

// AddChild appends child to parent, first detaching it from any current
// parent. Moving a component under itself or one of its descendants, or
// moving the root, is rejected.
func (t *Tree) AddChild(parent, child uint32) error {
	pc, err := t.lookup(parent)
	if err != nil {
		return err
	}
	cc, err := t.lookup(child)
	if err != nil {
		return err
	}
	if cc == t.root || t.isAncestor(child, parent) {
		return fmt.Errorf("%w: %d under %d", ErrInvalidMove, child, parent)
	}
	t.detach(child)
	pc.Children = append(pc.Children, cc)
	t.parent[child] = parent
	return nil
}

// RemoveChild detaches child from parent. The child stays indexed.
func (t *Tree) RemoveChild(parent, child uint32) error {
	if _, err := t.lookup(parent); err != nil {
		return err
	}
	if _, err := t.lookup(child); err != nil {
		return err
	}
	if p, ok := t.parent[child]; !ok || p != parent {
		return fmt.Errorf("%w: %d is not a child of %d", ErrInvalidMove, child, parent)
	}
	t.detach(child)
	return nil
}
