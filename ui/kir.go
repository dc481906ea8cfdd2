package ui

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/chazu/kryon/vm"
)

// kirProperties maps KIR component fields to property ids.
var kirProperties = map[string]vm.PropertyID{
	"enabled":         vm.PropEnabled,
	"width":           vm.PropWidth,
	"height":          vm.PropHeight,
	"x":               vm.PropX,
	"y":               vm.PropY,
	"background":      vm.PropBgColor,
	"backgroundColor": vm.PropBgColor,
	"color":           vm.PropFgColor,
	"borderColor":     vm.PropBorderColor,
	"borderWidth":     vm.PropBorderWidth,
	"borderRadius":    vm.PropBorderRadius,
	"fontSize":        vm.PropFontSize,
	"fontWeight":      vm.PropFontWeight,
	"opacity":         vm.PropOpacity,
	"padding":         vm.PropPadding,
	"margin":          vm.PropMargin,
	"gap":             vm.PropGap,
}

// ParseKIRRoot builds a tree from the "root" object of a KIR document.
// Empty input or JSON null gives an empty tree. Fields without a property
// id, and property values that are not scalars, are ignored.
func ParseKIRRoot(data []byte) (*Tree, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return NewTree(nil)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ui: decode root: %w", err)
	}

	root, err := componentFromKIR(raw, "root")
	if err != nil {
		return nil, err
	}
	return NewTree(root)
}

func componentFromKIR(obj map[string]interface{}, path string) (*Component, error) {
	num, ok := obj["id"].(json.Number)
	if !ok {
		return nil, fmt.Errorf("ui: %s: missing numeric id", path)
	}
	id, err := num.Int64()
	if err != nil || id < 0 || id > 0xFFFFFFFF {
		return nil, fmt.Errorf("ui: %s: bad id %s", path, num)
	}

	c := &Component{ID: uint32(id)}
	c.Type, _ = obj["type"].(string)
	if text, ok := obj["text"]; ok {
		if v, ok := scalarValue(text); ok {
			c.Text = v.Text()
		}
	}
	if visible, ok := obj["visible"].(bool); ok {
		c.Hidden = !visible
	}

	for key, raw := range obj {
		prop, ok := kirProperties[key]
		if !ok {
			continue
		}
		v, ok := scalarValue(raw)
		if !ok {
			log.Debugf("%s: skipping non-scalar %s", path, key)
			continue
		}
		if c.Props == nil {
			c.Props = make(map[vm.PropertyID]Prop)
		}
		c.Props[prop] = PropOf(v)
	}

	children, _ := obj["children"].([]interface{})
	for i, raw := range children {
		child, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("ui: %s.children[%d]: not an object", path, i)
		}
		cc, err := componentFromKIR(child, fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return nil, err
		}
		c.Children = append(c.Children, cc)
	}
	return c, nil
}

func scalarValue(raw interface{}) (vm.Value, bool) {
	switch v := raw.(type) {
	case nil:
		return vm.Null, true
	case bool:
		return vm.Bool(v), true
	case string:
		return vm.String(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return vm.Int(i), true
		}
		if f, err := v.Float64(); err == nil {
			return vm.Float(float32(f)), true
		}
	}
	return vm.Value{}, false
}
