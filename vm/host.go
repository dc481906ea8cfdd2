package vm

import "fmt"

// PropertyID names a component property addressed by SET_PROP and GET_PROP.
type PropertyID uint16

const (
	PropText         PropertyID = 0x01
	PropVisible      PropertyID = 0x02
	PropEnabled      PropertyID = 0x03
	PropWidth        PropertyID = 0x10
	PropHeight       PropertyID = 0x11
	PropX            PropertyID = 0x12
	PropY            PropertyID = 0x13
	PropBgColor      PropertyID = 0x20
	PropFgColor      PropertyID = 0x21
	PropBorderColor  PropertyID = 0x22
	PropBorderWidth  PropertyID = 0x23
	PropBorderRadius PropertyID = 0x24
	PropFontSize     PropertyID = 0x30
	PropFontWeight   PropertyID = 0x31
	PropOpacity      PropertyID = 0x40
	PropPadding      PropertyID = 0x50
	PropMargin       PropertyID = 0x51
	PropGap          PropertyID = 0x52
)

var propertyNames = map[PropertyID]string{
	PropText:         "text",
	PropVisible:      "visible",
	PropEnabled:      "enabled",
	PropWidth:        "width",
	PropHeight:       "height",
	PropX:            "x",
	PropY:            "y",
	PropBgColor:      "bg_color",
	PropFgColor:      "fg_color",
	PropBorderColor:  "border_color",
	PropBorderWidth:  "border_width",
	PropBorderRadius: "border_radius",
	PropFontSize:     "font_size",
	PropFontWeight:   "font_weight",
	PropOpacity:      "opacity",
	PropPadding:      "padding",
	PropMargin:       "margin",
	PropGap:          "gap",
}

func (p PropertyID) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("prop(0x%02X)", uint16(p))
}

// ParsePropertyID maps a property name to its id.
func ParsePropertyID(name string) (PropertyID, bool) {
	for id, n := range propertyNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// Host is the live UI the UI opcodes act on. Component ids are the ones
// stored in the UI snapshot and in event bindings.
//
// Errors returned by a Host are logged by the runtime and do not stop
// execution.
type Host interface {
	SetText(component uint32, text string) error
	SetVisible(component uint32, visible bool) error
	SetProperty(component uint32, prop PropertyID, v Value) error
	Property(component uint32, prop PropertyID) (Value, error)
	AddChild(parent, child uint32) error
	RemoveChild(parent, child uint32) error
}

// nopHost discards every UI operation. Property reads return null.
type nopHost struct{}

func (nopHost) SetText(uint32, string) error                { return nil }
func (nopHost) SetVisible(uint32, bool) error               { return nil }
func (nopHost) SetProperty(uint32, PropertyID, Value) error { return nil }
func (nopHost) Property(uint32, PropertyID) (Value, error)  { return Null, nil }
func (nopHost) AddChild(uint32, uint32) error               { return nil }
func (nopHost) RemoveChild(uint32, uint32) error            { return nil }
