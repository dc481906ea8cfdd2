package vm

import (
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime scalar
// ---------------------------------------------------------------------------

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

var kindNames = [...]string{"null", "bool", "int", "float", "string"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged scalar. Arithmetic, comparison and logic opcodes read
// the integer field I whatever the tag, so booleans keep I in sync (0 or 1).
// Values own no heap memory beyond the string header.
type Value struct {
	Kind Kind
	I    int64
	F    float32
	S    string
}

// Null is the null value.
var Null = Value{Kind: KindNull}

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, I: 1}
	}
	return Value{Kind: KindBool}
}

// Int returns an integer value.
func Int(i int64) Value {
	return Value{Kind: KindInt, I: i}
}

// Float returns a float value.
func Float(f float32) Value {
	return Value{Kind: KindFloat, F: f}
}

// String returns a string value.
func String(s string) Value {
	return Value{Kind: KindString, S: s}
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy is the condition used by conditional jumps.
func (v Value) Truthy() bool {
	return v.I != 0
}

// Equal reports whether two values have the same tag and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindFloat:
		return v.F == o.F
	case KindString:
		return v.S == o.S
	default:
		return v.I == o.I
	}
}

// Format renders v for listings and debug output.
func (v Value) Format() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.I != 0)
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.F), 'g', -1, 32)
	case KindString:
		return strconv.Quote(v.S)
	default:
		return v.Kind.String()
	}
}

// Text is the display form used by SET_TEXT, STR_CONCAT and print: strings
// unquoted, everything else as Format renders it.
func (v Value) Text() string {
	if v.Kind == KindString {
		return v.S
	}
	return v.Format()
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.Format()
}
