package vm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// NativeFunc implements a function reached through CALL_NATIVE. args holds
// the popped arguments in call order.
type NativeFunc func(rt *Runtime, args []Value) (Value, error)

// Natives is a name-keyed registry of native functions.
type Natives struct {
	funcs map[string]NativeFunc
}

// NewNatives returns an empty registry.
func NewNatives() *Natives {
	return &Natives{funcs: make(map[string]NativeFunc)}
}

// Register adds or replaces a native.
func (n *Natives) Register(name string, fn NativeFunc) {
	n.funcs[name] = fn
}

// Lookup finds a native by name.
func (n *Natives) Lookup(name string) (NativeFunc, bool) {
	fn, ok := n.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (n *Natives) Names() []string {
	names := make([]string, 0, len(n.funcs))
	for name := range n.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var errNoArguments = errors.New("no arguments")

// DefaultNatives returns a registry with print, abs, min, max and len.
func DefaultNatives() *Natives {
	n := NewNatives()

	n.Register("print", func(rt *Runtime, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Text()
		}
		_, err := fmt.Fprintln(rt.Output(), strings.Join(parts, " "))
		return Null, err
	})

	n.Register("abs", func(_ *Runtime, args []Value) (Value, error) {
		if len(args) == 0 {
			return Null, fmt.Errorf("abs: %w", errNoArguments)
		}
		v := args[0].I
		if v < 0 {
			v = -v
		}
		return Int(v), nil
	})

	n.Register("min", func(_ *Runtime, args []Value) (Value, error) {
		if len(args) == 0 {
			return Null, fmt.Errorf("min: %w", errNoArguments)
		}
		m := args[0].I
		for _, a := range args[1:] {
			m = min(m, a.I)
		}
		return Int(m), nil
	})

	n.Register("max", func(_ *Runtime, args []Value) (Value, error) {
		if len(args) == 0 {
			return Null, fmt.Errorf("max: %w", errNoArguments)
		}
		m := args[0].I
		for _, a := range args[1:] {
			m = max(m, a.I)
		}
		return Int(m), nil
	})

	n.Register("len", func(_ *Runtime, args []Value) (Value, error) {
		if len(args) == 0 {
			return Null, fmt.Errorf("len: %w", errNoArguments)
		}
		if args[0].Kind != KindString {
			return Int(0), nil
		}
		return Int(int64(utf8.RuneCountInString(args[0].S))), nil
	})

	return n
}
