package compiler

import (
	"math"

	"github.com/chazu/kryon/vm"
)

// GlobalTable maps variable names to 16-bit global slots. Declared
// variables take the first slots in declaration order; names first seen in
// code are appended after them with a zero initial value.
type GlobalTable struct {
	globals []vm.Global
	slots   map[string]int
}

// NewGlobalTable creates an empty global table.
func NewGlobalTable() *GlobalTable {
	return &GlobalTable{slots: make(map[string]int)}
}

// Declare assigns a slot to name with the given initial value. Redeclaring
// a name overwrites its initial value and keeps the slot.
func (t *GlobalTable) Declare(name string, initial vm.Value) (uint16, bool) {
	if i, ok := t.slots[name]; ok {
		t.globals[i].Initial = initial
		return uint16(i), true
	}
	return t.add(name, initial)
}

// Slot returns the slot for name, allocating one on first use.
func (t *GlobalTable) Slot(name string) (uint16, bool) {
	if i, ok := t.slots[name]; ok {
		return uint16(i), true
	}
	return t.add(name, vm.Int(0))
}

func (t *GlobalTable) add(name string, initial vm.Value) (uint16, bool) {
	if len(t.globals) > math.MaxUint16 {
		return 0, false
	}
	i := len(t.globals)
	t.globals = append(t.globals, vm.Global{Name: name, Initial: initial})
	t.slots[name] = i
	return uint16(i), true
}

// Len returns the number of allocated slots.
func (t *GlobalTable) Len() int {
	return len(t.globals)
}

// Globals returns the slot table in slot order.
func (t *GlobalTable) Globals() []vm.Global {
	out := make([]vm.Global, len(t.globals))
	copy(out, t.globals)
	return out
}
