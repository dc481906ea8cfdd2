package compiler

import "math"

// StringTable interns literal and identifier strings. Indices are assigned
// in first-use order and never change.
type StringTable struct {
	strings []string
	index   map[string]int
}

// NewStringTable creates an empty string table.
func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]int)}
}

// Intern returns the index of s, adding it if absent. ok is false once the
// table no longer fits a 16-bit operand.
func (t *StringTable) Intern(s string) (idx uint16, ok bool) {
	if i, found := t.index[s]; found {
		return uint16(i), true
	}
	if len(t.strings) > math.MaxUint16 {
		return 0, false
	}
	i := len(t.strings)
	t.strings = append(t.strings, s)
	t.index[s] = i
	return uint16(i), true
}

// Lookup returns the index of s without adding it.
func (t *StringTable) Lookup(s string) (uint16, bool) {
	i, ok := t.index[s]
	return uint16(i), ok
}

// Len returns the number of interned strings.
func (t *StringTable) Len() int {
	return len(t.strings)
}

// Strings returns the table contents in index order.
func (t *StringTable) Strings() []string {
	out := make([]string, len(t.strings))
	copy(out, t.strings)
	return out
}
