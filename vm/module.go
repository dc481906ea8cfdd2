package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Module Format Constants
// ---------------------------------------------------------------------------

// ModuleMagic identifies a compiled module ("KRBY", 0x5942524B little-endian).
var ModuleMagic = [4]byte{'K', 'R', 'B', 'Y'}

// Module format version.
// 1.0: initial format; 32-bit jump targets, DATA section with globals
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

// HeaderSize is the encoded header size in bytes:
// magic(4) + major(2) + minor(2) + flags(2) + reserved(2) + sectionCount(4) +
// entryFunction(4) + checksum(4) = 24
const HeaderSize = 24

// SectionHeaderSize is the encoded section header size in bytes:
// type(1) + flags(1) + reserved(2) + offset(4) + size(4) + uncompressedSize(4) = 16
const SectionHeaderSize = 16

// Module flags
const (
	FlagNone       uint16 = 0
	FlagDebug      uint16 = 1 << 0 // debug listing requested at compile time
	FlagCompressed uint16 = 1 << 1 // reserved, never set
	FlagSigned     uint16 = 1 << 2 // reserved, never set
)

// NoEntry marks a module without an entry function.
const NoEntry = ^uint32(0)

// ---------------------------------------------------------------------------
// Module data model
// ---------------------------------------------------------------------------

// Header is the fixed-size module header.
type Header struct {
	Magic         [4]byte
	Major         uint16
	Minor         uint16
	Flags         uint16
	SectionCount  uint32
	EntryFunction uint32 // function index run by Runtime.Run, or NoEntry
	Checksum      uint32 // CRC-32 of all section payloads in table order
}

// Function describes a range of the shared code segment.
type Function struct {
	Name       string
	CodeOffset uint32
	CodeSize   uint32
	ParamCount uint8
	LocalCount uint8 // reserved, always 0
	Flags      uint16
}

// End returns the offset one past the function's last byte.
func (f Function) End() uint32 {
	return f.CodeOffset + f.CodeSize
}

// EventType is the numeric tag of a UI event.
type EventType uint16

const (
	EventClick  EventType = 0
	EventChange EventType = 1
)

// ParseEventType maps an event name to its tag. Unrecognized names map to
// EventClick.
func ParseEventType(name string) EventType {
	switch name {
	case "change":
		return EventChange
	default:
		return EventClick
	}
}

func (e EventType) String() string {
	switch e {
	case EventClick:
		return "click"
	case EventChange:
		return "change"
	default:
		return fmt.Sprintf("event(%d)", uint16(e))
	}
}

// EventBinding maps a (component, event) pair to a function.
type EventBinding struct {
	ComponentID   uint32
	Event         EventType
	FunctionIndex uint16
}

// Global is one named global slot and its value at load time.
type Global struct {
	Name    string
	Initial Value
}

// Module is a complete compiled artifact. It owns every buffer it holds;
// a Runtime borrows them.
type Module struct {
	Header    Header
	UI        []byte // opaque UI snapshot
	Code      []byte // shared code segment
	Strings   []string
	Functions []Function
	Bindings  []EventBinding
	Globals   []Global
}

// NewModule returns an empty module with a current header.
func NewModule() *Module {
	return &Module{
		Header: Header{
			Magic:         ModuleMagic,
			Major:         VersionMajor,
			Minor:         VersionMinor,
			EntryFunction: NoEntry,
		},
	}
}

// String returns the string table entry at idx.
func (m *Module) String(idx int) (string, bool) {
	if idx < 0 || idx >= len(m.Strings) {
		return "", false
	}
	return m.Strings[idx], true
}

// FunctionIndex looks up a function by name.
func (m *Module) FunctionIndex(name string) (int, bool) {
	for i, f := range m.Functions {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// FindBinding returns the first binding for (componentID, event).
func (m *Module) FindBinding(componentID uint32, event EventType) (EventBinding, bool) {
	for _, b := range m.Bindings {
		if b.ComponentID == componentID && b.Event == event {
			return b, true
		}
	}
	return EventBinding{}, false
}

// GlobalSlot looks up a global slot by name.
func (m *Module) GlobalSlot(name string) (int, bool) {
	for i, g := range m.Globals {
		if g.Name == name {
			return i, true
		}
	}
	return -1, false
}

// GlobalCount is the number of slots a runtime allocates. Modules without a
// global table get one slot past the highest LOAD_GLOBAL or STORE_GLOBAL
// operand in their code.
func (m *Module) GlobalCount() int {
	if len(m.Globals) > 0 {
		return len(m.Globals)
	}
	return m.highestGlobalSlot() + 1
}

// highestGlobalSlot scans the code for global operands; -1 when there are
// none. Scanning stops at truncated code.
func (m *Module) highestGlobalSlot() int {
	highest := -1
	r := NewBytecodeReader(m.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		if op != OpLoadGlobal && op != OpStoreGlobal {
			r.Skip(op.OperandBytes())
			continue
		}
		if slot := int(r.ReadUint16()); r.Err() == nil {
			highest = max(highest, slot)
		}
	}
	return highest
}

// FunctionCode returns the code range of function i.
func (m *Module) FunctionCode(i int) ([]byte, error) {
	if i < 0 || i >= len(m.Functions) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFunction, i)
	}
	f := m.Functions[i]
	if uint64(f.End()) > uint64(len(m.Code)) {
		return nil, fmt.Errorf("function %q: range %d+%d exceeds code size %d", f.Name, f.CodeOffset, f.CodeSize, len(m.Code))
	}
	return m.Code[f.CodeOffset:f.End()], nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ErrInvalidFunction reports a function index outside the function table.
var ErrInvalidFunction = errors.New("invalid function index")

// Validate checks the structural invariants of the module: function ranges
// lie inside the code segment, bindings name existing functions, and every
// jump target, call target and global slot in the code stream is in range.
func (m *Module) Validate() error {
	var errs []error
	for i := range m.Functions {
		if _, err := m.FunctionCode(i); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range m.Bindings {
		if int(b.FunctionIndex) >= len(m.Functions) {
			errs = append(errs, fmt.Errorf("binding #%d/%s: %w: %d", b.ComponentID, b.Event, ErrInvalidFunction, b.FunctionIndex))
		}
	}

	globals := m.GlobalCount()
	r := NewBytecodeReader(m.Code)
	for r.HasMore() {
		pos := r.Position()
		op := r.ReadOpcode()
		switch {
		case !op.Known():
			errs = append(errs, fmt.Errorf("offset %d: %w 0x%02X", pos, ErrUnknownOpcode, byte(op)))
		case op.IsJump():
			if t := r.ReadUint32(); r.Err() == nil && int64(t) >= int64(len(m.Code)) {
				errs = append(errs, fmt.Errorf("offset %d: %s target %d outside code", pos, op, t))
			}
		case op == OpCall:
			if fn := r.ReadUint16(); r.Err() == nil && int(fn) >= len(m.Functions) {
				errs = append(errs, fmt.Errorf("offset %d: CALL %w: %d", pos, ErrInvalidFunction, fn))
			}
		case op == OpLoadGlobal || op == OpStoreGlobal:
			if slot := r.ReadUint16(); r.Err() == nil && int(slot) >= globals {
				errs = append(errs, fmt.Errorf("offset %d: %s slot %d >= %d", pos, op, slot, globals))
			}
		default:
			r.Skip(op.OperandBytes())
		}
	}
	if err := r.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
