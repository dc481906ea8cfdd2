package vm

import "fmt"

// ---------------------------------------------------------------------------
// Section table
// ---------------------------------------------------------------------------

// SectionType tags a section of the module container.
type SectionType uint8

const (
	SectionUI      SectionType = 0x01
	SectionCode    SectionType = 0x02
	SectionData    SectionType = 0x03 // global symbol table with initial values
	SectionMeta    SectionType = 0x04 // reserved
	SectionStrings SectionType = 0x05
	SectionFuncs   SectionType = 0x06
	SectionEvents  SectionType = 0x07
)

func (t SectionType) String() string {
	switch t {
	case SectionUI:
		return "UI"
	case SectionCode:
		return "CODE"
	case SectionData:
		return "DATA"
	case SectionMeta:
		return "META"
	case SectionStrings:
		return "STRINGS"
	case SectionFuncs:
		return "FUNCS"
	case SectionEvents:
		return "EVENTS"
	default:
		return fmt.Sprintf("SECTION_%02X", uint8(t))
	}
}

// SectionHeader locates one section payload in the file.
type SectionHeader struct {
	Type             SectionType
	Flags            uint8
	Reserved         uint16
	Offset           uint32 // absolute file offset of the payload
	Size             uint32
	UncompressedSize uint32 // always equal to Size
}

// sectionCodec describes how one section type is encoded and decoded.
// Optional sections are omitted when empty reports true.
type sectionCodec struct {
	typ    SectionType
	empty  func(m *Module) bool
	encode func(m *Module, w *payloadWriter)
	decode func(m *Module, r *payloadReader)
}

// sectionTable lists every known section in write order. Both ModuleWriter
// and ModuleReader are driven by it.
var sectionTable = []sectionCodec{
	{
		typ: SectionUI,
		encode: func(m *Module, w *payloadWriter) {
			w.buf.Write(m.UI)
		},
		decode: func(m *Module, r *payloadReader) {
			m.UI = append([]byte(nil), r.data...)
		},
	},
	{
		typ: SectionCode,
		encode: func(m *Module, w *payloadWriter) {
			w.buf.Write(m.Code)
		},
		decode: func(m *Module, r *payloadReader) {
			m.Code = append([]byte(nil), r.data...)
		},
	},
	{
		typ: SectionStrings,
		encode: func(m *Module, w *payloadWriter) {
			w.u32(uint32(len(m.Strings)))
			for _, s := range m.Strings {
				w.str(s)
			}
		},
		decode: func(m *Module, r *payloadReader) {
			n := r.count(4)
			m.Strings = make([]string, 0, n)
			for i := 0; i < n && r.err == nil; i++ {
				m.Strings = append(m.Strings, r.str())
			}
		},
	},
	{
		typ:   SectionFuncs,
		empty: func(m *Module) bool { return len(m.Functions) == 0 },
		encode: func(m *Module, w *payloadWriter) {
			w.u32(uint32(len(m.Functions)))
			for _, f := range m.Functions {
				w.str(f.Name)
				w.u32(f.CodeOffset)
				w.u32(f.CodeSize)
				w.u8(f.ParamCount)
				w.u8(f.LocalCount)
				w.u16(f.Flags)
			}
		},
		decode: func(m *Module, r *payloadReader) {
			n := r.count(16)
			m.Functions = make([]Function, 0, n)
			for i := 0; i < n && r.err == nil; i++ {
				m.Functions = append(m.Functions, Function{
					Name:       r.str(),
					CodeOffset: r.u32(),
					CodeSize:   r.u32(),
					ParamCount: r.u8(),
					LocalCount: r.u8(),
					Flags:      r.u16(),
				})
			}
		},
	},
	{
		typ:   SectionEvents,
		empty: func(m *Module) bool { return len(m.Bindings) == 0 },
		encode: func(m *Module, w *payloadWriter) {
			w.u32(uint32(len(m.Bindings)))
			for _, b := range m.Bindings {
				w.u32(b.ComponentID)
				w.u16(uint16(b.Event))
				w.u16(b.FunctionIndex)
			}
		},
		decode: func(m *Module, r *payloadReader) {
			n := r.count(8)
			m.Bindings = make([]EventBinding, 0, n)
			for i := 0; i < n && r.err == nil; i++ {
				m.Bindings = append(m.Bindings, EventBinding{
					ComponentID:   r.u32(),
					Event:         EventType(r.u16()),
					FunctionIndex: r.u16(),
				})
			}
		},
	},
	{
		typ:   SectionData,
		empty: func(m *Module) bool { return len(m.Globals) == 0 },
		encode: func(m *Module, w *payloadWriter) {
			w.u32(uint32(len(m.Globals)))
			for _, g := range m.Globals {
				w.str(g.Name)
				w.value(g.Initial)
			}
		},
		decode: func(m *Module, r *payloadReader) {
			n := r.count(5)
			m.Globals = make([]Global, 0, n)
			for i := 0; i < n && r.err == nil; i++ {
				m.Globals = append(m.Globals, Global{Name: r.str(), Initial: r.value()})
			}
		},
	},
}

// codecFor returns the codec for a section type.
func codecFor(t SectionType) (sectionCodec, bool) {
	for _, c := range sectionTable {
		if c.typ == t {
			return c, true
		}
	}
	return sectionCodec{}, false
}
