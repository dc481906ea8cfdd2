package vm

import (
	"fmt"
	"io"
)

// infoStringLimit caps the string table entries WriteInfo prints.
const infoStringLimit = 20

// WriteInfo prints a summary of m: header, section sizes, the first strings,
// functions, bindings and globals.
func WriteInfo(w io.Writer, m *Module) error {
	h := m.Header
	p := &infoPrinter{w: w}

	p.printf("Module: %s v%d.%d\n", h.Magic[:], h.Major, h.Minor)
	p.printf("  Flags:     0x%04X\n", h.Flags)
	p.printf("  Sections:  %d\n", h.SectionCount)
	p.printf("  Checksum:  %08X\n", h.Checksum)
	if h.EntryFunction == NoEntry {
		p.printf("  Entry:     none\n")
	} else {
		p.printf("  Entry:     %d\n", h.EntryFunction)
	}
	p.printf("  UI size:   %d bytes\n", len(m.UI))
	p.printf("  Code size: %d bytes\n", len(m.Code))

	p.printf("\nStrings (%d):\n", len(m.Strings))
	for i, s := range m.Strings {
		if i == infoStringLimit {
			p.printf("  ... %d more\n", len(m.Strings)-infoStringLimit)
			break
		}
		p.printf("  [%d] %q\n", i, s)
	}

	p.printf("\nFunctions (%d):\n", len(m.Functions))
	for i, f := range m.Functions {
		p.printf("  [%d] %s: offset=%d size=%d params=%d\n", i, f.Name, f.CodeOffset, f.CodeSize, f.ParamCount)
	}

	p.printf("\nEvent bindings (%d):\n", len(m.Bindings))
	for _, b := range m.Bindings {
		name := "?"
		if int(b.FunctionIndex) < len(m.Functions) {
			name = m.Functions[b.FunctionIndex].Name
		}
		p.printf("  component %d %s -> [%d] %s\n", b.ComponentID, b.Event, b.FunctionIndex, name)
	}

	p.printf("\nGlobals (%d):\n", len(m.Globals))
	for i, g := range m.Globals {
		p.printf("  [%d] %s = %s\n", i, g.Name, g.Initial.Format())
	}
	return p.err
}

type infoPrinter struct {
	w   io.Writer
	err error
}

func (p *infoPrinter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
