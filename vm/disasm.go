package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position and advances the reader. Offsets are printed relative to base;
// strs resolves PUSH_STR and CALL_NATIVE operands and may be nil.
func DisassembleInstruction(r *BytecodeReader, base int, strs []string) string {
	pos := r.Position() - base
	op := r.ReadOpcode()
	name := op.Name()

	var line string
	switch op.OperandBytes() {
	case 0:
		line = fmt.Sprintf("%04d  %s", pos, name)

	case 1:
		if op == OpPushInt8 {
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt8())
		} else {
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadUint8())
		}

	case 2:
		switch op {
		case OpPushInt16:
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt16())
		case OpPushStr:
			idx := r.ReadUint16()
			line = fmt.Sprintf("%04d  %s %d%s", pos, name, idx, quoteString(strs, idx))
		case OpSetProp, OpGetProp:
			line = fmt.Sprintf("%04d  %s %s", pos, name, PropertyID(r.ReadUint16()))
		default:
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadUint16())
		}

	case 3: // CALL_NATIVE
		idx := r.ReadUint16()
		argc := r.ReadUint8()
		line = fmt.Sprintf("%04d  %s %d argc=%d%s", pos, name, idx, argc, quoteString(strs, idx))

	case 4:
		switch {
		case op.IsJump():
			target := int(r.ReadUint32())
			line = fmt.Sprintf("%04d  %s %d (-> %04d)", pos, name, target, target-base)
		case op == OpPushInt32:
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt32())
		case op == OpPushFloat:
			line = fmt.Sprintf("%04d  %s %g", pos, name, r.ReadFloat32())
		default:
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadUint32())
		}

	case 8:
		if op == OpPushDouble {
			line = fmt.Sprintf("%04d  %s %g", pos, name, r.ReadFloat64())
		} else {
			line = fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt64())
		}
	}

	if r.Err() != nil {
		line = fmt.Sprintf("%04d  %s <truncated>", pos, name)
	}
	return line
}

func quoteString(strs []string, idx uint16) string {
	if int(idx) < len(strs) {
		return fmt.Sprintf(" ; %q", strs[idx])
	}
	return ""
}

// Disassemble returns a listing of bc with offsets from 0.
func Disassemble(bc []byte) string {
	return disassemble(bc, 0, len(bc), nil)
}

// disassemble lists code[start:end], printing offsets and jump targets
// relative to start.
func disassemble(code []byte, start, end int, strs []string) string {
	r := NewBytecodeReader(code[:end])
	r.Seek(start)
	var sb strings.Builder
	for r.HasMore() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(r, start, strs))
		if r.Err() != nil {
			break
		}
	}
	return sb.String()
}

// DisassembleFunction lists function i with offsets relative to its start.
func (m *Module) DisassembleFunction(i int) (string, error) {
	if _, err := m.FunctionCode(i); err != nil {
		return "", err
	}
	f := m.Functions[i]
	return disassemble(m.Code, int(f.CodeOffset), int(f.End()), m.Strings), nil
}

// Disassemble lists the whole module: a header block, then every function
// in table order. Code not covered by any function is listed last with
// absolute offsets.
func (m *Module) Disassemble() string {
	var sb strings.Builder
	h := m.Header
	fmt.Fprintf(&sb, "; module %s %d.%d flags=0x%04X\n", h.Magic[:], h.Major, h.Minor, h.Flags)
	fmt.Fprintf(&sb, "; code %d bytes, %d functions, %d strings, %d bindings, %d globals\n",
		len(m.Code), len(m.Functions), len(m.Strings), len(m.Bindings), len(m.Globals))
	if h.EntryFunction != NoEntry {
		fmt.Fprintf(&sb, "; entry %d\n", h.EntryFunction)
	}

	covered := 0
	for i, f := range m.Functions {
		fmt.Fprintf(&sb, "\n; function %d %s (offset %d, size %d, params %d)\n", i, f.Name, f.CodeOffset, f.CodeSize, f.ParamCount)
		listing, err := m.DisassembleFunction(i)
		if err != nil {
			fmt.Fprintf(&sb, "; %s\n", err)
			continue
		}
		if listing != "" {
			sb.WriteString(listing)
			sb.WriteByte('\n')
		}
		covered = max(covered, int(f.End()))
	}

	if len(m.Functions) == 0 && len(m.Code) > 0 {
		sb.WriteString("\n")
		sb.WriteString(disassemble(m.Code, 0, len(m.Code), m.Strings))
		sb.WriteByte('\n')
	} else if covered < len(m.Code) {
		fmt.Fprintf(&sb, "\n; unowned code at %d\n", covered)
		r := NewBytecodeReader(m.Code)
		r.Seek(covered)
		for r.HasMore() {
			sb.WriteString(DisassembleInstruction(r, 0, m.Strings))
			sb.WriteByte('\n')
			if r.Err() != nil {
				break
			}
		}
	}
	return sb.String()
}
