package vm

import (
	"bytes"
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// ModuleWriter: Serializes a module to the binary container
// ---------------------------------------------------------------------------

// ModuleWriter lays out and encodes a module. Layout happens in two passes:
// the first encodes every present section and assigns absolute offsets, the
// second writes the header, the section table and the payloads in order.
type ModuleWriter struct {
	module *Module
	buf    *bytes.Buffer

	headers  []SectionHeader
	payloads [][]byte
	checksum uint32
	written  bool
}

// NewModuleWriter creates a writer for m.
func NewModuleWriter(m *Module) *ModuleWriter {
	return &ModuleWriter{
		module: m,
		buf:    bytes.NewBuffer(nil),
	}
}

// ---------------------------------------------------------------------------
// Pass 1: layout
// ---------------------------------------------------------------------------

func (w *ModuleWriter) layout() {
	w.headers = w.headers[:0]
	w.payloads = w.payloads[:0]

	for _, codec := range sectionTable {
		if codec.empty != nil && codec.empty(w.module) {
			continue
		}
		pw := &payloadWriter{}
		codec.encode(w.module, pw)
		w.payloads = append(w.payloads, pw.bytes())
		w.headers = append(w.headers, SectionHeader{Type: codec.typ})
	}

	offset := uint32(HeaderSize + SectionHeaderSize*len(w.headers))
	for i := range w.headers {
		size := uint32(len(w.payloads[i]))
		w.headers[i].Offset = offset
		w.headers[i].Size = size
		w.headers[i].UncompressedSize = size
		offset += size
	}

	w.checksum = Checksum(w.payloads...)
}

// ---------------------------------------------------------------------------
// Pass 2: emission
// ---------------------------------------------------------------------------

// writeHeader writes the module header.
func (w *ModuleWriter) writeHeader() {
	h := w.module.Header
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], ModuleMagic[:])
	WriteUint16(buf[4:], VersionMajor)
	WriteUint16(buf[6:], VersionMinor)
	WriteUint16(buf[8:], h.Flags)
	// buf[10:12] reserved
	WriteUint32(buf[12:], uint32(len(w.headers)))
	WriteUint32(buf[16:], h.EntryFunction)
	WriteUint32(buf[20:], w.checksum)
	w.buf.Write(buf)
}

// writeSectionTable writes one header per present section.
func (w *ModuleWriter) writeSectionTable() {
	buf := make([]byte, SectionHeaderSize)
	for _, sh := range w.headers {
		clear(buf)
		buf[0] = byte(sh.Type)
		buf[1] = sh.Flags
		WriteUint16(buf[2:], sh.Reserved)
		WriteUint32(buf[4:], sh.Offset)
		WriteUint32(buf[8:], sh.Size)
		WriteUint32(buf[12:], sh.UncompressedSize)
		w.buf.Write(buf)
	}
}

// writePayloads writes the section payloads in table order.
func (w *ModuleWriter) writePayloads() {
	for _, p := range w.payloads {
		w.buf.Write(p)
	}
}

func (w *ModuleWriter) write() {
	if w.written {
		return
	}
	w.layout()
	w.writeHeader()
	w.writeSectionTable()
	w.writePayloads()
	w.written = true

	// Record what was written on the module, as a freshly read module would
	// carry it.
	h := &w.module.Header
	h.Magic = ModuleMagic
	h.Major = VersionMajor
	h.Minor = VersionMinor
	h.SectionCount = uint32(len(w.headers))
	h.Checksum = w.checksum
}

// ---------------------------------------------------------------------------
// Main serialization API
// ---------------------------------------------------------------------------

// Sections returns the section table that was (or will be) written.
func (w *ModuleWriter) Sections() []SectionHeader {
	w.write()
	return append([]SectionHeader(nil), w.headers...)
}

// Bytes returns the serialized module.
func (w *ModuleWriter) Bytes() []byte {
	w.write()
	return w.buf.Bytes()
}

// WriteTo writes the module to out.
func (w *ModuleWriter) WriteTo(out io.Writer) (int64, error) {
	n, err := out.Write(w.Bytes())
	return int64(n), err
}

// ---------------------------------------------------------------------------
// Module integration
// ---------------------------------------------------------------------------

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Module) MarshalBinary() ([]byte, error) {
	return NewModuleWriter(m).Bytes(), nil
}

// SaveTo writes the module to w.
func (m *Module) SaveTo(w io.Writer) error {
	_, err := NewModuleWriter(m).WriteTo(w)
	return err
}

// Save writes the module to a file.
func (m *Module) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.SaveTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
