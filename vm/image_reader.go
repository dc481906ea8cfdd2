package vm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

var imageLog = commonlog.GetLogger("kryon.vm.image")

// ---------------------------------------------------------------------------
// Module Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic     = errors.New("invalid magic number: expected KRBY")
	ErrVersionMismatch  = errors.New("module version mismatch")
	ErrCorruptHeader    = errors.New("corrupt module header")
	ErrCorruptData      = errors.New("corrupt module data")
	ErrUnexpectedEOF    = errors.New("unexpected end of module data")
	ErrSectionBounds    = errors.New("section outside module data")
	ErrChecksumMismatch = errors.New("module checksum mismatch")
)

// ---------------------------------------------------------------------------
// ModuleReader: Reads a module from the binary container
// ---------------------------------------------------------------------------

// ModuleReader decodes a module. Section headers are read sequentially; for
// each one the reader jumps to the payload offset, decodes it, and returns
// to the table before reading the next header, so payload order need not
// match header order.
type ModuleReader struct {
	data   []byte
	offset int

	header   Header
	sections []SectionHeader
}

// NewModuleReader creates a ModuleReader from an io.Reader.
func NewModuleReader(r io.Reader) (*ModuleReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read module data: %w", err)
	}
	return NewModuleReaderFromBytes(data)
}

// NewModuleReaderFromBytes creates a ModuleReader from a byte slice.
func NewModuleReaderFromBytes(data []byte) (*ModuleReader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrCorruptHeader, len(data), HeaderSize)
	}
	return &ModuleReader{data: data}, nil
}

// ---------------------------------------------------------------------------
// Header Reading
// ---------------------------------------------------------------------------

// ReadHeader reads and validates the module header.
func (mr *ModuleReader) ReadHeader() (*Header, error) {
	if len(mr.data) < HeaderSize {
		return nil, ErrCorruptHeader
	}
	mr.offset = 0

	var h Header
	copy(h.Magic[:], mr.data[0:4])
	if h.Magic != ModuleMagic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, h.Magic[:])
	}

	h.Major = ReadUint16(mr.data[4:])
	h.Minor = ReadUint16(mr.data[6:])
	if h.Major != VersionMajor {
		return nil, fmt.Errorf("%w: expected %d.x, got %d.%d", ErrVersionMismatch, VersionMajor, h.Major, h.Minor)
	}

	h.Flags = ReadUint16(mr.data[8:])
	h.SectionCount = ReadUint32(mr.data[12:])
	h.EntryFunction = ReadUint32(mr.data[16:])
	h.Checksum = ReadUint32(mr.data[20:])
	mr.offset = HeaderSize

	if uint64(h.SectionCount)*SectionHeaderSize > uint64(len(mr.data)-HeaderSize) {
		return nil, fmt.Errorf("%w: %d sections declared", ErrCorruptHeader, h.SectionCount)
	}

	mr.header = h
	return &mr.header, nil
}

// Header returns the parsed header (ReadHeader must be called first).
func (mr *ModuleReader) Header() *Header {
	return &mr.header
}

// Sections returns the section headers read so far.
func (mr *ModuleReader) Sections() []SectionHeader {
	return mr.sections
}

// ---------------------------------------------------------------------------
// Section Reading
// ---------------------------------------------------------------------------

// readSectionHeader reads the section header at the current position.
func (mr *ModuleReader) readSectionHeader() (SectionHeader, error) {
	if mr.offset+SectionHeaderSize > len(mr.data) {
		return SectionHeader{}, fmt.Errorf("%w reading section header at %d", ErrUnexpectedEOF, mr.offset)
	}
	b := mr.data[mr.offset:]
	sh := SectionHeader{
		Type:             SectionType(b[0]),
		Flags:            b[1],
		Reserved:         ReadUint16(b[2:]),
		Offset:           ReadUint32(b[4:]),
		Size:             ReadUint32(b[8:]),
		UncompressedSize: ReadUint32(b[12:]),
	}
	mr.offset += SectionHeaderSize
	return sh, nil
}

// payload returns the bytes a section header points at.
func (mr *ModuleReader) payload(sh SectionHeader) ([]byte, error) {
	end := uint64(sh.Offset) + uint64(sh.Size)
	if end > uint64(len(mr.data)) {
		return nil, fmt.Errorf("%w: %s at %d+%d, module is %d bytes", ErrSectionBounds, sh.Type, sh.Offset, sh.Size, len(mr.data))
	}
	return mr.data[sh.Offset:end], nil
}

// readSection seeks to the payload of sh, decodes it into m and restores
// the table position.
func (mr *ModuleReader) readSection(m *Module, sh SectionHeader) error {
	saved := mr.offset
	defer func() { mr.offset = saved }()

	data, err := mr.payload(sh)
	if err != nil {
		return err
	}
	mr.offset = int(sh.Offset)

	codec, ok := codecFor(sh.Type)
	if !ok {
		imageLog.Debugf("skipping unknown section %s (%d bytes)", sh.Type, sh.Size)
		return nil
	}
	r := newPayloadReader(data, sh.Type.String())
	codec.decode(m, r)
	return r.err
}

// ---------------------------------------------------------------------------
// Full Module Loading
// ---------------------------------------------------------------------------

// ReadAll reads the entire module. On any error no module is returned.
func (mr *ModuleReader) ReadAll() (*Module, error) {
	h, err := mr.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	m := &Module{Header: *h}
	mr.sections = make([]SectionHeader, 0, h.SectionCount)
	payloads := make([][]byte, 0, h.SectionCount)

	for i := uint32(0); i < h.SectionCount; i++ {
		sh, err := mr.readSectionHeader()
		if err != nil {
			return nil, err
		}
		mr.sections = append(mr.sections, sh)

		if err := mr.readSection(m, sh); err != nil {
			return nil, fmt.Errorf("failed to read %s section: %w", sh.Type, err)
		}
		p, _ := mr.payload(sh)
		payloads = append(payloads, p)
	}

	// A zero checksum means the producer did not compute one.
	if h.Checksum != 0 {
		if sum := Checksum(payloads...); sum != h.Checksum {
			return nil, fmt.Errorf("%w: header %08X, payloads %08X", ErrChecksumMismatch, h.Checksum, sum)
		}
	}

	return m, nil
}

// ---------------------------------------------------------------------------
// Load helpers
// ---------------------------------------------------------------------------

// LoadModule loads a module from a file.
func LoadModule(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open module file: %w", err)
	}
	defer f.Close()

	return ReadModule(f)
}

// ReadModule loads a module from an io.Reader.
func ReadModule(r io.Reader) (*Module, error) {
	mr, err := NewModuleReader(r)
	if err != nil {
		return nil, err
	}
	return mr.ReadAll()
}

// UnmarshalModule loads a module from a byte slice.
func UnmarshalModule(data []byte) (*Module, error) {
	return ReadModule(bytes.NewReader(data))
}
