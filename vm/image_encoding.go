package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Binary encoding helpers
// ---------------------------------------------------------------------------

// WriteUint16 writes a uint16 in little-endian format.
func WriteUint16(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf, v)
}

// ReadUint16 reads a uint16 in little-endian format.
func ReadUint16(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf)
}

// WriteUint32 writes a uint32 in little-endian format.
func WriteUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

// ReadUint32 reads a uint32 in little-endian format.
func ReadUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// ---------------------------------------------------------------------------
// payloadWriter: section payload encoder
// ---------------------------------------------------------------------------

type payloadWriter struct {
	buf bytes.Buffer
}

func (w *payloadWriter) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *payloadWriter) u16(v uint16) {
	var b [2]byte
	WriteUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *payloadWriter) u32(v uint32) {
	var b [4]byte
	WriteUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *payloadWriter) i64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *payloadWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

// str writes [length:32 | utf8 bytes].
func (w *payloadWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

// value writes [kind:8 | payload]; null has no payload.
func (w *payloadWriter) value(v Value) {
	w.u8(uint8(v.Kind))
	switch v.Kind {
	case KindBool:
		w.u8(uint8(v.I & 1))
	case KindInt:
		w.i64(v.I)
	case KindFloat:
		w.f32(v.F)
	case KindString:
		w.str(v.S)
	}
}

func (w *payloadWriter) bytes() []byte {
	return w.buf.Bytes()
}

// ---------------------------------------------------------------------------
// payloadReader: section payload decoder
// ---------------------------------------------------------------------------

// payloadReader decodes one section payload. The first short read is
// recorded and every later read returns a zero value.
type payloadReader struct {
	data   []byte
	offset int
	err    error
	what   string
}

func newPayloadReader(data []byte, what string) *payloadReader {
	return &payloadReader{data: data, what: what}
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.offset+n > len(r.data) {
		r.err = fmt.Errorf("%w reading %s at payload offset %d", ErrUnexpectedEOF, r.what, r.offset)
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *payloadReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *payloadReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return ReadUint16(b)
	}
	return 0
}

func (r *payloadReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return ReadUint32(b)
	}
	return 0
}

func (r *payloadReader) i64() int64 {
	if b := r.take(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (r *payloadReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *payloadReader) str() string {
	n := r.u32()
	return string(r.take(int(n)))
}

// count reads an element count and rejects counts that cannot fit in the
// rest of the payload given a minimum encoded element size.
func (r *payloadReader) count(minElem int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if uint64(n)*uint64(minElem) > uint64(len(r.data)-r.offset) {
		r.err = fmt.Errorf("%w: %s count %d exceeds payload", ErrCorruptData, r.what, n)
		return 0
	}
	return int(n)
}

func (r *payloadReader) value() Value {
	kind := Kind(r.u8())
	switch kind {
	case KindNull:
		return Null
	case KindBool:
		return Bool(r.u8() != 0)
	case KindInt:
		return Int(r.i64())
	case KindFloat:
		return Float(r.f32())
	case KindString:
		return String(r.str())
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: %s value kind %d", ErrCorruptData, r.what, kind)
		}
		return Null
	}
}
