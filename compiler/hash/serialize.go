package hash

import (
	"encoding/binary"
	"math"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B, uint32=4B, uint16=2B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings and byte blobs: uint32 big-endian length + bytes
//   - Booleans and optional-child markers: single byte (0/1)
//   - Lists: uint32 big-endian count + elements
//   - Child nodes: serialized inline (flat)
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBytes(v []byte) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeInt(v int) {
	s.writeInt64(int64(v))
}

func (s *serializer) writeList(nodes []HNode) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

// writeOptional writes a presence byte followed by node when it is set.
func (s *serializer) writeOptional(node HNode) {
	s.writeBool(node != nil)
	if node != nil {
		s.serializeNode(node)
	}
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HIntLiteral:
		s.writeByte(TagIntLiteral)
		s.writeInt64(n.Value)

	case *HFloatLiteral:
		s.writeByte(TagFloatLiteral)
		s.writeFloat64(n.Value)

	case *HStringLiteral:
		s.writeByte(TagStringLiteral)
		s.writeString(n.Value)

	case *HBoolLiteral:
		s.writeByte(TagBoolLiteral)
		s.writeBool(n.Value)

	case *HNullLiteral:
		s.writeByte(TagNullLiteral)

	case *HLocalRef:
		s.writeByte(TagLocalRef)
		s.writeUint16(n.Slot)

	case *HGlobalRef:
		s.writeByte(TagGlobalRef)
		s.writeString(n.Name)

	case *HBinary:
		s.writeByte(TagBinary)
		s.writeString(n.Op)
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *HUnary:
		s.writeByte(TagUnary)
		s.writeString(n.Op)
		s.serializeNode(n.Operand)

	case *HTernary:
		s.writeByte(TagTernary)
		s.serializeNode(n.Cond)
		s.serializeNode(n.Then)
		s.serializeNode(n.Else)

	case *HCall:
		s.writeByte(TagCall)
		s.writeString(n.Function)
		s.writeList(n.Args)

	case *HAssign:
		s.writeByte(TagAssign)
		s.serializeNode(n.Target)
		s.serializeNode(n.Value)

	case *HCompoundAssign:
		s.writeByte(TagCompoundAssign)
		s.writeString(n.Op)
		s.serializeNode(n.Target)
		s.serializeNode(n.Value)

	case *HIf:
		s.writeByte(TagIf)
		s.serializeNode(n.Cond)
		s.writeList(n.Then)
		s.writeList(n.Else)

	case *HWhile:
		s.writeByte(TagWhile)
		s.serializeNode(n.Cond)
		s.writeList(n.Body)

	case *HCallStmt:
		s.writeByte(TagCallStmt)
		s.serializeNode(n.Call)

	case *HReturn:
		s.writeByte(TagReturn)
		s.writeOptional(n.Value)

	case *HBreak:
		s.writeByte(TagBreak)

	case *HContinue:
		s.writeByte(TagContinue)

	case *HFunction:
		s.writeByte(TagFunction)
		s.writeString(n.Name)
		s.writeInt(n.Arity)
		s.writeList(n.Body)

	case *HBinding:
		s.writeByte(TagBinding)
		s.writeUint32(n.ComponentID)
		s.writeString(n.Event)
		s.writeString(n.Handler)

	case *HVariable:
		s.writeByte(TagVariable)
		s.writeString(n.Name)
		s.writeString(n.Type)
		s.writeOptional(n.Initial)

	case *HProgram:
		s.writeByte(TagProgram)
		s.writeUint32(uint32(len(n.Variables)))
		for _, v := range n.Variables {
			s.serializeNode(v)
		}
		s.writeUint32(uint32(len(n.Functions)))
		for _, f := range n.Functions {
			s.serializeNode(f)
		}
		s.writeUint32(uint32(len(n.Bindings)))
		for _, b := range n.Bindings {
			s.serializeNode(b)
		}
		s.writeBytes(n.UI)
	}
}
