package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack and constants
const (
	OpNOP        Opcode = 0x00 // no operation
	OpPushNull   Opcode = 0x01 // push null
	OpPushTrue   Opcode = 0x02 // push true
	OpPushFalse  Opcode = 0x03 // push false
	OpPushInt8   Opcode = 0x04 // push 8-bit signed integer
	OpPushInt16  Opcode = 0x05 // push 16-bit signed integer
	OpPushInt32  Opcode = 0x06 // push 32-bit signed integer
	OpPushInt64  Opcode = 0x07 // push 64-bit signed integer
	OpPushFloat  Opcode = 0x08 // push inline float32
	OpPushDouble Opcode = 0x09 // push inline float64 (narrowed to float32)
	OpPushStr    Opcode = 0x0A // push string (16-bit string table index)
	OpPOP        Opcode = 0x0B // discard top of stack
	OpDUP        Opcode = 0x0C // duplicate top of stack
	OpSWAP       Opcode = 0x0D // swap the two topmost values
)

// Variables
const (
	OpLoadLocal   Opcode = 0x10 // push local (8-bit slot, frame relative)
	OpStoreLocal  Opcode = 0x11 // pop into local (8-bit slot)
	OpLoadGlobal  Opcode = 0x12 // push global (16-bit slot)
	OpStoreGlobal Opcode = 0x13 // pop into global (16-bit slot)
)

// Arithmetic
const (
	OpAdd Opcode = 0x20
	OpSub Opcode = 0x21
	OpMul Opcode = 0x22
	OpDiv Opcode = 0x23 // division by zero yields 0
	OpMod Opcode = 0x24 // modulo by zero yields 0
	OpNeg Opcode = 0x25
	OpInc Opcode = 0x26
	OpDec Opcode = 0x27
)

// Comparison
const (
	OpEQ Opcode = 0x30
	OpNE Opcode = 0x31
	OpLT Opcode = 0x32
	OpLE Opcode = 0x33
	OpGT Opcode = 0x34
	OpGE Opcode = 0x35
)

// Logic
const (
	OpAnd Opcode = 0x40
	OpOr  Opcode = 0x41
	OpNot Opcode = 0x42
)

// Bitwise
const (
	OpBitAnd Opcode = 0x48
	OpBitOr  Opcode = 0x49
	OpBitXor Opcode = 0x4A
	OpBitNot Opcode = 0x4B
	OpShl    Opcode = 0x4C
	OpShr    Opcode = 0x4D
)

// Control flow
const (
	OpJump        Opcode = 0x50 // unconditional jump (32-bit absolute target)
	OpJumpIf      Opcode = 0x51 // pop, jump if truthy (32-bit absolute target)
	OpJumpIfNot   Opcode = 0x52 // pop, jump if falsy (32-bit absolute target)
	OpCall        Opcode = 0x53 // call function (16-bit function index)
	OpCallNative  Opcode = 0x54 // call native (16-bit name index, 8-bit argc)
	OpReturn      Opcode = 0x55 // return
	OpReturnValue Opcode = 0x56 // return top of stack
)

// UI
const (
	OpGetComp     Opcode = 0x60 // push component id (32-bit)
	OpSetProp     Opcode = 0x61 // pop value, pop component; set property (16-bit id)
	OpGetProp     Opcode = 0x62 // pop component; push property (16-bit id)
	OpSetText     Opcode = 0x63 // pop text, pop component
	OpSetVisible  Opcode = 0x64 // pop flag, pop component
	OpAddChild    Opcode = 0x65 // pop child, pop parent
	OpRemoveChild Opcode = 0x66 // pop child, pop parent
	OpRedraw      Opcode = 0x67 // request redraw
)

// Strings
const (
	OpStrConcat Opcode = 0x70
	OpStrLen    Opcode = 0x71
	OpStrSubstr Opcode = 0x72
	OpStrFormat Opcode = 0x73
)

// Arrays
const (
	OpArrNew  Opcode = 0x80
	OpArrGet  Opcode = 0x81
	OpArrSet  Opcode = 0x82
	OpArrPush Opcode = 0x83
	OpArrPop  Opcode = 0x84
	OpArrLen  Opcode = 0x85
)

// Debug
const (
	OpDebugPrint Opcode = 0xF0
	OpDebugBreak Opcode = 0xF1
	OpHalt       Opcode = 0xFF
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack and constants
	OpNOP:        {"NOP", 0},
	OpPushNull:   {"PUSH_NULL", 0},
	OpPushTrue:   {"PUSH_TRUE", 0},
	OpPushFalse:  {"PUSH_FALSE", 0},
	OpPushInt8:   {"PUSH_INT8", 1},
	OpPushInt16:  {"PUSH_INT16", 2},
	OpPushInt32:  {"PUSH_INT32", 4},
	OpPushInt64:  {"PUSH_INT64", 8},
	OpPushFloat:  {"PUSH_FLOAT", 4},
	OpPushDouble: {"PUSH_DOUBLE", 8},
	OpPushStr:    {"PUSH_STR", 2},
	OpPOP:        {"POP", 0},
	OpDUP:        {"DUP", 0},
	OpSWAP:       {"SWAP", 0},

	// Variables
	OpLoadLocal:   {"LOAD_LOCAL", 1},
	OpStoreLocal:  {"STORE_LOCAL", 1},
	OpLoadGlobal:  {"LOAD_GLOBAL", 2},
	OpStoreGlobal: {"STORE_GLOBAL", 2},

	// Arithmetic
	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpDiv: {"DIV", 0},
	OpMod: {"MOD", 0},
	OpNeg: {"NEG", 0},
	OpInc: {"INC", 0},
	OpDec: {"DEC", 0},

	// Comparison
	OpEQ: {"EQ", 0},
	OpNE: {"NE", 0},
	OpLT: {"LT", 0},
	OpLE: {"LE", 0},
	OpGT: {"GT", 0},
	OpGE: {"GE", 0},

	// Logic
	OpAnd: {"AND", 0},
	OpOr:  {"OR", 0},
	OpNot: {"NOT", 0},

	// Bitwise
	OpBitAnd: {"BAND", 0},
	OpBitOr:  {"BOR", 0},
	OpBitXor: {"BXOR", 0},
	OpBitNot: {"BNOT", 0},
	OpShl:    {"SHL", 0},
	OpShr:    {"SHR", 0},

	// Control flow
	OpJump:        {"JMP", 4},
	OpJumpIf:      {"JMP_IF", 4},
	OpJumpIfNot:   {"JMP_IF_NOT", 4},
	OpCall:        {"CALL", 2},
	OpCallNative:  {"CALL_NATIVE", 3},
	OpReturn:      {"RET", 0},
	OpReturnValue: {"RET_VAL", 0},

	// UI
	OpGetComp:     {"GET_COMP", 4},
	OpSetProp:     {"SET_PROP", 2},
	OpGetProp:     {"GET_PROP", 2},
	OpSetText:     {"SET_TEXT", 0},
	OpSetVisible:  {"SET_VISIBLE", 0},
	OpAddChild:    {"ADD_CHILD", 0},
	OpRemoveChild: {"REMOVE_CHILD", 0},
	OpRedraw:      {"REDRAW", 0},

	// Strings
	OpStrConcat: {"STR_CONCAT", 0},
	OpStrLen:    {"STR_LEN", 0},
	OpStrSubstr: {"STR_SUBSTR", 0},
	OpStrFormat: {"STR_FORMAT", 0},

	// Arrays
	OpArrNew:  {"ARR_NEW", 0},
	OpArrGet:  {"ARR_GET", 0},
	OpArrSet:  {"ARR_SET", 0},
	OpArrPush: {"ARR_PUSH", 0},
	OpArrPop:  {"ARR_POP", 0},
	OpArrLen:  {"ARR_LEN", 0},

	// Debug
	OpDebugPrint: {"DEBUG_PRINT", 0},
	OpDebugBreak: {"DEBUG_BREAK", 0},
	OpHalt:       {"HALT", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0}
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// IsJump reports whether op carries an absolute jump target.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIf || op == OpJumpIfNot
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder is an append-only buffer for one contiguous code segment.
// All multi-byte values are little-endian.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length, which is also the offset of the next
// emitted byte.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// AppendUint16 appends a raw 16-bit value.
func (b *BytecodeBuilder) AppendUint16(v uint16) {
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, v)
}

// AppendUint32 appends a raw 32-bit value.
func (b *BytecodeBuilder) AppendUint32(v uint32) {
	b.bytes = binary.LittleEndian.AppendUint32(b.bytes, v)
}

// AppendInt64 appends a raw 64-bit signed value.
func (b *BytecodeBuilder) AppendInt64(v int64) {
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, uint64(v))
}

// AppendFloat32 appends a raw IEEE-754 single.
func (b *BytecodeBuilder) AppendFloat32(v float32) {
	b.bytes = binary.LittleEndian.AppendUint32(b.bytes, math.Float32bits(v))
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *BytecodeBuilder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitInt16 appends an opcode with a signed 16-bit operand.
func (b *BytecodeBuilder) EmitInt16(op Opcode, operand int16) {
	b.Emit(op)
	b.AppendUint16(uint16(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand.
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.Emit(op)
	b.AppendUint16(operand)
}

// EmitInt32 appends an opcode with a signed 32-bit operand.
func (b *BytecodeBuilder) EmitInt32(op Opcode, operand int32) {
	b.Emit(op)
	b.AppendUint32(uint32(operand))
}

// EmitUint32 appends an opcode with a 32-bit operand.
func (b *BytecodeBuilder) EmitUint32(op Opcode, operand uint32) {
	b.Emit(op)
	b.AppendUint32(operand)
}

// EmitInt64 appends an opcode with a signed 64-bit operand.
func (b *BytecodeBuilder) EmitInt64(op Opcode, operand int64) {
	b.Emit(op)
	b.AppendInt64(operand)
}

// EmitFloat32 appends an opcode with a 32-bit float operand.
func (b *BytecodeBuilder) EmitFloat32(op Opcode, operand float32) {
	b.Emit(op)
	b.AppendFloat32(operand)
}

// EmitFloat64 appends an opcode with a 64-bit float operand.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, operand float64) {
	b.Emit(op)
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, math.Float64bits(operand))
}

// EmitCallNative appends a CALL_NATIVE instruction.
func (b *BytecodeBuilder) EmitCallNative(name uint16, argc uint8) {
	b.bytes = append(b.bytes, byte(OpCallNative), byte(name), byte(name>>8), argc)
}

// PatchUint32 overwrites four bytes at pos.
func (b *BytecodeBuilder) PatchUint32(pos int, v uint32) {
	binary.LittleEndian.PutUint32(b.bytes[pos:], v)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label is a jump destination. Jumps emitted before the label is marked get
// a zero placeholder that Mark backpatches with the absolute target.
type Label struct {
	resolved bool
	position int   // absolute target once resolved
	refs     []int // operand positions waiting for the target
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// MarkedLabel creates a label resolved to the current position, for
// backward jumps.
func (b *BytecodeBuilder) MarkedLabel() *Label {
	return &Label{resolved: true, position: len(b.bytes)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		b.PatchUint32(ref, uint32(label.position))
	}
	label.refs = nil
}

// Position returns the resolved target of the label, or -1.
func (l *Label) Position() int {
	if !l.resolved {
		return -1
	}
	return l.position
}

// EmitJump emits a jump instruction targeting label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.Emit(op)
	if label.resolved {
		b.AppendUint32(uint32(label.position))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.AppendUint32(0) // placeholder
}

// EmitJumpAbsolute emits a jump to an already known absolute position.
func (b *BytecodeBuilder) EmitJumpAbsolute(op Opcode, target int) {
	b.Emit(op)
	b.AppendUint32(uint32(target))
}

// ---------------------------------------------------------------------------
// Bytecode reader for interpretation and disassembly
// ---------------------------------------------------------------------------

// ErrTruncatedOperand is recorded when an operand runs past the end of code.
var ErrTruncatedOperand = errors.New("truncated operand")

// BytecodeReader reads bytecode for interpretation or disassembly. Reads past
// the end return zero values and record a sticky error, see Err.
type BytecodeReader struct {
	bytes []byte
	pos   int
	err   error
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// Err returns the first truncation error, if any.
func (r *BytecodeReader) Err() error {
	return r.err
}

func (r *BytecodeReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos < 0 || r.pos+n > len(r.bytes) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedOperand, n, r.pos, len(r.bytes)-r.pos)
		r.pos = len(r.bytes)
		return false
	}
	return true
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	return Opcode(r.ReadUint8())
}

// ReadUint8 reads a single byte operand.
func (r *BytecodeReader) ReadUint8() uint8 {
	if !r.need(1) {
		return 0
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadInt8 reads a signed 8-bit operand.
func (r *BytecodeReader) ReadInt8() int8 {
	return int8(r.ReadUint8())
}

// ReadUint16 reads a 16-bit operand.
func (r *BytecodeReader) ReadUint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand.
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadUint32 reads a 32-bit operand.
func (r *BytecodeReader) ReadUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return v
}

// ReadInt32 reads a signed 32-bit operand.
func (r *BytecodeReader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadInt64 reads a signed 64-bit operand.
func (r *BytecodeReader) ReadInt64() int64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return int64(v)
}

// ReadFloat32 reads a 32-bit float operand.
func (r *BytecodeReader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

// ReadFloat64 reads a 64-bit float operand.
func (r *BytecodeReader) ReadFloat64() float64 {
	return math.Float64frombits(uint64(r.ReadInt64()))
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	if r.need(n) {
		r.pos += n
	}
}

// Seek sets the read position.
func (r *BytecodeReader) Seek(pos int) {
	r.pos = pos
}
