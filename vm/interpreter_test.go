package vm

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestModule wraps code in a single function "main" with the given
// string table and named globals (all initialised to 0).
func newTestModule(code []byte, strs []string, globals ...string) *Module {
	m := NewModule()
	m.Code = code
	m.Strings = strs
	m.Functions = []Function{{Name: "main", CodeOffset: 0, CodeSize: uint32(len(code))}}
	for _, g := range globals {
		m.Globals = append(m.Globals, Global{Name: g, Initial: Int(0)})
	}
	return m
}

// emitPushInt chooses the narrowest push for v.
func emitPushInt(b *BytecodeBuilder, v int64) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		b.EmitInt8(OpPushInt8, int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		b.EmitInt16(OpPushInt16, int16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		b.EmitInt32(OpPushInt32, int32(v))
	default:
		b.EmitInt64(OpPushInt64, v)
	}
}

func runMain(t *testing.T, m *Module) (*Runtime, Result) {
	t.Helper()
	rt := NewRuntime(m)
	return rt, rt.Execute(0)
}

// ---------------------------------------------------------------------------
// Constants and arithmetic
// ---------------------------------------------------------------------------

func TestRuntimePushWidths(t *testing.T) {
	values := []int64{
		0, 1, -1, 127, -128, 128, -129,
		32767, -32768, 32768, -32769,
		math.MaxInt32, math.MinInt32, math.MaxInt32 + 1, math.MinInt32 - 1,
		math.MaxInt64, math.MinInt64,
	}
	for _, v := range values {
		b := NewBytecodeBuilder()
		emitPushInt(b, v)
		b.Emit(OpReturnValue)

		_, res := runMain(t, newTestModule(b.Bytes(), nil))
		if !res.OK() {
			t.Fatalf("push %d: %v", v, res)
		}
		if res.Value.Kind != KindInt || res.Value.I != v {
			t.Errorf("push %d: got %v", v, res.Value)
		}
	}
}

func TestRuntimePushFloatAndString(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitFloat32(OpPushFloat, 2.5)
	b.EmitUint16(OpStoreGlobal, 0)
	b.EmitFloat64(OpPushDouble, 0.25)
	b.EmitUint16(OpStoreGlobal, 1)
	b.EmitUint16(OpPushStr, 0)
	b.EmitUint16(OpStoreGlobal, 2)
	b.EmitUint16(OpPushStr, 40) // out of range
	b.Emit(OpReturnValue)

	rt, res := runMain(t, newTestModule(b.Bytes(), []string{"hello"}, "f", "d", "s"))
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if got := rt.Global(0); got.Kind != KindFloat || got.F != 2.5 {
		t.Errorf("f = %v, want 2.5", got)
	}
	if got := rt.Global(1); got.Kind != KindFloat || got.F != 0.25 {
		t.Errorf("d = %v, want 0.25", got)
	}
	if got := rt.Global(2); !got.Equal(String("hello")) {
		t.Errorf("s = %v, want \"hello\"", got)
	}
	if !res.Value.Equal(String("")) {
		t.Errorf("out-of-range PUSH_STR = %v, want empty string", res.Value)
	}
}

func TestRuntimeBinaryOps(t *testing.T) {
	tests := []struct {
		op   Opcode
		x, y int64
		want int64
	}{
		{OpAdd, 5, 3, 8},
		{OpSub, 5, 8, -3},
		{OpMul, -4, 6, -24},
		{OpDiv, 7, 2, 3},
		{OpDiv, 7, 0, 0},
		{OpDiv, 0, 0, 0},
		{OpMod, 7, 3, 1},
		{OpMod, 7, 0, 0},
		{OpBitAnd, 0b1100, 0b1010, 0b1000},
		{OpBitOr, 0b1100, 0b1010, 0b1110},
		{OpBitXor, 0b1100, 0b1010, 0b0110},
		{OpShl, 1, 3, 8},
		{OpShr, -16, 2, -4},
		{OpShl, 1, 65, 2},
		{OpEQ, 3, 3, 1},
		{OpNE, 3, 3, 0},
		{OpLT, 2, 3, 1},
		{OpLE, 3, 3, 1},
		{OpGT, 2, 3, 0},
		{OpGE, 2, 3, 0},
		{OpAnd, 1, 0, 0},
		{OpAnd, 2, 5, 1},
		{OpOr, 0, 0, 0},
		{OpOr, 0, 9, 1},
	}

	for _, tt := range tests {
		b := NewBytecodeBuilder()
		emitPushInt(b, tt.x)
		emitPushInt(b, tt.y)
		b.Emit(tt.op)
		b.Emit(OpReturnValue)

		_, res := runMain(t, newTestModule(b.Bytes(), nil))
		if !res.OK() {
			t.Fatalf("%s %d %d: %v", tt.op, tt.x, tt.y, res)
		}
		if res.Value.I != tt.want {
			t.Errorf("%d %s %d = %d, want %d", tt.x, tt.op, tt.y, res.Value.I, tt.want)
		}
	}
}

func TestRuntimeUnaryOps(t *testing.T) {
	tests := []struct {
		op   Opcode
		x    int64
		want int64
	}{
		{OpNeg, 5, -5},
		{OpInc, 5, 6},
		{OpDec, 5, 4},
		{OpNot, 0, 1},
		{OpNot, 7, 0},
		{OpBitNot, 0, -1},
	}
	for _, tt := range tests {
		b := NewBytecodeBuilder()
		emitPushInt(b, tt.x)
		b.Emit(tt.op)
		b.Emit(OpReturnValue)

		_, res := runMain(t, newTestModule(b.Bytes(), nil))
		if res.Value.I != tt.want {
			t.Errorf("%s %d = %d, want %d", tt.op, tt.x, res.Value.I, tt.want)
		}
	}
}

func TestRuntimeStackOps(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 10)
	emitPushInt(b, 3)
	b.Emit(OpSWAP) // 3 10
	b.Emit(OpSub)  // 3 - 10
	b.Emit(OpDUP)
	b.Emit(OpAdd)
	b.Emit(OpReturnValue)

	_, res := runMain(t, newTestModule(b.Bytes(), nil))
	if res.Value.I != -14 {
		t.Errorf("result = %v, want -14", res.Value)
	}
}

func TestRuntimeEmptyStackPopsNull(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpPOP)
	b.Emit(OpAdd)
	b.Emit(OpReturnValue)

	_, res := runMain(t, newTestModule(b.Bytes(), nil))
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if !res.Value.Equal(Int(0)) {
		t.Errorf("null + null = %v, want 0", res.Value)
	}
}

// ---------------------------------------------------------------------------
// Globals and control flow
// ---------------------------------------------------------------------------

func TestRuntimeGlobalOutOfRange(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 9)
	b.EmitUint16(OpStoreGlobal, 500)
	b.EmitUint16(OpLoadGlobal, 500)
	b.Emit(OpReturnValue)

	rt, res := runMain(t, newTestModule(b.Bytes(), nil, "x"))
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if !res.Value.Equal(Int(0)) {
		t.Errorf("out-of-range load = %v, want 0", res.Value)
	}
	if len(rt.Globals()) != 1 {
		t.Errorf("globals = %d slots, want 1", len(rt.Globals()))
	}
}

func TestRuntimeGlobalSlotCount(t *testing.T) {
	code := []byte{byte(OpReturn)}
	b := NewBytecodeBuilder()
	b.EmitUint16(OpLoadGlobal, 3)
	b.EmitUint16(OpStoreGlobal, 20)
	b.Emit(OpReturn)
	scanned := b.Bytes()
	truncated := []byte{byte(OpLoadGlobal), 7}

	tests := []struct {
		name string
		m    *Module
		want int
	}{
		{"declared", newTestModule(code, []string{"a", "b"}, "x", "y", "z"), 3},
		{"scanned from code", newTestModule(scanned, []string{"a", "b"}), 21},
		{"no global access", newTestModule(code, []string{"a", "b"}), 0},
		{"truncated operand", newTestModule(truncated, nil), 0},
	}
	for _, tt := range tests {
		if got := len(NewRuntime(tt.m).Globals()); got != tt.want {
			t.Errorf("%s: %d slots, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRuntimeScannedGlobalsKeepStores(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 9)
	b.EmitUint16(OpStoreGlobal, 5)
	b.EmitUint16(OpLoadGlobal, 5)
	b.Emit(OpReturnValue)

	// Two strings, no DATA section, slot 5.
	_, res := runMain(t, newTestModule(b.Bytes(), []string{"a", "b"}))
	if !res.OK() || !res.Value.Equal(Int(9)) {
		t.Errorf("result = %v, want 9", res)
	}
}

func TestRuntimeInitialGlobals(t *testing.T) {
	m := newTestModule([]byte{byte(OpReturn)}, nil)
	m.Globals = []Global{{Name: "title", Initial: String("Hi")}, {Name: "n", Initial: Int(4)}}

	rt := NewRuntime(m)
	if v, ok := rt.GlobalByName("title"); !ok || !v.Equal(String("Hi")) {
		t.Errorf("title = %v, %v", v, ok)
	}
	if _, ok := rt.GlobalByName("missing"); ok {
		t.Error("missing global should not be found")
	}
}

// if (x > 0) y = 1 else y = -1
func buildIfElse(b *BytecodeBuilder) {
	elseL, endL := b.NewLabel(), b.NewLabel()
	b.EmitUint16(OpLoadGlobal, 0)
	emitPushInt(b, 0)
	b.Emit(OpGT)
	b.EmitJump(OpJumpIfNot, elseL)
	emitPushInt(b, 1)
	b.EmitUint16(OpStoreGlobal, 1)
	b.EmitJump(OpJump, endL)
	b.Mark(elseL)
	emitPushInt(b, -1)
	b.EmitUint16(OpStoreGlobal, 1)
	b.Mark(endL)
	b.Emit(OpReturn)
}

func TestRuntimeIfElse(t *testing.T) {
	for _, x := range []int64{-5, 0, 5} {
		b := NewBytecodeBuilder()
		buildIfElse(b)
		m := newTestModule(b.Bytes(), nil, "x", "y")
		m.Globals[0].Initial = Int(x)

		rt, res := runMain(t, m)
		if !res.OK() {
			t.Fatalf("x=%d: %v", x, res)
		}
		want := int64(-1)
		if x > 0 {
			want = 1
		}
		if got := rt.Global(1); got.I != want {
			t.Errorf("x=%d: y = %v, want %d", x, got, want)
		}
	}
}

func TestRuntimeWhileLoop(t *testing.T) {
	// i = 0; while (i < 3) { i = i + 1; n = n + 1 }
	b := NewBytecodeBuilder()
	emitPushInt(b, 0)
	b.EmitUint16(OpStoreGlobal, 0)
	start := b.MarkedLabel()
	exit := b.NewLabel()
	b.EmitUint16(OpLoadGlobal, 0)
	emitPushInt(b, 3)
	b.Emit(OpLT)
	b.EmitJump(OpJumpIfNot, exit)
	b.EmitUint16(OpLoadGlobal, 0)
	b.Emit(OpInc)
	b.EmitUint16(OpStoreGlobal, 0)
	b.EmitUint16(OpLoadGlobal, 1)
	b.Emit(OpInc)
	b.EmitUint16(OpStoreGlobal, 1)
	b.EmitJump(OpJump, start)
	b.Mark(exit)
	b.Emit(OpReturn)

	rt, res := runMain(t, newTestModule(b.Bytes(), nil, "i", "n"))
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if rt.Global(0).I != 3 || rt.Global(1).I != 3 {
		t.Errorf("i = %v, iterations = %v, want 3 and 3", rt.Global(0), rt.Global(1))
	}
}

func TestRuntimeJumpOutOfRange(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpNOP)
	b.EmitJumpAbsolute(OpJump, 1000)

	_, res := runMain(t, newTestModule(b.Bytes(), nil))
	if res.Status != StatusPartial || !errors.Is(res.Err, ErrJumpOutOfRange) {
		t.Errorf("result = %v, want partial ErrJumpOutOfRange", res)
	}
}

func TestRuntimeCallAndReturn(t *testing.T) {
	b := NewBytecodeBuilder()
	// main: push 4; call square; ret_val
	emitPushInt(b, 4)
	b.EmitUint16(OpCall, 1)
	b.Emit(OpReturnValue)
	sq := b.Len()
	// square(n): n * n
	b.EmitByte(OpLoadLocal, 0)
	b.EmitByte(OpLoadLocal, 0)
	b.Emit(OpMul)
	b.Emit(OpReturnValue)

	m := newTestModule(b.Bytes(), nil)
	m.Functions = []Function{
		{Name: "main", CodeOffset: 0, CodeSize: uint32(sq)},
		{Name: "square", CodeOffset: uint32(sq), CodeSize: uint32(b.Len() - sq), ParamCount: 1},
	}

	rt, res := runMain(t, m)
	if !res.OK() || !res.Value.Equal(Int(16)) {
		t.Fatalf("result = %v, want 16", res)
	}

	// Calling square directly binds the argument as local 0.
	if res := rt.Call(1, Int(7)); !res.Value.Equal(Int(49)) {
		t.Errorf("Call(square, 7) = %v, want 49", res)
	}
}

// paramModule builds one function with the given parameter count and body.
func paramModule(params uint8, body func(b *BytecodeBuilder), globals ...string) *Module {
	b := NewBytecodeBuilder()
	body(b)
	m := newTestModule(b.Bytes(), nil, globals...)
	m.Functions[0].ParamCount = params
	return m
}

func TestRuntimeParamsWithoutArguments(t *testing.T) {
	// handler(a): x = 10 + a
	handler := paramModule(1, func(b *BytecodeBuilder) {
		b.EmitInt8(OpPushInt8, 10)
		b.EmitByte(OpLoadLocal, 0)
		b.Emit(OpAdd)
		b.EmitUint16(OpStoreGlobal, 0)
		b.Emit(OpReturn)
	}, "x")
	handler.Bindings = []EventBinding{{ComponentID: 1, Event: EventClick, FunctionIndex: 0}}

	// f(a): a = 7; y = 1 + a
	store := paramModule(1, func(b *BytecodeBuilder) {
		b.EmitInt8(OpPushInt8, 7)
		b.EmitByte(OpStoreLocal, 0)
		b.EmitInt8(OpPushInt8, 1)
		b.EmitByte(OpLoadLocal, 0)
		b.Emit(OpAdd)
		b.EmitUint16(OpStoreGlobal, 0)
		b.Emit(OpReturn)
	}, "y")

	tests := []struct {
		name string
		run  func(rt *Runtime) Result
		m    *Module
		want int64
	}{
		{"dispatch", func(rt *Runtime) Result { return rt.Dispatch(1, EventClick) }, handler, 10},
		{"store to param", func(rt *Runtime) Result { return rt.Execute(0) }, store, 8},
	}
	for _, tt := range tests {
		rt := NewRuntime(tt.m)
		if res := tt.run(rt); !res.OK() {
			t.Fatalf("%s: result = %v", tt.name, res)
		}
		if got := rt.Global(0); !got.Equal(Int(tt.want)) {
			t.Errorf("%s: global = %v, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRuntimeCallDropsExtraArguments(t *testing.T) {
	// f(a): return a + 1
	m := paramModule(1, func(b *BytecodeBuilder) {
		b.EmitByte(OpLoadLocal, 0)
		b.Emit(OpInc)
		b.Emit(OpReturnValue)
	})
	rt := NewRuntime(m)
	if res := rt.Call(0, Int(4), Int(100), Int(200)); !res.Value.Equal(Int(5)) {
		t.Errorf("result = %v, want 5", res)
	}
	if res := rt.Call(0); !res.Value.Equal(Int(1)) {
		t.Errorf("no arguments: result = %v, want 1", res)
	}
}

func TestRuntimeCallShortStackKeepsCallerParams(t *testing.T) {
	b := NewBytecodeBuilder()
	// main(p): g(); return p
	b.EmitUint16(OpCall, 1)
	b.Emit(OpPOP)
	b.EmitByte(OpLoadLocal, 0)
	b.Emit(OpReturnValue)
	g := b.Len()
	// g(a): a = 9; return null
	b.EmitInt8(OpPushInt8, 9)
	b.EmitByte(OpStoreLocal, 0)
	b.Emit(OpPushNull)
	b.Emit(OpReturnValue)

	m := newTestModule(b.Bytes(), nil)
	m.Functions = []Function{
		{Name: "main", CodeOffset: 0, CodeSize: uint32(g), ParamCount: 1},
		{Name: "g", CodeOffset: uint32(g), CodeSize: uint32(b.Len() - g), ParamCount: 1},
	}

	rt := NewRuntime(m)
	if res := rt.Call(0, Int(40)); !res.OK() || !res.Value.Equal(Int(40)) {
		t.Errorf("result = %v, want 40", res)
	}
}

func TestRuntimeRecursionDepth(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitUint16(OpCall, 0)
	b.Emit(OpReturn)

	rt := NewRuntime(newTestModule(b.Bytes(), nil))
	res := rt.Execute(0)
	if !errors.Is(res.Err, ErrCallDepth) {
		t.Errorf("result = %v, want ErrCallDepth", res)
	}
	if res.Steps != MaxCallDepth+1 {
		t.Errorf("steps = %d, want %d", res.Steps, MaxCallDepth+1)
	}
}

// ---------------------------------------------------------------------------
// Failure and ceiling
// ---------------------------------------------------------------------------

func TestRuntimeUnknownOpcodeKeepsEffects(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 5)
	b.EmitUint16(OpStoreGlobal, 0)
	b.Emit(Opcode(0xEE))
	emitPushInt(b, 6)
	b.EmitUint16(OpStoreGlobal, 0)

	rt, res := runMain(t, newTestModule(b.Bytes(), nil, "x"))
	if res.Status != StatusPartial {
		t.Errorf("status = %s, want partial", res.Status)
	}
	if !errors.Is(res.Err, ErrUnknownOpcode) {
		t.Errorf("err = %v, want ErrUnknownOpcode", res.Err)
	}
	if res.Steps != 3 {
		t.Errorf("steps = %d, want 3", res.Steps)
	}
	if rt.Global(0).I != 5 {
		t.Errorf("x = %v, want 5 (applied before the failure)", rt.Global(0))
	}
	if rt.State() != StateHalted {
		t.Errorf("state = %s, want halted", rt.State())
	}
}

func TestRuntimeFailureOnFirstInstruction(t *testing.T) {
	_, res := runMain(t, newTestModule([]byte{0xEE}, nil))
	if res.Status != StatusFailure {
		t.Errorf("status = %s, want failure", res.Status)
	}

	_, res = runMain(t, newTestModule([]byte{byte(OpPushInt32), 0x01}, nil))
	if res.Status != StatusFailure || !errors.Is(res.Err, ErrTruncatedOperand) {
		t.Errorf("truncated operand: %v", res)
	}
}

func TestRuntimeUnsupportedOpcode(t *testing.T) {
	for _, op := range []Opcode{OpStrSubstr, OpStrFormat, OpArrNew, OpArrLen} {
		_, res := runMain(t, newTestModule([]byte{byte(OpNOP), byte(op)}, nil))
		if res.Status != StatusPartial || !errors.Is(res.Err, ErrUnsupportedOpcode) {
			t.Errorf("%s: %v, want partial ErrUnsupportedOpcode", op, res)
		}
	}
}

func TestRuntimeStepLimit(t *testing.T) {
	b := NewBytecodeBuilder()
	start := b.MarkedLabel()
	b.EmitJump(OpJump, start)

	rt := NewRuntime(newTestModule(b.Bytes(), nil))
	rt.SetStepLimit(50)
	res := rt.Execute(0)
	if res.Status != StatusSuccess || res.Err != nil {
		t.Errorf("result = %v, want success without error", res)
	}
	if !res.Truncated || res.Steps != 50 {
		t.Errorf("truncated = %v steps = %d, want true 50", res.Truncated, res.Steps)
	}

	rt.SetStepLimit(0)
	if rt.StepLimit() != DefaultStepLimit {
		t.Errorf("StepLimit = %d, want %d", rt.StepLimit(), DefaultStepLimit)
	}
	if res := rt.Execute(0); res.Steps != DefaultStepLimit {
		t.Errorf("steps = %d, want %d", res.Steps, DefaultStepLimit)
	}
}

func TestRuntimeHalt(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 1)
	b.EmitUint16(OpStoreGlobal, 0)
	b.Emit(OpHalt)
	emitPushInt(b, 2)
	b.EmitUint16(OpStoreGlobal, 0)

	rt, res := runMain(t, newTestModule(b.Bytes(), nil, "x"))
	if !res.OK() || res.Steps != 3 {
		t.Errorf("result = %v, want success after 3 steps", res)
	}
	if rt.Global(0).I != 1 {
		t.Errorf("x = %v, want 1", rt.Global(0))
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func counterModule() *Module {
	b := NewBytecodeBuilder()
	b.EmitUint16(OpLoadGlobal, 0)
	b.Emit(OpInc)
	b.EmitUint16(OpStoreGlobal, 0)
	b.Emit(OpReturn)
	m := newTestModule(b.Bytes(), nil, "count")
	m.Bindings = []EventBinding{{ComponentID: 7, Event: EventClick, FunctionIndex: 0}}
	return m
}

func TestRuntimeDispatch(t *testing.T) {
	rt := NewRuntime(counterModule())
	res := rt.Dispatch(7, EventClick)
	if !res.OK() || !res.Handled {
		t.Fatalf("result = %v", res)
	}
	if rt.Global(0).I != 1 {
		t.Errorf("count = %v, want 1", rt.Global(0))
	}
}

func TestRuntimeDispatchNoMatch(t *testing.T) {
	rt := NewRuntime(counterModule())
	before := rt.Globals()

	for _, ev := range []struct {
		comp  uint32
		event EventType
	}{{42, EventClick}, {7, EventChange}} {
		res := rt.Dispatch(ev.comp, ev.event)
		if res.Handled || res.Steps != 0 || res.Status != StatusSuccess {
			t.Errorf("Dispatch(%d, %s) = %v, want unhandled with no steps", ev.comp, ev.event, res)
		}
	}
	if rt.Steps() != 0 {
		t.Errorf("Steps() = %d, want 0", rt.Steps())
	}
	after := rt.Globals()
	for i := range before {
		if !before[i].Equal(after[i]) {
			t.Errorf("global %d changed: %v -> %v", i, before[i], after[i])
		}
	}
}

func TestRuntimeRunEntry(t *testing.T) {
	m := counterModule()
	rt := NewRuntime(m)
	if res := rt.Run(); !res.OK() || res.Steps != 0 {
		t.Errorf("Run without entry = %v", res)
	}
	m.Header.EntryFunction = 0
	if res := rt.Run(); !res.OK() || rt.Global(0).I != 1 {
		t.Errorf("Run = %v, count = %v", res, rt.Global(0))
	}
	if res := rt.ExecuteByName("nope"); !errors.Is(res.Err, ErrInvalidFunction) {
		t.Errorf("ExecuteByName(nope) = %v", res)
	}
}

// ---------------------------------------------------------------------------
// Natives and strings
// ---------------------------------------------------------------------------

func TestRuntimeNatives(t *testing.T) {
	strs := []string{"abs", "print", "hi", "max"}
	b := NewBytecodeBuilder()
	emitPushInt(b, -3)
	b.EmitCallNative(0, 1)
	b.EmitUint16(OpStoreGlobal, 0)
	b.EmitUint16(OpPushStr, 2)
	b.EmitUint16(OpLoadGlobal, 0)
	b.EmitCallNative(1, 2)
	b.Emit(OpPOP)
	emitPushInt(b, 4)
	emitPushInt(b, 9)
	emitPushInt(b, -2)
	b.EmitCallNative(3, 3)
	b.Emit(OpReturnValue)

	rt := NewRuntime(newTestModule(b.Bytes(), strs, "a"))
	var out bytes.Buffer
	rt.SetOutput(&out)
	res := rt.Execute(0)
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if rt.Global(0).I != 3 {
		t.Errorf("abs(-3) = %v, want 3", rt.Global(0))
	}
	if out.String() != "hi 3\n" {
		t.Errorf("print output = %q, want %q", out.String(), "hi 3\n")
	}
	if res.Value.I != 9 {
		t.Errorf("max = %v, want 9", res.Value)
	}
}

func TestRuntimeUnknownNative(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 1)
	emitPushInt(b, 2)
	b.EmitCallNative(0, 2)
	b.Emit(OpReturnValue)

	_, res := runMain(t, newTestModule(b.Bytes(), []string{"nosuch"}))
	if !res.OK() || !res.Value.IsNull() {
		t.Errorf("result = %v, want success with null", res)
	}
}

func TestRuntimeNativeError(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpNOP)
	b.EmitCallNative(0, 0)
	b.Emit(OpReturn)

	_, res := runMain(t, newTestModule(b.Bytes(), []string{"min"}))
	if res.Status != StatusPartial || res.Err == nil {
		t.Errorf("result = %v, want partial with error", res)
	}
}

func TestRuntimeCustomNative(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, 20)
	b.EmitCallNative(0, 1)
	b.Emit(OpReturnValue)

	rt := NewRuntime(newTestModule(b.Bytes(), []string{"double"}))
	rt.Natives().Register("double", func(_ *Runtime, args []Value) (Value, error) {
		return Int(args[0].I * 2), nil
	})
	if res := rt.Execute(0); res.Value.I != 40 {
		t.Errorf("double(20) = %v, want 40", res)
	}
}

func TestRuntimeSetNatives(t *testing.T) {
	b := NewBytecodeBuilder()
	emitPushInt(b, -5)
	b.EmitCallNative(0, 1)
	b.Emit(OpReturnValue)
	m := newTestModule(b.Bytes(), []string{"abs"})

	custom := NewNatives()
	custom.Register("abs", func(_ *Runtime, args []Value) (Value, error) {
		return Int(100), nil
	})

	tests := []struct {
		name    string
		natives *Natives
		want    Value
	}{
		{"default", DefaultNatives(), Int(5)},
		{"replaced", custom, Int(100)},
		{"nil clears", nil, Null},
	}
	for _, tt := range tests {
		rt := NewRuntime(m)
		rt.SetNatives(tt.natives)
		res := rt.Execute(0)
		if !res.OK() || !res.Value.Equal(tt.want) {
			t.Errorf("%s: result = %v, want %v", tt.name, res, tt.want)
		}
		if tt.natives == nil && len(rt.Natives().Names()) != 0 {
			t.Errorf("%s: natives = %v, want none", tt.name, rt.Natives().Names())
		}
	}
}

func TestRuntimeStringOps(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitUint16(OpPushStr, 0)
	emitPushInt(b, 42)
	b.Emit(OpStrConcat)
	b.Emit(OpDUP)
	b.EmitUint16(OpStoreGlobal, 0)
	b.Emit(OpStrLen)
	b.Emit(OpReturnValue)

	rt, res := runMain(t, newTestModule(b.Bytes(), []string{"héllo "}, "s"))
	if !rt.Global(0).Equal(String("héllo 42")) {
		t.Errorf("concat = %v", rt.Global(0))
	}
	if res.Value.I != 8 {
		t.Errorf("len = %v, want 8", res.Value)
	}
}

// ---------------------------------------------------------------------------
// UI host
// ---------------------------------------------------------------------------

type recordingHost struct {
	text    map[uint32]string
	visible map[uint32]bool
	props   map[PropertyID]Value
	added   [][2]uint32
}

func newRecordingHost() *recordingHost {
	return &recordingHost{
		text:    map[uint32]string{},
		visible: map[uint32]bool{},
		props:   map[PropertyID]Value{},
	}
}

func (h *recordingHost) SetText(c uint32, s string) error { h.text[c] = s; return nil }
func (h *recordingHost) SetVisible(c uint32, v bool) error {
	h.visible[c] = v
	return nil
}
func (h *recordingHost) SetProperty(_ uint32, p PropertyID, v Value) error {
	h.props[p] = v
	return nil
}
func (h *recordingHost) Property(_ uint32, p PropertyID) (Value, error) {
	v, ok := h.props[p]
	if !ok {
		return Null, errors.New("unset")
	}
	return v, nil
}
func (h *recordingHost) AddChild(p, c uint32) error {
	h.added = append(h.added, [2]uint32{p, c})
	return nil
}
func (h *recordingHost) RemoveChild(uint32, uint32) error { return nil }

func TestRuntimeHostOps(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitUint32(OpGetComp, 3)
	b.EmitUint16(OpPushStr, 0)
	b.Emit(OpSetText)
	b.EmitUint32(OpGetComp, 3)
	b.Emit(OpPushFalse)
	b.Emit(OpSetVisible)
	b.EmitUint32(OpGetComp, 3)
	emitPushInt(b, 12)
	b.EmitUint16(OpSetProp, uint16(PropFontSize))
	b.EmitUint32(OpGetComp, 1)
	b.EmitUint32(OpGetComp, 3)
	b.Emit(OpAddChild)
	b.EmitUint32(OpGetComp, 3)
	b.EmitUint16(OpGetProp, uint16(PropFontSize))
	b.Emit(OpReturnValue)

	host := newRecordingHost()
	rt := NewRuntime(newTestModule(b.Bytes(), []string{"Hello"}))
	rt.SetHost(host)
	res := rt.Execute(0)
	if !res.OK() {
		t.Fatalf("result = %v", res)
	}
	if host.text[3] != "Hello" {
		t.Errorf("text = %q, want Hello", host.text[3])
	}
	if v, ok := host.visible[3]; !ok || v {
		t.Errorf("visible = %v, %v, want false", v, ok)
	}
	if len(host.added) != 1 || host.added[0] != [2]uint32{1, 3} {
		t.Errorf("added = %v", host.added)
	}
	if res.Value.I != 12 {
		t.Errorf("GET_PROP = %v, want 12", res.Value)
	}
	if !rt.NeedsRedraw() {
		t.Error("UI ops should request a redraw")
	}
	rt.ClearRedraw()
	if rt.NeedsRedraw() {
		t.Error("ClearRedraw should reset the flag")
	}
}

func TestRuntimeHostErrorsDoNotStop(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitUint32(OpGetComp, 3)
	b.EmitUint16(OpGetProp, uint16(PropOpacity))
	b.Emit(OpReturnValue)

	rt := NewRuntime(newTestModule(b.Bytes(), nil))
	rt.SetHost(newRecordingHost())
	res := rt.Execute(0)
	if !res.OK() || !res.Value.IsNull() {
		t.Errorf("result = %v, want success with null", res)
	}
}
