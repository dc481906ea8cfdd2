package vm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"unicode/utf8"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("kryon.vm")

// DefaultStepLimit bounds the instructions executed per invocation.
const DefaultStepLimit = 10000

// MaxCallDepth bounds nested CALL frames.
const MaxCallDepth = 256

var (
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	ErrJumpOutOfRange    = errors.New("jump target outside code")
	ErrCallDepth         = errors.New("call depth exceeded")
)

// ---------------------------------------------------------------------------
// CallFrame: Return state for CALL
// ---------------------------------------------------------------------------

// CallFrame records where RET resumes. Locals are addressed relative to
// StackBase, which points at the first argument.
type CallFrame struct {
	Function  int // index into the module's function table
	ReturnIP  int // absolute code offset after the CALL operand
	StackBase int
}

// State is the run state of a Runtime.
type State int

const (
	StateHalted State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "halted"
}

// ---------------------------------------------------------------------------
// Runtime: Bytecode execution engine
// ---------------------------------------------------------------------------

// Runtime executes the code of one module. It borrows the module and must
// not outlive it. A Runtime is not safe for concurrent use, and natives or
// hosts must not call back into the Runtime that invoked them.
type Runtime struct {
	module *Module
	code   []byte

	globals []Value
	stack   []Value
	frames  []CallFrame

	ip     int
	state  State
	retVal Value

	host      Host
	natives   *Natives
	out       io.Writer
	stepLimit int
	profiler  *Profiler
	debugger  *Debugger
	entry     int // function started by the current top-level invocation

	steps       int // across all invocations
	needsRedraw bool
}

// NewRuntime creates a runtime for m with globals set to their initial
// values.
func NewRuntime(m *Module) *Runtime {
	rt := &Runtime{
		module:    m,
		code:      m.Code,
		globals:   make([]Value, m.GlobalCount()),
		stack:     make([]Value, 0, 64),
		frames:    make([]CallFrame, 0, 8),
		host:      nopHost{},
		natives:   DefaultNatives(),
		out:       os.Stdout,
		stepLimit: DefaultStepLimit,
	}
	for i := range rt.globals {
		rt.globals[i] = Int(0)
	}
	for i, g := range m.Globals {
		rt.globals[i] = g.Initial
	}
	return rt
}

// Module returns the module being executed.
func (rt *Runtime) Module() *Module { return rt.module }

// SetHost sets the UI host; nil restores the discarding host.
func (rt *Runtime) SetHost(h Host) {
	if h == nil {
		h = nopHost{}
	}
	rt.host = h
}

// SetNatives replaces the native registry.
func (rt *Runtime) SetNatives(n *Natives) {
	if n == nil {
		n = NewNatives()
	}
	rt.natives = n
}

// Natives returns the native registry.
func (rt *Runtime) Natives() *Natives { return rt.natives }

// SetProfiler attaches p; nil disables profiling.
func (rt *Runtime) SetProfiler(p *Profiler) { rt.profiler = p }

// Profiler returns the attached profiler, if any.
func (rt *Runtime) Profiler() *Profiler { return rt.profiler }

// SetDebugger attaches d; nil detaches it.
func (rt *Runtime) SetDebugger(d *Debugger) { rt.debugger = d }

// Debugger returns the attached debugger, if any.
func (rt *Runtime) Debugger() *Debugger { return rt.debugger }

// SetOutput sets the writer used by the print native.
func (rt *Runtime) SetOutput(w io.Writer) { rt.out = w }

// Output returns the writer used by the print native.
func (rt *Runtime) Output() io.Writer { return rt.out }

// SetStepLimit sets the step ceiling; n <= 0 restores DefaultStepLimit.
func (rt *Runtime) SetStepLimit(n int) {
	if n <= 0 {
		n = DefaultStepLimit
	}
	rt.stepLimit = n
}

// StepLimit returns the step ceiling.
func (rt *Runtime) StepLimit() int { return rt.stepLimit }

// State returns the run state.
func (rt *Runtime) State() State { return rt.state }

// Steps returns the instructions executed over the runtime's lifetime.
func (rt *Runtime) Steps() int { return rt.steps }

// NeedsRedraw reports whether a UI opcode or REDRAW ran since ClearRedraw.
func (rt *Runtime) NeedsRedraw() bool { return rt.needsRedraw }

// ClearRedraw resets the redraw flag.
func (rt *Runtime) ClearRedraw() { rt.needsRedraw = false }

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// Global returns slot i. Out-of-range slots read as zero.
func (rt *Runtime) Global(i int) Value {
	if i < 0 || i >= len(rt.globals) {
		return Int(0)
	}
	return rt.globals[i]
}

// GlobalByName returns a global by its symbol-table name.
func (rt *Runtime) GlobalByName(name string) (Value, bool) {
	slot, ok := rt.module.GlobalSlot(name)
	if !ok {
		return Null, false
	}
	return rt.Global(slot), true
}

// SetGlobal stores v in slot i and reports whether the slot exists.
func (rt *Runtime) SetGlobal(i int, v Value) bool {
	if i < 0 || i >= len(rt.globals) {
		return false
	}
	rt.globals[i] = v
	return true
}

// Globals returns a copy of the global slots.
func (rt *Runtime) Globals() []Value {
	return append([]Value(nil), rt.globals...)
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Execute runs function fn with no arguments.
func (rt *Runtime) Execute(fn int) Result {
	return rt.Call(fn)
}

// ExecuteByName runs the named function.
func (rt *Runtime) ExecuteByName(name string) Result {
	fn, ok := rt.module.FunctionIndex(name)
	if !ok {
		return Result{Status: StatusFailure, Err: fmt.Errorf("%w: no function %q", ErrInvalidFunction, name)}
	}
	return rt.Call(fn)
}

// Call runs function fn with args as its parameters. Missing arguments are
// null and extra ones are dropped.
func (rt *Runtime) Call(fn int, args ...Value) Result {
	if fn < 0 || fn >= len(rt.module.Functions) {
		return Result{Status: StatusFailure, Err: fmt.Errorf("%w: %d", ErrInvalidFunction, fn)}
	}
	params := int(rt.module.Functions[fn].ParamCount)
	rt.stack = append(rt.stack[:0], args[:min(len(args), params)]...)
	rt.reserveParams(0, params)
	rt.entry = fn
	if rt.profiler != nil {
		rt.profiler.recordInvocation(fn)
	}
	if rt.debugger != nil {
		rt.debugger.begin()
	}
	return rt.run(int(rt.module.Functions[fn].CodeOffset))
}

// Run executes the module's entry function, if it has one.
func (rt *Runtime) Run() Result {
	entry := rt.module.Header.EntryFunction
	if entry == NoEntry {
		return Result{Status: StatusSuccess}
	}
	return rt.Execute(int(entry))
}

// Dispatch runs the function bound to (component, event). Without a binding
// nothing executes and the result has Handled == false.
func (rt *Runtime) Dispatch(component uint32, event EventType) Result {
	b, ok := rt.module.FindBinding(component, event)
	if !ok {
		log.Debugf("no binding for component %d event %s", component, event)
		return Result{Status: StatusSuccess}
	}
	return rt.Execute(int(b.FunctionIndex))
}

// ---------------------------------------------------------------------------
// Stepping loop
// ---------------------------------------------------------------------------

var errHalt = errors.New("halt")

func (rt *Runtime) run(ip int) Result {
	rt.ip = ip
	rt.frames = rt.frames[:0]
	rt.retVal = Null
	rt.state = StateRunning

	steps := 0
	for rt.state == StateRunning {
		if rt.ip >= len(rt.code) {
			rt.state = StateHalted
			break
		}
		if steps >= rt.stepLimit {
			log.Warningf("step limit %d reached at offset %d, aborting", rt.stepLimit, rt.ip)
			rt.state = StateHalted
			return Result{Status: StatusSuccess, Steps: steps, Value: Null, Handled: true, Truncated: true}
		}

		pc := rt.ip
		if rt.debugger != nil {
			if err := rt.debugger.before(rt, pc); err != nil {
				rt.state = StateHalted
				return failed(steps, fmt.Errorf("offset %d: %w", pc, err))
			}
		}
		if rt.profiler != nil {
			rt.profiler.recordStep(rt.currentFunction(), Opcode(rt.code[pc]))
		}
		err := rt.step()
		steps++
		rt.steps++
		if err != nil {
			rt.state = StateHalted
			if errors.Is(err, errHalt) {
				break
			}
			return failed(steps, fmt.Errorf("offset %d: %w", pc, err))
		}
	}

	return Result{Status: StatusSuccess, Steps: steps, Value: rt.retVal, Handled: true}
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (rt *Runtime) push(v Value) {
	rt.stack = append(rt.stack, v)
}

// pop returns null on an empty stack.
func (rt *Runtime) pop() Value {
	n := len(rt.stack)
	if n == 0 {
		return Null
	}
	v := rt.stack[n-1]
	rt.stack = rt.stack[:n-1]
	return v
}

func (rt *Runtime) top() Value {
	if len(rt.stack) == 0 {
		return Null
	}
	return rt.stack[len(rt.stack)-1]
}

// popN pops n values and returns them in push order, padding with null.
func (rt *Runtime) popN(n int) []Value {
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = rt.pop()
	}
	return args
}

func (rt *Runtime) frameBase() int {
	if len(rt.frames) == 0 {
		return 0
	}
	return rt.frames[len(rt.frames)-1].StackBase
}

// operandBase is the first stack slot above the current function's
// parameters. A CALL never takes its arguments from below it.
func (rt *Runtime) operandBase() int {
	base := rt.frameBase()
	if fn := rt.currentFunction(); fn >= 0 && fn < len(rt.module.Functions) {
		base += int(rt.module.Functions[fn].ParamCount)
	}
	return base
}

// reserveParams pads the stack with nulls so n parameter slots start at base.
func (rt *Runtime) reserveParams(base, n int) {
	for len(rt.stack) < base+n {
		rt.stack = append(rt.stack, Null)
	}
}

// ret unwinds one frame, or halts when there is none.
func (rt *Runtime) ret(v Value, hasValue bool) error {
	if len(rt.frames) == 0 {
		if hasValue {
			rt.retVal = v
		}
		return errHalt
	}
	f := rt.frames[len(rt.frames)-1]
	rt.frames = rt.frames[:len(rt.frames)-1]
	if f.StackBase <= len(rt.stack) {
		rt.stack = rt.stack[:f.StackBase]
	}
	rt.ip = f.ReturnIP
	if hasValue {
		rt.push(v)
	}
	return nil
}

func (rt *Runtime) jump(target uint32) error {
	if int64(target) >= int64(len(rt.code)) {
		return fmt.Errorf("%w: %d", ErrJumpOutOfRange, target)
	}
	rt.ip = int(target)
	return nil
}

func (rt *Runtime) hostErr(op Opcode, err error) {
	if err != nil {
		log.Warningf("%s: %s", op, err)
	}
}

// ---------------------------------------------------------------------------
// Instruction execution
// ---------------------------------------------------------------------------

// step executes the instruction at ip. It returns errHalt when the run
// should stop normally.
func (rt *Runtime) step() error {
	r := NewBytecodeReader(rt.code)
	r.Seek(rt.ip)
	op := r.ReadOpcode()

	// Decode the operand first so a truncated stream fails before any effect.
	var a, b uint32
	switch op.OperandBytes() {
	case 1:
		a = uint32(r.ReadUint8())
	case 2:
		a = uint32(r.ReadUint16())
	case 3:
		a = uint32(r.ReadUint16())
		b = uint32(r.ReadUint8())
	case 4:
		a = r.ReadUint32()
	}
	var wide int64
	if op == OpPushInt64 || op == OpPushDouble {
		wide = r.ReadInt64()
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rt.ip = r.Position()

	switch op {
	// --- Stack and constants ---
	case OpNOP:

	case OpPushNull:
		rt.push(Null)
	case OpPushTrue:
		rt.push(Bool(true))
	case OpPushFalse:
		rt.push(Bool(false))
	case OpPushInt8:
		rt.push(Int(int64(int8(a))))
	case OpPushInt16:
		rt.push(Int(int64(int16(a))))
	case OpPushInt32:
		rt.push(Int(int64(int32(a))))
	case OpPushInt64:
		rt.push(Int(wide))
	case OpPushFloat:
		rt.push(Float(math.Float32frombits(a)))
	case OpPushDouble:
		rt.push(Float(float32(math.Float64frombits(uint64(wide)))))
	case OpPushStr:
		s, _ := rt.module.String(int(a))
		rt.push(String(s))
	case OpPOP:
		rt.pop()
	case OpDUP:
		rt.push(rt.top())
	case OpSWAP:
		y, x := rt.pop(), rt.pop()
		rt.push(y)
		rt.push(x)

	// --- Variables ---
	case OpLoadLocal:
		i := rt.frameBase() + int(a)
		if i < len(rt.stack) {
			rt.push(rt.stack[i])
		} else {
			rt.push(Null)
		}
	case OpStoreLocal:
		v := rt.pop()
		if i := rt.frameBase() + int(a); i < len(rt.stack) {
			rt.stack[i] = v
		}
	case OpLoadGlobal:
		rt.push(rt.Global(int(a)))
	case OpStoreGlobal:
		rt.SetGlobal(int(a), rt.pop())

	// --- Arithmetic ---
	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		y, x := rt.pop(), rt.pop()
		rt.push(Int(arith(op, x.I, y.I)))
	case OpNeg:
		rt.push(Int(-rt.pop().I))
	case OpInc:
		rt.push(Int(rt.pop().I + 1))
	case OpDec:
		rt.push(Int(rt.pop().I - 1))
	case OpBitNot:
		rt.push(Int(^rt.pop().I))

	// --- Comparison ---
	case OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE:
		y, x := rt.pop(), rt.pop()
		rt.push(Bool(compare(op, x.I, y.I)))

	// --- Logic (both operands always evaluated) ---
	case OpAnd:
		y, x := rt.pop(), rt.pop()
		rt.push(Bool(x.I != 0 && y.I != 0))
	case OpOr:
		y, x := rt.pop(), rt.pop()
		rt.push(Bool(x.I != 0 || y.I != 0))
	case OpNot:
		rt.push(Bool(rt.pop().I == 0))

	// --- Control flow ---
	case OpJump:
		return rt.jump(a)
	case OpJumpIf:
		if rt.pop().Truthy() {
			return rt.jump(a)
		}
	case OpJumpIfNot:
		if !rt.pop().Truthy() {
			return rt.jump(a)
		}
	case OpCall:
		return rt.call(int(a))
	case OpCallNative:
		return rt.callNative(uint16(a), int(b))
	case OpReturn:
		return rt.ret(Null, false)
	case OpReturnValue:
		return rt.ret(rt.pop(), true)

	// --- UI ---
	case OpGetComp:
		rt.push(Int(int64(a)))
	case OpSetProp:
		v, c := rt.pop(), rt.pop()
		rt.hostErr(op, rt.host.SetProperty(uint32(c.I), PropertyID(a), v))
		rt.needsRedraw = true
	case OpGetProp:
		c := rt.pop()
		v, err := rt.host.Property(uint32(c.I), PropertyID(a))
		rt.hostErr(op, err)
		rt.push(v)
	case OpSetText:
		text, c := rt.pop(), rt.pop()
		rt.hostErr(op, rt.host.SetText(uint32(c.I), text.Text()))
		rt.needsRedraw = true
	case OpSetVisible:
		flag, c := rt.pop(), rt.pop()
		rt.hostErr(op, rt.host.SetVisible(uint32(c.I), flag.Truthy()))
		rt.needsRedraw = true
	case OpAddChild:
		child, parent := rt.pop(), rt.pop()
		rt.hostErr(op, rt.host.AddChild(uint32(parent.I), uint32(child.I)))
		rt.needsRedraw = true
	case OpRemoveChild:
		child, parent := rt.pop(), rt.pop()
		rt.hostErr(op, rt.host.RemoveChild(uint32(parent.I), uint32(child.I)))
		rt.needsRedraw = true
	case OpRedraw:
		rt.needsRedraw = true

	// --- Strings ---
	case OpStrConcat:
		y, x := rt.pop(), rt.pop()
		rt.push(String(x.Text() + y.Text()))
	case OpStrLen:
		v := rt.pop()
		rt.push(Int(int64(utf8.RuneCountInString(v.Text()))))
	case OpStrSubstr, OpStrFormat,
		OpArrNew, OpArrGet, OpArrSet, OpArrPush, OpArrPop, OpArrLen:
		return fmt.Errorf("%w: %s", ErrUnsupportedOpcode, op)

	// --- Debug ---
	case OpDebugPrint:
		log.Noticef("debug: %s", rt.top().Format())
	case OpDebugBreak:
		log.Debugf("break at offset %d, stack depth %d", rt.ip-1, len(rt.stack))
	case OpHalt:
		return errHalt

	default:
		log.Errorf("unknown opcode 0x%02X at offset %d", byte(op), rt.ip-1)
		return fmt.Errorf("%w 0x%02X", ErrUnknownOpcode, byte(op))
	}
	return nil
}

func (rt *Runtime) call(fn int) error {
	if fn >= len(rt.module.Functions) {
		return fmt.Errorf("%w: %d", ErrInvalidFunction, fn)
	}
	if len(rt.frames) >= MaxCallDepth {
		return fmt.Errorf("%w (%d)", ErrCallDepth, MaxCallDepth)
	}
	f := rt.module.Functions[fn]
	base := max(len(rt.stack)-int(f.ParamCount), rt.operandBase())
	rt.reserveParams(base, int(f.ParamCount))
	rt.frames = append(rt.frames, CallFrame{Function: fn, ReturnIP: rt.ip, StackBase: base})
	rt.ip = int(f.CodeOffset)
	if rt.profiler != nil {
		rt.profiler.recordInvocation(fn)
	}
	return nil
}

// currentFunction is the innermost executing function.
func (rt *Runtime) currentFunction() int {
	if len(rt.frames) == 0 {
		return rt.entry
	}
	return rt.frames[len(rt.frames)-1].Function
}

func (rt *Runtime) callNative(nameIdx uint16, argc int) error {
	args := rt.popN(argc)
	name, _ := rt.module.String(int(nameIdx))
	fn, ok := rt.natives.Lookup(name)
	if !ok {
		log.Warningf("unknown native %q with %d args", name, argc)
		rt.push(Null)
		return nil
	}
	v, err := fn(rt, args)
	if err != nil {
		return fmt.Errorf("native %s: %w", name, err)
	}
	rt.push(v)
	return nil
}

// arith applies a binary integer opcode. Division and modulo by zero yield 0.
func arith(op Opcode, x, y int64) int64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	case OpDiv:
		if y == 0 {
			return 0
		}
		return x / y
	case OpMod:
		if y == 0 {
			return 0
		}
		return x % y
	case OpBitAnd:
		return x & y
	case OpBitOr:
		return x | y
	case OpBitXor:
		return x ^ y
	case OpShl:
		return x << (uint64(y) & 63)
	case OpShr:
		return x >> (uint64(y) & 63)
	}
	return 0
}

func compare(op Opcode, x, y int64) bool {
	switch op {
	case OpEQ:
		return x == y
	case OpNE:
		return x != y
	case OpLT:
		return x < y
	case OpLE:
		return x <= y
	case OpGT:
		return x > y
	case OpGE:
		return x >= y
	}
	return false
}
