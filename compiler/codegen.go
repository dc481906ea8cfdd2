package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/kryon/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Compiler lowers functions to one shared code segment. Jump operands are
// absolute offsets into that segment.
type Compiler struct {
	builder *vm.BytecodeBuilder
	strings *StringTable
	globals *GlobalTable

	// Current function context
	function string
	locals   map[string]int // param name -> local slot
	loops    []loop
	errors   []string
}

// loop holds the jump targets of an enclosing while statement.
type loop struct {
	start *vm.Label // condition
	exit  *vm.Label
}

// NewCompiler creates a compiler with empty string and global tables.
func NewCompiler() *Compiler {
	return &Compiler{
		builder: vm.NewBytecodeBuilder(),
		strings: NewStringTable(),
		globals: NewGlobalTable(),
	}
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

// Strings returns the compiler's string table.
func (c *Compiler) Strings() *StringTable {
	return c.strings
}

// Globals returns the compiler's global table.
func (c *Compiler) Globals() *GlobalTable {
	return c.globals
}

// Code returns the code emitted so far.
func (c *Compiler) Code() []byte {
	return c.builder.Bytes()
}

// errorf records a compilation error, prefixed with the current function.
func (c *Compiler) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if c.function != "" {
		msg = c.function + ": " + msg
	}
	c.errors = append(c.errors, msg)
}

// CompileFunction appends fn to the code segment and returns its
// descriptor. A trailing RET is emitted unless the body already ends with
// a return.
func (c *Compiler) CompileFunction(fn *Function) vm.Function {
	c.function = fn.Name
	defer func() { c.function = "" }()

	c.locals = make(map[string]int, len(fn.Params))
	c.loops = nil
	if len(fn.Params) > math.MaxUint8 {
		c.errorf("too many parameters (%d)", len(fn.Params))
	}
	for i, p := range fn.Params {
		c.locals[p] = i
	}

	start := c.builder.Len()
	c.compileStatements(fn.Body)
	if !endsWithReturn(fn.Body) {
		c.builder.Emit(vm.OpReturn)
	}

	return vm.Function{
		Name:       fn.Name,
		CodeOffset: uint32(start),
		CodeSize:   uint32(c.builder.Len() - start),
		ParamCount: uint8(min(len(fn.Params), math.MaxUint8)),
	}
}

func endsWithReturn(stmts []Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	_, ok := stmts[len(stmts)-1].(*Return)
	return ok
}

// ---------------------------------------------------------------------------
// Statement compilation
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *Assign:
		c.compileExpr(s.Value)
		c.emitStore(s.Target)
	case *CompoundAssign:
		c.compileCompoundAssign(s)
	case *If:
		c.compileIf(s)
	case *While:
		c.compileWhile(s)
	case *CallStmt:
		c.compileCall(s.Call)
		c.builder.Emit(vm.OpPOP)
	case *Return:
		if s.Value == nil {
			c.builder.Emit(vm.OpReturn)
			return
		}
		c.compileExpr(s.Value)
		c.builder.Emit(vm.OpReturnValue)
	case *Break:
		if len(c.loops) == 0 {
			c.errorf("break outside loop")
			return
		}
		c.builder.EmitJump(vm.OpJump, c.loops[len(c.loops)-1].exit)
	case *Continue:
		if len(c.loops) == 0 {
			c.errorf("continue outside loop")
			return
		}
		c.builder.EmitJump(vm.OpJump, c.loops[len(c.loops)-1].start)
	case nil:
		c.errorf("nil statement")
	default:
		c.errorf("unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileCompoundAssign(s *CompoundAssign) {
	var op vm.Opcode
	switch s.Op {
	case OpAdd:
		op = vm.OpAdd
	case OpSub:
		op = vm.OpSub
	case OpMul:
		op = vm.OpMul
	case OpDiv:
		op = vm.OpDiv
	default:
		c.errorf("unsupported compound assignment %s= to %s", s.Op, s.Target)
		return
	}
	c.emitLoad(s.Target)
	c.compileExpr(s.Value)
	c.builder.Emit(op)
	c.emitStore(s.Target)
}

// compileIf emits:
//
//	cond; JMP_IF_NOT else; then; [JMP end; else: else-branch;] end:
func (c *Compiler) compileIf(s *If) {
	c.compileExpr(s.Cond)
	elseLabel := c.builder.NewLabel()
	c.builder.EmitJump(vm.OpJumpIfNot, elseLabel)
	c.compileStatements(s.Then)

	if len(s.Else) == 0 {
		c.builder.Mark(elseLabel)
		return
	}
	endLabel := c.builder.NewLabel()
	c.builder.EmitJump(vm.OpJump, endLabel)
	c.builder.Mark(elseLabel)
	c.compileStatements(s.Else)
	c.builder.Mark(endLabel)
}

// compileWhile emits:
//
//	start: cond; JMP_IF_NOT exit; body; JMP start; exit:
func (c *Compiler) compileWhile(s *While) {
	start := c.builder.MarkedLabel()
	exit := c.builder.NewLabel()

	c.compileExpr(s.Cond)
	c.builder.EmitJump(vm.OpJumpIfNot, exit)

	c.loops = append(c.loops, loop{start: start, exit: exit})
	c.compileStatements(s.Body)
	c.loops = c.loops[:len(c.loops)-1]

	c.builder.EmitJump(vm.OpJump, start)
	c.builder.Mark(exit)
}

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

var binaryOpcodes = [...]vm.Opcode{
	OpAdd:    vm.OpAdd,
	OpSub:    vm.OpSub,
	OpMul:    vm.OpMul,
	OpDiv:    vm.OpDiv,
	OpMod:    vm.OpMod,
	OpEq:     vm.OpEQ,
	OpNeq:    vm.OpNE,
	OpLt:     vm.OpLT,
	OpLte:    vm.OpLE,
	OpGt:     vm.OpGT,
	OpGte:    vm.OpGE,
	OpAnd:    vm.OpAnd,
	OpOr:     vm.OpOr,
	OpConcat: vm.OpStrConcat,
}

func (c *Compiler) compileExpr(expr Expr) {
	switch e := expr.(type) {
	case *IntLiteral:
		c.emitInt(e.Value)
	case *FloatLiteral:
		c.builder.EmitFloat32(vm.OpPushFloat, float32(e.Value))
	case *StringLiteral:
		c.emitString(e.Value)
	case *BoolLiteral:
		if e.Value {
			c.builder.Emit(vm.OpPushTrue)
		} else {
			c.builder.Emit(vm.OpPushFalse)
		}
	case *NullLiteral:
		c.builder.Emit(vm.OpPushNull)
	case *Variable:
		c.emitLoad(e.Name)
	case *BinaryExpr:
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		if e.Op < 0 || int(e.Op) >= len(binaryOpcodes) {
			c.errorf("unsupported binary operator %s", e.Op)
			return
		}
		c.builder.Emit(binaryOpcodes[e.Op])
	case *UnaryExpr:
		c.compileExpr(e.Operand)
		switch e.Op {
		case OpNeg:
			c.builder.Emit(vm.OpNeg)
		case OpNot:
			c.builder.Emit(vm.OpNot)
		default:
			c.errorf("unsupported unary operator %s", e.Op)
		}
	case *TernaryExpr:
		c.compileTernary(e)
	case *CallExpr:
		c.compileCall(e)
	case nil:
		c.errorf("nil expression")
	default:
		c.errorf("unsupported expression %T", expr)
	}
}

func (c *Compiler) compileTernary(e *TernaryExpr) {
	c.compileExpr(e.Cond)
	elseLabel := c.builder.NewLabel()
	endLabel := c.builder.NewLabel()
	c.builder.EmitJump(vm.OpJumpIfNot, elseLabel)
	c.compileExpr(e.Then)
	c.builder.EmitJump(vm.OpJump, endLabel)
	c.builder.Mark(elseLabel)
	c.compileExpr(e.Else)
	c.builder.Mark(endLabel)
}

// compileCall pushes the arguments left to right and calls the native
// function by name. The call always leaves one value on the stack.
func (c *Compiler) compileCall(e *CallExpr) {
	if e == nil {
		c.errorf("nil call")
		return
	}
	if in, ok := uiIntrinsics[e.Function]; ok {
		c.compileIntrinsic(e, in)
		return
	}
	for _, arg := range e.Args {
		c.compileExpr(arg)
	}
	if len(e.Args) > math.MaxUint8 {
		c.errorf("call to %s: too many arguments (%d)", e.Function, len(e.Args))
		return
	}
	idx, ok := c.strings.Intern(e.Function)
	if !ok {
		c.errorf("string table full")
		return
	}
	c.builder.EmitCallNative(idx, uint8(len(e.Args)))
}

// emitInt pushes v with the narrowest integer width that holds it.
func (c *Compiler) emitInt(v int64) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		c.builder.EmitInt8(vm.OpPushInt8, int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		c.builder.EmitInt16(vm.OpPushInt16, int16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		c.builder.EmitInt32(vm.OpPushInt32, int32(v))
	default:
		c.builder.EmitInt64(vm.OpPushInt64, v)
	}
}

func (c *Compiler) emitString(s string) {
	idx, ok := c.strings.Intern(s)
	if !ok {
		c.errorf("string table full")
		return
	}
	c.builder.EmitUint16(vm.OpPushStr, idx)
}

func (c *Compiler) emitLoad(name string) {
	if slot, ok := c.locals[name]; ok {
		c.builder.EmitByte(vm.OpLoadLocal, byte(slot))
		return
	}
	slot, ok := c.globals.Slot(name)
	if !ok {
		c.errorf("too many globals at %q", name)
		return
	}
	c.builder.EmitUint16(vm.OpLoadGlobal, slot)
}

func (c *Compiler) emitStore(name string) {
	if slot, ok := c.locals[name]; ok {
		c.builder.EmitByte(vm.OpStoreLocal, byte(slot))
		return
	}
	slot, ok := c.globals.Slot(name)
	if !ok {
		c.errorf("too many globals at %q", name)
		return
	}
	c.builder.EmitUint16(vm.OpStoreGlobal, slot)
}
