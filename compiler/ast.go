package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: reactive logic expressions and statements
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes. The set is closed: only the
// types in this file implement it.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	Value int64
}

func (n *IntLiteral) node() {}
func (n *IntLiteral) expr() {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	Value float64
}

func (n *FloatLiteral) node() {}
func (n *FloatLiteral) expr() {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	Value string
}

func (n *StringLiteral) node() {}
func (n *StringLiteral) expr() {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	Value bool
}

func (n *BoolLiteral) node() {}
func (n *BoolLiteral) expr() {}

// NullLiteral represents null.
type NullLiteral struct{}

func (n *NullLiteral) node() {}
func (n *NullLiteral) expr() {}

// Variable references a reactive variable by name. Scoped names
// ("Counter:value") are kept whole.
type Variable struct {
	Name string
}

func (n *Variable) node() {}
func (n *Variable) expr() {}

// BinaryExpr applies a binary operator. Both operands are always evaluated.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *BinaryExpr) node() {}
func (n *BinaryExpr) expr() {}

// UnaryExpr applies a unary operator.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) node() {}
func (n *UnaryExpr) expr() {}

// TernaryExpr evaluates Cond and then exactly one of Then or Else.
type TernaryExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (n *TernaryExpr) node() {}
func (n *TernaryExpr) expr() {}

// CallExpr calls a native function by name.
type CallExpr struct {
	Function string
	Args     []Expr
}

func (n *CallExpr) node() {}
func (n *CallExpr) expr() {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes. The set is closed.
type Stmt interface {
	Node
	stmt() // marker method
}

// Assign stores Value into Target.
type Assign struct {
	Target string
	Value  Expr
}

func (n *Assign) node() {}
func (n *Assign) stmt() {}

// CompoundAssign is Target op= Value. Op is one of OpAdd, OpSub, OpMul,
// OpDiv.
type CompoundAssign struct {
	Op     BinaryOp
	Target string
	Value  Expr
}

func (n *CompoundAssign) node() {}
func (n *CompoundAssign) stmt() {}

// If runs Then when Cond is truthy, otherwise Else (which may be empty).
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (n *If) node() {}
func (n *If) stmt() {}

// While runs Body while Cond is truthy.
type While struct {
	Cond Expr
	Body []Stmt
}

func (n *While) node() {}
func (n *While) stmt() {}

// CallStmt calls a native function and discards its result.
type CallStmt struct {
	Call *CallExpr
}

func (n *CallStmt) node() {}
func (n *CallStmt) stmt() {}

// Return leaves the function; Value may be nil.
type Return struct {
	Value Expr
}

func (n *Return) node() {}
func (n *Return) stmt() {}

// Break exits the innermost while loop.
type Break struct{}

func (n *Break) node() {}
func (n *Break) stmt() {}

// Continue jumps to the condition of the innermost while loop.
type Continue struct{}

func (n *Continue) node() {}
func (n *Continue) stmt() {}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOp identifies a binary operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpConcat
)

var binaryOpNames = [...]string{
	OpAdd:    "add",
	OpSub:    "sub",
	OpMul:    "mul",
	OpDiv:    "div",
	OpMod:    "mod",
	OpEq:     "eq",
	OpNeq:    "neq",
	OpLt:     "lt",
	OpLte:    "lte",
	OpGt:     "gt",
	OpGte:    "gte",
	OpAnd:    "and",
	OpOr:     "or",
	OpConcat: "concat",
}

func (op BinaryOp) String() string {
	if op >= 0 && int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", int(op))
}

// ParseBinaryOp maps a KIR operator name to a BinaryOp.
func ParseBinaryOp(name string) (BinaryOp, bool) {
	for i, n := range binaryOpNames {
		if n == name {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// UnaryOp identifies a unary operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "neg"
	case OpNot:
		return "not"
	default:
		return fmt.Sprintf("unop(%d)", int(op))
	}
}

// ParseUnaryOp maps a KIR operator name to a UnaryOp.
func ParseUnaryOp(name string) (UnaryOp, bool) {
	switch name {
	case "neg":
		return OpNeg, true
	case "not":
		return OpNot, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Program structure
// ---------------------------------------------------------------------------

// Function is one logic function. Params name the leading locals; a caller
// that supplies fewer arguments leaves the rest null.
type Function struct {
	Name   string
	Params []string
	Body   []Stmt
}

// Binding attaches a handler function, by name, to a component event.
type Binding struct {
	ComponentID uint32
	Event       string
	Handler     string
}

// VarDecl declares a reactive variable and its initial value. Initial is
// nil for variables initialised to zero.
type VarDecl struct {
	Name    string
	Type    string
	Initial Expr
}

// Program is everything CompileModule consumes.
type Program struct {
	Functions []*Function
	Bindings  []Binding
	Variables []VarDecl

	// UI is the already serialized component tree, embedded unchanged.
	UI []byte
}
