package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// These are stripped-down parallels of compiler/ast.go with positional
// parameter slots instead of parameter names. Two functions that differ
// only in parameter names produce identical hashing ASTs.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

// ---------------------------------------------------------------------------
// Literal and reference nodes
// ---------------------------------------------------------------------------

type HIntLiteral struct{ Value int64 }
type HFloatLiteral struct{ Value float64 }
type HStringLiteral struct{ Value string }
type HBoolLiteral struct{ Value bool }
type HNullLiteral struct{}

// HLocalRef is a parameter reference by slot.
type HLocalRef struct{ Slot uint16 }

// HGlobalRef is a reactive variable reference by name. Globals are shared
// across functions, so their names are part of the meaning.
type HGlobalRef struct{ Name string }

func (*HIntLiteral) hnode()    {}
func (*HFloatLiteral) hnode()  {}
func (*HStringLiteral) hnode() {}
func (*HBoolLiteral) hnode()   {}
func (*HNullLiteral) hnode()   {}
func (*HLocalRef) hnode()      {}
func (*HGlobalRef) hnode()     {}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

type HBinary struct {
	Op    string
	Left  HNode
	Right HNode
}

type HUnary struct {
	Op      string
	Operand HNode
}

type HTernary struct {
	Cond HNode
	Then HNode
	Else HNode
}

type HCall struct {
	Function string
	Args     []HNode
}

func (*HBinary) hnode()  {}
func (*HUnary) hnode()   {}
func (*HTernary) hnode() {}
func (*HCall) hnode()    {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// HAssign stores Value into Target, an HLocalRef or HGlobalRef.
type HAssign struct {
	Target HNode
	Value  HNode
}

type HCompoundAssign struct {
	Op     string
	Target HNode
	Value  HNode
}

type HIf struct {
	Cond HNode
	Then []HNode
	Else []HNode
}

type HWhile struct {
	Cond HNode
	Body []HNode
}

type HCallStmt struct{ Call *HCall }

// HReturn has a nil Value for a bare return.
type HReturn struct{ Value HNode }

type HBreak struct{}
type HContinue struct{}

func (*HAssign) hnode()         {}
func (*HCompoundAssign) hnode() {}
func (*HIf) hnode()             {}
func (*HWhile) hnode()          {}
func (*HCallStmt) hnode()       {}
func (*HReturn) hnode()         {}
func (*HBreak) hnode()          {}
func (*HContinue) hnode()       {}

// ---------------------------------------------------------------------------
// Structure nodes
// ---------------------------------------------------------------------------

// HFunction is a normalized function. The name is kept because bindings
// and the entry point refer to functions by name.
type HFunction struct {
	Name  string
	Arity int
	Body  []HNode
}

type HBinding struct {
	ComponentID uint32
	Event       string
	Handler     string
}

type HVariable struct {
	Name    string
	Type    string
	Initial HNode // nil when zero-initialised
}

// HProgram is a whole normalized program. UI is hashed as opaque bytes.
type HProgram struct {
	Variables []*HVariable
	Functions []*HFunction
	Bindings  []*HBinding
	UI        []byte
}

func (*HFunction) hnode() {}
func (*HBinding) hnode()  {}
func (*HVariable) hnode() {}
func (*HProgram) hnode()  {}
