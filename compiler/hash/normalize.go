package hash

import (
	"github.com/chazu/kryon/compiler"
)

// ---------------------------------------------------------------------------
// AST Normalization: compiler AST → frozen hashing AST
//
// Walks the compiler's AST and produces the frozen hashing AST with
// positional slots for parameters and names for globals.
// ---------------------------------------------------------------------------

// normalizer holds state for the normalization walk.
type normalizer struct {
	params map[string]uint16 // parameter name → slot index
}

// NormalizeFunction transforms a compiler Function into a frozen HFunction.
func NormalizeFunction(fn *compiler.Function) *HFunction {
	n := &normalizer{params: make(map[string]uint16, len(fn.Params))}
	for i, p := range fn.Params {
		n.params[p] = uint16(i)
	}
	return &HFunction{
		Name:  fn.Name,
		Arity: len(fn.Params),
		Body:  n.normalizeStmts(fn.Body),
	}
}

// NormalizeProgram transforms a whole program. Order is preserved
// everywhere: variable order decides global slots and function order
// decides function indices.
func NormalizeProgram(p *compiler.Program) *HProgram {
	hp := &HProgram{UI: p.UI}
	n := &normalizer{}
	for _, v := range p.Variables {
		hv := &HVariable{Name: v.Name, Type: v.Type}
		if v.Initial != nil {
			hv.Initial = n.normalizeExpr(v.Initial)
		}
		hp.Variables = append(hp.Variables, hv)
	}
	for _, fn := range p.Functions {
		hp.Functions = append(hp.Functions, NormalizeFunction(fn))
	}
	for _, b := range p.Bindings {
		hp.Bindings = append(hp.Bindings, &HBinding{
			ComponentID: b.ComponentID,
			Event:       b.Event,
			Handler:     b.Handler,
		})
	}
	return hp
}

// ---------------------------------------------------------------------------
// Statement normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeStmts(stmts []compiler.Stmt) []HNode {
	out := make([]HNode, len(stmts))
	for i, s := range stmts {
		out[i] = n.normalizeStmt(s)
	}
	return out
}

func (n *normalizer) normalizeStmt(stmt compiler.Stmt) HNode {
	switch s := stmt.(type) {
	case *compiler.Assign:
		return &HAssign{Target: n.resolveVariable(s.Target), Value: n.normalizeExpr(s.Value)}
	case *compiler.CompoundAssign:
		return &HCompoundAssign{
			Op:     s.Op.String(),
			Target: n.resolveVariable(s.Target),
			Value:  n.normalizeExpr(s.Value),
		}
	case *compiler.If:
		return &HIf{
			Cond: n.normalizeExpr(s.Cond),
			Then: n.normalizeStmts(s.Then),
			Else: n.normalizeStmts(s.Else),
		}
	case *compiler.While:
		return &HWhile{Cond: n.normalizeExpr(s.Cond), Body: n.normalizeStmts(s.Body)}
	case *compiler.CallStmt:
		return &HCallStmt{Call: n.normalizeCall(s.Call)}
	case *compiler.Return:
		if s.Value == nil {
			return &HReturn{}
		}
		return &HReturn{Value: n.normalizeExpr(s.Value)}
	case *compiler.Break:
		return &HBreak{}
	case *compiler.Continue:
		return &HContinue{}
	default:
		// unknown statement type
		return &HNullLiteral{}
	}
}

// ---------------------------------------------------------------------------
// Expression normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeExpr(expr compiler.Expr) HNode {
	switch e := expr.(type) {
	case *compiler.IntLiteral:
		return &HIntLiteral{Value: e.Value}
	case *compiler.FloatLiteral:
		return &HFloatLiteral{Value: e.Value}
	case *compiler.StringLiteral:
		return &HStringLiteral{Value: e.Value}
	case *compiler.BoolLiteral:
		return &HBoolLiteral{Value: e.Value}
	case *compiler.NullLiteral:
		return &HNullLiteral{}
	case *compiler.Variable:
		return n.resolveVariable(e.Name)
	case *compiler.BinaryExpr:
		return &HBinary{
			Op:    e.Op.String(),
			Left:  n.normalizeExpr(e.Left),
			Right: n.normalizeExpr(e.Right),
		}
	case *compiler.UnaryExpr:
		return &HUnary{Op: e.Op.String(), Operand: n.normalizeExpr(e.Operand)}
	case *compiler.TernaryExpr:
		return &HTernary{
			Cond: n.normalizeExpr(e.Cond),
			Then: n.normalizeExpr(e.Then),
			Else: n.normalizeExpr(e.Else),
		}
	case *compiler.CallExpr:
		return n.normalizeCall(e)
	default:
		return &HNullLiteral{}
	}
}

func (n *normalizer) normalizeCall(call *compiler.CallExpr) *HCall {
	if call == nil {
		return &HCall{}
	}
	args := make([]HNode, len(call.Args))
	for i, a := range call.Args {
		args[i] = n.normalizeExpr(a)
	}
	return &HCall{Function: call.Function, Args: args}
}

// resolveVariable resolves a name to a parameter slot or a global. This
// mirrors the resolution order in the compiler's emitLoad.
func (n *normalizer) resolveVariable(name string) HNode {
	if slot, ok := n.params[name]; ok {
		return &HLocalRef{Slot: slot}
	}
	return &HGlobalRef{Name: name}
}
