package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
)

// ---------------------------------------------------------------------------
// KIR loader: JSON component tree + logic block -> Program
// ---------------------------------------------------------------------------

// ErrInvalidKIR wraps every error produced while loading a KIR document.
var ErrInvalidKIR = errors.New("invalid KIR document")

// Document is a loaded KIR file. Root is the raw component tree; the
// caller serializes it into Program.UI.
type Document struct {
	Root    []byte
	Program *Program
}

type kirDocument struct {
	Root     json.RawMessage `json:"root"`
	Logic    *kirLogic       `json:"logic_block"`
	Manifest *kirManifest    `json:"reactive_manifest"`
}

type kirLogic struct {
	Functions     []kirFunction `json:"functions"`
	EventBindings []kirBinding  `json:"event_bindings"`
}

type kirFunction struct {
	Name      string        `json:"name"`
	Params    []string      `json:"params"`
	Universal *kirUniversal `json:"universal"`
}

type kirUniversal struct {
	Statements []interface{} `json:"statements"`
}

type kirBinding struct {
	ComponentID uint32 `json:"component_id"`
	EventType   string `json:"event_type"`
	HandlerName string `json:"handler_name"`
}

type kirManifest struct {
	Variables []kirVariable `json:"variables"`
}

type kirVariable struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	InitialValue interface{} `json:"initial_value"`
}

// ParseKIR validates data against the KIR schema and decodes it. Numbers
// are decoded exactly: whole numbers become integer literals and anything
// else a float literal.
func ParseKIR(data []byte) (*Document, error) {
	if err := ValidateKIR(data); err != nil {
		return nil, err
	}

	var doc kirDocument
	if err := decodeJSON(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKIR, err)
	}

	l := &kirLoader{}
	prog := &Program{}
	if doc.Manifest != nil {
		for _, v := range doc.Manifest.Variables {
			prog.Variables = append(prog.Variables, l.variable(v))
		}
	}
	if doc.Logic != nil {
		for _, f := range doc.Logic.Functions {
			prog.Functions = append(prog.Functions, l.function(f))
		}
		for _, b := range doc.Logic.EventBindings {
			prog.Bindings = append(prog.Bindings, Binding{
				ComponentID: b.ComponentID,
				Event:       b.EventType,
				Handler:     b.HandlerName,
			})
		}
	}
	if len(l.errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKIR, strings.Join(l.errors, "; "))
	}

	return &Document{Root: doc.Root, Program: prog}, nil
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// kirLoader converts decoded JSON values into AST nodes, collecting errors
// with a path prefix.
type kirLoader struct {
	path   []string
	errors []string
}

func (l *kirLoader) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if len(l.path) > 0 {
		msg = strings.Join(l.path, ".") + ": " + msg
	}
	l.errors = append(l.errors, msg)
}

func (l *kirLoader) enter(elem string) { l.path = append(l.path, elem) }
func (l *kirLoader) leave()            { l.path = l.path[:len(l.path)-1] }

func (l *kirLoader) variable(v kirVariable) VarDecl {
	l.enter("variables[" + v.Name + "]")
	defer l.leave()

	decl := VarDecl{Name: v.Name, Type: v.Type}
	initial := v.InitialValue
	// Serializers may store the initial value as a JSON document inside a
	// string. A string variable keeps the raw text unless it decodes to a
	// string.
	if s, ok := initial.(string); ok {
		var inner interface{}
		if err := decodeJSON([]byte(s), &inner); err == nil {
			if _, isString := inner.(string); isString || v.Type != "string" {
				initial = inner
			}
		}
	}
	if initial != nil {
		decl.Initial = l.expr(initial)
	}
	return decl
}

func (l *kirLoader) function(f kirFunction) *Function {
	l.enter("functions[" + f.Name + "]")
	defer l.leave()

	fn := &Function{Name: f.Name, Params: f.Params}
	if f.Universal == nil {
		log.Warningf("function %s has no universal logic; compiling an empty body", f.Name)
		return fn
	}
	fn.Body = l.statements(f.Universal.Statements)
	return fn
}

func (l *kirLoader) statements(raw []interface{}) []Stmt {
	stmts := make([]Stmt, 0, len(raw))
	for i, r := range raw {
		l.enter(fmt.Sprintf("[%d]", i))
		if s := l.stmt(r); s != nil {
			stmts = append(stmts, s)
		}
		l.leave()
	}
	return stmts
}

var compoundOps = map[string]BinaryOp{
	"assign_add": OpAdd,
	"assign_sub": OpSub,
	"assign_mul": OpMul,
	"assign_div": OpDiv,
}

func (l *kirLoader) stmt(raw interface{}) Stmt {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		l.errorf("statement must be an object, got %T", raw)
		return nil
	}
	op, _ := obj["op"].(string)

	switch op {
	case "assign":
		return &Assign{Target: l.target(obj), Value: l.field(obj, "expr")}
	case "assign_add", "assign_sub", "assign_mul", "assign_div":
		return &CompoundAssign{Op: compoundOps[op], Target: l.target(obj), Value: l.field(obj, "expr")}
	case "if":
		return &If{
			Cond: l.field(obj, "condition"),
			Then: l.block(obj, "then"),
			Else: l.block(obj, "else"),
		}
	case "while":
		return &While{Cond: l.field(obj, "condition"), Body: l.block(obj, "body")}
	case "call":
		return &CallStmt{Call: l.call(obj)}
	case "return":
		if v, ok := obj["value"]; ok && v != nil {
			return &Return{Value: l.expr(v)}
		}
		return &Return{}
	case "break":
		return &Break{}
	case "continue":
		return &Continue{}
	case "for_each":
		l.errorf("for_each is not supported")
	case "":
		l.errorf("statement has no op")
	default:
		l.errorf("unsupported statement %q", op)
	}
	return nil
}

func (l *kirLoader) target(obj map[string]interface{}) string {
	target, _ := obj["target"].(string)
	if target == "" {
		l.errorf("assignment has no target")
	}
	return target
}

func (l *kirLoader) block(obj map[string]interface{}, key string) []Stmt {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		l.errorf("%s must be a statement list", key)
		return nil
	}
	l.enter(key)
	defer l.leave()
	return l.statements(list)
}

func (l *kirLoader) field(obj map[string]interface{}, key string) Expr {
	raw, ok := obj[key]
	if !ok {
		l.errorf("missing %s", key)
		return &NullLiteral{}
	}
	l.enter(key)
	defer l.leave()
	return l.expr(raw)
}

func (l *kirLoader) call(obj map[string]interface{}) *CallExpr {
	name, _ := obj["function"].(string)
	if name == "" {
		l.errorf("call has no function name")
	}
	call := &CallExpr{Function: name}
	if raw, ok := obj["args"]; ok && raw != nil {
		args, ok := raw.([]interface{})
		if !ok {
			l.errorf("args must be a list")
			return call
		}
		for i, a := range args {
			l.enter(fmt.Sprintf("args[%d]", i))
			call.Args = append(call.Args, l.expr(a))
			l.leave()
		}
	}
	return call
}

func (l *kirLoader) expr(raw interface{}) Expr {
	switch v := raw.(type) {
	case nil:
		return &NullLiteral{}
	case bool:
		return &BoolLiteral{Value: v}
	case string:
		return &StringLiteral{Value: v}
	case json.Number:
		return l.number(v)
	case map[string]interface{}:
		return l.exprObject(v)
	default:
		l.errorf("unsupported expression %T", raw)
		return &NullLiteral{}
	}
}

func (l *kirLoader) number(n json.Number) Expr {
	if i, err := n.Int64(); err == nil {
		return &IntLiteral{Value: i}
	}
	f, err := n.Float64()
	if err != nil {
		l.errorf("bad number %q", n)
		return &IntLiteral{}
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return &IntLiteral{Value: int64(f)}
	}
	return &FloatLiteral{Value: f}
}

func (l *kirLoader) exprObject(obj map[string]interface{}) Expr {
	if name, ok := obj["var"]; ok {
		s, _ := name.(string)
		if s == "" {
			l.errorf("var must be a non-empty string")
		}
		return &Variable{Name: s}
	}
	if _, ok := obj["index"]; ok {
		l.errorf("index access is not supported")
		return &NullLiteral{}
	}

	op, _ := obj["op"].(string)
	if bop, ok := ParseBinaryOp(op); ok {
		return &BinaryExpr{Op: bop, Left: l.field(obj, "left"), Right: l.field(obj, "right")}
	}
	if uop, ok := ParseUnaryOp(op); ok {
		key := "operand"
		if _, has := obj[key]; !has {
			key = "expr"
		}
		return &UnaryExpr{Op: uop, Operand: l.field(obj, key)}
	}

	switch op {
	case "ternary":
		return &TernaryExpr{
			Cond: l.field(obj, "condition"),
			Then: l.field(obj, "then"),
			Else: l.field(obj, "else"),
		}
	case "call":
		return l.call(obj)
	case "member_access", "index":
		l.errorf("%s is not supported", strings.ReplaceAll(op, "_", " "))
	case "":
		l.errorf("expression object has neither var nor op")
	default:
		l.errorf("unsupported operator %q", op)
	}
	return &NullLiteral{}
}
