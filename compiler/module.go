package compiler

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/kryon/vm"
)

var log = commonlog.GetLogger("kryon.compiler")

// EntryFunction is the function run by vm.Runtime.Run when present.
const EntryFunction = "init"

// Options control module assembly.
type Options struct {
	Debug  bool // set vm.FlagDebug in the header
	Strict bool // semantic warnings fail the compile
}

// CompileError carries every error found while compiling a program.
type CompileError struct {
	Errors []string
}

func (e *CompileError) Error() string {
	if len(e.Errors) == 1 {
		return "compile error: " + e.Errors[0]
	}
	return fmt.Sprintf("%d compile errors: %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

// CompileModule compiles prog into a module. Declared variables take the
// first global slots; functions are laid out in program order in a single
// code segment; bindings resolve handler names to function indices.
func CompileModule(prog *Program, opts Options) (*vm.Module, error) {
	c := NewCompiler()

	for _, w := range Analyze(prog) {
		if opts.Strict {
			c.errors = append(c.errors, w)
			continue
		}
		log.Warning(w)
	}

	for _, v := range prog.Variables {
		initial, err := constantValue(v.Initial)
		if err != nil {
			c.errorf("variable %s: %v", v.Name, err)
			continue
		}
		if _, ok := c.globals.Declare(v.Name, initial); !ok {
			c.errorf("too many globals at %q", v.Name)
		}
	}

	index := make(map[string]int, len(prog.Functions))
	functions := make([]vm.Function, 0, len(prog.Functions))
	for _, fn := range prog.Functions {
		if _, dup := index[fn.Name]; dup {
			c.errorf("duplicate function %q", fn.Name)
			continue
		}
		index[fn.Name] = len(functions)
		functions = append(functions, c.CompileFunction(fn))
	}

	bindings := make([]vm.EventBinding, 0, len(prog.Bindings))
	for _, b := range prog.Bindings {
		fn, ok := index[b.Handler]
		if !ok {
			c.errorf("binding #%d %s: unknown handler %q", b.ComponentID, b.Event, b.Handler)
			continue
		}
		bindings = append(bindings, vm.EventBinding{
			ComponentID:   b.ComponentID,
			Event:         vm.ParseEventType(b.Event),
			FunctionIndex: uint16(fn),
		})
	}

	if len(c.errors) > 0 {
		return nil, &CompileError{Errors: c.errors}
	}

	m := vm.NewModule()
	m.UI = prog.UI
	m.Code = c.Code()
	m.Strings = c.strings.Strings()
	m.Functions = functions
	m.Bindings = bindings
	m.Globals = c.globals.Globals()
	if fn, ok := index[EntryFunction]; ok {
		m.Header.EntryFunction = uint32(fn)
	}
	if opts.Debug {
		m.Header.Flags |= vm.FlagDebug
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("compiled module is invalid: %w", err)
	}

	log.Infof("compiled %d functions (%d bytes), %d strings, %d globals, %d bindings",
		len(m.Functions), len(m.Code), len(m.Strings), len(m.Globals), len(m.Bindings))
	return m, nil
}

// constantValue folds a variable initialiser to a value. Only literals and
// negated numeric literals are accepted.
func constantValue(expr Expr) (vm.Value, error) {
	switch e := expr.(type) {
	case nil:
		return vm.Int(0), nil
	case *IntLiteral:
		return vm.Int(e.Value), nil
	case *FloatLiteral:
		return vm.Float(float32(e.Value)), nil
	case *StringLiteral:
		return vm.String(e.Value), nil
	case *BoolLiteral:
		return vm.Bool(e.Value), nil
	case *NullLiteral:
		return vm.Null, nil
	case *UnaryExpr:
		if e.Op == OpNeg {
			switch lit := e.Operand.(type) {
			case *IntLiteral:
				return vm.Int(-lit.Value), nil
			case *FloatLiteral:
				return vm.Float(float32(-lit.Value)), nil
			}
		}
	}
	return vm.Value{}, fmt.Errorf("initial value %T is not a constant", expr)
}
