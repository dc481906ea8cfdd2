package compiler

import (
	"fmt"
	"sort"

	"github.com/chazu/kryon/vm"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: Pre-codegen semantic checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer checks a program for likely mistakes that still compile:
// reads of names nothing declares or assigns, code after a jump, calls to
// names no native provides, and functions nothing can reach.
type SemanticAnalyzer struct {
	warnings []string

	// Names that are always callable
	natives map[string]bool

	// Program-wide
	declared map[string]bool // reactive_manifest variables
	assigned map[string]bool // assigned anywhere in any function

	// Current function
	function string
	params   map[string]bool
}

// NewSemanticAnalyzer creates an analyzer that knows the default natives.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	s := &SemanticAnalyzer{natives: make(map[string]bool)}
	for _, name := range vm.DefaultNatives().Names() {
		s.natives[name] = true
	}
	for name := range uiIntrinsics {
		s.natives[name] = true
	}
	return s
}

// AddNative marks name as callable.
func (s *SemanticAnalyzer) AddNative(name string) {
	s.natives[name] = true
}

// Warnings returns accumulated warnings.
func (s *SemanticAnalyzer) Warnings() []string {
	return s.warnings
}

func (s *SemanticAnalyzer) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.function != "" {
		msg = s.function + ": " + msg
	}
	s.warnings = append(s.warnings, "warning: "+msg)
}

// AnalyzeProgram runs every check over prog.
func (s *SemanticAnalyzer) AnalyzeProgram(prog *Program) {
	s.declared = make(map[string]bool, len(prog.Variables))
	for _, v := range prog.Variables {
		s.declared[v.Name] = true
	}
	s.assigned = make(map[string]bool)
	for _, fn := range prog.Functions {
		collectAssigned(fn.Body, s.assigned)
	}

	for _, fn := range prog.Functions {
		s.analyzeFunction(fn)
	}
	s.function = ""
	s.checkReachable(prog)
}

func (s *SemanticAnalyzer) analyzeFunction(fn *Function) {
	s.function = fn.Name
	s.params = make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		s.params[p] = true
	}
	s.analyzeStatements(fn.Body)
}

// analyzeStatements analyzes a list of statements.
func (s *SemanticAnalyzer) analyzeStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
	s.checkUnreachableCode(stmts)
}

// analyzeStmt analyzes a single statement.
func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch st := stmt.(type) {
	case *Assign:
		s.analyzeExpr(st.Value)
	case *CompoundAssign:
		s.checkVariableDefined(st.Target)
		s.analyzeExpr(st.Value)
	case *If:
		s.analyzeExpr(st.Cond)
		s.analyzeStatements(st.Then)
		s.analyzeStatements(st.Else)
	case *While:
		s.analyzeExpr(st.Cond)
		s.analyzeStatements(st.Body)
	case *CallStmt:
		s.analyzeExpr(st.Call)
	case *Return:
		if st.Value != nil {
			s.analyzeExpr(st.Value)
		}
	}
}

// analyzeExpr analyzes an expression.
func (s *SemanticAnalyzer) analyzeExpr(expr Expr) {
	switch e := expr.(type) {
	case *Variable:
		s.checkVariableDefined(e.Name)
	case *BinaryExpr:
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
	case *UnaryExpr:
		s.analyzeExpr(e.Operand)
	case *TernaryExpr:
		s.analyzeExpr(e.Cond)
		s.analyzeExpr(e.Then)
		s.analyzeExpr(e.Else)
	case *CallExpr:
		if e == nil {
			return
		}
		if !s.natives[e.Function] {
			s.warnf("call to unknown native %q yields null", e.Function)
		}
		for _, arg := range e.Args {
			s.analyzeExpr(arg)
		}
	// Literals don't need checking
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral:
		// OK
	}
}

// checkVariableDefined warns about a read of a global that is neither
// declared nor assigned anywhere. Such a read always sees 0.
func (s *SemanticAnalyzer) checkVariableDefined(name string) {
	if s.params[name] || s.declared[name] || s.assigned[name] {
		return
	}
	s.warnf("variable '%s' may be undefined (reads as 0)", name)
}

// checkUnreachableCode checks for code after a return, break or continue.
func (s *SemanticAnalyzer) checkUnreachableCode(stmts []Stmt) {
	for i, stmt := range stmts {
		var jump string
		switch stmt.(type) {
		case *Return:
			jump = "return"
		case *Break:
			jump = "break"
		case *Continue:
			jump = "continue"
		default:
			continue
		}
		if i < len(stmts)-1 {
			s.warnf("unreachable code after %s", jump)
			return // Only warn once
		}
	}
}

// checkReachable warns about functions that are neither the entry point nor
// bound to an event. The runtime has no other way to reach them.
func (s *SemanticAnalyzer) checkReachable(prog *Program) {
	bound := make(map[string]bool, len(prog.Bindings))
	for _, b := range prog.Bindings {
		bound[b.Handler] = true
	}
	var unused []string
	for _, fn := range prog.Functions {
		if fn.Name != EntryFunction && !bound[fn.Name] {
			unused = append(unused, fn.Name)
		}
	}
	sort.Strings(unused)
	for _, name := range unused {
		s.warnf("function %s is never called (not init and not bound to an event)", name)
	}
}

func collectAssigned(stmts []Stmt, into map[string]bool) {
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *Assign:
			into[st.Target] = true
		case *CompoundAssign:
			into[st.Target] = true
		case *If:
			collectAssigned(st.Then, into)
			collectAssigned(st.Else, into)
		case *While:
			collectAssigned(st.Body, into)
		}
	}
}

// ---------------------------------------------------------------------------
// Integration with CompileModule
// ---------------------------------------------------------------------------

// Analyze runs semantic analysis on a program and returns its warnings.
func Analyze(prog *Program) []string {
	analyzer := NewSemanticAnalyzer()
	analyzer.AnalyzeProgram(prog)
	return analyzer.Warnings()
}
