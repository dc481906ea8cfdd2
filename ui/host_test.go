package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/kryon/compiler"
	"github.com/chazu/kryon/vm"
)

func TestTreeHostProperties(t *testing.T) {
	tree := parseCounter(t)

	if err := tree.SetText(2, "count: 1"); err != nil {
		t.Fatal(err)
	}
	if v, _ := tree.Property(2, vm.PropText); !v.Equal(vm.String("count: 1")) {
		t.Errorf("text = %v", v)
	}

	if err := tree.SetVisible(7, false); err != nil {
		t.Fatal(err)
	}
	if v, _ := tree.Property(7, vm.PropVisible); !v.Equal(vm.Bool(false)) {
		t.Errorf("visible = %v, want false", v)
	}
	if err := tree.SetProperty(7, vm.PropVisible, vm.Int(1)); err != nil {
		t.Fatal(err)
	}
	if c, _ := tree.Find(7); c.Hidden {
		t.Error("SetProperty(visible, 1) left the button hidden")
	}

	if err := tree.SetProperty(2, vm.PropWidth, vm.Int(120)); err != nil {
		t.Fatal(err)
	}
	if v, _ := tree.Property(2, vm.PropWidth); !v.Equal(vm.Int(120)) {
		t.Errorf("width = %v, want 120", v)
	}
	if v, err := tree.Property(2, vm.PropHeight); err != nil || !v.IsNull() {
		t.Errorf("unset height = %v, %v, want null", v, err)
	}
	if err := tree.SetProperty(2, vm.PropText, vm.Int(5)); err != nil {
		t.Fatal(err)
	}
	if c, _ := tree.Find(2); c.Text != "5" {
		t.Errorf("text = %q, want 5", c.Text)
	}
}

func TestTreeHostUnknownComponent(t *testing.T) {
	tree := parseCounter(t)
	errs := []error{
		tree.SetText(99, "x"),
		tree.SetVisible(99, true),
		tree.SetProperty(99, vm.PropWidth, vm.Int(1)),
		tree.AddChild(1, 99),
		tree.AddChild(99, 2),
		tree.RemoveChild(1, 99),
	}
	_, err := tree.Property(99, vm.PropText)
	errs = append(errs, err)
	for i, err := range errs {
		if !errors.Is(err, ErrUnknownComponent) {
			t.Errorf("#%d: err = %v, want ErrUnknownComponent", i, err)
		}
	}
}

func TestTreeHostMoves(t *testing.T) {
	tree := parseCounter(t)

	// Move the text under the button.
	if err := tree.AddChild(7, 2); err != nil {
		t.Fatalf("AddChild(7, 2): %v", err)
	}
	if p, _ := tree.Parent(2); p != 7 {
		t.Errorf("Parent(2) = %d, want 7", p)
	}
	if n := len(tree.Root().Children); n != 2 {
		t.Errorf("root has %d children, want 2", n)
	}

	// Cycles and moving the root are rejected.
	if err := tree.AddChild(2, 7); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("AddChild(2, 7) = %v, want ErrInvalidMove", err)
	}
	if err := tree.AddChild(2, 2); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("AddChild(2, 2) = %v, want ErrInvalidMove", err)
	}
	if err := tree.AddChild(7, 1); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("AddChild(7, 1) = %v, want ErrInvalidMove", err)
	}

	// Detach, then attach again.
	if err := tree.RemoveChild(1, 2); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("RemoveChild(1, 2) = %v, want ErrInvalidMove", err)
	}
	if err := tree.RemoveChild(7, 2); err != nil {
		t.Fatalf("RemoveChild(7, 2): %v", err)
	}
	if _, ok := tree.Parent(2); ok {
		t.Error("removed component still has a parent")
	}
	if _, ok := tree.Find(2); !ok {
		t.Error("removed component is no longer indexed")
	}
	if err := tree.AddChild(1, 2); err != nil {
		t.Fatalf("AddChild(1, 2): %v", err)
	}

	var sb strings.Builder
	tree.Render(&sb)
	want := `Column#1 gap=8
  Button#7 "+" bg_color="#3366ff" opacity=0.5
  Text#9 "42" (hidden)
  Text#2 "count: 0" font_size=16
`
	if sb.String() != want {
		t.Errorf("Render:\n%s\nwant:\n%s", sb.String(), want)
	}
}

// TestTreeDrivenByBytecode compiles a click handler that uses the UI
// intrinsics and runs it against the tree.
func TestTreeDrivenByBytecode(t *testing.T) {
	call := func(name string, args ...compiler.Expr) compiler.Stmt {
		return &compiler.CallStmt{Call: &compiler.CallExpr{Function: name, Args: args}}
	}
	id := func(v int64) compiler.Expr { return &compiler.IntLiteral{Value: v} }
	str := func(s string) compiler.Expr { return &compiler.StringLiteral{Value: s} }

	prog := &compiler.Program{
		Variables: []compiler.VarDecl{{Name: "count", Initial: id(0)}},
		Functions: []*compiler.Function{{
			Name: "increment",
			Body: []compiler.Stmt{
				&compiler.CompoundAssign{Op: compiler.OpAdd, Target: "count", Value: id(1)},
				call("set_text", id(2), &compiler.BinaryExpr{
					Op: compiler.OpConcat, Left: str("count: "), Right: &compiler.Variable{Name: "count"},
				}),
				call("set_prop", id(7), str("width"), id(64)),
				&compiler.Assign{Target: "w", Value: &compiler.CallExpr{
					Function: "get_prop", Args: []compiler.Expr{id(7), str("width")},
				}},
				call("set_visible", id(9), &compiler.BoolLiteral{Value: true}),
				call("remove_child", id(1), id(7)),
			},
		}},
		Bindings: []compiler.Binding{{ComponentID: 7, Event: "click", Handler: "increment"}},
	}

	tree := parseCounter(t)
	snap, err := tree.MarshalSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	prog.UI = snap

	m, err := compiler.CompileModule(prog, compiler.Options{})
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	live, err := UnmarshalSnapshot(m.UI)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	rt := vm.NewRuntime(m)
	rt.SetHost(live)
	res := rt.Dispatch(7, vm.EventClick)
	if !res.OK() || !res.Handled {
		t.Fatalf("Dispatch: %v", res)
	}
	if !rt.NeedsRedraw() {
		t.Error("UI opcodes did not request a redraw")
	}
	if w, _ := rt.GlobalByName("w"); !w.Equal(vm.Int(64)) {
		t.Errorf("w = %v, want 64", w)
	}

	var sb strings.Builder
	live.Render(&sb)
	want := `Column#1 gap=8
  Text#2 "count: 1" font_size=16
  Text#9 "42"
`
	if sb.String() != want {
		t.Errorf("Render:\n%s\nwant:\n%s", sb.String(), want)
	}
}
