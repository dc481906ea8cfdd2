package compiler

import (
	"math"

	"github.com/chazu/kryon/vm"
)

// uiIntrinsic lowers a call by name to a UI opcode instead of CALL_NATIVE.
// The first argument is always a component id.
type uiIntrinsic struct {
	argc   int
	op     vm.Opcode
	prop   bool // second argument is a literal property name, encoded as the operand
	result bool // the opcode leaves a value; otherwise the call yields null
}

var uiIntrinsics = map[string]uiIntrinsic{
	"set_text":     {argc: 2, op: vm.OpSetText},
	"set_visible":  {argc: 2, op: vm.OpSetVisible},
	"set_prop":     {argc: 3, op: vm.OpSetProp, prop: true},
	"get_prop":     {argc: 2, op: vm.OpGetProp, prop: true, result: true},
	"add_child":    {argc: 2, op: vm.OpAddChild},
	"remove_child": {argc: 2, op: vm.OpRemoveChild},
	"redraw":       {argc: 0, op: vm.OpRedraw},
}

func (c *Compiler) compileIntrinsic(e *CallExpr, in uiIntrinsic) {
	if len(e.Args) != in.argc {
		c.errorf("%s takes %d arguments, got %d", e.Function, in.argc, len(e.Args))
		return
	}

	args := e.Args
	if len(args) > 0 {
		c.compileComponent(args[0])
		args = args[1:]
	}

	var prop vm.PropertyID
	if in.prop {
		name, ok := args[0].(*StringLiteral)
		if !ok {
			c.errorf("%s: property name must be a string literal", e.Function)
			return
		}
		if prop, ok = vm.ParsePropertyID(name.Value); !ok {
			c.errorf("%s: unknown property %q", e.Function, name.Value)
			return
		}
		args = args[1:]
	}

	for _, arg := range args {
		if in.op == vm.OpAddChild || in.op == vm.OpRemoveChild {
			c.compileComponent(arg)
		} else {
			c.compileExpr(arg)
		}
	}

	if in.prop {
		c.builder.EmitUint16(in.op, uint16(prop))
	} else {
		c.builder.Emit(in.op)
	}
	if !in.result {
		c.builder.Emit(vm.OpPushNull)
	}
}

// compileComponent pushes a component id. Literal ids use GET_COMP.
func (c *Compiler) compileComponent(e Expr) {
	if lit, ok := e.(*IntLiteral); ok && lit.Value >= 0 && lit.Value <= math.MaxUint32 {
		c.builder.EmitUint32(vm.OpGetComp, uint32(lit.Value))
		return
	}
	c.compileExpr(e)
}
