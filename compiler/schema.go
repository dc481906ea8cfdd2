package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// kirSchema constrains the parts of a KIR document the compiler reads.
// Everything else stays open: component trees carry many properties the
// compiler passes through untouched.
const kirSchema = `
#KIR: {
	root?: {...}

	logic_block?: {
		functions?: [...#Function]
		event_bindings?: [...#Binding]
		...
	}

	reactive_manifest?: {
		variables?: [...#Variable]
		...
	}

	...
}

#Statement: {
	op: string & !=""
	...
}

#Function: {
	name:    string & !=""
	params?: [...string]
	universal?: {
		statements?: [...#Statement]
		...
	}
	...
}

#Binding: {
	component_id: int & >=0 & <=4294967295
	event_type:   string
	handler_name: string & !=""
	...
}

#Variable: {
	name:  string & !=""
	type?: string
	...
}
`

// ValidateKIR checks data against the KIR schema. Each call compiles the
// schema and the document in its own context.
func ValidateKIR(data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(kirSchema, cue.Filename("kir.cue")).LookupPath(cue.ParsePath("#KIR"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("KIR schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename("kir.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKIR, err)
	}

	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKIR, err)
	}
	return nil
}
