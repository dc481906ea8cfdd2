package vm

import "fmt"

// ---------------------------------------------------------------------------
// Result: outcome of one VM invocation
// ---------------------------------------------------------------------------

// Status classifies how an invocation ended.
type Status int

const (
	// StatusSuccess: the run returned, halted, reached the end of code, or
	// was cut off by the step ceiling (see Result.Truncated).
	StatusSuccess Status = iota
	// StatusPartial: the run failed after at least one instruction completed.
	// Global mutations made before the failure stay applied.
	StatusPartial
	// StatusFailure: the run failed before any instruction completed.
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result reports one Execute, Call, Dispatch or Run.
type Result struct {
	Status Status
	Steps  int   // instructions executed, including a failing one
	Value  Value // value of a top-level RET_VAL, otherwise Null

	// Handled is false when Dispatch found no binding; nothing ran.
	Handled bool
	// Truncated is set when the step ceiling stopped the run.
	Truncated bool

	Err error
}

// OK reports whether the run ended without an error.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

func (r Result) String() string {
	s := fmt.Sprintf("%s steps=%d", r.Status, r.Steps)
	if !r.Value.IsNull() {
		s += " value=" + r.Value.Format()
	}
	if r.Truncated {
		s += " truncated"
	}
	if r.Err != nil {
		s += " err=" + r.Err.Error()
	}
	return s
}

// failed builds the result of a run that stopped on err after steps
// instructions.
func failed(steps int, err error) Result {
	status := StatusFailure
	if steps > 1 {
		status = StatusPartial
	}
	return Result{Status: status, Steps: steps, Err: err, Handled: true}
}
