package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Debugger: breakpoints, stepping and tracing for a Runtime
// ---------------------------------------------------------------------------

// ErrAborted may be returned from OnStop to end the current invocation.
var ErrAborted = errors.New("aborted by debugger")

// Debugger stops a Runtime before selected instructions and reports each
// stop to OnStop. It never blocks: OnStop runs on the interpreter's
// goroutine and its return value decides where the next stop happens.
type Debugger struct {
	module *Module

	mu          sync.Mutex
	breakpoints map[breakpointKey]bool // value is enabled

	// Stepping state, cleared at the start of every invocation
	stepMode  StepMode
	stepDepth int // call depth when the step was requested

	// Trace stops before every instruction.
	Trace bool

	// OnStop is called at every stop. A non-nil error aborts the
	// invocation with that error.
	OnStop func(Stop) (StepMode, error)
}

// breakpointKey identifies an instruction by function and offset within it.
type breakpointKey struct {
	function int
	offset   int
}

// StepMode selects the next stop after OnStop returns.
type StepMode int

const (
	StepNone StepMode = iota // run to the next breakpoint
	StepOver                 // next instruction at the same or a shallower call depth
	StepInto                 // next instruction
	StepOut                  // next instruction after the current function returns
)

// StopReason says why execution stopped.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopDebugBreak StopReason = "debug_break"
	StopStep       StopReason = "step"
	StopTrace      StopReason = "trace"
)

// Stop describes the instruction about to execute.
type Stop struct {
	Reason      StopReason
	Function    int
	Name        string
	Offset      int    // relative to the function start
	Depth       int    // active CALL frames
	Instruction string // disassembled, with a function-relative offset
	Stack       []Value
}

func (s Stop) String() string {
	return fmt.Sprintf("[%s] %s depth=%d stack=%d", s.Name, s.Instruction, s.Depth, len(s.Stack))
}

// Breakpoint is a breakpoint as listed for clients.
type Breakpoint struct {
	Function string
	Offset   int
	Enabled  bool
}

func (b Breakpoint) String() string {
	s := fmt.Sprintf("%s+%d", b.Function, b.Offset)
	if !b.Enabled {
		s += " (disabled)"
	}
	return s
}

// NewDebugger creates a debugger for m with no breakpoints.
func NewDebugger(m *Module) *Debugger {
	return &Debugger{
		module:      m,
		breakpoints: make(map[breakpointKey]bool),
	}
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

func (d *Debugger) key(function string, offset int) (breakpointKey, error) {
	fn, ok := d.module.FunctionIndex(function)
	if !ok {
		return breakpointKey{}, fmt.Errorf("%w: %s", ErrInvalidFunction, function)
	}
	if offset < 0 || offset >= int(d.module.Functions[fn].CodeSize) {
		return breakpointKey{}, fmt.Errorf("offset %d outside %s (size %d)",
			offset, function, d.module.Functions[fn].CodeSize)
	}
	return breakpointKey{function: fn, offset: offset}, nil
}

// SetBreakpoint adds an enabled breakpoint at offset bytes into function.
func (d *Debugger) SetBreakpoint(function string, offset int) error {
	k, err := d.key(function, offset)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints[k] = true
	return nil
}

// RemoveBreakpoint removes a breakpoint.
func (d *Debugger) RemoveBreakpoint(function string, offset int) error {
	return d.update(function, offset, func(k breakpointKey) { delete(d.breakpoints, k) })
}

// EnableBreakpoint re-enables a disabled breakpoint.
func (d *Debugger) EnableBreakpoint(function string, offset int) error {
	return d.update(function, offset, func(k breakpointKey) { d.breakpoints[k] = true })
}

// DisableBreakpoint keeps a breakpoint but no longer stops at it.
func (d *Debugger) DisableBreakpoint(function string, offset int) error {
	return d.update(function, offset, func(k breakpointKey) { d.breakpoints[k] = false })
}

func (d *Debugger) update(function string, offset int, f func(breakpointKey)) error {
	k, err := d.key(function, offset)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.breakpoints[k]; !ok {
		return fmt.Errorf("no breakpoint at %s+%d", function, offset)
	}
	f(k)
	return nil
}

// ListBreakpoints returns all breakpoints in function then offset order.
func (d *Debugger) ListBreakpoints() []Breakpoint {
	d.mu.Lock()
	keys := make([]breakpointKey, 0, len(d.breakpoints))
	for k := range d.breakpoints {
		keys = append(keys, k)
	}
	enabled := make(map[breakpointKey]bool, len(keys))
	for _, k := range keys {
		enabled[k] = d.breakpoints[k]
	}
	d.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].function != keys[j].function {
			return keys[i].function < keys[j].function
		}
		return keys[i].offset < keys[j].offset
	})
	result := make([]Breakpoint, len(keys))
	for i, k := range keys {
		result[i] = Breakpoint{
			Function: d.module.Functions[k.function].Name,
			Offset:   k.offset,
			Enabled:  enabled[k],
		}
	}
	return result
}

// ClearAllBreakpoints removes every breakpoint.
func (d *Debugger) ClearAllBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = make(map[breakpointKey]bool)
}

// ---------------------------------------------------------------------------
// Interpreter hooks
// ---------------------------------------------------------------------------

// begin clears stepping state for a new top-level invocation.
func (d *Debugger) begin() {
	d.stepMode = StepNone
	d.stepDepth = 0
}

// shouldStop reports whether execution stops before the instruction at pc.
func (d *Debugger) shouldStop(rt *Runtime, pc int) (StopReason, bool) {
	if d.Trace {
		return StopTrace, true
	}
	if Opcode(rt.code[pc]) == OpDebugBreak {
		return StopDebugBreak, true
	}

	fn := rt.currentFunction()
	if fn >= 0 && fn < len(d.module.Functions) {
		k := breakpointKey{function: fn, offset: pc - int(d.module.Functions[fn].CodeOffset)}
		d.mu.Lock()
		enabled := d.breakpoints[k]
		d.mu.Unlock()
		if enabled {
			return StopBreakpoint, true
		}
	}

	depth := len(rt.frames)
	switch d.stepMode {
	case StepInto:
		return StopStep, true
	case StepOver:
		if depth <= d.stepDepth {
			return StopStep, true
		}
	case StepOut:
		if depth < d.stepDepth {
			return StopStep, true
		}
	}
	return "", false
}

// before runs ahead of each instruction. A non-nil error aborts the run.
func (d *Debugger) before(rt *Runtime, pc int) error {
	reason, ok := d.shouldStop(rt, pc)
	if !ok {
		return nil
	}

	stop := Stop{
		Reason:   reason,
		Function: rt.currentFunction(),
		Depth:    len(rt.frames),
		Stack:    append([]Value(nil), rt.stack...),
	}
	base := 0
	if stop.Function >= 0 && stop.Function < len(d.module.Functions) {
		f := d.module.Functions[stop.Function]
		stop.Name = f.Name
		base = int(f.CodeOffset)
	}
	stop.Offset = pc - base
	r := NewBytecodeReader(rt.code)
	r.Seek(pc)
	stop.Instruction = DisassembleInstruction(r, base, d.module.Strings)

	log.Debugf("stop (%s) at %s+%d", reason, stop.Name, stop.Offset)

	mode := StepNone
	if d.OnStop != nil {
		var err error
		if mode, err = d.OnStop(stop); err != nil {
			return err
		}
	}
	d.stepMode = mode
	d.stepDepth = stop.Depth
	return nil
}
