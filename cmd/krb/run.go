package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/kryon/manifest"
	"github.com/chazu/kryon/ui"
	"github.com/chazu/kryon/vm"
)

// session is a running module with its component tree.
type session struct {
	mod  *vm.Module
	rt   *vm.Runtime
	tree *ui.Tree
	out  io.Writer

	stepLimit int
	globals   map[string]vm.Value
	profiler  *vm.Profiler // nil unless profiling
	debugger  *vm.Debugger // nil until tracing or a breakpoint is requested
	stopOut   io.Writer    // where debugger stops are printed
}

func newSession(mod *vm.Module, m *manifest.Manifest, out io.Writer) (*session, error) {
	s := &session{mod: mod, out: out, stopOut: os.Stderr}
	if m != nil {
		s.stepLimit = m.Runtime.StepLimit
		globals, err := m.GlobalValues()
		if err != nil {
			return nil, err
		}
		s.globals = globals
	}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// reset rebuilds the tree from the module snapshot and starts a fresh
// runtime. It does not run init.
func (s *session) reset() error {
	tree, err := ui.UnmarshalSnapshot(s.mod.UI)
	if err != nil {
		return err
	}
	s.tree = tree

	s.rt = vm.NewRuntime(s.mod)
	s.rt.SetHost(tree)
	s.rt.SetOutput(s.out)
	if s.stepLimit > 0 {
		s.rt.SetStepLimit(s.stepLimit)
	}
	if s.profiler != nil {
		s.rt.SetProfiler(s.profiler)
	}
	if s.debugger != nil {
		s.rt.SetDebugger(s.debugger)
	}
	for name, v := range s.globals {
		slot, ok := s.mod.GlobalSlot(name)
		if !ok {
			log.Warningf("global %s is not in the module", name)
			continue
		}
		s.rt.SetGlobal(slot, v)
	}
	return nil
}

// enableProfiling attaches a profiler that survives reset.
func (s *session) enableProfiling() {
	s.profiler = vm.NewProfiler(s.mod)
	s.rt.SetProfiler(s.profiler)
}

// debug returns the session debugger, attaching one on first use. Stops are
// printed and execution continues.
func (s *session) debug() *vm.Debugger {
	if s.debugger == nil {
		s.debugger = vm.NewDebugger(s.mod)
		s.debugger.OnStop = func(stop vm.Stop) (vm.StepMode, error) {
			fmt.Fprintf(s.stopOut, "%s %s\n", stop.Reason, stop)
			if stop.Reason != vm.StopTrace && len(stop.Stack) > 0 {
				vals := make([]string, len(stop.Stack))
				for i, v := range stop.Stack {
					vals[i] = v.Format()
				}
				fmt.Fprintf(s.stopOut, "  stack: %s\n", strings.Join(vals, " "))
			}
			return vm.StepNone, nil
		}
		s.rt.SetDebugger(s.debugger)
	}
	return s.debugger
}

// setBreakpoint takes "fn" or "fn+offset".
func (s *session) setBreakpoint(where string) error {
	fn, off, err := parseBreakpoint(where)
	if err != nil {
		return err
	}
	return s.debug().SetBreakpoint(fn, off)
}

func parseBreakpoint(where string) (string, int, error) {
	fn, offStr, found := strings.Cut(strings.TrimSpace(where), "+")
	if fn == "" {
		return "", 0, fmt.Errorf("bad breakpoint %q, want function or function+offset", where)
	}
	if !found {
		return fn, 0, nil
	}
	off, err := strconv.Atoi(offStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad breakpoint offset in %q", where)
	}
	return fn, off, nil
}

func (s *session) init() error {
	return resultError("init", s.rt.Run())
}

// dispatch delivers one event. handled is false when no binding matched.
func (s *session) dispatch(ev event) (handled bool, err error) {
	res := s.rt.Dispatch(ev.component, ev.kind)
	if !res.Handled {
		log.Infof("no handler for %s", ev)
	}
	return res.Handled, resultError(ev.String(), res)
}

func (s *session) writeGlobals(w io.Writer) {
	for i, g := range s.mod.Globals {
		fmt.Fprintf(w, "%s = %s\n", g.Name, s.rt.Global(i).Format())
	}
}

func resultError(what string, res vm.Result) error {
	if res.OK() {
		if res.Truncated {
			log.Warningf("%s: stopped after %d steps", what, res.Steps)
		}
		return nil
	}
	return fmt.Errorf("%s: %s after %d steps: %w", what, res.Status, res.Steps, res.Err)
}

// event is a parsed "component:event" argument.
type event struct {
	component uint32
	kind      vm.EventType
}

func (e event) String() string {
	return fmt.Sprintf("%d:%s", e.component, e.kind)
}

// parseEvent accepts "7", "7:click" and "7 change".
func parseEvent(s string) (event, error) {
	s = strings.TrimSpace(s)
	id, name, found := strings.Cut(s, ":")
	if !found {
		id, name, _ = strings.Cut(s, " ")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return event{}, fmt.Errorf("bad component id in %q", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "click"
	}
	switch name {
	case "click", "change":
	default:
		return event{}, fmt.Errorf("unknown event %q", name)
	}
	return event{component: uint32(n), kind: vm.ParseEventType(name)}, nil
}

// eventList collects repeated -e flags.
type eventList []event

func (l *eventList) String() string {
	parts := make([]string, len(*l))
	for i, e := range *l {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

func (l *eventList) Set(v string) error {
	e, err := parseEvent(v)
	if err != nil {
		return err
	}
	*l = append(*l, e)
	return nil
}

// stringList collects repeated string flags.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

// handleRunCommand processes the `krb run` subcommand.
// Usage:
//
//	krb run app.krb                  # run init, print the tree
//	krb run -e 7:click app.kir       # then dispatch click on component 7
//	krb run -i app.krb               # interactive session
func handleRunCommand(args []string, m *manifest.Manifest) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var events eventList
	fs.Var(&events, "e", "Dispatch an event, as component:event (repeatable)")
	interactive := fs.Bool("i", false, "Start an interactive session")
	steps := fs.Int("steps", 0, "Step ceiling per invocation (default from krb.toml or 10000)")
	showGlobals := fs.Bool("globals", false, "Print globals after the run")
	noTree := fs.Bool("no-tree", false, "Do not print the component tree")
	profile := fs.Bool("profile", false, "Print function and opcode counts after the run")
	trace := fs.Bool("trace", false, "Print every instruction to stderr as it executes")
	var breaks stringList
	fs.Var(&breaks, "break", "Report the stack at function[+offset] (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := inputPath(fs.Args(), m)
	if err != nil {
		return err
	}
	mod, err := loadModule(path, m)
	if err != nil {
		return err
	}

	s, err := newSession(mod, m, os.Stdout)
	if err != nil {
		return err
	}
	if *steps > 0 {
		s.stepLimit = *steps
		s.rt.SetStepLimit(*steps)
	}
	if *profile {
		s.enableProfiling()
	}
	if *trace {
		s.debug().Trace = true
	}
	for _, b := range breaks {
		if err := s.setBreakpoint(b); err != nil {
			return err
		}
	}
	if err := s.init(); err != nil {
		return err
	}

	if *interactive {
		return runREPL(s)
	}

	for _, ev := range events {
		if _, err := s.dispatch(ev); err != nil {
			return err
		}
	}

	if !*noTree && s.tree.Len() > 0 {
		if err := s.tree.Render(os.Stdout); err != nil {
			return err
		}
	}
	if *showGlobals {
		s.writeGlobals(os.Stdout)
	}
	if s.profiler != nil {
		return s.profiler.WriteReport(os.Stdout, 10)
	}
	return nil
}
