package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

const historyFile = ".krb_history"

const replHelp = `Commands:
  <id>[:event]      Dispatch an event (click if omitted), e.g. 7:click
  :tree             Print the component tree
  :globals          Print global values
  :redraw           Report whether a redraw was requested, then clear it
  :reset            Restart from the module's initial state and run init
  :profile          Start profiling, or print the profile so far
  :trace            Toggle printing every instruction
  :break fn[+off]   Report the stack whenever fn+off is reached
  :breaks           List breakpoints
  :clear            Remove all breakpoints
  :help             Show this help
  :quit             Exit
`

func runREPL(s *session) error {
	fmt.Printf("krb session: %d functions, %d bindings (:help for commands)\n",
		len(s.mod.Functions), len(s.mod.Bindings))

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	// Load history (best-effort)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt("krb> ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Println()
				break
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if exit := handleLine(s, line, os.Stdout); exit {
			break
		}
	}

	// Persist history (best-effort)
	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

// handleLine runs one session command and reports whether to exit.
func handleLine(s *session, line string, w io.Writer) (exit bool) {
	switch line {
	case ":quit", ":q", "exit", "quit":
		return true
	case ":help", ":h", ":?":
		fmt.Fprint(w, replHelp)
	case ":tree":
		if err := s.tree.Render(w); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	case ":globals":
		s.writeGlobals(w)
	case ":redraw":
		fmt.Fprintln(w, s.rt.NeedsRedraw())
		s.rt.ClearRedraw()
	case ":profile":
		if s.profiler == nil {
			s.enableProfiling()
			fmt.Fprintln(w, "profiling enabled")
			break
		}
		if err := s.profiler.WriteReport(w, 10); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	case ":trace":
		d := s.debug()
		d.Trace = !d.Trace
		fmt.Fprintf(w, "trace %v\n", d.Trace)
	case ":breaks":
		if s.debugger == nil {
			break
		}
		for _, bp := range s.debugger.ListBreakpoints() {
			fmt.Fprintln(w, bp)
		}
	case ":clear":
		if s.debugger != nil {
			s.debugger.ClearAllBreakpoints()
		}
	case ":reset":
		if err := s.reset(); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			break
		}
		if err := s.init(); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	default:
		if where, ok := strings.CutPrefix(line, ":break "); ok {
			if err := s.setBreakpoint(where); err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
			}
			break
		}
		if strings.HasPrefix(line, ":") {
			fmt.Fprintf(w, "unknown command %s (:help for commands)\n", line)
			break
		}
		ev, err := parseEvent(line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			break
		}
		handled, err := s.dispatch(ev)
		switch {
		case err != nil:
			fmt.Fprintf(w, "error: %v\n", err)
		case !handled:
			fmt.Fprintf(w, "no handler for %s\n", ev)
		case s.rt.NeedsRedraw():
			s.rt.ClearRedraw()
			if err := s.tree.Render(w); err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
			}
		}
	}
	return false
}
