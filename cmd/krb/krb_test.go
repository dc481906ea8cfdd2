package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/kryon/compiler"
	"github.com/chazu/kryon/manifest"
	"github.com/chazu/kryon/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const counterKIR = `{
  "root": {"id": 1, "type": "Column", "children": [
    {"id": 2, "type": "Text", "text": "0"},
    {"id": 7, "type": "Button", "text": "+"}
  ]},
  "logic_block": {
    "functions": [
      {"name": "init", "universal": {"statements": [
        {"op": "call", "function": "print", "args": ["ready"]}
      ]}},
      {"name": "increment", "universal": {"statements": [
        {"op": "assign_add", "target": "count", "expr": 1},
        {"op": "call", "function": "set_text", "args": [2, {"op": "concat", "left": "count: ", "right": {"var": "count"}}]}
      ]}}
    ],
    "event_bindings": [{"component_id": 7, "event_type": "click", "handler_name": "increment"}]
  },
  "reactive_manifest": {"variables": [{"name": "count", "type": "int", "initial_value": "0"}]}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	return p
}

func newCounterSession(t *testing.T, m *manifest.Manifest) (*session, *bytes.Buffer) {
	t.Helper()
	_, mod, err := compileSource([]byte(counterKIR), compiler.Options{})
	if err != nil {
		t.Fatalf("compileSource: %v", err)
	}
	var out bytes.Buffer
	s, err := newSession(mod, m, &out)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if err := s.init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s, &out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestParseEvent(t *testing.T) {
	tests := []struct {
		in      string
		want    event
		wantErr bool
	}{
		{"7", event{7, vm.EventClick}, false},
		{"7:click", event{7, vm.EventClick}, false},
		{"12:change", event{12, vm.EventChange}, false},
		{" 3 change ", event{3, vm.EventChange}, false},
		{"x:click", event{}, true},
		{"-1", event{}, true},
		{"7:hover", event{}, true},
	}

	for _, tt := range tests {
		got, err := parseEvent(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseEvent(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseEvent(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseEvent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"app.kir", "app.krb"},
		{"ui/app.json", "ui/app.krb"},
		{"noext", "noext.krb"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.in); got != tt.want {
			t.Errorf("outputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompileSourceEmbedsSnapshot(t *testing.T) {
	_, mod, err := compileSource([]byte(counterKIR), compiler.Options{Debug: true})
	if err != nil {
		t.Fatalf("compileSource: %v", err)
	}
	if len(mod.UI) == 0 {
		t.Error("module has no UI section")
	}
	if mod.Header.Flags&vm.FlagDebug == 0 {
		t.Error("debug flag not set")
	}
	if len(mod.Functions) != 2 || len(mod.Bindings) != 1 {
		t.Errorf("functions = %d, bindings = %d, want 2 and 1", len(mod.Functions), len(mod.Bindings))
	}
}

func TestBuildModuleUsesCache(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "app.kir", counterKIR)
	cachePath := filepath.Join(dir, ".kryon", "cache.db")

	first, cached, err := buildModule(src, compiler.Options{}, cachePath)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	if cached {
		t.Error("first build reported a cache hit")
	}

	second, cached, err := buildModule(src, compiler.Options{}, cachePath)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !cached {
		t.Error("second build missed the cache")
	}
	if !bytes.Equal(first.Code, second.Code) || !bytes.Equal(first.UI, second.UI) {
		t.Error("cached module differs from the compiled one")
	}

	if _, cached, err := buildModule(src, compiler.Options{Debug: true}, cachePath); err != nil || cached {
		t.Errorf("debug build: cached = %v, err = %v, want a fresh compile", cached, err)
	}
}

func TestBuildModuleReportsPath(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.kir", `{"logic_block": {"functions": [{"name": "f", "universal": {"statements": [{"op": "for_each"}]}}]}}`)

	_, _, err := buildModule(src, compiler.Options{}, "")
	if err == nil || !strings.Contains(err.Error(), "bad.kir") || !strings.Contains(err.Error(), "for_each") {
		t.Errorf("err = %v, want path and reason", err)
	}
}

func TestLoadModuleFromDisk(t *testing.T) {
	dir := t.TempDir()
	_, mod, err := compileSource([]byte(counterKIR), compiler.Options{})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "app.krb")
	if err := mod.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := loadModule(path, nil)
	if err != nil {
		t.Fatalf("loadModule: %v", err)
	}
	if !bytes.Equal(got.Code, mod.Code) {
		t.Error("loaded code differs")
	}
}

func TestSessionDispatch(t *testing.T) {
	s, out := newCounterSession(t, nil)
	if out.String() != "ready\n" {
		t.Errorf("init output = %q, want ready", out.String())
	}

	for i := 0; i < 2; i++ {
		handled, err := s.dispatch(event{7, vm.EventClick})
		if err != nil || !handled {
			t.Fatalf("dispatch: handled = %v, err = %v", handled, err)
		}
	}
	if handled, err := s.dispatch(event{42, vm.EventClick}); err != nil || handled {
		t.Errorf("unbound dispatch: handled = %v, err = %v", handled, err)
	}

	var tree bytes.Buffer
	if err := s.tree.Render(&tree); err != nil {
		t.Fatal(err)
	}
	want := "Column#1\n  Text#2 \"count: 2\"\n  Button#7 \"+\"\n"
	if tree.String() != want {
		t.Errorf("tree:\n%s\nwant:\n%s", tree.String(), want)
	}

	var globals bytes.Buffer
	s.writeGlobals(&globals)
	if globals.String() != "count = 2\n" {
		t.Errorf("globals = %q", globals.String())
	}
}

func TestSessionSeedsGlobalsFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, manifest.FileName, "[runtime.globals]\ncount = 40\nmissing = 1\n")
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	s, _ := newCounterSession(t, m)
	if _, err := s.dispatch(event{7, vm.EventClick}); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.rt.GlobalByName("count"); !v.Equal(vm.Int(41)) {
		t.Errorf("count = %v, want 41", v)
	}
}

func TestHandleLine(t *testing.T) {
	s, _ := newCounterSession(t, nil)

	tests := []struct {
		line string
		want string
		exit bool
	}{
		{"7", "Column#1\n  Text#2 \"count: 1\"\n  Button#7 \"+\"\n", false},
		{":redraw", "false\n", false},
		{"9:change", "no handler for 9:change\n", false},
		{":globals", "count = 1\n", false},
		{":reset", "", false},
		{":globals", "count = 0\n", false},
		{"x", "error: bad component id in \"x\"\n", false},
		{":nope", "unknown command :nope (:help for commands)\n", false},
		{":quit", "", true},
	}

	for _, tt := range tests {
		var w bytes.Buffer
		exit := handleLine(s, tt.line, &w)
		if exit != tt.exit {
			t.Errorf("%q: exit = %v, want %v", tt.line, exit, tt.exit)
		}
		if w.String() != tt.want {
			t.Errorf("%q: output = %q, want %q", tt.line, w.String(), tt.want)
		}
	}
}

func TestBuildModuleStrictSkipsCache(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "app.kir", counterKIR)
	cachePath := filepath.Join(dir, "cache.db")

	if _, _, err := buildModule(src, compiler.Options{}, cachePath); err != nil {
		t.Fatal(err)
	}
	_, cached, err := buildModule(src, compiler.Options{Strict: true}, cachePath)
	if err != nil {
		t.Fatalf("strict build: %v", err)
	}
	if cached {
		t.Error("strict build used the cache")
	}
}

func TestHandleLineProfile(t *testing.T) {
	s, _ := newCounterSession(t, nil)

	var w bytes.Buffer
	handleLine(s, ":profile", &w)
	if w.String() != "profiling enabled\n" {
		t.Fatalf("output = %q", w.String())
	}
	handleLine(s, "7", io.Discard)
	handleLine(s, ":reset", io.Discard)
	handleLine(s, "7", io.Discard)

	w.Reset()
	handleLine(s, ":profile", &w)
	// init after :reset, plus two clicks
	if !strings.Contains(w.String(), "3 invocations") || !strings.Contains(w.String(), "increment") {
		t.Errorf("profile report:\n%s", w.String())
	}
}

func TestParseBreakpoint(t *testing.T) {
	tests := []struct {
		in      string
		fn      string
		off     int
		wantErr bool
	}{
		{"increment", "increment", 0, false},
		{"increment+4", "increment", 4, false},
		{"+4", "", 0, true},
		{"increment+x", "", 0, true},
	}
	for _, tt := range tests {
		fn, off, err := parseBreakpoint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBreakpoint(%q): err = %v", tt.in, err)
			continue
		}
		if fn != tt.fn || off != tt.off {
			t.Errorf("parseBreakpoint(%q) = %s+%d, want %s+%d", tt.in, fn, off, tt.fn, tt.off)
		}
	}
}

func TestHandleLineBreakpoints(t *testing.T) {
	s, _ := newCounterSession(t, nil)
	var stops bytes.Buffer
	s.stopOut = &stops

	tests := []struct {
		line string
		want string
	}{
		{":breaks", ""},
		{":break nope", "error: invalid function index: nope\n"},
		{":break increment", ""},
		{":breaks", "increment+0\n"},
	}
	for _, tt := range tests {
		var w bytes.Buffer
		handleLine(s, tt.line, &w)
		if w.String() != tt.want {
			t.Errorf("%q: output = %q, want %q", tt.line, w.String(), tt.want)
		}
	}

	handleLine(s, "7", io.Discard)
	if !strings.HasPrefix(stops.String(), "breakpoint [increment] 0000") {
		t.Errorf("stop output = %q", stops.String())
	}

	// Breakpoints survive :reset.
	stops.Reset()
	handleLine(s, ":reset", io.Discard)
	handleLine(s, "7", io.Discard)
	if !strings.Contains(stops.String(), "breakpoint [increment]") {
		t.Errorf("no stop after reset: %q", stops.String())
	}

	stops.Reset()
	handleLine(s, ":clear", io.Discard)
	handleLine(s, "7", io.Discard)
	if stops.Len() != 0 {
		t.Errorf("stop after :clear: %q", stops.String())
	}
}

func TestHandleLineTrace(t *testing.T) {
	s, _ := newCounterSession(t, nil)
	var stops bytes.Buffer
	s.stopOut = &stops

	var w bytes.Buffer
	handleLine(s, ":trace", &w)
	if w.String() != "trace true\n" {
		t.Fatalf("output = %q", w.String())
	}
	handleLine(s, "7", io.Discard)
	lines := strings.Split(strings.TrimSpace(stops.String()), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "trace [increment] 0000") {
		t.Errorf("trace output:\n%s", stops.String())
	}

	w.Reset()
	handleLine(s, ":trace", &w)
	if w.String() != "trace false\n" {
		t.Errorf("output = %q", w.String())
	}
}
