package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/kryon/cache"
	"github.com/chazu/kryon/compiler"
	"github.com/chazu/kryon/compiler/hash"
	"github.com/chazu/kryon/manifest"
	"github.com/chazu/kryon/ui"
	"github.com/chazu/kryon/vm"
)

var log = commonlog.GetLogger("kryon.krb")

// compileSource runs the full KIR pipeline: schema check and decode, UI
// snapshot, then bytecode.
func compileSource(data []byte, opts compiler.Options) (*compiler.Program, *vm.Module, error) {
	doc, err := compiler.ParseKIR(data)
	if err != nil {
		return nil, nil, err
	}

	tree, err := ui.ParseKIRRoot(doc.Root)
	if err != nil {
		return nil, nil, err
	}
	if tree.Len() > 0 {
		if doc.Program.UI, err = tree.MarshalSnapshot(); err != nil {
			return nil, nil, err
		}
	}

	mod, err := compiler.CompileModule(doc.Program, opts)
	if err != nil {
		return nil, nil, err
	}
	return doc.Program, mod, nil
}

// buildModule compiles the KIR file at path, consulting the cache at
// cachePath first. An empty cachePath disables caching. Strict builds always
// recompile so warnings are seen. Cache failures are logged and never fail
// the build.
func buildModule(path string, opts compiler.Options, cachePath string) (mod *vm.Module, cached bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	src := hash.HashSource(data)

	var c *cache.Cache
	if cachePath != "" {
		if c, err = cache.Open(cachePath); err != nil {
			log.Warningf("cache unavailable: %s", err)
		} else {
			defer c.Close()
		}
	}
	if c != nil && !opts.Strict {
		mod, err := c.Get(src, opts.Debug)
		if err == nil {
			return mod, true, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			log.Warningf("cache read: %s", err)
		}
	}

	prog, mod, err := compileSource(data, opts)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	if c != nil {
		if err := c.Put(src, hash.HashProgram(prog), mod); err != nil {
			log.Warningf("cache write: %s", err)
		}
	}
	return mod, false, nil
}

func isKIR(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kir", ".json":
		return true
	}
	return false
}

// loadModule reads a compiled module, or compiles a KIR document in memory.
func loadModule(path string, m *manifest.Manifest) (*vm.Module, error) {
	if !isKIR(path) {
		return vm.LoadModule(path)
	}
	var opts compiler.Options
	cachePath := ""
	if m != nil {
		opts.Debug, cachePath = m.Output.Debug, m.CachePath()
	}
	mod, _, err := buildModule(path, opts, cachePath)
	return mod, err
}

// inputPath picks the file a command operates on: the first argument, else
// the manifest's compiled module if it exists, else its KIR source.
func inputPath(args []string, m *manifest.Manifest) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if m == nil {
		return "", errors.New("no input file and no " + manifest.FileName + " found")
	}
	if _, err := os.Stat(m.ModulePath()); err == nil {
		return m.ModulePath(), nil
	}
	return m.KIRPath(), nil
}

// outputPath replaces the source extension with .krb.
func outputPath(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".krb"
}

// handleCompileCommand processes the `krb compile` subcommand.
// Usage:
//
//	krb compile                  # [source] kir -> [output] module
//	krb compile app.kir          # ./app.krb
//	krb compile -o out.krb app.kir
func handleCompileCommand(args []string, m *manifest.Manifest) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	out := fs.String("o", "", "Output module path")
	debug := fs.Bool("debug", false, "Set the module DEBUG flag")
	strict := fs.Bool("strict", false, "Treat semantic warnings as errors")
	noCache := fs.Bool("no-cache", false, "Skip the compile cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var source, dest, cachePath string
	if fs.NArg() > 0 {
		source = fs.Arg(0)
		dest = outputPath(source)
	} else if m != nil {
		source, dest = m.KIRPath(), m.ModulePath()
	} else {
		return errors.New("no input file and no " + manifest.FileName + " found")
	}
	if *out != "" {
		dest = *out
	}
	if m != nil {
		*debug = *debug || m.Output.Debug
		cachePath = m.CachePath()
	}
	if *noCache {
		cachePath = ""
	}

	opts := compiler.Options{Debug: *debug, Strict: *strict}
	mod, cached, err := buildModule(source, opts, cachePath)
	if err != nil {
		return err
	}

	data, err := mod.MarshalBinary()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}

	note := ""
	if cached {
		note = ", cached"
	}
	fmt.Printf("Wrote %s (%d bytes, %d functions%s)\n", dest, len(data), len(mod.Functions), note)
	return nil
}

// handleDisasmCommand processes the `krb disasm` subcommand.
func handleDisasmCommand(args []string, m *manifest.Manifest) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	fn := fs.String("f", "", "Only disassemble the named function")
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

	if *fn == "" {
		fmt.Print(mod.Disassemble())
		return nil
	}
	i, ok := mod.FunctionIndex(*fn)
	if !ok {
		return fmt.Errorf("no function %q", *fn)
	}
	listing, err := mod.DisassembleFunction(i)
	if err != nil {
		return err
	}
	fmt.Printf("; %s\n%s\n", *fn, listing)
	return nil
}

// handleInfoCommand processes the `krb info` subcommand.
func handleInfoCommand(args []string, m *manifest.Manifest) error {
	path, err := inputPath(args, m)
	if err != nil {
		return err
	}
	mod, err := loadModule(path, m)
	if err != nil {
		return err
	}
	return vm.WriteInfo(os.Stdout, mod)
}
