// krb compiles KIR documents to .krb bytecode modules and runs them.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/kryon/manifest"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	quiet := flag.Bool("q", false, "Only log errors")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: krb [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles KIR documents to KRB bytecode modules and runs them.\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  compile   Compile a .kir document to a .krb module\n")
		fmt.Fprintf(os.Stderr, "  disasm    Disassemble a module\n")
		fmt.Fprintf(os.Stderr, "  info      Print module header, tables and sizes\n")
		fmt.Fprintf(os.Stderr, "  run       Run init and dispatch events\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  krb compile app.kir              # writes app.krb\n")
		fmt.Fprintf(os.Stderr, "  krb compile                      # uses krb.toml\n")
		fmt.Fprintf(os.Stderr, "  krb disasm app.krb\n")
		fmt.Fprintf(os.Stderr, "  krb run -e 7:click -e 7:click app.krb\n")
		fmt.Fprintf(os.Stderr, "  krb run -i app.kir               # interactive session\n")
		fmt.Fprintf(os.Stderr, "  krb run -break increment -e 7 app.kir  # report the stack on entry\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}

	verbosity := 0
	if m != nil {
		verbosity = m.Log.Verbosity
	}
	switch {
	case *verbose:
		verbosity = 2
	case *quiet:
		verbosity = -2
	}
	commonlog.Configure(verbosity, nil)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "compile":
		err = handleCompileCommand(rest, m)
	case "disasm":
		err = handleDisasmCommand(rest, m)
	case "info":
		err = handleInfoCommand(rest, m)
	case "run":
		err = handleRunCommand(rest, m)
	case "help":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
