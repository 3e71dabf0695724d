// Basil CLI - compiles and runs basil programs
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/basil/commands"
	"github.com/chazu/basil/config"
	"github.com/chazu/basil/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (0 quiet, 2 info, 4 debug); overrides basil.toml")
	configDir := flag.String("config", "", "Directory containing basil.toml (default: search upward from .)")
	disasm := flag.Bool("disasm", false, "Print the compiled bytecode instead of running")
	debugData := flag.Bool("debug-data", false, "Attach debug tables to the compiled program")
	strict := flag.Bool("strict", false, "Stop parsing at the first error")
	output := flag.String("o", "", "Write the compiled program to this file instead of running")
	breaks := flag.String("break", "", "Run under the debugger, stopping at file:line[,file:line...]")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: basil [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles the given .bas files as one program and runs it. Without files,\n")
		fmt.Fprintf(os.Stderr, "the [source] files of the nearest basil.toml are used. A single .bsl file\n")
		fmt.Fprintf(os.Stderr, "written by -o is run without recompiling.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  basil main.bas lib.bas        # Compile both files and run\n")
		fmt.Fprintf(os.Stderr, "  basil -disasm main.bas        # Show bytecode\n")
		fmt.Fprintf(os.Stderr, "  basil -o game.bsl main.bas    # Compile to a program file\n")
		fmt.Fprintf(os.Stderr, "  basil -break main.bas:12      # Stop at line 12 and show variables\n")
		fmt.Fprintf(os.Stderr, "  basil -lsp                    # Language server for editors\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level := cfg.Log.Verbosity
	if *verbosity >= 0 {
		level = *verbosity
	}
	logPath := cfg.LogPath()
	if logPath == "" {
		commonlog.Configure(level, nil)
	} else {
		commonlog.Configure(level, &logPath)
	}

	cmds, err := commands.Default()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *lspMode {
		if err := server.NewLSP(cmds).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Language server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := cfg.CompilerOptions()
	opts.Strict = opts.Strict || *strict
	opts.DebugData = opts.DebugData || *debugData || *breaks != ""

	paths := flag.Args()
	if len(paths) == 0 {
		paths = cfg.SourcePaths()
	}

	var b *build
	if len(paths) == 1 && filepath.Ext(paths[0]) == programExt {
		b, err = loadProgram(paths[0])
	} else {
		b, err = compileFiles(paths, cmds, opts, os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *disasm:
		fmt.Print(b.prog.Disassemble())
	case *output != "":
		if err := b.write(*output); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *breaks != "":
		if err := debugRun(b, cmds, cfg, *breaks, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := run(b, cmds, cfg, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}
}

// loadConfig loads basil.toml from dir, or from the nearest parent of the
// working directory when dir is empty. Missing files yield the defaults.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
		cfg.Dir, _ = os.Getwd()
	}
	return cfg, nil
}
