package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/basil/compiler"
	"github.com/chazu/basil/config"
	"github.com/chazu/basil/debug"
	"github.com/chazu/basil/vm"
)

// programExt is the extension of compiled program files written by -o.
const programExt = ".bsl"

// build is a compiled program with the map back to its source files.
type build struct {
	prog    *vm.Program
	sources *debug.SourceMap
}

// compileFiles concatenates files into one program and compiles it.
// Diagnostics are written to diags in file:line:col form.
func compileFiles(paths []string, cmds *vm.CommandCollection, opts compiler.Options, diags io.Writer) (*build, error) {
	if len(paths) == 0 {
		return nil, errors.New("no source files")
	}
	files := make([]debug.SourceFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		files = append(files, debug.SourceFile{Name: path, Text: string(data)})
	}
	src, sources := debug.Concat(files...)

	prog, ds, err := compiler.Compile(src, cmds, opts)
	if len(ds) > 0 {
		reportDiagnostics(diags, sources, ds)
	}
	if err != nil {
		var de *compiler.DiagnosticsError
		if errors.As(err, &de) {
			return nil, fmt.Errorf("%d errors", len(de.Diagnostics))
		}
		return nil, err
	}
	return &build{prog: prog, sources: sources}, nil
}

// reportDiagnostics writes one line per diagnostic, positioned in the
// original files with 1-based lines and columns.
func reportDiagnostics(w io.Writer, sources *debug.SourceMap, diags []compiler.Diagnostic) {
	for _, d := range diags {
		file, line, ok := sources.Original(d.Start.Line)
		if !ok {
			file, line = "?", d.Start.Line
		}
		fmt.Fprintf(w, "%s:%d:%d: %s error: %s\n", file, line+1, d.Start.Char+1, d.Kind, d.Message)
	}
}

// write stores the program and its source map as two lines of text.
func (b *build) write(path string) error {
	prog, err := vm.EncodeText(b.prog)
	if err != nil {
		return err
	}
	sources, err := b.sources.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(prog+"\n"+sources+"\n"), 0644)
}

// loadProgram reads a program file written by write.
func loadProgram(path string) (*build, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(nil, 64<<20)
	var lines []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(lines) != 2 {
		return nil, fmt.Errorf("%s: not a program file", path)
	}

	var prog vm.Program
	if err := vm.DecodeText(lines[0], &prog); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sources, err := debug.DecodeSourceMap(lines[1])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &build{prog: &prog, sources: sources}, nil
}

func newVM(b *build, cmds *vm.CommandCollection, cfg *config.Config, stdin io.Reader, stdout io.Writer) (*vm.VM, error) {
	vc := cfg.VMConfig()
	vc.Stdin, vc.Stdout = stdin, stdout
	return vm.New(b.prog, cmds, vc)
}

// run executes the program to completion. A fault is reported with its
// source position when the program carries debug tables.
func run(b *build, cmds *vm.CommandCollection, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	machine, err := newVM(b, cmds, cfg, stdin, stdout)
	if err != nil {
		return err
	}
	if err := machine.Run(); err != nil {
		return locateFault(b, err)
	}
	return nil
}

func locateFault(b *build, err error) error {
	var f *vm.Fault
	if !errors.As(err, &f) || b.prog.Debug == nil {
		return err
	}
	start, ok := b.prog.Debug.StatementFor(f.IP)
	if !ok {
		return err
	}
	file, line, ok := b.sources.Original(b.prog.Debug.Tokens[start].Line)
	if !ok {
		return err
	}
	return fmt.Errorf("%s:%d: %w", file, line+1, err)
}
