package compiler

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/basil/vm"
)

var log = commonlog.GetLogger("basil.compiler")

// ---------------------------------------------------------------------------
// Compile helpers for external use
// ---------------------------------------------------------------------------

// Analyze parses and checks src without generating code. It returns the
// AST and every lexical, syntax and semantic diagnostic, sorted by
// position.
func Analyze(src string, cmds *vm.CommandCollection, opts Options) (*ProgramNode, []Diagnostic) {
	prog := Parse(src, cmds, ParseOptions{Strict: opts.Strict})
	diags := Check(prog, cmds)
	return prog, diags
}

// Compile parses, checks and lowers src. Diagnostics are always returned;
// when there are any, compilation is refused and err is a
// *DiagnosticsError.
func Compile(src string, cmds *vm.CommandCollection, opts Options) (*vm.Program, []Diagnostic, error) {
	prog, diags := Analyze(src, cmds, opts)
	if len(diags) > 0 {
		log.Infof("compilation refused: %d diagnostics", len(diags))
		return nil, diags, &DiagnosticsError{Diagnostics: diags}
	}
	out, err := Generate(prog, cmds, opts)
	if err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}
