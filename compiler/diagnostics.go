package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// DiagnosticKind classifies a non-fatal diagnostic.
type DiagnosticKind int

const (
	DiagLexical DiagnosticKind = iota
	DiagSyntax
	DiagSemantic
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagLexical:
		return "lexical"
	case DiagSyntax:
		return "syntax"
	}
	return "semantic"
}

// Diagnostic is a located problem found while lexing, parsing or checking.
// Diagnostics are collected, never thrown.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
	Start   Position
	End     Position
	Excerpt string // raw source text of the offending token, if any
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", d.Start.Line+1, d.Start.Char+1, d.Message)
}

// SortDiagnostics orders diagnostics by position, keeping the relative order
// of diagnostics at the same position.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Start.Before(diags[j].Start)
	})
}

// DiagnosticsError is returned when compilation is refused because the
// program has outstanding diagnostics.
type DiagnosticsError struct {
	Diagnostics []Diagnostic
}

func (e *DiagnosticsError) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d problems:", len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		sb.WriteString("\n  ")
		sb.WriteString(d.Error())
	}
	return sb.String()
}

// CompileError is a fatal failure to lower a checked program.
type CompileError struct {
	Node   Node
	Reason string
}

func (e *CompileError) Error() string {
	if e.Node != nil {
		pos := e.Node.Span().Start
		return fmt.Sprintf("compile error at line %d, column %d: %s", pos.Line+1, pos.Char+1, e.Reason)
	}
	return "compile error: " + e.Reason
}
