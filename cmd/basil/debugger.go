package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/basil/config"
	"github.com/chazu/basil/debug"
	"github.com/chazu/basil/vm"
)

type breakpointSpec struct {
	file string
	line int // 1-based
}

// parseBreakpoints parses "file:line[,file:line...]".
func parseBreakpoints(s string) ([]breakpointSpec, error) {
	var out []breakpointSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		i := strings.LastIndexByte(part, ':')
		if i <= 0 {
			return nil, fmt.Errorf("breakpoint %q: expected file:line", part)
		}
		line, err := strconv.Atoi(part[i+1:])
		if err != nil || line < 1 {
			return nil, fmt.Errorf("breakpoint %q: invalid line", part)
		}
		out = append(out, breakpointSpec{file: part[:i], line: line})
	}
	return out, nil
}

// debugRun runs the program under a debug session, printing the stack and
// variables at every breakpoint.
func debugRun(b *build, cmds *vm.CommandCollection, cfg *config.Config, breaks string, stdin io.Reader, stdout io.Writer) error {
	specs, err := parseBreakpoints(breaks)
	if err != nil {
		return err
	}
	machine, err := newVM(b, cmds, cfg, stdin, stdout)
	if err != nil {
		return err
	}
	session, err := debug.NewSession(machine, b.sources)
	if err != nil {
		return err
	}
	defer session.Terminate()

	for _, spec := range specs {
		if _, ok := session.SetBreakpoint(spec.file, spec.line-1, 0); !ok {
			return fmt.Errorf("no statement at or after %s:%d", spec.file, spec.line)
		}
	}

	for {
		stop := session.Continue()
		switch stop.Reason {
		case debug.StopCompleted, debug.StopTerminated:
			return nil
		case debug.StopFaulted:
			return locateFault(b, stop.Fault)
		}
		if err := printStop(stdout, session, stop); err != nil {
			return err
		}
	}
}

func printStop(w io.Writer, session *debug.Session, stop debug.Stop) error {
	fmt.Fprintf(w, "-- %s at %s\n", stop.Reason, describeLocation(stop.Location))
	for _, frame := range session.StackTrace() {
		name := frame.Function
		if name == "" {
			name = "main"
		}
		fmt.Fprintf(w, "   #%d %s %s\n", frame.Depth, name, describeLocation(frame.Location))
		vars, err := session.Variables(frame.Depth)
		if err != nil {
			return err
		}
		for _, v := range vars {
			printVariable(w, v, "      ")
		}
	}
	return nil
}

func printVariable(w io.Writer, v debug.Variable, indent string) {
	fmt.Fprintf(w, "%s%s %s = %s\n", indent, v.Name, v.Type, v.Value)
	// Struct fields are already part of the value text; list array elements.
	if strings.HasPrefix(v.Value, "(") {
		for _, c := range v.Children {
			printVariable(w, c, indent+"  ")
		}
	}
}

func describeLocation(loc debug.Location) string {
	file := loc.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", file, loc.Line+1, loc.Char+1)
}
