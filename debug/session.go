// Package debug layers source-level debugging over a VM: breakpoints by
// file position, statement stepping, stack traces and variable inspection.
package debug

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/basil/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("basil.debug")

var (
	// ErrNoDebugData is returned for programs compiled without debug tables.
	ErrNoDebugData = errors.New("debug: program has no debug data")
	// ErrNotSuspended is returned by inspection while the program is not
	// stopped at a suspend point.
	ErrNotSuspended = errors.New("debug: program is not suspended")
)

// StopReason says why a Continue or step request returned.
type StopReason int

const (
	StopBreakpoint StopReason = iota
	StopStep
	StopPause
	StopCompleted
	StopFaulted
	StopTerminated
)

var stopReasonNames = map[StopReason]string{
	StopBreakpoint: "breakpoint",
	StopStep:       "step",
	StopPause:      "pause",
	StopCompleted:  "completed",
	StopFaulted:    "faulted",
	StopTerminated: "terminated",
}

func (r StopReason) String() string {
	if name, ok := stopReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Location is a source position in original file coordinates.
type Location struct {
	File     string
	Line     int
	Char     int
	Offset   int    // instruction offset of the statement
	Function string // "" in the main program
}

// Stop is the result of an execution request.
type Stop struct {
	Reason   StopReason
	Location Location
	Fault    *vm.Fault
}

// Breakpoint is a resolved breakpoint.
type Breakpoint struct {
	ID       int
	Location Location
}

// StackFrame is one entry of a stack trace.
type StackFrame struct {
	Depth    int
	Function string
	IP       int
	Location Location
}

type stepMode int

const (
	stepIn stepMode = iota
	stepOver
	stepOut
)

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session debugs one VM. Execution requests block the caller until the
// program stops; Pause may be called from another goroutine.
type Session struct {
	ID string

	machine *vm.VM
	debug   *vm.DebugData
	sources *SourceMap

	mu          sync.Mutex
	breakpoints map[int]Breakpoint // by instruction offset
	nextID      int
	terminated  bool
}

// NewSession attaches a debug session to machine. sources maps the compiled
// buffer back to files; nil means the program came from a single file.
func NewSession(machine *vm.VM, sources *SourceMap) (*Session, error) {
	dbg := machine.Program().Debug
	if dbg == nil {
		return nil, ErrNoDebugData
	}
	s := &Session{
		ID:          uuid.NewString(),
		machine:     machine,
		debug:       dbg,
		sources:     sources,
		breakpoints: make(map[int]Breakpoint),
		nextID:      1,
	}
	log.Infof("session %s: %d statements", s.ID, len(dbg.StatementOffsets()))
	return s, nil
}

// VM returns the debugged machine.
func (s *Session) VM() *vm.VM {
	return s.machine
}

// ---------------------------------------------------------------------------
// Breakpoints
// ---------------------------------------------------------------------------

// SetBreakpoint resolves (file, line, char) to the first statement at or
// after that position in the same file and sets a breakpoint there. Setting
// the same position again returns the same breakpoint. ok is false when no
// statement follows the position.
func (s *Session) SetBreakpoint(file string, line, char int) (Breakpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.sources.Resolve(file, line)
	if !ok {
		return Breakpoint{}, false
	}
	offset, ok := s.resolve(target, char)
	if !ok {
		return Breakpoint{}, false
	}
	loc := s.locate(offset)
	if loc.File != file {
		return Breakpoint{}, false
	}
	if bp, ok := s.breakpoints[offset]; ok {
		return bp, true
	}
	if err := s.machine.SetBreakpoint(offset); err != nil {
		log.Warningf("session %s: %s", s.ID, err)
		return Breakpoint{}, false
	}
	bp := Breakpoint{ID: s.nextID, Location: loc}
	s.nextID++
	s.breakpoints[offset] = bp
	log.Debugf("session %s: breakpoint %d at %s:%d:%d (offset %d)", s.ID, bp.ID, file, loc.Line, loc.Char, offset)
	return bp, true
}

// resolve finds the statement whose token is the nearest at or after
// (line, char) in the combined buffer. Ties go to the lowest offset.
func (s *Session) resolve(line, char int) (int, bool) {
	best, found := 0, false
	var bestTok vm.TokenRef
	for _, off := range s.debug.StatementOffsets() {
		tok := s.debug.Tokens[off]
		if tok.Line < line || (tok.Line == line && tok.Char < char) {
			continue
		}
		if !found || tok.Line < bestTok.Line || (tok.Line == bestTok.Line && tok.Char < bestTok.Char) {
			best, bestTok, found = off, tok, true
		}
	}
	return best, found
}

// ClearBreakpoints removes every breakpoint.
func (s *Session) ClearBreakpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.ClearBreakpoints()
	clear(s.breakpoints)
}

// Breakpoints returns the breakpoints ordered by ID.
func (s *Session) Breakpoints() []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Continue runs until a breakpoint, a pause request or the end of the
// program.
func (s *Session) Continue() Stop {
	if s.isTerminated() {
		return Stop{Reason: StopTerminated}
	}
	state, _ := s.machine.Execute(0)
	if state == vm.StateSuspended && s.machine.HasBreakpoint(s.machine.IP()) {
		return s.stop(StopBreakpoint)
	}
	return s.finish(state, StopPause)
}

// Pause asks a running program to stop before its next instruction.
func (s *Session) Pause() {
	s.machine.RequestPause()
}

// StepIn runs to the next statement start at any call depth.
func (s *Session) StepIn() Stop {
	return s.step(stepIn)
}

// StepOver runs to the next statement start at the current call depth or
// shallower, running called functions to completion.
func (s *Session) StepOver() Stop {
	return s.step(stepOver)
}

// StepOut runs until the current function has returned and the caller
// reaches a statement start.
func (s *Session) StepOut() Stop {
	return s.step(stepOut)
}

func (s *Session) step(mode stepMode) Stop {
	if s.isTerminated() {
		return Stop{Reason: StopTerminated}
	}
	depth := s.machine.CallDepth()
	for {
		state, paused := s.stepOne()
		if state != vm.StateSuspended {
			return s.finish(state, StopStep)
		}
		if paused {
			return s.stop(StopPause)
		}
		ip := s.machine.IP()
		if s.debug.IsStatement(ip) {
			d := s.machine.CallDepth()
			if mode == stepIn || (mode == stepOver && d <= depth) || (mode == stepOut && d < depth) {
				return s.stop(StopStep)
			}
		}
		if s.machine.HasBreakpoint(ip) {
			return s.stop(StopBreakpoint)
		}
	}
}

// stepOne executes a single instruction. paused reports that a pause
// request stopped the VM before anything ran.
func (s *Session) stepOne() (state vm.State, paused bool) {
	wasReady := s.machine.State() == vm.StateReady
	before := s.machine.Executed()
	state, _ = s.machine.Execute(1)
	if state != vm.StateSuspended || s.machine.Executed() != before {
		return state, false
	}
	if wasReady && s.machine.HasBreakpoint(s.machine.IP()) {
		// A fresh VM stops at a breakpoint on its first instruction
		// without running it.
		state, _ = s.machine.Execute(1)
		return state, false
	}
	return state, true
}

func (s *Session) stop(reason StopReason) Stop {
	return Stop{Reason: reason, Location: s.Location()}
}

func (s *Session) finish(state vm.State, suspended StopReason) Stop {
	switch state {
	case vm.StateCompleted:
		return Stop{Reason: StopCompleted}
	case vm.StateFaulted:
		f := s.machine.Fault()
		log.Infof("session %s: %s", s.ID, f)
		return Stop{Reason: StopFaulted, Location: s.locate(f.IP), Fault: f}
	}
	return s.stop(suspended)
}

// Terminate ends the program and releases its resources. Later requests
// report StopTerminated.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.machine.Terminate()
	log.Infof("session %s: terminated", s.ID)
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Location returns the source position of the statement containing the
// next instruction.
func (s *Session) Location() Location {
	return s.locate(s.machine.IP())
}

// locate maps an instruction offset to the statement containing it.
func (s *Session) locate(ip int) Location {
	start, ok := s.debug.StatementFor(ip)
	if !ok {
		return Location{Offset: ip}
	}
	tok := s.debug.Tokens[start]
	loc := Location{Offset: start, Char: tok.Char, Function: s.debug.Functions[start]}
	if file, line, ok := s.sources.Original(tok.Line); ok {
		loc.File, loc.Line = file, line
	}
	return loc
}

// StackTrace returns the active frames, innermost first.
func (s *Session) StackTrace() []StackFrame {
	frames := s.machine.Frames()
	out := make([]StackFrame, 0, len(frames))
	for _, f := range frames {
		out = append(out, StackFrame{
			Depth:    f.Depth,
			Function: f.Function,
			IP:       f.IP,
			Location: s.locate(f.IP),
		})
	}
	return out
}

// Variables returns the variables in scope in the frame at depth (see
// StackFrame.Depth). It is only valid while the program is suspended.
func (s *Session) Variables(depth int) ([]Variable, error) {
	if s.machine.State() != vm.StateSuspended {
		return nil, ErrNotSuspended
	}
	for _, f := range s.machine.Frames() {
		if f.Depth != depth {
			continue
		}
		return s.read(depth, s.debug.VariablesIn(f.Function, f.IP))
	}
	return nil, fmt.Errorf("debug: no frame at depth %d", depth)
}

// Globals returns every main program variable. It is only valid while the
// program is suspended.
func (s *Session) Globals() ([]Variable, error) {
	if s.machine.State() != vm.StateSuspended {
		return nil, ErrNotSuspended
	}
	return s.read(0, s.debug.VariablesIn("", len(s.machine.Program().Code)))
}

func (s *Session) read(depth int, refs []vm.VariableRef) ([]Variable, error) {
	out := make([]Variable, 0, len(refs))
	for _, ref := range refs {
		d := depth
		if ref.Storage == vm.StorageGlobal {
			d = 0
		}
		v, err := s.machine.ReadVariable(d, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, s.render(ref, v))
	}
	return out, nil
}
