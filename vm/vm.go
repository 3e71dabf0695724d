package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("basil.vm")

// ---------------------------------------------------------------------------
// VM: execution state for one program instance
// ---------------------------------------------------------------------------

// State is the VM lifecycle state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateFaulted
	StateCompleted
)

var stateNames = map[State]string{
	StateReady:     "ready",
	StateRunning:   "running",
	StateSuspended: "suspended",
	StateFaulted:   "faulted",
	StateCompleted: "completed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config sets resource limits and I/O for a VM.
type Config struct {
	InitialStackSize int
	MaxStackSize     int
	MaxHeapSize      int
	MaxCallDepth     int
	Stdout           io.Writer
	Stdin            io.Reader
}

// DefaultConfig returns the limits used when a Config field is zero.
func DefaultConfig() Config {
	return Config{
		InitialStackSize: 4 << 10,
		MaxStackSize:     1 << 20,
		MaxHeapSize:      64 << 20,
		MaxCallDepth:     4096,
		Stdout:           os.Stdout,
		Stdin:            os.Stdin,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialStackSize <= 0 {
		c.InitialStackSize = d.InitialStackSize
	}
	if c.MaxStackSize <= 0 {
		c.MaxStackSize = d.MaxStackSize
	}
	if c.MaxHeapSize <= 0 || c.MaxHeapSize > 1<<30 {
		c.MaxHeapSize = d.MaxHeapSize
	}
	if c.MaxCallDepth <= 0 || c.MaxCallDepth > 1<<14-1 {
		c.MaxCallDepth = d.MaxCallDepth
	}
	if c.Stdout == nil {
		c.Stdout = d.Stdout
	}
	if c.Stdin == nil {
		c.Stdin = d.Stdin
	}
	return c
}

// frame is one activation. Frame 0 is the main program, which keeps its
// variables in the global register file.
type frame struct {
	fn       int // function index, -1 for main
	returnIP int
	base     int // byte offset of slot 0 in the locals buffer
	size     int
	gosubs   []int
}

// FrameInfo describes an activation for stack traces.
type FrameInfo struct {
	Depth    int    // 0 is the main program
	Function string // "" for the main program
	IP       int    // current instruction for the innermost frame, else the resume point
}

// ErrProgramMismatch reports a program compiled against a different command
// table than the one supplied.
var ErrProgramMismatch = errors.New("vm: program was compiled against a different command table")

// VM executes one program. A VM is not safe for concurrent use; all of its
// mutable state, including host command state, is owned by the instance.
type VM struct {
	prog *Program
	cmds *CommandCollection
	cfg  Config

	state State
	ip    int
	fault *Fault

	stack   *Stack
	heap    *Heap
	globals []byte
	locals  []byte
	frames  []frame
	strings []uint32 // heap handles of program string constants

	breakpoints []bool
	nBreak      int
	pause       atomic.Bool
	executed    uint64

	call     CallContext
	instance map[string]any
}

// New creates a VM for prog, dispatching host calls through cmds.
func New(prog *Program, cmds *CommandCollection, cfg Config) (*VM, error) {
	if prog == nil {
		return nil, errors.New("vm: nil program")
	}
	if cmds == nil {
		cmds, _ = NewCommandCollection()
	}
	if prog.CommandDigest != cmds.Digest() {
		return nil, ErrProgramMismatch
	}
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("vm: invalid program: %w", err)
	}
	cfg = cfg.withDefaults()
	vm := &VM{
		prog:     prog,
		cmds:     cmds,
		cfg:      cfg,
		stack:    NewStack(cfg.InitialStackSize, cfg.MaxStackSize),
		heap:     NewHeap(cfg.MaxHeapSize),
		instance: make(map[string]any),
	}
	vm.Reset()
	return vm, nil
}

// Reset rewinds the VM to its initial Ready state, clearing variables and
// the heap. Breakpoints and instance state are kept.
func (vm *VM) Reset() {
	vm.state = StateReady
	vm.ip = 0
	vm.fault = nil
	vm.executed = 0
	vm.stack.Reset()
	vm.heap.Reset()
	vm.globals = make([]byte, vm.prog.Globals*8)
	vm.locals = vm.locals[:0]
	vm.frames = append(vm.frames[:0], frame{fn: -1})
	vm.strings = vm.strings[:0]
	for _, s := range vm.prog.Strings {
		vm.strings = append(vm.strings, vm.heap.AllocString(s))
	}
	vm.pause.Store(false)
}

// Program returns the program being executed.
func (vm *VM) Program() *Program { return vm.prog }

// Commands returns the dispatch table.
func (vm *VM) Commands() *CommandCollection { return vm.cmds }

// State returns the lifecycle state.
func (vm *VM) State() State { return vm.state }

// IP returns the offset of the next instruction to execute.
func (vm *VM) IP() int { return vm.ip }

// Fault returns the fault that stopped the VM, if any.
func (vm *VM) Fault() *Fault { return vm.fault }

// Executed returns the number of instructions executed since Reset.
func (vm *VM) Executed() uint64 { return vm.executed }

// Heap returns the VM's heap.
func (vm *VM) Heap() *Heap { return vm.heap }

// Stdout returns the writer host commands print to.
func (vm *VM) Stdout() io.Writer { return vm.cfg.Stdout }

// Stdin returns the reader host commands read input from.
func (vm *VM) Stdin() io.Reader { return vm.cfg.Stdin }

// InstanceState returns per-VM state for key, creating it with init on first
// use. Host commands keep their mutable state here rather than in package
// variables so that VM instances stay independent.
func (vm *VM) InstanceState(key string, init func() any) any {
	if v, ok := vm.instance[key]; ok {
		return v
	}
	v := init()
	vm.instance[key] = v
	return v
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Run executes the program to completion.
func (vm *VM) Run() error {
	_, err := vm.Execute(0)
	return err
}

// Execute runs at most budget instructions (budget <= 0 runs until the
// program stops). It returns the resulting state; the error is the fault
// when the state is StateFaulted.
//
// Execution suspends when the budget is used up, when a breakpoint offset is
// reached, or when RequestPause was called. Resuming a suspended VM always
// executes the instruction it stopped at, even if it carries a breakpoint.
func (vm *VM) Execute(budget int) (state State, err error) {
	switch vm.state {
	case StateFaulted:
		return vm.state, vm.fault
	case StateCompleted:
		return vm.state, nil
	}
	resuming := vm.state == StateSuspended
	vm.state = StateRunning

	start := vm.ip
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				f = &Fault{Kind: FaultInternal, Message: fmt.Sprint(r)}
			}
			f.IP = start
			vm.fault = f
			vm.state = StateFaulted
			log.Debugf("fault: %s", f)
			state, err = vm.state, f
		}
	}()

	for n := 0; ; n++ {
		if budget > 0 && n >= budget {
			vm.state = StateSuspended
			return vm.state, nil
		}
		if vm.pause.CompareAndSwap(true, false) {
			vm.state = StateSuspended
			log.Debugf("paused at %04d", vm.ip)
			return vm.state, nil
		}
		if vm.nBreak > 0 && !(resuming && n == 0) && vm.ip < len(vm.breakpoints) && vm.breakpoints[vm.ip] {
			vm.state = StateSuspended
			log.Debugf("breakpoint at %04d", vm.ip)
			return vm.state, nil
		}
		if vm.ip >= len(vm.prog.Code) {
			vm.state = StateCompleted
			return vm.state, nil
		}
		start = vm.ip
		if vm.step() {
			vm.executed++
			vm.state = StateCompleted
			return vm.state, nil
		}
		vm.executed++
	}
}

// RequestPause asks a running VM to suspend before its next instruction. It
// may be called from another goroutine.
func (vm *VM) RequestPause() {
	vm.pause.Store(true)
}

// Terminate stops the program and releases its heap. The VM cannot be
// resumed afterwards except through Reset.
func (vm *VM) Terminate() {
	vm.state = StateCompleted
	vm.stack.Reset()
	vm.heap.Reset()
	vm.frames = vm.frames[:1]
}

// SetBreakpoint suspends execution before the instruction at ip.
func (vm *VM) SetBreakpoint(ip int) error {
	if ip < 0 || ip >= len(vm.prog.Code) {
		return fmt.Errorf("vm: breakpoint %d outside program", ip)
	}
	if vm.breakpoints == nil {
		vm.breakpoints = make([]bool, len(vm.prog.Code))
	}
	if !vm.breakpoints[ip] {
		vm.breakpoints[ip] = true
		vm.nBreak++
	}
	return nil
}

// ClearBreakpoint removes the breakpoint at ip.
func (vm *VM) ClearBreakpoint(ip int) {
	if ip >= 0 && ip < len(vm.breakpoints) && vm.breakpoints[ip] {
		vm.breakpoints[ip] = false
		vm.nBreak--
	}
}

// ClearBreakpoints removes every breakpoint.
func (vm *VM) ClearBreakpoints() {
	clear(vm.breakpoints)
	vm.nBreak = 0
}

// HasBreakpoint reports whether a breakpoint is set at ip.
func (vm *VM) HasBreakpoint(ip int) bool {
	return ip >= 0 && ip < len(vm.breakpoints) && vm.breakpoints[ip]
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// CallDepth returns the number of active frames, 1 in the main program.
func (vm *VM) CallDepth() int {
	return len(vm.frames)
}

// Frames returns the active frames, innermost first.
func (vm *VM) Frames() []FrameInfo {
	out := make([]FrameInfo, 0, len(vm.frames))
	ip := vm.ip
	for d := len(vm.frames) - 1; d >= 0; d-- {
		fr := vm.frames[d]
		info := FrameInfo{Depth: d, IP: ip}
		if fr.fn >= 0 {
			info.Function = vm.prog.Functions[fr.fn].Name
		}
		out = append(out, info)
		ip = fr.returnIP
	}
	return out
}

// ReadVariable decodes a variable's slot. depth selects the frame for local
// variables (see FrameInfo.Depth).
func (vm *VM) ReadVariable(depth int, v VariableRef) (Value, error) {
	var mem []byte
	switch v.Storage {
	case StorageGlobal:
		mem = vm.globals
	case StorageLocal:
		if depth <= 0 || depth >= len(vm.frames) {
			return Value{}, fmt.Errorf("vm: no frame at depth %d", depth)
		}
		fr := vm.frames[depth]
		mem = vm.locals[fr.base : fr.base+fr.size]
	}
	off := v.Slot * 8
	if off < 0 || off+8 > len(mem) {
		return Value{}, fmt.Errorf("vm: slot %d out of range for %s", v.Slot, v.Name)
	}
	return decodeValue(mem[off:], v.SlotType()), nil
}

// GlobalValue returns the current value of a main-program variable.
func (vm *VM) GlobalValue(name string) (Value, bool) {
	ref, ok := vm.prog.Global(name)
	if !ok {
		return Value{}, false
	}
	v, err := vm.ReadVariable(0, ref)
	return v, err == nil
}

// ArrayElements returns the bounds and element bytes of the array at handle.
func (vm *VM) ArrayElements(handle uint32) (dims []int, data []byte) {
	if handle == 0 {
		return nil, nil
	}
	b := vm.heap.Bytes(handle)
	rank := int(getInt(b, TypeDWord))
	for i := 0; i < rank; i++ {
		dims = append(dims, int(getInt(b[4+4*i:], TypeDWord)))
	}
	return dims, b[4+4*rank:]
}

// StringOf returns the text of a string value.
func (vm *VM) StringOf(v Value) string {
	if v.Type != TypeString {
		return vm.Format(v)
	}
	return vm.heap.String(v.Handle())
}

// Format renders a value as print shows it.
func (vm *VM) Format(v Value) string {
	switch v.Type {
	case TypeString:
		return vm.heap.String(v.Handle())
	case TypeFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case TypePtr:
		return fmt.Sprintf("<ptr %d>", v.Handle())
	case TypeVoid:
		return ""
	}
	return strconv.FormatInt(v.Int(), 10)
}

// DecodeValue reads a value of type tc from raw slot, array element or
// struct field storage.
func DecodeValue(b []byte, tc TypeCode) Value {
	return decodeValue(b, tc)
}

// decodeValue reads a value of type tc from b.
func decodeValue(b []byte, tc TypeCode) Value {
	if tc == TypeFloat {
		return Value{Type: tc, bits: uint64(getInt(b, TypeDInt)), ref: RefNone}
	}
	return Value{Type: tc, bits: uint64(getInt(b, tc)), ref: RefNone}
}

// encodeValue writes v into b using the width of v.Type.
func encodeValue(b []byte, v Value) {
	if v.Type == TypeFloat {
		putInt(b, TypeDInt, int64(v.bits))
		return
	}
	putInt(b, v.Type, int64(v.bits))
}
