package vm

import "fmt"

// FaultKind classifies a fatal runtime error.
type FaultKind int

const (
	FaultInternal FaultKind = iota
	FaultStackOverflow
	FaultHeapOverflow
	FaultInvalidOpcode
	FaultHostCommand
	FaultIndexOutOfRange
	FaultNullReference
	FaultDivideByZero
)

var faultKindNames = map[FaultKind]string{
	FaultInternal:        "internal error",
	FaultStackOverflow:   "stack overflow",
	FaultHeapOverflow:    "heap overflow",
	FaultInvalidOpcode:   "invalid opcode",
	FaultHostCommand:     "host command failed",
	FaultIndexOutOfRange: "index out of range",
	FaultNullReference:   "null reference",
	FaultDivideByZero:    "divide by zero",
}

func (k FaultKind) String() string {
	if name, ok := faultKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// Fault is the fatal result of a run. IP is the offset of the instruction
// that failed; everything before it completed.
type Fault struct {
	Kind    FaultKind
	IP      int
	Command string // set for host command faults
	Message string
	Err     error // underlying host error, if any
}

func (f *Fault) Error() string {
	msg := f.Kind.String()
	if f.Command != "" {
		msg += " in " + f.Command
	}
	if f.Message != "" {
		msg += ": " + f.Message
	}
	return fmt.Sprintf("vm fault at %04d: %s", f.IP, msg)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// raise aborts the current instruction. Execute recovers the panic and moves
// the VM to StateFaulted.
func raise(kind FaultKind, format string, args ...any) {
	panic(&Fault{Kind: kind, Message: fmt.Sprintf(format, args...)})
}
