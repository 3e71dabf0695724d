package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. Multi-byte operands are
// little-endian. A "tc" operand is a one-byte TypeCode.
type Opcode byte

// Stack Operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack (tc)
	OpDup Opcode = 0x02 // duplicate top of stack (tc)
)

// Push Constants
const (
	OpPushInt    Opcode = 0x10 // push 32-bit signed integer
	OpPushFloat  Opcode = 0x11 // push inline float64
	OpPushDInt   Opcode = 0x12 // push 64-bit signed integer
	OpPushString Opcode = 0x13 // push string constant handle (16-bit index)
)

// Variable Operations
const (
	OpLoadGlobal  Opcode = 0x20 // push global slot (tc, 16-bit slot)
	OpStoreGlobal Opcode = 0x21 // pop into global slot (tc, 16-bit slot)
	OpLoadLocal   Opcode = 0x22 // push frame slot (tc, 16-bit slot)
	OpStoreLocal  Opcode = 0x23 // pop into frame slot (tc, 16-bit slot)
	OpRefGlobal   Opcode = 0x24 // push reference to global slot (16-bit slot)
	OpRefLocal    Opcode = 0x25 // push reference to frame slot (16-bit slot)
	OpLoadRef     Opcode = 0x26 // pop reference, push referenced value (tc)
	OpStoreRef    Opcode = 0x27 // pop value then reference, store (tc)
)

// Conversion
const (
	OpConvert Opcode = 0x30 // convert top of stack (tc from, tc to)
)

// Arithmetic (tc)
const (
	OpAdd Opcode = 0x40
	OpSub Opcode = 0x41
	OpMul Opcode = 0x42
	OpDiv Opcode = 0x43
	OpMod Opcode = 0x44
	OpPow Opcode = 0x45
	OpNeg Opcode = 0x46
)

// Comparison (tc), result is an int 0 or 1
const (
	OpEq Opcode = 0x50
	OpNe Opcode = 0x51
	OpLt Opcode = 0x52
	OpLe Opcode = 0x53
	OpGt Opcode = 0x54
	OpGe Opcode = 0x55
)

// Logical, operands and result are ints
const (
	OpAnd Opcode = 0x58
	OpOr  Opcode = 0x59
	OpXor Opcode = 0x5A
	OpNot Opcode = 0x5B
)

// Bitwise (tc)
const (
	OpBitAnd Opcode = 0x60
	OpBitOr  Opcode = 0x61
	OpBitXor Opcode = 0x62
	OpBitNot Opcode = 0x63
	OpShl    Opcode = 0x64
	OpShr    Opcode = 0x65
)

// Strings
const (
	OpConcat Opcode = 0x68 // pop two string handles, push concatenation
)

// Control Flow. Jump offsets are 32-bit, relative to the next instruction.
const (
	OpJump        Opcode = 0x70
	OpJumpZero    Opcode = 0x71 // pop int, jump if zero
	OpJumpNotZero Opcode = 0x72 // pop int, jump if not zero
	OpGosub       Opcode = 0x73 // push return address on the frame's gosub stack, jump
	OpReturnSub   Opcode = 0x74 // return from gosub
)

// Calls
const (
	OpCall     Opcode = 0x78 // call script function (16-bit function index)
	OpReturn   Opcode = 0x79 // return from script function (tc)
	OpCallHost Opcode = 0x7A // call host command (16-bit method index, 8-bit supplied count)
	OpEnd      Opcode = 0x7F // stop the program
)

// Heap
const (
	OpAlloc       Opcode = 0x80 // allocate zeroed block (32-bit size), push handle
	OpArrayNew    Opcode = 0x81 // pop rank bounds, allocate array (8-bit rank, 16-bit element width)
	OpArrayResize Opcode = 0x82 // pop bounds then handle, resize, push handle (8-bit rank, 16-bit width)
	OpArrayAddr   Opcode = 0x83 // pop indices then handle, push element reference (8-bit rank, 16-bit width)
	OpCopy        Opcode = 0x84 // pop source then destination reference, copy (32-bit size)
	OpFieldAddr   Opcode = 0x85 // pop reference, push reference plus offset (32-bit offset)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect in values (-1 = variable)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0, 0},
	OpPop: {"POP", 1, -1},
	OpDup: {"DUP", 1, 1},

	OpPushInt:    {"PUSH_INT", 4, 1},
	OpPushFloat:  {"PUSH_FLOAT", 8, 1},
	OpPushDInt:   {"PUSH_DINT", 8, 1},
	OpPushString: {"PUSH_STR", 2, 1},

	OpLoadGlobal:  {"LOAD_GLOBAL", 3, 1},
	OpStoreGlobal: {"STORE_GLOBAL", 3, -1},
	OpLoadLocal:   {"LOAD_LOCAL", 3, 1},
	OpStoreLocal:  {"STORE_LOCAL", 3, -1},
	OpRefGlobal:   {"REF_GLOBAL", 2, 1},
	OpRefLocal:    {"REF_LOCAL", 2, 1},
	OpLoadRef:     {"LOAD_REF", 1, 0},
	OpStoreRef:    {"STORE_REF", 1, -2},

	OpConvert: {"CONVERT", 2, 0},

	OpAdd: {"ADD", 1, -1},
	OpSub: {"SUB", 1, -1},
	OpMul: {"MUL", 1, -1},
	OpDiv: {"DIV", 1, -1},
	OpMod: {"MOD", 1, -1},
	OpPow: {"POW", 1, -1},
	OpNeg: {"NEG", 1, 0},

	OpEq: {"EQ", 1, -1},
	OpNe: {"NE", 1, -1},
	OpLt: {"LT", 1, -1},
	OpLe: {"LE", 1, -1},
	OpGt: {"GT", 1, -1},
	OpGe: {"GE", 1, -1},

	OpAnd: {"AND", 0, -1},
	OpOr:  {"OR", 0, -1},
	OpXor: {"XOR", 0, -1},
	OpNot: {"NOT", 0, 0},

	OpBitAnd: {"BAND", 1, -1},
	OpBitOr:  {"BOR", 1, -1},
	OpBitXor: {"BXOR", 1, -1},
	OpBitNot: {"BNOT", 1, 0},
	OpShl:    {"SHL", 1, -1},
	OpShr:    {"SHR", 1, -1},

	OpConcat: {"CONCAT", 0, -1},

	OpJump:        {"JUMP", 4, 0},
	OpJumpZero:    {"JUMP_ZERO", 4, -1},
	OpJumpNotZero: {"JUMP_NOT_ZERO", 4, -1},
	OpGosub:       {"GOSUB", 4, 0},
	OpReturnSub:   {"RETURN_SUB", 0, 0},

	OpCall:     {"CALL", 2, -1},
	OpReturn:   {"RETURN", 1, -1},
	OpCallHost: {"CALLHOST", 3, -1},
	OpEnd:      {"END", 0, 0},

	OpAlloc:       {"ALLOC", 4, 1},
	OpArrayNew:    {"ARRAY_NEW", 3, -1},
	OpArrayResize: {"ARRAY_RESIZE", 3, -1},
	OpArrayAddr:   {"ARRAY_ADDR", 3, -1},
	OpCopy:        {"COPY", 4, -2},
	OpFieldAddr:   {"FIELD_ADDR", 4, 0},
}

// Info returns metadata for the opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name of the opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for the opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether op carries a relative jump operand.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpZero, OpJumpNotZero, OpGosub:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder accumulates instructions and patches forward jumps.
type BytecodeBuilder struct {
	bytes  []byte
	labels []*Label
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{bytes: make([]byte, 0, 256)}
}

// Bytes returns the accumulated bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length of the bytecode.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit emits an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitType emits an opcode with a single type code operand.
func (b *BytecodeBuilder) EmitType(op Opcode, tc TypeCode) {
	b.bytes = append(b.bytes, byte(op), byte(tc))
}

// EmitConvert emits a conversion between two type codes.
func (b *BytecodeBuilder) EmitConvert(from, to TypeCode) {
	b.bytes = append(b.bytes, byte(OpConvert), byte(from), byte(to))
}

// EmitUint16 emits an opcode with a 16-bit operand.
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, operand)
}

// EmitUint32 emits an opcode with a 32-bit unsigned operand.
func (b *BytecodeBuilder) EmitUint32(op Opcode, operand uint32) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.LittleEndian.AppendUint32(b.bytes, operand)
}

// EmitInt32 emits an opcode with a 32-bit signed operand.
func (b *BytecodeBuilder) EmitInt32(op Opcode, operand int32) {
	b.EmitUint32(op, uint32(operand))
}

// EmitInt64 emits an opcode with a 64-bit signed operand.
func (b *BytecodeBuilder) EmitInt64(op Opcode, operand int64) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, uint64(operand))
}

// EmitFloat64 emits an opcode with a float64 operand.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, operand float64) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, math.Float64bits(operand))
}

// EmitSlot emits a typed slot access (load/store global/local).
func (b *BytecodeBuilder) EmitSlot(op Opcode, tc TypeCode, slot uint16) {
	b.bytes = append(b.bytes, byte(op), byte(tc))
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, slot)
}

// EmitCallHost emits a host command call.
func (b *BytecodeBuilder) EmitCallHost(method uint16, supplied uint8) {
	b.bytes = append(b.bytes, byte(OpCallHost))
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, method)
	b.bytes = append(b.bytes, supplied)
}

// EmitArray emits an array instruction with rank and element width.
func (b *BytecodeBuilder) EmitArray(op Opcode, rank uint8, width uint16) {
	b.bytes = append(b.bytes, byte(op), rank)
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, width)
}

// ---------------------------------------------------------------------------
// Labels for forward jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be known yet.
type Label struct {
	resolved bool
	position int   // target once resolved
	refs     []int // operand positions waiting for the target
}

// NewLabel creates a new unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	l := &Label{}
	b.labels = append(b.labels, l)
	return l
}

// Mark resolves a label at the current position and patches all pending
// references to it.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)
	for _, ref := range label.refs {
		b.patch(ref, label.position)
	}
	label.refs = nil
}

// Resolved reports whether the label has been marked.
func (b *BytecodeBuilder) Resolved(label *Label) bool {
	return label.resolved
}

// EmitJump emits a jump to a label, forward or backward.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	ref := len(b.bytes)
	b.bytes = append(b.bytes, 0, 0, 0, 0)
	if label.resolved {
		b.patch(ref, label.position)
	} else {
		label.refs = append(label.refs, ref)
	}
}

// patch writes the offset from the end of the operand at ref to target.
func (b *BytecodeBuilder) patch(ref, target int) {
	offset := int32(target - (ref + 4))
	binary.LittleEndian.PutUint32(b.bytes[ref:], uint32(offset))
}

// Finish checks that every label created by the builder was marked.
func (b *BytecodeBuilder) Finish() error {
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			return fmt.Errorf("unresolved jump label referenced at %d", l.refs[0]-1)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// BytecodeReader: Helper for reading bytecode
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode sequentially.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a new bytecode reader.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore reports whether there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

func (r *BytecodeReader) need(n int) {
	if r.pos+n > len(r.bytes) {
		panic("bytecode underflow")
	}
}

// ReadOpcode reads an opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	return Opcode(r.ReadUint8())
}

// ReadUint8 reads a single byte.
func (r *BytecodeReader) ReadUint8() uint8 {
	r.need(1)
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a little-endian uint16.
func (r *BytecodeReader) ReadUint16() uint16 {
	r.need(2)
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadUint32 reads a little-endian uint32.
func (r *BytecodeReader) ReadUint32() uint32 {
	r.need(4)
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return v
}

// ReadInt32 reads a little-endian int32.
func (r *BytecodeReader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadInt64 reads a little-endian int64.
func (r *BytecodeReader) ReadInt64() int64 {
	r.need(8)
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return int64(v)
}

// ReadFloat64 reads a little-endian float64.
func (r *BytecodeReader) ReadFloat64() float64 {
	return math.Float64frombits(uint64(r.ReadInt64()))
}

// Skip advances by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.need(n)
	r.pos += n
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// InstructionStarts returns the offset of every instruction in code, or an
// error if an opcode is unknown or an operand runs past the end.
func InstructionStarts(code []byte) ([]int, error) {
	var starts []int
	pos := 0
	for pos < len(code) {
		op := Opcode(code[pos])
		if !op.Valid() {
			return starts, fmt.Errorf("invalid opcode 0x%02X at %d", byte(op), pos)
		}
		next := pos + 1 + op.OperandBytes()
		if next > len(code) {
			return starts, fmt.Errorf("truncated %s at %d", op.Name(), pos)
		}
		starts = append(starts, pos)
		pos = next
	}
	return starts, nil
}

// Verify checks that code decodes cleanly and that every jump lands on an
// instruction boundary (or exactly at the end of the code).
func Verify(code []byte) error {
	starts, err := InstructionStarts(code)
	if err != nil {
		return err
	}
	boundary := make(map[int]bool, len(starts)+1)
	for _, s := range starts {
		boundary[s] = true
	}
	boundary[len(code)] = true
	for _, s := range starts {
		op := Opcode(code[s])
		if !op.IsJump() {
			continue
		}
		offset := int32(binary.LittleEndian.Uint32(code[s+1:]))
		target := s + 5 + int(offset)
		if !boundary[target] {
			return fmt.Errorf("%s at %d targets %d, which is not an instruction boundary", op.Name(), s, target)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleInstruction returns a human-readable form of the instruction at
// the reader's position and advances past it.
func DisassembleInstruction(r *BytecodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch op {
	case OpPop, OpDup, OpLoadRef, OpStoreRef, OpReturn,
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpNeg,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpBitAnd, OpBitOr, OpBitXor, OpBitNot, OpShl, OpShr:
		tc := TypeCode(r.ReadUint8())
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, tc)

	case OpPushInt:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadInt32())

	case OpPushDInt:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadInt64())

	case OpPushFloat:
		return fmt.Sprintf("%04d  %s %g", pos, info.Name, r.ReadFloat64())

	case OpPushString, OpRefGlobal, OpRefLocal, OpCall:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadUint16())

	case OpLoadGlobal, OpStoreGlobal, OpLoadLocal, OpStoreLocal:
		tc := TypeCode(r.ReadUint8())
		slot := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %s %d", pos, info.Name, tc, slot)

	case OpConvert:
		from := TypeCode(r.ReadUint8())
		to := TypeCode(r.ReadUint8())
		return fmt.Sprintf("%04d  %s %s -> %s", pos, info.Name, from, to)

	case OpJump, OpJumpZero, OpJumpNotZero, OpGosub:
		offset := r.ReadInt32()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	case OpCallHost:
		method := r.ReadUint16()
		supplied := r.ReadUint8()
		return fmt.Sprintf("%04d  %s method=%d supplied=%d", pos, info.Name, method, supplied)

	case OpAlloc, OpCopy, OpFieldAddr:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadUint32())

	case OpArrayNew, OpArrayResize, OpArrayAddr:
		rank := r.ReadUint8()
		width := r.ReadUint16()
		return fmt.Sprintf("%04d  %s rank=%d width=%d", pos, info.Name, rank, width)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a human-readable listing of all instructions.
func Disassemble(bc []byte) string {
	var sb strings.Builder
	r := NewBytecodeReader(bc)
	for r.HasMore() {
		sb.WriteString(DisassembleInstruction(r))
		sb.WriteByte('\n')
	}
	return sb.String()
}
