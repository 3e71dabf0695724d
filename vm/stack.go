package vm

import (
	"encoding/binary"
	"math"
)

// Stack is the VM's value stack: raw bytes with no type information. Each
// push or pop moves exactly the width of the declared type code.
type Stack struct {
	buf []byte
	sp  int
	max int
}

// NewStack creates a stack that faults once it would grow past max bytes.
func NewStack(initial, max int) *Stack {
	if initial <= 0 {
		initial = 1024
	}
	return &Stack{buf: make([]byte, initial), max: max}
}

// Len returns the number of bytes in use.
func (s *Stack) Len() int {
	return s.sp
}

// Reset discards all values.
func (s *Stack) Reset() {
	s.sp = 0
}

func (s *Stack) reserve(n int) []byte {
	if s.sp+n > len(s.buf) {
		size := len(s.buf) * 2
		if size == 0 {
			size = 64
		}
		for size < s.sp+n {
			size *= 2
		}
		if s.max > 0 && size > s.max {
			size = s.max
		}
		if s.sp+n > size {
			raise(FaultStackOverflow, "stack exceeds %d bytes", s.max)
		}
		grown := make([]byte, size)
		copy(grown, s.buf[:s.sp])
		s.buf = grown
	}
	b := s.buf[s.sp : s.sp+n]
	s.sp += n
	return b
}

func (s *Stack) take(n int) []byte {
	if s.sp < n {
		raise(FaultInternal, "stack underflow: need %d bytes, have %d", n, s.sp)
	}
	s.sp -= n
	return s.buf[s.sp : s.sp+n]
}

// PushBytes pushes raw bytes.
func (s *Stack) PushBytes(b []byte) {
	copy(s.reserve(len(b)), b)
}

// PopBytes pops n raw bytes. The slice is only valid until the next push.
func (s *Stack) PopBytes(n int) []byte {
	return s.take(n)
}

// Peek returns the top n bytes without popping them.
func (s *Stack) Peek(n int) []byte {
	if s.sp < n {
		raise(FaultInternal, "stack underflow: need %d bytes, have %d", n, s.sp)
	}
	return s.buf[s.sp-n : s.sp]
}

// PushInt32 pushes a 32-bit integer.
func (s *Stack) PushInt32(v int32) {
	binary.LittleEndian.PutUint32(s.reserve(4), uint32(v))
}

// PopInt32 pops a 32-bit integer.
func (s *Stack) PopInt32() int32 {
	return int32(binary.LittleEndian.Uint32(s.take(4)))
}

// PushUint32 pushes a 32-bit unsigned value (handles, references).
func (s *Stack) PushUint32(v uint32) {
	binary.LittleEndian.PutUint32(s.reserve(4), v)
}

// PopUint32 pops a 32-bit unsigned value.
func (s *Stack) PopUint32() uint32 {
	return binary.LittleEndian.Uint32(s.take(4))
}

// PushFloat pushes a float64.
func (s *Stack) PushFloat(v float64) {
	binary.LittleEndian.PutUint64(s.reserve(8), math.Float64bits(v))
}

// PopFloat pops a float64.
func (s *Stack) PopFloat() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.take(8)))
}

// PushInt pushes an integer of type tc, truncating v to its width.
func (s *Stack) PushInt(tc TypeCode, v int64) {
	putInt(s.reserve(tc.Width()), tc, v)
}

// PopInt pops an integer of type tc, sign or zero extending it.
func (s *Stack) PopInt(tc TypeCode) int64 {
	return getInt(s.take(tc.Width()), tc)
}

// putInt stores v into b using the width of tc.
func putInt(b []byte, tc TypeCode, v int64) {
	switch tc.Width() {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

// getInt loads an integer of type tc from b.
func getInt(b []byte, tc TypeCode) int64 {
	switch tc {
	case TypeByte:
		return int64(b[0])
	case TypeWord:
		return int64(binary.LittleEndian.Uint16(b))
	case TypeInt:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case TypeDWord, TypeString, TypePtr:
		return int64(binary.LittleEndian.Uint32(b))
	case TypeDInt:
		return int64(binary.LittleEndian.Uint64(b))
	case TypeFloat:
		return int64(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return 0
}
