package vm

import (
	"math"
	"strconv"
)

// RefNone marks a raw argument that has no address to write back to.
const RefNone uint32 = 0xFFFFFFFF

// Reference tags occupy the top two bits of a 32-bit reference.
const (
	refTagHeap   uint32 = 0 << 30
	refTagGlobal uint32 = 1 << 30
	refTagLocal  uint32 = 2 << 30
	refTagMask   uint32 = 3 << 30
)

// Value is a decoded stack value as seen by host commands and the debugger.
// Strings are heap handles; use CallContext.String or VM.StringOf to read them.
type Value struct {
	Type  TypeCode
	bits  uint64
	ref   uint32
	dirty bool
}

// IntValue returns an integer value of type tc.
func IntValue(tc TypeCode, v int64) Value {
	return Value{Type: tc, bits: uint64(v), ref: RefNone}
}

// FloatValue returns a float value.
func FloatValue(f float64) Value {
	return Value{Type: TypeFloat, bits: math.Float64bits(f), ref: RefNone}
}

// HandleValue returns a string or pointer value holding a heap handle.
func HandleValue(tc TypeCode, h uint32) Value {
	return Value{Type: tc, bits: uint64(h), ref: RefNone}
}

// Int returns the value as an integer. Floats truncate toward zero.
func (v Value) Int() int64 {
	if v.Type == TypeFloat {
		return int64(math.Float64frombits(v.bits))
	}
	return int64(v.bits)
}

// Float returns the value as a float.
func (v Value) Float() float64 {
	if v.Type == TypeFloat {
		return math.Float64frombits(v.bits)
	}
	return float64(int64(v.bits))
}

// Handle returns the heap handle of a string or pointer value.
func (v Value) Handle() uint32 {
	return uint32(v.bits)
}

// Addressable reports whether a write to this argument reaches the caller.
func (v Value) Addressable() bool {
	return v.ref != RefNone
}

// convert changes the representation of a numeric value. String and pointer
// values keep their handle.
func (v Value) convert(to TypeCode) Value {
	out := v
	out.Type = to
	switch {
	case to == TypeFloat && v.Type != TypeFloat:
		out.bits = math.Float64bits(float64(int64(v.bits)))
	case to != TypeFloat && v.Type == TypeFloat:
		out.bits = uint64(truncInt(to, int64(math.Float64frombits(v.bits))))
	case to.IsInteger():
		out.bits = uint64(truncInt(to, int64(v.bits)))
	}
	return out
}

// truncInt wraps v into the range of integer type tc.
func truncInt(tc TypeCode, v int64) int64 {
	switch tc {
	case TypeByte:
		return int64(uint8(v))
	case TypeWord:
		return int64(uint16(v))
	case TypeInt:
		return int64(int32(v))
	case TypeDWord:
		return int64(uint32(v))
	}
	return v
}

// ---------------------------------------------------------------------------
// CallContext: arguments and results of one host call
// ---------------------------------------------------------------------------

// CallContext carries one host call's arguments. The VM reuses a single
// context for every call, so executors must not retain it.
type CallContext struct {
	vm      *VM
	Command *CommandInfo
	args    []Value
	present []bool
	params  []Value
	ret     Value
}

func (c *CallContext) reset(vm *VM, cmd *CommandInfo) {
	c.vm = vm
	c.Command = cmd
	n := len(cmd.Args)
	if cap(c.args) < n {
		c.args = make([]Value, n)
		c.present = make([]bool, n)
	}
	c.args = c.args[:n]
	c.present = c.present[:n]
	clear(c.args)
	clear(c.present)
	c.params = c.params[:0]
	c.ret = Value{Type: cmd.Return, ref: RefNone}
}

// VM returns the executing VM.
func (c *CallContext) VM() *VM {
	return c.vm
}

// Len returns the number of declared arguments, including vm arguments.
func (c *CallContext) Len() int {
	return len(c.args)
}

// Present reports whether argument i was supplied by the caller.
func (c *CallContext) Present(i int) bool {
	return i >= 0 && i < len(c.present) && c.present[i]
}

// Arg returns argument i.
func (c *CallContext) Arg(i int) Value {
	return c.args[i]
}

// Int returns argument i as an integer.
func (c *CallContext) Int(i int) int64 {
	return c.args[i].Int()
}

// Float returns argument i as a float.
func (c *CallContext) Float(i int) float64 {
	return c.args[i].Float()
}

// String returns argument i as a string. Numeric arguments are formatted.
func (c *CallContext) String(i int) string {
	return c.vm.Format(c.args[i])
}

// Params returns the variadic tail.
func (c *CallContext) Params() []Value {
	return c.params
}

// Format renders a value the way print shows it.
func (c *CallContext) Format(v Value) string {
	return c.vm.Format(v)
}

// Set replaces argument i, converting v to the argument's type. Ref and raw
// arguments are written back to the caller after the command returns.
func (c *CallContext) Set(i int, v Value) {
	c.args[i] = c.assign(c.args[i], v)
}

// SetParam replaces variadic element i.
func (c *CallContext) SetParam(i int, v Value) {
	c.params[i] = c.assign(c.params[i], v)
}

func (c *CallContext) assign(old, v Value) Value {
	to := old.Type
	if to == TypeVoid || to == TypeAny {
		to = v.Type
	}
	if (to == TypeString) != (v.Type == TypeString) {
		if to == TypeString {
			v = HandleValue(TypeString, c.vm.heap.AllocString(c.vm.Format(v)))
		} else {
			n, _ := strconv.ParseFloat(c.vm.StringOf(v), 64)
			v = FloatValue(n)
		}
	}
	nv := v.convert(to)
	nv.ref = old.ref
	nv.dirty = true
	return nv
}

// SetInt assigns an integer to argument i.
func (c *CallContext) SetInt(i int, v int64) {
	c.Set(i, IntValue(TypeDInt, v))
}

// SetFloat assigns a float to argument i.
func (c *CallContext) SetFloat(i int, f float64) {
	c.Set(i, FloatValue(f))
}

// SetString assigns a string to argument i.
func (c *CallContext) SetString(i int, s string) {
	c.Set(i, HandleValue(TypeString, c.vm.heap.AllocString(s)))
}

// ReturnInt sets an integer result.
func (c *CallContext) ReturnInt(v int64) {
	c.ret = IntValue(TypeDInt, v).convert(c.Command.Return)
}

// ReturnFloat sets a float result.
func (c *CallContext) ReturnFloat(f float64) {
	c.ret = FloatValue(f).convert(c.Command.Return)
}

// ReturnString sets a string result.
func (c *CallContext) ReturnString(s string) {
	c.ret = HandleValue(TypeString, c.vm.heap.AllocString(s))
}
