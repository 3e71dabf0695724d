package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Instruction dispatch
// ---------------------------------------------------------------------------

// step executes the instruction at vm.ip. It reports true when the program
// ends. Runtime errors panic with a *Fault that Execute recovers.
func (vm *VM) step() bool {
	code := vm.prog.Code
	ip := vm.ip
	op := Opcode(code[ip])
	s := vm.stack

	switch op {
	case OpNop:
		vm.ip = ip + 1

	case OpPop:
		s.PopBytes(TypeCode(code[ip+1]).Width())
		vm.ip = ip + 2

	case OpDup:
		s.PushBytes(s.Peek(TypeCode(code[ip+1]).Width()))
		vm.ip = ip + 2

	case OpPushInt:
		s.PushInt32(int32(binary.LittleEndian.Uint32(code[ip+1:])))
		vm.ip = ip + 5

	case OpPushFloat, OpPushDInt:
		s.PushBytes(code[ip+1 : ip+9])
		vm.ip = ip + 9

	case OpPushString:
		s.PushUint32(vm.strings[binary.LittleEndian.Uint16(code[ip+1:])])
		vm.ip = ip + 3

	case OpLoadGlobal, OpStoreGlobal, OpLoadLocal, OpStoreLocal:
		tc := TypeCode(code[ip+1])
		slot := int(binary.LittleEndian.Uint16(code[ip+2:]))
		mem := vm.slotMemory(op == OpLoadLocal || op == OpStoreLocal, slot)
		if op == OpLoadGlobal || op == OpLoadLocal {
			s.PushBytes(mem[:tc.Width()])
		} else {
			clear(mem)
			copy(mem, s.PopBytes(tc.Width()))
		}
		vm.ip = ip + 4

	case OpRefGlobal:
		s.PushUint32(refTagGlobal | uint32(binary.LittleEndian.Uint16(code[ip+1:])))
		vm.ip = ip + 3

	case OpRefLocal:
		depth := uint32(len(vm.frames) - 1)
		s.PushUint32(refTagLocal | depth<<16 | uint32(binary.LittleEndian.Uint16(code[ip+1:])))
		vm.ip = ip + 3

	case OpLoadRef:
		w := TypeCode(code[ip+1]).Width()
		s.PushBytes(vm.resolveRef(s.PopUint32(), w))
		vm.ip = ip + 2

	case OpStoreRef:
		w := TypeCode(code[ip+1]).Width()
		val := s.PopBytes(w)
		dst := vm.resolveRef(s.PopUint32(), w)
		copy(dst, val)
		vm.ip = ip + 2

	case OpConvert:
		vm.convert(TypeCode(code[ip+1]), TypeCode(code[ip+2]))
		vm.ip = ip + 3

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		vm.binary(op, TypeCode(code[ip+1]))
		vm.ip = ip + 2

	case OpNeg:
		tc := TypeCode(code[ip+1])
		if tc == TypeFloat {
			s.PushFloat(-s.PopFloat())
		} else {
			s.PushInt(tc, -s.PopInt(tc))
		}
		vm.ip = ip + 2

	case OpBitNot:
		tc := TypeCode(code[ip+1])
		s.PushInt(tc, ^s.PopInt(tc))
		vm.ip = ip + 2

	case OpAnd, OpOr, OpXor:
		b := s.PopInt32() != 0
		a := s.PopInt32() != 0
		var r bool
		switch op {
		case OpAnd:
			r = a && b
		case OpOr:
			r = a || b
		default:
			r = a != b
		}
		s.PushInt32(boolInt(r))
		vm.ip = ip + 1

	case OpNot:
		s.PushInt32(boolInt(s.PopInt32() == 0))
		vm.ip = ip + 1

	case OpConcat:
		b := vm.heap.String(s.PopUint32())
		a := vm.heap.String(s.PopUint32())
		s.PushUint32(vm.heap.AllocString(a + b))
		vm.ip = ip + 1

	case OpJump:
		vm.ip = jumpTarget(code, ip)

	case OpJumpZero:
		if s.PopInt32() == 0 {
			vm.ip = jumpTarget(code, ip)
		} else {
			vm.ip = ip + 5
		}

	case OpJumpNotZero:
		if s.PopInt32() != 0 {
			vm.ip = jumpTarget(code, ip)
		} else {
			vm.ip = ip + 5
		}

	case OpGosub:
		fr := &vm.frames[len(vm.frames)-1]
		if len(fr.gosubs) >= vm.cfg.MaxCallDepth {
			raise(FaultStackOverflow, "gosub nesting exceeds %d", vm.cfg.MaxCallDepth)
		}
		fr.gosubs = append(fr.gosubs, ip+5)
		vm.ip = jumpTarget(code, ip)

	case OpReturnSub:
		fr := &vm.frames[len(vm.frames)-1]
		if len(fr.gosubs) == 0 {
			raise(FaultInternal, "return without gosub")
		}
		vm.ip = fr.gosubs[len(fr.gosubs)-1]
		fr.gosubs = fr.gosubs[:len(fr.gosubs)-1]

	case OpCall:
		vm.callFunction(int(binary.LittleEndian.Uint16(code[ip+1:])), ip+3)

	case OpReturn:
		vm.returnFunction(TypeCode(code[ip+1]))

	case OpCallHost:
		method := int(binary.LittleEndian.Uint16(code[ip+1:]))
		vm.callHost(method, int(code[ip+3]))
		vm.ip = ip + 4

	case OpEnd:
		return true

	case OpAlloc:
		s.PushUint32(vm.heap.Allocate(int(binary.LittleEndian.Uint32(code[ip+1:]))))
		vm.ip = ip + 5

	case OpArrayNew, OpArrayResize, OpArrayAddr:
		rank := int(code[ip+1])
		width := int(binary.LittleEndian.Uint16(code[ip+2:]))
		switch op {
		case OpArrayNew:
			s.PushUint32(vm.arrayNew(rank, width))
		case OpArrayResize:
			vm.arrayResize(rank, width)
		default:
			vm.arrayAddr(rank, width)
		}
		vm.ip = ip + 4

	case OpCopy:
		size := int(binary.LittleEndian.Uint32(code[ip+1:]))
		src := s.PopUint32()
		dst := s.PopUint32()
		if size > 0 {
			copy(vm.resolveRef(dst, size), vm.resolveRef(src, size))
		}
		vm.ip = ip + 5

	case OpFieldAddr:
		ref := s.PopUint32()
		if ref == 0 {
			raise(FaultNullReference, "field access through null reference")
		}
		if ref&refTagMask != refTagHeap {
			raise(FaultInternal, "field access through non-heap reference")
		}
		s.PushUint32(ref + binary.LittleEndian.Uint32(code[ip+1:]))
		vm.ip = ip + 5

	default:
		raise(FaultInvalidOpcode, "opcode 0x%02X", byte(op))
	}
	return false
}

func jumpTarget(code []byte, ip int) int {
	return ip + 5 + int(int32(binary.LittleEndian.Uint32(code[ip+1:])))
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// slotMemory returns the 8-byte register for a global or current-frame slot.
func (vm *VM) slotMemory(local bool, slot int) []byte {
	off := slot * 8
	if !local {
		if off+8 > len(vm.globals) {
			raise(FaultInternal, "global slot %d out of range", slot)
		}
		return vm.globals[off : off+8]
	}
	fr := &vm.frames[len(vm.frames)-1]
	if off+8 > fr.size {
		raise(FaultInternal, "local slot %d out of range", slot)
	}
	return vm.locals[fr.base+off : fr.base+off+8]
}

// resolveRef maps a tagged reference to n bytes of storage.
func (vm *VM) resolveRef(ref uint32, n int) []byte {
	if ref == RefNone {
		raise(FaultNullReference, "write through missing reference")
	}
	switch ref & refTagMask {
	case refTagHeap:
		return vm.heap.Span(ref, n)
	case refTagGlobal:
		off := int(ref&0xFFFF) * 8
		if off+n > len(vm.globals) {
			raise(FaultInternal, "global reference %d out of range", ref&0xFFFF)
		}
		return vm.globals[off : off+n]
	case refTagLocal:
		depth := int(ref>>16) & 0x3FFF
		if depth >= len(vm.frames) {
			raise(FaultNullReference, "reference to returned frame")
		}
		fr := &vm.frames[depth]
		off := int(ref&0xFFFF) * 8
		if off+n > fr.size {
			raise(FaultInternal, "local reference %d out of range", ref&0xFFFF)
		}
		return vm.locals[fr.base+off : fr.base+off+n]
	}
	raise(FaultNullReference, "invalid reference 0x%08X", ref)
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (vm *VM) convert(from, to TypeCode) {
	if from == to {
		return
	}
	s := vm.stack
	switch {
	case from == TypeFloat && to.IsInteger():
		s.PushInt(to, int64(s.PopFloat()))
	case from.IsInteger() && to == TypeFloat:
		s.PushFloat(float64(s.PopInt(from)))
	case from.IsInteger() && to.IsInteger():
		s.PushInt(to, s.PopInt(from))
	default:
		raise(FaultInternal, "cannot convert %s to %s", from, to)
	}
}

func (vm *VM) binary(op Opcode, tc TypeCode) {
	s := vm.stack
	switch {
	case tc == TypeFloat:
		b := s.PopFloat()
		a := s.PopFloat()
		switch op {
		case OpAdd:
			s.PushFloat(a + b)
		case OpSub:
			s.PushFloat(a - b)
		case OpMul:
			s.PushFloat(a * b)
		case OpDiv:
			if b == 0 {
				raise(FaultDivideByZero, "float division by zero")
			}
			s.PushFloat(a / b)
		case OpMod:
			if b == 0 {
				raise(FaultDivideByZero, "float modulo by zero")
			}
			s.PushFloat(math.Mod(a, b))
		case OpPow:
			s.PushFloat(math.Pow(a, b))
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			s.PushInt32(boolInt(compare(op, cmpFloat(a, b))))
		default:
			raise(FaultInternal, "%s is not defined for floats", op)
		}

	case tc == TypeString:
		b := vm.heap.String(s.PopUint32())
		a := vm.heap.String(s.PopUint32())
		switch op {
		case OpAdd:
			s.PushUint32(vm.heap.AllocString(a + b))
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			c := 0
			if a < b {
				c = -1
			} else if a > b {
				c = 1
			}
			s.PushInt32(boolInt(compare(op, c)))
		default:
			raise(FaultInternal, "%s is not defined for strings", op)
		}

	case tc.IsInteger():
		b := s.PopInt(tc)
		a := s.PopInt(tc)
		var r int64
		switch op {
		case OpAdd:
			r = a + b
		case OpSub:
			r = a - b
		case OpMul:
			r = a * b
		case OpDiv:
			if b == 0 {
				raise(FaultDivideByZero, "integer division by zero")
			}
			r = a / b
		case OpMod:
			if b == 0 {
				raise(FaultDivideByZero, "integer modulo by zero")
			}
			r = a % b
		case OpPow:
			r = ipow(a, b)
		case OpBitAnd:
			r = a & b
		case OpBitOr:
			r = a | b
		case OpBitXor:
			r = a ^ b
		case OpShl:
			r = a << uint64(b&63)
		case OpShr:
			r = a >> uint64(b&63)
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			c := 0
			if a < b {
				c = -1
			} else if a > b {
				c = 1
			}
			s.PushInt32(boolInt(compare(op, c)))
			return
		}
		s.PushInt(tc, r)

	default:
		raise(FaultInternal, "%s is not defined for %s", op, tc)
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compare(op Opcode, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	}
	return c >= 0
}

func ipow(base, exp int64) int64 {
	if exp < 0 {
		switch base {
		case 1:
			return 1
		case -1:
			if exp%2 == 0 {
				return 1
			}
			return -1
		}
		return 0
	}
	r := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			r *= base
		}
		base *= base
		exp >>= 1
	}
	return r
}

// ---------------------------------------------------------------------------
// Script function calls
// ---------------------------------------------------------------------------

func (vm *VM) callFunction(index, returnIP int) {
	if index >= len(vm.prog.Functions) {
		raise(FaultInternal, "function index %d out of range", index)
	}
	if len(vm.frames) >= vm.cfg.MaxCallDepth {
		raise(FaultStackOverflow, "call depth exceeds %d", vm.cfg.MaxCallDepth)
	}
	fn := &vm.prog.Functions[index]
	top := &vm.frames[len(vm.frames)-1]
	base := top.base + top.size
	size := fn.Locals * 8
	if need := base + size; need > len(vm.locals) {
		if need > cap(vm.locals) {
			grown := make([]byte, need, max(need, 2*cap(vm.locals)))
			copy(grown, vm.locals)
			vm.locals = grown
		} else {
			vm.locals = vm.locals[:need]
		}
	}
	mem := vm.locals[base : base+size]
	clear(mem)
	for i := len(fn.Params) - 1; i >= 0; i-- {
		copy(mem[i*8:], vm.stack.PopBytes(fn.Params[i].Width()))
	}

	if len(vm.frames) < cap(vm.frames) {
		vm.frames = vm.frames[:len(vm.frames)+1]
	} else {
		vm.frames = append(vm.frames, frame{})
	}
	fr := &vm.frames[len(vm.frames)-1]
	*fr = frame{fn: index, returnIP: returnIP, base: base, size: size, gosubs: fr.gosubs[:0]}
	vm.ip = fn.Entry
}

func (vm *VM) returnFunction(tc TypeCode) {
	if len(vm.frames) <= 1 {
		raise(FaultInternal, "return outside function")
	}
	var tmp [8]byte
	w := tc.Width()
	copy(tmp[:w], vm.stack.PopBytes(w))
	fr := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.ip = fr.returnIP
	vm.stack.PushBytes(tmp[:w])
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// Array blocks start with the rank and one element count per dimension,
// followed by the elements in row-major order.

func (vm *VM) popBounds(rank int) (counts []int, total int) {
	if rank == 0 || rank > 16 {
		raise(FaultInternal, "array rank %d", rank)
	}
	counts = make([]int, rank)
	total = 1
	for i := rank - 1; i >= 0; i-- {
		bound := vm.stack.PopInt32()
		if bound < 0 {
			raise(FaultIndexOutOfRange, "negative array bound %d", bound)
		}
		counts[i] = int(bound) + 1
		total *= counts[i]
		if total > vm.cfg.MaxHeapSize {
			raise(FaultHeapOverflow, "array of %d elements", total)
		}
	}
	return counts, total
}

func writeArrayHeader(b []byte, counts []int) {
	binary.LittleEndian.PutUint32(b, uint32(len(counts)))
	for i, c := range counts {
		binary.LittleEndian.PutUint32(b[4+4*i:], uint32(c))
	}
}

func (vm *VM) arrayNew(rank, width int) uint32 {
	counts, total := vm.popBounds(rank)
	h := vm.heap.Allocate(4 + 4*rank + total*width)
	writeArrayHeader(vm.heap.Bytes(h), counts)
	return h
}

func (vm *VM) arrayResize(rank, width int) {
	counts, total := vm.popBounds(rank)
	old := vm.stack.PopUint32()
	if old != 0 {
		if got := int(binary.LittleEndian.Uint32(vm.heap.Bytes(old))); got != rank {
			raise(FaultIndexOutOfRange, "redim of rank %d array to rank %d", got, rank)
		}
	}
	h := vm.heap.Resize(old, 4+4*rank+total*width)
	writeArrayHeader(vm.heap.Bytes(h), counts)
	vm.stack.PushUint32(h)
}

func (vm *VM) arrayAddr(rank, width int) {
	var idx [16]int
	if rank == 0 || rank > len(idx) {
		raise(FaultInternal, "array rank %d", rank)
	}
	for i := rank - 1; i >= 0; i-- {
		idx[i] = int(vm.stack.PopInt32())
	}
	h := vm.stack.PopUint32()
	if h == 0 {
		raise(FaultNullReference, "array used before dim")
	}
	b := vm.heap.Bytes(h)
	if got := int(binary.LittleEndian.Uint32(b)); got != rank {
		raise(FaultIndexOutOfRange, "rank %d array indexed with %d subscripts", got, rank)
	}
	linear := 0
	for i := 0; i < rank; i++ {
		count := int(binary.LittleEndian.Uint32(b[4+4*i:]))
		if idx[i] < 0 || idx[i] >= count {
			raise(FaultIndexOutOfRange, "index %d outside 0..%d", idx[i], count-1)
		}
		linear = linear*count + idx[i]
	}
	vm.stack.PushUint32(h + uint32(4+4*rank+linear*width))
}

// ---------------------------------------------------------------------------
// Host command trampoline
// ---------------------------------------------------------------------------

// callHost pops the arguments of command method according to its
// precomputed plan, runs it, copies ref and raw results back to their
// addresses and pushes the return value.
func (vm *VM) callHost(method, supplied int) {
	cmd := vm.cmds.Command(method)
	if cmd == nil {
		raise(FaultInternal, "unknown method index %d", method)
	}
	ctx := &vm.call
	ctx.reset(vm, cmd)

	n := 0
	for i, a := range cmd.Args {
		ctx.args[i] = Value{Type: a.Type, ref: RefNone}
		if a.FromVM {
			continue
		}
		ctx.present[i] = n < supplied
		n++
	}
	if supplied > n || supplied < cmd.Required() {
		raise(FaultInternal, "%s called with %d arguments, signature %s", cmd.Name, supplied, cmd.Signature)
	}

	for _, i := range cmd.pops {
		if !ctx.present[i] {
			continue
		}
		a := cmd.Args[i]
		if a.Params {
			count := int(vm.stack.PopInt32())
			if count < 0 {
				raise(FaultInternal, "%s: negative params count", cmd.Name)
			}
			if cap(ctx.params) < count {
				ctx.params = make([]Value, count)
			}
			ctx.params = ctx.params[:count]
			for j := count - 1; j >= 0; j-- {
				ctx.params[j] = vm.popArg(a)
			}
			continue
		}
		ctx.args[i] = vm.popArg(a)
	}

	vm.invoke(ctx)

	for i, a := range cmd.Args {
		if !ctx.present[i] {
			continue
		}
		switch {
		case a.Params && a.Raw:
			for _, v := range ctx.params {
				vm.writeBack(v)
			}
		case a.Ref || a.Raw:
			vm.writeBack(ctx.args[i])
		}
	}
	if cmd.Return != TypeVoid {
		vm.pushValue(ctx.ret)
	}
}

func (vm *VM) invoke(ctx *CallContext) {
	cmd := ctx.Command
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				f = &Fault{Kind: FaultHostCommand, Message: fmt.Sprint(r)}
			}
			if f.Command == "" {
				f.Command = cmd.Name
			}
			panic(f)
		}
	}()
	if err := cmd.Func(ctx); err != nil {
		panic(&Fault{Kind: FaultHostCommand, Command: cmd.Name, Message: err.Error(), Err: err})
	}
}

func (vm *VM) popArg(a ArgSpec) Value {
	s := vm.stack
	switch {
	case a.Raw:
		tc := TypeCode(s.PopInt32())
		ref := s.PopUint32()
		v := decodeValue(s.PopBytes(tc.Width()), tc)
		v.ref = ref
		return v
	case a.Ref:
		ref := s.PopUint32()
		v := decodeValue(s.PopBytes(a.Type.Width()), a.Type)
		v.ref = ref
		return v
	}
	return decodeValue(s.PopBytes(a.Type.Width()), a.Type)
}

func (vm *VM) pushValue(v Value) {
	if v.Type == TypeFloat {
		vm.stack.PushFloat(v.Float())
		return
	}
	vm.stack.PushInt(v.Type, int64(v.bits))
}

func (vm *VM) writeBack(v Value) {
	if v.dirty && v.ref != RefNone {
		encodeValue(vm.resolveRef(v.ref, v.Type.Width()), v)
	}
}
