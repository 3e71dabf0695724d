package compiler

import (
	"math"

	"github.com/chazu/basil/vm"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpr(expr Expr) {
	switch e := expr.(type) {
	case *IntLit:
		c.compileInt(e.Value)
	case *FloatLit:
		c.builder.EmitFloat64(vm.OpPushFloat, e.Value)
	case *StringLit:
		c.compileString(e)
	case *Ident:
		c.loadSlot(e.Sym.Storage, slotType(e.Type()), e.Sym.Slot)
	case *IndexExpr, *FieldExpr:
		c.compileRef(e)
		if t := e.Type(); !t.IsStruct() {
			c.builder.EmitType(vm.OpLoadRef, t.Code)
		}
	case *DerefExpr:
		c.compileRef(e)
		c.builder.EmitType(vm.OpLoadRef, vm.TypeInt)
	case *AddrOfExpr:
		c.compileRef(e.X)
	case *UnaryExpr:
		c.compileUnary(e)
	case *BinaryExpr:
		c.compileBinary(e)
	case *CallExpr:
		c.compileCall(e)
	case *CommandExpr:
		c.compileCommand(e)
	default:
		c.errorf(expr, "cannot compile %T", expr)
	}
}

func (c *Compiler) compileInt(v int64) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		c.builder.EmitInt32(vm.OpPushInt, int32(v))
		return
	}
	c.builder.EmitInt64(vm.OpPushDInt, v)
}

func (c *Compiler) compileString(e *StringLit) {
	idx, ok := c.literals[e.Value]
	if !ok {
		idx = len(c.strings)
		if idx > math.MaxUint16 {
			c.errorf(e, "too many string constants")
			return
		}
		c.strings = append(c.strings, e.Value)
		c.literals[e.Value] = idx
	}
	c.builder.EmitUint16(vm.OpPushString, uint16(idx))
}

// compileConst pushes an integer constant as type tc.
func (c *Compiler) compileConst(tc vm.TypeCode, v int64) {
	switch tc {
	case vm.TypeFloat:
		c.builder.EmitFloat64(vm.OpPushFloat, float64(v))
	case vm.TypeDInt:
		c.builder.EmitInt64(vm.OpPushDInt, v)
	default:
		c.compileInt(v)
		c.emitConvert(vm.TypeInt, tc)
	}
}

// compileZero pushes the zero value of tc; strings get the empty handle.
func (c *Compiler) compileZero(tc vm.TypeCode) {
	switch tc {
	case vm.TypeVoid:
	case vm.TypeString, vm.TypePtr:
		c.builder.EmitInt32(vm.OpPushInt, 0)
	default:
		c.compileConst(tc, 0)
	}
}

// compileConverted evaluates e and converts it to type to.
func (c *Compiler) compileConverted(e Expr, to *Type) {
	c.compileExpr(e)
	if to.IsScalar() {
		c.emitConvert(e.Type().Code, to.Code)
	}
}

func (c *Compiler) emitConvert(from, to vm.TypeCode) {
	if from != to {
		c.builder.EmitConvert(from, to)
	}
}

// compileTruth evaluates e as an int that is zero for false.
func (c *Compiler) compileTruth(e Expr) {
	c.compileExpr(e)
	if tc := e.Type().Code; tc != vm.TypeInt {
		c.compileZero(tc)
		c.builder.EmitType(vm.OpNe, tc)
	}
}

func (c *Compiler) compileCond(e Expr) {
	c.compileTruth(e)
}

// operandType is the common type both operands are converted to.
func operandType(x, y *Type) vm.TypeCode {
	if x.IsString() || y.IsString() {
		return vm.TypeString
	}
	return vm.Widen(x.Code, y.Code)
}

func (c *Compiler) compileUnary(e *UnaryExpr) {
	switch e.Op {
	case "not":
		c.compileTruth(e.X)
		c.builder.Emit(vm.OpNot)
	case "~":
		c.compileExpr(e.X)
		c.builder.EmitType(vm.OpBitNot, e.Type().Code)
	default:
		c.compileExpr(e.X)
		c.builder.EmitType(vm.OpNeg, e.Type().Code)
	}
}

var binaryOps = map[string]vm.Opcode{
	"+": vm.OpAdd, "-": vm.OpSub, "*": vm.OpMul, "/": vm.OpDiv,
	"mod": vm.OpMod, "^": vm.OpPow,
	"=": vm.OpEq, "<>": vm.OpNe, "<": vm.OpLt, "<=": vm.OpLe, ">": vm.OpGt, ">=": vm.OpGe,
	"&": vm.OpBitAnd, "|": vm.OpBitOr, "~": vm.OpBitXor, "<<": vm.OpShl, ">>": vm.OpShr,
	"and": vm.OpAnd, "or": vm.OpOr, "xor": vm.OpXor,
}

func (c *Compiler) compileBinary(e *BinaryExpr) {
	op, ok := binaryOps[e.Op]
	if !ok {
		c.errorf(e, "unknown operator %s", e.Op)
		return
	}
	switch e.Op {
	case "and", "or", "xor":
		c.compileTruth(e.X)
		c.compileTruth(e.Y)
		c.builder.Emit(op)
		return
	}
	w := operandType(e.X.Type(), e.Y.Type())
	c.compileConverted(e.X, ScalarType(w))
	c.compileConverted(e.Y, ScalarType(w))
	if w == vm.TypeString && op == vm.OpAdd {
		c.builder.Emit(vm.OpConcat)
		return
	}
	c.builder.EmitType(op, w)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *Compiler) compileCall(e *CallExpr) {
	f := e.Func
	for i, a := range e.Args {
		pt := f.Params[i].Name.Type()
		if pt.IsStruct() {
			c.compileRef(a)
			continue
		}
		c.compileConverted(a, pt)
	}
	c.builder.EmitUint16(vm.OpCall, uint16(f.Index))
}

// compileCommand pushes arguments in declared order and calls the command
// by method index. The supplied count covers visible parameters pushed,
// with a params tail counting once.
func (c *Compiler) compileCommand(e *CommandExpr) {
	info := e.Info
	if info == nil {
		c.errorf(e, "unresolved command %s", e.Name)
		return
	}
	specs := info.Visible()
	supplied := 0
	for i, spec := range specs {
		if spec.Params {
			rest := e.Args[min(i, len(e.Args)):]
			for _, a := range rest {
				c.compileArg(spec, a)
			}
			c.builder.EmitInt32(vm.OpPushInt, int32(len(rest)))
			supplied++
			break
		}
		if i >= len(e.Args) {
			break
		}
		c.compileArg(spec, e.Args[i])
		supplied++
	}
	if supplied > math.MaxUint8 {
		c.errorf(e, "too many arguments to %s", e.Name)
		return
	}
	c.builder.EmitCallHost(uint16(e.Method), uint8(supplied))
}

func (c *Compiler) compileArg(spec vm.ArgSpec, a Expr) {
	t := a.Type()
	switch {
	case spec.Raw:
		c.compileExpr(a)
		if isLValue(a) && t.IsScalar() {
			c.compileRef(a)
		} else {
			c.builder.EmitInt32(vm.OpPushInt, -1)
		}
		c.builder.EmitInt32(vm.OpPushInt, int32(t.Code))
	case spec.Ref:
		c.compileExpr(a)
		c.compileRef(a)
	default:
		c.compileConverted(a, ScalarType(spec.Type))
	}
}
