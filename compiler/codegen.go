package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/basil/vm"
)

// ---------------------------------------------------------------------------
// Codegen: lower a checked AST to bytecode
// ---------------------------------------------------------------------------

// Options controls code generation.
type Options struct {
	Strict    bool // stop parsing at the first error
	DebugData bool // attach statement and variable tables to the program
}

// Compiler lowers one checked program.
type Compiler struct {
	prog *ProgramNode
	cmds *vm.CommandCollection
	opts Options

	builder  *vm.BytecodeBuilder
	strings  []string
	literals map[string]int
	labels   map[*LabelStmt]*vm.Label
	debug    *vm.DebugData
	errors   []*CompileError

	scope     *Scope
	fn        *FuncDecl
	exits     []*vm.Label // innermost loop last
	stmtStart int
}

// NewCompiler creates a compiler for a checked program.
func NewCompiler(prog *ProgramNode, cmds *vm.CommandCollection, opts Options) *Compiler {
	if cmds == nil {
		cmds, _ = vm.NewCommandCollection()
	}
	c := &Compiler{
		prog:     prog,
		cmds:     cmds,
		opts:     opts,
		builder:  vm.NewBytecodeBuilder(),
		literals: make(map[string]int),
		labels:   make(map[*LabelStmt]*vm.Label),
	}
	if opts.DebugData {
		c.debug = vm.NewDebugData()
	}
	return c
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []*CompileError {
	return c.errors
}

// errorf records a compilation error against n.
func (c *Compiler) errorf(n Node, format string, args ...any) {
	c.errors = append(c.errors, &CompileError{Node: n, Reason: fmt.Sprintf(format, args...)})
}

// Generate lowers prog to a vm.Program. The program is checked first if
// needed; any outstanding diagnostic refuses compilation with a
// *DiagnosticsError. Lowering failures return the first *CompileError.
func Generate(prog *ProgramNode, cmds *vm.CommandCollection, opts Options) (*vm.Program, error) {
	if diags := Check(prog, cmds); len(diags) > 0 {
		return nil, &DiagnosticsError{Diagnostics: diags}
	}
	c := NewCompiler(prog, cmds, opts)
	out := c.Compile()
	if len(c.errors) > 0 {
		return nil, c.errors[0]
	}
	return out, nil
}

// Compile emits the main program, then every function.
func (c *Compiler) Compile() *vm.Program {
	out := &vm.Program{CommandDigest: c.cmds.Digest(), Debug: c.debug}
	root := c.prog.Root
	c.scope = root

	c.allocStructs(root, nil)
	c.compileStatements(c.prog.Statements)
	c.builder.Emit(vm.OpEnd)

	for _, f := range c.prog.Functions {
		entry := c.compileFunction(f)
		info := vm.FunctionInfo{Name: f.Name, Entry: entry, Locals: f.Scope.Slots(), Return: f.Return.Code}
		for _, p := range f.Params {
			info.Params = append(info.Params, slotType(p.Name.Type()))
		}
		out.Functions = append(out.Functions, info)
	}

	if err := c.builder.Finish(); err != nil {
		c.errorf(c.prog, "%v", err)
	}
	out.Code = c.builder.Bytes()
	out.Strings = c.strings
	out.Globals = root.Slots()
	for _, sym := range root.Symbols() {
		out.Variables = append(out.Variables, sym.Ref())
	}
	for _, f := range c.prog.Functions {
		for _, sym := range f.Scope.Symbols() {
			out.Variables = append(out.Variables, sym.Ref())
		}
	}
	if c.debug != nil {
		for name, st := range root.Structs {
			c.debug.Structs[name] = st.Layout()
		}
	}
	if root.Slots() > math.MaxUint16 {
		c.errorf(c.prog, "too many global variables (%d)", root.Slots())
	}
	if len(out.Functions) > math.MaxUint16 {
		c.errorf(c.prog, "too many functions (%d)", len(out.Functions))
	}
	if len(c.errors) == 0 {
		if err := out.Validate(); err != nil {
			c.errorf(c.prog, "%v", err)
		}
	}
	log.Debugf("generated %d bytes, %d functions, %d globals", len(out.Code), len(out.Functions), out.Globals)
	return out
}

func (c *Compiler) compileFunction(f *FuncDecl) int {
	c.scope, c.fn = f.Scope, f
	defer func() { c.scope, c.fn = c.prog.Root, nil }()
	entry := c.builder.Len()
	if c.debug != nil {
		for _, p := range f.Params {
			c.debug.AddVariable(entry, p.Name.Sym.Ref())
		}
	}
	c.allocStructs(f.Scope, f)
	c.compileStatements(f.Body)
	c.stmtStart = c.builder.Len()
	if f.Result != nil {
		c.compileConverted(f.Result, f.Return)
		c.recordStatement(f.Result, c.stmtStart)
	} else {
		c.compileZero(f.Return.Code)
	}
	c.builder.EmitType(vm.OpReturn, f.Return.Code)
	if f.Scope.Slots() > math.MaxUint16 {
		c.errorf(f, "too many local variables in %s", f.Name)
	}
	return entry
}

// allocStructs gives every struct variable of scope its heap block.
func (c *Compiler) allocStructs(scope *Scope, f *FuncDecl) {
	params := 0
	if f != nil {
		params = len(f.Params)
	}
	for _, sym := range scope.Symbols() {
		if sym.Slot < params || !sym.Type.IsStruct() {
			continue
		}
		c.builder.EmitUint32(vm.OpAlloc, uint32(sym.Type.Struct.Size))
		c.storeSlot(sym.Storage, vm.TypePtr, sym.Slot)
	}
}

// ---------------------------------------------------------------------------
// Debug tables
// ---------------------------------------------------------------------------

func tokenRef(t Token) vm.TokenRef {
	return vm.TokenRef{Line: t.Pos.Line, Char: t.Pos.Char, Length: len(t.Raw), Text: t.Raw}
}

func (c *Compiler) recordStatement(n Node, offset int) {
	if c.debug == nil || c.builder.Len() == offset {
		return
	}
	name := ""
	if c.fn != nil {
		name = c.fn.Name
	}
	c.debug.AddStatement(offset, tokenRef(n.base().First), name)
}

// declare records sym as declared by the current statement.
func (c *Compiler) declare(sym *Symbol) {
	if c.debug != nil && sym != nil {
		c.debug.AddVariable(c.stmtStart, sym.Ref())
	}
}

// declareIdent records an implicit declaration made by id.
func (c *Compiler) declareIdent(id *Ident) {
	if id.Sym != nil && id.Sym.Decl == Node(id) {
		c.declare(id.Sym)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []Stmt) {
	for _, s := range stmts {
		c.compileStmt(s)
	}
}

func (c *Compiler) compileStmt(stmt Stmt) {
	start := c.builder.Len()
	outer := c.stmtStart
	c.stmtStart = start
	defer func() { c.stmtStart = outer }()

	switch s := stmt.(type) {
	case *AssignStmt:
		c.compileAssign(s)
	case *DeclStmt:
		c.declare(s.Name.Sym)
		if s.Init != nil {
			c.compileStore(s.Name, s.Init)
		}
	case *DimStmt:
		c.compileDim(s)
	case *IfStmt:
		c.compileIf(s)
	case *WhileStmt:
		top, end := c.builder.NewLabel(), c.builder.NewLabel()
		c.builder.Mark(top)
		c.compileCond(s.Cond)
		c.builder.EmitJump(vm.OpJumpZero, end)
		c.compileLoopBody(s.Body, end)
		c.builder.EmitJump(vm.OpJump, top)
		c.builder.Mark(end)
	case *DoStmt:
		top, end := c.builder.NewLabel(), c.builder.NewLabel()
		c.builder.Mark(top)
		c.compileLoopBody(s.Body, end)
		c.builder.EmitJump(vm.OpJump, top)
		c.builder.Mark(end)
	case *RepeatStmt:
		top, end := c.builder.NewLabel(), c.builder.NewLabel()
		c.builder.Mark(top)
		c.compileLoopBody(s.Body, end)
		c.compileCond(s.Cond)
		c.builder.EmitJump(vm.OpJumpZero, top)
		c.builder.Mark(end)
	case *ForStmt:
		c.compileFor(s)
	case *SelectStmt:
		c.compileSelect(s)
	case *LabelStmt:
		c.builder.Mark(c.label(s))
	case *GotoStmt:
		c.builder.EmitJump(vm.OpJump, c.label(s.Target))
	case *GosubStmt:
		c.builder.EmitJump(vm.OpGosub, c.label(s.Target))
	case *ReturnStmt:
		c.builder.Emit(vm.OpReturnSub)
	case *EndStmt:
		c.builder.Emit(vm.OpEnd)
	case *ExitStmt:
		if len(c.exits) == 0 {
			c.errorf(s, "exit outside of a loop")
			break
		}
		c.builder.EmitJump(vm.OpJump, c.exits[len(c.exits)-1])
	case *ExitFunctionStmt:
		if c.fn == nil {
			c.errorf(s, "exitfunction outside of a function")
			break
		}
		if s.Value != nil {
			c.compileConverted(s.Value, c.fn.Return)
		} else {
			c.compileZero(c.fn.Return.Code)
		}
		c.builder.EmitType(vm.OpReturn, c.fn.Return.Code)
	case *CommandStmt:
		c.compileCommand(s.Call)
		if ret := s.Call.Info.Return; ret != vm.TypeVoid {
			c.builder.EmitType(vm.OpPop, ret)
		}
	case *CallStmt:
		c.compileCall(s.Call)
		if ret := s.Call.Func.Return; ret.Code != vm.TypeVoid {
			c.builder.EmitType(vm.OpPop, ret.Code)
		}
	case *FuncDecl, *TypeDecl:
		// declared at the top level only
	default:
		c.errorf(stmt, "cannot compile %T", stmt)
	}
	c.recordStatement(stmt, start)
}

func (c *Compiler) label(l *LabelStmt) *vm.Label {
	if lbl, ok := c.labels[l]; ok {
		return lbl
	}
	lbl := c.builder.NewLabel()
	c.labels[l] = lbl
	return lbl
}

func (c *Compiler) compileLoopBody(body []Stmt, exit *vm.Label) {
	c.exits = append(c.exits, exit)
	c.compileStatements(body)
	c.exits = c.exits[:len(c.exits)-1]
}

func (c *Compiler) compileIf(s *IfStmt) {
	elseLabel, end := c.builder.NewLabel(), c.builder.NewLabel()
	c.compileCond(s.Cond)
	c.builder.EmitJump(vm.OpJumpZero, elseLabel)
	c.compileStatements(s.Then)
	if len(s.Else) > 0 {
		c.builder.EmitJump(vm.OpJump, end)
	}
	c.builder.Mark(elseLabel)
	c.compileStatements(s.Else)
	c.builder.Mark(end)
}

func (c *Compiler) compileFor(s *ForStmt) {
	v := s.Var.Sym
	tc := v.Type.Code
	c.declareIdent(s.Var)

	c.compileConverted(s.From, v.Type)
	c.storeSlot(v.Storage, tc, v.Slot)
	limit := c.scope.Temp()
	c.compileConverted(s.To, v.Type)
	c.storeSlot(c.tempStorage(), tc, limit)

	// A literal step fixes the loop direction at compile time.
	direction := 1
	step := -1
	switch lit := s.Step.(type) {
	case nil:
	case *IntLit:
		if lit.Value < 0 {
			direction = -1
		}
	case *FloatLit:
		if lit.Value < 0 {
			direction = -1
		}
	default:
		direction = 0
		step = c.scope.Temp()
		c.compileConverted(s.Step, v.Type)
		c.storeSlot(c.tempStorage(), tc, step)
	}

	top, end, next := c.builder.NewLabel(), c.builder.NewLabel(), c.builder.NewLabel()
	c.builder.Mark(top)
	condStart := c.builder.Len()
	switch direction {
	case 1, -1:
		c.loadSlot(v.Storage, tc, v.Slot)
		c.loadSlot(c.tempStorage(), tc, limit)
		if direction > 0 {
			c.builder.EmitType(vm.OpLe, tc)
		} else {
			c.builder.EmitType(vm.OpGe, tc)
		}
	default:
		down, check := c.builder.NewLabel(), c.builder.NewLabel()
		c.loadSlot(c.tempStorage(), tc, step)
		c.compileZero(tc)
		c.builder.EmitType(vm.OpGe, tc)
		c.builder.EmitJump(vm.OpJumpZero, down)
		c.loadSlot(v.Storage, tc, v.Slot)
		c.loadSlot(c.tempStorage(), tc, limit)
		c.builder.EmitType(vm.OpLe, tc)
		c.builder.EmitJump(vm.OpJump, check)
		c.builder.Mark(down)
		c.loadSlot(v.Storage, tc, v.Slot)
		c.loadSlot(c.tempStorage(), tc, limit)
		c.builder.EmitType(vm.OpGe, tc)
		c.builder.Mark(check)
	}
	c.builder.EmitJump(vm.OpJumpZero, end)
	c.recordStatement(s, condStart)

	c.compileLoopBody(s.Body, end)
	c.builder.Mark(next)
	c.loadSlot(v.Storage, tc, v.Slot)
	if step >= 0 {
		c.loadSlot(c.tempStorage(), tc, step)
	} else if s.Step != nil {
		c.compileConverted(s.Step, v.Type)
	} else {
		c.compileConst(tc, 1)
	}
	c.builder.EmitType(vm.OpAdd, tc)
	c.storeSlot(v.Storage, tc, v.Slot)
	c.builder.EmitJump(vm.OpJump, top)
	c.builder.Mark(end)
}

func (c *Compiler) compileSelect(s *SelectStmt) {
	st := s.Subject.Type()
	subject := c.scope.Temp()
	c.compileExpr(s.Subject)
	c.storeSlot(c.tempStorage(), st.Code, subject)

	end := c.builder.NewLabel()
	bodies := make([]*vm.Label, len(s.Cases))
	var fallback *vm.Label
	for i, cc := range s.Cases {
		bodies[i] = c.builder.NewLabel()
		if cc.Default {
			fallback = bodies[i]
			continue
		}
		for _, v := range cc.Values {
			w := operandType(st, v.Type())
			c.loadSlot(c.tempStorage(), st.Code, subject)
			c.emitConvert(st.Code, w)
			c.compileConverted(v, ScalarType(w))
			c.builder.EmitType(vm.OpEq, w)
			c.builder.EmitJump(vm.OpJumpNotZero, bodies[i])
		}
	}
	if fallback != nil {
		c.builder.EmitJump(vm.OpJump, fallback)
	} else {
		c.builder.EmitJump(vm.OpJump, end)
	}
	for i, cc := range s.Cases {
		c.builder.Mark(bodies[i])
		c.compileStatements(cc.Body)
		c.builder.EmitJump(vm.OpJump, end)
	}
	c.builder.Mark(end)
}

func (c *Compiler) compileDim(s *DimStmt) {
	sym := s.Name.Sym
	if !s.Redim {
		c.declare(sym)
	}
	elem := sym.Type.Elem
	width := elem.Width()
	if width > math.MaxUint16 {
		c.errorf(s, "array element of %d bytes is too large", width)
		return
	}
	op := vm.OpArrayNew
	if s.Redim {
		op = vm.OpArrayResize
		c.loadSlot(sym.Storage, vm.TypePtr, sym.Slot)
	}
	for _, d := range s.Dims {
		c.compileConverted(d, IntType)
	}
	c.builder.EmitArray(op, uint8(len(s.Dims)), uint16(width))
	c.storeSlot(sym.Storage, vm.TypePtr, sym.Slot)
}

// ---------------------------------------------------------------------------
// Assignment and storage
// ---------------------------------------------------------------------------

func (c *Compiler) compileAssign(s *AssignStmt) {
	if id, ok := s.Target.(*Ident); ok {
		c.declareIdent(id)
	}
	c.compileStore(s.Target, s.Value)
}

// compileStore evaluates value and stores it into target.
func (c *Compiler) compileStore(target, value Expr) {
	tt := target.Type()
	if tt.IsStruct() {
		c.compileRef(target)
		c.compileExpr(value)
		c.builder.EmitUint32(vm.OpCopy, uint32(tt.Struct.Size))
		return
	}
	if id, ok := target.(*Ident); ok {
		c.compileConverted(value, tt)
		c.storeSlot(id.Sym.Storage, tt.Code, id.Sym.Slot)
		return
	}
	c.compileRef(target)
	c.compileConverted(value, tt)
	c.builder.EmitType(vm.OpStoreRef, tt.Code)
}

// compileRef pushes the address of an lvalue. For struct-typed lvalues
// this is the address of the struct's storage.
func (c *Compiler) compileRef(e Expr) {
	switch e := e.(type) {
	case *Ident:
		sym := e.Sym
		if e.Type().IsStruct() {
			c.loadSlot(sym.Storage, vm.TypePtr, sym.Slot)
			return
		}
		if sym.Storage == vm.StorageLocal {
			c.builder.EmitUint16(vm.OpRefLocal, uint16(sym.Slot))
		} else {
			c.builder.EmitUint16(vm.OpRefGlobal, uint16(sym.Slot))
		}
	case *IndexExpr:
		sym := e.Array.Sym
		c.loadSlot(sym.Storage, vm.TypePtr, sym.Slot)
		for _, ix := range e.Indices {
			c.compileConverted(ix, IntType)
		}
		width := e.Type().Width()
		if width > math.MaxUint16 {
			c.errorf(e, "array element of %d bytes is too large", width)
		}
		c.builder.EmitArray(vm.OpArrayAddr, uint8(len(e.Indices)), uint16(width))
	case *FieldExpr:
		c.compileRef(e.X)
		c.builder.EmitUint32(vm.OpFieldAddr, uint32(e.Field.Offset))
	case *DerefExpr:
		c.compileConverted(e.X, DWordType)
	default:
		c.errorf(e, "cannot take the address of %T", e)
	}
}

func (c *Compiler) tempStorage() vm.Storage {
	if c.fn != nil {
		return vm.StorageLocal
	}
	return vm.StorageGlobal
}

func (c *Compiler) loadSlot(storage vm.Storage, tc vm.TypeCode, slot int) {
	if storage == vm.StorageLocal {
		c.builder.EmitSlot(vm.OpLoadLocal, tc, uint16(slot))
	} else {
		c.builder.EmitSlot(vm.OpLoadGlobal, tc, uint16(slot))
	}
}

func (c *Compiler) storeSlot(storage vm.Storage, tc vm.TypeCode, slot int) {
	if storage == vm.StorageLocal {
		c.builder.EmitSlot(vm.OpStoreLocal, tc, uint16(slot))
	} else {
		c.builder.EmitSlot(vm.OpStoreGlobal, tc, uint16(slot))
	}
}

// slotType is the type code a value of t occupies on the stack.
func slotType(t *Type) vm.TypeCode {
	if t.IsArray() || t.Struct != nil {
		return vm.TypePtr
	}
	return t.Code
}
