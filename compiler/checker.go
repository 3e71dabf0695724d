package compiler

import (
	"fmt"

	"github.com/chazu/basil/vm"
)

// ---------------------------------------------------------------------------
// Checker: scopes, symbol resolution and typing
// ---------------------------------------------------------------------------

type checker struct {
	prog  *ProgramNode
	cmds  *vm.CommandCollection
	root  *Scope
	funcs map[string]*FuncDecl

	scope *Scope
	fn    *FuncDecl
	loops int

	predeclared map[Node]*Symbol
	layout      map[*StructType]int // 1 in progress, 2 done
}

// Check resolves names and types in prog, attaching semantic diagnostics
// to the offending nodes. It returns every diagnostic on the program.
// Checking an already checked program only collects diagnostics.
func Check(prog *ProgramNode, cmds *vm.CommandCollection) []Diagnostic {
	if prog.Checked {
		return prog.AllDiagnostics()
	}
	if cmds == nil {
		cmds, _ = vm.NewCommandCollection()
	}
	c := &checker{
		prog:        prog,
		cmds:        cmds,
		root:        NewScope(nil, nil),
		funcs:       make(map[string]*FuncDecl),
		predeclared: make(map[Node]*Symbol),
		layout:      make(map[*StructType]int),
	}
	prog.Root = c.root
	c.scope = c.root

	c.declareTypes()
	c.declareFunctions()
	c.declareGlobals()
	c.collectLabels(c.root, prog.Statements)
	prog.Labels = c.root.Labels

	c.checkBlock(prog.Statements)
	for _, f := range prog.Functions {
		c.checkFunction(f)
	}
	prog.Checked = true
	diags := prog.AllDiagnostics()
	log.Debugf("checked %d statements, %d functions: %d diagnostics",
		len(prog.Statements), len(prog.Functions), len(diags))
	return diags
}

func semantic(n Node, format string, args ...any) {
	n.base().addDiag(DiagSemantic, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Phase 1: declarations
// ---------------------------------------------------------------------------

func (c *checker) declareTypes() {
	for _, t := range c.prog.Types {
		if t.Name == "" {
			continue
		}
		if _, dup := c.root.Structs[t.Name]; dup {
			semantic(t, "type %s redeclared", t.Name)
			continue
		}
		t.Def = &StructType{Name: t.Name, Decl: t}
		c.root.Structs[t.Name] = t.Def
	}
	for _, t := range c.prog.Types {
		if t.Def != nil {
			c.layoutStruct(t.Def)
		}
	}
}

func (c *checker) layoutStruct(st *StructType) {
	switch c.layout[st] {
	case 1:
		semantic(st.Decl, "type %s contains itself", st.Name)
		return
	case 2:
		return
	}
	c.layout[st] = 1
	offset := 0
	for _, fd := range st.Decl.Fields {
		if fd.Name == "" {
			continue
		}
		if st.Field(fd.Name) != nil {
			semantic(fd, "field %s redeclared in type %s", fd.Name, st.Name)
			continue
		}
		t := c.resolveTypeName(fd, fd.TypeName, fd.Name)
		if t.IsStruct() {
			c.layoutStruct(t.Struct)
		}
		st.Fields = append(st.Fields, &Field{Name: fd.Name, Type: t, Offset: offset})
		offset += t.Width()
	}
	st.Size = offset
	if len(st.Fields) == 0 {
		semantic(st.Decl, "type %s has no fields", st.Name)
	}
	c.layout[st] = 2
}

// resolveTypeName maps a declared type name, or the variable's sigil when
// none is given, to a type.
func (c *checker) resolveTypeName(n Node, typeName, variable string) *Type {
	if typeName == "" {
		return SigilType(variable)
	}
	if t, ok := BuiltinType(typeName); ok {
		return t
	}
	if st, ok := c.root.Structs[typeName]; ok {
		return StructOf(st)
	}
	msg := fmt.Sprintf("unknown type %s", typeName)
	names := make([]string, 0, len(c.root.Structs))
	for name := range c.root.Structs {
		names = append(names, name)
	}
	if hint := suggest(typeName, names); hint != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", hint)
	}
	semantic(n, "%s", msg)
	return BadType
}

func (c *checker) declareFunctions() {
	for i, f := range c.prog.Functions {
		f.Index = i
		f.Scope = NewScope(c.root, f)
		if f.Name == "" {
			continue
		}
		if _, dup := c.funcs[f.Name]; dup {
			semantic(f, "function %s redeclared", f.Name)
		} else {
			c.funcs[f.Name] = f
		}
		for _, p := range f.Params {
			if f.Scope.Local(p.Name.Name) != nil {
				semantic(p.Name, "parameter %s redeclared", p.Name.Name)
			}
			t := c.resolveTypeName(p.Name, p.TypeName, p.Name.Name)
			p.Name.Sym = f.Scope.Define(p.Name.Name, t, p.Name)
			p.Name.setType(t)
		}
		c.collectLabels(f.Scope, f.Body)
	}
}

// declareGlobals registers every global declaration before statements are
// walked, so functions and the main program see them regardless of order.
func (c *checker) declareGlobals() {
	visit := func(n Node) bool {
		switch n := n.(type) {
		case *DeclStmt:
			if n.Storage == "global" {
				c.predeclare(n, n.Name, c.resolveTypeName(n, n.TypeName, n.Name.Name))
			}
		case *DimStmt:
			if n.Storage == "global" && !n.Redim {
				c.predeclare(n, n.Name, c.arrayType(n))
			}
		case Expr:
			return false
		}
		return true
	}
	for _, s := range c.prog.Statements {
		Walk(s, visit, nil)
	}
	for _, f := range c.prog.Functions {
		for _, s := range f.Body {
			Walk(s, visit, nil)
		}
	}
}

func (c *checker) predeclare(decl Stmt, name *Ident, t *Type) {
	if name.Name == "" {
		return
	}
	if prev := c.root.Local(name.Name); prev != nil {
		semantic(decl, "%s redeclared", name.Name)
		return
	}
	sym := c.root.Define(name.Name, t, decl)
	sym.Global = true
	c.predeclared[decl] = sym
}

func (c *checker) arrayType(d *DimStmt) *Type {
	elem := c.resolveTypeName(d, d.TypeName, d.Name.Name)
	if elem.Bad {
		return BadType
	}
	return ArrayOf(elem, max(len(d.Dims), 1))
}

// collectLabels registers the labels of a body in scope.
func (c *checker) collectLabels(scope *Scope, body []Stmt) {
	for _, s := range body {
		Walk(s, func(n Node) bool {
			switch n := n.(type) {
			case *LabelStmt:
				if _, dup := scope.Labels[n.Name]; dup {
					semantic(n, "label %s redeclared", n.Name)
				} else {
					scope.Labels[n.Name] = n
				}
			case *FuncDecl, Expr:
				return false
			}
			return true
		}, nil)
	}
}

// ---------------------------------------------------------------------------
// Phase 2: statements
// ---------------------------------------------------------------------------

func (c *checker) checkFunction(f *FuncDecl) {
	if f.state != 0 {
		return
	}
	f.state = 1
	outerScope, outerFn, outerLoops := c.scope, c.fn, c.loops
	c.scope, c.fn, c.loops = f.Scope, f, 0
	defer func() { c.scope, c.fn, c.loops = outerScope, outerFn, outerLoops }()

	c.checkBlock(f.Body)

	var ret *Type
	merge := func(n Node, t *Type) {
		switch {
		case t == nil || t.Bad:
		case !t.IsScalar():
			semantic(n, "function %s cannot return %s", f.Name, t)
		case ret == nil:
			ret = t
		case ret.IsString() != t.IsString():
			semantic(n, "function %s returns both %s and %s", f.Name, ret, t)
		case t.IsNumeric():
			ret = ScalarType(vm.Widen(ret.Code, t.Code))
		}
	}
	for _, s := range f.Body {
		Walk(s, func(n Node) bool {
			switch n := n.(type) {
			case *ExitFunctionStmt:
				if n.Value != nil {
					merge(n, n.Value.Type())
				}
			case *FuncDecl, Expr:
				return false
			}
			return true
		}, nil)
	}
	if f.Result != nil {
		merge(f.Result, c.checkExpr(f.Result))
	}
	if ret == nil {
		ret = VoidType
	}
	if f.recursive {
		fallback := SigilType(f.Name)
		if ret != VoidType && !Assignable(fallback, ret) {
			semantic(f, "recursive function %s returns %s but its name implies %s", f.Name, ret, fallback)
		}
		ret = fallback
	}
	f.Return = ret
	f.state = 2
}

// returnType returns f's inferred return type, checking f first if needed.
// A call made while f is still being inferred gets the type implied by the
// function name's sigil.
func (c *checker) returnType(f *FuncDecl) *Type {
	switch f.state {
	case 0:
		c.checkFunction(f)
	case 1:
		f.recursive = true
		return SigilType(f.Name)
	}
	return f.Return
}

func (c *checker) checkBlock(list []Stmt) {
	for _, s := range list {
		c.checkStmt(s)
	}
}

func (c *checker) checkStmt(s Stmt) {
	switch s := s.(type) {
	case *AssignStmt:
		c.checkAssign(s)
	case *DeclStmt:
		c.checkDecl(s)
	case *DimStmt:
		c.checkDim(s)
	case *IfStmt:
		c.checkCond(s.Cond)
		c.checkBlock(s.Then)
		c.checkBlock(s.Else)
	case *WhileStmt:
		c.checkCond(s.Cond)
		c.checkLoop(s.Body)
	case *DoStmt:
		c.checkLoop(s.Body)
	case *RepeatStmt:
		c.checkLoop(s.Body)
		if s.Cond != nil {
			c.checkCond(s.Cond)
		}
	case *ForStmt:
		c.checkFor(s)
	case *SelectStmt:
		c.checkSelect(s)
	case *GotoStmt:
		s.Target = c.resolveLabel(s, s.Label)
	case *GosubStmt:
		s.Target = c.resolveLabel(s, s.Label)
	case *ExitStmt:
		if c.loops == 0 {
			semantic(s, "exit outside of a loop")
		}
	case *ExitFunctionStmt:
		if c.fn == nil {
			semantic(s, "exitfunction outside of a function")
		}
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
	case *CommandStmt:
		c.checkCommand(s.Call)
	case *CallStmt:
		c.checkCall(s.Call)
	}
}

func (c *checker) checkLoop(body []Stmt) {
	c.loops++
	c.checkBlock(body)
	c.loops--
}

func (c *checker) checkCond(e Expr) {
	t := c.checkExpr(e)
	if t != nil && !t.Bad && !t.IsNumeric() {
		semantic(e, "condition must be numeric, not %s", t)
	}
}

func (c *checker) resolveLabel(n Node, name string) *LabelStmt {
	if name == "" {
		return nil
	}
	if l, ok := c.scope.Labels[name]; ok {
		return l
	}
	names := make([]string, 0, len(c.scope.Labels))
	for l := range c.scope.Labels {
		names = append(names, l)
	}
	msg := fmt.Sprintf("undefined label %s", name)
	if hint := suggest(name, names); hint != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", hint)
	}
	semantic(n, "%s", msg)
	return nil
}

// declareImplicit defines name on first write in the current scope.
func (c *checker) declareImplicit(id *Ident) *Symbol {
	if sym := c.scope.Lookup(id.Name); sym != nil {
		return sym
	}
	return c.scope.Define(id.Name, SigilType(id.Name), id)
}

// checkAssign declares an implicit target before typing the value, so
// x = x + 1 reads the new variable's zero value.
func (c *checker) checkAssign(s *AssignStmt) {
	if id, ok := s.Target.(*Ident); ok && id.Name != "" {
		id.Sym = c.declareImplicit(id)
		id.setType(id.Sym.Type)
	}
	vt := c.checkExpr(s.Value)
	tt := c.checkExpr(s.Target)
	switch {
	case tt == nil || vt == nil:
	case tt.IsArray():
		semantic(s.Target, "cannot assign to a whole array")
	case !Assignable(tt, vt):
		semantic(s, "cannot assign %s to %s", vt, tt)
	}
}

func (c *checker) checkDecl(s *DeclStmt) {
	if s.Init != nil {
		c.checkExpr(s.Init)
	}
	if s.Name.Name == "" {
		return
	}
	sym, ok := c.predeclared[s]
	if !ok {
		if c.scope.Local(s.Name.Name) != nil {
			semantic(s, "%s redeclared", s.Name.Name)
			s.Name.Sym = c.scope.Local(s.Name.Name)
			s.Name.setType(s.Name.Sym.Type)
			return
		}
		sym = c.scope.Define(s.Name.Name, c.resolveTypeName(s, s.TypeName, s.Name.Name), s)
	}
	s.Name.Sym = sym
	s.Name.setType(sym.Type)
	if s.Init != nil && !Assignable(sym.Type, s.Init.Type()) {
		semantic(s, "cannot initialize %s %s with %s", sym.Type, s.Name.Name, s.Init.Type())
	}
}

func (c *checker) checkDim(s *DimStmt) {
	for _, d := range s.Dims {
		if t := c.checkExpr(d); t != nil && !t.Bad && !t.IsNumeric() {
			semantic(d, "array bound must be numeric, not %s", t)
		}
	}
	if s.Name.Name == "" {
		return
	}
	if s.Redim {
		sym := c.scope.Lookup(s.Name.Name)
		switch {
		case sym == nil:
			semantic(s, "redim of undeclared array %s", s.Name.Name)
		case !sym.Type.IsArray():
			semantic(s, "%s is not an array", s.Name.Name)
		case sym.Type.Rank != len(s.Dims):
			semantic(s, "redim of %s changes its rank from %d to %d", s.Name.Name, sym.Type.Rank, len(s.Dims))
		}
		if sym != nil {
			s.Name.Sym = sym
			s.Name.setType(sym.Type)
		}
		return
	}
	if len(s.Dims) == 0 {
		semantic(s, "array %s needs at least one bound", s.Name.Name)
	}
	sym, ok := c.predeclared[s]
	if !ok {
		if prev := c.scope.Local(s.Name.Name); prev != nil {
			semantic(s, "%s redeclared", s.Name.Name)
			s.Name.Sym = prev
			s.Name.setType(prev.Type)
			return
		}
		sym = c.scope.Define(s.Name.Name, c.arrayType(s), s)
		sym.Global = c.fn == nil && s.Storage == ""
	}
	s.Name.Sym = sym
	s.Name.setType(sym.Type)
}

func (c *checker) checkFor(s *ForStmt) {
	for _, e := range []Expr{s.From, s.To, s.Step} {
		if e == nil {
			continue
		}
		if t := c.checkExpr(e); t != nil && !t.Bad && !t.IsNumeric() {
			semantic(e, "for bound must be numeric, not %s", t)
		}
	}
	if s.Var.Name != "" {
		s.Var.Sym = c.declareImplicit(s.Var)
		s.Var.setType(s.Var.Sym.Type)
		if t := s.Var.Sym.Type; !t.Bad && !t.IsNumeric() {
			semantic(s.Var, "for variable %s must be numeric, not %s", s.Var.Name, t)
		}
	}
	c.checkLoop(s.Body)
}

func (c *checker) checkSelect(s *SelectStmt) {
	st := c.checkExpr(s.Subject)
	if st != nil && !st.Bad && !st.IsScalar() {
		semantic(s.Subject, "cannot select on %s", st)
	}
	seenDefault := false
	for _, cc := range s.Cases {
		if cc.Default {
			if seenDefault {
				semantic(cc, "more than one case default")
			}
			seenDefault = true
		}
		for _, v := range cc.Values {
			vt := c.checkExpr(v)
			if st != nil && vt != nil && !comparable(st, vt) {
				semantic(v, "cannot compare %s with %s", vt, st)
			}
		}
		c.checkBlock(cc.Body)
	}
}

func comparable(a, b *Type) bool {
	if a.Bad || b.Bad {
		return true
	}
	return (a.IsNumeric() && b.IsNumeric()) || (a.IsString() && b.IsString())
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *checker) checkCall(call *CallExpr) *Type {
	for _, a := range call.Args {
		c.checkExpr(a)
	}
	f, ok := c.funcs[call.Name]
	if !ok {
		semantic(call, "undefined function %s", call.Name)
		return BadType
	}
	call.Func = f
	if len(call.Args) != len(f.Params) {
		semantic(call, "%s expects %d arguments, got %d", f.Name, len(f.Params), len(call.Args))
	} else {
		for i, a := range call.Args {
			pt := f.Params[i].Name.Type()
			if at := a.Type(); !Assignable(pt, at) {
				semantic(a, "argument %d of %s must be %s, not %s", i+1, f.Name, pt, at)
			}
		}
	}
	return c.returnType(f)
}

// checkCommand checks the arguments of call, settles its overload with the
// checked argument types and validates each argument against it.
func (c *checker) checkCommand(call *CommandExpr) *Type {
	for i, a := range call.Args {
		if id, ok := a.(*Ident); ok && id.Name != "" && c.refParam(call, i) {
			id.Sym = c.declareImplicit(id)
			id.setType(id.Sym.Type)
		}
		c.checkExpr(a)
	}
	c.resolveOverload(call)
	if call.Info == nil {
		return BadType
	}
	for i, a := range call.Args {
		spec, ok := paramAt(call.Info, i)
		at := a.Type()
		if !ok || at == nil || at.Bad {
			continue
		}
		switch {
		case spec.Ref && !(at.IsScalar() && at.Code == spec.Type):
			semantic(a, "argument %d of %s must be a %s variable, not %s", i+1, call.Name, ScalarType(spec.Type), at)
		case !at.IsScalar():
			semantic(a, "argument %d of %s cannot be %s", i+1, call.Name, at)
		case spec.Raw || spec.Ref:
		case at.Code != spec.Type && !(at.IsNumeric() && spec.Type.IsNumeric()):
			semantic(a, "argument %d of %s must be %s, not %s", i+1, call.Name, ScalarType(spec.Type), at)
		}
	}
	return ScalarType(call.Info.Return)
}

// resolveOverload re-runs overload resolution with the checked argument
// types. A call the parser rejected keeps the parser's diagnostic; when the
// checked types fit no overload the parser's choice stays so the argument
// checks can say what is wrong.
func (c *checker) resolveOverload(call *CommandExpr) {
	if call.Info == nil && !call.deferred {
		return
	}
	types := make([]*Type, len(call.Args))
	lvalues := make([]bool, len(call.Args))
	bad := false
	for i, a := range call.Args {
		types[i] = a.Type()
		lvalues[i] = isLValue(a)
		bad = bad || (types[i] != nil && types[i].Bad)
	}
	info, err := ResolveOverload(call.Name, c.cmds.Lookup(call.Name), types, lvalues)
	switch {
	case err == nil:
		call.Info = info
		call.Method = info.MethodIndex
	case call.deferred && !bad:
		semantic(call, "%v", err)
	}
	call.deferred = false
}

// refParam reports whether argument i of call is passed by reference. An
// unresolved call asks every overload.
func (c *checker) refParam(call *CommandExpr, i int) bool {
	cands := c.cmds.Lookup(call.Name)
	if call.Info != nil {
		cands = []*vm.CommandInfo{call.Info}
	}
	for _, info := range cands {
		if spec, ok := paramAt(info, i); ok && spec.Ref {
			return true
		}
	}
	return false
}

// paramAt returns the visible parameter that receives argument i.
func paramAt(info *vm.CommandInfo, i int) (vm.ArgSpec, bool) {
	specs := info.Visible()
	switch {
	case i < len(specs):
		return specs[i], true
	case info.Variadic():
		return specs[len(specs)-1], true
	}
	return vm.ArgSpec{}, false
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// checkExpr types e and returns its type.
func (c *checker) checkExpr(e Expr) *Type {
	if e == nil {
		return nil
	}
	t := c.exprType(e)
	e.setType(t)
	return t
}

func (c *checker) exprType(e Expr) *Type {
	switch e := e.(type) {
	case *IntLit:
		return intLitType(e.Value)
	case *FloatLit:
		return FloatType
	case *StringLit:
		return StringType
	case *Ident:
		return c.identType(e)
	case *IndexExpr:
		return c.indexType(e)
	case *FieldExpr:
		return c.fieldType(e)
	case *UnaryExpr:
		return c.unaryType(e)
	case *BinaryExpr:
		return c.binaryType(e)
	case *AddrOfExpr:
		c.checkExpr(e.X)
		if t := e.X.Type(); t != nil && !t.Bad && !t.IsScalar() {
			semantic(e, "cannot take the address of %s", t)
		}
		return DWordType
	case *DerefExpr:
		if t := c.checkExpr(e.X); t != nil && !t.Bad && !(t.IsScalar() && t.Code.IsInteger()) {
			semantic(e, "cannot dereference %s", t)
		}
		return IntType
	case *CallExpr:
		t := c.checkCall(e)
		if t == VoidType {
			semantic(e, "function %s does not return a value", e.Name)
			return BadType
		}
		return t
	case *CommandExpr:
		t := c.checkCommand(e)
		if t == VoidType {
			semantic(e, "command %s does not return a value", e.Name)
			return BadType
		}
		return t
	}
	return BadType
}

func (c *checker) identType(id *Ident) *Type {
	if id.Sym == nil {
		id.Sym = c.scope.Lookup(id.Name)
	}
	if id.Sym == nil {
		msg := fmt.Sprintf("undefined variable %s", id.Name)
		if hint := suggest(id.Name, c.scope.Visible()); hint != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", hint)
		}
		semantic(id, "%s", msg)
		return BadType
	}
	return id.Sym.Type
}

func (c *checker) indexType(e *IndexExpr) *Type {
	for _, ix := range e.Indices {
		if t := c.checkExpr(ix); t != nil && !t.Bad && !t.IsNumeric() {
			semantic(ix, "array index must be numeric, not %s", t)
		}
	}
	at := c.checkExpr(e.Array)
	switch {
	case at.Bad:
		return BadType
	case !at.IsArray():
		semantic(e, "%s is not an array", e.Array.Name)
		return BadType
	case len(e.Indices) != at.Rank:
		semantic(e, "%s has %d dimensions, indexed with %d", e.Array.Name, at.Rank, len(e.Indices))
	}
	return at.Elem
}

func (c *checker) fieldType(e *FieldExpr) *Type {
	xt := c.checkExpr(e.X)
	if xt.Bad || e.Name == "" {
		return BadType
	}
	if !xt.IsStruct() {
		semantic(e, "%s has no fields", xt)
		return BadType
	}
	e.Field = xt.Struct.Field(e.Name)
	if e.Field == nil {
		msg := fmt.Sprintf("type %s has no field %s", xt.Struct.Name, e.Name)
		if hint := suggest(e.Name, xt.Struct.FieldNames()); hint != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", hint)
		}
		semantic(e, "%s", msg)
		return BadType
	}
	return e.Field.Type
}

func (c *checker) unaryType(e *UnaryExpr) *Type {
	t := c.checkExpr(e.X)
	if t.Bad {
		return BadType
	}
	switch e.Op {
	case "not":
		if !t.IsNumeric() {
			semantic(e, "operator not is not defined on %s", t)
		}
		return IntType
	case "~":
		if !t.IsScalar() || !t.Code.IsInteger() {
			semantic(e, "operator ~ is not defined on %s", t)
			return BadType
		}
		return t
	}
	if !t.IsNumeric() {
		semantic(e, "operator %s is not defined on %s", e.Op, t)
		return BadType
	}
	return t
}

func (c *checker) binaryType(e *BinaryExpr) *Type {
	x, y := c.checkExpr(e.X), c.checkExpr(e.Y)
	if x.Bad || y.Bad {
		return BadType
	}
	bad := func() *Type {
		semantic(e, "operator %s is not defined on %s and %s", e.Op, x, y)
		return BadType
	}
	if !x.IsScalar() || !y.IsScalar() {
		return bad()
	}
	switch e.Op {
	case "=", "<>", "<", ">", "<=", ">=":
		if !comparable(x, y) {
			return bad()
		}
		return IntType
	case "and", "or", "xor":
		if !x.IsNumeric() || !y.IsNumeric() {
			return bad()
		}
		return IntType
	case "&", "|", "~", "<<", ">>":
		if !x.Code.IsInteger() || !y.Code.IsInteger() {
			return bad()
		}
		return ScalarType(vm.Widen(x.Code, y.Code))
	case "+":
		if x.IsString() && y.IsString() {
			return StringType
		}
	}
	if !x.IsNumeric() || !y.IsNumeric() {
		return bad()
	}
	return ScalarType(vm.Widen(x.Code, y.Code))
}
