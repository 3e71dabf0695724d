package compiler

import "github.com/chazu/basil/vm"

// ---------------------------------------------------------------------------
// AST: closed set of statement and expression nodes
// ---------------------------------------------------------------------------

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	Diagnostics() []Diagnostic
	base() *NodeBase
}

// NodeBase holds what every node owns: its token span and the diagnostics
// attached to it. Nodes never refer to their parents.
type NodeBase struct {
	First Token
	Last  Token
	Diags []Diagnostic
}

func (n *NodeBase) Span() Span { return Span{Start: n.First.Pos, End: n.Last.End()} }

func (n *NodeBase) Diagnostics() []Diagnostic { return n.Diags }

func (n *NodeBase) base() *NodeBase { return n }

func (n *NodeBase) addDiag(kind DiagnosticKind, msg string) {
	n.Diags = append(n.Diags, Diagnostic{
		Kind:    kind,
		Message: msg,
		Start:   n.First.Pos,
		End:     n.Last.End(),
		Excerpt: n.First.Raw,
	})
}

// Expr is the interface for expression nodes. Type is nil until checked.
type Expr interface {
	Node
	Type() *Type
	setType(*Type)
}

// ExprBase is embedded by every expression node.
type ExprBase struct {
	NodeBase
	Typ *Type
}

func (e *ExprBase) Type() *Type     { return e.Typ }
func (e *ExprBase) setType(t *Type) { e.Typ = t }

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt()
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// IntLit is an integer literal.
type IntLit struct {
	ExprBase
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	ExprBase
	Value float64
}

// StringLit is a string literal with quotes removed.
type StringLit struct {
	ExprBase
	Value string
}

// Ident is a reference to a scalar, struct or whole-array variable.
type Ident struct {
	ExprBase
	Name string // case-folded, including any sigil
	Sym  *Symbol
}

// IndexExpr is an array element reference: name(i, j).
type IndexExpr struct {
	ExprBase
	Array   *Ident
	Indices []Expr
}

// FieldExpr is a struct field reference: x.name.
type FieldExpr struct {
	ExprBase
	X     Expr
	Name  string
	Field *Field
}

// UnaryExpr is a prefix operation: -x, not x, ~x.
type UnaryExpr struct {
	ExprBase
	Op string
	X  Expr
}

// BinaryExpr is an infix operation.
type BinaryExpr struct {
	ExprBase
	Op string
	X  Expr
	Y  Expr
}

// AddrOfExpr takes the address of a variable: @x.
type AddrOfExpr struct {
	ExprBase
	X Expr
}

// DerefExpr reads an integer through an address: *p.
type DerefExpr struct {
	ExprBase
	X Expr
}

// CallExpr calls a script function.
type CallExpr struct {
	ExprBase
	Name string
	Args []Expr
	Func *FuncDecl
}

// CommandExpr calls a host command. Method is resolved by the parser, or
// by the checker when the parser could not tell the overloads apart; it is
// -1 while unresolved.
type CommandExpr struct {
	ExprBase
	Name   string
	Args   []Expr
	Info   *vm.CommandInfo
	Method int

	deferred bool // waiting for checked argument types
}

// BadExpr stands in for an expression that failed to parse.
type BadExpr struct {
	ExprBase
}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// StmtBase is embedded by every statement node.
type StmtBase struct {
	NodeBase
}

func (*StmtBase) stmt() {}

// AssignStmt stores a value: target = value.
type AssignStmt struct {
	StmtBase
	Target Expr
	Value  Expr
}

// DeclStmt declares a scalar or struct variable.
type DeclStmt struct {
	StmtBase
	Storage  string // "local", "global" or "" for a bare "name as type"
	Name     *Ident
	TypeName string // "" when the sigil decides
	Init     Expr
}

// DimStmt declares or resizes an array.
type DimStmt struct {
	StmtBase
	Storage  string
	Name     *Ident
	Dims     []Expr
	TypeName string
	Redim    bool
}

// IfStmt is a block or single-line conditional.
type IfStmt struct {
	StmtBase
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// WhileStmt is while...endwhile.
type WhileStmt struct {
	StmtBase
	Cond Expr
	Body []Stmt
}

// DoStmt is do...loop.
type DoStmt struct {
	StmtBase
	Body []Stmt
}

// RepeatStmt is repeat...until.
type RepeatStmt struct {
	StmtBase
	Body []Stmt
	Cond Expr
}

// ForStmt is for...next.
type ForStmt struct {
	StmtBase
	Var  *Ident
	From Expr
	To   Expr
	Step Expr // nil means 1
	Body []Stmt
}

// CaseClause is one case of a select. Default clauses have no values.
type CaseClause struct {
	NodeBase
	Values  []Expr
	Default bool
	Body    []Stmt
}

// SelectStmt is select...endselect.
type SelectStmt struct {
	StmtBase
	Subject Expr
	Cases   []*CaseClause
}

// LabelStmt declares a jump target.
type LabelStmt struct {
	StmtBase
	Name string
}

// GotoStmt jumps to a label.
type GotoStmt struct {
	StmtBase
	Label  string
	Target *LabelStmt
}

// GosubStmt calls a label as a subroutine.
type GosubStmt struct {
	StmtBase
	Label  string
	Target *LabelStmt
}

// ReturnStmt returns from a gosub.
type ReturnStmt struct {
	StmtBase
}

// EndStmt stops the program.
type EndStmt struct {
	StmtBase
}

// ExitStmt leaves the innermost loop.
type ExitStmt struct {
	StmtBase
}

// Param is a function parameter.
type Param struct {
	Name     *Ident
	TypeName string
}

// FuncDecl is function...endfunction.
type FuncDecl struct {
	StmtBase
	Name   string
	Params []*Param
	Body   []Stmt
	Result Expr // endfunction expression, may be nil
	Scope  *Scope
	Return *Type // set by the checker
	Index  int   // position in the program's function table

	state     int  // checker progress: 0 unchecked, 1 in progress, 2 done
	recursive bool // called while its return type was being inferred
}

// ExitFunctionStmt returns early from a function.
type ExitFunctionStmt struct {
	StmtBase
	Value Expr
}

// FieldDecl is one member line of a type declaration.
type FieldDecl struct {
	NodeBase
	Name     string
	TypeName string
}

// TypeDecl is type...endtype.
type TypeDecl struct {
	StmtBase
	Name   string
	Fields []*FieldDecl
	Def    *StructType
}

// CommandStmt is a host command used as a statement.
type CommandStmt struct {
	StmtBase
	Call *CommandExpr
}

// CallStmt is a script function call used as a statement.
type CallStmt struct {
	StmtBase
	Call *CallExpr
}

// BadStmt stands in for a statement that failed to parse.
type BadStmt struct {
	StmtBase
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// ProgramNode is the root of a parsed program.
type ProgramNode struct {
	NodeBase
	Statements []Stmt // main program, in order
	Functions  []*FuncDecl
	Types      []*TypeDecl
	Labels     map[string]*LabelStmt // main program labels
	Tokens     []Token
	Root       *Scope // set by the checker
	Checked    bool
}

// AllDiagnostics collects the program's own diagnostics and those attached
// to every node, sorted by position.
func (p *ProgramNode) AllDiagnostics() []Diagnostic {
	diags := append([]Diagnostic(nil), p.Diags...)
	Walk(p, func(n Node) bool {
		if n != Node(p) {
			diags = append(diags, n.Diagnostics()...)
		}
		return true
	}, nil)
	SortDiagnostics(diags)
	return diags
}
