package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/basil/vm"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent over a token slice
// ---------------------------------------------------------------------------

// ParseOptions controls error handling.
type ParseOptions struct {
	// Strict stops at the first lexical or syntax error and returns the
	// statements parsed so far. Otherwise the parser recovers at the next
	// statement terminator and keeps going.
	Strict bool
}

// Parser builds a ProgramNode from tokens. Command calls are resolved
// against the command collection while parsing.
type Parser struct {
	tokens []Token // significant tokens, comments removed
	pos    int
	cur    Token
	prev   Token
	cmds   *vm.CommandCollection
	opts   ParseOptions
	prog   *ProgramNode
	halted bool

	functions map[string]bool
	fields    map[string]map[string]string // struct -> field -> type name
	structs   map[string]*Type             // placeholder struct types for hints

	globals    map[string]*Type // main program declarations
	globalDecl map[string]bool  // names declared global
	locals     map[string]*Type // current function declarations, nil in main
	function   *FuncDecl
}

// Parse tokenizes and parses src.
func Parse(src string, cmds *vm.CommandCollection, opts ParseOptions) *ProgramNode {
	tokens, lexDiags := Tokenize(src)
	return ParseTokens(tokens, lexDiags, cmds, opts)
}

// ParseTokens parses a token stream produced by Tokenize. Lexical
// diagnostics are carried on the returned program.
func ParseTokens(tokens []Token, lexDiags []Diagnostic, cmds *vm.CommandCollection, opts ParseOptions) *ProgramNode {
	if cmds == nil {
		cmds, _ = vm.NewCommandCollection()
	}
	p := &Parser{
		cmds:       cmds,
		opts:       opts,
		functions:  make(map[string]bool),
		fields:     make(map[string]map[string]string),
		structs:    make(map[string]*Type),
		globals:    make(map[string]*Type),
		globalDecl: make(map[string]bool),
	}
	for _, t := range tokens {
		if t.Type != TokenComment {
			p.tokens = append(p.tokens, t)
		}
	}
	if len(p.tokens) == 0 || p.tokens[len(p.tokens)-1].Type != TokenEOF {
		var end Position
		if len(tokens) > 0 {
			end = tokens[len(tokens)-1].End()
		}
		p.tokens = append(p.tokens, Token{Type: TokenEOF, Pos: end})
	}
	p.cur = p.tokens[0]
	p.prev = p.cur
	p.prog = &ProgramNode{
		Labels: make(map[string]*LabelStmt),
		Tokens: tokens,
	}
	p.prog.Diags = append(p.prog.Diags, lexDiags...)
	p.prescan()
	p.parseProgram()
	return p.prog
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) next() {
	p.prev = p.cur
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.cur = p.tokens[p.pos]
}

func (p *Parser) peek(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) atTerminator() bool {
	return p.cur.IsTerminator()
}

func (p *Parser) skipTerminators() {
	for p.cur.Type == TokenNewline || p.cur.Type == TokenColon {
		p.next()
	}
}

func (p *Parser) skipToTerminator() {
	for !p.atTerminator() {
		p.next()
	}
}

// finish sets a node's span from first to the last consumed token.
func (p *Parser) finish(n *NodeBase, first Token) {
	n.First = first
	n.Last = p.prev
	if n.Last.Pos.Offset < first.Pos.Offset {
		n.Last = first
	}
}

// fail attaches a syntax diagnostic at tok to n. In strict mode parsing
// stops.
func (p *Parser) fail(n *NodeBase, tok Token, format string, args ...any) {
	n.Diags = append(n.Diags, Diagnostic{
		Kind:    DiagSyntax,
		Message: fmt.Sprintf(format, args...),
		Start:   tok.Pos,
		End:     tok.End(),
		Excerpt: tok.Raw,
	})
	if p.opts.Strict {
		p.halted = true
	}
}

func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of file"
	case TokenNewline:
		return "end of line"
	}
	return fmt.Sprintf("%q", t.Raw)
}

// expect consumes the keyword or operator s, or reports it missing on n.
func (p *Parser) expect(n *NodeBase, s string) bool {
	if p.cur.Is(s) {
		p.next()
		return true
	}
	p.fail(n, p.cur, "expected %q, found %s", s, describe(p.cur))
	return false
}

// expectType consumes a token of type t, or reports it missing on n.
func (p *Parser) expectType(n *NodeBase, t TokenType) (Token, bool) {
	if p.cur.Type == t {
		tok := p.cur
		p.next()
		return tok, true
	}
	p.fail(n, p.cur, "expected %s, found %s", t, describe(p.cur))
	return p.cur, false
}

// ---------------------------------------------------------------------------
// Pre-scan: function names and struct fields used for call resolution
// ---------------------------------------------------------------------------

func (p *Parser) prescan() {
	lineStart := true
	for i := 0; i < len(p.tokens); i++ {
		t := p.tokens[i]
		if t.IsTerminator() {
			lineStart = true
			continue
		}
		if !lineStart {
			continue
		}
		lineStart = false
		switch {
		case t.Is("function") && i+1 < len(p.tokens) && p.tokens[i+1].Type == TokenIdentifier:
			p.functions[p.tokens[i+1].Lower] = true
		case t.Is("type") && i+1 < len(p.tokens) && p.tokens[i+1].Type == TokenIdentifier:
			name := p.tokens[i+1].Lower
			fields := make(map[string]string)
			p.fields[name] = fields
			for i += 2; i < len(p.tokens) && p.tokens[i].Type != TokenEOF; i++ {
				if p.tokens[i].Is("endtype") {
					break
				}
				if p.tokens[i].Type != TokenIdentifier || !(i == 0 || p.tokens[i-1].IsTerminator()) {
					continue
				}
				field := p.tokens[i].Lower
				typeName := ""
				if i+2 < len(p.tokens) && p.tokens[i+1].Is("as") {
					typeName = p.tokens[i+2].Lower
					if typeName == "double" && i+3 < len(p.tokens) && p.tokens[i+3].Lower == "integer" {
						typeName = "double integer"
					}
				}
				fields[field] = typeName
			}
			lineStart = false
		}
	}
}

// ---------------------------------------------------------------------------
// Type hints
// ---------------------------------------------------------------------------

// typeFromName resolves a declaration type name for hinting. Unknown names
// yield nil.
func (p *Parser) typeFromName(name, variable string) *Type {
	if name == "" {
		return SigilType(variable)
	}
	if t, ok := BuiltinType(name); ok {
		return t
	}
	if _, ok := p.fields[name]; ok {
		if t, ok := p.structs[name]; ok {
			return t
		}
		t := StructOf(&StructType{Name: name})
		p.structs[name] = t
		return t
	}
	return nil
}

func (p *Parser) declare(name string, t *Type, global bool) {
	switch {
	case global:
		p.globals[name] = t
		p.globalDecl[name] = true
	case p.locals != nil:
		p.locals[name] = t
	default:
		p.globals[name] = t
	}
}

// lookupHint returns the declared type of name in the current scope.
func (p *Parser) lookupHint(name string) (*Type, bool) {
	if p.locals != nil {
		if t, ok := p.locals[name]; ok {
			return t, true
		}
		if p.globalDecl[name] {
			return p.globals[name], true
		}
		return nil, false
	}
	t, ok := p.globals[name]
	return t, ok
}

// guessType computes an expression's type from what the parser knows. It
// returns nil when the type cannot be known until checking.
func (p *Parser) guessType(e Expr) *Type {
	switch e := e.(type) {
	case *IntLit:
		return intLitType(e.Value)
	case *FloatLit:
		return FloatType
	case *StringLit:
		return StringType
	case *Ident:
		if t, ok := p.lookupHint(e.Name); ok {
			return t
		}
		return SigilType(e.Name)
	case *IndexExpr:
		if t, ok := p.lookupHint(e.Array.Name); ok && t != nil && t.IsArray() {
			return t.Elem
		}
	case *FieldExpr:
		xt := p.guessType(e.X)
		if xt != nil && xt.IsStruct() {
			if fields, ok := p.fields[xt.Struct.Name]; ok {
				if typeName, ok := fields[e.Name]; ok {
					return p.typeFromName(typeName, e.Name)
				}
			}
		}
	case *CallExpr:
		// The return type is inferred by the checker; only a sigil fixes it.
		if strings.HasSuffix(e.Name, "#") || strings.HasSuffix(e.Name, "$") {
			return SigilType(e.Name)
		}
	case *CommandExpr:
		if e.Info != nil && e.Info.Return != vm.TypeVoid {
			return ScalarType(e.Info.Return)
		}
	case *UnaryExpr:
		if e.Op == "not" {
			return IntType
		}
		return p.guessType(e.X)
	case *BinaryExpr:
		switch e.Op {
		case "=", "<>", "<", ">", "<=", ">=", "and", "or", "xor":
			return IntType
		}
		x, y := p.guessType(e.X), p.guessType(e.Y)
		if x == nil || y == nil {
			return nil
		}
		if x.IsString() && y.IsString() && e.Op == "+" {
			return StringType
		}
		if w := vm.Widen(x.Code, y.Code); w != vm.TypeVoid && x.IsScalar() && y.IsScalar() {
			return ScalarType(w)
		}
	case *AddrOfExpr:
		return DWordType
	case *DerefExpr:
		return IntType
	}
	return nil
}

func intLitType(v int64) *Type {
	if v >= -1<<31 && v < 1<<31 {
		return IntType
	}
	return DIntType
}

// isLValue reports whether e names storage that can be written.
func isLValue(e Expr) bool {
	switch e.(type) {
	case *Ident, *IndexExpr, *FieldExpr, *DerefExpr:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Program structure
// ---------------------------------------------------------------------------

func (p *Parser) parseProgram() {
	prog := p.prog
	for !p.halted {
		p.skipTerminators()
		if p.cur.Type == TokenEOF {
			break
		}
		switch {
		case p.cur.Is("function"):
			prog.Functions = append(prog.Functions, p.parseFunction())
		case p.cur.Is("type"):
			prog.Types = append(prog.Types, p.parseTypeDecl())
		case p.cur.Type == TokenKeyword && closers[p.cur.Lower]:
			bad := &BadStmt{}
			first := p.cur
			p.next()
			p.finish(&bad.NodeBase, first)
			p.fail(&bad.NodeBase, first, "%q without a matching opening statement", first.Raw)
			prog.Statements = append(prog.Statements, bad)
		default:
			s := p.parseStatement()
			prog.Statements = append(prog.Statements, s)
			p.endStatement(s)
		}
	}
	if len(p.tokens) > 0 {
		prog.First = p.tokens[0]
		prog.Last = p.tokens[len(p.tokens)-1]
	}
}

// endStatement requires a terminator after a statement.
func (p *Parser) endStatement(s Stmt) {
	if p.halted || p.atTerminator() {
		return
	}
	if p.cur.Type == TokenError {
		// Already reported by the lexer.
		p.skipToTerminator()
		return
	}
	p.fail(s.base(), p.cur, "unexpected %s, expected end of statement", describe(p.cur))
	p.skipToTerminator()
}

// parseBlock parses statements until a closing keyword or end of file.
func (p *Parser) parseBlock() []Stmt {
	var list []Stmt
	for !p.halted {
		p.skipTerminators()
		if p.cur.Type == TokenEOF || (p.cur.Type == TokenKeyword && closers[p.cur.Lower]) {
			break
		}
		s := p.parseStatement()
		list = append(list, s)
		p.endStatement(s)
	}
	return list
}

// closeBlock consumes the keyword that ends a block opened by owner.
func (p *Parser) closeBlock(owner *NodeBase, closer, opener string) bool {
	if p.cur.Is(closer) {
		p.next()
		return true
	}
	p.fail(owner, owner.First, "%s without %s", opener, closer)
	return false
}

func (p *Parser) parseFunction() *FuncDecl {
	f := &FuncDecl{}
	first := p.cur
	p.next() // function
	if p.function != nil {
		p.fail(&f.NodeBase, first, "function declarations cannot be nested")
	}
	name, ok := p.expectType(&f.NodeBase, TokenIdentifier)
	if ok {
		f.Name = name.Lower
	}

	outerLocals, outerFn := p.locals, p.function
	p.locals = make(map[string]*Type)
	p.function = f
	defer func() { p.locals, p.function = outerLocals, outerFn }()

	if p.cur.Type == TokenLParen {
		p.next()
		for p.cur.Type != TokenRParen && !p.atTerminator() {
			tok, ok := p.expectType(&f.NodeBase, TokenIdentifier)
			if !ok {
				p.skipToTerminator()
				break
			}
			param := &Param{Name: p.identFrom(tok)}
			if p.cur.Is("as") {
				p.next()
				param.TypeName = p.parseTypeName(&f.NodeBase)
			}
			p.declare(param.Name.Name, p.typeFromName(param.TypeName, param.Name.Name), false)
			f.Params = append(f.Params, param)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
		if p.cur.Type == TokenRParen {
			p.next()
		} else {
			p.fail(&f.NodeBase, p.cur, "expected \")\" after parameters, found %s", describe(p.cur))
			p.skipToTerminator()
		}
	}

	f.Body = p.parseBlock()
	if p.cur.Is("endfunction") {
		p.next()
		if !p.atTerminator() {
			f.Result = p.parseExpr()
		}
	} else if !p.halted {
		p.fail(&f.NodeBase, first, "function %s without endfunction", f.Name)
	}
	p.finish(&f.NodeBase, first)
	return f
}

func (p *Parser) parseTypeDecl() *TypeDecl {
	t := &TypeDecl{}
	first := p.cur
	p.next() // type
	if name, ok := p.expectType(&t.NodeBase, TokenIdentifier); ok {
		t.Name = name.Lower
	}
	for !p.halted {
		p.skipTerminators()
		if p.cur.Is("endtype") {
			p.next()
			break
		}
		if p.cur.Type == TokenEOF || (p.cur.Type == TokenKeyword && closers[p.cur.Lower]) ||
			p.cur.Is("function") || p.cur.Is("type") {
			p.fail(&t.NodeBase, first, "type %s without endtype", t.Name)
			break
		}
		fd := &FieldDecl{}
		ffirst := p.cur
		if tok, ok := p.expectType(&fd.NodeBase, TokenIdentifier); ok {
			fd.Name = tok.Lower
			if p.cur.Is("as") {
				p.next()
				fd.TypeName = p.parseTypeName(&fd.NodeBase)
			}
		}
		p.finish(&fd.NodeBase, ffirst)
		if !p.atTerminator() {
			p.fail(&fd.NodeBase, p.cur, "unexpected %s in type declaration", describe(p.cur))
			p.skipToTerminator()
		}
		t.Fields = append(t.Fields, fd)
	}
	p.finish(&t.NodeBase, first)
	return t
}

// parseTypeName reads a type name after "as".
func (p *Parser) parseTypeName(n *NodeBase) string {
	if p.cur.Type != TokenIdentifier {
		p.fail(n, p.cur, "expected a type name, found %s", describe(p.cur))
		return ""
	}
	name := p.cur.Lower
	p.next()
	if name == "double" && p.cur.Type == TokenIdentifier && p.cur.Lower == "integer" {
		p.next()
		name = "double integer"
	}
	return name
}

func (p *Parser) identFrom(tok Token) *Ident {
	id := &Ident{Name: tok.Lower}
	id.First, id.Last = tok, tok
	return id
}

// ---------------------------------------------------------------------------
// Command lookup
// ---------------------------------------------------------------------------

// matchCommand finds the longest command name starting at the current
// token and returns it with its token count, or "", 0.
func (p *Parser) matchCommand() (string, int) {
	if p.cur.Type != TokenIdentifier {
		return "", 0
	}
	maxWords := p.cmds.MaxWords()
	for k := maxWords; k >= 1; k-- {
		words := make([]string, 0, k)
		for i := 0; i < k; i++ {
			t := p.peek(i)
			if t.Type != TokenIdentifier && t.Type != TokenKeyword {
				break
			}
			if i > 0 && t.Pos.Line != p.cur.Pos.Line {
				break
			}
			words = append(words, t.Lower)
		}
		if len(words) != k {
			continue
		}
		name := strings.Join(words, " ")
		if len(p.cmds.Lookup(name)) > 0 {
			return name, k
		}
	}
	return "", 0
}

// resolveCommand selects the overload for call from its argument shapes.
func (p *Parser) resolveCommand(call *CommandExpr) {
	types := make([]*Type, len(call.Args))
	lvalues := make([]bool, len(call.Args))
	for i, a := range call.Args {
		types[i] = p.guessType(a)
		lvalues[i] = isLValue(a)
	}
	info, err := ResolveOverload(call.Name, p.cmds.Lookup(call.Name), types, lvalues)
	if errors.Is(err, ErrAmbiguousCall) && slices.Contains(types, nil) {
		call.Method = -1
		call.deferred = true
		return
	}
	if err != nil {
		call.Method = -1
		call.Diags = append(call.Diags, Diagnostic{
			Kind:    DiagSemantic,
			Message: err.Error(),
			Start:   call.First.Pos,
			End:     call.Last.End(),
			Excerpt: call.First.Raw,
		})
		return
	}
	call.Info = info
	call.Method = info.MethodIndex
}
