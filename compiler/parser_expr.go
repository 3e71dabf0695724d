package compiler

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Expressions: precedence climbing
// ---------------------------------------------------------------------------

// Binding powers, loosest first.
const (
	precNone = iota
	precOr   // or xor
	precAnd
	precCompare // = <> < > <= >=
	precBitOr   // |
	precBitXor  // ~
	precBitAnd  // &
	precShift   // << >>
	precAdd     // + -
	precMul     // * / mod
	precPow     // ^
)

func binaryPrec(t Token) int {
	if t.Type != TokenOperator && t.Type != TokenKeyword {
		return precNone
	}
	switch t.Lower {
	case "or", "xor":
		return precOr
	case "and":
		return precAnd
	case "=", "<>", "<", ">", "<=", ">=":
		return precCompare
	case "|":
		return precBitOr
	case "~":
		return precBitXor
	case "&":
		return precBitAnd
	case "<<", ">>":
		return precShift
	case "+", "-":
		return precAdd
	case "*", "/", "mod":
		return precMul
	case "^":
		return precPow
	}
	return precNone
}

func (p *Parser) parseExpr() Expr {
	return p.parseBinary(precOr)
}

func (p *Parser) parseBinary(min int) Expr {
	first := p.cur
	left := p.parseUnary()
	for {
		prec := binaryPrec(p.cur)
		if prec == precNone || prec < min {
			return left
		}
		op := p.cur.Lower
		p.next()
		var right Expr
		if prec == precPow {
			right = p.parseBinary(prec)
		} else {
			right = p.parseBinary(prec + 1)
		}
		b := &BinaryExpr{Op: op, X: left, Y: right}
		p.finish(&b.NodeBase, first)
		left = b
	}
}

func (p *Parser) parseUnary() Expr {
	first := p.cur
	switch {
	case first.Is("not"):
		p.next()
		u := &UnaryExpr{Op: "not", X: p.parseBinary(precCompare)}
		p.finish(&u.NodeBase, first)
		return u
	case first.Is("-"), first.Is("~"):
		p.next()
		x := p.parseBinary(precPow)
		if lit, ok := x.(*IntLit); ok && first.Lower == "-" {
			lit.Value = -lit.Value
			p.finish(&lit.NodeBase, first)
			return lit
		}
		if lit, ok := x.(*FloatLit); ok && first.Lower == "-" {
			lit.Value = -lit.Value
			p.finish(&lit.NodeBase, first)
			return lit
		}
		u := &UnaryExpr{Op: first.Lower, X: x}
		p.finish(&u.NodeBase, first)
		return u
	case first.Is("+"):
		p.next()
		return p.parseUnary()
	case first.Is("@"):
		p.next()
		a := &AddrOfExpr{X: p.parseVariable()}
		p.finish(&a.NodeBase, first)
		return a
	case first.Is("*"):
		p.next()
		d := &DerefExpr{X: p.parseUnary()}
		p.finish(&d.NodeBase, first)
		return d
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur
	switch tok.Type {
	case TokenInteger:
		p.next()
		lit := &IntLit{}
		v, err := parseIntLit(tok.Raw)
		if err != nil {
			p.fail(&lit.NodeBase, tok, "invalid integer literal %s", tok.Raw)
		}
		lit.Value = v
		p.finish(&lit.NodeBase, tok)
		return lit
	case TokenFloat:
		p.next()
		lit := &FloatLit{}
		v, err := strconv.ParseFloat(tok.Raw, 64)
		if err != nil {
			p.fail(&lit.NodeBase, tok, "invalid float literal %s", tok.Raw)
		}
		lit.Value = v
		p.finish(&lit.NodeBase, tok)
		return lit
	case TokenString:
		p.next()
		lit := &StringLit{Value: unquote(tok.Raw)}
		p.finish(&lit.NodeBase, tok)
		return lit
	case TokenLParen:
		p.next()
		x := p.parseExpr()
		if p.cur.Type == TokenRParen {
			p.next()
		} else {
			p.fail(x.base(), p.cur, "expected \")\", found %s", describe(p.cur))
		}
		return x
	case TokenIdentifier:
		return p.parseName()
	}
	bad := &BadExpr{}
	if !tok.IsTerminator() && tok.Type != TokenRParen && tok.Type != TokenComma && tok.Type != TokenError &&
		!(tok.Type == TokenKeyword && closers[tok.Lower]) {
		p.next()
	}
	p.finish(&bad.NodeBase, tok)
	if tok.Type != TokenError {
		p.fail(&bad.NodeBase, tok, "expected expression, found %s", describe(tok))
	} else if p.opts.Strict {
		p.halted = true
	}
	return bad
}

// parseName resolves a name in expression position: a function call, a
// command, or a variable.
func (p *Parser) parseName() Expr {
	name := p.cur.Lower
	if p.functions[name] && p.peek(1).Type == TokenLParen {
		return p.parseCall(false)
	}
	if _, known := p.lookupHint(name); !known {
		if cmd, n := p.matchCommand(); n > 0 {
			return p.parseCommand(cmd, n, false)
		}
	}
	return p.parseVariable()
}

// parseVariable parses name, name(i, ...) and trailing .field selectors.
func (p *Parser) parseVariable() Expr {
	first := p.cur
	if first.Type != TokenIdentifier {
		bad := &BadExpr{}
		p.finish(&bad.NodeBase, first)
		p.fail(&bad.NodeBase, first, "expected a variable, found %s", describe(first))
		return bad
	}
	p.next()
	var x Expr = p.identFrom(first)
	if p.cur.Type == TokenLParen {
		ix := &IndexExpr{Array: x.(*Ident)}
		ix.Indices = p.parseArgList(&ix.NodeBase)
		p.finish(&ix.NodeBase, first)
		x = ix
	}
	for p.cur.Type == TokenPeriod {
		p.next()
		f := &FieldExpr{X: x}
		if tok, ok := p.expectType(&f.NodeBase, TokenIdentifier); ok {
			f.Name = tok.Lower
		}
		p.finish(&f.NodeBase, first)
		x = f
	}
	return x
}

// parseArgList parses a parenthesized, comma-separated expression list.
func (p *Parser) parseArgList(owner *NodeBase) []Expr {
	p.next() // (
	var args []Expr
	if p.cur.Type == TokenRParen {
		p.next()
		return args
	}
	for {
		args = append(args, p.parseExpr())
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	if p.cur.Type == TokenRParen {
		p.next()
	} else {
		p.fail(owner, p.cur, "expected \")\", found %s", describe(p.cur))
	}
	return args
}

// parseBareArgs parses the unparenthesized arguments of a statement-form
// call, up to the end of the statement.
func (p *Parser) parseBareArgs() []Expr {
	if p.atTerminator() || p.cur.Is("else") {
		return nil
	}
	var args []Expr
	for {
		args = append(args, p.parseExpr())
		if p.cur.Type != TokenComma {
			return args
		}
		p.next()
	}
}

// parenthesizedArgs reports whether the parenthesis at the current token
// closes right before the end of the statement, as in cmd(a, b).
func (p *Parser) parenthesizedArgs() bool {
	depth := 0
	for i := 0; ; i++ {
		t := p.peek(i)
		switch {
		case t.IsTerminator():
			return false
		case t.Type == TokenLParen:
			depth++
		case t.Type == TokenRParen:
			depth--
			if depth == 0 {
				after := p.peek(i + 1)
				return after.IsTerminator() || after.Is("else")
			}
		}
	}
}

func (p *Parser) parseCall(stmt bool) *CallExpr {
	first := p.cur
	c := &CallExpr{Name: first.Lower}
	p.next()
	switch {
	case p.cur.Type == TokenLParen && (!stmt || p.parenthesizedArgs()):
		c.Args = p.parseArgList(&c.NodeBase)
	case stmt:
		c.Args = p.parseBareArgs()
	}
	p.finish(&c.NodeBase, first)
	return c
}

// parseCommand parses a command call whose name spans n tokens.
func (p *Parser) parseCommand(name string, n int, stmt bool) *CommandExpr {
	first := p.cur
	c := &CommandExpr{Name: name, Method: -1}
	for i := 0; i < n; i++ {
		p.next()
	}
	switch {
	case p.cur.Type == TokenLParen && (!stmt || p.parenthesizedArgs()):
		c.Args = p.parseArgList(&c.NodeBase)
	case stmt:
		c.Args = p.parseBareArgs()
	}
	p.finish(&c.NodeBase, first)
	p.resolveCommand(c)
	return c
}

func parseIntLit(raw string) (int64, error) {
	lower := strings.ToLower(raw)
	base := 0
	switch {
	case strings.HasPrefix(lower, "0x"):
		base = 16
	case strings.HasPrefix(lower, "0o"):
		base = 8
	case strings.HasPrefix(lower, "0b"):
		base = 2
	}
	if base != 0 {
		u, err := strconv.ParseUint(lower[2:], base, 64)
		return int64(u), err
	}
	return strconv.ParseInt(lower, 10, 64)
}

func unquote(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	return strings.ReplaceAll(raw, `""`, `"`)
}
