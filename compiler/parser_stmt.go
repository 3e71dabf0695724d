package compiler

import "strings"

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	tok := p.cur
	switch tok.Type {
	case TokenLabel:
		s := &LabelStmt{Name: strings.TrimSuffix(tok.Lower, ":")}
		p.next()
		p.finish(&s.NodeBase, tok)
		return s
	case TokenKeyword:
		return p.parseKeywordStatement()
	case TokenIdentifier:
		return p.parseIdentStatement()
	case TokenOperator:
		if tok.Is("*") {
			return p.parseAssign()
		}
	case TokenError:
		s := &BadStmt{}
		p.skipToTerminator()
		p.finish(&s.NodeBase, tok)
		if p.opts.Strict {
			p.halted = true
		}
		return s
	}
	return p.badStatement("unexpected %s at start of statement", describe(tok))
}

// badStatement reports an error at the current token and skips the rest
// of the statement.
func (p *Parser) badStatement(format string, args ...any) Stmt {
	s := &BadStmt{}
	first := p.cur
	p.fail(&s.NodeBase, first, format, args...)
	p.skipToTerminator()
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseKeywordStatement() Stmt {
	switch p.cur.Lower {
	case "if":
		return p.parseIf()
	case "while":
		return p.parseWhile()
	case "do":
		return p.parseDo()
	case "repeat":
		return p.parseRepeat()
	case "for":
		return p.parseFor()
	case "select":
		return p.parseSelect()
	case "goto", "gosub":
		return p.parseJump()
	case "return":
		s := &ReturnStmt{}
		first := p.cur
		p.next()
		p.finish(&s.NodeBase, first)
		return s
	case "end":
		s := &EndStmt{}
		first := p.cur
		p.next()
		p.finish(&s.NodeBase, first)
		return s
	case "exit":
		s := &ExitStmt{}
		first := p.cur
		p.next()
		p.finish(&s.NodeBase, first)
		return s
	case "exitfunction":
		s := &ExitFunctionStmt{}
		first := p.cur
		p.next()
		if !p.atTerminator() && !p.cur.Is("else") {
			s.Value = p.parseExpr()
		}
		p.finish(&s.NodeBase, first)
		return s
	case "local", "global":
		return p.parseStorageDecl()
	case "dim", "redim":
		return p.parseDim("")
	case "function":
		f := p.parseFunction()
		p.fail(&f.NodeBase, f.First, "function %s must be declared at the top level", f.Name)
		return f
	case "type":
		t := p.parseTypeDecl()
		p.fail(&t.NodeBase, t.First, "type %s must be declared at the top level", t.Name)
		return t
	}
	return p.badStatement("unexpected %s at start of statement", describe(p.cur))
}

// parseIdentStatement handles statements that begin with a name: a
// declaration, an assignment, a command or a function call.
func (p *Parser) parseIdentStatement() Stmt {
	if p.peek(1).Is("as") {
		return p.parseBareDecl()
	}
	if p.isAssignment() {
		return p.parseAssign()
	}
	first := p.cur
	if p.functions[first.Lower] {
		s := &CallStmt{Call: p.parseCall(true)}
		p.finish(&s.NodeBase, first)
		return s
	}
	if name, n := p.matchCommand(); n > 0 {
		call := p.parseCommand(name, n, true)
		s := &CommandStmt{Call: call}
		p.finish(&s.NodeBase, first)
		return s
	}
	msg := "unknown command or statement " + first.Raw
	if hint := suggest(first.Lower, p.cmds.Names()); hint != "" {
		msg += " (did you mean " + hint + "?)"
	}
	return p.badStatement("%s", msg)
}

// isAssignment looks ahead for name[(...)][.field...] followed by "=".
func (p *Parser) isAssignment() bool {
	i := 1
	name := p.cur.Lower
	if _, known := p.lookupHint(name); !known && p.peek(1).Type == TokenLParen {
		if _, n := p.matchCommand(); n > 0 {
			return false
		}
		if p.functions[name] {
			return false
		}
	}
	for {
		t := p.peek(i)
		switch t.Type {
		case TokenLParen:
			depth := 0
			for {
				t = p.peek(i)
				if t.IsTerminator() {
					return false
				}
				if t.Type == TokenLParen {
					depth++
				} else if t.Type == TokenRParen {
					depth--
					if depth == 0 {
						break
					}
				}
				i++
			}
			i++
		case TokenPeriod:
			if p.peek(i+1).Type != TokenIdentifier {
				return false
			}
			i += 2
		default:
			return t.Is("=")
		}
	}
}

func (p *Parser) parseAssign() Stmt {
	s := &AssignStmt{}
	first := p.cur
	if p.cur.Is("*") {
		p.next()
		d := &DerefExpr{X: p.parseUnary()}
		p.finish(&d.NodeBase, first)
		s.Target = d
	} else {
		s.Target = p.parseVariable()
		if id, ok := s.Target.(*Ident); ok {
			if _, known := p.lookupHint(id.Name); !known {
				p.declare(id.Name, SigilType(id.Name), false)
			}
		}
	}
	if p.expect(&s.NodeBase, "=") {
		s.Value = p.parseExpr()
	} else {
		p.skipToTerminator()
	}
	p.finish(&s.NodeBase, first)
	return s
}

// parseBareDecl parses "name as type [= value]".
func (p *Parser) parseBareDecl() Stmt {
	s := &DeclStmt{}
	first := p.cur
	s.Name = p.identFrom(p.cur)
	p.next()
	p.next() // as
	s.TypeName = p.parseTypeName(&s.NodeBase)
	p.declInit(s, first)
	return s
}

func (p *Parser) parseStorageDecl() Stmt {
	first := p.cur
	storage := p.cur.Lower
	p.next()
	if p.cur.Is("dim") {
		return p.parseDim(storage)
	}
	s := &DeclStmt{Storage: storage}
	tok, ok := p.expectType(&s.NodeBase, TokenIdentifier)
	s.Name = p.identFrom(tok)
	if !ok {
		s.Name.Name = ""
		p.skipToTerminator()
		p.finish(&s.NodeBase, first)
		return s
	}
	if p.cur.Is("as") {
		p.next()
		s.TypeName = p.parseTypeName(&s.NodeBase)
	}
	p.declInit(s, first)
	return s
}

func (p *Parser) declInit(s *DeclStmt, first Token) {
	if p.cur.Is("=") {
		p.next()
		s.Init = p.parseExpr()
	}
	p.declare(s.Name.Name, p.typeFromName(s.TypeName, s.Name.Name), s.Storage == "global")
	p.finish(&s.NodeBase, first)
}

// parseDim parses dim/redim name(bounds) [as type].
func (p *Parser) parseDim(storage string) Stmt {
	s := &DimStmt{Storage: storage}
	first := p.cur
	if storage != "" {
		first = p.prev
	}
	s.Redim = p.cur.Is("redim")
	p.next()
	tok, ok := p.expectType(&s.NodeBase, TokenIdentifier)
	s.Name = p.identFrom(tok)
	if !ok {
		s.Name.Name = ""
		p.skipToTerminator()
		p.finish(&s.NodeBase, first)
		return s
	}
	if p.cur.Type != TokenLParen {
		p.fail(&s.NodeBase, p.cur, "expected \"(\" and array bounds after %s", tok.Raw)
		p.skipToTerminator()
		p.finish(&s.NodeBase, first)
		return s
	}
	s.Dims = p.parseArgList(&s.NodeBase)
	if p.cur.Is("as") {
		p.next()
		s.TypeName = p.parseTypeName(&s.NodeBase)
	}
	if !s.Redim {
		if elem := p.typeFromName(s.TypeName, s.Name.Name); elem != nil && len(s.Dims) > 0 {
			global := storage == "global" || (p.locals == nil && storage == "")
			p.declare(s.Name.Name, ArrayOf(elem, len(s.Dims)), global)
		}
	}
	p.finish(&s.NodeBase, first)
	return s
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (p *Parser) parseIf() Stmt {
	s := &IfStmt{}
	first := p.cur
	p.next()
	s.Cond = p.parseExpr()
	hasThen := false
	if p.cur.Is("then") {
		p.next()
		hasThen = true
	}
	switch {
	case p.atTerminator():
		p.parseBlockIf(s, first)
	case hasThen:
		s.Then = p.parseInline()
		if p.cur.Is("else") {
			p.next()
			s.Else = p.parseInline()
		}
	default:
		p.fail(&s.NodeBase, p.cur, "expected \"then\" or end of line after condition, found %s", describe(p.cur))
		p.skipToTerminator()
	}
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseBlockIf(s *IfStmt, first Token) {
	s.Then = p.parseBlock()
	if p.cur.Is("else") {
		p.next()
		s.Else = p.parseBlock()
	}
	if p.cur.Is("endif") {
		p.next()
		return
	}
	if !p.halted {
		s.First = first
		p.fail(&s.NodeBase, first, "if without endif")
	}
}

// parseInline parses the colon-separated statements of a single-line if
// branch, stopping at end of line or "else".
func (p *Parser) parseInline() []Stmt {
	var list []Stmt
	for !p.halted {
		s := p.parseStatement()
		list = append(list, s)
		if p.cur.Is("else") || p.cur.Type == TokenNewline || p.cur.Type == TokenEOF {
			break
		}
		if p.cur.Type != TokenColon {
			p.fail(s.base(), p.cur, "unexpected %s, expected end of statement", describe(p.cur))
			p.skipToTerminator()
			continue
		}
		p.next()
		if p.cur.Type == TokenNewline || p.cur.Type == TokenEOF || p.cur.Is("else") {
			break
		}
	}
	return list
}

func (p *Parser) parseWhile() Stmt {
	s := &WhileStmt{}
	first := p.cur
	p.next()
	s.First = first
	s.Cond = p.parseExpr()
	s.Body = p.parseBlock()
	p.closeBlock(&s.NodeBase, "endwhile", "while")
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseDo() Stmt {
	s := &DoStmt{}
	first := p.cur
	p.next()
	s.First = first
	s.Body = p.parseBlock()
	p.closeBlock(&s.NodeBase, "loop", "do")
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseRepeat() Stmt {
	s := &RepeatStmt{}
	first := p.cur
	p.next()
	s.First = first
	s.Body = p.parseBlock()
	if p.closeBlock(&s.NodeBase, "until", "repeat") {
		s.Cond = p.parseExpr()
	}
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseFor() Stmt {
	s := &ForStmt{}
	first := p.cur
	p.next()
	s.First = first
	tok, ok := p.expectType(&s.NodeBase, TokenIdentifier)
	s.Var = p.identFrom(tok)
	if ok {
		if _, known := p.lookupHint(s.Var.Name); !known {
			p.declare(s.Var.Name, SigilType(s.Var.Name), false)
		}
	}
	if !ok {
		s.Var.Name = ""
		p.skipToTerminator()
	} else if p.expect(&s.NodeBase, "=") {
		s.From = p.parseExpr()
		if p.expect(&s.NodeBase, "to") {
			s.To = p.parseExpr()
			if p.cur.Is("step") {
				p.next()
				s.Step = p.parseExpr()
			}
		}
	}
	if s.From == nil || s.To == nil {
		p.skipToTerminator()
	}
	s.Body = p.parseBlock()
	if p.closeBlock(&s.NodeBase, "next", "for") && p.cur.Type == TokenIdentifier {
		if p.cur.Lower != s.Var.Name {
			p.fail(&s.NodeBase, p.cur, "next %s does not match for %s", p.cur.Raw, s.Var.Name)
		}
		p.next()
	}
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseSelect() Stmt {
	s := &SelectStmt{}
	first := p.cur
	p.next()
	s.First = first
	s.Subject = p.parseExpr()
	for !p.halted {
		p.skipTerminators()
		if !p.cur.Is("case") {
			break
		}
		c := &CaseClause{}
		cfirst := p.cur
		p.next()
		if p.cur.Is("default") {
			p.next()
			c.Default = true
		} else {
			c.Values = append(c.Values, p.parseExpr())
			for p.cur.Type == TokenComma {
				p.next()
				c.Values = append(c.Values, p.parseExpr())
			}
		}
		c.Body = p.parseBlock()
		if !p.cur.Is("endcase") {
			p.finish(&c.NodeBase, cfirst)
			p.fail(&c.NodeBase, cfirst, "case without endcase")
			s.Cases = append(s.Cases, c)
			break
		}
		p.next()
		p.finish(&c.NodeBase, cfirst)
		s.Cases = append(s.Cases, c)
	}
	p.closeBlock(&s.NodeBase, "endselect", "select")
	p.finish(&s.NodeBase, first)
	return s
}

func (p *Parser) parseJump() Stmt {
	first := p.cur
	p.next()
	var label string
	var base NodeBase
	if p.cur.Type == TokenIdentifier {
		label = p.cur.Lower
		p.next()
	} else {
		p.fail(&base, p.cur, "expected a label after %s, found %s", first.Lower, describe(p.cur))
	}
	if first.Lower == "goto" {
		s := &GotoStmt{Label: label}
		s.Diags = base.Diags
		p.finish(&s.NodeBase, first)
		return s
	}
	s := &GosubStmt{Label: label}
	s.Diags = base.Diags
	p.finish(&s.NodeBase, first)
	return s
}
