package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline // \n or \r\n, a statement terminator
	TokenColon   // :, a statement terminator
	TokenComment // rem ..., ` ..., // ..., remstart ... remend
	TokenLabel   // name: alone on its line

	// Literals
	TokenInteger // 42, 0x1F, 0o17, 0b1010
	TokenFloat   // 1.5, .5, 2e10
	TokenString  // "hello"

	// Names
	TokenIdentifier // foo, name$, speed#
	TokenKeyword    // if, while, and, mod, ...

	// Operators and delimiters
	TokenOperator // + - * / ^ = <> < > <= >= & | ~ << >> @
	TokenLParen
	TokenRParen
	TokenComma
	TokenPeriod
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenColon:      ":",
	TokenComment:    "COMMENT",
	TokenLabel:      "LABEL",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenKeyword:    "KEYWORD",
	TokenOperator:   "OPERATOR",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenComma:      ",",
	TokenPeriod:     ".",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in source. Line and Char are 0-based; Char counts
// runes.
type Position struct {
	Offset int
	Line   int
	Char   int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Char+1)
}

// Before reports whether p comes before q.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Char < q.Char
}

// Token represents a lexical token. Tokens are immutable once produced.
type Token struct {
	Type  TokenType
	Raw   string // exact source text
	Lower string // case-folded text
	Pos   Position
	Lead  string // spaces and tabs before the token; on EOF, the trailing run
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	}
	if len(t.Raw) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Raw[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Raw)
}

// End returns the position just after the token.
func (t Token) End() Position {
	p := t.Pos
	for _, r := range t.Raw {
		p.Offset += len(string(r))
		if r == '\n' {
			p.Line++
			p.Char = 0
		} else {
			p.Char++
		}
	}
	return p
}

// Is reports whether t is the keyword or operator s (case-insensitive).
func (t Token) Is(s string) bool {
	return (t.Type == TokenKeyword || t.Type == TokenOperator) && t.Lower == s
}

// IsTerminator reports whether t ends a statement.
func (t Token) IsTerminator() bool {
	return t.Type == TokenNewline || t.Type == TokenColon || t.Type == TokenEOF
}

// keywords are reserved words, matched case-insensitively.
var keywords = map[string]bool{
	"and": true, "or": true, "xor": true, "not": true, "mod": true,
	"if": true, "then": true, "else": true, "endif": true,
	"while": true, "endwhile": true, "do": true, "loop": true,
	"repeat": true, "until": true,
	"for": true, "to": true, "step": true, "next": true,
	"select": true, "case": true, "default": true, "endcase": true, "endselect": true,
	"goto": true, "gosub": true, "return": true,
	"function": true, "endfunction": true, "exitfunction": true,
	"type": true, "endtype": true, "as": true,
	"local": true, "global": true, "dim": true, "redim": true,
	"end": true, "exit": true,
}

// IsKeyword reports whether the case-folded word is reserved.
func IsKeyword(word string) bool {
	return keywords[word]
}

// Keywords returns the reserved words, sorted.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for kw := range keywords {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// closers end a block; a block stops at any of them.
var closers = map[string]bool{
	"endif": true, "else": true, "endwhile": true, "loop": true, "until": true,
	"next": true, "case": true, "endcase": true, "endselect": true,
	"endfunction": true, "endtype": true,
}
