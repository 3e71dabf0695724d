package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes source text. It never fails: malformed input becomes an
// error token plus a lexical diagnostic.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (0-based)
	char    int  // current rune column (0-based)

	fold      cases.Caser
	lineStart bool // no token yet on the current line
	diags     []Diagnostic
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, fold: cases.Fold(), lineStart: true}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.char = 0
	} else if l.readPos > 0 {
		l.char++
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Char: l.char}
}

func (l *Lexer) token(typ TokenType, pos Position) Token {
	raw := l.input[pos.Offset:l.pos]
	lower := raw
	if typ == TokenIdentifier || typ == TokenKeyword || typ == TokenLabel || typ == TokenOperator {
		lower = l.fold.String(raw)
	}
	return Token{Type: typ, Raw: raw, Lower: lower, Pos: pos}
}

func (l *Lexer) errorToken(pos Position, msg string) Token {
	tok := l.token(TokenError, pos)
	l.diags = append(l.diags, Diagnostic{
		Kind:    DiagLexical,
		Message: msg,
		Start:   pos,
		End:     tok.End(),
		Excerpt: tok.Raw,
	})
	return tok
}

// Diagnostics returns the lexical diagnostics produced so far.
func (l *Lexer) Diagnostics() []Diagnostic {
	return l.diags
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	start := l.pos
	for l.ch == ' ' || l.ch == '\t' {
		l.readChar()
	}
	tok := l.next()
	tok.Lead = l.input[start:tok.Pos.Offset]
	return tok
}

func (l *Lexer) next() Token {
	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	atLineStart := l.lineStart
	l.lineStart = false

	ch := l.ch
	switch {
	case ch == '\n':
		l.readChar()
		l.lineStart = true
		return l.token(TokenNewline, pos)
	case ch == '\r' && l.peekChar() == '\n':
		l.readChar()
		l.readChar()
		l.lineStart = true
		return l.token(TokenNewline, pos)
	case ch == '`':
		l.skipToEOL()
		return l.token(TokenComment, pos)
	case ch == '/' && l.peekChar() == '/':
		l.skipToEOL()
		return l.token(TokenComment, pos)
	case ch == '"':
		return l.readString(pos)
	case isDigit(ch) || (ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(pos)
	case isLetter(ch):
		return l.readWord(pos, atLineStart)
	case ch == ':':
		l.readChar()
		return l.token(TokenColon, pos)
	case ch == '(':
		l.readChar()
		return l.token(TokenLParen, pos)
	case ch == ')':
		l.readChar()
		return l.token(TokenRParen, pos)
	case ch == ',':
		l.readChar()
		return l.token(TokenComma, pos)
	case ch == '.':
		l.readChar()
		return l.token(TokenPeriod, pos)
	case ch == '<':
		l.readChar()
		if l.ch == '>' || l.ch == '=' || l.ch == '<' {
			l.readChar()
		}
		return l.token(TokenOperator, pos)
	case ch == '>':
		l.readChar()
		if l.ch == '=' || l.ch == '>' {
			l.readChar()
		}
		return l.token(TokenOperator, pos)
	case strings.ContainsRune("+-*/^=&|~@", ch):
		l.readChar()
		return l.token(TokenOperator, pos)
	}

	l.readChar()
	return l.errorToken(pos, "unexpected character "+strconv.QuoteRune(ch))
}

func (l *Lexer) skipToEOL() {
	for !l.atEOF() && l.ch != '\n' && !(l.ch == '\r' && l.peekChar() == '\n') {
		l.readChar()
	}
}

// readString reads a quoted string. A doubled quote is an embedded quote.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	for {
		switch {
		case l.atEOF() || l.ch == '\n' || (l.ch == '\r' && l.peekChar() == '\n'):
			return l.errorToken(pos, "unterminated string")
		case l.ch == '"':
			l.readChar()
			if l.ch != '"' {
				return l.token(TokenString, pos)
			}
			l.readChar()
		default:
			l.readChar()
		}
	}
}

// readNumber reads an integer or float literal. Anything glued to the end
// of a number makes the whole run one malformed literal.
func (l *Lexer) readNumber(pos Position) Token {
	if l.ch == '0' && strings.ContainsRune("xXoObB", l.peekChar()) {
		l.readChar()
		prefix := unicode.ToLower(l.ch)
		l.readChar()
		start := l.pos
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		digits := l.input[start:l.pos]
		base := map[rune]int{'x': 16, 'o': 8, 'b': 2}[prefix]
		if digits == "" {
			return l.errorToken(pos, "malformed integer literal: missing digits")
		}
		if _, err := strconv.ParseUint(digits, base, 64); err != nil {
			return l.errorToken(pos, "malformed integer literal "+strconv.Quote(l.input[pos.Offset:l.pos]))
		}
		return l.token(TokenInteger, pos)
	}

	isFloat := false
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	malformed := false
	if l.ch == 'e' || l.ch == 'E' {
		isFloat = true
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			malformed = true
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '#' || l.ch == '$' {
		malformed = true
		l.readChar()
	}
	if malformed {
		return l.errorToken(pos, "malformed numeric literal "+strconv.Quote(l.input[pos.Offset:l.pos]))
	}
	if isFloat {
		return l.token(TokenFloat, pos)
	}
	if _, err := strconv.ParseInt(l.input[pos.Offset:l.pos], 10, 64); err != nil {
		return l.errorToken(pos, "integer literal out of range")
	}
	return l.token(TokenInteger, pos)
}

// readWord reads an identifier, keyword, comment introducer or label.
func (l *Lexer) readWord(pos Position, atLineStart bool) Token {
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '#' || l.ch == '$' {
		l.readChar()
		return l.token(TokenIdentifier, pos)
	}
	word := l.fold.String(l.input[pos.Offset:l.pos])
	switch word {
	case "rem":
		l.skipToEOL()
		return l.token(TokenComment, pos)
	case "remstart":
		return l.readBlockComment(pos)
	}
	if atLineStart && l.ch == ':' && !keywords[word] && l.onlyTriviaAfterColon() {
		l.readChar()
		return l.token(TokenLabel, pos)
	}
	if keywords[word] {
		return l.token(TokenKeyword, pos)
	}
	return l.token(TokenIdentifier, pos)
}

// onlyTriviaAfterColon reports whether the rest of the line after the
// current ':' is blank or a comment.
func (l *Lexer) onlyTriviaAfterColon() bool {
	rest := l.input[l.readPos:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.HasPrefix(rest, "`") || strings.HasPrefix(rest, "//") {
		return true
	}
	lower := strings.ToLower(rest)
	return lower == "rem" || strings.HasPrefix(lower, "rem ") || strings.HasPrefix(lower, "rem\t") ||
		strings.HasPrefix(lower, "remstart")
}

// readBlockComment reads from remstart through the matching remend.
func (l *Lexer) readBlockComment(pos Position) Token {
	for !l.atEOF() {
		if isLetter(l.ch) {
			start := l.pos
			for isLetter(l.ch) || isDigit(l.ch) {
				l.readChar()
			}
			if l.fold.String(l.input[start:l.pos]) == "remend" {
				return l.token(TokenComment, pos)
			}
			continue
		}
		l.readChar()
	}
	return l.errorToken(pos, "remstart without remend")
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns every token of input, ending with EOF, plus the lexical
// diagnostics. It is deterministic and safe to call concurrently.
func Tokenize(input string) ([]Token, []Diagnostic) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens, l.Diagnostics()
}

// Reconstruct rebuilds source text from tokens. Each token contributes its
// leading whitespace and raw text; tokens without leading whitespace are
// padded with spaces to their recorded column.
func Reconstruct(tokens []Token) string {
	var sb strings.Builder
	line, char := 0, 0
	for _, tok := range tokens {
		if tok.Lead != "" {
			sb.WriteString(tok.Lead)
		} else {
			for line < tok.Pos.Line {
				sb.WriteByte('\n')
				line++
				char = 0
			}
			for char < tok.Pos.Char {
				sb.WriteByte(' ')
				char++
			}
		}
		if tok.Type == TokenEOF {
			break
		}
		sb.WriteString(tok.Raw)
		end := tok.End()
		line, char = end.Line, end.Char
	}
	return sb.String()
}
