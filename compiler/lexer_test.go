package compiler

import (
	"strings"
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) , . : + - * / ^ = <> < > <= >= << >> & | ~ @`
	expected := []struct {
		typ TokenType
		raw string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenComma, ","},
		{TokenPeriod, "."},
		{TokenColon, ":"},
		{TokenOperator, "+"},
		{TokenOperator, "-"},
		{TokenOperator, "*"},
		{TokenOperator, "/"},
		{TokenOperator, "^"},
		{TokenOperator, "="},
		{TokenOperator, "<>"},
		{TokenOperator, "<"},
		{TokenOperator, ">"},
		{TokenOperator, "<="},
		{TokenOperator, ">="},
		{TokenOperator, "<<"},
		{TokenOperator, ">>"},
		{TokenOperator, "&"},
		{TokenOperator, "|"},
		{TokenOperator, "~"},
		{TokenOperator, "@"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Raw != exp.raw {
			t.Errorf("token[%d] raw = %q, want %q", i, tok.Raw, exp.raw)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenInteger},
		{"0", TokenInteger},
		{"0x1F", TokenInteger},
		{"0XfF", TokenInteger},
		{"0o17", TokenInteger},
		{"0b1010", TokenInteger},
		{"1.5", TokenFloat},
		{".5", TokenFloat},
		{"2e10", TokenFloat},
		{"3.25E-2", TokenFloat},
		{"0xZZ", TokenError},
		{"0x", TokenError},
		{"0b102", TokenError},
		{"12abc", TokenError},
		{"1e", TokenError},
		{"99999999999999999999", TokenError},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Raw != tc.input {
			t.Errorf("Lexer(%q): raw = %q, want the whole literal", tc.input, tok.Raw)
		}
		if next := l.NextToken(); next.Type != TokenEOF {
			t.Errorf("Lexer(%q): trailing token %v", tc.input, next)
		}
	}
}

func TestLexerMalformedHexIsOneDiagnostic(t *testing.T) {
	tokens, diags := Tokenize("x = 0xZZ")
	if len(diags) != 1 {
		t.Fatalf("Tokenize: %d diagnostics, want 1: %v", len(diags), diags)
	}
	d := diags[0]
	if d.Kind != DiagLexical {
		t.Errorf("diagnostic kind = %v, want lexical", d.Kind)
	}
	if d.Start.Char != 4 || d.End.Char != 8 {
		t.Errorf("diagnostic span = %v..%v, want 1:5..1:9", d.Start, d.End)
	}
	if d.Excerpt != "0xZZ" {
		t.Errorf("excerpt = %q, want %q", d.Excerpt, "0xZZ")
	}
	if tokens[2].Type != TokenError {
		t.Errorf("tokens[2] = %v, want an error token", tokens[2])
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		raw   string
	}{
		{`"hello"`, TokenString, `"hello"`},
		{`""`, TokenString, `""`},
		{`"say ""hi"""`, TokenString, `"say ""hi"""`},
		{`"open`, TokenError, `"open`},
		{"\"line\nbreak\"", TokenError, `"line`},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ || tok.Raw != tc.raw {
			t.Errorf("Lexer(%q) = %v %q, want %v %q", tc.input, tok.Type, tok.Raw, tc.typ, tc.raw)
		}
	}
}

func TestLexerWordsAndKeywords(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lower string
	}{
		{"print", TokenIdentifier, "print"},
		{"PRINT", TokenIdentifier, "print"},
		{"name$", TokenIdentifier, "name$"},
		{"Speed#", TokenIdentifier, "speed#"},
		{"EndIf", TokenKeyword, "endif"},
		{"mod", TokenKeyword, "mod"},
		{"while", TokenKeyword, "while"},
		{"_tmp1", TokenIdentifier, "_tmp1"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Lower != tc.lower {
			t.Errorf("Lexer(%q): lower = %q, want %q", tc.input, tok.Lower, tc.lower)
		}
	}
}

func TestLexerComments(t *testing.T) {
	tests := []struct {
		input string
		types []TokenType
	}{
		{"rem anything at all", []TokenType{TokenComment, TokenEOF}},
		{"x = 1 ` trailing", []TokenType{TokenIdentifier, TokenOperator, TokenInteger, TokenComment, TokenEOF}},
		{"// slash comment\nx", []TokenType{TokenComment, TokenNewline, TokenIdentifier, TokenEOF}},
		{"remstart\nignored\nremend\nx", []TokenType{TokenComment, TokenNewline, TokenIdentifier, TokenEOF}},
		{"remark = 1", []TokenType{TokenIdentifier, TokenOperator, TokenInteger, TokenEOF}},
	}

	for _, tc := range tests {
		tokens, diags := Tokenize(tc.input)
		if len(diags) != 0 {
			t.Errorf("Tokenize(%q): unexpected diagnostics %v", tc.input, diags)
		}
		if len(tokens) != len(tc.types) {
			t.Errorf("Tokenize(%q) = %v, want %d tokens", tc.input, tokens, len(tc.types))
			continue
		}
		for i, typ := range tc.types {
			if tokens[i].Type != typ {
				t.Errorf("Tokenize(%q)[%d] = %v, want %v", tc.input, i, tokens[i].Type, typ)
			}
		}
	}
}

func TestLexerLabels(t *testing.T) {
	tests := []struct {
		input string
		label bool
	}{
		{"start:", true},
		{"start: ` comment", true},
		{"  loop_top:\n", true},
		{"x = 1 : y = 2", false},
		{"print: print", false},
	}

	for _, tc := range tests {
		tokens, _ := Tokenize(tc.input)
		got := tokens[0].Type == TokenLabel
		if got != tc.label {
			t.Errorf("Tokenize(%q)[0] = %v, label = %v, want %v", tc.input, tokens[0], got, tc.label)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	tokens, _ := Tokenize("a = 1\n  b$ = \"x\"")
	want := []Position{
		{Offset: 0, Line: 0, Char: 0},
		{Offset: 2, Line: 0, Char: 2},
		{Offset: 4, Line: 0, Char: 4},
		{Offset: 5, Line: 0, Char: 5},
		{Offset: 8, Line: 1, Char: 2},
		{Offset: 11, Line: 1, Char: 5},
		{Offset: 13, Line: 1, Char: 7},
	}
	for i, pos := range want {
		if tokens[i].Pos != pos {
			t.Errorf("tokens[%d] (%v) at %+v, want %+v", i, tokens[i], tokens[i].Pos, pos)
		}
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	tokens, diags := Tokenize("x = 1 ? 2")
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "'?'") {
		t.Fatalf("diagnostics = %v, want one about '?'", diags)
	}
	if tokens[3].Type != TokenError {
		t.Errorf("tokens[3] = %v, want an error token", tokens[3])
	}
	if tokens[4].Type != TokenInteger {
		t.Errorf("lexing did not resume after the bad character: %v", tokens[4])
	}
}

func TestTokenRoundTrip(t *testing.T) {
	sources := []string{
		"x = 1 : inc x",
		"dim scores(10) as integer\nscores(3) = 0x1F",
		"if a$ = \"yes\" then print \"ok\" else print \"no\"",
		"function add(a, b)\n\tc = a + b\nendfunction c",
		"rem header\nlabel:\ngosub label ` done",
		"type vec\n  x as float\n  y as float\nendtype",
		"\tx = 1\n",
		"x = 1   ",
		"if x\n\t\tprint x \t\nendif\t\r\n",
		"a$ = \"tab\there\" \t` note\n\n  \t",
	}
	for _, src := range sources {
		first, _ := Tokenize(src)
		text := Reconstruct(first)
		if text != src {
			t.Errorf("Reconstruct(Tokenize(%q)) = %q", src, text)
		}
		second, _ := Tokenize(text)
		if len(first) != len(second) {
			t.Errorf("round trip of %q: %d tokens, want %d", src, len(second), len(first))
			continue
		}
		for i := range first {
			if first[i].Type != second[i].Type || first[i].Raw != second[i].Raw {
				t.Errorf("round trip of %q: token %d = %v, want %v", src, i, second[i], first[i])
			}
		}
	}
}
