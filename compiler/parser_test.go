package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

// sexpr renders an expression tree for comparison.
func sexpr(e Expr) string {
	switch e := e.(type) {
	case *IntLit:
		return strconv.FormatInt(e.Value, 10)
	case *FloatLit:
		return strconv.FormatFloat(e.Value, 'g', -1, 64)
	case *StringLit:
		return strconv.Quote(e.Value)
	case *Ident:
		return e.Name
	case *IndexExpr:
		return e.Array.Name + "(" + sexprList(e.Indices) + ")"
	case *FieldExpr:
		return sexpr(e.X) + "." + e.Name
	case *UnaryExpr:
		return "(" + e.Op + " " + sexpr(e.X) + ")"
	case *BinaryExpr:
		return "(" + e.Op + " " + sexpr(e.X) + " " + sexpr(e.Y) + ")"
	case *CommandExpr:
		return e.Name + "[" + sexprList(e.Args) + "]"
	case *CallExpr:
		return e.Name + "(" + sexprList(e.Args) + ")"
	case *AddrOfExpr:
		return "@" + sexpr(e.X)
	case *DerefExpr:
		return "*" + sexpr(e.X)
	case *BadExpr:
		return "<bad>"
	}
	return fmt.Sprintf("<%T>", e)
}

func sexprList(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = sexpr(e)
	}
	return strings.Join(parts, ", ")
}

func parse(t *testing.T, src string) *ProgramNode {
	t.Helper()
	return Parse(src, testCommands(t), ParseOptions{})
}

func syntaxDiags(prog *ProgramNode) []Diagnostic {
	var out []Diagnostic
	for _, d := range prog.AllDiagnostics() {
		if d.Kind != DiagSemantic {
			out = append(out, d)
		}
	}
	return out
}

func TestParseExpressionPrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "(+ 1 (* 2 3))"},
		{"(1 + 2) * 3", "(* (+ 1 2) 3)"},
		{"2 ^ 3 ^ 2", "(^ 2 (^ 3 2))"},
		{"-2 ^ 2", "(- (^ 2 2))"},
		{"-5", "-5"},
		{"a = 1 or b = 2 and c", "(or (= a 1) (and (= b 2) c))"},
		{"not a = b", "(not (= a b))"},
		{"not a and b", "(and (not a) b)"},
		{"1 << 2 + 3", "(<< 1 (+ 2 3))"},
		{"a & b | c ~ d", "(| (& a b) (~ c d))"},
		{"x mod 3 = 0", "(= (mod x 3) 0)"},
		{"10 - 4 - 3", "(- (- 10 4) 3)"},
		{`upper$(a$) + "!"`, `(+ upper$[a$] "!")`},
		{"pick(1, 2) * 2", "(* pick[1, 2] 2)"},
		{"p.pos.x + 1", "(+ p.pos.x 1)"},
		{"grid(1, 2)", "grid(1, 2)"},
		{"@x", "@x"},
		{"*p + 1", "(+ *p 1)"},
		{"~x", "(~ x)"},
	}

	for _, tc := range tests {
		prog := parse(t, "v = "+tc.src)
		if diags := syntaxDiags(prog); len(diags) > 0 {
			t.Errorf("Parse(%q): %v", tc.src, diags)
			continue
		}
		assign, ok := prog.Statements[0].(*AssignStmt)
		if !ok {
			t.Errorf("Parse(%q) = %T, want *AssignStmt", tc.src, prog.Statements[0])
			continue
		}
		if got := sexpr(assign.Value); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestParseStatementKinds(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x = 1", "*compiler.AssignStmt"},
		{"a(2) = 1", "*compiler.AssignStmt"},
		{"p.x = 1", "*compiler.AssignStmt"},
		{"*p = 1", "*compiler.AssignStmt"},
		{"local count as integer", "*compiler.DeclStmt"},
		{"global name$ = \"x\"", "*compiler.DeclStmt"},
		{"speed as float", "*compiler.DeclStmt"},
		{"dim grid(10, 10) as word", "*compiler.DimStmt"},
		{"global dim names$(5)", "*compiler.DimStmt"},
		{"if x then print 1", "*compiler.IfStmt"},
		{"if x\nprint 1\nendif", "*compiler.IfStmt"},
		{"while x < 3\ninc x\nendwhile", "*compiler.WhileStmt"},
		{"do\nexit\nloop", "*compiler.DoStmt"},
		{"repeat\ninc x\nuntil x > 3", "*compiler.RepeatStmt"},
		{"for i = 1 to 10 step 2\nnext i", "*compiler.ForStmt"},
		{"select x\ncase 1\nendcase\nendselect", "*compiler.SelectStmt"},
		{"top:", "*compiler.LabelStmt"},
		{"goto top", "*compiler.GotoStmt"},
		{"gosub top", "*compiler.GosubStmt"},
		{"return", "*compiler.ReturnStmt"},
		{"end", "*compiler.EndStmt"},
		{"print \"hi\", 2", "*compiler.CommandStmt"},
		{"read name n$", "*compiler.CommandStmt"},
	}

	for _, tc := range tests {
		prog := parse(t, tc.src)
		if diags := syntaxDiags(prog); len(diags) > 0 {
			t.Errorf("Parse(%q): %v", tc.src, diags)
			continue
		}
		if len(prog.Statements) == 0 {
			t.Errorf("Parse(%q): no statements", tc.src)
			continue
		}
		if got := fmt.Sprintf("%T", prog.Statements[0]); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestParseSingleLineIf(t *testing.T) {
	prog := parse(t, "if x = 1 then print 1 : print 2 else print 3\nprint 4")
	if diags := syntaxDiags(prog); len(diags) > 0 {
		t.Fatalf("Parse: %v", diags)
	}
	if len(prog.Statements) != 2 {
		t.Fatalf("Parse: %d statements, want 2", len(prog.Statements))
	}
	s := prog.Statements[0].(*IfStmt)
	if len(s.Then) != 2 || len(s.Else) != 1 {
		t.Errorf("if branches = %d/%d statements, want 2/1", len(s.Then), len(s.Else))
	}
}

func TestParseBlockIfElse(t *testing.T) {
	prog := parse(t, "if x\n  print 1\nelse\n  print 2\n  print 3\nendif")
	if diags := syntaxDiags(prog); len(diags) > 0 {
		t.Fatalf("Parse: %v", diags)
	}
	s := prog.Statements[0].(*IfStmt)
	if len(s.Then) != 1 || len(s.Else) != 2 {
		t.Errorf("if branches = %d/%d statements, want 1/2", len(s.Then), len(s.Else))
	}
}

func TestParseFunctionsAndTypes(t *testing.T) {
	src := `type vec
  x as float
  y as float
endtype
function area(w as float, h#)
  a# = w * h#
endfunction a#
r# = area(2, 3)`
	prog := parse(t, src)
	if diags := syntaxDiags(prog); len(diags) > 0 {
		t.Fatalf("Parse: %v", diags)
	}
	if len(prog.Types) != 1 || len(prog.Types[0].Fields) != 2 {
		t.Fatalf("types = %+v, want vec with 2 fields", prog.Types)
	}
	if len(prog.Functions) != 1 {
		t.Fatalf("functions = %d, want 1", len(prog.Functions))
	}
	f := prog.Functions[0]
	if f.Name != "area" || len(f.Params) != 2 || f.Params[0].TypeName != "float" {
		t.Errorf("function = %s(%d params), first type %q", f.Name, len(f.Params), f.Params[0].TypeName)
	}
	if f.Result == nil || sexpr(f.Result) != "a#" {
		t.Errorf("function result = %v, want a#", f.Result)
	}
	call := prog.Statements[0].(*AssignStmt).Value
	if got := sexpr(call); got != "area(2, 3)" {
		t.Errorf("call = %s, want area(2, 3)", got)
	}
}

func TestParseMultiWordCommands(t *testing.T) {
	prog := parse(t, "read name n$\nbump all a, b")
	if diags := prog.AllDiagnostics(); len(diags) > 0 {
		t.Fatalf("Parse: %v", diags)
	}
	for i, want := range []string{"read name", "bump all"} {
		s := prog.Statements[i].(*CommandStmt)
		if s.Call.Name != want {
			t.Errorf("statement %d calls %q, want %q", i, s.Call.Name, want)
		}
		if s.Call.Method < 0 {
			t.Errorf("statement %d: %q not resolved", i, want)
		}
	}
}

func TestParseOverloadResolution(t *testing.T) {
	cmds := testCommands(t)
	method := func(name, sig string) int {
		for _, c := range cmds.Lookup(name) {
			if c.Signature == sig {
				return c.MethodIndex
			}
		}
		t.Fatalf("no %s %s", name, sig)
		return -1
	}
	tests := []struct {
		src  string
		want int
	}{
		{"v = pick(1)", method("pick", "int(int)")},
		{"v = pick(1, 2)", method("pick", "int(int, int)")},
		{"inc x", method("inc", "void(ref int)")},
		{"inc x, 5", method("inc", "void(ref int, int)")},
		{"inc f#", method("inc", "void(ref float)")},
		{"v = left$(\"abc\")", method("left$", "string(string, int?)")},
		{"v = left$(\"abc\", 2)", method("left$", "string(string, int?)")},
		{"v = twice(3)", method("twice", "int(int)")},
		{"v# = twice(1.5)", method("twice", "float(float)")},
		{"v = twice(n#)", method("twice", "float(float)")},
		{"v# = larger(1, 2.5)", method("larger", "float(float, float)")},
		{"v# = larger(2.5, 1)", method("larger", "float(float, float)")},
		{"v = larger(1, 2)", method("larger", "int(int, int)")},
		{"function g#(n#)\nendfunction n#\nv# = twice(g#(1.5))", method("twice", "float(float)")},
		{"function g$()\nendfunction \"x\"\nv = left$(g$(), 1)", method("left$", "string(string, int?)")},
	}
	for _, tc := range tests {
		prog := Parse(tc.src, cmds, ParseOptions{})
		if diags := prog.AllDiagnostics(); len(diags) > 0 {
			t.Errorf("Parse(%q): %v", tc.src, diags)
			continue
		}
		var got *CommandExpr
		Walk(prog, func(n Node) bool {
			if c, ok := n.(*CommandExpr); ok && got == nil {
				got = c
			}
			return true
		}, nil)
		if got == nil || got.Method != tc.want {
			t.Errorf("Parse(%q): method = %v, want %d", tc.src, got, tc.want)
		}
	}
}

func TestParseOverloadFailures(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"inc 1", "no overload of inc"},
		{"v = pick(1, 2, 3)", "no overload of pick"},
		{`v = pick("a")`, "no overload of pick"},
		{"v = half(\"x\")", "no overload of half"},
	}
	for _, tc := range tests {
		prog := parse(t, tc.src)
		diags := prog.AllDiagnostics()
		if len(diags) != 1 {
			t.Errorf("Parse(%q): %d diagnostics, want 1: %v", tc.src, len(diags), diags)
			continue
		}
		if diags[0].Kind != DiagSemantic || !strings.Contains(diags[0].Message, tc.want) {
			t.Errorf("Parse(%q) = %v, want semantic %q", tc.src, diags[0], tc.want)
		}
	}
}

func TestParseRecovery(t *testing.T) {
	src := "x = \nprint 1\nendwhile\ny = (2\nz = 3"
	prog := parse(t, src)
	diags := syntaxDiags(prog)
	if len(diags) != 3 {
		t.Fatalf("Parse: %d diagnostics, want 3: %v", len(diags), diags)
	}
	last := prog.Statements[len(prog.Statements)-1]
	if a, ok := last.(*AssignStmt); !ok || sexpr(a.Target) != "z" {
		t.Errorf("parsing did not recover: last statement %T", last)
	}
	lines := []int{0, 2, 3}
	for i, d := range diags {
		if d.Start.Line != lines[i] {
			t.Errorf("diagnostic %d on line %d, want %d: %v", i, d.Start.Line+1, lines[i]+1, d)
		}
	}
}

func TestParseStrictStopsAtFirstError(t *testing.T) {
	src := "x = 1\ny = \nz = 0xZZ\nw = 4"
	prog := Parse(src, testCommands(t), ParseOptions{Strict: true})
	var syntax int
	for _, d := range prog.AllDiagnostics() {
		if d.Kind == DiagSyntax {
			syntax++
		}
	}
	if syntax != 1 {
		t.Errorf("strict parse: %d syntax diagnostics, want 1", syntax)
	}
	if len(prog.Statements) != 2 {
		t.Errorf("strict parse: %d statements, want 2", len(prog.Statements))
	}
}

func TestParseUnclosedBlocks(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"if x\nprint 1", "if without endif"},
		{"while x\nprint 1", "while without endwhile"},
		{"for i = 1 to 3\nprint i", "for without next"},
		{"function f()\nx = 1", "function f without endfunction"},
		{"type t\nx", "type t without endtype"},
		{"print 1\nendif", "without a matching opening statement"},
		{"for i = 1 to 3\nnext j", "next j does not match for i"},
	}
	for _, tc := range tests {
		diags := syntaxDiags(parse(t, tc.src))
		found := false
		for _, d := range diags {
			found = found || strings.Contains(d.Message, tc.want)
		}
		if !found {
			t.Errorf("Parse(%q) = %v, want %q", tc.src, diags, tc.want)
		}
	}
}

func TestParseUnknownCommandSuggests(t *testing.T) {
	diags := parse(t, "prnt 1").AllDiagnostics()
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "did you mean print") {
		t.Errorf("diagnostics = %v, want a print suggestion", diags)
	}
}

func TestParseSpansNest(t *testing.T) {
	src := `type vec
  x as float
endtype
function f(a)
  if a > 1 then exitfunction a * 2
endfunction a
dim grid(3, 3)
for i = 0 to 3
  grid(i, i) = f(i) + pick(i)
next
select grid(1, 1)
  case 1, 2 : print "low" : endcase
  case default : print "other" : endcase
endselect`
	prog := parse(t, src)
	if diags := prog.AllDiagnostics(); len(diags) > 0 {
		t.Fatalf("Parse: %v", diags)
	}
	var stack []Node
	Walk(prog, func(n Node) bool {
		if len(stack) > 0 {
			parent := stack[len(stack)-1].Span()
			span := n.Span()
			if span.Start.Before(parent.Start) || parent.End.Before(span.End) {
				t.Errorf("%T %v..%v escapes parent %T %v..%v",
					n, span.Start, span.End, stack[len(stack)-1], parent.Start, parent.End)
			}
		}
		stack = append(stack, n)
		return true
	}, func(Node) {
		stack = stack[:len(stack)-1]
	})
}
