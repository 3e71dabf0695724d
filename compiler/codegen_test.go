package compiler

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/basil/vm"
)

func globalFloat(t *testing.T, machine *vm.VM, name string) float64 {
	t.Helper()
	v, ok := machine.GlobalValue(name)
	if !ok {
		t.Fatalf("no global %s", name)
	}
	return v.Float()
}

func globalString(t *testing.T, machine *vm.VM, name string) string {
	t.Helper()
	v, ok := machine.GlobalValue(name)
	if !ok {
		t.Fatalf("no global %s", name)
	}
	return machine.StringOf(v)
}

// runFault compiles src and runs it, expecting a fault.
func runFault(t *testing.T, src string) *vm.Fault {
	t.Helper()
	cmds := testCommands(t)
	prog, diags, err := Compile(src, cmds, Options{})
	if err != nil {
		t.Fatalf("Compile(%q): %v %v", src, err, diags)
	}
	machine, err := vm.New(prog, cmds, vm.Config{Stdout: &strings.Builder{}})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	err = machine.Run()
	var f *vm.Fault
	if !errors.As(err, &f) {
		t.Fatalf("Run(%q) = %v, want a fault", src, err)
	}
	if machine.State() != vm.StateFaulted {
		t.Errorf("state = %v, want faulted", machine.State())
	}
	return f
}

func TestCompileIntegers(t *testing.T) {
	tests := []struct {
		src  string
		name string
		want int64
	}{
		{"x = 1 : inc x", "x", 2},
		{"x = 1\ninc x, 41", "x", 42},
		{"v = 7 / 2", "v", 3},
		{"v = -7 / 2", "v", -3},
		{"v = 7 mod 3", "v", 1},
		{"v = 2 ^ 10", "v", 1024},
		{"v = 1 + 2 * 3", "v", 7},
		{"v = (1 + 2) * 3", "v", 9},
		{"v = 1 << 4 | 1", "v", 17},
		{"v = 0xF0 & 0x3C", "v", 0x30},
		{"v = 6 ~ 3", "v", 5},
		{"v = ~0", "v", -1},
		{"v = 256 >> 4", "v", 16},
		{"v = 3 > 2", "v", 1},
		{"v = 3 <= 2", "v", 0},
		{"v = \"abc\" < \"abd\"", "v", 1},
		{"v = 2 and 0", "v", 0},
		{"v = 2 or 0", "v", 1},
		{"v = 1 xor 1", "v", 0},
		{"v = not 5", "v", 0},
		{"v = 2.9", "v", 2},
		{"v = pick(5) + pick(5, 6) * 10", "v", 21},
		{"v = 0b1010 + 0o17", "v", 25},
		{"local b as byte = 300\nv = b", "v", 44},
		{"local w as word = -1\nv = w", "v", 65535},
		{"v = v + 1", "v", 1},
	}
	for _, tc := range tests {
		machine, _ := run(t, tc.src)
		if got := globalInt(t, machine, tc.name); got != tc.want {
			t.Errorf("%q: %s = %d, want %d", tc.src, tc.name, got, tc.want)
		}
	}
}

func TestCompileFloats(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"f# = 7 / 2.0", 3.5},
		{"f# = 1", 1},
		{"f# = 2 ^ 0.5", math.Sqrt2},
		{"f# = half(5)", 2.5},
		{"f# = 1.5\ninc f#", 2.5},
		{"x = 3\nf# = x * 0.5", 1.5},
		{"f# = -.25", -0.25},
	}
	for _, tc := range tests {
		machine, _ := run(t, tc.src)
		if got := globalFloat(t, machine, "f#"); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%q: f# = %g, want %g", tc.src, got, tc.want)
		}
	}
}

func TestCompileStrings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`s$ = "ab" + upper$("cd")`, "abCD"},
		{`s$ = left$("hello")`, "h"},
		{`s$ = left$("hello", 3)`, "hel"},
		{`read name s$`, "basil"},
		{`s$ = "say ""hi"""`, `say "hi"`},
		{`s$ = ""`, ""},
		{"a$ = \"x\"\ns$ = a$\na$ = \"y\"", "x"},
	}
	for _, tc := range tests {
		machine, _ := run(t, tc.src)
		if got := globalString(t, machine, "s$"); got != tc.want {
			t.Errorf("%q: s$ = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestCompilePrint(t *testing.T) {
	_, out := run(t, "x = 3\nprint \"x is\", x, 2.5\nprint")
	if want := "x is 3 2.5\n\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestCompileControlFlow(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"while", "i = 0\nwhile i < 10\n inc i\nendwhile\nv = i", 10},
		{"for", "for i = 1 to 10\n v = v + i\nnext i", 55},
		{"for step", "for i = 1 to 10 step 3\n v = v + i\nnext", 22},
		{"for down", "for i = 5 to 1 step -1\n v = v * 10 + i\nnext", 54321},
		{"for runtime step", "s = -2\nfor i = 6 to 1 step s\n v = v * 10 + i\nnext", 642},
		{"for empty", "v = 7\nfor i = 3 to 1\n v = 0\nnext", 7},
		{"do exit", "do\n inc v\n if v = 4 then exit\nloop", 4},
		{"repeat", "repeat\n inc v\nuntil v >= 3", 3},
		{"nested exit", "for i = 1 to 3\n for j = 1 to 10\n  if j > 2 then exit\n  inc v\n next\nnext", 6},
		{"if else", "x = 2\nif x = 1\n v = 10\nelse\n v = 20\nendif", 20},
		{"single line if", "x = 1\nif x = 1 then v = 5 else v = 6", 5},
		{"goto", "v = 1\ngoto skip\nv = 2\nskip:\nv = v + 10", 11},
		{"gosub", "gosub add\ngosub add\nend\nadd:\nv = v + 2\nreturn", 4},
		{"end", "v = 1\nend\nv = 2", 1},
	}
	for _, tc := range tests {
		machine, _ := run(t, tc.src)
		if got := globalInt(t, machine, "v"); got != tc.want {
			t.Errorf("%s: v = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestCompileSelect(t *testing.T) {
	src := `for i = 1 to 4
  select i
    case 1 : v = v + 1 : endcase
    case 2, 3 : v = v + 10 : endcase
    case default : v = v + 100 : endcase
  endselect
next
select "b"
  case "a" : w = 1 : endcase
  case "b" : w = 2 : endcase
endselect
select 9
  case 1 : w = 99 : endcase
endselect`
	machine, _ := run(t, src)
	if got := globalInt(t, machine, "v"); got != 121 {
		t.Errorf("v = %d, want 121", got)
	}
	if got := globalInt(t, machine, "w"); got != 2 {
		t.Errorf("w = %d, want 2", got)
	}
}

func TestCompileArrays(t *testing.T) {
	src := `dim a(4)
a(0) = 2
a(4) = 3
v = a(0) + a(4)
dim grid#(2, 3)
grid#(2, 3) = 1.5
f# = grid#(2, 3) + grid#(0, 0)
redim a(9)
a(9) = 5
w = a(9) + a(0)`
	machine, _ := run(t, src)
	if got := globalInt(t, machine, "v"); got != 5 {
		t.Errorf("v = %d, want 5", got)
	}
	if got := globalFloat(t, machine, "f#"); got != 1.5 {
		t.Errorf("f# = %g, want 1.5", got)
	}
	if got := globalInt(t, machine, "w"); got != 7 {
		t.Errorf("w = %d, want 7 (redim keeps elements)", got)
	}
	ref, _ := machine.GlobalValue("a")
	dims, data := machine.ArrayElements(ref.Handle())
	if len(dims) != 1 || dims[0] != 10 || len(data) != 40 {
		t.Errorf("a: dims %v with %d bytes, want [10] with 40", dims, len(data))
	}
}

func TestCompileStringArrays(t *testing.T) {
	_, out := run(t, "dim names$(2)\nnames$(1) = \"bo\"\nnames$(2) = names$(1) + \"b\"\nprint names$(2)")
	if out != "bob\n" {
		t.Errorf("output = %q, want bob", out)
	}
}

func TestCompileFunctions(t *testing.T) {
	src := `function add(a, b)
endfunction a + b
function fact(n)
  if n < 2 then exitfunction 1
endfunction n * fact(n - 1)
function avg#(a#, b#)
endfunction (a# + b#) / 2
function greet$(name$)
endfunction "hi " + name$
function early(n)
  for i = 1 to 100
    if i = n then exitfunction i * 2
  next
endfunction -1
function nothing()
  global touched = 1
endfunction
v = add(2, 3)
f = fact(10)
g# = avg#(1, 2)
s$ = greet$("bo")
e = early(7)
nothing()`
	machine, _ := run(t, src)
	ints := map[string]int64{"v": 5, "f": 3628800, "e": 14, "touched": 1}
	for name, want := range ints {
		if got := globalInt(t, machine, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
	if got := globalFloat(t, machine, "g#"); got != 1.5 {
		t.Errorf("g# = %g, want 1.5", got)
	}
	if got := globalString(t, machine, "s$"); got != "hi bo" {
		t.Errorf("s$ = %q, want \"hi bo\"", got)
	}
}

func TestCompileFunctionLocalsAreFresh(t *testing.T) {
	src := `function count()
  inc n
endfunction n
a = count()
b = count()`
	machine, _ := run(t, src)
	if a, b := globalInt(t, machine, "a"), globalInt(t, machine, "b"); a != 1 || b != 1 {
		t.Errorf("a, b = %d, %d, want 1, 1", a, b)
	}
}

func TestCompileGlobalsSharedWithFunctions(t *testing.T) {
	src := `global total = 0
global dim hist(3)
function record(x)
  total = total + x
  hist(x) = hist(x) + 1
endfunction
record(1)
record(3)
record(3)
h = hist(3)`
	machine, _ := run(t, src)
	if got := globalInt(t, machine, "total"); got != 7 {
		t.Errorf("total = %d, want 7", got)
	}
	if got := globalInt(t, machine, "h"); got != 2 {
		t.Errorf("h = %d, want 2", got)
	}
}

func TestCompileStructs(t *testing.T) {
	src := `type vec
  x as float
  y as float
endtype
type body
  pos as vec
  mass as integer
  name as string
endtype
a as body
a.pos.x = 1.5
a.pos.y = 2
a.mass = 10
a.name = "rock"
b as body
b = a
b.mass = 20
function weigh(o as body)
  o.mass = o.mass * 2
endfunction o.mass
w = weigh(a)
m = a.mass
bm = b.mass
px# = b.pos.x + b.pos.y
n$ = b.name`
	machine, _ := run(t, src)
	ints := map[string]int64{"w": 20, "m": 20, "bm": 20}
	for name, want := range ints {
		if got := globalInt(t, machine, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
	if got := globalFloat(t, machine, "px#"); got != 3.5 {
		t.Errorf("px# = %g, want 3.5", got)
	}
	if got := globalString(t, machine, "n$"); got != "rock" {
		t.Errorf("n$ = %q, want rock", got)
	}
}

func TestCompileOverloadsOnFunctionResults(t *testing.T) {
	src := `function sq(n)
endfunction n * n
function h(n)
endfunction n / 2.0
print twice(sq(3)), twice(h(1)), larger(sq(2), 0.5), larger(1, 2.5)`
	_, out := run(t, src)
	if out != "18 1 4 2.5\n" {
		t.Errorf("printed %q, want %q", out, "18 1 4 2.5\n")
	}
}

func TestCompileStructArrays(t *testing.T) {
	src := `type pt
  x as integer
  y as integer
endtype
dim pts(3) as pt
for i = 0 to 3
  pts(i).x = i
  pts(i).y = i * i
next
v = pts(3).x + pts(3).y + pts(2).y`
	machine, _ := run(t, src)
	if got := globalInt(t, machine, "v"); got != 16 {
		t.Errorf("v = %d, want 16", got)
	}
}

func TestCompilePointers(t *testing.T) {
	machine, _ := run(t, "x = 1\np = @x\n*p = 42\nv = *p + 1")
	if got := globalInt(t, machine, "x"); got != 42 {
		t.Errorf("x = %d, want 42", got)
	}
	if got := globalInt(t, machine, "v"); got != 43 {
		t.Errorf("v = %d, want 43", got)
	}
}

func TestCompileHostCalls(t *testing.T) {
	src := `a = 1
b# = 2.5
bump all a, b#
function inner()
endfunction depth()
d = depth()
e = inner()
fail`
	cmds := testCommands(t)
	prog, _, err := Compile(src, cmds, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	machine, err := vm.New(prog, cmds, vm.Config{})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	err = machine.Run()
	var f *vm.Fault
	if !errors.As(err, &f) || f.Kind != vm.FaultHostCommand || f.Command != "fail" {
		t.Fatalf("Run = %v, want a host command fault in fail", err)
	}
	if f.Err == nil || f.Err.Error() != "failed on purpose" {
		t.Errorf("fault cause = %v, want the command's error", f.Err)
	}
	if got := globalInt(t, machine, "a"); got != 2 {
		t.Errorf("a = %d, want 2", got)
	}
	if got := globalFloat(t, machine, "b#"); got != 3 {
		t.Errorf("b# = %g, want 3 (raw write-back truncates through int)", got)
	}
	if d, e := globalInt(t, machine, "d"), globalInt(t, machine, "e"); d != 1 || e != 2 {
		t.Errorf("depth = %d in main, %d in a function; want 1 and 2", d, e)
	}
}

func TestCompileFaults(t *testing.T) {
	tests := []struct {
		src  string
		want vm.FaultKind
	}{
		{"dim a(4)\na(5) = 1", vm.FaultIndexOutOfRange},
		{"dim a(4)\nv = a(-1)", vm.FaultIndexOutOfRange},
		{"x = 0\nv = 1 / x", vm.FaultDivideByZero},
		{"x = 0\nv = 5 mod x", vm.FaultDivideByZero},
		{"function f(n)\nendfunction f(n + 1)\nv = f(1)", vm.FaultStackOverflow},
		{"return", vm.FaultInternal},
		{"fail", vm.FaultHostCommand},
	}
	for _, tc := range tests {
		if f := runFault(t, tc.src); f.Kind != tc.want {
			t.Errorf("%q: fault %v, want %v", tc.src, f.Kind, tc.want)
		}
	}
}

func TestCompileRefusesDiagnostics(t *testing.T) {
	prog, diags, err := Compile("print missing\nx = ", testCommands(t), Options{})
	if prog != nil {
		t.Errorf("Compile produced a program despite diagnostics")
	}
	var de *DiagnosticsError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DiagnosticsError", err)
	}
	if len(diags) != 2 || len(de.Diagnostics) != 2 {
		t.Errorf("diagnostics = %v, want 2", diags)
	}
}

func TestCompileProgramsAreDeterministic(t *testing.T) {
	src := "type v\n x as integer\nendtype\np as v\nfor i = 1 to 3\n p.x = p.x + i\nnext\nprint p.x"
	cmds := testCommands(t)
	a, _, err := Compile(src, cmds, Options{DebugData: true})
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := Compile(src, cmds, Options{DebugData: true})
	if string(a.Code) != string(b.Code) {
		t.Errorf("two compilations differ:\n%s\n%s", a.Disassemble(), b.Disassemble())
	}
}

func TestCompileDebugData(t *testing.T) {
	src := `x = 1
function f(a)
  local y = a
endfunction y
for i = 1 to 2
  x = f(i)
next`
	machine, _ := run(t, src)
	dbg := machine.Program().Debug
	if dbg == nil {
		t.Fatal("no debug data")
	}

	lines := make(map[int]bool)
	for _, off := range dbg.StatementOffsets() {
		lines[dbg.Tokens[off].Line] = true
	}
	for _, line := range []int{0, 2, 3, 4, 5} {
		if !lines[line] {
			t.Errorf("no statement recorded on line %d", line+1)
		}
	}
	if lines[6] {
		t.Errorf("statement recorded on the next line, which emits no code of its own")
	}

	entry := machine.Program().Functions[0].Entry
	if got := dbg.FunctionAt(entry); got != "f" {
		t.Errorf("FunctionAt(entry) = %q, want f", got)
	}
	vars := dbg.VariablesIn("f", len(machine.Program().Code))
	var names []string
	for _, v := range vars {
		names = append(names, v.Name)
	}
	if strings.Join(names, ",") != "a,y" {
		t.Errorf("variables of f = %v, want [a y]", names)
	}
	main := dbg.VariablesIn("", entry)
	names = names[:0]
	for _, v := range main {
		names = append(names, v.Name)
	}
	if strings.Join(names, ",") != "x,i" {
		t.Errorf("main variables = %v, want [x i]", names)
	}
}
