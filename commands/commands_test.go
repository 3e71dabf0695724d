package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/basil/compiler"
	"github.com/chazu/basil/vm"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

type harness struct {
	cmds  *vm.CommandCollection
	clock *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	cmds, err := With(clock)
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}
	return &harness{cmds: cmds, clock: clock}
}

// start compiles src and returns a ready VM plus its output buffer.
func (h *harness) start(t *testing.T, src, stdin string) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	prog, diags, err := compiler.Compile(src, h.cmds, compiler.Options{})
	if err != nil {
		t.Fatalf("Compile(%q) error = %v %v", src, err, diags)
	}
	var out bytes.Buffer
	machine, err := vm.New(prog, h.cmds, vm.Config{Stdout: &out, Stdin: strings.NewReader(stdin)})
	if err != nil {
		t.Fatalf("vm.New() error = %v", err)
	}
	return machine, &out
}

// run executes src to completion and returns what it printed.
func (h *harness) run(t *testing.T, src, stdin string) (*vm.VM, string) {
	t.Helper()
	machine, out := h.start(t, src, stdin)
	if err := machine.Run(); err != nil {
		t.Fatalf("Run(%q) error = %v", src, err)
	}
	return machine, out.String()
}

func global(t *testing.T, machine *vm.VM, name string) vm.Value {
	t.Helper()
	v, ok := machine.GlobalValue(name)
	if !ok {
		t.Fatalf("no global %s", name)
	}
	return v
}

func TestDefaultCollection(t *testing.T) {
	cmds, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	for _, name := range []string{"print", "inc", "mid$", "wait key", "sync rate", "input"} {
		if len(cmds.Lookup(name)) == 0 {
			t.Errorf("Default() has no %q", name)
		}
	}
	other, _ := Default()
	if cmds.Digest() != other.Digest() {
		t.Error("Default() digest is not stable")
	}
	if cmds.MaxWords() != 2 {
		t.Errorf("MaxWords() = %d, want 2", cmds.MaxWords())
	}
}

func TestCoreCommands(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x = 1 : inc x : print x", "2"},
		{"x = 5 : inc x, 3 : dec x : print x", "7"},
		{"f# = 1.5 : inc f# : dec f#, 0.25 : print f#", "2.25"},
		{"a = 1 : b = 2 : swap a, b : print a, b", "2 1"},
		{`s$ = "a" : t$ = "b" : swap s$, t$ : print s$, t$`, "b a"},
		{"print str$(42), str$(2.5)", "42 2.5"},
		{`print val("12.5kg") + 1, val("x")`, "13.5 0"},
		{`print len("héllo"), len("")`, "5 0"},
		{`print left$("basil", 3), right$("basil", 2), mid$("basil", 2), mid$("basil", 2, 3)`, "bas il a asi"},
		{`print left$("ab", 10) + "|" + mid$("ab", 5) + "|" + right$("ab", -1)`, "ab||"},
		{`print upper$("héllo"), lower$("ABC")`, "HÉLLO abc"},
		{`print chr$(65), asc("A"), asc("")`, "A 65 0"},
		{"print abs(-3), abs(-2.5), int(2.7), int(-2.5)", "3 2.5 2 -3"},
		{"print sqrt(16)", "4"},
		{"print min(3, 7), max(3, 7), min(1.5, 2.0), max(1, 2.5)", "3 7 1.5 2.5"},
		{"print sin(90.0), cos(0.0)", "1 1"},
		{"print max(2.5, 1), min(1, 2.5), abs(1 - 2.5)", "2.5 1 1.5"},
		{"function sq(n)\nendfunction n * n\nprint str$(sq(12)), abs(sq(2) - 9), left$(str$(sq(12)), 2)", "144 5 14"},
		{"function half#(n#)\nendfunction n# / 2\nprint str$(half#(1.5)), max(1, half#(3))", "0.75 1.5"},
	}
	h := newHarness(t)
	for _, tt := range tests {
		_, out := h.run(t, tt.src, "")
		if got := strings.TrimSuffix(out, "\n"); got != tt.want {
			t.Errorf("%s: printed %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestCoreCommandFaults(t *testing.T) {
	tests := []struct {
		src     string
		command string
	}{
		{"x# = sqrt(-1)", "sqrt"},
		{"s$ = chr$(-1)", "chr$"},
		{`a = 1 : s$ = "x" : swap a, s$`, "swap"},
		{"r = rnd(-1)", "rnd"},
		{"sync rate -5", "sync rate"},
	}
	h := newHarness(t)
	for _, tt := range tests {
		machine, _ := h.start(t, tt.src, "")
		err := machine.Run()
		var f *vm.Fault
		if !errors.As(err, &f) {
			t.Errorf("%s: Run() = %v, want a fault", tt.src, err)
			continue
		}
		if f.Kind != vm.FaultHostCommand || f.Command != tt.command {
			t.Errorf("%s: fault = %v, want host command fault in %s", tt.src, f, tt.command)
		}
	}
}

func TestRandomize(t *testing.T) {
	h := newHarness(t)
	src := "randomize 7 : a = rnd(1000) : b = rnd(1000) : z = rnd(0)"
	first, _ := h.run(t, src, "")
	second, _ := h.run(t, src, "")
	for _, name := range []string{"a", "b"} {
		x, y := global(t, first, name).Int(), global(t, second, name).Int()
		if x != y {
			t.Errorf("%s differs between seeded runs: %d vs %d", name, x, y)
		}
		if x < 0 || x > 1000 {
			t.Errorf("%s = %d, outside 0..1000", name, x)
		}
	}
	if z := global(t, first, "z").Int(); z != 0 {
		t.Errorf("rnd(0) = %d, want 0", z)
	}
}

func TestTimerAndSleep(t *testing.T) {
	h := newHarness(t)
	machine, _ := h.run(t, "t0 = timer() : sleep 250 : wait 50 : t1 = timer()", "")
	if got := global(t, machine, "t1").Int() - global(t, machine, "t0").Int(); got != 300 {
		t.Errorf("elapsed = %d ms, want 300", got)
	}
	if len(h.clock.slept) != 2 || h.clock.slept[0] != 250*time.Millisecond {
		t.Errorf("slept = %v", h.clock.slept)
	}
}

func TestSyncPacing(t *testing.T) {
	tests := []struct {
		src   string
		slept []time.Duration
	}{
		{"sync on : sync rate 10 : sync : sync : sync", []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}},
		{"sync off : sync rate 10 : sync : sync", nil},
		{"sync on : sync : sync", nil},
		{"sync on : sync rate 4 : sync : sleep 100 : sync", []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}},
		{"sync on : sync rate 4 : sync : sleep 400 : sync", []time.Duration{400 * time.Millisecond}},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.run(t, tt.src, "")
		if len(h.clock.slept) != len(tt.slept) {
			t.Errorf("%s: slept %v, want %v", tt.src, h.clock.slept, tt.slept)
			continue
		}
		for i := range tt.slept {
			if h.clock.slept[i] != tt.slept[i] {
				t.Errorf("%s: slept %v, want %v", tt.src, h.clock.slept, tt.slept)
				break
			}
		}
	}
}

func TestSyncStateIsPerVM(t *testing.T) {
	h := newHarness(t)
	a, _ := h.start(t, "sync on : sync rate 10 : sync", "")
	b, _ := h.start(t, "sync : sync", "")
	if err := a.Run(); err != nil {
		t.Fatal(err)
	}
	if err := b.Run(); err != nil {
		t.Fatal(err)
	}
	if len(h.clock.slept) != 0 {
		t.Errorf("a paced VM leaked its rate into another VM: slept %v", h.clock.slept)
	}
	st := b.InstanceState(stateSync, func() any { return &syncState{} }).(*syncState)
	if st.on || st.count != 2 {
		t.Errorf("b sync state = %+v, want off with 2 frames", st)
	}
}

func TestInput(t *testing.T) {
	h := newHarness(t)
	src := `input "name? ", n$ : input age : input "height? ", h# : input rest$`
	machine, out := h.run(t, src, "Ada\r\n 42\n1.75\n")
	if out != "name? height? " {
		t.Errorf("printed %q, want prompts", out)
	}
	if got := machine.StringOf(global(t, machine, "n$")); got != "Ada" {
		t.Errorf("n$ = %q, want Ada", got)
	}
	if got := global(t, machine, "age").Int(); got != 42 {
		t.Errorf("age = %d, want 42", got)
	}
	if got := global(t, machine, "h#").Float(); got != 1.75 {
		t.Errorf("h# = %v, want 1.75", got)
	}
	if got := machine.StringOf(global(t, machine, "rest$")); got != "" {
		t.Errorf("rest$ at end of input = %q, want empty", got)
	}
}

func TestWaitKey(t *testing.T) {
	h := newHarness(t)
	machine, _ := h.run(t, "wait key : input a$ : wait key", "xyz\n")
	if got := machine.StringOf(global(t, machine, "a$")); got != "yz" {
		t.Errorf("a$ = %q, want yz", got)
	}
}
