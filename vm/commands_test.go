package vm

import (
	"strings"
	"testing"
)

func nop(*CallContext) error { return nil }

func TestParseSignature(t *testing.T) {
	tests := []struct {
		sig  string
		ret  TypeCode
		args string
	}{
		{"void()", TypeVoid, ""},
		{"int(int, int)", TypeInt, "int,int"},
		{"void(ref float)", TypeVoid, "ref float"},
		{"string(string, int?)", TypeString, "string,int?"},
		{"void(params raw)", TypeVoid, "params raw"},
		{"int(params int)", TypeInt, "params int"},
		{"int(vm, int)", TypeInt, "vm,int"},
		{"dint(raw)", TypeDInt, "raw"},
		{" float ( word , byte ) ", TypeFloat, "word,byte"},
	}
	for _, tt := range tests {
		ret, args, err := ParseSignature(tt.sig)
		if err != nil {
			t.Errorf("ParseSignature(%q) error = %v", tt.sig, err)
			continue
		}
		if ret != tt.ret {
			t.Errorf("ParseSignature(%q) ret = %s, want %s", tt.sig, ret, tt.ret)
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		if got := strings.Join(parts, ","); got != tt.args {
			t.Errorf("ParseSignature(%q) args = %q, want %q", tt.sig, got, tt.args)
		}
	}
}

func TestParseSignatureErrors(t *testing.T) {
	tests := []struct {
		sig  string
		want string
	}{
		{"int", "expected ret(args)"},
		{"ptr()", "unsupported return type"},
		{"int(bogus)", "unknown argument type"},
		{"int(int?, int)", "required argument after optional"},
		{"int(params int, int)", "params must be the last"},
		{"int(params int?)", "cannot be optional"},
		{"int(ref raw)", "already passed by address"},
		{"int(int,)", "empty argument"},
		{"int(vm int)", "after vm"},
	}
	for _, tt := range tests {
		_, _, err := ParseSignature(tt.sig)
		if err == nil {
			t.Errorf("ParseSignature(%q) = nil error, want %q", tt.sig, tt.want)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ParseSignature(%q) error = %v, want %q", tt.sig, err, tt.want)
		}
	}
}

func TestCommandInfoShape(t *testing.T) {
	g := NewCommandGroup("g").Add("f", "int(vm, int, ref float, string?)", nop)
	info := g.Commands[0]
	if got := info.Required(); got != 2 {
		t.Errorf("Required() = %d, want 2", got)
	}
	if got := len(info.Visible()); got != 3 {
		t.Errorf("len(Visible()) = %d, want 3", got)
	}
	if info.Variadic() {
		t.Error("Variadic() = true")
	}
	if g := NewCommandGroup("g").Add("p", "void(params raw)", nop); !g.Commands[0].Variadic() {
		t.Error("params command is not Variadic()")
	}
}

func TestCommandCollection(t *testing.T) {
	core := NewCommandGroup("core").
		Add("Print", "void(params raw)", nop).
		Add("inc", "void(ref int)", nop).
		Add("inc", "void(ref int, int)", nop)
	sys := NewCommandGroup("system").
		Add("set  display mode", "void(int, int)", nop)

	c, err := NewCommandCollection(core, sys)
	if err != nil {
		t.Fatalf("NewCommandCollection() error = %v", err)
	}
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
	for i := 0; i < c.Len(); i++ {
		if got := c.Command(i).MethodIndex; got != i {
			t.Errorf("Command(%d).MethodIndex = %d", i, got)
		}
	}
	if c.Command(4) != nil || c.Command(-1) != nil {
		t.Error("Command out of range should be nil")
	}
	if got := len(c.Lookup("INC")); got != 2 {
		t.Errorf("len(Lookup(INC)) = %d, want 2", got)
	}
	if got := c.Lookup("Set Display   Mode"); len(got) != 1 || got[0].Group != "system" {
		t.Errorf("Lookup(set display mode) = %v", got)
	}
	if got := strings.Join(c.Names(), ","); got != "inc,print,set display mode" {
		t.Errorf("Names() = %q", got)
	}
	if c.MaxWords() != 3 {
		t.Errorf("MaxWords() = %d, want 3", c.MaxWords())
	}
}

func TestCommandCollectionErrors(t *testing.T) {
	tests := []struct {
		name   string
		groups []*CommandGroup
		want   string
	}{
		{
			"duplicate signature",
			[]*CommandGroup{NewCommandGroup("a").Add("f", "int(int)", nop).Add("F", "float(int)", nop)},
			"duplicate signature",
		},
		{
			"bad signature",
			[]*CommandGroup{NewCommandGroup("a").Add("f", "int(what)", nop)},
			"a: f:",
		},
		{
			"missing executor",
			[]*CommandGroup{NewCommandGroup("a").Add("f", "void()", nil)},
			"no executor",
		},
	}
	for _, tt := range tests {
		_, err := NewCommandCollection(tt.groups...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: NewCommandCollection() error = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestCommandDigest(t *testing.T) {
	build := func(sigs ...string) uint64 {
		g := NewCommandGroup("g")
		for _, s := range sigs {
			g.Add("f", s, nop)
		}
		c, err := NewCommandCollection(g)
		if err != nil {
			t.Fatalf("NewCommandCollection() error = %v", err)
		}
		return c.Digest()
	}
	a := build("int(int)", "int(float)")
	if b := build("int( int )", "int(float)"); a != b {
		t.Errorf("digest depends on signature spacing: %x != %x", a, b)
	}
	if b := build("int(float)", "int(int)"); a == b {
		t.Error("digest ignores method order")
	}
	if b := build("int(int)"); a == b {
		t.Error("digest ignores a removed command")
	}
}
