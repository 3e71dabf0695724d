package compiler

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/basil/vm"
)

// testCommands returns a small command table covering every argument
// passing convention.
func testCommands(t *testing.T) *vm.CommandCollection {
	t.Helper()
	g := vm.NewCommandGroup("test").
		Add("print", "void(params raw)", func(ctx *vm.CallContext) error {
			var sb strings.Builder
			for i, v := range ctx.Params() {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(ctx.Format(v))
			}
			fmt.Fprintln(ctx.VM().Stdout(), sb.String())
			return nil
		}).
		Add("inc", "void(ref int)", func(ctx *vm.CallContext) error {
			ctx.SetInt(0, ctx.Int(0)+1)
			return nil
		}).
		Add("inc", "void(ref int, int)", func(ctx *vm.CallContext) error {
			ctx.SetInt(0, ctx.Int(0)+ctx.Int(1))
			return nil
		}).
		Add("inc", "void(ref float)", func(ctx *vm.CallContext) error {
			ctx.SetFloat(0, ctx.Float(0)+1)
			return nil
		}).
		Add("pick", "int(int)", func(ctx *vm.CallContext) error {
			ctx.ReturnInt(1)
			return nil
		}).
		Add("pick", "int(int, int)", func(ctx *vm.CallContext) error {
			ctx.ReturnInt(2)
			return nil
		}).
		Add("twice", "int(int)", func(ctx *vm.CallContext) error {
			ctx.ReturnInt(ctx.Int(0) * 2)
			return nil
		}).
		Add("twice", "float(float)", func(ctx *vm.CallContext) error {
			ctx.ReturnFloat(ctx.Float(0) * 2)
			return nil
		}).
		Add("larger", "int(int, int)", func(ctx *vm.CallContext) error {
			ctx.ReturnInt(max(ctx.Int(0), ctx.Int(1)))
			return nil
		}).
		Add("larger", "float(float, float)", func(ctx *vm.CallContext) error {
			ctx.ReturnFloat(max(ctx.Float(0), ctx.Float(1)))
			return nil
		}).
		Add("half", "float(float)", func(ctx *vm.CallContext) error {
			ctx.ReturnFloat(ctx.Float(0) / 2)
			return nil
		}).
		Add("upper$", "string(string)", func(ctx *vm.CallContext) error {
			ctx.ReturnString(strings.ToUpper(ctx.String(0)))
			return nil
		}).
		Add("left$", "string(string, int?)", func(ctx *vm.CallContext) error {
			s := ctx.String(0)
			n := 1
			if ctx.Present(1) {
				n = int(ctx.Int(1))
			}
			ctx.ReturnString(s[:min(n, len(s))])
			return nil
		}).
		Add("read name", "void(ref string)", func(ctx *vm.CallContext) error {
			ctx.SetString(0, "basil")
			return nil
		}).
		Add("bump all", "void(params raw)", func(ctx *vm.CallContext) error {
			for i, v := range ctx.Params() {
				ctx.SetParam(i, vm.IntValue(vm.TypeDInt, v.Int()+1))
			}
			return nil
		}).
		Add("fail", "void()", func(ctx *vm.CallContext) error {
			return fmt.Errorf("failed on purpose")
		}).
		Add("depth", "int(vm)", func(ctx *vm.CallContext) error {
			ctx.ReturnInt(int64(ctx.VM().CallDepth()))
			return nil
		})
	cmds, err := vm.NewCommandCollection(g)
	if err != nil {
		t.Fatalf("NewCommandCollection: %v", err)
	}
	return cmds
}

// run compiles and executes src, returning the VM and everything printed.
func run(t *testing.T, src string) (*vm.VM, string) {
	t.Helper()
	cmds := testCommands(t)
	prog, diags, err := Compile(src, cmds, Options{DebugData: true})
	if err != nil {
		t.Fatalf("Compile(%q): %v %v", src, err, diags)
	}
	var out bytes.Buffer
	machine, err := vm.New(prog, cmds, vm.Config{Stdout: &out})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	if err := machine.Run(); err != nil {
		t.Fatalf("Run(%q): %v\n%s", src, err, prog.Disassemble())
	}
	return machine, out.String()
}

func globalInt(t *testing.T, machine *vm.VM, name string) int64 {
	t.Helper()
	v, ok := machine.GlobalValue(name)
	if !ok {
		t.Fatalf("no global %s", name)
	}
	return v.Int()
}
