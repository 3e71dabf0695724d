package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/basil/vm"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ---------------------------------------------------------------------------
// Core commands
// ---------------------------------------------------------------------------

// Core returns the numeric, string and output commands.
func Core() *vm.CommandGroup {
	g := vm.NewCommandGroup("core")
	registerIncDec(g)
	registerOutput(g)
	registerStrings(g)
	registerMath(g)
	return g
}

func registerIncDec(g *vm.CommandGroup) {
	step := func(sign int64) vm.CommandFunc {
		return func(ctx *vm.CallContext) error {
			by := int64(1)
			if ctx.Present(1) {
				by = ctx.Int(1)
			}
			ctx.SetInt(0, ctx.Int(0)+sign*by)
			return nil
		}
	}
	fstep := func(sign float64) vm.CommandFunc {
		return func(ctx *vm.CallContext) error {
			by := 1.0
			if ctx.Present(1) {
				by = ctx.Float(1)
			}
			ctx.SetFloat(0, ctx.Float(0)+sign*by)
			return nil
		}
	}
	g.Add("inc", "void(ref int, int?)", step(1))
	g.Add("inc", "void(ref float, float?)", fstep(1))
	g.Add("dec", "void(ref int, int?)", step(-1))
	g.Add("dec", "void(ref float, float?)", fstep(-1))

	g.Add("swap", "void(raw, raw)", func(ctx *vm.CallContext) error {
		a, b := ctx.Arg(0), ctx.Arg(1)
		if (a.Type == vm.TypeString) != (b.Type == vm.TypeString) {
			return fmt.Errorf("cannot swap %s with %s", a.Type, b.Type)
		}
		ctx.Set(0, b)
		ctx.Set(1, a)
		return nil
	})
}

func registerOutput(g *vm.CommandGroup) {
	g.Add("print", "void(params raw)", func(ctx *vm.CallContext) error {
		var sb strings.Builder
		for i, v := range ctx.Params() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(ctx.Format(v))
		}
		sb.WriteByte('\n')
		_, err := fmt.Fprint(ctx.VM().Stdout(), sb.String())
		return err
	})
}

func registerStrings(g *vm.CommandGroup) {
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)

	g.Add("str$", "string(int)", func(ctx *vm.CallContext) error {
		ctx.ReturnString(strconv.FormatInt(ctx.Int(0), 10))
		return nil
	})
	g.Add("str$", "string(float)", func(ctx *vm.CallContext) error {
		ctx.ReturnString(strconv.FormatFloat(ctx.Float(0), 'g', -1, 64))
		return nil
	})
	g.Add("val", "float(string)", func(ctx *vm.CallContext) error {
		ctx.ReturnFloat(parseLeadingNumber(ctx.String(0)))
		return nil
	})
	g.Add("len", "int(string)", func(ctx *vm.CallContext) error {
		ctx.ReturnInt(int64(utf8.RuneCountInString(ctx.String(0))))
		return nil
	})
	g.Add("left$", "string(string, int)", func(ctx *vm.CallContext) error {
		r := []rune(ctx.String(0))
		ctx.ReturnString(string(r[:clamp(ctx.Int(1), len(r))]))
		return nil
	})
	g.Add("right$", "string(string, int)", func(ctx *vm.CallContext) error {
		r := []rune(ctx.String(0))
		ctx.ReturnString(string(r[len(r)-clamp(ctx.Int(1), len(r)):]))
		return nil
	})
	g.Add("mid$", "string(string, int, int?)", func(ctx *vm.CallContext) error {
		r := []rune(ctx.String(0))
		start := ctx.Int(1) - 1
		n := int64(1)
		if ctx.Present(2) {
			n = ctx.Int(2)
		}
		if start < 0 || start >= int64(len(r)) || n <= 0 {
			ctx.ReturnString("")
			return nil
		}
		end := int(start) + clamp(n, len(r)-int(start))
		ctx.ReturnString(string(r[start:end]))
		return nil
	})
	g.Add("upper$", "string(string)", func(ctx *vm.CallContext) error {
		ctx.ReturnString(upper.String(ctx.String(0)))
		return nil
	})
	g.Add("lower$", "string(string)", func(ctx *vm.CallContext) error {
		ctx.ReturnString(lower.String(ctx.String(0)))
		return nil
	})
	g.Add("chr$", "string(int)", func(ctx *vm.CallContext) error {
		n := ctx.Int(0)
		if n < 0 || n > utf8.MaxRune {
			return fmt.Errorf("code point %d out of range", n)
		}
		ctx.ReturnString(string(rune(n)))
		return nil
	})
	g.Add("asc", "int(string)", func(ctx *vm.CallContext) error {
		r, size := utf8.DecodeRuneInString(ctx.String(0))
		if size == 0 {
			r = 0
		}
		ctx.ReturnInt(int64(r))
		return nil
	})
}

// clamp limits a requested count to 0..n.
func clamp(want int64, n int) int {
	return int(max(0, min(want, int64(n))))
}

// parseLeadingNumber reads the longest numeric prefix of s, ignoring leading
// blanks. Text without one is 0.
func parseLeadingNumber(s string) float64 {
	s = strings.TrimLeft(s, " \t")
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
	}
	return 0
}

func registerMath(g *vm.CommandGroup) {
	g.Add("abs", "int(int)", func(ctx *vm.CallContext) error {
		n := ctx.Int(0)
		if n < 0 {
			n = -n
		}
		ctx.ReturnInt(n)
		return nil
	})
	g.Add("abs", "float(float)", func(ctx *vm.CallContext) error {
		ctx.ReturnFloat(math.Abs(ctx.Float(0)))
		return nil
	})
	g.Add("int", "int(float)", func(ctx *vm.CallContext) error {
		ctx.ReturnInt(int64(math.Floor(ctx.Float(0))))
		return nil
	})
	g.Add("sqrt", "float(float)", func(ctx *vm.CallContext) error {
		x := ctx.Float(0)
		if x < 0 {
			return fmt.Errorf("square root of negative number %g", x)
		}
		ctx.ReturnFloat(math.Sqrt(x))
		return nil
	})
	// Angles are in degrees.
	g.Add("sin", "float(float)", func(ctx *vm.CallContext) error {
		ctx.ReturnFloat(math.Sin(ctx.Float(0) * math.Pi / 180))
		return nil
	})
	g.Add("cos", "float(float)", func(ctx *vm.CallContext) error {
		ctx.ReturnFloat(math.Cos(ctx.Float(0) * math.Pi / 180))
		return nil
	})
	g.Add("min", "int(int, int)", func(ctx *vm.CallContext) error {
		ctx.ReturnInt(min(ctx.Int(0), ctx.Int(1)))
		return nil
	})
	g.Add("min", "float(float, float)", func(ctx *vm.CallContext) error {
		ctx.ReturnFloat(math.Min(ctx.Float(0), ctx.Float(1)))
		return nil
	})
	g.Add("max", "int(int, int)", func(ctx *vm.CallContext) error {
		ctx.ReturnInt(max(ctx.Int(0), ctx.Int(1)))
		return nil
	})
	g.Add("max", "float(float, float)", func(ctx *vm.CallContext) error {
		ctx.ReturnFloat(math.Max(ctx.Float(0), ctx.Float(1)))
		return nil
	})
}
