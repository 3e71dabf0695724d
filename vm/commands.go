package vm

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Command metadata
// ---------------------------------------------------------------------------

// ArgSpec describes one declared command parameter.
type ArgSpec struct {
	Type     TypeCode
	Ref      bool // caller passes an address; host writes are copied back
	Optional bool // may be omitted from the end of the call
	Params   bool // variadic tail, pushed as elements followed by a count
	Raw      bool // any type; pushed as value, address and type code
	FromVM   bool // not pushed; supplied by the trampoline
}

func (a ArgSpec) String() string {
	switch {
	case a.FromVM:
		return "vm"
	case a.Params && a.Raw:
		return "params raw"
	case a.Params:
		return "params " + a.Type.String()
	case a.Raw:
		return "raw"
	}
	s := a.Type.String()
	if a.Ref {
		s = "ref " + s
	}
	if a.Optional {
		s += "?"
	}
	return s
}

// CommandFunc executes a host command. Arguments are read from and results
// written to ctx. A returned error faults the VM.
type CommandFunc func(ctx *CallContext) error

// CommandInfo is one entry of the dispatch table.
type CommandInfo struct {
	Name        string // lower case, words separated by single spaces
	Signature   string
	MethodIndex int
	Return      TypeCode
	Args        []ArgSpec
	Func        CommandFunc
	Group       string

	pops []int // indices of pushed args, last pushed first
}

// Required returns the number of arguments a call site must supply.
func (c *CommandInfo) Required() int {
	n := 0
	for _, a := range c.Args {
		if !a.FromVM && !a.Optional && !a.Params {
			n++
		}
	}
	return n
}

// Variadic reports whether the last parameter is a params tail.
func (c *CommandInfo) Variadic() bool {
	return len(c.Args) > 0 && c.Args[len(c.Args)-1].Params
}

// Visible returns the parameters a call site supplies, in order.
func (c *CommandInfo) Visible() []ArgSpec {
	out := make([]ArgSpec, 0, len(c.Args))
	for _, a := range c.Args {
		if !a.FromVM {
			out = append(out, a)
		}
	}
	return out
}

func (c *CommandInfo) String() string {
	return c.Name + " " + c.Signature
}

// ParseSignature parses a signature such as "void(ref int, int?)" or
// "string(params raw)".
func ParseSignature(sig string) (TypeCode, []ArgSpec, error) {
	sig = strings.TrimSpace(sig)
	open := strings.IndexByte(sig, '(')
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return TypeVoid, nil, fmt.Errorf("signature %q: expected ret(args)", sig)
	}
	ret, ok := ParseTypeCode(strings.TrimSpace(sig[:open]))
	if !ok || ret == TypeAny || ret == TypePtr {
		return TypeVoid, nil, fmt.Errorf("signature %q: unsupported return type %q", sig, sig[:open])
	}
	body := strings.TrimSpace(sig[open+1 : len(sig)-1])
	if body == "" {
		return ret, nil, nil
	}
	var args []ArgSpec
	seenOptional := false
	for i, part := range strings.Split(body, ",") {
		a, err := parseArg(strings.Fields(part))
		if err != nil {
			return TypeVoid, nil, fmt.Errorf("signature %q: argument %d: %w", sig, i+1, err)
		}
		if seenOptional && !a.Optional && !a.FromVM {
			return TypeVoid, nil, fmt.Errorf("signature %q: required argument after optional", sig)
		}
		if a.Params && seenOptional {
			return TypeVoid, nil, fmt.Errorf("signature %q: params cannot follow optional arguments", sig)
		}
		if len(args) > 0 && args[len(args)-1].Params {
			return TypeVoid, nil, fmt.Errorf("signature %q: params must be the last argument", sig)
		}
		seenOptional = seenOptional || a.Optional
		args = append(args, a)
	}
	return ret, args, nil
}

func parseArg(words []string) (ArgSpec, error) {
	var a ArgSpec
	if len(words) == 0 {
		return a, fmt.Errorf("empty argument")
	}
	switch words[0] {
	case "vm":
		if len(words) != 1 {
			return a, fmt.Errorf("unexpected %q after vm", words[1])
		}
		a.FromVM = true
		return a, nil
	case "ref":
		a.Ref = true
		words = words[1:]
	case "params":
		a.Params = true
		words = words[1:]
	}
	if len(words) != 1 {
		return a, fmt.Errorf("expected a single type name")
	}
	name := words[0]
	if strings.HasSuffix(name, "?") {
		if a.Params {
			return a, fmt.Errorf("params argument cannot be optional")
		}
		a.Optional = true
		name = strings.TrimSuffix(name, "?")
	}
	if name == "raw" || name == "any" {
		if a.Ref {
			return a, fmt.Errorf("raw arguments are already passed by address")
		}
		a.Raw = true
		a.Type = TypeAny
		return a, nil
	}
	tc, ok := ParseTypeCode(name)
	if !ok || tc == TypeVoid || tc == TypePtr {
		return a, fmt.Errorf("unknown argument type %q", name)
	}
	a.Type = tc
	return a, nil
}

// ---------------------------------------------------------------------------
// Command groups and the collection
// ---------------------------------------------------------------------------

// CommandGroup is a source of commands, typically one host package.
type CommandGroup struct {
	Name     string
	Commands []*CommandInfo
	errs     []error
}

// NewCommandGroup creates an empty group.
func NewCommandGroup(name string) *CommandGroup {
	return &CommandGroup{Name: name}
}

// Add registers a command. Signature errors are reported by
// NewCommandCollection.
func (g *CommandGroup) Add(name, signature string, fn CommandFunc) *CommandGroup {
	ret, args, err := ParseSignature(signature)
	if err != nil {
		g.errs = append(g.errs, fmt.Errorf("%s: %s: %w", g.Name, name, err))
		return g
	}
	g.Commands = append(g.Commands, &CommandInfo{
		Name:      NormalizeCommandName(name),
		Signature: signature,
		Return:    ret,
		Args:      args,
		Func:      fn,
		Group:     g.Name,
	})
	return g
}

// NormalizeCommandName lower-cases a command name and collapses whitespace.
func NormalizeCommandName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// CommandCollection is the read-only dispatch table shared by the parser and
// the VM. Method indices are assigned in group order at construction.
type CommandCollection struct {
	commands []*CommandInfo
	byName   map[string][]*CommandInfo
	names    []string
	maxWords int
	digest   uint64
}

// NewCommandCollection builds the dispatch table from groups.
func NewCommandCollection(groups ...*CommandGroup) (*CommandCollection, error) {
	c := &CommandCollection{byName: make(map[string][]*CommandInfo)}
	h := xxh3.New()
	for _, g := range groups {
		if len(g.errs) > 0 {
			return nil, g.errs[0]
		}
		for _, info := range g.Commands {
			if info.Func == nil {
				return nil, fmt.Errorf("%s: %s has no executor", g.Name, info.Name)
			}
			if len(c.commands) > math.MaxUint16 {
				return nil, fmt.Errorf("too many commands")
			}
			for _, other := range c.byName[info.Name] {
				if sameShape(other, info) {
					return nil, fmt.Errorf("%s: duplicate signature %s", info.Name, info.Signature)
				}
			}
			cp := *info
			cp.MethodIndex = len(c.commands)
			cp.pops = popPlan(cp.Args)
			c.commands = append(c.commands, &cp)
			if _, ok := c.byName[cp.Name]; !ok {
				c.names = append(c.names, cp.Name)
			}
			c.byName[cp.Name] = append(c.byName[cp.Name], &cp)
			c.maxWords = max(c.maxWords, len(strings.Fields(cp.Name)))
			fmt.Fprintf(h, "%s|%s\n", cp.Name, strings.ReplaceAll(cp.Signature, " ", ""))
		}
	}
	sort.Strings(c.names)
	c.digest = h.Sum64()
	return c, nil
}

func sameShape(a, b *CommandInfo) bool {
	if len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}

func popPlan(args []ArgSpec) []int {
	var plan []int
	for i := len(args) - 1; i >= 0; i-- {
		if !args[i].FromVM {
			plan = append(plan, i)
		}
	}
	return plan
}

// Len returns the number of commands.
func (c *CommandCollection) Len() int {
	return len(c.commands)
}

// Command returns the command with the given method index, or nil.
func (c *CommandCollection) Command(index int) *CommandInfo {
	if index < 0 || index >= len(c.commands) {
		return nil
	}
	return c.commands[index]
}

// Lookup returns every overload registered under name.
func (c *CommandCollection) Lookup(name string) []*CommandInfo {
	return c.byName[NormalizeCommandName(name)]
}

// Names returns the distinct command names, sorted.
func (c *CommandCollection) Names() []string {
	return c.names
}

// MaxWords returns the word count of the longest multi-word command name.
func (c *CommandCollection) MaxWords() int {
	return c.maxWords
}

// Digest identifies the table's names and signatures. Programs record the
// digest they were compiled against.
func (c *CommandCollection) Digest() uint64 {
	return c.digest
}
