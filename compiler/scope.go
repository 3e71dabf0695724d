package compiler

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/chazu/basil/vm"
)

// ---------------------------------------------------------------------------
// Symbols and scopes
// ---------------------------------------------------------------------------

// Symbol is a declared variable.
type Symbol struct {
	Name    string
	Type    *Type
	Storage vm.Storage
	Slot    int
	Global  bool // visible inside functions
	Decl    Node
	Scope   *Scope
}

// Ref returns the symbol's address map entry.
func (s *Symbol) Ref() vm.VariableRef {
	ref := vm.VariableRef{
		Name:    s.Name,
		Type:    s.Type.Code,
		Storage: s.Storage,
		Slot:    s.Slot,
	}
	if s.Scope.Function != nil {
		ref.Function = s.Scope.Function.Name
	}
	if s.Type.IsArray() {
		ref.Type = s.Type.Elem.Code
		ref.Rank = s.Type.Rank
	}
	if s.Type.Struct != nil {
		ref.Struct = s.Type.Struct.Name
	}
	return ref
}

// Scope maps names to symbols. There is one root scope for the main
// program and one child scope per function; blocks do not open scopes.
type Scope struct {
	Name     string // function name, "" for the root
	Parent   *Scope
	Function *FuncDecl
	Labels   map[string]*LabelStmt
	Structs  map[string]*StructType // root only

	symbols map[string]*Symbol
	order   []*Symbol
	slots   int
}

// NewScope creates a scope. A nil parent makes a root scope.
func NewScope(parent *Scope, fn *FuncDecl) *Scope {
	s := &Scope{
		Parent:   parent,
		Function: fn,
		Labels:   make(map[string]*LabelStmt),
		symbols:  make(map[string]*Symbol),
	}
	if fn != nil {
		s.Name = fn.Name
	}
	if parent == nil {
		s.Structs = make(map[string]*StructType)
	}
	return s
}

// Root returns the outermost scope.
func (s *Scope) Root() *Scope {
	for s.Parent != nil {
		s = s.Parent
	}
	return s
}

// Define adds a symbol in the next free slot.
func (s *Scope) Define(name string, t *Type, decl Node) *Symbol {
	sym := &Symbol{Name: name, Type: t, Slot: s.slots, Decl: decl, Scope: s}
	if s.Parent != nil {
		sym.Storage = vm.StorageLocal
	}
	s.slots++
	s.symbols[name] = sym
	s.order = append(s.order, sym)
	return sym
}

// Temp reserves an unnamed slot.
func (s *Scope) Temp() int {
	s.slots++
	return s.slots - 1
}

// Local returns the symbol declared directly in s.
func (s *Scope) Local(name string) *Symbol {
	return s.symbols[name]
}

// Lookup resolves name from s. A function sees its own symbols and the
// root's global symbols; the root sees all of its own.
func (s *Scope) Lookup(name string) *Symbol {
	if sym, ok := s.symbols[name]; ok {
		return sym
	}
	if s.Parent != nil {
		if sym := s.Root().symbols[name]; sym != nil && sym.Global {
			return sym
		}
	}
	return nil
}

// Symbols returns the symbols declared in s in declaration order.
func (s *Scope) Symbols() []*Symbol { return s.order }

// Slots returns the number of slots used, including temporaries.
func (s *Scope) Slots() int { return s.slots }

// Visible returns the sorted names that resolve from s.
func (s *Scope) Visible() []string {
	seen := make(map[string]bool)
	var names []string
	for _, sym := range s.order {
		seen[sym.Name] = true
		names = append(names, sym.Name)
	}
	if s.Parent != nil {
		for _, sym := range s.Root().order {
			if sym.Global && !seen[sym.Name] {
				names = append(names, sym.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// suggest returns the candidate closest to word, or "".
func suggest(word string, candidates []string) string {
	if word == "" || len(candidates) == 0 {
		return ""
	}
	if ranks := fuzzy.RankFindFold(word, candidates); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", len(word)/2+1
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(word, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
