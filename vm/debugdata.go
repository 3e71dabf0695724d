package vm

import "sort"

// TokenRef identifies the source token a statement was compiled from.
// Positions are 0-based within the compiled (possibly concatenated) source.
type TokenRef struct {
	Line   int    `cbor:"1,keyasint"`
	Char   int    `cbor:"2,keyasint"`
	Length int    `cbor:"3,keyasint"`
	Text   string `cbor:"4,keyasint"`
}

// FieldLayout is one field of a compiled struct type.
type FieldLayout struct {
	Name   string   `cbor:"1,keyasint"`
	Offset int      `cbor:"2,keyasint"`
	Type   TypeCode `cbor:"3,keyasint"`
	Struct string   `cbor:"4,keyasint,omitempty"` // nested struct type
}

// StructLayout is the memory layout of a struct type.
type StructLayout struct {
	Name   string        `cbor:"1,keyasint"`
	Size   int           `cbor:"2,keyasint"`
	Fields []FieldLayout `cbor:"3,keyasint"`
}

// DebugData correlates instruction offsets with source. It is produced by
// the compiler on request and only read by the debugger.
type DebugData struct {
	Tokens    map[int]TokenRef        `cbor:"1,keyasint"` // statement start -> token
	Variables map[int][]VariableRef   `cbor:"2,keyasint"` // declaration -> variables
	Functions map[int]string          `cbor:"3,keyasint"` // statement start -> enclosing function
	Structs   map[string]StructLayout `cbor:"4,keyasint"`

	offsets []int
}

// NewDebugData creates empty debug tables.
func NewDebugData() *DebugData {
	return &DebugData{
		Tokens:    make(map[int]TokenRef),
		Variables: make(map[int][]VariableRef),
		Functions: make(map[int]string),
		Structs:   make(map[string]StructLayout),
	}
}

// AddStatement records that the statement starting at offset came from tok.
func (d *DebugData) AddStatement(offset int, tok TokenRef, function string) {
	if _, ok := d.Tokens[offset]; ok {
		return
	}
	d.Tokens[offset] = tok
	d.Functions[offset] = function
	d.offsets = nil
}

// AddVariable records a variable declared at offset.
func (d *DebugData) AddVariable(offset int, v VariableRef) {
	d.Variables[offset] = append(d.Variables[offset], v)
}

// IsStatement reports whether a statement starts at offset.
func (d *DebugData) IsStatement(offset int) bool {
	_, ok := d.Tokens[offset]
	return ok
}

// StatementOffsets returns every statement start in increasing order.
func (d *DebugData) StatementOffsets() []int {
	if d.offsets == nil {
		d.offsets = make([]int, 0, len(d.Tokens))
		for off := range d.Tokens {
			d.offsets = append(d.offsets, off)
		}
		sort.Ints(d.offsets)
	}
	return d.offsets
}

// StatementFor returns the start of the statement containing offset.
func (d *DebugData) StatementFor(offset int) (int, bool) {
	offs := d.StatementOffsets()
	i := sort.SearchInts(offs, offset+1) - 1
	if i < 0 {
		return 0, false
	}
	return offs[i], true
}

// FunctionAt returns the name of the function containing offset, or "" for
// the main program.
func (d *DebugData) FunctionAt(offset int) string {
	start, ok := d.StatementFor(offset)
	if !ok {
		return ""
	}
	return d.Functions[start]
}

// VariablesIn returns the variables of function (or the main program when
// function is "") declared at or before offset.
func (d *DebugData) VariablesIn(function string, offset int) []VariableRef {
	var decls []int
	for off := range d.Variables {
		if off <= offset {
			decls = append(decls, off)
		}
	}
	sort.Ints(decls)
	seen := make(map[string]bool)
	var out []VariableRef
	for _, off := range decls {
		for _, v := range d.Variables[off] {
			if v.Function != function || seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			out = append(out, v)
		}
	}
	return out
}
