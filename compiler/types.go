package compiler

import (
	"strings"

	"github.com/chazu/basil/vm"
)

// Type is the static type of an expression or variable.
type Type struct {
	Code   vm.TypeCode // scalar code; TypePtr for arrays and structs
	Struct *StructType // set for struct values and struct arrays
	Elem   *Type       // element type for arrays
	Rank   int         // array rank, 0 for non-arrays
	Bad    bool        // error placeholder, compatible with everything
}

var (
	IntType    = &Type{Code: vm.TypeInt}
	FloatType  = &Type{Code: vm.TypeFloat}
	StringType = &Type{Code: vm.TypeString}
	ByteType   = &Type{Code: vm.TypeByte}
	WordType   = &Type{Code: vm.TypeWord}
	DWordType  = &Type{Code: vm.TypeDWord}
	DIntType   = &Type{Code: vm.TypeDInt}
	VoidType   = &Type{Code: vm.TypeVoid}
	BadType    = &Type{Code: vm.TypeInt, Bad: true}
)

// ScalarType returns the shared type for a scalar type code.
func ScalarType(tc vm.TypeCode) *Type {
	switch tc {
	case vm.TypeInt:
		return IntType
	case vm.TypeFloat:
		return FloatType
	case vm.TypeString:
		return StringType
	case vm.TypeByte:
		return ByteType
	case vm.TypeWord:
		return WordType
	case vm.TypeDWord:
		return DWordType
	case vm.TypeDInt:
		return DIntType
	}
	return VoidType
}

// StructOf returns the type of a value of struct type st.
func StructOf(st *StructType) *Type {
	return &Type{Code: vm.TypePtr, Struct: st}
}

// ArrayOf returns an array type with the given element type and rank.
func ArrayOf(elem *Type, rank int) *Type {
	return &Type{Code: vm.TypePtr, Elem: elem, Rank: rank, Struct: elem.Struct}
}

// IsArray reports whether t is an array type.
func (t *Type) IsArray() bool { return t != nil && t.Rank > 0 }

// IsStruct reports whether t is a (non-array) struct value.
func (t *Type) IsStruct() bool { return t != nil && t.Rank == 0 && t.Struct != nil }

// IsScalar reports whether t is a scalar value held directly in a slot.
func (t *Type) IsScalar() bool {
	return t != nil && t.Rank == 0 && t.Struct == nil && t.Code != vm.TypeVoid
}

// IsNumeric reports whether t is an integer or float scalar.
func (t *Type) IsNumeric() bool { return t.IsScalar() && t.Code.IsNumeric() }

// IsString reports whether t is a string scalar.
func (t *Type) IsString() bool { return t.IsScalar() && t.Code == vm.TypeString }

// Width returns the storage width of a value of this type when laid out in
// a struct or array element.
func (t *Type) Width() int {
	if t.IsStruct() {
		return t.Struct.Size
	}
	return t.Code.Width()
}

func (t *Type) String() string {
	switch {
	case t == nil:
		return "unknown"
	case t.Bad:
		return "invalid"
	case t.IsArray():
		return t.Elem.String() + " array"
	case t.Struct != nil:
		return t.Struct.Name
	}
	return typeNames[t.Code]
}

var typeNames = map[vm.TypeCode]string{
	vm.TypeVoid:   "nothing",
	vm.TypeInt:    "integer",
	vm.TypeFloat:  "float",
	vm.TypeString: "string",
	vm.TypeByte:   "byte",
	vm.TypeWord:   "word",
	vm.TypeDWord:  "dword",
	vm.TypeDInt:   "double integer",
}

// SameType reports whether a and b are identical types.
func SameType(a, b *Type) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Bad || b.Bad {
		return true
	}
	if a.Rank != b.Rank {
		return false
	}
	if a.IsArray() {
		return SameType(a.Elem, b.Elem)
	}
	if a.Struct != nil || b.Struct != nil {
		return a.Struct == b.Struct
	}
	return a.Code == b.Code
}

// Assignable reports whether a value of type from may be stored into to.
// Numeric types convert implicitly.
func Assignable(to, from *Type) bool {
	if to == nil || from == nil || to.Bad || from.Bad {
		return true
	}
	if to.IsNumeric() && from.IsNumeric() {
		return true
	}
	return SameType(to, from)
}

// SigilType returns the default type implied by a variable name's suffix.
func SigilType(name string) *Type {
	switch {
	case strings.HasSuffix(name, "#"):
		return FloatType
	case strings.HasSuffix(name, "$"):
		return StringType
	}
	return IntType
}

// BuiltinType maps a declaration type name to its type.
func BuiltinType(name string) (*Type, bool) {
	switch name {
	case "integer", "int":
		return IntType, true
	case "float", "real":
		return FloatType, true
	case "string":
		return StringType, true
	case "byte", "boolean":
		return ByteType, true
	case "word":
		return WordType, true
	case "dword":
		return DWordType, true
	case "double integer", "dint":
		return DIntType, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Struct types
// ---------------------------------------------------------------------------

// Field is one member of a struct type.
type Field struct {
	Name   string
	Type   *Type
	Offset int
}

// StructType is a user-defined type declared with type...endtype.
type StructType struct {
	Name   string
	Fields []*Field
	Size   int
	Decl   *TypeDecl
}

// Field returns the named field, or nil.
func (s *StructType) Field(name string) *Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldNames returns the names of all fields in declaration order.
func (s *StructType) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Layout converts the struct type to its debug representation.
func (s *StructType) Layout() vm.StructLayout {
	l := vm.StructLayout{Name: s.Name, Size: s.Size}
	for _, f := range s.Fields {
		fl := vm.FieldLayout{Name: f.Name, Offset: f.Offset, Type: f.Type.Code}
		if f.Type.IsStruct() {
			fl.Struct = f.Type.Struct.Name
		}
		l.Fields = append(l.Fields, fl)
	}
	return l
}
