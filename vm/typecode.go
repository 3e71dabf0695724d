package vm

import "fmt"

// ---------------------------------------------------------------------------
// Type codes
// ---------------------------------------------------------------------------

// TypeCode tags the shape of a value on the VM stack. The stack itself
// carries no type information; every instruction that touches a value
// declares its type code.
type TypeCode byte

const (
	TypeVoid   TypeCode = iota // no value
	TypeInt                    // 32-bit signed integer
	TypeFloat                  // 64-bit float
	TypeString                 // heap handle to string bytes
	TypeByte                   // 8-bit unsigned
	TypeWord                   // 16-bit unsigned
	TypeDWord                  // 32-bit unsigned
	TypeDInt                   // 64-bit signed integer
	TypePtr                    // heap handle to an array or struct instance
	TypeAny                    // signature-only marker for raw arguments
)

var typeCodeNames = map[TypeCode]string{
	TypeVoid:   "void",
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeString: "string",
	TypeByte:   "byte",
	TypeWord:   "word",
	TypeDWord:  "dword",
	TypeDInt:   "dint",
	TypePtr:    "ptr",
	TypeAny:    "any",
}

func (t TypeCode) String() string {
	if name, ok := typeCodeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TypeCode(%d)", byte(t))
}

// Width returns the number of stack bytes a value of this type occupies.
func (t TypeCode) Width() int {
	switch t {
	case TypeByte:
		return 1
	case TypeWord:
		return 2
	case TypeInt, TypeDWord, TypeString, TypePtr:
		return 4
	case TypeFloat, TypeDInt:
		return 8
	}
	return 0
}

// IsInteger reports whether t is one of the integer shapes.
func (t TypeCode) IsInteger() bool {
	switch t {
	case TypeInt, TypeByte, TypeWord, TypeDWord, TypeDInt:
		return true
	}
	return false
}

// IsNumeric reports whether t is an integer or float.
func (t TypeCode) IsNumeric() bool {
	return t == TypeFloat || t.IsInteger()
}

// rank orders numeric types for implicit widening.
func (t TypeCode) rank() int {
	switch t {
	case TypeByte:
		return 1
	case TypeWord:
		return 2
	case TypeInt:
		return 3
	case TypeDWord:
		return 4
	case TypeDInt:
		return 5
	case TypeFloat:
		return 6
	}
	return 0
}

// Widen returns the type both operands of a mixed numeric binary operation
// are converted to. Non-numeric operands yield TypeVoid.
func Widen(a, b TypeCode) TypeCode {
	if !a.IsNumeric() || !b.IsNumeric() {
		return TypeVoid
	}
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// WideningDistance returns how many steps up the widening order a
// conversion from one numeric type to another climbs. Narrowing conversions
// give a negative distance.
func WideningDistance(from, to TypeCode) int {
	return to.rank() - from.rank()
}

// ParseTypeCode maps a signature or declaration type name to its code.
func ParseTypeCode(name string) (TypeCode, bool) {
	switch name {
	case "void":
		return TypeVoid, true
	case "int", "integer":
		return TypeInt, true
	case "float", "real":
		return TypeFloat, true
	case "string":
		return TypeString, true
	case "byte", "boolean":
		return TypeByte, true
	case "word":
		return TypeWord, true
	case "dword":
		return TypeDWord, true
	case "dint", "double integer":
		return TypeDInt, true
	case "ptr":
		return TypePtr, true
	case "any", "raw":
		return TypeAny, true
	}
	return TypeVoid, false
}
