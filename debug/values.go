package debug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/basil/vm"
)

// maxChildren caps the elements listed for one array.
const maxChildren = 256

// Variable is a rendered variable. Arrays and structs carry children.
type Variable struct {
	Name     string
	Type     string
	Value    string
	Children []Variable
}

func (s *Session) render(ref vm.VariableRef, v vm.Value) Variable {
	switch {
	case ref.Rank > 0:
		return s.renderArray(ref, v.Handle())
	case ref.Struct != "":
		out := Variable{Name: ref.Name, Type: ref.Struct}
		if v.Handle() == 0 {
			out.Value = "<nil>"
			return out
		}
		return s.renderStruct(ref.Name, ref.Struct, s.machine.Heap().Bytes(v.Handle()))
	}
	return Variable{Name: ref.Name, Type: ref.Type.String(), Value: s.scalar(v)}
}

func (s *Session) scalar(v vm.Value) string {
	if v.Type == vm.TypeString {
		return strconv.Quote(s.machine.StringOf(v))
	}
	return s.machine.Format(v)
}

func (s *Session) renderArray(ref vm.VariableRef, handle uint32) Variable {
	elemType := ref.Type.String()
	if ref.Struct != "" {
		elemType = ref.Struct
	}
	out := Variable{Name: ref.Name, Type: fmt.Sprintf("%s[%d]", elemType, ref.Rank)}
	dims, data := s.machine.ArrayElements(handle)
	if dims == nil {
		out.Value = "<not dimensioned>"
		return out
	}
	bounds := make([]string, len(dims))
	count := 1
	for i, d := range dims {
		bounds[i] = strconv.Itoa(d - 1)
		count *= d
	}
	out.Value = "(" + strings.Join(bounds, ", ") + ")"

	width := ref.Type.Width()
	layout, isStruct := s.debug.Structs[ref.Struct]
	if isStruct {
		width = layout.Size
	}
	index := make([]int, len(dims))
	for n := 0; n < count && n < maxChildren; n++ {
		name := "(" + joinInts(index) + ")"
		elem := data[n*width : (n+1)*width]
		if isStruct {
			out.Children = append(out.Children, s.renderStruct(name, ref.Struct, elem))
		} else {
			v := vm.DecodeValue(elem, ref.Type)
			out.Children = append(out.Children, Variable{Name: name, Type: elemType, Value: s.scalar(v)})
		}
		// Last index varies fastest.
		for i := len(index) - 1; i >= 0; i-- {
			index[i]++
			if index[i] < dims[i] {
				break
			}
			index[i] = 0
		}
	}
	return out
}

// renderStruct renders the struct stored inline in mem.
func (s *Session) renderStruct(name, typeName string, mem []byte) Variable {
	out := Variable{Name: name, Type: typeName}
	layout, ok := s.debug.Structs[typeName]
	if !ok {
		out.Value = "<unknown type>"
		return out
	}
	parts := make([]string, 0, len(layout.Fields))
	for _, f := range layout.Fields {
		if f.Struct != "" {
			nested := s.debug.Structs[f.Struct]
			child := s.renderStruct(f.Name, f.Struct, mem[f.Offset:f.Offset+nested.Size])
			out.Children = append(out.Children, child)
			parts = append(parts, f.Name+": "+child.Value)
			continue
		}
		v := vm.DecodeValue(mem[f.Offset:], f.Type)
		child := Variable{Name: f.Name, Type: f.Type.String(), Value: s.scalar(v)}
		out.Children = append(out.Children, child)
		parts = append(parts, f.Name+": "+child.Value)
	}
	out.Value = "{" + strings.Join(parts, ", ") + "}"
	return out
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
