package vm

import (
	"encoding/binary"
	"fmt"
)

// Storage is the storage class of a variable.
type Storage int

const (
	StorageGlobal Storage = iota // slot in the global register file
	StorageLocal                 // slot in the current function frame
)

func (s Storage) String() string {
	if s == StorageLocal {
		return "local"
	}
	return "global"
}

// VariableRef records where a variable lives. Arrays and struct instances
// hold a heap handle in their slot.
type VariableRef struct {
	Name     string   `cbor:"1,keyasint"`
	Type     TypeCode `cbor:"2,keyasint"` // element type for arrays
	Storage  Storage  `cbor:"3,keyasint"`
	Slot     int      `cbor:"4,keyasint"`
	Function string   `cbor:"5,keyasint,omitempty"`
	Struct   string   `cbor:"6,keyasint,omitempty"`
	Rank     int      `cbor:"7,keyasint,omitempty"` // 0 for scalars
}

// SlotType returns the type code stored directly in the variable's slot.
func (v VariableRef) SlotType() TypeCode {
	if v.Rank > 0 || v.Struct != "" {
		return TypePtr
	}
	return v.Type
}

// FunctionInfo describes a compiled script function.
type FunctionInfo struct {
	Name   string     `cbor:"1,keyasint"`
	Entry  int        `cbor:"2,keyasint"`
	Params []TypeCode `cbor:"3,keyasint"`
	Locals int        `cbor:"4,keyasint"` // frame slots including params
	Return TypeCode   `cbor:"5,keyasint"`
}

// Program is the compiler's output: code plus the tables the VM needs.
type Program struct {
	Code          []byte         `cbor:"1,keyasint"`
	Strings       []string       `cbor:"2,keyasint"`
	Functions     []FunctionInfo `cbor:"3,keyasint"`
	Globals       int            `cbor:"4,keyasint"` // global slot count
	Variables     []VariableRef  `cbor:"5,keyasint"` // address map
	CommandDigest uint64         `cbor:"6,keyasint"`
	Debug         *DebugData     `cbor:"7,keyasint,omitempty"`
}

// Global returns the address of a main-program variable by name.
func (p *Program) Global(name string) (VariableRef, bool) {
	for _, v := range p.Variables {
		if v.Storage == StorageGlobal && v.Name == name {
			return v, true
		}
	}
	return VariableRef{}, false
}

// Disassemble returns a listing of the program's code.
func (p *Program) Disassemble() string {
	return Disassemble(p.Code)
}

// Validate checks that the code decodes, jumps land on instruction
// boundaries, and every table index the code uses is in range.
func (p *Program) Validate() error {
	if err := Verify(p.Code); err != nil {
		return err
	}
	starts, _ := InstructionStarts(p.Code)
	boundary := make(map[int]bool, len(starts))
	for _, s := range starts {
		boundary[s] = true
	}
	for i, fn := range p.Functions {
		if !boundary[fn.Entry] {
			return fmt.Errorf("function %d (%s) entry %d is not an instruction boundary", i, fn.Name, fn.Entry)
		}
		if fn.Locals < len(fn.Params) {
			return fmt.Errorf("function %s has fewer slots than parameters", fn.Name)
		}
	}
	for _, s := range starts {
		op := Opcode(p.Code[s])
		switch op {
		case OpPushString:
			if idx := int(binary.LittleEndian.Uint16(p.Code[s+1:])); idx >= len(p.Strings) {
				return fmt.Errorf("string index %d out of range at %d", idx, s)
			}
		case OpCall:
			if idx := int(binary.LittleEndian.Uint16(p.Code[s+1:])); idx >= len(p.Functions) {
				return fmt.Errorf("function index %d out of range at %d", idx, s)
			}
		case OpLoadGlobal, OpStoreGlobal:
			if slot := int(binary.LittleEndian.Uint16(p.Code[s+2:])); slot >= p.Globals {
				return fmt.Errorf("global slot %d out of range at %d", slot, s)
			}
		case OpRefGlobal:
			if slot := int(binary.LittleEndian.Uint16(p.Code[s+1:])); slot >= p.Globals {
				return fmt.Errorf("global slot %d out of range at %d", slot, s)
			}
		}
	}
	return nil
}
