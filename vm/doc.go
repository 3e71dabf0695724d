// Package vm implements the basil virtual machine.
//
// This package contains:
//   - Type codes and the typed byte stack
//   - The arena heap for strings, arrays and struct instances
//   - Bytecode encoding, verification and disassembly
//   - The host command table and call trampoline
//   - The interpreter with budgeted, resumable execution
//   - Debug tables and program serialization
package vm
