// Package vm implements the kryon bytecode virtual machine.
//
// This package contains:
//   - Opcode set, bytecode builder and reader
//   - Tagged scalar value representation
//   - Module data model and its binary container (KRBY)
//   - Stack-based runtime with event dispatch
//   - Disassembler and module info listing
package vm
