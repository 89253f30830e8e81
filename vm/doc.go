// Package vm implements the Kagami script machine.
//
// This package contains:
//   - Tagged values, the handle-addressed heap and external payloads
//   - Scope layers, frames and the single-block-context control state
//   - Function descriptors with fixed, auto-fill and auto-size binding
//   - The fetch/dispatch loop with tail calls and closures
//   - Struct and module composition
//   - The cooperative event loop (handle, wait, leave)
//   - A fluent Assembler for building bytecode blocks in Go
package vm
