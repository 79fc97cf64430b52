// Package compiler implements resumable code generation.
//
// Each analysed function compiles to a flat instruction list over a
// register file. Execution state at any point is registers plus a
// program counter, so a call site that may suspend needs only two pieces
// of compile-time metadata to become a resume point: its pc and the set
// of registers live across the call. The liveness pass computes that set
// so continuation frames capture the minimum state needed for a correct
// resume.
//
// The instruction set is internal to this engine and deliberately not a
// byte-code format for any external virtual machine.
package compiler
