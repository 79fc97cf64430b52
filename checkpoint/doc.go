// Package checkpoint serializes suspended computations.
//
// A checkpoint is the portable byte form of a continuation chain: a
// header identifying the format version and the compiled program, the
// pending host operation, and each frame's resume point and captured
// registers. Captured values are encoded as a graph, not a tree, so
// shared cells and reference cycles survive the round trip.
//
// Checkpoints bind to an exact compilation: Restore refuses bytes whose
// program fingerprint does not match, since register assignments and
// resume points are meaningless against different generated code.
package checkpoint
