// Package runtime executes compiled programs with continuation-based
// suspend and resume.
//
// A Computation runs entirely on whichever goroutine calls into it.
// When a script invokes a host operation that returns Pending, the
// runtime converts the active frame stack into a continuation chain,
// keeping only the registers each frame still needs, and returns a
// PendingOp to the caller. The host completes the operation later with
// exactly one Resume or Fail call, from any goroutine; execution then
// continues as if the operation had returned directly. The runtime
// never spawns goroutines, never blocks, and never polls.
//
// A suspended computation can also be captured as a Snapshot and
// rebuilt with Runtime.Restore; the checkpoint package serializes
// snapshots across processes.
package runtime
