// Package drift is an embeddable scripting engine built around
// continuation-based suspend and resume.
//
// A script may call host operations that cannot complete synchronously.
// Instead of blocking, the engine captures the live execution state
// into a continuation chain, returns control to the host, and later
// resumes on whatever goroutine the host chooses. Suspended
// computations can also be serialized to bytes and restored in another
// process running the same compiled program.
//
// The pipeline: a resolved ast.Unit goes through async analysis
// (which functions can suspend), resumable code generation (resume
// points with liveness-minimal capture sets), and executes on the
// continuation runtime. See the analyzer, compiler, runtime, and
// checkpoint packages.
package drift
