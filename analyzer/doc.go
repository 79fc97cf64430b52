// Package analyzer implements the async analysis pass.
//
// The pass decides, for every function and closure in a resolved unit,
// whether any execution path from it can suspend, and marks every call
// site accordingly. The flag is computed by fixpoint iteration over the
// call graph so that mutual recursion and forward references converge.
// Dynamic call sites (mutable bindings, passed-in closures) are treated
// as the most conservative join of their possible targets: suspending
// where the engine assumed synchronous execution is fatal, so precision
// always loses to correctness here.
package analyzer
