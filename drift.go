package drift

import (
	"github.com/driftlang/drift/analyzer"
	"github.com/driftlang/drift/ast"
	"github.com/driftlang/drift/checkpoint"
	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/runtime"
)

// Compile runs async analysis and resumable code generation on a
// resolved unit. The analyser finalizes every function's async flag and
// call-site markers before the compiler places resume points.
func Compile(unit *ast.Unit) (*compiler.Program, error) {
	if err := analyzer.Analyze(unit); err != nil {
		return nil, err
	}
	return compiler.Compile(unit)
}

// Engine couples a compiled program with registered host operations.
// One engine serves any number of concurrent computations.
type Engine struct {
	rt *runtime.Runtime
}

// NewEngine creates an engine for a compiled program.
func NewEngine(prog *compiler.Program, opts ...runtime.Option) *Engine {
	return &Engine{rt: runtime.New(prog, opts...)}
}

// Register binds a host operation implementation.
func (e *Engine) Register(name string, canSuspend bool, fn runtime.OpFunc) error {
	return e.rt.Register(name, canSuspend, fn)
}

// Spawn creates a computation for the named function.
func (e *Engine) Spawn(fn string, args ...any) (*runtime.Computation, error) {
	return e.rt.Spawn(fn, args...)
}

// Checkpoint serializes a suspended computation.
func (e *Engine) Checkpoint(c *runtime.Computation) ([]byte, error) {
	return checkpoint.Encode(c)
}

// Restore reconstructs a suspended computation from checkpoint bytes.
func (e *Engine) Restore(data []byte) (*runtime.Computation, error) {
	return checkpoint.Restore(e.rt, data)
}

// Runtime exposes the underlying runtime.
func (e *Engine) Runtime() *runtime.Runtime {
	return e.rt
}
