package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/config"
	"github.com/driftlang/drift/errors"
)

// OpFunc implements one host operation. It runs on the computation's
// goroutine and must not block: an operation that cannot complete
// immediately returns Pending and delivers its result later through the
// PendingOp the runtime hands back.
type OpFunc func(ctx context.Context, args []any) Outcome

// Outcome is what a host operation produces: a value, an error, or a
// promise to deliver one of those later.
type Outcome struct {
	value any
	err   error
	kind  outcomeKind
}

type outcomeKind uint8

const (
	outcomeImmediate outcomeKind = iota
	outcomeFailed
	outcomePending
)

// Immediate completes the operation synchronously with a value.
func Immediate(v any) Outcome { return Outcome{value: v} }

// Failed completes the operation synchronously with an error, raised in
// the script at the call site.
func Failed(err error) Outcome { return Outcome{err: err, kind: outcomeFailed} }

// Pending suspends the computation. The host must later call Resume or
// Fail exactly once on the PendingOp it receives.
func Pending() Outcome { return Outcome{kind: outcomePending} }

type registeredOp struct {
	fn         OpFunc
	canSuspend bool
}

// Runtime executes a compiled program against a set of registered host
// operations. A Runtime is safe to share: each Spawn returns an
// independent computation with its own frame stack.
type Runtime struct {
	prog *compiler.Program
	cfg  config.Config
	ops  map[string]registeredOp
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfig overrides the default limits.
func WithConfig(cfg config.Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

// New creates a runtime for a compiled program.
func New(prog *compiler.Program, opts ...Option) *Runtime {
	r := &Runtime{
		prog: prog,
		cfg:  config.Default(),
		ops:  map[string]registeredOp{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Program returns the compiled program this runtime executes.
func (r *Runtime) Program() *compiler.Program { return r.prog }

// Config returns the limits this runtime enforces.
func (r *Runtime) Config() config.Config { return r.cfg }

// Register binds a host operation implementation to a declared name.
// canSuspend must match the declaration the program was compiled
// against: the compiler only placed resume points at call sites it knew
// could suspend, so a suspending implementation behind a declared-sync
// name would have nowhere to suspend to.
func (r *Runtime) Register(name string, canSuspend bool, fn OpFunc) error {
	declared, ok := r.prog.Ops[name]
	if !ok && r.cfg.StrictProtocol {
		return errors.New(errors.PhaseProtocol, errors.KindNotFound).
			Detail("operation %q not declared by the program", name).
			Build()
	}
	if ok && declared != canSuspend {
		return errors.New(errors.PhaseProtocol, errors.KindInvalidInput).
			Detail("operation %q declared canSuspend=%v, registered canSuspend=%v",
				name, declared, canSuspend).
			Build()
	}
	r.ops[name] = registeredOp{fn: fn, canSuspend: canSuspend}
	log.Debug("registered host operation",
		zap.String("op", name),
		zap.Bool("can_suspend", canSuspend))
	return nil
}

// Spawn creates a computation that will run the named function with the
// given arguments. The computation does not execute until Start.
func (r *Runtime) Spawn(fn string, args ...any) (*Computation, error) {
	proto := r.prog.ProtoByName(fn)
	if proto == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", fn)
	}
	if len(args) > proto.NumParams {
		return nil, errors.New(errors.PhaseRuntime, errors.KindArity).
			Function(fn).
			Detail("%d arguments for %d parameters", len(args), proto.NumParams).
			Build()
	}
	f := newFrame(proto, args, nil)
	return &Computation{rt: r, frames: []*frame{f}}, nil
}
