package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/errors"
)

// Status is the lifecycle state of a computation.
type Status int

const (
	// StatusReady means Start has not been called.
	StatusReady Status = iota
	// StatusRunning means script code is executing on some goroutine.
	StatusRunning
	// StatusSuspended means exactly one host operation is pending.
	StatusSuspended
	// StatusCompleted means the root function returned.
	StatusCompleted
	// StatusFailed means an uncaught error ended execution.
	StatusFailed
)

var statusNames = [...]string{"ready", "running", "suspended", "completed", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Step is the observable outcome of driving a computation: either it
// completed with a value, or it suspended on a pending host operation.
type Step struct {
	Done  bool
	Value any        // completion value, when Done
	Op    *PendingOp // pending operation, when !Done
}

// Computation is one executing script invocation. It owns an explicit
// frame stack; suspension converts the stack into a continuation chain
// by discarding every register not needed for resumption.
//
// A computation is driven by one goroutine at a time. Distinct
// computations are fully independent and may run concurrently.
type Computation struct {
	rt *Runtime

	mu      sync.Mutex
	status  Status
	frames  []*frame
	pending *PendingOp
	result  any
	err     error
}

// frame is one activation. pc points at the instruction being executed;
// for a suspended frame that is the call instruction awaiting a result.
type frame struct {
	proto *compiler.Proto
	env   []*Cell
	regs  []any
	argc  int
	pc    int
}

func newFrame(proto *compiler.Proto, args []any, env []*Cell) *frame {
	regs := make([]any, proto.NumRegs)
	copy(regs, args)
	return &frame{proto: proto, env: env, regs: regs, argc: len(args)}
}

// Runtime returns the runtime this computation executes in.
func (c *Computation) Runtime() *Runtime { return c.rt }

// Status returns the current lifecycle state.
func (c *Computation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns the completion value and error once the computation is
// Completed or Failed.
func (c *Computation) Result() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

// Start runs the computation on the calling goroutine until it
// completes, fails, or suspends on its first pending host operation.
func (c *Computation) Start(ctx context.Context) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusReady {
		return Step{}, errors.BadState("start", c.status.String())
	}
	c.status = StatusRunning
	return c.run(ctx)
}

// suspend converts the frame stack into a continuation chain: every
// frame keeps only the registers in its resume point's capture set.
// Returns the protocol error if some frame is stopped at a site the
// compiler did not mark resumable.
func (c *Computation) suspend(op string, args []any) (Step, error) {
	for i, f := range c.frames {
		mask, ok := f.proto.ResumePoint(f.pc)
		if !ok {
			e := errors.New(errors.PhaseProtocol, errors.KindBadState).
				Function(f.proto.Name).
				Detail("operation %q suspended at pc %d, which has no resume point", op, f.pc).
				Build()
			return c.terminate(e)
		}
		kept := make([]any, len(f.regs))
		for _, r := range mask {
			kept[r] = f.regs[r]
		}
		c.frames[i].regs = kept
	}

	c.pending = &PendingOp{Op: op, Args: args, c: c}
	c.status = StatusSuspended
	log.Debug("computation suspended",
		zap.String("op", op),
		zap.Int("depth", len(c.frames)))
	return Step{Op: c.pending}, nil
}

func (c *Computation) complete(v any) (Step, error) {
	c.status = StatusCompleted
	c.result = v
	c.frames = nil
	c.pending = nil
	return Step{Done: true, Value: v}, nil
}

func (c *Computation) terminate(e *errors.Error) (Step, error) {
	c.status = StatusFailed
	c.err = e
	c.frames = nil
	c.pending = nil
	return Step{}, e
}

// fail attaches call-site context to an error raised by the current
// instruction and terminates the computation.
func (c *Computation) fail(f *frame, in *compiler.Instr, e *errors.Error) (Step, error) {
	if e.Function == "" {
		e.Function = f.proto.Name
	}
	if !e.Pos.IsValid() {
		e.Pos = errors.Pos{Line: in.Pos.Line, Col: in.Pos.Col}
	}
	return c.terminate(e)
}

// PendingOp is the single pending host operation of a suspended
// computation. The host completes it by calling Resume or Fail exactly
// once, from any goroutine; a second call is a protocol error and does
// not disturb the outcome of the first.
type PendingOp struct {
	Op   string
	Args []any

	c    *Computation
	mu   sync.Mutex
	done bool
}

func (p *PendingOp) consume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return errors.DoubleResume()
	}
	p.done = true
	return nil
}

// Resume delivers the operation's result and continues execution on the
// calling goroutine until the next suspension or completion. To the
// script the operation appears to have returned v directly.
func (p *PendingOp) Resume(ctx context.Context, v any) (Step, error) {
	if err := p.consume(); err != nil {
		return Step{}, err
	}
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusSuspended || c.pending != p {
		return Step{}, errors.BadState("resume", c.status.String())
	}

	f := c.frames[len(c.frames)-1]
	f.regs[f.proto.Code[f.pc].Dst] = v
	f.pc++
	c.pending = nil
	c.status = StatusRunning
	log.Debug("computation resumed", zap.String("op", p.Op))
	return c.run(ctx)
}

// Fail delivers an operation failure. The error is raised in the script
// at the original call site, with that site's source position, and
// terminates the computation.
func (p *PendingOp) Fail(ctx context.Context, opErr error) (Step, error) {
	if err := p.consume(); err != nil {
		return Step{}, err
	}
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusSuspended || c.pending != p {
		return Step{}, errors.BadState("fail", c.status.String())
	}

	f := c.frames[len(c.frames)-1]
	in := &f.proto.Code[f.pc]
	e := errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
		Cause(opErr).
		Detail("host operation %q failed", p.Op).
		Build()
	c.pending = nil
	return c.fail(f, in, e)
}
