package runtime

import (
	"context"

	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/errors"
)

// run executes instructions until the computation completes, fails, or
// suspends. Called with c.mu held and status Running.
func (c *Computation) run(ctx context.Context) (Step, error) {
	steps := 0
	for {
		steps++
		if steps&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return c.terminate(errors.Wrap(errors.PhaseRuntime,
					errors.KindInvalidOperation, err, "execution cancelled"))
			}
		}

		f := c.frames[len(c.frames)-1]
		in := &f.proto.Code[f.pc]

		switch in.Op {
		case compiler.OpConst:
			f.regs[in.Dst] = f.proto.Consts[in.A]
			f.pc++

		case compiler.OpMove:
			f.regs[in.Dst] = f.regs[in.A]
			f.pc++

		case compiler.OpUnary:
			v, e := unaryOp(in.A, f.regs[in.B])
			if e != nil {
				return c.fail(f, in, e)
			}
			f.regs[in.Dst] = v
			f.pc++

		case compiler.OpBinary:
			v, e := binaryOp(in.Sym, f.regs[in.A], f.regs[in.B])
			if e != nil {
				return c.fail(f, in, e)
			}
			f.regs[in.Dst] = v
			f.pc++

		case compiler.OpJump:
			f.pc = in.Target

		case compiler.OpJumpIfFalse:
			if !Truthy(f.regs[in.A]) {
				f.pc = in.Target
			} else {
				f.pc++
			}

		case compiler.OpJumpIfTrue:
			if Truthy(f.regs[in.A]) {
				f.pc = in.Target
			} else {
				f.pc++
			}

		case compiler.OpArgDefault:
			if f.argc > int(in.A) {
				f.pc = in.Target
			} else {
				f.pc++
			}

		case compiler.OpCall:
			callee, err := c.rt.prog.Proto(in.A)
			if err != nil {
				return c.fail(f, in, errors.Wrap(errors.PhaseRuntime,
					errors.KindInvalidOperation, err, "bad call target"))
			}
			if step, done, e := c.push(f, in, callee, nil); done {
				return step, e
			}

		case compiler.OpCallValue:
			cl, ok := f.regs[in.A].(*Closure)
			if !ok {
				return c.fail(f, in, errors.NotCallable(f.proto.Name,
					errors.Pos{Line: in.Pos.Line, Col: in.Pos.Col},
					TypeName(f.regs[in.A])))
			}
			if step, done, e := c.push(f, in, cl.Fn, cl.Env); done {
				return step, e
			}

		case compiler.OpCallHost:
			entry, ok := c.rt.ops[in.Sym]
			if !ok {
				return c.fail(f, in, errors.UnknownOperation(f.proto.Name, in.Sym,
					errors.Pos{Line: in.Pos.Line, Col: in.Pos.Col}))
			}
			args := make([]any, len(in.Args))
			for i, r := range in.Args {
				args[i] = f.regs[r]
			}
			out := entry.fn(ctx, args)
			switch out.kind {
			case outcomeImmediate:
				f.regs[in.Dst] = out.value
				f.pc++
			case outcomeFailed:
				return c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
					Cause(out.err).
					Detail("host operation %q failed", in.Sym).
					Build())
			case outcomePending:
				if !entry.canSuspend {
					return c.fail(f, in, errors.New(errors.PhaseProtocol, errors.KindBadState).
						Detail("synchronous operation %q returned Pending", in.Sym).
						Build())
				}
				return c.suspend(in.Sym, args)
			}

		case compiler.OpMakeClosure:
			callee, err := c.rt.prog.Proto(in.A)
			if err != nil {
				return c.fail(f, in, errors.Wrap(errors.PhaseRuntime,
					errors.KindInvalidOperation, err, "bad closure target"))
			}
			env := make([]*Cell, len(in.Args))
			for i, r := range in.Args {
				cell, ok := f.regs[r].(*Cell)
				if !ok {
					return c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindBadState).
						Detail("capture slot r%d holds %s, not a cell", r, TypeName(f.regs[r])).
						Build())
				}
				env[i] = cell
			}
			f.regs[in.Dst] = &Closure{Fn: callee, Env: env}
			f.pc++

		case compiler.OpLoadCapture:
			f.regs[in.Dst] = f.env[in.A]
			f.pc++

		case compiler.OpCellNew:
			f.regs[in.Dst] = &Cell{V: f.regs[in.A]}
			f.pc++

		case compiler.OpCellGet:
			cell, ok := f.regs[in.A].(*Cell)
			if !ok {
				return c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindBadState).
					Detail("r%d holds %s, not a cell", in.A, TypeName(f.regs[in.A])).
					Build())
			}
			f.regs[in.Dst] = cell.V
			f.pc++

		case compiler.OpCellSet:
			cell, ok := f.regs[in.A].(*Cell)
			if !ok {
				return c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindBadState).
					Detail("r%d holds %s, not a cell", in.A, TypeName(f.regs[in.A])).
					Build())
			}
			cell.V = f.regs[in.B]
			f.pc++

		case compiler.OpMakeList:
			elems := make([]any, len(in.Args))
			for i, r := range in.Args {
				elems[i] = f.regs[r]
			}
			f.regs[in.Dst] = &List{Elems: elems}
			f.pc++

		case compiler.OpMakeMap:
			entries := make(map[string]any, len(in.Args))
			for i, r := range in.Args {
				entries[in.Keys[i]] = f.regs[r]
			}
			f.regs[in.Dst] = &Map{Entries: entries}
			f.pc++

		case compiler.OpMakeObject:
			fields := make(map[string]any, len(in.Args))
			for i, r := range in.Args {
				fields[in.Keys[i]] = f.regs[r]
			}
			f.regs[in.Dst] = &Object{Class: in.Sym, Fields: fields}
			f.pc++

		case compiler.OpIndexGet:
			v, e := indexGet(f.regs[in.A], f.regs[in.B])
			if e != nil {
				return c.fail(f, in, e)
			}
			f.regs[in.Dst] = v
			f.pc++

		case compiler.OpIndexSet:
			if e := indexSet(f.regs[in.A], f.regs[in.B], f.regs[in.Args[0]]); e != nil {
				return c.fail(f, in, e)
			}
			f.pc++

		case compiler.OpFieldGet:
			v, e := fieldGet(f.regs[in.A], in.Sym)
			if e != nil {
				return c.fail(f, in, e)
			}
			f.regs[in.Dst] = v
			f.pc++

		case compiler.OpFieldSet:
			if e := fieldSet(f.regs[in.A], in.Sym, f.regs[in.Args[0]]); e != nil {
				return c.fail(f, in, e)
			}
			f.pc++

		case compiler.OpReturn:
			v := f.regs[in.A]
			c.frames = c.frames[:len(c.frames)-1]
			if len(c.frames) == 0 {
				return c.complete(v)
			}
			parent := c.frames[len(c.frames)-1]
			parent.regs[parent.proto.Code[parent.pc].Dst] = v
			parent.pc++

		default:
			return c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
				Detail("unknown instruction %s", in.Op).
				Build())
		}
	}
}

// push enters a callee frame. The caller's pc stays on the call
// instruction until the callee returns. The third result is true when
// push produced a terminal step (an error).
func (c *Computation) push(f *frame, in *compiler.Instr, callee *compiler.Proto, env []*Cell) (Step, bool, error) {
	if len(c.frames) >= c.rt.cfg.MaxFrames {
		step, err := c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindStackOverflow).
			Detail("frame depth exceeds limit %d", c.rt.cfg.MaxFrames).
			Build())
		return step, true, err
	}
	if len(in.Args) > callee.NumParams {
		step, err := c.fail(f, in, errors.New(errors.PhaseRuntime, errors.KindArity).
			Detail("%d arguments for %d parameters of %s",
				len(in.Args), callee.NumParams, callee.Name).
			Build())
		return step, true, err
	}
	args := make([]any, len(in.Args))
	for i, r := range in.Args {
		args[i] = f.regs[r]
	}
	c.frames = append(c.frames, newFrame(callee, args, env))
	return Step{}, false, nil
}
