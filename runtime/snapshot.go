package runtime

import (
	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/errors"
)

// Snapshot is the in-memory portable form of a suspended computation:
// the pending operation and the continuation chain, root frame first.
// The checkpoint package serializes it; within one process it can be
// handed straight back to Runtime.Restore.
type Snapshot struct {
	Fingerprint uint64
	Op          string
	Args        []any
	Frames      []FrameState
}

// FrameState is one captured frame. Regs holds only the registers in
// the resume point's capture set; every other slot is dead and restores
// as nil.
type FrameState struct {
	Func string
	PC   int
	Argc int
	Regs map[uint32]any
}

// Snapshot captures the continuation chain of a suspended computation.
// The computation itself is unchanged and can still be resumed.
func (c *Computation) Snapshot() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusSuspended {
		return nil, errors.BadState("snapshot", c.status.String())
	}

	snap := &Snapshot{
		Fingerprint: c.rt.prog.Fingerprint(),
		Op:          c.pending.Op,
		Args:        c.pending.Args,
		Frames:      make([]FrameState, len(c.frames)),
	}
	for i, f := range c.frames {
		mask, _ := f.proto.ResumePoint(f.pc)
		regs := make(map[uint32]any, len(mask))
		for _, r := range mask {
			if f.regs[r] != nil {
				regs[r] = f.regs[r]
			}
		}
		snap.Frames[i] = FrameState{
			Func: f.proto.Name,
			PC:   f.pc,
			Argc: f.argc,
			Regs: regs,
		}
	}
	return snap, nil
}

// Restore rebuilds a suspended computation from a snapshot taken
// against the same compiled program. Validation is complete before any
// state is constructed into the result, so a failed restore leaves no
// partial chain.
func (r *Runtime) Restore(snap *Snapshot) (*Computation, error) {
	if snap.Fingerprint != r.prog.Fingerprint() {
		return nil, errors.ProgramMismatch(
			"snapshot fingerprint %016x, program fingerprint %016x",
			snap.Fingerprint, r.prog.Fingerprint())
	}
	if len(snap.Frames) == 0 {
		return nil, errors.CorruptData("snapshot has no frames")
	}

	frames := make([]*frame, len(snap.Frames))
	for i, fs := range snap.Frames {
		proto := r.prog.ProtoByName(fs.Func)
		if proto == nil {
			return nil, errors.ProgramMismatch("function %q no longer exists", fs.Func)
		}
		mask, ok := proto.ResumePoint(fs.PC)
		if !ok {
			return nil, errors.ProgramMismatch(
				"function %q has no resume point at pc %d", fs.Func, fs.PC)
		}
		in := proto.Code[fs.PC]
		innermost := i == len(snap.Frames)-1
		if innermost {
			if in.Op != compiler.OpCallHost || in.Sym != snap.Op {
				return nil, errors.ProgramMismatch(
					"pc %d of %q is not a call to operation %q", fs.PC, fs.Func, snap.Op)
			}
		} else if in.Op != compiler.OpCall && in.Op != compiler.OpCallValue {
			return nil, errors.ProgramMismatch(
				"pc %d of %q is not a call site", fs.PC, fs.Func)
		}
		if fs.Argc < 0 || fs.Argc > proto.NumParams {
			return nil, errors.CorruptData(
				"frame %d argc %d outside 0..%d", i, fs.Argc, proto.NumParams)
		}

		allowed := make(map[uint32]bool, len(mask))
		for _, reg := range mask {
			allowed[reg] = true
		}
		regs := make([]any, proto.NumRegs)
		for reg, v := range fs.Regs {
			if !allowed[reg] {
				return nil, errors.CorruptData(
					"frame %d register r%d outside the capture set", i, reg)
			}
			regs[reg] = v
		}

		frames[i] = &frame{proto: proto, regs: regs, argc: fs.Argc, pc: fs.PC}
	}

	c := &Computation{rt: r, status: StatusSuspended, frames: frames}
	c.pending = &PendingOp{Op: snap.Op, Args: snap.Args, c: c}
	return c, nil
}

// Pending returns the pending operation of a suspended computation, or
// nil in any other state.
func (c *Computation) Pending() *PendingOp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}
