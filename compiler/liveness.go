// Liveness analysis for continuation frame capture.
//
// A register is live at a suspension point if some path from that point
// reaches a read of the register without passing a write. Only live
// registers are stored into a continuation frame; dead slots are dropped
// at capture and left nil on restore, so capture cost tracks what the
// function still needs rather than its full register file.
//
// Classic backward dataflow: liveIn[pc] = use(pc) ∪ (liveOut[pc] − def(pc)),
// liveOut[pc] = ∪ liveIn[succ(pc)], iterated to fixpoint. Instruction
// lists are small enough that repeated backward sweeps converge quickly
// (loops need one extra sweep per nesting level).
package compiler

// liveOut computes the live-out register set for every instruction.
func liveOut(code []Instr, numRegs int) []*BitSet {
	n := len(code)
	in := make([]*BitSet, n)
	out := make([]*BitSet, n)
	for i := 0; i < n; i++ {
		in[i] = NewBitSet(numRegs)
		out[i] = NewBitSet(numRegs)
	}

	changed := true
	for changed {
		changed = false
		for pc := n - 1; pc >= 0; pc-- {
			for _, succ := range successors(code, pc) {
				if out[pc].Union(in[succ]) {
					changed = true
				}
			}

			next := out[pc].Clone()
			if def, hasDef := instrDef(code[pc]); hasDef {
				next.Clear(def)
			}
			for _, use := range instrUses(code[pc]) {
				next.Set(use)
			}
			if !next.Equal(in[pc]) {
				in[pc] = next
				changed = true
			}
		}
	}

	return out
}

// successors returns the pcs execution may reach after pc.
func successors(code []Instr, pc int) []int {
	in := code[pc]
	switch in.Op {
	case OpReturn:
		return nil
	case OpJump:
		return []int{in.Target}
	case OpJumpIfFalse, OpJumpIfTrue, OpArgDefault:
		return []int{pc + 1, in.Target}
	default:
		if pc+1 < len(code) {
			return []int{pc + 1}
		}
		return nil
	}
}

// instrUses returns the registers an instruction reads.
func instrUses(in Instr) []uint32 {
	switch in.Op {
	case OpMove, OpCellGet, OpCellNew, OpReturn, OpJumpIfFalse, OpJumpIfTrue:
		return []uint32{in.A}
	case OpUnary:
		return []uint32{in.B}
	case OpBinary:
		return []uint32{in.A, in.B}
	case OpCall, OpCallHost, OpMakeClosure, OpMakeList, OpMakeMap, OpMakeObject:
		return in.Args
	case OpCallValue:
		return append([]uint32{in.A}, in.Args...)
	case OpCellSet:
		return []uint32{in.A, in.B}
	case OpIndexGet:
		return []uint32{in.A, in.B}
	case OpIndexSet:
		return append([]uint32{in.A, in.B}, in.Args...)
	case OpFieldGet:
		return []uint32{in.A}
	case OpFieldSet:
		return append([]uint32{in.A}, in.Args...)
	default:
		return nil
	}
}

// instrDef returns the register an instruction writes, if any.
func instrDef(in Instr) (uint32, bool) {
	switch in.Op {
	case OpConst, OpMove, OpUnary, OpBinary, OpCall, OpCallValue, OpCallHost,
		OpMakeClosure, OpLoadCapture, OpCellNew, OpCellGet, OpMakeList,
		OpMakeMap, OpMakeObject, OpIndexGet, OpFieldGet:
		return in.Dst, true
	default:
		return 0, false
	}
}
