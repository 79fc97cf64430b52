package compiler

import (
	"fmt"

	"github.com/driftlang/drift/ast"
)

// Op identifies an instruction. The instruction set is private to this
// engine: it exists so that execution state is a register file plus a
// program counter, which is exactly what a continuation frame captures.
type Op uint8

const (
	OpConst       Op = iota // regs[Dst] = Consts[A]
	OpMove                  // regs[Dst] = regs[A]
	OpUnary                 // regs[Dst] = unop(A=operator, regs[B])
	OpBinary                // regs[Dst] = binop(Sym, regs[A], regs[B])
	OpJump                  // pc = Target
	OpJumpIfFalse           // if !regs[A] { pc = Target }
	OpJumpIfTrue            // if regs[A] { pc = Target }
	OpArgDefault            // if argc > A { pc = Target } (skip default eval)
	OpCall                  // regs[Dst] = invoke Protos[A](regs[Args...])
	OpCallValue             // regs[Dst] = invoke closure regs[A](regs[Args...])
	OpCallHost              // regs[Dst] = invoke host op Sym(regs[Args...])
	OpMakeClosure           // regs[Dst] = closure(Protos[A], env=regs[Args...])
	OpLoadCapture           // regs[Dst] = env[A] (a cell)
	OpCellNew               // regs[Dst] = new cell holding regs[A]
	OpCellGet               // regs[Dst] = cell(regs[A]).value
	OpCellSet               // cell(regs[A]).value = regs[B]
	OpMakeList              // regs[Dst] = list(regs[Args...])
	OpMakeMap               // regs[Dst] = map(Keys[i]: regs[Args[i]])
	OpMakeObject            // regs[Dst] = instance Sym{Keys[i]: regs[Args[i]]}
	OpIndexGet              // regs[Dst] = regs[A][regs[B]]
	OpIndexSet              // regs[A][regs[B]] = regs[Args[0]]
	OpFieldGet              // regs[Dst] = regs[A].Sym
	OpFieldSet              // regs[A].Sym = regs[Args[0]]
	OpReturn                // return regs[A]
)

var opNames = [...]string{
	"const", "move", "unary", "binary", "jump", "jump_if_false",
	"jump_if_true", "arg_default", "call", "call_value", "call_host",
	"make_closure", "load_capture", "cell_new", "cell_get", "cell_set",
	"make_list", "make_map", "make_object", "index_get", "index_set",
	"field_get", "field_set", "return",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Unary operator codes carried in Instr.A.
const (
	UnaryNeg uint32 = iota
	UnaryNot
)

// Instr is one instruction. Operand meaning depends on Op; see the
// constant comments above. Pos is set on instructions that can raise so
// runtime errors carry the original source location, including errors
// delivered asynchronously after a resume.
type Instr struct {
	Args   []uint32
	Keys   []string
	Sym    string
	Pos    ast.Pos
	Target int
	Op     Op
	Dst    uint32
	A      uint32
	B      uint32
}

func (in Instr) String() string {
	switch in.Op {
	case OpJump:
		return fmt.Sprintf("jump -> %d", in.Target)
	case OpJumpIfFalse, OpJumpIfTrue, OpArgDefault:
		return fmt.Sprintf("%s r%d -> %d", in.Op, in.A, in.Target)
	case OpCallHost:
		return fmt.Sprintf("call_host r%d = %s%v", in.Dst, in.Sym, in.Args)
	case OpBinary:
		return fmt.Sprintf("binary r%d = r%d %s r%d", in.Dst, in.A, in.Sym, in.B)
	case OpReturn:
		return fmt.Sprintf("return r%d", in.A)
	default:
		return fmt.Sprintf("%s r%d a=%d b=%d %v", in.Op, in.Dst, in.A, in.B, in.Args)
	}
}
