package compiler

import (
	"fmt"

	"github.com/driftlang/drift/ast"
	"github.com/driftlang/drift/errors"
)

// Compile generates resumable code for every function in an analysed
// unit. The unit's IsAsync flags and call-site markers must be finalized
// before compilation (the drift facade runs the analyser first).
//
// Each function becomes a Proto whose execution state is a register file
// and a program counter. Every call site that may suspend gets a resume
// point: the pc plus the set of registers live across the call. That is
// all a continuation frame stores, and restoring the registers and
// re-entering at the stored pc with the call result in the destination
// register is indistinguishable from the call having returned directly.
func Compile(unit *ast.Unit) (*Program, error) {
	prog := &Program{Ops: make(map[string]bool, len(unit.Ops))}
	for _, op := range unit.Ops {
		prog.Ops[op.Name] = op.CanSuspend
	}

	uc := &unitCompiler{prog: prog, ids: make(map[*ast.FuncDecl]uint32)}
	for _, f := range unit.Funcs {
		uc.idOf(f)
	}
	// Closures referenced from bodies join the queue as they are found.
	for i := 0; i < len(uc.queue); i++ {
		if err := uc.compileFunc(uc.queue[i]); err != nil {
			return nil, err
		}
	}

	prog.seal()
	return prog, nil
}

type unitCompiler struct {
	prog  *Program
	ids   map[*ast.FuncDecl]uint32
	queue []*ast.FuncDecl
}

// idOf assigns (or returns) the program-wide id for a function and
// queues it for compilation.
func (u *unitCompiler) idOf(f *ast.FuncDecl) uint32 {
	if id, ok := u.ids[f]; ok {
		return id
	}
	id := uint32(len(u.prog.Protos))
	u.ids[f] = id
	u.prog.Protos = append(u.prog.Protos, &Proto{Name: f.Name, ID: id})
	u.queue = append(u.queue, f)
	return id
}

func (u *unitCompiler) compileFunc(f *ast.FuncDecl) error {
	c := &fnCompiler{
		u:      u,
		fn:     f,
		regs:   make(map[*ast.VarDecl]uint32),
		consts: make(map[string]uint32),
	}

	// Parameters occupy the first registers; omitted arguments arrive nil.
	for _, p := range f.Params {
		c.regs[p.Decl] = c.allocNamed()
	}

	c.prologue()
	c.block(f.Body)

	// Implicit nil return; unreachable when every path already returns.
	t := c.mark()
	r := c.alloc()
	c.emit(Instr{Op: OpConst, Dst: r, A: c.constIdx(nil)})
	c.emit(Instr{Op: OpReturn, A: r})
	c.release(t)

	if c.err != nil {
		return c.err
	}
	for pc, in := range c.code {
		switch in.Op {
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpArgDefault:
			if in.Target < 0 || in.Target > len(c.code) {
				return errors.New(errors.PhaseCompile, errors.KindInvalidInput).
					Function(f.Name).
					Detail("unpatched jump at pc %d", pc).
					Build()
			}
		}
	}

	proto := u.prog.Protos[u.ids[f]]
	proto.NumParams = len(f.Params)
	proto.NumRegs = int(c.maxReg)
	proto.NumCaptures = len(f.Captures)
	proto.IsAsync = f.IsAsync
	proto.Code = c.code
	proto.Consts = c.constPool

	// Resume-point table: live-out minus the destination register, which
	// the resumed value overwrites.
	outs := liveOut(c.code, proto.NumRegs)
	proto.Resume = make(map[int][]uint32, len(c.awaits))
	for _, pc := range c.awaits {
		set := outs[pc].Clone()
		set.Clear(c.code[pc].Dst)
		proto.Resume[pc] = set.ToSlice()
	}

	return nil
}

type fnCompiler struct {
	u         *unitCompiler
	fn        *ast.FuncDecl
	regs      map[*ast.VarDecl]uint32
	consts    map[string]uint32
	constPool []any
	code      []Instr
	awaits    []int
	nextReg   uint32
	maxReg    uint32
	err       error
}

// allocNamed permanently assigns the next register (parameters, locals).
func (c *fnCompiler) allocNamed() uint32 {
	r := c.nextReg
	c.nextReg++
	if c.nextReg > c.maxReg {
		c.maxReg = c.nextReg
	}
	return r
}

// mark/alloc/release implement stack-disciplined temporaries above the
// named registers.
func (c *fnCompiler) mark() uint32 { return c.nextReg }

func (c *fnCompiler) alloc() uint32 { return c.allocNamed() }

func (c *fnCompiler) release(m uint32) { c.nextReg = m }

func (c *fnCompiler) regOf(d *ast.VarDecl) uint32 {
	if r, ok := c.regs[d]; ok {
		return r
	}
	r := c.allocNamed()
	c.regs[d] = r
	return r
}

func (c *fnCompiler) emit(in Instr) int {
	c.code = append(c.code, in)
	return len(c.code) - 1
}

func (c *fnCompiler) patch(pc int) {
	c.code[pc].Target = len(c.code)
}

func (c *fnCompiler) constIdx(v any) uint32 {
	key := fmt.Sprintf("%T:%v", v, v)
	if idx, ok := c.consts[key]; ok {
		return idx
	}
	idx := uint32(len(c.constPool))
	c.consts[key] = idx
	c.constPool = append(c.constPool, v)
	return idx
}

func (c *fnCompiler) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// prologue loads capture cells, wraps captured parameters in cells, and
// evaluates parameter defaults for omitted arguments.
func (c *fnCompiler) prologue() {
	for i, cap := range c.fn.Captures {
		c.emit(Instr{Op: OpLoadCapture, Dst: c.regOf(cap), A: uint32(i)})
	}
	for _, p := range c.fn.Params {
		if p.Decl.Captured {
			r := c.regs[p.Decl]
			c.emit(Instr{Op: OpCellNew, Dst: r, A: r})
		}
	}
	for i, p := range c.fn.Params {
		if p.Default == nil {
			continue
		}
		skip := c.emit(Instr{Op: OpArgDefault, A: uint32(i), Target: -1})
		c.store(p.Decl, p.Default)
		c.patch(skip)
	}
}

// store evaluates an expression into a variable, through its cell when
// the variable is captured.
func (c *fnCompiler) store(d *ast.VarDecl, e ast.Expr) {
	r := c.regOf(d)
	if d.Captured {
		m := c.mark()
		t := c.alloc()
		c.exprInto(e, t)
		c.emit(Instr{Op: OpCellSet, A: r, B: t})
		c.release(m)
		return
	}
	c.exprInto(e, r)
}

func (c *fnCompiler) block(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		c.stmt(s)
	}
}

func (c *fnCompiler) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		c.block(s)
	case *ast.VarStmt:
		r := c.regOf(s.Decl)
		if s.Decl.Captured {
			m := c.mark()
			t := c.alloc()
			c.exprInto(s.Init, t)
			c.emit(Instr{Op: OpCellNew, Dst: r, A: t})
			c.release(m)
		} else {
			c.exprInto(s.Init, r)
		}
	case *ast.AssignStmt:
		c.store(s.Decl, s.Value)
	case *ast.IndexAssignStmt:
		m := c.mark()
		coll := c.alloc()
		c.exprInto(s.Coll, coll)
		key := c.alloc()
		c.exprInto(s.Key, key)
		val := c.alloc()
		c.exprInto(s.Value, val)
		c.emit(Instr{Op: OpIndexSet, A: coll, B: key, Args: []uint32{val}, Pos: s.At})
		c.release(m)
	case *ast.FieldAssignStmt:
		m := c.mark()
		obj := c.alloc()
		c.exprInto(s.Obj, obj)
		val := c.alloc()
		c.exprInto(s.Value, val)
		c.emit(Instr{Op: OpFieldSet, A: obj, Sym: s.Field, Args: []uint32{val}, Pos: s.At})
		c.release(m)
	case *ast.ExprStmt:
		m := c.mark()
		t := c.alloc()
		c.exprInto(s.E, t)
		c.release(m)
	case *ast.IfStmt:
		m := c.mark()
		t := c.alloc()
		c.exprInto(s.Cond, t)
		jf := c.emit(Instr{Op: OpJumpIfFalse, A: t, Target: -1})
		c.release(m)
		c.block(s.Then)
		if s.Else != nil {
			j := c.emit(Instr{Op: OpJump, Target: -1})
			c.patch(jf)
			c.block(s.Else)
			c.patch(j)
		} else {
			c.patch(jf)
		}
	case *ast.WhileStmt:
		start := len(c.code)
		m := c.mark()
		t := c.alloc()
		c.exprInto(s.Cond, t)
		jf := c.emit(Instr{Op: OpJumpIfFalse, A: t, Target: -1})
		c.release(m)
		c.block(s.Body)
		c.emit(Instr{Op: OpJump, Target: start})
		c.patch(jf)
	case *ast.ReturnStmt:
		m := c.mark()
		t := c.alloc()
		if s.Value != nil {
			c.exprInto(s.Value, t)
		} else {
			c.emit(Instr{Op: OpConst, Dst: t, A: c.constIdx(nil)})
		}
		c.emit(Instr{Op: OpReturn, A: t})
		c.release(m)
	default:
		c.fail(errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			Function(c.fn.Name).
			Detail("unsupported statement %T", s).
			Build())
	}
}

func (c *fnCompiler) exprInto(e ast.Expr, dst uint32) {
	switch e := e.(type) {
	case *ast.Literal:
		c.emit(Instr{Op: OpConst, Dst: dst, A: c.constIdx(e.Val)})
	case *ast.VarExpr:
		r := c.regOf(e.Decl)
		if e.Decl.Captured {
			c.emit(Instr{Op: OpCellGet, Dst: dst, A: r})
		} else {
			c.emit(Instr{Op: OpMove, Dst: dst, A: r})
		}
	case *ast.FuncRefExpr:
		c.emit(Instr{Op: OpMakeClosure, Dst: dst, A: c.u.idOf(e.Func)})
	case *ast.ClosureExpr:
		id := c.u.idOf(e.Func)
		env := make([]uint32, len(e.Func.Captures))
		for i, cap := range e.Func.Captures {
			env[i] = c.regOf(cap) // holds the capture's cell
		}
		c.emit(Instr{Op: OpMakeClosure, Dst: dst, A: id, Args: env})
	case *ast.UnaryExpr:
		m := c.mark()
		t := c.alloc()
		c.exprInto(e.X, t)
		code := UnaryNeg
		if e.Op == ast.OpNot {
			code = UnaryNot
		}
		c.emit(Instr{Op: OpUnary, Dst: dst, A: code, B: t, Pos: e.At})
		c.release(m)
	case *ast.BinaryExpr:
		c.binary(e, dst)
	case *ast.TernaryExpr:
		m := c.mark()
		t := c.alloc()
		c.exprInto(e.Cond, t)
		jf := c.emit(Instr{Op: OpJumpIfFalse, A: t, Target: -1})
		c.release(m)
		c.exprInto(e.Then, dst)
		j := c.emit(Instr{Op: OpJump, Target: -1})
		c.patch(jf)
		c.exprInto(e.Else, dst)
		c.patch(j)
	case *ast.CallExpr:
		c.call(e, dst)
	case *ast.HostCallExpr:
		m := c.mark()
		args := c.evalArgs(e.Args)
		pc := c.emit(Instr{Op: OpCallHost, Dst: dst, Sym: e.Op, Args: args, Pos: e.At})
		if e.Await {
			c.awaits = append(c.awaits, pc)
		}
		c.release(m)
	case *ast.ListExpr:
		m := c.mark()
		args := c.evalArgs(e.Elems)
		c.emit(Instr{Op: OpMakeList, Dst: dst, Args: args})
		c.release(m)
	case *ast.MapExpr:
		m := c.mark()
		keys := make([]string, len(e.Entries))
		vals := make([]ast.Expr, len(e.Entries))
		for i, entry := range e.Entries {
			keys[i] = entry.Key
			vals[i] = entry.Val
		}
		args := c.evalArgs(vals)
		c.emit(Instr{Op: OpMakeMap, Dst: dst, Keys: keys, Args: args})
		c.release(m)
	case *ast.ObjectExpr:
		m := c.mark()
		keys := make([]string, len(e.Fields))
		vals := make([]ast.Expr, len(e.Fields))
		for i, fi := range e.Fields {
			keys[i] = fi.Name
			vals[i] = fi.Val
		}
		args := c.evalArgs(vals)
		c.emit(Instr{Op: OpMakeObject, Dst: dst, Sym: e.Class, Keys: keys, Args: args})
		c.release(m)
	case *ast.IndexExpr:
		m := c.mark()
		coll := c.alloc()
		c.exprInto(e.Coll, coll)
		key := c.alloc()
		c.exprInto(e.Key, key)
		c.emit(Instr{Op: OpIndexGet, Dst: dst, A: coll, B: key, Pos: e.At})
		c.release(m)
	case *ast.FieldExpr:
		m := c.mark()
		obj := c.alloc()
		c.exprInto(e.Obj, obj)
		c.emit(Instr{Op: OpFieldGet, Dst: dst, A: obj, Sym: e.Field, Pos: e.At})
		c.release(m)
	default:
		c.fail(errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			Function(c.fn.Name).
			Detail("unsupported expression %T", e).
			Build())
	}
}

func (c *fnCompiler) binary(e *ast.BinaryExpr, dst uint32) {
	switch e.Op {
	case ast.OpAnd:
		c.exprInto(e.Left, dst)
		j := c.emit(Instr{Op: OpJumpIfFalse, A: dst, Target: -1})
		c.exprInto(e.Right, dst)
		c.patch(j)
	case ast.OpOr:
		c.exprInto(e.Left, dst)
		j := c.emit(Instr{Op: OpJumpIfTrue, A: dst, Target: -1})
		c.exprInto(e.Right, dst)
		c.patch(j)
	default:
		m := c.mark()
		a := c.alloc()
		c.exprInto(e.Left, a)
		b := c.alloc()
		c.exprInto(e.Right, b)
		c.emit(Instr{Op: OpBinary, Dst: dst, A: a, B: b, Sym: e.Op.String(), Pos: e.At})
		c.release(m)
	}
}

func (c *fnCompiler) call(e *ast.CallExpr, dst uint32) {
	m := c.mark()
	var pc int
	if e.Target == ast.TargetStatic {
		args := c.evalArgs(e.Args)
		pc = c.emit(Instr{Op: OpCall, Dst: dst, A: c.u.idOf(e.Func), Args: args, Pos: e.At})
	} else {
		// Dynamic sites always call through the value: even a
		// singleton-final closure binding carries its capture
		// environment in the closure value. Only the sync/async
		// decision (Await) was resolved statically.
		callee := c.alloc()
		c.exprInto(e.Callee, callee)
		args := c.evalArgs(e.Args)
		pc = c.emit(Instr{Op: OpCallValue, Dst: dst, A: callee, Args: args, Pos: e.At})
	}
	if e.Await {
		c.awaits = append(c.awaits, pc)
	}
	c.release(m)
}

// evalArgs evaluates expressions into consecutive temporaries; the caller
// owns the surrounding mark/release.
func (c *fnCompiler) evalArgs(exprs []ast.Expr) []uint32 {
	regs := make([]uint32, len(exprs))
	for i, e := range exprs {
		regs[i] = c.alloc()
		c.exprInto(e, regs[i])
	}
	return regs
}
