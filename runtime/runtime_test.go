package runtime

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/driftlang/drift/analyzer"
	"github.com/driftlang/drift/ast"
	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/config"
	"github.com/driftlang/drift/errors"
)

func build(t *testing.T, u *ast.UnitBuilder) *compiler.Program {
	t.Helper()
	unit := u.Build()
	if err := analyzer.Analyze(unit); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	prog, err := compiler.Compile(unit)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return prog
}

func mustRegister(t *testing.T, r *Runtime, name string, canSuspend bool, fn OpFunc) {
	t.Helper()
	if err := r.Register(name, canSuspend, fn); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
}

// echoPending registers op so it always suspends; the drive loop
// resumes it with its first argument.
func echoPending(t *testing.T, r *Runtime, op string) {
	mustRegister(t, r, op, true, func(ctx context.Context, args []any) Outcome {
		return Pending()
	})
}

// drive resumes every pending operation with resolve(op) until the
// computation completes, returning the final value and suspension count.
func drive(t *testing.T, ctx context.Context, c *Computation, resolve func(*PendingOp) any) (any, int) {
	t.Helper()
	step, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	suspensions := 0
	for !step.Done {
		suspensions++
		step, err = step.Op.Resume(ctx, resolve(step.Op))
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
	}
	return step.Value, suspensions
}

// sumUnit is scenario 1: f(x){ g(x) }; g(x){ asyncOp(x) + asyncOp(x) }.
func sumUnit() *ast.UnitBuilder {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)
	g := u.Func("g", "x")
	g.Return(ast.Add(g.Host("asyncOp", g.Ref("x")), g.Host("asyncOp", g.Ref("x"))))
	f := u.Func("f", "x")
	f.Return(f.Call("g", f.Ref("x")))
	return u
}

func TestRun_SuspendResumeTwice(t *testing.T) {
	ctx := context.Background()
	rt := New(build(t, sumUnit()))
	echoPending(t, rt, "asyncOp")

	c, err := rt.Spawn("f", int64(3))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	v, suspensions := drive(t, ctx, c, func(op *PendingOp) any { return op.Args[0] })
	if v != int64(6) {
		t.Errorf("f(3) = %v, want 6", v)
	}
	if suspensions != 2 {
		t.Errorf("suspensions = %d, want 2", suspensions)
	}
	if c.Status() != StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status())
	}
}

func TestRun_SuspensionTransparency(t *testing.T) {
	ctx := context.Background()

	sync := New(build(t, sumUnit()))
	mustRegister(t, sync, "asyncOp", true, func(ctx context.Context, args []any) Outcome {
		return Immediate(args[0])
	})
	c, err := sync.Spawn("f", int64(3))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	step, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !step.Done {
		t.Fatal("immediate host suspended")
	}

	async := New(build(t, sumUnit()))
	echoPending(t, async, "asyncOp")
	c2, err := async.Spawn("f", int64(3))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	v, _ := drive(t, ctx, c2, func(op *PendingOp) any { return op.Args[0] })

	if step.Value != v {
		t.Errorf("sync result %v != suspended result %v", step.Value, v)
	}
}

// TestRun_RecursiveFib is scenario 2: every addition suspends, nested
// across recursive calls.
func TestRun_RecursiveFib(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncAdd", true)
	fib := u.Func("fib", "n")
	fib.Return(ast.Ternary(
		ast.Le(fib.Ref("n"), ast.Int(2)),
		ast.Int(1),
		fib.Host("asyncAdd",
			fib.Call("fib", ast.Sub(fib.Ref("n"), ast.Int(1))),
			fib.Call("fib", ast.Sub(fib.Ref("n"), ast.Int(2)))),
	))

	ctx := context.Background()
	rt := New(build(t, u))
	echoPending(t, rt, "asyncAdd")

	c, err := rt.Spawn("fib", int64(5))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	v, suspensions := drive(t, ctx, c, func(op *PendingOp) any {
		return op.Args[0].(int64) + op.Args[1].(int64)
	})
	if v != int64(5) {
		t.Errorf("fib(5) = %v, want 5", v)
	}
	if suspensions == 0 {
		t.Error("fib(5) never suspended")
	}
}

func TestRun_ClosureCellSurvivesSuspension(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)

	f := u.Func("f")
	f.Var("n", ast.Int(0))
	f.Var("inc", f.Closure(nil, func(cb *ast.FuncBuilder) {
		cb.Assign("n", ast.Add(cb.Ref("n"), ast.Int(1)))
		cb.Return(cb.Ref("n"))
	}))
	f.Expr(f.CallValue(f.Ref("inc")))
	f.Expr(f.Host("asyncOp", ast.Int(0)))
	f.Return(f.CallValue(f.Ref("inc")))

	ctx := context.Background()
	rt := New(build(t, u))
	echoPending(t, rt, "asyncOp")

	c, err := rt.Spawn("f")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	v, _ := drive(t, ctx, c, func(op *PendingOp) any { return nil })
	if v != int64(2) {
		t.Errorf("f() = %v, want 2 (cell state lost across suspension)", v)
	}
}

func TestRun_ControlFlowAndCollections(t *testing.T) {
	u := ast.NewUnit()

	f := u.Func("f", "n")
	f.Var("total", ast.Int(0))
	f.Var("i", ast.Int(1))
	f.While(ast.Le(f.Ref("i"), f.Ref("n")), func(b *ast.FuncBuilder) {
		b.Assign("total", ast.Add(b.Ref("total"), b.Ref("i")))
		b.Assign("i", ast.Add(b.Ref("i"), ast.Int(1)))
	})
	f.Var("box", ast.Map(ast.Entry("total", f.Ref("total"))))
	f.Var("pair", ast.List(ast.Field(f.Ref("box"), "total"), ast.Int(0)))
	f.AssignIndex(f.Ref("pair"), ast.Int(1), ast.Int(100))
	f.Return(ast.Add(
		ast.Index(f.Ref("pair"), ast.Int(0)),
		ast.Index(f.Ref("pair"), ast.Int(1))))

	ctx := context.Background()
	rt := New(build(t, u))
	c, err := rt.Spawn("f", int64(10))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	step, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !step.Done || step.Value != int64(155) {
		t.Errorf("f(10) = %v (done=%v), want 155", step.Value, step.Done)
	}
}

func TestRun_DefaultParamEvaluatedInCallee(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("loadDefault", true)

	f := u.Func("f", "x")
	f.Default("x", f.Host("loadDefault"))
	f.Return(ast.Mul(f.Ref("x"), ast.Int(2)))
	top := u.Func("top")
	top.Return(ast.Add(top.Call("f"), top.Call("f", ast.Int(10))))

	ctx := context.Background()
	rt := New(build(t, u))
	echoPending(t, rt, "loadDefault")

	c, err := rt.Spawn("top")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	// Only the argument-omitted call evaluates the default, so exactly
	// one suspension.
	v, suspensions := drive(t, ctx, c, func(op *PendingOp) any { return int64(7) })
	if v != int64(34) {
		t.Errorf("top() = %v, want 34", v)
	}
	if suspensions != 1 {
		t.Errorf("suspensions = %d, want 1", suspensions)
	}
}

func TestRun_DoubleResume(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)
	f := u.Func("f")
	f.Return(f.Host("asyncOp"))

	ctx := context.Background()
	rt := New(build(t, u))
	echoPending(t, rt, "asyncOp")

	c, err := rt.Spawn("f")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	step, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	op := step.Op
	final, err := op.Resume(ctx, int64(42))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !final.Done || final.Value != int64(42) {
		t.Fatalf("first resume = %+v, want done with 42", final)
	}

	if _, err := op.Resume(ctx, int64(99)); !stderrors.Is(err,
		&errors.Error{Phase: errors.PhaseProtocol, Kind: errors.KindDoubleResume}) {
		t.Errorf("second resume error = %v, want protocol/double_resume", err)
	}
	if v, _ := c.Result(); v != int64(42) {
		t.Errorf("result after double resume = %v, want 42 undisturbed", v)
	}
}

func TestRun_FailDeliversAtCallSite(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)
	g := u.Func("g")
	g.Return(g.Host("asyncOp"))
	f := u.Func("f")
	f.Return(f.Call("g"))

	ctx := context.Background()
	rt := New(build(t, u))
	echoPending(t, rt, "asyncOp")

	c, err := rt.Spawn("f")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	step, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	hostErr := stderrors.New("remote side went away")
	_, err = step.Op.Fail(ctx, hostErr)
	if err == nil {
		t.Fatal("Fail returned nil error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("Fail error type = %T, want *errors.Error", err)
	}
	if e.Phase != errors.PhaseRuntime || e.Function != "g" || !e.Pos.IsValid() {
		t.Errorf("error context = phase %s function %q pos %v, want runtime error in g with a position",
			e.Phase, e.Function, e.Pos)
	}
	if !stderrors.Is(err, hostErr) {
		t.Error("host cause not preserved in error chain")
	}
	if c.Status() != StatusFailed {
		t.Errorf("status = %s, want failed", c.Status())
	}
}

func TestRun_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		body func(f *ast.FuncBuilder)
		kind errors.Kind
	}{
		{
			name: "division by zero",
			body: func(f *ast.FuncBuilder) {
				f.Return(ast.Bin(ast.OpDiv, ast.Int(1), ast.Int(0)))
			},
			kind: errors.KindDivisionByZero,
		},
		{
			name: "type mismatch",
			body: func(f *ast.FuncBuilder) {
				f.Return(ast.Add(ast.Int(1), ast.Str("x")))
			},
			kind: errors.KindTypeMismatch,
		},
		{
			name: "call non-function",
			body: func(f *ast.FuncBuilder) {
				f.Var("v", ast.Int(5))
				f.Return(f.CallValue(f.Ref("v")))
			},
			kind: errors.KindNotCallable,
		},
		{
			name: "index out of range",
			body: func(f *ast.FuncBuilder) {
				f.Return(ast.Index(ast.List(ast.Int(1)), ast.Int(3)))
			},
			kind: errors.KindInvalidOperation,
		},
		{
			name: "unknown object field",
			body: func(f *ast.FuncBuilder) {
				f.Var("p", ast.Object("Point", ast.FieldVal("x", ast.Int(1))))
				f.Return(ast.Field(f.Ref("p"), "z"))
			},
			kind: errors.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ast.NewUnit()
			tt.body(u.Func("f"))
			rt := New(build(t, u))
			c, err := rt.Spawn("f")
			if err != nil {
				t.Fatalf("Spawn: %v", err)
			}
			_, err = c.Start(context.Background())
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: tt.kind}) {
				t.Errorf("Start error = %v, want runtime/%s", err, tt.kind)
			}
		})
	}
}

func TestRun_StackOverflow(t *testing.T) {
	u := ast.NewUnit()
	loop := u.Func("loop")
	loop.Return(loop.Call("loop"))

	cfg := config.Default()
	cfg.MaxFrames = 16
	rt := New(build(t, u), WithConfig(cfg))

	c, err := rt.Spawn("loop")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	_, err = c.Start(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindStackOverflow}) {
		t.Errorf("Start error = %v, want runtime/stack_overflow", err)
	}
}

func TestRegister_SuspendDeclarationMismatch(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("fastOp", false)
	f := u.Func("f")
	f.Return(f.Host("fastOp"))

	rt := New(build(t, u))
	err := rt.Register("fastOp", true, func(ctx context.Context, args []any) Outcome {
		return Pending()
	})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseProtocol, Kind: errors.KindInvalidInput}) {
		t.Errorf("Register error = %v, want protocol/invalid_input", err)
	}
}

func TestRegister_StrictProtocolRejectsUndeclared(t *testing.T) {
	u := ast.NewUnit()
	u.Func("f").Return(ast.Int(1))

	cfg := config.Default()
	cfg.StrictProtocol = true
	rt := New(build(t, u), WithConfig(cfg))

	err := rt.Register("mystery", false, func(ctx context.Context, args []any) Outcome {
		return Immediate(nil)
	})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseProtocol, Kind: errors.KindNotFound}) {
		t.Errorf("Register error = %v, want protocol/not_found", err)
	}
}

func TestRun_UnregisteredOperation(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)
	f := u.Func("f")
	f.Return(f.Host("asyncOp"))

	rt := New(build(t, u))
	c, err := rt.Spawn("f")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	_, err = c.Start(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindUnknownOperation}) {
		t.Errorf("Start error = %v, want runtime/unknown_operation", err)
	}
}

func TestStart_Twice(t *testing.T) {
	u := ast.NewUnit()
	u.Func("f").Return(ast.Int(1))
	rt := New(build(t, u))

	c, err := rt.Spawn("f")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Start(context.Background()); !stderrors.Is(err,
		&errors.Error{Phase: errors.PhaseProtocol, Kind: errors.KindBadState}) {
		t.Errorf("second Start error = %v, want protocol/bad_state", err)
	}
}

func TestSpawn_Errors(t *testing.T) {
	u := ast.NewUnit()
	u.Func("f", "x").Return(ast.Int(1))
	rt := New(build(t, u))

	if _, err := rt.Spawn("nope"); !stderrors.Is(err,
		&errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindNotFound}) {
		t.Errorf("Spawn(nope) error = %v, want runtime/not_found", err)
	}
	if _, err := rt.Spawn("f", int64(1), int64(2)); !stderrors.Is(err,
		&errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindArity}) {
		t.Errorf("Spawn(f, 1, 2) error = %v, want runtime/arity", err)
	}
}

func TestRun_ConcurrentComputations(t *testing.T) {
	ctx := context.Background()
	rt := New(build(t, sumUnit()))
	echoPending(t, rt, "asyncOp")

	// Two computations suspended at once; resumed interleaved.
	c1, err := rt.Spawn("f", int64(1))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	c2, err := rt.Spawn("f", int64(10))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	s1, err := c1.Start(ctx)
	if err != nil {
		t.Fatalf("Start c1: %v", err)
	}
	s2, err := c2.Start(ctx)
	if err != nil {
		t.Fatalf("Start c2: %v", err)
	}

	for !s1.Done || !s2.Done {
		if !s1.Done {
			if s1, err = s1.Op.Resume(ctx, s1.Op.Args[0]); err != nil {
				t.Fatalf("Resume c1: %v", err)
			}
		}
		if !s2.Done {
			if s2, err = s2.Op.Resume(ctx, s2.Op.Args[0]); err != nil {
				t.Fatalf("Resume c2: %v", err)
			}
		}
	}
	if s1.Value != int64(2) || s2.Value != int64(20) {
		t.Errorf("results = %v, %v, want 2, 20", s1.Value, s2.Value)
	}
}
