package checkpoint

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/driftlang/drift/analyzer"
	"github.com/driftlang/drift/ast"
	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/errors"
	"github.com/driftlang/drift/runtime"
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

func pendingRuntime(t *testing.T, prog *compiler.Program, ops ...string) *runtime.Runtime {
	t.Helper()
	rt := runtime.New(prog)
	for _, op := range ops {
		if err := rt.Register(op, true, func(ctx context.Context, args []any) runtime.Outcome {
			return runtime.Pending()
		}); err != nil {
			t.Fatalf("Register(%s): %v", op, err)
		}
	}
	return rt
}

func suspend(t *testing.T, rt *runtime.Runtime, fn string, args ...any) *runtime.Computation {
	t.Helper()
	c, err := rt.Spawn(fn, args...)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	step, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if step.Done {
		t.Fatal("computation completed without suspending")
	}
	return c
}

// deepUnit suspends three calls deep: a -> b -> c -> fetch.
func deepUnit() *ast.UnitBuilder {
	u := ast.NewUnit()
	u.DeclareOp("fetch", true)
	c := u.Func("c", "x")
	c.Return(ast.Add(c.Host("fetch", c.Ref("x")), ast.Int(1)))
	b := u.Func("b", "x")
	b.Return(ast.Mul(b.Call("c", b.Ref("x")), ast.Int(2)))
	a := u.Func("a", "x")
	a.Return(ast.Add(a.Call("b", a.Ref("x")), ast.Int(100)))
	return u
}

// TestRoundTrip_DeepChain is the serialize/discard/restore scenario:
// checkpoint three calls deep, restore in a fresh runtime over a fresh
// compilation, resume, and compare with an uninterrupted run.
func TestRoundTrip_DeepChain(t *testing.T) {
	ctx := context.Background()

	rt := pendingRuntime(t, build(t, deepUnit()), "fetch")
	data, err := Encode(suspend(t, rt, "a", int64(5)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	fresh := pendingRuntime(t, build(t, deepUnit()), "fetch")
	restored, err := Restore(fresh, data)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	op := restored.Pending()
	final, err := op.Resume(ctx, op.Args[0])
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	// Reference: the same program with a never-suspending host.
	sync := runtime.New(build(t, deepUnit()))
	if err := sync.Register("fetch", true, func(ctx context.Context, args []any) runtime.Outcome {
		return runtime.Immediate(args[0])
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	c, err := sync.Spawn("a", int64(5))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ref, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !final.Done || final.Value != ref.Value {
		t.Errorf("restored result = %v, direct result = %v", final.Value, ref.Value)
	}
}

func TestRoundTrip_CyclicList(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)
	f := u.Func("f")
	f.Var("l", ast.List(ast.Int(0)))
	f.AssignIndex(f.Ref("l"), ast.Int(0), f.Ref("l"))
	f.Expr(f.Host("asyncOp", ast.Int(0)))
	f.Return(f.Ref("l"))

	rt := pendingRuntime(t, build(t, u), "asyncOp")
	data, err := Encode(suspend(t, rt, "f"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	restored, err := Restore(rt, data)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	final, err := restored.Pending().Resume(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	l, ok := final.Value.(*runtime.List)
	if !ok {
		t.Fatalf("result type = %T, want *runtime.List", final.Value)
	}
	if l.Elems[0] != any(l) {
		t.Error("self-referential list lost its cycle through the round trip")
	}
}

func TestRoundTrip_SharedCell(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)

	f := u.Func("f")
	f.Var("n", ast.Int(0))
	f.Var("inc", f.Closure(nil, func(cb *ast.FuncBuilder) {
		cb.Assign("n", ast.Add(cb.Ref("n"), ast.Int(1)))
		cb.Return(cb.Ref("n"))
	}))
	f.Var("get", f.Closure(nil, func(cb *ast.FuncBuilder) {
		cb.Return(cb.Ref("n"))
	}))
	f.Expr(f.Host("asyncOp", ast.Int(0)))
	f.Expr(f.CallValue(f.Ref("inc")))
	f.Return(f.CallValue(f.Ref("get")))

	rt := pendingRuntime(t, build(t, u), "asyncOp")
	data, err := Encode(suspend(t, rt, "f"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	restored, err := Restore(rt, data)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	final, err := restored.Pending().Resume(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	// inc and get must still share one cell after restoration.
	if final.Value != int64(1) {
		t.Errorf("get() after inc() = %v, want 1 (cell no longer shared)", final.Value)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("asyncOp", true)
	f := u.Func("f")
	f.Var("m", ast.Map(
		ast.Entry("b", ast.Int(2)),
		ast.Entry("a", ast.Int(1)),
		ast.Entry("c", ast.Int(3))))
	f.Expr(f.Host("asyncOp", ast.Int(0)))
	f.Return(ast.Field(f.Ref("m"), "a"))

	rt := pendingRuntime(t, build(t, u), "asyncOp")
	c := suspend(t, rt, "f")

	first, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode again: %v", err)
	}
	if string(first) != string(second) {
		t.Error("two encodings of the same chain differ")
	}
}

func TestEncode_RequiresSuspended(t *testing.T) {
	u := ast.NewUnit()
	u.Func("f").Return(ast.Int(1))
	rt := runtime.New(build(t, u))
	c, err := rt.Spawn("f")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := Encode(c); !stderrors.Is(err,
		&errors.Error{Phase: errors.PhaseProtocol, Kind: errors.KindBadState}) {
		t.Errorf("Encode of ready computation = %v, want protocol/bad_state", err)
	}
}

func TestEncode_HostObjUnencodable(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("open", false)
	u.DeclareOp("asyncOp", true)
	f := u.Func("f")
	f.Var("h", f.Host("open"))
	f.Expr(f.Host("asyncOp", ast.Int(0)))
	f.Return(f.Ref("h"))

	rt := pendingRuntime(t, build(t, u), "asyncOp")
	if err := rt.Register("open", false, func(ctx context.Context, args []any) runtime.Outcome {
		return runtime.Immediate(&runtime.HostObj{V: struct{}{}})
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := Encode(suspend(t, rt, "f"))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindUnencodable}) {
		t.Errorf("Encode error = %v, want encode/unencodable", err)
	}
}

func TestRestore_CorruptAndMismatched(t *testing.T) {
	rt := pendingRuntime(t, build(t, deepUnit()), "fetch")
	data, err := Encode(suspend(t, rt, "a", int64(5)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] ^= 0xff
		if _, err := Restore(rt, bad); !stderrors.Is(err,
			&errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindCorruptData}) {
			t.Errorf("Restore error = %v, want decode/corrupt_data", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, err := Restore(rt, data[:len(data)/2]); !stderrors.Is(err,
			&errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindCorruptData}) {
			t.Errorf("Restore error = %v, want decode/corrupt_data", err)
		}
	})

	t.Run("trailing garbage", func(t *testing.T) {
		bad := append(append([]byte(nil), data...), 0x00)
		if _, err := Restore(rt, bad); !stderrors.Is(err,
			&errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindCorruptData}) {
			t.Errorf("Restore error = %v, want decode/corrupt_data", err)
		}
	})

	t.Run("future major version", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		// Layout: 4 magic bytes, 1-byte length, then "1.0.0".
		bad[5] = '9'
		if _, err := Restore(rt, bad); !stderrors.Is(err,
			&errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindVersionMismatch}) {
			t.Errorf("Restore error = %v, want decode/version_mismatch", err)
		}
	})

	t.Run("different program", func(t *testing.T) {
		u := ast.NewUnit()
		u.Func("other").Return(ast.Int(1))
		other := runtime.New(build(t, u))
		if _, err := Restore(other, data); !stderrors.Is(err,
			&errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindProgramMismatch}) {
			t.Errorf("Restore error = %v, want decode/program_mismatch", err)
		}
	})
}

func TestInspect(t *testing.T) {
	u := ast.NewUnit()
	u.DeclareOp("fetch", true)
	f := u.Func("f", "x")
	f.Var("tags", ast.List(ast.Str("alpha"), ast.Str("beta")))
	f.Var("cb", f.Closure(nil, func(cb *ast.FuncBuilder) {
		cb.Return(cb.Ref("tags"))
	}))
	f.Expr(f.Host("fetch", f.Ref("x")))
	f.Return(ast.List(f.Ref("tags"), f.Ref("cb")))

	prog := build(t, u)
	rt := pendingRuntime(t, prog, "fetch")
	data, err := Encode(suspend(t, rt, "f", int64(9)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	s, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if s.FormatVersion != FormatVersion {
		t.Errorf("FormatVersion = %q, want %q", s.FormatVersion, FormatVersion)
	}
	if s.Fingerprint != prog.Fingerprint() {
		t.Errorf("Fingerprint = %x, want %x", s.Fingerprint, prog.Fingerprint())
	}
	if s.Op != "fetch" {
		t.Errorf("Op = %q, want fetch", s.Op)
	}
	if len(s.Args) != 1 || s.Args[0] != "9" {
		t.Errorf("Args = %v, want [9]", s.Args)
	}
	if len(s.Frames) != 1 || s.Frames[0].Func != "f" {
		t.Fatalf("Frames = %+v, want single frame of f", s.Frames)
	}
	if len(s.Frames[0].Regs) == 0 {
		t.Error("frame has no captured register previews")
	}
}
