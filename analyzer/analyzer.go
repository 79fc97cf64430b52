package analyzer

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/driftlang/drift/ast"
	"github.com/driftlang/drift/errors"
)

// Analyze assigns a definitive IsAsync flag to every function and closure
// in the unit and marks every call site that may suspend.
//
// A function is async if it directly calls a suspending host operation,
// statically calls another async function, or calls through a binding
// whose target set is open (mutable variable, passed-in closure). The
// flags are computed by fixpoint iteration over the call graph, then
// every call expression gets its Await marker. A call site left unmarked
// is provably synchronous and will never suspend at run time.
//
// Analysis failures (use of an uninitialized function binding, unknown
// host operation) abort compilation; all diagnostics for the unit are
// returned together.
func Analyze(unit *ast.Unit) error {
	a := &analysis{
		unit:  unit,
		graph: make(CallGraph),
		seeds: make(map[*ast.FuncDecl]bool),
	}

	a.collect()
	if a.diags != nil {
		return a.diags
	}

	async := a.graph.TransitiveCallers(a.seeds)
	for _, f := range a.funcs {
		f.IsAsync = async[f]
	}

	for _, f := range a.funcs {
		a.mark(f)
	}

	logger.Debug("analysis complete",
		zap.Int("functions", len(a.funcs)),
		zap.Int("async", len(async)))
	return nil
}

type analysis struct {
	unit  *ast.Unit
	funcs []*ast.FuncDecl
	graph CallGraph
	seeds map[*ast.FuncDecl]bool
	diags error
}

// collect walks every function (including closures discovered in bodies),
// building call graph edges and seeding async-ness from direct suspension
// sources.
func (a *analysis) collect() {
	seen := make(map[*ast.FuncDecl]bool)
	var visit func(f *ast.FuncDecl)
	visit = func(f *ast.FuncDecl) {
		if seen[f] {
			return
		}
		seen[f] = true
		a.funcs = append(a.funcs, f)
		a.graph[f] = nil

		w := walker{
			expr: func(e ast.Expr) {
				switch e := e.(type) {
				case *ast.HostCallExpr:
					op := a.unit.OpByName(e.Op)
					if op == nil {
						a.fail(errors.New(errors.PhaseAnalyze, errors.KindUnknownOperation).
							Function(f.Name).
							Pos(errors.Pos(e.At)).
							Detail("host operation %q not declared", e.Op).
							Build())
						return
					}
					if op.CanSuspend {
						a.seeds[f] = true
					}
				case *ast.CallExpr:
					target, dynamic, err := classify(e)
					switch {
					case err != nil:
						a.fail(err.Function(f.Name).Build())
					case dynamic:
						// Open target set: the join of all possible
						// targets is possibly-async.
						a.seeds[f] = true
					default:
						a.graph.AddEdge(f, target)
					}
				case *ast.ClosureExpr:
					visit(e.Func)
				}
			},
		}
		for _, p := range f.Params {
			if p.Default != nil {
				// Defaults evaluate inside the call, so a suspending
				// default makes the whole function async even for call
				// sites that supply the argument.
				w.walkExpr(p.Default)
			}
		}
		w.walkBlock(f.Body)
	}

	for _, f := range a.unit.Funcs {
		visit(f)
	}
}

// mark sets the Await flag on every call site using the finalized flags.
func (a *analysis) mark(f *ast.FuncDecl) {
	w := walker{
		expr: func(e ast.Expr) {
			switch e := e.(type) {
			case *ast.HostCallExpr:
				if op := a.unit.OpByName(e.Op); op != nil {
					e.Await = op.CanSuspend
				}
			case *ast.CallExpr:
				target, dynamic, _ := classify(e)
				if dynamic {
					e.Await = true
				} else {
					e.Await = target.IsAsync
				}
			}
		},
	}
	for _, p := range f.Params {
		if p.Default != nil {
			w.walkExpr(p.Default)
		}
	}
	w.walkBlock(f.Body)
}

// classify resolves a call site to its target.
//
// Returns the single known target when the binding is provably final, or
// dynamic=true when the target set is open. A call through a binding used
// before initialization with no known function value is an error.
func classify(e *ast.CallExpr) (target *ast.FuncDecl, dynamic bool, err *errors.Builder) {
	if e.Target == ast.TargetStatic {
		return e.Func, false, nil
	}
	if v, ok := e.Callee.(*ast.VarExpr); ok {
		if v.BeforeInit {
			return nil, false, errors.New(errors.PhaseAnalyze, errors.KindForwardReference).
				Pos(errors.Pos(v.At)).
				Detail("variable %q called before initialization", v.Decl.Name)
		}
		if v.Decl.Func != nil && !v.Decl.Reassigned {
			// Effectively final binding with a singleton target:
			// safe to resolve to a concrete sync/async decision.
			return v.Decl.Func, false, nil
		}
	}
	return nil, true, nil
}

func (a *analysis) fail(err error) {
	a.diags = multierr.Append(a.diags, err)
}

// walker applies a callback to every expression in evaluation order.
type walker struct {
	expr func(ast.Expr)
}

func (w *walker) walkBlock(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		w.walkStmt(s)
	}
}

func (w *walker) walkStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		w.walkBlock(s)
	case *ast.VarStmt:
		w.walkExpr(s.Init)
	case *ast.AssignStmt:
		w.walkExpr(s.Value)
	case *ast.IndexAssignStmt:
		w.walkExpr(s.Coll)
		w.walkExpr(s.Key)
		w.walkExpr(s.Value)
	case *ast.FieldAssignStmt:
		w.walkExpr(s.Obj)
		w.walkExpr(s.Value)
	case *ast.ExprStmt:
		w.walkExpr(s.E)
	case *ast.IfStmt:
		w.walkExpr(s.Cond)
		w.walkBlock(s.Then)
		w.walkBlock(s.Else)
	case *ast.WhileStmt:
		w.walkExpr(s.Cond)
		w.walkBlock(s.Body)
	case *ast.ReturnStmt:
		w.walkExpr(s.Value)
	}
}

func (w *walker) walkExpr(e ast.Expr) {
	if e == nil {
		return
	}
	w.expr(e)
	switch e := e.(type) {
	case *ast.CallExpr:
		w.walkExpr(e.Callee)
		for _, arg := range e.Args {
			w.walkExpr(arg)
		}
	case *ast.HostCallExpr:
		for _, arg := range e.Args {
			w.walkExpr(arg)
		}
	case *ast.BinaryExpr:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)
	case *ast.UnaryExpr:
		w.walkExpr(e.X)
	case *ast.TernaryExpr:
		w.walkExpr(e.Cond)
		w.walkExpr(e.Then)
		w.walkExpr(e.Else)
	case *ast.ListExpr:
		for _, el := range e.Elems {
			w.walkExpr(el)
		}
	case *ast.MapExpr:
		for _, entry := range e.Entries {
			w.walkExpr(entry.Val)
		}
	case *ast.IndexExpr:
		w.walkExpr(e.Coll)
		w.walkExpr(e.Key)
	case *ast.FieldExpr:
		w.walkExpr(e.Obj)
	case *ast.ObjectExpr:
		for _, fi := range e.Fields {
			w.walkExpr(fi.Val)
		}
	}
}
