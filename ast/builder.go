package ast

import "fmt"

// UnitBuilder constructs resolved units programmatically. It is a small
// stand-in for the front end: embedders and tests describe functions and
// the builder performs the binding work a resolver would (scope lookup,
// capture lists, effectively-final analysis), producing the same resolved
// AST the core expects from a real front end.
type UnitBuilder struct {
	unit     *Unit
	builders []*FuncBuilder
	nextLine int
}

// NewUnit creates an empty unit builder.
func NewUnit() *UnitBuilder {
	return &UnitBuilder{unit: &Unit{}, nextLine: 1}
}

// DeclareOp registers a host operation scripts in this unit may call.
func (ub *UnitBuilder) DeclareOp(name string, canSuspend bool) *UnitBuilder {
	ub.unit.Ops = append(ub.unit.Ops, &OpDecl{Name: name, CanSuspend: canSuspend})
	return ub
}

// Func declares a top-level function with the given parameter names and
// returns a builder for its body. Declare mutually recursive functions
// before writing the bodies that reference them.
func (ub *UnitBuilder) Func(name string, params ...string) *FuncBuilder {
	fd := &FuncDecl{Name: name, At: ub.pos()}
	fb := &FuncBuilder{unit: ub, fn: fd}
	fb.pushScope()
	for _, p := range params {
		decl := &VarDecl{Name: p, At: ub.pos(), Param: true}
		fd.Params = append(fd.Params, &Param{Name: p, Decl: decl})
		fb.bind(p, decl)
	}
	fd.Body = &Block{At: fd.At}
	fb.blocks = []*Block{fd.Body}
	ub.unit.Funcs = append(ub.unit.Funcs, fd)
	ub.builders = append(ub.builders, fb)
	return fb
}

// Build finalizes and returns the unit.
func (ub *UnitBuilder) Build() *Unit {
	return ub.unit
}

func (ub *UnitBuilder) pos() Pos {
	p := Pos{Line: ub.nextLine, Col: 1}
	ub.nextLine++
	return p
}

// FuncBuilder builds one function body, resolving names against its own
// scope and, for closures, the enclosing builders.
type FuncBuilder struct {
	unit   *UnitBuilder
	fn     *FuncDecl
	parent *FuncBuilder
	scopes []map[string]*VarDecl
	blocks []*Block
}

// Decl returns the function declaration under construction.
func (fb *FuncBuilder) Decl() *FuncDecl { return fb.fn }

func (fb *FuncBuilder) pushScope() {
	fb.scopes = append(fb.scopes, map[string]*VarDecl{})
}

func (fb *FuncBuilder) popScope() {
	fb.scopes = fb.scopes[:len(fb.scopes)-1]
}

func (fb *FuncBuilder) bind(name string, decl *VarDecl) {
	fb.scopes[len(fb.scopes)-1][name] = decl
}

func (fb *FuncBuilder) lookupLocal(name string) *VarDecl {
	for i := len(fb.scopes) - 1; i >= 0; i-- {
		if d, ok := fb.scopes[i][name]; ok {
			return d
		}
	}
	return nil
}

// resolve finds name in this function or an enclosing one, recording a
// capture on every closure boundary it crosses.
func (fb *FuncBuilder) resolve(name string) *VarDecl {
	if d := fb.lookupLocal(name); d != nil {
		return d
	}
	if fb.parent == nil {
		return nil
	}
	d := fb.parent.resolve(name)
	if d == nil {
		return nil
	}
	d.Captured = true
	fb.capture(d)
	return d
}

func (fb *FuncBuilder) capture(d *VarDecl) {
	for _, c := range fb.fn.Captures {
		if c == d {
			return
		}
	}
	fb.fn.Captures = append(fb.fn.Captures, d)
}

func (fb *FuncBuilder) emit(s Stmt) {
	blk := fb.blocks[len(fb.blocks)-1]
	blk.Stmts = append(blk.Stmts, s)
}

func (fb *FuncBuilder) pos() Pos { return fb.unit.pos() }

// Default attaches a default-value expression to the named parameter.
func (fb *FuncBuilder) Default(param string, expr Expr) *FuncBuilder {
	for _, p := range fb.fn.Params {
		if p.Name == param {
			p.Default = expr
			return fb
		}
	}
	panic(fmt.Sprintf("ast: no parameter %q on %s", param, fb.fn.Name))
}

// Ref resolves a variable reference.
func (fb *FuncBuilder) Ref(name string) Expr {
	d := fb.resolve(name)
	if d == nil {
		panic(fmt.Sprintf("ast: unresolved variable %q in %s", name, fb.fn.Name))
	}
	return &VarExpr{At: fb.pos(), Decl: d}
}

// RefBeforeInit resolves a reference the resolver determined executes
// before the variable's initialization.
func (fb *FuncBuilder) RefBeforeInit(name string) Expr {
	d := fb.resolve(name)
	if d == nil {
		panic(fmt.Sprintf("ast: unresolved variable %q in %s", name, fb.fn.Name))
	}
	return &VarExpr{At: fb.pos(), Decl: d, BeforeInit: true}
}

// FuncRef references a declared top-level function as a value.
func (fb *FuncBuilder) FuncRef(name string) Expr {
	fd := fb.unit.unit.FuncByName(name)
	if fd == nil {
		panic(fmt.Sprintf("ast: unknown function %q", name))
	}
	return &FuncRefExpr{At: fb.pos(), Func: fd}
}

// Call builds a statically bound call to a declared top-level function.
func (fb *FuncBuilder) Call(name string, args ...Expr) Expr {
	fd := fb.unit.unit.FuncByName(name)
	if fd == nil {
		panic(fmt.Sprintf("ast: unknown function %q", name))
	}
	return &CallExpr{At: fb.pos(), Target: TargetStatic, Func: fd, Args: args}
}

// CallValue builds a dynamically bound call through a computed callee.
func (fb *FuncBuilder) CallValue(callee Expr, args ...Expr) Expr {
	return &CallExpr{At: fb.pos(), Target: TargetDynamic, Callee: callee, Args: args}
}

// Host builds a call to a declared host operation.
func (fb *FuncBuilder) Host(op string, args ...Expr) Expr {
	if fb.unit.unit.OpByName(op) == nil {
		panic(fmt.Sprintf("ast: unknown host operation %q", op))
	}
	return &HostCallExpr{At: fb.pos(), Op: op, Args: args}
}

// Closure declares a nested closure; build populates its body.
func (fb *FuncBuilder) Closure(params []string, build func(*FuncBuilder)) Expr {
	fd := &FuncDecl{
		Name:    fmt.Sprintf("%s$closure%d", fb.fn.Name, fb.unit.nextLine),
		At:      fb.pos(),
		Closure: true,
	}
	cb := &FuncBuilder{unit: fb.unit, fn: fd, parent: fb}
	cb.pushScope()
	for _, p := range params {
		decl := &VarDecl{Name: p, At: fb.pos(), Param: true}
		fd.Params = append(fd.Params, &Param{Name: p, Decl: decl})
		cb.bind(p, decl)
	}
	fd.Body = &Block{At: fd.At}
	cb.blocks = []*Block{fd.Body}
	build(cb)
	fb.unit.unit.Funcs = append(fb.unit.unit.Funcs, fd)
	return &ClosureExpr{At: fd.At, Func: fd}
}

// Var declares and initializes a local. Bindings initialized with a
// function value and never reassigned stay effectively final.
func (fb *FuncBuilder) Var(name string, init Expr) *VarDecl {
	decl := &VarDecl{Name: name, At: fb.pos()}
	switch e := init.(type) {
	case *ClosureExpr:
		decl.Func = e.Func
	case *FuncRefExpr:
		decl.Func = e.Func
	}
	fb.bind(name, decl)
	fb.emit(&VarStmt{Decl: decl, Init: init})
	return decl
}

// Predeclare adds a binding to scope without emitting an initializer;
// pair with Init. References between the two are before-init.
func (fb *FuncBuilder) Predeclare(name string) *VarDecl {
	decl := &VarDecl{Name: name, At: fb.pos()}
	fb.bind(name, decl)
	return decl
}

// Init emits the first initialization of a predeclared binding.
func (fb *FuncBuilder) Init(name string, init Expr) {
	d := fb.resolve(name)
	if d == nil {
		panic(fmt.Sprintf("ast: unresolved variable %q in %s", name, fb.fn.Name))
	}
	switch e := init.(type) {
	case *ClosureExpr:
		if !d.Reassigned {
			d.Func = e.Func
		}
	case *FuncRefExpr:
		if !d.Reassigned {
			d.Func = e.Func
		}
	}
	fb.emit(&VarStmt{Decl: d, Init: init})
}

// Assign reassigns a variable, demoting any effectively-final binding.
func (fb *FuncBuilder) Assign(name string, value Expr) {
	d := fb.resolve(name)
	if d == nil {
		panic(fmt.Sprintf("ast: unresolved variable %q in %s", name, fb.fn.Name))
	}
	d.Reassigned = true
	d.Func = nil
	fb.emit(&AssignStmt{At: fb.pos(), Decl: d, Value: value})
}

// AssignIndex emits coll[key] = value.
func (fb *FuncBuilder) AssignIndex(coll, key, value Expr) {
	fb.emit(&IndexAssignStmt{At: fb.pos(), Coll: coll, Key: key, Value: value})
}

// AssignField emits obj.field = value.
func (fb *FuncBuilder) AssignField(obj Expr, field string, value Expr) {
	fb.emit(&FieldAssignStmt{At: fb.pos(), Obj: obj, Field: field, Value: value})
}

// Expr emits an expression statement.
func (fb *FuncBuilder) Expr(e Expr) {
	fb.emit(&ExprStmt{E: e})
}

// If emits a conditional; elseBody may be nil.
func (fb *FuncBuilder) If(cond Expr, thenBody func(*FuncBuilder), elseBody func(*FuncBuilder)) {
	s := &IfStmt{At: fb.pos(), Cond: cond, Then: &Block{At: fb.pos()}}
	fb.buildBlock(s.Then, thenBody)
	if elseBody != nil {
		s.Else = &Block{At: fb.pos()}
		fb.buildBlock(s.Else, elseBody)
	}
	fb.emit(s)
}

// While emits a loop.
func (fb *FuncBuilder) While(cond Expr, body func(*FuncBuilder)) {
	s := &WhileStmt{At: fb.pos(), Cond: cond, Body: &Block{At: fb.pos()}}
	fb.buildBlock(s.Body, body)
	fb.emit(s)
}

// Return emits a return; value may be nil.
func (fb *FuncBuilder) Return(value Expr) {
	fb.emit(&ReturnStmt{At: fb.pos(), Value: value})
}

func (fb *FuncBuilder) buildBlock(blk *Block, build func(*FuncBuilder)) {
	fb.pushScope()
	fb.blocks = append(fb.blocks, blk)
	build(fb)
	fb.blocks = fb.blocks[:len(fb.blocks)-1]
	fb.popScope()
}

// Expression constructors shared by builders and tests.

// Nil returns a nil literal.
func Nil() Expr { return &Literal{} }

// Int returns an integer literal.
func Int(v int64) Expr { return &Literal{Val: v} }

// Float returns a float literal.
func Float(v float64) Expr { return &Literal{Val: v} }

// Str returns a string literal.
func Str(v string) Expr { return &Literal{Val: v} }

// Bool returns a boolean literal.
func Bool(v bool) Expr { return &Literal{Val: v} }

// Bin returns a binary expression.
func Bin(op BinOp, l, r Expr) Expr {
	return &BinaryExpr{At: l.Position(), Op: op, Left: l, Right: r}
}

func Add(l, r Expr) Expr { return Bin(OpAdd, l, r) }
func Sub(l, r Expr) Expr { return Bin(OpSub, l, r) }
func Mul(l, r Expr) Expr { return Bin(OpMul, l, r) }
func Eq(l, r Expr) Expr  { return Bin(OpEq, l, r) }
func Lt(l, r Expr) Expr  { return Bin(OpLt, l, r) }
func Le(l, r Expr) Expr  { return Bin(OpLe, l, r) }

// Neg returns arithmetic negation.
func Neg(x Expr) Expr { return &UnaryExpr{At: x.Position(), Op: OpNeg, X: x} }

// Not returns boolean negation.
func Not(x Expr) Expr { return &UnaryExpr{At: x.Position(), Op: OpNot, X: x} }

// Ternary returns cond ? then : else.
func Ternary(cond, then, els Expr) Expr {
	return &TernaryExpr{At: cond.Position(), Cond: cond, Then: then, Else: els}
}

// List returns a list literal.
func List(elems ...Expr) Expr { return &ListExpr{Elems: elems} }

// Map returns a map literal.
func Map(entries ...MapEntry) Expr { return &MapExpr{Entries: entries} }

// Entry builds one map literal entry.
func Entry(key string, val Expr) MapEntry { return MapEntry{Key: key, Val: val} }

// Index returns coll[key].
func Index(coll, key Expr) Expr { return &IndexExpr{At: coll.Position(), Coll: coll, Key: key} }

// Field returns obj.field.
func Field(obj Expr, name string) Expr {
	return &FieldExpr{At: obj.Position(), Obj: obj, Field: name}
}

// Object returns a class instance literal.
func Object(class string, fields ...FieldInit) Expr {
	return &ObjectExpr{Class: class, Fields: fields}
}

// FieldVal builds one object literal field.
func FieldVal(name string, val Expr) FieldInit { return FieldInit{Name: name, Val: val} }
