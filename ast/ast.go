package ast

// Pos is a source position attached to nodes that can raise errors.
type Pos struct {
	Line int
	Col  int
}

// IsValid reports whether the position refers to real source text.
func (p Pos) IsValid() bool { return p.Line > 0 }

// Node is implemented by all AST nodes.
type Node interface {
	Position() Pos
}

// Expr is implemented by all expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by all statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Unit is one compilation unit: the resolved output of the front end.
//
// Every identifier reference is bound to its declaration, every call site
// records whether its target is statically known, and host operations the
// unit may invoke are declared up front. The async analyser finalizes the
// IsAsync flags before code generation begins.
type Unit struct {
	Funcs []*FuncDecl
	Ops   []*OpDecl
}

// FuncByName returns the declared function with the given name, or nil.
func (u *Unit) FuncByName(name string) *FuncDecl {
	for _, f := range u.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// OpByName returns the declared host operation with the given name, or nil.
func (u *Unit) OpByName(name string) *OpDecl {
	for _, op := range u.Ops {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// OpDecl declares a host-provided operation scripts may invoke.
// CanSuspend marks operations that may complete asynchronously; every
// call site reaching one becomes a suspension point.
type OpDecl struct {
	Name       string
	CanSuspend bool
}

// VarDecl is a resolved variable declaration (local, parameter, or a
// binding captured by a closure).
type VarDecl struct {
	Name string
	At   Pos

	// Func is the single function value this variable is bound to for its
	// whole lifetime, when the resolver proved the binding is effectively
	// final. Nil for mutable bindings and non-function variables.
	Func *FuncDecl

	// Reassigned is set when the variable is written after initialization.
	// A call through a reassigned binding is conservatively possibly-async.
	Reassigned bool

	// Captured is set when some closure closes over this variable; the
	// code generator allocates a shared cell instead of a plain register.
	Captured bool

	// Param is set for parameter declarations.
	Param bool
}

// Param is one function parameter. Default, when non-nil, is evaluated
// inside the callee for call sites that omit the argument.
type Param struct {
	Name    string
	Decl    *VarDecl
	Default Expr
}

// FuncDecl is one declared function or closure.
//
// IsAsync is finalized by the async analyser (fixpoint over the call
// graph) and is immutable once compilation begins.
type FuncDecl struct {
	Name     string
	At       Pos
	Params   []*Param
	Body     *Block
	Captures []*VarDecl // enclosing-scope declarations this closure reads or writes
	Closure  bool
	IsAsync  bool
}

func (f *FuncDecl) Position() Pos { return f.At }

// TargetKind classifies a call site's binding.
type TargetKind int

const (
	// TargetStatic means the callee is a single known declaration whose
	// IsAsync flag decides whether this site can suspend.
	TargetStatic TargetKind = iota
	// TargetDynamic means the callee is computed at run time (variable,
	// passed-in closure, reassigned binding). Conservatively possibly-async.
	TargetDynamic
)

// CallExpr is a call to a script function.
//
// Await is the call-site marker assigned by the async analyser: when set,
// the code generator emits a resume point for this site. A site left
// non-await must be provably synchronous.
type CallExpr struct {
	At     Pos
	Target TargetKind
	Func   *FuncDecl // static target; nil when Target == TargetDynamic
	Callee Expr      // dynamic callee; nil when Target == TargetStatic
	Args   []Expr
	Await  bool
}

// HostCallExpr is a call to a host-provided operation.
type HostCallExpr struct {
	At    Pos
	Op    string
	Args  []Expr
	Await bool // set by the analyser from the operation's CanSuspend flag
}

// VarExpr is a resolved reference to a variable.
type VarExpr struct {
	At   Pos
	Decl *VarDecl

	// BeforeInit is set by the resolver when this reference executes
	// before the variable's initialization in the same scope. Calling
	// through such a reference is an analysis error unless the binding
	// is a forward-declared function.
	BeforeInit bool
}

// FuncRefExpr references a named top-level function as a value.
type FuncRefExpr struct {
	At   Pos
	Func *FuncDecl
}

// ClosureExpr creates a closure value from a nested function declaration.
type ClosureExpr struct {
	At   Pos
	Func *FuncDecl
}

// Literal is a constant: nil, bool, int64, float64, or string.
type Literal struct {
	At  Pos
	Val any
}

// BinOp enumerates binary operators.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binOpNames = [...]string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=", "&&", "||"}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return "?"
}

// UnOp enumerates unary operators.
type UnOp int

const (
	OpNeg UnOp = iota
	OpNot
)

type BinaryExpr struct {
	At    Pos
	Op    BinOp
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	At Pos
	Op UnOp
	X  Expr
}

type TernaryExpr struct {
	At   Pos
	Cond Expr
	Then Expr
	Else Expr
}

type ListExpr struct {
	At    Pos
	Elems []Expr
}

// MapEntry is one key/value pair in a map literal.
type MapEntry struct {
	Key string
	Val Expr
}

type MapExpr struct {
	At      Pos
	Entries []MapEntry
}

type IndexExpr struct {
	At   Pos
	Coll Expr
	Key  Expr
}

type FieldExpr struct {
	At    Pos
	Obj   Expr
	Field string
}

// FieldInit is one field initializer in an object literal.
type FieldInit struct {
	Name string
	Val  Expr
}

// ObjectExpr constructs a class instance.
type ObjectExpr struct {
	At     Pos
	Class  string
	Fields []FieldInit
}

func (e *CallExpr) Position() Pos     { return e.At }
func (e *HostCallExpr) Position() Pos { return e.At }
func (e *VarExpr) Position() Pos      { return e.At }
func (e *FuncRefExpr) Position() Pos  { return e.At }
func (e *ClosureExpr) Position() Pos  { return e.At }
func (e *Literal) Position() Pos      { return e.At }
func (e *BinaryExpr) Position() Pos   { return e.At }
func (e *UnaryExpr) Position() Pos    { return e.At }
func (e *TernaryExpr) Position() Pos  { return e.At }
func (e *ListExpr) Position() Pos     { return e.At }
func (e *MapExpr) Position() Pos      { return e.At }
func (e *IndexExpr) Position() Pos    { return e.At }
func (e *FieldExpr) Position() Pos    { return e.At }
func (e *ObjectExpr) Position() Pos   { return e.At }

func (*CallExpr) exprNode()     {}
func (*HostCallExpr) exprNode() {}
func (*VarExpr) exprNode()      {}
func (*FuncRefExpr) exprNode()  {}
func (*ClosureExpr) exprNode()  {}
func (*Literal) exprNode()      {}
func (*BinaryExpr) exprNode()   {}
func (*UnaryExpr) exprNode()    {}
func (*TernaryExpr) exprNode()  {}
func (*ListExpr) exprNode()     {}
func (*MapExpr) exprNode()      {}
func (*IndexExpr) exprNode()    {}
func (*FieldExpr) exprNode()    {}
func (*ObjectExpr) exprNode()   {}

// Block is a statement sequence.
type Block struct {
	At    Pos
	Stmts []Stmt
}

// VarStmt declares and initializes a local variable.
type VarStmt struct {
	Decl *VarDecl
	Init Expr
}

// AssignStmt writes a new value to a resolved variable.
type AssignStmt struct {
	At    Pos
	Decl  *VarDecl
	Value Expr
}

// IndexAssignStmt writes coll[key] = value.
type IndexAssignStmt struct {
	At    Pos
	Coll  Expr
	Key   Expr
	Value Expr
}

// FieldAssignStmt writes obj.field = value.
type FieldAssignStmt struct {
	At    Pos
	Obj   Expr
	Field string
	Value Expr
}

type ExprStmt struct {
	E Expr
}

type IfStmt struct {
	At   Pos
	Cond Expr
	Then *Block
	Else *Block // may be nil
}

type WhileStmt struct {
	At   Pos
	Cond Expr
	Body *Block
}

type ReturnStmt struct {
	At    Pos
	Value Expr // may be nil
}

func (s *Block) Position() Pos           { return s.At }
func (s *VarStmt) Position() Pos         { return s.Decl.At }
func (s *AssignStmt) Position() Pos      { return s.At }
func (s *IndexAssignStmt) Position() Pos { return s.At }
func (s *FieldAssignStmt) Position() Pos { return s.At }
func (s *ExprStmt) Position() Pos        { return s.E.Position() }
func (s *IfStmt) Position() Pos          { return s.At }
func (s *WhileStmt) Position() Pos       { return s.At }
func (s *ReturnStmt) Position() Pos      { return s.At }

func (*Block) stmtNode()           {}
func (*VarStmt) stmtNode()         {}
func (*AssignStmt) stmtNode()      {}
func (*IndexAssignStmt) stmtNode() {}
func (*FieldAssignStmt) stmtNode() {}
func (*ExprStmt) stmtNode()        {}
func (*IfStmt) stmtNode()          {}
func (*WhileStmt) stmtNode()       {}
func (*ReturnStmt) stmtNode()      {}
