package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseAnalyze  Phase = "analyze"  // async analysis
	PhaseCompile  Phase = "compile"  // resumable code generation
	PhaseRuntime  Phase = "runtime"  // script execution
	PhaseEncode   Phase = "encode"   // checkpoint serialization
	PhaseDecode   Phase = "decode"   // checkpoint restoration
	PhaseProtocol Phase = "protocol" // host integration contract
	PhaseConfig   Phase = "config"   // engine configuration
)

// Kind categorizes the error
type Kind string

const (
	KindForwardReference Kind = "forward_reference"
	KindUnboundVariable  Kind = "unbound_variable"
	KindInvalidOperation Kind = "invalid_operation"
	KindTypeMismatch     Kind = "type_mismatch"
	KindDivisionByZero   Kind = "division_by_zero"
	KindNotCallable      Kind = "not_callable"
	KindArity            Kind = "arity"
	KindStackOverflow    Kind = "stack_overflow"
	KindUnknownOperation Kind = "unknown_operation"
	KindUnencodable      Kind = "unencodable"
	KindCorruptData      Kind = "corrupt_data"
	KindVersionMismatch  Kind = "version_mismatch"
	KindProgramMismatch  Kind = "program_mismatch"
	KindLimitExceeded    Kind = "limit_exceeded"
	KindDoubleResume     Kind = "double_resume"
	KindBadState         Kind = "bad_state"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
)

// Pos is a source location carried by errors raised from script code.
type Pos struct {
	Line int
	Col  int
}

// IsValid reports whether the position refers to real source text.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Error is the structured error type used throughout the engine
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Function string
	Detail   string
	Path     []string
	Pos      Pos
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Function != "" {
		b.WriteString(" in ")
		b.WriteString(e.Function)
	}
	if e.Pos.IsValid() {
		b.WriteString(" at ")
		b.WriteString(e.Pos.String())
	}
	if len(e.Path) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Path, "."))
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the value path (e.g. frame index, field chain)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Function sets the script function the error occurred in
func (b *Builder) Function(name string) *Builder {
	b.err.Function = name
	return b
}

// Pos sets the source location
func (b *Builder) Pos(pos Pos) *Builder {
	b.err.Pos = pos
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ForwardReference creates an analysis error for a binding used before initialization
func ForwardReference(fn, name string, pos Pos) *Error {
	return &Error{
		Phase:    PhaseAnalyze,
		Kind:     KindForwardReference,
		Function: fn,
		Pos:      pos,
		Detail:   fmt.Sprintf("variable %q used before initialization", name),
	}
}

// UnboundVariable creates a compile error for an unresolved binding
func UnboundVariable(fn, name string, pos Pos) *Error {
	return &Error{
		Phase:    PhaseCompile,
		Kind:     KindUnboundVariable,
		Function: fn,
		Pos:      pos,
		Detail:   fmt.Sprintf("variable %q has no resolved declaration", name),
	}
}

// NotCallable creates a runtime error for calling a non-function value
func NotCallable(fn string, pos Pos, got string) *Error {
	return &Error{
		Phase:    PhaseRuntime,
		Kind:     KindNotCallable,
		Function: fn,
		Pos:      pos,
		Detail:   fmt.Sprintf("cannot call value of type %s", got),
	}
}

// TypeMismatch creates a runtime type error
func TypeMismatch(fn string, pos Pos, detail string) *Error {
	return &Error{
		Phase:    PhaseRuntime,
		Kind:     KindTypeMismatch,
		Function: fn,
		Pos:      pos,
		Detail:   detail,
	}
}

// UnknownOperation creates a runtime error for an unregistered host operation
func UnknownOperation(fn, op string, pos Pos) *Error {
	return &Error{
		Phase:    PhaseRuntime,
		Kind:     KindUnknownOperation,
		Function: fn,
		Pos:      pos,
		Detail:   fmt.Sprintf("host operation %q not registered", op),
	}
}

// Unencodable creates an encode error for a value with no serialized form
func Unencodable(path []string, what string) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindUnencodable,
		Path:   path,
		Detail: fmt.Sprintf("%s cannot be checkpointed", what),
	}
}

// CorruptData creates a decode error for malformed checkpoint bytes
func CorruptData(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindCorruptData,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// VersionMismatch creates a decode error for an incompatible format version
func VersionMismatch(got, want string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("checkpoint format %s incompatible with %s", got, want),
	}
}

// ProgramMismatch creates a decode error for a checkpoint taken against a
// different compiled program
func ProgramMismatch(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindProgramMismatch,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// DoubleResume creates a protocol error for resuming a handle twice
func DoubleResume() *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindDoubleResume,
		Detail: "resume called more than once for the same handle",
	}
}

// BadState creates a protocol error for an operation in the wrong computation state
func BadState(op, state string) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindBadState,
		Detail: fmt.Sprintf("cannot %s a computation in state %s", op, state),
	}
}

// LimitExceeded creates an error for a configured limit being hit
func LimitExceeded(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLimitExceeded,
		Detail: fmt.Sprintf("%s exceeds limit %d", what, limit),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
