package runtime

import (
	"fmt"

	"github.com/driftlang/drift/compiler"
	"github.com/driftlang/drift/errors"
)

// Script values are held as any. The concrete types are:
//
//	nil, bool, int64, float64, string   immediate values
//	*List, *Map, *Object                reference values
//	*Closure                            callable with capture environment
//	*Cell                               shared mutable binding slot
//	*HostObj                            opaque host value, never checkpointable
//
// Reference values compare by identity and may form cycles.

// List is a mutable ordered collection.
type List struct {
	Elems []any
}

// Map is a string-keyed mutable collection. A missing key reads as nil.
type Map struct {
	Entries map[string]any
}

// Object is a class instance. Reading an undeclared field is an error,
// unlike Map.
type Object struct {
	Class  string
	Fields map[string]any
}

// Closure is a callable function value. Env holds the cells of captured
// enclosing bindings, in the function's capture order.
type Closure struct {
	Fn  *compiler.Proto
	Env []*Cell
}

// Cell is the shared slot behind a captured mutable variable. Every
// closure over the variable and the declaring frame see the same cell.
type Cell struct {
	V any
}

// HostObj wraps a host-provided value (a connection, a file handle) so
// scripts can pass it around opaquely. It has no serialized form.
type HostObj struct {
	V any
}

// TypeName names a value's script-level type for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case *List:
		return "list"
	case *Map:
		return "map"
	case *Object:
		return "object"
	case *Closure:
		return "function"
	case *Cell:
		return "cell"
	case *HostObj:
		return "hostobj"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Truthy implements condition evaluation: nil, false, zero numbers, and
// the empty string are false; everything else is true.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func isNumber(v any) bool {
	_, ok := asFloat(v)
	return ok
}

func typeErr(detail string, args ...any) *errors.Error {
	return errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
		Detail(detail, args...).
		Build()
}

// binaryOp applies an arithmetic or comparison operator. The caller
// attaches function and position context to any error.
func binaryOp(op string, a, b any) (any, *errors.Error) {
	switch op {
	case "+":
		return add(a, b)
	case "-", "*":
		return arith(op, a, b)
	case "/":
		return divide(a, b)
	case "%":
		return modulo(a, b)
	case "==":
		return looseEqual(a, b), nil
	case "!=":
		return !looseEqual(a, b), nil
	case "<", "<=", ">", ">=":
		return compare(op, a, b)
	default:
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
			Detail("unknown operator %q", op).
			Build()
	}
}

func add(a, b any) (any, *errors.Error) {
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			return x + y, nil
		}
	}
	if isNumber(a) && isNumber(b) {
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		return x + y, nil
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return x + y, nil
		}
	}
	if x, ok := a.(*List); ok {
		if y, ok := b.(*List); ok {
			out := make([]any, 0, len(x.Elems)+len(y.Elems))
			out = append(out, x.Elems...)
			out = append(out, y.Elems...)
			return &List{Elems: out}, nil
		}
	}
	return nil, typeErr("cannot add %s and %s", TypeName(a), TypeName(b))
}

func arith(op string, a, b any) (any, *errors.Error) {
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			if op == "-" {
				return x - y, nil
			}
			return x * y, nil
		}
	}
	if isNumber(a) && isNumber(b) {
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		if op == "-" {
			return x - y, nil
		}
		return x * y, nil
	}
	return nil, typeErr("cannot apply %s to %s and %s", op, TypeName(a), TypeName(b))
}

func divide(a, b any) (any, *errors.Error) {
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			if y == 0 {
				return nil, errors.New(errors.PhaseRuntime, errors.KindDivisionByZero).
					Detail("integer division by zero").
					Build()
			}
			return x / y, nil
		}
	}
	if isNumber(a) && isNumber(b) {
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		return x / y, nil
	}
	return nil, typeErr("cannot divide %s by %s", TypeName(a), TypeName(b))
}

func modulo(a, b any) (any, *errors.Error) {
	x, ok := a.(int64)
	if !ok {
		return nil, typeErr("cannot apply %% to %s", TypeName(a))
	}
	y, ok := b.(int64)
	if !ok {
		return nil, typeErr("cannot apply %% to %s", TypeName(b))
	}
	if y == 0 {
		return nil, errors.New(errors.PhaseRuntime, errors.KindDivisionByZero).
			Detail("modulo by zero").
			Build()
	}
	return x % y, nil
}

// looseEqual compares numbers numerically across int and float;
// reference values compare by identity.
func looseEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		return x == y
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	default:
		return a == b
	}
}

func compare(op string, a, b any) (any, *errors.Error) {
	var cmp int
	switch {
	case isNumber(a) && isNumber(b):
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	default:
		x, xok := a.(string)
		y, yok := b.(string)
		if !xok || !yok {
			return nil, typeErr("cannot compare %s and %s", TypeName(a), TypeName(b))
		}
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func unaryOp(code uint32, v any) (any, *errors.Error) {
	switch code {
	case compiler.UnaryNeg:
		switch v := v.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, typeErr("cannot negate %s", TypeName(v))
	case compiler.UnaryNot:
		return !Truthy(v), nil
	default:
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
			Detail("unknown unary operator %d", code).
			Build()
	}
}

func indexGet(coll, key any) (any, *errors.Error) {
	switch coll := coll.(type) {
	case *List:
		i, ok := key.(int64)
		if !ok {
			return nil, typeErr("list index must be int, got %s", TypeName(key))
		}
		if i < 0 || int(i) >= len(coll.Elems) {
			return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
				Detail("list index %d out of range (len %d)", i, len(coll.Elems)).
				Build()
		}
		return coll.Elems[i], nil
	case *Map:
		k, ok := key.(string)
		if !ok {
			return nil, typeErr("map key must be string, got %s", TypeName(key))
		}
		return coll.Entries[k], nil
	default:
		return nil, typeErr("cannot index %s", TypeName(coll))
	}
}

func indexSet(coll, key, v any) *errors.Error {
	switch coll := coll.(type) {
	case *List:
		i, ok := key.(int64)
		if !ok {
			return typeErr("list index must be int, got %s", TypeName(key))
		}
		if i < 0 || int(i) >= len(coll.Elems) {
			return errors.New(errors.PhaseRuntime, errors.KindInvalidOperation).
				Detail("list index %d out of range (len %d)", i, len(coll.Elems)).
				Build()
		}
		coll.Elems[i] = v
		return nil
	case *Map:
		k, ok := key.(string)
		if !ok {
			return typeErr("map key must be string, got %s", TypeName(key))
		}
		if coll.Entries == nil {
			coll.Entries = map[string]any{}
		}
		coll.Entries[k] = v
		return nil
	default:
		return typeErr("cannot index %s", TypeName(coll))
	}
}

func fieldGet(obj any, name string) (any, *errors.Error) {
	switch obj := obj.(type) {
	case *Object:
		v, ok := obj.Fields[name]
		if !ok {
			return nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
				Detail("no field %q on %s", name, obj.Class).
				Build()
		}
		return v, nil
	case *Map:
		return obj.Entries[name], nil
	default:
		return nil, typeErr("cannot read field %q of %s", name, TypeName(obj))
	}
}

func fieldSet(obj any, name string, v any) *errors.Error {
	switch obj := obj.(type) {
	case *Object:
		if obj.Fields == nil {
			obj.Fields = map[string]any{}
		}
		obj.Fields[name] = v
		return nil
	case *Map:
		if obj.Entries == nil {
			obj.Entries = map[string]any{}
		}
		obj.Entries[name] = v
		return nil
	default:
		return typeErr("cannot write field %q of %s", name, TypeName(obj))
	}
}
