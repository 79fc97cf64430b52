// Package ast defines the resolved abstract syntax tree consumed by the
// drift core.
//
// The front end (tokenizer, parser, resolver, type checker) is an
// external collaborator; what crosses the boundary is a Unit in which
// every identifier reference is bound to its declaration and every call
// site records whether its target is statically known. The async
// analyser annotates call sites and function declarations in place, and
// the code generator consumes the annotated tree.
//
// UnitBuilder provides the binding work of a resolver for embedders that
// construct programs directly, and for tests.
package ast
