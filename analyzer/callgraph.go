package analyzer

import (
	"github.com/driftlang/drift/ast"
)

// CallGraph maps each function to the functions it may statically invoke.
// Dynamic call sites do not produce edges; they seed async-ness directly
// (the target set is open, so the join of all possible targets applies).
type CallGraph map[*ast.FuncDecl][]*ast.FuncDecl

// AddEdge records that caller may invoke callee.
func (cg CallGraph) AddEdge(caller, callee *ast.FuncDecl) {
	for _, c := range cg[caller] {
		if c == callee {
			return
		}
	}
	cg[caller] = append(cg[caller], callee)
}

// TransitiveCallers finds all functions that transitively call any of the
// seed functions.
//
// Starting from the functions known to suspend directly, this walks the
// call graph backwards until no new caller is marked. Fixpoint iteration
// is required because functions may be mutually recursive or reference
// functions declared later in the unit; a single top-down pass would
// miss flags that depend on later declarations.
func (cg CallGraph) TransitiveCallers(seeds map[*ast.FuncDecl]bool) map[*ast.FuncDecl]bool {
	result := make(map[*ast.FuncDecl]bool, len(seeds))
	for s := range seeds {
		result[s] = true
	}

	changed := true
	for changed {
		changed = false
		for caller, callees := range cg {
			if result[caller] {
				continue // already marked
			}
			for _, callee := range callees {
				if result[callee] {
					result[caller] = true
					changed = true
					break
				}
			}
		}
	}

	return result
}
