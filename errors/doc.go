// Package errors provides structured error types for the drift engine.
//
// Errors carry a Phase (which subsystem raised them) and a Kind (what
// went wrong), plus optional script source positions and value paths.
// Use errors.Is with a prototype to match on Phase+Kind:
//
//	if errors.Is(err, &drifterrors.Error{Phase: drifterrors.PhaseProtocol, Kind: drifterrors.KindDoubleResume}) {
//	    // host bug: handle resumed twice
//	}
package errors
