package engine

import "github.com/roach88/jacquard/internal/sparse"

// BlockEvaluator computes the local Jacobian entries for one subsystem.
// Implemented by the physical component models (generators, lines,
// transformers) outside this package, and by scripted evaluators in tests.
//
// The sparsity pattern is declared once and fixed for the lifetime of the
// run: ComputeDerivatives refreshes values, never structure. Evaluators may
// be called concurrently for distinct blocks and must not share mutable
// state across calls.
type BlockEvaluator interface {
	// Pattern returns the block's nonzero coordinates in the global index
	// space. Every row must lie inside the owning subsystem's row range.
	// The returned slice is read during construction only.
	Pattern() []sparse.Coord

	// ComputeDerivatives writes one value per Pattern entry into dst,
	// in pattern order, for simulation time t and Jacobian coefficient cj.
	// len(dst) equals len(Pattern()).
	ComputeDerivatives(t, cj float64, dst []float64) error
}
