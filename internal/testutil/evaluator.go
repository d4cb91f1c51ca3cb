package testutil

import (
	"sync/atomic"

	"github.com/roach88/jacquard/internal/sparse"
)

// ScriptedEvaluator is a deterministic derivative evaluator for tests: a
// fixed sparsity pattern and a pure value function of time, coefficient,
// and coordinate. The same inputs always produce the same block values,
// which is what makes partial-versus-full comparisons exact.
//
// Implements the engine's BlockEvaluator contract.
//
// Thread-safety: ComputeDerivatives may be called concurrently for
// distinct destination buffers; the call counter is atomic.
type ScriptedEvaluator struct {
	pattern []sparse.Coord
	value   func(t, cj float64, c sparse.Coord) float64
	err     error
	calls   atomic.Int64
}

// NewScriptedEvaluator creates an evaluator over the given pattern.
//
// If value is nil, RampValue is used.
func NewScriptedEvaluator(pattern []sparse.Coord, value func(t, cj float64, c sparse.Coord) float64) *ScriptedEvaluator {
	if value == nil {
		value = RampValue
	}
	return &ScriptedEvaluator{pattern: pattern, value: value}
}

// NewFailingEvaluator creates an evaluator whose ComputeDerivatives always
// returns err. Used to exercise abandoned-evaluation paths.
func NewFailingEvaluator(pattern []sparse.Coord, err error) *ScriptedEvaluator {
	return &ScriptedEvaluator{pattern: pattern, value: RampValue, err: err}
}

// RampValue is the default value function: proportional to the row index
// and linear in t and cj, so every recomputation at a new time is
// observable in every entry.
func RampValue(t, cj float64, c sparse.Coord) float64 {
	return float64(c.Row+1)*(t+cj) + float64(c.Col)*0.001
}

// Pattern returns the fixed sparsity pattern.
func (e *ScriptedEvaluator) Pattern() []sparse.Coord {
	return e.pattern
}

// ComputeDerivatives fills dst with one value per pattern entry.
func (e *ScriptedEvaluator) ComputeDerivatives(t, cj float64, dst []float64) error {
	e.calls.Add(1)
	if e.err != nil {
		return e.err
	}
	for i, c := range e.pattern {
		dst[i] = e.value(t, cj, c)
	}
	return nil
}

// SetError makes every later ComputeDerivatives call fail with err, or
// succeed again when err is nil. Set between evaluations, not during one.
func (e *ScriptedEvaluator) SetError(err error) {
	e.err = err
}

// Calls returns how many times ComputeDerivatives ran. Used to verify
// that clean blocks are never recomputed.
func (e *ScriptedEvaluator) Calls() int64 {
	return e.calls.Load()
}

// ResetCalls zeroes the call counter for test reuse.
func (e *ScriptedEvaluator) ResetCalls() {
	e.calls.Store(0)
}
