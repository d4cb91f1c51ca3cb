// Package profile provides passive instrumentation for the Jacobian
// maintenance engine: factorization and evaluation counters, structure-change
// bookkeeping, a human-readable report, and an optional Prometheus view.
//
// The profiler never participates in any decision. Reads return copies and
// do not reset or perturb counters.
package profile

import (
	"sync"
	"time"
)

// EvalKind labels a Jacobian evaluation by the update strategy that produced it.
type EvalKind string

const (
	EvalFull    EvalKind = "full"
	EvalPartial EvalKind = "partial"
	EvalReuse   EvalKind = "reuse"
)

// Profiler accumulates counts and timings for one engine run.
//
// All methods are safe for concurrent use. The zero value is not usable;
// construct with New.
type Profiler struct {
	mu sync.Mutex

	symbolicFactorizations  int64
	numericalFactorizations int64
	totalSymbolicTime       time.Duration
	totalNumericalTime      time.Duration

	structureChecks       int64
	structureChanges      int64
	falsePositivesAvoided int64
	totalNNZDiff          int64
	totalChangeRatio      float64

	fullUpdates        int64
	partialUpdates     int64
	reuses             int64
	totalJacobianTime  time.Duration
	dirtyBlocksUpdated int64

	divergences int64
	modeEvents  map[string]int64
}

// New creates an empty profiler.
func New() *Profiler {
	return &Profiler{modeEvents: make(map[string]int64)}
}

// RecordSymbolicFactorization records one symbolic (structure-dependent)
// factorization and its wall time.
func (p *Profiler) RecordSymbolicFactorization(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbolicFactorizations++
	p.totalSymbolicTime += d
}

// RecordNumericalFactorization records one numeric-only refactorization and
// its wall time.
func (p *Profiler) RecordNumericalFactorization(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numericalFactorizations++
	p.totalNumericalTime += d
}

// RecordStructureCheck records one detector verdict. A check that reported
// no change despite a nonzero NNZ difference counts as a false positive
// avoided by the tolerance.
func (p *Profiler) RecordStructureCheck(changed bool, nnzDiff int, changeRatio float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.structureChecks++
	p.totalNNZDiff += int64(nnzDiff)
	p.totalChangeRatio += changeRatio
	if changed {
		p.structureChanges++
	} else if nnzDiff > 0 {
		p.falsePositivesAvoided++
	}
}

// RecordEvaluation records one Jacobian evaluation: the strategy that served
// it, its wall time, and how many blocks were recomputed.
func (p *Profiler) RecordEvaluation(kind EvalKind, d time.Duration, dirtyBlocks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case EvalFull:
		p.fullUpdates++
	case EvalPartial:
		p.partialUpdates++
	case EvalReuse:
		p.reuses++
	}
	p.totalJacobianTime += d
	p.dirtyBlocksUpdated += int64(dirtyBlocks)
}

// RecordDivergence records one unconverged nonlinear solve.
func (p *Profiler) RecordDivergence() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.divergences++
}

// RecordModeChange records one mode-change event by kind.
func (p *Profiler) RecordModeChange(kind string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modeEvents[kind]++
}

// Snapshot returns a copy of all counters. Safe to call at any point; the
// profiler state is unchanged.
func (p *Profiler) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	modes := make(map[string]int64, len(p.modeEvents))
	for k, v := range p.modeEvents {
		modes[k] = v
	}
	return Snapshot{
		SymbolicFactorizations:  p.symbolicFactorizations,
		NumericalFactorizations: p.numericalFactorizations,
		TotalSymbolicTime:       p.totalSymbolicTime,
		TotalNumericalTime:      p.totalNumericalTime,
		StructureChecks:         p.structureChecks,
		StructureChanges:        p.structureChanges,
		FalsePositivesAvoided:   p.falsePositivesAvoided,
		TotalNNZDiff:            p.totalNNZDiff,
		TotalChangeRatio:        p.totalChangeRatio,
		FullUpdates:             p.fullUpdates,
		PartialUpdates:          p.partialUpdates,
		Reuses:                  p.reuses,
		TotalJacobianTime:       p.totalJacobianTime,
		DirtyBlocksUpdated:      p.dirtyBlocksUpdated,
		Divergences:             p.divergences,
		ModeEvents:              modes,
	}
}

// Snapshot is a point-in-time copy of the profiler counters plus derived
// statistics.
type Snapshot struct {
	SymbolicFactorizations  int64
	NumericalFactorizations int64
	TotalSymbolicTime       time.Duration
	TotalNumericalTime      time.Duration

	StructureChecks       int64
	StructureChanges      int64
	FalsePositivesAvoided int64
	TotalNNZDiff          int64
	TotalChangeRatio      float64

	FullUpdates        int64
	PartialUpdates     int64
	Reuses             int64
	TotalJacobianTime  time.Duration
	DirtyBlocksUpdated int64

	Divergences int64
	ModeEvents  map[string]int64
}

// Evaluations returns the total number of Jacobian evaluations served.
func (s Snapshot) Evaluations() int64 {
	return s.FullUpdates + s.PartialUpdates + s.Reuses
}

// SymbolicToNumericalRatio returns symbolic count over numeric-only count,
// or 0 when no numeric factorization happened yet.
func (s Snapshot) SymbolicToNumericalRatio() float64 {
	if s.NumericalFactorizations == 0 {
		return 0
	}
	return float64(s.SymbolicFactorizations) / float64(s.NumericalFactorizations)
}

// AvoidanceRate returns the fraction of structure checks where the tolerance
// suppressed a refactorization, in [0, 1].
func (s Snapshot) AvoidanceRate() float64 {
	if s.StructureChecks == 0 {
		return 0
	}
	return float64(s.FalsePositivesAvoided) / float64(s.StructureChecks)
}

// AvgSymbolicTime returns the mean symbolic factorization time.
func (s Snapshot) AvgSymbolicTime() time.Duration {
	if s.SymbolicFactorizations == 0 {
		return 0
	}
	return s.TotalSymbolicTime / time.Duration(s.SymbolicFactorizations)
}

// AvgNumericalTime returns the mean numeric-only factorization time.
func (s Snapshot) AvgNumericalTime() time.Duration {
	if s.NumericalFactorizations == 0 {
		return 0
	}
	return s.TotalNumericalTime / time.Duration(s.NumericalFactorizations)
}

// AvgEvaluationTime returns the mean Jacobian evaluation time.
func (s Snapshot) AvgEvaluationTime() time.Duration {
	n := s.Evaluations()
	if n == 0 {
		return 0
	}
	return s.TotalJacobianTime / time.Duration(n)
}

// AvgNNZDiff returns the mean NNZ difference seen per structure check.
func (s Snapshot) AvgNNZDiff() float64 {
	if s.StructureChecks == 0 {
		return 0
	}
	return float64(s.TotalNNZDiff) / float64(s.StructureChecks)
}

// AvgChangeRatio returns the mean change ratio seen per structure check.
func (s Snapshot) AvgChangeRatio() float64 {
	if s.StructureChecks == 0 {
		return 0
	}
	return s.TotalChangeRatio / float64(s.StructureChecks)
}

// EstimatedTimeSaved returns the symbolic factorization time the tolerance
// window avoided, assuming each avoided refactorization would have cost the
// mean symbolic time.
func (s Snapshot) EstimatedTimeSaved() time.Duration {
	avg := s.AvgSymbolicTime()
	return time.Duration(s.FalsePositivesAvoided) * avg
}
