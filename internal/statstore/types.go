package statstore

import (
	"time"

	"github.com/roach88/jacquard/internal/profile"
)

// Run is one recorded engine session.
//
// Stats is zero until FinishRun persists the final profiler snapshot;
// FinishedAt stays zero for runs that never finished.
type Run struct {
	ID            string
	SystemName    string
	Subsystems    int
	Dimension     int
	EngineVersion string
	StartedAt     time.Time
	FinishedAt    time.Time
	Stats         profile.Snapshot
}

// Finished reports whether FinishRun was called for this run.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Evaluation is one Jacobian evaluation within a run. Seq is the logical
// position in the run's trace; SimTime is data, never an ordering key.
type Evaluation struct {
	RunID            string
	Seq              int64
	SimTime          float64
	Strategy         string
	DirtyBlocks      int
	StructureChanged bool
	NNZDiff          int
	ChangeRatio      float64
	Elapsed          time.Duration
}

// ModeEvent is one mode-change notification within a run. Components holds
// "kind:name" references to the affected equipment.
type ModeEvent struct {
	RunID      string
	Seq        int64
	SimTime    float64
	Kind       string
	Components []string
}

// StrategyTotals aggregates a run's evaluations by strategy.
type StrategyTotals struct {
	Strategy    string
	Count       int64
	DirtyBlocks int64
	Elapsed     time.Duration
}
