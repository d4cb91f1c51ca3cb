package engine

// Strategy is the three-way outcome of a Jacobian update decision.
// Consumers must match all three values; an unrecognized value is a bug,
// never a silent fallthrough.
type Strategy int

const (
	// StrategyFull recomputes every block.
	StrategyFull Strategy = iota

	// StrategyPartial recomputes only the blocks of marked subsystems.
	StrategyPartial

	// StrategyNone reuses the previous Jacobian verbatim. An
	// approximation, never an exact guarantee; opt-in via
	// Config.EnableReuse.
	StrategyNone
)

// String returns the name used in logs, reports, and metrics.
func (s Strategy) String() string {
	switch s {
	case StrategyFull:
		return "full"
	case StrategyPartial:
		return "partial"
	case StrategyNone:
		return "none"
	default:
		return "unknown"
	}
}

// DecisionContext carries the inputs of one strategy decision. All fields
// are plain values: the decision is a pure function, trivially replayable
// from a log line.
type DecisionContext struct {
	// RequiresFull is the tracker's verdict: sticky flag pending or
	// changed fraction at threshold.
	RequiresFull bool

	// ChangedCount is the size of the propagated change set.
	ChangedCount int

	// HasBaseline is false until the first full evaluation completes.
	HasBaseline bool

	// Elapsed is the simulation time since the last full update.
	Elapsed float64

	// GoodStreak is the current consecutive-convergence streak.
	GoodStreak int

	// StructureChangePending is true when the last evaluation flagged a
	// structural change the factorization has not yet absorbed.
	StructureChangePending bool
}

// UpdateDecider folds the tracker verdict, elapsed time, and convergence
// history into one of the three strategies.
type UpdateDecider struct {
	maxTimeWithoutUpdate float64
	reuseEnabled         bool
	reuseStreak          int
}

// NewUpdateDecider creates a decider with the configured policy knobs.
func NewUpdateDecider(cfg *Config) *UpdateDecider {
	return &UpdateDecider{
		maxTimeWithoutUpdate: cfg.MaxTimeWithoutUpdate,
		reuseEnabled:         cfg.EnableReuse,
		reuseStreak:          cfg.ReuseStreakLength,
	}
}

// Decide picks the update strategy. Rules in order, first match wins:
//
//  1. Tracker demands a full update (sticky flag or fraction) -> FULL.
//  2. The last full update is older than the configured span -> FULL.
//  3. The change set is non-empty -> PARTIAL.
//  4. Reuse enabled, a baseline exists, no structural change pending, and
//     the convergence streak qualifies -> NONE.
//  5. Anything else, including the very first evaluation -> FULL.
//
// Rules 1 and 2 are hard ceilings that pre-empt everything below them.
// Rule 4 is the only path to NONE and deliberately the hardest to reach.
func (d *UpdateDecider) Decide(dc DecisionContext) Strategy {
	switch {
	case dc.RequiresFull:
		return StrategyFull
	case dc.HasBaseline && dc.Elapsed >= d.maxTimeWithoutUpdate:
		return StrategyFull
	case dc.ChangedCount > 0:
		return StrategyPartial
	case d.reuseEnabled && dc.HasBaseline && !dc.StructureChangePending && dc.GoodStreak >= d.reuseStreak:
		return StrategyNone
	default:
		return StrategyFull
	}
}
