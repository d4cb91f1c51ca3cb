package engine

// Defaults for the tuning surface. Read once at construction, immutable
// afterward.
const (
	// DefaultStructureRelTol is the relative NNZ-change tolerance below
	// which a pattern size difference is treated as noise.
	DefaultStructureRelTol = 0.01

	// DefaultStructureAbsNNZ is the absolute NNZ-change tolerance paired
	// with DefaultStructureRelTol.
	DefaultStructureAbsNNZ = 10

	// DefaultFullUpdateFraction is the changed-subsystem fraction at which
	// a partial update stops paying for itself.
	DefaultFullUpdateFraction = 0.30

	// DefaultMaxTimeWithoutUpdate is the simulation-time span after which
	// a full update is forced regardless of change volume.
	DefaultMaxTimeWithoutUpdate = 5.0

	// DefaultGoodStreakLength is the consecutive-convergence streak after
	// which factorization is forced only on the long interval.
	DefaultGoodStreakLength = 5

	// DefaultReuseStreakLength is the streak required before the previous
	// Jacobian may be reused verbatim.
	DefaultReuseStreakLength = 3

	// DefaultMaxStepsWithoutFactorization is the step interval for forced
	// factorization under a good convergence streak.
	DefaultMaxStepsWithoutFactorization = 15

	// DefaultPoorConvergenceRate is the moving-average convergence rate
	// below which factorization frequency doubles.
	DefaultPoorConvergenceRate = 0.1

	// DefaultPropagationDepth is the number of dependency hops covered by
	// one propagation pass. One hop is the soundness floor.
	DefaultPropagationDepth = 1

	// DefaultParallelThreshold is the dirty-block count at which block
	// recomputation fans out across workers.
	DefaultParallelThreshold = 32
)

// Config is the engine tuning surface. Validated once in New; a
// ConfigurationError is fatal and never retried.
type Config struct {
	// StructureRelTol is the relative tolerance on NNZ change. A pattern
	// whose nonzero count jitters below both tolerances keeps its symbolic
	// factorization as long as the overlapping indices are identical.
	StructureRelTol float64

	// StructureAbsNNZ is the absolute tolerance on NNZ change.
	StructureAbsNNZ int

	// FullUpdateFraction is the changed fraction at or above which the
	// decider switches PARTIAL to FULL.
	FullUpdateFraction float64

	// MaxTimeWithoutUpdate bounds the simulation time between full
	// updates, in the integrator's time units.
	MaxTimeWithoutUpdate float64

	// GoodStreakLength is the convergence streak treated as "good" by the
	// factorization controller.
	GoodStreakLength int

	// ReuseStreakLength is the convergence streak required for the NONE
	// strategy. Only consulted when EnableReuse is set.
	ReuseStreakLength int

	// MaxStepsWithoutFactorization is the forced-factorization interval
	// under a good streak. Halved under poor convergence.
	MaxStepsWithoutFactorization int

	// PoorConvergenceRate is the moving-average threshold below which
	// convergence counts as poor.
	PoorConvergenceRate float64

	// PropagationDepth is the number of hops one propagation pass covers.
	// Negative means full transitive closure. Zero is invalid: the one-hop
	// neighborhood is the correctness floor.
	PropagationDepth int

	// EnableReuse opts in to the NONE strategy (reuse the previous
	// Jacobian verbatim). Disabled by default: reuse is an approximation,
	// never an exact guarantee.
	EnableReuse bool

	// ParallelThreshold is the dirty-block count at which recomputation
	// fans out. Zero keeps recomputation serial regardless of count.
	ParallelThreshold int

	// MaxWorkers caps the recomputation fan-out. Zero means one worker
	// per CPU.
	MaxWorkers int
}

// DefaultConfig returns the documented default tuning values.
func DefaultConfig() Config {
	return Config{
		StructureRelTol:              DefaultStructureRelTol,
		StructureAbsNNZ:              DefaultStructureAbsNNZ,
		FullUpdateFraction:           DefaultFullUpdateFraction,
		MaxTimeWithoutUpdate:         DefaultMaxTimeWithoutUpdate,
		GoodStreakLength:             DefaultGoodStreakLength,
		ReuseStreakLength:            DefaultReuseStreakLength,
		MaxStepsWithoutFactorization: DefaultMaxStepsWithoutFactorization,
		PoorConvergenceRate:          DefaultPoorConvergenceRate,
		PropagationDepth:             DefaultPropagationDepth,
		ParallelThreshold:            DefaultParallelThreshold,
	}
}

// Validate checks every tuning value and reports the first violation.
func (c *Config) Validate() error {
	if c.StructureRelTol < 0 {
		return newConfigError("StructureRelTol", "must not be negative", c.StructureRelTol)
	}
	if c.StructureAbsNNZ < 0 {
		return newConfigError("StructureAbsNNZ", "must not be negative", c.StructureAbsNNZ)
	}
	if c.FullUpdateFraction <= 0 || c.FullUpdateFraction > 1 {
		return newConfigError("FullUpdateFraction", "must be in (0, 1]", c.FullUpdateFraction)
	}
	if c.MaxTimeWithoutUpdate <= 0 {
		return newConfigError("MaxTimeWithoutUpdate", "must be positive", c.MaxTimeWithoutUpdate)
	}
	if c.GoodStreakLength < 1 {
		return newConfigError("GoodStreakLength", "must be at least 1", c.GoodStreakLength)
	}
	if c.ReuseStreakLength < 1 {
		return newConfigError("ReuseStreakLength", "must be at least 1", c.ReuseStreakLength)
	}
	if c.MaxStepsWithoutFactorization < 1 {
		return newConfigError("MaxStepsWithoutFactorization", "must be at least 1", c.MaxStepsWithoutFactorization)
	}
	if c.PoorConvergenceRate < 0 {
		return newConfigError("PoorConvergenceRate", "must not be negative", c.PoorConvergenceRate)
	}
	if c.PropagationDepth == 0 {
		return newConfigError("PropagationDepth", "must cover at least one hop (negative for full closure)", c.PropagationDepth)
	}
	if c.ParallelThreshold < 0 {
		return newConfigError("ParallelThreshold", "must not be negative", c.ParallelThreshold)
	}
	if c.MaxWorkers < 0 {
		return newConfigError("MaxWorkers", "must not be negative", c.MaxWorkers)
	}
	return nil
}
