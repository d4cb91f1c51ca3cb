package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/jacquard/internal/profile"
	"github.com/roach88/jacquard/internal/sparse"
	"github.com/roach88/jacquard/internal/sysdef"
)

// Engine owns one run's Jacobian maintenance state: the dependency graph,
// the change tracker, the block partition, the structure detector, and the
// policy components. Construction validates the topology; afterwards the
// graph and the partition never change (Rebuild replaces them wholesale).
//
// Thread-safety model:
//   - NotifyModeChange, ForceFullUpdate: single event-notification path
//   - EvalJacobian: called after the notification path has quiesced
//   - RecordConvergence, factorization records: same solver goroutine
//
// The engine itself never retries anything: an evaluation either completes
// fully or the enclosing step is abandoned and retried by the outer
// integrator.
type Engine struct {
	system     *sysdef.System
	graph      *DependencyGraph
	tracker    *ChangeTracker
	blocks     *BlockJacobian
	detector   *sparse.Detector
	decider    *UpdateDecider
	controller *FactorizationController
	profiler   *profile.Profiler
	cfg        Config

	// hasBaseline flips on the first completed full evaluation; until
	// then the elapsed-time ceiling and the reuse path stay inert.
	hasBaseline  bool
	lastFullTime float64

	// lastStructureChanged mirrors the most recent detector verdict.
	// structurePending stays set from a flagged change until a symbolic
	// factorization absorbs it; the reuse path is closed meanwhile.
	lastStructureChanged bool
	structurePending     bool
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithProfiler shares an externally owned profiler, e.g. one also scraped
// by a metrics collector.
func WithProfiler(p *profile.Profiler) Option {
	return func(e *Engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// New creates an engine for the given system. Every subsystem needs a
// registered evaluator; the configuration is validated once and immutable
// afterward. Construction errors are fatal, never retried.
func New(sys *sysdef.System, evals map[sysdef.SubsystemID]BlockEvaluator, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	comps, err := sys.ComponentIndex()
	if err != nil {
		return nil, &ConsistencyError{Code: ErrCodeDuplicateComponent, Message: err.Error()}
	}
	graph, err := NewDependencyGraph(sys)
	if err != nil {
		return nil, err
	}
	blocks, err := NewBlockJacobian(sys, evals, &cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		system:  sys,
		graph:   graph,
		tracker: NewChangeTracker(graph, comps, &cfg),
		blocks:  blocks,
		detector: sparse.NewDetector(sparse.Tolerances{
			Relative:    cfg.StructureRelTol,
			AbsoluteNNZ: cfg.StructureAbsNNZ,
		}),
		decider:    NewUpdateDecider(&cfg),
		controller: NewFactorizationController(&cfg),
		profiler:   profile.New(),
		cfg:        cfg,
	}

	for _, opt := range opts {
		opt(e)
	}

	slog.Info("jacobian engine initialized",
		"system", sys.Name,
		"subsystems", sys.Size(),
		"dim", sys.Dim(),
		"nnz", blocks.Global().NNZ(),
	)
	return e, nil
}

// NotifyModeChange handles one discrete-event notification from the outer
// solver: component references are mapped to subsystems, marked, and
// propagated across the dependency graph. A JUpdate event additionally
// arms the sticky force-full flag.
//
// An unknown component reference is a fatal consistency error; components
// already marked before the failing one stay marked.
func (e *Engine) NotifyModeChange(mc ModeChange) error {
	e.profiler.RecordModeChange(mc.Kind.String())

	if mc.Kind == ModeNone {
		slog.Debug("mode change carries no invalidation",
			"time", mc.Time,
			"components", len(mc.Components),
		)
		return nil
	}

	for _, ref := range mc.Components {
		if err := e.tracker.MarkComponentChanged(ref.Kind, ref.Name); err != nil {
			return fmt.Errorf("mode change at t=%g: %w", mc.Time, err)
		}
	}
	e.tracker.PropagateDependencies()

	if mc.Kind == ModeAlgebraicJUpdate {
		e.tracker.ForceFullUpdate()
	}

	slog.Info("mode change",
		"kind", mc.Kind.String(),
		"time", mc.Time,
		"components", len(mc.Components),
		"changed_subsystems", e.tracker.ChangedCount(),
	)
	return nil
}

// MarkSubsystemChanged marks one subsystem directly, bypassing the
// component table. The mark is propagated on the next NotifyModeChange or
// by an explicit PropagateDependencies.
func (e *Engine) MarkSubsystemChanged(id sysdef.SubsystemID) error {
	return e.tracker.MarkSubsystemChanged(id)
}

// PropagateDependencies closes the current change set over the graph.
func (e *Engine) PropagateDependencies() {
	e.tracker.PropagateDependencies()
}

// ForceFullUpdate arms the sticky flag: the very next EvalJacobian
// decision returns FULL regardless of other inputs.
func (e *Engine) ForceFullUpdate() {
	e.tracker.ForceFullUpdate()
}

// EvalResult describes one completed Jacobian evaluation.
type EvalResult struct {
	// Strategy is the decision that produced this evaluation.
	Strategy Strategy

	// StructureChanged tells the external factorization whether its
	// symbolic analysis is stale. Always false for a reused Jacobian.
	StructureChanged bool

	// DirtyBlocks is the number of blocks recomputed.
	DirtyBlocks int

	// NNZDiff and ChangeRatio describe the pattern delta measured by the
	// structure detector.
	NNZDiff     int
	ChangeRatio float64

	// Elapsed is the wall-clock cost of the evaluation.
	Elapsed time.Duration
}

// EvalJacobian produces the global Jacobian for time t and coefficient cj.
// It decides the update strategy, recomputes and merges exactly the dirty
// blocks (or everything, or nothing), and reports whether the sparsity
// structure changed. The returned matrix is the engine-owned shared
// instance, valid until the next evaluation or rebuild.
//
// The change set is consumed: after a completed evaluation the tracker is
// reset. On error nothing is merged, marks and dirty flags survive, and
// the outer integrator owns the retry.
func (e *Engine) EvalJacobian(ctx context.Context, t, cj float64) (*sparse.Matrix, EvalResult, error) {
	start := time.Now()

	dc := DecisionContext{
		RequiresFull:           e.tracker.RequiresFullUpdate(),
		ChangedCount:           e.tracker.ChangedCount(),
		HasBaseline:            e.hasBaseline,
		Elapsed:                t - e.lastFullTime,
		GoodStreak:             e.controller.Streak(),
		StructureChangePending: e.structurePending,
	}
	strategy := e.decider.Decide(dc)
	forced := e.tracker.ConsumeForce()

	res := EvalResult{Strategy: strategy}

	switch strategy {
	case StrategyNone:
		e.tracker.Reset()
		res.Elapsed = time.Since(start)
		e.profiler.RecordEvaluation(profile.EvalReuse, res.Elapsed, 0)
		slog.Debug("jacobian reused",
			"t", t,
			"streak", dc.GoodStreak,
		)
		return e.blocks.Global(), res, nil

	case StrategyFull:
		e.blocks.MarkAllDirty()

	case StrategyPartial:
		if err := e.blocks.MarkDirtyBlocks(e.tracker.Changed()); err != nil {
			return nil, EvalResult{}, err
		}

	default:
		return nil, EvalResult{}, fmt.Errorf("unknown update strategy: %d", strategy)
	}

	dirty := e.blocks.DirtyBlockCount()
	if err := e.blocks.UpdateDirtyBlocks(ctx, t, cj); err != nil {
		return nil, EvalResult{}, fmt.Errorf("update dirty blocks at t=%g: %w", t, err)
	}
	e.blocks.MergeIntoGlobal()

	changed := e.detector.Check(e.blocks.Global())
	nnzDiff, ratio := e.detector.LastDelta()
	e.lastStructureChanged = changed
	if changed {
		e.structurePending = true
	}
	e.profiler.RecordStructureCheck(changed, nnzDiff, ratio)

	e.tracker.Reset()
	if strategy == StrategyFull {
		e.hasBaseline = true
		e.lastFullTime = t
	}

	res.StructureChanged = changed
	res.DirtyBlocks = dirty
	res.NNZDiff = nnzDiff
	res.ChangeRatio = ratio
	res.Elapsed = time.Since(start)

	kind := profile.EvalFull
	if strategy == StrategyPartial {
		kind = profile.EvalPartial
	}
	e.profiler.RecordEvaluation(kind, res.Elapsed, dirty)

	slog.Debug("jacobian evaluated",
		"t", t,
		"strategy", strategy.String(),
		"dirty_blocks", dirty,
		"structure_changed", changed,
		"forced", forced,
	)
	return e.blocks.Global(), res, nil
}

// RecordConvergence folds the outcome of the enclosing nonlinear solve
// into the factorization history. Divergence is not an error of this
// subsystem: it is recorded, the next factorization is forced, and all
// recovery stays with the outer integrator.
func (e *Engine) RecordConvergence(converged bool, iterations int) {
	e.controller.UpdateHistory(converged, iterations)
	if !converged {
		e.profiler.RecordDivergence()
		slog.Warn("nonlinear solve diverged",
			"iterations", iterations,
			"avg_rate", e.controller.AvgConvergenceRate(),
		)
	}
}

// ShouldForceFactorization reports whether convergence history alone
// demands a symbolic refactorization, independent of structural change.
func (e *Engine) ShouldForceFactorization() bool {
	return e.controller.ShouldForceFactorization()
}

// RecordSymbolicFactorization records a performed symbolic factorization,
// restarting the controller's step interval and absorbing any pending
// structure change.
func (e *Engine) RecordSymbolicFactorization(d time.Duration) {
	e.profiler.RecordSymbolicFactorization(d)
	e.controller.NoteFactorization()
	e.structurePending = false
}

// RecordNumericalFactorization records a values-only refactorization.
func (e *Engine) RecordNumericalFactorization(d time.Duration) {
	e.profiler.RecordNumericalFactorization(d)
}

// Rebuild replaces the graph, tracker, and block partition after a
// structural topology change (e.g. a switch reconfiguring connectivity).
// Incremental updates cannot express such a change; the next evaluation
// after a rebuild is a full one, and the structure detector then tells
// the factorization that its symbolic analysis is stale.
//
// Convergence history, the detector snapshot, and the profiler survive
// the rebuild. On error the engine keeps its previous state.
func (e *Engine) Rebuild(sys *sysdef.System, evals map[sysdef.SubsystemID]BlockEvaluator) error {
	comps, err := sys.ComponentIndex()
	if err != nil {
		return &ConsistencyError{Code: ErrCodeDuplicateComponent, Message: err.Error()}
	}
	graph, err := NewDependencyGraph(sys)
	if err != nil {
		return err
	}
	blocks, err := NewBlockJacobian(sys, evals, &e.cfg)
	if err != nil {
		return err
	}

	e.system = sys
	e.graph = graph
	e.tracker = NewChangeTracker(graph, comps, &e.cfg)
	e.blocks = blocks
	e.hasBaseline = false

	slog.Info("partition rebuilt",
		"system", sys.Name,
		"subsystems", sys.Size(),
		"dim", sys.Dim(),
		"nnz", blocks.Global().NNZ(),
	)
	return nil
}

// LastStructureChanged reports the most recent detector verdict.
func (e *Engine) LastStructureChanged() bool {
	return e.lastStructureChanged
}

// StructurePending reports whether a flagged structure change is still
// waiting for a symbolic factorization.
func (e *Engine) StructurePending() bool {
	return e.structurePending
}

// Tracker returns the change tracker. Used for testing and diagnostics.
func (e *Engine) Tracker() *ChangeTracker {
	return e.tracker
}

// Controller returns the factorization controller. Used for testing and
// diagnostics.
func (e *Engine) Controller() *FactorizationController {
	return e.controller
}

// Blocks returns the block partition. Used for testing and diagnostics.
func (e *Engine) Blocks() *BlockJacobian {
	return e.blocks
}

// Graph returns the dependency graph.
func (e *Engine) Graph() *DependencyGraph {
	return e.graph
}

// Profiler returns the engine's profiler for reports and metrics.
func (e *Engine) Profiler() *profile.Profiler {
	return e.profiler
}

// Config returns a copy of the immutable configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// System returns the static system description.
func (e *Engine) System() *sysdef.System {
	return e.system
}
