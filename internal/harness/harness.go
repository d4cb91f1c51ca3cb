package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/jacquard/internal/engine"
	"github.com/roach88/jacquard/internal/sparse"
	"github.com/roach88/jacquard/internal/statstore"
	"github.com/roach88/jacquard/internal/sysdef"
	"github.com/roach88/jacquard/internal/testutil"
)

// runner holds the per-run state: the engine under test, the system it
// was built over, and the optional persistence sink.
type runner struct {
	eng    *engine.Engine
	sys    *sysdef.System
	result *Result

	store *statstore.Store
	runID string
}

// Run executes a scenario against a fresh engine. Engine errors abort the
// run; expectation mismatches are collected in the result instead.
//
// Each run builds its own engine over scripted evaluators, so scenarios
// are isolated and traces are reproducible.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	r, err := newRunner(scenario)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, scenario)
}

// RunWithStore executes a scenario and persists the run, its evaluations,
// and its mode events to the store. The run ID comes from the scenario,
// or from gen when the scenario leaves it empty; a nil gen means fresh
// UUIDv7 IDs.
//
// The returned run row carries the final statistics.
func RunWithStore(ctx context.Context, scenario *Scenario, store *statstore.Store, gen RunIDGenerator) (*Result, statstore.Run, error) {
	r, err := newRunner(scenario)
	if err != nil {
		return nil, statstore.Run{}, err
	}

	if gen == nil {
		gen = UUIDGenerator{}
	}
	id := scenario.RunID
	if id == "" {
		id = gen.NewRunID()
	}
	run, err := store.CreateRun(ctx, statstore.Run{
		ID:            id,
		SystemName:    r.sys.Name,
		Subsystems:    r.sys.Size(),
		Dimension:     r.sys.Dim(),
		EngineVersion: sysdef.EngineVersion,
	})
	if err != nil {
		return nil, statstore.Run{}, fmt.Errorf("create run: %w", err)
	}
	r.store = store
	r.runID = run.ID

	result, err := r.run(ctx, scenario)
	if err != nil {
		return nil, run, err
	}
	if err := store.FinishRun(ctx, run.ID, result.Stats); err != nil {
		return nil, run, fmt.Errorf("finish run: %w", err)
	}
	run, err = store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, statstore.Run{}, fmt.Errorf("reread run: %w", err)
	}
	return result, run, nil
}

// newRunner builds the engine for a validated scenario.
func newRunner(scenario *Scenario) (*runner, error) {
	sys, err := scenario.System.Build()
	if err != nil {
		return nil, fmt.Errorf("build system: %w", err)
	}

	cfg := engine.DefaultConfig()
	if scenario.Tuning != nil {
		scenario.Tuning.Apply(&cfg)
	}

	eng, err := engine.New(sys, buildEvaluators(&scenario.System, sys), cfg)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return &runner{eng: eng, sys: sys, result: NewResult()}, nil
}

// buildEvaluators selects the scripted evaluator family for the system.
// Validation has already constrained the family name.
func buildEvaluators(spec *SystemSpec, sys *sysdef.System) map[sysdef.SubsystemID]engine.BlockEvaluator {
	var scripted map[sysdef.SubsystemID]*testutil.ScriptedEvaluator
	switch spec.Evaluators {
	case EvaluatorsCoupled:
		scripted = testutil.CoupledEvaluators(sys)
	default:
		scripted = testutil.DiagonalEvaluators(sys)
	}

	evals := make(map[sysdef.SubsystemID]engine.BlockEvaluator, len(scripted))
	for id, ev := range scripted {
		evals[id] = ev
	}
	return evals
}

func (r *runner) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	for i := range scenario.Steps {
		if err := r.runStep(ctx, i, &scenario.Steps[i]); err != nil {
			return nil, err
		}
	}

	r.result.Stats = r.eng.Profiler().Snapshot()
	if scenario.Expect != nil {
		checkFinalExpect(scenario.Expect, r.result.Stats, r.result)
	}
	return r.result, nil
}

func (r *runner) runStep(ctx context.Context, index int, step *Step) error {
	switch {
	case step.ModeChange != nil:
		return r.runModeChange(ctx, index, step.ModeChange)
	case step.Mark != nil:
		return r.runMark(index, step.Mark)
	case step.ForceFull != nil:
		r.eng.ForceFullUpdate()
		r.result.AddEvent(TraceEvent{Type: EventForceFull})
		return nil
	case step.Eval != nil:
		return r.runEval(ctx, index, step.Eval)
	case step.Converge != nil:
		r.runConverge(index, step.Converge)
		return nil
	case step.Factorize != nil:
		return r.runFactorize(index, step.Factorize)
	case step.CheckFactorization != nil:
		forced := r.eng.ShouldForceFactorization()
		r.result.AddEvent(TraceEvent{Type: EventCheckFactorization, Forced: &forced})
		if step.CheckFactorization.Expect != nil && *step.CheckFactorization.Expect != forced {
			r.result.AddError((&AssertionError{
				Where:    fmt.Sprintf("steps[%d].check_factorization", index),
				Field:    "forced",
				Expected: *step.CheckFactorization.Expect,
				Actual:   forced,
			}).Error())
		}
		return nil
	default:
		return fmt.Errorf("steps[%d]: no step kind set", index)
	}
}

func (r *runner) runModeChange(ctx context.Context, index int, st *ModeChangeStep) error {
	kind, err := parseModeKind(st.Kind)
	if err != nil {
		return fmt.Errorf("steps[%d].mode_change: %w", index, err)
	}
	refs := make([]engine.ComponentRef, 0, len(st.Components))
	for _, raw := range st.Components {
		ref, err := parseComponentRef(raw)
		if err != nil {
			return fmt.Errorf("steps[%d].mode_change: %w", index, err)
		}
		refs = append(refs, ref)
	}

	mc := engine.ModeChange{Kind: kind, Components: refs, Time: st.Time}
	if err := r.eng.NotifyModeChange(mc); err != nil {
		return fmt.Errorf("steps[%d].mode_change: %w", index, err)
	}

	t := st.Time
	r.result.AddEvent(TraceEvent{
		Type:       EventModeChange,
		Time:       &t,
		Kind:       st.Kind,
		Components: st.Components,
	})
	if r.store != nil {
		ev := statstore.ModeEvent{
			RunID:      r.runID,
			Seq:        int64(len(r.result.Trace)),
			SimTime:    st.Time,
			Kind:       st.Kind,
			Components: st.Components,
		}
		if err := r.store.RecordModeEvent(ctx, ev); err != nil {
			return fmt.Errorf("steps[%d].mode_change: persist: %w", index, err)
		}
	}
	return nil
}

func (r *runner) runMark(index int, st *MarkStep) error {
	sub, ok := r.sys.SubsystemByName(st.Subsystem)
	if !ok {
		return fmt.Errorf("steps[%d].mark: unknown subsystem %q", index, st.Subsystem)
	}
	if err := r.eng.MarkSubsystemChanged(sub.ID); err != nil {
		return fmt.Errorf("steps[%d].mark: %w", index, err)
	}
	if st.Propagate {
		r.eng.PropagateDependencies()
	}
	r.result.AddEvent(TraceEvent{
		Type:      EventMark,
		Subsystem: st.Subsystem,
		Propagate: st.Propagate,
	})
	return nil
}

func (r *runner) runEval(ctx context.Context, index int, st *EvalStep) error {
	_, res, err := r.eng.EvalJacobian(ctx, st.Time, st.CJ)
	if err != nil {
		return fmt.Errorf("steps[%d].eval: %w", index, err)
	}

	t := st.Time
	dirty := res.DirtyBlocks
	changed := res.StructureChanged
	r.result.AddEvent(TraceEvent{
		Type:             EventEval,
		Time:             &t,
		Strategy:         res.Strategy.String(),
		DirtyBlocks:      &dirty,
		StructureChanged: &changed,
		NNZDiff:          res.NNZDiff,
	})
	if r.store != nil {
		ev := statstore.Evaluation{
			RunID:            r.runID,
			Seq:              int64(len(r.result.Trace)),
			SimTime:          st.Time,
			Strategy:         res.Strategy.String(),
			DirtyBlocks:      res.DirtyBlocks,
			StructureChanged: res.StructureChanged,
			NNZDiff:          res.NNZDiff,
			ChangeRatio:      res.ChangeRatio,
			Elapsed:          res.Elapsed,
		}
		if err := r.store.RecordEvaluation(ctx, ev); err != nil {
			return fmt.Errorf("steps[%d].eval: persist: %w", index, err)
		}
	}

	if st.Expect != nil {
		checkEvalExpect(index, st.Expect, res, r.result)
	}
	return nil
}

// runConverge resolves the solve outcome and folds it into the engine's
// convergence history. In the residual form the outcome is computed from
// the weighted infinity norm, and a set converged field is checked
// against it.
func (r *runner) runConverge(index int, st *ConvergeStep) {
	var (
		converged bool
		norm      *float64
	)
	if len(st.Residual) > 0 {
		weights := st.Weights
		if len(weights) == 0 {
			weights = make([]float64, len(st.Residual))
			for i := range weights {
				weights[i] = 1.0
			}
		}
		n := sparse.WeightedInfNorm(st.Residual, weights)
		norm = &n
		converged = n <= st.Tol

		if st.Converged != nil && *st.Converged != converged {
			r.result.AddError((&AssertionError{
				Where:    fmt.Sprintf("steps[%d].converge", index),
				Field:    "converged",
				Expected: *st.Converged,
				Actual:   fmt.Sprintf("%v (norm %g, tol %g)", converged, n, st.Tol),
			}).Error())
		}
	} else {
		converged = *st.Converged
	}

	r.eng.RecordConvergence(converged, st.Iterations)
	r.result.AddEvent(TraceEvent{
		Type:       EventConverge,
		Norm:       norm,
		Converged:  &converged,
		Iterations: st.Iterations,
	})
}

func (r *runner) runFactorize(index int, st *FactorizeStep) error {
	var d time.Duration
	if st.Duration != "" {
		var err error
		d, err = time.ParseDuration(st.Duration)
		if err != nil {
			return fmt.Errorf("steps[%d].factorize: invalid duration %q: %w", index, st.Duration, err)
		}
	}

	switch st.Kind {
	case FactorizeSymbolic:
		r.eng.RecordSymbolicFactorization(d)
	case FactorizeNumerical:
		r.eng.RecordNumericalFactorization(d)
	default:
		return fmt.Errorf("steps[%d].factorize: unknown kind %q", index, st.Kind)
	}

	r.result.AddEvent(TraceEvent{
		Type:     EventFactorize,
		Kind:     st.Kind,
		Duration: st.Duration,
	})
	return nil
}
