package harness

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jacquard/internal/statstore"
	"github.com/roach88/jacquard/internal/sysdef"
)

func TestMain(m *testing.M) {
	// Engine logging would drown scenario output.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func TestRunBreakerTrip(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/breaker_trip.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "expectation errors: %v", result.Errors)

	require.Len(t, result.Trace, 6)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, EventEval, result.Trace[0].Type)
	assert.Equal(t, "full", result.Trace[0].Strategy)
	assert.Equal(t, 8, result.Trace[0].NNZDiff)
	assert.Equal(t, EventModeChange, result.Trace[3].Type)
	assert.Equal(t, "partial", result.Trace[4].Strategy)

	assert.Equal(t, int64(1), result.Stats.FullUpdates)
	assert.Equal(t, int64(1), result.Stats.PartialUpdates)
	assert.Equal(t, int64(6), result.Stats.DirtyBlocksUpdated)
}

func TestRunCollectsExpectationMismatch(t *testing.T) {
	// The first evaluation is always full, so expecting partial fails.
	path := writeScenario(t, `name: mismatch
description: "wrong expected strategy"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: partial } }
  - eval: { time: 0.1, cj: 1.0, expect: { strategy: full } }
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0].eval: strategy mismatch")

	// A mismatch does not stop the run.
	assert.Len(t, result.Trace, 2)
}

func TestRunMarkAndForceFull(t *testing.T) {
	path := writeScenario(t, `name: mark_force
description: "direct marks and the sticky force flag"
system:
  name: three-chain
  subsystems:
    - { name: s0, rows: 1 }
    - { name: s1, rows: 1 }
    - { name: s2, rows: 1 }
  couplings:
    - { from: s0, to: s1 }
    - { from: s1, to: s2 }
tuning:
  full_update_fraction: 0.9
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full, dirty_blocks: 3 } }
  - mark: { subsystem: s1 }
  - eval: { time: 0.1, cj: 1.0, expect: { strategy: partial, dirty_blocks: 1 } }
  - force_full: {}
  - eval: { time: 0.2, cj: 1.0, expect: { strategy: full, dirty_blocks: 3 } }
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "expectation errors: %v", result.Errors)

	assert.Equal(t, EventMark, result.Trace[1].Type)
	assert.Equal(t, "s1", result.Trace[1].Subsystem)
	assert.False(t, result.Trace[1].Propagate)
	assert.Equal(t, EventForceFull, result.Trace[3].Type)
}

func TestRunMarkPropagates(t *testing.T) {
	path := writeScenario(t, `name: mark_propagate
description: "a propagated mark reaches the one-hop neighborhood"
system:
  name: three-chain
  subsystems:
    - { name: s0, rows: 1 }
    - { name: s1, rows: 1 }
    - { name: s2, rows: 1 }
  couplings:
    - { from: s0, to: s1 }
    - { from: s1, to: s2 }
tuning:
  full_update_fraction: 0.9
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
  - mark: { subsystem: s0, propagate: true }
  - eval: { time: 0.1, cj: 1.0, expect: { strategy: partial, dirty_blocks: 2 } }
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "expectation errors: %v", result.Errors)
	assert.True(t, result.Trace[1].Propagate)
}

func TestRunConvergeResidual(t *testing.T) {
	// Residual norm 0.5 misses tol 1e-3: the solve counts as diverged and
	// the stated converged expectation fails.
	path := writeScenario(t, `name: diverged
description: "residual form computes the outcome from the weighted norm"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
  - converge: { residual: [0.5, 0.001], tol: 0.001, iterations: 7, converged: true }
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[1].converge: converged mismatch")

	ev := result.Trace[1]
	assert.Equal(t, EventConverge, ev.Type)
	require.NotNil(t, ev.Norm)
	assert.InDelta(t, 0.5, *ev.Norm, 1e-12)
	require.NotNil(t, ev.Converged)
	assert.False(t, *ev.Converged)
	assert.Equal(t, 7, ev.Iterations)

	assert.Equal(t, int64(1), result.Stats.Divergences)
}

func TestRunConvergeWeights(t *testing.T) {
	// Weights scale the residual entries: 0.5 * 0.001 lands under tol.
	path := writeScenario(t, `name: weighted
description: "error weights scale residual entries before the norm"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
  - converge: { residual: [0.5, 0.2], weights: [0.001, 0.001], tol: 0.001, iterations: 3, converged: true }
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "expectation errors: %v", result.Errors)

	require.NotNil(t, result.Trace[1].Norm)
	assert.InDelta(t, 0.0005, *result.Trace[1].Norm, 1e-12)
	assert.Equal(t, int64(0), result.Stats.Divergences)
}

func TestRunWithStore(t *testing.T) {
	store, err := statstore.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer store.Close()

	scenario, err := LoadScenario("testdata/scenarios/breaker_trip.yaml")
	require.NoError(t, err)

	ctx := context.Background()
	gen := NewFixedGenerator("run-breaker-1")
	result, run, err := RunWithStore(ctx, scenario, store, gen)
	require.NoError(t, err)
	assert.True(t, result.Pass, "expectation errors: %v", result.Errors)

	assert.Equal(t, "run-breaker-1", run.ID)
	assert.True(t, run.Finished())
	assert.Equal(t, "four-bus-chain", run.SystemName)
	assert.Equal(t, 4, run.Subsystems)
	assert.Equal(t, 8, run.Dimension)
	assert.Equal(t, sysdef.EngineVersion, run.EngineVersion)
	assert.Equal(t, int64(1), run.Stats.FullUpdates)
	assert.Equal(t, int64(1), run.Stats.PartialUpdates)

	evals, err := store.EvaluationsForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, int64(1), evals[0].Seq)
	assert.Equal(t, "full", evals[0].Strategy)
	assert.Equal(t, 4, evals[0].DirtyBlocks)
	assert.True(t, evals[0].StructureChanged)
	assert.Equal(t, 8, evals[0].NNZDiff)
	assert.Equal(t, int64(5), evals[1].Seq)
	assert.Equal(t, "partial", evals[1].Strategy)
	assert.InDelta(t, 0.5, evals[1].SimTime, 1e-12)

	modes, err := store.ModeEventsForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, modes, 1)
	assert.Equal(t, int64(4), modes[0].Seq)
	assert.Equal(t, "algebraic", modes[0].Kind)
	assert.Equal(t, []string{"switch:brk-7"}, modes[0].Components)

	totals, err := store.StrategyTotalsForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "full", totals[0].Strategy)
	assert.Equal(t, int64(1), totals[0].Count)
	assert.Equal(t, "partial", totals[1].Strategy)
	assert.Equal(t, int64(2), totals[1].DirtyBlocks)
}

func TestRunWithStoreScenarioRunID(t *testing.T) {
	store, err := statstore.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer store.Close()

	path := writeScenario(t, `name: pinned
description: "run_id from the scenario wins over the generator"
run_id: scenario-pinned-id
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	_, run, err := RunWithStore(context.Background(), scenario, store, nil)
	require.NoError(t, err)
	assert.Equal(t, "scenario-pinned-id", run.ID)
}
