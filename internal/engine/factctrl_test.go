package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newController() *FactorizationController {
	cfg := DefaultConfig()
	return NewFactorizationController(&cfg)
}

// TestFactorizationController_StreakAndAverage tests the moving-average
// arithmetic over a run of successes.
func TestFactorizationController_StreakAndAverage(t *testing.T) {
	f := newController()
	assert.Equal(t, 0, f.Streak())
	assert.InDelta(t, 1.0, f.AvgConvergenceRate(), 1e-12)

	// Converging in 2 iterations: rate 0.5 pulls the average down.
	f.UpdateHistory(true, 2)
	assert.Equal(t, 1, f.Streak())
	assert.InDelta(t, 0.9, f.AvgConvergenceRate(), 1e-12)

	f.UpdateHistory(true, 2)
	assert.InDelta(t, 0.82, f.AvgConvergenceRate(), 1e-12)

	f.UpdateHistory(true, 2)
	assert.Equal(t, 3, f.Streak())
	assert.InDelta(t, 0.756, f.AvgConvergenceRate(), 1e-12)
	assert.Equal(t, 3, f.StepsSinceFactorization())
}

// TestFactorizationController_FailureResetsStreak tests divergence
// handling: streak reset, decayed average, unconditional force.
func TestFactorizationController_FailureResetsStreak(t *testing.T) {
	f := newController()
	f.UpdateHistory(true, 1)
	f.UpdateHistory(true, 1)
	assert.Equal(t, 2, f.Streak())

	f.UpdateHistory(false, 8)

	assert.Equal(t, 0, f.Streak())
	assert.InDelta(t, 0.9, f.AvgConvergenceRate(), 1e-12)
	assert.True(t, f.ForcePending())
	assert.True(t, f.ShouldForceFactorization(), "divergence forces the very next factorization")
}

// TestFactorizationController_ForceConsumedByFactorization tests that only
// a performed factorization clears the force.
func TestFactorizationController_ForceConsumedByFactorization(t *testing.T) {
	f := newController()
	f.UpdateHistory(false, 10)
	assert.True(t, f.ShouldForceFactorization())

	// Still pending until someone actually factorizes.
	f.UpdateHistory(true, 2)
	assert.True(t, f.ShouldForceFactorization())

	f.NoteFactorization()
	assert.False(t, f.ShouldForceFactorization())
	assert.Equal(t, 0, f.StepsSinceFactorization())
	assert.False(t, f.ForcePending())
}

// TestFactorizationController_GoodStreakInterval tests the long forcing
// interval under an established streak.
func TestFactorizationController_GoodStreakInterval(t *testing.T) {
	f := newController()

	// Single-iteration convergence keeps the average pinned at 1.0.
	for i := 0; i < 14; i++ {
		f.UpdateHistory(true, 1)
	}
	assert.Equal(t, 14, f.Streak())
	assert.False(t, f.ShouldForceFactorization(), "14 steps is inside the 15-step interval")

	f.UpdateHistory(true, 1)
	assert.True(t, f.ShouldForceFactorization(), "15 steps reaches the interval")

	f.NoteFactorization()
	assert.False(t, f.ShouldForceFactorization(), "interval restarts after factorization")
}

// TestFactorizationController_PoorConvergenceHalvesInterval tests the
// double-frequency forcing under a poor moving average.
func TestFactorizationController_PoorConvergenceHalvesInterval(t *testing.T) {
	f := newController()

	// 50-iteration convergence drags the average below 0.1 after a dozen
	// steps even though every solve converged.
	for i := 0; i < 12; i++ {
		f.UpdateHistory(true, 50)
	}
	assert.Less(t, f.AvgConvergenceRate(), 0.1)
	assert.True(t, f.ShouldForceFactorization(), "12 steps exceeds the halved interval of 7")

	f.NoteFactorization()
	for i := 0; i < 6; i++ {
		f.UpdateHistory(true, 50)
	}
	assert.False(t, f.ShouldForceFactorization(), "6 steps is inside the halved interval")

	f.UpdateHistory(true, 50)
	assert.True(t, f.ShouldForceFactorization(), "7 steps reaches the halved interval")
}

// TestFactorizationController_NoHistoryNoForce tests that without a streak
// or poor average, nothing is forced.
func TestFactorizationController_NoHistoryNoForce(t *testing.T) {
	f := newController()
	assert.False(t, f.ShouldForceFactorization())

	f.UpdateHistory(true, 2)
	f.UpdateHistory(true, 3)
	f.UpdateHistory(true, 2)
	f.UpdateHistory(true, 2)

	assert.Equal(t, 4, f.Streak())
	assert.False(t, f.ShouldForceFactorization(), "streak below 5 and healthy average")
}

// TestFactorizationController_IterationFloor tests the clamp on
// nonpositive iteration counts.
func TestFactorizationController_IterationFloor(t *testing.T) {
	f := newController()
	f.UpdateHistory(true, 0)
	assert.InDelta(t, 1.0, f.AvgConvergenceRate(), 1e-12)
}
