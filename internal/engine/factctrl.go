package engine

// FactorizationController decides when symbolic refactorization should be
// forced regardless of structural change, from convergence history alone.
//
// It keeps three pieces of state: the consecutive-convergence streak, the
// number of solver steps since the last symbolic factorization, and an
// exponential moving average of the convergence rate (the reciprocal of
// the Newton iteration count, so 1.0 means single-iteration convergence).
//
// All counters live in this one instance owned by the engine; there are
// no package-level globals.
type FactorizationController struct {
	streak     int
	stepsSince int
	avgRate    float64

	// forceNext is set by an unconverged solve and cleared only when a
	// symbolic factorization is actually performed.
	forceNext bool

	goodStreak int
	maxSteps   int
	poorRate   float64
}

// NewFactorizationController creates a controller with the configured
// thresholds. The moving average starts at 1.0, the rate of a solver that
// converges in a single iteration; the first few records pull it toward
// the observed behavior.
func NewFactorizationController(cfg *Config) *FactorizationController {
	return &FactorizationController{
		avgRate:    1.0,
		goodStreak: cfg.GoodStreakLength,
		maxSteps:   cfg.MaxStepsWithoutFactorization,
		poorRate:   cfg.PoorConvergenceRate,
	}
}

// UpdateHistory folds one completed nonlinear solve into the history.
// On success the streak grows and the moving average shifts toward the
// observed rate (weights 0.8 old, 0.2 new). On failure the streak resets,
// the average decays, and the next factorization is forced
// unconditionally.
func (f *FactorizationController) UpdateHistory(converged bool, iterations int) {
	f.stepsSince++

	if !converged {
		f.streak = 0
		f.avgRate *= 0.9
		f.forceNext = true
		return
	}

	if iterations < 1 {
		iterations = 1
	}
	f.streak++
	f.avgRate = 0.8*f.avgRate + 0.2*(1.0/float64(iterations))
}

// ShouldForceFactorization reports whether the next evaluation should redo
// symbolic factorization regardless of structural change. Pure read.
//
// An unconverged step forces unconditionally. Under poor average
// convergence the interval halves; under an established good streak the
// full interval applies. With neither history signal, nothing is forced
// and structural changes alone drive factorization.
func (f *FactorizationController) ShouldForceFactorization() bool {
	if f.forceNext {
		return true
	}
	if f.avgRate < f.poorRate {
		return f.stepsSince >= f.maxSteps/2
	}
	if f.streak >= f.goodStreak {
		return f.stepsSince >= f.maxSteps
	}
	return false
}

// NoteFactorization records that a symbolic factorization was performed,
// restarting the step interval and consuming any pending force.
func (f *FactorizationController) NoteFactorization() {
	f.stepsSince = 0
	f.forceNext = false
}

// Streak returns the current consecutive-convergence streak.
func (f *FactorizationController) Streak() int {
	return f.streak
}

// StepsSinceFactorization returns the solver steps since the last
// symbolic factorization.
func (f *FactorizationController) StepsSinceFactorization() int {
	return f.stepsSince
}

// AvgConvergenceRate returns the moving-average convergence rate.
func (f *FactorizationController) AvgConvergenceRate() float64 {
	return f.avgRate
}

// ForcePending reports whether an unconverged solve has armed an
// unconditional force.
func (f *FactorizationController) ForcePending() bool {
	return f.forceNext
}
