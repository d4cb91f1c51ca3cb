package engine

import "github.com/roach88/jacquard/internal/sysdef"

// ModeChangeKind classifies a discrete event by the work it demands from
// the solver. The ordering is by severity; comparisons rely on it.
type ModeChangeKind int

const (
	// ModeNone records an event that flips no active equation set. The
	// event is counted but marks nothing.
	ModeNone ModeChangeKind = iota

	// ModeAlgebraic restarts the algebraic solve. The affected subsystems
	// are marked so their blocks are recomputed.
	ModeAlgebraic

	// ModeAlgebraicJUpdate restarts the algebraic solve and additionally
	// invalidates the Jacobian as a whole: the next decision is forced to
	// FULL via the sticky flag.
	ModeAlgebraicJUpdate
)

// String returns the snake_case name used in logs, reports, and metrics.
func (k ModeChangeKind) String() string {
	switch k {
	case ModeNone:
		return "none"
	case ModeAlgebraic:
		return "algebraic"
	case ModeAlgebraicJUpdate:
		return "algebraic_j_update"
	default:
		return "unknown"
	}
}

// ComponentRef names a physical component as the outer solver sees it,
// before any mapping to subsystem ids.
type ComponentRef struct {
	Kind sysdef.ComponentKind
	Name string
}

// ModeChange is one discrete-event notification from the outer solver.
type ModeChange struct {
	// Kind selects how much invalidation the event carries.
	Kind ModeChangeKind

	// Components lists the components whose mode variables flipped.
	Components []ComponentRef

	// Time is the simulation time of the event.
	Time float64
}
