package harness

import "github.com/roach88/jacquard/internal/profile"

// Trace event types, one per step kind.
const (
	EventModeChange         = "mode_change"
	EventMark               = "mark"
	EventForceFull          = "force_full"
	EventEval               = "eval"
	EventConverge           = "converge"
	EventFactorize          = "factorize"
	EventCheckFactorization = "check_factorization"
)

// TraceEvent is one observable step outcome. Pointer fields distinguish
// "recorded as zero" from "not applicable to this event type"; only
// deterministic values appear, never wall-clock timings.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Time is the simulation time, for mode_change and eval events.
	Time *float64 `json:"time,omitempty"`

	// Kind is the mode-change kind or the factorization kind.
	Kind string `json:"kind,omitempty"`

	// Components are the "kind:name" references of a mode change.
	Components []string `json:"components,omitempty"`

	// Subsystem and Propagate describe a mark event.
	Subsystem string `json:"subsystem,omitempty"`
	Propagate bool   `json:"propagate,omitempty"`

	// Strategy, DirtyBlocks, StructureChanged, and NNZDiff describe an
	// eval event.
	Strategy         string `json:"strategy,omitempty"`
	DirtyBlocks      *int   `json:"dirty_blocks,omitempty"`
	StructureChanged *bool  `json:"structure_changed,omitempty"`
	NNZDiff          int    `json:"nnz_diff,omitempty"`

	// Norm, Converged, and Iterations describe a converge event. Norm
	// is present only in the residual form.
	Norm       *float64 `json:"norm,omitempty"`
	Converged  *bool    `json:"converged,omitempty"`
	Iterations int      `json:"iterations,omitempty"`

	// Forced is the check_factorization verdict.
	Forced *bool `json:"forced,omitempty"`

	// Duration is the recorded factorization wall time, as written in
	// the scenario.
	Duration string `json:"duration,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true when every expectation matched.
	Pass bool `json:"pass"`

	// Trace lists all step outcomes in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation mismatches. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stats is the final profiler snapshot.
	Stats profile.Snapshot `json:"-"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an expectation mismatch and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// AddEvent appends a trace event, assigning the next sequence number.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
