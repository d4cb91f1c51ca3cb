package engine

import (
	"sort"

	"github.com/roach88/jacquard/internal/sysdef"
)

// ChangeTracker records which subsystems changed since the last completed
// Jacobian evaluation and propagates those marks across the dependency
// graph.
//
// The change set grows monotonically between resets and is cleared only by
// Reset after a completed evaluation. The sticky force-full flag survives
// Reset; it is consumed by the next strategy decision.
//
// Not safe for concurrent use: marks arrive on the single event
// notification path and are read only after that path has quiesced for
// the current evaluation cycle.
type ChangeTracker struct {
	graph      *DependencyGraph
	components map[sysdef.ComponentKey]sysdef.SubsystemID

	// changed doubles as the propagation visited set: membership is
	// monotone until Reset, so a node is expanded at most once even on
	// meshed (cyclic) topologies.
	changed    []bool
	changedIDs []sysdef.SubsystemID

	forceFull bool
	threshold float64 // full-update fraction
	depth     int     // hops per propagation pass; negative = full closure
}

// NewChangeTracker creates an empty tracker over the given graph.
// The component table maps raw (kind, name) references to subsystem ids.
func NewChangeTracker(graph *DependencyGraph, components map[sysdef.ComponentKey]sysdef.SubsystemID, cfg *Config) *ChangeTracker {
	return &ChangeTracker{
		graph:      graph,
		components: components,
		changed:    make([]bool, graph.Size()),
		threshold:  cfg.FullUpdateFraction,
		depth:      cfg.PropagationDepth,
	}
}

// MarkSubsystemChanged records a change to one subsystem. Idempotent.
// An id outside [0, N) is a fatal consistency error.
func (t *ChangeTracker) MarkSubsystemChanged(id sysdef.SubsystemID) error {
	if id < 0 || int(id) >= t.graph.Size() {
		return newConsistencyError(ErrCodeDanglingID, "mark references unknown subsystem id %d (have %d subsystems)", id, t.graph.Size())
	}
	t.mark(id)
	return nil
}

// MarkComponentChanged records a change to a raw component reference,
// mapping it to the owning subsystem first.
func (t *ChangeTracker) MarkComponentChanged(kind sysdef.ComponentKind, name string) error {
	id, ok := t.components[sysdef.ComponentKey{Kind: kind, Name: name}]
	if !ok {
		return NewUnknownComponentError(string(kind), name)
	}
	t.mark(id)
	return nil
}

func (t *ChangeTracker) mark(id sysdef.SubsystemID) {
	if t.changed[id] {
		return
	}
	t.changed[id] = true
	t.changedIDs = append(t.changedIDs, id)
}

// PropagateDependencies closes the change set over the dependency graph.
// One pass expands the configured number of hops outward from every
// currently marked subsystem; passes are cumulative, so repeated
// notifications within a cycle widen the closure, never shrink it.
func (t *ChangeTracker) PropagateDependencies() {
	frontier := make([]sysdef.SubsystemID, len(t.changedIDs))
	copy(frontier, t.changedIDs)

	for hop := 0; len(frontier) > 0 && (t.depth < 0 || hop < t.depth); hop++ {
		var next []sysdef.SubsystemID
		for _, id := range frontier {
			for _, nb := range t.graph.Dependents(id) {
				if t.changed[nb] {
					continue
				}
				t.changed[nb] = true
				t.changedIDs = append(t.changedIDs, nb)
				next = append(next, nb)
			}
		}
		frontier = next
	}
}

// RequiresFullUpdate reports whether a full update is mandatory: either
// the sticky force flag is pending or the changed fraction reached the
// configured threshold. Read-only; does not consume the flag.
func (t *ChangeTracker) RequiresFullUpdate() bool {
	return t.forceFull || t.Fraction() >= t.threshold
}

// Fraction returns the changed share of all subsystems.
func (t *ChangeTracker) Fraction() float64 {
	return float64(len(t.changedIDs)) / float64(t.graph.Size())
}

// ChangedCount returns the number of marked subsystems, propagation
// included.
func (t *ChangeTracker) ChangedCount() int {
	return len(t.changedIDs)
}

// IsChanged reports whether one subsystem is marked.
func (t *ChangeTracker) IsChanged(id sysdef.SubsystemID) bool {
	return t.changed[id]
}

// Changed returns the marked subsystems in ascending id order.
func (t *ChangeTracker) Changed() []sysdef.SubsystemID {
	ids := make([]sysdef.SubsystemID, len(t.changedIDs))
	copy(ids, t.changedIDs)
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// ForceFullUpdate sets the sticky flag: the very next strategy decision
// returns FULL regardless of other inputs.
func (t *ChangeTracker) ForceFullUpdate() {
	t.forceFull = true
}

// ForcePending reports whether a forced full update is pending.
func (t *ChangeTracker) ForcePending() bool {
	return t.forceFull
}

// ConsumeForce clears the sticky flag and reports whether it was set.
// Called once per strategy decision.
func (t *ChangeTracker) ConsumeForce() bool {
	f := t.forceFull
	t.forceFull = false
	return f
}

// Reset clears the change set after a completed Jacobian evaluation.
// The sticky force flag is left untouched: it belongs to the decision
// path, not the evaluation cycle.
func (t *ChangeTracker) Reset() {
	for _, id := range t.changedIDs {
		t.changed[id] = false
	}
	t.changedIDs = t.changedIDs[:0]
}
