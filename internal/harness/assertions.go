package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/jacquard/internal/engine"
	"github.com/roach88/jacquard/internal/profile"
)

// AssertionError describes one expectation mismatch with enough context
// to locate it in the scenario.
type AssertionError struct {
	Where    string // scenario location, e.g. "steps[2].eval" or "expect"
	Field    string // the mismatched field, e.g. "strategy"
	Expected any
	Actual   any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: %s mismatch\n", e.Where, e.Field)
	fmt.Fprintf(&buf, "  expected: %v\n", e.Expected)
	fmt.Fprintf(&buf, "  actual:   %v", e.Actual)
	return buf.String()
}

// checkEvalExpect validates one evaluation result against its expect
// clause. Only set fields are checked; mismatches are collected, not
// fatal.
func checkEvalExpect(index int, want *EvalExpect, got engine.EvalResult, result *Result) {
	where := fmt.Sprintf("steps[%d].eval", index)

	if want.Strategy != "" && want.Strategy != got.Strategy.String() {
		result.AddError((&AssertionError{
			Where:    where,
			Field:    "strategy",
			Expected: want.Strategy,
			Actual:   got.Strategy.String(),
		}).Error())
	}
	if want.DirtyBlocks != nil && *want.DirtyBlocks != got.DirtyBlocks {
		result.AddError((&AssertionError{
			Where:    where,
			Field:    "dirty_blocks",
			Expected: *want.DirtyBlocks,
			Actual:   got.DirtyBlocks,
		}).Error())
	}
	if want.StructureChanged != nil && *want.StructureChanged != got.StructureChanged {
		result.AddError((&AssertionError{
			Where:    where,
			Field:    "structure_changed",
			Expected: *want.StructureChanged,
			Actual:   got.StructureChanged,
		}).Error())
	}
}

// checkFinalExpect validates the final profiler snapshot against the
// scenario's expect block. Only set fields are checked.
func checkFinalExpect(want *FinalExpect, snap profile.Snapshot, result *Result) {
	counter := func(field string, expected, actual int64) {
		if expected != actual {
			result.AddError((&AssertionError{
				Where:    "expect",
				Field:    field,
				Expected: expected,
				Actual:   actual,
			}).Error())
		}
	}

	if want.FullUpdates != nil {
		counter("full_updates", *want.FullUpdates, snap.FullUpdates)
	}
	if want.PartialUpdates != nil {
		counter("partial_updates", *want.PartialUpdates, snap.PartialUpdates)
	}
	if want.Reuses != nil {
		counter("reuses", *want.Reuses, snap.Reuses)
	}
	if want.StructureChecks != nil {
		counter("structure_checks", *want.StructureChecks, snap.StructureChecks)
	}
	if want.StructureChanges != nil {
		counter("structure_changes", *want.StructureChanges, snap.StructureChanges)
	}
	if want.FalsePositivesAvoided != nil {
		counter("false_positives_avoided", *want.FalsePositivesAvoided, snap.FalsePositivesAvoided)
	}
	if want.DirtyBlocksUpdated != nil {
		counter("dirty_blocks_updated", *want.DirtyBlocksUpdated, snap.DirtyBlocksUpdated)
	}
	if want.SymbolicFactorizations != nil {
		counter("symbolic_factorizations", *want.SymbolicFactorizations, snap.SymbolicFactorizations)
	}
	if want.NumericalFactorizations != nil {
		counter("numerical_factorizations", *want.NumericalFactorizations, snap.NumericalFactorizations)
	}
	if want.Divergences != nil {
		counter("divergences", *want.Divergences, snap.Divergences)
	}
	for kind, expected := range want.ModeEvents {
		counter("mode_events."+kind, expected, snap.ModeEvents[kind])
	}
}
