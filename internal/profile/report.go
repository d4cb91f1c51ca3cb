package profile

import (
	"fmt"
	"io"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteReport renders a human-readable statistics report for the snapshot.
//
// The layout groups factorization, structure-change, and evaluation
// statistics, then closes with a short performance analysis. Counts are
// printed with digit grouping.
func WriteReport(w io.Writer, s Snapshot) error {
	pr := message.NewPrinter(language.English)

	var err error
	p := func(format string, args ...any) {
		if err != nil {
			return
		}
		_, err = pr.Fprintf(w, format, args...)
	}

	p("========================================\n")
	p("  Jacobian Maintenance Report\n")
	p("========================================\n\n")

	p("Factorization Statistics:\n")
	p("  Symbolic factorizations:        %d\n", s.SymbolicFactorizations)
	p("  Numerical-only factorizations:  %d\n", s.NumericalFactorizations)
	if total := s.SymbolicFactorizations + s.NumericalFactorizations; total > 0 {
		share := float64(s.SymbolicFactorizations) / float64(total) * 100.0
		p("  Symbolic share:                 %.1f%%\n", share)
	}
	if s.SymbolicFactorizations > 0 {
		p("  Avg symbolic time:              %.6fs\n", s.AvgSymbolicTime().Seconds())
	}
	if s.NumericalFactorizations > 0 {
		p("  Avg numerical time:             %.6fs\n", s.AvgNumericalTime().Seconds())
	}
	p("  Total symbolic time:            %.6fs\n", s.TotalSymbolicTime.Seconds())
	p("  Total numerical time:           %.6fs\n", s.TotalNumericalTime.Seconds())
	ratio := s.SymbolicToNumericalRatio()
	if ratio > 0 {
		p("  Symbolic/numerical ratio:       %.2f:1\n", ratio)
	}
	p("\n")

	p("Matrix Structure Changes:\n")
	p("  Structure checks:               %d\n", s.StructureChecks)
	p("  Confirmed changes:              %d\n", s.StructureChanges)
	p("  False positives avoided:        %d\n", s.FalsePositivesAvoided)
	if s.StructureChecks > 0 {
		p("  Avoidance rate:                 %.1f%%\n", s.AvoidanceRate()*100.0)
		p("  Avg NNZ difference:             %.1f\n", s.AvgNNZDiff())
		p("  Avg change ratio:               %.4f\n", s.AvgChangeRatio())
	}
	p("\n")

	p("Jacobian Evaluation:\n")
	p("  Total evaluations:              %d\n", s.Evaluations())
	p("  Full updates:                   %d\n", s.FullUpdates)
	p("  Partial updates:                %d\n", s.PartialUpdates)
	p("  Reuses:                         %d\n", s.Reuses)
	p("  Dirty blocks recomputed:        %d\n", s.DirtyBlocksUpdated)
	p("  Total evaluation time:          %.6fs\n", s.TotalJacobianTime.Seconds())
	if s.Evaluations() > 0 {
		p("  Avg evaluation time:            %.6fs\n", s.AvgEvaluationTime().Seconds())
	}
	p("\n")

	if len(s.ModeEvents) > 0 {
		p("Mode Changes:\n")
		kinds := make([]string, 0, len(s.ModeEvents))
		for k := range s.ModeEvents {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			p("  %-32s%d\n", k+":", s.ModeEvents[k])
		}
		p("\n")
	}
	if s.Divergences > 0 {
		p("Divergences:                      %d\n\n", s.Divergences)
	}

	p("Performance Analysis:\n")
	switch {
	case ratio > 1.5:
		p("  WARNING: high symbolic factorization ratio.\n")
		p("  Consider enabling adaptive factorization control.\n")
	case ratio > 0 && ratio < 0.5:
		p("  Symbolic factorization efficiency is good.\n")
	}
	if s.FalsePositivesAvoided > 0 && s.SymbolicFactorizations > 0 {
		p("  Estimated time saved by tolerance: %.3fs\n", s.EstimatedTimeSaved().Seconds())
	}
	p("========================================\n")

	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
