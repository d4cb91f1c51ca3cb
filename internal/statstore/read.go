package statstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// runColumns is the SELECT list every run query uses, in scanRun order.
const runColumns = `
	id, system_name, subsystems, dimension, engine_version, started_at, finished_at,
	symbolic_factorizations, numerical_factorizations, total_symbolic_ns, total_numerical_ns,
	structure_checks, structure_changes, false_positives_avoided, total_nnz_diff, total_change_ratio,
	full_updates, partial_updates, reuses, total_jacobian_ns, dirty_blocks_updated,
	divergences, mode_events`

// GetRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+runColumns+` FROM runs WHERE id = ?`, id)

	return scanRunRow(row)
}

// ListRuns returns all runs with deterministic ordering.
// Results ordered by started_at ASC, id ASC; UUIDv7 IDs make the tiebreak
// follow creation order too.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+runColumns+` FROM runs ORDER BY started_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	// Return empty slice instead of nil
	if runs == nil {
		runs = []Run{}
	}

	return runs, nil
}

// EvaluationsForRun returns all evaluations for a run with deterministic
// ordering. Results ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if no evaluations exist for the run.
func (s *Store) EvaluationsForRun(ctx context.Context, runID string) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, sim_time, strategy, dirty_blocks, structure_changed, nnz_diff, change_ratio, elapsed_ns
		FROM evaluations
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []Evaluation
	for rows.Next() {
		var ev Evaluation
		var elapsedNS int64
		if err := rows.Scan(
			&ev.RunID, &ev.Seq, &ev.SimTime, &ev.Strategy, &ev.DirtyBlocks,
			&ev.StructureChanged, &ev.NNZDiff, &ev.ChangeRatio, &elapsedNS,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		ev.Elapsed = time.Duration(elapsedNS)
		evals = append(evals, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}

	if evals == nil {
		evals = []Evaluation{}
	}

	return evals, nil
}

// ModeEventsForRun returns all mode-change events for a run with
// deterministic ordering. Results ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if no events exist for the run.
func (s *Store) ModeEventsForRun(ctx context.Context, runID string) ([]ModeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, sim_time, kind, components
		FROM mode_events
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query mode events: %w", err)
	}
	defer rows.Close()

	var events []ModeEvent
	for rows.Next() {
		var ev ModeEvent
		var componentsJSON string
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.SimTime, &ev.Kind, &componentsJSON); err != nil {
			return nil, fmt.Errorf("scan mode event: %w", err)
		}
		components, err := unmarshalComponents(componentsJSON)
		if err != nil {
			return nil, err
		}
		ev.Components = components
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mode events: %w", err)
	}

	if events == nil {
		events = []ModeEvent{}
	}

	return events, nil
}

// StrategyTotalsForRun aggregates a run's evaluations by strategy.
// Results ordered by strategy ASC for deterministic reports.
//
// Returns an empty slice (not nil) if no evaluations exist for the run.
func (s *Store) StrategyTotalsForRun(ctx context.Context, runID string) ([]StrategyTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, COUNT(*), COALESCE(SUM(dirty_blocks), 0), COALESCE(SUM(elapsed_ns), 0)
		FROM evaluations
		WHERE run_id = ?
		GROUP BY strategy
		ORDER BY strategy ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query strategy totals: %w", err)
	}
	defer rows.Close()

	var totals []StrategyTotals
	for rows.Next() {
		var st StrategyTotals
		var elapsedNS int64
		if err := rows.Scan(&st.Strategy, &st.Count, &st.DirtyBlocks, &elapsedNS); err != nil {
			return nil, fmt.Errorf("scan strategy totals: %w", err)
		}
		st.Elapsed = time.Duration(elapsedNS)
		totals = append(totals, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy totals: %w", err)
	}

	if totals == nil {
		totals = []StrategyTotals{}
	}

	return totals, nil
}

// scanRun scans a row into a Run struct.
func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	var symbolicNS, numericalNS, jacobianNS int64
	var modeJSON string

	if err := rows.Scan(
		&run.ID, &run.SystemName, &run.Subsystems, &run.Dimension, &run.EngineVersion,
		&startedAt, &finishedAt,
		&run.Stats.SymbolicFactorizations, &run.Stats.NumericalFactorizations,
		&symbolicNS, &numericalNS,
		&run.Stats.StructureChecks, &run.Stats.StructureChanges,
		&run.Stats.FalsePositivesAvoided, &run.Stats.TotalNNZDiff, &run.Stats.TotalChangeRatio,
		&run.Stats.FullUpdates, &run.Stats.PartialUpdates, &run.Stats.Reuses,
		&jacobianNS, &run.Stats.DirtyBlocksUpdated,
		&run.Stats.Divergences, &modeJSON,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	return finishRunScan(run, startedAt, finishedAt, symbolicNS, numericalNS, jacobianNS, modeJSON)
}

// scanRunRow scans a single row into a Run struct.
func scanRunRow(row *sql.Row) (Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	var symbolicNS, numericalNS, jacobianNS int64
	var modeJSON string

	if err := row.Scan(
		&run.ID, &run.SystemName, &run.Subsystems, &run.Dimension, &run.EngineVersion,
		&startedAt, &finishedAt,
		&run.Stats.SymbolicFactorizations, &run.Stats.NumericalFactorizations,
		&symbolicNS, &numericalNS,
		&run.Stats.StructureChecks, &run.Stats.StructureChanges,
		&run.Stats.FalsePositivesAvoided, &run.Stats.TotalNNZDiff, &run.Stats.TotalChangeRatio,
		&run.Stats.FullUpdates, &run.Stats.PartialUpdates, &run.Stats.Reuses,
		&jacobianNS, &run.Stats.DirtyBlocksUpdated,
		&run.Stats.Divergences, &modeJSON,
	); err != nil {
		return Run{}, err
	}

	return finishRunScan(run, startedAt, finishedAt, symbolicNS, numericalNS, jacobianNS, modeJSON)
}

// finishRunScan decodes the TEXT and nanosecond columns shared by both scan
// paths.
func finishRunScan(run Run, startedAt string, finishedAt sql.NullString, symbolicNS, numericalNS, jacobianNS int64, modeJSON string) (Run, error) {
	started, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = started

	if finishedAt.Valid {
		finished, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = finished
	}

	run.Stats.TotalSymbolicTime = time.Duration(symbolicNS)
	run.Stats.TotalNumericalTime = time.Duration(numericalNS)
	run.Stats.TotalJacobianTime = time.Duration(jacobianNS)

	modes, err := unmarshalModeCounts(modeJSON)
	if err != nil {
		return Run{}, err
	}
	run.Stats.ModeEvents = modes

	return run, nil
}
