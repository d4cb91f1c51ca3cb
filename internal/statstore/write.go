package statstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/jacquard/internal/profile"
)

// timeLayout is the TEXT encoding for timestamps: RFC 3339 with nanoseconds,
// always UTC.
const timeLayout = time.RFC3339Nano

// CreateRun inserts a run row and returns the run with ID and StartedAt
// filled in.
//
// An empty ID is replaced with a fresh UUIDv7 so run rows sort by creation
// time; a zero StartedAt is replaced with the current UTC time. Callers that
// need deterministic output (golden traces) pass both explicitly.
//
// A duplicate ID is an error, not a no-op: runs are sessions, not replayable
// events.
func (s *Store) CreateRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.Must(uuid.NewV7()).String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, system_name, subsystems, dimension, engine_version, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.SystemName,
		run.Subsystems,
		run.Dimension,
		run.EngineVersion,
		run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}

	return run, nil
}

// RecordEvaluation inserts an evaluation record into the store.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency - replaying a
// trace into the same run is silently ignored. Other constraint violations
// (e.g., unknown run_id, invalid strategy) will still return errors.
func (s *Store) RecordEvaluation(ctx context.Context, ev Evaluation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
		(run_id, seq, sim_time, strategy, dirty_blocks, structure_changed, nnz_diff, change_ratio, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		ev.SimTime,
		ev.Strategy,
		ev.DirtyBlocks,
		ev.StructureChanged,
		ev.NNZDiff,
		ev.ChangeRatio,
		ev.Elapsed.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("record evaluation: %w", err)
	}

	return nil
}

// RecordModeEvent inserts a mode-change record into the store.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordModeEvent(ctx context.Context, ev ModeEvent) error {
	componentsJSON, err := marshalComponents(ev.Components)
	if err != nil {
		return fmt.Errorf("record mode event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mode_events
		(run_id, seq, sim_time, kind, components)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		ev.SimTime,
		ev.Kind,
		componentsJSON,
	)
	if err != nil {
		return fmt.Errorf("record mode event: %w", err)
	}

	return nil
}

// FinishRun stamps the run finished and persists the final profiler snapshot
// onto its row. Returns sql.ErrNoRows (wrapped) if the run does not exist.
//
// Calling FinishRun twice overwrites the previous snapshot; the last call
// wins.
func (s *Store) FinishRun(ctx context.Context, runID string, snap profile.Snapshot) error {
	modeJSON, err := marshalModeCounts(snap.ModeEvents)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			symbolic_factorizations = ?,
			numerical_factorizations = ?,
			total_symbolic_ns = ?,
			total_numerical_ns = ?,
			structure_checks = ?,
			structure_changes = ?,
			false_positives_avoided = ?,
			total_nnz_diff = ?,
			total_change_ratio = ?,
			full_updates = ?,
			partial_updates = ?,
			reuses = ?,
			total_jacobian_ns = ?,
			dirty_blocks_updated = ?,
			divergences = ?,
			mode_events = ?
		WHERE id = ?
	`,
		time.Now().UTC().Format(timeLayout),
		snap.SymbolicFactorizations,
		snap.NumericalFactorizations,
		snap.TotalSymbolicTime.Nanoseconds(),
		snap.TotalNumericalTime.Nanoseconds(),
		snap.StructureChecks,
		snap.StructureChanges,
		snap.FalsePositivesAvoided,
		snap.TotalNNZDiff,
		snap.TotalChangeRatio,
		snap.FullUpdates,
		snap.PartialUpdates,
		snap.Reuses,
		snap.TotalJacobianTime.Nanoseconds(),
		snap.DirtyBlocksUpdated,
		snap.Divergences,
		modeJSON,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("finish run %q: %w", runID, sql.ErrNoRows)
	}

	return nil
}
