package statstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a store backed by a temp-dir database for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run with fixed metadata. Fixed StartedAt keeps
// list ordering on the ID tiebreak.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run, err := s.CreateRun(context.Background(), Run{
		ID:            id,
		SystemName:    "two-area",
		Subsystems:    4,
		Dimension:     120,
		EngineVersion: "0.1.0",
		StartedAt:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	return run
}

// createTestEvaluation creates an evaluation row with minimal required fields.
func createTestEvaluation(runID string, seq int64, strategy string) Evaluation {
	return Evaluation{
		RunID:       runID,
		Seq:         seq,
		SimTime:     float64(seq) * 0.1,
		Strategy:    strategy,
		DirtyBlocks: 1,
		Elapsed:     time.Millisecond,
	}
}
