package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jacquard/internal/profile"
	"github.com/roach88/jacquard/internal/statstore"
	"github.com/roach88/jacquard/internal/sysdef"
)

// seedStore creates a statistics database holding one finished run with two
// recorded evaluations.
func seedStore(t *testing.T) (dbPath, runID string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "stats.db")
	runID = "cli-report-1"

	store, err := statstore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.CreateRun(ctx, statstore.Run{
		ID:            runID,
		SystemName:    "four-bus-chain",
		Subsystems:    4,
		Dimension:     8,
		EngineVersion: sysdef.EngineVersion,
	})
	require.NoError(t, err)

	require.NoError(t, store.RecordEvaluation(ctx, statstore.Evaluation{
		RunID: runID, Seq: 1, SimTime: 0, Strategy: "full",
		DirtyBlocks: 4, StructureChanged: true, NNZDiff: 8, ChangeRatio: 1.0,
		Elapsed: time.Millisecond,
	}))
	require.NoError(t, store.RecordEvaluation(ctx, statstore.Evaluation{
		RunID: runID, Seq: 2, SimTime: 0.5, Strategy: "partial",
		DirtyBlocks: 2, Elapsed: 500 * time.Microsecond,
	}))

	require.NoError(t, store.FinishRun(ctx, runID, profile.Snapshot{
		SymbolicFactorizations: 1,
		TotalSymbolicTime:      2 * time.Millisecond,
		StructureChecks:        2,
		StructureChanges:       1,
		FullUpdates:            1,
		PartialUpdates:         1,
		DirtyBlocksUpdated:     6,
		TotalJacobianTime:      1500 * time.Microsecond,
		ModeEvents:             map[string]int64{"algebraic": 1},
	}))
	return dbPath, runID
}

func newReportCmd(format string, out *bytes.Buffer, args ...string) *cobra.Command {
	rootOpts := &RootOptions{Format: format}
	cmd := NewReportCommand(rootOpts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd
}

func TestReportListEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	store, err := statstore.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out, "--db", dbPath)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "No runs recorded.")
}

func TestReportList(t *testing.T) {
	dbPath, runID := seedStore(t)

	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out, "--db", dbPath)

	require.NoError(t, cmd.Execute())

	output := out.String()
	assert.Contains(t, output, runID)
	assert.Contains(t, output, "four-bus-chain")
	assert.Contains(t, output, "2 evaluation(s)")
	assert.Contains(t, output, "finished")
	assert.Contains(t, output, "1 run(s)")
}

func TestReportListJSON(t *testing.T) {
	dbPath, runID := seedStore(t)

	out := &bytes.Buffer{}
	cmd := newReportCmd("json", out, "--db", dbPath)

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	runs, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)

	first, ok := runs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, runID, first["id"])
	assert.Equal(t, true, first["finished"])
	assert.Equal(t, float64(2), first["evaluations"])
}

func TestReportRun(t *testing.T) {
	dbPath, runID := seedStore(t)

	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out, "--db", dbPath, runID)

	require.NoError(t, cmd.Execute())

	output := out.String()
	assert.Contains(t, output, "Run "+runID)
	assert.Contains(t, output, "four-bus-chain (4 subsystems, dimension 8)")
	assert.Contains(t, output, "Jacobian Maintenance Report")
	assert.Contains(t, output, "Symbolic factorizations")
	assert.Contains(t, output, "Recorded evaluations by strategy:")
	assert.Contains(t, output, "1 evaluation(s), 4 dirty block(s)")
	assert.Contains(t, output, "1 evaluation(s), 2 dirty block(s)")
}

func TestReportRunJSON(t *testing.T) {
	dbPath, runID := seedStore(t)

	out := &bytes.Buffer{}
	cmd := newReportCmd("json", out, "--db", dbPath, runID)

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, runID, resp.RunID)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)

	run, ok := data["run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, runID, run["id"])
	assert.Equal(t, float64(8), run["dimension"])

	totals, ok := data["strategy_totals"].([]any)
	require.True(t, ok)
	require.Len(t, totals, 2)

	// Totals come back in strategy order: full before partial
	full, ok := totals[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "full", full["strategy"])
	assert.Equal(t, float64(1), full["count"])
	assert.Equal(t, float64(4), full["dirty_blocks"])
}

func TestReportRunNotFound(t *testing.T) {
	dbPath, _ := seedStore(t)

	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out, "--db", dbPath, "ghost")

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: ghost")
}

func TestReportUnfinishedRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	store, err := statstore.Open(dbPath)
	require.NoError(t, err)

	_, err = store.CreateRun(context.Background(), statstore.Run{
		ID:         "still-running",
		SystemName: "solo",
		Subsystems: 1,
		Dimension:  2,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out, "--db", dbPath, "still-running")

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "has not finished")
}

func TestReportMissingDatabase(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out, "--db", "/nonexistent/stats.db")

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "statistics database not found")
}

func TestReportRequiresDBFlag(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := newReportCmd("text", out)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"db"`)
}
