package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jacquard/internal/statstore"
)

const passingScenario = `name: cli-smoke
description: one full evaluation on a single-subsystem system
system:
  name: solo
  subsystems:
    - name: only
      rows: 2
steps:
  - eval:
      time: 0.0
      cj: 1.0
      expect:
        strategy: full
expect:
  full_updates: 1
`

const failingScenario = `name: cli-mismatch
description: wrong strategy expectation to exercise the failure paths
system:
  name: solo
  subsystems:
    - name: only
      rows: 2
steps:
  - eval:
      time: 0.0
      cj: 1.0
      expect:
        strategy: partial
`

const storedScenario = `name: cli-stored
description: records a run into the statistics database
run_id: cli-run-1
system:
  name: grid-pair
  subsystems:
    - name: north
      rows: 2
    - name: south
      rows: 2
steps:
  - eval:
      time: 0.0
      cj: 1.0
      expect:
        strategy: full
  - converge:
      converged: true
      iterations: 2
expect:
  full_updates: 1
`

func writeScenarioFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newSimulateCmd(format string, out, errOut *bytes.Buffer, args ...string) *cobra.Command {
	rootOpts := &RootOptions{Format: format}
	cmd := NewSimulateCommand(rootOpts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	return cmd
}

func TestSimulateScenarioPasses(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "smoke.yaml", passingScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, path)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ cli-smoke")
}

func TestSimulateScenarioJSON(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "smoke.yaml", passingScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("json", out, errOut, path)

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cli-smoke", data["scenario"])
	assert.Equal(t, true, data["pass"])
	assert.Equal(t, float64(1), data["full_updates"])
}

func TestSimulateFailingScenario(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "mismatch.yaml", failingScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, path)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "cli-mismatch failed with 1 error(s)")

	output := out.String()
	assert.Contains(t, output, "✗ cli-mismatch")
	assert.Contains(t, output, "strategy mismatch")
	assert.Contains(t, output, "expected: partial")
}

func TestSimulateScenarioLoadError(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "broken.yaml", "name: [unterminated\n")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, path)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestSimulateMissingPath(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, "/nonexistent/scenario.yaml")

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestSimulateSuiteDirectory(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "a_smoke.yaml", passingScenario)
	writeScenarioFile(t, dir, "b_stored.yaml", storedScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, dir)

	err := cmd.Execute()
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "Suite summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestSimulateSuiteFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "a_smoke.yaml", passingScenario)
	writeScenarioFile(t, dir, "b_mismatch.yaml", failingScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, dir)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 scenario(s) failed")

	output := out.String()
	assert.Contains(t, output, "✗ cli-mismatch")
	assert.Contains(t, output, "Suite summary: 1 passed, 1 failed, 2 total")
}

func TestSimulateSuiteJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "a_smoke.yaml", passingScenario)
	writeScenarioFile(t, dir, "b_stored.yaml", storedScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("json", out, errOut, dir)

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total_scenarios"])
	assert.Equal(t, float64(2), data["passed"])
}

func TestSimulateSuiteEmptyDir(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, t.TempDir())

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to run scenario suite")
}

func TestSimulateWithStore(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "stored.yaml", storedScenario)
	dbPath := filepath.Join(t.TempDir(), "stats.db")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, path, "--db", dbPath)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Run recorded: cli-run-1")

	// The run is readable after the command closed its store
	store, err := statstore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	run, err := store.GetRun(context.Background(), "cli-run-1")
	require.NoError(t, err)
	assert.Equal(t, "grid-pair", run.SystemName)
	assert.True(t, run.Finished())
	assert.Equal(t, int64(1), run.Stats.FullUpdates)
}

func TestSimulateReportFlag(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "smoke.yaml", passingScenario)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newSimulateCmd("text", out, errOut, path, "--report")

	err := cmd.Execute()
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "Jacobian Maintenance Report")
	assert.Contains(t, output, "Full updates")
}
