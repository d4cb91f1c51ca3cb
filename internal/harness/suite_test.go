package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jacquard/internal/statstore"
)

func TestRunSuitePasses(t *testing.T) {
	suite, err := RunSuite(context.Background(), "testdata/scenarios", nil)
	require.NoError(t, err)

	assert.True(t, suite.Pass(), "failures: %+v", suite.Failures)
	assert.Equal(t, suite.TotalScenarios, suite.Passed)
	assert.GreaterOrEqual(t, suite.TotalScenarios, 3)
}

func TestRunSuiteCollectsFailures(t *testing.T) {
	dir := t.TempDir()

	// Unloadable: missing description.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`name: bad
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`), 0o644))

	// Loads and runs, but the final expect misses.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(`name: failing
description: "final counter expectation misses"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0 }
expect:
  full_updates: 5
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(`name: good
description: "passes"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`), 0o644))

	suite, err := RunSuite(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, suite.TotalScenarios)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	assert.False(t, suite.Pass())

	require.Len(t, suite.Failures, 2)
	assert.Equal(t, "bad", suite.Failures[0].Scenario)
	assert.Contains(t, suite.Failures[0].Error, "load failed")
	assert.Equal(t, "failing", suite.Failures[1].Scenario)
	assert.Contains(t, suite.Failures[1].Error, "full_updates mismatch")
}

func TestRunSuiteEmptyDir(t *testing.T) {
	_, err := RunSuite(context.Background(), t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}

func TestRunSuiteWithStore(t *testing.T) {
	store, err := statstore.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	suite, err := RunSuite(ctx, "testdata/scenarios", store)
	require.NoError(t, err)
	assert.True(t, suite.Pass(), "failures: %+v", suite.Failures)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, suite.TotalScenarios)
	for _, run := range runs {
		assert.True(t, run.Finished(), "run %s never finished", run.ID)
	}
}
