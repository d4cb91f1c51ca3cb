package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/jacquard/internal/statstore"
)

// SuiteResult summarizes a directory of scenario runs.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario: a load failure, a run failure,
// or collected expectation mismatches.
type ScenarioFailure struct {
	Scenario string `json:"scenario"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// RunSuite loads and runs every *.yaml scenario under dir, in lexical
// order. A non-nil store persists each run. Scenario failures are
// collected in the result; only an unreadable directory is an error.
func RunSuite(ctx context.Context, dir string, store *statstore.Store) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files under %s", dir)
	}
	sort.Strings(paths)

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: strings.TrimSuffix(filepath.Base(path), ".yaml"),
				Path:     path,
				Error:    fmt.Sprintf("load failed: %v", err),
			})
			continue
		}

		var result *Result
		if store != nil {
			result, _, err = RunWithStore(ctx, scenario, store, nil)
		} else {
			result, err = Run(ctx, scenario)
		}
		if err != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Error:    fmt.Sprintf("run failed: %v", err),
			})
			continue
		}

		if !result.Pass {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Error:    strings.Join(result.Errors, "\n"),
			})
			continue
		}
		suite.Passed++
	}
	return suite, nil
}

// Pass reports whether every scenario in the suite passed.
func (s *SuiteResult) Pass() bool {
	return s.Failed == 0
}
