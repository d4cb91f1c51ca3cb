package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jacquard/internal/harness"
	"github.com/roach88/jacquard/internal/profile"
	"github.com/roach88/jacquard/internal/statstore"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
	Report   bool
}

// SimulationResult holds the outcome of a single scenario run.
type SimulationResult struct {
	Scenario         string   `json:"scenario"`
	Pass             bool     `json:"pass"`
	Errors           []string `json:"errors,omitempty"`
	RunID            string   `json:"run_id,omitempty"`
	Events           int      `json:"events"`
	FullUpdates      int64    `json:"full_updates"`
	PartialUpdates   int64    `json:"partial_updates"`
	Reuses           int64    `json:"reuses"`
	StructureChanges int64    `json:"structure_changes"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml|scenario-dir>",
		Short: "Run simulation scenarios",
		Long: `Run one scenario file, or every scenario in a directory, against the
Jacobian maintenance engine.

Each scenario declares its own system and drives the engine through mode
changes, evaluations, and convergence reports; embedded expectations are
checked against the engine's decisions. With --db, each run is recorded in
a SQLite statistics database for later inspection with the report command.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  jacquard simulate ./scenarios/breaker_trip.yaml --report
  jacquard simulate ./scenarios --db ./stats.db
  jacquard simulate ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs into this SQLite statistics database")
	cmd.Flags().BoolVar(&opts.Report, "report", false, "print the statistics report after a scenario run")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", path))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to access scenario path", err)
	}

	// Open the statistics database when requested (created if missing)
	var store *statstore.Store
	if opts.Database != "" {
		store, err = statstore.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open statistics database", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				slog.Error("error closing statistics database", "error", closeErr)
			}
		}()
	}

	// Tests inject a context through the command; fall back for direct use.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if info.IsDir() {
		return runScenarioSuite(ctx, opts, path, store, cmd)
	}
	return runSingleScenario(ctx, opts, path, store, cmd)
}

// runSingleScenario loads and runs one scenario file.
func runSingleScenario(ctx context.Context, opts *SimulateOptions, path string, store *statstore.Store, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var (
		result *harness.Result
		run    statstore.Run
	)
	if store != nil {
		result, run, err = harness.RunWithStore(ctx, scenario, store, nil)
	} else {
		result, err = harness.Run(ctx, scenario)
	}
	if err != nil {
		if opts.Format != "json" {
			fmt.Fprintf(w, "✗ %s\n  execution error: %v\n", scenario.Name, err)
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s aborted", scenario.Name), err)
	}

	sim := SimulationResult{
		Scenario:         scenario.Name,
		Pass:             result.Pass,
		Errors:           result.Errors,
		RunID:            run.ID,
		Events:           len(result.Trace),
		FullUpdates:      result.Stats.FullUpdates,
		PartialUpdates:   result.Stats.PartialUpdates,
		Reuses:           result.Stats.Reuses,
		StructureChanges: result.Stats.StructureChanges,
	}

	if opts.Format == "json" {
		return outputSimulationJSON(cmd, sim)
	}

	if sim.Pass {
		fmt.Fprintf(w, "✓ %s (%d events)\n", sim.Scenario, sim.Events)
	} else {
		fmt.Fprintf(w, "✗ %s\n", sim.Scenario)
		for _, e := range sim.Errors {
			for _, line := range strings.Split(e, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}
	if sim.RunID != "" {
		fmt.Fprintf(w, "Run recorded: %s\n", sim.RunID)
	}
	if opts.Report {
		fmt.Fprintln(w)
		if err := profile.WriteReport(w, result.Stats); err != nil {
			return err
		}
	}

	if !sim.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", sim.Scenario, len(sim.Errors)))
	}
	return nil
}

// runScenarioSuite runs every scenario file in a directory.
func runScenarioSuite(ctx context.Context, opts *SimulateOptions, dir string, store *statstore.Store, cmd *cobra.Command) error {
	suite, err := harness.RunSuite(ctx, dir, store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario suite", err)
	}

	if opts.Format == "json" {
		return outputSuiteJSON(cmd, suite)
	}

	w := cmd.OutOrStdout()
	for _, f := range suite.Failures {
		fmt.Fprintf(w, "✗ %s (%s)\n", f.Scenario, f.Path)
		for _, line := range strings.Split(f.Error, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Suite summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.TotalScenarios)

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// outputSimulationJSON outputs a single scenario result as JSON.
func outputSimulationJSON(cmd *cobra.Command, sim SimulationResult) error {
	status := "ok"
	if !sim.Pass {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   sim,
		RunID:  sim.RunID,
	}
	if !sim.Pass {
		response.Error = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("scenario %s failed with %d error(s)", sim.Scenario, len(sim.Errors)),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !sim.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", sim.Scenario, len(sim.Errors)))
	}
	return nil
}

// outputSuiteJSON outputs the suite result as JSON.
func outputSuiteJSON(cmd *cobra.Command, suite *harness.SuiteResult) error {
	status := "ok"
	if suite.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   suite,
	}
	if suite.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", suite.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}
