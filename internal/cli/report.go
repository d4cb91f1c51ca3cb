package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/jacquard/internal/profile"
	"github.com/roach88/jacquard/internal/statstore"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
}

// RunSummary is the wire form of a recorded run.
type RunSummary struct {
	ID            string    `json:"id"`
	SystemName    string    `json:"system_name"`
	Subsystems    int       `json:"subsystems"`
	Dimension     int       `json:"dimension"`
	EngineVersion string    `json:"engine_version"`
	StartedAt     time.Time `json:"started_at"`
	Finished      bool      `json:"finished"`
	Evaluations   int64     `json:"evaluations"`
}

// StrategyLine is the wire form of a run's per-strategy totals.
type StrategyLine struct {
	Strategy    string        `json:"strategy"`
	Count       int64         `json:"count"`
	DirtyBlocks int64         `json:"dirty_blocks"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// RunReport bundles one run with its recorded per-strategy totals.
type RunReport struct {
	Run            RunSummary     `json:"run"`
	StrategyTotals []StrategyLine `json:"strategy_totals"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Inspect recorded simulation runs",
		Long: `Inspect runs recorded in a statistics database.

Without a run ID, lists all recorded runs. With a run ID, prints the full
maintenance report for that run: factorization counts and timings,
structure-change bookkeeping, evaluation strategy breakdown, and the
per-strategy totals recorded with the run.

Examples:
  jacquard report --db ./stats.db
  jacquard report --db ./stats.db 01890a5d-ac96-774b-bcce-b302099a8057
  jacquard report --db ./stats.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite statistics database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReport(opts *ReportOptions, args []string, cmd *cobra.Command) error {
	// Opening would create an empty database, so reject missing paths first
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("statistics database not found: %s", opts.Database))
	}

	store, err := statstore.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open statistics database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 0 {
		return listRuns(ctx, opts, store, cmd)
	}
	return reportRun(ctx, opts, store, args[0], cmd)
}

// listRuns prints a one-line summary per recorded run.
func listRuns(ctx context.Context, opts *ReportOptions, store *statstore.Store, cmd *cobra.Command) error {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		summaries := make([]RunSummary, len(runs))
		for i, run := range runs {
			summaries[i] = summarizeRun(run)
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: summaries})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	pr := message.NewPrinter(language.English)
	for _, run := range runs {
		state := "running"
		if run.Finished() {
			state = "finished"
		}
		pr.Fprintf(w, "%s  %-24s  dim %d  %d evaluation(s)  %s  %s\n",
			run.ID, run.SystemName, run.Dimension, run.Stats.Evaluations(),
			run.StartedAt.Format(time.RFC3339), state)
	}
	pr.Fprintf(w, "\n%d run(s)\n", len(runs))
	return nil
}

// reportRun prints the full maintenance report for one run.
func reportRun(ctx context.Context, opts *ReportOptions, store *statstore.Store, runID string, cmd *cobra.Command) error {
	run, err := store.GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if !run.Finished() {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s has not finished; no statistics recorded", runID))
	}

	totals, err := store.StrategyTotalsForRun(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read strategy totals", err)
	}

	if opts.Format == "json" {
		report := RunReport{Run: summarizeRun(run)}
		for _, t := range totals {
			report.StrategyTotals = append(report.StrategyTotals, StrategyLine{
				Strategy:    t.Strategy,
				Count:       t.Count,
				DirtyBlocks: t.DirtyBlocks,
				Elapsed:     t.Elapsed,
			})
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: report, RunID: run.ID})
	}

	w := cmd.OutOrStdout()
	pr := message.NewPrinter(language.English)

	fmt.Fprintf(w, "Run %s\n", run.ID)
	pr.Fprintf(w, "  System:    %s (%d subsystems, dimension %d)\n", run.SystemName, run.Subsystems, run.Dimension)
	fmt.Fprintf(w, "  Engine:    %s\n", run.EngineVersion)
	fmt.Fprintf(w, "  Started:   %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Finished:  %s\n", run.FinishedAt.Format(time.RFC3339))
	fmt.Fprintln(w)

	if err := profile.WriteReport(w, run.Stats); err != nil {
		return err
	}

	if len(totals) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recorded evaluations by strategy:")
		for _, t := range totals {
			pr.Fprintf(w, "  %-8s %d evaluation(s), %d dirty block(s), %.6fs\n",
				t.Strategy, t.Count, t.DirtyBlocks, t.Elapsed.Seconds())
		}
	}

	return nil
}

// summarizeRun converts a stored run into its wire form.
func summarizeRun(run statstore.Run) RunSummary {
	return RunSummary{
		ID:            run.ID,
		SystemName:    run.SystemName,
		Subsystems:    run.Subsystems,
		Dimension:     run.Dimension,
		EngineVersion: run.EngineVersion,
		StartedAt:     run.StartedAt,
		Finished:      run.Finished(),
		Evaluations:   run.Stats.Evaluations(),
	}
}
