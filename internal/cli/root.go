package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/jacquard/internal/sysdef"
)

// RootOptions carries the persistent flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string // one of ValidFormats
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand assembles the jacquard command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "jacquard",
		Version: fmt.Sprintf("%s (schema %s)", sysdef.EngineVersion, sysdef.SchemaVersion),
		Short:   "Jacquard - selective Jacobian maintenance",
		Long: "Selective Jacobian maintenance for Newton-type DAE solvers: decide " +
			"after each mode change whether the sparse Jacobian is rebuilt, patched " +
			"block-by-block, or reused unchanged.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		NewValidateCommand(opts),
		NewSimulateCommand(opts),
		NewReportCommand(opts),
	)

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
