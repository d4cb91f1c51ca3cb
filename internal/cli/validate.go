package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jacquard/internal/compiler"
)

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <system-dir>",
		Short: "Validate a system definition",
		Long: `Validate a CUE system definition and its optional tuning block.

Compiles the definition and checks structural rules: contiguous index
ranges, dense subsystem IDs, resolvable coupling and component references,
and tuning parameters within their allowed ranges. No engine is started.

Exit codes:
  0 - Definition valid
  1 - Definition invalid
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true, // errors render through the formatter
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Collect-all mode: every problem in the definition surfaces in one pass.
	loadResult, loadErrors := LoadSystem(dir, LoadModeCollectAll)
	if loadResult == nil {
		code, message := ErrCodeGeneric, loadErrors[0].Error()
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			code, message = loadErr.Code, loadErr.Message
		}
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	// Compile errors first, in load order, then structural rules on
	// whatever compiled.
	findings := loadErrorsToValidation(loadErrors)
	if loadResult.System != nil {
		formatter.VerboseLog("Validating system: %s", loadResult.System.Name)
		findings = append(findings, compiler.Validate(loadResult.System)...)
	}
	findings = append(findings, compiler.Validate(loadResult.Config)...)

	if len(findings) > 0 {
		return renderInvalid(formatter, findings)
	}
	return renderValid(formatter)
}

// loadErrorsToValidation converts loader errors into validation errors so
// both kinds render through one path.
func loadErrorsToValidation(loadErrors []error) []compiler.ValidationError {
	var findings []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			findings = append(findings, compiler.ValidationError{
				Field:   "load",
				Message: err.Error(),
				Code:    ErrCodeGeneric,
			})
			continue
		}
		field := loadErr.Field
		if field == "" {
			field = "load"
		}
		finding := compiler.ValidationError{
			Field:   field,
			Message: loadErr.Message,
			Code:    loadErr.Code,
		}
		if loadErr.Pos.IsValid() {
			finding.Line = loadErr.Pos.Line()
		}
		findings = append(findings, finding)
	}
	return findings
}

// renderValid reports a clean definition.
func renderValid(f *OutputFormatter) error {
	if f.Format == "json" {
		return f.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(f.Writer, "✓ System definition valid")
	return nil
}

// renderInvalid reports findings and maps an invalid definition to exit
// code 1.
func renderInvalid(f *OutputFormatter, findings []compiler.ValidationError) error {
	if f.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: findings},
			Error:  &CLIError{Code: findings[0].Code, Message: findings[0].Message},
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		fmt.Fprintln(f.Writer)
		for _, finding := range findings {
			if finding.Line > 0 {
				fmt.Fprintf(f.Writer, "line %d\n", finding.Line)
			}
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", finding.Code, finding.Field, finding.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(findings)))
}

// ValidateSystemDir validates the system definition in a directory.
// Validation findings come back in the slice, load failures as the error.
func ValidateSystemDir(dir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadSystem(dir, LoadModeCollectAll)
	if loadResult == nil {
		return nil, loadErrors[0]
	}

	findings := loadErrorsToValidation(loadErrors)
	if loadResult.System != nil {
		findings = append(findings, compiler.Validate(loadResult.System)...)
	}
	findings = append(findings, compiler.Validate(loadResult.Config)...)
	return findings, nil
}
