package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/projector/internal/harness"
)

// ValidatedScenario is the validation outcome of one file.
type ValidatedScenario struct {
	File  string `json:"file"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Path  string `json:"path,omitempty"` // schema path of the first violation
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                `json:"valid"`
	Scenarios []ValidatedScenario `json:"scenarios"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario files against the scenario schema and check
their references (peers, join order, assertion fields) without running
them.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := newPrinter(opts, cmd.OutOrStdout())

	files, err := findScenarioFiles(paths, "")
	if err != nil {
		if out.json() {
			return out.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil, nil)
		}
		return err
	}
	if len(files) == 0 {
		return out.fail(ExitCommandError, ErrCodeNotFound, "no scenario files found", nil, nil)
	}

	result := ValidationResult{Valid: true, Scenarios: make([]ValidatedScenario, 0, len(files))}
	for _, file := range files {
		vs := ValidatedScenario{File: file, Valid: true}
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			vs.Valid = false
			vs.Error = err.Error()
			var se *harness.SchemaError
			if errors.As(err, &se) {
				vs.Path = se.Path
			}
			result.Valid = false
		} else {
			vs.Name = scenario.Name
		}
		opts.logger().Debug("scenario validated", "file", file, "valid", vs.Valid)
		result.Scenarios = append(result.Scenarios, vs)
	}

	text := func(w io.Writer) {
		for _, vs := range result.Scenarios {
			if vs.Valid {
				fmt.Fprintf(w, "✓ %s (%s)\n", vs.File, vs.Name)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n", vs.File)
			fmt.Fprintf(w, "  %s\n", vs.Error)
		}
	}
	if !result.Valid {
		return out.fail(ExitFailure, ErrCodeInvalidScenario, "validation failed", result, text)
	}
	return out.ok(result, func(w io.Writer) {
		text(w)
		fmt.Fprintln(w, "✓ All scenarios valid")
	})
}
