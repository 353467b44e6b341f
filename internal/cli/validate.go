package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rdfstamp/internal/harness"
)

// ValidateResult is the validate command's report.
type ValidateResult struct {
	Config    string          `json:"config"`
	Target    string          `json:"target"`
	Backend   string          `json:"backend"`
	Workers   int             `json:"workers"`
	QueueSize int             `json:"queue_size"`
	KeyMode   string          `json:"key_mode"`
	Scenarios int             `json:"scenarios"`
	Errors    []ValidateError `json:"errors,omitempty"`
}

// ValidateError is one validation failure.
type ValidateError struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [scenario-path...]",
		Short: "Validate configuration, templates and scenarios",
		Long: `Validate the CUE configuration against its schema, load any template
overrides and parse the given scenario files or directories.

Exit codes:
  0 - Everything is valid
  1 - Validation failed
  2 - Command error

Examples:
  rdfstamp validate --config rdfstamp.cue
  rdfstamp validate --config rdfstamp.cue ./scenarios
  rdfstamp validate ./scenarios --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	result := ValidateResult{Config: opts.Config}
	if result.Config == "" {
		result.Config = "(defaults)"
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		result.Errors = append(result.Errors, ValidateError{Code: ErrCodeConfig, Path: opts.Config, Message: err.Error()})
		return outputValidate(opts, cmd, result)
	}

	result.Target = cfg.TargetName()
	result.Workers = cfg.Workers
	result.QueueSize = cfg.QueueSize
	result.KeyMode = cfg.KeyMode.String()
	switch {
	case cfg.Database != "":
		result.Backend = "journal"
	case cfg.Endpoint != "":
		result.Backend = "sparql"
	default:
		result.Backend = "none"
	}

	if _, err := cfg.LoadTemplates(); err != nil {
		result.Errors = append(result.Errors, ValidateError{Code: ErrCodeTemplates, Message: err.Error()})
	}

	for _, path := range paths {
		files, err := scenarioFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, ValidateError{Code: ErrCodeScenario, Path: path, Message: err.Error()})
			continue
		}
		for _, f := range files {
			if _, err := harness.LoadScenario(f); err != nil {
				result.Errors = append(result.Errors, ValidateError{Code: ErrCodeScenario, Path: f, Message: err.Error()})
				continue
			}
			result.Scenarios++
		}
	}

	return outputValidate(opts, cmd, result)
}

// scenarioFiles expands a file or directory argument.
func scenarioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	return harness.FindScenarios(path)
}

func outputValidate(opts *RootOptions, cmd *cobra.Command, result ValidateResult) error {
	f := NewFormatter(opts, cmd)

	if opts.Format == "json" {
		var cliErr *CLIError
		if len(result.Errors) > 0 {
			cliErr = &CLIError{
				Code:    result.Errors[0].Code,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			}
		}
		if err := f.JSON(result, cliErr); err != nil {
			return err
		}
	} else {
		w := f.Writer
		for _, e := range result.Errors {
			if e.Path != "" {
				fmt.Fprintf(w, "✗ [%s] %s: %s\n", e.Code, e.Path, e.Message)
			} else {
				fmt.Fprintf(w, "✗ [%s] %s\n", e.Code, e.Message)
			}
		}
		if len(result.Errors) == 0 {
			fmt.Fprintf(w, "✓ config %s (backend %s, target %s, %d worker(s), key mode %s)\n",
				result.Config, result.Backend, result.Target, result.Workers, result.KeyMode)
			fmt.Fprintf(w, "✓ templates\n")
			if result.Scenarios > 0 {
				fmt.Fprintf(w, "✓ %d scenario(s)\n", result.Scenarios)
			}
		}
	}

	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}
