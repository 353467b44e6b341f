package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rdfstamp/internal/engine"
	"github.com/roach88/rdfstamp/internal/harness"
	"github.com/roach88/rdfstamp/internal/store"
)

// RunResult is the run command's report.
type RunResult struct {
	Backend   string           `json:"backend"`
	Target    string           `json:"target"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Batches   int              `json:"batches"`
	Failed    int              `json:"failed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenarios against the configured store",
		Long: `Run scenarios and write their audit batches to the configured backing
store: the SQLite journal when database is set, otherwise the SPARQL
endpoint. Use this to seed a journal or smoke-test an endpoint.

Scenarios run one at a time, in argument order.

Exit codes:
  0 - All scenarios passed and every batch was accepted
  1 - A scenario failed or the store rejected a batch
  2 - Command error (bad config, no backing store)

Examples:
  rdfstamp run --config rdfstamp.cue scenarios/insert_commit.yaml
  rdfstamp run -c prod.cue smoke/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runScenarios(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	tpl, err := cfg.LoadTemplates()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid templates", err)
	}

	f := NewFormatter(opts, cmd)
	logger := opts.newLogger(f.GetErrWriter())

	b, closeBackend, err := openBackend(cfg, logger)
	if errors.Is(err, errNoBackend) {
		return WrapExitError(ExitCommandError, "cannot run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer closeBackend()

	result := RunResult{Backend: "sparql", Target: cfg.TargetName()}
	if cfg.Database != "" {
		result.Backend = "journal"
	}

	pool := cfg.NewPool(logger)
	defer pool.Close()
	engineOpts := append(cfg.EngineOptions(logger), engine.WithPool(pool))

	// Journaled batches keep the engine's ID and sequence number, so IDs
	// must be unique across runs and sequence numbers continue from the journal.
	engineOpts = append(engineOpts, engine.WithBatchIDs(engine.UUIDv7Generator{}))
	if st, ok := b.(*store.Store); ok {
		last, err := st.LastBatchSeq(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		engineOpts = append(engineOpts, engine.WithClock(engine.NewClockAt(last)))
	}

	// Sequential so journal order follows argument order.
	outcomes := harness.RunFiles(cmd.Context(), paths, 1,
		harness.WithTemplates(tpl),
		harness.WithLogger(logger),
		harness.WithBackend(b),
		harness.WithEngineOptions(engineOpts...),
	)
	for _, out := range outcomes {
		sr := ScenarioResult{Name: out.Path, File: out.Path}
		switch {
		case out.Err != nil:
			sr.Errors = []string{out.Err.Error()}
		default:
			sr.Name = out.Scenario.Name
			sr.Errors = out.Result.Errors
			sr.Pass = out.Result.Pass
			result.Batches += len(out.Result.Committed)
		}
		if !sr.Pass {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if opts.Format == "json" {
		var cliErr *CLIError
		if result.Failed > 0 {
			cliErr = &CLIError{
				Code:    ErrCodeTestFailed,
				Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
			}
		}
		if err := f.JSON(result, cliErr); err != nil {
			return err
		}
	} else {
		w := f.Writer
		for _, s := range result.Scenarios {
			mark := "✓"
			if !s.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s\n", mark, s.Name)
			for _, e := range s.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		fmt.Fprintf(w, "\n%d batch(es) written to %s (%s)\n", result.Batches, result.Target, result.Backend)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
