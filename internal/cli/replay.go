package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rdfstamp/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Endpoint string
	Target   string
	DryRun   bool
}

// ReplayReport is the replay command's report.
type ReplayReport struct {
	Database string `json:"database"`
	Endpoint string `json:"endpoint"`
	DryRun   bool   `json:"dry_run,omitempty"`
	store.ReplayResult
	Pending []store.BatchRecord `json:"pending,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Deliver journaled batches to a SPARQL endpoint",
		Long: `Deliver every journaled audit batch not yet delivered to the target, in
journal order, one update request per batch.

Delivery is tracked per target, so running replay again only sends batches
recorded since the last run. Replay stops at the first batch the endpoint
rejects; later batches stay pending.

--db and --endpoint default to database and endpoint from --config. The
target name defaults to target from --config, then to the endpoint URL.

Exit codes:
  0 - Every pending batch was delivered
  1 - Replay stopped at a rejected batch
  2 - Command error (journal not found, no endpoint)

Examples:
  rdfstamp replay --db audit.db --endpoint http://localhost:3030/ds/update
  rdfstamp replay -c rdfstamp.cue --dry-run
  rdfstamp replay -c rdfstamp.cue --target mirror --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite journal")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "SPARQL update endpoint URL")
	cmd.Flags().StringVar(&opts.Target, "target", "", "delivery target name")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list pending batches without delivering them")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	db := opts.Database
	if db == "" {
		db = cfg.Resolve(cfg.Database)
	}
	if db == "" {
		return NewExitError(ExitCommandError, "no journal: set --db or database in config")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	if endpoint == "" && !opts.DryRun {
		return NewExitError(ExitCommandError, "no endpoint: set --endpoint or endpoint in config")
	}
	target := opts.Target
	switch {
	case target != "":
	case cfg.Target != "":
		target = cfg.Target
	default:
		target = endpoint
	}

	st, err := store.Open(db)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	f := NewFormatter(opts.RootOptions, cmd)
	report := ReplayReport{Database: db, Endpoint: endpoint, DryRun: opts.DryRun}
	report.Target = target

	if opts.DryRun {
		pending, err := st.Undelivered(ctx, target)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		report.Pending = pending
		report.Remaining = len(pending)
		return outputReplay(opts, f, report, nil)
	}

	f.VerboseLog("Replaying %s to %s as target %q", db, endpoint, target)
	logger := opts.newLogger(f.GetErrWriter())
	client := newClient(cfg, endpoint, logger)

	res, replayErr := st.Replay(ctx, client, target, logger)
	report.ReplayResult = res
	return outputReplay(opts, f, report, replayErr)
}

func outputReplay(opts *ReplayOptions, f *OutputFormatter, report ReplayReport, replayErr error) error {
	if opts.Format == "json" {
		var cliErr *CLIError
		if replayErr != nil {
			cliErr = &CLIError{Code: ErrCodeReplayFailed, Message: replayErr.Error()}
		}
		if err := f.JSON(report, cliErr); err != nil {
			return err
		}
	} else {
		w := f.Writer
		if report.DryRun {
			for _, b := range report.Pending {
				fmt.Fprintf(w, "%6d  %s  %s  %d update(s)\n", b.Seq, b.ID, b.RecordedAt, b.UpdateCount)
			}
			fmt.Fprintf(w, "%d batch(es) pending for %s\n", report.Remaining, report.Target)
		} else {
			fmt.Fprintf(w, "Delivered %d batch(es), %d update(s) to %s\n", report.Delivered, report.Updates, report.Target)
			if replayErr != nil {
				fmt.Fprintf(w, "✗ %v\n", replayErr)
				fmt.Fprintf(w, "%d batch(es) still pending\n", report.Remaining)
			}
		}
	}

	if replayErr != nil {
		return WrapExitError(ExitFailure, "replay stopped", replayErr)
	}
	return nil
}
