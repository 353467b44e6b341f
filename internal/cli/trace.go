package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rdfstamp/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	Batch       string // show one batch with its updates
	Undelivered string // only batches not yet delivered to this target
}

// TraceBatch is one journaled batch, with its updates when requested.
type TraceBatch struct {
	store.BatchRecord
	Updates []store.UpdateRecord `json:"updates,omitempty"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Database string       `json:"database"`
	Batches  []TraceBatch `json:"batches"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the listed batches.
type TraceStats struct {
	Batches int   `json:"batches"`
	Updates int   `json:"updates"`
	LastSeq int64 `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled audit batches",
		Long: `List the audit batches recorded in a SQLite journal, in commit order.

Batch IDs and batch sequence numbers match the engine's "audit batch
committed" log lines. With --batch, print that batch's updates in execution
order, each with the digest of the statement it records. With
--undelivered, list only batches replay has not yet delivered to the named
target.

--db defaults to database from --config.

Exit codes:
  0 - Success
  1 - Batch not found
  2 - Command error (journal not found, etc.)

Examples:
  rdfstamp trace --db audit.db
  rdfstamp trace --db audit.db --batch 0192f3c4-...
  rdfstamp trace -c rdfstamp.cue --undelivered mirror --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite journal")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "show a single batch with its updates")
	cmd.Flags().StringVar(&opts.Undelivered, "undelivered", "", "list batches not yet delivered to this target")
	cmd.MarkFlagsMutuallyExclusive("batch", "undelivered")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	db := opts.Database
	if db == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		db = cfg.Resolve(cfg.Database)
	}
	if db == "" {
		return NewExitError(ExitCommandError, "no journal: set --db or database in config")
	}

	st, err := store.Open(db)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	var records []store.BatchRecord
	if opts.Undelivered != "" {
		records, err = st.Undelivered(ctx, opts.Undelivered)
	} else {
		records, err = st.Batches(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{Database: db, Batches: []TraceBatch{}}
	result.Stats.LastSeq, err = st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	for _, r := range records {
		if opts.Batch != "" && r.ID != opts.Batch {
			continue
		}
		tb := TraceBatch{BatchRecord: r}
		if opts.Batch != "" {
			tb.Updates, err = st.UpdateRecords(ctx, r.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read journal", err)
			}
		}
		result.Batches = append(result.Batches, tb)
		result.Stats.Batches++
		result.Stats.Updates += r.UpdateCount
	}

	f := NewFormatter(opts.RootOptions, cmd)
	if opts.Batch != "" && len(result.Batches) == 0 {
		msg := fmt.Sprintf("batch not found: %s", opts.Batch)
		if err := f.Error(ErrCodeDatabase, msg, map[string]string{"database": db}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	if opts.Format == "json" {
		return f.JSON(result, nil)
	}
	outputTraceText(f, result)
	return nil
}

func outputTraceText(f *OutputFormatter, result TraceResult) {
	w := f.Writer
	if len(result.Batches) == 0 {
		fmt.Fprintln(w, "No batches.")
		return
	}
	for _, b := range result.Batches {
		fmt.Fprintf(w, "%6d  %s  %s  %d update(s)", b.Seq, b.ID, b.RecordedAt, b.UpdateCount)
		if b.BatchSeq > 0 {
			fmt.Fprintf(w, "  batch seq %d", b.BatchSeq)
		}
		fmt.Fprintln(w)
		for _, u := range b.Updates {
			fmt.Fprintf(w, "  [%d] %s\n", u.Position+1, u.Text)
			if u.Digest != "" {
				fmt.Fprintf(w, "      digest %s\n", u.Digest)
			}
		}
	}
	fmt.Fprintf(w, "\n%d batch(es), %d update(s), last seq %d\n",
		result.Stats.Batches, result.Stats.Updates, result.Stats.LastSeq)
}
