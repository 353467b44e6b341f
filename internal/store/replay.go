package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/rdfstamp/internal/backend"
)

// ReplayResult summarizes a Replay run.
type ReplayResult struct {
	Target    string `json:"target"`
	Delivered int    `json:"delivered"`
	Updates   int    `json:"updates"`
	Remaining int    `json:"remaining"`
}

// Replay re-delivers every batch not yet delivered to target, in seq order,
// one dst transaction per batch. Each transaction carries the batch's
// journaled identity and digests as a backend.BatchInfo.
//
// Delivery is recorded only after dst commits, so a batch is re-sent if the
// process dies in between. Replay stops at the first failing batch to keep
// batches ordered at the target; the result counts what was delivered.
func (s *Store) Replay(ctx context.Context, dst backend.Backend, target string, logger *slog.Logger) (ReplayResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := ReplayResult{Target: target}

	pending, err := s.Undelivered(ctx, target)
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}
	res.Remaining = len(pending)

	for _, b := range pending {
		records, err := s.UpdateRecords(ctx, b.ID)
		if err != nil {
			return res, fmt.Errorf("replay batch %s: %w", b.ID, err)
		}
		updates := make([]string, len(records))
		info := backend.BatchInfo{ID: b.ID, Seq: b.BatchSeq, Digests: make([]string, len(records))}
		for i, r := range records {
			updates[i] = r.Text
			info.Digests[i] = r.Digest
		}

		if err := deliver(backend.WithBatch(ctx, info), dst, updates); err != nil {
			return res, fmt.Errorf("replay batch %s: %w", b.ID, err)
		}
		if err := s.MarkDelivered(ctx, b.ID, target); err != nil {
			return res, fmt.Errorf("replay batch %s: %w", b.ID, err)
		}

		res.Delivered++
		res.Updates += len(updates)
		res.Remaining--
		logger.Info("batch replayed", "target", target, "batch", b.ID, "seq", b.Seq, "updates", len(updates))
	}

	return res, nil
}

func deliver(ctx context.Context, dst backend.Backend, updates []string) error {
	tx, err := dst.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for i, u := range updates {
		if err := tx.Exec(ctx, u); err != nil {
			tx.Rollback()
			return fmt.Errorf("update %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
