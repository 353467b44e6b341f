package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/rdfstamp/internal/backend"
)

// ErrTxDone is returned when a finished journal transaction is used again.
var ErrTxDone = errors.New("journal transaction already finished")

// Begin starts a journal transaction. It implements backend.Backend.
//
// The batch row is inserted immediately so updates can reference it; rolling
// back removes it again. When ctx carries a backend.BatchInfo the row takes
// the engine's batch ID and sequence number and each update its statement
// digest. Otherwise the row gets a fresh UUIDv7.
func (s *Store) Begin(ctx context.Context) (backend.Tx, error) {
	info, ok := backend.BatchFromContext(ctx)
	if !ok || info.ID == "" {
		info.ID = uuid.Must(uuid.NewV7()).String()
	}
	var seq sql.NullInt64
	if info.Seq > 0 {
		seq = sql.NullInt64{Int64: info.Seq, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("journal begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_batches (id, update_count, recorded_at, batch_seq)
		VALUES (?, 0, ?, ?)
	`, info.ID, s.timestamp(), seq); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("journal begin: insert batch: %w", err)
	}

	return &journalTx{tx: tx, info: info}, nil
}

// journalTx appends one batch to the journal.
type journalTx struct {
	tx   *sql.Tx
	info backend.BatchInfo
	n    int
	done bool
}

// Exec appends an update to the batch.
func (j *journalTx) Exec(ctx context.Context, update string) error {
	if j.done {
		return ErrTxDone
	}
	var digest sql.NullString
	if d := j.info.Digest(j.n); d != "" {
		digest = sql.NullString{String: d, Valid: true}
	}
	if _, err := j.tx.ExecContext(ctx, `
		INSERT INTO audit_updates (batch_id, position, update_text, statement_digest)
		VALUES (?, ?, ?, ?)
	`, j.info.ID, j.n, update, digest); err != nil {
		return fmt.Errorf("journal exec: %w", err)
	}
	j.n++
	return nil
}

// Commit records the update count and commits the batch.
func (j *journalTx) Commit() error {
	if j.done {
		return ErrTxDone
	}
	j.done = true

	if _, err := j.tx.Exec(`UPDATE audit_batches SET update_count = ? WHERE id = ?`, j.n, j.info.ID); err != nil {
		j.tx.Rollback()
		return fmt.Errorf("journal commit: %w", err)
	}
	if err := j.tx.Commit(); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// Rollback discards the batch.
func (j *journalTx) Rollback() error {
	if j.done {
		return nil
	}
	j.done = true
	if err := j.tx.Rollback(); err != nil {
		return fmt.Errorf("journal rollback: %w", err)
	}
	return nil
}

// MarkDelivered records that a batch reached target.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) MarkDelivered(ctx context.Context, batchID, target string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (batch_id, target, delivered_at)
		VALUES (?, ?, ?)
		ON CONFLICT(batch_id, target) DO NOTHING
	`, batchID, target, s.timestamp())
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}
