package store

import (
	"context"
	"database/sql"
	"fmt"
)

// BatchRecord is one journaled batch. Seq orders the journal; BatchSeq is
// the recording engine's sequence number, zero when none was supplied.
type BatchRecord struct {
	Seq         int64  `json:"seq"`
	ID          string `json:"id"`
	BatchSeq    int64  `json:"batch_seq,omitempty"`
	UpdateCount int    `json:"update_count"`
	RecordedAt  string `json:"recorded_at"`
}

// UpdateRecord is one journaled update.
type UpdateRecord struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
	Digest   string `json:"digest,omitempty"`
}

// Batches returns every journaled batch ordered by seq.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) Batches(ctx context.Context) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, batch_seq, update_count, recorded_at
		FROM audit_batches
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	return scanBatches(rows)
}

// Undelivered returns the batches not yet delivered to target, ordered by seq.
func (s *Store) Undelivered(ctx context.Context, target string) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.seq, b.id, b.batch_seq, b.update_count, b.recorded_at
		FROM audit_batches b
		WHERE NOT EXISTS (
			SELECT 1 FROM deliveries d WHERE d.batch_id = b.id AND d.target = ?
		)
		ORDER BY b.seq ASC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("query undelivered batches: %w", err)
	}
	return scanBatches(rows)
}

func scanBatches(rows *sql.Rows) ([]BatchRecord, error) {
	defer rows.Close()

	batches := []BatchRecord{}
	for rows.Next() {
		var b BatchRecord
		var batchSeq sql.NullInt64
		if err := rows.Scan(&b.Seq, &b.ID, &batchSeq, &b.UpdateCount, &b.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.BatchSeq = batchSeq.Int64
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// Updates returns the update texts of a batch in execution order.
func (s *Store) Updates(ctx context.Context, batchID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT update_text
		FROM audit_updates
		WHERE batch_id = ?
		ORDER BY position ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	updates := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

// UpdateRecords returns the updates of a batch with their statement digests,
// in execution order.
func (s *Store) UpdateRecords(ctx context.Context, batchID string) ([]UpdateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, update_text, statement_digest
		FROM audit_updates
		WHERE batch_id = ?
		ORDER BY position ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	records := []UpdateRecord{}
	for rows.Next() {
		var r UpdateRecord
		var digest sql.NullString
		if err := rows.Scan(&r.Position, &r.Text, &digest); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		r.Digest = digest.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return records, nil
}

// LastBatchSeq returns the highest engine sequence number journaled, or 0.
func (s *Store) LastBatchSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(batch_seq) FROM audit_batches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last batch seq: %w", err)
	}
	return seq.Int64, nil
}

// LastSeq returns the highest batch seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM audit_batches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}
