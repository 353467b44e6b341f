package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdfstamp/internal/backend"
)

func TestBatches_EmptyJournal(t *testing.T) {
	s := createTestStore(t)

	batches, err := s.Batches(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, batches)
	assert.Empty(t, batches)
}

func TestUpdates_UnknownBatch(t *testing.T) {
	s := createTestStore(t)

	updates, err := s.Updates(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	journal(t, s, "a")
	journal(t, s, "b")

	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestLastBatchSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastBatchSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	for _, info := range []backend.BatchInfo{{ID: "b-41", Seq: 41}, {ID: "b-42", Seq: 42}} {
		tx, err := s.Begin(backend.WithBatch(ctx, info))
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}
	journal(t, s, "no engine seq")

	seq, err = s.LastBatchSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}

func TestUpdateRecords_UnknownBatch(t *testing.T) {
	s := createTestStore(t)

	records, err := s.UpdateRecords(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestUndelivered_PerTarget(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	journal(t, s, "a")
	journal(t, s, "b")
	batches, err := s.Batches(ctx)
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered(ctx, batches[0].ID, "one"))

	pending, err := s.Undelivered(ctx, "one")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, batches[1].ID, pending[0].ID)

	pending, err = s.Undelivered(ctx, "two")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
