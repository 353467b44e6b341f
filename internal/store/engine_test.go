package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdfstamp/internal/engine"
	"github.com/roach88/rdfstamp/internal/rdf"
	"github.com/roach88/rdfstamp/internal/store"
)

// recordLabels journals one engine batch per label, each inserting
// <http://ex/s> <http://ex/label> "label".
func recordLabels(t *testing.T, st *store.Store, labels ...string) {
	t.Helper()
	eng := engine.New(st, nil,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithBatchIDs(engine.NewFixedGenerator()),
	)
	ents := rdf.NewMapEntities()
	s := ents.Put(rdf.IRI("http://ex/s"))
	p := ents.Put(rdf.IRI("http://ex/label"))

	for _, label := range labels {
		o := ents.Put(rdf.NewLiteral(label))
		eng.Start()
		eng.HandleStatement(s, p, o, rdf.NoContext, true, ents)
		eng.Commit()
		eng.Completed()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, eng.Wait(ctx))
		cancel()
	}
	require.NoError(t, eng.Close(context.Background()))
}

func TestJournal_EngineBatchesCarryIdentityAndDigests(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	// Precomposed vs. decomposed e-acute.
	recordLabels(t, st, "caf\u00e9", "cafe\u0301")

	batches, err := st.Batches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "batch-1", batches[0].ID, "journal keeps the engine's batch id")
	assert.Equal(t, int64(1), batches[0].BatchSeq)
	assert.Equal(t, "batch-2", batches[1].ID)
	assert.Equal(t, int64(2), batches[1].BatchSeq)

	first, err := st.UpdateRecords(ctx, "batch-1")
	require.NoError(t, err)
	second, err := st.UpdateRecords(ctx, "batch-2")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	assert.NotEqual(t, first[0].Text, second[0].Text, "audit text keeps the literal as written")
	assert.Len(t, first[0].Digest, 64)
	assert.Equal(t, first[0].Digest, second[0].Digest, "canonically equivalent literals share a digest")
}
