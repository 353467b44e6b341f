package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdfstamp/internal/audit"
	"github.com/roach88/rdfstamp/internal/rdf"
	"github.com/roach88/rdfstamp/internal/testutil"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	eng     *Engine
	backend *testutil.RecordingBackend
	ents    *rdf.MapEntities

	mu      sync.Mutex
	results []BatchResult
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		backend: testutil.NewRecordingBackend(),
		ents:    rdf.NewMapEntities(),
	}
	base := []Option{
		WithLogger(discardLogger),
		WithBatchIDs(NewFixedGenerator()),
		WithObserver(func(r BatchResult) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.results = append(f.results, r)
		}),
	}
	f.eng = New(f.backend, nil, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.eng.Close(ctx)
	})
	return f
}

// ids interns s, p, o (and g when non-empty) as IRIs.
func (f *fixture) ids(s, p, o, g string) (int64, int64, int64, int64) {
	ctx := rdf.NoContext
	if g != "" {
		ctx = f.ents.Put(rdf.IRI(g))
	}
	return f.ents.Put(rdf.IRI(s)), f.ents.Put(rdf.IRI(p)), f.ents.Put(rdf.IRI(o)), ctx
}

func (f *fixture) add(s, p, o, g string) bool {
	si, pi, oi, gi := f.ids(s, p, o, g)
	return f.eng.HandleStatement(si, pi, oi, gi, true, f.ents)
}

func (f *fixture) remove(s, p, o, g string) {
	si, pi, oi, gi := f.ids(s, p, o, g)
	f.eng.HandleStatement(si, pi, oi, gi, false, f.ents)
}

func (f *fixture) removeTagged(s, p, o, g string, origin audit.Origin) {
	si, pi, oi, gi := f.ids(s, p, o, g)
	f.eng.HandleRemoval(si, pi, oi, gi, origin, f.ents)
}

func (f *fixture) requestDelete(s, p, o, g string) {
	si, pi, oi, gi := f.ids(s, p, o, g)
	f.eng.RequestDelete(si, pi, oi, gi, f.ents)
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.eng.Wait(ctx), "batch did not finish")
}

func (f *fixture) batchResults() []BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BatchResult(nil), f.results...)
}

func TestEngine_SingleInsertEndToEnd(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	handled := f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	assert.False(t, handled, "the host must keep storing the statement")

	snap := f.eng.Snapshot()
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, MutationInsert, snap.Pending[0].Kind)
	assert.Equal(t, StateOpen, snap.State)

	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	committed := f.backend.Committed()
	require.Len(t, committed, 1)
	require.Len(t, committed[0], 1)
	assert.Equal(t,
		"insert { << <http://ex/s> <http://ex/p> <http://ex/o> >> <urn:versioning#valid_from> ?timestamp } where { bind(now() as ?timestamp) }",
		committed[0][0])

	snap = f.eng.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.False(t, snap.CommitInFlight)
	assert.Equal(t, StateIdle, snap.State)
}

func TestEngine_OneRecordPerDistinctKey(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			f.add("http://ex/s", "http://ex/p", fmt.Sprintf("http://ex/o%d", j), "")
		}
	}
	f.add("http://ex/s", "http://ex/p", "http://ex/o0", "http://ex/g")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	committed := f.backend.Committed()
	require.Len(t, committed, 1, "one host transaction commits as one remote transaction")
	assert.Len(t, committed[0], 6, "five default-graph keys plus one named-graph key")
}

func TestEngine_LooseKeysLatestTextWins(t *testing.T) {
	f := newFixture(t, WithKeyMode(rdf.KeyModeLoose))

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "http://ex/g")
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	updates := f.backend.Updates()
	require.Len(t, updates, 1)
	assert.NotContains(t, updates[0], "graph", "the later default-graph insert replaced the named-graph one")
}

func TestEngine_DeleteIntentWithoutRemovalIsMaterialized(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.requestDelete("http://ex/s", "http://ex/p", "http://ex/o", "http://ex/g")

	snap := f.eng.Snapshot()
	assert.Empty(t, snap.Pending, "intents stay out of the ledger until commit")
	assert.Len(t, snap.DeleteCandidates, 1)

	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	updates := f.backend.Updates()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "<urn:versioning#valid_until>")
	assert.Contains(t, updates[0], "graph <http://ex/g>")
	assert.Empty(t, f.eng.Snapshot().DeleteCandidates)
}

func TestEngine_ConfirmedRemovalSuppressesDeleteIntent(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.requestDelete("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.remove("http://ex/s", "http://ex/p", "http://ex/o", "")
	assert.True(t, f.eng.Snapshot().AnyRealDeleteSeen)

	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	assert.Empty(t, f.backend.Committed(), "no outdate record and nothing else to write")
	assert.Empty(t, f.eng.Snapshot().DeleteCandidates)
}

func TestEngine_InsertThenConfirmedDelete(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.remove("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.requestDelete("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	updates := f.backend.Updates()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "valid_from", "only the queued insert is committed")
	assert.False(t, f.eng.Snapshot().AnyRealDeleteSeen, "reset by Completed")
}

func TestEngine_DeleteIntentAfterRemovalIsDiscarded(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.remove("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.requestDelete("http://ex/s", "http://ex/p", "http://ex/o", "")

	assert.Empty(t, f.eng.Snapshot().DeleteCandidates)
	f.eng.Aborted()
}

func TestEngine_AnyRealDeleteGatesAllIntents(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.requestDelete("http://ex/a", "http://ex/p", "http://ex/o", "")
	f.remove("http://ex/b", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	assert.Empty(t, f.backend.Committed())
}

func TestEngine_TaggedRemovals(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.removeTagged("http://ex/rewritten", "http://ex/p", "http://ex/o", "", audit.OriginRewrite)
	assert.False(t, f.eng.Snapshot().AnyRealDeleteSeen, "rewrite removals are not real deletions")

	f.removeTagged("http://ex/gone", "http://ex/p", "http://ex/o", "", audit.OriginUser)
	f.requestDelete("http://ex/intent", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	updates := f.backend.Updates()
	require.Len(t, updates, 2)
	assert.Contains(t, updates[0], "<http://ex/gone>")
	assert.Contains(t, updates[1], "<http://ex/intent>")
	for _, u := range updates {
		assert.Contains(t, u, "valid_until")
	}
}

func TestEngine_AbortDiscardsEverything(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	for i := 0; i < 10; i++ {
		f.add("http://ex/s", "http://ex/p", fmt.Sprintf("http://ex/o%d", i), "")
	}
	f.requestDelete("http://ex/x", "http://ex/p", "http://ex/o", "")
	require.Len(t, f.eng.Snapshot().Pending, 10)

	f.eng.Aborted()
	f.eng.Commit() // a stray commit after abort has nothing to write
	f.wait(t)

	snap := f.eng.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.DeleteCandidates)
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, f.backend.Begun(), "no backing-store writes")
}

func TestEngine_EventsIgnoredWhileInFlight(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.backend.SetGate(gate)

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()

	require.True(t, f.eng.Snapshot().CommitInFlight, "Completed must not clear the in-flight flag")

	// Write-back echoes and anything else arriving now are self-caused.
	f.eng.Start()
	f.add("http://ex/echo", "http://ex/p", "http://ex/o", "")
	f.requestDelete("http://ex/echo", "http://ex/p", "http://ex/o", "")
	f.remove("http://ex/echo", "http://ex/p", "http://ex/o", "")

	snap := f.eng.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.DeleteCandidates)
	assert.False(t, snap.AnyRealDeleteSeen)
	assert.Equal(t, 3, snap.IgnoredInFlight)

	f.eng.Commit()
	f.eng.Completed()

	close(gate)
	f.wait(t)

	assert.Len(t, f.backend.Committed(), 1)
	assert.False(t, f.eng.Snapshot().CommitInFlight)
}

func TestEngine_CommitWhileInFlightIsRejected(t *testing.T) {
	var mu sync.Mutex
	var reported []*AuditError
	f := newFixture(t, WithErrorObserver(func(err *AuditError) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))
	gate := make(chan struct{})
	f.backend.SetGate(gate)

	f.eng.Start()
	f.add("http://ex/first", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()

	f.eng.Start()
	f.add("http://ex/second", "http://ex/p", "http://ex/o", "")
	f.requestDelete("http://ex/third", "http://ex/p", "http://ex/o", "")
	assert.Equal(t, 2, f.eng.Snapshot().IgnoredInFlight)

	f.eng.Commit()

	snap := f.eng.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.IgnoredInFlight)
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.DeleteCandidates)
	assert.True(t, snap.CommitInFlight, "the first batch still owns the flag")

	mu.Lock()
	got := append([]*AuditError(nil), reported...)
	mu.Unlock()
	require.Len(t, got, 1)
	collision := got[0]
	assert.Equal(t, ErrCodeCommitCollision, collision.Code)
	assert.Equal(t, "batch-1", collision.BatchID, "names the batch in flight")
	assert.Contains(t, collision.Message, "2 events not audited")

	f.eng.Completed()
	close(gate)
	f.wait(t)

	committed := f.backend.Committed()
	require.Len(t, committed, 1, "the rejected commit writes nothing")
	assert.Contains(t, committed[0][0], "http://ex/first")

	// The next transaction after the flight is recorded normally.
	f.eng.Start()
	f.add("http://ex/fourth", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	results := f.batchResults()
	require.Len(t, results, 2)
	assert.Equal(t, "batch-2", results[1].Batch.ID)
	assert.Less(t, results[0].Batch.Seq, results[1].Batch.Seq)
}

func TestEngine_BatchInfoReachesBackend(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o1", "")
	f.add("http://ex/s", "http://ex/p", "http://ex/o2", "http://ex/g")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	results := f.batchResults()
	require.Len(t, results, 1)
	b := results[0].Batch

	infos := f.backend.Batches()
	require.Len(t, infos, 1)
	assert.Equal(t, b.ID, infos[0].ID)
	assert.Equal(t, b.Seq, infos[0].Seq)
	require.Len(t, infos[0].Digests, 2)

	want := rdf.StatementKey{Subject: "<http://ex/s>", Predicate: "<http://ex/p>", Object: "<http://ex/o2>", Context: "<http://ex/g>"}
	assert.Equal(t, want.Digest(), infos[0].Digests[1])
	assert.NotEqual(t, infos[0].Digests[0], infos[0].Digests[1])
}

func TestEngine_DigestIgnoresUnicodeForm(t *testing.T) {
	f := newFixture(t)
	s, p, _, g := f.ids("http://ex/s", "http://ex/label", "http://ex/o", "")

	for _, label := range []string{"caf\u00e9", "cafe\u0301"} {
		o := f.ents.Put(rdf.NewLiteral(label))
		f.eng.Start()
		f.eng.HandleStatement(s, p, o, g, true, f.ents)
		f.eng.Commit()
		f.eng.Completed()
		f.wait(t)
	}

	infos := f.backend.Batches()
	require.Len(t, infos, 2)
	assert.Equal(t, infos[0].Digests, infos[1].Digests)
}

func TestEngine_BackendUnavailable(t *testing.T) {
	f := newFixture(t)
	f.backend.BeginErr = errors.New("connection refused")

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	results := f.batchResults()
	require.Len(t, results, 1)
	assert.True(t, IsBackendError(results[0].Err))
	assert.ErrorContains(t, results[0].Err, "connection refused")

	snap := f.eng.Snapshot()
	assert.False(t, snap.CommitInFlight, "flag cleared after failure")
	assert.Empty(t, snap.Pending, "failed batch is not requeued")
	assert.Equal(t, 1, f.backend.Begun(), "no retry")
}

func TestEngine_ExecFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.backend.FailExec = func(u string) error {
		if strings.Contains(u, "http://ex/o1") {
			return testutil.ErrInjected
		}
		return nil
	}

	f.eng.Start()
	for i := 0; i < 3; i++ {
		f.add("http://ex/s", "http://ex/p", fmt.Sprintf("http://ex/o%d", i), "")
	}
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	assert.Empty(t, f.backend.Committed())
	assert.Equal(t, 1, f.backend.Rollbacks())
	assert.Equal(t, 2, f.backend.Executions(), "execution stops at the failing update")

	results := f.batchResults()
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, testutil.ErrInjected)
	assert.ErrorContains(t, results[0].Err, "update 2 of 3")

	// The next transaction proceeds normally.
	f.backend.FailExec = nil
	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/next", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)
	assert.Len(t, f.backend.Committed(), 1)
}

type holeyEntities struct {
	*rdf.MapEntities
	nilID int64
}

func (h holeyEntities) Get(id int64) (rdf.Value, error) {
	if id == h.nilID {
		return nil, nil
	}
	return h.MapEntities.Get(id)
}

func TestEngine_UnrenderableStatementSkippedAlone(t *testing.T) {
	f := newFixture(t)
	ents := holeyEntities{MapEntities: f.ents, nilID: 4242}

	s, p, o, _ := f.ids("http://ex/s", "http://ex/p", "http://ex/o", "")

	f.eng.Start()
	f.eng.HandleStatement(s, p, 4242, rdf.NoContext, true, ents)
	f.eng.HandleStatement(s, p, 9999, rdf.NoContext, true, ents) // unresolvable
	f.eng.HandleStatement(s, p, o, rdf.NoContext, true, ents)
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	updates := f.backend.Updates()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "<http://ex/o>")
}

func TestEngine_StateTransitions(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.backend.SetGate(gate)

	assert.Equal(t, StateIdle, f.eng.State())

	f.eng.Start()
	assert.Equal(t, StateOpen, f.eng.State())

	f.eng.Commit()
	assert.Equal(t, StateIdle, f.eng.Snapshot().State, "empty ledger goes straight to idle")

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	assert.Equal(t, StateCommitting, f.eng.Snapshot().State)

	f.eng.Completed()
	assert.Equal(t, StateIdle, f.eng.Snapshot().State)

	close(gate)
	f.wait(t)
}

func TestEngine_CompletedWithoutCommitDiscards(t *testing.T) {
	f := newFixture(t)

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Completed()
	f.eng.Commit()
	f.wait(t)

	assert.Zero(t, f.backend.Begun())
}

func TestEngine_SharedPoolSerializesPerEngine(t *testing.T) {
	pool := NewPool(4, 8, discardLogger)
	defer pool.Close()

	a := newFixture(t, WithPool(pool), WithTarget("a"))
	b := newFixture(t, WithPool(pool), WithTarget("b"))

	for i := 0; i < 5; i++ {
		for _, f := range []*fixture{a, b} {
			f.eng.Start()
			f.add("http://ex/s", "http://ex/p", fmt.Sprintf("http://ex/o%d", i), "")
			f.eng.Commit()
			f.eng.Completed()
			f.wait(t)
		}
	}

	assert.Len(t, a.backend.Committed(), 5)
	assert.Len(t, b.backend.Committed(), 5)
}

func TestEngine_WaitRespectsContext(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.backend.SetGate(gate)

	f.eng.Start()
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.eng.Wait(ctx), context.DeadlineExceeded)

	close(gate)
	f.wait(t)
}

func TestEngine_ErrorObserverSeesReportedErrors(t *testing.T) {
	var mu sync.Mutex
	var codes []AuditErrorCode
	f := newFixture(t, WithErrorObserver(func(err *AuditError) {
		mu.Lock()
		defer mu.Unlock()
		codes = append(codes, err.Code)
	}))
	f.backend.SetBeginErr(errors.New("connection refused"))

	f.eng.Start()
	s, p, o, _ := f.ids("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.HandleStatement(s, p, o, 999, true, f.ents)
	f.add("http://ex/s", "http://ex/p", "http://ex/o", "")
	f.eng.Commit()
	f.eng.Completed()
	f.wait(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []AuditErrorCode{ErrCodeUnresolvedEntity, ErrCodeBackendUnavailable}, codes)
}
