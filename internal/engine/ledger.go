package engine

import (
	"github.com/roach88/rdfstamp/internal/rdf"
)

// MutationKind is the kind of audit record a pending mutation produces.
type MutationKind int

const (
	// MutationInsert opens a validity interval.
	MutationInsert MutationKind = iota + 1
	// MutationDelete closes a validity interval.
	MutationDelete
)

func (k MutationKind) String() string {
	if k == MutationDelete {
		return "delete"
	}
	return "insert"
}

// PendingMutation is an audit record waiting for its transaction to commit.
type PendingMutation struct {
	Key  rdf.StatementKey
	Kind MutationKind
	Text string
}

// Ledger collects the audit records of one host transaction.
//
// INVARIANTS:
//   - A key appears at most once in mutations; the last Put for a key wins
//   - anyRealDeleteSeen is true iff a confirmed removal was observed in the
//     current transaction
//   - commitInFlight is true exactly while a worker owns a drained batch
//
// The Ledger does no I/O and no locking. The owning Engine serializes access.
type Ledger struct {
	mode rdf.KeyMode

	entries []PendingMutation
	index   map[rdf.StatementKey]int   // normalized key -> entries position
	byTrip  map[rdf.StatementKey][]int // triple -> entries positions (loose mode)

	deleteCandidates  []rdf.StatementKey
	confirmedRemovals []rdf.StatementKey

	anyRealDeleteSeen bool
	commitInFlight    bool
	ignoredInFlight   int // events dropped this transaction while a batch was in flight
}

// NewLedger creates an empty ledger comparing keys under mode.
func NewLedger(mode rdf.KeyMode) *Ledger {
	return &Ledger{
		mode:   mode,
		index:  make(map[rdf.StatementKey]int),
		byTrip: make(map[rdf.StatementKey][]int),
	}
}

// Put stores m, replacing any pending mutation with an equal key.
// A replaced entry keeps its position so Drain order is stable.
func (l *Ledger) Put(m PendingMutation) {
	if i, ok := l.find(m.Key); ok {
		old := l.entries[i].Key.Normalize()
		if old != m.Key.Normalize() {
			delete(l.index, old)
			l.index[m.Key.Normalize()] = i
		}
		l.entries[i] = m
		return
	}

	i := len(l.entries)
	l.entries = append(l.entries, m)
	l.index[m.Key.Normalize()] = i
	trip := m.Key.Triple()
	l.byTrip[trip] = append(l.byTrip[trip], i)
}

// Get returns the pending mutation for k.
func (l *Ledger) Get(k rdf.StatementKey) (PendingMutation, bool) {
	i, ok := l.find(k)
	if !ok {
		return PendingMutation{}, false
	}
	return l.entries[i], true
}

func (l *Ledger) find(k rdf.StatementKey) (int, bool) {
	if i, ok := l.index[k.Normalize()]; ok {
		return i, true
	}
	if l.mode != rdf.KeyModeLoose {
		return 0, false
	}
	for _, i := range l.byTrip[k.Triple()] {
		if l.entries[i].Key.Equal(k, l.mode) {
			return i, true
		}
	}
	return 0, false
}

// Len returns the number of pending mutations.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Mutations returns a copy of the pending mutations in Put order.
func (l *Ledger) Mutations() []PendingMutation {
	out := make([]PendingMutation, len(l.entries))
	copy(out, l.entries)
	return out
}

// Drain returns the audit text of every pending mutation, visiting each key
// once in first-Put order, and clears the mutations.
// Delete-candidates and flags are left alone.
func (l *Ledger) Drain() []string {
	ms := l.drain()
	if ms == nil {
		return nil
	}
	texts := make([]string, len(ms))
	for i, m := range ms {
		texts[i] = m.Text
	}
	return texts
}

// drain is Drain keeping the whole mutation.
func (l *Ledger) drain() []PendingMutation {
	if len(l.entries) == 0 {
		return nil
	}
	ms := l.entries
	l.entries = nil
	clear(l.index)
	clear(l.byTrip)
	return ms
}

func (l *Ledger) clearMutations() {
	l.entries = nil
	clear(l.index)
	clear(l.byTrip)
}

// AddDeleteCandidate buffers a delete-intent. Duplicate intents for an equal
// key are kept once.
func (l *Ledger) AddDeleteCandidate(k rdf.StatementKey) {
	if containsKey(l.deleteCandidates, k, l.mode) {
		return
	}
	l.deleteCandidates = append(l.deleteCandidates, k)
}

// DeleteCandidates returns the buffered delete-intents.
func (l *Ledger) DeleteCandidates() []rdf.StatementKey {
	return append([]rdf.StatementKey(nil), l.deleteCandidates...)
}

// MarkRemoval records a confirmed removal. A nil key still counts as a real
// deletion; it just cannot be matched against later delete-intents.
func (l *Ledger) MarkRemoval(k *rdf.StatementKey) {
	l.anyRealDeleteSeen = true
	if k != nil && !containsKey(l.confirmedRemovals, *k, l.mode) {
		l.confirmedRemovals = append(l.confirmedRemovals, *k)
	}
}

// RemovalConfirmed reports whether a confirmed removal of k was seen.
func (l *Ledger) RemovalConfirmed(k rdf.StatementKey) bool {
	return containsKey(l.confirmedRemovals, k, l.mode)
}

// AnyRealDeleteSeen reports whether a confirmed removal was observed.
func (l *Ledger) AnyRealDeleteSeen() bool {
	return l.anyRealDeleteSeen
}

// CommitInFlight reports whether a worker currently owns a batch.
func (l *Ledger) CommitInFlight() bool {
	return l.commitInFlight
}

// IgnoredInFlight returns the number of events dropped this transaction
// because a batch was in flight.
func (l *Ledger) IgnoredInFlight() int {
	return l.ignoredInFlight
}

// resetTransaction clears per-transaction delete tracking.
func (l *Ledger) resetTransaction() {
	l.deleteCandidates = nil
	l.confirmedRemovals = nil
	l.anyRealDeleteSeen = false
	l.ignoredInFlight = 0
}

// discard drops everything accumulated for the current transaction.
// The in-flight flag belongs to the worker and is kept.
func (l *Ledger) discard() int {
	n := len(l.entries)
	l.clearMutations()
	l.resetTransaction()
	return n
}

func containsKey(keys []rdf.StatementKey, k rdf.StatementKey, mode rdf.KeyMode) bool {
	for _, existing := range keys {
		if existing.Equal(k, mode) {
			return true
		}
	}
	return false
}
