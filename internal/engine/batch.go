package engine

import "github.com/roach88/rdfstamp/internal/backend"

// Batch is the drained audit text of one committed host transaction.
// Digests[i] is the statement digest of the key Updates[i] was rendered for.
type Batch struct {
	ID      string
	Seq     int64
	Updates []string
	Digests []string
}

func newBatch(id string, seq int64, ms []PendingMutation) Batch {
	b := Batch{
		ID:      id,
		Seq:     seq,
		Updates: make([]string, len(ms)),
		Digests: make([]string, len(ms)),
	}
	for i, m := range ms {
		b.Updates[i] = m.Text
		b.Digests[i] = m.Key.Digest()
	}
	return b
}

// Info returns the batch identity handed to backends.
func (b Batch) Info() backend.BatchInfo {
	return backend.BatchInfo{ID: b.ID, Seq: b.Seq, Digests: b.Digests}
}
