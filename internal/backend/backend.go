// Package backend defines the contract audit batches are written through.
//
// A backing store is anything that can run a sequence of update-language
// requests inside one transaction: begin, execute each update, then commit
// or roll back. The SQLite journal (internal/store) and the SPARQL client
// (internal/sparql) both implement it.
package backend

import "context"

// Backend opens write transactions against a backing store.
type Backend interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one remote transaction. After Commit or Rollback returns, the Tx
// must not be used again.
type Tx interface {
	Exec(ctx context.Context, update string) error
	Commit() error
	Rollback() error
}

// BatchInfo identifies the audit batch a transaction writes. Digests[i] is
// the statement digest of the i-th update, when known.
type BatchInfo struct {
	ID      string
	Seq     int64
	Digests []string
}

type batchKey struct{}

// WithBatch returns a copy of ctx carrying info.
func WithBatch(ctx context.Context, info BatchInfo) context.Context {
	return context.WithValue(ctx, batchKey{}, info)
}

// BatchFromContext returns the BatchInfo stored in ctx, if any.
func BatchFromContext(ctx context.Context) (BatchInfo, bool) {
	info, ok := ctx.Value(batchKey{}).(BatchInfo)
	return info, ok
}

// Digest returns the digest recorded for the update at position, or "".
func (b BatchInfo) Digest(position int) string {
	if position < 0 || position >= len(b.Digests) {
		return ""
	}
	return b.Digests[position]
}
