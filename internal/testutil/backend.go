// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/rdfstamp/internal/backend"
)

// ErrInjected is the default failure returned by RecordingBackend hooks.
var ErrInjected = errors.New("injected failure")

// RecordingBackend is an in-memory backend.Backend that keeps every
// committed transaction.
//
// Failures can be injected with BeginErr and FailExec. Gate, when set, makes
// Begin block until the channel is closed or receives, which lets tests hold
// a batch in flight.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingBackend struct {
	mu sync.Mutex

	// BeginErr, when set, is returned by Begin.
	BeginErr error
	// FailExec, when set, is consulted for each update; a non-nil result
	// fails the Exec call.
	FailExec func(update string) error
	// Gate, when set, blocks Begin until it yields.
	Gate chan struct{}

	committed  [][]string
	batches    []backend.BatchInfo
	begun      int
	rollbacks  int
	executions int
}

// NewRecordingBackend creates an empty recording backend.
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{}
}

// Begin implements backend.Backend.
func (b *RecordingBackend) Begin(ctx context.Context) (backend.Tx, error) {
	b.mu.Lock()
	gate := b.Gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.begun++
	if b.BeginErr != nil {
		return nil, b.BeginErr
	}
	if info, ok := backend.BatchFromContext(ctx); ok {
		b.batches = append(b.batches, info)
	}
	return &recordingTx{b: b}, nil
}

// SetGate installs or removes the Begin gate.
func (b *RecordingBackend) SetGate(gate chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Gate = gate
}

// SetBeginErr installs or clears the Begin failure.
func (b *RecordingBackend) SetBeginErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.BeginErr = err
}

// SetFailExec installs or clears the Exec failure hook.
func (b *RecordingBackend) SetFailExec(fn func(update string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FailExec = fn
}

// Committed returns a copy of every committed transaction's updates.
func (b *RecordingBackend) Committed() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]string, len(b.committed))
	for i, tx := range b.committed {
		out[i] = append([]string(nil), tx...)
	}
	return out
}

// Updates returns every committed update in commit order.
func (b *RecordingBackend) Updates() []string {
	var out []string
	for _, tx := range b.Committed() {
		out = append(out, tx...)
	}
	return out
}

// Batches returns the BatchInfo of every successful Begin that carried one.
func (b *RecordingBackend) Batches() []backend.BatchInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.BatchInfo(nil), b.batches...)
}

// Begun returns the number of Begin calls that reached the backend.
func (b *RecordingBackend) Begun() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begun
}

// Rollbacks returns the number of rolled back transactions.
func (b *RecordingBackend) Rollbacks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rollbacks
}

// Executions returns the number of Exec calls, committed or not.
func (b *RecordingBackend) Executions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executions
}

type recordingTx struct {
	b       *RecordingBackend
	updates []string
	done    bool
}

func (tx *recordingTx) Exec(_ context.Context, update string) error {
	tx.b.mu.Lock()
	defer tx.b.mu.Unlock()

	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.b.executions++
	if tx.b.FailExec != nil {
		if err := tx.b.FailExec(update); err != nil {
			return err
		}
	}
	tx.updates = append(tx.updates, update)
	return nil
}

func (tx *recordingTx) Commit() error {
	tx.b.mu.Lock()
	defer tx.b.mu.Unlock()

	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.done = true
	tx.b.committed = append(tx.b.committed, tx.updates)
	return nil
}

func (tx *recordingTx) Rollback() error {
	tx.b.mu.Lock()
	defer tx.b.mu.Unlock()

	if tx.done {
		return nil
	}
	tx.done = true
	tx.b.rollbacks++
	return nil
}
