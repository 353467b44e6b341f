package testutil

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingBackend_CommitAndRollback(t *testing.T) {
	b := NewRecordingBackend()
	ctx := context.Background()

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "u1"))
	require.NoError(t, tx.Exec(ctx, "u2"))
	require.NoError(t, tx.Commit())

	tx, err = b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "u3"))
	require.NoError(t, tx.Rollback())

	assert.Equal(t, [][]string{{"u1", "u2"}}, b.Committed())
	assert.Equal(t, 2, b.Begun())
	assert.Equal(t, 1, b.Rollbacks())
	assert.Equal(t, 3, b.Executions())
	assert.Error(t, tx.Exec(ctx, "late"))
}

func TestRecordingBackend_FailExec(t *testing.T) {
	b := NewRecordingBackend()
	b.FailExec = func(u string) error {
		if strings.Contains(u, "bad") {
			return ErrInjected
		}
		return nil
	}

	tx, err := b.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "good"))
	assert.True(t, errors.Is(tx.Exec(context.Background(), "bad"), ErrInjected))
}

func TestRecordingBackend_Gate(t *testing.T) {
	b := NewRecordingBackend()
	gate := make(chan struct{})
	b.SetGate(gate)

	done := make(chan error, 1)
	go func() {
		_, err := b.Begin(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Begin returned before the gate opened")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Begin did not unblock")
	}
}
