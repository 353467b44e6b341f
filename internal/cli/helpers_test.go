package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdfstamp/internal/store"
)

const insertScenario = `name: insert_commit
entities:
  - {name: alice, iri: "http://example.org/alice"}
  - {name: knows, iri: "http://xmlns.com/foaf/0.1/knows"}
  - {name: bob, iri: "http://example.org/bob"}
steps:
  - op: start
  - op: add
    statement: [alice, knows, bob]
  - op: commit
  - op: completed
assertions:
  - type: batch_count
    count: 1
  - type: final_state
    state: idle
`

const failingScenario = `name: expects_two
entities:
  - {name: alice, iri: "http://example.org/alice"}
  - {name: knows, iri: "http://xmlns.com/foaf/0.1/knows"}
  - {name: bob, iri: "http://example.org/bob"}
steps:
  - op: start
  - op: add
    statement: [alice, knows, bob]
  - op: commit
  - op: completed
assertions:
  - type: batch_count
    count: 2
`

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seedJournal creates a journal at path holding one batch per argument and
// returns the batch IDs in commit order.
func seedJournal(t *testing.T, path string, batches ...[]string) []string {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	for _, updates := range batches {
		tx, err := st.Begin(ctx)
		require.NoError(t, err)
		for _, u := range updates {
			require.NoError(t, tx.Exec(ctx, u))
		}
		require.NoError(t, tx.Commit())
	}

	records, err := st.Batches(ctx)
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
