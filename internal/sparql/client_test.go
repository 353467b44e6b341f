package sparql

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	contentType string
	body        string
	user        string
	pass        string
	hasAuth     bool
}

type fakeEndpoint struct {
	mu       sync.Mutex
	requests []request
	status   int
}

func newFakeEndpoint(t *testing.T, status int) (*fakeEndpoint, *httptest.Server) {
	t.Helper()
	f := &fakeEndpoint{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, ok := r.BasicAuth()
		f.mu.Lock()
		f.requests = append(f.requests, request{
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
			user:        user,
			pass:        pass,
			hasAuth:     ok,
		})
		f.mu.Unlock()
		w.WriteHeader(f.status)
		if f.status >= 300 {
			io.WriteString(w, "parse error\n")
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeEndpoint) all() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_CommitSendsOneRequest(t *testing.T) {
	f, srv := newFakeEndpoint(t, http.StatusNoContent)
	c := NewClient(srv.URL, quiet())
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "insert data { <a> <b> <c> }"))
	require.NoError(t, tx.Exec(ctx, "insert data { <d> <e> <f> }"))
	assert.Empty(t, f.all(), "nothing is sent before commit")

	require.NoError(t, tx.Commit())

	reqs := f.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, ContentType, reqs[0].contentType)
	assert.Equal(t, "insert data { <a> <b> <c> };\ninsert data { <d> <e> <f> }", reqs[0].body)
	assert.False(t, reqs[0].hasAuth)
}

func TestClient_RollbackSendsNothing(t *testing.T) {
	f, srv := newFakeEndpoint(t, http.StatusOK)
	c := NewClient(srv.URL, quiet())
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "insert data { <a> <b> <c> }"))
	require.NoError(t, tx.Rollback())

	assert.ErrorIs(t, tx.Exec(ctx, "late"), ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.Empty(t, f.all())
}

func TestClient_EmptyCommitSendsNothing(t *testing.T) {
	f, srv := newFakeEndpoint(t, http.StatusOK)
	c := NewClient(srv.URL, quiet())

	tx, err := c.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Empty(t, f.all())
}

func TestClient_StatusError(t *testing.T) {
	_, srv := newFakeEndpoint(t, http.StatusBadRequest)
	c := NewClient(srv.URL, quiet())
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "bogus"))

	err = tx.Commit()
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "parse error", se.Body)
	assert.Contains(t, err.Error(), "returned status 400")
}

func TestClient_BasicAuth(t *testing.T) {
	f, srv := newFakeEndpoint(t, http.StatusOK)
	c := NewClient(srv.URL, quiet(), WithBasicAuth("admin", "secret"))

	require.NoError(t, c.Update(context.Background(), "insert data { <a> <b> <c> }"))

	reqs := f.all()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].hasAuth)
	assert.Equal(t, "admin", reqs[0].user)
	assert.Equal(t, "secret", reqs[0].pass)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, quiet(), WithTimeout(50*time.Millisecond))
	err := c.Update(context.Background(), "insert data { <a> <b> <c> }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http request")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_TimeoutLeavesSharedHTTPClientAlone(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	shared := &http.Client{Timeout: time.Minute}
	c := NewClient(srv.URL, quiet(), WithHTTPClient(shared), WithTimeout(50*time.Millisecond))
	assert.Equal(t, time.Minute, shared.Timeout)

	// Option order does not matter either.
	NewClient(srv.URL, WithTimeout(time.Second), WithHTTPClient(shared))
	assert.Equal(t, time.Minute, shared.Timeout)

	err := c.Update(context.Background(), "insert data { <a> <b> <c> }")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "the per-request timeout still applies")
}

func TestClient_BeginCancelledContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", quiet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
