// Package sparql delivers audit batches to a SPARQL 1.1 Update endpoint.
package sparql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/rdfstamp/internal/backend"
)

// ContentType is the SPARQL 1.1 Protocol media type for update requests.
const ContentType = "application/sparql-update"

// DefaultTimeout bounds one update request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("sparql transaction already finished")

// StatusError reports a non-2xx response from the endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sparql endpoint %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("sparql endpoint %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client is a backend.Backend that posts each transaction as a single
// SPARQL update request.
//
// Thread-safety: Client is safe for concurrent use. Transactions are not.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	username   string
	password   string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The client is never modified;
// WithTimeout applies through each request's context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
// Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithBasicAuth sends HTTP basic credentials with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the given update endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the update endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Begin implements backend.Backend. Nothing is sent until Commit.
func (c *Client) Begin(ctx context.Context) (backend.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{c: c, ctx: ctx}, nil
}

// Update posts one update request.
func (c *Client) Update(ctx context.Context, update string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(update))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// tx buffers updates; Commit sends them joined into one request so the
// endpoint applies them atomically.
type tx struct {
	c       *Client
	ctx     context.Context
	updates []string
	done    bool
}

func (t *tx) Exec(_ context.Context, update string) error {
	if t.done {
		return ErrTxDone
	}
	t.updates = append(t.updates, update)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if len(t.updates) == 0 {
		return nil
	}

	start := time.Now()
	if err := t.c.Update(t.ctx, strings.Join(t.updates, ";\n")); err != nil {
		return err
	}
	t.c.logger.Debug("sparql update committed",
		"endpoint", t.c.endpoint,
		"updates", len(t.updates),
		"duration", time.Since(start))
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	t.updates = nil
	return nil
}
