package cli

import (
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/rdfstamp/internal/backend"
	"github.com/roach88/rdfstamp/internal/config"
	"github.com/roach88/rdfstamp/internal/sparql"
	"github.com/roach88/rdfstamp/internal/store"
)

var errNoBackend = errors.New("no backing store configured: set database or endpoint")

// loadConfig loads --config, or the defaults when it is unset.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.Config == "" {
		return config.Default(), nil
	}
	return config.Load(o.Config)
}

// newLogger logs at info, or debug with --verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newClient builds a SPARQL client for endpoint with the configured
// credentials and timeout.
func newClient(cfg *config.Config, endpoint string, logger *slog.Logger) *sparql.Client {
	opts := []sparql.Option{
		sparql.WithTimeout(cfg.Timeout),
		sparql.WithLogger(logger),
	}
	if cfg.Auth != nil {
		opts = append(opts, sparql.WithBasicAuth(cfg.Auth.Username, cfg.Auth.Password))
	}
	return sparql.NewClient(endpoint, opts...)
}

// openBackend picks the configured backing store. A journal takes
// precedence over an endpoint; journaled batches reach the endpoint through
// replay. The returned close function is never nil.
func openBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, func() error, error) {
	switch {
	case cfg.Database != "":
		st, err := store.Open(cfg.Resolve(cfg.Database))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case cfg.Endpoint != "":
		return newClient(cfg, cfg.Endpoint, logger), func() error { return nil }, nil
	}
	return nil, nil, errNoBackend
}
