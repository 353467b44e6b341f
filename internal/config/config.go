// Package config loads rdfstamp configuration from CUE.
//
// User files are unified with an embedded #Config schema, so unknown fields,
// out-of-range worker counts and malformed endpoints are rejected before any
// engine is built. Relative template paths resolve against the directory of
// the configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rdfstamp/internal/audit"
	"github.com/roach88/rdfstamp/internal/engine"
	"github.com/roach88/rdfstamp/internal/rdf"
)

//go:embed schema.cue
var schemaCUE string

// Error codes.
const (
	ErrCodeNotFound    = "C001" // Path not found
	ErrCodeLoadFailed  = "C002" // CUE load failed
	ErrCodeBuildFailed = "C003" // CUE build failed
	ErrCodeInvalid     = "C004" // Schema violation
	ErrCodeDecode      = "C005" // Decoding or field conversion failed
)

// Error is a configuration error with an optional CUE position.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Auth holds HTTP basic credentials for the endpoint.
type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Templates names template override files.
type Templates struct {
	InsertGraph   string `json:"insert_graph"`
	InsertDefault string `json:"insert_default"`
	DeleteGraph   string `json:"delete_graph"`
	DeleteDefault string `json:"delete_default"`
}

// Config is a validated configuration.
type Config struct {
	Endpoint     string        `json:"endpoint,omitempty"`
	Database     string        `json:"database,omitempty"`
	Target       string        `json:"target,omitempty"`
	Workers      int           `json:"workers"`
	QueueSize    int           `json:"queue_size"`
	KeyMode      rdf.KeyMode   `json:"-"`
	Timeout      time.Duration `json:"-"`
	BatchTimeout time.Duration `json:"-"`
	Templates    Templates     `json:"templates"`
	Auth         *Auth         `json:"auth,omitempty"`

	// Dir is the directory relative paths resolve against.
	Dir string `json:"-"`
}

// raw mirrors #Config for decoding.
type raw struct {
	Endpoint     string    `json:"endpoint"`
	Database     string    `json:"database"`
	Target       string    `json:"target"`
	Workers      int       `json:"workers"`
	QueueSize    int       `json:"queue_size"`
	KeyMode      string    `json:"key_mode"`
	Timeout      string    `json:"timeout"`
	BatchTimeout string    `json:"batch_timeout"`
	Templates    Templates `json:"templates"`
	Auth         *Auth     `json:"auth"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workers:   engine.MinWorkers,
		QueueSize: engine.DefaultQueueSize,
		KeyMode:   rdf.KeyModeStrict,
		Timeout:   30 * time.Second,
		Dir:       ".",
	}
}

// Load reads configuration from a .cue file or from every .cue file in a
// directory (which must then share a package clause).
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}

	ctx := cuecontext.New()
	var value cue.Value
	dir := path

	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		if inst := instances[0]; inst.Err != nil {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading config: %v", err)}
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
		dir = filepath.Dir(path)
	}
	if err := value.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	cfg, err := fromValue(ctx, value)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// Parse builds a configuration from CUE source. Relative paths resolve
// against the working directory.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	cfg, err := fromValue(ctx, value)
	if err != nil {
		return nil, err
	}
	cfg.Dir = "."
	return cfg, nil
}

func fromValue(ctx *cue.Context, user cue.Value) (*Config, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeInvalid, err)
	}

	var r raw
	if err := unified.Decode(&r); err != nil {
		return nil, cueError(ErrCodeDecode, err)
	}

	mode, err := rdf.ParseKeyMode(r.KeyMode)
	if err != nil {
		return nil, &Error{Code: ErrCodeDecode, Message: err.Error()}
	}
	timeout, err := parseDuration("timeout", r.Timeout)
	if err != nil {
		return nil, err
	}
	batchTimeout, err := parseDuration("batch_timeout", r.BatchTimeout)
	if err != nil {
		return nil, err
	}

	return &Config{
		Endpoint:     r.Endpoint,
		Database:     r.Database,
		Target:       r.Target,
		Workers:      r.Workers,
		QueueSize:    r.QueueSize,
		KeyMode:      mode,
		Timeout:      timeout,
		BatchTimeout: batchTimeout,
		Templates:    r.Templates,
		Auth:         r.Auth,
	}, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &Error{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	if d < 0 {
		return 0, &Error{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: must not be negative", field)}
	}
	return d, nil
}

// cueError converts a CUE error, keeping the first position.
func cueError(code string, err error) *Error {
	e := &Error{Code: code, Message: err.Error()}
	var ce cueerrors.Error
	if errors.As(err, &ce) {
		e.Message = ce.Error()
		if pos := cueerrors.Positions(ce); len(pos) > 0 {
			e.Pos = pos[0]
		}
	}
	return e
}

// TargetName returns the name batches are reported and tracked under.
func (c *Config) TargetName() string {
	switch {
	case c.Target != "":
		return c.Target
	case c.Endpoint != "":
		return c.Endpoint
	case c.Database != "":
		return c.Database
	default:
		return "default"
	}
}

// Resolve returns p relative to the configuration directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// LoadTemplates loads the configured templates, falling back to the
// embedded defaults for fields left empty.
func (c *Config) LoadTemplates() (*audit.Templates, error) {
	return audit.LoadTemplates(audit.TemplatePaths{
		InsertGraph:   c.Resolve(c.Templates.InsertGraph),
		InsertDefault: c.Resolve(c.Templates.InsertDefault),
		DeleteGraph:   c.Resolve(c.Templates.DeleteGraph),
		DeleteDefault: c.Resolve(c.Templates.DeleteDefault),
	})
}

// EngineOptions returns the engine options this configuration implies.
// The pool is built separately with NewPool so several engines can share it.
func (c *Config) EngineOptions(logger *slog.Logger) []engine.Option {
	opts := []engine.Option{
		engine.WithKeyMode(c.KeyMode),
		engine.WithTarget(c.TargetName()),
	}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	if c.BatchTimeout > 0 {
		opts = append(opts, engine.WithBatchTimeout(c.BatchTimeout))
	}
	return opts
}

// NewPool builds the worker pool sized by this configuration.
func (c *Config) NewPool(logger *slog.Logger) *engine.Pool {
	return engine.NewPool(c.Workers, c.QueueSize, logger)
}
