package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rdfstamp/internal/audit"
	"github.com/roach88/rdfstamp/internal/backend"
	"github.com/roach88/rdfstamp/internal/engine"
	"github.com/roach88/rdfstamp/internal/rdf"
	"github.com/roach88/rdfstamp/internal/testutil"
)

// waitTimeout bounds how long a step waits for the batch in flight.
const waitTimeout = 5 * time.Second

// errExecFailed is what a "fail: exec" step injects.
var errExecFailed = errors.New("update rejected")

// errBeginFailed is what a "fail: begin" step injects.
var errBeginFailed = errors.New("connection refused")

// Harness runs one scenario against a fresh engine.
type Harness struct {
	scenario   *Scenario
	engine     *engine.Engine
	classifier *audit.Classifier
	backend    *testutil.RecordingBackend
	ents       *rdf.MapEntities
	ids        map[string]int64
	gate       chan struct{}
	logger     *slog.Logger
	target     backend.Backend
	engineOpts []engine.Option

	mu     sync.Mutex
	result *Result
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes engine logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithTemplates runs the scenario with custom audit templates.
func WithTemplates(tpl *audit.Templates) Option {
	return func(h *Harness) {
		h.classifier = audit.NewClassifier(tpl)
	}
}

// WithBackend also writes every batch to b. The batch counts as committed
// only when b accepts it; hold and fail steps still act on the recording side.
func WithBackend(b backend.Backend) Option {
	return func(h *Harness) {
		h.target = b
	}
}

// WithEngineOptions applies opts to the scenario's engine after the harness
// defaults, so a configured target, pool or batch timeout carries over. A
// key_mode set in the scenario still wins.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(h *Harness) {
		h.engineOpts = append(h.engineOpts, opts...)
	}
}

// Run executes a scenario and evaluates its assertions.
//
// Execution flow:
//  1. Intern the declared entities
//  2. Build an engine with a single worker, fixed batch IDs and a
//     recording backend
//  3. Apply each step, waiting for the in-flight batch after commits unless
//     the store is held
//  4. Evaluate assertions against the trace
//
// The returned error reports harness failures (a batch that never
// finished); assertion failures are in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		backend:  testutil.NewRecordingBackend(),
		ents:     rdf.NewMapEntities(),
		ids:      make(map[string]int64, len(scenario.Entities)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.internEntities()

	mode, err := rdf.ParseKeyMode(scenario.KeyMode)
	if err != nil {
		return nil, err
	}

	var dst backend.Backend = h.backend
	if h.target != nil {
		dst = backend.Tee(h.target, h.backend)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithKeyMode(mode),
		engine.WithTarget("harness"),
		engine.WithBatchIDs(engine.NewFixedGenerator()),
		engine.WithObserver(h.recordBatch),
		engine.WithErrorObserver(h.recordError),
	}
	engineOpts = append(engineOpts, h.engineOpts...)
	if scenario.KeyMode != "" {
		engineOpts = append(engineOpts, engine.WithKeyMode(mode))
	}
	h.engine = engine.New(dst, h.classifier, engineOpts...)

	runErr := h.runSteps()

	// Never leave a worker blocked on the gate.
	if h.gate != nil {
		close(h.gate)
		h.backend.SetGate(nil)
		h.gate = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := h.engine.Close(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("close engine: %w", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result := h.result
	result.Committed = h.backend.Committed()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) internEntities() {
	values := make(map[string]rdf.Value, len(h.scenario.Entities))
	for _, e := range h.scenario.Entities {
		v := e.value(values)
		values[e.Name] = v
		h.ids[e.Name] = h.ents.Put(v)
	}
}

func (h *Harness) runSteps() error {
	for i, st := range h.scenario.Steps {
		if err := h.step(st); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}

		snap := h.engine.Snapshot()
		h.mu.Lock()
		h.result.add(TraceEvent{
			Type:      EventStep,
			Op:        st.Op,
			Statement: h.describe(st),
			State:     snap.State.String(),
			Pending:   len(snap.Pending),
		})
		h.result.FinalState = snap.State.String()
		h.mu.Unlock()
	}
	return nil
}

func (h *Harness) step(st Step) error {
	switch st.Op {
	case OpStart:
		h.engine.Start()
	case OpAdd:
		s, p, o, g := h.statement(st)
		h.engine.HandleStatement(s, p, o, g, true, h.ents)
	case OpRemove:
		s, p, o, g := h.statement(st)
		origin, _ := parseOrigin(st.Origin)
		if origin == audit.OriginUnknown {
			h.engine.HandleStatement(s, p, o, g, false, h.ents)
		} else {
			h.engine.HandleRemoval(s, p, o, g, origin, h.ents)
		}
	case OpDeleteRequest:
		s, p, o, g := h.statement(st)
		h.engine.RequestDelete(s, p, o, g, h.ents)
	case OpCommit:
		h.engine.Commit()
		if h.gate == nil {
			return h.wait()
		}
	case OpCompleted:
		h.engine.Completed()
	case OpAbort:
		h.engine.Aborted()
	case OpHold:
		if h.gate == nil {
			h.gate = make(chan struct{})
			h.backend.SetGate(h.gate)
		}
	case OpRelease:
		if h.gate != nil {
			close(h.gate)
			h.backend.SetGate(nil)
			h.gate = nil
		}
		return h.wait()
	case OpFail:
		h.inject(st.Mode)
	}
	return nil
}

func (h *Harness) inject(mode string) {
	h.backend.SetBeginErr(nil)
	h.backend.SetFailExec(nil)
	switch mode {
	case FailBegin:
		h.backend.SetBeginErr(errBeginFailed)
	case FailExec:
		h.backend.SetFailExec(func(string) error { return errExecFailed })
	}
}

func (h *Harness) wait() error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := h.engine.Wait(ctx); err != nil {
		return fmt.Errorf("batch did not finish: %w", err)
	}
	return nil
}

func (h *Harness) statement(st Step) (s, p, o, g int64) {
	s, p, o = h.ids[st.Statement[0]], h.ids[st.Statement[1]], h.ids[st.Statement[2]]
	g = rdf.NoContext
	if len(st.Statement) == 4 {
		g = h.ids[st.Statement[3]]
	}
	return s, p, o, g
}

func (h *Harness) describe(st Step) string {
	if len(st.Statement) == 0 {
		return ""
	}
	d := strings.Join(st.Statement, " ")
	if st.Origin != "" {
		d += " (" + st.Origin + ")"
	}
	return d
}

// recordBatch runs on the worker.
func (h *Harness) recordBatch(r engine.BatchResult) {
	status := "committed"
	if r.Err != nil {
		status = "failed"
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(TraceEvent{
		Type:     EventBatch,
		BatchID:  r.Batch.ID,
		BatchSeq: r.Batch.Seq,
		Status:   status,
		Updates:  r.Batch.Updates,
	})
}

// recordError may run with the engine lock held.
func (h *Harness) recordError(err *engine.AuditError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(TraceEvent{Type: EventError, Code: string(err.Code)})
}

// Outcome pairs a scenario path with its result.
type Outcome struct {
	Path     string
	Scenario *Scenario
	Result   *Result
	Err      error
}

// RunFiles loads and runs scenario files concurrently, at most limit at a
// time (limit <= 0 means no limit). Outcomes keep the order of paths; a
// scenario that fails to load or run carries its error in Outcome.Err.
func RunFiles(ctx context.Context, paths []string, limit int, opts ...Option) []Outcome {
	outcomes := make([]Outcome, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			out := Outcome{Path: path}
			defer func() { outcomes[i] = out }()

			if err := ctx.Err(); err != nil {
				out.Err = err
				return nil
			}
			out.Scenario, out.Err = LoadScenario(path)
			if out.Err != nil {
				return nil
			}
			out.Result, out.Err = Run(out.Scenario, opts...)
			return nil
		})
	}
	g.Wait()
	return outcomes
}
