package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rdfstamp/internal/audit"
	"github.com/roach88/rdfstamp/internal/backend"
	"github.com/roach88/rdfstamp/internal/rdf"
)

// State is the coordinator's position in the host transaction lifecycle.
type State int

const (
	// StateIdle means no host transaction is being recorded.
	StateIdle State = iota
	// StateOpen means statement events are being recorded.
	StateOpen
	// StateFinalizing means the host asked to commit and delete-intents are
	// being materialized.
	StateFinalizing
	// StateCommitting means the batch was handed to a worker and the host
	// has not signalled completion yet.
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateFinalizing:
		return "finalizing"
	case StateCommitting:
		return "committing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// BatchResult describes one finished batch.
type BatchResult struct {
	Batch    Batch
	Err      error
	Duration time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operator-facing logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPool runs batches on a shared pool. The Engine does not close it.
// Default: a private single-worker pool closed by Close.
func WithPool(p *Pool) Option {
	return func(e *Engine) {
		e.pool = p
	}
}

// WithKeyMode sets how statement contexts take part in ledger identity.
// Default: rdf.KeyModeStrict.
func WithKeyMode(m rdf.KeyMode) Option {
	return func(e *Engine) {
		e.keyMode = m
	}
}

// WithClock resumes batch sequence numbers from an existing clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithBatchIDs sets the batch ID generator. Default: UUIDv7Generator.
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithTarget names the backing store in logs and metrics. Default: "default".
func WithTarget(name string) Option {
	return func(e *Engine) {
		e.target = name
	}
}

// WithBatchTimeout bounds each batch's begin-to-commit cycle.
// Zero (the default) means no timeout.
func WithBatchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithObserver registers a callback invoked on the worker after every batch.
// The callback must not call back into the Engine.
func WithObserver(fn func(BatchResult)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithErrorObserver registers a callback invoked for every audit error after
// it is logged. It may run with the Engine's lock held and must not call back
// into the Engine.
func WithErrorObserver(fn func(*AuditError)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// Engine turns host transactions into audit batches for one backing store.
//
// Construct one Engine per backing-store target. The host drives it through
// Start, the statement handlers, Commit, Completed and Aborted; all of them
// return without waiting on backing-store I/O unless the worker pool is
// saturated.
//
// Thread-safety model:
//   - host callbacks: safe from any goroutine, serialized by mu
//   - the worker touches the ledger only under mu, when it finishes a batch
type Engine struct {
	mu       sync.Mutex
	state    State
	ledger   *Ledger
	inFlight string        // ID of the batch in flight, if any
	idle     chan struct{} // closed while no batch is in flight

	classifier *audit.Classifier
	backend    backend.Backend
	pool       *Pool
	ownsPool   bool
	clock      *Clock
	ids        BatchIDGenerator
	logger     *slog.Logger
	target     string
	keyMode    rdf.KeyMode
	timeout    time.Duration
	observer   func(BatchResult)
	onError    func(*AuditError)
}

// New creates an Engine writing batches to b. A nil classifier uses the
// embedded default templates.
func New(b backend.Backend, c *audit.Classifier, opts ...Option) *Engine {
	if c == nil {
		c = audit.NewClassifier(nil)
	}

	e := &Engine{
		classifier: c,
		backend:    b,
		clock:      NewClock(),
		ids:        UUIDv7Generator{},
		logger:     slog.Default(),
		target:     "default",
	}

	for _, opt := range opts {
		opt(e)
	}

	e.ledger = NewLedger(e.keyMode)
	e.idle = make(chan struct{})
	close(e.idle)
	if e.pool == nil {
		e.pool = NewPool(1, DefaultQueueSize, e.logger)
		e.ownsPool = true
	}

	return e
}

// Start handles the host's transaction-start signal.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateOpen || e.state == StateFinalizing {
		n := e.ledger.discard()
		e.logger.Warn("transaction started before the previous one ended, discarding its audit records",
			"target", e.target,
			"discarded", n,
		)
	}
	e.ledger.resetTransaction()
	e.state = StateOpen
}

// HandleStatement handles a per-statement event from the host. isAddition
// false means the engine confirmed a removal whose cause is unknown.
//
// It always returns false: the host keeps storing the statement itself.
func (e *Engine) HandleStatement(subj, pred, obj, ctx int64, isAddition bool, ents rdf.Entities) bool {
	kind := audit.EventRemoved
	if isAddition {
		kind = audit.EventAdded
	}
	e.handle(kind, audit.OriginUnknown, subj, pred, obj, ctx, ents)
	return false
}

// HandleRemoval handles a confirmed removal the host tagged with its cause.
// OriginRewrite removals are ignored; OriginUser removals are recorded as
// delete audit records right away.
func (e *Engine) HandleRemoval(subj, pred, obj, ctx int64, origin audit.Origin, ents rdf.Entities) bool {
	e.handle(audit.EventRemoved, origin, subj, pred, obj, ctx, ents)
	return false
}

// RequestDelete handles the host's pre-commit delete-intent signal.
// The intent is buffered until Commit decides whether to materialize it.
func (e *Engine) RequestDelete(subj, pred, obj, ctx int64, ents rdf.Entities) {
	e.handle(audit.EventDeleteRequested, audit.OriginUnknown, subj, pred, obj, ctx, ents)
}

func (e *Engine) handle(kind audit.EventKind, origin audit.Origin, subj, pred, obj, ctx int64, ents rdf.Entities) {
	e.mu.Lock()
	defer e.mu.Unlock()

	guard := audit.Guard{CommitInFlight: e.ledger.commitInFlight}
	ev := audit.Event{Kind: kind, Origin: origin}

	// Self-caused events are ignored without consulting the host again.
	if !guard.CommitInFlight {
		s, p, o, c, err := rdf.Resolve(ents, subj, pred, obj, ctx)
		if err != nil {
			e.report(slog.LevelError, &AuditError{
				Code:    ErrCodeUnresolvedEntity,
				Message: fmt.Sprintf("%s event skipped", kind),
				Err:     err,
			})
			return
		}
		ev.Subject, ev.Predicate, ev.Object, ev.Context = s, p, o, c
	}

	e.apply(ev, guard)
}

// apply routes one event through the classifier into the ledger.
// Caller must hold mu.
func (e *Engine) apply(ev audit.Event, guard audit.Guard) {
	act := e.classifier.Classify(ev, guard)

	if guard.CommitInFlight {
		statementsTotal.WithLabelValues(e.target, "ignore_in_flight").Inc()
		e.ledger.ignoredInFlight++
		e.logger.Debug("statement event ignored, batch in flight",
			"target", e.target,
			"event", ev.Kind,
			"batch", e.inFlight,
		)
		return
	}
	statementsTotal.WithLabelValues(e.target, act.Kind.String()).Inc()

	switch act.Kind {
	case audit.ActionIgnore:
		if act.Err != nil {
			e.report(slog.LevelError, &AuditError{
				Code:    ErrCodeUnsupportedEntity,
				Message: fmt.Sprintf("%s event skipped", ev.Kind),
				Err:     act.Err,
			})
		}
		return

	case audit.ActionRecordInsert:
		e.ledger.Put(PendingMutation{Key: act.Key, Kind: MutationInsert, Text: act.Text})

	case audit.ActionRecordDelete:
		e.ledger.Put(PendingMutation{Key: act.Key, Kind: MutationDelete, Text: act.Text})

	case audit.ActionRecordDeleteIntent:
		if e.ledger.RemovalConfirmed(act.Key) {
			e.report(slog.LevelDebug, &AuditError{
				Code:      ErrCodeMalformedDeleteIntent,
				Message:   "delete-intent after confirmed removal discarded",
				Statement: act.Key.String(),
			})
			return
		}
		e.ledger.AddDeleteCandidate(act.Key)

	case audit.ActionRecordRemoval:
		if act.Err != nil {
			e.report(slog.LevelWarn, &AuditError{
				Code:    ErrCodeUnsupportedEntity,
				Message: "confirmed removal could not be rendered",
				Err:     act.Err,
			})
			e.ledger.MarkRemoval(nil)
		} else {
			k := act.Key
			e.ledger.MarkRemoval(&k)
		}
	}

	if e.state == StateIdle || e.state == StateCommitting {
		e.logger.Debug("statement event outside an open transaction, opening one", "target", e.target, "state", e.state)
		e.state = StateOpen
	}
}

// Commit handles the host's about-to-commit signal.
//
// Buffered delete-intents are materialized when no confirmed removal was
// seen this transaction. The ledger is then drained into a batch and handed
// to the pool. Commit does not wait for the batch.
//
// A commit arriving while a batch is in flight is rejected: its events were
// already ignored, so it is reported as a collision and nothing is written.
func (e *Engine) Commit() {
	e.mu.Lock()

	if e.state == StateIdle && e.ledger.Len() == 0 && len(e.ledger.deleteCandidates) == 0 && e.ledger.ignoredInFlight == 0 {
		e.mu.Unlock()
		return
	}

	if e.ledger.commitInFlight {
		e.rejectCommit()
		e.mu.Unlock()
		return
	}

	e.state = StateFinalizing
	e.finalizeDeletes()

	ms := e.ledger.drain()
	if len(ms) == 0 {
		e.state = StateIdle
		e.mu.Unlock()
		return
	}

	b := newBatch(e.ids.Generate(), e.clock.Next(), ms)
	e.state = StateCommitting
	e.ledger.commitInFlight = true
	e.inFlight = b.ID
	e.idle = make(chan struct{})
	e.mu.Unlock()

	e.logger.Debug("batch handed off", "target", e.target, "batch", b.ID, "seq", b.Seq, "updates", len(b.Updates))
	e.pool.Submit(func() { e.run(b) })
}

// rejectCommit reports a commit that collided with the batch in flight and
// ends its transaction. Caller must hold mu.
func (e *Engine) rejectCommit() {
	ignored := e.ledger.ignoredInFlight
	level := slog.LevelInfo
	if ignored > 0 {
		level = slog.LevelWarn
	}
	e.report(level, &AuditError{
		Code:    ErrCodeCommitCollision,
		Message: fmt.Sprintf("commit rejected while a batch is in flight, %d events not audited", ignored),
		BatchID: e.inFlight,
	})
	e.ledger.discard()
	e.state = StateIdle
}

// finalizeDeletes turns delete-intents into delete audit records.
//
// A user delete of a simple triple the engine stored in nested form yields
// no confirmed removal of the simple triple. Confirmed removals in the same
// transaction are therefore taken as rewrite side effects, and intents are
// trusted only when none were seen. Caller must hold mu.
func (e *Engine) finalizeDeletes() {
	candidates := e.ledger.deleteCandidates
	e.ledger.deleteCandidates = nil
	if len(candidates) == 0 {
		return
	}

	if e.ledger.anyRealDeleteSeen {
		e.logger.Debug("delete-intents not materialized, confirmed removal seen",
			"target", e.target,
			"intents", len(candidates),
		)
		return
	}

	for _, k := range candidates {
		e.ledger.Put(PendingMutation{Key: k, Kind: MutationDelete, Text: e.classifier.DeleteText(k)})
	}
}

// Completed handles the host's transaction-completed signal.
// The in-flight flag is left for the worker to clear.
func (e *Engine) Completed() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := e.ledger.Len(); n > 0 {
		e.logger.Warn("transaction completed without commit, discarding its audit records",
			"target", e.target,
			"discarded", n,
		)
		e.ledger.clearMutations()
	}
	e.ledger.resetTransaction()
	e.state = StateIdle
}

// Aborted handles the host's transaction-aborted signal. Audit records not
// yet handed to a worker are discarded; a batch already in flight runs to
// completion.
func (e *Engine) Aborted() {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.ledger.discard()
	if n > 0 {
		e.logger.Debug("transaction aborted, audit records discarded", "target", e.target, "discarded", n)
	}
	e.state = StateIdle
}

// run executes b on a pool worker and then clears the in-flight flag.
func (e *Engine) run(b Batch) {
	e.execute(b)

	e.mu.Lock()
	e.ledger.commitInFlight = false
	e.inFlight = ""
	close(e.idle)
	e.mu.Unlock()
}

// execute writes one batch in one backend transaction. Failures are logged
// and counted; the batch is never retried.
func (e *Engine) execute(b Batch) {
	ctx := backend.WithBatch(context.Background(), b.Info())
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.write(ctx, b)
	elapsed := time.Since(start)

	batchDuration.WithLabelValues(e.target).Observe(elapsed.Seconds())
	if err != nil {
		batchesTotal.WithLabelValues(e.target, "failed").Inc()
		e.report(slog.LevelError, err)
	} else {
		batchesTotal.WithLabelValues(e.target, "committed").Inc()
		updatesTotal.WithLabelValues(e.target).Add(float64(len(b.Updates)))
		e.logger.Info("audit batch committed",
			"target", e.target,
			"batch", b.ID,
			"seq", b.Seq,
			"updates", len(b.Updates),
			"duration", elapsed,
		)
	}

	if e.observer != nil {
		var resErr error
		if err != nil {
			resErr = err
		}
		e.observer(BatchResult{Batch: b, Err: resErr, Duration: elapsed})
	}
}

func (e *Engine) write(ctx context.Context, b Batch) (err *AuditError) {
	defer func() {
		if r := recover(); r != nil {
			err = NewBackendError(b.ID, "write", fmt.Errorf("panic: %v", r))
		}
	}()

	tx, beginErr := e.backend.Begin(ctx)
	if beginErr != nil {
		return NewBackendError(b.ID, "begin", beginErr)
	}

	for i, update := range b.Updates {
		if execErr := tx.Exec(ctx, update); execErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.logger.Error("rollback failed", "target", e.target, "batch", b.ID, "error", rbErr)
			}
			return NewBackendError(b.ID, fmt.Sprintf("update %d of %d", i+1, len(b.Updates)), execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return NewBackendError(b.ID, "commit", commitErr)
	}
	return nil
}

// report logs an audit error on the operator channel and counts it.
func (e *Engine) report(level slog.Level, err *AuditError) {
	auditErrorsTotal.WithLabelValues(e.target, string(err.Code)).Inc()
	e.logger.Log(context.Background(), level, "audit error",
		"target", e.target,
		"code", string(err.Code),
		"error", err.Error(),
	)
	if e.onError != nil {
		e.onError(err)
	}
}

// Wait blocks until no batch is in flight or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for in-flight batches and stops the Engine's private pool.
// Batches are not cancelled; if ctx ends first, Close returns its error and
// leaves the pool running.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.Wait(ctx); err != nil {
		return err
	}
	if e.ownsPool {
		e.pool.Close()
	}
	return nil
}

// State returns the coordinator's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot is a point-in-time view of the Engine for diagnostics and tests.
type Snapshot struct {
	State             State
	Pending           []PendingMutation
	DeleteCandidates  []rdf.StatementKey
	AnyRealDeleteSeen bool
	CommitInFlight    bool
	IgnoredInFlight   int
}

// Snapshot returns the Engine's current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		State:             e.state,
		Pending:           e.ledger.Mutations(),
		DeleteCandidates:  e.ledger.DeleteCandidates(),
		AnyRealDeleteSeen: e.ledger.anyRealDeleteSeen,
		CommitInFlight:    e.ledger.commitInFlight,
		IgnoredInFlight:   e.ledger.ignoredInFlight,
	}
}
