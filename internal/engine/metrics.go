package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for audit recording.
// All metrics carry a "target" label naming the Engine's backing store.
var (
	// statementsTotal counts classified statement events.
	// Labels: target, action (record_insert, record_delete_intent, ignore,
	// ignore_in_flight, ...)
	statementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfstamp",
		Subsystem: "engine",
		Name:      "statements_total",
		Help:      "Statement events by classifier verdict",
	}, []string{"target", "action"})

	// auditErrorsTotal counts reported audit errors.
	// Labels: target, code
	auditErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfstamp",
		Subsystem: "engine",
		Name:      "errors_total",
		Help:      "Audit subsystem errors by code",
	}, []string{"target", "code"})

	// batchesTotal counts finished batches.
	// Labels: target, status (committed, failed)
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfstamp",
		Subsystem: "engine",
		Name:      "batches_total",
		Help:      "Audit batches by outcome",
	}, []string{"target", "status"})

	// updatesTotal counts update requests executed in committed batches.
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rdfstamp",
		Subsystem: "engine",
		Name:      "updates_total",
		Help:      "Audit updates committed to the backing store",
	}, []string{"target"})

	// batchDuration measures begin-to-commit time per batch.
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rdfstamp",
		Subsystem: "engine",
		Name:      "batch_duration_seconds",
		Help:      "Time to write one audit batch",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"target"})

	// callerRunsTotal counts jobs run on the submitting goroutine because
	// the pool queue was full.
	callerRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rdfstamp",
		Subsystem: "pool",
		Name:      "caller_runs_total",
		Help:      "Jobs executed on the caller because the pool was saturated",
	})
)
