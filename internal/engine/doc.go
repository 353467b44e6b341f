// Package engine coordinates audit recording for host graph-store transactions.
//
// ARCHITECTURE:
//
// The host delivers statement and lifecycle events synchronously on its own
// transaction threads. The Engine routes every statement event through the
// audit.Classifier and accumulates the resulting audit-update text in a
// per-transaction Ledger. On the host's commit signal the Engine finalizes
// buffered delete-intents, drains the ledger into a Batch and hands it to a
// worker Pool. The host thread never waits on backing-store I/O unless the
// pool is saturated, in which case the batch runs on the caller.
//
// Transaction state machine:
//
//	Idle --Start--> Open --Commit--> Finalizing --batch handed off--> Committing --Completed--> Idle
//	                 |                    |                                         (empty ledger: Finalizing -> Idle)
//	                 +------Aborted-------+--> Idle (ledger discarded)
//
// RE-ENTRANCY:
//
// While a batch is in flight the Engine's own write-back may echo back as
// statement events. The in-flight flag is threaded into the classifier as an
// explicit Guard, and every event classified against it is ignored. Only the
// worker clears the flag, after its execute/commit cycle ends, so events that
// arrive after the host's Completed signal are still ignored.
//
// BACKPRESSURE:
//
// At most one batch per Engine is in flight. Events ignored meanwhile are
// counted per transaction, and a commit arriving before the flag clears is
// rejected with COMMIT_COLLISION instead of running. Batches are delivered
// at most once: a failed batch is rolled back, logged and dropped.
package engine
