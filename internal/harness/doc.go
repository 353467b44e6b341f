// Package harness replays scripted host transactions against an audit
// engine and checks what reached the backing store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: insert_and_commit
//	description: "A single insert is audited with valid_from"
//	key_mode: strict
//	entities:
//	  - {name: alice, iri: "http://example.org/alice"}
//	  - {name: knows, iri: "http://xmlns.com/foaf/0.1/knows"}
//	  - {name: bob, iri: "http://example.org/bob"}
//	  - {name: age, literal: "42", datatype: "http://www.w3.org/2001/XMLSchema#integer"}
//	  - {name: claim, triple: [alice, knows, bob]}
//	steps:
//	  - op: start
//	  - op: add
//	    statement: [alice, knows, bob]
//	  - op: commit
//	  - op: completed
//	assertions:
//	  - type: batch_count
//	    count: 1
//	  - type: update_contains
//	    text: "valid_from"
//
// A fourth statement element names the graph. Entities may only reference
// entities declared before them.
//
// # Steps
//
//   - start, commit, completed, abort: host transaction signals
//   - add, remove, delete_request: statement events; remove takes an
//     optional origin (unknown, rewrite, user)
//   - hold, release: block and unblock the backing store, keeping a batch
//     in flight between them
//   - fail: make the backing store fail on begin or exec; "none" recovers
//
// # Assertion Types
//
//   - batch_count: exactly count batches were committed
//   - update_count: exactly count updates were committed
//   - update_contains: some committed update contains text
//   - error_code: code was reported exactly count times
//   - final_state: the engine ended in state
//
// # Deterministic Testing
//
// Every scenario runs on a fresh engine with a single worker, fixed batch IDs
// and a recording backend. The harness waits for the in-flight batch after
// each commit unless the store is held, so traces are identical across runs
// and can be compared against golden files.
package harness
