package harness

// Trace event types.
const (
	EventStep  = "step"
	EventBatch = "batch"
	EventError = "error"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Step events.
	Op        string `json:"op,omitempty"`
	Statement string `json:"statement,omitempty"`
	State     string `json:"state,omitempty"`
	Pending   int    `json:"pending,omitempty"`

	// Batch events.
	BatchID  string   `json:"batch_id,omitempty"`
	BatchSeq int64    `json:"batch_seq,omitempty"`
	Status   string   `json:"status,omitempty"`
	Updates  []string `json:"updates,omitempty"`

	// Error events.
	Code string `json:"code,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists steps, batches and audit errors in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Committed holds the updates of every committed batch, in commit order.
	Committed [][]string `json:"committed"`

	// FinalState is the engine state after the last step.
	FinalState string `json:"final_state"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Committed: [][]string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// ErrorCodes returns the audit error codes in trace order.
func (r *Result) ErrorCodes() []string {
	codes := []string{}
	for _, ev := range r.Trace {
		if ev.Type == EventError {
			codes = append(codes, ev.Code)
		}
	}
	return codes
}
