package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		switch ev.Type {
		case EventStep:
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", ev.Seq, ev.Op, ev.Statement, ev.State)
		case EventBatch:
			fmt.Fprintf(&buf, "  [%d] batch %s %s (%d updates)\n", ev.Seq, ev.BatchID, ev.Status, len(ev.Updates))
		case EventError:
			fmt.Fprintf(&buf, "  [%d] error %s\n", ev.Seq, ev.Code)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertBatchCount:
		return assertBatchCount(result, a)
	case AssertUpdateCount:
		return assertUpdateCount(result, a)
	case AssertUpdateContains:
		return assertUpdateContains(result, a)
	case AssertErrorCode:
		return assertErrorCode(result, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertBatchCount(result *Result, a Assertion) error {
	if got := len(result.Committed); got != a.Count {
		return &AssertionError{
			Type:     AssertBatchCount,
			Expected: fmt.Sprintf("%d committed batches", a.Count),
			Actual:   fmt.Sprintf("%d committed batches", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertUpdateCount(result *Result, a Assertion) error {
	got := 0
	for _, batch := range result.Committed {
		got += len(batch)
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertUpdateCount,
			Expected: fmt.Sprintf("%d committed updates", a.Count),
			Actual:   fmt.Sprintf("%d committed updates", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertUpdateContains(result *Result, a Assertion) error {
	for _, batch := range result.Committed {
		for _, u := range batch {
			if strings.Contains(u, a.Text) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     AssertUpdateContains,
		Expected: fmt.Sprintf("a committed update containing %q", a.Text),
		Actual:   "not found",
		Trace:    result.Trace,
	}
}

func assertErrorCode(result *Result, a Assertion) error {
	got := 0
	for _, code := range result.ErrorCodes() {
		if code == a.Code {
			got++
		}
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertErrorCode,
			Expected: fmt.Sprintf("%s reported %d times", a.Code, a.Count),
			Actual:   fmt.Sprintf("%s reported %d times", a.Code, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertFinalState(result *Result, a Assertion) error {
	if result.FinalState != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state %s", a.State),
			Actual:   fmt.Sprintf("state %s", result.FinalState),
			Trace:    result.Trace,
		}
	}
	return nil
}
