package audit

import (
	"fmt"

	"github.com/roach88/rdfstamp/internal/rdf"
)

// EventKind distinguishes the host signals the classifier understands.
type EventKind int

const (
	// EventAdded is a statement the host engine stored.
	EventAdded EventKind = iota + 1
	// EventRemoved is a removal the host engine confirmed. It also fires as a
	// byproduct of the engine rewriting a simple triple into nested form.
	EventRemoved
	// EventDeleteRequested is the pre-commit signal that a user asked for a
	// statement to be removed.
	EventDeleteRequested
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventDeleteRequested:
		return "delete_requested"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Origin tags a confirmed removal with its cause when the host can tell.
type Origin int

const (
	// OriginUnknown leaves the cause to be inferred at finalize time.
	OriginUnknown Origin = iota
	// OriginRewrite marks a removal caused by the engine's insert-time rewrite.
	OriginRewrite
	// OriginUser marks a removal the user asked for.
	OriginUser
)

func (o Origin) String() string {
	switch o {
	case OriginRewrite:
		return "rewrite"
	case OriginUser:
		return "user"
	}
	return "unknown"
}

// Event is one resolved host statement signal.
// A nil Context means the default graph.
type Event struct {
	Kind      EventKind
	Subject   rdf.Value
	Predicate rdf.Value
	Object    rdf.Value
	Context   rdf.Value
	Origin    Origin
}

// Guard carries the re-entrancy state the classifier decides against.
type Guard struct {
	// CommitInFlight is true while this system's own write-back is running.
	// Events seen meanwhile are its own side effects.
	CommitInFlight bool
}

// ActionKind is the classifier's verdict.
type ActionKind int

const (
	// ActionIgnore drops the event.
	ActionIgnore ActionKind = iota
	// ActionRecordInsert puts insert-audit text into the ledger.
	ActionRecordInsert
	// ActionRecordDeleteIntent buffers the key until finalize.
	ActionRecordDeleteIntent
	// ActionRecordRemoval notes that a real removal happened this transaction.
	ActionRecordRemoval
	// ActionRecordDelete puts delete-audit text into the ledger directly.
	// Only produced for removals explicitly tagged OriginUser.
	ActionRecordDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionRecordInsert:
		return "record_insert"
	case ActionRecordDeleteIntent:
		return "record_delete_intent"
	case ActionRecordRemoval:
		return "record_removal"
	case ActionRecordDelete:
		return "record_delete"
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// Action is the result of classifying one event.
//
// Err is set when rendering failed. An Ignore with Err must be reported; a
// RecordRemoval with Err still counts as a real removal but has no Key.
type Action struct {
	Kind ActionKind
	Key  rdf.StatementKey
	Text string
	Err  error
}

// Classifier maps host events to ledger actions. It holds no per-transaction
// state and is safe for concurrent use.
type Classifier struct {
	templates *Templates
}

// NewClassifier creates a classifier filling the given templates.
// A nil argument selects DefaultTemplates.
func NewClassifier(t *Templates) *Classifier {
	if t == nil {
		t = DefaultTemplates()
	}
	return &Classifier{templates: t}
}

// Templates returns the templates in use.
func (c *Classifier) Templates() *Templates {
	return c.templates
}

// Classify decides what to do with ev.
//
// The guard is checked first: while a commit is in flight every event is
// ignored regardless of content.
func (c *Classifier) Classify(ev Event, g Guard) Action {
	if g.CommitInFlight {
		return Action{Kind: ActionIgnore}
	}

	switch ev.Kind {
	case EventAdded:
		k, err := rdf.NewStatementKey(ev.Subject, ev.Predicate, ev.Object, ev.Context)
		if err != nil {
			return Action{Kind: ActionIgnore, Err: fmt.Errorf("render added statement: %w", err)}
		}
		return Action{Kind: ActionRecordInsert, Key: k, Text: c.templates.Insert(k)}

	case EventDeleteRequested:
		k, err := rdf.NewStatementKey(ev.Subject, ev.Predicate, ev.Object, ev.Context)
		if err != nil {
			return Action{Kind: ActionIgnore, Err: fmt.Errorf("render delete request: %w", err)}
		}
		return Action{Kind: ActionRecordDeleteIntent, Key: k}

	case EventRemoved:
		if ev.Origin == OriginRewrite {
			return Action{Kind: ActionIgnore}
		}
		k, err := rdf.NewStatementKey(ev.Subject, ev.Predicate, ev.Object, ev.Context)
		if ev.Origin == OriginUser {
			if err != nil {
				return Action{Kind: ActionIgnore, Err: fmt.Errorf("render removed statement: %w", err)}
			}
			return Action{Kind: ActionRecordDelete, Key: k, Text: c.templates.Delete(k)}
		}
		if err != nil {
			return Action{Kind: ActionRecordRemoval, Err: fmt.Errorf("render removed statement: %w", err)}
		}
		return Action{Kind: ActionRecordRemoval, Key: k}
	}

	return Action{Kind: ActionIgnore, Err: fmt.Errorf("unknown event kind %s", ev.Kind)}
}

// DeleteText renders the delete-audit text for a buffered delete-intent.
func (c *Classifier) DeleteText(k rdf.StatementKey) string {
	return c.templates.Delete(k)
}
