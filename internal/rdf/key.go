package rdf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainStatement is the hash domain for statement digests.
// The version suffix allows the digest algorithm to change later.
const DomainStatement = "rdfstamp/statement/v1"

// KeyMode selects how contexts take part in statement identity.
type KeyMode int

const (
	// KeyModeStrict compares subject, predicate, object and context.
	// A missing context is the default graph.
	KeyModeStrict KeyMode = iota

	// KeyModeLoose compares contexts only when both keys carry one, so a
	// context-less key matches the same triple in any graph. This matches
	// audit data written by earlier plugin releases.
	KeyModeLoose
)

// ParseKeyMode parses "strict" or "loose".
func ParseKeyMode(s string) (KeyMode, error) {
	switch s {
	case "", "strict":
		return KeyModeStrict, nil
	case "loose":
		return KeyModeLoose, nil
	}
	return KeyModeStrict, fmt.Errorf("unknown key mode %q", s)
}

func (m KeyMode) String() string {
	if m == KeyModeLoose {
		return "loose"
	}
	return "strict"
}

// StatementKey identifies a statement by its rendered text.
// Context is empty when the statement has no named graph.
type StatementKey struct {
	Subject   string
	Predicate string
	Object    string
	Context   string
}

// NewStatementKey renders the components of a statement into a key.
// A nil context yields an empty Context.
func NewStatementKey(s, p, o, c Value) (StatementKey, error) {
	var k StatementKey
	var err error
	if k.Subject, err = Render(s); err != nil {
		return StatementKey{}, fmt.Errorf("subject: %w", err)
	}
	if k.Predicate, err = Render(p); err != nil {
		return StatementKey{}, fmt.Errorf("predicate: %w", err)
	}
	if k.Object, err = Render(o); err != nil {
		return StatementKey{}, fmt.Errorf("object: %w", err)
	}
	if c != nil {
		if k.Context, err = Render(c); err != nil {
			return StatementKey{}, fmt.Errorf("context: %w", err)
		}
	}
	return k, nil
}

// HasContext reports whether the key names a graph.
func (k StatementKey) HasContext() bool {
	return k.Context != "" && k.Context != DefaultContext
}

// ContextText returns the context as substituted into templates.
func (k StatementKey) ContextText() string {
	if !k.HasContext() {
		return DefaultContext
	}
	return k.Context
}

// Triple returns the key without its context. Loose-mode lookups bucket by it.
func (k StatementKey) Triple() StatementKey {
	return StatementKey{Subject: k.Subject, Predicate: k.Predicate, Object: k.Object}
}

// Normalize maps the default-graph token to the empty context so that both
// spellings compare equal.
func (k StatementKey) Normalize() StatementKey {
	if !k.HasContext() {
		k.Context = ""
	}
	return k
}

// Equal reports whether two keys identify the same statement under mode.
func (k StatementKey) Equal(other StatementKey, mode KeyMode) bool {
	a, b := k.Normalize(), other.Normalize()
	if a.Subject != b.Subject || a.Predicate != b.Predicate || a.Object != b.Object {
		return false
	}
	if mode == KeyModeLoose && (a.Context == "" || b.Context == "") {
		return true
	}
	return a.Context == b.Context
}

// String renders the key as an N-Quads-like line without the trailing dot.
func (k StatementKey) String() string {
	parts := []string{k.Subject, k.Predicate, k.Object}
	if k.HasContext() {
		parts = append(parts, k.Context)
	}
	return strings.Join(parts, " ")
}

// Digest returns a stable content hash of the key.
// Text is NFC-normalized so that canonically equivalent literals hash equally.
// Format: SHA256(domain + 0x00 + s + 0x00 + p + 0x00 + o + 0x00 + c)
func (k StatementKey) Digest() string {
	k = k.Normalize()
	h := sha256.New()
	h.Write([]byte(DomainStatement))
	for _, part := range []string{k.Subject, k.Predicate, k.Object, k.Context} {
		h.Write([]byte{0x00})
		h.Write(norm.NFC.Bytes([]byte(part)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
