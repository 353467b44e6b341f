package rdf

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultContext is the token rendered for statements without a named graph.
const DefaultContext = "default"

// ErrUnsupportedEntity is returned when a value is not one of the known variants.
var ErrUnsupportedEntity = errors.New("unsupported entity")

// UnsupportedEntityError reports the offending value.
type UnsupportedEntityError struct {
	Value any
}

func (e *UnsupportedEntityError) Error() string {
	return fmt.Sprintf("%s: %T is none of IRI, literal, blank node, triple", ErrUnsupportedEntity, e.Value)
}

func (e *UnsupportedEntityError) Unwrap() error {
	return ErrUnsupportedEntity
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Render returns the external textual form of v.
//
//	IRI        <http://ex/s>
//	Literal    "x", "x"@en, "1"^^<http://www.w3.org/2001/XMLSchema#integer>
//	BlankNode  _:b0
//	Triple     << <http://ex/s> <http://ex/p> "x" >>
func Render(v Value) (string, error) {
	var b strings.Builder
	if err := render(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func render(b *strings.Builder, v Value) error {
	switch x := v.(type) {
	case IRI:
		b.WriteByte('<')
		b.WriteString(string(x))
		b.WriteByte('>')
	case Literal:
		b.WriteByte('"')
		literalEscaper.WriteString(b, x.Lexical)
		b.WriteByte('"')
		switch {
		case x.Lang != "":
			b.WriteByte('@')
			b.WriteString(x.Lang)
		case x.Datatype != "" && x.Datatype != XSDString:
			b.WriteString("^^<")
			b.WriteString(x.Datatype)
			b.WriteByte('>')
		}
	case BlankNode:
		b.WriteString("_:")
		b.WriteString(x.ID)
	case Triple:
		b.WriteString("<< ")
		for i, part := range []Value{x.Subject, x.Predicate, x.Object} {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := render(b, part); err != nil {
				return err
			}
		}
		b.WriteString(" >>")
	default:
		return &UnsupportedEntityError{Value: v}
	}
	return nil
}

// RenderContext renders a statement context. A nil context is the default
// graph and renders as DefaultContext.
func RenderContext(v Value) (string, error) {
	if v == nil {
		return DefaultContext, nil
	}
	return Render(v)
}
