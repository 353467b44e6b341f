package rdf

// XSDString is the implicit datatype of plain literals.
const XSDString = "http://www.w3.org/2001/XMLSchema#string"

// Value is a sealed interface over the entity variants the renderer knows.
// Only IRI, Literal, BlankNode and Triple implement it.
type Value interface {
	rdfValue()
}

// IRI is an absolute resource identifier.
type IRI string

func (IRI) rdfValue() {}

// Literal is a typed or language-tagged lexical value.
// An empty Datatype is treated as xsd:string.
type Literal struct {
	Lexical  string
	Datatype string
	Lang     string
}

func (Literal) rdfValue() {}

// NewLiteral creates a plain xsd:string literal.
func NewLiteral(lexical string) Literal {
	return Literal{Lexical: lexical}
}

// NewTypedLiteral creates a literal with an explicit datatype IRI.
func NewTypedLiteral(lexical, datatype string) Literal {
	return Literal{Lexical: lexical, Datatype: datatype}
}

// NewLangLiteral creates a language-tagged literal.
func NewLangLiteral(lexical, lang string) Literal {
	return Literal{Lexical: lexical, Lang: lang}
}

// BlankNode is an anonymous node identified only within its store.
type BlankNode struct {
	ID string
}

func (BlankNode) rdfValue() {}

// Triple is a nested statement. Any component may itself be a Triple.
type Triple struct {
	Subject   Value
	Predicate Value
	Object    Value
}

func (Triple) rdfValue() {}

// NewTriple creates a nested triple from its components.
func NewTriple(s, p, o Value) Triple {
	return Triple{Subject: s, Predicate: p, Object: o}
}
