// Package rdf defines the value model shared by the audit pipeline.
//
// Host graph stores hand out opaque integer identifiers for every interned
// entity. The pipeline resolves those identifiers through an Entities lookup
// supplied per call and works on the typed values defined here:
//   - IRI: a resource reference, rendered as <iri>
//   - Literal: lexical form plus datatype or language tag
//   - BlankNode: a store-local anonymous node, rendered as _:id
//   - Triple: a nested (reified) statement usable as a subject or object
//
// Render produces the textual form the backing store's update language
// expects. StatementKey is the identity used to deduplicate mutations inside a
// single host transaction.
package rdf
