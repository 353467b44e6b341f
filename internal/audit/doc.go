// Package audit turns statement mutations into audit-update text.
//
// Every audit record is a nested triple carrying one edge of its validity
// interval:
//
//	<< s p o >> <urn:versioning#valid_from>  ?timestamp   (insert)
//	<< s p o >> <urn:versioning#valid_until> ?timestamp   (delete)
//
// Delete records only close an interval that is still open, so a triple's
// history is append-only and never re-opened.
//
// The Classifier decides per host event whether the event is ignored
// (self-caused), recorded as an insert, or buffered as a delete-intent.
// Templates hold the four update-language templates the classifier fills in.
package audit
