package engine

import (
	"errors"
	"fmt"
)

// AuditError is a failure inside the audit subsystem.
//
// None of these fail the host transaction; they surface only through the
// Engine's logger and metrics. Codes:
//   - Unsupported entity: one statement could not be rendered and was skipped
//   - Malformed delete-intent: an intent arrived after a confirmed removal
//     of the same key and was discarded
//   - Backend unavailable: a batch could not be written and was dropped
//   - Commit collision: a commit arrived while a batch was in flight; the
//     events of its transaction were ignored and nothing was written
type AuditError struct {
	// Code identifies the error category.
	Code AuditErrorCode

	// Message is a human-readable description.
	Message string

	// BatchID identifies the affected batch, when there is one.
	BatchID string

	// Statement is the rendered statement, when there is one.
	Statement string

	// Err is the underlying cause.
	Err error
}

// AuditErrorCode categorizes audit errors.
type AuditErrorCode string

const (
	// ErrCodeUnsupportedEntity indicates a value could not be rendered.
	ErrCodeUnsupportedEntity AuditErrorCode = "UNSUPPORTED_ENTITY"

	// ErrCodeMalformedDeleteIntent indicates a delete-intent was superseded
	// by a confirmed removal of the same statement.
	ErrCodeMalformedDeleteIntent AuditErrorCode = "MALFORMED_DELETE_INTENT"

	// ErrCodeBackendUnavailable indicates a batch could not be committed.
	ErrCodeBackendUnavailable AuditErrorCode = "BACKEND_UNAVAILABLE"

	// ErrCodeCommitCollision indicates a commit arrived while a batch was in flight.
	ErrCodeCommitCollision AuditErrorCode = "COMMIT_COLLISION"

	// ErrCodeUnresolvedEntity indicates the host could not resolve an identifier.
	ErrCodeUnresolvedEntity AuditErrorCode = "UNRESOLVED_ENTITY"
)

// Error implements the error interface.
func (e *AuditError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.BatchID != "" {
		msg += fmt.Sprintf(" (batch=%s)", e.BatchID)
	}
	if e.Statement != "" {
		msg += fmt.Sprintf(" (statement=%s)", e.Statement)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *AuditError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is an AuditError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code AuditErrorCode) bool {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsBackendError reports whether err is a failed batch write.
func IsBackendError(err error) bool {
	return HasCode(err, ErrCodeBackendUnavailable)
}

// NewBackendError creates an AuditError for a failed batch step.
func NewBackendError(batchID, step string, err error) *AuditError {
	return &AuditError{
		Code:    ErrCodeBackendUnavailable,
		Message: step + " failed",
		BatchID: batchID,
		Err:     err,
	}
}
