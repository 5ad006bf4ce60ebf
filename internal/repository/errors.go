package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrReferenceTaken is returned when a reference number is already stored on another request.
	ErrReferenceTaken = errors.New("reference number already used")
	// ErrRequestConverted blocks signatory decisions on requests already handed to fulfillment.
	ErrRequestConverted = errors.New("clearance request already converted")
	// ErrInvalidTransition is returned when a document is not in a status the transition accepts.
	ErrInvalidTransition = errors.New("document status does not allow transition")
	// ErrNoFiles is returned when completing a document that has no attached files.
	ErrNoFiles = errors.New("document has no files")
)

const (
	referenceConstraint      = "clearance_requests_reference_number_key"
	documentClearanceIndex   = "uq_document_requests_student_clearance"
	uniqueViolationErrorCode = "23505"
)

// uniqueViolation reports whether err is a Postgres unique violation, optionally on a named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != uniqueViolationErrorCode {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
