package models

import (
	dErrors "certledger/pkg/domain-errors"
)

// ErrorKind is the user-visible failure taxonomy. Bulk results carry it per item.
type ErrorKind string

const (
	KindValidation             ErrorKind = "ValidationError"
	KindDuplicateCertificate   ErrorKind = "DuplicateCertificate"
	KindNotFound               ErrorKind = "NotFound"
	KindLedgerUnavailable      ErrorKind = "LedgerUnavailable"
	KindLedgerRejected         ErrorKind = "LedgerRejected"
	KindLedgerSubmissionFailed ErrorKind = "LedgerSubmissionFailed"
	KindInconsistentState      ErrorKind = "InconsistentState"
	KindIdentityMismatch       ErrorKind = "IdentityMismatch"
	KindForbidden              ErrorKind = "Forbidden"
	KindCancelled              ErrorKind = "Cancelled"
	KindInternal               ErrorKind = "Internal"
)

// KindOf classifies err by its outermost domain code.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeInvariantViolation:
		return KindValidation
	case dErrors.CodeDuplicateCertificate, dErrors.CodeConflict:
		return KindDuplicateCertificate
	case dErrors.CodeNotFound:
		return KindNotFound
	case dErrors.CodeLedgerUnavailable, dErrors.CodeTimeout:
		return KindLedgerUnavailable
	case dErrors.CodeLedgerRejected:
		return KindLedgerRejected
	case dErrors.CodeLedgerSubmissionFailed:
		return KindLedgerSubmissionFailed
	case dErrors.CodeInconsistentState:
		return KindInconsistentState
	case dErrors.CodeIdentityMismatch:
		return KindIdentityMismatch
	case dErrors.CodeForbidden, dErrors.CodeUnauthorized:
		return KindForbidden
	case dErrors.CodeCancelled:
		return KindCancelled
	default:
		return KindInternal
	}
}

// KindString adapts KindOf for classifiers that expect a plain string.
func KindString(err error) string {
	return string(KindOf(err))
}
