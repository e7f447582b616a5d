package domainerrors

import "errors"

// Code is a transport-independent failure category. httputil maps codes to
// HTTP statuses; models.KindOf maps them to the certificate error taxonomy.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Certificate issuance and verification codes
	CodeDuplicateCertificate   Code = "duplicate_certificate"    // Triple or fingerprint already committed
	CodeLedgerUnavailable      Code = "ledger_unavailable"       // Transient ledger failure, caller may retry
	CodeLedgerRejected         Code = "ledger_rejected"          // Ledger refused the payload, not retryable
	CodeLedgerSubmissionFailed Code = "ledger_submission_failed" // Submission failed terminally, nothing stored
	CodeInconsistentState      Code = "inconsistent_state"       // Ledger committed, store write pending reconciliation
	CodeIdentityMismatch       Code = "identity_mismatch"        // On-chain holder differs from stored holder
	CodeCancelled              Code = "cancelled"                // Caller cancelled before the item started
)

// Error carries a stable Code alongside a message and optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches code and msg to err. When err already carries a domain code,
// that code wins.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WrapAs wraps err under code even when err already carries a domain code.
// Used where a boundary deliberately reclassifies, e.g. a ledger outage
// becoming a terminal submission failure.
func WrapAs(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the outermost domain code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
