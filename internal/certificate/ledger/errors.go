package ledger

import (
	"errors"
	"fmt"

	"certledger/pkg/platform/sentinel"
)

// ErrorCategory is the normalized ledger failure taxonomy.
type ErrorCategory string

const (
	// CategoryUnavailable covers transport failures, timeouts, 5xx answers
	// and an open circuit. Retryable.
	CategoryUnavailable ErrorCategory = "unavailable"

	// CategoryRejected means the ledger refused the payload. Not retryable.
	CategoryRejected ErrorCategory = "rejected"

	// CategoryNotFound means the ledger holds no record for the fingerprint.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryBadResponse means the ledger answered with something we could not decode.
	CategoryBadResponse ErrorCategory = "bad_response"
)

// ErrRejected is matched by every rejected-category error.
var ErrRejected = errors.New("ledger rejected submission")

// ErrCircuitOpen is wrapped by the resilient gateway when it fails fast.
var ErrCircuitOpen = errors.New("ledger circuit open")

// Error wraps ledger failures with a category. errors.Is matches the
// category sentinels: sentinel.ErrUnavailable, sentinel.ErrNotFound and
// ErrRejected.
type Error struct {
	Category   ErrorCategory
	Op         string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("ledger %s [%s]: %s: %v", e.Op, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("ledger %s [%s]: %s", e.Op, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func (e *Error) Is(target error) bool {
	switch target {
	case sentinel.ErrUnavailable:
		return e.Category == CategoryUnavailable || e.Category == CategoryBadResponse
	case sentinel.ErrNotFound:
		return e.Category == CategoryNotFound
	case ErrRejected:
		return e.Category == CategoryRejected
	}
	return false
}

// NewError builds a categorized ledger error.
func NewError(category ErrorCategory, op, message string, underlying error) *Error {
	return &Error{Category: category, Op: op, Message: message, Underlying: underlying}
}

// IsRetryable reports whether a fresh attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable)
}

// IsNotFound reports whether the ledger holds no record.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

// IsRejected reports whether the ledger refused the payload.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// CategoryOf extracts the category, defaulting to unavailable for
// unclassified errors so callers treat unknown failures as transient.
func CategoryOf(err error) ErrorCategory {
	var le *Error
	if errors.As(err, &le) {
		return le.Category
	}
	return CategoryUnavailable
}
