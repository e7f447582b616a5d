// Package tracer provides a lightweight tracing abstraction for the certificate module.
//
// Services and ledger adapters depend on the Tracer interface rather than on
// OpenTelemetry directly, so tests can run with NoopTracer while production
// wires OTelTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a child span of whatever span ctx carries.
	//
	// Example:
	//   ctx, span := t.Start(ctx, tracer.SpanLedgerSubmit,
	//       tracer.String(tracer.AttrFingerprint, fp.Short()),
	//   )
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashIdentity returns a short SHA-256 prefix of an identity so traces can be
// correlated without carrying emails or wallet addresses.
func HashIdentity(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(id)))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanIssue        = "certificate.issue"
	SpanBulkIssue    = "certificate.bulk_issue"
	SpanVerify       = "certificate.verify"
	SpanBulkVerify   = "certificate.bulk_verify"
	SpanLedgerSubmit = "ledger.submit"
	SpanLedgerQuery  = "ledger.query"
	SpanReconcile    = "certificate.reconcile"
	SpanGuardAcquire = "certificate.guard.acquire"
)

// Attribute keys.
const (
	AttrFingerprint  = "certificate.fingerprint"
	AttrIssuer       = "certificate.issuer_hash"
	AttrHolder       = "certificate.holder_hash"
	AttrBatchSize    = "bulk.size"
	AttrAttempt      = "ledger.attempt"
	AttrTxRef        = "ledger.tx_ref"
	AttrBreakerState = "ledger.breaker_state"
	AttrOutcome      = "outcome"
	AttrComponent    = "certledger.component"
	AttrErrorCode    = "error.code"
)

// Event names.
const (
	EventLedgerRetry   = "ledger.retry"
	EventLedgerAdopted = "ledger.adopted"
	EventStoreRetry    = "store.retry"
	EventRejected      = "certificate.rejected"
)
