package ledger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/tracer"
	"certledger/pkg/platform/circuit"
)

// Resilient decorates a Gateway with a circuit breaker, a span per call and
// latency metrics. Only unavailable-category failures count against the
// breaker; NotFound and Rejected are healthy answers.
type Resilient struct {
	next    Gateway
	breaker *circuit.Breaker
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type ResilientOption func(*Resilient)

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *Resilient) {
		r.breaker = b
	}
}

func WithTracer(t tracer.Tracer) ResilientOption {
	return func(r *Resilient) {
		r.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) ResilientOption {
	return func(r *Resilient) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = logger
	}
}

func NewResilient(next Gateway, opts ...ResilientOption) *Resilient {
	r := &Resilient{next: next}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("ledger")
	}
	if r.tracer == nil {
		r.tracer = tracer.NewNoop()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return r
}

func (r *Resilient) Submit(ctx context.Context, sub Submission) (receipt *Receipt, err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanLedgerSubmit,
		tracer.String(tracer.AttrFingerprint, sub.Fingerprint),
		tracer.String(tracer.AttrHolder, tracer.HashIdentity(sub.HolderID)),
	)
	defer func() { span.End(err) }()

	if !r.allow(ctx, span, "submit") {
		return nil, NewError(CategoryUnavailable, "submit", "circuit open", ErrCircuitOpen)
	}
	start := time.Now()
	receipt, err = r.next.Submit(ctx, sub)
	r.record(ctx, "submit", err, time.Since(start))
	if receipt != nil {
		span.SetAttributes(
			tracer.String(tracer.AttrTxRef, receipt.TxRef),
			tracer.Bool("ledger.committed", receipt.Committed),
		)
	}
	return receipt, err
}

func (r *Resilient) QueryByFingerprint(ctx context.Context, holderID, fingerprint string) (rec *OnChainRecord, err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanLedgerQuery,
		tracer.String(tracer.AttrFingerprint, fingerprint),
	)
	defer func() { span.End(err) }()

	if !r.allow(ctx, span, "query") {
		return nil, NewError(CategoryUnavailable, "query", "circuit open", ErrCircuitOpen)
	}
	start := time.Now()
	rec, err = r.next.QueryByFingerprint(ctx, holderID, fingerprint)
	r.record(ctx, "query", err, time.Since(start))
	return rec, err
}

// Ping delegates when the wrapped gateway supports it.
func (r *Resilient) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// BreakerState exposes the breaker state for readiness reporting.
func (r *Resilient) BreakerState() circuit.State {
	return r.breaker.State()
}

func (r *Resilient) allow(ctx context.Context, span tracer.Span, op string) bool {
	if r.breaker.Allow() {
		return true
	}
	span.SetAttributes(tracer.String(tracer.AttrBreakerState, circuit.StateOpen.String()))
	if r.metrics != nil {
		r.metrics.ObserveLedgerCall(op, "circuit_open", 0)
	}
	r.logger.WarnContext(ctx, "ledger call short-circuited", "op", op, "breaker", r.breaker.Name())
	return false
}

func (r *Resilient) record(ctx context.Context, op string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(CategoryOf(err))
	}
	if r.metrics != nil {
		r.metrics.ObserveLedgerCall(op, outcome, d)
	}

	var change circuit.StateChange
	if err != nil && IsRetryable(err) && ctx.Err() == nil {
		change = r.breaker.RecordFailure()
	} else if err == nil || !IsRetryable(err) {
		change = r.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		r.logger.WarnContext(ctx, "ledger circuit opened", "op", op, "error", err)
		r.setBreakerGauge(1)
	case change.Closed:
		r.logger.InfoContext(ctx, "ledger circuit closed", "op", op)
		r.setBreakerGauge(0)
	}
}

func (r *Resilient) setBreakerGauge(v int) {
	if r.metrics != nil {
		r.metrics.SetBreakerState(v)
	}
}

var (
	_ Gateway = (*Resilient)(nil)
	_ Pinger  = (*Resilient)(nil)
)
