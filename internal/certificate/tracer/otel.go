package tracer

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "certledger/pkg/domain-errors"
)

// InstrumentationName is the tracer name used against the global provider.
const InstrumentationName = "certledger/certificate"

// OTelTracer exports certificate spans through OpenTelemetry.
//
// Ledger spans are client spans and everything else is internal. A span that
// ends with an expected business outcome (duplicate, validation, not found,
// identity mismatch) carries the error code and a rejection event but keeps
// an unset status, so only infrastructure failures show up as errored spans.
type OTelTracer struct {
	tracer    trace.Tracer
	component string
}

type OTelOption func(*OTelTracer)

// WithOTelTracer injects a pre-configured OpenTelemetry tracer.
func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) {
		o.tracer = t
	}
}

// WithComponent tags every span with the emitting component, e.g. "api" or
// "reconciler", so both processes can share one trace backend.
func WithComponent(name string) OTelOption {
	return func(o *OTelTracer) {
		o.component = name
	}
}

func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(InstrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs)+1)
	if t.component != "" {
		kv = append(kv, attribute.String(AttrComponent, t.component))
	}
	kv = appendKeyValues(kv, attrs)

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(spanKind(name)),
		trace.WithAttributes(kv...),
	)
	return ctx, &otelSpan{span: span}
}

// spanKind marks calls that leave the process for the ledger.
func spanKind(name string) trace.SpanKind {
	if strings.HasPrefix(name, "ledger.") {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End(err error) {
	defer s.span.End()
	if err == nil {
		return
	}
	code := dErrors.CodeOf(err)
	s.span.SetAttributes(attribute.String(AttrErrorCode, string(code)))
	if isRejection(code) {
		s.span.AddEvent(EventRejected, trace.WithAttributes(attribute.String(AttrErrorCode, string(code))))
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, string(code))
}

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(appendKeyValues(nil, attrs)...)
}

func (s *otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(appendKeyValues(nil, attrs)...))
}

// isRejection reports codes that describe the caller's request rather than a
// fault in the engine or its dependencies.
func isRejection(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeValidation,
		dErrors.CodeInvalidInput,
		dErrors.CodeBadRequest,
		dErrors.CodeNotFound,
		dErrors.CodeForbidden,
		dErrors.CodeDuplicateCertificate,
		dErrors.CodeIdentityMismatch,
		dErrors.CodeCancelled:
		return true
	default:
		return false
	}
}

// appendKeyValues converts attributes built by this package's constructors.
// Values of any other type are dropped.
func appendKeyValues(dst []attribute.KeyValue, attrs []Attribute) []attribute.KeyValue {
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			dst = append(dst, attribute.String(a.Key, v))
		case bool:
			dst = append(dst, attribute.Bool(a.Key, v))
		case int64:
			dst = append(dst, attribute.Int64(a.Key, v))
		}
	}
	return dst
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = (*otelSpan)(nil)
)
