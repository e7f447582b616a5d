// Package guard rejects duplicate issuance before anything reaches the ledger.
//
// A duplicate is any of:
//   - a stored record with the same fingerprint (any issuance status)
//   - a CONFIRMED record for the same (issuer, holder, title) triple
//   - an unresolved pending write for the triple, i.e. a ledger-acknowledged
//     issuance whose store write has not completed yet
//
// Check-then-act is made race-free by holding a per-triple claim around the
// whole issuance (see Acquire). The store's unique key on fingerprint is the
// final backstop.
package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/tracer"
	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
)

// RecordReader is the slice of the certificate store the guard needs.
type RecordReader interface {
	FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Certificate, error)
	ExistsConfirmedByTriple(ctx context.Context, key models.TripleKey) (bool, error)
}

// PendingReader reports ledger-acknowledged issuances awaiting their store write.
type PendingReader interface {
	HasUnresolvedTriple(ctx context.Context, key models.TripleKey) (bool, error)
}

// Claimer serializes work on one triple. The returned release must be
// called exactly once.
type Claimer interface {
	Claim(ctx context.Context, key models.TripleKey) (release func(), err error)
}

// Guard answers duplicate questions and hands out per-triple claims.
type Guard struct {
	records RecordReader
	pending PendingReader
	local   Claimer
	remote  Claimer
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

type Option func(*Guard)

// WithDistributedClaimer adds a cross-process claim taken after the local one.
func WithDistributedClaimer(c Claimer) Option {
	return func(g *Guard) {
		g.remote = c
	}
}

// WithLocalClaimer replaces the default in-process claimer.
func WithLocalClaimer(c Claimer) Option {
	return func(g *Guard) {
		g.local = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(g *Guard) {
		g.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func New(records RecordReader, pending PendingReader, opts ...Option) *Guard {
	g := &Guard{records: records, pending: pending}
	for _, opt := range opts {
		opt(g)
	}
	if g.local == nil {
		g.local = NewLocalClaimer()
	}
	if g.tracer == nil {
		g.tracer = tracer.NewNoop()
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return g
}

// HasExisting reports whether the triple is already taken by a CONFIRMED
// record or an unresolved pending write.
func (g *Guard) HasExisting(ctx context.Context, issuer domain.IssuerID, holder domain.HolderID, title string) (bool, error) {
	return g.tripleTaken(ctx, models.NewTripleKey(issuer, holder, title))
}

// Check returns a DuplicateCertificate error when fp or key is taken.
// Infrastructure failures are returned wrapped as internal errors.
func (g *Guard) Check(ctx context.Context, fp models.Fingerprint, key models.TripleKey) error {
	_, err := g.records.FindByFingerprint(ctx, fp)
	switch {
	case err == nil:
		return dErrors.New(dErrors.CodeDuplicateCertificate, "certificate with identical content already exists")
	case !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check fingerprint")
	}

	taken, err := g.tripleTaken(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check certificate triple")
	}
	if taken {
		return dErrors.New(dErrors.CodeDuplicateCertificate, "certificate already issued to this holder")
	}
	return nil
}

func (g *Guard) tripleTaken(ctx context.Context, key models.TripleKey) (bool, error) {
	confirmed, err := g.records.ExistsConfirmedByTriple(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check confirmed triple: %w", err)
	}
	if confirmed {
		return true, nil
	}
	if g.pending == nil {
		return false, nil
	}
	inFlight, err := g.pending.HasUnresolvedTriple(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check pending triple: %w", err)
	}
	return inFlight, nil
}

// Acquire claims key locally and, when configured, across processes.
// Callers run Check and the whole issuance while holding the claim.
func (g *Guard) Acquire(ctx context.Context, key models.TripleKey) (release func(), err error) {
	ctx, span := g.tracer.Start(ctx, tracer.SpanGuardAcquire)
	defer func() { span.End(err) }()

	start := time.Now()
	releaseLocal, err := g.local.Claim(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "gave up waiting for an in-flight request on the same triple")
	}
	if g.remote == nil {
		g.observeWait(start)
		return releaseLocal, nil
	}

	releaseRemote, err := g.remote.Claim(ctx, key)
	if err != nil {
		releaseLocal()
		if dErrors.HasCode(err, dErrors.CodeConflict) && g.metrics != nil {
			g.metrics.IncGuardContention()
		}
		g.logger.WarnContext(ctx, "triple claim failed",
			"error", err,
		)
		return nil, err
	}
	g.observeWait(start)
	return func() {
		releaseRemote()
		releaseLocal()
	}, nil
}

func (g *Guard) observeWait(start time.Time) {
	if g.metrics != nil {
		g.metrics.ObserveGuardWait(time.Since(start))
	}
}
