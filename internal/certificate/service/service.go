// Package service coordinates certificate issuance, verification and status
// changes across the ledger and the record store.
//
// Issuance is a two-phase write. The ledger submission happens first; a
// pending write holding the full record is then appended before the store
// write, and resolved in the same transaction that creates the record. A
// ledger-committed certificate is therefore always either in the store or in
// the pending log, where the reconcile worker picks it up.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"certledger/internal/certificate/guard"
	"certledger/internal/certificate/ledger"
	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/tracer"
	"certledger/pkg/domain"
	"certledger/pkg/platform/outbox"
	"certledger/pkg/validation"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,PendingStore,OutboxAppender

// Store persists certificate records.
// Error Contract:
//   - Create returns sentinel.ErrAlreadyExists when the fingerprint is taken
//   - lookups and updates return sentinel.ErrNotFound for unknown fingerprints
type Store interface {
	Create(ctx context.Context, c *models.Certificate) error
	FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Certificate, error)
	ExistsConfirmedByTriple(ctx context.Context, key models.TripleKey) (bool, error)
	UpdateVerification(ctx context.Context, fp models.Fingerprint, status models.VerificationStatus, reason models.VerificationReason, at time.Time) (*models.Certificate, error)
	UpdateIssuanceStatus(ctx context.Context, fp models.Fingerprint, status models.IssuanceStatus, at time.Time) (*models.Certificate, error)
	ListByIssuer(ctx context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error)
	ListByHolder(ctx context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error)
	Delete(ctx context.Context, fp models.Fingerprint) error
	Ping(ctx context.Context) error
}

// PendingStore is the recovery log of ledger-acknowledged records awaiting
// their store write.
type PendingStore interface {
	Append(ctx context.Context, p *models.PendingWrite) error
	Resolve(ctx context.Context, id domain.PendingWriteID, at time.Time) error
	RecordAttempt(ctx context.Context, id domain.PendingWriteID, lastErr string, at time.Time) error
	ClaimUnresolved(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*models.PendingWrite, error)
	HasUnresolvedTriple(ctx context.Context, key models.TripleKey) (bool, error)
	CountUnresolved(ctx context.Context) (int, error)
}

// OutboxAppender records certificate events for asynchronous publishing.
type OutboxAppender interface {
	Append(ctx context.Context, entry *outbox.Entry) error
}

const (
	defaultLedgerInitialBackoff = 200 * time.Millisecond
	defaultLedgerBackoffFactor  = 2
	defaultLedgerMaxRetries     = 3
	defaultStoreRetries         = 3
	defaultStoreBackoff         = 50 * time.Millisecond
	defaultPersistTimeout       = 10 * time.Second
)

// RetryPolicy is an exponential backoff budget.
type RetryPolicy struct {
	Initial    time.Duration
	Factor     int
	MaxRetries int
}

func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.Initial
	for i := 1; i < retry; i++ {
		d *= time.Duration(p.Factor)
	}
	return d
}

// Service is the issuance coordinator and verification service.
type Service struct {
	store   Store
	pending PendingStore
	tx      StoreTx
	ledger  ledger.Gateway
	guard   *guard.Guard

	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger

	ledgerRetry        RetryPolicy
	storeRetry         RetryPolicy
	persistTimeout     time.Duration
	bulkConcurrency    int
	maxBatch           int
	artifactExtensions []string
	sleep              func(ctx context.Context, d time.Duration) error
}

type Option func(*Service)

// WithGuard replaces the default guard, e.g. to add a distributed claimer.
func WithGuard(g *guard.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLedgerRetry sets the backoff for transient ledger submission failures.
func WithLedgerRetry(p RetryPolicy) Option {
	return func(s *Service) {
		if p.Initial > 0 && p.Factor > 0 && p.MaxRetries >= 0 {
			s.ledgerRetry = p
		}
	}
}

// WithStoreRetry sets the budget for the store write after a ledger commit.
func WithStoreRetry(p RetryPolicy) Option {
	return func(s *Service) {
		if p.Initial > 0 && p.Factor > 0 && p.MaxRetries >= 0 {
			s.storeRetry = p
		}
	}
}

// WithBulkConcurrency bounds concurrent items in bulk operations.
func WithBulkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkConcurrency = n
		}
	}
}

// WithMaxBatch caps bulk batch size.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithArtifactExtensions overrides the accepted artifact image extensions.
func WithArtifactExtensions(exts []string) Option {
	return func(s *Service) {
		if len(exts) > 0 {
			s.artifactExtensions = exts
		}
	}
}

// WithSleep replaces the backoff wait. Tests use it to skip real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func New(store Store, pending PendingStore, tx StoreTx, gw ledger.Gateway, opts ...Option) *Service {
	s := &Service{
		store:   store,
		pending: pending,
		tx:      tx,
		ledger:  gw,
		ledgerRetry: RetryPolicy{
			Initial:    defaultLedgerInitialBackoff,
			Factor:     defaultLedgerBackoffFactor,
			MaxRetries: defaultLedgerMaxRetries,
		},
		storeRetry: RetryPolicy{
			Initial:    defaultStoreBackoff,
			Factor:     2,
			MaxRetries: defaultStoreRetries,
		},
		persistTimeout:     defaultPersistTimeout,
		bulkConcurrency:    8,
		maxBatch:           100,
		artifactExtensions: validation.DefaultArtifactExtensions,
		sleep:              sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = tracer.NewNoop()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.guard == nil {
		s.guard = guard.New(store, pending, guard.WithMetrics(s.metrics), guard.WithTracer(s.tracer), guard.WithLogger(s.logger))
	}
	return s
}

// Ping reports whether the record store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
