// Package reconcile completes store writes for certificates the ledger has
// acknowledged but the record store never received.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
)

// Reconciler is the issuance side the worker drives.
type Reconciler interface {
	ClaimPendingWrites(ctx context.Context, limit int, lease time.Duration) ([]*models.PendingWrite, error)
	CompletePendingWrite(ctx context.Context, pw *models.PendingWrite) (models.ReconcileOutcome, error)
	CountPendingWrites(ctx context.Context) (int, error)
}

// Report summarizes one reconciliation pass.
type Report struct {
	Claimed        int
	Skipped        int
	Completed      int
	AlreadyPresent int
	MissingOnChain int
	Failed         int
}

// Worker periodically claims unresolved pending writes and completes them.
type Worker struct {
	reconciler   Reconciler
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration
	grace        time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Worker)

// WithBatchSize sets how many entries one pass claims.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithPollInterval sets the interval between passes.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLease sets how long a claimed entry is hidden from other workers.
func WithLease(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// WithGracePeriod skips entries younger than d; their issuance is most
// likely still completing the write itself.
func WithGracePeriod(d time.Duration) Option {
	return func(w *Worker) {
		if d >= 0 {
			w.grace = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithClock overrides the time source used for the grace period.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func New(r Reconciler, opts ...Option) *Worker {
	w := &Worker{
		reconciler:   r,
		batchSize:    50,
		pollInterval: 30 * time.Second,
		lease:        2 * time.Minute,
		grace:        time.Minute,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs passes in a background goroutine until Stop or ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch and attempts every entry in it.
func (w *Worker) RunOnce(ctx context.Context) Report {
	var report Report

	entries, err := w.reconciler.ClaimPendingWrites(ctx, w.batchSize, w.lease)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to claim pending writes", "error", err)
		return report
	}
	report.Claimed = len(entries)

	cutoff := w.now().Add(-w.grace)
	for _, pw := range entries {
		if ctx.Err() != nil {
			break
		}
		if pw.CreatedAt.After(cutoff) {
			report.Skipped++
			continue
		}

		outcome, err := w.reconciler.CompletePendingWrite(ctx, pw)
		if err != nil {
			w.logger.WarnContext(ctx, "pending write reconciliation failed",
				"pending_id", pw.ID.String(),
				"fingerprint", pw.Fingerprint.Short(),
				"attempts", pw.Attempts+1,
				"error", err,
			)
		}
		switch outcome {
		case models.ReconcileCompleted:
			report.Completed++
		case models.ReconcileAlreadyPresent:
			report.AlreadyPresent++
		case models.ReconcileMissingOnLedger:
			report.MissingOnChain++
		default:
			outcome = models.ReconcileFailed
			report.Failed++
		}
		if w.metrics != nil {
			w.metrics.IncReconciled(string(outcome))
		}
	}

	w.updateDepth(ctx)
	if report.Claimed > report.Skipped {
		w.logger.InfoContext(ctx, "reconcile pass finished",
			"claimed", report.Claimed,
			"completed", report.Completed,
			"already_present", report.AlreadyPresent,
			"missing_on_ledger", report.MissingOnChain,
			"failed", report.Failed,
		)
	}
	return report
}

func (w *Worker) updateDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	n, err := w.reconciler.CountPendingWrites(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to count pending writes", "error", err)
		return
	}
	w.metrics.SetPendingWrites(n)
}
