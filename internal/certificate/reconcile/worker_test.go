package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
)

type fakeReconciler struct {
	mu        sync.Mutex
	entries   []*models.PendingWrite
	outcomes  map[domain.PendingWriteID]models.ReconcileOutcome
	completed []domain.PendingWriteID
	claimErr  error
	remaining int
}

func (f *fakeReconciler) ClaimPendingWrites(_ context.Context, limit int, _ time.Duration) ([]*models.PendingWrite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeReconciler) CompletePendingWrite(_ context.Context, pw *models.PendingWrite) (models.ReconcileOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, pw.ID)
	outcome, ok := f.outcomes[pw.ID]
	if !ok {
		outcome = models.ReconcileCompleted
	}
	if outcome == models.ReconcileFailed {
		return outcome, errors.New("store unavailable")
	}
	return outcome, nil
}

func (f *fakeReconciler) CountPendingWrites(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining, nil
}

func (f *fakeReconciler) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed)
}

func entryAt(created time.Time) *models.PendingWrite {
	return &models.PendingWrite{
		ID:          domain.NewPendingWriteID(),
		Fingerprint: models.Fingerprint("ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"),
		CreatedAt:   created,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_ClassifiesOutcomes(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * time.Minute)
	done, present, missing, failed, fresh := entryAt(old), entryAt(old), entryAt(old), entryAt(old), entryAt(now.Add(-time.Second))

	r := &fakeReconciler{
		entries: []*models.PendingWrite{done, present, missing, failed, fresh},
		outcomes: map[domain.PendingWriteID]models.ReconcileOutcome{
			present.ID: models.ReconcileAlreadyPresent,
			missing.ID: models.ReconcileMissingOnLedger,
			failed.ID:  models.ReconcileFailed,
		},
		remaining: 3,
	}
	m := metrics.New(prometheus.NewRegistry())
	w := New(r,
		WithMetrics(m),
		WithLogger(discard()),
		WithClock(func() time.Time { return now }),
		WithGracePeriod(time.Minute),
	)

	report := w.RunOnce(context.Background())

	assert.Equal(t, Report{Claimed: 5, Skipped: 1, Completed: 1, AlreadyPresent: 1, MissingOnChain: 1, Failed: 1}, report)
	assert.NotContains(t, r.completed, fresh.ID, "entries inside the grace period are left to their issuance")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconciledTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconciledTotal.WithLabelValues("missing_on_ledger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconciledTotal.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PendingWrites))
}

func TestRunOnce_ClaimFailure(t *testing.T) {
	r := &fakeReconciler{claimErr: errors.New("database is locked")}
	w := New(r, WithLogger(discard()))

	assert.Equal(t, Report{}, w.RunOnce(context.Background()))
}

func TestRunOnce_RespectsBatchSize(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	r := &fakeReconciler{}
	for range 5 {
		r.entries = append(r.entries, entryAt(old))
	}
	w := New(r, WithBatchSize(2), WithLogger(discard()))

	report := w.RunOnce(context.Background())
	assert.Equal(t, 2, report.Claimed)
	assert.Equal(t, 2, report.Completed)
}

func TestRunOnce_StopsOnCancelledContext(t *testing.T) {
	r := &fakeReconciler{entries: []*models.PendingWrite{entryAt(time.Now().Add(-time.Hour))}}
	w := New(r, WithLogger(discard()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := w.RunOnce(ctx)
	assert.Equal(t, 1, report.Claimed)
	assert.Zero(t, r.completedCount())
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReconciler{entries: []*models.PendingWrite{entryAt(time.Now().Add(-time.Hour))}}
	w := New(r, WithPollInterval(5*time.Millisecond), WithLogger(discard()))

	w.Start(context.Background())
	require.Eventually(t, func() bool { return r.completedCount() > 0 }, time.Second, 5*time.Millisecond)
	w.Stop()

	n := r.completedCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, r.completedCount(), "no passes after Stop")
}
