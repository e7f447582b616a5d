// Package metrics provides Prometheus metrics for certificate issuance, verification and the ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the certificate module collectors.
type Metrics struct {
	IssuedTotal          *prometheus.CounterVec   // issuance outcomes by kind (success, DuplicateCertificate, ...)
	VerifiedTotal        *prometheus.CounterVec   // verification outcomes by status and reason
	StatusChangesTotal   *prometheus.CounterVec   // issuer status transitions by target status
	IssueDuration        prometheus.Histogram     // end-to-end single issuance latency
	LedgerCallDuration   *prometheus.HistogramVec // ledger calls by operation and outcome
	LedgerRetriesTotal   prometheus.Counter       // coordinator-side ledger resubmissions
	LedgerAdoptedTotal   prometheus.Counter       // retries skipped because the ledger already had the record
	BreakerState         prometheus.Gauge         // 0 closed, 1 open
	StoreRetriesTotal    prometheus.Counter       // store write retries after ledger commit
	PendingWrites        prometheus.Gauge         // unresolved recovery-log entries
	ReconciledTotal      *prometheus.CounterVec   // reconcile outcomes (completed, already_present, missing_on_ledger, failed)
	BulkItemsTotal       *prometheus.CounterVec   // bulk items by operation and status
	BulkBatchSize        *prometheus.HistogramVec // items per batch by operation
	GuardWaitDuration    prometheus.Histogram     // time spent waiting for a triple claim
	GuardContentionTotal prometheus.Counter       // claim attempts that found the triple already held
}

// New registers the collectors with reg (default registry when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		IssuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificates_issued_total",
			Help: "Certificate issuance attempts by outcome",
		}, []string{"outcome"}),
		VerifiedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificates_verified_total",
			Help: "Certificate verifications by resulting status and reason",
		}, []string{"status", "reason"}),
		StatusChangesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificate_status_changes_total",
			Help: "Issuer-driven status transitions by target status",
		}, []string{"status"}),
		IssueDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_certificate_issue_duration_seconds",
			Help:    "End-to-end duration of a single issuance",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LedgerCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_ledger_call_duration_seconds",
			Help:    "Ledger gateway call latency by operation and outcome",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op", "outcome"}),
		LedgerRetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "certledger_ledger_retries_total",
			Help: "Ledger submissions retried after a transient failure",
		}),
		LedgerAdoptedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "certledger_ledger_adopted_total",
			Help: "Retries avoided because the ledger already held the fingerprint",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_ledger_breaker_state",
			Help: "Ledger circuit breaker state (0 closed, 1 open)",
		}),
		StoreRetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "certledger_store_write_retries_total",
			Help: "Record store write retries after ledger commit",
		}),
		PendingWrites: f.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_pending_writes",
			Help: "Unresolved pending writes awaiting reconciliation",
		}),
		ReconciledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_reconciled_total",
			Help: "Pending writes processed by the reconcile worker by outcome",
		}, []string{"outcome"}),
		BulkItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_bulk_items_total",
			Help: "Bulk items processed by operation and status",
		}, []string{"op", "status"}),
		BulkBatchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_bulk_batch_size",
			Help:    "Number of items per bulk request",
			Buckets: []float64{2, 5, 10, 25, 50, 100},
		}, []string{"op"}),
		GuardWaitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_guard_wait_duration_seconds",
			Help:    "Time spent acquiring the per-triple issuance claim",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		GuardContentionTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "certledger_guard_contention_total",
			Help: "Claim attempts that found the triple already held",
		}),
	}
}

func (m *Metrics) IncIssued(outcome string) {
	m.IssuedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncVerified(status, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.VerifiedTotal.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) IncStatusChange(status string) {
	m.StatusChangesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveIssue(d time.Duration) {
	m.IssueDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLedgerCall(op, outcome string, d time.Duration) {
	m.LedgerCallDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

func (m *Metrics) IncLedgerRetry()   { m.LedgerRetriesTotal.Inc() }
func (m *Metrics) IncLedgerAdopted() { m.LedgerAdoptedTotal.Inc() }
func (m *Metrics) IncStoreRetry()    { m.StoreRetriesTotal.Inc() }

// SetBreakerState records the breaker state as 0 closed, 1 open.
func (m *Metrics) SetBreakerState(v int) {
	m.BreakerState.Set(float64(v))
}

func (m *Metrics) SetPendingWrites(n int) {
	m.PendingWrites.Set(float64(n))
}

func (m *Metrics) IncReconciled(outcome string) {
	m.ReconciledTotal.WithLabelValues(outcome).Inc()
}

// ObserveBulk records one batch and its per-item statuses.
func (m *Metrics) ObserveBulk(op string, size, succeeded, failed int) {
	m.BulkBatchSize.WithLabelValues(op).Observe(float64(size))
	m.BulkItemsTotal.WithLabelValues(op, "success").Add(float64(succeeded))
	m.BulkItemsTotal.WithLabelValues(op, "failed").Add(float64(failed))
}

func (m *Metrics) ObserveGuardWait(d time.Duration) {
	m.GuardWaitDuration.Observe(d.Seconds())
}

func (m *Metrics) IncGuardContention() { m.GuardContentionTotal.Inc() }
