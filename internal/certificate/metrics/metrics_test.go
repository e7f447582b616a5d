package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncIssued("success")
	m.IncIssued("success")
	m.IncIssued("DuplicateCertificate")
	m.IncVerified("NOT_VERIFIED", "")
	m.ObserveBulk("issue", 3, 2, 1)
	m.SetBreakerState(1)
	m.ObserveLedgerCall("submit", "ok", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IssuedTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuedTotal.WithLabelValues("DuplicateCertificate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerifiedTotal.WithLabelValues("NOT_VERIFIED", "none")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BulkItemsTotal.WithLabelValues("issue", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkItemsTotal.WithLabelValues("issue", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LedgerCallDuration))
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
