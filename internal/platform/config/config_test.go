package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, DefaultTopic, cfg.Kafka.Topic)
	assert.Equal(t, 200*time.Millisecond, cfg.Ledger.RetryInitial)
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, 100, cfg.MaxBatchSize)
	assert.Nil(t, cfg.ArtifactExtensions)
	assert.Empty(t, cfg.Redis.URL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CERTLEDGER_ADDR", ":9090")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("LEDGER_SUBMIT_TIMEOUT", "45s")
	t.Setenv("MAX_BATCH_SIZE", "250")
	t.Setenv("ARTIFACT_EXTENSIONS", ".png, .svg ,,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 45*time.Second, cfg.Ledger.SubmitTimeout)
	assert.Equal(t, 250, cfg.MaxBatchSize)
	assert.Equal(t, []string{".png", ".svg"}, cfg.ArtifactExtensions)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Brokers)
}

func TestFromEnv_IgnoresInvalidValues(t *testing.T) {
	t.Setenv("BULK_CONCURRENCY", "-4")
	t.Setenv("RECONCILE_INTERVAL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 8, cfg.BulkConcurrency)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
}
