package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	StoreDriver string
	DatabaseURL string
	SQLiteDir   string

	Redis  RedisConfig
	Kafka  KafkaConfig
	Ledger LedgerConfig

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	AdminToken    string

	// AdminTokenHash takes precedence over AdminToken when both are set.
	AdminTokenHash string

	BulkConcurrency    int
	MaxBatchSize       int
	ArtifactExtensions []string

	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	OutboxInterval     time.Duration
	RequestTimeout     time.Duration
	MaxBodyBytes       int64
}

// RedisConfig enables the cross-process duplicate claim. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ClaimTTL     time.Duration
}

// KafkaConfig configures event publishing. No brokers means events are
// marked processed without being sent.
type KafkaConfig struct {
	Brokers string
	Topic   string
	Acks    string
}

// LedgerConfig selects the ledger. With RPCURL empty an embedded ledger is
// opened at DataDir (in memory when DataDir is empty too).
type LedgerConfig struct {
	RPCURL           string
	APIKey           string
	DataDir          string
	SubmitTimeout    time.Duration
	QueryTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	RetryInitial     time.Duration
	MaxRetries       int
}

// DefaultTopic carries certificate lifecycle events.
const DefaultTopic = "certledger.certificate.events"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        envString("CERTLEDGER_ADDR", ":8080"),
		Environment: envString("CERTLEDGER_ENV", "local"),
		LogLevel:    envString("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(envString("STORE_DRIVER", StoreMemory)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLiteDir:   envString("SQLITE_DIR", "data"),

		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ClaimTTL:     envDuration("REDIS_CLAIM_TTL", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_TOPIC", DefaultTopic),
			Acks:    envString("KAFKA_ACKS", "all"),
		},
		Ledger: LedgerConfig{
			RPCURL:           os.Getenv("LEDGER_RPC_URL"),
			APIKey:           os.Getenv("LEDGER_API_KEY"),
			DataDir:          os.Getenv("LEDGER_DATA_DIR"),
			SubmitTimeout:    envDuration("LEDGER_SUBMIT_TIMEOUT", 30*time.Second),
			QueryTimeout:     envDuration("LEDGER_QUERY_TIMEOUT", 5*time.Second),
			BreakerThreshold: envInt("LEDGER_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  envDuration("LEDGER_BREAKER_COOLDOWN", 30*time.Second),
			RetryInitial:     envDuration("LEDGER_RETRY_INITIAL", 200*time.Millisecond),
			MaxRetries:       envInt("LEDGER_MAX_RETRIES", 3),
		},

		// Use a default for development - should be overridden in production
		JWTSigningKey:  envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:      envString("JWT_ISSUER", "certledger-identity"),
		JWTAudience:    envString("JWT_AUDIENCE", "certledger"),
		TokenTTL:       envDuration("TOKEN_TTL", 15*time.Minute),
		AdminToken:     os.Getenv("ADMIN_API_TOKEN"),
		AdminTokenHash: os.Getenv("ADMIN_API_TOKEN_HASH"),

		BulkConcurrency:    envInt("BULK_CONCURRENCY", 8),
		MaxBatchSize:       envInt("MAX_BATCH_SIZE", 100),
		ArtifactExtensions: envList("ARTIFACT_EXTENSIONS"),

		ReconcileInterval:  envDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileBatchSize: envInt("RECONCILE_BATCH_SIZE", 50),
		OutboxInterval:     envDuration("OUTBOX_POLL_INTERVAL", time.Second),
		RequestTimeout:     envDuration("REQUEST_TIMEOUT", 60*time.Second),
		MaxBodyBytes:       int64(envInt("MAX_BODY_BYTES", 1<<20)),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// envList splits a comma separated value, dropping blanks. Unset yields nil.
func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
