package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"certledger/internal/certificate/guard"
	"certledger/internal/certificate/ledger"
	certmetrics "certledger/internal/certificate/metrics"
	certservice "certledger/internal/certificate/service"
	certstore "certledger/internal/certificate/store"
	"certledger/internal/certificate/tracer"
	"certledger/internal/platform/config"
	"certledger/internal/platform/database"
	"certledger/internal/platform/kafka/producer"
	redisclient "certledger/internal/platform/redis"
	"certledger/migrations"
	"certledger/pkg/platform/circuit"
	"certledger/pkg/platform/outbox"
	outboxmemory "certledger/pkg/platform/outbox/store/memory"
	outboxpostgres "certledger/pkg/platform/outbox/store/postgres"
	outboxsqlite "certledger/pkg/platform/outbox/store/sqlite"
)

// storage is the persistence side of one store driver.
type storage struct {
	certificates certservice.Store
	pending      certservice.PendingStore
	outbox       outbox.Store
	tx           certservice.StoreTx
	close        func() error
}

func buildStorage(ctx context.Context, cfg config.Server, reg prometheus.Registerer, log *slog.Logger) (*storage, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		certs := certstore.NewInMemory()
		pending := certstore.NewInMemoryPending()
		events := outboxmemory.New()
		return &storage{
			certificates: certs,
			pending:      pending,
			outbox:       events,
			tx:           certservice.NewInMemoryTx(certs, pending, events),
			close:        func() error { return nil },
		}, nil

	case config.StoreSQLite:
		db, err := certstore.OpenSQLite(cfg.SQLiteDir)
		if err != nil {
			return nil, err
		}
		if err := outboxsqlite.Migrate(db); err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		log.InfoContext(ctx, "sqlite store opened", "dir", cfg.SQLiteDir)
		return &storage{
			certificates: certstore.NewSQLite(db),
			pending:      certstore.NewSQLitePending(db),
			outbox:       outboxsqlite.New(db),
			tx:           newCertificateSQLiteTx(db),
			close:        sqlDB.Close,
		}, nil

	case config.StorePostgres:
		pool, err := database.Open(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		if err := migrations.Up(ctx, pool.DB()); err != nil {
			_ = pool.Close()
			return nil, err
		}
		if err := pool.Register(reg); err != nil {
			log.WarnContext(ctx, "database stats not exported", "error", err)
		}
		log.InfoContext(ctx, "postgres store connected")
		return &storage{
			certificates: certstore.NewPostgres(pool.DB()),
			pending:      certstore.NewPostgresPending(pool.DB()),
			outbox:       outboxpostgres.New(pool.DB()),
			tx:           newCertificatePostgresTx(pool.DB()),
			close:        pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// ledgerNode is the raw gateway plus its shutdown hook.
type ledgerNode struct {
	gateway ledger.Gateway
	close   func() error
}

func buildLedger(cfg config.LedgerConfig, log *slog.Logger) (*ledgerNode, error) {
	if cfg.RPCURL != "" {
		log.Info("using remote ledger", "url", cfg.RPCURL)
		gw := ledger.NewRPCGateway(ledger.RPCConfig{
			URL:            cfg.RPCURL,
			APIKey:         cfg.APIKey,
			Timeout:        cfg.QueryTimeout,
			ReceiptTimeout: cfg.SubmitTimeout,
		})
		return &ledgerNode{gateway: gw, close: func() error { return nil }}, nil
	}

	embedded, err := ledger.OpenEmbedded(
		ledger.WithDataDir(cfg.DataDir),
		ledger.WithEmbeddedLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("open embedded ledger: %w", err)
	}
	log.Info("using embedded ledger", "data_dir", cfg.DataDir)
	return &ledgerNode{gateway: embedded, close: embedded.Close}, nil
}

func wrapLedger(node ledger.Gateway, cfg config.LedgerConfig, m *certmetrics.Metrics, t tracer.Tracer, log *slog.Logger) *ledger.Resilient {
	breaker := circuit.New("ledger",
		circuit.WithFailureThreshold(cfg.BreakerThreshold),
		circuit.WithCooldown(cfg.BreakerCooldown),
	)
	return ledger.NewResilient(node,
		ledger.WithBreaker(breaker),
		ledger.WithTracer(t),
		ledger.WithMetrics(m),
		ledger.WithLogger(log),
	)
}

func buildGuard(st *storage, rc *redisclient.Client, cfg config.RedisConfig, m *certmetrics.Metrics, t tracer.Tracer, log *slog.Logger) *guard.Guard {
	opts := []guard.Option{
		guard.WithLocalClaimer(guard.NewLocalClaimer()),
		guard.WithMetrics(m),
		guard.WithTracer(t),
		guard.WithLogger(log),
	}
	if rc != nil {
		opts = append(opts, guard.WithDistributedClaimer(
			guard.NewRedisClaimer(rc.Client, guard.WithLease(cfg.ClaimTTL)),
		))
	}
	return guard.New(st.certificates, st.pending, opts...)
}

// eventProducer is what the outbox worker publishes through, plus a
// readiness check.
type eventProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
	Check(ctx context.Context) error
	Close() error
}

func buildProducer(cfg config.KafkaConfig, log *slog.Logger) (eventProducer, error) {
	if cfg.Brokers == "" {
		log.Info("kafka not configured, certificate events will not be published")
		return producer.NewNoopProducer(log), nil
	}
	p, err := producer.New(producer.Config{Brokers: cfg.Brokers, Acks: cfg.Acks}, log)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return p, nil
}
