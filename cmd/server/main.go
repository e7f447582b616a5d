package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"certledger/internal/certificate/handler"
	certmetrics "certledger/internal/certificate/metrics"
	"certledger/internal/certificate/reconcile"
	certservice "certledger/internal/certificate/service"
	"certledger/internal/certificate/tracer"
	jwttoken "certledger/internal/jwt_token"
	"certledger/internal/platform/config"
	"certledger/internal/platform/health"
	"certledger/internal/platform/logger"
	"certledger/internal/platform/metrics"
	redisclient "certledger/internal/platform/redis"
	httptransport "certledger/internal/transport/http"
	outboxmetrics "certledger/pkg/platform/outbox/metrics"
	outboxworker "certledger/pkg/platform/outbox/worker"
	"certledger/pkg/platform/middleware/request"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "initializing certledger",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"store_driver", cfg.StoreDriver,
		"version", version,
	)

	reg := metrics.NewRegistry(version, cfg.Environment)
	certMetrics := certmetrics.New(reg)
	tr := tracer.NewOTel(tracer.WithComponent("server"))

	st, err := buildStorage(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "store", st.close)

	node, err := buildLedger(cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "ledger", node.close)
	gateway := wrapLedger(node.gateway, cfg.Ledger, certMetrics, tr, log)

	rc, err := redisclient.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer closeQuietly(log, "redis", rc.Close)
		if err := rc.Register(reg); err != nil {
			log.WarnContext(ctx, "redis pool stats not exported", "error", err)
		}
		log.InfoContext(ctx, "redis duplicate claim enabled")
	}

	prod, err := buildProducer(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "kafka producer", prod.Close)

	svc := certservice.New(st.certificates, st.pending, st.tx, gateway,
		certservice.WithGuard(buildGuard(st, rc, cfg.Redis, certMetrics, tr, log)),
		certservice.WithMetrics(certMetrics),
		certservice.WithTracer(tr),
		certservice.WithLogger(log),
		certservice.WithLedgerRetry(certservice.RetryPolicy{
			Initial:    cfg.Ledger.RetryInitial,
			Factor:     2,
			MaxRetries: cfg.Ledger.MaxRetries,
		}),
		certservice.WithBulkConcurrency(cfg.BulkConcurrency),
		certservice.WithMaxBatch(cfg.MaxBatchSize),
		certservice.WithArtifactExtensions(cfg.ArtifactExtensions),
	)

	reconciler := reconcile.New(svc,
		reconcile.WithBatchSize(cfg.ReconcileBatchSize),
		reconcile.WithPollInterval(cfg.ReconcileInterval),
		reconcile.WithMetrics(certMetrics),
		reconcile.WithLogger(log),
	)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	publisher := outboxworker.New(st.outbox, prod,
		outboxworker.WithTopic(cfg.Kafka.Topic),
		outboxworker.WithPollInterval(cfg.OutboxInterval),
		outboxworker.WithMetrics(outboxmetrics.New(reg)),
		outboxworker.WithLogger(log),
	)
	publisher.Start(ctx)

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("store", svc.Ping)
	healthHandler.RegisterCheck("ledger", gateway.Ping)
	healthHandler.RegisterCheck("kafka", prod.Check)
	if rc != nil {
		healthHandler.RegisterCheck("redis", rc.Health)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Certificates:   handler.New(svc, log),
		Health:         healthHandler,
		Registry:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		AdminToken:     cfg.AdminToken,
		AdminTokenHash: cfg.AdminTokenHash,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	// flush whatever the handlers appended before the producer closes
	if err := publisher.Stop(shutdownCtx); err != nil {
		log.Error("outbox worker stop failed", "error", err)
	}
	return nil
}

func closeQuietly(log *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error("close failed", "component", name, "error", err)
	}
}
