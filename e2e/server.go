package e2e

import (
	"io"
	"log/slog"
	"net/http/httptest"

	"certledger/internal/certificate/handler"
	"certledger/internal/certificate/ledger"
	certservice "certledger/internal/certificate/service"
	certstore "certledger/internal/certificate/store"
	jwttoken "certledger/internal/jwt_token"
	"certledger/internal/platform/config"
	"certledger/internal/platform/health"
	httptransport "certledger/internal/transport/http"
	outboxmemory "certledger/pkg/platform/outbox/store/memory"
)

// startServer runs the full HTTP stack over in-memory stores and an
// in-memory embedded ledger.
func startServer(cfg config.Server) (baseURL string, closeFn func(), err error) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	node, err := ledger.OpenEmbedded(ledger.WithEmbeddedLogger(log))
	if err != nil {
		return "", nil, err
	}

	certs := certstore.NewInMemory()
	pending := certstore.NewInMemoryPending()
	events := outboxmemory.New()
	svc := certservice.New(certs, pending, certservice.NewInMemoryTx(certs, pending, events),
		ledger.NewResilient(node, ledger.WithLogger(log)),
		certservice.WithLogger(log),
	)

	checks := health.New("e2e")
	checks.RegisterCheck("store", svc.Ping)
	checks.RegisterCheck("ledger", node.Ping)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Certificates: handler.New(svc, log),
		Health:       checks,
		Validator: jwttoken.NewJWTServiceAdapter(
			jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL),
		),
		AdminToken: cfg.AdminToken,
		Logger:     log,
	})

	srv := httptest.NewServer(router)
	return srv.URL, func() {
		srv.Close()
		_ = node.Close()
	}, nil
}
