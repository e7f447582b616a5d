package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"certledger/internal/certificate/handler"
	"certledger/internal/platform/health"
	"certledger/internal/platform/metrics"
	"certledger/pkg/platform/middleware/admin"
	"certledger/pkg/platform/middleware/auth"
	"certledger/pkg/platform/middleware/request"
	pvalidation "certledger/pkg/platform/validation"
)

// RouterConfig holds everything the router mounts. Certificates and Health
// are required; the rest fall back to sensible defaults.
type RouterConfig struct {
	Certificates   *handler.Handler
	Health         *health.Handler
	Registry       *prometheus.Registry
	RequestMetrics *request.Metrics
	Validator      auth.JWTValidator
	AdminToken     string
	AdminTokenHash string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

const defaultRequestTimeout = 60 * time.Second

// NewRouter wires all public endpoints with middleware.
// Probes and /metrics stay outside authentication; certificate routes need a
// bearer token and operator routes need the admin token.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = pvalidation.MaxBulkBodySize
	}

	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.Logger(logger))
	r.Use(request.Instrument(cfg.RequestMetrics))

	cfg.Health.Register(r)
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Registry))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.BodyLimit(maxBody))
		r.Use(request.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(cfg.Validator, logger))
			cfg.Certificates.Register(r)
		})

		r.Group(func(r chi.Router) {
			if cfg.AdminTokenHash != "" {
				r.Use(admin.RequireAdminTokenHash(cfg.AdminTokenHash, logger))
			} else {
				r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
			}
			cfg.Certificates.RegisterAdmin(r)
		})
	})

	return r
}
