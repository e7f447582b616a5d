package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"certledger/internal/certificate/ledger"
	"certledger/internal/platform/health"
	"certledger/pkg/platform/middleware/request"
)

// ledgerNodeCommand serves an embedded ledger over JSON-RPC so several
// certledger servers can share one ledger through LEDGER_RPC_URL.
func ledgerNodeCommand() *cobra.Command {
	var (
		addr    string
		dataDir string
		apiKey  string
	)
	cmd := &cobra.Command{
		Use:   "ledger-node",
		Short: "Run a standalone ledger node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := commonRun()

			node, err := ledger.OpenEmbedded(
				ledger.WithDataDir(dataDir),
				ledger.WithEmbeddedLogger(log),
			)
			if err != nil {
				return err
			}
			defer func() {
				if err := node.Close(); err != nil {
					log.Error("ledger close failed", "error", err)
				}
			}()

			checks := health.New("ledger-node")
			checks.RegisterCheck("ledger", node.Ping)

			r := chi.NewRouter()
			r.Use(request.Recovery(log))
			r.Use(request.RequestID)
			r.Use(request.Logger(log))
			checks.Register(r)
			r.With(requireAPIKey(apiKey)).Method(http.MethodPost, "/", ledger.NewRPCHandler(node, log))

			srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() {
				log.Info("ledger node listening", "addr", addr, "data_dir", dataDir)
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

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8545", "listen address")
	cmd.Flags().StringVar(&dataDir, "data-dir", os.Getenv("LEDGER_DATA_DIR"), "ledger directory, empty keeps it in memory")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("LEDGER_API_KEY"), "required X-API-Key value, empty disables the check")
	return cmd
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"invalid api key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
