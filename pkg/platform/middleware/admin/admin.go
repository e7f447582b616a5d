package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"certledger/pkg/requestcontext"
	"certledger/pkg/secrets"
)

type contextKeyAdminActorID struct{}

// ContextKeyAdminActorID is exported for use in handlers and tests.
var ContextKeyAdminActorID = contextKeyAdminActorID{}

// GetAdminActorID returns the X-Admin-Actor-ID captured for this request, or "".
func GetAdminActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(ContextKeyAdminActorID).(string); ok {
		return actorID
	}
	return ""
}

// RequireAdminToken guards operator routes with a shared token compared in
// constant time. An empty expected token disables every admin route.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireToken(func(presented string) bool {
		return expectedToken != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(expectedToken)) == 1
	}, logger)
}

// RequireAdminTokenHash is RequireAdminToken for deployments that only keep
// a bcrypt hash of the token (see certctl admin-token).
func RequireAdminTokenHash(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireToken(func(presented string) bool {
		return tokenHash != "" && presented != "" && secrets.Verify(presented, tokenHash) == nil
	}, logger)
}

func requireToken(accept func(presented string) bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !accept(r.Header.Get("X-Admin-Token")) {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			if actorID := r.Header.Get("X-Admin-Actor-ID"); actorID != "" {
				ctx = context.WithValue(ctx, ContextKeyAdminActorID, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
