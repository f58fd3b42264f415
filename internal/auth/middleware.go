package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hoopsfinance/dashboard-auth/internal/models"
)

type contextKey int

const (
	ctxSession contextKey = iota
	ctxRemoteIP
)

// RequestSession returns the authenticated session from the context, or
// nil.
func RequestSession(ctx context.Context) *models.Session {
	v, _ := ctx.Value(ctxSession).(*models.Session)
	return v
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// RequireSession returns middleware that rejects requests without a
// valid session cookie with a 401 JSON error.
func RequireSession(sessions *Sessions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)

			sess := sessions.Current(r)
			if sess == nil || sess.AccessToken == "" {
				logger.Debug("middleware: no session",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "sign in required")

				return
			}

			logger.Debug("middleware: authenticated via session",
				slog.String("user_id", sess.UserID),
				slog.String("ip", ip),
			)

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxSession, sess)
			ctx = context.WithValue(ctx, ctxRemoteIP, ip)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
