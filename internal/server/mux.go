// Package server provides HTTP server construction for dashboard-auth.
package server

import (
	"log/slog"
	"net/http"

	"github.com/hoopsfinance/dashboard-auth/internal/auth"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Flow    auth.FlowConfig
	SignIn  auth.SignInConfig
	Backend auth.Backend
	Logger  *slog.Logger
}

// NewMux builds the HTTP mux with the provider callback, the completion
// page, the sign-in and session endpoints, and the OAuth proxy routes.
// Link and delink require a session.
func NewMux(cfg MuxConfig) *http.ServeMux {
	exchanger := auth.NewExchanger(cfg.Backend, cfg.SignIn.Providers, cfg.Logger)
	requireSession := auth.RequireSession(cfg.Flow.Sessions, cfg.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/callback/{provider}", auth.HandleCallback(cfg.Flow))
	mux.HandleFunc("GET /callback/{provider}", auth.HandleCompletionPage(cfg.Flow))

	mux.HandleFunc("GET /api/auth/signin/{provider}", auth.HandleSignIn(cfg.SignIn))
	mux.HandleFunc("GET /api/auth/csrf", auth.HandleCSRF(cfg.SignIn))
	mux.HandleFunc("GET /api/auth/session", auth.HandleSession(cfg.SignIn))
	mux.HandleFunc("POST /api/auth/signout", auth.HandleSignOut(cfg.SignIn))

	mux.HandleFunc("POST /api/auth/oauth/login", auth.HandleOAuthLogin(cfg.Backend, cfg.Logger))
	mux.Handle("POST /api/auth/oauth/link", requireSession(auth.HandleOAuthLink(cfg.Backend, cfg.Logger)))
	mux.Handle("POST /api/auth/oauth/delink", requireSession(auth.HandleOAuthDelink(exchanger, cfg.Logger)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	return mux
}
