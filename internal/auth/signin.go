package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hoopsfinance/dashboard-auth/internal/providers"
)

// SignInConfig holds the dependencies of the authorization request and
// session endpoints.
type SignInConfig struct {
	Providers *providers.Registry
	Sessions  *Sessions
	CSRFKey   []byte
	Secure    bool
	Logger    *slog.Logger
}

// HandleSignIn returns the GET /api/auth/signin/{provider} handler. It
// sets a fresh CSRF cookie and redirects to the provider with the
// cookie token as state.
func HandleSignIn(cfg SignInConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("provider")

		p, ok := cfg.Providers.Get(name)
		if !ok {
			writeJSONError(w, http.StatusNotFound, CodeUnsupportedProvider, "unknown provider")
			return
		}

		state, err := IssueCSRF(w, cfg.CSRFKey, cfg.Secure)
		if err != nil {
			cfg.Logger.Error("issuing csrf token", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "server_error", "could not start sign-in")

			return
		}

		cfg.Logger.Info("oauth sign-in started", slog.String("provider", p.Name))
		http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
	}
}

// HandleCSRF returns the GET /api/auth/csrf handler. Clients that build
// the provider URL themselves use the returned token as state.
func HandleCSRF(cfg SignInConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := IssueCSRF(w, cfg.CSRFKey, cfg.Secure)
		if err != nil {
			cfg.Logger.Error("issuing csrf token", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "server_error", "could not issue token")

			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
	}
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type sessionResponse struct {
	User     sessionUser `json:"user"`
	Provider string      `json:"provider"`
	Expires  time.Time   `json:"expires"`
}

// HandleSession returns the GET /api/auth/session handler: the current
// session summary, or {} when signed out. Tokens are not included.
func HandleSession(cfg SignInConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")

		sess := cfg.Sessions.Current(r)
		if sess == nil {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse{
			User:     sessionUser{ID: sess.UserID, Email: sess.Email, Name: sess.Name},
			Provider: sess.Provider,
			Expires:  sess.ExpiresAt.UTC(),
		})
	}
}

// HandleSignOut returns the POST /api/auth/signout handler.
func HandleSignOut(cfg SignInConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.Destroy(w, r); err != nil {
			cfg.Logger.Warn("sign-out failed", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "server_error", "could not sign out")

			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": "/"})
	}
}
