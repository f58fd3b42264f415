package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/hoopsfinance/dashboard-auth/internal/errors"
	"github.com/hoopsfinance/dashboard-auth/internal/logging"
	"github.com/hoopsfinance/dashboard-auth/internal/models"
	"github.com/hoopsfinance/dashboard-auth/internal/providers"
)

const (
	signupPath  = "/signup"
	profilePath = "/profile"
)

// recoveryKeys are the signup query parameters copied from a failed
// outcome so the signup page can offer account creation.
var recoveryKeys = []string{"email", "provider", "code"}

// FlowConfig holds the dependencies of the callback route and the
// completion page.
type FlowConfig struct {
	Establisher    *Establisher
	Sessions       *Sessions
	Verifier       *Verifier
	Logger         *slog.Logger
	PublicURL      string
	DefaultBaseURL string
	Secure         bool
}

// signupURL builds base/signup?error=code with the recovery parameters
// found in extra.
func signupURL(base, code string, extra url.Values) string {
	q := url.Values{}
	q.Set("error", code)

	for _, k := range recoveryKeys {
		if v := extra.Get(k); v != "" {
			q.Set(k, v)
		}
	}

	return base + signupPath + "?" + q.Encode()
}

// outcomeParams returns the query of an outcome URL, if it parses.
func outcomeParams(o models.SignInOutcome) url.Values {
	u, err := url.Parse(o.URL)
	if err != nil {
		return nil
	}

	return u.Query()
}

// errorCode classifies an error raised by the sign-in step. Only
// *AuthError codes reach the client.
func errorCode(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}

	return CodeAuthenticationFailed
}

// requireCallbackParams rejects a provider redirect missing any of
// provider, code or state.
func requireCallbackParams(provider, code, state string) error {
	if provider == "" || code == "" || state == "" {
		return &AuthError{Code: CodeMissingCodeOrState, Err: apperrors.ErrMissingCodeOrState}
	}

	return nil
}

// HandleCallback returns the GET /auth/callback/{provider} handler. The
// provider redirects here with code and state after the user consents.
func HandleCallback(cfg FlowConfig) http.HandlerFunc {
	logger := cfg.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		base := ResolveBaseURL(r, cfg.PublicURL, cfg.DefaultBaseURL)
		provider := providers.NormalizeName(r.PathValue("provider"))
		q := r.URL.Query()
		code := q.Get("code")
		state := q.Get("state")

		logger.Info("oauth callback",
			slog.String("provider", provider),
			logging.Present("code", code),
			logging.Present("state", state),
			slog.String("base_url", base),
		)

		if err := requireCallbackParams(provider, code, state); err != nil {
			logger.Info("oauth callback malformed",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
			http.Redirect(w, r, signupURL(base, errorCode(err), nil), http.StatusFound)

			return
		}

		if err := cfg.Verifier.Check(r, state); err != nil {
			logger.Warn("oauth callback state rejected",
				slog.String("provider", provider),
				slog.String("ip", remoteIP(r)),
				slog.String("reason", errorCode(err)),
				slog.String("error", err.Error()),
			)
			http.Redirect(w, r, signupURL(base, errorCode(err), nil), http.StatusFound)

			return
		}

		clearCSRF(w, cfg.Secure)

		current := cfg.Sessions.Current(r)
		logger.Info("oauth callback exchanging",
			slog.String("provider", provider),
			slog.String("mode", ModeFor(current).String()),
		)

		req := models.ExchangeRequest{Provider: provider, Code: code, State: state}

		outcome, err := cfg.Establisher.SignIn(r.Context(), w, req, current)
		if err != nil {
			logger.Error("oauth sign-in failed",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
			http.Redirect(w, r, signupURL(base, errorCode(err), nil), http.StatusFound)

			return
		}

		if errCode := outcome.ErrorCode(); errCode != "" {
			http.Redirect(w, r, signupURL(base, errCode, outcomeParams(outcome)), http.StatusFound)
			return
		}

		if !outcome.OK {
			http.Redirect(w, r, signupURL(base, CodeAuthenticationFailed, nil), http.StatusFound)
			return
		}

		logger.Info("oauth sign-in complete", slog.String("provider", provider))
		http.Redirect(w, r, base+profilePath, http.StatusFound)
	}
}
