package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hoopsfinance/dashboard-auth/internal/backend"
)

// maxRequestBody caps JSON request bodies on the proxy routes.
const maxRequestBody = 64 * 1024

type proxyRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	State    string `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, description string) {
	writeJSON(w, status, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}

// writeBackendError forwards an auth API rejection verbatim. Transport
// failures become a generic 502.
func writeBackendError(w http.ResponseWriter, logger *slog.Logger, route string, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.Status)
		w.Write(apiErr.Body)

		return
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		writeJSONError(w, http.StatusBadRequest, authErr.Code, "request rejected")
		return
	}

	logger.Error("auth API call failed",
		slog.String("route", route),
		slog.String("error", err.Error()),
	)
	writeJSONError(w, http.StatusBadGateway, CodeAuthenticationFailed, "auth service unavailable")
}

func decodeProxyRequest(w http.ResponseWriter, r *http.Request, needCode bool) (proxyRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return req, false
	}

	if req.Provider == "" || (needCode && req.Code == "") {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "provider and code are required")
		return req, false
	}

	return req, true
}

// HandleOAuthLogin returns the POST /api/auth/oauth/login handler.
func HandleOAuthLogin(b Backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeProxyRequest(w, r, true)
		if !ok {
			return
		}

		resp, err := b.Login(r.Context(), backend.ExchangeRequest{Provider: req.Provider, Code: req.Code})
		if err != nil {
			writeBackendError(w, logger, "login", err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleOAuthLink returns the POST /api/auth/oauth/link handler. It must
// be wrapped in RequireSession.
func HandleOAuthLink(b Backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeProxyRequest(w, r, true)
		if !ok {
			return
		}

		sess := RequestSession(r.Context())

		resp, err := b.Link(r.Context(), sess.AccessToken, backend.ExchangeRequest{
			Provider: req.Provider,
			Code:     req.Code,
			State:    req.State,
		})
		if err != nil {
			writeBackendError(w, logger, "link", err)
			return
		}

		logger.Info("provider linked",
			slog.String("user_id", sess.UserID),
			slog.String("provider", req.Provider),
			slog.String("ip", RequestRemoteIP(r.Context())),
		)
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleOAuthDelink returns the POST /api/auth/oauth/delink handler. It
// must be wrapped in RequireSession.
func HandleOAuthDelink(exchanger *Exchanger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeProxyRequest(w, r, false)
		if !ok {
			return
		}

		sess := RequestSession(r.Context())

		if err := exchanger.Delink(r.Context(), sess.AccessToken, req.Provider); err != nil {
			writeBackendError(w, logger, "delink", err)
			return
		}

		logger.Info("provider delinked",
			slog.String("user_id", sess.UserID),
			slog.String("provider", req.Provider),
			slog.String("ip", RequestRemoteIP(r.Context())),
		)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
