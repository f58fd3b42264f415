package auth

//go:generate mockgen -destination=mock_store_test.go -package=auth . SessionStore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hoopsfinance/dashboard-auth/internal/backend"
	apperrors "github.com/hoopsfinance/dashboard-auth/internal/errors"
	"github.com/hoopsfinance/dashboard-auth/internal/models"
)

const (
	// SessionCookieName is the development session cookie name.
	SessionCookieName = "authjs.session-token"

	// SecureSessionCookieName is the production session cookie name.
	SecureSessionCookieName = "__Secure-authjs.session-token"
)

// SessionStore persists sessions. *state.State implements it.
type SessionStore interface {
	SaveSession(ctx context.Context, sess *models.Session) error
	Session(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Sessions issues and resolves session cookies. The cookie holds an
// HS256 JWT naming a stored session; the tokens themselves never leave
// the server.
type Sessions struct {
	store  SessionStore
	key    []byte
	ttl    time.Duration
	secure bool
	logger *slog.Logger
	now    func() time.Time
}

// NewSessions creates a session manager signing cookies with key.
func NewSessions(store SessionStore, key []byte, ttl time.Duration, secure bool, logger *slog.Logger) *Sessions {
	return &Sessions{
		store:  store,
		key:    key,
		ttl:    ttl,
		secure: secure,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Sessions) cookieName() string {
	if s.secure {
		return SecureSessionCookieName
	}

	return SessionCookieName
}

// Establish creates a session for user and sets the session cookie.
// When previous is non-nil (the link path) it is replaced by the new
// session.
func (s *Sessions) Establish(ctx context.Context, w http.ResponseWriter, user *models.User, provider string, previous *models.Session) (*models.Session, error) {
	now := s.now()

	sess := &models.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Provider:     provider,
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	// Linking adds an identity to the signed-in account. Whatever the
	// link response omits comes from the session it replaces, and the
	// session keeps the provider it was signed in with.
	if previous != nil {
		sess.Provider = previous.Provider
		carryOver(&sess.UserID, previous.UserID)
		carryOver(&sess.Email, previous.Email)
		carryOver(&sess.Name, previous.Name)
		carryOver(&sess.AccessToken, previous.AccessToken)
		carryOver(&sess.RefreshToken, previous.RefreshToken)
	}

	if sess.UserID == "" {
		return nil, fmt.Errorf("%w: no user id for session", apperrors.ErrInvalidSession)
	}

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	if previous != nil {
		if err := s.store.DeleteSession(ctx, previous.ID); err != nil {
			s.logger.Warn("failed to delete replaced session", slog.String("error", err.Error()))
		}
	}

	claims := sessionClaims{
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("signing session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    signed,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return sess, nil
}

func carryOver(dst *string, prev string) {
	if *dst == "" {
		*dst = prev
	}
}

// parse validates the session cookie JWT and returns its claims.
func (s *Sessions) parse(r *http.Request) (*sessionClaims, error) {
	c, err := r.Cookie(s.cookieName())
	if err != nil {
		return nil, apperrors.ErrNoSession
	}

	claims := &sessionClaims{}

	_, err = jwt.ParseWithClaims(c.Value, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidSession, err)
	}

	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sid", apperrors.ErrInvalidSession)
	}

	return claims, nil
}

// Current returns the request's session, or nil when there is none or
// it is invalid or expired.
func (s *Sessions) Current(r *http.Request) *models.Session {
	claims, err := s.parse(r)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNoSession) {
			s.logger.Debug("ignoring session cookie", slog.String("error", err.Error()))
		}

		return nil
	}

	sess, err := s.store.Session(r.Context(), claims.SessionID)
	if err != nil {
		s.logger.Warn("session lookup failed", slog.String("error", err.Error()))
		return nil
	}

	if sess == nil || sess.UserID == "" || sess.UserID != claims.Subject || sess.Expired(s.now()) {
		return nil
	}

	return sess
}

// Destroy deletes the request's session, if any, and expires the cookie.
func (s *Sessions) Destroy(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	claims, err := s.parse(r)
	if err != nil {
		return nil
	}

	if err := s.store.DeleteSession(r.Context(), claims.SessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// Establisher combines the code exchange with session creation.
type Establisher struct {
	exchanger *Exchanger
	sessions  *Sessions
	logger    *slog.Logger
}

// NewEstablisher creates an Establisher.
func NewEstablisher(exchanger *Exchanger, sessions *Sessions, logger *slog.Logger) *Establisher {
	return &Establisher{exchanger: exchanger, sessions: sessions, logger: logger}
}

// SignIn exchanges the code and establishes a session. A backend
// rejection with a displayable message is reported as a failed outcome
// whose URL carries the message and any recovery details (email,
// provider, code) for the signup page. Other failures are returned as
// errors.
func (e *Establisher) SignIn(ctx context.Context, w http.ResponseWriter, req models.ExchangeRequest, current *models.Session) (models.SignInOutcome, error) {
	user, err := e.exchanger.Exchange(ctx, req, current)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			e.logger.Info("auth API rejected exchange",
				slog.String("provider", req.Provider),
				slog.Int("status", apiErr.Status),
				slog.Bool("no_account", apiErr.NoAccount()),
			)

			return models.SignInOutcome{
				Error: apiErr.Message,
				URL:   "/signup?" + recoveryParams(apiErr, req).Encode(),
			}, nil
		}

		return models.SignInOutcome{}, err
	}

	if _, err := e.sessions.Establish(ctx, w, user, req.Provider, current); err != nil {
		return models.SignInOutcome{}, err
	}

	return models.SignInOutcome{OK: true, URL: "/profile"}, nil
}

// recoveryParams builds the signup query for a backend rejection. The
// code is the authorization code from the request. The backend's own
// "code" field is an error code and is not forwarded.
func recoveryParams(apiErr *backend.APIError, req models.ExchangeRequest) url.Values {
	q := url.Values{}
	q.Set("error", apiErr.Message)

	if apiErr.Email != "" {
		q.Set("email", apiErr.Email)
	}

	provider := req.Provider
	if apiErr.Provider != "" {
		provider = apiErr.Provider
	}

	q.Set("provider", provider)

	if req.Code != "" {
		q.Set("code", req.Code)
	}

	return q
}
