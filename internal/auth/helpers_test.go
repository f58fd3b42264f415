package auth

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoopsfinance/dashboard-auth/internal/logging"
	"github.com/hoopsfinance/dashboard-auth/internal/models"
	"github.com/hoopsfinance/dashboard-auth/internal/providers"
	"github.com/hoopsfinance/dashboard-auth/internal/state"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

const testBaseURL = "http://localhost:3000"

var (
	testSessionKey = []byte("0123456789abcdef0123456789abcdef")
	testCSRFKey    = []byte("fedcba9876543210fedcba9876543210")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureLogger returns the service's development logger writing into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return logging.NewLoggerTo(buf, "development")
}

func testRegistry(t *testing.T) *providers.Registry {
	t.Helper()

	var ps []*providers.Provider

	for _, name := range []string{"google", "github", "discord"} {
		p, err := providers.New(name, name+"-client", testBaseURL+"/auth/callback/"+name, nil, oauth2.Endpoint{})
		require.NoError(t, err)
		ps = append(ps, p)
	}

	return providers.NewRegistry(ps)
}

func testStateDB(t *testing.T) *state.State {
	t.Helper()
	s, err := state.LoadAt(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSessions(t *testing.T) *Sessions {
	t.Helper()
	return NewSessions(testStateDB(t), testSessionKey, time.Hour, false, testLogger())
}

// flow wires the callback route and completion page against a mock
// backend and a real session database.
type flow struct {
	backend    *MockBackend
	sessions   *Sessions
	verifier   *Verifier
	callback   http.HandlerFunc
	completion http.HandlerFunc
	logs       *bytes.Buffer
}

func newFlow(t *testing.T) *flow {
	t.Helper()

	ctrl := gomock.NewController(t)
	b := NewMockBackend(ctrl)
	logs := &bytes.Buffer{}
	logger := captureLogger(logs)

	sessions := NewSessions(testStateDB(t), testSessionKey, time.Hour, false, logger)
	exchanger := NewExchanger(b, testRegistry(t), logger)
	verifier := NewVerifier(NewStateGuard(0), false)

	cfg := FlowConfig{
		Establisher:    NewEstablisher(exchanger, sessions, logger),
		Sessions:       sessions,
		Verifier:       verifier,
		Logger:         logger,
		DefaultBaseURL: testBaseURL,
	}

	return &flow{
		backend:    b,
		sessions:   sessions,
		verifier:   verifier,
		callback:   HandleCallback(cfg),
		completion: HandleCompletionPage(cfg),
		logs:       logs,
	}
}

// callbackRequest builds GET /auth/callback/{provider}?query with an
// optional dev CSRF cookie.
func callbackRequest(provider, query, csrfCookie string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/callback/"+provider+"?"+query, nil)
	r.SetPathValue("provider", provider)

	if csrfCookie != "" {
		r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: csrfCookie})
	}

	return r
}

// signedInCookie establishes a session and returns its cookie.
func signedInCookie(t *testing.T, s *Sessions, user *models.User) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	_, err := s.Establish(t.Context(), rec, user, "google", nil)
	require.NoError(t, err)

	for _, c := range rec.Result().Cookies() {
		if c.Name == s.cookieName() {
			return c
		}
	}

	t.Fatal("no session cookie set")

	return nil
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}

	return nil
}
