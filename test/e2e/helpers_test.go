package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hoopsfinance/dashboard-auth/internal/auth"
	"github.com/hoopsfinance/dashboard-auth/internal/backend"
	"github.com/hoopsfinance/dashboard-auth/internal/logging"
	"github.com/hoopsfinance/dashboard-auth/internal/providers"
	"github.com/hoopsfinance/dashboard-auth/internal/server"
	"github.com/hoopsfinance/dashboard-auth/internal/state"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testAPIKey        = "e2e-api-key"
	testAccessToken   = "e2e-access-token"
	testRefreshToken  = "e2e-refresh-token"
	testAuthCode      = "e2e-auth-code"
	testExchangeLimit = 200 * time.Millisecond
)

var (
	testSessionKey = []byte("e2e-session-key-0123456789abcdef")
	testCSRFKey    = []byte("e2e-csrf-key-0123456789abcdef012")
)

// apiCall is one request received by the fake auth API.
type apiCall struct {
	Path   string
	APIKey string
	Bearer string
	Body   map[string]any
}

// fakeAPI stands in for the backend auth API. Responses are keyed by
// path; unknown paths return 404.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]http.HandlerFunc
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	bearer := r.Header.Get("Authorization")
	if len(bearer) > len("Bearer ") {
		bearer = bearer[len("Bearer "):]
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{
		Path:   r.URL.Path,
		APIKey: r.Header.Get("x-api-key"),
		Bearer: bearer,
		Body:   body,
	})
	respond := f.responses[r.URL.Path]
	f.mu.Unlock()

	if respond == nil {
		http.NotFound(w, r)
		return
	}

	respond(w, r)
}

// on replaces the response for path.
func (f *fakeAPI) on(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = h
}

// Calls returns a copy of the recorded requests.
func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func respondJSON(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

func exchangeOK(id, email, name string) http.HandlerFunc {
	return respondJSON(http.StatusOK, map[string]any{
		"id":           id,
		"email":        email,
		"name":         name,
		"accessToken":  testAccessToken,
		"refreshToken": testRefreshToken,
	})
}

// harness holds the full e2e stack: the dashboard-auth mux on a real
// listener, talking to a fake auth API through the real backend client.
type harness struct {
	URL    string
	API    *fakeAPI
	State  *state.State
	Client *http.Client
	Logs   *syncBuffer
}

// syncBuffer is a bytes.Buffer safe for the server goroutines to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newHarness wires the service the same way main does, with a cookie jar
// client that never follows redirects.
func newHarness(t *testing.T) *harness {
	t.Helper()

	api := &fakeAPI{responses: map[string]http.HandlerFunc{
		"/auth/oauth/login":  exchangeOK("u1", "alice@example.com", "Alice"),
		"/auth/oauth/link":   exchangeOK("u1", "alice@example.com", "Alice"),
		"/auth/oauth/delink": respondJSON(http.StatusOK, map[string]any{"success": true}),
	}}
	apiServer := httptest.NewServer(api)
	t.Cleanup(apiServer.Close)

	appState, err := state.LoadAt(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { appState.Close() })

	logs := &syncBuffer{}
	logger := logging.NewLoggerTo(logs, "development")

	// Read the listener address before building the mux so the redirect
	// URIs and base URL match the server.
	ts := httptest.NewUnstartedServer(nil)
	serverURL := "http://" + ts.Listener.Addr().String()

	var ps []*providers.Provider

	for _, name := range []string{"google", "github", "discord"} {
		p, err := providers.New(name, name+"-client-id", serverURL+"/auth/callback/"+name, nil, oauth2.Endpoint{})
		require.NoError(t, err)
		ps = append(ps, p)
	}

	registry := providers.NewRegistry(ps)
	client := backend.NewClient(apiServer.URL, testAPIKey, testExchangeLimit)
	sessions := auth.NewSessions(appState, testSessionKey, time.Hour, false, logger)
	exchanger := auth.NewExchanger(client, registry, logger)

	ts.Config.Handler = server.NewMux(server.MuxConfig{
		Flow: auth.FlowConfig{
			Establisher:    auth.NewEstablisher(exchanger, sessions, logger),
			Sessions:       sessions,
			Verifier:       auth.NewVerifier(auth.NewStateGuard(0), false),
			Logger:         logger,
			DefaultBaseURL: serverURL,
		},
		SignIn: auth.SignInConfig{
			Providers: registry,
			Sessions:  sessions,
			CSRFKey:   testCSRFKey,
			Logger:    logger,
		},
		Backend: client,
		Logger:  logger,
	})
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	httpClient := ts.Client()
	httpClient.Jar = jar
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &harness{
		URL:    serverURL,
		API:    api,
		State:  appState,
		Client: httpClient,
		Logs:   logs,
	}
}

// do performs a request with t.Context() and returns the response with
// its body already read.
func (h *harness) do(t *testing.T, method, path string, body io.Reader) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, h.URL+path, body)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(b)
}

// beginSignIn starts the provider redirect and returns the state the
// provider would echo back. The CSRF cookie lands in the jar.
func (h *harness) beginSignIn(t *testing.T, provider string) string {
	t.Helper()

	resp, _ := h.do(t, http.MethodGet, "/api/auth/signin/"+provider, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	st := loc.Query().Get("state")
	require.NotEmpty(t, st)

	return st
}

// callback simulates the provider redirecting back with code and state.
func (h *harness) callback(t *testing.T, provider, code, st string) *url.URL {
	t.Helper()

	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}

	if st != "" {
		q.Set("state", st)
	}

	resp, _ := h.do(t, http.MethodGet, "/auth/callback/"+provider+"?"+q.Encode(), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	return loc
}

// signIn runs a complete successful provider round trip.
func (h *harness) signIn(t *testing.T, provider string) {
	t.Helper()

	loc := h.callback(t, provider, testAuthCode, h.beginSignIn(t, provider))
	require.Equal(t, "/profile", loc.Path, "sign-in did not reach profile: %s", loc)
}

// sessionBody is the GET /api/auth/session response.
type sessionBody struct {
	User *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
	Provider string `json:"provider"`
}

func (h *harness) session(t *testing.T) sessionBody {
	t.Helper()

	resp, body := h.do(t, http.MethodGet, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s sessionBody
	require.NoError(t, json.Unmarshal([]byte(body), &s))

	return s
}

// csrfCookie returns the raw CSRF cookie value in the jar.
func (h *harness) csrfCookie(t *testing.T) string {
	t.Helper()

	u, err := url.Parse(h.URL)
	require.NoError(t, err)

	for _, c := range h.Client.Jar.Cookies(u) {
		if c.Name == auth.CSRFCookieName {
			return c.Value
		}
	}

	return ""
}
