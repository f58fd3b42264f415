package auth

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"

	"github.com/hoopsfinance/dashboard-auth/internal/logging"
	"github.com/hoopsfinance/dashboard-auth/internal/models"
	"github.com/hoopsfinance/dashboard-auth/internal/providers"
)

// CompletionState is the state of a completion attempt.
type CompletionState string

const (
	CompletionPending CompletionState = "pending"
	CompletionError   CompletionState = "error"
	CompletionSuccess CompletionState = "success"
)

// CompletionStatus is a state plus the message shown on error. Recovery
// holds the signup details (email, provider, code) of a backend
// rejection.
type CompletionStatus struct {
	State    CompletionState
	Message  string
	Recovery url.Values
}

// Completion finishes a sign-in whose provider redirect landed on the
// callback page rather than the callback route. It moves from pending
// to error or success exactly once.
type Completion struct {
	Provider string
	Code     string
	State    string

	once   sync.Once
	mu     sync.Mutex
	status CompletionStatus
}

// ParseCompletion reads the provider from the last path segment and code
// and state from the query.
func ParseCompletion(u *url.URL) *Completion {
	provider := providers.NormalizeName(path.Base(u.Path))
	if provider == "/" || provider == "." {
		provider = ""
	}

	q := u.Query()

	return &Completion{
		Provider: provider,
		Code:     q.Get("code"),
		State:    q.Get("state"),
		status:   CompletionStatus{State: CompletionPending},
	}
}

// Status returns the current status.
func (c *Completion) Status() CompletionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Complete verifies the state and signs in. Only the first call runs;
// later calls return the settled status.
func (c *Completion) Complete(
	ctx context.Context,
	verify func(state string) error,
	signIn func(context.Context, models.ExchangeRequest) (models.SignInOutcome, error),
) CompletionStatus {
	c.once.Do(func() {
		st := c.run(ctx, verify, signIn)

		c.mu.Lock()
		c.status = st
		c.mu.Unlock()
	})

	return c.Status()
}

func (c *Completion) run(
	ctx context.Context,
	verify func(state string) error,
	signIn func(context.Context, models.ExchangeRequest) (models.SignInOutcome, error),
) CompletionStatus {
	// State is required on this path as well.
	if err := requireCallbackParams(c.Provider, c.Code, c.State); err != nil {
		return CompletionStatus{State: CompletionError, Message: errorCode(err)}
	}

	if err := verify(c.State); err != nil {
		return CompletionStatus{State: CompletionError, Message: errorCode(err)}
	}

	outcome, err := signIn(ctx, models.ExchangeRequest{Provider: c.Provider, Code: c.Code, State: c.State})
	if err != nil {
		return CompletionStatus{State: CompletionError, Message: errorCode(err)}
	}

	if code := outcome.ErrorCode(); code != "" {
		return CompletionStatus{State: CompletionError, Message: code, Recovery: outcomeParams(outcome)}
	}

	if !outcome.OK {
		return CompletionStatus{State: CompletionError, Message: CodeAuthenticationFailed}
	}

	return CompletionStatus{State: CompletionSuccess}
}

var completionPage = template.Must(template.New("completion").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Signing in</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
    margin: 0;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2rem;
    max-width: 380px;
  }
  .error { color: #991b1b; }
</style>
</head>
<body>
<div class="card">
  {{if eq .State "error"}}
  <h1>Sign-in failed</h1>
  <p class="error">{{.Message}}</p>
  <p><a href="{{.SignupURL}}">Back to sign up</a></p>
  {{else}}
  <h1>Signing in&hellip;</h1>
  {{end}}
</div>
</body>
</html>`))

type completionData struct {
	State     CompletionState
	Message   string
	SignupURL string
}

// HandleCompletionPage returns the GET /callback/{provider} handler. It
// performs the same state check as the callback route before the
// exchange. Success answers 303 to the profile page; failure renders
// the error.
func HandleCompletionPage(cfg FlowConfig) http.HandlerFunc {
	logger := cfg.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		base := ResolveBaseURL(r, cfg.PublicURL, cfg.DefaultBaseURL)
		c := ParseCompletion(r.URL)

		logger.Info("oauth completion page",
			slog.String("provider", c.Provider),
			logging.Present("code", c.Code),
			logging.Present("state", c.State),
		)

		current := cfg.Sessions.Current(r)

		st := c.Complete(r.Context(),
			func(state string) error {
				if err := cfg.Verifier.Check(r, state); err != nil {
					logger.Warn("oauth completion state rejected",
						slog.String("provider", c.Provider),
						slog.String("ip", remoteIP(r)),
						slog.String("error", err.Error()),
					)

					return err
				}

				clearCSRF(w, cfg.Secure)

				return nil
			},
			func(ctx context.Context, req models.ExchangeRequest) (models.SignInOutcome, error) {
				return cfg.Establisher.SignIn(ctx, w, req, current)
			},
		)

		if st.State == CompletionSuccess {
			http.Redirect(w, r, base+profilePath, http.StatusSeeOther)
			return
		}

		logger.Info("oauth completion failed",
			slog.String("provider", c.Provider),
			slog.String("reason", st.Message),
		)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.WriteHeader(http.StatusBadRequest)
		_ = completionPage.Execute(w, completionData{
			State:     st.State,
			Message:   st.Message,
			SignupURL: signupURL(base, st.Message, st.Recovery),
		})
	}
}
