// Package auth implements the provider sign-in flow for the dashboard:
// state-token issuance and verification, authorization-code exchange
// against the auth API, and session establishment.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/hoopsfinance/dashboard-auth/internal/errors"
)

const (
	// CSRFCookieName is the development cookie name.
	CSRFCookieName = "authjs.csrf-token"

	// SecureCSRFCookieName is the production cookie name. The __Host-
	// prefix requires Secure, Path=/ and no Domain attribute.
	SecureCSRFCookieName = "__Host-authjs.csrf-token"

	// csrfTokenBytes is the number of random bytes in a CSRF token
	// (hex-encoded to twice this length).
	csrfTokenBytes = 32

	// csrfExpiry bounds how long a user may take at the provider.
	csrfExpiry = 15 * time.Minute
)

// CSRFCookie is the parsed token|signature cookie value.
type CSRFCookie struct {
	Token     string
	Signature string
}

// ReadCSRFCookie returns the raw CSRF cookie value, preferring the
// secure-prefixed name.
func ReadCSRFCookie(r *http.Request) (string, bool) {
	for _, name := range []string{SecureCSRFCookieName, CSRFCookieName} {
		if c, err := r.Cookie(name); err == nil {
			return c.Value, true
		}
	}

	return "", false
}

// ParseCSRFCookie decodes a raw cookie value. A value that is not valid
// URL encoding, or whose token part is empty, is malformed.
func ParseCSRFCookie(raw string) (CSRFCookie, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return CSRFCookie{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedCookie, err)
	}

	token, sig, _ := strings.Cut(decoded, "|")
	if token == "" {
		return CSRFCookie{}, apperrors.ErrMalformedCookie
	}

	return CSRFCookie{Token: token, Signature: sig}, nil
}

// VerifyState reports whether state equals the cookie token. Both sides
// are hashed first so the comparison runs over equal-length inputs and
// takes the same path whatever the values. Empty inputs never match.
func VerifyState(cookie CSRFCookie, state string) bool {
	a := sha256.Sum256([]byte(cookie.Token))
	b := sha256.Sum256([]byte(state))

	match := subtle.ConstantTimeCompare(a[:], b[:]) == 1
	present := cookie.Token != "" && state != ""

	return match && present
}

func signCSRF(key []byte, token string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))

	return hex.EncodeToString(mac.Sum(nil))
}

func csrfCookieName(secure bool) string {
	if secure {
		return SecureCSRFCookieName
	}

	return CSRFCookieName
}

// IssueCSRF creates a fresh state token and sets it as the CSRF cookie.
// The returned token is what the provider must echo back as state.
func IssueCSRF(w http.ResponseWriter, key []byte, secure bool) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}

	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName(secure),
		Value:    url.QueryEscape(token + "|" + signCSRF(key, token)),
		Path:     "/",
		MaxAge:   int(csrfExpiry.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})

	return token, nil
}

// clearCSRF expires both cookie variants.
func clearCSRF(w http.ResponseWriter, secure bool) {
	for _, name := range []string{SecureCSRFCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure || name == SecureCSRFCookieName,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Verifier performs the state check shared by the callback route and
// the completion page.
type Verifier struct {
	guard   *StateGuard
	limiter *failureLimiter
	secure  bool
}

// NewVerifier creates a Verifier. Passed states are recorded in guard so
// each is accepted at most once.
func NewVerifier(guard *StateGuard, secure bool) *Verifier {
	return &Verifier{
		guard:   guard,
		limiter: newFailureLimiter(),
		secure:  secure,
	}
}

// Check verifies state against the request's CSRF cookie. Failures are
// returned as *AuthError and counted against the client IP. Once an IP
// is over the limit its failures report TooManyAttempts. A state that
// matches its cookie is always accepted.
func (v *Verifier) Check(r *http.Request, state string) error {
	err := v.check(r, state)
	if err == nil {
		return nil
	}

	ip := remoteIP(r)
	limited := v.limiter.check(ip)
	v.limiter.record(ip)

	if limited {
		return &AuthError{Code: CodeTooManyAttempts, Err: fmt.Errorf("too many failed state checks from %s: %w", ip, err)}
	}

	return err
}

func (v *Verifier) check(r *http.Request, state string) error {
	raw, ok := ReadCSRFCookie(r)
	if !ok {
		return &AuthError{Code: CodeMissingCSRFCookie, Err: apperrors.ErrMissingCSRFCookie}
	}

	cookie, err := ParseCSRFCookie(raw)
	if err != nil {
		return &AuthError{Code: CodeInvalidState, Err: err}
	}

	if !VerifyState(cookie, state) {
		return &AuthError{Code: CodeInvalidState, Err: apperrors.ErrInvalidState}
	}

	if !v.guard.Consume(state) {
		return &AuthError{Code: CodeInvalidState, Err: fmt.Errorf("%w: state already used", apperrors.ErrInvalidState)}
	}

	return nil
}
