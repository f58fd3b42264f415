package auth

import "fmt"

// Error codes carried in the ?error= query parameter of the signup
// redirect. The signup page maps them to user-facing text.
const (
	CodeMissingCodeOrState   = "MissingCodeOrState"
	CodeMissingCSRFCookie    = "MissingCsrfCookie"
	CodeInvalidState         = "InvalidState"
	CodeAuthenticationFailed = "AuthenticationFailed"
	CodeUnsupportedProvider  = "UnsupportedProvider"
	CodeTooManyAttempts      = "TooManyAttempts"
)

// AuthError is a recognized authentication failure. Its Code is safe to
// show to the client; Err is for server logs only.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Code
	}

	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
