package errors

import "errors"

// Callback errors.
var (
	ErrMissingCodeOrState  = errors.New("missing code, state, or provider")
	ErrMissingCSRFCookie   = errors.New("missing csrf cookie")
	ErrMalformedCookie     = errors.New("malformed csrf cookie")
	ErrInvalidState        = errors.New("state does not match csrf token")
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Session errors.
var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("auth API request failed")
	ErrAPIResponse = errors.New("unexpected auth API response")
)
