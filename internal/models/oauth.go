// Package models defines types shared across internal packages.
package models

import (
	"net/url"
	"time"
)

// ExchangeRequest is the input to an authorization-code exchange.
type ExchangeRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	State    string `json:"state,omitempty"`
}

// User is the normalized identity returned by a successful exchange.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
}

// Session is the authenticated principal held by the session store.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SignInOutcome is the result of the sign-in abstraction. A successful
// outcome may omit URL; callers must not treat a missing URL as failure.
type SignInOutcome struct {
	OK    bool
	URL   string
	Error string
}

// ErrorCode returns the error query parameter of URL when present,
// otherwise the directly reported Error.
func (o SignInOutcome) ErrorCode() string {
	if o.URL != "" {
		if u, err := url.Parse(o.URL); err == nil {
			if code := u.Query().Get("error"); code != "" {
				return code
			}
		}
	}

	return o.Error
}
