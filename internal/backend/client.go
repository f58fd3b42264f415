// Package backend is the client for the external auth API that owns
// accounts and provider identities.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/hoopsfinance/dashboard-auth/internal/errors"
	"github.com/tidwall/gjson"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// defaultTimeout bounds every exchange call when the caller does not
	// configure one. A hung backend must not stall the callback.
	defaultTimeout = 10 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	loginEndpoint  = "/auth/oauth/login"
	linkEndpoint   = "/auth/oauth/link"
	delinkEndpoint = "/auth/oauth/delink"
)

// APIError is a failed backend call: a non-2xx status or a 2xx body with
// success set to false. Body is the verbatim response so proxy routes
// can forward it unchanged.
type APIError struct {
	Endpoint string
	Status   int
	Body     []byte

	// Fields extracted from Body. Any of them may be empty.
	Message  string
	Email    string
	Provider string
	Code     string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth API %s (%d): %s", e.Endpoint, e.Status, e.Message)
	}

	return fmt.Sprintf("auth API %s returned status %d: %s", e.Endpoint, e.Status, sanitizeResponseBody(e.Body))
}

// NoAccount reports whether the backend rejected a login because no
// account exists for the provider identity. The signup page offers to
// create one from the carried email and provider.
func (e *APIError) NoAccount() bool {
	return e.Email != "" || strings.Contains(strings.ToLower(e.Message), "no account")
}

// ExchangeRequest is the JSON body of login and link calls.
type ExchangeRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	State    string `json:"state,omitempty"`
}

type delinkRequest struct {
	Provider string `json:"provider"`
}

// ExchangeResponse is the backend's answer to a successful exchange.
// Older deployments return the access token as "token".
type ExchangeResponse struct {
	Success      *bool  `json:"success,omitempty"`
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Token        string `json:"token,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Client talks to the auth API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the API key or
// bearer token from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an auth API client. If timeout is zero a 10 second
// timeout is used. Calls are never retried: authorization codes are
// single-use, so a second attempt with the same code is always wrong.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:       timeout,
			CheckRedirect: sameHostRedirectPolicy,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// parseAPIError extracts the displayable fields of an error body. The
// backend has used both "message" and "error" for the text.
func parseAPIError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{Endpoint: endpoint, Status: status, Body: body}
	if !gjson.ValidBytes(body) {
		return apiErr
	}

	res := gjson.ParseBytes(body)
	apiErr.Message = res.Get("message").String()

	if apiErr.Message == "" {
		if e := res.Get("error"); e.Type == gjson.String {
			apiErr.Message = e.String()
		} else {
			apiErr.Message = res.Get("error.message").String()
		}
	}

	apiErr.Email = res.Get("email").String()
	apiErr.Provider = res.Get("provider").String()
	apiErr.Code = res.Get("code").String()

	return apiErr
}

// post sends a JSON POST request and decodes the response into result.
// A non-empty bearer adds an Authorization header.
func (c *Client) post(ctx context.Context, endpoint, bearer string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending request to %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %w", apperrors.ErrAPIResponse, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(endpoint, resp.StatusCode, respBody)
	}

	// A 2xx body can still report failure.
	if s := gjson.GetBytes(respBody, "success"); s.Exists() && s.Type == gjson.False {
		return parseAPIError(endpoint, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %w", apperrors.ErrAPIResponse, endpoint, err)
		}
	}

	return nil
}

// Login resolves or creates an account from the provider identity.
func (c *Client) Login(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	// The login endpoint takes no state.
	body := ExchangeRequest{Provider: req.Provider, Code: req.Code}

	var resp ExchangeResponse
	if err := c.post(ctx, loginEndpoint, "", body, &resp); err != nil {
		return nil, fmt.Errorf("oauth login: %w", err)
	}

	return &resp, nil
}

// Link associates the provider identity with the account owning
// accessToken.
func (c *Client) Link(ctx context.Context, accessToken string, req ExchangeRequest) (*ExchangeResponse, error) {
	var resp ExchangeResponse
	if err := c.post(ctx, linkEndpoint, accessToken, req, &resp); err != nil {
		return nil, fmt.Errorf("oauth link: %w", err)
	}

	return &resp, nil
}

// Delink removes the provider identity from the account owning
// accessToken.
func (c *Client) Delink(ctx context.Context, accessToken, provider string) error {
	if err := c.post(ctx, delinkEndpoint, accessToken, delinkRequest{Provider: provider}, nil); err != nil {
		return fmt.Errorf("oauth delink: %w", err)
	}

	return nil
}
