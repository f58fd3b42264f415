package auth

import (
	"net/http"
	"strings"
)

// ResolveBaseURL returns the externally visible origin for redirects.
// A configured public URL wins; otherwise the origin is rebuilt from
// X-Forwarded-Host and X-Forwarded-Proto (default https), and with no
// forwarded host the default base URL is used.
func ResolveBaseURL(r *http.Request, publicURL, defaultURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/")
	}

	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		return strings.TrimRight(defaultURL, "/")
	}

	proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	if proto != "http" && proto != "https" {
		proto = "https"
	}

	return proto + "://" + host
}

// firstHeaderValue returns the first entry of a comma-separated header
// added by a chain of proxies.
func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
