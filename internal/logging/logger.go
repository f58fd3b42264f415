package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[redacted]"

// sensitiveKeys lists attribute keys whose values are never written.
// Matching is case-insensitive on the last path segment of a group key.
var sensitiveKeys = map[string]struct{}{
	"code":          {},
	"state":         {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"csrf_token":    {},
	"cookie":        {},
	"api_key":       {},
	"authorization": {},
	"secret":        {},
	"session_token": {},
}

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
func NewLogger(env string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: redact,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if IsSensitive(a.Key) {
		return slog.String(a.Key, redacted)
	}

	return a
}

// IsSensitive reports whether an attribute key names a secret value.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// Present returns an attribute recording only whether a secret value
// was supplied, e.g. has_code=true.
func Present(key, value string) slog.Attr {
	return slog.Bool("has_"+key, value != "")
}
