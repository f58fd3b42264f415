package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// Config holds all environment-based configuration for dashboard-auth.
type Config struct {
	// Environment controls log format and cookie hardening.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":3000"`

	// PublicURL is the canonical external base URL. When empty the base
	// URL is derived per request from forwarded headers, falling back to
	// DefaultBaseURL.
	PublicURL      string `env:"NEXTAUTH_URL"`
	DefaultBaseURL string `env:"DEFAULT_BASE_URL" envDefault:"http://localhost:3000"`

	// Auth backend.
	AuthAPIURL      string        `env:"AUTH_API_URL"`
	AuthAPIKey      string        `env:"AUTH_API_KEY"`
	ExchangeTimeout time.Duration `env:"AUTH_EXCHANGE_TIMEOUT" envDefault:"10s"`

	// AuthSecret is the root secret for session and CSRF signing.
	AuthSecret string `env:"AUTH_SECRET"`

	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionDBPath string        `env:"SESSION_DB_PATH"`

	// ProvidersFile optionally points at a YAML file of additional or
	// overriding provider definitions. It is watched for changes.
	ProvidersFile string `env:"PROVIDERS_FILE"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubRedirectURI  string `env:"GITHUB_REDIRECT_URI"`
	DiscordClientID    string `env:"DISCORD_CLIENT_ID"`
	DiscordRedirectURI string `env:"DISCORD_REDIRECT_URI"`
}

const (
	// authSecretMinLen is the minimum length of AUTH_SECRET. HKDF
	// stretches it into per-purpose keys but cannot add entropy.
	authSecretMinLen = 32

	// derivedKeyLen is the length of each HKDF-derived key.
	derivedKeyLen = 32
)

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	cfg.DefaultBaseURL = strings.TrimRight(cfg.DefaultBaseURL, "/")
	cfg.AuthAPIURL = strings.TrimRight(cfg.AuthAPIURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.SessionDBPath == "" {
		p, err := DefaultSessionDBPath()
		if err != nil {
			return nil, err
		}

		cfg.SessionDBPath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthAPIURL == "" {
		return fmt.Errorf("AUTH_API_URL is required")
	}

	if err := validateURL("AUTH_API_URL", c.AuthAPIURL); err != nil {
		return err
	}

	if c.AuthAPIKey == "" {
		return fmt.Errorf("AUTH_API_KEY is required")
	}

	if len(c.AuthSecret) < authSecretMinLen {
		return fmt.Errorf("AUTH_SECRET must be at least %d characters", authSecretMinLen)
	}

	if c.PublicURL != "" {
		if err := validateURL("NEXTAUTH_URL", c.PublicURL); err != nil {
			return err
		}
	}

	if err := validateURL("DEFAULT_BASE_URL", c.DefaultBaseURL); err != nil {
		return err
	}

	if c.ExchangeTimeout <= 0 {
		return fmt.Errorf("AUTH_EXCHANGE_TIMEOUT must be positive")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	// A provider is either fully configured or absent. A half-configured
	// provider would only surface as a failed redirect at request time.
	for _, p := range c.ProviderCredentials() {
		if p.ClientID == "" || p.RedirectURI == "" {
			return fmt.Errorf("%s requires both client id and redirect URI", strings.ToUpper(p.Name))
		}
	}

	if len(c.ProviderCredentials()) == 0 && c.ProvidersFile == "" {
		return fmt.Errorf("at least one provider is required: GOOGLE_CLIENT_ID, GITHUB_CLIENT_ID, DISCORD_CLIENT_ID, or PROVIDERS_FILE")
	}

	return nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}

	return nil
}

// DefaultSessionDBPath returns ~/.dashboard-auth/sessions.db.
func DefaultSessionDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".dashboard-auth", "sessions.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ProviderCredential holds the client id and redirect URI of a built-in
// provider configured through the environment.
type ProviderCredential struct {
	Name        string
	ClientID    string
	RedirectURI string
}

// ProviderCredentials returns the built-in providers that have at least
// one of their variables set.
func (c *Config) ProviderCredentials() []ProviderCredential {
	all := []ProviderCredential{
		{Name: "google", ClientID: c.GoogleClientID, RedirectURI: c.GoogleRedirectURI},
		{Name: "github", ClientID: c.GitHubClientID, RedirectURI: c.GitHubRedirectURI},
		{Name: "discord", ClientID: c.DiscordClientID, RedirectURI: c.DiscordRedirectURI},
	}

	var creds []ProviderCredential

	for _, p := range all {
		if p.ClientID != "" || p.RedirectURI != "" {
			creds = append(creds, p)
		}
	}

	return creds
}

// DeriveKey derives a purpose-bound key from AUTH_SECRET with HKDF-SHA256.
// Distinct purposes ("session", "csrf") yield independent keys.
func (c *Config) DeriveKey(purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(c.AuthSecret), nil, []byte("dashboard-auth "+purpose))

	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}

	return key, nil
}
