// Package providers holds the identity providers a user can sign in
// with and builds their authorization URLs.
package providers

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/hoopsfinance/dashboard-auth/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"gopkg.in/yaml.v3"
)

// Discord is not in x/oauth2/endpoints.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

type builtin struct {
	endpoint oauth2.Endpoint
	scopes   []string
}

var builtins = map[string]builtin{
	"google":  {endpoint: endpoints.Google, scopes: []string{"openid", "email", "profile"}},
	"github":  {endpoint: endpoints.GitHub, scopes: []string{"read:user", "user:email"}},
	"discord": {endpoint: discordEndpoint, scopes: []string{"identify", "email"}},
}

// Provider is a configured identity provider. The authorization code is
// exchanged by the auth API, so no client secret is held here.
type Provider struct {
	Name   string
	oauth2 *oauth2.Config
}

// New builds a provider. An empty endpoint falls back to the built-in
// endpoint for name; unknown names without an endpoint are an error.
func New(name, clientID, redirectURI string, scopes []string, endpoint oauth2.Endpoint) (*Provider, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	if clientID == "" {
		return nil, fmt.Errorf("provider %s: client id is required", name)
	}

	if u, err := url.Parse(redirectURI); err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("provider %s: redirect URI must be absolute", name)
	}

	b, known := builtins[name]
	if endpoint.AuthURL == "" {
		if !known {
			return nil, fmt.Errorf("provider %s: auth_url is required for non built-in providers", name)
		}

		endpoint = b.endpoint
	}

	if len(scopes) == 0 {
		scopes = b.scopes
	}

	return &Provider{
		Name: name,
		oauth2: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      scopes,
			Endpoint:    endpoint,
		},
	}, nil
}

// AuthCodeURL returns the provider's authorization URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// RedirectURI returns the configured callback URL.
func (p *Provider) RedirectURI() string {
	return p.oauth2.RedirectURL
}

// FromConfig builds the built-in providers that have credentials in cfg.
func FromConfig(cfg *config.Config) ([]*Provider, error) {
	var out []*Provider

	for _, c := range cfg.ProviderCredentials() {
		p, err := New(c.Name, c.ClientID, c.RedirectURI, nil, oauth2.Endpoint{})
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, nil
}

type fileProvider struct {
	Name        string   `yaml:"name"`
	ClientID    string   `yaml:"client_id"`
	RedirectURI string   `yaml:"redirect_uri"`
	Scopes      []string `yaml:"scopes"`
	AuthURL     string   `yaml:"auth_url"`
	TokenURL    string   `yaml:"token_url"`
}

type providersFile struct {
	Providers []fileProvider `yaml:"providers"`
}

// LoadFile reads a YAML providers file.
func LoadFile(path string) ([]*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading providers file: %w", err)
	}

	return parseFile(data)
}

func parseFile(data []byte) ([]*Provider, error) {
	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing providers file: %w", err)
	}

	out := make([]*Provider, 0, len(f.Providers))
	seen := make(map[string]bool, len(f.Providers))

	for i, fp := range f.Providers {
		p, err := New(fp.Name, fp.ClientID, fp.RedirectURI, fp.Scopes, oauth2.Endpoint{
			AuthURL:  fp.AuthURL,
			TokenURL: fp.TokenURL,
		})
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}

		if seen[p.Name] {
			return nil, fmt.Errorf("providers[%d]: duplicate provider %s", i, p.Name)
		}

		seen[p.Name] = true
		out = append(out, p)
	}

	return out, nil
}

// Registry is the concurrency-safe set of enabled providers.
type Registry struct {
	mu        sync.RWMutex
	base      []*Provider
	providers map[string]*Provider
}

// NewRegistry creates a registry from the env-configured providers.
// Providers loaded later from a file are layered over these.
func NewRegistry(base []*Provider) *Registry {
	r := &Registry{base: base}
	r.Replace(nil)

	return r
}

// NormalizeName returns the canonical form of a provider name as it is
// registered and sent to the auth API.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[NormalizeName(name)]

	return p, ok
}

// Has reports whether name is an enabled provider.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the enabled provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Replace swaps the file-loaded providers. Entries in overlay override
// base providers of the same name.
func (r *Registry) Replace(overlay []*Provider) {
	m := make(map[string]*Provider, len(r.base)+len(overlay))
	for _, p := range r.base {
		m[p.Name] = p
	}

	for _, p := range overlay {
		m[p.Name] = p
	}

	r.mu.Lock()
	r.providers = m
	r.mu.Unlock()
}

// Reload reads path and replaces the overlay. On error the registry is
// left unchanged.
func (r *Registry) Reload(path string) error {
	overlay, err := LoadFile(path)
	if err != nil {
		return err
	}

	r.Replace(overlay)

	return nil
}
