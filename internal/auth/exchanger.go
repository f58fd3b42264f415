package auth

//go:generate mockgen -destination=mock_backend_test.go -package=auth . Backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hoopsfinance/dashboard-auth/internal/backend"
	apperrors "github.com/hoopsfinance/dashboard-auth/internal/errors"
	"github.com/hoopsfinance/dashboard-auth/internal/logging"
	"github.com/hoopsfinance/dashboard-auth/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Backend is the subset of the auth API used by the exchanger and the
// proxy routes. *backend.Client implements it.
type Backend interface {
	Login(ctx context.Context, req backend.ExchangeRequest) (*backend.ExchangeResponse, error)
	Link(ctx context.Context, accessToken string, req backend.ExchangeRequest) (*backend.ExchangeResponse, error)
	Delink(ctx context.Context, accessToken, provider string) error
}

// ProviderSet reports which providers are enabled.
type ProviderSet interface {
	Has(name string) bool
}

// Mode selects the backend operation for an exchange.
type Mode int

const (
	// ModeLogin resolves or creates an account from the provider identity.
	ModeLogin Mode = iota
	// ModeLink attaches the provider identity to the signed-in account.
	ModeLink
)

func (m Mode) String() string {
	if m == ModeLink {
		return "link"
	}

	return "login"
}

// ModeFor returns ModeLink when current carries an access token.
func ModeFor(current *models.Session) Mode {
	if current != nil && current.AccessToken != "" {
		return ModeLink
	}

	return ModeLogin
}

// Exchanger trades authorization codes for account identity.
type Exchanger struct {
	backend   Backend
	providers ProviderSet
	logger    *slog.Logger
}

// NewExchanger creates an Exchanger.
func NewExchanger(b Backend, providers ProviderSet, logger *slog.Logger) *Exchanger {
	return &Exchanger{backend: b, providers: providers, logger: logger}
}

// Exchange performs exactly one backend call. The current session is
// an explicit input: with an access token the code is linked to that
// account, otherwise it is used to log in. A backend rejection is
// returned wrapping *backend.APIError with its status and body intact.
func (e *Exchanger) Exchange(ctx context.Context, req models.ExchangeRequest, current *models.Session) (*models.User, error) {
	if !e.providers.Has(req.Provider) {
		return nil, &AuthError{
			Code: CodeUnsupportedProvider,
			Err:  fmt.Errorf("%w: %s", apperrors.ErrUnsupportedProvider, req.Provider),
		}
	}

	mode := ModeFor(current)
	wire := backend.ExchangeRequest{Provider: req.Provider, Code: req.Code, State: req.State}

	e.logger.Debug("exchanging authorization code",
		slog.String("provider", req.Provider),
		slog.String("mode", mode.String()),
		logging.Present("code", req.Code),
	)

	var (
		resp *backend.ExchangeResponse
		err  error
	)

	switch mode {
	case ModeLink:
		resp, err = e.backend.Link(ctx, current.AccessToken, wire)
	default:
		resp, err = e.backend.Login(ctx, wire)
	}

	if err != nil {
		return nil, fmt.Errorf("%s exchange for %s: %w", mode, req.Provider, err)
	}

	return normalizeUser(resp), nil
}

// Delink detaches provider from the account owning accessToken.
func (e *Exchanger) Delink(ctx context.Context, accessToken, provider string) error {
	if !e.providers.Has(provider) {
		return &AuthError{
			Code: CodeUnsupportedProvider,
			Err:  fmt.Errorf("%w: %s", apperrors.ErrUnsupportedProvider, provider),
		}
	}

	return e.backend.Delink(ctx, accessToken, provider)
}

func normalizeUser(resp *backend.ExchangeResponse) *models.User {
	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}

	name := resp.Name
	if name == "" {
		name = DeriveName(resp.Email)
	}

	return &models.User{
		ID:           resp.ID,
		Email:        resp.Email,
		Name:         name,
		AccessToken:  token,
		RefreshToken: resp.RefreshToken,
	}
}

// DeriveName returns the local part of email, NFC-normalized. An
// address without @ is returned whole.
func DeriveName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return norm.NFC.String(local)
}
