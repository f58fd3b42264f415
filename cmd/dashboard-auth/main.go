package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoopsfinance/dashboard-auth/internal/auth"
	"github.com/hoopsfinance/dashboard-auth/internal/backend"
	"github.com/hoopsfinance/dashboard-auth/internal/config"
	"github.com/hoopsfinance/dashboard-auth/internal/logging"
	"github.com/hoopsfinance/dashboard-auth/internal/providers"
	"github.com/hoopsfinance/dashboard-auth/internal/server"
	"github.com/hoopsfinance/dashboard-auth/internal/state"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

// sessionPruneInterval controls how often expired sessions are deleted.
const sessionPruneInterval = time.Hour

func main() {
	// Handle gen-secret subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "gen-secret" {
		genSecret()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// genSecret prints a random value suitable for AUTH_SECRET.
func genSecret() {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(base64.RawURLEncoding.EncodeToString(b))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("dashboard-auth starting",
		slog.String("version", Version),
		slog.String("environment", cfg.Environment),
		slog.String("auth_api", cfg.AuthAPIURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appState, err := state.LoadAt(cfg.SessionDBPath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	registry, err := loadProviders(cfg)
	if err != nil {
		return err
	}

	logger.Info("providers enabled", slog.Any("providers", registry.Names()))

	sessionKey, err := cfg.DeriveKey("session")
	if err != nil {
		return err
	}

	csrfKey, err := cfg.DeriveKey("csrf")
	if err != nil {
		return err
	}

	secure := cfg.IsProduction()
	client := backend.NewClient(cfg.AuthAPIURL, cfg.AuthAPIKey, cfg.ExchangeTimeout)
	sessions := auth.NewSessions(appState, sessionKey, cfg.SessionTTL, secure, logger)
	exchanger := auth.NewExchanger(client, registry, logger)
	guard := auth.NewStateGuard(0)

	mux := server.NewMux(server.MuxConfig{
		Flow: auth.FlowConfig{
			Establisher:    auth.NewEstablisher(exchanger, sessions, logger),
			Sessions:       sessions,
			Verifier:       auth.NewVerifier(guard, secure),
			Logger:         logger,
			PublicURL:      cfg.PublicURL,
			DefaultBaseURL: cfg.DefaultBaseURL,
			Secure:         secure,
		},
		SignIn: auth.SignInConfig{
			Providers: registry,
			Sessions:  sessions,
			CSRFKey:   csrfKey,
			Secure:    secure,
			Logger:    logger,
		},
		Backend: client,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(gctx, cfg.ListenAddr, mux, logger)
	})

	g.Go(func() error {
		return guard.Run(gctx)
	})

	g.Go(func() error {
		pruneSessions(gctx, appState, logger)
		return nil
	})

	if cfg.ProvidersFile != "" {
		g.Go(func() error {
			err := registry.Watch(gctx, cfg.ProvidersFile, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	return g.Wait()
}

// loadProviders builds the registry from the environment and, when
// configured, the providers file.
func loadProviders(cfg *config.Config) (*providers.Registry, error) {
	base, err := providers.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring providers: %w", err)
	}

	registry := providers.NewRegistry(base)

	if cfg.ProvidersFile != "" {
		if err := registry.Reload(cfg.ProvidersFile); err != nil {
			return nil, fmt.Errorf("loading providers file: %w", err)
		}
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	return registry, nil
}

// serveHTTP runs the HTTP server until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting HTTP server", slog.String("listen", addr))

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// pruneSessions deletes expired sessions on startup and then hourly
// until ctx is cancelled.
func pruneSessions(ctx context.Context, appState *state.State, logger *slog.Logger) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()

	for {
		n, err := appState.PruneSessions(ctx)
		if err != nil {
			logger.Warn("pruning sessions failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("pruned expired sessions", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
