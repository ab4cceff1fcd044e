package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/ldap-user-collection/config"
	httpx "github.com/target/ldap-user-collection/internal/http"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// NewHTTPServer builds the HTTP server for the user collection.
func NewHTTPServer(cfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if services.Users == nil || services.Sessions == nil {
		return nil, errors.New("user collection and session service are required to serve HTTP")
	}
	if logger == nil {
		logger = slog.Default()
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Users:        services.Users,
		Sessions:     services.Sessions,
		RootKey:      cfg.Auth.RootKey,
		CookieDomain: cfg.HTTP.CookieDomain,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Metrics:      services.Metrics,
		Logger:       logger,
	})

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// Serve runs server on ln until ctx is canceled, then shuts it down gracefully.
// A listener failure is returned; a clean shutdown returns nil.
func Serve(ctx context.Context, server *http.Server, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}

// ListenAndServe binds server.Addr and calls Serve.
func ListenAndServe(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	return Serve(ctx, server, ln, logger)
}
