// Package app wires configuration, providers, and the HTTP server into one
// runnable unit and owns the coordinated startup/shutdown sequence.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"chatbridge/internal/config"
	"chatbridge/internal/metrics"
	"chatbridge/internal/provider"
	"chatbridge/internal/provider/anthropic"
	"chatbridge/internal/proxy"
	"chatbridge/internal/thinking"
	"chatbridge/internal/translate"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *config.Config
	health *Health
	proxy  *proxy.Proxy
}

// New builds the full service graph from cfg.
func New(cfg *config.Config) (*App, error) {
	cache := thinking.NewCache(cfg.Thinking.CacheMaxEntries, cfg.Thinking.CacheTTL)
	m := metrics.New(cache.Len)

	registry := provider.NewRegistry(cfg.Providers.Default)
	registry.Register(anthropic.New(anthropic.Config{
		BaseURL:       cfg.Anthropic.BaseURL,
		DefaultModel:  cfg.Anthropic.DefaultModel,
		AllowedModels: cfg.Anthropic.AllowedModels,
		Aliases:       cfg.Anthropic.Aliases,
		PromptCaching: cfg.Anthropic.PromptCaching,
	}))

	health := NewHealth()

	proxyServer, err := proxy.New(proxy.Options{
		Registry:          registry,
		Cache:             cache,
		Metrics:           m,
		Translate:         translate.Options{DefaultMaxTokens: cfg.Translate.DefaultMaxTokens},
		Readiness:         health,
		FallbackAPIKey:    cfg.Anthropic.APIKey,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:    cfg,
		health: health,
		proxy:  proxyServer,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server")
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)
	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
