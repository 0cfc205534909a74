// Package proxy is the HTTP surface of the gateway. It exposes the
// OpenAI-compatible endpoints, routes chat completions through the provider
// registry, and owns the server lifecycle.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"chatbridge/internal/metrics"
	"chatbridge/internal/observability/middleware"
	"chatbridge/internal/provider"
	"chatbridge/internal/thinking"
	"chatbridge/internal/translate"
)

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Options configures a Proxy.
type Options struct {
	Registry  *provider.Registry
	Cache     *thinking.Cache
	Metrics   *metrics.Metrics
	Translate translate.Options
	Readiness ReadinessChecker

	// FallbackAPIKey is forwarded upstream when a request carries no bearer
	// token of its own.
	FallbackAPIKey string

	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
}

// Proxy is the gateway's HTTP server.
type Proxy struct {
	handler http.Handler
	server  *http.Server
}

var _ http.Handler = (*Proxy)(nil)

// New assembles the routes and middleware stack.
func New(opts Options) (*Proxy, error) {
	if opts.Registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}

	chat := &ChatCompletionsHandler{
		Registry:       opts.Registry,
		Cache:          opts.Cache,
		Metrics:        opts.Metrics,
		Translate:      opts.Translate,
		FallbackAPIKey: opts.FallbackAPIKey,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", chat)
	mux.Handle("GET /v1/models", &ModelsHandler{Registry: opts.Registry})
	mux.HandleFunc("GET /healthz/live", livenessHandler())
	if opts.Readiness != nil {
		mux.HandleFunc("GET /healthz/ready", readinessHandler(opts.Readiness))
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	handler := applyMiddlewares(mux,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		Recovery,
		RequestSizeLimit(opts.MaxBodyBytes),
	)

	return &Proxy{
		handler: handler,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			// WriteTimeout stays zero: streaming responses are open-ended.
		},
	}, nil
}

// ServeHTTP implements http.Handler, letting tests drive the full middleware
// stack without a listener.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start binds addr and serves in the background. The returned channel reports
// a serve failure, or closes cleanly on shutdown.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	slog.InfoContext(ctx, "proxy listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown drains in-flight requests until ctx expires.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
