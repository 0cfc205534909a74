package anthropic

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"chatbridge/internal/model"
	"chatbridge/internal/provider"
)

// DefaultModel is the fallback target when no default is configured and the
// silent-correction substitute for requests outside the allow-list.
const DefaultModel = "claude-sonnet-4-20250514"

// defaultAllowedModels is the built-in allow-list, overridable via Config.
var defaultAllowedModels = []string{
	"claude-sonnet-4-20250514",
	"claude-3-5-haiku-20241022",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-sonnet-20240620",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// defaultAliases maps short model names to canonical dated identifiers.
var defaultAliases = map[string]string{
	"claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-3-5-haiku":  "claude-3-5-haiku-20241022",
	"claude-3-5-sonnet": "claude-3-5-sonnet-20241022",
	"claude-3-opus":     "claude-3-opus-20240229",
}

// Config holds the static configuration of the adapter. Zero values select
// the built-in defaults.
type Config struct {
	// BaseURL overrides the Anthropic API endpoint, e.g. for proxies.
	BaseURL string

	// DefaultModel is the silent-correction substitute for model names
	// outside the allow-list.
	DefaultModel string

	// AllowedModels is the set of model ids accepted as-is.
	AllowedModels []string

	// Aliases maps short names to canonical model ids and is consulted
	// before the allow-list check.
	Aliases map[string]string

	// PromptCaching enables cache_control annotations on the stable regions
	// of each request.
	PromptCaching bool
}

type clientKey struct {
	baseURL string
	apiKey  string
}

// Provider is the Anthropic Messages adapter. Safe for concurrent use.
type Provider struct {
	cfg     Config
	allowed map[string]struct{}

	mu      sync.Mutex
	clients map[clientKey]*anthropic.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates the adapter, filling unset Config fields with defaults.
func New(cfg Config) *Provider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.AllowedModels == nil {
		cfg.AllowedModels = defaultAllowedModels
	}
	if cfg.Aliases == nil {
		cfg.Aliases = defaultAliases
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedModels))
	for _, id := range cfg.AllowedModels {
		allowed[id] = struct{}{}
	}

	return &Provider{
		cfg:     cfg,
		allowed: allowed,
		clients: make(map[clientKey]*anthropic.Client),
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// NormalizeModel resolves aliases and silently replaces names outside the
// allow-list with the configured default.
func (p *Provider) NormalizeModel(requested string) string {
	resolved := requested
	if canonical, ok := p.cfg.Aliases[resolved]; ok {
		resolved = canonical
	}
	if _, ok := p.allowed[resolved]; !ok {
		slog.Warn("requested model outside allow-list, substituting default",
			"requested", requested, "default", p.cfg.DefaultModel)
		return p.cfg.DefaultModel
	}
	return resolved
}

// ListModels implements provider.Provider.
func (p *Provider) ListModels() []model.ModelInfo {
	out := make([]model.ModelInfo, 0, len(p.cfg.AllowedModels))
	for _, id := range p.cfg.AllowedModels {
		out = append(out, model.ModelInfo{ID: id, OwnedBy: "anthropic"})
	}
	return out
}

// Chat implements provider.Provider for the buffered path.
func (p *Provider) Chat(ctx context.Context, req *model.ChatRequest, apiKey string) (*model.ChatResponse, error) {
	params, err := buildCall(req, p.cfg.PromptCaching)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "calling anthropic messages api",
		"model", req.Model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"max_tokens", params.MaxTokens,
	)

	msg, err := p.client(apiKey).Messages.New(ctx, *params)
	if err != nil {
		return nil, normalizeError(err)
	}
	return parseMessage(msg), nil
}

// ChatStream implements provider.Provider for the streaming path.
func (p *Provider) ChatStream(ctx context.Context, req *model.ChatRequest, apiKey string) (iter.Seq2[*model.StreamChunk, error], error) {
	params, err := buildCall(req, p.cfg.PromptCaching)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "opening anthropic messages stream",
		"model", req.Model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"max_tokens", params.MaxTokens,
	)

	stream := p.client(apiKey).Messages.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, normalizeError(err)
	}
	return translateStream(ctx, stream, req.Model), nil
}

// client returns a pooled SDK client for the given credential. Reuse keyed by
// (endpoint, credential) keeps connections warm across requests; a fresh
// client per call would behave identically.
func (p *Provider) client(apiKey string) *anthropic.Client {
	key := clientKey{baseURL: p.cfg.BaseURL, apiKey: apiKey}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Generous request timeout; the effective bound on long-running
		// streams is the server's write timeout.
		option.WithRequestTimeout(1 * time.Hour),
	}
	if p.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.cfg.BaseURL))
	}

	c := anthropic.NewClient(opts...)
	p.clients[key] = &c
	return &c
}
