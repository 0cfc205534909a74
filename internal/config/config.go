// Package config loads gateway configuration from defaults, an optional TOML
// file, and CHATBRIDGE_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CHATBRIDGE_"

type Config struct {
	Server    Server    `koanf:"server"`
	Providers Providers `koanf:"providers"`
	Anthropic Anthropic `koanf:"anthropic"`
	Translate Translate `koanf:"translate"`
	Thinking  Thinking  `koanf:"thinking"`
}

type Server struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" validate:"gt=0"`
}

type Providers struct {
	Default string `koanf:"default" validate:"required"`
}

type Anthropic struct {
	// APIKey is the upstream credential used when a request carries no
	// bearer token of its own.
	APIKey        string            `koanf:"api_key"`
	BaseURL       string            `koanf:"base_url"`
	DefaultModel  string            `koanf:"default_model" validate:"required"`
	AllowedModels []string          `koanf:"allowed_models"`
	Aliases       map[string]string `koanf:"aliases"`
	PromptCaching bool              `koanf:"prompt_caching"`
}

type Translate struct {
	DefaultMaxTokens int64 `koanf:"default_max_tokens" validate:"gt=0"`
}

type Thinking struct {
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gt=0"`
	CacheMaxEntries int           `koanf:"cache_max_entries" validate:"gt=0"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                  "127.0.0.1:4000",
		"server.read_header_timeout":   10 * time.Second,
		"server.max_body_bytes":        int64(10 << 20),
		"providers.default":            "anthropic",
		"anthropic.default_model":      "claude-sonnet-4-20250514",
		"anthropic.prompt_caching":     true,
		"translate.default_max_tokens": int64(65536),
		"thinking.cache_ttl":           time.Hour,
		"thinking.cache_max_entries":   10000,
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply. Environment keys use double
// underscores as section separators, e.g. CHATBRIDGE_SERVER__ADDR.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
