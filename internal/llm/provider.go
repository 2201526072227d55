// Package llm provides a provider-agnostic completion client used by the
// model advisor. Providers speak their REST APIs over net/http.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrMissingAPIKey is returned when a provider has no credentials.
var ErrMissingAPIKey = errors.New("llm: missing API key")

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "google/gemini-1.5-flash").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // 0 = provider default
	Temperature float64 // 0.0-2.0
	Format      string  // "json" for structured output, empty for plain text
	System      string  // optional system prompt
}

// Config holds provider configuration.
type Config struct {
	Provider string // "google", "openrouter"; empty = no provider
	Model    string
	APIKey   string // empty = read from env
	BaseURL  string // optional URL override (tests, proxies)
	Client   *http.Client
}

// Enabled reports whether cfg names a provider.
func (c Config) Enabled() bool { return c.Provider != "" }

const (
	defaultGoogleModel     = "gemini-1.5-flash"
	defaultOpenRouterModel = "google/gemini-flash-1.5"
)

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	switch strings.ToLower(cfg.Provider) {
	case "google":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("google provider needs GEMINI_API_KEY or GOOGLE_API_KEY: %w", ErrMissingAPIKey)
		}
		return &googleProvider{
			apiKey:  key,
			model:   firstNonEmpty(cfg.Model, defaultGoogleModel),
			baseURL: firstNonEmpty(cfg.BaseURL, "https://generativelanguage.googleapis.com/v1beta"),
			client:  client,
		}, nil

	case "openrouter":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENROUTER_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("openrouter provider needs OPENROUTER_API_KEY: %w", ErrMissingAPIKey)
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   firstNonEmpty(cfg.Model, defaultOpenRouterModel),
			baseURL: firstNonEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			client:  client,
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: google, openrouter)", cfg.Provider)
	}
}

// ParseLLMFlag parses a "provider/model" value such as "google/gemini-1.5-flash"
// or "openrouter/openai/gpt-4o-mini". A bare provider name selects its default
// model. Empty, "none" and "off" yield a disabled Config.
func ParseLLMFlag(flag string) (Config, error) {
	flag = strings.TrimSpace(flag)
	switch strings.ToLower(flag) {
	case "", "none", "off":
		return Config{}, nil
	}

	provider, model, _ := strings.Cut(flag, "/")
	provider = strings.ToLower(provider)
	switch provider {
	case "google", "openrouter":
		return Config{Provider: provider, Model: model}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm value (supported: google, openrouter)", provider)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
