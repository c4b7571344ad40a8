// Package inference extracts opportunity candidates by asking a hosted
// language model for a JSON array. Calls are budgeted per day, rate limited,
// guarded by a circuit breaker, and the raw output is repaired and quality
// checked before it is accepted.
package inference

//go:generate mockgen -destination=mocks/provider.go -package=mocks github.com/jonesrussell/re-search/internal/inference Provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonesrussell/re-search/internal/config"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// CompletionRequest is a single-turn completion.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider sends a completion to a hosted model and returns its text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg *config.InferenceConfig, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIURL, cfg.APIKey, client), nil
	case ProviderOllama:
		return NewOllamaProvider(cfg.APIURL, client), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIURL, cfg.APIKey, client), nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
