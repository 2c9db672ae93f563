package generator

import (
	"context"
	"fmt"
	"strings"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for an LLM call
type LLMRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
	// JSON asks the provider for a bare JSON object where supported
	JSON bool
}

// LLMResponse contains the response from an LLM
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderConfig selects and authenticates a provider
type ProviderConfig struct {
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	// Model pins the model for this provider, overriding the generator default
	Model string `json:"model,omitempty" mapstructure:"model"`
}

// NewProvider creates an LLM provider from its config
func NewProvider(cfg ProviderConfig) (LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", cfg.Provider)
	}
	var provider LLMProvider
	switch cfg.Provider {
	case "anthropic":
		provider = NewAnthropicProvider(cfg.APIKey, cfg.BaseURL)
	case "openai":
		provider = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL)
	case "gemini":
		provider = NewGeminiProvider(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if cfg.Model != "" {
		provider = pinnedModel{LLMProvider: provider, model: cfg.Model}
	}
	return provider, nil
}

type pinnedModel struct {
	LLMProvider
	model string
}

func (p pinnedModel) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	request.Model = p.model
	return p.LLMProvider.Call(ctx, request)
}

// IsRetryableError reports whether err looks transient: network resets,
// rate limits and 5xx responses.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"econnreset", "etimedout", "connection reset", "429", "rate limit", "500", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
