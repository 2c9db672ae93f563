package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/harun/toolshed/pkg/catalog"
)

var (
	// ErrNoProviders is returned when a generator has nothing to call
	ErrNoProviders = errors.New("no LLM providers configured")

	// ErrInvalidOutput is returned when the model answer is not a usable descriptor
	ErrInvalidOutput = errors.New("model returned an invalid tool descriptor")
)

// Config tunes generation requests
type Config struct {
	Model       string        `json:"model" mapstructure:"model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
	RetryDelay  time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
}

// DefaultConfig returns defaults matching the Gemini provider
func DefaultConfig() Config {
	return Config{
		Model:      DefaultGeminiModel,
		MaxTokens:  4096,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Generator produces tool descriptors from queries
type Generator struct {
	cfg       Config
	providers []LLMProvider
	logger    zerolog.Logger
}

// New creates a generator that tries providers in order
func New(cfg Config, logger zerolog.Logger, providers ...LLMProvider) *Generator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Generator{cfg: cfg, providers: providers, logger: logger}
}

// Generate asks the model for a tool matching query and returns the
// validated descriptor without an id.
func (g *Generator) Generate(ctx context.Context, query string) (catalog.Tool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return catalog.Tool{}, catalog.ErrEmptyQuery
	}
	if len(g.providers) == 0 {
		return catalog.Tool{}, ErrNoProviders
	}

	request := LLMRequest{
		Model:        g.cfg.Model,
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(query),
		Temperature:  g.cfg.Temperature,
		MaxTokens:    g.cfg.MaxTokens,
		JSON:         true,
	}

	var lastErr error
	for _, provider := range g.providers {
		start := time.Now()
		response, err := g.callWithRetry(ctx, provider, request)
		if err != nil {
			lastErr = err
			g.logger.Warn().Err(err).Str("provider", provider.Provider()).Msg("Provider failed")
			if !IsRetryableError(err) {
				return catalog.Tool{}, err
			}
			continue
		}

		tool, err := ParseTool(response.Content)
		if err != nil {
			g.logger.Warn().
				Err(err).
				Str("provider", provider.Provider()).
				Str("content", truncate(response.Content, 200)).
				Msg("Unusable model output")
			return catalog.Tool{}, err
		}

		event := g.logger.Info().
			Str("provider", provider.Provider()).
			Str("tool", tool.FunctionTitle).
			Dur("duration", time.Since(start))
		if response.Usage != nil {
			event = event.Int("input_tokens", response.Usage.InputTokens).Int("output_tokens", response.Usage.OutputTokens)
		}
		event.Msg("Tool generated")
		return tool, nil
	}

	return catalog.Tool{}, fmt.Errorf("all providers failed: %w", lastErr)
}

func (g *Generator) callWithRetry(ctx context.Context, provider LLMProvider, request LLMRequest) (*LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		response, err := provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !IsRetryableError(err) || attempt == g.cfg.MaxRetries-1 {
			break
		}

		delay := g.cfg.RetryDelay * time.Duration(1<<attempt)
		g.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// ParseTool extracts a descriptor from model output. Markdown code fences
// and surrounding prose are tolerated.
func ParseTool(content string) (catalog.Tool, error) {
	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return catalog.Tool{}, fmt.Errorf("%w: no JSON object found", ErrInvalidOutput)
	}

	var tool catalog.Tool
	if err := json.Unmarshal([]byte(raw), &tool); err != nil {
		return catalog.Tool{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	tool.ID = ""
	tool.HumanReadableTitle = strings.TrimSpace(tool.HumanReadableTitle)
	tool.FunctionTitle = strings.TrimSpace(tool.FunctionTitle)
	tool.ToolType = normalizeCategory(tool.ToolType)
	if tool.Inputs == nil {
		tool.Inputs = []catalog.InputSpec{}
	}

	if err := catalog.Validate(tool); err != nil {
		return catalog.Tool{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return tool, nil
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if start := strings.Index(content, "```"); start >= 0 {
		body := content[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		content = strings.TrimSpace(body)
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}

func normalizeCategory(t string) string {
	t = strings.TrimSpace(t)
	for _, c := range Categories {
		if strings.EqualFold(c, t) {
			return c
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
