package config

import (
	"fmt"
	"strings"

	"github.com/harun/toolshed/pkg/cron"
	"github.com/harun/toolshed/pkg/sandbox"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidateProvider validates a generator provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "anthropic", "openai", "gemini":
		return nil
	}
	return fmt.Errorf("invalid provider: %s (must be one of: anthropic, openai, gemini)", provider)
}

// ValidateEngine validates a runtime engine name
func (v *Validator) ValidateEngine(engine string) error {
	switch sandbox.Engine(engine) {
	case sandbox.EngineGoja, sandbox.EngineBrowser:
		return nil
	}
	return fmt.Errorf("invalid runtime engine: %s (must be one of: goja, browser)", engine)
}

// ValidateTemperature validates a sampling temperature
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", temp)
	}
	return nil
}

// ValidateMaxTokens validates the generation token limit
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large: %d (max 200000)", tokens)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
}

// ValidateSchedule validates a registry refresh schedule; empty disables refresh
func (v *Validator) ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	if _, err := cron.ParseSchedule(expr); err != nil {
		return fmt.Errorf("registry.refresh_schedule: %w", err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation and reports every problem
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	for i, profile := range cfg.Generator.Profiles {
		if err := v.ValidateProvider(profile.Provider); err != nil {
			errs = append(errs, fmt.Errorf("generator profile %d (%s): %w", i, profile.ID, err))
			continue
		}
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errs = append(errs, fmt.Errorf("generator profile %d (%s): %w", i, profile.ID, err))
		}
	}

	if cfg.Generator.Temperature != 0 {
		if err := v.ValidateTemperature(cfg.Generator.Temperature); err != nil {
			errs = append(errs, fmt.Errorf("generator: %w", err))
		}
	}
	if err := v.ValidateMaxTokens(cfg.Generator.MaxTokens); err != nil {
		errs = append(errs, fmt.Errorf("generator: %w", err))
	}
	if err := v.ValidateEngine(cfg.Runtime.Engine); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateSchedule(cfg.Registry.RefreshSchedule); err != nil {
		errs = append(errs, err)
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute must be >= 0"))
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
