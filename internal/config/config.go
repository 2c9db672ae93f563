package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/harun/toolshed/pkg/sandbox"
)

// Config represents the main toolshed configuration
type Config struct {
	// Backend the gateway and CLI talk to
	Backend BackendConfig `json:"backend" mapstructure:"backend"`

	// Runtime evaluates tool code
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`

	// Detail view behaviour
	Detail DetailConfig `json:"detail" mapstructure:"detail"`

	// Gateway is the browser front end (toolshed serve)
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Server is the tool backend (toolshed backend)
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Generator turns queries into tools
	Generator GeneratorConfig `json:"generator" mapstructure:"generator"`

	// Registry refresh
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BackendConfig locates the tool backend
type BackendConfig struct {
	URL     string `json:"url" mapstructure:"url"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// RuntimeConfig selects and bounds the execution engine
type RuntimeConfig struct {
	Engine            string        `json:"engine" mapstructure:"engine"`   // goja, browser
	Timeout           int           `json:"timeout" mapstructure:"timeout"` // seconds
	MaxCallStackSize  int           `json:"max_call_stack_size" mapstructure:"max_call_stack_size"`
	MaxConcurrent     int           `json:"max_concurrent" mapstructure:"max_concurrent"` // per execution source
	DisallowedGlobals []string      `json:"disallowed_globals" mapstructure:"disallowed_globals"`
	Browser           BrowserConfig `json:"browser" mapstructure:"browser"`
}

// BrowserConfig configures the headless Chrome engine
type BrowserConfig struct {
	ControlURL string `json:"control_url" mapstructure:"control_url"`
	Bin        string `json:"bin" mapstructure:"bin"`
	NoSandbox  bool   `json:"no_sandbox" mapstructure:"no_sandbox"`
}

// DetailConfig tunes the tool detail view
type DetailConfig struct {
	DebounceMs int  `json:"debounce_ms" mapstructure:"debounce_ms"`
	RunOnOpen  bool `json:"run_on_open" mapstructure:"run_on_open"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port    int    `json:"port" mapstructure:"port"`
	Host    string `json:"host" mapstructure:"host"`
	Metrics bool   `json:"metrics" mapstructure:"metrics"`
}

// ServerConfig holds tool backend configuration
type ServerConfig struct {
	Port               int      `json:"port" mapstructure:"port"`
	Host               string   `json:"host" mapstructure:"host"`
	DBPath             string   `json:"db_path" mapstructure:"db_path"`
	AllowedOrigins     []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	GenerateTimeout    int      `json:"generate_timeout" mapstructure:"generate_timeout"` // seconds
	Metrics            bool     `json:"metrics" mapstructure:"metrics"`
	// Audit appends create and delete events to <data_dir>/audit.log
	Audit bool `json:"audit" mapstructure:"audit"`
}

// GeneratorConfig holds LLM configuration for tool generation
type GeneratorConfig struct {
	Model       string      `json:"model" mapstructure:"model"`
	Temperature float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int         `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int         `json:"max_retries" mapstructure:"max_retries"`
	Profiles    []AIProfile `json:"profiles" mapstructure:"profiles"`

	Embeddings EmbeddingsConfig `json:"embeddings" mapstructure:"embeddings"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// EmbeddingsConfig enables semantic tool search
type EmbeddingsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	Model   string `json:"model" mapstructure:"model"`
	BaseURL string `json:"base_url,omitempty" mapstructure:"base_url"`
}

// RegistryConfig controls registry reloads
type RegistryConfig struct {
	// RefreshSchedule is a cron expression or descriptor; empty disables refresh
	RefreshSchedule string `json:"refresh_schedule" mapstructure:"refresh_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://localhost:8000",
			Timeout: 120,
		},
		Runtime: RuntimeConfig{
			Engine:            string(sandbox.EngineGoja),
			Timeout:           10,
			MaxCallStackSize:  10000,
			MaxConcurrent:     4,
			DisallowedGlobals: []string{},
		},
		Detail: DetailConfig{
			DebounceMs: 200,
		},
		Gateway: GatewayConfig{
			Port:    3000,
			Host:    "127.0.0.1",
			Metrics: true,
		},
		Server: ServerConfig{
			Port:               8000,
			Host:               "0.0.0.0",
			AllowedOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RateLimitPerMinute: 30,
			GenerateTimeout:    120,
			Audit:              true,
			Metrics:            true,
		},
		Generator: GeneratorConfig{
			Model:      "gemini-2.0-flash",
			MaxTokens:  4096,
			MaxRetries: 3,
			Profiles:   []AIProfile{},
			Embeddings: EmbeddingsConfig{
				Model: "text-embedding-3-small",
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Generator.Profiles = make([]AIProfile, len(c.Generator.Profiles))
	for i, p := range c.Generator.Profiles {
		p.APIKey = maskSecret(p.APIKey)
		masked.Generator.Profiles[i] = p
	}
	masked.Generator.Embeddings.APIKey = maskSecret(c.Generator.Embeddings.APIKey)

	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks the settings every command depends on. Generator
// credentials are checked by ValidateServer since only the backend needs them.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url: %s", c.Backend.URL)
	}

	if err := sandbox.ValidateConfig(c.SandboxConfig()); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	if c.Runtime.MaxConcurrent < 1 {
		return fmt.Errorf("runtime.max_concurrent must be >= 1")
	}

	if c.Detail.DebounceMs < 0 {
		return fmt.Errorf("detail.debounce_ms must be >= 0")
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// ValidateServer checks the settings the tool backend needs
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if len(c.Generator.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one generator profile is required")
	}

	for i, profile := range c.Generator.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("generator profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("generator profile %s: api_key is required", profile.ID)
		}
		switch profile.Provider {
		case "anthropic", "openai", "gemini":
		default:
			return fmt.Errorf("generator profile %s: invalid provider %s (must be: anthropic, openai, gemini)", profile.ID, profile.Provider)
		}
	}

	if c.Generator.Embeddings.Enabled && c.Generator.Embeddings.APIKey == "" {
		return fmt.Errorf("generator.embeddings.api_key is required when embeddings are enabled")
	}

	return nil
}

// SandboxConfig converts the runtime section for the sandbox package
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		Engine:            sandbox.Engine(c.Runtime.Engine),
		Timeout:           time.Duration(c.Runtime.Timeout) * time.Second,
		DisallowedGlobals: c.Runtime.DisallowedGlobals,
		MaxCallStackSize:  c.Runtime.MaxCallStackSize,
		Browser: sandbox.BrowserConfig{
			ControlURL: c.Runtime.Browser.ControlURL,
			Bin:        c.Runtime.Browser.Bin,
			NoSandbox:  c.Runtime.Browser.NoSandbox,
		},
	}
}

// Debounce returns the detail debounce as a duration
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Detail.DebounceMs) * time.Millisecond
}

// BackendTimeout returns the backend request timeout
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
