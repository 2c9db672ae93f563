package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Engine selects how tool source text is evaluated
type Engine string

const (
	// EngineGoja evaluates tools in an embedded JavaScript interpreter
	EngineGoja Engine = "goja"
	// EngineBrowser evaluates tools inside a headless Chrome page
	EngineBrowser Engine = "browser"
)

// Config defines sandbox configuration
type Config struct {
	// Engine selects the evaluation engine (goja, browser)
	Engine Engine `json:"engine" mapstructure:"engine"`

	// Timeout bounds a single invocation, including awaited promises.
	// Zero means no limit beyond the caller's context.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// DisallowedGlobals are removed from the global object before a tool runs
	DisallowedGlobals []string `json:"disallowed_globals" mapstructure:"disallowed_globals"`

	// MaxCallStackSize limits recursion depth in the goja engine (0 = unlimited)
	MaxCallStackSize int `json:"max_call_stack_size" mapstructure:"max_call_stack_size"`

	// Browser configures the browser engine
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`
}

// BrowserConfig defines how the browser engine reaches Chrome
type BrowserConfig struct {
	// ControlURL connects to an already running Chrome (DevTools websocket URL).
	// When empty a headless Chrome is launched.
	ControlURL string `json:"control_url" mapstructure:"control_url"`

	// Bin overrides the Chrome binary used when launching
	Bin string `json:"bin" mapstructure:"bin"`

	// NoSandbox disables Chrome's own sandbox (needed in some containers)
	NoSandbox bool `json:"no_sandbox" mapstructure:"no_sandbox"`
}

// Callable is a tool entry point ready to be invoked
type Callable interface {
	// Invoke calls the entry point with args and waits for the outcome,
	// awaiting it when it is a promise. Thrown values come back as
	// *RuntimeError.
	Invoke(ctx context.Context, args []any) (any, error)
}

// Runtime turns source text into callables
type Runtime interface {
	// Construct prepares the function named entry in source.
	// Syntax errors are reported as *CompileError.
	Construct(source, entry string) (Callable, error)

	// Start initializes the runtime
	Start(ctx context.Context) error

	// Stop releases the runtime
	Stop(ctx context.Context) error

	// IsRunning returns whether the runtime is running
	IsRunning() bool

	// GetConfig returns the sandbox configuration
	GetConfig() Config
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Engine:            EngineGoja,
		Timeout:           10 * time.Second,
		DisallowedGlobals: []string{},
		MaxCallStackSize:  10000,
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	switch cfg.Engine {
	case EngineGoja, EngineBrowser:
	default:
		return ErrInvalidEngine
	}

	if cfg.Timeout < 0 {
		return ErrInvalidTimeout
	}

	if cfg.MaxCallStackSize < 0 {
		return ErrInvalidCallStack
	}

	return nil
}

// New creates the runtime selected by cfg.Engine
func New(cfg Config) (Runtime, error) {
	switch cfg.Engine {
	case EngineBrowser:
		return NewBrowserRuntime(cfg)
	case EngineGoja, "":
		if cfg.Engine == "" {
			cfg.Engine = EngineGoja
		}
		return NewGojaRuntime(cfg)
	default:
		return nil, fmt.Errorf("invalid config: %w", ErrInvalidEngine)
	}
}
