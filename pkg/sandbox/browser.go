package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolshed/pkg/jsvalue"
)

// BrowserRuntime evaluates tools inside headless Chrome, for tools that
// depend on browser APIs such as canvas or fetch. Each invocation opens a
// blank page and closes it afterwards.
type BrowserRuntime struct {
	config   Config
	running  bool
	browser  *rod.Browser
	launcher *launcher.Launcher
	mu       sync.RWMutex
}

// NewBrowserRuntime creates a new browser runtime
func NewBrowserRuntime(config Config) (*BrowserRuntime, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &BrowserRuntime{config: config}, nil
}

// Start launches Chrome (or connects to the configured one)
func (b *BrowserRuntime) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrSandboxAlreadyRunning
	}

	controlURL := b.config.Browser.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if b.config.Browser.NoSandbox {
			l = l.NoSandbox(true)
		}
		if b.config.Browser.Bin != "" {
			l = l.Bin(b.config.Browser.Bin)
		}

		u, err := l.Context(ctx).Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		b.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Kill()
			b.launcher = nil
		}
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	log.Info().
		Str("engine", string(b.config.Engine)).
		Bool("launched", b.launcher != nil).
		Msg("Starting browser runtime")

	b.browser = browser
	b.running = true
	return nil
}

// Stop closes the browser connection and kills a launched Chrome
func (b *BrowserRuntime) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return ErrSandboxNotRunning
	}

	log.Info().Msg("Stopping browser runtime")

	var err error
	if b.launcher != nil {
		err = b.browser.Close()
		b.launcher.Kill()
		b.launcher = nil
	}

	b.browser = nil
	b.running = false
	return err
}

// IsRunning returns whether the runtime is running
func (b *BrowserRuntime) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// GetConfig returns the sandbox configuration
func (b *BrowserRuntime) GetConfig() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// Construct prepares the page script. Syntax errors surface on Invoke,
// when Chrome parses the script.
func (b *BrowserRuntime) Construct(source, entry string) (Callable, error) {
	b.mu.RLock()
	browser := b.browser
	running := b.running
	b.mu.RUnlock()

	if !running {
		return nil, ErrSandboxNotRunning
	}

	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, ErrEmptyEntryPoint
	}

	return &browserCallable{
		browser: browser,
		script:  pageScript(source, entry),
		entry:   entry,
		config:  b.GetConfig(),
	}, nil
}

// pageScript builds the function rod evaluates: it defines the tool, checks
// the entry point and awaits the call. The result comes back as JSON text
// so key order survives the trip.
func pageScript(source, entry string) string {
	var sb strings.Builder
	sb.WriteString("async (...args) => {\n")
	sb.WriteString("const __entry = (function() {\n")
	sb.WriteString(source)
	sb.WriteString("\nreturn " + entry + ";\n})();\n")
	sb.WriteString("if (typeof __entry !== 'function') {\n")
	sb.WriteString("  throw new TypeError(" + quoteJS(entry) + " + ' is not a function');\n")
	sb.WriteString("}\n")
	sb.WriteString("const __result = await __entry(...args);\n")
	sb.WriteString("return __result === undefined ? 'null' : JSON.stringify(__result);\n")
	sb.WriteString("}")
	return sb.String()
}

func quoteJS(s string) string {
	text, err := jsvalue.Stringify(s)
	if err != nil {
		return `""`
	}
	return text
}

type browserCallable struct {
	browser *rod.Browser
	script  string
	entry   string
	config  Config
}

// Invoke evaluates the tool in a fresh blank page
func (c *browserCallable) Invoke(ctx context.Context, args []any) (any, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	page, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, c.contextError(ctx, fmt.Errorf("failed to create page: %w", err))
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("tool", c.entry).Msg("Failed to close page")
		}
	}()

	jsArgs := make([]any, len(args))
	for i, arg := range args {
		raw, err := jsvalue.Stringify(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i+1, err)
		}
		jsArgs[i] = json.RawMessage(raw)
	}

	res, err := page.Evaluate(rod.Eval(c.script, jsArgs...).ByPromise())
	if err != nil {
		var evalErr *rod.EvalError
		if errors.As(err, &evalErr) {
			return nil, c.evalError(evalErr)
		}
		return nil, c.contextError(ctx, err)
	}

	text := res.Value.Str()
	if text == "" {
		return nil, nil
	}
	return jsvalue.Parse(text)
}

func (c *browserCallable) contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrExecutionTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// evalError converts a Chrome exception into the sandbox error types
func (c *browserCallable) evalError(evalErr *rod.EvalError) error {
	msg := evalErr.Text
	name := ""
	stack := ""
	if ex := evalErr.Exception; ex != nil {
		name = ex.ClassName
		stack = ex.Description
		if ex.Description != "" {
			// "TypeError: x is not a function\n    at ..." -> message line
			first, _, _ := strings.Cut(ex.Description, "\n")
			if _, after, ok := strings.Cut(first, ": "); ok && name != "" && strings.HasPrefix(first, name) {
				msg = after
			} else {
				msg = first
			}
		} else if s := ex.Value.Str(); s != "" {
			msg = s
		}
	}

	if name == "SyntaxError" {
		return &CompileError{Entry: c.entry, Message: msg}
	}
	return &RuntimeError{Message: msg, Name: name, Stack: stack}
}
