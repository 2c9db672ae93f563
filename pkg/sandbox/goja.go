package sandbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// GojaRuntime evaluates tools in an embedded ECMAScript interpreter. Every
// invocation gets its own interpreter and event loop, so nothing a tool does
// survives into the next run.
type GojaRuntime struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewGojaRuntime creates a new goja runtime
func NewGojaRuntime(config Config) (*GojaRuntime, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &GojaRuntime{config: config}, nil
}

// Start initializes the runtime
func (g *GojaRuntime) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return ErrSandboxAlreadyRunning
	}

	log.Info().
		Str("engine", string(g.config.Engine)).
		Dur("timeout", g.config.Timeout).
		Msg("Starting goja runtime")

	g.running = true
	return nil
}

// Stop releases the runtime
func (g *GojaRuntime) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return ErrSandboxNotRunning
	}

	log.Info().Msg("Stopping goja runtime")

	g.running = false
	return nil
}

// IsRunning returns whether the runtime is running
func (g *GojaRuntime) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// GetConfig returns the sandbox configuration
func (g *GojaRuntime) GetConfig() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Construct compiles source followed by a reference to entry. The body runs
// on every Invoke, in a fresh interpreter.
func (g *GojaRuntime) Construct(source, entry string) (Callable, error) {
	if !g.IsRunning() {
		return nil, ErrSandboxNotRunning
	}

	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, ErrEmptyEntryPoint
	}

	program, err := goja.Compile(entry+".js", wrapSource(source, entry), false)
	if err != nil {
		return nil, &CompileError{Entry: entry, Message: err.Error()}
	}

	return &gojaCallable{
		program: program,
		entry:   entry,
		config:  g.GetConfig(),
	}, nil
}

// wrapSource turns a declaration list into an expression yielding the entry point
func wrapSource(source, entry string) string {
	return "(function() {\n" + source + "\nreturn " + entry + ";\n})()"
}

type outcome struct {
	value any
	err   error
}

type gojaCallable struct {
	program *goja.Program
	entry   string
	config  Config
}

// Invoke runs the compiled body on a new event loop, calls the entry point
// and waits for its value. Timers and promise callbacks the tool schedules
// keep running until the outcome is known; whatever is left is dropped.
func (c *gojaCallable) Invoke(ctx context.Context, args []any) (any, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	loop := eventloop.NewEventLoop(eventloop.EnableConsole(false))
	loop.Start()

	run := &gojaRun{done: make(chan outcome, 1)}
	loop.RunOnLoop(func(vm *goja.Runtime) {
		c.run(vm, run, args)
	})

	select {
	case out := <-run.done:
		loop.Stop()
		return out.value, out.err
	case <-ctx.Done():
		run.interrupt()
		loop.Stop()
		log.Warn().Str("tool", c.entry).Err(ctx.Err()).Msg("Tool invocation interrupted")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrExecutionTimeout
		}
		return nil, ctx.Err()
	}
}

func (c *gojaCallable) run(vm *goja.Runtime, r *gojaRun, args []any) {
	if !r.attach(vm) {
		return
	}

	if c.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(c.config.MaxCallStackSize)
	}
	installGlobals(vm, c.entry)
	for _, name := range c.config.DisallowedGlobals {
		_ = vm.GlobalObject().Delete(name)
	}

	value, err := vm.RunProgram(c.program)
	if err != nil {
		if terr := thrown(err); errors.Is(terr, ErrExecutionTimeout) {
			r.finish(nil, terr)
		} else {
			r.finish(nil, &CompileError{Entry: c.entry, Message: terr.Error()})
		}
		return
	}

	fn, ok := goja.AssertFunction(value)
	if !ok {
		r.finish(nil, notCallable(c.entry, kindOf(value)))
		return
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = toJS(vm, arg)
	}

	result, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		r.finish(nil, thrown(err))
		return
	}

	settle(vm, r, result)
}

// settle delivers a plain value directly and waits on promises
func settle(vm *goja.Runtime, r *gojaRun, result goja.Value) {
	obj, ok := result.(*goja.Object)
	if !ok {
		r.finish(exportValue(result), nil)
		return
	}

	// promises report class "Object", so only the exported type identifies them
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		r.finish(exportValue(result), nil)
		return
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		r.finish(exportValue(p.Result()), nil)
	case goja.PromiseStateRejected:
		r.finish(nil, thrownValue(p.Result()))
	default:
		then, ok := goja.AssertFunction(obj.Get("then"))
		if !ok {
			r.finish(nil, &RuntimeError{Message: "promise has no then method"})
			return
		}
		onFulfilled := func(call goja.FunctionCall) goja.Value {
			r.finish(exportValue(call.Argument(0)), nil)
			return goja.Undefined()
		}
		onRejected := func(call goja.FunctionCall) goja.Value {
			r.finish(nil, thrownValue(call.Argument(0)))
			return goja.Undefined()
		}
		if _, err := then(obj, vm.ToValue(onFulfilled), vm.ToValue(onRejected)); err != nil {
			r.finish(nil, thrown(err))
		}
	}
}

// gojaRun tracks one invocation so it can be interrupted from outside the loop
type gojaRun struct {
	mu          sync.Mutex
	vm          *goja.Runtime
	interrupted bool
	done        chan outcome
}

func (r *gojaRun) attach(vm *goja.Runtime) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interrupted {
		return false
	}
	r.vm = vm
	return true
}

func (r *gojaRun) interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted = true
	if r.vm != nil {
		r.vm.Interrupt(ErrExecutionTimeout)
	}
}

// finish records the first outcome; later ones are dropped
func (r *gojaRun) finish(value any, err error) {
	select {
	case r.done <- outcome{value: value, err: err}:
	default:
	}
}

func thrown(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		re := thrownValue(ex.Value())
		if re.Stack == "" {
			re.Stack = ex.String()
		}
		return re
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return ErrExecutionTimeout
	}

	return &RuntimeError{Message: err.Error()}
}

// thrownValue mirrors reading err.message from a caught value
func thrownValue(val goja.Value) *RuntimeError {
	if val == nil || goja.IsUndefined(val) {
		return &RuntimeError{Message: "undefined"}
	}

	if obj, ok := val.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			re := &RuntimeError{Message: msg.String()}
			if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
				re.Name = name.String()
			}
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				re.Stack = stack.String()
			}
			return re
		}
	}

	return &RuntimeError{Message: val.String()}
}

func kindOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if _, ok := v.(*goja.Object); ok {
		return "object"
	}
	switch v.Export().(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	}
	return "value"
}

// installGlobals provides the browser globals tools commonly rely on
func installGlobals(vm *goja.Runtime, entry string) {
	console := vm.NewObject()
	levels := map[string]zerolog.Level{
		"log":   zerolog.DebugLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, level := range levels {
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			log.WithLevel(level).Str("tool", entry).Msg(strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)

	_ = vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		b := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				panic(vm.NewTypeError("btoa: string contains characters outside of the Latin1 range"))
			}
			b = append(b, byte(r))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(b))
	})

	_ = vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		b, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("atob: invalid base64 input"))
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return vm.ToValue(string(runes))
	})
}
