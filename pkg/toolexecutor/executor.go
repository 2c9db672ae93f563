package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/coercion"
	"github.com/harun/toolshed/pkg/sandbox"
)

const defaultTimeout = 30 * time.Second

// Recorder observes finished executions
type Recorder interface {
	RecordExecution(tool string, duration time.Duration, err error)
}

// Queue bounds concurrent executions per lane
type Queue interface {
	Enqueue(ctx context.Context, lane string, task func(ctx context.Context) (any, error)) (any, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeout bounds every execution
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRecorder reports executions to r
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithQueue runs executions through q, one lane per execution source
func WithQueue(q Queue) Option {
	return func(e *Engine) {
		e.queue = q
	}
}

// Engine executes tools on a sandbox runtime
type Engine struct {
	runtime  sandbox.Runtime
	recorder Recorder
	queue    Queue
	timeout  time.Duration
	mu       sync.RWMutex
}

// New creates a new Engine
func New(runtime sandbox.Runtime, opts ...Option) *Engine {
	e := &Engine{
		runtime: runtime,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	log.Info().Dur("timeout", e.timeout).Msg("Tool execution engine initialized")

	return e
}

// SetTimeout changes the execution timeout
func (e *Engine) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

// Timeout returns the execution timeout
func (e *Engine) Timeout() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.timeout
}

// Run coerces raw input values against the tool's inputs and executes it.
func (e *Engine) Run(ctx context.Context, tool catalog.Tool, raw []any) (any, error) {
	args, err := coercion.Coerce(tool.Inputs, raw)
	if err != nil {
		e.record(tool, 0, err)
		return nil, err
	}
	if e.queue == nil {
		return e.Execute(ctx, tool, args)
	}

	lane := ExecContextFromContext(ctx).Lane()
	return e.queue.Enqueue(ctx, lane, func(ctx context.Context) (any, error) {
		return e.Execute(ctx, tool, args)
	})
}

// Execute constructs the tool's callable from its source and invokes it
// with args, waiting for asynchronous results. Failures are returned as
// *sandbox.CompileError, *sandbox.RuntimeError or sandbox.ErrExecutionTimeout.
func (e *Engine) Execute(ctx context.Context, tool catalog.Tool, args []any) (any, error) {
	startTime := time.Now()

	timeout := e.Timeout()
	execCtx := ExecContextFromContext(ctx)
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	logger := log.With().
		Str("tool", tool.FunctionTitle).
		Str("tool_id", tool.ID.String()).
		Logger()
	if execCtx != nil {
		logger = logger.With().Str("session_id", execCtx.SessionID).Str("source", execCtx.Source).Logger()
	}

	callable, err := e.runtime.Construct(tool.Code, tool.FunctionTitle)
	if err != nil {
		logger.Debug().Err(err).Msg("Tool construction failed")
		e.record(tool, time.Since(startTime), err)
		return nil, err
	}

	logger.Debug().Int("args", len(args)).Msg("Executing tool")

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan any, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := callable.Invoke(timeoutCtx, args)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		duration := time.Since(startTime)
		logger.Debug().Dur("duration", duration).Msg("Tool execution completed")
		e.record(tool, duration, nil)
		return result, nil

	case err := <-errChan:
		duration := time.Since(startTime)
		logger.Debug().Dur("duration", duration).Err(err).Msg("Tool execution failed")
		e.record(tool, duration, err)
		return nil, err

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		err := timeoutCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v", sandbox.ErrExecutionTimeout, timeout)
		}
		logger.Warn().Dur("duration", duration).Err(err).Msg("Tool execution timeout")
		e.record(tool, duration, err)
		return nil, err
	}
}

func (e *Engine) record(tool catalog.Tool, duration time.Duration, err error) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordExecution(tool.FunctionTitle, duration, err)
}

// ErrorKind classifies an execution error for metrics and API responses
func ErrorKind(err error) string {
	var argErr *coercion.InvalidArgumentError
	var compileErr *sandbox.CompileError
	var runtimeErr *sandbox.RuntimeError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &argErr):
		return "argument"
	case errors.As(err, &compileErr):
		return "compile"
	case errors.As(err, &runtimeErr):
		return "runtime"
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// ErrorMessage returns the message shown to users for an execution error
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, sandbox.ErrExecutionTimeout) {
		return sandbox.ErrExecutionTimeout.Error()
	}
	return err.Error()
}
