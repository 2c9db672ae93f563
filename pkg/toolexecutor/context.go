package toolexecutor

import (
	"context"
	"time"
)

// ExecutionContext carries caller information for logging, metrics and
// queueing
type ExecutionContext struct {
	SessionID string        // gateway session or CLI invocation
	Source    string        // "detail", "api", "cli"
	Timeout   time.Duration // overrides the engine timeout when > 0
}

// Lane is the queue lane for executions from this caller
func (e *ExecutionContext) Lane() string {
	if e == nil || e.Source == "" {
		return "default"
	}
	return e.Source
}

type execContextKey struct{}

// ContextWithExecContext returns ctx carrying execCtx; a nil execCtx leaves
// ctx unchanged
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext returns the ExecutionContext attached to ctx, or nil
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	execCtx, _ := ctx.Value(execContextKey{}).(*ExecutionContext)
	return execCtx
}
