// Package toolexecutor runs catalog tools: it builds a fresh callable from a
// tool's source on every execution and invokes it with typed arguments.
//
// Invariants:
// - Nothing is cached between executions; a changed Code takes effect on the next run.
// - Errors are returned, never swallowed: coercion, compile and runtime failures reach the caller.
// - Every execution is bounded by a timeout.
//
// Usage:
//
//	rt, _ := sandbox.New(sandbox.DefaultConfig())
//	_ = rt.Start(ctx)
//	engine := toolexecutor.New(rt)
//	value, err := engine.Run(ctx, tool, []any{"5"})
package toolexecutor
