package toolexecutor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/coercion"
	"github.com/harun/toolshed/pkg/sandbox"
)

type fakeRecorder struct {
	mu    sync.Mutex
	tools []string
	errs  []error
}

func (f *fakeRecorder) RecordExecution(tool string, duration time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, tool)
	f.errs = append(f.errs, err)
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	cfg := sandbox.DefaultConfig()
	rt, err := sandbox.NewGojaRuntime(cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	return New(rt, opts...)
}

func doubleTool() catalog.Tool {
	return catalog.Tool{
		ID:            "1",
		FunctionTitle: "f",
		Code:          "function f(n){ return n*2; }",
		Inputs:        []catalog.InputSpec{{Type: catalog.InputNumber, Min: catalog.Float(0)}},
	}
}

func TestEngine_RunDoublesNumber(t *testing.T) {
	rec := &fakeRecorder{}
	engine := newEngine(t, WithRecorder(rec))

	got, err := engine.Run(context.Background(), doubleTool(), []any{"5"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	require.Len(t, rec.tools, 1)
	assert.Equal(t, "f", rec.tools[0])
	assert.NoError(t, rec.errs[0])
}

func TestEngine_ThrownErrorPropagates(t *testing.T) {
	engine := newEngine(t)
	tool := catalog.Tool{
		FunctionTitle: "f",
		Code:          `function f() { throw new Error("bad"); }`,
		Inputs:        []catalog.InputSpec{{Type: catalog.InputText}},
	}

	_, err := engine.Run(context.Background(), tool, []any{"x"})
	require.Error(t, err)
	assert.Equal(t, "bad", err.Error())
	assert.Equal(t, "runtime", ErrorKind(err))
}

func TestEngine_NoCaching(t *testing.T) {
	engine := newEngine(t)
	tool := doubleTool()

	got, err := engine.Execute(context.Background(), tool, []any{2.0})
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	tool.Code = "function f(n){ return n*3; }"
	got, err = engine.Execute(context.Background(), tool, []any{2.0})
	require.NoError(t, err)
	assert.Equal(t, 6.0, got)
}

func TestEngine_AsyncAndSyncAwaitedUniformly(t *testing.T) {
	engine := newEngine(t)

	syncTool := catalog.Tool{FunctionTitle: "f", Code: "function f(s) { return s + '!'; }"}
	asyncTool := catalog.Tool{FunctionTitle: "f", Code: "async function f(s) { return s + '!'; }"}

	a, err := engine.Execute(context.Background(), syncTool, []any{"hi"})
	require.NoError(t, err)
	b, err := engine.Execute(context.Background(), asyncTool, []any{"hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", a)
	assert.Equal(t, a, b)
}

func TestEngine_CoercionError(t *testing.T) {
	rec := &fakeRecorder{}
	engine := newEngine(t, WithRecorder(rec))
	tool := catalog.Tool{
		FunctionTitle: "f",
		Code:          "function f(a, b) { return b; }",
		Inputs:        []catalog.InputSpec{{Type: catalog.InputText}, {Type: catalog.InputJSON}},
	}

	_, err := engine.Run(context.Background(), tool, []any{"x", "{oops"})
	var argErr *coercion.InvalidArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, 2, argErr.Index)
	assert.Equal(t, "argument", ErrorKind(err))
	require.Len(t, rec.errs, 1)
	assert.Error(t, rec.errs[0])
}

func TestEngine_CompileError(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.Execute(context.Background(), catalog.Tool{FunctionTitle: "f", Code: "function f( {"}, nil)
	assert.Equal(t, "compile", ErrorKind(err))
}

func TestEngine_Timeout(t *testing.T) {
	engine := newEngine(t, WithTimeout(100*time.Millisecond))
	tool := catalog.Tool{FunctionTitle: "spin", Code: "function spin() { for (;;) {} }"}

	_, err := engine.Execute(context.Background(), tool, nil)
	assert.ErrorIs(t, err, sandbox.ErrExecutionTimeout)
	assert.Equal(t, "timeout", ErrorKind(err))
	assert.Equal(t, "execution timed out", ErrorMessage(err))
}

func TestEngine_ExecContextTimeout(t *testing.T) {
	engine := newEngine(t)
	tool := catalog.Tool{FunctionTitle: "spin", Code: "function spin() { for (;;) {} }"}

	ctx := ContextWithExecContext(context.Background(), &ExecutionContext{
		SessionID: "s1",
		Source:    "api",
		Timeout:   50 * time.Millisecond,
	})

	start := time.Now()
	_, err := engine.Execute(ctx, tool, nil)
	assert.ErrorIs(t, err, sandbox.ErrExecutionTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEngine_SetTimeout(t *testing.T) {
	engine := newEngine(t)
	assert.Equal(t, defaultTimeout, engine.Timeout())

	engine.SetTimeout(time.Second)
	assert.Equal(t, time.Second, engine.Timeout())

	engine.SetTimeout(0)
	assert.Equal(t, time.Second, engine.Timeout())
}

func TestExecContext(t *testing.T) {
	assert.Nil(t, ExecContextFromContext(context.Background()))

	execCtx := &ExecutionContext{SessionID: "abc"}
	ctx := ContextWithExecContext(context.Background(), execCtx)
	assert.Same(t, execCtx, ExecContextFromContext(ctx))

	assert.Equal(t, context.Background(), ContextWithExecContext(context.Background(), nil))

	var none *ExecutionContext
	assert.Equal(t, "default", none.Lane())
	assert.Equal(t, "default", execCtx.Lane())
	assert.Equal(t, "cli", (&ExecutionContext{Source: "cli"}).Lane())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "canceled", ErrorKind(context.Canceled))
	assert.Equal(t, "internal", ErrorKind(errors.New("boom")))
	assert.Equal(t, "", ErrorMessage(nil))
}

type laneQueue struct {
	mu    sync.Mutex
	lanes []string
}

func (q *laneQueue) Enqueue(ctx context.Context, lane string, task func(ctx context.Context) (any, error)) (any, error) {
	q.mu.Lock()
	q.lanes = append(q.lanes, lane)
	q.mu.Unlock()
	return task(ctx)
}

func TestEngine_RunUsesQueueLane(t *testing.T) {
	queue := &laneQueue{}
	engine := newEngine(t, WithQueue(queue))

	got, err := engine.Run(context.Background(), doubleTool(), []any{"2"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	ctx := ContextWithExecContext(context.Background(), &ExecutionContext{Source: "detail"})
	_, err = engine.Run(ctx, doubleTool(), []any{"3"})
	require.NoError(t, err)

	// coercion failures never reach the queue
	jsonTool := catalog.Tool{
		FunctionTitle: "f",
		Code:          "function f(a) { return a; }",
		Inputs:        []catalog.InputSpec{{Type: catalog.InputJSON}},
	}
	_, err = engine.Run(ctx, jsonTool, []any{"{oops"})
	require.Error(t, err)

	assert.Equal(t, []string{"default", "detail"}, queue.lanes)
}
