package sandbox

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolshed/pkg/jsvalue"
)

func newTestRuntime(t *testing.T, mutate ...func(*Config)) *GojaRuntime {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	rt, err := NewGojaRuntime(cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })
	return rt
}

func invoke(t *testing.T, rt Runtime, source, entry string, args ...any) (any, error) {
	t.Helper()

	fn, err := rt.Construct(source, entry)
	if err != nil {
		return nil, err
	}
	return fn.Invoke(context.Background(), args)
}

func TestGojaRuntime_StartStop(t *testing.T) {
	rt, err := NewGojaRuntime(DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = rt.Construct("function f() {}", "f")
	assert.ErrorIs(t, err, ErrSandboxNotRunning)

	require.NoError(t, rt.Start(ctx))
	assert.True(t, rt.IsRunning())
	assert.ErrorIs(t, rt.Start(ctx), ErrSandboxAlreadyRunning)

	require.NoError(t, rt.Stop(ctx))
	assert.False(t, rt.IsRunning())
	assert.ErrorIs(t, rt.Stop(ctx), ErrSandboxNotRunning)
}

func TestGojaRuntime_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = -1

	rt, err := NewGojaRuntime(cfg)
	assert.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestGojaRuntime_SyncFunction(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := invoke(t, rt, "function f(n) { return n * 2; }", "f", 5.0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestGojaRuntime_HelperDeclarations(t *testing.T) {
	rt := newTestRuntime(t)

	source := `
const suffix = "!";
function shout(s) { return s.toUpperCase() + suffix; }
function greet(name) { return shout("hello " + name); }
`
	got, err := invoke(t, rt, source, "greet", "ada")
	require.NoError(t, err)
	assert.Equal(t, "HELLO ADA!", got)
}

func TestGojaRuntime_AsyncFunction(t *testing.T) {
	rt := newTestRuntime(t)

	source := `
async function slow(x) {
  await new Promise(resolve => setTimeout(resolve, 20));
  return x + 1;
}`
	got, err := invoke(t, rt, source, "slow", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestGojaRuntime_ReturnsPromise(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := invoke(t, rt, "function p() { return Promise.resolve('done'); }", "p")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestGojaRuntime_Throws(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := invoke(t, rt, `function f() { throw new Error("bad"); }`, "f")
	require.Error(t, err)

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "bad", re.Message)
	assert.Equal(t, "Error", re.Name)
}

func TestGojaRuntime_ThrowsNonError(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := invoke(t, rt, `function f() { throw "plain"; }`, "f")
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "plain", re.Message)
}

func TestGojaRuntime_Rejects(t *testing.T) {
	rt := newTestRuntime(t)

	source := `
async function f() {
  await new Promise(resolve => setTimeout(resolve, 10));
  throw new TypeError("nope");
}`
	_, err := invoke(t, rt, source, "f")
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nope", re.Message)
	assert.Equal(t, "TypeError", re.Name)
}

func TestGojaRuntime_CompileErrors(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("syntax", func(t *testing.T) {
		_, err := rt.Construct("function f( { return 1 }", "f")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "f", ce.Entry)
	})

	t.Run("not a function", func(t *testing.T) {
		_, err := invoke(t, rt, "const f = 42;", "f")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Message, "not a function")
	})

	t.Run("undefined entry", func(t *testing.T) {
		_, err := invoke(t, rt, "function g() {}", "f")
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Message, "f")
	})

	t.Run("empty entry", func(t *testing.T) {
		_, err := rt.Construct("function f() {}", " ")
		assert.ErrorIs(t, err, ErrEmptyEntryPoint)
	})
}

func TestGojaRuntime_Timeout(t *testing.T) {
	rt := newTestRuntime(t, func(c *Config) { c.Timeout = 100 * time.Millisecond })

	start := time.Now()
	_, err := invoke(t, rt, "function spin() { while (true) {} }", "spin")
	assert.ErrorIs(t, err, ErrExecutionTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = invoke(t, rt, "function never() { return new Promise(() => {}); }", "never")
	assert.ErrorIs(t, err, ErrExecutionTimeout)
}

func TestGojaRuntime_ContextCancel(t *testing.T) {
	rt := newTestRuntime(t)

	fn, err := rt.Construct("function spin() { while (true) {} }", "spin")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = fn.Invoke(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGojaRuntime_FreshStatePerInvoke(t *testing.T) {
	rt := newTestRuntime(t)

	fn, err := rt.Construct("var count = 0; function inc() { count++; return count; }", "inc")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := fn.Invoke(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1.0, got)
	}
}

func TestGojaRuntime_ObjectKeyOrder(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := invoke(t, rt, `function f() { return { zeta: 1, alpha: [1, "two", null], mid: { b: true, a: undefined } }; }`, "f")
	require.NoError(t, err)

	obj, ok := got.(*jsvalue.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

	alpha, _ := obj.Get("alpha")
	assert.Equal(t, []any{1.0, "two", nil}, alpha)

	mid, _ := obj.Get("mid")
	assert.Equal(t, []string{"b", "a"}, mid.(*jsvalue.Object).Keys())
}

func TestGojaRuntime_Arguments(t *testing.T) {
	rt := newTestRuntime(t)

	arg := jsvalue.ObjectOf("b", 2.0, "a", []any{true, "x"})
	got, err := invoke(t, rt, "function keys(o) { return Object.keys(o).join(',') + ':' + o.a[1]; }", "keys", arg)
	require.NoError(t, err)
	assert.Equal(t, "b,a:x", got)

	got, err = invoke(t, rt, "function isNaNArg(n) { return Number.isNaN(n); }", "isNaNArg", math.NaN())
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestGojaRuntime_OpaqueValues(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := invoke(t, rt, "function f() { const o = { name: 'loop' }; o.self = o; return o; }", "f")
	require.NoError(t, err)
	self, _ := got.(*jsvalue.Object).Get("self")
	assert.Equal(t, "Circular", self.(jsvalue.Opaque).Class)

	got, err = invoke(t, rt, "function f() { return function inner() {}; }", "f")
	require.NoError(t, err)
	assert.Equal(t, "Function", got.(jsvalue.Opaque).Class)

	got, err = invoke(t, rt, "function f() {}", "f")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGojaRuntime_BrowserGlobals(t *testing.T) {
	rt := newTestRuntime(t)

	got, err := invoke(t, rt, "function b64(s) { console.log('encoding', s); return atob(btoa(s)) + ':' + btoa(s); }", "b64", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi:aGk=", got)
}

func TestGojaRuntime_DisallowedGlobals(t *testing.T) {
	rt := newTestRuntime(t, func(c *Config) { c.DisallowedGlobals = []string{"eval"} })

	_, err := invoke(t, rt, "function f() { return eval('1 + 1'); }", "f")
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "eval")
}

func TestGojaRuntime_StackLimit(t *testing.T) {
	rt := newTestRuntime(t, func(c *Config) { c.MaxCallStackSize = 100 })

	_, err := invoke(t, rt, "function down(n) { return down(n + 1); }", "down", 0.0)
	assert.Error(t, err)
}
