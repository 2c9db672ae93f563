package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/render"
	"github.com/harun/toolshed/pkg/sandbox"
	"github.com/harun/toolshed/pkg/toolexecutor"
)

type fakeRemote struct {
	mu        sync.Mutex
	tools     []catalog.Tool
	listErr   error
	deleteErr error
	created   int
}

func (f *fakeRemote) ListTools(ctx context.Context) ([]catalog.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]catalog.Tool(nil), f.tools...), nil
}

func (f *fakeRemote) CreateTool(ctx context.Context, query string) (*catalog.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	tool := doubleTool()
	tool.ID = "new"
	tool.HumanReadableTitle = query
	return &tool, nil
}

func (f *fakeRemote) DeleteTool(ctx context.Context, id catalog.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

type fakeMetrics struct {
	mu      sync.Mutex
	opened  int
	closed  int
	renders []render.Kind
}

func (f *fakeMetrics) SessionOpened() { f.mu.Lock(); f.opened++; f.mu.Unlock() }
func (f *fakeMetrics) SessionClosed() { f.mu.Lock(); f.closed++; f.mu.Unlock() }
func (f *fakeMetrics) RecordRender(kind render.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, kind)
}

func (f *fakeMetrics) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func doubleTool() catalog.Tool {
	return catalog.Tool{
		ID:                  "1",
		HumanReadableTitle:  "Double",
		FunctionTitle:       "f",
		FunctionDescription: "Multiply by two",
		ToolType:            "Math",
		Code:                "function f(n){ return n*2; }",
		Inputs:              []catalog.InputSpec{{Type: catalog.InputNumber, HumanReadableTitle: "Number", Min: catalog.Float(0)}},
	}
}

func colorTool() catalog.Tool {
	return catalog.Tool{
		ID:                 "2",
		HumanReadableTitle: "Pick color",
		FunctionTitle:      "pick",
		ToolType:           "Design",
		Code:               "function pick(c, loud){ return loud ? c.toUpperCase() : c; }",
		Inputs: []catalog.InputSpec{
			{Type: catalog.InputSelect, HumanReadableTitle: "Color", Options: []catalog.Option{{Value: "red", Label: "Red"}, {Value: "blue", Label: "Blue"}}},
			{Type: catalog.InputCheckbox, HumanReadableTitle: "Loud"},
		},
	}
}

type fixture struct {
	server  *Server
	remote  *fakeRemote
	store   *catalog.Store
	metrics *fakeMetrics
}

func newFixture(t *testing.T, load bool, tools ...catalog.Tool) *fixture {
	t.Helper()

	rt, err := sandbox.NewGojaRuntime(sandbox.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	remote := &fakeRemote{tools: tools}
	store := catalog.NewStore(remote, zerolog.Nop())
	if load {
		require.NoError(t, store.Load(context.Background()))
	}

	metrics := &fakeMetrics{}
	srv, err := NewServer(Config{
		Store:    store,
		Runner:   toolexecutor.New(rt),
		Debounce: 20 * time.Millisecond,
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	return &fixture{server: srv, remote: remote, store: store, metrics: metrics}
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if method == http.MethodPost && body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)

	store := catalog.NewStore(&fakeRemote{}, zerolog.Nop())
	_, err = NewServer(Config{Store: store})
	assert.Error(t, err)

	rt, err := sandbox.NewGojaRuntime(sandbox.DefaultConfig())
	require.NoError(t, err)
	_, err = NewServer(Config{Store: store, Runner: toolexecutor.New(rt), Port: -1})
	assert.Error(t, err)

	srv, err := NewServer(Config{Store: store, Runner: toolexecutor.New(rt)})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", srv.Addr())
}

func TestList_GroupsAndFilters(t *testing.T) {
	f := newFixture(t, true, doubleTool(), colorTool())

	rec := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h2>Math</h2>")
	assert.Contains(t, body, "<h2>Design</h2>")
	assert.Contains(t, body, `href="/tool/1"`)
	assert.Contains(t, body, "Multiply by two")

	rec = f.do(t, http.MethodGet, "/?type=Design", nil)
	body = rec.Body.String()
	assert.Contains(t, body, "Pick color")
	assert.NotContains(t, body, `href="/tool/1"`)

	rec = f.do(t, http.MethodGet, "/?q=multiply", nil)
	body = rec.Body.String()
	assert.Contains(t, body, `href="/tool/1"`)
	assert.NotContains(t, body, `href="/tool/2"`)

	rec = f.do(t, http.MethodGet, "/?q=nothing", nil)
	assert.Contains(t, rec.Body.String(), "No tools match.")
}

func TestList_LoadingAndLoadError(t *testing.T) {
	f := newFixture(t, false)
	assert.Contains(t, f.do(t, http.MethodGet, "/", nil).Body.String(), `id="loading"`)

	f.remote.listErr = errors.New("connection refused")
	_ = f.store.Load(context.Background())
	body := f.do(t, http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, body, catalog.LoadErrorMessage)
	assert.Contains(t, body, "No tools yet.")
}

func TestSendAndDelete(t *testing.T) {
	f := newFixture(t, true, doubleTool())

	rec := f.do(t, http.MethodPost, "/send", strings.NewReader(url.Values{"query": {"triple a number"}}.Encode()))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	_, ok := f.store.Get("new")
	assert.True(t, ok)

	rec = f.do(t, http.MethodPost, "/send", strings.NewReader("query=+++"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, f.remote.created)

	f.remote.deleteErr = errors.New("backend down")
	f.do(t, http.MethodPost, "/tools/1/delete", nil)
	_, ok = f.store.Get("1")
	assert.True(t, ok)
	assert.Contains(t, f.do(t, http.MethodGet, "/", nil).Body.String(), "Deletion error in 1")

	f.remote.deleteErr = nil
	rec = f.do(t, http.MethodPost, "/tools/1/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	_, ok = f.store.Get("1")
	assert.False(t, ok)
	assert.NotContains(t, f.do(t, http.MethodGet, "/", nil).Body.String(), "Deletion error")
}

func TestDetail_RendersInputs(t *testing.T) {
	f := newFixture(t, true, doubleTool(), colorTool())

	rec := f.do(t, http.MethodGet, "/tool/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Pick color</h1>")
	assert.Contains(t, body, `<option value="red" selected>Red</option>`)
	assert.Contains(t, body, `type="checkbox" data-index="1"`)
	assert.Contains(t, body, PristineHint)

	rec = f.do(t, http.MethodGet, "/tool/1", nil)
	assert.Contains(t, rec.Body.String(), `data-type="number">0</textarea>`)
}

func TestDetail_NotFoundAndLoading(t *testing.T) {
	f := newFixture(t, false, doubleTool())

	rec := f.do(t, http.MethodGet, "/tool/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="loading"`)

	require.NoError(t, f.store.Load(context.Background()))
	rec = f.do(t, http.MethodGet, "/tool/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tool not found")

	rec = f.do(t, http.MethodGet, "/no/such/page", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true, doubleTool())

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tools":1`)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestInputViews(t *testing.T) {
	views := inputViews([]catalog.InputSpec{
		{Type: catalog.InputSwitch, Options: []catalog.Option{{Value: "on"}, {Value: "off"}}},
		{Type: catalog.InputRange, Min: catalog.Float(2), Max: catalog.Float(8)},
		{Type: catalog.InputRadio},
		{Type: catalog.InputFile},
		{Type: catalog.InputNumber},
	})

	require.Len(t, views, 5)
	assert.Equal(t, "switch", views[0].Kind)
	assert.Equal(t, "on", views[0].On)
	assert.Equal(t, "off", views[0].Off)
	assert.Equal(t, "range", views[1].Kind)
	assert.Equal(t, "2", views[1].Value)
	assert.Equal(t, "text", views[2].Kind, "radio without options falls back to text")
	assert.Equal(t, "file", views[3].Kind)
	assert.Equal(t, "Input 5", views[4].Title)
}
