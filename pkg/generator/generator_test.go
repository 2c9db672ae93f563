package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolshed/pkg/catalog"
)

type fakeProvider struct {
	name      string
	responses []string
	errs      []error

	mu       sync.Mutex
	calls    int
	requests []LLMRequest
}

func (p *fakeProvider) Provider() string { return p.name }

func (p *fakeProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	p.requests = append(p.requests, request)

	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	content := ""
	if i < len(p.responses) {
		content = p.responses[i]
	} else if len(p.responses) > 0 {
		content = p.responses[len(p.responses)-1]
	}
	return &LLMResponse{Content: content, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 20}}, nil
}

const qrJSON = `{
  "human_readable_function_title": "QR Code Generator",
  "function_title": "generateQR",
  "function_description": "Creates a QR code image from text",
  "tool_type": "images & videos",
  "code": "async function generateQR(text) { return 'data:image/png;base64,AAAA'; }",
  "inputs": [{"type": "text", "human_readable_title": "Text"}],
  "output": "data:image/png;base64,AAAA"
}`

func testConfig() Config {
	return Config{Model: "test-model", MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestGenerate(t *testing.T) {
	provider := &fakeProvider{name: "fake", responses: []string{qrJSON}}
	gen := New(testConfig(), zerolog.Nop(), provider)

	tool, err := gen.Generate(context.Background(), "  make a QR code  ")
	require.NoError(t, err)
	assert.Equal(t, "generateQR", tool.FunctionTitle)
	assert.Equal(t, "Images & Videos", tool.ToolType)
	assert.Empty(t, tool.ID)
	require.Len(t, tool.Inputs, 1)
	assert.Equal(t, catalog.InputText, tool.Inputs[0].Type)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.True(t, req.JSON)
	assert.Contains(t, req.Prompt, "Analyze the query: make a QR code")
	assert.Contains(t, req.Prompt, `"Images & Videos"`)
}

func TestGenerate_EmptyQuery(t *testing.T) {
	gen := New(testConfig(), zerolog.Nop(), &fakeProvider{name: "fake"})

	_, err := gen.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, catalog.ErrEmptyQuery)
}

func TestGenerate_NoProviders(t *testing.T) {
	gen := New(testConfig(), zerolog.Nop())

	_, err := gen.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestGenerate_InvalidOutput(t *testing.T) {
	provider := &fakeProvider{name: "fake", responses: []string{"I cannot help with that."}}
	gen := New(testConfig(), zerolog.Nop(), provider)

	_, err := gen.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{
		name:      "fake",
		errs:      []error{errors.New("status 503 unavailable"), errors.New("429 rate limit")},
		responses: []string{"", "", qrJSON},
	}
	gen := New(testConfig(), zerolog.Nop(), provider)

	tool, err := gen.Generate(context.Background(), "qr")
	require.NoError(t, err)
	assert.Equal(t, "generateQR", tool.FunctionTitle)
	assert.Equal(t, 3, provider.calls)
}

func TestGenerate_FailsOverToNextProvider(t *testing.T) {
	down := &fakeProvider{name: "down", errs: []error{
		errors.New("502 bad gateway"), errors.New("502 bad gateway"), errors.New("502 bad gateway"),
	}}
	up := &fakeProvider{name: "up", responses: []string{qrJSON}}
	gen := New(testConfig(), zerolog.Nop(), down, up)

	_, err := gen.Generate(context.Background(), "qr")
	require.NoError(t, err)
	assert.Equal(t, 3, down.calls)
	assert.Equal(t, 1, up.calls)
}

func TestGenerate_PermanentErrorStops(t *testing.T) {
	bad := &fakeProvider{name: "bad", errs: []error{errors.New("invalid api key")}}
	next := &fakeProvider{name: "next", responses: []string{qrJSON}}
	gen := New(testConfig(), zerolog.Nop(), bad, next)

	_, err := gen.Generate(context.Background(), "qr")
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 0, next.calls)
}

func TestParseTool(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "bare", content: qrJSON},
		{name: "fenced", content: "```json\n" + qrJSON + "\n```"},
		{name: "fence without language", content: "```\n" + qrJSON + "\n```"},
		{name: "prose around", content: "Here is your tool:\n" + qrJSON + "\nEnjoy!"},
		{name: "truncated", content: qrJSON[:len(qrJSON)/2], wantErr: true},
		{name: "bad identifier", content: strings.Replace(qrJSON, `"generateQR"`, `"generate QR"`, 1), wantErr: true},
		{name: "missing code", content: strings.Replace(qrJSON, `"code"`, `"source"`, 1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, err := ParseTool(tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "QR Code Generator", tool.HumanReadableTitle)
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "Math", normalizeCategory(" math "))
	assert.Equal(t, "", normalizeCategory("Games"))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(errors.New("read: connection reset by peer")))
	assert.True(t, IsRetryableError(errors.New("Rate limit exceeded")))
	assert.False(t, IsRetryableError(errors.New("401 unauthorized")))
}
