package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: "anthropic", want: "anthropic"},
		{provider: "openai", want: "openai"},
		{provider: "gemini", want: "gemini"},
		{provider: "cohere", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(ProviderConfig{Provider: tt.provider, APIKey: "k"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Provider())
		})
	}

	_, err := NewProvider(ProviderConfig{Provider: "openai"})
	assert.Error(t, err)
}

func TestOpenAIProvider_Call(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"ok\":true}"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`))
	}))
	defer server.Close()

	p := NewGeminiProvider("k", server.URL)
	resp, err := p.Call(context.Background(), LLMRequest{Model: "m", SystemPrompt: "sys", Prompt: "hi", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, 3, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)

	assert.Equal(t, "m", body["model"])
	messages, _ := body["messages"].([]any)
	assert.Len(t, messages, 2)
	format, _ := body["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestNewProvider_PinnedModel(t *testing.T) {
	var model string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		model, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{}"}}]
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(ProviderConfig{Provider: "openai", APIKey: "k", BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Provider())

	_, err = p.Call(context.Background(), LLMRequest{Model: "gemini-2.0-flash", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestAnthropicProvider_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude",
			"content": [{"type": "text", "text": "part one "}, {"type": "text", "text": "part two"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 6}
		}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("k", server.URL)
	resp, err := p.Call(context.Background(), LLMRequest{Model: "claude", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, 5, resp.Usage.InputTokens)
}
