package toolstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_GenerateEmbeddings(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", "", option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	assert.Equal(t, 1536, p.Dimension())

	out, err := p.GenerateEmbeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", gotModel)
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.25}}, out)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", "text-embedding-3-large", option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	assert.Equal(t, 3072, p.Dimension())

	_, err := p.GenerateEmbedding(context.Background(), "x")
	assert.Error(t, err)

	_, err = p.GenerateEmbeddings(context.Background(), nil)
	assert.Error(t, err)
}
