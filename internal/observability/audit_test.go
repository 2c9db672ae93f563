package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_RecordTool(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)

	a.RecordTool(context.Background(), "tool_created", "10.0.0.1", "success", map[string]any{"tool_id": "abc"})

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "tool", event["event_type"])
	assert.Equal(t, "tool_created", event["action"])
	assert.Equal(t, "success", event["status"])
	assert.Equal(t, "10.0.0.1", event["actor"])
	assert.Equal(t, map[string]any{"tool_id": "abc"}, event["metadata"])
	assert.NotEmpty(t, event["timestamp"])
	assert.NotContains(t, event, "request_id")
}

func TestAuditLogger_RequestID(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)

	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.RecordTool(r.Context(), "tool_deleted", "", "not_found", nil)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/tools", nil))

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.NotEmpty(t, event["request_id"])
	assert.NotContains(t, event, "actor")
}

func TestOpenAuditLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")

	for i := 0; i < 2; i++ {
		a, err := OpenAuditLog(path)
		require.NoError(t, err)
		a.RecordTool(context.Background(), "tool_created", "", "success", nil)
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}
