package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolshed/pkg/catalog"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestClient_ListTools(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tools", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":1,"function_title":"f","inputs":[]},{"id":"b","function_title":"g","inputs":[{"type":"text"}]}]`))
	})

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, catalog.ID("1"), tools[0].ID)
	assert.Equal(t, catalog.ID("b"), tools[1].ID)
}

func TestClient_ListTools_SkipsMalformedTools(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"function_title":"f","inputs":[{"type":"select","options":[{"value":2,"label":"Two"}]}]},
			{"id":2,"function_title":"g","inputs":[{"type":"number","min":"low"}]},
			{"id":3,"function_title":"h","inputs":[]}
		]`))
	})

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, catalog.ID("1"), tools[0].ID)
	assert.Equal(t, "2", tools[0].Inputs[0].Options[0].Value)
	assert.Equal(t, catalog.ID("3"), tools[1].ID)
}

func TestClient_ListTools_NotAnArray(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tools":[]}`))
	})

	_, err := client.ListTools(context.Background())
	assert.ErrorContains(t, err, "failed to decode tools")
}

func TestClient_ListTools_Failure(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.ListTools(context.Background())
	assert.Error(t, err)

	unreachable := NewClient("http://127.0.0.1:1", time.Second)
	_, err = unreachable.ListTools(context.Background())
	assert.Error(t, err)
}

func TestClient_CreateTool(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/send", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "double a number", body["query"])

		_, _ = w.Write([]byte(`{"id":"n1","function_title":"double","code":"function double(n){return n*2}","inputs":[{"type":"number"}]}`))
	})

	tool, err := client.CreateTool(context.Background(), "double a number")
	require.NoError(t, err)
	assert.Equal(t, catalog.ID("n1"), tool.ID)
	assert.Equal(t, "double", tool.FunctionTitle)
}

func TestClient_CreateTool_Rejected(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model refused"}`))
	})

	_, err := client.CreateTool(context.Background(), "something")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "model refused")
}

func TestClient_DeleteTool(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "deleted", status: http.StatusOK, body: `{"message":"Deleted successfully"}`},
		{name: "deleted with other status", status: http.StatusAccepted, body: `{"message":"Deleted successfully"}`},
		{name: "deleted after server error", status: http.StatusInternalServerError, body: `{"message":"Deleted successfully"}`},
		{name: "not found", status: http.StatusOK, body: `{"message":"Tool not found"}`, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"db locked"}`, wantErr: true},
		{name: "garbage", status: http.StatusOK, body: `ok`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "x", body["id"])

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := client.DeleteTool(context.Background(), "x")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var delErr *DeleteError
			require.ErrorAs(t, err, &delErr)
			assert.Equal(t, catalog.ID("x"), delErr.ID)
		})
	}
}

func TestClient_Ping(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	assert.NoError(t, client.Ping(context.Background()))
}
