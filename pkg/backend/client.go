// Package backend is the HTTP client for the tool backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/harun/toolshed/pkg/catalog"
)

// DeletedMessage is the only response message that confirms a deletion
const DeletedMessage = "Deleted successfully"

// ErrRejected is returned when the backend answers a create request with an
// error field instead of a tool
var ErrRejected = errors.New("tool creation rejected")

// DeleteError reports a deletion the backend did not confirm
type DeleteError struct {
	ID      catalog.ID
	Status  int
	Message string
}

func (e *DeleteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("delete tool %s: %s", e.ID, e.Message)
	}
	return fmt.Sprintf("delete tool %s: unexpected response (status %d)", e.ID, e.Status)
}

// Client talks to the backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListTools fetches every tool (GET /tools)
func (c *Client) ListTools(ctx context.Context) ([]catalog.Tool, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/tools", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("backend error (status %d): %s", status, truncate(body))
	}

	list := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !(list.IsArray() || list.Type == gjson.Null) {
		return nil, fmt.Errorf("failed to decode tools: expected a JSON array, got %s", truncate(body))
	}

	// one malformed descriptor must not hide the rest of the registry
	tools := []catalog.Tool{}
	list.ForEach(func(key, value gjson.Result) bool {
		var tool catalog.Tool
		if err := json.Unmarshal([]byte(value.Raw), &tool); err != nil {
			log.Warn().
				Err(err).
				Int64("index", key.Int()).
				Str("id", value.Get("id").String()).
				Msg("Skipping malformed tool")
			return true
		}
		tools = append(tools, tool)
		return true
	})
	return tools, nil
}

// CreateTool asks the backend to generate a tool from query (POST /send).
// A response carrying an error field yields ErrRejected.
func (c *Client) CreateTool(ctx context.Context, query string) (*catalog.Tool, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/send", map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("backend error (status %d): invalid JSON response", status)
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg.String())
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("backend error (status %d): %s", status, truncate(body))
	}

	var tool catalog.Tool
	if err := json.Unmarshal(body, &tool); err != nil {
		return nil, fmt.Errorf("failed to decode tool: %w", err)
	}
	return &tool, nil
}

// DeleteTool removes a tool (DELETE /tools). Only a "Deleted successfully"
// message counts as success, whatever the status code; anything else is a
// *DeleteError.
func (c *Client) DeleteTool(ctx context.Context, id catalog.ID) error {
	body, status, err := c.do(ctx, http.MethodDelete, "/tools", map[string]catalog.ID{"id": id})
	if err != nil {
		return err
	}

	msg := gjson.GetBytes(body, "message").String()
	if msg == DeletedMessage {
		return nil
	}
	if msg == "" {
		msg = gjson.GetBytes(body, "error").String()
	}
	return &DeleteError{ID: id, Status: status, Message: msg}
}

// Ping checks that the backend answers (GET /)
func (c *Client) Ping(ctx context.Context) error {
	_, status, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("backend unhealthy (status %d)", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
