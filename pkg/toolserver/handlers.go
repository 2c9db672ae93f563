package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/harun/toolshed/pkg/backend"
	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/toolstore"
)

// NotFoundMessage answers a delete of an unknown id
const NotFoundMessage = "Tool not found"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "toolshed backend is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list tools")
		writeError(w, http.StatusInternalServerError, "failed to list tools")
		return
	}
	writeJSON(w, http.StatusOK, tools)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	query := gjson.GetBytes(body, "query").String()

	ctx, cancel := context.WithTimeout(r.Context(), s.options.GenerateTimeout)
	defer cancel()

	tool, err := s.generator.Generate(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("Tool generation failed")
		s.audit(r, "tool_created", "failure", map[string]any{"query": query, "error": err.Error()})
		writeError(w, http.StatusOK, err.Error())
		return
	}

	created, err := s.store.Create(ctx, tool)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to store tool")
		writeError(w, http.StatusInternalServerError, "failed to store tool")
		return
	}
	s.audit(r, "tool_created", "success", map[string]any{
		"tool_id": created.ID.String(),
		"title":   created.HumanReadableTitle,
		"query":   query,
	})

	raw, err := json.Marshal(tool)
	if err == nil {
		raw, err = sjson.SetBytes(raw, "id", created.ID)
	}
	if err != nil {
		writeJSON(w, http.StatusOK, created)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}

	var req struct {
		ID catalog.ID `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	deleted, err := s.store.Delete(r.Context(), req.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("tool_id", req.ID.String()).Msg("Failed to delete tool")
		writeError(w, http.StatusInternalServerError, "failed to delete tool")
		return
	}
	if !deleted {
		s.audit(r, "tool_deleted", "not_found", map[string]any{"tool_id": req.ID.String()})
		writeJSON(w, http.StatusOK, map[string]string{"message": NotFoundMessage})
		return
	}
	s.audit(r, "tool_deleted", "success", map[string]any{"tool_id": req.ID.String()})
	writeJSON(w, http.StatusOK, map[string]string{"message": backend.DeletedMessage})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	opts := toolstore.DefaultSearchOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	results, err := s.store.Search(r.Context(), r.URL.Query().Get("q"), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("Tool search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func readJSON(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	var raw json.RawMessage
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&raw)
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	case err != nil || !gjson.ValidBytes(raw):
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := sjson.SetBytes([]byte(`{}`), "error", msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
