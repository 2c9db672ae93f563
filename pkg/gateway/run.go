package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/render"
	"github.com/harun/toolshed/pkg/toolexecutor"
)

// RunRequest runs a tool once with raw input values
type RunRequest struct {
	Inputs []any `json:"inputs"`
}

// RunResponse is the rendered outcome of a run
type RunResponse struct {
	Kind      render.Kind `json:"kind,omitempty"`
	HTML      string      `json:"html,omitempty"`
	Text      string      `json:"text,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.isStopping() {
		writeJSON(w, http.StatusServiceUnavailable, RunResponse{Error: "server is shutting down"})
		return
	}

	id := catalog.ID(chi.URLParam(r, "id"))
	tool, ok := s.store.Get(id)
	if !ok {
		if s.store.Loading() {
			writeJSON(w, http.StatusServiceUnavailable, RunResponse{Error: "tools are still loading"})
			return
		}
		writeJSON(w, http.StatusNotFound, RunResponse{Error: "Tool not found"})
		return
	}

	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, RunResponse{Error: "invalid JSON body"})
		return
	}

	ctx := toolexecutor.ContextWithExecContext(r.Context(), &toolexecutor.ExecutionContext{
		SessionID: middleware.GetReqID(r.Context()),
		Source:    "api",
	})

	value, err := s.runner.Run(ctx, tool, req.Inputs)
	if err != nil {
		writeJSON(w, http.StatusOK, RunResponse{
			Error:     toolexecutor.ErrorMessage(err),
			ErrorKind: toolexecutor.ErrorKind(err),
		})
		return
	}

	variant := render.Classify(value)
	s.metrics.RecordRender(variant.Kind)

	var text bytes.Buffer
	_ = render.WriteText(&text, variant, render.TextOptions{})

	writeJSON(w, http.StatusOK, RunResponse{
		Kind: variant.Kind,
		HTML: string(render.HTML(variant)),
		Text: text.String(),
	})
}
