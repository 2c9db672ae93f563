package gateway

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/coercion"
	"github.com/harun/toolshed/pkg/jsvalue"
)

//go:embed templates/*.html
var templateFS embed.FS

// PristineHint is shown in the result region until an input has a value
const PristineHint = "Please enter your inputs."

var pageNames = []string{"list", "detail", "notfound", "loading"}

func loadPages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"float": func(f *float64) string {
			if f == nil {
				return ""
			}
			return jsvalue.String(*f)
		},
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

type pageData struct {
	Title string

	// list
	Query    string
	Type     string
	Types    []string
	Groups   []catalog.Group
	Error    string
	Loading  bool
	Deleting map[catalog.ID]bool
	Total    int

	// detail
	Tool       catalog.Tool
	Inputs     []inputView
	Hint       string
	AutoRun    bool
	DebounceMS int64
}

type inputView struct {
	Index   int
	Kind    string
	Type    catalog.InputType
	Title   string
	Options []catalog.Option
	Min     *float64
	Max     *float64
	Value   string
	Checked bool
	On      string
	Off     string
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := s.pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}

	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error().Err(err).Str("page", name).Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	toolType := r.URL.Query().Get("type")

	registry := s.store.Registry()
	tools := catalog.FilterByType(registry.Search(query), toolType)

	deleting := make(map[catalog.ID]bool)
	for _, t := range tools {
		if s.store.Deleting(t.ID) {
			deleting[t.ID] = true
		}
	}

	s.renderPage(w, http.StatusOK, "list", pageData{
		Title:    "Tools",
		Query:    query,
		Type:     toolType,
		Types:    registry.Types(),
		Groups:   catalog.GroupByType(tools),
		Error:    s.store.Error(),
		Loading:  s.store.Loading(),
		Deleting: deleting,
		Total:    registry.Len(),
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if _, err := s.store.Create(r.Context(), r.PostForm.Get("query")); err != nil {
		s.logger.Debug().Err(err).Msg("Tool creation ignored")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := catalog.ID(chi.URLParam(r, "id"))
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.logger.Debug().Err(err).Str("tool_id", id.String()).Msg("Tool deletion failed")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := catalog.ID(chi.URLParam(r, "id"))

	tool, ok := s.store.Get(id)
	if !ok {
		if s.store.Loading() {
			s.renderPage(w, http.StatusOK, "loading", pageData{Title: "Loading"})
			return
		}
		s.renderPage(w, http.StatusNotFound, "notfound", pageData{Title: "Not found"})
		return
	}

	s.renderPage(w, http.StatusOK, "detail", pageData{
		Title:      tool.Title(),
		Tool:       tool,
		Inputs:     inputViews(tool.Inputs),
		Hint:       PristineHint,
		AutoRun:    s.cfg.AutoRun,
		DebounceMS: s.currentDebounce().Milliseconds(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).Seconds(),
		"tools":    s.store.Registry().Len(),
		"loading":  s.store.Loading(),
		"sessions": s.sessions.Count(),
	})
}

// inputViews prepares form controls with their default values
func inputViews(specs []catalog.InputSpec) []inputView {
	defaults := coercion.Defaults(specs)
	views := make([]inputView, len(specs))
	for i, spec := range specs {
		v := inputView{
			Index:   i,
			Type:    spec.Type,
			Title:   spec.HumanReadableTitle,
			Options: spec.Options,
			Min:     spec.Min,
			Max:     spec.Max,
			Value:   jsvalue.String(defaults[i]),
		}
		if v.Title == "" {
			v.Title = fmt.Sprintf("Input %d", i+1)
		}

		switch {
		case spec.Type == catalog.InputSwitch:
			v.Kind = "switch"
			if len(spec.Options) > 0 {
				v.On = spec.Options[0].Value
			}
			if len(spec.Options) > 1 {
				v.Off = spec.Options[1].Value
			}
		case spec.Type.IsBoolean():
			v.Kind = "checkbox"
		case spec.Type == catalog.InputRange:
			v.Kind = "range"
		case spec.Type == catalog.InputRadio:
			v.Kind = "radio"
		case spec.Type == catalog.InputSelect:
			v.Kind = "select"
		case spec.Type == catalog.InputFile:
			v.Kind = "file"
		default:
			v.Kind = "text"
		}
		if (v.Kind == "radio" || v.Kind == "select") && len(spec.Options) == 0 {
			v.Kind = "text"
		}
		views[i] = v
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
