package gateway

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/detail"
	"github.com/harun/toolshed/pkg/render"
)

// Metrics receives gateway observations
type Metrics interface {
	SessionOpened()
	SessionClosed()
	RecordRender(kind render.Kind)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()           {}
func (nopMetrics) SessionClosed()           {}
func (nopMetrics) RecordRender(render.Kind) {}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Store    *catalog.Store
	Runner   detail.Runner
	Debounce time.Duration
	// AutoRun executes a tool as soon as its detail view opens
	AutoRun        bool
	Metrics        Metrics
	MetricsHandler http.Handler
	Middlewares    []func(http.Handler) http.Handler
	Logger         zerolog.Logger
}

// Server is the browser gateway
type Server struct {
	cfg       Config
	store     *catalog.Store
	runner    detail.Runner
	metrics   Metrics
	logger    zerolog.Logger
	sessions  *SessionRegistry
	upgrader  websocket.Upgrader
	pages     map[string]*template.Template
	startTime time.Time

	mu       sync.RWMutex
	debounce time.Duration
	server   *http.Server
	stopping bool
	conns    sync.WaitGroup
}

// NewServer creates a gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("tool store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = detail.DefaultDebounce
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	pages, err := loadPages()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &Server{
		cfg:       cfg,
		store:     cfg.Store,
		runner:    cfg.Runner,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		sessions:  NewSessionRegistry(),
		pages:     pages,
		debounce:  cfg.Debounce,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}, nil
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cfg.Middlewares...)

	r.Get("/", s.handleList)
	r.Post("/send", s.handleSend)
	r.Post("/tools/{id}/delete", s.handleDelete)
	r.Get("/tool/{id}", s.handleDetail)
	r.Get("/tool/{id}/ws", s.handleWebSocket)
	r.Post("/tool/{id}/run", s.handleRun)
	r.Get("/sessions", s.handleSessions)
	r.Get("/healthz", s.handleHealth)
	if s.cfg.MetricsHandler != nil {
		r.Handle("/metrics", s.cfg.MetricsHandler)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, http.StatusNotFound, "notfound", pageData{Title: "Not found"})
	})

	return r
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info().Str("addr", srv.Addr).Msg("Starting gateway")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	return nil
}

// Stop closes every session and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	srv := s.server
	s.mu.Unlock()

	s.logger.Info().Int("sessions", s.sessions.Count()).Msg("Shutting down gateway")

	for _, sess := range s.sessions.GetAll() {
		sess.writeMu.Lock()
		_ = sess.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		sess.writeMu.Unlock()
		sess.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown gateway: %w", err)
	}
	s.logger.Info().Msg("Gateway stopped")
	return nil
}

// SetDebounce changes the quiet period for sessions opened afterwards and
// for every open session
func (s *Server) SetDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()

	for _, sess := range s.sessions.GetAll() {
		sess.controller.SetDebounce(d)
	}
}

// Sessions returns information about open detail sessions
func (s *Server) Sessions() []SessionInfo {
	return s.sessions.Infos()
}

func (s *Server) currentDebounce() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debounce
}

func (s *Server) isStopping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopping
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
