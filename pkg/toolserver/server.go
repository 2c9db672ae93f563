package toolserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/toolstore"
)

// ToolStore persists tools
type ToolStore interface {
	Create(ctx context.Context, tool catalog.Tool) (*catalog.Tool, error)
	List(ctx context.Context) ([]catalog.Tool, error)
	Delete(ctx context.Context, id catalog.ID) (bool, error)
	Search(ctx context.Context, query string, opts *toolstore.SearchOptions) ([]toolstore.SearchResult, error)
}

// Generator turns a query into a descriptor
type Generator interface {
	Generate(ctx context.Context, query string) (catalog.Tool, error)
}

// Auditor records catalog changes
type Auditor interface {
	RecordTool(ctx context.Context, action, actor, status string, metadata map[string]any)
}

// Options configures the server
type Options struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RateLimitPerMinute int
	GenerateTimeout    time.Duration
	// Middlewares wrap every route, outermost first
	Middlewares []func(http.Handler) http.Handler
	// MetricsHandler is mounted at /metrics when set
	MetricsHandler http.Handler
	// Audit receives create and delete events when set
	Audit Auditor
}

// Server is the tool backend HTTP server
type Server struct {
	options     Options
	store       ToolStore
	generator   Generator
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startTime   time.Time

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewServer creates a backend server
func NewServer(options Options, store ToolStore, generator Generator, logger zerolog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("tool store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.GenerateTimeout == 0 {
		options.GenerateTimeout = 2 * time.Minute
	}

	return &Server{
		options:     options,
		store:       store,
		generator:   generator,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

func (s *Server) audit(r *http.Request, action, status string, metadata map[string]any) {
	if s.options.Audit == nil {
		return
	}
	s.options.Audit.RecordTool(r.Context(), action, clientIP(r), status, metadata)
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.options.Middlewares...)
	r.Use(s.cors)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Route("/tools", func(r chi.Router) {
		r.Get("/", s.handleListTools)
		r.Delete("/", s.handleDeleteTool)
		r.Get("/search", s.handleSearch)
	})
	r.With(s.rateLimit).Post("/send", s.handleSend)
	if s.options.MetricsHandler != nil {
		r.Handle("/metrics", s.options.MetricsHandler)
	}

	return r
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.options.Host, fmt.Sprint(s.options.Port))
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.mu.Lock()
	if s.stopped {
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

	s.logger.Info().Str("addr", srv.Addr).Msg("Starting tool backend")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start tool backend: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()

	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down tool backend")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tool backend: %w", err)
	}
	s.logger.Info().Msg("Tool backend stopped")
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.options.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			retryAfter := s.rateLimiter.RetryAfter(ip)
			s.logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Int("retry_after", retryAfter).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
