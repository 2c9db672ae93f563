package daemon

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/harun/toolshed/internal/config"
	"github.com/harun/toolshed/internal/logger"
	"github.com/harun/toolshed/internal/metrics"
	"github.com/harun/toolshed/internal/observability"
	"github.com/harun/toolshed/pkg/generator"
	"github.com/harun/toolshed/pkg/toolserver"
	"github.com/harun/toolshed/pkg/toolstore"
)

// BackendName names the tool backend daemon and its PID file
const BackendName = "backend"

// Backend is the assembled tool backend
type Backend struct {
	*Daemon
	Server *toolserver.Server
	Store  *toolstore.Store
}

// NewBackend wires the tool backend: SQLite store with optional embeddings,
// the generator over the configured profiles, and the REST server.
func NewBackend(cfg *config.Config, log *logger.Logger) (*Backend, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	providers, err := Providers(cfg.Generator.Profiles)
	if err != nil {
		return nil, err
	}

	var embedder toolstore.EmbeddingProvider
	if emb := cfg.Generator.Embeddings; emb.Enabled {
		var opts []option.RequestOption
		if emb.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(emb.BaseURL))
		}
		embedder = toolstore.NewOpenAIProvider(emb.APIKey, emb.Model, opts...)
	}

	store, err := toolstore.Open(toolstore.Config{
		DBPath:            cfg.Server.DBPath,
		Logger:            log.Component("toolstore"),
		EmbeddingProvider: embedder,
	})
	if err != nil {
		return nil, err
	}

	gen := generator.New(generator.Config{
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		MaxRetries:  cfg.Generator.MaxRetries,
		RetryDelay:  time.Second,
	}, log.Component("generator"), providers...)

	m := metrics.NewMetrics()
	var metricsHandler http.Handler
	if cfg.Server.Metrics {
		metricsHandler = m.Handler()
	}

	var audit *observability.AuditLogger
	if cfg.Server.Audit {
		audit, err = observability.OpenAuditLog(filepath.Join(cfg.DataDir, "audit.log"))
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	opts := toolserver.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		GenerateTimeout:    time.Duration(cfg.Server.GenerateTimeout) * time.Second,
		Middlewares:        []func(http.Handler) http.Handler{m.Middleware("backend")},
		MetricsHandler:     metricsHandler,
	}
	if audit != nil {
		opts.Audit = audit
	}

	srv, err := toolserver.NewServer(opts, store, gen, log.Component("toolserver"))
	if err != nil {
		store.Close()
		if audit != nil {
			audit.Close()
		}
		return nil, fmt.Errorf("failed to create backend server: %w", err)
	}

	d := New(BackendName, cfg.DataDir, log.Component("daemon"))
	d.Add(Service{
		Name: "toolstore",
		Start: func(ctx context.Context) error {
			tools, err := store.List(ctx)
			if err != nil {
				return err
			}
			m.SetRegistrySize(len(tools))
			return nil
		},
		Stop: func(context.Context) error { return store.Close() },
	})
	if audit != nil {
		d.Add(Service{Name: "audit", Stop: func(context.Context) error { return audit.Close() }})
	}
	d.Add(Service{Name: "toolserver", Serve: srv.Start, Stop: srv.Stop})

	return &Backend{Daemon: d, Server: srv, Store: store}, nil
}

// Providers builds generator providers from profiles, lowest priority
// number first
func Providers(profiles []config.AIProfile) ([]generator.LLMProvider, error) {
	sorted := append([]config.AIProfile(nil), profiles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	providers := make([]generator.LLMProvider, 0, len(sorted))
	for _, profile := range sorted {
		p, err := generator.NewProvider(generator.ProviderConfig{
			Provider: profile.Provider,
			APIKey:   profile.APIKey,
			BaseURL:  profile.BaseURL,
			Model:    profile.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("generator profile %s: %w", profile.ID, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
