package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/harun/toolshed/internal/config"
	"github.com/harun/toolshed/internal/logger"
	"github.com/harun/toolshed/internal/metrics"
	"github.com/harun/toolshed/pkg/backend"
	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/commandqueue"
	"github.com/harun/toolshed/pkg/cron"
	"github.com/harun/toolshed/pkg/gateway"
	"github.com/harun/toolshed/pkg/sandbox"
	"github.com/harun/toolshed/pkg/toolexecutor"
)

// GatewayName names the browser gateway daemon and its PID file
const GatewayName = "serve"

// Gateway is the assembled browser front end
type Gateway struct {
	*Daemon
	Server  *gateway.Server
	Store   *catalog.Store
	Engine  *toolexecutor.Engine
	Queue   *commandqueue.CommandQueue
	Metrics *metrics.Metrics
}

// NewGateway wires the gateway: backend client, registry store, execution
// engine, optional registry refresh and config hot reload. loader may be
// nil to disable hot reload.
func NewGateway(cfg *config.Config, loader *config.Loader, log *logger.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := metrics.NewMetrics()

	sandboxCfg := cfg.SandboxConfig()
	rt, err := sandbox.New(sandboxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	queue := commandqueue.New(commandqueue.Options{
		Concurrency: cfg.Runtime.MaxConcurrent,
		WarnAfter:   sandboxCfg.Timeout,
		Observer:    m,
		Logger:      log.Component("queue"),
	})
	engine := toolexecutor.New(rt,
		toolexecutor.WithRecorder(m),
		toolexecutor.WithTimeout(sandboxCfg.Timeout),
		toolexecutor.WithQueue(queue),
	)

	client := backend.NewClient(cfg.Backend.URL, cfg.BackendTimeout())
	store := catalog.NewStore(client, log.Component("catalog"))

	var metricsHandler http.Handler
	if cfg.Gateway.Metrics {
		metricsHandler = m.Handler()
	}

	srv, err := gateway.NewServer(gateway.Config{
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		Store:          store,
		Runner:         engine,
		Debounce:       cfg.Debounce(),
		AutoRun:        cfg.Detail.RunOnOpen,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		Middlewares:    []func(http.Handler) http.Handler{m.Middleware("gateway")},
		Logger:         log.Component("gateway"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	d := New(GatewayName, cfg.DataDir, log.Component("daemon"))
	g := &Gateway{Daemon: d, Server: srv, Store: store, Engine: engine, Queue: queue, Metrics: m}

	d.Add(Service{Name: "runtime", Start: rt.Start, Stop: rt.Stop})
	d.Add(Service{
		Name: "queue",
		Stop: func(ctx context.Context) error {
			queue.WaitForActive(ctx)
			return queue.Close()
		},
	})
	d.Add(Service{
		Name: "registry",
		Start: func(context.Context) error {
			go g.load(cfg)
			return nil
		},
	})

	if cfg.Registry.RefreshSchedule != "" {
		refreshLog := log.Component("registry_refresh")
		refresher, err := cron.NewRefresher(cfg.Registry.RefreshSchedule, store, cron.Options{
			Timeout: cfg.BackendTimeout(),
			OnRefresh: func(err error) {
				if err == nil {
					m.SetRegistrySize(store.Registry().Len())
				}
			},
			Logger: &refreshLog,
		})
		if err != nil {
			return nil, fmt.Errorf("registry.refresh_schedule: %w", err)
		}
		d.Add(Service{
			Name: "refresher",
			Start: func(context.Context) error {
				refresher.Start()
				return nil
			},
			Stop: refresher.Stop,
		})
	}

	if loader != nil {
		if svc, ok := g.watchService(loader, log); ok {
			d.Add(svc)
		}
	}

	d.Add(Service{Name: "gateway", Serve: srv.Start, Stop: srv.Stop})

	return g, nil
}

func (g *Gateway) load(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.BackendTimeout())
	defer cancel()
	if err := g.Store.Load(ctx); err != nil {
		return
	}
	g.Metrics.SetRegistrySize(g.Store.Registry().Len())
}

// watchService reloads the log level, debounce, execution timeout and
// concurrency when the config file changes. It is skipped when the config directory does not
// exist yet.
func (g *Gateway) watchService(loader *config.Loader, log *logger.Logger) (Service, bool) {
	path := loader.GetConfigPath()
	if path == "" {
		return Service{}, false
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return Service{}, false
	}

	watchLog := log.Component("config")
	watcher, err := config.NewWatcher(loader, func(next *config.Config) {
		if err := logger.SetLevel(next.Logging.Level); err != nil {
			watchLog.Warn().Err(err).Str("level", next.Logging.Level).Msg("Ignoring invalid log level")
		}
		g.Server.SetDebounce(next.Debounce())
		g.Engine.SetTimeout(next.SandboxConfig().Timeout)
		g.Queue.SetDefaultConcurrency(next.Runtime.MaxConcurrent)
		watchLog.Info().
			Str("level", next.Logging.Level).
			Dur("debounce", next.Debounce()).
			Msg("Configuration reloaded")
	})
	if err != nil {
		watchLog.Warn().Err(err).Msg("Config hot reload disabled")
		return Service{}, false
	}

	return Service{
		Name:  "config_watcher",
		Start: func(context.Context) error { return watcher.Start() },
		Stop:  func(context.Context) error { return watcher.Stop() },
	}, true
}
