package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultShutdownTimeout bounds Stop when Wait triggers it
const DefaultShutdownTimeout = 10 * time.Second

// Service is one component the daemon starts in order and stops in reverse.
// Start must not block; Serve, when set, blocks until the service stops and
// runs on its own goroutine.
type Service struct {
	Name  string
	Start func(ctx context.Context) error
	Serve func() error
	Stop  func(ctx context.Context) error
}

// Status represents daemon status
type Status struct {
	Name     string
	Running  bool
	PID      int
	Uptime   time.Duration
	Services []string
}

// Daemon runs a set of services as one process with a PID file
type Daemon struct {
	name     string
	logger   zerolog.Logger
	pidFile  *PIDFile
	services []Service

	errCh chan error

	mu        sync.RWMutex
	started   []Service
	running   bool
	startTime time.Time
}

// New creates a daemon whose PID file lives at <dataDir>/<name>.pid
func New(name, dataDir string, logger zerolog.Logger) *Daemon {
	return &Daemon{
		name:    name,
		logger:  logger.With().Str("daemon", name).Logger(),
		pidFile: NewPIDFile(dataDir, name),
		errCh:   make(chan error, 1),
	}
}

// Add registers a service; services start in the order they are added
func (d *Daemon) Add(svc Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = append(d.services, svc)
}

// PIDFile returns the daemon's PID file
func (d *Daemon) PIDFile() *PIDFile {
	return d.pidFile
}

// Start writes the PID file and starts every service. If one fails, the
// services already started are stopped again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon %s is already running", d.name)
	}
	services := append([]Service(nil), d.services...)
	d.mu.Unlock()

	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Info().
		Str("pid_file", d.pidFile.Path()).
		Int("pid", os.Getpid()).
		Msg("Starting daemon")

	var started []Service
	for _, svc := range services {
		if svc.Start != nil {
			if err := svc.Start(ctx); err != nil {
				stopAll(ctx, d.logger, started)
				_ = d.pidFile.Remove()
				return fmt.Errorf("failed to start %s: %w", svc.Name, err)
			}
		}
		if svc.Serve != nil {
			go d.serve(svc)
		}
		started = append(started, svc)
		d.logger.Debug().Str("service", svc.Name).Msg("Service started")
	}

	d.mu.Lock()
	d.started = started
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Int("services", len(started)).Msg("Daemon started")
	return nil
}

func (d *Daemon) serve(svc Service) {
	if err := svc.Serve(); err != nil {
		d.logger.Error().Err(err).Str("service", svc.Name).Msg("Service failed")
		select {
		case d.errCh <- fmt.Errorf("%s: %w", svc.Name, err):
		default:
		}
	}
}

// Stop stops services in reverse start order and removes the PID file
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon %s is not running", d.name)
	}
	d.running = false
	started := d.started
	d.started = nil
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping daemon")

	err := stopAll(ctx, d.logger, started)
	if rmErr := d.pidFile.Remove(); rmErr != nil {
		err = errors.Join(err, rmErr)
	}

	d.logger.Info().Msg("Daemon stopped")
	return err
}

func stopAll(ctx context.Context, logger zerolog.Logger, services []Service) error {
	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if svc.Stop == nil {
			continue
		}
		if err := svc.Stop(ctx); err != nil {
			logger.Error().Err(err).Str("service", svc.Name).Msg("Failed to stop service")
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until SIGINT/SIGTERM, ctx cancellation or a service failure,
// then stops the daemon. A service failure is returned.
func (d *Daemon) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var cause error
	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
		d.logger.Info().Msg("Context cancelled")
	case cause = <-d.errCh:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
	return cause
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Name: d.name, Running: d.running, PID: os.Getpid()}
	if d.running {
		status.Uptime = time.Since(d.startTime)
	}
	for _, svc := range d.services {
		status.Services = append(status.Services, svc.Name)
	}
	return status
}
