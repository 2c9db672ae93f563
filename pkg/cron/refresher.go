package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrStopped is returned by RefreshNow after Stop
var ErrStopped = errors.New("refresher is stopped")

// Loader reloads the tool registry from its backend
type Loader interface {
	Load(ctx context.Context) error
}

// Status describes the refresher's recent activity
type Status struct {
	Schedule string    `json:"schedule"`
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run,omitempty"`
}

// Options configures a Refresher
type Options struct {
	// Timeout bounds a single reload (default 30s)
	Timeout time.Duration
	// OnRefresh is called after every reload with its outcome
	OnRefresh func(err error)
	Logger    *zerolog.Logger
}

// Refresher reloads the registry on a cron schedule
type Refresher struct {
	expr    string
	loader  Loader
	cron    *cron.Cron
	entry   cron.EntryID
	timeout time.Duration
	hook    func(error)
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	runs     int
	failures int
	lastRun  time.Time
	lastErr  error
	stopped  bool
}

// NewRefresher schedules loader.Load according to expr. Nothing runs until
// Start is called.
func NewRefresher(expr string, loader Loader, opts Options) (*Refresher, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if _, err := ParseSchedule(expr); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "registry_refresh").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		expr:    expr,
		loader:  loader,
		timeout: opts.Timeout,
		hook:    opts.OnRefresh,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	cl := cronLogger{logger: logger}
	r.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	entry, err := r.cron.AddFunc(expr, func() {
		_ = r.RefreshNow(r.ctx)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule refresh: %w", err)
	}
	r.entry = entry

	return r, nil
}

// Start begins running the schedule in the background
func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Info().
		Str("schedule", r.expr).
		Time("next_run", r.cron.Entry(r.entry).Next).
		Msg("Registry refresh scheduled")
}

// Stop halts the schedule and waits for a running reload, bounded by ctx
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.cancel()
		return fmt.Errorf("failed to stop refresher: %w", ctx.Err())
	}
	r.cancel()
	r.logger.Info().Msg("Registry refresh stopped")
	return nil
}

// RefreshNow reloads the registry immediately
func (r *Refresher) RefreshNow(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.loader.Load(ctx)

	r.mu.Lock()
	r.runs++
	r.lastRun = start
	r.lastErr = err
	if err != nil {
		r.failures++
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Registry refresh failed")
	} else {
		r.logger.Debug().Dur("duration", time.Since(start)).Msg("Registry refreshed")
	}

	if r.hook != nil {
		r.hook(err)
	}
	return err
}

// Status returns a snapshot of the refresher
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Schedule: r.expr,
		Runs:     r.runs,
		Failures: r.failures,
		LastRun:  r.lastRun,
	}
	if r.lastErr != nil {
		st.LastErr = r.lastErr.Error()
	}
	if !r.stopped {
		st.NextRun = r.cron.Entry(r.entry).Next
	}
	return st
}
