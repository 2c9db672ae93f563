package detail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/coercion"
)

// DefaultDebounce is the quiet period after the last edit before a run
const DefaultDebounce = 200 * time.Millisecond

var (
	// ErrNotReady is returned when inputs are edited before the tool is known
	ErrNotReady = errors.New("tool is not ready")

	// ErrClosed is returned when the controller has been closed
	ErrClosed = errors.New("controller is closed")
)

// State is the lifecycle state of a controller
type State string

const (
	StateLoading  State = "loading"
	StateNotFound State = "not_found"
	StateReady    State = "ready"
)

// Source provides tools by id
type Source interface {
	Loading() bool
	Get(id catalog.ID) (catalog.Tool, bool)
}

// Runner coerces raw inputs and executes a tool
type Runner interface {
	Run(ctx context.Context, tool catalog.Tool, raw []any) (any, error)
}

// Snapshot is a copy of the controller state
type Snapshot struct {
	State      State
	Tool       catalog.Tool
	Inputs     []any
	Result     any
	HasResult  bool
	Error      string
	Running    bool
	Pristine   bool // no result yet and every input empty
	Generation uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithDebounce sets the quiet period
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithObserver registers fn to receive a snapshot after every change.
// Calls are serialized; fn must not call back into the controller.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithAutoRun schedules a run as soon as the tool becomes ready
func WithAutoRun(enabled bool) Option {
	return func(c *Controller) {
		c.autoRun = enabled
	}
}

// WithContext sets the parent of every run's context, e.g. to carry a
// toolexecutor.ExecutionContext
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.baseCtx = ctx
	}
}

// Controller owns the execution state of one tool
type Controller struct {
	id       catalog.ID
	source   Source
	runner   Runner
	observer func(Snapshot)
	logger   zerolog.Logger
	autoRun  bool

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	debounce   time.Duration
	state      State
	tool       catalog.Tool
	inputs     []any
	result     any
	hasResult  bool
	execErr    string
	running    bool
	generation uint64
	scheduled  uint64 // sequence of the pending timer
	timer      *time.Timer
	cancel     context.CancelFunc
	closed     bool

	notifyMu sync.Mutex
}

// New creates a controller for the tool id and resolves it against source
func New(id catalog.ID, source Source, runner Runner, opts ...Option) *Controller {
	c := &Controller{
		id:       id,
		source:   source,
		runner:   runner,
		logger:   log.Logger,
		debounce: DefaultDebounce,
		state:    StateLoading,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseCtx, c.baseCancel = context.WithCancel(c.baseCtx)
	c.logger = c.logger.With().Str("tool_id", id.String()).Logger()

	c.Refresh()
	return c
}

// Refresh resolves the tool again while it is not ready, e.g. after the
// registry finished loading. A ready controller keeps its tool.
func (c *Controller) Refresh() State {
	c.mu.Lock()
	if c.closed || c.state == StateReady {
		state := c.state
		c.mu.Unlock()
		return state
	}

	switch tool, ok := c.source.Get(c.id); {
	case ok:
		c.state = StateReady
		c.tool = tool
		c.inputs = coercion.Defaults(tool.Inputs)
		if c.autoRun {
			c.scheduleLocked()
		}
		c.logger.Debug().Str("tool", tool.FunctionTitle).Msg("Tool detail ready")
	case c.source.Loading():
		c.state = StateLoading
	default:
		c.state = StateNotFound
	}
	state := c.state
	c.mu.Unlock()

	c.notify()
	return state
}

// SetInput updates raw input i and restarts the debounce timer
func (c *Controller) SetInput(i int, value any) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state != StateReady:
		c.mu.Unlock()
		return ErrNotReady
	case i < 0 || i >= len(c.inputs):
		c.mu.Unlock()
		return fmt.Errorf("input index %d out of range [0, %d)", i, len(c.inputs))
	}

	c.inputs[i] = value
	c.scheduleLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// SetDebounce changes the quiet period for subsequent edits
func (c *Controller) SetDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce = d
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops the pending run and cancels the in-flight one. Later results
// are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel = nil
	c.mu.Unlock()

	c.baseCancel()
	c.logger.Debug().Msg("Tool detail closed")
}

func (c *Controller) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.scheduled++
	seq := c.scheduled
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(seq) })
}

// fire runs the tool with the current inputs, fenced by generation. A fire
// whose timer was replaced after it started returns without running.
func (c *Controller) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.scheduled {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.state != StateReady {
		c.mu.Unlock()
		return
	}
	if coercion.Pristine(c.inputs) {
		c.mu.Unlock()
		return
	}

	c.generation++
	gen := c.generation
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.running = true
	tool := c.tool
	inputs := append([]any(nil), c.inputs...)
	c.mu.Unlock()

	c.notify()

	start := time.Now()
	value, err := c.runner.Run(ctx, tool, inputs)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		cancel()
		c.logger.Debug().Uint64("generation", gen).Msg("Discarding superseded result")
		return
	}
	cancel()
	c.cancel = nil
	c.running = false
	if err != nil {
		c.execErr = err.Error()
	} else {
		c.result = value
		c.hasResult = true
		c.execErr = ""
	}
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("generation", gen).
		Dur("duration", time.Since(start)).
		Bool("failed", err != nil).
		Msg("Tool run finished")

	c.notify()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:      c.state,
		Tool:       c.tool,
		Inputs:     append([]any(nil), c.inputs...),
		Result:     c.result,
		HasResult:  c.hasResult,
		Error:      c.execErr,
		Running:    c.running,
		Pristine:   !c.hasResult && coercion.Pristine(c.inputs),
		Generation: c.generation,
	}
}

func (c *Controller) notify() {
	if c.observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observer(c.Snapshot())
}
