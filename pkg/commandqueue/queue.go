package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is returned for tasks enqueued after, or still queued at, Close
var ErrClosed = errors.New("command queue is closed")

const defaultLane = "default"

// Task is one unit of work run by the queue
type Task = func(ctx context.Context) (any, error)

// Observer receives queue measurements
type Observer interface {
	QueueDepth(lane string, depth int)
	QueueWait(lane string, wait time.Duration)
}

// Options configures a CommandQueue
type Options struct {
	// Concurrency is the number of tasks a lane runs at once (default 1)
	Concurrency int
	// WarnAfter logs tasks still queued after this long; zero disables it
	WarnAfter time.Duration
	Observer  Observer
	Logger    zerolog.Logger
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value any
	err   error
}

type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
}

// LaneStats is a snapshot of one lane
type LaneStats struct {
	Queued      int
	Running     int
	Concurrency int
}

// CommandQueue runs tasks in named lanes, FIFO within a lane and with a
// bounded number running per lane
type CommandQueue struct {
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	lanes  map[string]*laneState
	seq    int
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a CommandQueue
func New(opts Options) *CommandQueue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CommandQueue{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "commandqueue").Logger(),
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// laneLocked returns the lane, creating it with the default concurrency
func (cq *CommandQueue) laneLocked(lane string) *laneState {
	ls, ok := cq.lanes[lane]
	if !ok {
		ls = &laneState{concurrency: cq.opts.Concurrency}
		cq.lanes[lane] = ls
		cq.logger.Debug().Str("lane", lane).Int("concurrency", ls.concurrency).Msg("Lane initialized")
	}
	return ls
}

// Enqueue adds task to lane and blocks until it has run. If ctx ends while
// the task is still queued, it is dropped and ctx.Err() returned; a running
// task sees the cancellation through its own context.
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task) (any, error) {
	if lane == "" {
		lane = defaultLane
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil, ErrClosed
	}
	cq.seq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", lane, cq.seq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}
	ls := cq.laneLocked(lane)
	ls.queue = append(ls.queue, record)
	cq.dispatchLocked(lane, ls)
	depth := len(ls.queue)
	cq.mu.Unlock()

	cq.observeDepth(lane, depth)
	cq.logger.Debug().Str("lane", lane).Str("task_id", record.id).Int("queue_size", depth).Msg("Task enqueued")

	var warn <-chan time.Time
	if cq.opts.WarnAfter > 0 {
		timer := time.NewTimer(cq.opts.WarnAfter)
		defer timer.Stop()
		warn = timer.C
	}

	for {
		select {
		case res := <-record.result:
			return res.value, res.err
		case <-ctx.Done():
			if cq.remove(lane, record) {
				return nil, ctx.Err()
			}
			res := <-record.result
			return res.value, res.err
		case <-warn:
			warn = nil
			if pos := cq.position(lane, record); pos >= 0 {
				cq.logger.Warn().
					Str("lane", lane).
					Str("task_id", record.id).
					Dur("wait", time.Since(record.enqueuedAt)).
					Int("queue_pos", pos).
					Msg("Task waiting longer than expected")
			}
		}
	}
}

// dispatchLocked starts queued tasks while the lane has capacity
func (cq *CommandQueue) dispatchLocked(lane string, ls *laneState) {
	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue[0] = nil
		ls.queue = ls.queue[1:]

		if err := record.ctx.Err(); err != nil {
			record.result <- taskResult{err: err}
			continue
		}

		ls.running++
		cq.wg.Add(1)
		go cq.execute(lane, record)
	}
}

func (cq *CommandQueue) execute(lane string, record *taskRecord) {
	defer cq.wg.Done()

	wait := time.Since(record.enqueuedAt)
	if cq.opts.Observer != nil {
		cq.opts.Observer.QueueWait(lane, wait)
	}

	runCtx, cancel := context.WithCancel(record.ctx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)

	startTime := time.Now()
	value, err := runTask(runCtx, record)
	duration := time.Since(startTime)

	stopCancel()
	cancel()

	cq.mu.Lock()
	ls := cq.lanes[lane]
	ls.running--
	cq.dispatchLocked(lane, ls)
	depth := len(ls.queue)
	cq.mu.Unlock()

	cq.observeDepth(lane, depth)
	record.result <- taskResult{value: value, err: err}

	cq.logger.Debug().
		Str("lane", lane).
		Str("task_id", record.id).
		Dur("wait", wait).
		Dur("duration", duration).
		Bool("success", err == nil).
		Msg("Task completed")
}

func runTask(ctx context.Context, record *taskRecord) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", record.id, r)
		}
	}()
	return record.task(ctx)
}

// remove drops a still-queued record; false means it already started
func (cq *CommandQueue) remove(lane string, record *taskRecord) bool {
	cq.mu.Lock()
	ls := cq.lanes[lane]
	removed := false
	for i, r := range ls.queue {
		if r == record {
			ls.queue = append(ls.queue[:i], ls.queue[i+1:]...)
			removed = true
			break
		}
	}
	depth := len(ls.queue)
	cq.mu.Unlock()

	if removed {
		cq.observeDepth(lane, depth)
	}
	return removed
}

func (cq *CommandQueue) position(lane string, record *taskRecord) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	for i, r := range cq.lanes[lane].queue {
		if r == record {
			return i
		}
	}
	return -1
}

func (cq *CommandQueue) observeDepth(lane string, depth int) {
	if cq.opts.Observer != nil {
		cq.opts.Observer.QueueDepth(lane, depth)
	}
}

// Stats returns a snapshot of every lane
func (cq *CommandQueue) Stats() map[string]LaneStats {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	stats := make(map[string]LaneStats, len(cq.lanes))
	for lane, ls := range cq.lanes {
		stats[lane] = LaneStats{
			Queued:      len(ls.queue),
			Running:     ls.running,
			Concurrency: ls.concurrency,
		}
	}
	return stats
}

// SetConcurrency updates the concurrency limit for one lane
func (cq *CommandQueue) SetConcurrency(lane string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	cq.mu.Lock()
	ls := cq.laneLocked(lane)
	oldMax := ls.concurrency
	ls.concurrency = concurrency
	cq.dispatchLocked(lane, ls)
	cq.mu.Unlock()

	cq.logger.Info().
		Str("lane", lane).
		Int("old_max", oldMax).
		Int("new_max", concurrency).
		Msg("Lane concurrency updated")
}

// SetDefaultConcurrency updates the limit of every lane and of lanes
// created later
func (cq *CommandQueue) SetDefaultConcurrency(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	cq.mu.Lock()
	defer cq.mu.Unlock()
	if cq.opts.Concurrency == concurrency {
		return
	}
	cq.opts.Concurrency = concurrency
	for lane, ls := range cq.lanes {
		ls.concurrency = concurrency
		cq.dispatchLocked(lane, ls)
	}
	cq.logger.Info().Int("concurrency", concurrency).Msg("Queue concurrency updated")
}

// WaitForActive polls until no task is running or queued. It returns false
// if ctx ends first.
func (cq *CommandQueue) WaitForActive(ctx context.Context) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cq.idle() {
			return true
		}
		select {
		case <-ctx.Done():
			cq.logger.Warn().Msg("Timeout waiting for active tasks")
			return false
		case <-ticker.C:
		}
	}
}

func (cq *CommandQueue) idle() bool {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	for _, ls := range cq.lanes {
		if ls.running > 0 || len(ls.queue) > 0 {
			return false
		}
	}
	return true
}

// Close rejects queued tasks with ErrClosed, cancels running ones and waits
// for them to return
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil
	}
	cq.closed = true

	var lanes []string
	rejected := 0
	for lane, ls := range cq.lanes {
		for _, record := range ls.queue {
			record.result <- taskResult{err: ErrClosed}
			rejected++
		}
		ls.queue = nil
		lanes = append(lanes, lane)
	}
	cq.mu.Unlock()

	for _, lane := range lanes {
		cq.observeDepth(lane, 0)
	}

	cq.cancel()
	cq.wg.Wait()

	cq.logger.Info().Int("rejected", rejected).Msg("Command queue closed")
	return nil
}
