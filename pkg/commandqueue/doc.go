// Package commandqueue bounds concurrent work per lane. Tool executions are
// queued by source (detail page, API, CLI) so a burst from one caller cannot
// starve the others.
//
// Invariants:
// - Tasks in the same lane start in FIFO order.
// - At most Concurrency tasks of a lane run at once; lanes are independent.
// - A task dropped by its caller before it starts never runs.
// - After Close no task starts; queued tasks fail with ErrClosed.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.Options{Concurrency: 4})
//	defer queue.Close()
//	result, err := queue.Enqueue(ctx, "detail", func(ctx context.Context) (any, error) {
//		return "ok", nil
//	})
package commandqueue
