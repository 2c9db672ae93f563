// Package detail drives the detail view of a single tool: it holds the raw
// input values, re-runs the tool shortly after the user stops editing, and
// keeps the latest result and error.
//
// Invariants:
// - At most one execution is scheduled at a time; every edit restarts the delay.
// - Nothing runs while every input is empty.
// - Only the latest execution may update the state; older ones are cancelled and discarded.
// - A failed execution sets the error and keeps the previous result.
// - Close stops the pending timer and cancels the in-flight execution.
//
// Usage:
//
//	c := detail.New(id, store, engine, detail.WithObserver(func(s detail.Snapshot) { ... }))
//	defer c.Close()
//	_ = c.SetInput(0, "5")
package detail
