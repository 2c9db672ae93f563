// Package cron periodically reloads the tool registry from the backend so
// tools created or deleted elsewhere show up without a restart.
//
// Invariants:
// - At most one reload runs at a time; a tick that fires during a reload is skipped.
// - A failed reload is logged and reported to OnRefresh; the schedule keeps running.
//
// Usage:
//
//	r, err := cron.NewRefresher("@every 5m", store, cron.Options{})
//	if err != nil {
//		return err
//	}
//	r.Start()
//	defer r.Stop(ctx)
package cron
