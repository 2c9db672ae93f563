// Package gateway serves the browser UI: the tool list, the tool detail view
// with live execution over a websocket, and a JSON run endpoint.
//
// Invariants:
//   - Every websocket connection owns exactly one detail.Controller; closing
//     the connection closes the controller.
//   - Registry mutations go through catalog.Store only.
//   - Results are rendered with render.Classify, never interpreted in the page.
//
// Usage:
//
//	srv, _ := gateway.NewServer(gateway.Config{Port: 3000, Store: store, Runner: engine, Logger: logger})
//	go srv.Start()
//	defer srv.Stop(ctx)
package gateway
