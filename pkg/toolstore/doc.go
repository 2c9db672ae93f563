// Package toolstore persists tool descriptors in SQLite for the backend
// server and indexes them for search.
//
// Invariants:
//   - Tool ids are nanoid strings assigned by Create and never reused.
//   - List returns tools in creation order.
//   - Every stored tool has a keyword index row; a vector row exists only
//     when an embedding provider is configured and embedding succeeded.
//
// Keyword search needs SQLite built with FTS5 (build with -tags sqlite_fts5).
//
// Usage:
//
//	store, err := toolstore.Open(toolstore.Config{DBPath: "tools.db", Logger: logger})
//	tool, err := store.Create(ctx, descriptor)
//	results, err := store.Search(ctx, "qr code", nil)
package toolstore
