// Package catalog holds tool descriptors and the registry that lists,
// searches, groups and deletes them.
//
// Invariants:
// - Tool ids are unique within a registry.
// - inputs[i] describes the i-th parameter of the function named function_title.
// - The Store mutates its registry only after the backend confirms a create or delete.
//
// Usage:
//
//	store := catalog.NewStore(backend.NewClient(url), logger)
//	_ = store.Load(ctx)
//	for _, group := range store.Registry().Group() {
//		_ = group.Tools
//	}
package catalog
