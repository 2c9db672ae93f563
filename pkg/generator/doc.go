// Package generator turns a natural-language query into a tool descriptor by
// prompting an LLM for a browser-safe JavaScript function and its inputs.
//
// Invariants:
// - A returned descriptor always passes catalog.Validate.
// - tool_type is one of Categories or empty.
// - Providers are tried in order; a permanent error stops the failover.
//
// Usage:
//
//	provider, _ := generator.NewProvider(generator.ProviderConfig{Provider: "gemini", APIKey: key})
//	gen := generator.New(generator.Config{Model: "gemini-2.0-flash"}, logger, provider)
//	tool, err := gen.Generate(ctx, "make a QR code from text")
package generator
