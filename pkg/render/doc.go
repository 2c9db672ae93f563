// Package render classifies arbitrary tool results into a closed set of
// display variants and renders them as HTML or terminal text.
//
// Invariants:
// - Classify is pure and total: every value maps to exactly one Kind.
// - Checks run in a fixed order; the first match wins.
// - A string holding a JSON object or array is reinterpreted once, at the top level only.
// - Nesting depth only affects indentation, never bounds recursion.
//
// Usage:
//
//	v := render.Classify(result)
//	html := render.HTML(v)
//	_ = render.WriteText(os.Stdout, v, render.TextOptions{Color: true})
package render
