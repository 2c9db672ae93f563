// Package coercion turns raw input values into typed tool arguments.
//
// Raw values are what a form produces: strings, booleans and numbers. Each
// position is converted according to the declared type of the matching
// InputSpec. Coerce never fails except when a structured (object/json) input
// is not valid JSON.
//
// Usage:
//
//	args, err := coercion.Coerce(tool.Inputs, []any{"5"})
//	var argErr *coercion.InvalidArgumentError
//	if errors.As(err, &argErr) {
//		fmt.Println(argErr.Index)
//	}
package coercion
