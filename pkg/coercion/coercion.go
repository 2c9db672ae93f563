package coercion

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/jsvalue"
)

// InvalidArgumentError reports a structured input that is not valid JSON.
// Index is 1-based.
type InvalidArgumentError struct {
	Index int
	Err   error
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("Invalid JSON input at argument %d", e.Index)
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.Err
}

var floatPrefix = regexp.MustCompile(`^[+-]?(Infinity|\d+\.?\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)`)

// Coerce converts raw input values into the argument list for a tool call,
// one argument per spec. Missing raw values are treated as empty strings.
func Coerce(specs []catalog.InputSpec, raw []any) ([]any, error) {
	args := make([]any, len(specs))
	for i, spec := range specs {
		var value any = ""
		if i < len(raw) {
			value = raw[i]
		}

		arg, err := coerceOne(spec, value)
		if err != nil {
			return nil, &InvalidArgumentError{Index: i + 1, Err: err}
		}
		args[i] = arg
	}
	return args, nil
}

func coerceOne(spec catalog.InputSpec, value any) (any, error) {
	switch {
	case spec.Type.IsStructured():
		text, ok := value.(string)
		if !ok {
			return jsvalue.Normalize(value), nil
		}
		return jsvalue.Parse(text)
	case spec.Type == catalog.InputNumber:
		return ParseFloat(value), nil
	case spec.Type == catalog.InputSwitch && len(spec.Options) > 0:
		s, ok := value.(string)
		return ok && s == spec.Options[0].Value, nil
	case spec.Type.IsBoolean():
		return isTrue(value), nil
	default:
		return value, nil
	}
}

func isTrue(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// ParseFloat converts a raw value to a number the way JavaScript's
// parseFloat does: the longest numeric prefix of the trimmed text wins and
// anything unparsable is NaN.
func ParseFloat(value any) float64 {
	switch v := jsvalue.Normalize(value).(type) {
	case float64:
		return v
	case string:
		return parseFloatPrefix(v)
	case nil:
		return math.NaN()
	default:
		return parseFloatPrefix(jsvalue.String(v))
	}
}

func parseFloatPrefix(s string) float64 {
	m := floatPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return math.NaN()
	}

	switch strings.TrimLeft(m, "+-") {
	case "Infinity":
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// out of range values still carry a sign
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// Defaults returns the initial raw value of every input: false for boolean
// types, the first option for select and radio, min (or 0) for number, min
// (or 1) for range and the empty string otherwise.
func Defaults(specs []catalog.InputSpec) []any {
	values := make([]any, len(specs))
	for i, spec := range specs {
		values[i] = defaultFor(spec)
	}
	return values
}

func defaultFor(spec catalog.InputSpec) any {
	switch {
	case spec.Type.IsBoolean():
		return false
	case spec.Type.IsChoice() && len(spec.Options) > 0:
		return spec.Options[0].Value
	case spec.Type == catalog.InputNumber:
		if spec.Min != nil {
			return *spec.Min
		}
		return float64(0)
	case spec.Type == catalog.InputRange:
		if spec.Min != nil {
			return *spec.Min
		}
		return float64(1)
	default:
		return ""
	}
}

// Pristine reports whether every raw value is empty. false and 0 are values.
func Pristine(raw []any) bool {
	for _, v := range raw {
		if !isEmpty(v) {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}
