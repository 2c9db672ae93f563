// Package jsvalue is the Go-side model of values crossing the JavaScript
// boundary.
//
// Tool functions return arbitrary JavaScript values. Go maps lose the key
// order a JavaScript object carries, so objects are represented by *Object,
// which keeps own enumerable keys in insertion order. The full set of values
// produced by this package is:
//
//	nil       null and undefined
//	string
//	float64   every JavaScript number
//	bool
//	[]any     arrays
//	*Object   plain objects
//	Opaque    functions, symbols and circular references
package jsvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Field is one key/value pair of an Object.
type Field struct {
	Key   string
	Value any
}

// Object is an insertion-ordered JavaScript object.
type Object struct {
	fields []Field
	index  map[string]int
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// ObjectOf builds an object from alternating key/value arguments.
func ObjectOf(kv ...any) *Object {
	o := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return o
}

// Set assigns a key. Reassigning an existing key keeps its position.
func (o *Object) Set(key string, value any) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[key]; ok {
		o.fields[i].Value = value
		return
	}
	o.index[key] = len(o.fields)
	o.fields = append(o.fields, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.fields[i].Value, true
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in insertion order.
func (o *Object) Fields() []Field {
	if o == nil {
		return nil
	}
	out := make([]Field, len(o.fields))
	copy(out, o.fields)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// MarshalJSON encodes the object with its keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Opaque stands in for values that have no data representation.
type Opaque struct {
	Class string // "Function", "Symbol", "Circular", ...
	Repr  string // what String() on the original value produced
}

// MarshalJSON encodes opaque values as null, like JSON.stringify does for
// functions inside arrays.
func (Opaque) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Parse parses JSON text into the value model, keeping object key order.
func Parse(text string) (any, error) {
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("invalid JSON text")
	}
	return FromResult(gjson.Parse(text)), nil
}

// FromResult converts a gjson result into the value model.
func FromResult(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Str
	}

	if r.IsArray() {
		items := r.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = FromResult(item)
		}
		return out
	}

	obj := NewObject()
	r.ForEach(func(key, value gjson.Result) bool {
		obj.Set(key.String(), FromResult(value))
		return true
	})
	return obj
}

// Normalize converts plain Go values (maps, typed slices, integers) into the
// value model. Maps are ordered by key since Go maps carry no order.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64, *Object, Opaque:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, Normalize(x[k]))
		}
		return obj
	default:
		return x
	}
}

// IsStructured reports whether v is an array or an object.
func IsStructured(v any) bool {
	switch v.(type) {
	case []any, *Object, map[string]any:
		return true
	}
	return false
}

// Stringify returns the JSON text of v with object keys in order.
func Stringify(v any) (string, error) {
	var buf bytes.Buffer
	if err := encode(&buf, Normalize(v)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Indent returns indented JSON text of v, falling back to String(v).
func Indent(v any) string {
	text, err := Stringify(v)
	if err != nil {
		return String(v)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(text), "", "  "); err != nil {
		return text
	}
	return out.String()
}

// String mirrors JavaScript's String(value).
func String(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return FormatNumber(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			if item == nil {
				continue
			}
			parts[i] = String(item)
		}
		return strings.Join(parts, ",")
	case *Object:
		return "[object Object]"
	case Opaque:
		if x.Repr != "" {
			return x.Repr
		}
		return "[object " + x.Class + "]"
	default:
		return fmt.Sprint(x)
	}
}

// FormatNumber formats a float the way Number.prototype.toString does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(FormatNumber(x))
	case []any:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		for i, f := range x.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encode(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case Opaque:
		buf.WriteString("null")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
