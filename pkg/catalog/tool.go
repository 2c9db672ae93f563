package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

var (
	// ErrToolNotFound is returned when a tool id is not in the registry
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyQuery is returned when a creation query is blank
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// InputType is the declared kind of a tool parameter
type InputType string

const (
	InputText     InputType = "text"
	InputNumber   InputType = "number"
	InputCheckbox InputType = "checkbox"
	InputBoolean  InputType = "boolean"
	InputSwitch   InputType = "switch"
	InputSelect   InputType = "select"
	InputRadio    InputType = "radio"
	InputRange    InputType = "range"
	InputFile     InputType = "file"
	InputObject   InputType = "object"
	InputJSON     InputType = "json"
)

// IsBoolean reports whether the type holds a true/false value
func (t InputType) IsBoolean() bool {
	return t == InputCheckbox || t == InputBoolean || t == InputSwitch
}

// IsStructured reports whether raw values are JSON text
func (t InputType) IsStructured() bool {
	return t == InputObject || t == InputJSON
}

// IsChoice reports whether the type picks among Options
func (t InputType) IsChoice() bool {
	return t == InputSelect || t == InputRadio
}

// ID identifies a tool. Backends may send it as a JSON number or string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch r.Type {
	case gjson.String:
		*id = ID(r.Str)
	case gjson.Number:
		*id = ID(r.Raw)
	case gjson.Null:
		*id = ""
	default:
		return fmt.Errorf("invalid tool id: %s", string(data))
	}
	return nil
}

// MarshalJSON writes integer ids back as numbers so backends keyed by
// integer columns recognize them.
func (id ID) MarshalJSON() ([]byte, error) {
	if isCanonicalInt(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}

func isCanonicalInt(s string) bool {
	if s == "" || len(s) > 15 {
		return false
	}
	if s != "0" && s[0] == '0' {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// Option is one choice of a select, radio or switch input
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// UnmarshalJSON accepts a string, number or boolean value and keeps its
// text form.
func (o *Option) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return fmt.Errorf("invalid option: %s", string(data))
	}

	value := r.Get("value")
	switch value.Type {
	case gjson.String:
		o.Value = value.Str
	case gjson.Number, gjson.True, gjson.False:
		o.Value = value.Raw
	case gjson.Null:
		o.Value = ""
	default:
		return fmt.Errorf("invalid option value: %s", value.Raw)
	}
	o.Label = r.Get("label").String()
	return nil
}

// InputSpec describes one positional parameter of a tool function
type InputSpec struct {
	Type               InputType `json:"type"`
	HumanReadableTitle string    `json:"human_readable_title"`
	Options            []Option  `json:"options,omitempty"`
	Min                *float64  `json:"min,omitempty"`
	Max                *float64  `json:"max,omitempty"`
}

// Tool is a registry entry pairing a description with source code and an
// input schema. Tools are immutable once created.
type Tool struct {
	ID                  ID              `json:"id"`
	HumanReadableTitle  string          `json:"human_readable_function_title"`
	FunctionDescription string          `json:"function_description"`
	ToolType            string          `json:"tool_type"`
	FunctionTitle       string          `json:"function_title"`
	Code                string          `json:"code"`
	Inputs              []InputSpec     `json:"inputs"`
	Output              json.RawMessage `json:"output,omitempty"`
}

// Title returns the display title, falling back to the function name
func (t Tool) Title() string {
	if t.HumanReadableTitle != "" {
		return t.HumanReadableTitle
	}
	return t.FunctionTitle
}

// Float returns a pointer to f, for building InputSpec bounds
func Float(f float64) *float64 {
	return &f
}
