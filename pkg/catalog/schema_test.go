package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validTool() Tool {
	return Tool{
		HumanReadableTitle: "Double",
		FunctionTitle:      "double",
		Code:               "function double(n) { return n * 2; }",
		Inputs:             []InputSpec{{Type: InputNumber, HumanReadableTitle: "n", Min: Float(0)}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Tool)
		wantErr string
	}{
		{name: "valid", mutate: func(*Tool) {}},
		{name: "no inputs", mutate: func(t *Tool) { t.Inputs = nil }},
		{name: "missing code", mutate: func(t *Tool) { t.Code = "" }, wantErr: "code"},
		{name: "missing title", mutate: func(t *Tool) { t.HumanReadableTitle = "" }, wantErr: "human_readable_function_title"},
		{name: "bad identifier", mutate: func(t *Tool) { t.FunctionTitle = "do it" }, wantErr: "not an identifier"},
		{name: "select without options", mutate: func(t *Tool) {
			t.Inputs = []InputSpec{{Type: InputSelect, HumanReadableTitle: "pick"}}
		}, wantErr: "requires options"},
		{name: "inverted bounds", mutate: func(t *Tool) {
			t.Inputs = []InputSpec{{Type: InputRange, Min: Float(5), Max: Float(1)}}
		}, wantErr: "min greater than max"},
		{name: "empty input type", mutate: func(t *Tool) {
			t.Inputs = []InputSpec{{HumanReadableTitle: "x"}}
		}, wantErr: "invalid descriptor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := validTool()
			tt.mutate(&tool)

			err := Validate(tool)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateJSON_RejectsWrongTypes(t *testing.T) {
	err := ValidateJSON([]byte(`{"human_readable_function_title":"x","function_title":"f","code":"c","inputs":"nope"}`))
	assert.Error(t, err)

	err = ValidateJSON([]byte(`{"human_readable_function_title":"x","function_title":"f","code":"c","inputs":[]}`))
	assert.NoError(t, err)
}
