package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolshed/pkg/jsvalue"
)

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Kind
	}{
		{name: "nil", value: nil, want: KindEmpty},
		{name: "image data uri", value: "data:image/png;base64,AAAA", want: KindImage},
		{name: "audio prefix", value: "audio/mpeg;base64,AAAA", want: KindAudio},
		{name: "audio data uri is not audio", value: "data:audio/mpeg;base64,AAAA", want: KindPlainText},
		{name: "video prefix", value: "video/mp4;base64,AAAA", want: KindVideo},
		{name: "error lowercase", value: "error: boom", want: KindErrorText},
		{name: "error capitalized", value: "Error: boom", want: KindErrorText},
		{name: "error upper", value: "ERROR: boom", want: KindErrorText},
		{name: "multiline", value: "line1\nline2", want: KindPreformatted},
		{name: "single line", value: "single line", want: KindPlainText},
		{name: "json primitive string stays text", value: "42", want: KindPlainText},
		{name: "json null string stays text", value: "null", want: KindPlainText},
		{name: "json object string", value: `{"a":1}`, want: KindLabeled},
		{name: "json array string", value: `[1,2]`, want: KindList},
		{name: "number", value: 10.0, want: KindScalar},
		{name: "int", value: 3, want: KindScalar},
		{name: "bool", value: false, want: KindScalar},
		{name: "array", value: []any{1.0}, want: KindList},
		{name: "object", value: jsvalue.ObjectOf("a", 1.0), want: KindLabeled},
		{name: "map", value: map[string]any{"a": 1}, want: KindLabeled},
		{name: "function", value: jsvalue.Opaque{Class: "Function"}, want: KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.value).Kind)
		})
	}
}

func TestClassify_ImageBeforeError(t *testing.T) {
	// order matters: an image uri is never treated as text
	v := Classify("data:image/svg+xml;utf8,<svg>error: nope</svg>")
	assert.Equal(t, KindImage, v.Kind)
}

func TestClassify_JSONStringMatchesObject(t *testing.T) {
	fromString := Classify(`{"a":1}`)
	fromObject := Classify(jsvalue.ObjectOf("a", 1.0))

	assert.Equal(t, fromObject, fromString)
	require.Len(t, fromString.Fields, 1)
	assert.Equal(t, "a", fromString.Fields[0].Key)
	assert.Equal(t, "1", fromString.Fields[0].Value.Text)
}

func TestClassify_ReparseOnlyAtTopLevel(t *testing.T) {
	v := Classify([]any{`{"nested":true}`})
	require.Len(t, v.Items, 1)
	assert.Equal(t, KindScalar, v.Items[0].Kind)
	assert.Equal(t, `{"nested":true}`, v.Items[0].Text)

	inner := Classify(`["[1,2]"]`)
	require.Equal(t, KindList, inner.Kind)
	assert.Equal(t, KindScalar, inner.Items[0].Kind)
	assert.Equal(t, "[1,2]", inner.Items[0].Text)
}

func TestClassify_NestedStructures(t *testing.T) {
	value := jsvalue.ObjectOf(
		"name", "qr",
		"size", 2.5,
		"tags", []any{"a", nil, true},
		"meta", jsvalue.ObjectOf("deep", jsvalue.ObjectOf("x", 1.0)),
	)

	v := Classify(value)
	require.Equal(t, KindLabeled, v.Kind)
	assert.Equal(t, 0, v.Depth)
	require.Len(t, v.Fields, 4)

	keys := []string{}
	for _, f := range v.Fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"name", "size", "tags", "meta"}, keys)

	assert.Equal(t, Variant{Kind: KindScalar, Text: "qr", Depth: 1}, v.Fields[0].Value)
	assert.Equal(t, "2.5", v.Fields[1].Value.Text)

	tags := v.Fields[2].Value
	require.Equal(t, KindList, tags.Kind)
	assert.Equal(t, 1, tags.Depth)
	assert.Equal(t, []string{"a", "null", "true"}, []string{tags.Items[0].Text, tags.Items[1].Text, tags.Items[2].Text})

	meta := v.Fields[3].Value
	require.Equal(t, KindLabeled, meta.Kind)
	deep := meta.Fields[0].Value
	assert.Equal(t, KindLabeled, deep.Kind)
	assert.Equal(t, 2, deep.Depth)
	assert.Equal(t, 3, deep.Fields[0].Value.Depth)
}

func TestClassify_ScalarStrings(t *testing.T) {
	assert.Equal(t, "10", Classify(10.0).Text)
	assert.Equal(t, "true", Classify(true).Text)
	assert.Equal(t, "NaN", Classify(math.NaN()).Text)
	assert.Equal(t, "1e+21", Classify(1e21).Text)
}

func TestClassify_DeepNestingIsNotBounded(t *testing.T) {
	var value any = "leaf"
	for i := 0; i < 200; i++ {
		value = []any{value}
	}

	v := Classify(value)
	depth := 0
	for v.Kind == KindList {
		v = v.Items[0]
		depth++
	}
	assert.Equal(t, 200, depth)
	assert.Equal(t, "leaf", v.Text)
}
