package render

import (
	"html/template"
	"strings"

	"github.com/harun/toolshed/pkg/jsvalue"
)

// Kind is a display treatment
type Kind string

const (
	KindEmpty        Kind = "empty"
	KindImage        Kind = "image"
	KindAudio        Kind = "audio"
	KindVideo        Kind = "video"
	KindErrorText    Kind = "error_text"
	KindPreformatted Kind = "preformatted"
	KindPlainText    Kind = "plain_text"
	KindScalar       Kind = "scalar"
	KindList         Kind = "list"
	KindLabeled      Kind = "labeled"
	KindUnsupported  Kind = "unsupported"
)

const (
	imagePrefix = "data:image/"
	audioPrefix = "audio/"
	videoPrefix = "video/"
	errorPrefix = "error:"
)

// UnsupportedMessage is shown for values no other kind accepts
const UnsupportedMessage = "Unsupported result format."

// Variant is a classified value. Text holds the media source, the text or
// the string form of a scalar; Items and Fields hold nested variants.
type Variant struct {
	Kind   Kind
	Text   string
	Items  []Variant
	Fields []Field
	Depth  int
}

// Field is one key of a labeled variant
type Field struct {
	Key   string
	Value Variant
}

// Structured reports whether the variant nests other variants
func (v Variant) Structured() bool {
	return v.Kind == KindList || v.Kind == KindLabeled
}

// URL returns Text as a media source. Only media kinds are trusted.
func (v Variant) URL() template.URL {
	switch v.Kind {
	case KindImage, KindAudio, KindVideo:
		return template.URL(v.Text)
	}
	return ""
}

// Classify picks the display variant for a tool result.
func Classify(value any) Variant {
	return classify(jsvalue.Normalize(value), 0, true)
}

func classify(value any, depth int, reparse bool) Variant {
	switch v := value.(type) {
	case nil:
		return Variant{Kind: KindEmpty, Depth: depth}
	case string:
		return classifyString(v, depth, reparse)
	case float64, bool:
		return Variant{Kind: KindScalar, Text: jsvalue.String(v), Depth: depth}
	case []any:
		items := make([]Variant, len(v))
		for i, item := range v {
			items[i] = nested(item, depth)
		}
		return Variant{Kind: KindList, Items: items, Depth: depth}
	case *jsvalue.Object:
		fields := make([]Field, 0, v.Len())
		for _, f := range v.Fields() {
			fields = append(fields, Field{Key: f.Key, Value: nested(f.Value, depth)})
		}
		return Variant{Kind: KindLabeled, Fields: fields, Depth: depth}
	default:
		return Variant{Kind: KindUnsupported, Text: UnsupportedMessage, Depth: depth}
	}
}

func classifyString(s string, depth int, reparse bool) Variant {
	switch {
	case strings.HasPrefix(s, imagePrefix):
		return Variant{Kind: KindImage, Text: s, Depth: depth}
	case strings.HasPrefix(s, audioPrefix):
		return Variant{Kind: KindAudio, Text: s, Depth: depth}
	case strings.HasPrefix(s, videoPrefix):
		return Variant{Kind: KindVideo, Text: s, Depth: depth}
	case hasFoldPrefix(s, errorPrefix):
		return Variant{Kind: KindErrorText, Text: s, Depth: depth}
	}

	if reparse {
		if parsed, err := jsvalue.Parse(s); err == nil && jsvalue.IsStructured(parsed) {
			return classify(parsed, depth, false)
		}
	}

	if strings.Contains(s, "\n") {
		return Variant{Kind: KindPreformatted, Text: s, Depth: depth}
	}
	return Variant{Kind: KindPlainText, Text: s, Depth: depth}
}

// nested classifies an element of a list or a value of an object: arrays
// and objects recurse one level deeper, everything else is its string form.
func nested(value any, depth int) Variant {
	if jsvalue.IsStructured(value) {
		return classify(value, depth+1, false)
	}
	return Variant{Kind: KindScalar, Text: jsvalue.String(value), Depth: depth + 1}
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
