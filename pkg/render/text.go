package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// TextOptions controls terminal rendering
type TextOptions struct {
	// Color enables ANSI colors
	Color bool
	// MaxMediaChars truncates media sources (0 = 64)
	MaxMediaChars int
}

type textWriter struct {
	w    io.Writer
	opts TextOptions
	err  error

	errStyle   *color.Color
	keyStyle   *color.Color
	mediaStyle *color.Color
	dimStyle   *color.Color
}

// WriteText renders a variant for a terminal
func WriteText(w io.Writer, v Variant, opts TextOptions) error {
	if opts.MaxMediaChars <= 0 {
		opts.MaxMediaChars = 64
	}

	tw := &textWriter{
		w:          w,
		opts:       opts,
		errStyle:   color.New(color.FgRed),
		keyStyle:   color.New(color.Bold),
		mediaStyle: color.New(color.FgCyan),
		dimStyle:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{tw.errStyle, tw.keyStyle, tw.mediaStyle, tw.dimStyle} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	tw.variant(v, "")
	return tw.err
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

func (tw *textWriter) variant(v Variant, indent string) {
	switch v.Kind {
	case KindEmpty:
	case KindImage, KindAudio, KindVideo:
		tw.printf("%s%s\n", indent, tw.mediaStyle.Sprintf("[%s] %s (%d bytes)", v.Kind, tw.truncate(v.Text), len(v.Text)))
	case KindErrorText:
		tw.printf("%s%s\n", indent, tw.errStyle.Sprint(v.Text))
	case KindPreformatted:
		for _, line := range strings.Split(v.Text, "\n") {
			tw.printf("%s%s\n", indent, line)
		}
	case KindPlainText, KindScalar:
		tw.printf("%s%s\n", indent, v.Text)
	case KindList:
		for _, item := range v.Items {
			tw.item("", item, indent)
		}
	case KindLabeled:
		for _, f := range v.Fields {
			tw.item(tw.keyStyle.Sprint(f.Key+":"), f.Value, indent)
		}
	default:
		tw.printf("%s%s\n", indent, tw.dimStyle.Sprint(v.Text))
	}
}

func (tw *textWriter) item(label string, v Variant, indent string) {
	prefix := indent + "- "
	if label != "" {
		prefix += label + " "
	}

	if v.Structured() {
		tw.printf("%s\n", strings.TrimRight(prefix, " "))
		tw.variant(v, indent+"  ")
		return
	}
	tw.printf("%s%s\n", prefix, v.Text)
}

func (tw *textWriter) truncate(s string) string {
	if len(s) <= tw.opts.MaxMediaChars {
		return s
	}
	return s[:tw.opts.MaxMediaChars] + "..."
}
