package render

import (
	"bytes"
	"html/template"

	"github.com/rs/zerolog/log"
)

const variantTemplates = `
{{- define "variant" -}}
{{- if eq .Kind "image" -}}
<div class="result result-image"><img src="{{.URL}}" alt="Generated"></div>
{{- else if eq .Kind "audio" -}}
<div class="result result-audio"><audio controls src="{{.URL}}">Your browser does not support audio playback.</audio></div>
{{- else if eq .Kind "video" -}}
<div class="result result-video"><video controls src="{{.URL}}">Your browser does not support video playback.</video></div>
{{- else if eq .Kind "error_text" -}}
<p class="result result-error">{{.Text}}</p>
{{- else if eq .Kind "preformatted" -}}
<pre class="result result-pre">{{.Text}}</pre>
{{- else if or (eq .Kind "plain_text") (eq .Kind "scalar") -}}
<p class="result result-text">{{.Text}}</p>
{{- else if eq .Kind "list" -}}
<ul class="result result-list depth-{{.Depth}}">
{{- range .Items}}<li>{{template "item" .}}</li>{{end -}}
</ul>
{{- else if eq .Kind "labeled" -}}
<ul class="result result-labeled depth-{{.Depth}}">
{{- range .Fields}}<li><strong>{{.Key}}:</strong> {{template "item" .Value}}</li>{{end -}}
</ul>
{{- else if eq .Kind "unsupported" -}}
<p class="result result-unsupported">{{.Text}}</p>
{{- end -}}
{{- end -}}

{{- define "item" -}}
{{- if .Structured}}{{template "variant" .}}{{else}}<span>{{.Text}}</span>{{end -}}
{{- end -}}
`

var htmlTemplates = template.Must(template.New("render").Parse(variantTemplates))

// HTML renders a variant as an HTML fragment. Empty renders nothing.
func HTML(v Variant) template.HTML {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, "variant", v); err != nil {
		log.Error().Err(err).Str("kind", string(v.Kind)).Msg("Failed to render result")
		return template.HTML(`<p class="result result-unsupported">` + template.HTMLEscapeString(UnsupportedMessage) + `</p>`)
	}
	return template.HTML(buf.String())
}
