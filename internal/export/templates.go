package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"
)

type RenderedField struct {
	Label string
	Value string
}

type RenderedFile struct {
	Label    string
	FileName string
}

// TemplateData holds everything the answer-sheet template prints.
type TemplateData struct {
	CustomerName  string
	CustomerEmail string
	Version       string
	SubmittedAt   string
	Fields        []RenderedField
	Files         []RenderedFile
}

var answerSheetTemplate = template.Must(template.New("answerSheet").Parse(answerSheetHTML))

// RenderAnswerSheetHTML renders the printable answer sheet for one
// submission.
func RenderAnswerSheetHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := answerSheetTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render answer sheet: %w", err)
	}
	return buf.String(), nil
}

// renderValue turns a stored JSON field value into display text.
// Arrays print comma-separated; anything unparsable prints as stored.
func renderValue(raw string) string {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", key, v[key]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// renderFields sorts by field name so the sheet layout is stable
// across exports.
func renderFields(fields map[string]string) []RenderedField {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	rendered := make([]RenderedField, 0, len(names))
	for _, name := range names {
		rendered = append(rendered, RenderedField{Label: FieldLabel(name), Value: renderValue(fields[name])})
	}
	return rendered
}

func formatSubmittedAt(t *time.Time) string {
	if t == nil {
		return "Ei lähetetty"
	}
	return t.Local().Format("2.1.2006 15.04")
}

const answerSheetHTML = `<!DOCTYPE html>
<html lang="fi">
<head>
  <meta charset="UTF-8">
  <title>Suunnittelun lähtötiedot</title>
  <style>
    body { font-family: Helvetica, Arial, sans-serif; color: #1a1a1a; margin: 0; }
    h1 { font-size: 20px; text-align: center; margin-bottom: 24px; }
    h2 { font-size: 15px; border-bottom: 1px solid #ccc; padding-bottom: 4px; margin-top: 28px; }
    .meta p { margin: 2px 0; font-size: 12px; }
    .field { margin: 8px 0; font-size: 12px; }
    .field .label { font-weight: bold; }
    .file { margin: 4px 0; font-size: 12px; }
    .file .label { color: #555; }
  </style>
</head>
<body>
  <h1>Suunnittelun lähtötiedot</h1>
  <div class="meta">
    <p>Asiakas: {{.CustomerName}}</p>
    <p>Sähköposti: {{.CustomerEmail}}</p>
    {{if .Version}}<p>Versio: {{.Version}}</p>{{end}}
    <p>Lähetetty: {{.SubmittedAt}}</p>
  </div>

  <h2>Vastaukset</h2>
  {{range .Fields}}
  <div class="field"><span class="label">{{.Label}}:</span> {{.Value}}</div>
  {{else}}
  <div class="field">Ei vastauksia.</div>
  {{end}}

  {{if .Files}}
  <h2>Tiedostot</h2>
  {{range .Files}}
  <div class="file"><span class="label">{{.Label}}:</span> {{.FileName}}</div>
  {{end}}
  {{end}}
</body>
</html>`
