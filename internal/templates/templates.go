// Package templates renders the human-readable engine documents: the
// aggregate report and a single-proposal view.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed *.md.tmpl
var files embed.FS

// Template names accepted by Render.
const (
	Report   = "report.md.tmpl"
	Proposal = "proposal.md.tmpl"
)

// Renderer renders a named template with the given data.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// TemplateRenderer is the embedded text/template implementation of Renderer.
type TemplateRenderer struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"pct":    func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
	"inc":    func(i int) int { return i + 1 },
	"upper":  func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	"when":   when,
	"mark":   mark,
	"orNone": orNone,
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func mark(done bool) string {
	if done {
		return "x"
	}
	return " "
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "_none_"
	}
	return s
}

// NewRenderer parses every embedded template.
func NewRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(files, "*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render executes the named template.
func (r *TemplateRenderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
