// Package prompts renders the natural-language instructions sent to the AI backend.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Template names.
const (
	Recommendations       = "recommendations.tmpl"
	RecommendationsSystem = "recommendations.system.tmpl"
	Market                = "market.tmpl"
	Advice                = "advice.tmpl"
	Soil                  = "soil.tmpl"
	Weather               = "weather.tmpl"
	Image                 = "image.tmpl"
	Speech                = "speech.tmpl"
)

// Renderer executes the embedded prompt templates. Sprig's environment and
// filesystem helpers are removed so prompts only see the data they are given.
type Renderer struct {
	tmpl *template.Template
}

// New parses the built-in templates.
func New() (*Renderer, error) {
	funcs := sprig.TxtFuncMap()
	for _, name := range []string{"env", "expandenv", "readDir", "mustReadDir", "readFile", "mustReadFile", "glob"} {
		delete(funcs, name)
	}
	tmpl, err := template.New("prompts").Funcs(funcs).Option("missingkey=zero").ParseFS(builtin, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("prompts: parse: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// MustNew is New for package-level wiring where the embedded templates are known good.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the named template and trims surrounding whitespace.
func (r *Renderer) Render(name string, data any) (string, error) {
	if r == nil || r.tmpl == nil {
		return "", errors.New("prompts: nil renderer")
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("prompts: render %q: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// LanguageName maps a language code onto the name the model is instructed in.
func LanguageName(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), "ta") {
		return "Tamil"
	}
	return "English"
}
