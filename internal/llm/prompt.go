package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompt is a named text template rendered with string variables before
// invocation.
type Prompt struct {
	Name string
	tmpl *template.Template
}

// NewPrompt parses text as a template. Variables are referenced as
// {{.variable}}.
func NewPrompt(name, text string) (*Prompt, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}
	return &Prompt{Name: name, tmpl: tmpl}, nil
}

// MustPrompt is NewPrompt for package-level prompt constants.
func MustPrompt(name, text string) *Prompt {
	p, err := NewPrompt(name, text)
	if err != nil {
		panic(err)
	}
	return p
}

// Render fills the template with vars.
func (p *Prompt) Render(vars map[string]any) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("prompt %q: render: %w", p.Name, err)
	}
	return b.String(), nil
}
