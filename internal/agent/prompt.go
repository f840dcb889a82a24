// File: internal/agent/prompt.go
package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed prompt.tmpl
var defaultPromptTemplate string

// PromptData is everything the collaborator template can see for one round.
type PromptData struct {
	Description string
	Guidance    string
	Round       int
	MaxRounds   int
	Turns       []Turn
}

// Renderer turns round state into the prompt sent to the collaborator. The
// template ships embedded; operators can override it with their own file.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the template at path, or the embedded default when
// path is empty.
func NewRenderer(path string) (*Renderer, error) {
	source := defaultPromptTemplate
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompt template: %w", err)
		}
		source = string(raw)
	}
	tmpl, err := template.New("collaborator").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the template for one round.
func (r *Renderer) Render(data PromptData) (string, error) {
	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering prompt template: %w", err)
	}
	return sb.String(), nil
}
