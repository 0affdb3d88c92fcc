package service

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/easeaico/marketing-analyst/internal/memory"
)

// DefaultOutputFormat is used when a request does not name one.
const DefaultOutputFormat = "detalhado"

// analysisContext is what an engine sees besides the data it is bound to.
type analysisContext struct {
	// Documents recalled from the client namespace, most relevant first.
	Documents []memory.Document
	Platform  string
	Query     string
	Format    string
}

// ContextText joins the recalled documents with blank lines.
func (c analysisContext) ContextText() string {
	parts := make([]string, len(c.Documents))
	for i, d := range c.Documents {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n")
}

var promptTmpl = template.Must(template.New("analysisPrompt").Parse(
	`Informações de contexto de análises anteriores e resumos de dados:
{{.ContextText}}

Plataforma analisada: {{.Platform}}

Com base no contexto acima e no conjunto de dados, responda à seguinte solicitação:
{{.Query}}

IMPORTANTE:
1. Responda SEMPRE em português do Brasil, não em inglês.
{{- if .Format}}
Formate sua resposta como {{.Format}}.
{{- end}}
`))

// buildPrompt renders the augmented input handed to the engine.
func buildPrompt(c analysisContext) (string, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}
