package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Water Alert {{.EventLabel}}]
Sensor: {{.SensorID}}
Severity: {{.Severity}}
Description: {{.Description}}
{{- if .Solution}}
Solution: {{.Solution}}
{{- end}}
Created: {{.CreatedAt}}
Updated: {{.UpdatedAt}}
Current Status: {{.Status}}
Suggestion: {{.Suggestion}}
`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	AlertID     int64
	SensorID    int
	Severity    string
	Description string
	Solution    string
	CreatedAt   string
	UpdatedAt   string
	Status      string
	Suggestion  string
	Event       string
	EventLabel  string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
