// Package prompts renders the prompt sent to the model each turn from
// embedded markdown templates.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var promptFS embed.FS

// Template is a named prompt template.
type Template struct {
	Name    string
	Content string
}

// Loader holds the embedded templates.
type Loader struct {
	templates map[string]*Template
}

// NewLoader loads all embedded markdown templates.
func NewLoader() (*Loader, error) {
	loader := &Loader{templates: make(map[string]*Template)}
	entries, err := promptFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		loader.templates[name] = &Template{Name: name, Content: string(content)}
	}
	return loader, nil
}

// Render substitutes {{key}} placeholders in the named template.
func (l *Loader) Render(name string, variables map[string]string) (string, error) {
	template, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template '%s' not found", name)
	}
	content := template.Content
	for key, value := range variables {
		content = strings.ReplaceAll(content, fmt.Sprintf("{{%s}}", key), value)
	}
	return content, nil
}

// List returns all available template names.
func (l *Loader) List() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	return names
}
