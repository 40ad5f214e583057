package document

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// fileForm is the on-disk YAML shape of a document.
type fileForm struct {
	Fields map[string]any `yaml:"fields"`
	Locked []string       `yaml:"locked,omitempty"`
}

// LoadFile reads a document from a YAML file. A missing file yields an
// empty document so new projects start clean.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", path, err)
	}
	var form fileForm
	if err := yaml.Unmarshal(data, &form); err != nil {
		return Document{}, fmt.Errorf("parse document %s: %w", path, err)
	}
	doc, err := FromFields(form.Fields)
	if err != nil {
		return Document{}, fmt.Errorf("document %s: %w", path, err)
	}
	for _, name := range form.Locked {
		doc.Lock(name)
	}
	return doc, nil
}

// SaveFile writes a document to a YAML file.
func SaveFile(path string, doc Document) error {
	locked := make([]string, 0, len(doc.Locked))
	for name := range doc.Locked {
		locked = append(locked, name)
	}
	sort.Strings(locked)
	data, err := yaml.Marshal(fileForm{Fields: doc.Fields, Locked: locked})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
