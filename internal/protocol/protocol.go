// Package protocol resolves the layered curation rule sets that steer the
// assistant: which file patterns to include or exclude from a dataset and
// which extra instructions to splice into prompts. Layers accumulate in a
// fixed order (system, user, field, project); they never override each other.
package protocol

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer is one rule set in the stack. The wire format is YAML.
type Layer struct {
	Name            string   `yaml:"name"`
	ReadOnly        bool     `yaml:"read_only"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	GeneralPrompts  []string `yaml:"general_prompts"`
	MetadataPrompts []string `yaml:"metadata_prompts"`
	CuratorPrompts  []string `yaml:"curator_prompts"`
}

// ParseLayer decodes one YAML layer document.
func ParseLayer(data []byte) (Layer, error) {
	var layer Layer
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return Layer{}, fmt.Errorf("parse protocol layer: %w", err)
	}
	return layer, nil
}

// LoadLayerFile reads and decodes a layer from disk.
func LoadLayerFile(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, err
	}
	return ParseLayer(data)
}

// Effective is the accumulated union of every applicable layer. Each list is
// deduplicated and keeps first-occurrence order across layers.
type Effective struct {
	IncludePatterns []string
	ExcludePatterns []string
	GeneralPrompts  []string
	MetadataPrompts []string
	CuratorPrompts  []string
}

// Accumulate appends a layer's lists, skipping entries already present.
func (e *Effective) Accumulate(layer Layer) {
	e.IncludePatterns = appendUnique(e.IncludePatterns, layer.IncludePatterns)
	e.ExcludePatterns = appendUnique(e.ExcludePatterns, layer.ExcludePatterns)
	e.GeneralPrompts = appendUnique(e.GeneralPrompts, layer.GeneralPrompts)
	e.MetadataPrompts = appendUnique(e.MetadataPrompts, layer.MetadataPrompts)
	e.CuratorPrompts = appendUnique(e.CuratorPrompts, layer.CuratorPrompts)
}

func appendUnique(dst []string, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, item := range dst {
		seen[item] = struct{}{}
	}
	for _, item := range src {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}
