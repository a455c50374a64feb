package rubric

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Load reads a compiled rubric from a YAML or JSON file, validates it, and
// normalizes its weights. The returned rubric is ready for evaluation.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}

	var r Rubric
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse rubric json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse rubric yaml: %w", err)
		}
	}

	normalized, err := r.Normalize()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(normalized.Stages, func(i, j int) bool {
		return normalized.Stages[i].Order < normalized.Stages[j].Order
	})
	return normalized, nil
}

// Parse decodes a compiled rubric from a JSON payload, as received over the
// HTTP API, then validates and normalizes it.
func Parse(data []byte) (*Rubric, error) {
	var r Rubric
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	return r.Normalize()
}
