// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package grants builds the grants viewer data: it reads grant_registry.yaml,
// measures every Markdown response against its question's limits, exports
// responses on request, and writes grants_data.json.
package grants

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// RegistryFile is the default registry file name.
const RegistryFile = "grant_registry.yaml"

// QuestionsFile is a parsed questions.yaml. Sections keep their file order.
type QuestionsFile struct {
	Metadata map[string]any
	Sections []types.QuestionSpec
}

// LoadRegistry reads and parses a grant registry.
func LoadRegistry(path string) (*types.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	var reg types.Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	if reg.Grants == nil {
		return nil, fmt.Errorf("parsing registry %s: no grants defined", path)
	}
	return &reg, nil
}

// LoadQuestions reads a questions file. The sections key may be a mapping
// of key to question or a list of questions identified by their id field
// (section_{i} when absent). List items without a file are dropped.
func LoadQuestions(path string) (*QuestionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading questions: %w", err)
	}
	var raw struct {
		Metadata map[string]any `yaml:"metadata"`
		Sections yaml.Node      `yaml:"sections"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing questions %s: %w", path, err)
	}

	qf := &QuestionsFile{Metadata: raw.Metadata}
	if qf.Metadata == nil {
		qf.Metadata = map[string]any{}
	}

	switch raw.Sections.Kind {
	case yaml.MappingNode:
		content := raw.Sections.Content
		for i := 0; i+1 < len(content); i += 2 {
			var q types.QuestionSpec
			if err := content[i+1].Decode(&q); err != nil {
				return nil, fmt.Errorf("parsing section %s in %s: %w", content[i].Value, path, err)
			}
			q.ID = content[i].Value
			qf.Sections = append(qf.Sections, q)
		}
	case yaml.SequenceNode:
		for i, item := range raw.Sections.Content {
			var q types.QuestionSpec
			if err := item.Decode(&q); err != nil {
				return nil, fmt.Errorf("parsing section %d in %s: %w", i, path, err)
			}
			if q.File == "" {
				continue
			}
			if q.ID == "" {
				q.ID = fmt.Sprintf("section_%d", i)
			}
			qf.Sections = append(qf.Sections, q)
		}
	}
	return qf, nil
}

// loadMetadata reads an optional YAML mapping. A missing file yields an
// empty map.
func loadMetadata(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	meta := map[string]any{}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}
