// Package definitions loads workflow definitions from YAML files.
package definitions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"creator-automation/backend/pkg/models"
)

// Entry is one workflow in a definitions file.
type Entry struct {
	ID                        string `yaml:"id"`
	models.WorkflowDefinition `yaml:",inline"`
}

type file struct {
	Workflows []Entry `yaml:"workflows"`
}

// Registrar accepts workflow registrations.
type Registrar interface {
	RegisterWorkflow(id string, def models.WorkflowDefinition) (*models.Workflow, error)
}

// LoadFile reads and parses the definitions file at path.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definitions: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse decodes a definitions document. Unknown keys and duplicate ids are errors.
func Parse(data []byte) ([]Entry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse workflow definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Workflows))
	for i, e := range f.Workflows {
		if e.ID == "" {
			return nil, fmt.Errorf("workflow %d: id is required", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return f.Workflows, nil
}

// Apply registers every entry, stopping at the first rejected definition.
func Apply(r Registrar, entries []Entry) error {
	for _, e := range entries {
		if _, err := r.RegisterWorkflow(e.ID, e.WorkflowDefinition); err != nil {
			return fmt.Errorf("failed to register workflow %s: %w", e.ID, err)
		}
	}
	return nil
}
