package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"actionflow/internal/domain"
)

// TemplateFile is the authoring format for task templates: ordered steps of actions.
// Steps group actions for display only; dependencies come from depends_on unless
// Sequential is set, in which case each step depends on the one before it.
type TemplateFile struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Sequential  bool           `yaml:"sequential"`
	Steps       []TemplateStep `yaml:"steps"`
}

type TemplateStep struct {
	Title   string           `yaml:"title"`
	Actions []TemplateAction `yaml:"actions"`
}

type TemplateAction struct {
	ID          string            `yaml:"id"`
	Title       string            `yaml:"title"`
	Type        domain.ActionType `yaml:"type"`
	Description string            `yaml:"description"`
	DependsOn   []string          `yaml:"depends_on"`
	IsBlocking  bool              `yaml:"is_blocking"`
	Payload     map[string]any    `yaml:"payload"`
}

// Validate checks the structure of the file. Graph checks happen when the template is saved.
func (f TemplateFile) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	count := 0
	for i, step := range f.Steps {
		if len(step.Actions) == 0 {
			return fmt.Errorf("steps[%d] has no actions", i)
		}
		for j, a := range step.Actions {
			if a.ID == "" {
				return fmt.Errorf("steps[%d].actions[%d].id is required", i, j)
			}
			if a.Title == "" {
				return fmt.Errorf("action %s: title is required", a.ID)
			}
			if a.Type != "" && !a.Type.Valid() {
				return fmt.Errorf("action %s: unknown type %q", a.ID, a.Type)
			}
			count++
		}
	}
	if count == 0 {
		return fmt.Errorf("template has no actions")
	}
	return nil
}

// TemplateFromYAML decodes and validates a template file.
func TemplateFromYAML(data []byte) (TemplateFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return TemplateFile{}, fmt.Errorf("template: payload is empty")
	}
	var f TemplateFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return TemplateFile{}, fmt.Errorf("template: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return TemplateFile{}, fmt.Errorf("template: %w", err)
	}
	return f, nil
}

// TemplateFromReader reads a template file from r.
func TemplateFromReader(r io.Reader) (TemplateFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return TemplateFile{}, fmt.Errorf("template: read: %w", err)
	}
	return TemplateFromYAML(data)
}

// TemplateFromFile loads a template from path.
func TemplateFromFile(path string) (TemplateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TemplateFile{}, fmt.Errorf("template: read %s: %w", path, err)
	}
	f, err := TemplateFromYAML(data)
	if err != nil {
		return TemplateFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
