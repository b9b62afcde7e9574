package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"actionflow/internal/domain"
)

const ProjectKind = "action-workflow"

// Config models actionflow.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id" json:"id"`
		Kind string `yaml:"kind" json:"kind"`
	} `yaml:"project" json:"project"`
	Actions struct {
		// Types restricts the action types tasks may use. Empty allows every known type.
		Types       []domain.ActionType `yaml:"types" json:"types"`
		DefaultType domain.ActionType   `yaml:"default_type" json:"default_type"`
	} `yaml:"actions" json:"actions"`
	Tasks struct {
		OnAllCompleted string `yaml:"on_all_completed" json:"on_all_completed"`
		Review         struct {
			AllowReject bool `yaml:"allow_reject" json:"allow_reject"`
		} `yaml:"review" json:"review"`
	} `yaml:"tasks" json:"tasks"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with af config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.Kind != ProjectKind {
		return fmt.Errorf("config.project.kind must be '%s'", ProjectKind)
	}
	seen := map[domain.ActionType]bool{}
	for _, t := range c.Actions.Types {
		if !t.Valid() {
			return fmt.Errorf("config.actions.types contains unknown type %q", t)
		}
		if seen[t] {
			return fmt.Errorf("config.actions.types lists %s twice", t)
		}
		seen[t] = true
	}
	if c.Actions.DefaultType != "" {
		if !c.Actions.DefaultType.Valid() {
			return fmt.Errorf("config.actions.default_type %q is unknown", c.Actions.DefaultType)
		}
		if !c.AllowsType(c.Actions.DefaultType) {
			return fmt.Errorf("config.actions.default_type %s is not in config.actions.types", c.Actions.DefaultType)
		}
	}
	switch c.Tasks.OnAllCompleted {
	case domain.TaskPendingApproval, domain.TaskApproved:
	default:
		return fmt.Errorf("config.tasks.on_all_completed must be %s or %s", domain.TaskPendingApproval, domain.TaskApproved)
	}
	return nil
}

// AllowsType reports whether tasks of this project may use t.
func (c *Config) AllowsType(t domain.ActionType) bool {
	if len(c.Actions.Types) == 0 {
		return t.Valid()
	}
	for _, allowed := range c.Actions.Types {
		if allowed == t {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "actionflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Project.Kind = ProjectKind
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  kind: action-workflow

actions:
  types:
    - text
    - long_text
    - file_upload
    - approval
    - date
    - document
    - info
    - video_upload
    - video_decoupage
    - video_editing
    - audio_processing
  default_type: text

tasks:
  on_all_completed: pending_approval
  review:
    allow_reject: true
`
