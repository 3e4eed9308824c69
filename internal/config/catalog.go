package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StageCatalog represents the stage catalog file structure
type StageCatalog struct {
	Stages []StageDefinition `yaml:"stages"`
}

// StageDefinition annotates one pipeline stage for display
type StageDefinition struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	Internal    bool   `yaml:"internal"`
	Terminal    bool   `yaml:"terminal"`
}

// ValidationResult lists catalog problems. It is a value the owner of the
// catalog inspects; nothing is logged or rejected implicitly.
type ValidationResult struct {
	Problems []string
}

// OK reports whether the catalog passed validation
func (r ValidationResult) OK() bool {
	return len(r.Problems) == 0
}

func (r ValidationResult) Error() string {
	return "stage catalog: " + strings.Join(r.Problems, "; ")
}

// LoadStageCatalog reads and parses the stage catalog file
func LoadStageCatalog(path string) (*StageCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage catalog file: %w", err)
	}

	var catalog StageCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse stage catalog: %w", err)
	}
	return &catalog, nil
}

// Validate checks names are present and unique and at most one stage is terminal
func (c *StageCatalog) Validate() ValidationResult {
	var res ValidationResult
	seen := make(map[string]bool, len(c.Stages))
	terminals := 0
	for i, s := range c.Stages {
		if strings.TrimSpace(s.Name) == "" {
			res.Problems = append(res.Problems, fmt.Sprintf("stage at index %d missing name", i))
			continue
		}
		if seen[s.Name] {
			res.Problems = append(res.Problems, fmt.Sprintf("stage %s defined twice", s.Name))
		}
		seen[s.Name] = true
		if s.Terminal {
			terminals++
			if s.Internal {
				res.Problems = append(res.Problems, fmt.Sprintf("stage %s cannot be both internal and terminal", s.Name))
			}
		}
	}
	if terminals > 1 {
		res.Problems = append(res.Problems, fmt.Sprintf("%d stages marked terminal, want at most 1", terminals))
	}
	return res
}

// Descriptions maps stage names to their description
func (c *StageCatalog) Descriptions() map[string]string {
	out := make(map[string]string, len(c.Stages))
	for _, s := range c.Stages {
		if s.Description != "" {
			out[s.Name] = s.Description
		}
	}
	return out
}

// DisplayNames maps stage names to their display name
func (c *StageCatalog) DisplayNames() map[string]string {
	out := make(map[string]string, len(c.Stages))
	for _, s := range c.Stages {
		if s.DisplayName != "" {
			out[s.Name] = s.DisplayName
		}
	}
	return out
}

// InternalStages lists the names marked internal
func (c *StageCatalog) InternalStages() []string {
	var out []string
	for _, s := range c.Stages {
		if s.Internal {
			out = append(out, s.Name)
		}
	}
	return out
}

// TerminalStage returns the stage marked terminal, if any
func (c *StageCatalog) TerminalStage() string {
	for _, s := range c.Stages {
		if s.Terminal {
			return s.Name
		}
	}
	return ""
}
