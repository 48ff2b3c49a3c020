// Package config loads scriptorium configuration from the repository root.
// The primary encoding is scriptorium.json; scriptorium.yaml is accepted as
// an alternative. A missing file or missing fields fall back to defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default file names probed at the repository root. JSON wins when both
// exist.
const (
	JSONFile = "scriptorium.json"
	YAMLFile = "scriptorium.yaml"
)

// Models names the LLM per role.
type Models struct {
	Architect string `json:"architect" yaml:"architect"`
	Coding    string `json:"coding" yaml:"coding"`
	Manager   string `json:"manager" yaml:"manager"`
}

// ReasoningEffort holds the per-role effort hints passed to the harness.
type ReasoningEffort struct {
	Architect string `json:"architect" yaml:"architect"`
	Coding    string `json:"coding" yaml:"coding"`
	Manager   string `json:"manager" yaml:"manager"`
}

// Endpoints holds the addresses the orchestrator binds or advertises.
type Endpoints struct {
	Local string `json:"local" yaml:"local"`
}

// Health controls the project health command set.
type Health struct {
	IntegrationTest bool `json:"integrationTest" yaml:"integrationTest"`
}

// Agent tunes the coding-agent supervisor.
type Agent struct {
	MaxAttempts       int    `json:"maxAttempts" yaml:"maxAttempts"`
	NoOutputTimeoutMs int    `json:"noOutputTimeoutMs" yaml:"noOutputTimeoutMs"`
	HardTimeoutMs     int    `json:"hardTimeoutMs" yaml:"hardTimeoutMs"`
	SkipGitRepoCheck  bool   `json:"skipGitRepoCheck" yaml:"skipGitRepoCheck"`
	Binary            string `json:"binary" yaml:"binary"`
}

// Config is the full scriptorium configuration.
type Config struct {
	Models          Models          `json:"models" yaml:"models"`
	ReasoningEffort ReasoningEffort `json:"reasoningEffort" yaml:"reasoningEffort"`
	Endpoints       Endpoints       `json:"endpoints" yaml:"endpoints"`
	Health          Health          `json:"health" yaml:"health"`
	Agent           Agent           `json:"agent" yaml:"agent"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Models: Models{
			Architect: "gpt-5",
			Coding:    "gpt-5-codex",
			Manager:   "gpt-5",
		},
		ReasoningEffort: ReasoningEffort{
			Architect: "high",
			Coding:    "medium",
			Manager:   "medium",
		},
		Endpoints: Endpoints{
			Local: "http://127.0.0.1:8097",
		},
		Agent: Agent{
			MaxAttempts:       2,
			NoOutputTimeoutMs: 10 * 60 * 1000,
			HardTimeoutMs:     60 * 60 * 1000,
			Binary:            "codex",
		},
	}
}

// Load reads the config from repoDir, preferring scriptorium.json over
// scriptorium.yaml. A missing file yields defaults; a malformed file is an
// error.
func Load(repoDir string) (*Config, error) {
	jsonPath := filepath.Join(repoDir, JSONFile)
	if data, err := os.ReadFile(jsonPath); err == nil {
		cfg := DefaultConfig()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", JSONFile, err)
		}
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", JSONFile, err)
	}

	yamlPath := filepath.Join(repoDir, YAMLFile)
	if data, err := os.ReadFile(yamlPath); err == nil {
		cfg := DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", YAMLFile, err)
		}
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", YAMLFile, err)
	}

	return DefaultConfig(), nil
}

// ConfigPath returns the config file path Load would use, or "" when the
// repository has no config file.
func ConfigPath(repoDir string) string {
	for _, name := range []string{JSONFile, YAMLFile} {
		p := filepath.Join(repoDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// HealthCommands returns the health command set for this config: always
// `make test`, plus `make integration-test` when enabled.
func (c *Config) HealthCommands() [][]string {
	cmds := [][]string{{"make", "test"}}
	if c.Health.IntegrationTest {
		cmds = append(cmds, []string{"make", "integration-test"})
	}
	return cmds
}
