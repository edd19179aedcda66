// Package config loads and validates the routing layer's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration: file values with environment
// variables taking precedence for API keys.
type Config struct {
	ExplorationRate         float64
	QualityThreshold        float64
	MinSamplesForConfidence int
	EvaluationTimeoutMs     int
	QualityWeight           float64
	CostWeight              float64
	Candidates              []CandidateConfig
	Evaluator               EvaluatorConfig
	State                   StateConfig

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
}

// FileConfig represents the structure of the YAML config file.
type FileConfig struct {
	ExplorationRate         *float64          `yaml:"exploration_rate,omitempty"`
	QualityThreshold        *float64          `yaml:"quality_threshold,omitempty"`
	MinSamplesForConfidence *int              `yaml:"min_samples_for_confidence,omitempty"`
	EvaluationTimeoutMs     *int              `yaml:"evaluation_timeout_ms,omitempty"`
	QualityWeight           *float64          `yaml:"quality_weight,omitempty"`
	CostWeight              *float64          `yaml:"cost_weight,omitempty"`
	Candidates              []CandidateConfig `yaml:"candidates,omitempty"`
	Evaluator               EvaluatorConfig   `yaml:"evaluator,omitempty"`
	State                   StateConfig       `yaml:"state,omitempty"`
	APIKeys                 APIKeysConfig     `yaml:"api_keys,omitempty"`
}

// CandidateConfig names one routable provider/model pair.
type CandidateConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// EvaluatorConfig selects the response evaluator.
type EvaluatorConfig struct {
	// Kind is one of: heuristic, anthropic, openai, gemini.
	Kind  string `yaml:"kind,omitempty"`
	Model string `yaml:"model,omitempty"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	Path           string `yaml:"path,omitempty"`
	AutoSave       bool   `yaml:"auto_save,omitempty"`
	VersionsToKeep int    `yaml:"versions_to_keep,omitempty"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
}

// Default returns the configuration defaults with no candidates and the
// heuristic evaluator.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, &FileConfig{})
	return cfg
}

// Load reads configuration from a YAML file and the environment.
// Environment variables take precedence over file API keys. A missing
// file yields the defaults; an invalid one fails fast.
func Load(path string) (*Config, error) {
	fileCfg := &FileConfig{}

	if path == "" {
		dir, err := defaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	applyDefaults(cfg, fileCfg)

	cfg.AnthropicAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", fileCfg.APIKeys.Anthropic)
	cfg.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", fileCfg.APIKeys.OpenAI)
	cfg.GoogleAPIKey = getEnvOrDefault("GOOGLE_API_KEY", fileCfg.APIKeys.Google)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values. Called at load time; callers
// constructing a Config by hand should call it too.
func (c *Config) Validate() error {
	if c.ExplorationRate < 0 || c.ExplorationRate > 1 {
		return fmt.Errorf("exploration_rate %f outside [0,1]", c.ExplorationRate)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold %f outside [0,1]", c.QualityThreshold)
	}
	if c.MinSamplesForConfidence < 0 {
		return fmt.Errorf("min_samples_for_confidence must be non-negative, got %d", c.MinSamplesForConfidence)
	}
	if c.EvaluationTimeoutMs <= 0 {
		return fmt.Errorf("evaluation_timeout_ms must be positive, got %d", c.EvaluationTimeoutMs)
	}
	if c.QualityWeight < 0 || c.CostWeight < 0 {
		return fmt.Errorf("quality_weight and cost_weight must be non-negative")
	}
	if c.State.VersionsToKeep < 0 {
		return fmt.Errorf("state.versions_to_keep must be non-negative, got %d", c.State.VersionsToKeep)
	}
	switch c.Evaluator.Kind {
	case "heuristic", "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("unknown evaluator kind %q", c.Evaluator.Kind)
	}
	for i, cand := range c.Candidates {
		if cand.Provider == "" || cand.Model == "" {
			return fmt.Errorf("candidate %d: provider and model are required", i)
		}
	}
	return nil
}

func applyDefaults(cfg *Config, file *FileConfig) {
	cfg.ExplorationRate = floatOr(file.ExplorationRate, 0.1)
	cfg.QualityThreshold = floatOr(file.QualityThreshold, 0.7)
	cfg.MinSamplesForConfidence = intOr(file.MinSamplesForConfidence, 10)
	cfg.EvaluationTimeoutMs = intOr(file.EvaluationTimeoutMs, 30000)
	cfg.QualityWeight = floatOr(file.QualityWeight, 0.7)
	cfg.CostWeight = floatOr(file.CostWeight, 0.3)
	cfg.Candidates = file.Candidates
	cfg.Evaluator = file.Evaluator
	cfg.State = file.State

	if cfg.Evaluator.Kind == "" {
		cfg.Evaluator.Kind = "heuristic"
	}
	if cfg.State.Path == "" {
		if dir, err := defaultConfigDir(); err == nil {
			cfg.State.Path = filepath.Join(dir, "performance.json")
		}
	}
	if cfg.State.VersionsToKeep == 0 {
		cfg.State.VersionsToKeep = 3
	}
}

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".adaptgate"), nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}
