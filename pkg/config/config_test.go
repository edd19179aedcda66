package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.ExplorationRate != 0.1 {
		t.Fatalf("expected exploration rate 0.1, got %f", cfg.ExplorationRate)
	}
	if cfg.QualityThreshold != 0.7 {
		t.Fatalf("expected quality threshold 0.7, got %f", cfg.QualityThreshold)
	}
	if cfg.MinSamplesForConfidence != 10 {
		t.Fatalf("expected min samples 10, got %d", cfg.MinSamplesForConfidence)
	}
	if cfg.EvaluationTimeoutMs != 30000 {
		t.Fatalf("expected timeout 30000ms, got %d", cfg.EvaluationTimeoutMs)
	}
	if cfg.Evaluator.Kind != "heuristic" {
		t.Fatalf("expected heuristic evaluator, got %q", cfg.Evaluator.Kind)
	}
	if cfg.State.VersionsToKeep != 3 {
		t.Fatalf("expected retention 3, got %d", cfg.State.VersionsToKeep)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
exploration_rate: 0.25
quality_threshold: 0.6
min_samples_for_confidence: 5
evaluation_timeout_ms: 5000
candidates:
  - provider: anthropic
    model: claude-sonnet-4-20250514
  - provider: openai
    model: gpt-5.2-instant
evaluator:
  kind: heuristic
state:
  path: /tmp/adaptgate/perf.json
  auto_save: true
  versions_to_keep: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExplorationRate != 0.25 || cfg.QualityThreshold != 0.6 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.Candidates) != 2 || cfg.Candidates[1].Provider != "openai" {
		t.Fatalf("candidates not parsed: %+v", cfg.Candidates)
	}
	if !cfg.State.AutoSave || cfg.State.VersionsToKeep != 5 {
		t.Fatalf("state config not parsed: %+v", cfg.State)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config must fall back to defaults: %v", err)
	}
	if cfg.ExplorationRate != 0.1 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestZeroExplicitValuesRespected(t *testing.T) {
	path := writeConfig(t, "exploration_rate: 0\nmin_samples_for_confidence: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExplorationRate != 0 {
		t.Fatalf("explicit zero exploration rate lost: %f", cfg.ExplorationRate)
	}
	if cfg.MinSamplesForConfidence != 0 {
		t.Fatalf("explicit zero min samples lost: %d", cfg.MinSamplesForConfidence)
	}
}

func TestValidationFailsFast(t *testing.T) {
	cases := []string{
		"exploration_rate: 1.5\n",
		"exploration_rate: -0.1\n",
		"quality_threshold: 2\n",
		"min_samples_for_confidence: -1\n",
		"evaluation_timeout_ms: -5\n",
		"evaluator:\n  kind: astrology\n",
		"candidates:\n  - provider: anthropic\n",
	}
	for _, content := range cases {
		path := writeConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Fatalf("expected validation error for %q", content)
		}
	}
}

func TestEnvOverridesFileKeys(t *testing.T) {
	path := writeConfig(t, "api_keys:\n  anthropic: file-key\n  openai: file-openai\n")

	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "env-key" {
		t.Fatalf("env must win: %q", cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "file-openai" {
		t.Fatalf("file key must apply when env unset: %q", cfg.OpenAIAPIKey)
	}
}
