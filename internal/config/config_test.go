package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Agent.MaxIterations != want.Agent.MaxIterations {
		t.Errorf("MaxIterations = %d, want %d", cfg.Agent.MaxIterations, want.Agent.MaxIterations)
	}
}

func TestLoad_FileOverridesDefault(t *testing.T) {
	path := writeConfig(t, `
agent:
  max_iterations: 10
sandbox:
  sandbox_timeout_seconds: 5
  sandbox_max_memory_bytes: 1048576
llm:
  llm_temperature: 0.5
  providers:
    anthropic:
      model: claude-sonnet-4-20250514
      priority: 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Sandbox.MaxMemoryBytes != 1048576 {
		t.Errorf("MaxMemoryBytes = %d, want 1048576", cfg.Sandbox.MaxMemoryBytes)
	}
	if got := cfg.LLM.Providers["anthropic"].Model; got != "claude-sonnet-4-20250514" {
		t.Errorf("anthropic model = %q, want claude-sonnet-4-20250514", got)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  max_iterations: 10
llm:
  providers:
    anthropic:
      model: claude-sonnet-4-20250514
`)

	t.Setenv("AGENTCORE_MAX_ITERATIONS", "99")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 99 {
		t.Errorf("MaxIterations = %d, want 99 (env must win over file)", cfg.Agent.MaxIterations)
	}
	if got := cfg.LLM.Providers["anthropic"].APIKey; got != "sk-test-env-key" {
		t.Errorf("anthropic api_key = %q, want env override", got)
	}
	if got := cfg.LLM.Providers["anthropic"].Model; got != "claude-sonnet-4-20250514" {
		t.Errorf("anthropic model = %q, want file value preserved", got)
	}
}

func TestLoad_EnvCreatesProviderEntryWhenFileOmitsIt(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.LLM.Providers["openai"].APIKey; got != "sk-test-openai" {
		t.Errorf("openai api_key = %q, want sk-test-openai", got)
	}
}
