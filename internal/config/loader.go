package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path (if it exists), decodes it over Default(), and applies
// environment variable overrides for the fields most likely to carry
// secrets or per-deployment values. Precedence is env > file > default,
// matching the teacher's loader.go convention of letting environment
// variables win over whatever the file says.
//
// A missing path is not an error — Load falls back to Default() with env
// overrides still applied, so a containerized deployment can run on
// environment variables alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %q: %w", path, err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers environment variables over whatever Load
// already decoded from the file, so secrets never need to live on disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTCORE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("AGENTCORE_SANDBOX_MAX_MEMORY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sandbox.MaxMemoryBytes = n
		}
	}

	overrideProviderAPIKey(cfg, "anthropic", "ANTHROPIC_API_KEY")
	overrideProviderAPIKey(cfg, "openai", "OPENAI_API_KEY")
	overrideProviderAPIKey(cfg, "google", "GOOGLE_API_KEY")

	if v := os.Getenv("AGENTCORE_R_ENABLED"); v != "" {
		cfg.R.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// overrideProviderAPIKey sets cfg.LLM.Providers[name].APIKey from envVar
// when set, creating the entry if the file never mentioned that provider.
func overrideProviderAPIKey(cfg *Config, name, envVar string) {
	key := os.Getenv(envVar)
	if key == "" {
		return
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{}
	}
	p := cfg.LLM.Providers[name]
	p.APIKey = key
	cfg.LLM.Providers[name] = p
}
