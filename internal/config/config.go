// Package config loads the process-wide configuration keys the runtime,
// sandbox, and model router read once at startup: loop bounds, sandbox
// resource limits, per-provider credentials and routing priority, and
// upload constraints. Shape follows the teacher's internal/config/config.go
// struct-of-structs-with-yaml-tags convention; env var precedence follows
// the teacher's internal/config/loader.go (env overrides win over file
// values, which win over the package defaults).
package config

import "time"

// Config is the root configuration loaded once per process.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	LLM      LLMConfig      `yaml:"llm"`
	Upload   UploadConfig   `yaml:"upload"`
	R        RConfig        `yaml:"r"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AgentConfig tunes the ReAct loop.
type AgentConfig struct {
	// MaxIterations bounds the loop. 0 means unbounded (still subject to
	// cancellation).
	MaxIterations int `yaml:"max_iterations"`
}

// SandboxConfig bounds the subprocess sandbox a run_code call executes in.
type SandboxConfig struct {
	TimeoutSeconds             int   `yaml:"sandbox_timeout_seconds"`
	MaxMemoryBytes             int64 `yaml:"sandbox_max_memory_bytes"`
	ImageExportTimeoutSeconds  int   `yaml:"sandbox_image_export_timeout_seconds"`
}

// WallClock returns SandboxConfig.TimeoutSeconds as a time.Duration.
func (s SandboxConfig) WallClock() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ImageExportTimeout returns SandboxConfig.ImageExportTimeoutSeconds as a
// time.Duration.
func (s SandboxConfig) ImageExportTimeout() time.Duration {
	return time.Duration(s.ImageExportTimeoutSeconds) * time.Second
}

// LLMConfig configures the default sampling parameters and the
// priority-ordered provider list the Model Router fails over across.
type LLMConfig struct {
	Temperature float64                   `yaml:"llm_temperature"`
	MaxTokens   int                       `yaml:"llm_max_tokens"`
	MaxRetries  int                       `yaml:"llm_max_retries"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one entry in LLMConfig.Providers, keyed by provider
// name ("anthropic", "openai", "bedrock", "google").
type ProviderConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Priority int    `yaml:"priority"` // lower runs first
}

// UploadConfig bounds what a gateway may accept as session input files.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_upload_extensions"`
	MaxBytes          int64    `yaml:"max_upload_bytes"`
}

// RConfig toggles the optional R sandbox backend.
type RConfig struct {
	Enabled                     bool `yaml:"r_enabled"`
	PackageInstallTimeoutSeconds int  `yaml:"r_package_install_timeout_seconds"`
}

// PackageInstallTimeout returns RConfig.PackageInstallTimeoutSeconds as a
// time.Duration.
func (r RConfig) PackageInstallTimeout() time.Duration {
	return time.Duration(r.PackageInstallTimeoutSeconds) * time.Second
}

// ServerConfig holds a listen address. cmd/agentcored does not listen on
// a socket and does not read it.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures the process-wide slog handler. cmd/agentcored
// reads Level only; it always uses a JSON handler, whatever Format says.
type LoggingConfig struct {
	Level  string `yaml:"level"` // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "json" | "text"
}

// Default returns the package's baseline configuration, applied before a
// config file or environment overrides are layered on top.
func Default() Config {
	return Config{
		Agent: AgentConfig{MaxIterations: 25},
		Sandbox: SandboxConfig{
			TimeoutSeconds:            30,
			MaxMemoryBytes:            512 << 20,
			ImageExportTimeoutSeconds: 10,
		},
		LLM: LLMConfig{
			Temperature: 0.2,
			MaxTokens:   4096,
			MaxRetries:  2,
			Providers:   map[string]ProviderConfig{},
		},
		Upload: UploadConfig{
			AllowedExtensions: []string{".csv", ".tsv", ".parquet", ".json", ".xlsx"},
			MaxBytes:          100 << 20,
		},
		R: RConfig{
			Enabled:                      false,
			PackageInstallTimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
