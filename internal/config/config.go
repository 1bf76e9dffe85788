// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/warden/internal/permission"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "warden.toml"

// Config represents the warden configuration.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	LLM        LLMConfig        `toml:"llm"`
	Permission PermissionConfig `toml:"permission"`
	Plans      PlansConfig      `toml:"plans"`
	Executor   ExecutorConfig   `toml:"executor"`
	Storage    StorageConfig    `toml:"storage"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Watch      WatchConfig      `toml:"watch"`
}

// AgentConfig contains workspace settings.
type AgentConfig struct {
	Workspace string `toml:"workspace"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
	Thinking     string `toml:"thinking"`      // Thinking level: auto|off|low|medium|high
	MaxRetries   int    `toml:"max_retries"`   // Max retry attempts (default 5)
	RetryBackoff string `toml:"retry_backoff"` // Max backoff duration (default "60s")
}

// PermissionConfig contains the escalation tier and audit settings.
type PermissionConfig struct {
	Tier        string                `toml:"tier"`        // restrictive|balanced|permissive
	AuditLog    string                `toml:"audit_log"`   // default <storage>/audit.ndjson
	Interactive string                `toml:"interactive"` // auto|always|never
	Rules       []permission.RuleSpec `toml:"rules"`
}

// PlansConfig contains plan storage settings.
type PlansConfig struct {
	Dir string `toml:"dir"` // default <storage>/plans
}

// ExecutorConfig contains step execution defaults.
type ExecutorConfig struct {
	CommandTimeout string `toml:"command_timeout"`
	BackoffBase    string `toml:"backoff_base"`
	BackoffCap     string `toml:"backoff_cap"`
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path string `toml:"path"` // Base directory for all persistent data
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc, http or noop
}

// WatchConfig contains the workflow trigger directory settings.
type WatchConfig struct {
	Dir         string `toml:"dir"`
	MinInterval string `toml:"min_interval"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Permission: PermissionConfig{
			Tier:        string(permission.TierBalanced),
			Interactive: "auto",
		},
		Executor: ExecutorConfig{
			CommandTimeout: "30s",
			BackoffBase:    "1s",
			BackoffCap:     "30s",
		},
		Storage: StorageConfig{
			Path: "~/.local/warden",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Watch: WatchConfig{
			Dir:         "triggers",
			MinInterval: "2s",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path, or warden.toml in the current directory when path is
// empty. A missing default file yields the defaults; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	cfg, err := LoadFile(DefaultFile)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	if _, err := permission.ParseTier(c.Permission.Tier); err != nil {
		return err
	}
	switch c.Permission.Interactive {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("permission.interactive must be auto, always or never, got %q", c.Permission.Interactive)
	}
	durations := map[string]string{
		"executor.command_timeout": c.Executor.CommandTimeout,
		"executor.backoff_base":    c.Executor.BackoffBase,
		"executor.backoff_cap":     c.Executor.BackoffCap,
		"watch.min_interval":       c.Watch.MinInterval,
		"llm.retry_backoff":        c.LLM.RetryBackoff,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if _, err := permission.CompileRules(c.Permission.Rules); err != nil {
		return err
	}
	return nil
}

// Tier returns the configured tier. Validate has already rejected bad values.
func (c *Config) Tier() permission.Tier {
	t, err := permission.ParseTier(c.Permission.Tier)
	if err != nil {
		return permission.TierBalanced
	}
	return t
}

// Duration parses a duration setting, returning fallback when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return fallback
}

// StoragePath returns the storage directory with ~ expanded.
func (c *Config) StoragePath() string {
	return ExpandHome(c.Storage.Path)
}

// AuditLogPath returns the audit log location.
func (c *Config) AuditLogPath() string {
	if c.Permission.AuditLog != "" {
		return ExpandHome(c.Permission.AuditLog)
	}
	return filepath.Join(c.StoragePath(), "audit.ndjson")
}

// PlansDir returns the plan directory.
func (c *Config) PlansDir() string {
	if c.Plans.Dir != "" {
		return ExpandHome(c.Plans.Dir)
	}
	return filepath.Join(c.StoragePath(), "plans")
}

// WorkspacePath returns the absolute workspace, defaulting to the working directory.
func (c *Config) WorkspacePath() (string, error) {
	ws := ExpandHome(c.Agent.Workspace)
	if ws == "" {
		ws = "."
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return abs, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}
