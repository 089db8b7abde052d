// Package config loads server configuration from a TOML file with
// environment-variable overrides (CCDEV_* keys).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Sandbox backend modes.
const (
	ModeAuto   = "auto"
	ModeRemote = "remote"
	ModeLocal  = "local"
	ModeMock   = "mock"
)

// Defaults.
const (
	DefaultModel       = "claude-sonnet-4-20250514"
	DefaultMaxTokens   = 4096
	DefaultExecTimeout = 30
)

// Config holds all server settings.
type Config struct {
	ListenAddr    string `toml:"listen_addr"`
	WorkspaceRoot string `toml:"workspace_root"`

	SandboxMode  string `toml:"sandbox_mode"` // auto, remote, local, mock
	SandboxURL   string `toml:"sandbox_url"`
	SandboxToken string `toml:"sandbox_token"`

	AnthropicAPIKey string `toml:"anthropic_api_key"`
	Model           string `toml:"model"`
	MaxTokens       int    `toml:"max_tokens"`

	ExecTimeoutSeconds int `toml:"exec_timeout_seconds"`

	HistoryDBPath string `toml:"history_db_path"`
	HistoryLimit  int    `toml:"history_limit"`

	APIToken string `toml:"api_token"`
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		SandboxMode:        ModeAuto,
		Model:              DefaultModel,
		MaxTokens:          DefaultMaxTokens,
		ExecTimeoutSeconds: DefaultExecTimeout,
		HistoryLimit:       100,
		LogLevel:           "info",
	}
}

// Load reads configuration: defaults, then the TOML file at path if it
// exists, then environment overrides. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setStr("CCDEV_LISTEN_ADDR", &cfg.ListenAddr)
	setStr("CCDEV_WORKSPACE_ROOT", &cfg.WorkspaceRoot)
	setStr("CCDEV_SANDBOX_MODE", &cfg.SandboxMode)
	setStr("CCDEV_SANDBOX_URL", &cfg.SandboxURL)
	setStr("CCDEV_SANDBOX_TOKEN", &cfg.SandboxToken)
	setStr("CCDEV_ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	setStr("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	setStr("CCDEV_MODEL", &cfg.Model)
	setInt("CCDEV_MAX_TOKENS", &cfg.MaxTokens)
	setInt("CCDEV_EXEC_TIMEOUT_SECONDS", &cfg.ExecTimeoutSeconds)
	setStr("CCDEV_HISTORY_DB_PATH", &cfg.HistoryDBPath)
	setInt("CCDEV_HISTORY_LIMIT", &cfg.HistoryLimit)
	setStr("CCDEV_API_TOKEN", &cfg.APIToken)
	setStr("CCDEV_LOG_LEVEL", &cfg.LogLevel)
}

func (c Config) validate() error {
	switch c.SandboxMode {
	case ModeAuto, ModeRemote, ModeLocal, ModeMock:
	default:
		return fmt.Errorf("invalid sandbox_mode: %q", c.SandboxMode)
	}
	if c.SandboxMode == ModeRemote && c.SandboxURL == "" {
		return fmt.Errorf("sandbox_mode remote requires sandbox_url")
	}
	if c.SandboxMode == ModeLocal && c.WorkspaceRoot == "" {
		return fmt.Errorf("sandbox_mode local requires workspace_root")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}
