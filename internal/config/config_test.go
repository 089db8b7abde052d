package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", cfg.MaxTokens)
	}
	if cfg.SandboxMode != ModeAuto {
		t.Errorf("SandboxMode = %q", cfg.SandboxMode)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccdev.toml")
	body := `
listen_addr = ":9999"
sandbox_mode = "mock"
max_tokens = 2048
history_limit = 50
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.SandboxMode != ModeMock || cfg.MaxTokens != 2048 || cfg.HistoryLimit != 50 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q", cfg.Model)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CCDEV_LISTEN_ADDR", ":7777")
	t.Setenv("CCDEV_MODEL", "claude-test")
	t.Setenv("CCDEV_MAX_TOKENS", "512")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7777" || cfg.Model != "claude-test" || cfg.MaxTokens != 512 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"bad mode", func(c *Config) { c.SandboxMode = "cloud" }},
		{"remote without url", func(c *Config) { c.SandboxMode = ModeRemote }},
		{"local without workspace", func(c *Config) { c.SandboxMode = ModeLocal }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
