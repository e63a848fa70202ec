package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		if cfg.ShellPort != 2230 {
			t.Errorf("expected default port 2230, got %d", cfg.ShellPort)
		}
		if cfg.PromptSentinel != ":21000] > " {
			t.Errorf("unexpected default sentinel: %q", cfg.PromptSentinel)
		}
		if cfg.CacheBackend != "file" {
			t.Errorf("expected file cache backend, got %q", cfg.CacheBackend)
		}
		if cfg.CacheDir == "" {
			t.Error("expected a cache dir to be derived")
		}
	})

	t.Run("Environment Overrides", func(t *testing.T) {
		t.Setenv("SHELL_HOST", "example.org")
		t.Setenv("SHELL_PORT", "2222")
		t.Setenv("COMMAND_TIMEOUT", "2m")
		t.Setenv("CACHE_DIR", "/tmp/sq-cache")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		if cfg.ShellHost != "example.org" {
			t.Errorf("expected host override, got %q", cfg.ShellHost)
		}
		if cfg.ShellPort != 2222 {
			t.Errorf("expected port override, got %d", cfg.ShellPort)
		}
		if cfg.CommandTimeout != 2*time.Minute {
			t.Errorf("expected 2m timeout, got %v", cfg.CommandTimeout)
		}
		if cfg.CacheDir != "/tmp/sq-cache" {
			t.Errorf("expected cache dir override, got %q", cfg.CacheDir)
		}
	})
}
