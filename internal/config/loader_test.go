package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Addr != Default().Addr || cfg.AuthTimeout != Default().AuthTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "addr: \":9999\"\nauth_timeout: 3s\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr = %q, want :9999", cfg.Addr)
	}
	if cfg.AuthTimeout != 3*time.Second {
		t.Fatalf("auth_timeout = %v, want 3s", cfg.AuthTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q, want debug", cfg.LogLevel)
	}
	// Unset keys keep their defaults.
	if cfg.ShutdownTimeout != Default().ShutdownTimeout {
		t.Fatalf("shutdown_timeout = %v, want default", cfg.ShutdownTimeout)
	}
}
