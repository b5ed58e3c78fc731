package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig should not fail without a config file: %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("Expected memory store backend, got %s", cfg.Store.Backend)
	}
	if cfg.Presence.InactiveThreshold != 2*time.Minute {
		t.Errorf("Expected 2m inactive threshold, got %v", cfg.Presence.InactiveThreshold)
	}
	if cfg.Presence.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected 30s heartbeat, got %v", cfg.Presence.HeartbeatInterval)
	}
	if cfg.Presence.LoginTimeout != 10*time.Second {
		t.Errorf("Expected 10s login timeout, got %v", cfg.Presence.LoginTimeout)
	}
	if cfg.Notify.PlayerAvailable != 5*time.Second || cfg.Notify.Transient != 3*time.Second {
		t.Errorf("Unexpected notification expiry defaults: %+v", cfg.Notify)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  http_address: ":7000"
store:
  backend: redis
  redis:
    addr: "redis:6379"
presence:
  inactive_threshold: 90s
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.HTTPAddress != ":7000" {
		t.Errorf("Expected :7000, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "redis:6379" {
		t.Errorf("Unexpected store config: %+v", cfg.Store)
	}
	if cfg.Presence.InactiveThreshold != 90*time.Second {
		t.Errorf("Expected 90s threshold, got %v", cfg.Presence.InactiveThreshold)
	}
	// untouched keys keep their defaults
	if cfg.Server.RPCAddress != ":8081" {
		t.Errorf("Expected default rpc address, got %s", cfg.Server.RPCAddress)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("RPS_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected env override to debug, got %s", cfg.Log.Level)
	}
}
