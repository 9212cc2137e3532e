package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.MatchRetryInterval != 3*time.Second {
		t.Errorf("match_retry_interval = %s, want 3s", cfg.MatchRetryInterval)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.StaleAfter != 120*time.Second {
		t.Errorf("sweep = %s stale = %s", cfg.SweepInterval, cfg.StaleAfter)
	}
	if len(cfg.ICEServers) != 1 {
		t.Errorf("ice_servers = %v", cfg.ICEServers)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := []byte("port: 9090\nmode: debug\nstale_after: 90s\nice_servers:\n  - stun:example.org:3478\n  - turn:turn.example.org\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROULETTE_MATCH_RETRY_INTERVAL", "1s")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 9090 || cfg.Mode != "debug" {
		t.Errorf("got port=%d mode=%s", cfg.Port, cfg.Mode)
	}
	if cfg.StaleAfter != 90*time.Second {
		t.Errorf("stale_after = %s", cfg.StaleAfter)
	}
	if cfg.MatchRetryInterval != time.Second {
		t.Errorf("env override ignored: %s", cfg.MatchRetryInterval)
	}
	if len(cfg.ICEServers) != 2 {
		t.Errorf("ice_servers = %v", cfg.ICEServers)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("stale_after: 10s\nping_period: 54s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for stale_after <= ping_period")
	}
}
