package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Venue.ListenAddr != ":8480" {
		t.Fatalf("listen_addr = %s", cfg.Venue.ListenAddr)
	}
	if cfg.Venue.RevealDelay.D() != time.Hour {
		t.Fatalf("reveal_delay = %s", cfg.Venue.RevealDelay.D())
	}
	if cfg.Venue.Collateral != "USDC" {
		t.Fatalf("collateral = %s", cfg.Venue.Collateral)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
venue:
  listen_addr: ":9000"
  reveal_delay: 30m
  reveal_window: 2h
  require_proof: true
relayer:
  poll_interval: 1s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Venue.ListenAddr != ":9000" {
		t.Fatalf("listen_addr = %s", cfg.Venue.ListenAddr)
	}
	if cfg.Venue.RevealDelay.D() != 30*time.Minute {
		t.Fatalf("reveal_delay = %s", cfg.Venue.RevealDelay.D())
	}
	if cfg.Venue.RevealWindow.D() != 2*time.Hour {
		t.Fatalf("reveal_window = %s", cfg.Venue.RevealWindow.D())
	}
	if !cfg.Venue.RequireProof {
		t.Fatal("require_proof 未生效")
	}
	if cfg.Relayer.PollInterval.D() != time.Second {
		t.Fatalf("poll_interval = %s", cfg.Relayer.PollInterval.D())
	}
	// 未覆盖的字段保留默认值
	if cfg.Venue.Collateral != "USDC" {
		t.Fatalf("collateral = %s", cfg.Venue.Collateral)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DARKPOOL_LISTEN_ADDR", ":7000")
	t.Setenv("DARKPOOL_REVEAL_DELAY", "10m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Venue.ListenAddr != ":7000" {
		t.Fatalf("listen_addr = %s", cfg.Venue.ListenAddr)
	}
	if cfg.Venue.RevealDelay.D() != 10*time.Minute {
		t.Fatalf("reveal_delay = %s", cfg.Venue.RevealDelay.D())
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("venue:\n  reveal_delay: never\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("非法时长未报错")
	}
}
