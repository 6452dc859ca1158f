package main

import (
	"path/filepath"
	"testing"

	"github.com/obsidium-dev/obsidium/internal/config"
	"github.com/obsidium-dev/obsidium/internal/errors"
	"github.com/obsidium-dev/obsidium/pkg/world"
)

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost", "localhost:25565"},
		{"localhost:25570", "localhost:25570"},
		{"::1", "[::1]:25565"},
		{"[::1]:1", "[::1]:1"},
	}
	for _, tt := range tests {
		if got := withDefaultPort(tt.in); got != tt.want {
			t.Errorf("withDefaultPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "srv")

	cmd := initCmd()
	cmd.SetArgs([]string{dir, "--sqlite", "--motd", "Hello"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.MOTD != "Hello" {
		t.Errorf("MOTD = %q", cfg.Server.MOTD)
	}
	if cfg.World.Backend != config.BackendSQLite || cfg.Bans.Backend != config.BackendSQLite {
		t.Errorf("backends = %q/%q", cfg.World.Backend, cfg.Bans.Backend)
	}

	again := initCmd()
	again.SetArgs([]string{dir})
	if err := again.Execute(); !errors.HasCode(err, "E104") {
		t.Errorf("second init = %v, want E104", err)
	}

	forced := initCmd()
	forced.SetArgs([]string{dir, "--force"})
	if err := forced.Execute(); err != nil {
		t.Errorf("forced init: %v", err)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Address != config.DefaultAddress {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
}

func TestOpenStores(t *testing.T) {
	dir := t.TempDir()
	cfg := config.New()
	if err := cfg.SaveTo(filepath.Join(dir, config.ConfigFileName)); err != nil {
		t.Fatal(err)
	}

	st, err := openWorld(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*world.MemoryStore); !ok {
		t.Errorf("memory backend opened %T", st)
	}
	st.Close()

	cfg.World = config.WorldConfig{Backend: config.BackendSQLite, Path: "world.db"}
	cfg.Bans = config.BansConfig{Backend: config.BackendSQLite, Path: "bans.db"}
	st, err = openWorld(cfg)
	if err != nil {
		t.Fatalf("sqlite world: %v", err)
	}
	defer st.Close()

	bans, closeBans, err := openBans(cfg)
	if err != nil {
		t.Fatalf("sqlite bans: %v", err)
	}
	defer closeBans()
	if bans == nil {
		t.Fatal("nil ban list")
	}
}
