package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/obsidium-dev/obsidium/internal/errors"
	"github.com/obsidium-dev/obsidium/pkg/server"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Admin.Address != DefaultAdminAddress {
		t.Errorf("Admin.Address = %q, want %q", cfg.Admin.Address, DefaultAdminAddress)
	}
	if cfg.World.Backend != BackendMemory {
		t.Errorf("World.Backend = %q, want %q", cfg.World.Backend, BackendMemory)
	}
	if cfg.Server.CompressionThreshold != server.DefaultConfig().CompressionThreshold {
		t.Errorf("Server.CompressionThreshold = %d", cfg.Server.CompressionThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	// Test loading non-existent config
	_, err := Load(tmpDir)
	if !errors.HasCode(err, "E100") {
		t.Errorf("missing config error = %v, want E100", err)
	}

	configJSON := `{
  "server": {
    "address": ":25570",
    "motd": "Test server",
    "max_players": 5,
    "compression_threshold": -1
  },
  "websocket": {"address": ":8080"},
  "world": {"backend": "sqlite"},
  "log": {"level": "debug", "format": "json"},
  "timeouts": {"keep_alive_interval": "5s", "keep_alive_timeout": "20s"}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Address != ":25570" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Server.MaxPlayers != 5 || cfg.Server.CompressionThreshold != -1 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	// Fields missing from the file keep their defaults.
	if cfg.Server.ViewDistance != server.DefaultConfig().ViewDistance {
		t.Errorf("Server.ViewDistance = %d", cfg.Server.ViewDistance)
	}
	if cfg.Admin.Address != DefaultAdminAddress {
		t.Errorf("Admin.Address = %q", cfg.Admin.Address)
	}
	if cfg.WebSocket.Path != DefaultWebSocketPath {
		t.Errorf("WebSocket.Path = %q, want %q", cfg.WebSocket.Path, DefaultWebSocketPath)
	}
	if cfg.World.Path != "world.db" {
		t.Errorf("World.Path = %q, want world.db", cfg.World.Path)
	}
	if got := cfg.Resolve(cfg.World.Path); got != filepath.Join(tmpDir, "world.db") {
		t.Errorf("Resolve = %q", got)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir = %q, want %q", cfg.Dir(), tmpDir)
	}

	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel = %v, %v", level, err)
	}

	sc, err := cfg.ToServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.KeepAliveInterval != 5*time.Second || sc.KeepAliveTimeout != 20*time.Second {
		t.Errorf("keep-alive = %v/%v", sc.KeepAliveInterval, sc.KeepAliveTimeout)
	}
	if sc.MOTD != "Test server" || sc.MaxPlayers != 5 || sc.CompressionThreshold != -1 {
		t.Errorf("server config = %+v", sc)
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(configPath, []byte("not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "E101") {
		t.Errorf("Expected E101 error, got: %v", err)
	}
}

func TestSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := New()
	cfg.Server.MOTD = "Saved"
	cfg.Bans.Backend = BackendSQLite

	// Save should fail without configPath set
	if err := cfg.Save(); err == nil {
		t.Error("Expected error when saving without path")
	}

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}
	if cfg.Path() != configPath {
		t.Errorf("Path = %q", cfg.Path())
	}

	loaded, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Server.MOTD != "Saved" {
		t.Errorf("Server.MOTD = %q", loaded.Server.MOTD)
	}
	if loaded.Bans.Path != "bans.db" {
		t.Errorf("Bans.Path = %q, want bans.db", loaded.Bans.Path)
	}

	loaded.Server.MaxPlayers = 99
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	reloaded, err := LoadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Server.MaxPlayers != 99 {
		t.Errorf("Server.MaxPlayers = %d, want 99", reloaded.Server.MaxPlayers)
	}
	if !Exists(filepath.Dir(configPath)) {
		t.Error("Exists = false after SaveTo")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown world backend", func(c *Config) { c.World.Backend = "redis" }, "unknown world backend"},
		{"s3 without bucket", func(c *Config) { c.World.Backend = BackendS3 }, "world.bucket"},
		{"s3 with bucket", func(c *Config) { c.World.Backend = BackendS3; c.World.Bucket = "chunks" }, ""},
		{"unknown bans backend", func(c *Config) { c.Bans.Backend = "s3" }, "unknown bans backend"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"half a certificate", func(c *Config) { c.QUIC.CertFile = "cert.pem" }, "cert_file"},
		{"websocket path", func(c *Config) { c.WebSocket.Path = "ws" }, "websocket.path"},
		{"bad duration", func(c *Config) { c.Timeouts.Write = "soon" }, "timeouts.write"},
		{"negative duration", func(c *Config) { c.Timeouts.Handshake = "-1s" }, "timeouts.handshake"},
		{"server value", func(c *Config) { c.Server.GameMode = 9 }, "game mode"},
		{"keep-alive order", func(c *Config) { c.Timeouts.KeepAliveInterval = "1m" }, "keep-alive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
			if err != nil && !errors.HasCode(err, "E102") {
				t.Errorf("Validate() code = %v, want E102", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	cfg := New()
	if got := cfg.Resolve("world.db"); got != "world.db" {
		t.Errorf("Resolve without a path = %q", got)
	}
	cfg.configPath = filepath.Join("/srv", "mc", ConfigFileName)
	if got := cfg.Resolve("world.db"); got != filepath.Join("/srv", "mc", "world.db") {
		t.Errorf("Resolve relative = %q", got)
	}
	if got := cfg.Resolve("/data/world.db"); got != "/data/world.db" {
		t.Errorf("Resolve absolute = %q", got)
	}
	if got := cfg.Resolve(""); got != "" {
		t.Errorf("Resolve empty = %q", got)
	}
}
