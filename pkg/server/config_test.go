package server

import (
	"strings"
	"testing"
	"time"

	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := (&Config{MOTD: "custom", OnlineMode: true, CompressionThreshold: -1}).withDefaults()

	if cfg.MOTD != "custom" {
		t.Errorf("MOTD = %q", cfg.MOTD)
	}
	if cfg.Brand != "obsidium" {
		t.Errorf("Brand = %q, want default", cfg.Brand)
	}
	if !cfg.Encryption {
		t.Error("OnlineMode did not enable Encryption")
	}
	if cfg.CompressionThreshold != -1 {
		t.Errorf("CompressionThreshold = %d, want -1 kept", cfg.CompressionThreshold)
	}
	if cfg.MaxFrameSize != protocol.DefaultMaxFrameSize {
		t.Errorf("MaxFrameSize = %d", cfg.MaxFrameSize)
	}
	if cfg.KeepAliveInterval != 15*time.Second || cfg.KeepAliveTimeout != 30*time.Second {
		t.Errorf("keep-alive = %v/%v", cfg.KeepAliveInterval, cfg.KeepAliveTimeout)
	}

	var nilCfg *Config
	if got := nilCfg.withDefaults(); got.MaxPlayers != 20 {
		t.Errorf("nil withDefaults MaxPlayers = %d", got.MaxPlayers)
	}
}

func TestConfigClone(t *testing.T) {
	a := DefaultConfig()
	b := a.Clone()
	b.MOTD = "changed"
	if a.MOTD == "changed" {
		t.Error("Clone shares state with the original")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative players", func(c *Config) { c.MaxPlayers = -1 }, "max players"},
		{"frame too large", func(c *Config) { c.MaxFrameSize = protocol.DefaultMaxFrameSize + 1 }, "max frame size"},
		{"threshold over frame", func(c *Config) { c.MaxFrameSize = 1024; c.CompressionThreshold = 2048 }, "compression threshold"},
		{"game mode", func(c *Config) { c.GameMode = 4 }, "game mode"},
		{"view distance", func(c *Config) { c.ViewDistance = 33 }, "view distance"},
		{"keep-alive", func(c *Config) { c.KeepAliveInterval = c.KeepAliveTimeout }, "keep-alive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GameMode = 9
	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted an invalid config")
	}
}

func TestParseRegistryJSON(t *testing.T) {
	doc := `{
		"dimension_type": {
			"overworld": {"height": 384, "min_y": -64, "natural": true},
			"minecraft:the_nether": {"height": 256, "min_y": 0, "natural": false}
		},
		"custom:banner": {
			"stripes": {"asset_id": "custom:stripes"}
		}
	}`
	data, err := ParseRegistryJSON([]byte(doc))
	if err != nil {
		t.Fatalf("ParseRegistryJSON: %v", err)
	}
	if len(data) != 2 {
		t.Fatalf("got %d registries, want 2", len(data))
	}
	if data[0].RegistryID != "minecraft:dimension_type" || data[1].RegistryID != "custom:banner" {
		t.Errorf("registry ids = %q, %q", data[0].RegistryID, data[1].RegistryID)
	}
	wantIDs := []string{"minecraft:overworld", "minecraft:the_nether"}
	for i, e := range data[0].Entries {
		if e.ID != wantIDs[i] {
			t.Errorf("entry %d id = %q, want %q", i, e.ID, wantIDs[i])
		}
		if !e.HasData || len(e.Data) == 0 {
			t.Errorf("entry %q has no data", e.ID)
		}
	}

	for _, rd := range data {
		if _, err := packet.Default().Latest().Marshal(&rd); err != nil {
			t.Errorf("marshal %s: %v", rd.RegistryID, err)
		}
	}
}

func TestParseRegistryJSONErrors(t *testing.T) {
	tests := map[string]string{
		"not json":        `{`,
		"array root":      `[1, 2]`,
		"scalar registry": `{"dimension_type": 3}`,
		"scalar entry":    `{"dimension_type": {"overworld": 1}}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRegistryJSON([]byte(doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
