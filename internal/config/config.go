package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obsidium-dev/obsidium/internal/errors"
	"github.com/obsidium-dev/obsidium/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "obsidium.json"

	// DefaultAddress is the default game listener address.
	DefaultAddress = ":25565"

	// DefaultAdminAddress is the default admin HTTP address.
	DefaultAdminAddress = "127.0.0.1:25580"

	// DefaultWebSocketPath is the default WebSocket upgrade path.
	DefaultWebSocketPath = "/ws"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Log formats.
const (
	LogText = "text"
	LogJSON = "json"
)

// Config represents the complete obsidium.json configuration.
type Config struct {
	// Server contains the game server settings.
	Server ServerConfig `json:"server"`

	// Admin contains the admin HTTP surface settings.
	Admin AdminConfig `json:"admin"`

	// WebSocket contains the WebSocket bridge settings.
	WebSocket WebSocketConfig `json:"websocket"`

	// QUIC contains the QUIC listener settings.
	QUIC QUICConfig `json:"quic"`

	// World selects where chunks are stored.
	World WorldConfig `json:"world"`

	// Bans selects where the ban list is stored.
	Bans BansConfig `json:"bans"`

	// RegistryData is the path to a JSON file of registry entries sent
	// during configuration. Empty uses the built-in set.
	RegistryData string `json:"registry_data,omitempty"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// Timeouts contains connection timeouts as duration strings ("10s").
	Timeouts TimeoutsConfig `json:"timeouts"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains game server settings.
type ServerConfig struct {
	// Address is the TCP listen address.
	Address string `json:"address"`

	// MOTD is the server list description.
	MOTD string `json:"motd"`

	// MaxPlayers caps players in play. 0 means no limit.
	MaxPlayers int `json:"max_players"`

	// Brand is the server brand sent during configuration.
	Brand string `json:"brand,omitempty"`

	// OnlineMode verifies players with the session server.
	OnlineMode bool `json:"online_mode"`

	// Encryption enables the encrypted login without online mode.
	Encryption bool `json:"encryption"`

	// CompressionThreshold is the smallest compressed packet. Negative
	// disables compression.
	CompressionThreshold int `json:"compression_threshold"`

	// MaxFrameSize is the largest accepted frame.
	MaxFrameSize int `json:"max_frame_size,omitempty"`

	// ViewDistance is the chunk radius sent on join.
	ViewDistance int `json:"view_distance"`

	// SimulationDistance is advertised in the play login.
	SimulationDistance int `json:"simulation_distance"`

	// GameMode is 0 survival, 1 creative, 2 adventure or 3 spectator.
	GameMode uint8 `json:"game_mode"`
}

// AdminConfig contains admin HTTP settings.
type AdminConfig struct {
	// Address is the listen address. Empty disables the admin surface.
	Address string `json:"address"`
}

// WebSocketConfig contains WebSocket bridge settings.
type WebSocketConfig struct {
	// Address is the HTTP listen address. Empty disables the bridge.
	Address string `json:"address,omitempty"`

	// Path is the upgrade path.
	Path string `json:"path,omitempty"`
}

// QUICConfig contains QUIC listener settings.
type QUICConfig struct {
	// Address is the UDP listen address. Empty disables QUIC.
	Address string `json:"address,omitempty"`

	// CertFile and KeyFile name a PEM certificate pair. When both are
	// empty a self-signed certificate is generated.
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// WorldConfig selects the chunk store.
type WorldConfig struct {
	// Backend is "memory", "sqlite" or "s3".
	Backend string `json:"backend"`

	// Path is the SQLite database file.
	Path string `json:"path,omitempty"`

	// Bucket, Prefix, Region and Endpoint address the S3 store.
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// BansConfig selects the ban list store.
type BansConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`

	// Path is the SQLite database file.
	Path string `json:"path,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level"`

	// Format is "text" or "json".
	Format string `json:"format"`
}

// TimeoutsConfig contains connection timeouts.
type TimeoutsConfig struct {
	Handshake         string `json:"handshake"`
	KeepAliveInterval string `json:"keep_alive_interval"`
	KeepAliveTimeout  string `json:"keep_alive_timeout"`
	Write             string `json:"write"`
}

// New creates a new Config with default values.
func New() *Config {
	d := server.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:              DefaultAddress,
			MOTD:                 d.MOTD,
			MaxPlayers:           d.MaxPlayers,
			CompressionThreshold: d.CompressionThreshold,
			ViewDistance:         d.ViewDistance,
			SimulationDistance:   d.SimulationDistance,
		},
		Admin: AdminConfig{
			Address: DefaultAdminAddress,
		},
		World: WorldConfig{
			Backend: BackendMemory,
		},
		Bans: BansConfig{
			Backend: BackendMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogText,
		},
		Timeouts: TimeoutsConfig{
			Handshake:         d.HandshakeTimeout.String(),
			KeepAliveInterval: d.KeepAliveInterval.String(),
			KeepAliveTimeout:  d.KeepAliveTimeout.String(),
			Write:             d.WriteTimeout.String(),
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for obsidium.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. Fields the
// file leaves out keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithDetail("no " + ConfigFileName + " in " + filepath.Dir(path))
		}
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E101").
			WithDetail("failed to parse " + path + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E103").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E103").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// Resolve returns path relative to the config directory. Absolute and
// empty paths are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.WebSocket.Address != "" && c.WebSocket.Path == "" {
		c.WebSocket.Path = DefaultWebSocketPath
	}

	// Storage
	if c.World.Backend == "" {
		c.World.Backend = BackendMemory
	}
	if c.World.Backend == BackendSQLite && c.World.Path == "" {
		c.World.Path = "world.db"
	}
	if c.Bans.Backend == "" {
		c.Bans.Backend = BackendMemory
	}
	if c.Bans.Backend == BackendSQLite && c.Bans.Path == "" {
		c.Bans.Path = "bans.db"
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = LogText
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("E102").WithDetail(fmt.Sprintf(format, args...))
	}

	switch c.World.Backend {
	case BackendMemory, BackendSQLite:
	case BackendS3:
		if c.World.Bucket == "" {
			return invalid("world.bucket is required for the s3 backend")
		}
	default:
		return invalid("unknown world backend %q", c.World.Backend)
	}
	switch c.Bans.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return invalid("unknown bans backend %q", c.Bans.Backend)
	}
	switch c.Log.Format {
	case LogText, LogJSON:
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("%v", err)
	}
	if (c.QUIC.CertFile == "") != (c.QUIC.KeyFile == "") {
		return invalid("quic.cert_file and quic.key_file must be set together")
	}
	if c.WebSocket.Path != "" && !strings.HasPrefix(c.WebSocket.Path, "/") {
		return invalid("websocket.path must start with /")
	}

	sc, err := c.ToServerConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return l, nil
}

// ToServerConfig converts the file settings to a server.Config.
func (c *Config) ToServerConfig() (*server.Config, error) {
	sc := server.DefaultConfig()
	sc.MOTD = c.Server.MOTD
	sc.MaxPlayers = c.Server.MaxPlayers
	if c.Server.Brand != "" {
		sc.Brand = c.Server.Brand
	}
	sc.OnlineMode = c.Server.OnlineMode
	sc.Encryption = c.Server.Encryption
	sc.CompressionThreshold = c.Server.CompressionThreshold
	if c.Server.MaxFrameSize > 0 {
		sc.MaxFrameSize = c.Server.MaxFrameSize
	}
	sc.ViewDistance = c.Server.ViewDistance
	sc.SimulationDistance = c.Server.SimulationDistance
	sc.GameMode = c.Server.GameMode

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeouts.handshake", c.Timeouts.Handshake, &sc.HandshakeTimeout},
		{"timeouts.keep_alive_interval", c.Timeouts.KeepAliveInterval, &sc.KeepAliveInterval},
		{"timeouts.keep_alive_timeout", c.Timeouts.KeepAliveTimeout, &sc.KeepAliveTimeout},
		{"timeouts.write", c.Timeouts.Write, &sc.WriteTimeout},
	} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil || v <= 0 {
			return nil, errors.New("E102").WithDetail(fmt.Sprintf("%s: invalid duration %q", d.name, d.value))
		}
		*d.dst = v
	}
	return sc, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
