package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Config holds the runtime configuration of a Server.
type Config struct {
	// Identity

	// MOTD is the description shown in the server list.
	// Default: "An Obsidium server".
	MOTD string

	// MaxPlayers caps the number of connections in play. Logins past it
	// are rejected. 0 means no limit.
	// Default: 20.
	MaxPlayers int

	// Brand is sent on the minecraft:brand channel during configuration.
	// Default: "obsidium".
	Brand string

	// Login

	// OnlineMode verifies players against the session server. It implies
	// Encryption.
	// Default: false.
	OnlineMode bool

	// Encryption enables the RSA key exchange and AES/CFB8 stream cipher.
	// Default: false.
	Encryption bool

	// CompressionThreshold enables compression for packets of at least
	// this many bytes. Negative disables compression.
	// Default: 256.
	CompressionThreshold int

	// Limits

	// MaxFrameSize is the largest accepted frame length.
	// Default: protocol.DefaultMaxFrameSize.
	MaxFrameSize int

	// SendQueueSize is the capacity of each outbound queue.
	// Default: 512.
	SendQueueSize int

	// EventQueueSize is the capacity of the shared event channel.
	// Default: 1024.
	EventQueueSize int

	// World

	// ViewDistance is the chunk radius sent on join.
	// Default: 2.
	ViewDistance int

	// SimulationDistance is advertised in the play login.
	// Default: 2.
	SimulationDistance int

	// GameMode is the game mode players join in: 0 survival, 1 creative,
	// 2 adventure, 3 spectator.
	// Default: 0.
	GameMode uint8

	// SpawnX, SpawnY and SpawnZ are where players are placed on join.
	// Default: 0.5, -60, 0.5, the surface of the default flat world.
	SpawnX, SpawnY, SpawnZ float64

	// Timeouts

	// HandshakeTimeout bounds the time from accept to the end of login, and
	// the whole lifetime of a status connection.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// KeepAliveInterval is the time between keep-alives in configuration
	// and play.
	// Default: 15 seconds.
	KeepAliveInterval time.Duration

	// KeepAliveTimeout closes connections that do not answer in time.
	// Default: 30 seconds.
	KeepAliveTimeout time.Duration

	// WriteTimeout bounds each flush to the socket.
	// Default: 10 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MOTD:                 "An Obsidium server",
		MaxPlayers:           20,
		Brand:                "obsidium",
		CompressionThreshold: protocol.DefaultCompressionThreshold,
		MaxFrameSize:         protocol.DefaultMaxFrameSize,
		SendQueueSize:        512,
		EventQueueSize:       1024,
		ViewDistance:         2,
		SimulationDistance:   2,
		SpawnX:               0.5,
		SpawnY:               -60,
		SpawnZ:               0.5,
		HandshakeTimeout:     10 * time.Second,
		KeepAliveInterval:    15 * time.Second,
		KeepAliveTimeout:     30 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	out := c.Clone()
	if out == nil {
		return d
	}
	if out.MOTD == "" {
		out.MOTD = d.MOTD
	}
	if out.Brand == "" {
		out.Brand = d.Brand
	}
	if out.MaxFrameSize <= 0 {
		out.MaxFrameSize = d.MaxFrameSize
	}
	if out.SendQueueSize <= 0 {
		out.SendQueueSize = d.SendQueueSize
	}
	if out.EventQueueSize <= 0 {
		out.EventQueueSize = d.EventQueueSize
	}
	if out.ViewDistance <= 0 {
		out.ViewDistance = d.ViewDistance
	}
	if out.SimulationDistance <= 0 {
		out.SimulationDistance = d.SimulationDistance
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = d.HandshakeTimeout
	}
	if out.KeepAliveInterval <= 0 {
		out.KeepAliveInterval = d.KeepAliveInterval
	}
	if out.KeepAliveTimeout <= 0 {
		out.KeepAliveTimeout = d.KeepAliveTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.OnlineMode {
		out.Encryption = true
	}
	return out
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxPlayers < 0 {
		errs = append(errs, fmt.Errorf("max players must not be negative, got %d", c.MaxPlayers))
	}
	if c.MaxFrameSize > protocol.DefaultMaxFrameSize {
		errs = append(errs, fmt.Errorf("max frame size %d exceeds %d", c.MaxFrameSize, protocol.DefaultMaxFrameSize))
	}
	if c.CompressionThreshold > c.MaxFrameSize && c.MaxFrameSize > 0 {
		errs = append(errs, fmt.Errorf("compression threshold %d exceeds max frame size", c.CompressionThreshold))
	}
	if c.GameMode > 3 {
		errs = append(errs, fmt.Errorf("game mode must be 0-3, got %d", c.GameMode))
	}
	if c.ViewDistance > 32 {
		errs = append(errs, fmt.Errorf("view distance %d exceeds 32", c.ViewDistance))
	}
	if c.KeepAliveTimeout > 0 && c.KeepAliveInterval >= c.KeepAliveTimeout {
		errs = append(errs, errors.New("keep-alive interval must be shorter than the timeout"))
	}
	return errors.Join(errs...)
}
