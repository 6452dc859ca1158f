package server

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
	"github.com/obsidium-dev/obsidium/pkg/world"
)

// enterPlay runs on every entry into play. The first entry registers the
// connection in the directory.
func (c *Conn) enterPlay(ctx context.Context) error {
	c.kaSentAt.Store(0)
	c.switching.Store(false)

	if !c.joined {
		pl := c.Player()
		pl.JoinedAt = time.Now()
		c.player.Store(&pl)
		if err := c.srv.dir.Insert(c); err != nil {
			return err
		}
		c.joined = true
		c.entityID = c.srv.nextEntityID()
		c.srv.metrics.playerJoined(time.Since(c.acceptedAt))
		c.logger.Info("player joined", "uuid", pl.UUID, "version", pl.Version.Name())
		c.emit(Event{Kind: EventJoined, ConnID: c.id, Player: pl})
	}
	return c.sendSpawn(ctx)
}

// sendSpawn sends the play login, the chunks around spawn and the spawn
// position.
func (c *Conn) sendSpawn(ctx context.Context) error {
	cfg := c.srv.cfg
	login := &packet.PlayLogin{
		EntityID:            c.entityID,
		DimensionNames:      []string{world.Overworld},
		MaxPlayers:          int32(cfg.MaxPlayers),
		ViewDistance:        int32(cfg.ViewDistance),
		SimulationDistance:  int32(cfg.SimulationDistance),
		EnableRespawnScreen: true,
		DimensionName:       world.Overworld,
		GameMode:            cfg.GameMode,
		PreviousGameMode:    -1,
		IsFlat:              true,
		SeaLevel:            63,
	}
	if err := c.send(login); err != nil {
		return err
	}
	if err := c.send(&packet.GameEvent{Event: packet.GameEventStartWaitingForChunks}); err != nil {
		return err
	}

	center := world.ChunkPos{X: int32(math.Floor(cfg.SpawnX)) >> 4, Z: int32(math.Floor(cfg.SpawnZ)) >> 4}
	if err := c.send(&packet.SetCenterChunk{ChunkX: center.X, ChunkZ: center.Z}); err != nil {
		return err
	}
	if err := c.sendChunks(ctx, center, int32(cfg.ViewDistance)); err != nil {
		return err
	}

	c.teleportID++
	return c.openPlay(&packet.SyncPlayerPosition{
		TeleportID: c.teleportID,
		X:          cfg.SpawnX,
		Y:          cfg.SpawnY,
		Z:          cfg.SpawnZ,
	})
}

// openPlay queues the last packet of the spawn sequence and opens the
// connection to application sends. Holding sendMu keeps Send and
// Reconfigure from slipping in ahead of last.
func (c *Conn) openPlay(last packet.Packet) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.playOpen = true
	return c.send(last)
}

// sendChunks sends one chunk batch covering radius around center.
func (c *Conn) sendChunks(ctx context.Context, center world.ChunkPos, radius int32) error {
	if err := c.send(&packet.ChunkBatchStart{}); err != nil {
		return err
	}
	var n int32
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			pos := world.ChunkPos{X: center.X + dx, Z: center.Z + dz}
			ch, err := c.srv.world.Chunk(ctx, world.Overworld, pos)
			if err != nil {
				return fmt.Errorf("chunk %s: %w", pos, err)
			}
			p, err := ch.Packet()
			if err != nil {
				return fmt.Errorf("chunk %s: %w", pos, err)
			}
			if err := c.send(p); err != nil {
				return err
			}
			n++
		}
	}
	return c.send(&packet.ChunkBatchFinished{BatchSize: n})
}

func (c *Conn) handlePlay(ctx context.Context, p packet.Packet) error {
	switch p := p.(type) {
	case *packet.PlayKeepAliveResponse:
		c.keepAliveAck(p.ID)
		return nil

	case *packet.AcknowledgeConfiguration:
		if !c.switching.Load() {
			return c.machine.Unexpected(p)
		}
		if err := c.transition(protocol.StateConfiguration); err != nil {
			return err
		}
		return c.startConfiguration()

	case *packet.ClientTickEnd:
		return nil

	case *packet.PlayClientInformation:
		c.updateSettings(p.ClientSettings)
	}
	c.emit(Event{Kind: EventPacket, ConnID: c.id, Player: c.Player(), Packet: p})
	return nil
}

// Reconfigure sends a playing client back to configuration. Sends are
// refused with ErrWrongState until the client is back in play.
func (c *Conn) Reconfigure() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.playOpen || c.State() != protocol.StatePlay {
		return ErrWrongState
	}
	c.switching.Store(true)
	if err := c.enqueue(outbound{pkt: &packet.StartConfiguration{}}); err != nil {
		c.switching.Store(false)
		return err
	}
	c.playOpen = false
	return nil
}
