package server

import (
	"context"

	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// configState is the progress of one configuration phase.
type configState struct {
	packsSent  bool
	finishSent bool
}

// startConfiguration opens a configuration phase: brand, feature flags
// and the known packs offer. Registry data follows the client's answer.
func (c *Conn) startConfiguration() error {
	c.config = configState{}
	c.kaSentAt.Store(0)
	c.switching.Store(false)
	res := c.srv.resources

	brand := &packet.ConfigPluginMessage{PluginMessage: packet.PluginMessage{
		Channel: packet.BrandChannel,
		Data:    packet.NewBrand(c.srv.cfg.Brand),
	}}
	if err := c.send(brand); err != nil {
		return err
	}
	if err := c.send(&packet.FeatureFlags{Flags: res.FeatureFlags()}); err != nil {
		return err
	}
	c.config.packsSent = true
	return c.send(&packet.ConfigKnownPacks{Packs: res.KnownPacks()})
}

func (c *Conn) handleConfiguration(ctx context.Context, p packet.Packet) error {
	switch p := p.(type) {
	case *packet.ConfigClientKnownPacks:
		if !c.config.packsSent || c.config.finishSent {
			return c.machine.Unexpected(p)
		}
		for _, rd := range c.srv.resources.Registries(c.encodeTable().Version()) {
			if err := c.send(&rd); err != nil {
				return err
			}
		}
		c.config.finishSent = true
		c.switching.Store(true)
		return c.send(&packet.FinishConfiguration{})

	case *packet.AcknowledgeFinishConfiguration:
		if !c.config.finishSent {
			return c.machine.Unexpected(p)
		}
		if err := c.transition(protocol.StatePlay); err != nil {
			return err
		}
		return c.enterPlay(ctx)

	case *packet.ConfigKeepAliveResponse:
		c.keepAliveAck(p.ID)
		return nil

	case *packet.ConfigClientInformation:
		c.updateSettings(p.ClientSettings)
		c.emit(Event{Kind: EventPacket, ConnID: c.id, Player: c.Player(), Packet: p})
		return nil

	case *packet.ConfigClientPluginMessage, *packet.ResourcePackResponse, *packet.ConfigPong:
		c.emit(Event{Kind: EventPacket, ConnID: c.id, Player: c.Player(), Packet: p})
		return nil
	}
	return c.machine.Unexpected(p)
}

func (c *Conn) updateSettings(s packet.ClientSettings) {
	pl := c.Player()
	pl.Settings = s
	c.player.Store(&pl)
}
