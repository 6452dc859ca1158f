package server

import (
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// statusSampleSize caps the player sample of a status response.
const statusSampleSize = 12

func (c *Conn) handleHandshake(p packet.Packet) error {
	hs, ok := p.(*packet.Intention)
	if !ok {
		return c.machine.Unexpected(p)
	}
	t, verr := c.srv.registry.Resolve(hs.ProtocolVersion)

	switch hs.Intent {
	case packet.IntentStatus:
		if err := c.transition(protocol.StateStatus); err != nil {
			return err
		}
		if verr != nil {
			t = c.srv.registry.Latest()
		}
		c.useTable(t)
		c.startNegotiation(spanStatus, hs.ProtocolVersion)
		return nil

	case packet.IntentLogin, packet.IntentTransfer:
		if err := c.transition(protocol.StateLogin); err != nil {
			return err
		}
		c.startNegotiation(spanLogin, hs.ProtocolVersion)
		if verr != nil {
			c.useTable(c.srv.registry.Latest())
			reason := fmt.Sprintf("Unsupported client version. This server supports %s.", packet.Range())
			if hs.ProtocolVersion < int32(packet.SupportedVersions()[0]) {
				reason = fmt.Sprintf("Outdated client! Please use %s.", packet.Range())
			}
			return c.reject(reason, verr)
		}
		c.useTable(t)
		c.logger = c.logger.With("protocol", int32(t.Version()))
		return nil
	}
	return c.machine.Unexpected(p)
}

// useTable fixes the packet table of the connection.
func (c *Conn) useTable(t *packet.Table) {
	if err := c.machine.SetVersion(t); err == nil {
		c.table.Store(t)
		pl := c.Player()
		pl.Version = t.Version()
		c.player.Store(&pl)
	}
}

// reject sends the disconnect of the current state and returns a
// negotiation error carrying reason.
func (c *Conn) reject(reason string, cause error) error {
	if p := disconnectPacket(c.machine.State(), reason); p != nil {
		c.send(p)
	}
	c.negotiation.end(&protocol.NegotiationError{Reason: reason, Err: cause})
	return &protocol.NegotiationError{Reason: reason, Err: cause}
}

func (c *Conn) handleStatus(p packet.Packet) error {
	switch p := p.(type) {
	case *packet.StatusRequest:
		if c.login.statusSent {
			return c.machine.Unexpected(p)
		}
		c.login.statusSent = true
		resp, err := packet.NewStatusResponse(c.srv.status(c.encodeTable().Version()))
		if err != nil {
			return err
		}
		c.negotiation.event("status_response")
		return c.send(resp)

	case *packet.PingRequest:
		if err := c.send(&packet.PongResponse{Payload: p.Payload}); err != nil {
			return err
		}
		c.negotiation.end(nil)
		c.machine.Close()
		return nil
	}
	return c.machine.Unexpected(p)
}

// status builds the server list entry advertised to version v.
func (s *Server) status(v packet.Version) packet.ServerStatus {
	players := s.dir.Snapshot()
	sample := make([]packet.StatusSample, 0, min(len(players), statusSampleSize))
	for _, h := range players {
		if len(sample) == statusSampleSize {
			break
		}
		pl := h.Player()
		sample = append(sample, packet.StatusSample{Name: pl.Name, ID: pl.UUID.String()})
	}
	return packet.ServerStatus{
		Version: packet.StatusVersion{Name: v.Name(), Protocol: int32(v)},
		Players: packet.StatusPlayers{
			Max:    s.cfg.MaxPlayers,
			Online: len(players),
			Sample: sample,
		},
		Description: packet.StatusText{Text: s.cfg.MOTD},
	}
}
