package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/obsidium-dev/obsidium/pkg/packet"
)

// ConnID identifies a connection for the lifetime of a server. Ids are
// never reused.
type ConnID uint64

func (id ConnID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Player is the identity a connection logged in with.
type Player struct {
	UUID       uuid.UUID
	Name       string
	Properties []packet.Property
	Version    packet.Version
	Remote     string
	JoinedAt   time.Time
	Settings   packet.ClientSettings
}

// EventKind tells what an Event reports.
type EventKind uint8

const (
	// EventJoined is sent when a connection first enters play.
	EventJoined EventKind = iota + 1

	// EventPacket carries a serverbound packet the server does not
	// handle itself.
	EventPacket

	// EventLeft is sent after a joined connection is torn down.
	EventLeft
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventPacket:
		return "packet"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Event is one entry of the server event stream.
type Event struct {
	Kind   EventKind
	ConnID ConnID
	Player Player

	// Packet is set for EventPacket.
	Packet packet.Packet

	// Err is the cause of an EventLeft, nil for a clean close.
	Err error
}
