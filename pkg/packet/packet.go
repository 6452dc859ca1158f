// Package packet defines the typed packets of every connection state and
// the registry mapping (version, state, direction, id) to them.
//
// Each packet type describes its wire layout with [Field] descriptors; the
// shared [Encode] and [Decode] routines interpret them. A [Registry] is
// resolved once per connection into an immutable [Table] for the
// negotiated protocol version.
package packet

import (
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Packet is a typed packet payload.
type Packet interface {
	// Type identifies the packet independently of version and id.
	Type() Type

	// Fields returns the wire layout of the packet for version v, bound to
	// the receiver's fields.
	Fields(v Version) []Field
}

// Type identifies a packet kind. Each Type belongs to exactly one state and
// direction.
type Type uint16

const (
	TypeUnknown Type = iota

	// Handshake
	TypeIntention

	// Status
	TypeStatusRequest
	TypePingRequest
	TypeStatusResponse
	TypePongResponse

	// Login
	TypeLoginStart
	TypeEncryptionResponse
	TypeLoginPluginResponse
	TypeLoginAcknowledged
	TypeLoginDisconnect
	TypeEncryptionRequest
	TypeLoginSuccess
	TypeSetCompression
	TypeLoginPluginRequest

	// Configuration
	TypeConfigClientInformation
	TypeConfigClientPluginMessage
	TypeAcknowledgeFinishConfiguration
	TypeConfigKeepAliveResponse
	TypeConfigPong
	TypeResourcePackResponse
	TypeConfigClientKnownPacks
	TypeConfigPluginMessage
	TypeConfigDisconnect
	TypeFinishConfiguration
	TypeConfigKeepAlive
	TypeConfigPing
	TypeRegistryData
	TypeFeatureFlags
	TypeConfigKnownPacks

	// Play
	TypeConfirmTeleport
	TypeChatMessage
	TypeChunkBatchReceived
	TypeClientStatus
	TypeClientTickEnd
	TypePlayClientInformation
	TypeAcknowledgeConfiguration
	TypePlayKeepAliveResponse
	TypePlayerPosition
	TypePlayerPositionRotation
	TypePlayerRotation
	TypePlayerMovementFlags
	TypeChunkBatchFinished
	TypeChunkBatchStart
	TypePlayDisconnect
	TypeUnloadChunk
	TypeGameEvent
	TypePlayKeepAlive
	TypeChunkData
	TypePlayLogin
	TypeSyncPlayerPosition
	TypeSetCenterChunk
	TypeStartConfiguration
	TypeSystemChat

	typeCount
)

// typeInfo is the static description of a packet type.
type typeInfo struct {
	name  string
	state protocol.State
	dir   protocol.Direction
	new   func() Packet
}

var types [typeCount]typeInfo

func register(t Type, name string, state protocol.State, dir protocol.Direction, ctor func() Packet) {
	types[t] = typeInfo{name: name, state: state, dir: dir, new: ctor}
}

// String returns the packet name.
func (t Type) String() string {
	if t < typeCount && types[t].name != "" {
		return types[t].name
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// State returns the connection state the packet belongs to.
func (t Type) State() protocol.State {
	return types[t].state
}

// Direction returns which peer sends the packet.
func (t Type) Direction() protocol.Direction {
	return types[t].dir
}

// New returns a zero packet of type t, or nil if t is not registered.
func (t Type) New() Packet {
	if t >= typeCount || types[t].new == nil {
		return nil
	}
	return types[t].new()
}

// Encode appends the payload of p for version v to e.
func Encode(e *protocol.Encoder, p Packet, v Version) error {
	if err := encodeFields(e, p.Fields(v)); err != nil {
		return fmt.Errorf("encode %s: %w", p.Type(), err)
	}
	return nil
}

// Decode fills p from payload for version v. Trailing bytes after the last
// field fail with ErrMalformedPayload.
func Decode(p Packet, v Version, payload []byte) error {
	d := protocol.NewDecoder(payload)
	if err := decodeFields(d, p.Fields(v)); err != nil {
		return fmt.Errorf("decode %s: %w", p.Type(), err)
	}
	if !d.EOF() {
		return fmt.Errorf("decode %s: %w: %d trailing bytes", p.Type(), protocol.ErrMalformedPayload, d.Remaining())
	}
	return nil
}
