package packet

import (
	"fmt"
	"sync"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// idMap assigns wire ids to the packet types of one state and direction.
type idMap map[Type]int32

// Ids that do not change across the supported versions.
var (
	handshakeIDs = idMap{TypeIntention: 0x00}

	statusServerIDs = idMap{TypeStatusRequest: 0x00, TypePingRequest: 0x01}
	statusClientIDs = idMap{TypeStatusResponse: 0x00, TypePongResponse: 0x01}

	loginServerIDs = idMap{
		TypeLoginStart:          0x00,
		TypeEncryptionResponse:  0x01,
		TypeLoginPluginResponse: 0x02,
		TypeLoginAcknowledged:   0x03,
	}
	loginClientIDs = idMap{
		TypeLoginDisconnect:    0x00,
		TypeEncryptionRequest:  0x01,
		TypeLoginSuccess:       0x02,
		TypeSetCompression:     0x03,
		TypeLoginPluginRequest: 0x04,
	}

	configServerIDs = idMap{
		TypeConfigClientInformation:        0x00,
		TypeConfigClientPluginMessage:      0x02,
		TypeAcknowledgeFinishConfiguration: 0x03,
		TypeConfigKeepAliveResponse:        0x04,
		TypeConfigPong:                     0x05,
		TypeResourcePackResponse:           0x06,
		TypeConfigClientKnownPacks:         0x07,
	}
	configClientIDs = idMap{
		TypeConfigPluginMessage: 0x01,
		TypeConfigDisconnect:    0x02,
		TypeFinishConfiguration: 0x03,
		TypeConfigKeepAlive:     0x04,
		TypeConfigPing:          0x05,
		TypeRegistryData:        0x07,
		TypeFeatureFlags:        0x0C,
		TypeConfigKnownPacks:    0x0E,
	}
)

// Play ids of 1.20.5 through 1.21.1.
var (
	playServerIDs766 = idMap{
		TypeConfirmTeleport:          0x00,
		TypeChatMessage:              0x06,
		TypeChunkBatchReceived:       0x08,
		TypeClientStatus:             0x09,
		TypePlayClientInformation:    0x0A,
		TypeAcknowledgeConfiguration: 0x0C,
		TypePlayKeepAliveResponse:    0x18,
		TypePlayerPosition:           0x1A,
		TypePlayerPositionRotation:   0x1B,
		TypePlayerRotation:           0x1C,
		TypePlayerMovementFlags:      0x1D,
	}
	playClientIDs766 = idMap{
		TypeChunkBatchFinished: 0x0C,
		TypeChunkBatchStart:    0x0D,
		TypePlayDisconnect:     0x1D,
		TypeUnloadChunk:        0x21,
		TypeGameEvent:          0x22,
		TypePlayKeepAlive:      0x26,
		TypeChunkData:          0x27,
		TypePlayLogin:          0x2B,
		TypeSyncPlayerPosition: 0x40,
		TypeSetCenterChunk:     0x54,
		TypeStartConfiguration: 0x69,
		TypeSystemChat:         0x6C,
	}
)

// Play ids of 1.21.2 and 1.21.3.
var (
	playServerIDs768 = idMap{
		TypeConfirmTeleport:          0x00,
		TypeChatMessage:              0x07,
		TypeChunkBatchReceived:       0x09,
		TypeClientStatus:             0x0A,
		TypeClientTickEnd:            0x0B,
		TypePlayClientInformation:    0x0C,
		TypeAcknowledgeConfiguration: 0x0E,
		TypePlayKeepAliveResponse:    0x1A,
		TypePlayerPosition:           0x1C,
		TypePlayerPositionRotation:   0x1D,
		TypePlayerRotation:           0x1E,
		TypePlayerMovementFlags:      0x1F,
	}
	playClientIDs768 = idMap{
		TypeChunkBatchFinished: 0x0C,
		TypeChunkBatchStart:    0x0D,
		TypePlayDisconnect:     0x1D,
		TypeUnloadChunk:        0x22,
		TypeGameEvent:          0x23,
		TypePlayKeepAlive:      0x27,
		TypeChunkData:          0x28,
		TypePlayLogin:          0x2C,
		TypeSyncPlayerPosition: 0x42,
		TypeSetCenterChunk:     0x58,
		TypeStartConfiguration: 0x70,
		TypeSystemChat:         0x73,
	}
)

// stateIDs lists the id maps of every state and direction for one version.
type stateIDs map[protocol.State][2]idMap

func idsFor(v Version) stateIDs {
	ids := stateIDs{
		protocol.StateHandshake:     {handshakeIDs, nil},
		protocol.StateStatus:        {statusServerIDs, statusClientIDs},
		protocol.StateLogin:         {loginServerIDs, loginClientIDs},
		protocol.StateConfiguration: {configServerIDs, configClientIDs},
	}
	if v >= V1_21_2 {
		ids[protocol.StatePlay] = [2]idMap{playServerIDs768, playClientIDs768}
	} else {
		ids[protocol.StatePlay] = [2]idMap{playServerIDs766, playClientIDs766}
	}
	return ids
}

// Registry holds one resolved Table per supported version.
type Registry struct {
	tables map[Version]*Table
}

// NewRegistry builds the tables of every supported version.
func NewRegistry() *Registry {
	vs := SupportedVersions()
	r := &Registry{tables: make(map[Version]*Table, len(vs))}
	for _, v := range vs {
		r.tables[v] = newTable(v, idsFor(v))
	}
	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// Default returns the process-wide registry. Tables are immutable, so it is
// shared by every connection.
func Default() *Registry {
	return defaultRegistry()
}

// Resolve returns the table for a protocol version.
func (r *Registry) Resolve(version int32) (*Table, error) {
	t, ok := r.tables[Version(version)]
	if !ok {
		return nil, fmt.Errorf("%w: %d (supported %s)", protocol.ErrUnsupportedProtocolVersion, version, Range())
	}
	return t, nil
}

// Latest returns the table of the newest supported version. Handshake and
// status layouts are identical in every table, so it serves connections
// whose version is not yet known.
func (r *Registry) Latest() *Table {
	return r.tables[Latest]
}

// lane is the id space of one state and direction.
type lane struct {
	byID map[int32]Type
}

// Table is the immutable packet mapping of one protocol version.
type Table struct {
	version Version
	lanes   [protocol.StateClosed][2]lane
	ids     [typeCount]int32
}

func newTable(v Version, ids stateIDs) *Table {
	t := &Table{version: v}
	for i := range t.ids {
		t.ids[i] = -1
	}
	for state, dirs := range ids {
		for dir, m := range dirs {
			l := lane{byID: make(map[int32]Type, len(m))}
			for typ, id := range m {
				if typ.State() != state || int(typ.Direction()) != dir {
					panic(fmt.Sprintf("packet: %s registered in wrong lane %s/%s", typ, state, protocol.Direction(dir)))
				}
				l.byID[id] = typ
				t.ids[typ] = id
			}
			t.lanes[state][dir] = l
		}
	}
	return t
}

// Version returns the protocol version of the table.
func (t *Table) Version() Version {
	return t.version
}

// ID returns the wire id of a packet type in this version.
func (t *Table) ID(typ Type) (int32, bool) {
	if typ >= typeCount || t.ids[typ] < 0 {
		return 0, false
	}
	return t.ids[typ], true
}

// Lookup returns the packet type with the given id.
func (t *Table) Lookup(state protocol.State, dir protocol.Direction, id int32) (Type, bool) {
	if state >= protocol.StateClosed || dir > protocol.Clientbound {
		return TypeUnknown, false
	}
	typ, ok := t.lanes[state][dir].byID[id]
	return typ, ok
}

// Decode builds the packet with the given id from its payload.
func (t *Table) Decode(state protocol.State, dir protocol.Direction, id int32, payload []byte) (Packet, error) {
	typ, ok := t.Lookup(state, dir, id)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X in %s %s", protocol.ErrUnknownPacketID, id, state, dir)
	}
	p := typ.New()
	if err := Decode(p, t.version, payload); err != nil {
		return nil, err
	}
	return p, nil
}

// Unmarshal decodes a packet body: the VarInt id followed by the payload.
func (t *Table) Unmarshal(state protocol.State, dir protocol.Direction, body []byte) (Packet, error) {
	id, n, err := protocol.DecodeVarInt(body)
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}
	return t.Decode(state, dir, int32(id), body[n:])
}

// Encode returns the id and payload of p.
func (t *Table) Encode(p Packet) (int32, []byte, error) {
	id, ok := t.ID(p.Type())
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s has no id in %s", protocol.ErrUnknownPacketID, p.Type(), t.version)
	}
	e := protocol.NewEncoder()
	if err := Encode(e, p, t.version); err != nil {
		return 0, nil, err
	}
	return id, e.Bytes(), nil
}

// Marshal returns the packet body of p: its VarInt id followed by the
// payload.
func (t *Table) Marshal(p Packet) ([]byte, error) {
	e := protocol.NewEncoder()
	if err := t.AppendPacket(e, p); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// AppendPacket writes the id and payload of p to e.
func (t *Table) AppendPacket(e *protocol.Encoder, p Packet) error {
	id, ok := t.ID(p.Type())
	if !ok {
		return fmt.Errorf("%w: %s has no id in %s", protocol.ErrUnknownPacketID, p.Type(), t.version)
	}
	e.WriteVarInt(id)
	return Encode(e, p, t.version)
}
