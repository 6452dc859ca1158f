package packet

import (
	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Clientbound play packets.

type ChunkBatchStart struct{}

func (*ChunkBatchStart) Type() Type { return TypeChunkBatchStart }

func (*ChunkBatchStart) Fields(Version) []Field { return nil }

type ChunkBatchFinished struct {
	BatchSize int32
}

func (*ChunkBatchFinished) Type() Type { return TypeChunkBatchFinished }

func (p *ChunkBatchFinished) Fields(Version) []Field {
	return []Field{VarInt("batch_size", &p.BatchSize)}
}

// PlayDisconnect ends a play session with an NBT text component.
type PlayDisconnect struct {
	Reason nbt.Raw
}

func (*PlayDisconnect) Type() Type { return TypePlayDisconnect }

func (p *PlayDisconnect) Fields(Version) []Field {
	return []Field{NBT("reason", &p.Reason)}
}

type UnloadChunk struct {
	ChunkZ int32
	ChunkX int32
}

func (*UnloadChunk) Type() Type { return TypeUnloadChunk }

func (p *UnloadChunk) Fields(Version) []Field {
	return []Field{
		Int("chunk_z", &p.ChunkZ),
		Int("chunk_x", &p.ChunkX),
	}
}

// Game event ids.
const (
	GameEventChangeGameMode        uint8 = 3
	GameEventStartWaitingForChunks uint8 = 13
)

type GameEvent struct {
	Event uint8
	Value float32
}

func (*GameEvent) Type() Type { return TypeGameEvent }

func (p *GameEvent) Fields(Version) []Field {
	return []Field{
		UByte("event", &p.Event),
		Float("value", &p.Value),
	}
}

type PlayKeepAlive struct {
	ID int64
}

func (*PlayKeepAlive) Type() Type { return TypePlayKeepAlive }

func (p *PlayKeepAlive) Fields(Version) []Field { return []Field{Long("keep_alive_id", &p.ID)} }

// BlockEntity is a block entity inside a chunk section.
type BlockEntity struct {
	PackedXZ uint8
	Y        int16
	Kind     int32
	Data     nbt.Raw
}

// LightData is the light part of ChunkData.
type LightData struct {
	SkyLightMask        []int64
	BlockLightMask      []int64
	EmptySkyLightMask   []int64
	EmptyBlockLightMask []int64
	SkyLight            [][]byte
	BlockLight          [][]byte
}

func lightArrays(name string, p *[][]byte) Field {
	return Slice(name, p, 1, func(b *[]byte) []Field {
		return []Field{Bytes("array", b, 2048)}
	})
}

func (l *LightData) fields() []Field {
	return []Field{
		BitSet("sky_light_mask", &l.SkyLightMask),
		BitSet("block_light_mask", &l.BlockLightMask),
		BitSet("empty_sky_light_mask", &l.EmptySkyLightMask),
		BitSet("empty_block_light_mask", &l.EmptyBlockLightMask),
		lightArrays("sky_light", &l.SkyLight),
		lightArrays("block_light", &l.BlockLight),
	}
}

// ChunkData carries one chunk column with its light.
type ChunkData struct {
	ChunkX        int32
	ChunkZ        int32
	Heightmaps    nbt.Raw
	Data          []byte
	BlockEntities []BlockEntity
	Light         LightData
}

func (*ChunkData) Type() Type { return TypeChunkData }

func (p *ChunkData) Fields(Version) []Field {
	fields := []Field{
		Int("chunk_x", &p.ChunkX),
		Int("chunk_z", &p.ChunkZ),
		NBT("heightmaps", &p.Heightmaps),
		Bytes("data", &p.Data, protocol.DefaultMaxAllocation),
		Slice("block_entities", &p.BlockEntities, 5, func(b *BlockEntity) []Field {
			return []Field{
				UByte("packed_xz", &b.PackedXZ),
				Short("y", &b.Y),
				VarInt("type", &b.Kind),
				NBT("data", &b.Data),
			}
		}),
	}
	return append(fields, p.Light.fields()...)
}

// DeathLocation is the optional last death point of PlayLogin.
type DeathLocation struct {
	Dimension string
	Location  protocol.Position
}

// PlayLogin enters the play state.
type PlayLogin struct {
	EntityID            int32
	Hardcore            bool
	DimensionNames      []string
	MaxPlayers          int32
	ViewDistance        int32
	SimulationDistance  int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	DoLimitedCrafting   bool
	DimensionType       int32
	DimensionName       string
	HashedSeed          int64
	GameMode            uint8
	PreviousGameMode    int8
	IsDebug             bool
	IsFlat              bool
	HasDeathLocation    bool
	Death               DeathLocation
	PortalCooldown      int32

	// SeaLevel exists on the wire from 1.21.2.
	SeaLevel int32

	EnforcesSecureChat bool
}

func (*PlayLogin) Type() Type { return TypePlayLogin }

func (p *PlayLogin) Fields(v Version) []Field {
	fields := []Field{
		Int("entity_id", &p.EntityID),
		Bool("is_hardcore", &p.Hardcore),
		Strings("dimension_names", &p.DimensionNames, MaxIdentifier),
		VarInt("max_players", &p.MaxPlayers),
		VarInt("view_distance", &p.ViewDistance),
		VarInt("simulation_distance", &p.SimulationDistance),
		Bool("reduced_debug_info", &p.ReducedDebugInfo),
		Bool("enable_respawn_screen", &p.EnableRespawnScreen),
		Bool("do_limited_crafting", &p.DoLimitedCrafting),
		VarInt("dimension_type", &p.DimensionType),
		Identifier("dimension_name", &p.DimensionName),
		Long("hashed_seed", &p.HashedSeed),
		UByte("game_mode", &p.GameMode),
		Byte("previous_game_mode", &p.PreviousGameMode),
		Bool("is_debug", &p.IsDebug),
		Bool("is_flat", &p.IsFlat),
		Optional("death_location", &p.HasDeathLocation,
			Identifier("death_dimension_name", &p.Death.Dimension),
			Position("death_location", &p.Death.Location),
		),
		VarInt("portal_cooldown", &p.PortalCooldown),
	}
	if v >= V1_21_2 {
		fields = append(fields, VarInt("sea_level", &p.SeaLevel))
	}
	return append(fields, Bool("enforces_secure_chat", &p.EnforcesSecureChat))
}

// SyncPlayerPosition teleports the player. Before 1.21.2 the packet has no
// velocity, a byte of flags and the teleport id last.
type SyncPlayerPosition struct {
	TeleportID int32
	X, Y, Z    float64
	VelX       float64
	VelY       float64
	VelZ       float64
	Yaw, Pitch float32
	Flags      int32
}

func (*SyncPlayerPosition) Type() Type { return TypeSyncPlayerPosition }

func (p *SyncPlayerPosition) Fields(v Version) []Field {
	if v >= V1_21_2 {
		return []Field{
			VarInt("teleport_id", &p.TeleportID),
			Double("x", &p.X),
			Double("y", &p.Y),
			Double("z", &p.Z),
			Double("velocity_x", &p.VelX),
			Double("velocity_y", &p.VelY),
			Double("velocity_z", &p.VelZ),
			Float("yaw", &p.Yaw),
			Float("pitch", &p.Pitch),
			Int("flags", &p.Flags),
		}
	}
	return []Field{
		Double("x", &p.X),
		Double("y", &p.Y),
		Double("z", &p.Z),
		Float("yaw", &p.Yaw),
		Float("pitch", &p.Pitch),
		{
			Name:   "flags",
			Encode: func(e *protocol.Encoder) error { e.WriteInt8(int8(p.Flags)); return nil },
			Decode: func(d *protocol.Decoder) error {
				b, err := d.ReadInt8()
				p.Flags = int32(b)
				return err
			},
		},
		VarInt("teleport_id", &p.TeleportID),
	}
}

type SetCenterChunk struct {
	ChunkX int32
	ChunkZ int32
}

func (*SetCenterChunk) Type() Type { return TypeSetCenterChunk }

func (p *SetCenterChunk) Fields(Version) []Field {
	return []Field{
		VarInt("chunk_x", &p.ChunkX),
		VarInt("chunk_z", &p.ChunkZ),
	}
}

// StartConfiguration sends a playing client back to configuration.
type StartConfiguration struct{}

func (*StartConfiguration) Type() Type { return TypeStartConfiguration }

func (*StartConfiguration) Fields(Version) []Field { return nil }

type SystemChat struct {
	Content nbt.Raw
	Overlay bool
}

func (*SystemChat) Type() Type { return TypeSystemChat }

func (p *SystemChat) Fields(Version) []Field {
	return []Field{
		NBT("content", &p.Content),
		Bool("overlay", &p.Overlay),
	}
}

// Serverbound play packets.

type ConfirmTeleport struct {
	TeleportID int32
}

func (*ConfirmTeleport) Type() Type { return TypeConfirmTeleport }

func (p *ConfirmTeleport) Fields(Version) []Field {
	return []Field{VarInt("teleport_id", &p.TeleportID)}
}

// ChatMessage is a player chat message with its signing state.
type ChatMessage struct {
	Message      string
	Timestamp    int64
	Salt         int64
	HasSignature bool
	Signature    []byte
	MessageCount int32
	Acknowledged []byte
}

func (*ChatMessage) Type() Type { return TypeChatMessage }

func (p *ChatMessage) Fields(Version) []Field {
	return []Field{
		String("message", &p.Message, MaxChatLength),
		Long("timestamp", &p.Timestamp),
		Long("salt", &p.Salt),
		Optional("signature", &p.HasSignature, Fixed("signature", &p.Signature, 256)),
		VarInt("message_count", &p.MessageCount),
		Fixed("acknowledged", &p.Acknowledged, 3),
	}
}

type ChunkBatchReceived struct {
	ChunksPerTick float32
}

func (*ChunkBatchReceived) Type() Type { return TypeChunkBatchReceived }

func (p *ChunkBatchReceived) Fields(Version) []Field {
	return []Field{Float("chunks_per_tick", &p.ChunksPerTick)}
}

// Client status actions.
const (
	ClientStatusRespawn      int32 = 0
	ClientStatusRequestStats int32 = 1
)

type ClientStatus struct {
	Action int32
}

func (*ClientStatus) Type() Type { return TypeClientStatus }

func (p *ClientStatus) Fields(Version) []Field {
	return []Field{Enum("action_id", &p.Action, ClientStatusRespawn, ClientStatusRequestStats)}
}

// ClientTickEnd exists from 1.21.2.
type ClientTickEnd struct{}

func (*ClientTickEnd) Type() Type { return TypeClientTickEnd }

func (*ClientTickEnd) Fields(Version) []Field { return nil }

type PlayClientInformation struct {
	ClientSettings
}

func (*PlayClientInformation) Type() Type { return TypePlayClientInformation }

func (p *PlayClientInformation) Fields(v Version) []Field { return p.fields(v) }

// AcknowledgeConfiguration answers StartConfiguration.
type AcknowledgeConfiguration struct{}

func (*AcknowledgeConfiguration) Type() Type { return TypeAcknowledgeConfiguration }

func (*AcknowledgeConfiguration) Fields(Version) []Field { return nil }

type PlayKeepAliveResponse struct {
	ID int64
}

func (*PlayKeepAliveResponse) Type() Type { return TypePlayKeepAliveResponse }

func (p *PlayKeepAliveResponse) Fields(Version) []Field {
	return []Field{Long("keep_alive_id", &p.ID)}
}

// Movement flag bits.
const (
	FlagOnGround           uint8 = 0x01
	FlagPushingAgainstWall uint8 = 0x02
)

type PlayerPosition struct {
	X, FeetY, Z float64
	Flags       uint8
}

func (*PlayerPosition) Type() Type { return TypePlayerPosition }

func (p *PlayerPosition) Fields(v Version) []Field {
	return []Field{
		Double("x", &p.X),
		Double("feet_y", &p.FeetY),
		Double("z", &p.Z),
		MovementFlags("flags", &p.Flags, v),
	}
}

type PlayerPositionRotation struct {
	X, FeetY, Z float64
	Yaw, Pitch  float32
	Flags       uint8
}

func (*PlayerPositionRotation) Type() Type { return TypePlayerPositionRotation }

func (p *PlayerPositionRotation) Fields(v Version) []Field {
	return []Field{
		Double("x", &p.X),
		Double("feet_y", &p.FeetY),
		Double("z", &p.Z),
		Float("yaw", &p.Yaw),
		Float("pitch", &p.Pitch),
		MovementFlags("flags", &p.Flags, v),
	}
}

type PlayerRotation struct {
	Yaw, Pitch float32
	Flags      uint8
}

func (*PlayerRotation) Type() Type { return TypePlayerRotation }

func (p *PlayerRotation) Fields(v Version) []Field {
	return []Field{
		Float("yaw", &p.Yaw),
		Float("pitch", &p.Pitch),
		MovementFlags("flags", &p.Flags, v),
	}
}

// PlayerMovementFlags is "Set Player On Ground" before 1.21.2.
type PlayerMovementFlags struct {
	Flags uint8
}

func (*PlayerMovementFlags) Type() Type { return TypePlayerMovementFlags }

func (p *PlayerMovementFlags) Fields(v Version) []Field {
	return []Field{MovementFlags("flags", &p.Flags, v)}
}

func init() {
	sb, cb := protocol.Serverbound, protocol.Clientbound
	st := protocol.StatePlay
	register(TypeConfirmTeleport, "ConfirmTeleport", st, sb, func() Packet { return new(ConfirmTeleport) })
	register(TypeChatMessage, "ChatMessage", st, sb, func() Packet { return new(ChatMessage) })
	register(TypeChunkBatchReceived, "ChunkBatchReceived", st, sb, func() Packet { return new(ChunkBatchReceived) })
	register(TypeClientStatus, "ClientStatus", st, sb, func() Packet { return new(ClientStatus) })
	register(TypeClientTickEnd, "ClientTickEnd", st, sb, func() Packet { return new(ClientTickEnd) })
	register(TypePlayClientInformation, "PlayClientInformation", st, sb, func() Packet { return new(PlayClientInformation) })
	register(TypeAcknowledgeConfiguration, "AcknowledgeConfiguration", st, sb, func() Packet { return new(AcknowledgeConfiguration) })
	register(TypePlayKeepAliveResponse, "PlayKeepAliveResponse", st, sb, func() Packet { return new(PlayKeepAliveResponse) })
	register(TypePlayerPosition, "PlayerPosition", st, sb, func() Packet { return new(PlayerPosition) })
	register(TypePlayerPositionRotation, "PlayerPositionRotation", st, sb, func() Packet { return new(PlayerPositionRotation) })
	register(TypePlayerRotation, "PlayerRotation", st, sb, func() Packet { return new(PlayerRotation) })
	register(TypePlayerMovementFlags, "PlayerMovementFlags", st, sb, func() Packet { return new(PlayerMovementFlags) })
	register(TypeChunkBatchFinished, "ChunkBatchFinished", st, cb, func() Packet { return new(ChunkBatchFinished) })
	register(TypeChunkBatchStart, "ChunkBatchStart", st, cb, func() Packet { return new(ChunkBatchStart) })
	register(TypePlayDisconnect, "PlayDisconnect", st, cb, func() Packet { return new(PlayDisconnect) })
	register(TypeUnloadChunk, "UnloadChunk", st, cb, func() Packet { return new(UnloadChunk) })
	register(TypeGameEvent, "GameEvent", st, cb, func() Packet { return new(GameEvent) })
	register(TypePlayKeepAlive, "PlayKeepAlive", st, cb, func() Packet { return new(PlayKeepAlive) })
	register(TypeChunkData, "ChunkData", st, cb, func() Packet { return new(ChunkData) })
	register(TypePlayLogin, "PlayLogin", st, cb, func() Packet { return new(PlayLogin) })
	register(TypeSyncPlayerPosition, "SyncPlayerPosition", st, cb, func() Packet { return new(SyncPlayerPosition) })
	register(TypeSetCenterChunk, "SetCenterChunk", st, cb, func() Packet { return new(SetCenterChunk) })
	register(TypeStartConfiguration, "StartConfiguration", st, cb, func() Packet { return new(StartConfiguration) })
	register(TypeSystemChat, "SystemChat", st, cb, func() Packet { return new(SystemChat) })
}
