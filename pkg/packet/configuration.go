package packet

import (
	"github.com/google/uuid"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// ClientSettings is the body shared by the configuration and play
// ClientInformation packets.
type ClientSettings struct {
	Locale              string
	ViewDistance        int8
	ChatMode            int32
	ChatColors          bool
	DisplayedSkinParts  uint8
	MainHand            int32
	EnableTextFiltering bool
	AllowServerListings bool

	// ParticleStatus exists on the wire from 1.21.2.
	ParticleStatus int32
}

func (s *ClientSettings) fields(v Version) []Field {
	fields := []Field{
		String("locale", &s.Locale, 16),
		Byte("view_distance", &s.ViewDistance),
		Enum("chat_mode", &s.ChatMode, 0, 2),
		Bool("chat_colors", &s.ChatColors),
		UByte("displayed_skin_parts", &s.DisplayedSkinParts),
		Enum("main_hand", &s.MainHand, 0, 1),
		Bool("enable_text_filtering", &s.EnableTextFiltering),
		Bool("allow_server_listings", &s.AllowServerListings),
	}
	if v >= V1_21_2 {
		fields = append(fields, Enum("particle_status", &s.ParticleStatus, 0, 2))
	}
	return fields
}

// ConfigClientInformation reports client settings during configuration.
type ConfigClientInformation struct {
	ClientSettings
}

func (*ConfigClientInformation) Type() Type { return TypeConfigClientInformation }

func (p *ConfigClientInformation) Fields(v Version) []Field { return p.fields(v) }

// PluginMessage is a custom channel payload. The protocol defines the same
// layout for both directions.
type PluginMessage struct {
	Channel string
	Data    []byte
}

func (m *PluginMessage) fields() []Field {
	return []Field{
		Identifier("channel", &m.Channel),
		Rest("data", &m.Data),
	}
}

// BrandChannel carries the server and client brand strings.
const BrandChannel = "minecraft:brand"

// ConfigClientPluginMessage is a serverbound plugin message.
type ConfigClientPluginMessage struct {
	PluginMessage
}

func (*ConfigClientPluginMessage) Type() Type { return TypeConfigClientPluginMessage }

func (p *ConfigClientPluginMessage) Fields(Version) []Field { return p.fields() }

// ConfigPluginMessage is a clientbound plugin message.
type ConfigPluginMessage struct {
	PluginMessage
}

func (*ConfigPluginMessage) Type() Type { return TypeConfigPluginMessage }

func (p *ConfigPluginMessage) Fields(Version) []Field { return p.fields() }

// NewBrand returns a brand plugin message body.
func NewBrand(brand string) []byte {
	e := protocol.NewEncoderWithCap(len(brand) + 2)
	e.WriteString(brand)
	return e.Bytes()
}

// ConfigDisconnect ends the connection during configuration.
type ConfigDisconnect struct {
	Reason nbt.Raw
}

func (*ConfigDisconnect) Type() Type { return TypeConfigDisconnect }

func (p *ConfigDisconnect) Fields(Version) []Field {
	return []Field{NBT("reason", &p.Reason)}
}

// FinishConfiguration asks the client to enter play.
type FinishConfiguration struct{}

func (*FinishConfiguration) Type() Type { return TypeFinishConfiguration }

func (*FinishConfiguration) Fields(Version) []Field { return nil }

// AcknowledgeFinishConfiguration moves the client to play.
type AcknowledgeFinishConfiguration struct{}

func (*AcknowledgeFinishConfiguration) Type() Type { return TypeAcknowledgeFinishConfiguration }

func (*AcknowledgeFinishConfiguration) Fields(Version) []Field { return nil }

type ConfigKeepAlive struct {
	ID int64
}

func (*ConfigKeepAlive) Type() Type { return TypeConfigKeepAlive }

func (p *ConfigKeepAlive) Fields(Version) []Field { return []Field{Long("keep_alive_id", &p.ID)} }

type ConfigKeepAliveResponse struct {
	ID int64
}

func (*ConfigKeepAliveResponse) Type() Type { return TypeConfigKeepAliveResponse }

func (p *ConfigKeepAliveResponse) Fields(Version) []Field {
	return []Field{Long("keep_alive_id", &p.ID)}
}

type ConfigPing struct {
	ID int32
}

func (*ConfigPing) Type() Type { return TypeConfigPing }

func (p *ConfigPing) Fields(Version) []Field { return []Field{Int("id", &p.ID)} }

type ConfigPong struct {
	ID int32
}

func (*ConfigPong) Type() Type { return TypeConfigPong }

func (p *ConfigPong) Fields(Version) []Field { return []Field{Int("id", &p.ID)} }

// ResourcePackResponse reports the status of a resource pack download.
type ResourcePackResponse struct {
	UUID   uuid.UUID
	Result int32
}

func (*ResourcePackResponse) Type() Type { return TypeResourcePackResponse }

func (p *ResourcePackResponse) Fields(Version) []Field {
	return []Field{
		UUID("uuid", &p.UUID),
		Enum("result", &p.Result, 0, 7),
	}
}

// KnownPack identifies a data pack both sides may already have.
type KnownPack struct {
	Namespace string
	ID        string
	Version   string
}

// CorePack is the vanilla data pack of the latest version.
var CorePack = KnownPack{Namespace: "minecraft", ID: "core", Version: Latest.Name()}

func knownPackFields(k *KnownPack) []Field {
	return []Field{
		String("namespace", &k.Namespace, protocol.MaxStringLength),
		String("id", &k.ID, protocol.MaxStringLength),
		String("version", &k.Version, protocol.MaxStringLength),
	}
}

// ConfigKnownPacks lists the packs the server offers.
type ConfigKnownPacks struct {
	Packs []KnownPack
}

func (*ConfigKnownPacks) Type() Type { return TypeConfigKnownPacks }

func (p *ConfigKnownPacks) Fields(Version) []Field {
	return []Field{Slice("known_packs", &p.Packs, 3, knownPackFields)}
}

// ConfigClientKnownPacks lists the offered packs the client has.
type ConfigClientKnownPacks struct {
	Packs []KnownPack
}

func (*ConfigClientKnownPacks) Type() Type { return TypeConfigClientKnownPacks }

func (p *ConfigClientKnownPacks) Fields(Version) []Field {
	return []Field{Slice("known_packs", &p.Packs, 3, knownPackFields)}
}

// RegistryEntry is one entry of a synchronized registry. Data is omitted
// when the client already has the entry from a known pack.
type RegistryEntry struct {
	ID      string
	HasData bool
	Data    nbt.Raw
}

// RegistryData sends the contents of one registry.
type RegistryData struct {
	RegistryID string
	Entries    []RegistryEntry
}

func (*RegistryData) Type() Type { return TypeRegistryData }

func (p *RegistryData) Fields(Version) []Field {
	return []Field{
		Identifier("registry_id", &p.RegistryID),
		Slice("entries", &p.Entries, 2, func(e *RegistryEntry) []Field {
			return []Field{
				Identifier("entry_id", &e.ID),
				Optional("data", &e.HasData, NBT("data", &e.Data)),
			}
		}),
	}
}

// FeatureFlags enables experimental feature sets.
type FeatureFlags struct {
	Flags []string
}

func (*FeatureFlags) Type() Type { return TypeFeatureFlags }

func (p *FeatureFlags) Fields(Version) []Field {
	return []Field{Strings("feature_flags", &p.Flags, MaxIdentifier)}
}

// VanillaFeature is the default feature flag.
const VanillaFeature = "minecraft:vanilla"

func init() {
	sb, cb := protocol.Serverbound, protocol.Clientbound
	st := protocol.StateConfiguration
	register(TypeConfigClientInformation, "ConfigClientInformation", st, sb, func() Packet { return new(ConfigClientInformation) })
	register(TypeConfigClientPluginMessage, "ConfigClientPluginMessage", st, sb, func() Packet { return new(ConfigClientPluginMessage) })
	register(TypeAcknowledgeFinishConfiguration, "AcknowledgeFinishConfiguration", st, sb, func() Packet { return new(AcknowledgeFinishConfiguration) })
	register(TypeConfigKeepAliveResponse, "ConfigKeepAliveResponse", st, sb, func() Packet { return new(ConfigKeepAliveResponse) })
	register(TypeConfigPong, "ConfigPong", st, sb, func() Packet { return new(ConfigPong) })
	register(TypeResourcePackResponse, "ResourcePackResponse", st, sb, func() Packet { return new(ResourcePackResponse) })
	register(TypeConfigClientKnownPacks, "ConfigClientKnownPacks", st, sb, func() Packet { return new(ConfigClientKnownPacks) })
	register(TypeConfigPluginMessage, "ConfigPluginMessage", st, cb, func() Packet { return new(ConfigPluginMessage) })
	register(TypeConfigDisconnect, "ConfigDisconnect", st, cb, func() Packet { return new(ConfigDisconnect) })
	register(TypeFinishConfiguration, "FinishConfiguration", st, cb, func() Packet { return new(FinishConfiguration) })
	register(TypeConfigKeepAlive, "ConfigKeepAlive", st, cb, func() Packet { return new(ConfigKeepAlive) })
	register(TypeConfigPing, "ConfigPing", st, cb, func() Packet { return new(ConfigPing) })
	register(TypeRegistryData, "RegistryData", st, cb, func() Packet { return new(RegistryData) })
	register(TypeFeatureFlags, "FeatureFlags", st, cb, func() Packet { return new(FeatureFlags) })
	register(TypeConfigKnownPacks, "ConfigKnownPacks", st, cb, func() Packet { return new(ConfigKnownPacks) })
}
