package packet

import "github.com/obsidium-dev/obsidium/pkg/protocol"

// Intent is the next state a client asks for in the handshake.
type Intent int32

const (
	IntentStatus   Intent = 1
	IntentLogin    Intent = 2
	IntentTransfer Intent = 3
)

// String returns the string representation of the intent.
func (i Intent) String() string {
	switch i {
	case IntentStatus:
		return "status"
	case IntentLogin:
		return "login"
	case IntentTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// LegacyPingByte is the first byte of a pre-1.7 server list ping. It can
// never start a modern handshake frame because that frame is far shorter
// than 0xFE bytes.
const LegacyPingByte = 0xFE

// Intention opens every connection.
type Intention struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	Intent          Intent
}

func (*Intention) Type() Type { return TypeIntention }

func (p *Intention) Fields(Version) []Field {
	return []Field{
		VarInt("protocol_version", &p.ProtocolVersion),
		String("server_address", &p.ServerAddress, MaxServerAddr),
		UShort("server_port", &p.ServerPort),
		Enum("intent", (*int32)(&p.Intent), int32(IntentStatus), int32(IntentTransfer)),
	}
}

func init() {
	register(TypeIntention, "Intention", protocol.StateHandshake, protocol.Serverbound, func() Packet { return new(Intention) })
}
