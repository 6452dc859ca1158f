package protocol

// State is a connection protocol state. Packet ids are only meaningful
// within a state.
type State uint8

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
	StateConfiguration
	StatePlay
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateStatus:
		return "Status"
	case StateLogin:
		return "Login"
	case StateConfiguration:
		return "Configuration"
	case StatePlay:
		return "Play"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Direction identifies which peer sends a packet.
type Direction uint8

const (
	// Serverbound packets travel from client to server.
	Serverbound Direction = iota
	// Clientbound packets travel from server to client.
	Clientbound
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Serverbound:
		return "serverbound"
	case Clientbound:
		return "clientbound"
	default:
		return "unknown"
	}
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Serverbound {
		return Clientbound
	}
	return Serverbound
}
