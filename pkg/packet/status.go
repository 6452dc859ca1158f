package packet

import (
	"encoding/json"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// StatusRequest asks for the server list entry.
type StatusRequest struct{}

func (*StatusRequest) Type() Type { return TypeStatusRequest }
func (*StatusRequest) Fields(Version) []Field { return nil }

// StatusResponse carries the server list entry as JSON.
type StatusResponse struct {
	JSON string
}

func (*StatusResponse) Type() Type { return TypeStatusResponse }

func (p *StatusResponse) Fields(Version) []Field {
	return []Field{String("json_response", &p.JSON, protocol.MaxStringLength)}
}

// PingRequest carries an opaque payload echoed by PongResponse.
type PingRequest struct {
	Payload int64
}

func (*PingRequest) Type() Type { return TypePingRequest }

func (p *PingRequest) Fields(Version) []Field {
	return []Field{Long("payload", &p.Payload)}
}

type PongResponse struct {
	Payload int64
}

func (*PongResponse) Type() Type { return TypePongResponse }

func (p *PongResponse) Fields(Version) []Field {
	return []Field{Long("payload", &p.Payload)}
}

// ServerStatus is the JSON document of a StatusResponse.
type ServerStatus struct {
	Version            StatusVersion `json:"version"`
	Players            StatusPlayers `json:"players"`
	Description        StatusText    `json:"description"`
	Favicon            string        `json:"favicon,omitempty"`
	EnforcesSecureChat bool          `json:"enforcesSecureChat"`
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type StatusPlayers struct {
	Max    int            `json:"max"`
	Online int            `json:"online"`
	Sample []StatusSample `json:"sample,omitempty"`
}

type StatusSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type StatusText struct {
	Text string `json:"text"`
}

// NewStatusResponse marshals s into a StatusResponse.
func NewStatusResponse(s ServerStatus) (*StatusResponse, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{JSON: string(b)}, nil
}

// Status parses the JSON document.
func (p *StatusResponse) Status() (ServerStatus, error) {
	var s ServerStatus
	err := json.Unmarshal([]byte(p.JSON), &s)
	return s, err
}

func init() {
	register(TypeStatusRequest, "StatusRequest", protocol.StateStatus, protocol.Serverbound, func() Packet { return new(StatusRequest) })
	register(TypePingRequest, "PingRequest", protocol.StateStatus, protocol.Serverbound, func() Packet { return new(PingRequest) })
	register(TypeStatusResponse, "StatusResponse", protocol.StateStatus, protocol.Clientbound, func() Packet { return new(StatusResponse) })
	register(TypePongResponse, "PongResponse", protocol.StateStatus, protocol.Clientbound, func() Packet { return new(PongResponse) })
}
