package packet

import (
	"github.com/google/uuid"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// LoginStart begins the login sequence.
type LoginStart struct {
	Name string
	UUID uuid.UUID
}

func (*LoginStart) Type() Type { return TypeLoginStart }

func (p *LoginStart) Fields(Version) []Field {
	return []Field{
		String("name", &p.Name, MaxUsername),
		UUID("player_uuid", &p.UUID),
	}
}

// EncryptionRequest starts the RSA key exchange.
type EncryptionRequest struct {
	ServerID           string
	PublicKey          []byte
	VerifyToken        []byte
	ShouldAuthenticate bool
}

func (*EncryptionRequest) Type() Type { return TypeEncryptionRequest }

func (p *EncryptionRequest) Fields(Version) []Field {
	return []Field{
		String("server_id", &p.ServerID, 20),
		Bytes("public_key", &p.PublicKey, 1024),
		Bytes("verify_token", &p.VerifyToken, 64),
		Bool("should_authenticate", &p.ShouldAuthenticate),
	}
}

// EncryptionResponse carries the RSA-encrypted shared secret and token.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (*EncryptionResponse) Type() Type { return TypeEncryptionResponse }

func (p *EncryptionResponse) Fields(Version) []Field {
	return []Field{
		Bytes("shared_secret", &p.SharedSecret, 512),
		Bytes("verify_token", &p.VerifyToken, 512),
	}
}

// Property is a signed profile property such as "textures".
type Property struct {
	Name         string
	Value        string
	HasSignature bool
	Signature    string
}

func propertyFields(p *Property) []Field {
	return []Field{
		String("name", &p.Name, 64),
		String("value", &p.Value, protocol.MaxStringLength),
		Optional("signature", &p.HasSignature, String("signature", &p.Signature, 1024)),
	}
}

// LoginSuccess ends the login state on the server side.
type LoginSuccess struct {
	UUID       uuid.UUID
	Username   string
	Properties []Property

	// StrictErrorHandling exists on the wire only before 1.21.2.
	StrictErrorHandling bool
}

func (*LoginSuccess) Type() Type { return TypeLoginSuccess }

func (p *LoginSuccess) Fields(v Version) []Field {
	fields := []Field{
		UUID("uuid", &p.UUID),
		String("username", &p.Username, MaxUsername),
		Slice("properties", &p.Properties, 3, propertyFields),
	}
	if v < V1_21_2 {
		fields = append(fields, Bool("strict_error_handling", &p.StrictErrorHandling))
	}
	return fields
}

// SetCompression enables compression for every following frame.
type SetCompression struct {
	Threshold int32
}

func (*SetCompression) Type() Type { return TypeSetCompression }

func (p *SetCompression) Fields(Version) []Field {
	return []Field{VarInt("threshold", &p.Threshold)}
}

// LoginDisconnect rejects a login with a JSON text component.
type LoginDisconnect struct {
	ReasonJSON string
}

func (*LoginDisconnect) Type() Type { return TypeLoginDisconnect }

func (p *LoginDisconnect) Fields(Version) []Field {
	return []Field{String("reason", &p.ReasonJSON, protocol.MaxStringLength)}
}

// LoginPluginRequest is a custom query during login.
type LoginPluginRequest struct {
	MessageID int32
	Channel   string
	Data      []byte
}

func (*LoginPluginRequest) Type() Type { return TypeLoginPluginRequest }

func (p *LoginPluginRequest) Fields(Version) []Field {
	return []Field{
		VarInt("message_id", &p.MessageID),
		Identifier("channel", &p.Channel),
		Rest("data", &p.Data),
	}
}

// LoginPluginResponse answers a LoginPluginRequest. Understood is false
// when the client does not know the channel.
type LoginPluginResponse struct {
	MessageID  int32
	Understood bool
	Data       []byte
}

func (*LoginPluginResponse) Type() Type { return TypeLoginPluginResponse }

func (p *LoginPluginResponse) Fields(Version) []Field {
	return []Field{
		VarInt("message_id", &p.MessageID),
		Optional("data", &p.Understood, Rest("data", &p.Data)),
	}
}

// LoginAcknowledged moves the client to the configuration state.
type LoginAcknowledged struct{}

func (*LoginAcknowledged) Type() Type { return TypeLoginAcknowledged }

func (*LoginAcknowledged) Fields(Version) []Field { return nil }

func init() {
	register(TypeLoginStart, "LoginStart", protocol.StateLogin, protocol.Serverbound, func() Packet { return new(LoginStart) })
	register(TypeEncryptionResponse, "EncryptionResponse", protocol.StateLogin, protocol.Serverbound, func() Packet { return new(EncryptionResponse) })
	register(TypeLoginPluginResponse, "LoginPluginResponse", protocol.StateLogin, protocol.Serverbound, func() Packet { return new(LoginPluginResponse) })
	register(TypeLoginAcknowledged, "LoginAcknowledged", protocol.StateLogin, protocol.Serverbound, func() Packet { return new(LoginAcknowledged) })
	register(TypeLoginDisconnect, "LoginDisconnect", protocol.StateLogin, protocol.Clientbound, func() Packet { return new(LoginDisconnect) })
	register(TypeEncryptionRequest, "EncryptionRequest", protocol.StateLogin, protocol.Clientbound, func() Packet { return new(EncryptionRequest) })
	register(TypeLoginSuccess, "LoginSuccess", protocol.StateLogin, protocol.Clientbound, func() Packet { return new(LoginSuccess) })
	register(TypeSetCompression, "SetCompression", protocol.StateLogin, protocol.Clientbound, func() Packet { return new(SetCompression) })
	register(TypeLoginPluginRequest, "LoginPluginRequest", protocol.StateLogin, protocol.Clientbound, func() Packet { return new(LoginPluginRequest) })
}
