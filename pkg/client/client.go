// Package client is a minimal game client: enough of the client side of
// the protocol to list a server, log in and reach play. The CLI ping
// command and the server tests use it as the peer.
package client

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/obsidium-dev/obsidium/pkg/auth"
	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// ErrDisconnected is matched by every *DisconnectError.
var ErrDisconnected = errors.New("client: disconnected by server")

// DisconnectError is returned when the server ends the connection with a
// disconnect packet.
type DisconnectError struct {
	State  protocol.State
	Reason string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("client: disconnected in %s: %s", e.State, e.Reason)
}

func (e *DisconnectError) Is(target error) bool { return target == ErrDisconnected }

// JoinFunc announces a login to the session server before the
// EncryptionResponse is sent. hash is the server hash of the exchange.
type JoinFunc func(ctx context.Context, hash string) error

// Option configures a Client.
type Option func(*Client)

// WithVersion selects the protocol version. Default: packet.Latest.
func WithVersion(v packet.Version) Option {
	return func(c *Client) {
		c.version = v
	}
}

// WithJoin sets the session join hook used when the server asks for
// authentication.
func WithJoin(fn JoinFunc) Option {
	return func(c *Client) {
		c.join = fn
	}
}

// WithTimeout bounds every read and write. Default: 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client is one connection to a server. It is not safe for concurrent use.
type Client struct {
	nc      net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	cipher  *protocol.Cipher
	fr      *protocol.FrameReader
	fw      *protocol.FrameWriter
	table   *packet.Table
	state   protocol.State
	version packet.Version
	join    JoinFunc
	timeout time.Duration

	host string
	port uint16

	// Collected during configuration.
	Registries []packet.RegistryData
	Brand      string
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := New(nc, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		c.host = host
		if p, err := strconv.ParseUint(port, 10, 16); err == nil {
			c.port = uint16(p)
		}
	}
	return c, nil
}

// New wraps an established connection.
func New(nc net.Conn, opts ...Option) (*Client, error) {
	c := &Client{
		nc:      nc,
		br:      bufio.NewReader(nc),
		bw:      bufio.NewWriter(nc),
		version: packet.Latest,
		timeout: 10 * time.Second,
		host:    "localhost",
		port:    25565,
	}
	for _, opt := range opts {
		opt(c)
	}
	t, err := packet.Default().Resolve(int32(c.version))
	if err != nil {
		return nil, err
	}
	c.table = t
	c.cipher = protocol.NewCipher(c.br, c.bw)
	c.fr = protocol.NewFrameReader(c.cipher.Reader(), protocol.DefaultLimits())
	c.fw = protocol.NewFrameWriter(c.cipher.Writer(), protocol.DefaultLimits())
	return c, nil
}

// State returns the state the client believes the connection is in.
func (c *Client) State() protocol.State { return c.state }

// SetState overrides the state used to decode inbound packets, for
// exchanges driven by hand with WritePacket.
func (c *Client) SetState(s protocol.State) { c.state = s }

// Table returns the packet table of the client's version.
func (c *Client) Table() *packet.Table { return c.table }

// Conn returns the underlying connection.
func (c *Client) Conn() net.Conn { return c.nc }

// Close closes the connection.
func (c *Client) Close() error { return c.nc.Close() }

// WritePacket encodes p with the client's table and flushes it.
func (c *Client) WritePacket(p packet.Packet) error {
	body, err := c.table.Marshal(p)
	if err != nil {
		return err
	}
	return c.WriteFrame(body)
}

// WriteFrame writes an already encoded packet body.
func (c *Client) WriteFrame(body []byte) error {
	c.nc.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.fw.WriteFrame(body); err != nil {
		return err
	}
	return c.bw.Flush()
}

// ReadPacket reads and decodes the next clientbound packet of the current
// state.
func (c *Client) ReadPacket() (packet.Packet, error) {
	c.nc.SetReadDeadline(time.Now().Add(c.timeout))
	body, err := c.fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	return c.table.Unmarshal(c.state, protocol.Clientbound, body)
}

// Handshake sends the intention packet and moves to the matching state.
func (c *Client) Handshake(intent packet.Intent) error {
	err := c.WritePacket(&packet.Intention{
		ProtocolVersion: int32(c.version),
		ServerAddress:   c.host,
		ServerPort:      c.port,
		Intent:          intent,
	})
	if err != nil {
		return err
	}
	if intent == packet.IntentStatus {
		c.state = protocol.StateStatus
	} else {
		c.state = protocol.StateLogin
	}
	return nil
}

// Status runs a server list ping on a fresh connection and returns the
// server status and the round trip of the ping.
func (c *Client) Status() (packet.ServerStatus, time.Duration, error) {
	var st packet.ServerStatus
	if err := c.Handshake(packet.IntentStatus); err != nil {
		return st, 0, err
	}
	if err := c.WritePacket(&packet.StatusRequest{}); err != nil {
		return st, 0, err
	}
	p, err := c.ReadPacket()
	if err != nil {
		return st, 0, err
	}
	resp, ok := p.(*packet.StatusResponse)
	if !ok {
		return st, 0, fmt.Errorf("client: expected StatusResponse, got %s", p.Type())
	}
	if st, err = resp.Status(); err != nil {
		return st, 0, fmt.Errorf("client: status json: %w", err)
	}

	start := time.Now()
	payload := start.UnixMilli()
	if err := c.WritePacket(&packet.PingRequest{Payload: payload}); err != nil {
		return st, 0, err
	}
	p, err = c.ReadPacket()
	if err != nil {
		return st, 0, err
	}
	pong, ok := p.(*packet.PongResponse)
	if !ok || pong.Payload != payload {
		return st, 0, fmt.Errorf("client: bad pong %v", p)
	}
	return st, time.Since(start), nil
}

// Ping dials addr and runs Status.
func Ping(ctx context.Context, addr string, opts ...Option) (packet.ServerStatus, time.Duration, error) {
	c, err := Dial(ctx, addr, opts...)
	if err != nil {
		return packet.ServerStatus{}, 0, err
	}
	defer c.Close()
	return c.Status()
}

// Login handshakes with the login intent and runs the login exchange up to
// and including LoginAcknowledged. The client is then in configuration.
func (c *Client) Login(ctx context.Context, name string) (*packet.LoginSuccess, error) {
	if err := c.Handshake(packet.IntentLogin); err != nil {
		return nil, err
	}
	if err := c.WritePacket(&packet.LoginStart{Name: name, UUID: auth.OfflineUUID(name)}); err != nil {
		return nil, err
	}
	for {
		p, err := c.ReadPacket()
		if err != nil {
			return nil, err
		}
		switch p := p.(type) {
		case *packet.EncryptionRequest:
			if err := c.encrypt(ctx, p); err != nil {
				return nil, err
			}
		case *packet.SetCompression:
			c.fr.SetCompression(int(p.Threshold))
			c.fw.SetCompression(int(p.Threshold))
		case *packet.LoginPluginRequest:
			err := c.WritePacket(&packet.LoginPluginResponse{MessageID: p.MessageID})
			if err != nil {
				return nil, err
			}
		case *packet.LoginDisconnect:
			return nil, &DisconnectError{State: c.state, Reason: textOf(p.ReasonJSON)}
		case *packet.LoginSuccess:
			if err := c.WritePacket(&packet.LoginAcknowledged{}); err != nil {
				return nil, err
			}
			c.state = protocol.StateConfiguration
			return p, nil
		}
	}
}

func (c *Client) encrypt(ctx context.Context, req *packet.EncryptionRequest) error {
	pub, err := x509.ParsePKIXPublicKey(req.PublicKey)
	if err != nil {
		return fmt.Errorf("client: server key: %w", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return errors.New("client: server key is not RSA")
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	if req.ShouldAuthenticate && c.join != nil {
		if err := c.join(ctx, auth.ServerHash(req.ServerID, secret, req.PublicKey)); err != nil {
			return fmt.Errorf("client: session join: %w", err)
		}
	}
	encSecret, err := rsa.EncryptPKCS1v15(rand.Reader, key, secret)
	if err != nil {
		return err
	}
	encToken, err := rsa.EncryptPKCS1v15(rand.Reader, key, req.VerifyToken)
	if err != nil {
		return err
	}
	err = c.WritePacket(&packet.EncryptionResponse{SharedSecret: encSecret, VerifyToken: encToken})
	if err != nil {
		return err
	}
	return c.cipher.Activate(secret)
}

// Configure answers the configuration phase until FinishConfiguration and
// acknowledges it. The client is then in play.
func (c *Client) Configure() error {
	for {
		p, err := c.ReadPacket()
		if err != nil {
			return err
		}
		done, err := c.handleConfiguration(p)
		if err != nil || done {
			return err
		}
	}
}

func (c *Client) handleConfiguration(p packet.Packet) (bool, error) {
	switch p := p.(type) {
	case *packet.ConfigPluginMessage:
		if p.Channel == packet.BrandChannel {
			d := protocol.NewDecoder(p.Data)
			c.Brand, _ = d.ReadString(32767)
		}
	case *packet.ConfigKnownPacks:
		return false, c.WritePacket(&packet.ConfigClientKnownPacks{Packs: p.Packs})
	case *packet.RegistryData:
		c.Registries = append(c.Registries, *p)
	case *packet.ConfigKeepAlive:
		return false, c.WritePacket(&packet.ConfigKeepAliveResponse{ID: p.ID})
	case *packet.ConfigPing:
		return false, c.WritePacket(&packet.ConfigPong{ID: p.ID})
	case *packet.ConfigDisconnect:
		return false, &DisconnectError{State: c.state, Reason: nbtText(p.Reason)}
	case *packet.FinishConfiguration:
		if err := c.WritePacket(&packet.AcknowledgeFinishConfiguration{}); err != nil {
			return false, err
		}
		c.state = protocol.StatePlay
		return true, nil
	}
	return false, nil
}

// Join logs in as name and walks configuration. It returns the play login
// packet.
func (c *Client) Join(ctx context.Context, name string) (*packet.PlayLogin, error) {
	if _, err := c.Login(ctx, name); err != nil {
		return nil, err
	}
	if err := c.Configure(); err != nil {
		return nil, err
	}
	for {
		p, err := c.ReadPlay()
		if err != nil {
			return nil, err
		}
		if login, ok := p.(*packet.PlayLogin); ok {
			return login, nil
		}
	}
}

// ReadPlay reads the next play packet. Keep-alives are answered and a
// StartConfiguration runs the configuration phase again before reading
// on.
func (c *Client) ReadPlay() (packet.Packet, error) {
	for {
		p, err := c.ReadPacket()
		if err != nil {
			return nil, err
		}
		switch p := p.(type) {
		case *packet.PlayKeepAlive:
			if err := c.WritePacket(&packet.PlayKeepAliveResponse{ID: p.ID}); err != nil {
				return nil, err
			}
			continue
		case *packet.StartConfiguration:
			if err := c.WritePacket(&packet.AcknowledgeConfiguration{}); err != nil {
				return nil, err
			}
			c.state = protocol.StateConfiguration
			if err := c.Configure(); err != nil {
				return nil, err
			}
			continue
		case *packet.PlayDisconnect:
			return nil, &DisconnectError{State: c.state, Reason: nbtText(p.Reason)}
		}
		return p, nil
	}
}

// textOf extracts the text of a JSON chat component, or returns s.
func textOf(s string) string {
	var msg struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return s
	}
	return msg.Text
}

// nbtText extracts the text of an NBT chat component.
func nbtText(raw nbt.Raw) string {
	v, _, err := nbt.Unmarshal(raw)
	if err != nil {
		return ""
	}
	switch v := v.(type) {
	case nbt.String:
		return string(v)
	case nbt.Compound:
		if t, ok := v.Get("text"); ok {
			if s, ok := t.(nbt.String); ok {
				return string(s)
			}
		}
	}
	return ""
}
