package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/auth"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Login rejection reasons shown to the client.
const (
	reasonInvalidName = "Invalid username."
	reasonFull        = "The server is full!"
	reasonBadToken    = "Encryption verification failed."
	reasonAuthFailed  = "Failed to verify username!"
	reasonDuplicate   = "You logged in from another location."
	reasonBanned      = "You are banned from this server."
)

// loginState is the progress of the login and status exchanges.
type loginState struct {
	statusSent  bool
	start       *packet.LoginStart
	verifyToken []byte
	successSent bool
}

// keyPair is the server RSA key used for the login key exchange.
type keyPair struct {
	private   *rsa.PrivateKey
	publicDER []byte
}

func generateKeyPair() (*keyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &keyPair{private: key, publicDER: der}, nil
}

func (c *Conn) handleLogin(ctx context.Context, p packet.Packet) error {
	switch p := p.(type) {
	case *packet.LoginStart:
		if c.login.start != nil {
			return c.machine.Unexpected(p)
		}
		c.login.start = p
		c.negotiation.setPlayer(p.Name)
		if !auth.ValidUsername(p.Name) {
			return c.reject(reasonInvalidName, nil)
		}
		if !c.srv.cfg.Encryption {
			return c.finishLogin(ctx, &auth.Profile{ID: auth.OfflineUUID(p.Name), Name: p.Name})
		}
		return c.requestEncryption()

	case *packet.EncryptionResponse:
		if c.login.verifyToken == nil || c.cipher.Active() {
			return c.machine.Unexpected(p)
		}
		return c.handleEncryption(ctx, p)

	case *packet.LoginPluginResponse:
		// No plugin requests are sent; answers to them are ignored.
		return nil

	case *packet.LoginAcknowledged:
		if !c.login.successSent {
			return c.machine.Unexpected(p)
		}
		if err := c.transition(protocol.StateConfiguration); err != nil {
			return err
		}
		c.clearReadDeadline()
		c.negotiation.end(nil)
		return c.startConfiguration()
	}
	return c.machine.Unexpected(p)
}

func (c *Conn) requestEncryption() error {
	keys, err := c.srv.keys()
	if err != nil {
		return fmt.Errorf("server key: %w", err)
	}
	token := make([]byte, 4)
	if _, err := rand.Read(token); err != nil {
		return err
	}
	c.login.verifyToken = token
	c.negotiation.event("encryption_request")
	return c.send(&packet.EncryptionRequest{
		ServerID:           "",
		PublicKey:          keys.publicDER,
		VerifyToken:        token,
		ShouldAuthenticate: c.srv.cfg.OnlineMode,
	})
}

func (c *Conn) handleEncryption(ctx context.Context, p *packet.EncryptionResponse) error {
	keys, err := c.srv.keys()
	if err != nil {
		return fmt.Errorf("server key: %w", err)
	}
	token, err := rsa.DecryptPKCS1v15(nil, keys.private, p.VerifyToken)
	if err != nil || !bytes.Equal(token, c.login.verifyToken) {
		return c.reject(reasonBadToken, err)
	}
	secret, err := rsa.DecryptPKCS1v15(nil, keys.private, p.SharedSecret)
	if err != nil || len(secret) != 16 {
		return c.reject(reasonBadToken, err)
	}
	if err := c.cipher.Activate(secret); err != nil {
		return err
	}
	c.negotiation.event("cipher_active")

	name := c.login.start.Name
	if !c.srv.cfg.OnlineMode {
		return c.finishLogin(ctx, &auth.Profile{ID: auth.OfflineUUID(name), Name: name})
	}

	vctx, cancel := context.WithTimeout(ctx, c.srv.cfg.HandshakeTimeout)
	defer cancel()
	hash := auth.ServerHash("", secret, keys.publicDER)
	profile, err := c.srv.verifier.Verify(vctx, name, hash, "")
	if err != nil {
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			c.logger.Warn("session server check failed", "player", name, "error", err)
		}
		return c.reject(reasonAuthFailed, err)
	}
	return c.finishLogin(ctx, profile)
}

// finishLogin applies ban, duplicate and capacity checks to the final
// identity, then enables compression and sends LoginSuccess.
func (c *Conn) finishLogin(ctx context.Context, profile *auth.Profile) error {
	if ban, err := c.srv.bans.Lookup(ctx, profile.ID, profile.Name); err != nil {
		return fmt.Errorf("ban lookup: %w", err)
	} else if ban != nil {
		reason := reasonBanned
		if ban.Reason != "" {
			reason += "\nReason: " + ban.Reason
		}
		return c.reject(reason, nil)
	}

	online := c.srv.dir.Len()
	if old, ok := c.srv.dir.FindByUUID(profile.ID); ok {
		c.logger.Info("kicking duplicate login", "player", profile.Name, "old_conn_id", uint64(old.ID()))
		old.Close(reasonDuplicate)
		online--
	}
	if limit := c.srv.cfg.MaxPlayers; limit > 0 && online >= limit {
		return c.reject(reasonFull, nil)
	}

	pl := c.Player()
	pl.UUID = profile.ID
	pl.Name = profile.Name
	pl.Properties = profile.Properties
	c.player.Store(&pl)
	c.logger = c.logger.With("player", profile.Name)

	if t := c.srv.cfg.CompressionThreshold; t >= 0 {
		err := c.sendThen(&packet.SetCompression{Threshold: int32(t)}, func() {
			c.fw.SetCompression(t)
		})
		if err != nil {
			return err
		}
		c.fr.SetCompression(t)
	}

	c.login.successSent = true
	return c.send(&packet.LoginSuccess{
		UUID:       profile.ID,
		Username:   profile.Name,
		Properties: profile.Properties,
	})
}

// nextEntityID hands out entity ids for joining players.
func (s *Server) nextEntityID() int32 {
	return s.entityIDs.Add(1)
}
