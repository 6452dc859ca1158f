package auth

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/obsidium-dev/obsidium/pkg/packet"
)

// DefaultSessionServer is the hasJoined endpoint of the official session
// server.
const DefaultSessionServer = "https://sessionserver.mojang.com/session/minecraft/hasJoined"

// ErrNotAuthenticated is returned when the session server does not know
// the player joined with the given server hash.
var ErrNotAuthenticated = errors.New("auth: player has not joined")

// Profile is an authenticated player identity.
type Profile struct {
	ID         uuid.UUID
	Name       string
	Properties []packet.Property
}

// Verifier confirms an online-mode login with a session server.
type Verifier interface {
	// Verify returns the profile of name if the client announced hash to
	// the session server. ip is optional and may be empty.
	Verify(ctx context.Context, name, hash, ip string) (*Profile, error)
}

// ServerHash returns the login digest of the session protocol: SHA-1 over
// the server id, the shared secret and the DER public key, printed as a
// signed two's complement hex number without leading zeros.
func ServerHash(serverID string, sharedSecret, publicKey []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(sharedSecret)
	h.Write(publicKey)
	return signedHex(h.Sum(nil))
}

func signedHex(sum []byte) string {
	n := new(big.Int).SetBytes(sum)
	if sum[0]&0x80 != 0 {
		// Negative: subtract 2^(8*len).
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(sum))*8))
	}
	return n.Text(16)
}

// MojangVerifier queries a hasJoined endpoint over HTTP.
type MojangVerifier struct {
	Endpoint string
	Client   *http.Client
}

// NewMojangVerifier creates a verifier against the official session
// server with a 5 s request timeout.
func NewMojangVerifier() *MojangVerifier {
	return &MojangVerifier{
		Endpoint: DefaultSessionServer,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type profileJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties []struct {
		Name      string `json:"name"`
		Value     string `json:"value"`
		Signature string `json:"signature,omitempty"`
	} `json:"properties"`
}

func (v *MojangVerifier) Verify(ctx context.Context, name, hash, ip string) (*Profile, error) {
	q := url.Values{"username": {name}, "serverId": {hash}}
	if ip != "" {
		q.Set("ip", ip)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: session server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, ErrNotAuthenticated
	default:
		return nil, fmt.Errorf("auth: session server: unexpected status %s", resp.Status)
	}

	var body profileJSON
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("auth: session server: %w", err)
	}
	id, err := uuid.Parse(body.ID)
	if err != nil {
		return nil, fmt.Errorf("auth: session server profile id %q: %w", body.ID, err)
	}
	p := &Profile{ID: id, Name: body.Name}
	for _, prop := range body.Properties {
		p.Properties = append(p.Properties, packet.Property{
			Name:         prop.Name,
			Value:        prop.Value,
			HasSignature: prop.Signature != "",
			Signature:    prop.Signature,
		})
	}
	return p, nil
}

// OfflineVerifier accepts every login with the offline identity of the
// name. It is what tests and LAN servers use in place of a session server.
type OfflineVerifier struct{}

func (OfflineVerifier) Verify(_ context.Context, name, _, _ string) (*Profile, error) {
	return &Profile{ID: OfflineUUID(name), Name: name}, nil
}
