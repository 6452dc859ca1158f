package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/obsidium-dev/obsidium/pkg/auth"
	"github.com/obsidium-dev/obsidium/pkg/client"
	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

const testTimeout = 5 * time.Second

type harness struct {
	srv    *Server
	addr   string
	events chan Event
	served chan error
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness starts srv on a loopback listener and forwards its events.
func newHarness(t *testing.T, cfg *Config, opts ...Option) *harness {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	srv, err := New(cfg, append([]Option{WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	h := &harness{
		srv:    srv,
		addr:   ln.Addr().String(),
		events: make(chan Event, 4096),
		served: make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.served <- srv.Serve(ctx, ln) }()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-srv.Events():
				select {
				case h.events <- ev:
				default:
				}
			case <-stop:
				return
			}
		}
	}()

	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), testTimeout)
		defer scancel()
		srv.Shutdown(sctx)
		cancel()
		close(stop)
		wg.Wait()
	})
	return h
}

func (h *harness) dial(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	c, err := client.Dial(ctx, h.addr, append([]client.Option{client.WithTimeout(testTimeout)}, opts...)...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (h *harness) join(t *testing.T, name string, opts ...client.Option) (*client.Client, Event) {
	t.Helper()
	c := h.dial(t, opts...)
	if _, err := c.Join(context.Background(), name); err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return c, h.next(t, EventJoined)
}

// next returns the next event of kind, skipping others.
func (h *harness) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(testTimeout)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event within %v", kind, testTimeout)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readUntil reads play packets until one of type T arrives.
func readUntil[T packet.Packet](t *testing.T, c *client.Client) T {
	t.Helper()
	for {
		p, err := c.ReadPlay()
		if err != nil {
			t.Fatalf("read play: %v", err)
		}
		if v, ok := p.(T); ok {
			return v
		}
	}
}

func TestStatus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MOTD = "hello there"
	cfg.MaxPlayers = 5
	h := newHarness(t, cfg)

	st, rtt, err := h.dial(t).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Description.Text != "hello there" {
		t.Errorf("description = %q", st.Description.Text)
	}
	if st.Version.Protocol != int32(packet.Latest) {
		t.Errorf("protocol = %d, want %d", st.Version.Protocol, packet.Latest)
	}
	if st.Players.Max != 5 || st.Players.Online != 0 {
		t.Errorf("players = %+v", st.Players)
	}
	if rtt <= 0 {
		t.Errorf("rtt = %v", rtt)
	}
}

func TestStatusOwnVersion(t *testing.T) {
	h := newHarness(t, nil)
	st, _, err := h.dial(t, client.WithVersion(packet.V1_20_5)).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Version.Protocol != int32(packet.V1_20_5) {
		t.Errorf("protocol = %d, want the client's %d", st.Version.Protocol, packet.V1_20_5)
	}
}

func TestStatusUnsupportedVersion(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	if err := c.WritePacket(&packet.Intention{ProtocolVersion: 47, ServerAddress: "localhost", ServerPort: 25565, Intent: packet.IntentStatus}); err != nil {
		t.Fatal(err)
	}
	c.SetState(protocol.StateStatus)
	if err := c.WritePacket(&packet.StatusRequest{}); err != nil {
		t.Fatal(err)
	}
	p, err := c.ReadPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	st, err := p.(*packet.StatusResponse).Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Version.Protocol != int32(packet.Latest) {
		t.Errorf("protocol = %d, want latest %d", st.Version.Protocol, packet.Latest)
	}
}

func TestStatusOverPipe(t *testing.T) {
	srv, err := New(nil, WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		srv.ServeConn(context.Background(), serverSide)
		close(done)
	}()

	c, err := client.New(clientSide, client.WithTimeout(testTimeout))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, _, err := c.Status(); err != nil {
		t.Fatalf("Status over pipe: %v", err)
	}
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("ServeConn did not return after the pong")
	}
}

func TestLegacyPing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MOTD = "legacy"
	h := newHarness(t, cfg)

	nc, err := net.DialTimeout("tcp", h.addr, testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(testTimeout))
	if _, err := nc.Write([]byte{0xFE, 0x01}); err != nil {
		t.Fatal(err)
	}
	reply, err := io.ReadAll(nc)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply) < 3 || reply[0] != 0xFF {
		t.Fatalf("reply = % x", reply)
	}
	n := int(binary.BigEndian.Uint16(reply[1:3]))
	if len(reply) != 3+2*n {
		t.Fatalf("reply length %d does not match %d code units", len(reply), n)
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(reply[3+2*i:])
	}
	fields := strings.Split(string(utf16.Decode(units)), "\x00")
	want := []string{"§1", "127", packet.Latest.Name(), "legacy", "0", "20"}
	if !slices.Equal(fields, want) {
		t.Errorf("fields = %q, want %q", fields, want)
	}
}

func TestLegacyKick(t *testing.T) {
	got := legacyKick("127", "x")
	// "§1\0127\0x" is 8 code units.
	want := []byte{0xFF, 0x00, 0x08, 0x00, 0xA7, 0x00, '1', 0x00, 0x00, 0x00, '1', 0x00, '2', 0x00, '7', 0x00, 0x00, 0x00, 'x'}
	if !slices.Equal(got, want) {
		t.Errorf("legacyKick = % x, want % x", got, want)
	}
}

func TestLoginUnsupportedVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int32
		want    string
	}{
		{"old", 47, "Outdated client"},
		{"new", 9999, "Unsupported client version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			c := h.dial(t)
			err := c.WritePacket(&packet.Intention{ProtocolVersion: tt.version, ServerAddress: "localhost", ServerPort: 25565, Intent: packet.IntentLogin})
			if err != nil {
				t.Fatal(err)
			}
			c.SetState(protocol.StateLogin)
			p, err := c.ReadPacket()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			d, ok := p.(*packet.LoginDisconnect)
			if !ok {
				t.Fatalf("got %T, want LoginDisconnect", p)
			}
			if !strings.Contains(d.ReasonJSON, tt.want) {
				t.Errorf("reason = %s, want %q", d.ReasonJSON, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)

	login, err := c.Join(context.Background(), "Steve")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if login.DimensionName != "minecraft:overworld" || login.MaxPlayers != 20 {
		t.Errorf("play login = %+v", login)
	}
	if c.Brand != "obsidium" {
		t.Errorf("brand = %q", c.Brand)
	}

	ev := h.next(t, EventJoined)
	if ev.Player.Name != "Steve" || ev.Player.UUID != auth.OfflineUUID("Steve") {
		t.Errorf("joined player = %+v", ev.Player)
	}
	if ev.Player.Version != packet.Latest {
		t.Errorf("player version = %s", ev.Player.Version)
	}
	if n := h.srv.Directory().Len(); n != 1 {
		t.Errorf("directory len = %d, want 1", n)
	}
	conn, ok := h.srv.Conn(ev.ConnID)
	if !ok {
		t.Fatal("joined connection not tracked")
	}
	if conn.State() != protocol.StatePlay {
		t.Errorf("conn state = %s", conn.State())
	}

	// Spawn sequence.
	readUntil[*packet.ChunkBatchStart](t, c)
	chunks := 0
	for {
		p, err := c.ReadPlay()
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(*packet.ChunkData); ok {
			chunks++
			continue
		}
		fin, ok := p.(*packet.ChunkBatchFinished)
		if !ok {
			t.Fatalf("unexpected %T inside chunk batch", p)
		}
		if int(fin.BatchSize) != chunks || chunks != 25 {
			t.Errorf("batch size %d, chunks %d, want 25", fin.BatchSize, chunks)
		}
		break
	}
	pos := readUntil[*packet.SyncPlayerPosition](t, c)
	if pos.X != 0.5 || pos.Y != -60 || pos.Z != 0.5 {
		t.Errorf("spawn = %v %v %v", pos.X, pos.Y, pos.Z)
	}

	c.Close()
	left := h.next(t, EventLeft)
	if left.ConnID != ev.ConnID {
		t.Errorf("left conn = %d, want %d", left.ConnID, ev.ConnID)
	}
	if left.Err != nil {
		t.Errorf("left err = %v, want clean close", left.Err)
	}
	if n := h.srv.Directory().Len(); n != 0 {
		t.Errorf("directory len after leave = %d", n)
	}

	want := []protocol.State{
		protocol.StateHandshake, protocol.StateLogin, protocol.StateConfiguration,
		protocol.StatePlay, protocol.StateClosed,
	}
	if got := conn.machine.History(); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestJoinEncryptedCompressed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encryption = true
	cfg.CompressionThreshold = 64
	h := newHarness(t, cfg)

	c, ev := h.join(t, "Alex")
	if ev.Player.Name != "Alex" {
		t.Errorf("player = %q", ev.Player.Name)
	}
	readUntil[*packet.SyncPlayerPosition](t, c)
	if n := h.srv.Directory().Len(); n != 1 {
		t.Errorf("directory len = %d", n)
	}
}

func TestJoinWithoutCompression(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionThreshold = -1
	h := newHarness(t, cfg)
	c, _ := h.join(t, "Alex")
	readUntil[*packet.SyncPlayerPosition](t, c)
}

func TestJoinOlderVersion(t *testing.T) {
	h := newHarness(t, nil)
	c, ev := h.join(t, "Old", client.WithVersion(packet.V1_20_5))
	if ev.Player.Version != packet.V1_20_5 {
		t.Errorf("player version = %s", ev.Player.Version)
	}
	readUntil[*packet.SyncPlayerPosition](t, c)
}

type fakeVerifier struct {
	mu     sync.Mutex
	hashes []string
	fail   error
	id     uuid.UUID
}

func (v *fakeVerifier) Verify(_ context.Context, name, hash, _ string) (*auth.Profile, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hashes = append(v.hashes, hash)
	if v.fail != nil {
		return nil, v.fail
	}
	return &auth.Profile{ID: v.id, Name: name, Properties: []packet.Property{{Name: "textures", Value: "e30="}}}, nil
}

func TestOnlineMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnlineMode = true
	v := &fakeVerifier{id: uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")}
	h := newHarness(t, cfg, WithVerifier(v))

	var clientHash string
	_, ev := h.join(t, "Notch", client.WithJoin(func(_ context.Context, hash string) error {
		clientHash = hash
		return nil
	}))

	if ev.Player.UUID != v.id {
		t.Errorf("player uuid = %s, want the verified %s", ev.Player.UUID, v.id)
	}
	if len(ev.Player.Properties) != 1 {
		t.Errorf("properties = %+v", ev.Player.Properties)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.hashes) != 1 || v.hashes[0] != clientHash {
		t.Errorf("server hash %v, client hash %q", v.hashes, clientHash)
	}
}

func TestOnlineModeRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnlineMode = true
	h := newHarness(t, cfg, WithVerifier(&fakeVerifier{fail: auth.ErrNotAuthenticated}))

	_, err := h.dial(t).Login(context.Background(), "Notch")
	var de *client.DisconnectError
	if !errors.As(err, &de) || de.Reason != reasonAuthFailed {
		t.Errorf("Login = %v, want disconnect %q", err, reasonAuthFailed)
	}
}

func TestBanned(t *testing.T) {
	bans := auth.NewMemoryBanList()
	bans.Add(context.Background(), auth.Ban{Name: "Griefer", Reason: "griefing"})
	h := newHarness(t, nil, WithBanList(bans))

	_, err := h.dial(t).Login(context.Background(), "griefer")
	var de *client.DisconnectError
	if !errors.As(err, &de) || !strings.HasPrefix(de.Reason, reasonBanned) || !strings.Contains(de.Reason, "griefing") {
		t.Errorf("Login = %v, want ban disconnect", err)
	}
}

func TestInvalidUsername(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.dial(t).Login(context.Background(), "bad name")
	if !errors.Is(err, client.ErrDisconnected) {
		t.Errorf("Login = %v, want disconnect", err)
	}
}

func TestServerFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlayers = 1
	h := newHarness(t, cfg)
	h.join(t, "First")

	_, err := h.dial(t).Login(context.Background(), "Second")
	var de *client.DisconnectError
	if !errors.As(err, &de) || de.Reason != reasonFull {
		t.Errorf("Login = %v, want %q", err, reasonFull)
	}
}

func TestDuplicateLogin(t *testing.T) {
	h := newHarness(t, nil)
	first, ev1 := h.join(t, "Steve")
	_, ev2 := h.join(t, "Steve")

	if ev1.ConnID == ev2.ConnID {
		t.Fatal("second login reused the connection id")
	}
	for {
		_, err := first.ReadPlay()
		if err == nil {
			continue
		}
		var de *client.DisconnectError
		if !errors.As(err, &de) || de.Reason != reasonDuplicate {
			t.Errorf("first connection ended with %v, want %q", err, reasonDuplicate)
		}
		break
	}
	left := h.next(t, EventLeft)
	if left.ConnID != ev1.ConnID {
		t.Errorf("left conn = %d, want the first %d", left.ConnID, ev1.ConnID)
	}
	eventually(t, "single directory entry", func() bool { return h.srv.Directory().Len() == 1 })
	got, ok := h.srv.Directory().FindByUUID(auth.OfflineUUID("Steve"))
	if !ok || got.ID() != ev2.ConnID {
		t.Errorf("FindByUUID = %v, %v; want conn %d", got, ok, ev2.ConnID)
	}
}

func TestUnknownPacketClosesConnection(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	if err := c.Handshake(packet.IntentLogin); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteFrame([]byte{0x7F}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReadPacket(); err == nil {
		t.Fatal("read succeeded after a protocol violation")
	}
	eventually(t, "connection teardown", func() bool { return h.srv.ConnCount() == 0 })
}

func TestOversizeFrameClosesConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrameSize = 1024
	h := newHarness(t, cfg)
	c := h.dial(t)

	frame := protocol.AppendVarInt(nil, 1<<20)
	if _, err := c.Conn().Write(frame); err != nil {
		t.Fatal(err)
	}
	c.Conn().SetReadDeadline(time.Now().Add(testTimeout))
	if _, err := c.Conn().Read(make([]byte, 1)); err == nil {
		t.Fatal("read succeeded after an oversize frame")
	}
	eventually(t, "connection teardown", func() bool { return h.srv.ConnCount() == 0 })
}

func TestPlayPacketEvents(t *testing.T) {
	h := newHarness(t, nil)
	c, ev := h.join(t, "Steve")

	if err := c.WritePacket(&packet.ChatMessage{Message: "hi", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.WritePacket(&packet.ClientTickEnd{}); err != nil {
		t.Fatal(err)
	}
	if err := c.WritePacket(&packet.PlayerPosition{X: 1, FeetY: 2, Z: 3}); err != nil {
		t.Fatal(err)
	}

	got := h.next(t, EventPacket)
	chat, ok := got.Packet.(*packet.ChatMessage)
	if !ok || chat.Message != "hi" || got.ConnID != ev.ConnID {
		t.Fatalf("first packet event = %+v", got)
	}
	got = h.next(t, EventPacket)
	if _, ok := got.Packet.(*packet.PlayerPosition); !ok {
		t.Errorf("second packet event = %T, want PlayerPosition (tick end is swallowed)", got.Packet)
	}
}

func TestSendAndBroadcast(t *testing.T) {
	h := newHarness(t, nil)
	a, evA := h.join(t, "A")
	b, _ := h.join(t, "B")
	readUntil[*packet.SyncPlayerPosition](t, a)
	readUntil[*packet.SyncPlayerPosition](t, b)

	if n := h.srv.Broadcast(&packet.SystemChat{Content: nbt.Text("all")}); n != 2 {
		t.Errorf("Broadcast = %d, want 2", n)
	}
	for _, c := range []*client.Client{a, b} {
		if msg := readUntil[*packet.SystemChat](t, c); !slices.Equal(msg.Content, nbt.Text("all")) {
			t.Errorf("broadcast content = %v", msg.Content)
		}
	}

	if err := h.srv.Send(evA.ConnID, &packet.SystemChat{Content: nbt.Text("direct")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg := readUntil[*packet.SystemChat](t, a); !slices.Equal(msg.Content, nbt.Text("direct")) {
		t.Errorf("direct content = %v", msg.Content)
	}

	if err := h.srv.Send(9999, &packet.SystemChat{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Send to unknown id = %v, want ErrNotFound", err)
	}
}

func TestKick(t *testing.T) {
	h := newHarness(t, nil)
	c, ev := h.join(t, "Steve")

	if err := h.srv.Close(ev.ConnID, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for {
		_, err := c.ReadPlay()
		if err == nil {
			continue
		}
		var de *client.DisconnectError
		if !errors.As(err, &de) || de.Reason != "bye" {
			t.Errorf("read ended with %v, want disconnect bye", err)
		}
		break
	}
	h.next(t, EventLeft)
	if err := h.srv.Close(ev.ConnID, "again"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Close after leave = %v, want ErrNotFound", err)
	}
}

func TestReconfigure(t *testing.T) {
	h := newHarness(t, nil)
	c, ev := h.join(t, "Steve")
	readUntil[*packet.SyncPlayerPosition](t, c)

	if err := h.srv.Reconfigure(ev.ConnID); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	// ReadPlay walks the second configuration phase.
	login := readUntil[*packet.PlayLogin](t, c)
	if login.EntityID != 1 {
		t.Errorf("entity id = %d after reconfigure, want the original 1", login.EntityID)
	}
	readUntil[*packet.SyncPlayerPosition](t, c)

	conn, ok := h.srv.Conn(ev.ConnID)
	if !ok {
		t.Fatal("connection gone")
	}
	c.Close()
	h.next(t, EventLeft)

	select {
	case extra := <-h.events:
		if extra.Kind == EventJoined {
			t.Error("reconfigure produced a second join event")
		}
	default:
	}

	want := []protocol.State{
		protocol.StateHandshake, protocol.StateLogin, protocol.StateConfiguration,
		protocol.StatePlay, protocol.StateConfiguration, protocol.StatePlay, protocol.StateClosed,
	}
	if got := conn.machine.History(); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestReconfigureWrongState(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t)
	if err := c.Handshake(packet.IntentLogin); err != nil {
		t.Fatal(err)
	}
	eventually(t, "tracked connection", func() bool { return h.srv.ConnCount() == 1 })

	var id ConnID
	h.srv.mu.Lock()
	for cid := range h.srv.conns {
		id = cid
	}
	h.srv.mu.Unlock()
	if err := h.srv.Reconfigure(id); !errors.Is(err, ErrWrongState) {
		t.Errorf("Reconfigure in login = %v, want ErrWrongState", err)
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAliveInterval = 20 * time.Millisecond
	cfg.KeepAliveTimeout = 100 * time.Millisecond
	h := newHarness(t, cfg)
	c, _ := h.join(t, "Silent")

	// Read without answering keep-alives.
	for {
		if _, err := c.ReadPacket(); err != nil {
			break
		}
	}
	left := h.next(t, EventLeft)
	if !errors.Is(left.Err, ErrKeepAliveTimeout) {
		t.Errorf("left err = %v, want ErrKeepAliveTimeout", left.Err)
	}
}

func TestKeepAliveAnswered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAliveInterval = 20 * time.Millisecond
	cfg.KeepAliveTimeout = 100 * time.Millisecond
	h := newHarness(t, cfg)
	c, _ := h.join(t, "Chatty")

	answered := 0
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		p, err := c.ReadPacket()
		if err != nil {
			t.Fatalf("connection closed while answering keep-alives: %v", err)
		}
		if ka, ok := p.(*packet.PlayKeepAlive); ok {
			if err := c.WritePacket(&packet.PlayKeepAliveResponse{ID: ka.ID}); err != nil {
				t.Fatal(err)
			}
			answered++
		}
	}
	if answered < 2 {
		t.Errorf("answered %d keep-alives, want several", answered)
	}
	if h.srv.Directory().Len() != 1 {
		t.Error("player dropped while answering keep-alives")
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, nil)
	c, _ := h.join(t, "Steve")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for {
		_, err := c.ReadPlay()
		if err == nil {
			continue
		}
		var de *client.DisconnectError
		if !errors.As(err, &de) || de.Reason != ShutdownReason {
			t.Errorf("read ended with %v, want shutdown disconnect", err)
		}
		break
	}
	select {
	case err := <-h.served:
		if !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve returned %v, want ErrServerClosed", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Serve did not return")
	}
	if err := h.srv.Shutdown(ctx); !errors.Is(err, ErrServerClosed) {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegisterer(reg))
	h := newHarness(t, nil, WithMetrics(m))

	c, _ := h.join(t, "Steve")
	if got := testutil.ToFloat64(m.playersOnline); got != 1 {
		t.Errorf("players_online = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connectionsTotal); got != 1 {
		t.Errorf("connections_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.packetsReceived.WithLabelValues("Login")); got < 2 {
		t.Errorf("login packets received = %v, want at least 2", got)
	}
	if got := testutil.CollectAndCount(m.loginDuration); got != 1 {
		t.Errorf("login_duration collectors = %d", got)
	}

	c.Close()
	h.next(t, EventLeft)
	eventually(t, "connections_active to drop", func() bool {
		return testutil.ToFloat64(m.connectionsActive) == 0
	})
	if got := testutil.ToFloat64(m.playersOnline); got != 0 {
		t.Errorf("players_online after leave = %v", got)
	}

	bad := h.dial(t)
	bad.Handshake(packet.IntentLogin)
	bad.WriteFrame([]byte{0x7F})
	eventually(t, "protocol error counted", func() bool {
		return testutil.ToFloat64(m.connectionErrors.WithLabelValues(protocol.KindProtocol.String())) == 1
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	types := make(map[string]dto.MetricType)
	for _, mf := range families {
		types[mf.GetName()] = mf.GetType()
	}
	for name, want := range map[string]dto.MetricType{
		"obsidium_connections_active":      dto.MetricType_GAUGE,
		"obsidium_connections_total":       dto.MetricType_COUNTER,
		"obsidium_packets_received_total":  dto.MetricType_COUNTER,
		"obsidium_login_duration_seconds":  dto.MetricType_HISTOGRAM,
		"obsidium_connection_errors_total": dto.MetricType_COUNTER,
	} {
		if got, ok := types[name]; !ok || got != want {
			t.Errorf("%s: type %v (present %v), want %v", name, got, ok, want)
		}
	}
}

func TestDisconnectPacket(t *testing.T) {
	tests := []struct {
		state protocol.State
		want  packet.Type
	}{
		{protocol.StateHandshake, packet.TypeUnknown},
		{protocol.StateStatus, packet.TypeUnknown},
		{protocol.StateLogin, packet.TypeLoginDisconnect},
		{protocol.StateConfiguration, packet.TypeConfigDisconnect},
		{protocol.StatePlay, packet.TypePlayDisconnect},
	}
	for _, tt := range tests {
		p := disconnectPacket(tt.state, "x")
		got := packet.TypeUnknown
		if p != nil {
			got = p.Type()
		}
		if got != tt.want {
			t.Errorf("disconnectPacket(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
	if got := textJSON(`say "hi"`); got != `{"text":"say \"hi\""}` {
		t.Errorf("textJSON = %s", got)
	}
}

func TestIsCleanClose(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{io.EOF, true},
		{net.ErrClosed, true},
		{ErrServerClosed, true},
		{ErrKeepAliveTimeout, false},
		{protocol.ErrFrameTooLarge, false},
		{io.ErrUnexpectedEOF, false},
	}
	for _, tt := range tests {
		if got := isCleanClose(tt.err); got != tt.want {
			t.Errorf("isCleanClose(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
