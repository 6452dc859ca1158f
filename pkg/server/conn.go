package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf16"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// outbound is one item of a connection's send queue. At most one of pkt
// and raw is set; with neither, kick asks the writer for the disconnect
// packet of its current state. then runs on the writer goroutine right
// after the item is written, before any later item.
type outbound struct {
	pkt  packet.Packet
	raw  []byte
	kick string
	then func()
}

// Conn is the actor of one client connection. Its reader runs on the
// goroutine that called ServeConn; a second goroutine owns all writes.
type Conn struct {
	id     ConnID
	srv    *Server
	nc     net.Conn
	remote string
	logger *slog.Logger

	br     *bufio.Reader
	bw     *bufio.Writer
	cipher *protocol.Cipher
	fr     *protocol.FrameReader
	fw     *protocol.FrameWriter

	machine  *Machine // reader goroutine only
	state    atomic.Uint32
	outState atomic.Uint32 // state of the client as of the last written packet
	table   atomic.Pointer[packet.Table]
	player  atomic.Pointer[Player]

	out        chan outbound
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	err        error // first fault; read after done is closed

	// Keep-alive bookkeeping shared by reader and writer.
	kaID       atomic.Int64
	kaSentAt   atomic.Int64 // unix nanos, 0 when nothing is pending
	switching  atomic.Bool  // a state switch is in flight
	acceptedAt time.Time

	// sendMu orders application sends against the start of a state
	// switch. playOpen is set once the spawn sequence is queued and
	// cleared when a reconfiguration is queued.
	sendMu   sync.Mutex
	playOpen bool

	// Reader goroutine only.
	login       loginState
	config      configState
	negotiation negotiation
	joined      bool
	entityID    int32
	teleportID  int32
}

func newConn(srv *Server, nc net.Conn, id ConnID) *Conn {
	br := bufio.NewReaderSize(nc, 4096)
	bw := bufio.NewWriterSize(nc, 8192)
	cipher := protocol.NewCipher(br, bw)
	limits := protocol.Limits{MaxFrameSize: srv.cfg.MaxFrameSize}

	remote := ""
	if addr := nc.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	c := &Conn{
		id:         id,
		srv:        srv,
		nc:         nc,
		remote:     remote,
		logger:     srv.logger.With("conn_id", uint64(id), "remote", remote),
		br:         br,
		bw:         bw,
		cipher:     cipher,
		fr:         protocol.NewFrameReader(cipher.Reader(), limits),
		fw:         protocol.NewFrameWriter(cipher.Writer(), limits),
		machine:    NewMachine(),
		out:        make(chan outbound, srv.cfg.SendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		acceptedAt: time.Now(),
	}
	c.player.Store(&Player{Remote: remote})
	return c
}

// ID returns the connection id.
func (c *Conn) ID() ConnID { return c.id }

// State returns the last state the reader entered.
func (c *Conn) State() protocol.State { return protocol.State(c.state.Load()) }

// Player returns the identity of the connection. It is empty before login.
func (c *Conn) Player() Player { return *c.player.Load() }

// Done is closed when the connection starts tearing down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// Send queues the clientbound play packet p without blocking. It returns
// ErrWrongDirection for serverbound packets and ErrWrongState for packets
// of another state or while the player is not in play, including during
// a reconfiguration.
func (c *Conn) Send(p packet.Packet) error {
	t := p.Type()
	if t.Direction() != protocol.Clientbound {
		return fmt.Errorf("%w: %s", ErrWrongDirection, t)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if t.State() != protocol.StatePlay || !c.playOpen {
		return fmt.Errorf("%w: %s", ErrWrongState, t)
	}
	return c.enqueue(outbound{pkt: p})
}

// Close sends a disconnect packet with reason, when the client's current
// state has one, and then closes the connection.
func (c *Conn) Close(reason string) error {
	if disconnectPacket(c.State(), reason) == nil {
		c.fail(nil)
		return nil
	}
	err := c.enqueue(outbound{kick: reason, then: func() { c.fail(nil) }})
	if errors.Is(err, ErrSendQueueFull) {
		c.fail(nil)
		return nil
	}
	return err
}

func disconnectPacket(state protocol.State, reason string) packet.Packet {
	switch state {
	case protocol.StateLogin:
		return &packet.LoginDisconnect{ReasonJSON: textJSON(reason)}
	case protocol.StateConfiguration:
		return &packet.ConfigDisconnect{Reason: nbt.Text(reason)}
	case protocol.StatePlay:
		return &packet.PlayDisconnect{Reason: nbt.Text(reason)}
	}
	return nil
}

func textJSON(s string) string {
	return `{"text":` + strconv.Quote(s) + `}`
}

func (c *Conn) enqueue(ob outbound) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- ob:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// send queues p from the reader, waiting for room.
func (c *Conn) send(p packet.Packet) error {
	return c.sendThen(p, nil)
}

func (c *Conn) sendThen(p packet.Packet, then func()) error {
	select {
	case c.out <- outbound{pkt: p, then: then}:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

// fail starts teardown. The first error wins; nil means a clean close.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Conn) setState(s protocol.State) {
	c.state.Store(uint32(s))
}

func (c *Conn) transition(to protocol.State) error {
	if err := c.machine.Transition(to); err != nil {
		c.setState(protocol.StateClosed)
		return err
	}
	c.setState(to)
	if to == protocol.StateStatus || to == protocol.StateLogin {
		// Nothing is queued before the handshake is handled.
		c.outState.Store(uint32(to))
	}
	c.logger.Debug("state changed", "state", to)
	return nil
}

// encodeTable returns the table used for outbound packets.
func (c *Conn) encodeTable() *packet.Table {
	if t := c.table.Load(); t != nil {
		return t
	}
	return c.srv.registry.Latest()
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	defer c.nc.Close()

	ticker := time.NewTicker(c.srv.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case ob := <-c.out:
			if err := c.write(ob); err != nil {
				c.fail(err)
				return
			}
			if err := c.writePending(); err != nil {
				c.fail(err)
				return
			}
			if err := c.flush(); err != nil {
				c.fail(err)
				return
			}

		case now := <-ticker.C:
			if err := c.keepAlive(now); err != nil {
				c.fail(err)
			}

		case <-c.done:
			c.drain()
			return
		}
	}
}

// writePending writes queued items without blocking.
func (c *Conn) writePending() error {
	for {
		select {
		case ob := <-c.out:
			if err := c.write(ob); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// drain makes a best-effort attempt to deliver what is still queued.
func (c *Conn) drain() {
	c.nc.SetWriteDeadline(time.Now().Add(time.Second))
	if err := c.writePending(); err != nil {
		return
	}
	c.bw.Flush()
}

func (c *Conn) write(ob outbound) error {
	switch {
	case ob.raw != nil:
		if _, err := c.bw.Write(ob.raw); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	case ob.pkt != nil:
		if err := c.writePacket(ob.pkt); err != nil {
			return err
		}
	default:
		if p := disconnectPacket(c.writerState(), ob.kick); p != nil {
			if err := c.writePacket(p); err != nil {
				return err
			}
		}
	}
	if ob.then != nil {
		ob.then()
	}
	return nil
}

// writerState returns the state the client is in once every packet
// written so far has reached it.
func (c *Conn) writerState() protocol.State {
	return protocol.State(c.outState.Load())
}

// writePacket frames p after checking it belongs to the client's current
// state, then advances that state past the packets that switch it.
func (c *Conn) writePacket(p packet.Packet) error {
	t := p.Type()
	if t.Direction() != protocol.Clientbound {
		return fmt.Errorf("write %s: %w", t, ErrWrongDirection)
	}
	if state := c.writerState(); t.State() != state {
		return fmt.Errorf("write %s in %s: %w", t, state, ErrWrongState)
	}
	body, err := c.encodeTable().Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	if err := c.fw.WriteFrame(body); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	c.srv.metrics.packetSent(t.State(), len(body))

	switch p.(type) {
	case *packet.LoginSuccess, *packet.StartConfiguration:
		c.outState.Store(uint32(protocol.StateConfiguration))
	case *packet.FinishConfiguration:
		c.outState.Store(uint32(protocol.StatePlay))
	}
	return nil
}

func (c *Conn) flush() error {
	c.nc.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
	if err := c.bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// keepAlive runs on the writer tick. It sends a keep-alive when none is
// pending and fails the connection when the pending one is overdue.
func (c *Conn) keepAlive(now time.Time) error {
	state := c.writerState()
	if state != protocol.StateConfiguration && state != protocol.StatePlay {
		return nil
	}
	if sent := c.kaSentAt.Load(); sent != 0 {
		if now.Sub(time.Unix(0, sent)) >= c.srv.cfg.KeepAliveTimeout {
			return ErrKeepAliveTimeout
		}
		return nil
	}
	if c.switching.Load() {
		return nil
	}

	id := now.UnixMilli()
	var p packet.Packet = &packet.PlayKeepAlive{ID: id}
	if state == protocol.StateConfiguration {
		p = &packet.ConfigKeepAlive{ID: id}
	}
	c.kaID.Store(id)
	c.kaSentAt.Store(now.UnixNano())
	if err := c.write(outbound{pkt: p}); err != nil {
		return err
	}
	return c.flush()
}

// keepAliveAck clears the pending keep-alive if id matches it.
func (c *Conn) keepAliveAck(id int64) {
	if c.kaSentAt.Load() != 0 && c.kaID.Load() == id {
		c.kaSentAt.Store(0)
	}
}

// serve runs the reader until the connection ends, then tears down.
func (c *Conn) serve(ctx context.Context) {
	c.srv.metrics.connOpened()
	c.logger.Debug("connection opened")
	c.nc.SetReadDeadline(c.acceptedAt.Add(c.srv.cfg.HandshakeTimeout))
	go c.writeLoop()

	// Unblock the reader on server shutdown or context cancellation. The
	// handshake deadline is set first so this reset always wins.
	stop := context.AfterFunc(ctx, func() { c.fail(ErrServerClosed) })
	defer stop()
	go func() {
		<-c.done
		c.nc.SetReadDeadline(time.Now())
	}()

	err := c.readLoop(ctx)
	c.fail(err)
	<-c.writerDone
	c.teardown()
}

// clearReadDeadline lifts the handshake deadline unless teardown has
// already started, in which case the reader must stay unblocked.
func (c *Conn) clearReadDeadline() {
	c.nc.SetReadDeadline(time.Time{})
	select {
	case <-c.done:
		c.nc.SetReadDeadline(time.Now())
	default:
	}
}

func (c *Conn) readLoop(ctx context.Context) error {
	if first, err := c.br.Peek(1); err != nil {
		return err
	} else if first[0] == packet.LegacyPingByte {
		return c.legacyPing()
	}

	for {
		body, err := c.fr.ReadFrame()
		if err != nil {
			return err
		}
		id, n, err := protocol.DecodeVarInt(body)
		if err != nil {
			return fmt.Errorf("packet id: %w", err)
		}
		state := c.machine.State()
		p, err := c.machine.Dispatch(int32(id), body[n:])
		if err != nil {
			c.setState(protocol.StateClosed)
			return err
		}
		c.srv.metrics.packetReceived(state, len(body))

		if err := c.handle(ctx, p); err != nil {
			c.machine.Close()
			c.setState(protocol.StateClosed)
			return err
		}
		if c.machine.State() == protocol.StateClosed {
			c.setState(protocol.StateClosed)
			return nil
		}
	}
}

// handle routes p to the handler of the current state.
func (c *Conn) handle(ctx context.Context, p packet.Packet) error {
	switch c.machine.State() {
	case protocol.StateHandshake:
		return c.handleHandshake(p)
	case protocol.StateStatus:
		return c.handleStatus(p)
	case protocol.StateLogin:
		return c.handleLogin(ctx, p)
	case protocol.StateConfiguration:
		return c.handleConfiguration(ctx, p)
	case protocol.StatePlay:
		return c.handlePlay(ctx, p)
	}
	return c.machine.Unexpected(p)
}

// legacyPing answers a pre-1.7 server list ping and closes.
func (c *Conn) legacyPing() error {
	cfg := c.srv.cfg
	reply := legacyKick(
		"127",
		packet.Latest.Name(),
		cfg.MOTD,
		strconv.Itoa(c.srv.dir.Len()),
		strconv.Itoa(cfg.MaxPlayers),
	)
	c.logger.Debug("legacy ping")
	c.br.Discard(c.br.Buffered())
	c.machine.Close()
	c.setState(protocol.StateClosed)
	select {
	case c.out <- outbound{raw: reply}:
	case <-c.done:
	}
	return nil
}

// legacyKick builds the 0xFF kick packet of the legacy ping: a UTF-16BE
// string of NUL-separated fields.
func legacyKick(fields ...string) []byte {
	units := utf16.Encode([]rune("§1\x00" + strings.Join(fields, "\x00")))
	b := make([]byte, 3, 3+2*len(units))
	b[0] = 0xFF
	binary.BigEndian.PutUint16(b[1:], uint16(len(units)))
	for _, u := range units {
		b = binary.BigEndian.AppendUint16(b, u)
	}
	return b
}

// emit delivers ev to the server event stream. It blocks until the
// application takes the event or the connection closes.
func (c *Conn) emit(ev Event) {
	select {
	case c.srv.events <- ev:
	case <-c.done:
	}
}

func (c *Conn) teardown() {
	c.machine.Close()
	c.setState(protocol.StateClosed)
	cause := c.err
	clean := isCleanClose(cause)

	c.negotiation.end(errOrNil(cause, clean))

	if c.joined {
		c.srv.dir.Remove(c.id)
		c.srv.metrics.playerLeft()
		ev := Event{Kind: EventLeft, ConnID: c.id, Player: c.Player(), Err: errOrNil(cause, clean)}
		select {
		case c.srv.events <- ev:
		case <-c.srv.quit:
		}
	}
	c.srv.untrack(c)
	c.srv.metrics.connClosed()

	if clean {
		c.logger.Debug("connection closed", "history", c.machine.History())
		return
	}
	kind := protocol.KindOf(cause)
	c.srv.metrics.connError(kind)
	err := &ConnError{ConnID: c.id, State: c.lastState(), Op: "serve", Err: cause}
	if kind == protocol.KindNegotiation {
		c.logger.Info("connection rejected", "kind", kind, "error", err)
		return
	}
	c.logger.Warn("connection failed", "kind", kind, "error", err)
}

// lastState returns the state before Closed.
func (c *Conn) lastState() protocol.State {
	h := c.machine.History()
	for i := len(h) - 1; i >= 0; i-- {
		if h[i] != protocol.StateClosed {
			return h[i]
		}
	}
	return protocol.StateHandshake
}

// isCleanClose reports whether err ends a connection without fault: a
// nil error, the peer closing between frames, or a local shutdown.
func isCleanClose(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrServerClosed)
}

func errOrNil(err error, clean bool) error {
	if clean {
		return nil
	}
	return err
}
