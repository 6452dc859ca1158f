package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/obsidium-dev/obsidium/pkg/auth"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/world"
)

// Server accepts client connections and runs one actor per connection.
// Application code consumes Events and talks back through Send, Broadcast,
// Close and Reconfigure.
type Server struct {
	cfg       *Config
	logger    *slog.Logger
	registry  *packet.Registry
	bans      auth.BanList
	verifier  auth.Verifier
	world     world.Provider
	resources ResourceProvider
	metrics   *Metrics
	tracer    trace.Tracer
	tp        trace.TracerProvider

	dir    *Directory
	events chan Event
	keys   func() (*keyPair, error)

	nextID    atomic.Uint64
	entityIDs atomic.Int32

	mu        sync.Mutex
	conns     map[ConnID]*Conn
	listeners map[net.Listener]struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	quit      chan struct{}
	quitOnce  sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the packet registry. Default: packet.Default().
func WithRegistry(r *packet.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithBanList sets the ban list checked at login.
// Default: an empty in-memory list.
func WithBanList(l auth.BanList) Option {
	return func(s *Server) {
		s.bans = l
	}
}

// WithVerifier sets the session verifier used in online mode.
// Default: the Mojang session server.
func WithVerifier(v auth.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithWorld sets the chunk source for players entering play.
// Default: a default flat world held in memory.
func WithWorld(p world.Provider) Option {
	return func(s *Server) {
		s.world = p
	}
}

// WithResources sets the configuration-phase data.
func WithResources(r ResourceProvider) Option {
	return func(s *Server) {
		s.resources = r
	}
}

// WithMetrics enables Prometheus collectors. Without it nothing is recorded.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry provider for negotiation spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tp = tp
	}
}

// New creates a Server. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		dir:       NewDirectory(),
		events:    make(chan Event, cfg.EventQueueSize),
		keys:      sync.OnceValues(generateKeyPair),
		conns:     make(map[ConnID]*Conn),
		listeners: make(map[net.Listener]struct{}),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.registry == nil {
		s.registry = packet.Default()
	}
	if s.bans == nil {
		s.bans = auth.NewMemoryBanList()
	}
	if s.verifier == nil {
		if cfg.OnlineMode {
			s.verifier = auth.NewMojangVerifier()
		} else {
			s.verifier = auth.OfflineVerifier{}
		}
	}
	if s.world == nil {
		s.world = world.NewStoreProvider(world.NewMemoryStore(), world.DefaultFlat(), s.logger)
	}
	if s.resources == nil {
		s.resources = DefaultResources()
	}
	s.tracer = newTracer(s.tp)
	return s, nil
}

// Config returns a copy of the server configuration.
func (s *Server) Config() *Config { return s.cfg.Clone() }

// Directory returns the directory of connections in play.
func (s *Server) Directory() *Directory { return s.dir }

// Events returns the stream of joins, gameplay packets and leaves. The
// application must keep draining it: a full stream blocks the readers of
// the connections producing events.
func (s *Server) Events() <-chan Event { return s.events }

// Serve accepts connections on ln until ctx is cancelled, the listener
// fails or Shutdown is called. It always closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, nc)
		}()
	}
}

// ServeConn runs a single connection on the calling goroutine and returns
// when it is closed. Serve calls it for every accepted connection;
// transports that are not net.Listeners call it directly.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.serveConn(ctx, nc)
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	c := newConn(s, nc, ConnID(s.nextID.Add(1)))
	if !s.track(c) {
		nc.Close()
		return
	}
	c.serve(ctx)
}

// Conn returns the live connection with the given id.
func (s *Server) Conn(id ConnID) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// ConnCount returns the number of open connections in any state.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Send queues the play packet p on the player id without blocking. See
// Conn.Send for the packets it refuses.
func (s *Server) Send(id ConnID, p packet.Packet) error {
	h, ok := s.dir.Get(id)
	if !ok {
		return ErrNotFound
	}
	return h.Send(p)
}

// Broadcast queues p on every player except the given ids and returns how
// many accepted it.
func (s *Server) Broadcast(p packet.Packet, except ...ConnID) int {
	return s.dir.Broadcast(p, except...)
}

// Close disconnects the connection id with reason.
func (s *Server) Close(id ConnID, reason string) error {
	c, ok := s.Conn(id)
	if !ok {
		return ErrNotFound
	}
	return c.Close(reason)
}

// Reconfigure sends the player id back to the configuration state.
func (s *Server) Reconfigure(id ConnID) error {
	c, ok := s.Conn(id)
	if !ok {
		return ErrNotFound
	}
	return c.Reconfigure()
}

// ShutdownReason is the disconnect message sent on Shutdown.
const ShutdownReason = "Server closed"

// Shutdown stops accepting, disconnects every client and waits for the
// connections to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrServerClosed
	}

	s.mu.Lock()
	for ln := range s.listeners {
		ln.Close()
	}
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.logger.Info("shutting down", "connections", len(conns))
	for _, c := range conns {
		c.Close(ShutdownReason)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.quitOnce.Do(func() { close(s.quit) })
		return nil
	case <-ctx.Done():
		s.quitOnce.Do(func() { close(s.quit) })
		s.mu.Lock()
		for _, c := range s.conns {
			c.fail(ErrServerClosed)
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
	ln.Close()
}
