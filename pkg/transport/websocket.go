package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// DefaultWebSocketPath is where the bridge accepts upgrades.
const DefaultWebSocketPath = "/ws"

// WebSocketConn adapts a WebSocket to net.Conn. Each Write is sent as one
// binary message; Read concatenates incoming binary messages.
type WebSocketConn struct {
	ws *websocket.Conn
	r  io.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps ws.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *WebSocketConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the socket.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *WebSocketConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *WebSocketConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *WebSocketConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *WebSocketConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// WebSocketConfig configures a WebSocketListener.
type WebSocketConfig struct {
	// Path is the upgrade endpoint. Default: DefaultWebSocketPath.
	Path string

	// ReadBufferSize and WriteBufferSize size the upgrader buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header. nil accepts any origin.
	CheckOrigin func(r *http.Request) bool

	// Logger receives upgrade failures. Default: slog.Default().
	Logger *slog.Logger
}

// WebSocketListener is a net.Listener fed by HTTP upgrades. It is an
// http.Handler; mount it on any router or let ListenWebSocket serve it.
type WebSocketListener struct {
	upgrader websocket.Upgrader
	router   chi.Router
	addr     net.Addr
	logger   *slog.Logger

	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
	httpSrv   *http.Server
}

// NewWebSocketListener creates a listener that reports addr as its
// address. It accepts nothing until its handler is served.
func NewWebSocketListener(addr net.Addr, cfg WebSocketConfig) *WebSocketListener {
	if cfg.Path == "" {
		cfg.Path = DefaultWebSocketPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}
	l := &WebSocketListener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		addr:   addr,
		logger: cfg.Logger.With("component", "websocket"),
		conns:  make(chan net.Conn),
		done:   make(chan struct{}),
	}
	r := chi.NewRouter()
	r.Get(cfg.Path, l.upgrade)
	l.router = r
	return l
}

// ListenWebSocket listens on addr and serves upgrades at cfg.Path.
func ListenWebSocket(ctx context.Context, addr string, cfg WebSocketConfig) (*WebSocketListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	l := NewWebSocketListener(ln.Addr(), cfg)
	l.httpSrv = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("websocket listener stopped", "error", err)
		}
	}()
	return l, nil
}

func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.router.ServeHTTP(w, r)
}

func (l *WebSocketListener) upgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.done:
		http.Error(w, "listener closed", http.StatusServiceUnavailable)
		return
	default:
	}
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := NewWebSocketConn(ws)
	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	}
}

// Accept waits for the next upgraded connection.
func (l *WebSocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops accepting. Connections already accepted stay open.
func (l *WebSocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.httpSrv != nil {
			err = l.httpSrv.Close()
		}
	})
	return err
}

// Addr returns the address given at creation.
func (l *WebSocketListener) Addr() net.Addr { return l.addr }

// DialWebSocket connects to a WebSocket bridge at url.
func DialWebSocket(ctx context.Context, url string) (net.Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(ws), nil
}
