package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "obsidium"

// Timeouts of the QUIC transport.
const (
	quicIdleTimeout   = 30 * time.Second
	quicStreamTimeout = 10 * time.Second
)

// streamConn wraps the single stream of a QUIC connection as net.Conn.
type streamConn struct {
	*quic.Stream
	conn *quic.Conn
	once sync.Once
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes both stream directions and the connection.
func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() {
		c.Stream.CancelRead(0)
		err = c.Stream.Close()
		c.conn.CloseWithError(0, "")
	})
	return err
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  quicIdleTimeout,
		KeepAlivePeriod: quicIdleTimeout / 3,
	}
}

// QUICListener accepts QUIC connections and yields the first
// bidirectional stream of each as a net.Conn.
type QUICListener struct {
	ln     *quic.Listener
	logger *slog.Logger

	conns  chan net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// ListenQUIC listens on the UDP address addr. tlsConf must carry a
// certificate; ALPN is added to its NextProtos.
func ListenQUIC(addr string, tlsConf *tls.Config, logger *slog.Logger) (*QUICListener, error) {
	if tlsConf == nil || (len(tlsConf.Certificates) == 0 && tlsConf.GetCertificate == nil) {
		return nil, errors.New("transport: quic requires a TLS certificate")
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{ALPN}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &QUICListener{
		ln:     ln,
		logger: logger.With("component", "quic"),
		conns:  make(chan net.Conn),
		ctx:    ctx,
		cancel: cancel,
	}
	go l.acceptLoop()
	return l, nil
}

func (l *QUICListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				l.logger.Warn("quic accept failed", "error", err)
			}
			return
		}
		go l.acceptStream(conn)
	}
}

// acceptStream waits for the client to open its stream.
func (l *QUICListener) acceptStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(l.ctx, quicStreamTimeout)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Debug("quic stream not opened", "remote", conn.RemoteAddr().String(), "error", err)
		conn.CloseWithError(1, "no stream")
		return
	}
	sc := &streamConn{Stream: stream, conn: conn}
	select {
	case l.conns <- sc:
	case <-l.ctx.Done():
		sc.Close()
	}
}

// Accept waits for the next connection.
func (l *QUICListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

// Close stops accepting.
func (l *QUICListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.ln.Close()
	})
	return err
}

// Addr returns the UDP address of the listener.
func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

// DialQUIC connects to addr and opens the game stream. A nil tlsConf
// skips certificate verification.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (net.Conn, error) {
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS13}
	} else {
		tlsConf = tlsConf.Clone()
	}
	tlsConf.NextProtos = []string{ALPN}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: stream, conn: conn}, nil
}
