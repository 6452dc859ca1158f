// Package transport provides the listeners a server can accept game
// connections on. Every listener yields net.Conns carrying the plain
// protocol byte stream, so server.Serve works the same on all of them.
//
//   - TCP: the vanilla transport.
//   - WebSocket: binary messages over HTTP upgrade, for browser bridges.
//   - QUIC: one bidirectional stream per QUIC connection.
package transport

import (
	"context"
	"net"
	"time"
)

// DefaultTCPKeepAlive is the TCP keep-alive period of accepted sockets.
const DefaultTCPKeepAlive = 30 * time.Second

// ListenTCP listens on addr with TCP keep-alives enabled.
func ListenTCP(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: DefaultTCPKeepAlive}
	return lc.Listen(ctx, "tcp", addr)
}
