package server

import (
	"errors"
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Sentinel errors for connection and directory operations.
var (
	// ErrSendQueueFull is returned by Send when the outbound queue of a
	// connection has no room.
	ErrSendQueueFull = errors.New("server: send queue full")

	// ErrConnClosed is returned when an operation targets a closed
	// connection.
	ErrConnClosed = errors.New("server: connection closed")

	// ErrNotFound is returned when a connection id is not in the directory.
	ErrNotFound = errors.New("server: connection not found")

	// ErrDuplicateID is returned when a directory insert collides.
	ErrDuplicateID = errors.New("server: duplicate connection id")

	// ErrKeepAliveTimeout is returned when a client does not answer a
	// keep-alive in time.
	ErrKeepAliveTimeout = errors.New("server: keep-alive timeout")

	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("server: closed")

	// ErrVersionAlreadySet is returned when the protocol version of a
	// connection is set twice.
	ErrVersionAlreadySet = errors.New("server: protocol version already set")

	// ErrWrongState is returned by Reconfigure when the connection is not
	// in play, and by Send for packets the client cannot accept in its
	// current state.
	ErrWrongState = errors.New("server: connection in wrong state")

	// ErrWrongDirection is returned when a serverbound packet is sent to a
	// client.
	ErrWrongDirection = errors.New("server: packet is not clientbound")
)

// ConnError wraps an error with connection context for logging.
type ConnError struct {
	ConnID ConnID
	State  protocol.State
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	return fmt.Sprintf("server: conn %d (%s): %s: %v", e.ConnID, e.State, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// Kind classifies the underlying error.
func (e *ConnError) Kind() protocol.Kind {
	return protocol.KindOf(e.Err)
}
