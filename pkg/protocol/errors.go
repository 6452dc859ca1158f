package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol error by the layer that produced it.
type Kind uint8

const (
	// KindTransport covers socket faults: resets, EOF, timeouts.
	KindTransport Kind = iota

	// KindFraming covers frame length and compression faults.
	KindFraming

	// KindCodec covers primitive and packet decoding faults.
	KindCodec

	// KindProtocol covers packets that are well-formed but illegal in the
	// current connection state.
	KindProtocol

	// KindNegotiation covers rejected logins and unsupported versions.
	KindNegotiation
)

// String returns the lowercase kind name, used as a metric label.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindFraming:
		return "framing"
	case KindCodec:
		return "codec"
	case KindProtocol:
		return "protocol"
	case KindNegotiation:
		return "negotiation"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Codec errors.
var (
	ErrTruncatedInput   = errors.New("protocol: truncated input")
	ErrMalformedVarInt  = errors.New("protocol: malformed varint")
	ErrUnknownPacketID  = errors.New("protocol: unknown packet id")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// Framing errors.
var (
	ErrFrameTooLarge               = errors.New("protocol: frame too large")
	ErrDecompressionLengthMismatch = errors.New("protocol: decompressed length mismatch")
	ErrBadCompressionThreshold     = errors.New("protocol: compressed frame below threshold")
)

// Protocol errors.
var (
	ErrProtocolViolation = errors.New("protocol: protocol violation")
	ErrUnexpectedPacket  = errors.New("protocol: unexpected packet")
)

// Negotiation errors.
var (
	ErrUnsupportedProtocolVersion = errors.New("protocol: unsupported protocol version")
)

// ErrCipherAlreadyActive is returned when a cipher is activated twice.
// It signals a programming fault rather than a peer fault.
var ErrCipherAlreadyActive = errors.New("protocol: cipher already active")

// NegotiationError reports a login or handshake rejection with the reason
// shown to the client.
type NegotiationError struct {
	Reason string
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: negotiation rejected: %s: %v", e.Reason, e.Err)
	}
	return "protocol: negotiation rejected: " + e.Reason
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Reject returns a NegotiationError with the given client-facing reason.
func Reject(reason string) error {
	return &NegotiationError{Reason: reason}
}

// Violation wraps err as a protocol violation. The result matches both
// ErrProtocolViolation and err under errors.Is.
func Violation(err error) error {
	if err == nil || errors.Is(err, ErrProtocolViolation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
}

// KindOf classifies err. Errors that match none of the sentinels in this
// package are treated as transport faults.
func KindOf(err error) Kind {
	var neg *NegotiationError
	switch {
	case errors.As(err, &neg), errors.Is(err, ErrUnsupportedProtocolVersion):
		return KindNegotiation
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrUnexpectedPacket):
		return KindProtocol
	case errors.Is(err, ErrFrameTooLarge),
		errors.Is(err, ErrDecompressionLengthMismatch),
		errors.Is(err, ErrBadCompressionThreshold):
		return KindFraming
	case errors.Is(err, ErrTruncatedInput),
		errors.Is(err, ErrMalformedVarInt),
		errors.Is(err, ErrUnknownPacketID),
		errors.Is(err, ErrMalformedPayload):
		return KindCodec
	default:
		return KindTransport
	}
}
