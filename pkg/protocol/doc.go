// Package protocol implements the byte-level wire layers of the game protocol.
//
// A connection carries a stream of length-prefixed frames. Each frame body
// is a packet: a VarInt packet id followed by a typed payload. Two optional
// layers sit between the socket and the frames:
//
//	socket ─► cipher (AES-128/CFB8) ─► bufio ─► frame length ─► zlib ─► packet
//
// Encryption is byte-for-byte and never depends on frame boundaries.
// Compression is per frame and gated by a threshold negotiated during login.
//
// # Wire Format
//
// Uncompressed frames:
//
//	┌──────────────────┬────────────────────────────────────┐
//	│ Length (VarInt)  │ Packet ID (VarInt) │ Payload       │
//	└──────────────────┴────────────────────────────────────┘
//
// Compressed frames (after SetCompression):
//
//	┌──────────────────┬───────────────────────┬───────────────────────────┐
//	│ Length (VarInt)  │ Data Length (VarInt)  │ zlib(Packet ID || Payload)│
//	└──────────────────┴───────────────────────┴───────────────────────────┘
//
// A Data Length of 0 means the remainder was sent uncompressed because it
// was below the threshold.
//
// # Encoding
//
//   - VarInt: 7 value bits per byte, MSB continuation, at most 5 bytes
//   - VarLong: same scheme, at most 10 bytes
//   - Strings: VarInt byte length followed by UTF-8
//   - Fixed-width integers and floats: big-endian
//
// All decoding errors are classified by [KindOf] into Transport, Framing,
// Codec, Protocol and Negotiation so connection owners can decide how to
// report them.
package protocol
