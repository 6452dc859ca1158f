package protocol

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Allocation limits to prevent DoS attacks via malicious length prefixes.
const (
	// DefaultMaxAllocation is the default maximum allocation size (2MB),
	// matching the largest frame a peer is allowed to send.
	DefaultMaxAllocation = 2 * 1024 * 1024

	// MaxStringLength is the largest string length, in characters, any
	// packet field may declare.
	MaxStringLength = 32767

	// MaxCollectionCount is the maximum number of items in a collection.
	// This prevents OOM from huge counts with small per-item overhead.
	MaxCollectionCount = 100_000
)

// Decoder is a binary decoder that reads from a packet payload.
// Short reads fail with ErrTruncatedInput; values that cannot be valid
// fail with ErrMalformedPayload.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// Skip advances the position by n bytes.
func (d *Decoder) Skip(n int) error {
	if n < 0 || d.pos+n > len(d.buf) {
		return ErrTruncatedInput
	}
	d.pos += n
	return nil
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrTruncatedInput
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, ErrTruncatedInput
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Peek returns the unread bytes without consuming them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) Peek() []byte {
	return d.buf[d.pos:]
}

// ReadRest returns a copy of every unread byte.
func (d *Decoder) ReadRest() []byte {
	b := make([]byte, len(d.buf)-d.pos)
	copy(b, d.buf[d.pos:])
	d.pos = len(d.buf)
	return b
}

// ReadVarInt reads a VarInt as a signed 32-bit value.
func (d *Decoder) ReadVarInt() (int32, error) {
	v, n, err := DecodeVarInt(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return int32(v), nil
}

// ReadVarLong reads a VarLong as a signed 64-bit value.
func (d *Decoder) ReadVarLong() (int64, error) {
	v, n, err := DecodeVarLong(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return int64(v), nil
}

// ReadLength reads a VarInt length prefix and checks it against the
// remaining input and limit.
func (d *Decoder) ReadLength(limit int) (int, error) {
	n, err := d.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrMalformedPayload, n)
	}
	if int(n) > limit {
		return 0, fmt.Errorf("%w: length %d exceeds %d", ErrMalformedPayload, n, limit)
	}
	if int(n) > d.Remaining() {
		return 0, ErrTruncatedInput
	}
	return int(n), nil
}

// ReadString reads a length-prefixed UTF-8 string of at most maxChars
// characters. The byte length may be up to four times maxChars.
func (d *Decoder) ReadString(maxChars int) (string, error) {
	if maxChars <= 0 || maxChars > MaxStringLength {
		maxChars = MaxStringLength
	}
	n, err := d.ReadLength(maxChars * 4)
	if err != nil {
		return "", err
	}
	raw := d.buf[d.pos : d.pos+n]
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid utf-8 string", ErrMalformedPayload)
	}
	if utf8.RuneCount(raw) > maxChars {
		return "", fmt.Errorf("%w: string longer than %d characters", ErrMalformedPayload, maxChars)
	}
	d.pos += n
	return string(raw), nil
}

// ReadLenBytes reads length-prefixed bytes.
// Returns a copy of the bytes (safe to retain).
func (d *Decoder) ReadLenBytes(limit int) ([]byte, error) {
	if limit <= 0 || limit > DefaultMaxAllocation {
		limit = DefaultMaxAllocation
	}
	n, err := d.ReadLength(limit)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

// ReadBool reads a boolean. Only 0x00 and 0x01 are accepted.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, fmt.Errorf("%w: invalid boolean 0x%02x", ErrMalformedPayload, b)
	}
}

// ReadUint16 reads a uint16 in big-endian byte order.
func (d *Decoder) ReadUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, ErrTruncatedInput
	}
	v := uint16(d.buf[d.pos])<<8 | uint16(d.buf[d.pos+1])
	d.pos += 2
	return v, nil
}

// ReadUint32 reads a uint32 in big-endian byte order.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrTruncatedInput
	}
	v := uint32(d.buf[d.pos])<<24 | uint32(d.buf[d.pos+1])<<16 |
		uint32(d.buf[d.pos+2])<<8 | uint32(d.buf[d.pos+3])
	d.pos += 4
	return v, nil
}

// ReadUint64 reads a uint64 in big-endian byte order.
func (d *Decoder) ReadUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrTruncatedInput
	}
	v := uint64(d.buf[d.pos])<<56 | uint64(d.buf[d.pos+1])<<48 |
		uint64(d.buf[d.pos+2])<<40 | uint64(d.buf[d.pos+3])<<32 |
		uint64(d.buf[d.pos+4])<<24 | uint64(d.buf[d.pos+5])<<16 |
		uint64(d.buf[d.pos+6])<<8 | uint64(d.buf[d.pos+7])
	d.pos += 8
	return v, nil
}

// ReadInt8 reads a signed byte.
func (d *Decoder) ReadInt8() (int8, error) {
	b, err := d.ReadByte()
	return int8(b), err
}

// ReadInt16 reads an int16 in big-endian byte order.
func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUint16()
	return int16(v), err
}

// ReadInt32 reads an int32 in big-endian byte order.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

// ReadInt64 reads an int64 in big-endian byte order.
func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads a float32 in IEEE 754 format (big-endian).
func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadFloat64 reads a float64 in IEEE 754 format (big-endian).
func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadUUID reads a 16-byte UUID.
func (d *Decoder) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	b, err := d.ReadBytes(16)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// ReadPosition reads a packed block position.
func (d *Decoder) ReadPosition() (Position, error) {
	v, err := d.ReadInt64()
	if err != nil {
		return Position{}, err
	}
	return UnpackPosition(v), nil
}

// ReadCollectionCount reads a VarInt count and validates it against limits.
// minItemSize is the smallest encoded size of one element, used to reject
// counts the remaining input cannot possibly hold.
func (d *Decoder) ReadCollectionCount(minItemSize int) (int, error) {
	n, err := d.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > MaxCollectionCount {
		return 0, fmt.Errorf("%w: collection count %d", ErrMalformedPayload, n)
	}
	if minItemSize > 0 && int(n)*minItemSize > d.Remaining() {
		return 0, ErrTruncatedInput
	}
	return int(n), nil
}
