package protocol

import (
	"errors"
	"io"
)

const (
	// MaxVarIntLen is the maximum number of bytes a VarInt can occupy.
	MaxVarIntLen = 5

	// MaxVarLongLen is the maximum number of bytes a VarLong can occupy.
	MaxVarLongLen = 10
)

// AppendVarInt appends the minimal VarInt encoding of v to dst.
func AppendVarInt(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// EncodeVarInt encodes v into buf and returns the number of bytes written.
// buf must have at least MaxVarIntLen bytes available.
func EncodeVarInt(buf []byte, v uint32) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// DecodeVarInt decodes a VarInt from the start of buf.
// Returns the value and the number of bytes consumed. It never reads past
// the terminating byte.
//
// Non-minimal encodings such as 0x80 0x00 are accepted.
func DecodeVarInt(buf []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncatedInput
		}
		b := buf[i]
		if i == MaxVarIntLen-1 && b > 0x0F {
			// Continuation bit on the 5th byte, or bits beyond 32.
			return 0, 0, ErrMalformedVarInt
		}
		v |= uint32(b&0x7F) << (7 * i)
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrMalformedVarInt
}

// ReadVarInt reads a VarInt one byte at a time from r.
// An io.EOF before the first byte is returned unchanged so callers can
// detect a clean close; an EOF mid-value is ErrTruncatedInput.
func ReadVarInt(r io.ByteReader) (uint32, int, error) {
	var v uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, i, ErrTruncatedInput
			}
			return 0, i, err
		}
		if i == MaxVarIntLen-1 && b > 0x0F {
			return 0, i + 1, ErrMalformedVarInt
		}
		v |= uint32(b&0x7F) << (7 * i)
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, MaxVarIntLen, ErrMalformedVarInt
}

// VarIntLen returns the number of bytes needed to encode v.
func VarIntLen(v uint32) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}

// AppendVarLong appends the minimal VarLong encoding of v to dst.
func AppendVarLong(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// EncodeVarLong encodes v into buf and returns the number of bytes written.
// buf must have at least MaxVarLongLen bytes available.
func EncodeVarLong(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// DecodeVarLong decodes a VarLong from the start of buf.
func DecodeVarLong(buf []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < MaxVarLongLen; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncatedInput
		}
		b := buf[i]
		if i == MaxVarLongLen-1 && b > 0x01 {
			return 0, 0, ErrMalformedVarInt
		}
		v |= uint64(b&0x7F) << (7 * i)
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrMalformedVarInt
}

// VarLongLen returns the number of bytes needed to encode v.
func VarLongLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}

// ReadVarLong reads a VarLong one byte at a time from r, with the EOF
// rules of ReadVarInt.
func ReadVarLong(r io.ByteReader) (uint64, int, error) {
	var v uint64
	for i := 0; i < MaxVarLongLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, i, ErrTruncatedInput
			}
			return 0, i, err
		}
		if i == MaxVarLongLen-1 && b > 0x01 {
			return 0, i + 1, ErrMalformedVarInt
		}
		v |= uint64(b&0x7F) << (7 * i)
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, MaxVarLongLen, ErrMalformedVarInt
}
