package packet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Field describes one wire field of a packet: how to append it and how to
// read it back into the packet struct.
//
// Packets return their field list from Fields. One generic loop in
// Encode and Decode walks the list, so layouts may vary by version without
// any per-packet codec code.
type Field struct {
	Name   string
	Encode func(e *protocol.Encoder) error
	Decode func(d *protocol.Decoder) error
}

// Common string limits, in characters.
const (
	MaxUsername   = 16
	MaxServerAddr = 255
	MaxIdentifier = 32767
	MaxChatLength = 256
)

// Bool is a single byte, 0 or 1.
func Bool(name string, p *bool) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteBool(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadBool(); return },
	}
}

// Byte is a signed 8-bit integer.
func Byte(name string, p *int8) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteInt8(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadInt8(); return },
	}
}

// UByte is an unsigned 8-bit integer.
func UByte(name string, p *uint8) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteByte(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadByte(); return },
	}
}

// Short is a big-endian signed 16-bit integer.
func Short(name string, p *int16) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteInt16(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadInt16(); return },
	}
}

// UShort is a big-endian unsigned 16-bit integer, such as a port.
func UShort(name string, p *uint16) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteUint16(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadUint16(); return },
	}
}

// Int is a big-endian signed 32-bit integer.
func Int(name string, p *int32) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteInt32(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadInt32(); return },
	}
}

// Long is a big-endian signed 64-bit integer.
func Long(name string, p *int64) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteInt64(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadInt64(); return },
	}
}

// Float is a big-endian IEEE 754 single.
func Float(name string, p *float32) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteFloat32(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadFloat32(); return },
	}
}

// Double is a big-endian IEEE 754 double.
func Double(name string, p *float64) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteFloat64(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadFloat64(); return },
	}
}

// VarInt is a 32-bit integer in at most 5 LEB128 bytes.
func VarInt(name string, p *int32) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteVarInt(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadVarInt(); return },
	}
}

// VarLong is a 64-bit integer in at most 10 LEB128 bytes.
func VarLong(name string, p *int64) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteVarLong(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadVarLong(); return },
	}
}

// Enum is a VarInt restricted to [min, max].
func Enum(name string, p *int32, min, max int32) Field {
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error {
			if *p < min || *p > max {
				return fmt.Errorf("%w: %s %d outside [%d, %d]", protocol.ErrMalformedPayload, name, *p, min, max)
			}
			e.WriteVarInt(*p)
			return nil
		},
		Decode: func(d *protocol.Decoder) error {
			v, err := d.ReadVarInt()
			if err != nil {
				return err
			}
			if v < min || v > max {
				return fmt.Errorf("%w: %s %d outside [%d, %d]", protocol.ErrMalformedPayload, name, v, min, max)
			}
			*p = v
			return nil
		},
	}
}

// String is a length-prefixed string of at most max characters.
func String(name string, p *string, max int) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteString(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadString(max); return },
	}
}

// Identifier is a namespaced key such as "minecraft:overworld".
func Identifier(name string, p *string) Field {
	return String(name, p, MaxIdentifier)
}

// UUID is 16 bytes, most significant half first.
func UUID(name string, p *uuid.UUID) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteUUID(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadUUID(); return },
	}
}

// Position is a block position packed into one long.
func Position(name string, p *protocol.Position) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WritePosition(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadPosition(); return },
	}
}

// Bytes is a VarInt length-prefixed byte array of at most limit bytes.
func Bytes(name string, p *[]byte, limit int) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteLenBytes(*p); return nil },
		Decode: func(d *protocol.Decoder) (err error) { *p, err = d.ReadLenBytes(limit); return },
	}
}

// Fixed is exactly n bytes without a length prefix.
func Fixed(name string, p *[]byte, n int) Field {
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error {
			if len(*p) != n {
				return fmt.Errorf("%w: %s has %d bytes, want %d", protocol.ErrMalformedPayload, name, len(*p), n)
			}
			e.WriteBytes(*p)
			return nil
		},
		Decode: func(d *protocol.Decoder) error {
			b, err := d.ReadBytes(n)
			if err != nil {
				return err
			}
			*p = append([]byte(nil), b...)
			return nil
		},
	}
}

// Rest consumes every remaining byte. It must be the last field.
func Rest(name string, p *[]byte) Field {
	return Field{
		Name:   name,
		Encode: func(e *protocol.Encoder) error { e.WriteBytes(*p); return nil },
		Decode: func(d *protocol.Decoder) error { *p = d.ReadRest(); return nil },
	}
}

// BitSet is a VarInt count of longs.
func BitSet(name string, p *[]int64) Field {
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error {
			e.WriteVarInt(int32(len(*p)))
			for _, w := range *p {
				e.WriteInt64(w)
			}
			return nil
		},
		Decode: func(d *protocol.Decoder) error {
			n, err := d.ReadCollectionCount(8)
			if err != nil {
				return err
			}
			words := make([]int64, n)
			for i := range words {
				if words[i], err = d.ReadInt64(); err != nil {
					return err
				}
			}
			*p = words
			return nil
		},
	}
}

// NBT is a network NBT value kept in encoded form.
func NBT(name string, p *nbt.Raw) Field {
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error {
			if len(*p) == 0 {
				e.WriteByte(nbt.TagEnd)
				return nil
			}
			e.WriteBytes(*p)
			return nil
		},
		Decode: func(d *protocol.Decoder) error {
			rest := d.Peek()
			n, err := nbt.Scan(rest)
			if err != nil {
				return fmt.Errorf("%w: %v", protocol.ErrMalformedPayload, err)
			}
			*p = append(nbt.Raw(nil), rest[:n]...)
			return d.Skip(n)
		},
	}
}

// Optional is a Bool presence flag followed by fields when present.
func Optional(name string, present *bool, fields ...Field) Field {
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error {
			e.WriteBool(*present)
			if !*present {
				return nil
			}
			return encodeFields(e, fields)
		},
		Decode: func(d *protocol.Decoder) error {
			ok, err := d.ReadBool()
			if err != nil {
				return err
			}
			*present = ok
			if !ok {
				return nil
			}
			return decodeFields(d, fields)
		},
	}
}

// Slice is a VarInt count followed by that many elements, each described
// by the fields returned from each. minSize is the smallest encoded size
// of one element.
func Slice[T any](name string, p *[]T, minSize int, each func(*T) []Field) Field {
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error {
			e.WriteVarInt(int32(len(*p)))
			for i := range *p {
				if err := encodeFields(e, each(&(*p)[i])); err != nil {
					return fmt.Errorf("%s[%d]: %w", name, i, err)
				}
			}
			return nil
		},
		Decode: func(d *protocol.Decoder) error {
			n, err := d.ReadCollectionCount(minSize)
			if err != nil {
				return err
			}
			out := make([]T, n)
			for i := range out {
				if err := decodeFields(d, each(&out[i])); err != nil {
					return fmt.Errorf("%s[%d]: %w", name, i, err)
				}
			}
			*p = out
			return nil
		},
	}
}

// Strings is a VarInt count of identifiers.
func Strings(name string, p *[]string, max int) Field {
	return Slice(name, p, 1, func(s *string) []Field {
		return []Field{String("value", s, max)}
	})
}

// MovementFlags is the on-ground state of player movement packets: a Bool
// before 1.21.2 and a flags byte since. Bit 0 is on-ground; bit 1 is
// pushing against a wall.
func MovementFlags(name string, p *uint8, v Version) Field {
	if v >= V1_21_2 {
		return UByte(name, p)
	}
	return Field{
		Name: name,
		Encode: func(e *protocol.Encoder) error { e.WriteBool(*p&0x01 != 0); return nil },
		Decode: func(d *protocol.Decoder) error {
			ok, err := d.ReadBool()
			if err != nil {
				return err
			}
			*p = 0
			if ok {
				*p = 0x01
			}
			return nil
		},
	}
}

func encodeFields(e *protocol.Encoder, fields []Field) error {
	for _, f := range fields {
		if err := f.Encode(e); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func decodeFields(d *protocol.Decoder, fields []Field) error {
	for _, f := range fields {
		if err := f.Decode(d); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}
