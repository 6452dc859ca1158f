package nbt

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Marshal encodes v in network form: root tag id followed by its payload.
func Marshal(v Value) (Raw, error) {
	return AppendNetwork(nil, v)
}

// AppendNetwork appends the network form of v to dst.
func AppendNetwork(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, v.TagID())
	return appendPayload(dst, v)
}

func appendPayload(dst []byte, v Value) ([]byte, error) {
	var err error
	switch t := v.(type) {
	case Byte:
		dst = append(dst, byte(t))
	case Short:
		dst = binary.BigEndian.AppendUint16(dst, uint16(t))
	case Int:
		dst = binary.BigEndian.AppendUint32(dst, uint32(t))
	case Long:
		dst = binary.BigEndian.AppendUint64(dst, uint64(t))
	case Float:
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(t)))
	case Double:
		dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(float64(t)))
	case ByteArray:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		dst = append(dst, t...)
	case String:
		dst, err = appendString(dst, string(t))
	case List:
		elem := t.Elem
		if len(t.Items) == 0 {
			elem = TagEnd
		}
		dst = append(dst, elem)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t.Items)))
		for i, it := range t.Items {
			if it.TagID() != elem {
				return dst, fmt.Errorf("nbt: list element %d has tag %s, want %s", i, TagName(it.TagID()), TagName(elem))
			}
			if dst, err = appendPayload(dst, it); err != nil {
				return dst, err
			}
		}
	case Compound:
		for _, f := range t {
			if f.Value == nil {
				continue
			}
			dst = append(dst, f.Value.TagID())
			if dst, err = appendString(dst, f.Name); err != nil {
				return dst, err
			}
			if dst, err = appendPayload(dst, f.Value); err != nil {
				return dst, err
			}
		}
		dst = append(dst, TagEnd)
	case IntArray:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		for _, x := range t {
			dst = binary.BigEndian.AppendUint32(dst, uint32(x))
		}
	case LongArray:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		for _, x := range t {
			dst = binary.BigEndian.AppendUint64(dst, uint64(x))
		}
	default:
		return dst, fmt.Errorf("nbt: unsupported value %T", v)
	}
	return dst, err
}

func appendString(dst []byte, s string) ([]byte, error) {
	n := mutf8Len(s)
	if n > math.MaxUint16 {
		return dst, fmt.Errorf("nbt: string of %d bytes exceeds 65535", n)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	return appendMUTF8(dst, s), nil
}

// Text returns a plain text component as network NBT. Text longer than the
// string tag limit is truncated.
func Text(s string) Raw {
	for mutf8Len(s) > math.MaxUint16 {
		s = s[:len(s)/2]
	}
	raw, _ := Marshal(String(s))
	return raw
}
