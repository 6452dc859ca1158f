package nbt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxDepth limits the nesting of lists and compounds. Vanilla uses 512.
const MaxDepth = 512

// Decoding errors.
var (
	ErrTruncated   = errors.New("nbt: truncated input")
	ErrMaxDepth    = errors.New("nbt: maximum nesting depth exceeded")
	ErrUnknownTag  = errors.New("nbt: unknown tag type")
	ErrInvalidSize = errors.New("nbt: invalid length")
)

// depthContext tracks the current nesting depth while decoding.
type depthContext struct {
	current int
	max     int
}

// enter increments the depth and returns an error if the limit would be exceeded.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepth
	}
	dc.current++
	return nil
}

func (dc *depthContext) leave() {
	dc.current--
}

type decoder struct {
	buf   []byte
	pos   int
	depth depthContext
	// skip scans without building values.
	skip bool
}

// Unmarshal decodes one network NBT value from the start of b and returns
// it with the number of bytes consumed. A lone TagEnd decodes to nil.
func Unmarshal(b []byte) (Value, int, error) {
	d := &decoder{buf: b, depth: depthContext{max: MaxDepth}}
	v, err := d.root()
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

// Scan returns the encoded length of the network NBT value at the start
// of b without building it.
func Scan(b []byte) (int, error) {
	d := &decoder{buf: b, depth: depthContext{max: MaxDepth}, skip: true}
	if _, err := d.root(); err != nil {
		return 0, err
	}
	return d.pos, nil
}

func (d *decoder) root() (Value, error) {
	id, err := d.u8()
	if err != nil {
		return nil, err
	}
	if id == TagEnd {
		return nil, nil
	}
	return d.payload(id)
}

func (d *decoder) need(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, ErrTruncated
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.need(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.need(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.need(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// count reads an array or list length and checks that the remaining input
// can hold it.
func (d *decoder) count(elemSize int) (int, error) {
	n, err := d.u32()
	if err != nil {
		return 0, err
	}
	if int32(n) < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, int32(n))
	}
	if elemSize > 0 && int64(n)*int64(elemSize) > int64(len(d.buf)-d.pos) {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	b, err := d.need(int(n))
	if err != nil || d.skip {
		return "", err
	}
	return decodeMUTF8(b)
}

func (d *decoder) payload(id byte) (Value, error) {
	switch id {
	case TagByte:
		b, err := d.u8()
		return Byte(b), err
	case TagShort:
		v, err := d.u16()
		return Short(v), err
	case TagInt:
		v, err := d.u32()
		return Int(v), err
	case TagLong:
		v, err := d.u64()
		return Long(v), err
	case TagFloat:
		v, err := d.u32()
		return Float(math.Float32frombits(v)), err
	case TagDouble:
		v, err := d.u64()
		return Double(math.Float64frombits(v)), err
	case TagByteArray:
		n, err := d.count(1)
		if err != nil {
			return nil, err
		}
		b, err := d.need(n)
		if err != nil || d.skip {
			return nil, err
		}
		return ByteArray(append([]byte(nil), b...)), nil
	case TagString:
		s, err := d.str()
		return String(s), err
	case TagList:
		return d.list()
	case TagCompound:
		return d.compound()
	case TagIntArray:
		n, err := d.count(4)
		if err != nil {
			return nil, err
		}
		if d.skip {
			_, err = d.need(n * 4)
			return nil, err
		}
		arr := make(IntArray, n)
		for i := range arr {
			v, _ := d.u32()
			arr[i] = int32(v)
		}
		return arr, nil
	case TagLongArray:
		n, err := d.count(8)
		if err != nil {
			return nil, err
		}
		if d.skip {
			_, err = d.need(n * 8)
			return nil, err
		}
		arr := make(LongArray, n)
		for i := range arr {
			v, _ := d.u64()
			arr[i] = int64(v)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, id)
	}
}

func (d *decoder) list() (Value, error) {
	if err := d.depth.enter(); err != nil {
		return nil, err
	}
	defer d.depth.leave()

	elem, err := d.u8()
	if err != nil {
		return nil, err
	}
	n, err := d.count(minPayloadSize(elem))
	if err != nil {
		return nil, err
	}
	if elem == TagEnd && n > 0 {
		return nil, fmt.Errorf("%w: list of End with %d items", ErrInvalidSize, n)
	}

	l := List{Elem: elem}
	if !d.skip {
		l.Items = make([]Value, 0, n)
	}
	for i := 0; i < n; i++ {
		v, err := d.payload(elem)
		if err != nil {
			return nil, err
		}
		if !d.skip {
			l.Items = append(l.Items, v)
		}
	}
	return l, nil
}

func (d *decoder) compound() (Value, error) {
	if err := d.depth.enter(); err != nil {
		return nil, err
	}
	defer d.depth.leave()

	var c Compound
	if !d.skip {
		c = Compound{}
	}
	for {
		id, err := d.u8()
		if err != nil {
			return nil, err
		}
		if id == TagEnd {
			return c, nil
		}
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		v, err := d.payload(id)
		if err != nil {
			return nil, err
		}
		if !d.skip {
			c = append(c, Field{Name: name, Value: v})
		}
	}
}

// minPayloadSize is the smallest encoded payload for a tag id, used to
// bound list counts against the remaining input.
func minPayloadSize(id byte) int {
	switch id {
	case TagByte:
		return 1
	case TagShort, TagString:
		return 2
	case TagInt, TagFloat, TagByteArray, TagIntArray, TagLongArray:
		return 4
	case TagLong, TagDouble:
		return 8
	case TagList:
		return 5
	case TagCompound:
		return 1
	default:
		return 0
	}
}
