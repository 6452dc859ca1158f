// Package nbt implements the network form of the game's binary tag format.
//
// The network form differs from the file form in one way: the root tag
// carries its type id but no name. Registry entries, text components and
// chunk heightmaps all travel in this form.
//
// Values are modelled as Go types implementing [Value]. Compounds keep their
// field order so encoding is deterministic.
package nbt

import "fmt"

// Tag type ids.
const (
	TagEnd       byte = 0
	TagByte      byte = 1
	TagShort     byte = 2
	TagInt       byte = 3
	TagLong      byte = 4
	TagFloat     byte = 5
	TagDouble    byte = 6
	TagByteArray byte = 7
	TagString    byte = 8
	TagList      byte = 9
	TagCompound  byte = 10
	TagIntArray  byte = 11
	TagLongArray byte = 12
)

// Value is any tag payload.
type Value interface {
	TagID() byte
}

type (
	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	ByteArray []byte
	String    string
	IntArray  []int32
	LongArray []int64
)

// List is a homogeneous list. Elem is the element tag id; it is TagEnd for
// an empty list.
type List struct {
	Elem  byte
	Items []Value
}

// Field is one named entry of a Compound.
type Field struct {
	Name  string
	Value Value
}

// Compound is an ordered set of named tags.
type Compound []Field

func (Byte) TagID() byte      { return TagByte }
func (Short) TagID() byte     { return TagShort }
func (Int) TagID() byte       { return TagInt }
func (Long) TagID() byte      { return TagLong }
func (Float) TagID() byte     { return TagFloat }
func (Double) TagID() byte    { return TagDouble }
func (ByteArray) TagID() byte { return TagByteArray }
func (String) TagID() byte    { return TagString }
func (List) TagID() byte      { return TagList }
func (Compound) TagID() byte  { return TagCompound }
func (IntArray) TagID() byte  { return TagIntArray }
func (LongArray) TagID() byte { return TagLongArray }

// Get returns the value of the named field.
func (c Compound) Get(name string) (Value, bool) {
	for _, f := range c {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the named field or appends it.
func (c *Compound) Set(name string, v Value) {
	for i := range *c {
		if (*c)[i].Name == name {
			(*c)[i].Value = v
			return
		}
	}
	*c = append(*c, Field{Name: name, Value: v})
}

// NewList builds a list from items that must all share one tag id.
func NewList(items ...Value) (List, error) {
	if len(items) == 0 {
		return List{Elem: TagEnd}, nil
	}
	elem := items[0].TagID()
	for i, it := range items[1:] {
		if it.TagID() != elem {
			return List{}, fmt.Errorf("nbt: list element %d has tag %d, want %d", i+1, it.TagID(), elem)
		}
	}
	return List{Elem: elem, Items: items}, nil
}

// Raw is an encoded network NBT value, kept as bytes so packets re-encode
// exactly what they decoded.
type Raw []byte

// TagName returns a readable name for a tag id.
func TagName(id byte) string {
	switch id {
	case TagEnd:
		return "End"
	case TagByte:
		return "Byte"
	case TagShort:
		return "Short"
	case TagInt:
		return "Int"
	case TagLong:
		return "Long"
	case TagFloat:
		return "Float"
	case TagDouble:
		return "Double"
	case TagByteArray:
		return "ByteArray"
	case TagString:
		return "String"
	case TagList:
		return "List"
	case TagCompound:
		return "Compound"
	case TagIntArray:
		return "IntArray"
	case TagLongArray:
		return "LongArray"
	default:
		return fmt.Sprintf("Tag(%d)", id)
	}
}
