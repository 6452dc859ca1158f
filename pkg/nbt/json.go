package nbt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// FromJSON converts a JSON document to a tag value using the conventions of
// vanilla registry dumps:
//
//   - booleans become Byte 0/1
//   - integers become Int, or Long outside the int32 range
//   - fractional numbers become Float when exact as float32, else Double
//   - arrays of only Byte, Int or Long become the matching array tag;
//     other arrays become lists and must be homogeneous
//   - null object members are dropped; any other null becomes an empty String
//
// Object key order is preserved.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSON(dec)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = String("")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("nbt: trailing data after JSON value")
	}
	return v, nil
}

// readJSON returns a nil Value for JSON null so object members can be
// dropped.
func readJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("nbt: json: %w", err)
	}
	switch t := tok.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return Byte(1), nil
		}
		return Byte(0), nil
	case json.Number:
		return jsonNumber(t)
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		}
	}
	return nil, fmt.Errorf("nbt: json: unexpected token %v", tok)
}

func jsonNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return Int(i), nil
		}
		return Long(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("nbt: json: invalid number %q", n)
	}
	if float64(float32(f)) == f {
		return Float(f), nil
	}
	return Double(f), nil
}

func readObject(dec *json.Decoder) (Value, error) {
	c := Compound{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("nbt: json: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("nbt: json: object key %v", tok)
		}
		v, err := readJSON(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if v != nil {
			c.Set(key, v)
		}
	}
	if _, err := dec.Token(); err != nil { // '}'
		return nil, err
	}
	return c, nil
}

func readArray(dec *json.Decoder) (Value, error) {
	var items []Value
	for dec.More() {
		v, err := readJSON(dec)
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = String("")
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil { // ']'
		return nil, err
	}
	if len(items) == 0 {
		return List{Elem: TagEnd}, nil
	}

	elem := items[0].TagID()
	for _, it := range items[1:] {
		if it.TagID() != elem {
			return nil, fmt.Errorf("nbt: json: mixed array of %s and %s", TagName(elem), TagName(it.TagID()))
		}
	}
	switch elem {
	case TagByte:
		arr := make(ByteArray, len(items))
		for i, it := range items {
			arr[i] = byte(it.(Byte))
		}
		return arr, nil
	case TagInt:
		arr := make(IntArray, len(items))
		for i, it := range items {
			arr[i] = int32(it.(Int))
		}
		return arr, nil
	case TagLong:
		arr := make(LongArray, len(items))
		for i, it := range items {
			arr[i] = int64(it.(Long))
		}
		return arr, nil
	}
	return List{Elem: elem, Items: items}, nil
}
