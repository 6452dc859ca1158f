package world

import (
	"errors"
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
)

// ErrBadChunk is returned for chunk blobs that do not decode.
var ErrBadChunk = errors.New("world: malformed chunk blob")

// Marshal encodes a chunk as a network NBT blob:
//
//	{xPos: Int, zPos: Int, yPos: Int, sections: [{Y, palette, data?, biome}]}
//
// yPos is the lowest section index. data is omitted for single-valued
// sections.
func Marshal(c *Chunk) (nbt.Raw, error) {
	sections := make([]nbt.Value, len(c.Sections))
	for i := range c.Sections {
		s := &c.Sections[i]
		sec := nbt.Compound{
			{Name: "Y", Value: nbt.Byte(int32(i) + c.MinY/SectionHeight)},
			{Name: "biome", Value: nbt.Int(s.Biome)},
		}
		palette, index := buildPalette(s.values())
		sec.Set("palette", nbt.IntArray(palette))
		if len(palette) > 1 {
			longs := packLongs(index, bitsFor(len(palette)))
			data := make(nbt.LongArray, len(longs))
			for j, l := range longs {
				data[j] = int64(l)
			}
			sec.Set("data", data)
		}
		sections[i] = sec
	}
	list, err := nbt.NewList(sections...)
	if err != nil {
		return nil, err
	}
	return nbt.Marshal(nbt.Compound{
		{Name: "xPos", Value: nbt.Int(c.Pos.X)},
		{Name: "zPos", Value: nbt.Int(c.Pos.Z)},
		{Name: "yPos", Value: nbt.Int(c.MinY / SectionHeight)},
		{Name: "sections", Value: list},
	})
}

// Unmarshal decodes a blob written by Marshal.
func Unmarshal(raw []byte) (*Chunk, error) {
	v, _, err := nbt.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChunk, err)
	}
	root, ok := v.(nbt.Compound)
	if !ok {
		return nil, fmt.Errorf("%w: root is not a compound", ErrBadChunk)
	}
	x, okX := getInt(root, "xPos")
	z, okZ := getInt(root, "zPos")
	y, okY := getInt(root, "yPos")
	lv, okS := root.Get("sections")
	list, okL := lv.(nbt.List)
	if !okX || !okZ || !okY || !okS || !okL {
		return nil, fmt.Errorf("%w: missing position or sections", ErrBadChunk)
	}

	c := &Chunk{
		Pos:      ChunkPos{X: x, Z: z},
		MinY:     y * SectionHeight,
		Sections: make([]Section, len(list.Items)),
	}
	for i, item := range list.Items {
		sec, ok := item.(nbt.Compound)
		if !ok {
			return nil, fmt.Errorf("%w: section %d is %s", ErrBadChunk, i, nbt.TagName(item.TagID()))
		}
		if err := decodeSection(&c.Sections[i], sec); err != nil {
			return nil, fmt.Errorf("%w: section %d: %v", ErrBadChunk, i, err)
		}
	}
	return c, nil
}

func decodeSection(s *Section, sec nbt.Compound) error {
	if b, ok := getInt(sec, "biome"); ok {
		s.Biome = b
	}
	pv, _ := sec.Get("palette")
	palette, ok := pv.(nbt.IntArray)
	if !ok || len(palette) == 0 {
		return errors.New("missing palette")
	}
	if len(palette) == 1 {
		s.Fill(palette[0])
		return nil
	}
	dv, _ := sec.Get("data")
	data, ok := dv.(nbt.LongArray)
	if !ok {
		return errors.New("missing data")
	}
	longs := make([]uint64, len(data))
	for i, l := range data {
		longs[i] = uint64(l)
	}
	index, err := unpackLongs(longs, bitsFor(len(palette)), sectionBlocks)
	if err != nil {
		return err
	}
	s.blocks = make([]int32, sectionBlocks)
	for i, idx := range index {
		if idx >= uint64(len(palette)) {
			return fmt.Errorf("palette index %d out of range", idx)
		}
		s.blocks[i] = palette[idx]
	}
	return nil
}

func getInt(c nbt.Compound, name string) (int32, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(nbt.Int)
	return int32(i), ok
}
