package world

import (
	"fmt"
	"math/bits"

	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Paletted container limits of the supported versions.
const (
	minBlockBits    = 4
	maxBlockBits    = 8
	directBlockBits = 15

	minBiomeBits    = 1
	maxBiomeBits    = 3
	directBiomeBits = 6
)

// bitsFor returns the bits needed to index n palette entries.
func bitsFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// buildPalette returns the distinct values in first-seen order and the
// palette index of every value.
func buildPalette(values []int32) ([]int32, []uint64) {
	palette := make([]int32, 0, 4)
	lookup := make(map[int32]uint64, 4)
	index := make([]uint64, len(values))
	for i, v := range values {
		idx, ok := lookup[v]
		if !ok {
			idx = uint64(len(palette))
			lookup[v] = idx
			palette = append(palette, v)
		}
		index[i] = idx
	}
	return palette, index
}

// packLongs packs entries of width bits into longs. Entries never span two
// longs.
func packLongs(entries []uint64, width int) []uint64 {
	if width == 0 {
		return nil
	}
	perLong := 64 / width
	longs := make([]uint64, (len(entries)+perLong-1)/perLong)
	mask := uint64(1)<<width - 1
	for i, v := range entries {
		longs[i/perLong] |= (v & mask) << ((i % perLong) * width)
	}
	return longs
}

// unpackLongs reverses packLongs.
func unpackLongs(longs []uint64, width, count int) ([]uint64, error) {
	if width <= 0 || width > 32 {
		return nil, fmt.Errorf("world: invalid entry width %d", width)
	}
	perLong := 64 / width
	if need := (count + perLong - 1) / perLong; len(longs) < need {
		return nil, fmt.Errorf("world: %d longs for %d entries of %d bits, want %d", len(longs), count, width, need)
	}
	mask := uint64(1)<<width - 1
	out := make([]uint64, count)
	for i := range out {
		out[i] = (longs[i/perLong] >> ((i % perLong) * width)) & mask
	}
	return out, nil
}

// writeContainer appends the network form of a paletted container:
// bits per entry, the palette, and the packed data array.
func writeContainer(e *protocol.Encoder, values []int32, minBits, maxBits, directBits int) {
	palette, index := buildPalette(values)
	if len(palette) == 1 {
		e.WriteByte(0)
		e.WriteVarInt(palette[0])
		e.WriteVarInt(0)
		return
	}

	width := max(bitsFor(len(palette)), minBits)
	entries := index
	if width > maxBits {
		width = directBits
		entries = make([]uint64, len(values))
		for i, v := range values {
			entries[i] = uint64(uint32(v))
		}
		e.WriteByte(byte(width))
	} else {
		e.WriteByte(byte(width))
		e.WriteVarInt(int32(len(palette)))
		for _, v := range palette {
			e.WriteVarInt(v)
		}
	}

	longs := packLongs(entries, width)
	e.WriteVarInt(int32(len(longs)))
	for _, l := range longs {
		e.WriteUint64(l)
	}
}
