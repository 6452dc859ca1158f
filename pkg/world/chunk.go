// Package world holds the chunk model handed to connections on join, its
// wire encoding, and the blob stores chunks persist to.
//
// Chunks are stored as network NBT blobs. The on-disk key layout belongs
// to the [Store] implementation.
package world

import (
	"bytes"
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Section geometry.
const (
	SectionWidth  = 16
	SectionHeight = 16
	sectionBlocks = SectionWidth * SectionWidth * SectionHeight
	sectionBiomes = 4 * 4 * 4
	lightBytes    = 2048
)

// Overworld dimension bounds.
const (
	OverworldMinY   = -64
	OverworldHeight = 384
)

// Air is block state 0 in every supported version.
const Air int32 = 0

// ChunkPos is a chunk column coordinate.
type ChunkPos struct {
	X, Z int32
}

func (p ChunkPos) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Z)
}

// Section is a 16x16x16 cube of block states. A section whose blocks are
// all the same holds no per-block storage.
type Section struct {
	fill   int32
	blocks []int32 // nil when every block is fill

	Biome int32
}

func blockIndex(x, y, z int) int {
	return (y*SectionWidth+z)*SectionWidth + x
}

// Block returns the state at section-relative coordinates.
func (s *Section) Block(x, y, z int) int32 {
	if s.blocks == nil {
		return s.fill
	}
	return s.blocks[blockIndex(x, y, z)]
}

// SetBlock sets the state at section-relative coordinates.
func (s *Section) SetBlock(x, y, z int, state int32) {
	if s.blocks == nil {
		if state == s.fill {
			return
		}
		s.blocks = make([]int32, sectionBlocks)
		for i := range s.blocks {
			s.blocks[i] = s.fill
		}
	}
	s.blocks[blockIndex(x, y, z)] = state
}

// Fill sets every block of the section.
func (s *Section) Fill(state int32) {
	s.fill = state
	s.blocks = nil
}

func (s *Section) values() []int32 {
	if s.blocks != nil {
		return s.blocks
	}
	v := make([]int32, sectionBlocks)
	if s.fill != 0 {
		for i := range v {
			v[i] = s.fill
		}
	}
	return v
}

// nonAir counts blocks other than air.
func (s *Section) nonAir() int16 {
	if s.blocks == nil {
		if s.fill == Air {
			return 0
		}
		return sectionBlocks
	}
	var n int16
	for _, b := range s.blocks {
		if b != Air {
			n++
		}
	}
	return n
}

// Chunk is a full-height chunk column.
type Chunk struct {
	Pos           ChunkPos
	MinY          int32
	Sections      []Section
	BlockEntities []packet.BlockEntity
}

// NewChunk returns an empty chunk spanning height blocks from minY.
func NewChunk(pos ChunkPos, minY, height int32) *Chunk {
	return &Chunk{
		Pos:      pos,
		MinY:     minY,
		Sections: make([]Section, height/SectionHeight),
	}
}

// Height returns the column height in blocks.
func (c *Chunk) Height() int32 {
	return int32(len(c.Sections)) * SectionHeight
}

func (c *Chunk) section(y int32) (*Section, int, bool) {
	rel := y - c.MinY
	if rel < 0 || rel >= c.Height() {
		return nil, 0, false
	}
	return &c.Sections[rel/SectionHeight], int(rel % SectionHeight), true
}

// Block returns the state at chunk-relative x, z and absolute y. Blocks
// outside the column are air.
func (c *Chunk) Block(x int, y int32, z int) int32 {
	s, sy, ok := c.section(y)
	if !ok {
		return Air
	}
	return s.Block(x, sy, z)
}

// SetBlock sets the state at chunk-relative x, z and absolute y.
func (c *Chunk) SetBlock(x int, y int32, z int, state int32) {
	if s, sy, ok := c.section(y); ok {
		s.SetBlock(x, sy, z, state)
	}
}

// heights returns the height above MinY of the topmost non-air block of
// each column, indexed by z*16+x.
func (c *Chunk) heights() []uint64 {
	out := make([]uint64, SectionWidth*SectionWidth)
	for z := 0; z < SectionWidth; z++ {
		for x := 0; x < SectionWidth; x++ {
			for y := c.Height() - 1; y >= 0; y-- {
				if c.Block(x, c.MinY+y, z) != Air {
					out[z*SectionWidth+x] = uint64(y + 1)
					break
				}
			}
		}
	}
	return out
}

// Heightmaps returns the MOTION_BLOCKING heightmap as network NBT.
func (c *Chunk) Heightmaps() (nbt.Raw, error) {
	longs := packLongs(c.heights(), bitsFor(int(c.Height())+1))
	arr := make(nbt.LongArray, len(longs))
	for i, l := range longs {
		arr[i] = int64(l)
	}
	return nbt.Marshal(nbt.Compound{{Name: "MOTION_BLOCKING", Value: arr}})
}

// SectionData returns the chunk data array of the chunk data packet.
func (c *Chunk) SectionData() []byte {
	e := protocol.NewEncoderWithCap(len(c.Sections) * 16)
	biomes := make([]int32, sectionBiomes)
	for i := range c.Sections {
		s := &c.Sections[i]
		e.WriteInt16(s.nonAir())
		writeContainer(e, s.values(), minBlockBits, maxBlockBits, directBlockBits)
		for j := range biomes {
			biomes[j] = s.Biome
		}
		writeContainer(e, biomes, minBiomeBits, maxBiomeBits, directBiomeBits)
	}
	return e.Bytes()
}

// light returns full sky light for every section plus the one below and
// above the column, and no block light.
func (c *Chunk) light() packet.LightData {
	n := len(c.Sections) + 2
	mask := make([]int64, (n+63)/64)
	for i := 0; i < n; i++ {
		mask[i/64] |= 1 << (i % 64)
	}
	sky := make([][]byte, n)
	full := bytes.Repeat([]byte{0xFF}, lightBytes)
	for i := range sky {
		sky[i] = full
	}
	return packet.LightData{
		SkyLightMask:        mask,
		BlockLightMask:      []int64{},
		EmptySkyLightMask:   []int64{},
		EmptyBlockLightMask: append([]int64(nil), mask...),
		SkyLight:            sky,
		BlockLight:          [][]byte{},
	}
}

// Packet builds the chunk data packet of c.
func (c *Chunk) Packet() (*packet.ChunkData, error) {
	hm, err := c.Heightmaps()
	if err != nil {
		return nil, err
	}
	return &packet.ChunkData{
		ChunkX:        c.Pos.X,
		ChunkZ:        c.Pos.Z,
		Heightmaps:    hm,
		Data:          c.SectionData(),
		BlockEntities: c.BlockEntities,
		Light:         c.light(),
	}, nil
}
