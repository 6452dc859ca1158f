package world

import (
	"context"
	"fmt"
	"log/slog"
)

// Overworld is the dimension new players spawn in.
const Overworld = "minecraft:overworld"

// Provider serves chunk columns to connections.
type Provider interface {
	Chunk(ctx context.Context, dimension string, pos ChunkPos) (*Chunk, error)
}

// Generator creates chunks that are not yet stored.
type Generator interface {
	Generate(pos ChunkPos) *Chunk
}

// Layer is a run of identical blocks in a flat world.
type Layer struct {
	Block int32
	Count int32
}

// Block states shared by the supported versions.
const (
	Stone      int32 = 1
	GrassBlock int32 = 9
	Dirt       int32 = 10
)

// FlatGenerator builds superflat chunks from the bottom of the world up.
type FlatGenerator struct {
	MinY   int32
	Height int32
	Layers []Layer
	Biome  int32
}

// DefaultFlat returns a stone, dirt and grass flat world.
func DefaultFlat() *FlatGenerator {
	return &FlatGenerator{
		MinY:   OverworldMinY,
		Height: OverworldHeight,
		Layers: []Layer{{Stone, 1}, {Dirt, 2}, {GrassBlock, 1}},
	}
}

// SurfaceY returns the first air block above the layers.
func (g *FlatGenerator) SurfaceY() int32 {
	y := g.MinY
	for _, l := range g.Layers {
		y += l.Count
	}
	return y
}

func (g *FlatGenerator) Generate(pos ChunkPos) *Chunk {
	c := NewChunk(pos, g.MinY, g.Height)
	for i := range c.Sections {
		c.Sections[i].Biome = g.Biome
	}
	y := g.MinY
	for _, l := range g.Layers {
		for n := int32(0); n < l.Count; n++ {
			if s, sy, ok := c.section(y); ok && sy == 0 && l.Count-n >= SectionHeight {
				s.Fill(l.Block)
				y += SectionHeight
				n += SectionHeight - 1
				continue
			}
			for z := 0; z < SectionWidth; z++ {
				for x := 0; x < SectionWidth; x++ {
					c.SetBlock(x, y, z, l.Block)
				}
			}
			y++
		}
	}
	return c
}

// StoreProvider loads chunks from a Store and generates missing ones.
// Generated chunks are written back to the store.
type StoreProvider struct {
	store     Store
	generator Generator
	logger    *slog.Logger
}

// NewStoreProvider creates a provider on store. A nil generator serves
// empty chunks for missing columns.
func NewStoreProvider(store Store, gen Generator, logger *slog.Logger) *StoreProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreProvider{
		store:     store,
		generator: gen,
		logger:    logger.With("component", "world"),
	}
}

func (p *StoreProvider) Chunk(ctx context.Context, dimension string, pos ChunkPos) (*Chunk, error) {
	key := ChunkKey(dimension, pos)
	blob, err := p.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if blob != nil {
		c, err := Unmarshal(blob)
		if err != nil {
			return nil, fmt.Errorf("world: chunk %s: %w", key, err)
		}
		return c, nil
	}

	var c *Chunk
	if p.generator != nil {
		c = p.generator.Generate(pos)
	} else {
		c = NewChunk(pos, OverworldMinY, OverworldHeight)
	}
	raw, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, key, raw); err != nil {
		p.logger.Warn("chunk save failed", "key", key, "error", err)
	}
	return c, nil
}

// Store returns the underlying blob store.
func (p *StoreProvider) Store() Store {
	return p.store
}
