package world

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

func TestBitsFor(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {16, 4}, {17, 5}, {385, 9},
	}
	for _, tt := range tests {
		if got := bitsFor(tt.n); got != tt.want {
			t.Errorf("bitsFor(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPackLongs(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		count     int
		wantLongs int
	}{
		{"4 bits", 4, 4096, 256},
		{"5 bits", 5, 4096, 342},
		{"9 bits heightmap", 9, 256, 37},
		{"15 bits direct", 15, 4096, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]uint64, tt.count)
			for i := range entries {
				entries[i] = uint64(i*7) & (1<<tt.width - 1)
			}
			longs := packLongs(entries, tt.width)
			if len(longs) != tt.wantLongs {
				t.Fatalf("got %d longs, want %d", len(longs), tt.wantLongs)
			}
			back, err := unpackLongs(longs, tt.width, tt.count)
			if err != nil {
				t.Fatalf("unpackLongs: %v", err)
			}
			for i := range entries {
				if back[i] != entries[i] {
					t.Fatalf("entry %d = %d, want %d", i, back[i], entries[i])
				}
			}
		})
	}
}

func TestUnpackLongsErrors(t *testing.T) {
	if _, err := unpackLongs(make([]uint64, 10), 4, 4096); err == nil {
		t.Error("short data accepted")
	}
	if _, err := unpackLongs(make([]uint64, 10), 0, 1); err == nil {
		t.Error("zero width accepted")
	}
}

func TestWriteContainerSingleValue(t *testing.T) {
	e := protocol.NewEncoder()
	values := make([]int32, sectionBlocks)
	for i := range values {
		values[i] = Stone
	}
	writeContainer(e, values, minBlockBits, maxBlockBits, directBlockBits)
	if want := []byte{0x00, 0x01, 0x00}; !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % X, want % X", e.Bytes(), want)
	}
}

func TestWriteContainerIndirect(t *testing.T) {
	e := protocol.NewEncoder()
	values := make([]int32, sectionBlocks)
	values[0] = Dirt
	writeContainer(e, values, minBlockBits, maxBlockBits, directBlockBits)

	d := protocol.NewDecoder(e.Bytes())
	width, _ := d.ReadByte()
	if width != minBlockBits {
		t.Fatalf("width = %d, want %d", width, minBlockBits)
	}
	n, _ := d.ReadVarInt()
	first, _ := d.ReadVarInt()
	second, _ := d.ReadVarInt()
	if n != 2 || first != Dirt || second != Air {
		t.Fatalf("palette = %d [%d %d], want 2 [%d %d]", n, first, second, Dirt, Air)
	}
	longs, _ := d.ReadVarInt()
	if longs != 256 {
		t.Fatalf("data length = %d, want 256", longs)
	}
	if d.Remaining() != 256*8 {
		t.Fatalf("remaining = %d, want %d", d.Remaining(), 256*8)
	}
}

func TestWriteContainerDirect(t *testing.T) {
	e := protocol.NewEncoder()
	values := make([]int32, sectionBlocks)
	for i := range values {
		values[i] = int32(i % 300)
	}
	writeContainer(e, values, minBlockBits, maxBlockBits, directBlockBits)
	d := protocol.NewDecoder(e.Bytes())
	width, _ := d.ReadByte()
	if width != directBlockBits {
		t.Fatalf("width = %d, want %d", width, directBlockBits)
	}
	longs, _ := d.ReadVarInt()
	if longs != 1024 {
		t.Fatalf("data length = %d, want 1024", longs)
	}
}

func TestSectionCopyOnWrite(t *testing.T) {
	var s Section
	s.Fill(Stone)
	s.SetBlock(1, 2, 3, Stone)
	if s.blocks != nil {
		t.Fatal("setting the fill value allocated storage")
	}
	s.SetBlock(1, 2, 3, Dirt)
	if got := s.Block(1, 2, 3); got != Dirt {
		t.Errorf("Block = %d, want %d", got, Dirt)
	}
	if got := s.Block(0, 0, 0); got != Stone {
		t.Errorf("Block = %d, want %d", got, Stone)
	}
	if got := s.nonAir(); got != sectionBlocks {
		t.Errorf("nonAir = %d, want %d", got, sectionBlocks)
	}
}

func TestFlatGenerator(t *testing.T) {
	g := DefaultFlat()
	c := g.Generate(ChunkPos{X: 2, Z: -3})

	if c.Height() != OverworldHeight {
		t.Fatalf("height = %d", c.Height())
	}
	tests := []struct {
		y    int32
		want int32
	}{
		{-64, Stone},
		{-63, Dirt},
		{-62, Dirt},
		{-61, GrassBlock},
		{-60, Air},
		{100, Air},
		{-65, Air},
	}
	for _, tt := range tests {
		if got := c.Block(5, tt.y, 9); got != tt.want {
			t.Errorf("Block(5, %d, 9) = %d, want %d", tt.y, got, tt.want)
		}
	}
	if got := g.SurfaceY(); got != -60 {
		t.Errorf("SurfaceY = %d, want -60", got)
	}
	for _, h := range c.heights() {
		if h != 4 {
			t.Fatalf("height = %d, want 4", h)
		}
	}
}

func TestFlatGeneratorFullSections(t *testing.T) {
	g := &FlatGenerator{MinY: 0, Height: 64, Layers: []Layer{{Stone, 20}, {Dirt, 1}}}
	c := g.Generate(ChunkPos{})
	if c.Sections[0].blocks != nil {
		t.Error("fully covered section stored per-block data")
	}
	if got := c.Block(0, 19, 0); got != Stone {
		t.Errorf("y=19: %d, want stone", got)
	}
	if got := c.Block(0, 20, 0); got != Dirt {
		t.Errorf("y=20: %d, want dirt", got)
	}
}

func TestChunkPacket(t *testing.T) {
	c := DefaultFlat().Generate(ChunkPos{X: 1, Z: 1})
	p, err := c.Packet()
	if err != nil {
		t.Fatal(err)
	}
	if p.ChunkX != 1 || p.ChunkZ != 1 {
		t.Errorf("position = %d,%d", p.ChunkX, p.ChunkZ)
	}
	if len(p.Light.SkyLight) != len(c.Sections)+2 {
		t.Errorf("sky light arrays = %d, want %d", len(p.Light.SkyLight), len(c.Sections)+2)
	}

	hm, _, err := nbt.Unmarshal(p.Heightmaps)
	if err != nil {
		t.Fatal(err)
	}
	mb, ok := hm.(nbt.Compound).Get("MOTION_BLOCKING")
	if !ok {
		t.Fatal("MOTION_BLOCKING missing")
	}
	if n := len(mb.(nbt.LongArray)); n != 37 {
		t.Errorf("heightmap longs = %d, want 37", n)
	}

	for _, v := range packet.SupportedVersions() {
		tab, err := packet.Default().Resolve(int32(v))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tab.Marshal(p); err != nil {
			t.Errorf("%v: %v", v, err)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := DefaultFlat().Generate(ChunkPos{X: -7, Z: 12})
	c.SetBlock(3, 70, 4, Stone)
	c.Sections[5].Biome = 2

	raw, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pos != c.Pos || got.MinY != c.MinY || len(got.Sections) != len(c.Sections) {
		t.Fatalf("header = %v %d %d, want %v %d %d", got.Pos, got.MinY, len(got.Sections), c.Pos, c.MinY, len(c.Sections))
	}
	if !bytes.Equal(got.SectionData(), c.SectionData()) {
		t.Error("section data differs after round trip")
	}
	if got.Block(3, 70, 4) != Stone {
		t.Error("custom block lost")
	}
	if got.Sections[5].Biome != 2 {
		t.Error("biome lost")
	}
}

func TestUnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		v    nbt.Value
	}{
		{"not a compound", nbt.Int(1)},
		{"no sections", nbt.Compound{{Name: "xPos", Value: nbt.Int(0)}, {Name: "zPos", Value: nbt.Int(0)}, {Name: "yPos", Value: nbt.Int(-4)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := nbt.Marshal(tt.v)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Unmarshal(raw); !errors.Is(err, ErrBadChunk) {
				t.Errorf("err = %v, want ErrBadChunk", err)
			}
		})
	}
	if _, err := Unmarshal([]byte{0x0A, 0x01}); !errors.Is(err, ErrBadChunk) {
		t.Errorf("truncated blob: err = %v", err)
	}
}

func TestChunkKey(t *testing.T) {
	if got := ChunkKey(Overworld, ChunkPos{X: 3, Z: -2}); got != "minecraft/overworld/c.3.-2.nbt" {
		t.Errorf("ChunkKey = %q", got)
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("Load(missing) = %v, %v; want nil, nil", got, err)
	}
	if err := s.Save(ctx, "a", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "a", []byte("two")); err != nil {
		t.Fatal(err)
	}
	got, err = s.Load(ctx, "a")
	if err != nil || string(got) != "two" {
		t.Fatalf("Load(a) = %q, %v; want two", got, err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	got, err = s.Load(ctx, "a")
	if err != nil || got != nil {
		t.Fatalf("Load after delete = %q, %v", got, err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)

	buf := []byte("abc")
	_ = s.Save(context.Background(), "k", buf)
	buf[0] = 'x'
	got, _ := s.Load(context.Background(), "k")
	if string(got) != "abc" {
		t.Errorf("store aliased caller buffer: %q", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
	_ = s.Close()
	if _, err := s.Load(context.Background(), "k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load after Close: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), "k", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save after Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")
	s, err := OpenSQLite(path, WithTableName("regions"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), "k", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path, WithTableName("regions"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Load(context.Background(), "k")
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Load = %v, %v", got, err)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "worlds", "survival")
	testStore(t, s)

	_ = s.Save(context.Background(), "minecraft/overworld/c.0.0.nbt", []byte{1})
	if _, ok := fake.objects["worlds/survival/minecraft/overworld/c.0.0.nbt"]; !ok {
		t.Errorf("object keys = %v", fake.objects)
	}
}

func TestS3StoreSizeLimit(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "b", "")
	s.maxSize = 4
	_ = s.Save(context.Background(), "big", []byte("12345"))
	if _, err := s.Load(context.Background(), "big"); err == nil {
		t.Error("oversized object accepted")
	}
}

func TestStoreProvider(t *testing.T) {
	store := NewMemoryStore()
	p := NewStoreProvider(store, DefaultFlat(), nil)
	ctx := context.Background()

	c, err := p.Chunk(ctx, Overworld, ChunkPos{X: 4, Z: 5})
	if err != nil {
		t.Fatal(err)
	}
	if c.Block(0, -61, 0) != GrassBlock {
		t.Error("generated chunk is not flat")
	}
	if store.Len() != 1 {
		t.Fatalf("store holds %d chunks, want 1", store.Len())
	}

	c.SetBlock(0, 0, 0, Stone)
	raw, _ := Marshal(c)
	_ = store.Save(ctx, ChunkKey(Overworld, c.Pos), raw)

	again, err := p.Chunk(ctx, Overworld, ChunkPos{X: 4, Z: 5})
	if err != nil {
		t.Fatal(err)
	}
	if again.Block(0, 0, 0) != Stone {
		t.Error("stored chunk was not loaded")
	}
}

func TestStoreProviderBadBlob(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), ChunkKey(Overworld, ChunkPos{}), []byte{0xFF})
	p := NewStoreProvider(store, nil, nil)
	if _, err := p.Chunk(context.Background(), Overworld, ChunkPos{}); !errors.Is(err, ErrBadChunk) {
		t.Errorf("err = %v, want ErrBadChunk", err)
	}
}

func BenchmarkFlatChunkPacket(b *testing.B) {
	g := DefaultFlat()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c := g.Generate(ChunkPos{X: int32(i)})
		if _, err := c.Packet(); err != nil {
			b.Fatal(err)
		}
	}
}
