package terrain

import (
	"errors"
	"testing"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

func testSettings(mapX, mapY int) Settings {
	return Settings{
		MapSize:      grid.Size{X: mapX, Y: mapY},
		QuadPerMesh:  grid.Size{X: 4, Y: 4},
		MeshPerChunk: MeshPerChunk2x2,
		MeshQuadSize: 1,
		HeightRange:  HeightRange{Min: 0, Max: 10},
	}
}

func newTestMap(t *testing.T, mapX, mapY int) *Map {
	t.Helper()
	m, err := NewMap(testSettings(mapX, mapY), nil)
	if err != nil {
		t.Fatalf("NewMap failed: %v", err)
	}
	m.Initialize()
	return m
}

func TestChunkPartitionWorkedExample(t *testing.T) {
	m := newTestMap(t, 15, 15)

	if qpc := m.QuadPerChunk(); qpc != (grid.Size{X: 8, Y: 8}) {
		t.Errorf("expected quad per chunk 8x8, got %v", qpc)
	}
	if hm := m.HeightmapData.Size(); hm != (grid.Size{X: 16, Y: 16}) {
		t.Errorf("expected heightmap 16x16, got %v", hm)
	}
	if m.ChunkLen() != 4 {
		t.Fatalf("expected 4 chunks, got %d", m.ChunkLen())
	}

	tests := []struct {
		x, z int
		want grid.Rect
	}{
		{0, 0, grid.Rect{X: 0, Y: 0, Width: 9, Height: 9}},
		{1, 0, grid.Rect{X: 8, Y: 0, Width: 8, Height: 9}},
		{0, 1, grid.Rect{X: 0, Y: 8, Width: 9, Height: 8}},
		{1, 1, grid.Rect{X: 8, Y: 8, Width: 8, Height: 8}},
	}
	for _, tt := range tests {
		c, ok := m.Chunk(tt.x, tt.z)
		if !ok {
			t.Fatalf("chunk (%d,%d) missing", tt.x, tt.z)
		}
		if c.HeightmapTextureRegion != tt.want {
			t.Errorf("chunk (%d,%d): expected region %v, got %v", tt.x, tt.z, tt.want, c.HeightmapTextureRegion)
		}
	}

	// The seam column x=8 is shared by both chunks.
	c0, _ := m.Chunk(0, 0)
	c1, _ := m.Chunk(1, 0)
	if !c0.HeightmapTextureRegion.Contains(8, 0) || !c1.HeightmapTextureRegion.Contains(8, 0) {
		t.Error("expected column 8 in both chunk regions")
	}
}

func TestSubChunkRegions(t *testing.T) {
	m := newTestMap(t, 15, 15)
	c, _ := m.Chunk(1, 0)

	tests := []struct {
		x, y int
		want grid.Rect
	}{
		{0, 0, grid.Rect{X: 8, Y: 0, Width: 5, Height: 5}},
		{1, 0, grid.Rect{X: 12, Y: 0, Width: 4, Height: 5}},
		{0, 1, grid.Rect{X: 8, Y: 4, Width: 5, Height: 5}},
		{1, 1, grid.Rect{X: 12, Y: 4, Width: 4, Height: 5}},
	}
	for _, tt := range tests {
		sub, ok := c.SubChunk(tt.x, tt.y)
		if !ok {
			t.Fatalf("subchunk (%d,%d) missing", tt.x, tt.y)
		}
		if sub.HeightmapTextureRegion != tt.want {
			t.Errorf("subchunk (%d,%d): expected %v, got %v", tt.x, tt.y, tt.want, sub.HeightmapTextureRegion)
		}
		if sub.Chunk != c {
			t.Errorf("subchunk (%d,%d): wrong parent chunk", tt.x, tt.y)
		}
	}

	if _, ok := c.SubChunk(2, 0); ok {
		t.Error("expected no subchunk outside the 2x2 grid")
	}
}

func TestSubChunkPastMapEdgeHasNoQuads(t *testing.T) {
	m := newTestMap(t, 9, 9)
	c, ok := m.Chunk(1, 0)
	if !ok {
		t.Fatal("chunk (1,0) missing")
	}
	if c.HeightmapTextureRegion.Width != 2 {
		t.Errorf("expected last chunk width 2, got %d", c.HeightmapTextureRegion.Width)
	}

	sub, _ := c.SubChunk(1, 0)
	if sub.HeightmapTextureRegion.Width != 0 {
		t.Errorf("expected empty tile width 0, got %d", sub.HeightmapTextureRegion.Width)
	}
	if sub.HasQuads() {
		t.Error("expected tile past the map edge to have no quads")
	}

	built, err := m.BuildMeshes(GridMeshBuilder{})
	if err != nil {
		t.Fatalf("BuildMeshes failed: %v", err)
	}
	if sub.HasMesh() {
		t.Error("expected no mesh for an empty tile")
	}
	// 4 tiles in chunk (0,0), 2 each in (1,0) and (0,1), 1 in (1,1).
	if built != 9 {
		t.Errorf("expected 9 meshes, got %d", built)
	}
}

func TestNewMapRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero map size", func(s *Settings) { s.MapSize.X = 0 }},
		{"zero quad per mesh", func(s *Settings) { s.QuadPerMesh.Y = 0 }},
		{"mesh per chunk too large", func(s *Settings) { s.MeshPerChunk = 9 }},
		{"mesh per chunk zero", func(s *Settings) { s.MeshPerChunk = 0 }},
		{"zero quad size", func(s *Settings) { s.MeshQuadSize = 0 }},
		{"empty height range", func(s *Settings) { s.HeightRange = HeightRange{Min: 5, Max: 5} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(15, 15)
			tt.mutate(&s)
			if _, err := NewMap(s, nil); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestChunksInRegion(t *testing.T) {
	m := newTestMap(t, 15, 15)

	tests := []struct {
		name string
		r    grid.Rect
		want []ChunkKey
	}{
		{"seam column", grid.Rect{X: 8, Y: 0, Width: 1, Height: 1}, []ChunkKey{{0, 0}, {1, 0}}},
		{"interior", grid.Rect{X: 2, Y: 2, Width: 2, Height: 2}, []ChunkKey{{0, 0}}},
		{"last vertex", grid.Rect{X: 15, Y: 15, Width: 1, Height: 1}, []ChunkKey{{1, 1}}},
		{"whole map", grid.Rect{X: 0, Y: 0, Width: 16, Height: 16}, []ChunkKey{{0, 0}, {1, 0}, {0, 1}, {1, 1}}},
		{"outside", grid.Rect{X: 40, Y: 40, Width: 2, Height: 2}, nil},
		{"empty", grid.Rect{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.ChunksInRegion(tt.r)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d chunks, got %d", len(tt.want), len(got))
			}
			for i, c := range got {
				if c.Key != tt.want[i] {
					t.Errorf("chunk %d: expected %v, got %v", i, tt.want[i], c.Key)
				}
			}
		})
	}
}

func TestInvalidateRegion(t *testing.T) {
	m := newTestMap(t, 15, 15)
	built, err := m.BuildMeshes(GridMeshBuilder{})
	if err != nil {
		t.Fatalf("BuildMeshes failed: %v", err)
	}
	if built != 16 {
		t.Fatalf("expected 16 meshes, got %d", built)
	}

	// Vertex (8,8) is a corner shared by four tiles in four chunks.
	if dropped := m.InvalidateRegion(grid.Rect{X: 8, Y: 8, Width: 1, Height: 1}); dropped != 4 {
		t.Errorf("expected 4 meshes dropped, got %d", dropped)
	}

	rebuilt, err := m.BuildMeshes(GridMeshBuilder{})
	if err != nil {
		t.Fatalf("BuildMeshes failed: %v", err)
	}
	if rebuilt != 4 {
		t.Errorf("expected only the 4 invalidated meshes rebuilt, got %d", rebuilt)
	}

	m.InvalidateMeshes()
	for _, c := range m.Chunks() {
		c.ForEachSubChunk(func(sub *SubChunk) {
			if sub.HasMesh() {
				t.Errorf("chunk %v tile %v still has a mesh", c.Key, sub.SubCellIndex)
			}
		})
	}
}

func TestSubChunkNeighbor(t *testing.T) {
	m := newTestMap(t, 15, 15)
	c0, _ := m.Chunk(0, 0)
	sub, _ := c0.SubChunk(1, 1)

	east, ok := m.SubChunkNeighbor(sub, 1, 0)
	if !ok {
		t.Fatal("expected east neighbor across the chunk border")
	}
	if east.Chunk.Key != (ChunkKey{X: 1, Z: 0}) || east.SubCellIndex != (grid.Point{X: 0, Y: 1}) {
		t.Errorf("unexpected east neighbor chunk %v tile %v", east.Chunk.Key, east.SubCellIndex)
	}

	south, ok := m.SubChunkNeighbor(sub, 0, 1)
	if !ok {
		t.Fatal("expected south neighbor across the chunk border")
	}
	if south.Chunk.Key != (ChunkKey{X: 0, Z: 1}) || south.SubCellIndex != (grid.Point{X: 1, Y: 0}) {
		t.Errorf("unexpected south neighbor chunk %v tile %v", south.Chunk.Key, south.SubCellIndex)
	}

	first, _ := c0.SubChunk(0, 0)
	if _, ok := m.SubChunkNeighbor(first, -1, 0); ok {
		t.Error("expected no west neighbor at the map edge")
	}
}

func TestAdjustmentRegionSeams(t *testing.T) {
	m := newTestMap(t, 15, 15)
	c0, _ := m.Chunk(0, 0)
	sub, _ := c0.SubChunk(0, 0)
	east, _ := c0.SubChunk(1, 0)
	south, _ := c0.SubChunk(0, 1)
	all := grid.Rect{X: 0, Y: 0, Width: 16, Height: 16}

	if got := m.AdjustmentRegion(sub, all); got != (grid.Rect{X: 0, Y: 0, Width: 5, Height: 5}) {
		t.Errorf("without neighbor meshes expected full tile, got %v", got)
	}

	east.Mesh = struct{}{}
	if got := m.AdjustmentRegion(sub, all); got != (grid.Rect{X: 0, Y: 0, Width: 4, Height: 5}) {
		t.Errorf("with east mesh expected width 4, got %v", got)
	}

	south.Mesh = struct{}{}
	if got := m.AdjustmentRegion(sub, all); got != (grid.Rect{X: 0, Y: 0, Width: 4, Height: 4}) {
		t.Errorf("with east and south meshes expected 4x4, got %v", got)
	}

	// A region that stops short of the east edge is not trimmed.
	inner := grid.Rect{X: 1, Y: 1, Width: 2, Height: 2}
	if got := m.AdjustmentRegion(sub, inner); got != inner {
		t.Errorf("expected interior region untouched, got %v", got)
	}

	// The seam column alone collapses to nothing when the neighbor owns it.
	seam := grid.Rect{X: 4, Y: 0, Width: 1, Height: 3}
	if got := m.AdjustmentRegion(sub, seam); !got.Empty() {
		t.Errorf("expected seam column owned by the east tile, got %v", got)
	}
}

func TestAdjustmentRegionsCoverDirtyRect(t *testing.T) {
	m := newTestMap(t, 15, 15)
	if _, err := m.BuildMeshes(GridMeshBuilder{}); err != nil {
		t.Fatalf("BuildMeshes failed: %v", err)
	}

	dirty := grid.Rect{X: 2, Y: 2, Width: 10, Height: 10}
	covered := grid.New[int](16, 16)
	for _, adj := range m.AdjustmentRegions(dirty) {
		for y := adj.Region.Y; y < adj.Region.Bottom(); y++ {
			for x := adj.Region.X; x < adj.Region.Right(); x++ {
				covered.Set(x, y, covered.Get(x, y)+1)
			}
		}
	}
	for y := dirty.Y; y < dirty.Bottom(); y++ {
		for x := dirty.X; x < dirty.Right(); x++ {
			if n := covered.Get(x, y); n != 1 {
				t.Errorf("cell (%d,%d): expected single owner, got %d", x, y, n)
			}
		}
	}
}

func TestResizePreservesHeights(t *testing.T) {
	m := newTestMap(t, 15, 15)
	m.HeightmapData.Set(3, 3, 0.5)
	m.HeightmapData.Set(15, 15, 0.25)

	if err := m.Resize(grid.Size{X: 31, Y: 31}); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if got := m.HeightmapData.Get(3, 3); got != 0.5 {
		t.Errorf("expected 0.5 at (3,3), got %f", got)
	}
	if got := m.HeightmapData.Get(15, 15); got != 0.25 {
		t.Errorf("expected 0.25 at (15,15), got %f", got)
	}
	if got := m.HeightmapData.Get(31, 31); got != 0 {
		t.Errorf("expected new cell to be 0, got %f", got)
	}
	if m.ChunkLen() != 16 {
		t.Errorf("expected 16 chunks after resize, got %d", m.ChunkLen())
	}

	if err := m.Resize(grid.Size{X: 0, Y: 4}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("expected ErrInvalidSettings, got %v", err)
	}
	if m.MapSize != (grid.Size{X: 31, Y: 31}) {
		t.Errorf("failed resize changed map size to %v", m.MapSize)
	}
}
