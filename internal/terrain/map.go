package terrain

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Map holds the canonical heightmap and the chunk registry.
type Map struct {
	Settings

	// HeightmapData holds normalized heights, MapSize+1 vertices per axis.
	HeightmapData *grid.Grid[float32]

	chunks map[ChunkKey]*Chunk
	log    *zap.Logger
}

// NewMap validates settings and allocates the canonical heightmap.
// Call Initialize to build the chunk registry.
func NewMap(s Settings, log *zap.Logger) (*Map, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	hm := s.HeightmapSize()
	return &Map{
		Settings:      s,
		HeightmapData: grid.New[float32](hm.X, hm.Y),
		chunks:        make(map[ChunkKey]*Chunk),
		log:           log,
	}, nil
}

// Initialize builds the chunk registry.
func (m *Map) Initialize() {
	m.RebuildChunks()
}

// RebuildChunks clears and regenerates every chunk and tile. All meshes are lost.
func (m *Map) RebuildChunks() {
	m.chunks = make(map[ChunkKey]*Chunk)
	count := m.ChunkCount()
	for z := range count.Y {
		for x := range count.X {
			key := ChunkKey{X: x, Z: z}
			m.chunks[key] = newChunk(key, m.Settings)
		}
	}
	m.log.Debug("chunks rebuilt",
		zap.Int("chunks_x", count.X),
		zap.Int("chunks_z", count.Y),
		zap.Stringer("mesh_per_chunk", m.MeshPerChunk))
}

// InvalidateMeshes drops every tile's mesh without touching the partition.
func (m *Map) InvalidateMeshes() {
	for _, c := range m.chunks {
		c.ForEachSubChunk(func(sub *SubChunk) { sub.Invalidate() })
	}
}

// Resize changes the map size in quads. Heights in the overlapping top-left
// area are kept and the chunk registry is rebuilt.
func (m *Map) Resize(mapSize grid.Size) error {
	next := m.Settings
	next.MapSize = mapSize
	if err := next.Validate(); err != nil {
		return fmt.Errorf("resizing map: %w", err)
	}
	m.Settings = next
	hm := next.HeightmapSize()
	m.HeightmapData.Resize(hm.X, hm.Y)
	m.RebuildChunks()
	m.log.Info("map resized", zap.Int("size_x", mapSize.X), zap.Int("size_y", mapSize.Y))
	return nil
}

// Chunk looks up a chunk by index.
func (m *Map) Chunk(x, z int) (*Chunk, bool) {
	c, ok := m.chunks[ChunkKey{X: x, Z: z}]
	return c, ok
}

// ChunkLen returns the number of registered chunks.
func (m *Map) ChunkLen() int { return len(m.chunks) }

// Chunks returns every chunk ordered by Z then X.
func (m *Map) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Z != out[j].Key.Z {
			return out[i].Key.Z < out[j].Key.Z
		}
		return out[i].Key.X < out[j].Key.X
	})
	return out
}

// ChunksInRegion returns the chunks whose region overlaps r, ordered by Z
// then X. Indices that are no longer registered are skipped.
func (m *Map) ChunksInRegion(r grid.Rect) []*Chunk {
	if r.Empty() {
		return nil
	}
	qpc := m.QuadPerChunk()
	count := m.ChunkCount()
	// A vertex on a chunk's west edge is also the east edge of the previous chunk.
	x0 := max(math.FloorDiv(r.X-1, qpc.X), 0)
	x1 := min(math.FloorDiv(r.Right()-1, qpc.X), count.X-1)
	z0 := max(math.FloorDiv(r.Y-1, qpc.Y), 0)
	z1 := min(math.FloorDiv(r.Bottom()-1, qpc.Y), count.Y-1)

	var out []*Chunk
	for z := z0; z <= z1; z++ {
		for x := x0; x <= x1; x++ {
			c, ok := m.Chunk(x, z)
			if !ok {
				m.log.Debug("skipping missing chunk", zap.Int("x", x), zap.Int("z", z))
				continue
			}
			if c.HeightmapTextureRegion.Overlaps(r) {
				out = append(out, c)
			}
		}
	}
	return out
}

// SubChunksInRegion returns every tile whose region overlaps r.
func (m *Map) SubChunksInRegion(r grid.Rect) []*SubChunk {
	var out []*SubChunk
	for _, c := range m.ChunksInRegion(r) {
		c.ForEachSubChunk(func(sub *SubChunk) {
			if sub.HeightmapTextureRegion.Overlaps(r) {
				out = append(out, sub)
			}
		})
	}
	return out
}

// InvalidateRegion drops the mesh of every tile overlapping r and returns
// how many meshes were dropped.
func (m *Map) InvalidateRegion(r grid.Rect) int {
	dropped := 0
	for _, sub := range m.SubChunksInRegion(r) {
		if sub.HasMesh() {
			dropped++
		}
		sub.Invalidate()
	}
	return dropped
}

// SubChunkNeighbor resolves the tile at offset (dx, dy) from sub, crossing
// chunk borders when needed.
func (m *Map) SubChunkNeighbor(sub *SubChunk, dx, dy int) (*SubChunk, bool) {
	n := m.MeshPerChunk.AxisLength()
	gx := sub.Chunk.Key.X*n + sub.SubCellIndex.X + dx
	gy := sub.Chunk.Key.Z*n + sub.SubCellIndex.Y + dy
	cx, cz := math.FloorDiv(gx, n), math.FloorDiv(gy, n)
	c, ok := m.Chunk(cx, cz)
	if !ok {
		return nil, false
	}
	return c.SubChunk(gx-cx*n, gy-cz*n)
}

// BuildMeshes builds a mesh for every tile that has quads but no mesh.
// It returns how many meshes were built.
func (m *Map) BuildMeshes(builder MeshBuilder) (int, error) {
	built := 0
	for _, c := range m.Chunks() {
		for _, sub := range c.SubChunks.Cells() {
			if sub.HasMesh() || !sub.HasQuads() {
				continue
			}
			mesh, err := builder.BuildMesh(m, sub)
			if err != nil {
				return built, fmt.Errorf("building mesh for chunk %v tile %v: %w", c.Key, sub.SubCellIndex, err)
			}
			sub.Mesh = mesh
			built++
		}
	}
	if built > 0 {
		m.log.Debug("meshes built", zap.Int("count", built))
	}
	return built, nil
}
