package terrain

import (
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Chunk is a group of mesh tiles covering one rectangle of the canonical grid.
type Chunk struct {
	Key                    ChunkKey
	HeightmapTextureRegion grid.Rect
	SubChunks              *grid.Grid[*SubChunk]
}

// SubChunk is a single mesh tile. Mesh is nil until built and is cleared by
// any write that touches HeightmapTextureRegion.
type SubChunk struct {
	Chunk                  *Chunk
	SubCellIndex           grid.Point
	HeightmapTextureRegion grid.Rect
	Mesh                   MeshHandle
}

// HasMesh reports whether the tile currently owns a mesh.
func (s *SubChunk) HasMesh() bool { return s.Mesh != nil }

// Invalidate drops the mesh so the builder regenerates it.
func (s *SubChunk) Invalidate() { s.Mesh = nil }

// HasQuads reports whether the region spans at least one quad.
func (s *SubChunk) HasQuads() bool {
	return s.HeightmapTextureRegion.Width >= 2 && s.HeightmapTextureRegion.Height >= 2
}

// axisRegion computes the [start, end) span of tile index along one axis.
// Neighbouring tiles overlap by one vertex: end is start+size+1, clamped to bound.
func axisRegion(index, size, origin, bound int) (start, length int) {
	start = origin + index*size
	end := min(start+size+1, bound)
	return start, max(end-start, 0)
}

func newChunk(key ChunkKey, s Settings) *Chunk {
	qpc := s.QuadPerChunk()
	hm := s.HeightmapSize()

	x, w := axisRegion(key.X, qpc.X, 0, hm.X)
	y, h := axisRegion(key.Z, qpc.Y, 0, hm.Y)
	c := &Chunk{
		Key:                    key,
		HeightmapTextureRegion: grid.Rect{X: x, Y: y, Width: w, Height: h},
	}

	n := s.MeshPerChunk.AxisLength()
	c.SubChunks = grid.New[*SubChunk](n, n)
	region := c.HeightmapTextureRegion
	for sy := range n {
		for sx := range n {
			subX, subW := axisRegion(sx, s.QuadPerMesh.X, region.X, region.Right())
			subY, subH := axisRegion(sy, s.QuadPerMesh.Y, region.Y, region.Bottom())
			c.SubChunks.Set(sx, sy, &SubChunk{
				Chunk:                  c,
				SubCellIndex:           grid.Point{X: sx, Y: sy},
				HeightmapTextureRegion: grid.Rect{X: subX, Y: subY, Width: subW, Height: subH},
			})
		}
	}
	return c
}

// ForEachSubChunk calls fn for every tile in row-major order.
func (c *Chunk) ForEachSubChunk(fn func(sub *SubChunk)) {
	for _, sub := range c.SubChunks.Cells() {
		fn(sub)
	}
}

// SubChunk returns the tile at a local index.
func (c *Chunk) SubChunk(x, y int) (*SubChunk, bool) {
	if !c.SubChunks.InBounds(x, y) {
		return nil, false
	}
	return c.SubChunks.Get(x, y), true
}
