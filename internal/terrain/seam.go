package terrain

import (
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Adjustment is the part of a dirty region a single tile is responsible for.
type Adjustment struct {
	SubChunk *SubChunk
	Region   grid.Rect
}

// AdjustmentRegion clips r to sub's region and drops the shared east column
// and south row when the neighbour on that side owns a mesh. A tile owns its
// west and north edges; the neighbour owns the edge they share.
func (m *Map) AdjustmentRegion(sub *SubChunk, r grid.Rect) grid.Rect {
	own := sub.HeightmapTextureRegion
	adj := r.Intersect(own)
	if adj.Empty() {
		return grid.Rect{}
	}
	if adj.Right() == own.Right() {
		if east, ok := m.SubChunkNeighbor(sub, 1, 0); ok && east.HasMesh() {
			adj.Width--
		}
	}
	if adj.Bottom() == own.Bottom() {
		if south, ok := m.SubChunkNeighbor(sub, 0, 1); ok && south.HasMesh() {
			adj.Height--
		}
	}
	if adj.Empty() {
		return grid.Rect{}
	}
	return adj
}

// AdjustmentRegions splits a dirty region into per-tile adjustments. Seams
// are resolved against the current mesh state, so call this before
// invalidating the region.
func (m *Map) AdjustmentRegions(dirty grid.Rect) []Adjustment {
	var out []Adjustment
	for _, sub := range m.SubChunksInRegion(dirty) {
		if adj := m.AdjustmentRegion(sub, dirty); !adj.Empty() {
			out = append(out, Adjustment{SubChunk: sub, Region: adj})
		}
	}
	return out
}
