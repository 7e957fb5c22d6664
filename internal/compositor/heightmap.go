package compositor

import (
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// UpdateHeightmapRegion blends local, anchored at start, into canonical.
// Cells the converter rejects are skipped. Every changed canonical cell is
// reported to rec when it is non-nil. It returns the clipped region in
// canonical coordinates.
func UpdateHeightmapRegion[T any](
	local *grid.Grid[T],
	start grid.Point,
	canonical *grid.Grid[float32],
	blend BlendType,
	conv Converter[T],
	rec Recorder[float32],
) grid.Rect {
	return updateHeightmap(local, start, canonical, blend, conv, rec, nil)
}

// UpdateHeightmapRegionClipped is UpdateHeightmapRegion limited to clip,
// given in canonical coordinates.
func UpdateHeightmapRegionClipped[T any](
	local *grid.Grid[T],
	start grid.Point,
	canonical *grid.Grid[float32],
	blend BlendType,
	conv Converter[T],
	rec Recorder[float32],
	clip grid.Rect,
) grid.Rect {
	return updateHeightmap(local, start, canonical, blend, conv, rec, &clip)
}

func updateHeightmap[T any](
	local *grid.Grid[T],
	start grid.Point,
	canonical *grid.Grid[float32],
	blend BlendType,
	conv Converter[T],
	rec Recorder[float32],
	clip *grid.Rect,
) grid.Rect {
	if local == nil || canonical == nil {
		return grid.Rect{}
	}
	region := writableRegion(start, local.Size(), canonical.Size(), clip)
	if region.Empty() {
		return grid.Rect{}
	}

	cells := canonical.Cells()
	for y := region.Y; y < region.Bottom(); y++ {
		for x := region.X; x < region.Right(); x++ {
			v, ok := conv(local.Get(x-start.X, y-start.Y))
			if !ok {
				continue
			}
			i := canonical.Index(x, y)
			old := cells[i]
			next := blend.Blend(v, old)
			if next == old {
				continue
			}
			cells[i] = next
			if rec != nil {
				rec.RecordChange(i, old, next)
			}
		}
	}
	return region
}
