package layer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/raster"
)

// Brush describes one stamp. Value is a normalized height for height layers
// and a weight for material layers. Erase clears cells instead: sparse layers
// lose the value and dense layers drop to zero.
type Brush struct {
	Radius float32
	Value  float32
	Erase  bool
}

func paintable(l *Layer) error {
	if l.Kind != KindPainted && l.Kind != KindMaterial {
		return fmt.Errorf("%w: %v", ErrNotPaintable, l)
	}
	return nil
}

// Stamp writes a filled disc into a painted or material layer and returns
// the canonical rect it dirtied. The caller commits it.
func (s *Session) Stamp(id ID, center mgl32.Vec2, b Brush) (grid.Rect, error) {
	l, err := s.Layer(id)
	if err != nil {
		return grid.Rect{}, err
	}
	if err := paintable(l); err != nil {
		return grid.Rect{}, err
	}
	return s.stamp(l, center, b), nil
}

func (s *Session) stamp(l *Layer, center mgl32.Vec2, b Brush) grid.Rect {
	bounds := s.Map.HeightmapData.Bounds()
	var dirty grid.Rect
	raster.NewCircleArea(center, b.Radius).Scan(func(x, y int) {
		if !bounds.Contains(x, y) {
			return
		}
		if b.Erase {
			l.Buffer.erase(x-l.StartPosition.X, y-l.StartPosition.Y)
		} else {
			l.Buffer.write(x-l.StartPosition.X, y-l.StartPosition.Y, b.Value, true)
		}
		dirty = dirty.Union(grid.Rect{X: x, Y: y, Width: 1, Height: 1})
	})
	return dirty
}

// Stroke stamps at every cell the segment from..to passes through and
// returns the union of the dirtied rects.
func (s *Session) Stroke(id ID, from, to mgl32.Vec2, b Brush) (grid.Rect, error) {
	l, err := s.Layer(id)
	if err != nil {
		return grid.Rect{}, err
	}
	if err := paintable(l); err != nil {
		return grid.Rect{}, err
	}
	var dirty grid.Rect
	raster.ScanLine(from, to, raster.VisitorFunc(func(x, y int) bool {
		c := mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5}
		dirty = dirty.Union(s.stamp(l, c, b))
		return true
	}))
	return dirty, nil
}

// Raycast walks the canonical heightmap from..to and returns the first cell
// for which hit reports true. Cells outside the map are passed over.
func (s *Session) Raycast(from, to mgl32.Vec2, hit func(x, y int, height float32) bool) (grid.Point, bool) {
	heights := s.Map.HeightmapData
	var found grid.Point
	completed := raster.ScanLine(from, to, raster.VisitorFunc(func(x, y int) bool {
		if !heights.InBounds(x, y) {
			return true
		}
		if hit(x, y, heights.Get(x, y)) {
			found = grid.Point{X: x, Y: y}
			return false
		}
		return true
	}))
	return found, !completed
}
