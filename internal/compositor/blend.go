// Package compositor merges layer-local buffers into the canonical heightmap
// and material weight grids.
//
// Layers are applied one after another in registration order, and every call
// reads the canonical value left behind by the previous layer. Nothing here
// locks; callers apply results on the goroutine that owns the grids.
package compositor

import (
	"fmt"
	"strings"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// BlendType selects how a layer value combines with the canonical value.
type BlendType int

const (
	Minimum BlendType = iota
	Maximum
	Average
)

var blendNames = map[BlendType]string{
	Minimum: "minimum",
	Maximum: "maximum",
	Average: "average",
}

func (b BlendType) String() string {
	if name, ok := blendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("BlendType(%d)", int(b))
}

// ParseBlendType parses a case-insensitive blend name.
func ParseBlendType(s string) (BlendType, error) {
	for b, name := range blendNames {
		if strings.EqualFold(s, name) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown blend type %q", s)
}

// Blend combines a layer value with the current canonical value.
// Average is a running pairwise mean, so the result depends on layer order.
func (b BlendType) Blend(layer, current float32) float32 {
	switch b {
	case Minimum:
		return min(layer, current)
	case Maximum:
		return max(layer, current)
	case Average:
		return math.Clamp01((layer + current) * 0.5)
	default:
		return current
	}
}

// CalculateWritableRegion clips the rectangle a buffer of size covers at
// start against a canonical grid of the given bounds. A buffer fully outside
// yields an empty rect.
func CalculateWritableRegion(start grid.Point, size, bounds grid.Size) grid.Rect {
	x0 := max(start.X, 0)
	y0 := max(start.Y, 0)
	x1 := min(start.X+size.X, bounds.X)
	y1 := min(start.Y+size.Y, bounds.Y)
	if x1 <= x0 || y1 <= y0 {
		return grid.Rect{}
	}
	return grid.RectFromBounds(x0, y0, x1, y1)
}

// writableRegion clips a layer buffer against the canonical bounds and an
// optional clip rect in canonical coordinates.
func writableRegion(start grid.Point, size, bounds grid.Size, clip *grid.Rect) grid.Rect {
	r := CalculateWritableRegion(start, size, bounds)
	if clip != nil {
		r = r.Intersect(*clip)
	}
	return r
}
