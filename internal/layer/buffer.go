package layer

import (
	gomath "math"

	"github.com/x448/float16"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Buffer is a layer-local grid of one of the supported element types. The
// set of implementations is closed; use the New*Buffer constructors and
// Cells to reach the typed grid.
type Buffer interface {
	Size() grid.Size
	// HasData reports whether any cell carries a value.
	HasData() bool

	grow(size grid.Size)
	write(x, y int, v float32, ok bool)
	erase(x, y int)
	composeHeight(start grid.Point, canonical *grid.Grid[float32], blend compositor.BlendType, clip grid.Rect) grid.Rect
	composeWeight(material uint8, start grid.Point, state *compositor.MaterialState, clip grid.Rect) grid.Rect
}

type buffer[T any] struct {
	cells  *grid.Grid[T]
	decode compositor.Converter[T]
	// encode converts a normalized value back into T. It returns false when
	// the cell must be left alone.
	encode  func(v float32, ok bool) (T, bool)
	present func(T) bool
}

// Cells returns the typed grid behind b.
func Cells[T any](b Buffer) (*grid.Grid[T], bool) {
	tb, ok := b.(*buffer[T])
	if !ok {
		return nil, false
	}
	return tb.cells, true
}

func (b *buffer[T]) Size() grid.Size { return b.cells.Size() }

func (b *buffer[T]) HasData() bool { return b.cells.Any(b.present) }

// grow never shrinks; painted data outside the map stays put until the map
// grows back over it.
func (b *buffer[T]) grow(size grid.Size) {
	cur := b.cells.Size()
	b.cells.Resize(max(cur.X, size.X), max(cur.Y, size.Y))
}

func (b *buffer[T]) write(x, y int, v float32, ok bool) {
	if !b.cells.InBounds(x, y) {
		return
	}
	if cell, write := b.encode(v, ok); write {
		b.cells.Set(x, y, cell)
	}
}

// erase resets a cell to the zero T: unset for maskable grids, zero weight
// or height for dense ones.
func (b *buffer[T]) erase(x, y int) {
	if !b.cells.InBounds(x, y) {
		return
	}
	var zero T
	b.cells.Set(x, y, zero)
}

func (b *buffer[T]) composeHeight(start grid.Point, canonical *grid.Grid[float32], blend compositor.BlendType, clip grid.Rect) grid.Rect {
	return compositor.UpdateHeightmapRegionClipped(b.cells, start, canonical, blend, b.decode, nil, clip)
}

func (b *buffer[T]) composeWeight(material uint8, start grid.Point, state *compositor.MaterialState, clip grid.Rect) grid.Rect {
	return compositor.UpdateMaterialWeightMapRegionClipped(b.cells, material, start, state, b.decode, nil, clip)
}

func toRange(r terrain.HeightRange, normalized bool, v float32) float32 {
	if normalized {
		return math.Clamp01(v)
	}
	return r.ToWorld(math.Clamp01(v))
}

// NewFloatBuffer wraps a float32 grid. When normalized is false the cells
// hold world heights in r.
func NewFloatBuffer(g *grid.Grid[float32], r terrain.HeightRange, normalized bool) Buffer {
	return &buffer[float32]{
		cells:  g,
		decode: compositor.Float(r, normalized),
		encode: func(v float32, ok bool) (float32, bool) {
			return toRange(r, normalized, v), ok
		},
		present: func(float32) bool { return true },
	}
}

// NewHalfBuffer wraps a 16-bit float grid.
func NewHalfBuffer(g *grid.Grid[float16.Float16], r terrain.HeightRange, normalized bool) Buffer {
	return &buffer[float16.Float16]{
		cells:  g,
		decode: compositor.Half(r, normalized),
		encode: func(v float32, ok bool) (float16.Float16, bool) {
			return float16.Fromfloat32(toRange(r, normalized, v)), ok
		},
		present: func(v float16.Float16) bool { return v.Float32() != 0 },
	}
}

// NewByteBuffer wraps a unorm byte grid.
func NewByteBuffer(g *grid.Grid[uint8]) Buffer {
	return &buffer[uint8]{
		cells:  g,
		decode: compositor.Byte(),
		encode: func(v float32, ok bool) (uint8, bool) {
			return uint8(gomath.Round(float64(math.Clamp01(v)) * 255)), ok
		},
		present: func(v uint8) bool { return v != 0 },
	}
}

// NewUShortBuffer wraps a unorm 16-bit grid.
func NewUShortBuffer(g *grid.Grid[uint16]) Buffer {
	return &buffer[uint16]{
		cells:  g,
		decode: compositor.UShort(),
		encode: func(v float32, ok bool) (uint16, bool) {
			return uint16(gomath.Round(float64(math.Clamp01(v)) * 65535)), ok
		},
		present: func(v uint16) bool { return v != 0 },
	}
}

// NewMaskableFloatBuffer wraps a sparse float32 grid. Writing "no value"
// clears the cell.
func NewMaskableFloatBuffer(g *grid.Grid[grid.Maskable[float32]], r terrain.HeightRange, normalized bool) Buffer {
	return &buffer[grid.Maskable[float32]]{
		cells:  g,
		decode: compositor.Maskable(compositor.Float(r, normalized)),
		encode: func(v float32, ok bool) (grid.Maskable[float32], bool) {
			if !ok {
				return grid.Maskable[float32]{}, true
			}
			return grid.Some(toRange(r, normalized, v)), true
		},
		present: grid.IsSet[float32],
	}
}

// NewMaskableHalfBuffer wraps a sparse 16-bit float grid, the storage used by
// painted layers.
func NewMaskableHalfBuffer(g *grid.Grid[grid.Maskable[float16.Float16]], r terrain.HeightRange, normalized bool) Buffer {
	return &buffer[grid.Maskable[float16.Float16]]{
		cells:  g,
		decode: compositor.Maskable(compositor.Half(r, normalized)),
		encode: func(v float32, ok bool) (grid.Maskable[float16.Float16], bool) {
			if !ok {
				return grid.Maskable[float16.Float16]{}, true
			}
			return grid.Some(float16.Fromfloat32(toRange(r, normalized, v))), true
		},
		present: grid.IsSet[float16.Float16],
	}
}
