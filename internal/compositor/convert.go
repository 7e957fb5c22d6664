package compositor

import (
	"github.com/x448/float16"

	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Converter maps a layer cell to a normalized value. ok is false when the
// cell holds no data and must leave the canonical cell untouched.
type Converter[T any] func(v T) (normalized float32, ok bool)

// Float converts float32 cells. Values already in [0, 1] pass through when
// normalized is set; otherwise they are world heights mapped through r.
func Float(r terrain.HeightRange, normalized bool) Converter[float32] {
	if normalized {
		return func(v float32) (float32, bool) { return v, true }
	}
	return func(v float32) (float32, bool) {
		return math.Clamp01(math.InverseLerp(r.Min, r.Max, v)), true
	}
}

// Half converts 16-bit float cells the same way Float does.
func Half(r terrain.HeightRange, normalized bool) Converter[float16.Float16] {
	f := Float(r, normalized)
	return func(v float16.Float16) (float32, bool) {
		return f(v.Float32())
	}
}

// Byte converts unorm bytes.
func Byte() Converter[uint8] {
	return func(v uint8) (float32, bool) { return float32(v) / 255, true }
}

// UShort converts unorm 16-bit values.
func UShort() Converter[uint16] {
	return func(v uint16) (float32, bool) { return float32(v) / 65535, true }
}

// Maskable wraps inner so unset cells are skipped.
func Maskable[T any](inner Converter[T]) Converter[grid.Maskable[T]] {
	return func(v grid.Maskable[T]) (float32, bool) {
		if !v.Valid {
			return 0, false
		}
		return inner(v.Value)
	}
}
