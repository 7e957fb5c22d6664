// Package math provides scalar helpers shared by the grid, raster and compositor code.
package math

import gomath "math"

// Clamp limits v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float32) float32 {
	return Clamp(v, 0, 1)
}

// ClampInt limits v to the inclusive range [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp interpolates between a and b.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// InverseLerp returns where v lies between a and b, unclamped.
// A degenerate range maps everything to 0.
func InverseLerp(a, b, v float32) float32 {
	if a == b {
		return 0
	}
	return (v - a) / (b - a)
}

// FloorToInt rounds toward negative infinity.
func FloorToInt(v float64) int {
	return int(gomath.Floor(v))
}

// CeilToInt rounds toward positive infinity.
func CeilToInt(v float64) int {
	return int(gomath.Ceil(v))
}

// CeilDiv divides two positive integers rounding up.
func CeilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// AbsInt returns |v|.
func AbsInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
