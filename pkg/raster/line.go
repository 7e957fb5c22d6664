package raster

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Visitor receives grid cells from ScanLine. Returning false stops the scan.
type Visitor interface {
	Visit(x, y int) bool
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(x, y int) bool

// Visit calls f(x, y).
func (f VisitorFunc) Visit(x, y int) bool { return f(x, y) }

// LineCellCount returns how many cells ScanLine visits between p0 and p1.
func LineCellCount(p0, p1 mgl32.Vec2) int {
	return 1 +
		math.AbsInt(math.FloorToInt(float64(p1.X()))-math.FloorToInt(float64(p0.X()))) +
		math.AbsInt(math.FloorToInt(float64(p1.Y()))-math.FloorToInt(float64(p0.Y())))
}

// ScanLine visits, in order from p0 to p1, every grid cell the segment passes
// through. It reports whether the whole segment was visited.
//
// A segment crossing a cell corner exactly steps in X first whichever way it
// runs, so reversing such a segment does not mirror the cell sequence.
func ScanLine(p0, p1 mgl32.Vec2, v Visitor) bool {
	x0, y0 := float64(p0.X()), float64(p0.Y())
	x1, y1 := float64(p1.X()), float64(p1.Y())
	if gomath.IsNaN(x0+y0+x1+y1) || gomath.IsInf(x0+y0+x1+y1, 0) {
		return true
	}

	dx := gomath.Abs(x1 - x0)
	dy := gomath.Abs(y1 - y0)

	x := math.FloorToInt(x0)
	y := math.FloorToInt(y0)

	n := 1
	var xInc, yInc int
	var errAcc float64

	switch {
	case dx == 0:
		xInc = 0
		errAcc = gomath.Inf(1)
	case x1 > x0:
		xInc = 1
		n += math.FloorToInt(x1) - x
		errAcc = (gomath.Floor(x0) + 1 - x0) * dy
	default:
		xInc = -1
		n += x - math.FloorToInt(x1)
		errAcc = (x0 - gomath.Floor(x0)) * dy
	}

	switch {
	case dy == 0:
		yInc = 0
		errAcc -= gomath.Inf(1)
	case y1 > y0:
		yInc = 1
		n += math.FloorToInt(y1) - y
		errAcc -= (gomath.Floor(y0) + 1 - y0) * dx
	default:
		yInc = -1
		n += y - math.FloorToInt(y1)
		errAcc -= (y0 - gomath.Floor(y0)) * dx
	}

	for ; n > 0; n-- {
		if !v.Visit(x, y) {
			return false
		}
		if errAcc > 0 {
			y += yInc
			errAcc -= dx
		} else {
			x += xInc
			errAcc += dy
		}
	}
	return true
}

// LineCells returns the cells ScanLine visits, in order.
func LineCells(p0, p1 mgl32.Vec2) []grid.Point {
	cells := make([]grid.Point, 0, LineCellCount(p0, p1))
	ScanLine(p0, p1, VisitorFunc(func(x, y int) bool {
		cells = append(cells, grid.Point{X: x, Y: y})
		return true
	}))
	return cells
}
