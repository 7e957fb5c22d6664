// Package raster converts continuous brush geometry into exact sets of grid
// cells. Everything here is pure and safe to call from any goroutine.
package raster

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// CircleArea is a filled-disc brush stamp.
type CircleArea struct {
	Center mgl32.Vec2
	Radius float32
}

// NewCircleArea creates a circle stamp.
func NewCircleArea(center mgl32.Vec2, radius float32) CircleArea {
	return CircleArea{Center: center, Radius: radius}
}

// IntRadius returns floor(radius).
func (c CircleArea) IntRadius() int {
	return math.FloorToInt(float64(c.Radius))
}

// IntDiameter returns ceil((radius + 0.5) * 2). The extra half cell is
// intentional: row buffers sized by it always cover the stamp.
func (c CircleArea) IntDiameter() int {
	return math.CeilToInt((float64(c.Radius) + 0.5) * 2)
}

func (c CircleArea) center() (int, int) {
	return math.FloorToInt(float64(c.Center.X())), math.FloorToInt(float64(c.Center.Y()))
}

// Bounds returns the integer bounding box of the stamp. A negative or NaN
// radius yields an empty rect at the center cell.
func (c CircleArea) Bounds() grid.Rect {
	cx, cy := c.center()
	if !(c.Radius >= 0) {
		return grid.Rect{X: cx, Y: cy}
	}
	r := c.IntRadius()
	d := c.IntDiameter()
	return grid.Rect{X: cx - r, Y: cy - r, Width: d, Height: d}
}

// Scan visits every cell of the filled disc using the midpoint circle
// algorithm. Rows are visited top to bottom, cells left to right.
func (c CircleArea) Scan(visit func(x, y int)) {
	if !(c.Radius >= 0) || gomath.IsInf(float64(c.Radius), 0) {
		return
	}
	cx, cy := c.center()
	r := c.IntRadius()

	halfWidths := c.halfWidths()
	for i, hw := range halfWidths {
		// Rows the midpoint walk never reached keep -1 and are skipped, not
		// emitted as single-cell rows.
		if hw < 0 {
			continue
		}
		y := cy - r + i
		for x := cx - hw; x <= cx+hw; x++ {
			visit(x, y)
		}
	}
}

// Cells returns the visited cells in scan order.
func (c CircleArea) Cells() []grid.Point {
	var cells []grid.Point
	c.Scan(func(x, y int) {
		cells = append(cells, grid.Point{X: x, Y: y})
	})
	return cells
}

// halfWidths builds the per-row half-width table. Index i is the row at
// offset i-intRadius from the center; -1 marks rows the disc never reaches.
func (c CircleArea) halfWidths() []int {
	r := c.IntRadius()
	table := make([]int, max(c.IntDiameter(), 2*r+1))
	for i := range table {
		table[i] = -1
	}
	record := func(row, hw int) {
		i := r + row
		if hw > table[i] {
			table[i] = hw
		}
	}

	x, y := 0, r
	d := 1 - r
	for x <= y {
		record(y, x)
		record(-y, x)
		record(x, y)
		record(-x, y)
		if d < 0 {
			d += 2*x + 1
		} else {
			d += 2*(x-y) + 1
			y--
		}
		x++
	}
	return table
}
