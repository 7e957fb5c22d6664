package grid

import "fmt"

// Point is an integer grid coordinate.
type Point struct {
	X, Y int
}

// Add returns p offset by o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p minus o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Size is a grid extent in cells.
type Size struct {
	X, Y int
}

// Area returns the number of cells.
func (s Size) Area() int {
	if s.X <= 0 || s.Y <= 0 {
		return 0
	}
	return s.X * s.Y
}

// Rect is an axis-aligned cell rectangle. Right and Bottom are exclusive.
type Rect struct {
	X, Y          int
	Width, Height int
}

// RectFromBounds builds a rect from a start and an exclusive end corner.
func RectFromBounds(x0, y0, x1, y1 int) Rect {
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Min returns the top-left corner.
func (r Rect) Min() Point { return Point{X: r.X, Y: r.Y} }

// Size returns the rect extent.
func (r Rect) Size() Size { return Size{X: r.Width, Y: r.Height} }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the number of covered cells.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Contains reports whether (x, y) lies inside the rect.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Intersect returns the overlap of r and o. The result is the zero Rect
// when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.Right(), o.Right())
	y1 := min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return RectFromBounds(x0, y0, x1, y1)
}

// Overlaps reports whether r and o share at least one cell.
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Union returns the smallest rect containing both. Empty rects are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return RectFromBounds(
		min(r.X, o.X), min(r.Y, o.Y),
		max(r.Right(), o.Right()), max(r.Bottom(), o.Bottom()),
	)
}

func (r Rect) String() string {
	return fmt.Sprintf("(x:%d,y:%d,w:%d,h:%d)", r.X, r.Y, r.Width, r.Height)
}
