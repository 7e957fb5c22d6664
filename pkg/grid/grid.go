// Package grid provides the dense 2D container used for heightmaps, weight
// maps and layer buffers, plus its text interchange codecs.
package grid

// Grid is a row-major dense 2D array of LengthX × LengthY cells.
type Grid[T any] struct {
	lengthX int
	lengthY int
	cells   []T
}

// New creates a grid filled with T's zero value. Negative lengths are treated as 0.
func New[T any](lengthX, lengthY int) *Grid[T] {
	lengthX = max(lengthX, 0)
	lengthY = max(lengthY, 0)
	return &Grid[T]{
		lengthX: lengthX,
		lengthY: lengthY,
		cells:   make([]T, lengthX*lengthY),
	}
}

// FromSlice wraps cells (row-major) in a grid. It panics when the slice
// length does not match the dimensions.
func FromSlice[T any](lengthX, lengthY int, cells []T) *Grid[T] {
	if len(cells) != lengthX*lengthY {
		panic("grid: slice length does not match dimensions")
	}
	return &Grid[T]{lengthX: lengthX, lengthY: lengthY, cells: cells}
}

// LengthX returns the number of columns.
func (g *Grid[T]) LengthX() int { return g.lengthX }

// LengthY returns the number of rows.
func (g *Grid[T]) LengthY() int { return g.lengthY }

// Size returns the grid extent.
func (g *Grid[T]) Size() Size { return Size{X: g.lengthX, Y: g.lengthY} }

// Bounds returns the rect covering the whole grid, anchored at the origin.
func (g *Grid[T]) Bounds() Rect { return Rect{Width: g.lengthX, Height: g.lengthY} }

// Len returns the total number of cells.
func (g *Grid[T]) Len() int { return len(g.cells) }

// Cells exposes the row-major backing slice.
func (g *Grid[T]) Cells() []T { return g.cells }

// InBounds reports whether (x, y) addresses a cell.
func (g *Grid[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.lengthX && y < g.lengthY
}

// Index returns the linear index of (x, y).
func (g *Grid[T]) Index(x, y int) int {
	return y*g.lengthX + x
}

// Coords converts a linear index back to (x, y).
func (g *Grid[T]) Coords(index int) (x, y int) {
	return index % g.lengthX, index / g.lengthX
}

// Get returns the value at (x, y). Out-of-range access panics.
func (g *Grid[T]) Get(x, y int) T {
	return g.cells[g.mustIndex(x, y)]
}

// Set stores v at (x, y). Out-of-range access panics.
func (g *Grid[T]) Set(x, y int, v T) {
	g.cells[g.mustIndex(x, y)] = v
}

// At returns a pointer to the cell at (x, y).
func (g *Grid[T]) At(x, y int) *T {
	return &g.cells[g.mustIndex(x, y)]
}

func (g *Grid[T]) mustIndex(x, y int) int {
	if !g.InBounds(x, y) {
		panic("grid: index out of range")
	}
	return y*g.lengthX + x
}

// Resize changes the dimensions. Values in the overlapping top-left
// rectangle are kept; new cells take T's zero value.
func (g *Grid[T]) Resize(lengthX, lengthY int) {
	lengthX = max(lengthX, 0)
	lengthY = max(lengthY, 0)
	if lengthX == g.lengthX && lengthY == g.lengthY {
		return
	}

	cells := make([]T, lengthX*lengthY)
	keepX := min(lengthX, g.lengthX)
	keepY := min(lengthY, g.lengthY)
	for y := range keepY {
		copy(cells[y*lengthX:y*lengthX+keepX], g.cells[y*g.lengthX:y*g.lengthX+keepX])
	}

	g.lengthX = lengthX
	g.lengthY = lengthY
	g.cells = cells
}

// Clone returns a deep copy of the grid.
func (g *Grid[T]) Clone() *Grid[T] {
	cells := make([]T, len(g.cells))
	copy(cells, g.cells)
	return &Grid[T]{lengthX: g.lengthX, lengthY: g.lengthY, cells: cells}
}

// SubGrid copies the part of g covered by r (clipped to g) into a new grid.
func (g *Grid[T]) SubGrid(r Rect) *Grid[T] {
	r = r.Intersect(g.Bounds())
	out := New[T](r.Width, r.Height)
	out.CopyRegion(g, r, 0, 0)
	return out
}

// CopyRegion copies srcRect of src into g with its top-left at (dstX, dstY).
// The copy is clipped against both grids; it returns the rect written in g.
func (g *Grid[T]) CopyRegion(src *Grid[T], srcRect Rect, dstX, dstY int) Rect {
	srcRect = srcRect.Intersect(src.Bounds())
	if srcRect.Empty() {
		return Rect{}
	}
	dst := Rect{X: dstX, Y: dstY, Width: srcRect.Width, Height: srcRect.Height}.Intersect(g.Bounds())
	if dst.Empty() {
		return Rect{}
	}
	offX := srcRect.X - dstX
	offY := srcRect.Y - dstY
	for y := dst.Y; y < dst.Bottom(); y++ {
		srcStart := (y+offY)*src.lengthX + dst.X + offX
		dstStart := y*g.lengthX + dst.X
		copy(g.cells[dstStart:dstStart+dst.Width], src.cells[srcStart:srcStart+dst.Width])
	}
	return dst
}

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

// FillRect sets every cell inside r (clipped) to v.
func (g *Grid[T]) FillRect(r Rect, v T) {
	r = r.Intersect(g.Bounds())
	for y := r.Y; y < r.Bottom(); y++ {
		row := g.cells[y*g.lengthX+r.X : y*g.lengthX+r.Right()]
		for i := range row {
			row[i] = v
		}
	}
}

// Any reports whether pred holds for at least one cell.
func (g *Grid[T]) Any(pred func(T) bool) bool {
	for _, v := range g.cells {
		if pred(v) {
			return true
		}
	}
	return false
}

// ForEach calls fn for every cell in row-major order.
func (g *Grid[T]) ForEach(fn func(x, y int, v T)) {
	for y := range g.lengthY {
		for x := range g.lengthX {
			fn(x, y, g.cells[y*g.lengthX+x])
		}
	}
}

// ContentBounds returns the smallest rect holding every cell for which
// pred is true. The zero Rect means no such cell exists.
func (g *Grid[T]) ContentBounds(pred func(T) bool) Rect {
	var r Rect
	g.ForEach(func(x, y int, v T) {
		if pred(v) {
			r = r.Union(Rect{X: x, Y: y, Width: 1, Height: 1})
		}
	})
	return r
}
