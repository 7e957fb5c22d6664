package compositor

import (
	"github.com/x448/float16"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Recorder receives every cell mutation so an external transaction log can
// build the inverse operation. index is the row-major cell index.
type Recorder[T any] interface {
	RecordChange(index int, oldValue, newValue T)
}

// Change is one recorded cell mutation.
type Change[T any] struct {
	Index int
	Old   T
	New   T
}

// ChangeList is an in-memory Recorder.
type ChangeList[T any] struct {
	Changes []Change[T]
}

// RecordChange implements Recorder.
func (l *ChangeList[T]) RecordChange(index int, oldValue, newValue T) {
	l.Changes = append(l.Changes, Change[T]{Index: index, Old: oldValue, New: newValue})
}

// Len returns the number of recorded changes.
func (l *ChangeList[T]) Len() int { return len(l.Changes) }

// Reset drops all recorded changes.
func (l *ChangeList[T]) Reset() { l.Changes = l.Changes[:0] }

// Revert writes the old values back into g, newest change first.
func (l *ChangeList[T]) Revert(g *grid.Grid[T]) {
	cells := g.Cells()
	for i := len(l.Changes) - 1; i >= 0; i-- {
		c := l.Changes[i]
		if c.Index >= 0 && c.Index < len(cells) {
			cells[c.Index] = c.Old
		}
	}
}

// Replay writes the new values into g, oldest change first.
func (l *ChangeList[T]) Replay(g *grid.Grid[T]) {
	cells := g.Cells()
	for _, c := range l.Changes {
		if c.Index >= 0 && c.Index < len(cells) {
			cells[c.Index] = c.New
		}
	}
}

// WeightCell is the material state of one canonical cell.
type WeightCell struct {
	Weight   float16.Float16
	Material uint8
}
