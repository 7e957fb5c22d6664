package compositor

import (
	"github.com/x448/float16"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// MaterialState is the pair of canonical grids kept in lockstep: the weight
// that currently wins each cell and the index of the material that owns it.
type MaterialState struct {
	Weights   *grid.Grid[float16.Float16]
	Materials *grid.Grid[uint8]
}

// NewMaterialState allocates empty weight and material grids.
func NewMaterialState(size grid.Size) *MaterialState {
	return &MaterialState{
		Weights:   grid.New[float16.Float16](size.X, size.Y),
		Materials: grid.New[uint8](size.X, size.Y),
	}
}

// Resize resizes both grids, preserving the top-left overlap.
func (s *MaterialState) Resize(size grid.Size) {
	s.Weights.Resize(size.X, size.Y)
	s.Materials.Resize(size.X, size.Y)
}

// Reset clears both grids inside r.
func (s *MaterialState) Reset(r grid.Rect) {
	s.Weights.FillRect(r, 0)
	s.Materials.FillRect(r, 0)
}

// Cell returns the state at a row-major index.
func (s *MaterialState) Cell(index int) WeightCell {
	return WeightCell{Weight: s.Weights.Cells()[index], Material: s.Materials.Cells()[index]}
}

// SetCell writes the state at a row-major index.
func (s *MaterialState) SetCell(index int, c WeightCell) {
	s.Weights.Cells()[index] = c.Weight
	s.Materials.Cells()[index] = c.Material
}

// UpdateMaterialWeightMapRegion merges one material layer's weights into
// state. A cell is claimed when its weight is positive and not below the
// current weight, so on a tie the later layer wins.
func UpdateMaterialWeightMapRegion[T any](
	local *grid.Grid[T],
	material uint8,
	start grid.Point,
	state *MaterialState,
	conv Converter[T],
	rec Recorder[WeightCell],
) grid.Rect {
	return updateMaterial(local, material, start, state, conv, rec, nil)
}

// UpdateMaterialWeightMapRegionClipped is UpdateMaterialWeightMapRegion
// limited to clip, given in canonical coordinates.
func UpdateMaterialWeightMapRegionClipped[T any](
	local *grid.Grid[T],
	material uint8,
	start grid.Point,
	state *MaterialState,
	conv Converter[T],
	rec Recorder[WeightCell],
	clip grid.Rect,
) grid.Rect {
	return updateMaterial(local, material, start, state, conv, rec, &clip)
}

func updateMaterial[T any](
	local *grid.Grid[T],
	material uint8,
	start grid.Point,
	state *MaterialState,
	conv Converter[T],
	rec Recorder[WeightCell],
	clip *grid.Rect,
) grid.Rect {
	if local == nil || state == nil {
		return grid.Rect{}
	}
	region := writableRegion(start, local.Size(), state.Weights.Size(), clip)
	if region.Empty() {
		return grid.Rect{}
	}

	weights := state.Weights.Cells()
	materials := state.Materials.Cells()
	for y := region.Y; y < region.Bottom(); y++ {
		for x := region.X; x < region.Right(); x++ {
			w, ok := conv(local.Get(x-start.X, y-start.Y))
			if !ok || w <= 0 {
				continue
			}
			// Compare at storage precision so equal weights tie.
			q := float16.Fromfloat32(math.Clamp01(w))
			i := state.Weights.Index(x, y)
			if q.Float32() <= 0 || q.Float32() < weights[i].Float32() {
				continue
			}
			old := WeightCell{Weight: weights[i], Material: materials[i]}
			next := WeightCell{Weight: q, Material: material}
			weights[i] = next.Weight
			materials[i] = next.Material
			if rec != nil && next != old {
				rec.RecordChange(i, old, next)
			}
		}
	}
	return region
}

// Revert restores the state recorded in l, newest change first.
func (s *MaterialState) Revert(l *ChangeList[WeightCell]) {
	n := s.Weights.Len()
	for i := len(l.Changes) - 1; i >= 0; i-- {
		if c := l.Changes[i]; c.Index >= 0 && c.Index < n {
			s.SetCell(c.Index, c.Old)
		}
	}
}
