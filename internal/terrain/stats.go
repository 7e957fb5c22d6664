package terrain

import (
	"gonum.org/v1/gonum/floats"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// HeightStats summarises a normalized heightmap.
type HeightStats struct {
	Min  float64
	Max  float64
	Mean float64
}

// ComputeHeightStats returns min, max and mean of g. An empty grid yields zeros.
func ComputeHeightStats(g *grid.Grid[float32]) HeightStats {
	if g.Len() == 0 {
		return HeightStats{}
	}
	values := make([]float64, g.Len())
	for i, v := range g.Cells() {
		values[i] = float64(v)
	}
	return HeightStats{
		Min:  floats.Min(values),
		Max:  floats.Max(values),
		Mean: floats.Sum(values) / float64(len(values)),
	}
}
