package layer

import (
	"github.com/aquilax/go-perlin"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// ProceduralParams configures the perlin height field.
type ProceduralParams struct {
	Seed      int64
	Alpha     float64 // weight falloff between octaves
	Beta      float64 // frequency step between octaves
	Octaves   int32
	Frequency float64 // noise units per cell
	Amplitude float32 // scale around 0.5, 1 spans the full range
}

// DefaultProceduralParams returns gentle rolling hills.
func DefaultProceduralParams() ProceduralParams {
	return ProceduralParams{
		Seed:      1,
		Alpha:     2,
		Beta:      2,
		Octaves:   3,
		Frequency: 0.02,
		Amplitude: 1,
	}
}

// GenerateProcedural fills a normalized height grid with perlin noise. The
// same params always produce the same grid, and a larger grid extends a
// smaller one without changing the shared cells.
func GenerateProcedural(size grid.Size, p ProceduralParams) *grid.Grid[float32] {
	gen := perlin.NewPerlin(p.Alpha, p.Beta, p.Octaves, p.Seed)
	g := grid.New[float32](size.X, size.Y)
	cells := g.Cells()
	for y := range size.Y {
		for x := range size.X {
			n := gen.Noise2D(float64(x)*p.Frequency, float64(y)*p.Frequency)
			cells[y*size.X+x] = math.Clamp01(0.5 + float32(n)*0.5*p.Amplitude)
		}
	}
	return g
}

// AddProceduralLayer generates a noise layer covering the map and registers it.
func (s *Session) AddProceduralLayer(name string, p ProceduralParams, blend compositor.BlendType) *Layer {
	g := GenerateProcedural(s.Map.HeightmapData.Size(), p)
	return s.AddHeightLayer(name, KindProcedural, grid.Point{}, blend, NewFloatBuffer(g, s.Map.HeightRange, true))
}
