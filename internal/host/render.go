package host

import (
	"context"

	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/internal/texture"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// ProceduralRenderer draws the perlin field for a job region and reads it
// back in the job's format, standing in for a GPU pass.
func ProceduralRenderer(p layer.ProceduralParams) texture.Renderer {
	return texture.RendererFunc(func(ctx context.Context, job texture.Job) (texture.Readback, error) {
		if err := ctx.Err(); err != nil {
			return texture.Readback{}, err
		}
		r := job.Region
		// The field is anchored at the origin, so generate up to the far corner.
		field := layer.GenerateProcedural(grid.Size{X: r.X + r.Width, Y: r.Y + r.Height}, p)
		out := grid.New[grid.Maskable[float32]](r.Width, r.Height)
		cells := out.Cells()
		for y := range r.Height {
			for x := range r.Width {
				cells[y*r.Width+x] = grid.Some(field.Get(r.X+x, r.Y+y))
			}
		}
		return texture.Encode(job.Format, out)
	})
}
