package texture

import (
	"context"
	"fmt"
	"sync"

	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Job asks a renderer to draw one canonical region into a render texture.
type Job struct {
	Name   string
	Region grid.Rect
	Format PixelFormat
}

// Renderer draws a job offscreen and returns the readback. Implementations
// may block; they are always called off the owning goroutine.
type Renderer interface {
	Render(ctx context.Context, job Job) (Readback, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, job Job) (Readback, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, job Job) (Readback, error) { return f(ctx, job) }

// Result is a decoded render job.
type Result struct {
	Job  Job
	Grid *grid.Grid[grid.Maskable[float32]]
	Err  error
}

// RenderAsync renders and decodes job on a new goroutine. The returned
// channel yields exactly one Result and is then closed.
func RenderAsync(ctx context.Context, r Renderer, job Job) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- render(ctx, r, job)
	}()
	return out
}

func render(ctx context.Context, r Renderer, job Job) Result {
	rb, err := r.Render(ctx, job)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("rendering %s: %w", job.Name, err)}
	}
	if rb.Format != job.Format {
		return Result{Job: job, Err: fmt.Errorf("rendering %s: renderer returned %v, want %v", job.Name, rb.Format, job.Format)}
	}
	g, err := Decode(rb)
	if err != nil {
		return Result{Job: job, Err: fmt.Errorf("rendering %s: %w", job.Name, err)}
	}
	return Result{Job: job, Grid: g}
}

// Queue runs render jobs in the background and hands results back to the
// owning loop, which calls Drain once per tick.
type Queue struct {
	renderer Renderer
	results  chan Result
	wg       sync.WaitGroup
}

// NewQueue creates a queue that holds up to capacity finished results.
func NewQueue(r Renderer, capacity int) *Queue {
	return &Queue{
		renderer: r,
		results:  make(chan Result, max(capacity, 1)),
	}
}

// Submit starts a job.
func (q *Queue) Submit(ctx context.Context, job Job) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		res := render(ctx, q.renderer, job)
		select {
		case q.results <- res:
		case <-ctx.Done():
		}
	}()
}

// Drain returns every finished result without blocking.
func (q *Queue) Drain() []Result {
	var out []Result
	for {
		select {
		case res := <-q.results:
			out = append(out, res)
		default:
			return out
		}
	}
}

// Wait blocks until every submitted job has delivered or been cancelled.
func (q *Queue) Wait() {
	q.wg.Wait()
}
