package imageprocessor

import (
	"context"
	"image"

	"github.com/esimov/triangle/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/example/lowpoly/internal/logging"
)

// Renderer turns a decoded image into its low-poly rendering.
type Renderer interface {
	Render(ctx context.Context, src image.Image, params Params) (image.Image, error)
}

// TriangleRenderer renders through Delaunay triangulation.
type TriangleRenderer struct {
	logger *zap.Logger
	slots  *semaphore.Weighted
}

// NewTriangleRenderer constructs the default renderer. At most maxConcurrent
// triangulations run at once; values below 1 mean one.
func NewTriangleRenderer(logger *zap.Logger, maxConcurrent int) *TriangleRenderer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &TriangleRenderer{
		logger: logger.Named("triangle_renderer"),
		slots:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

type renderResult struct {
	img image.Image
	err error
}

// Render waits for a free slot, then triangulates on its own goroutine so
// that a cancelled context returns promptly. An abandoned triangulation keeps
// its slot until it finishes.
func (r *TriangleRenderer) Render(ctx context.Context, src image.Image, params Params) (image.Image, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	proc := processorFor(params.Normalize())

	done := make(chan renderResult, 1)
	go func() {
		defer r.slots.Release(1)
		img := &triangle.Image{Processor: proc}
		out, _, _, err := img.Draw(src, proc, func() {})
		done <- renderResult{img: out, err: err}
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("render abandoned", zap.Error(ctx.Err()))
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, logging.NewOperationError("imageprocessor.render", "", res.err)
		}
		return res.img, nil
	}
}

// processorFor maps the public parameters onto triangle settings. Higher
// detail levels blur less and weight edges more.
func processorFor(p Params) triangle.Processor {
	return triangle.Processor{
		MaxPoints:       p.NumPoints,
		BlurRadius:      1 + MaxDetailLevel - p.DetailLevel,
		BlurFactor:      1,
		EdgeFactor:      1 + p.DetailLevel,
		PointRate:       0.075,
		SobelThreshold:  10,
		PointsThreshold: 20,
	}
}
