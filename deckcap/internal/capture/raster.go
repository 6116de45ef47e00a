package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
)

// DefaultScale renders at twice the CSS pixel size.
const DefaultScale = 2.0

// RasterOptions controls one rasterization.
type RasterOptions struct {
	Scale      float64
	Background color.Color
}

func (o *RasterOptions) defaults() {
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.Background == nil {
		o.Background = color.White
	}
}

// Rasterizer renders a normalized target to pixels.
//
// Known defect handled here: the pattern primitive of every backend panics
// (or throws, in a page) when asked for a repeating pattern from a source
// with a zero dimension. PatchPatterns installs a variant that yields "no
// pattern" instead and returns the release that reinstates the original.
type Rasterizer interface {
	PatchPatterns(ctx context.Context, t Target) (release func(), err error)
	Rasterize(ctx context.Context, t Target, box Box, opts RasterOptions) (image.Image, error)
}

// Adapter wraps a Rasterizer: scoped pattern patch, panic containment and
// empty-bitmap rejection. It holds no state between calls.
type Adapter struct {
	r      Rasterizer
	opts   RasterOptions
	logger *slog.Logger
}

// NewAdapter wraps r. A nil logger uses slog.Default().
func NewAdapter(r Rasterizer, opts RasterOptions, logger *slog.Logger) *Adapter {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{r: r, opts: opts, logger: logger}
}

// Options returns the effective raster options.
func (a *Adapter) Options() RasterOptions { return a.opts }

// Rasterize produces a non-degenerate bitmap of t or a classified error.
// The pattern patch is released before Rasterize returns, whatever happens.
func (a *Adapter) Rasterize(ctx context.Context, t Target, box Box) (Bitmap, error) {
	release, err := a.r.PatchPatterns(ctx, t)
	if err != nil {
		if release != nil {
			release()
		}
		return Bitmap{}, newError(KindRasterizer, fmt.Errorf("%w: patch pattern primitive: %w", ErrRasterizer, err))
	}
	defer release()

	img, err := a.call(ctx, t, box)
	if err != nil {
		return Bitmap{}, err
	}

	bm := Bitmap{Image: img}
	if bm.Width() == 0 || bm.Height() == 0 {
		return Bitmap{}, newError(KindEmptyCanvas,
			fmt.Errorf("%w: %dx%d for box %.0fx%.0f", ErrEmptyCanvas, bm.Width(), bm.Height(), box.Width, box.Height))
	}
	return bm, nil
}

func (a *Adapter) call(ctx context.Context, t Target, box Box) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("raster: rasterizer panicked", "target", t.ID(), "panic", r)
			img = nil
			err = newError(KindRasterizer, fmt.Errorf("%w: panic: %v", ErrRasterizer, r))
		}
	}()

	img, err = a.r.Rasterize(ctx, t, box, a.opts)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, newError(KindRasterizer, fmt.Errorf("%w: %w", ErrRasterizer, err))
	}
	return img, nil
}
