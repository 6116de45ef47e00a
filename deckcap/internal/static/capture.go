package static

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// Normalizer freezes a Target by attaching a FinalState frame pinned to
// the measured box. The live view keeps animating untouched.
type Normalizer struct{}

func (Normalizer) Normalize(ctx context.Context, t capture.Target, box capture.Box) (capture.Restore, error) {
	tg, ok := t.(*Target)
	if !ok {
		return nil, fmt.Errorf("static: cannot normalize %T", t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.frozen != nil {
		// Already frozen: keep the first clone, the caller holding its
		// restore will drop it.
		return capture.NoRestore, nil
	}
	f := frozenFrame(tg.view.deck, tg.slide(), box, tg.view.images)
	tg.frozen = &f
	return func(context.Context) error {
		tg.mu.Lock()
		tg.frozen = nil
		tg.mu.Unlock()
		return nil
	}, nil
}

// Rasterizer draws Targets with a Renderer.
type Rasterizer struct {
	renderer *Renderer
}

// NewRasterizer wraps r. A nil r gets a fresh Renderer.
func NewRasterizer(r *Renderer) *Rasterizer {
	if r == nil {
		r = NewRenderer()
	}
	return &Rasterizer{renderer: r}
}

// PatchPatterns installs SafePattern on the shared constructor.
func (r *Rasterizer) PatchPatterns(ctx context.Context, _ capture.Target) (func(), error) {
	return Patterns.Override(ctx, SafePattern)
}

func (r *Rasterizer) Rasterize(ctx context.Context, t capture.Target, box capture.Box, opts capture.RasterOptions) (image.Image, error) {
	tg, ok := t.(*Target)
	if !ok {
		return nil, fmt.Errorf("static: cannot rasterize %T", t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := tg.frame()
	if !f.Frozen {
		f.Width, f.Height = box.Width, box.Height
	}
	if f.box().Empty() {
		return nil, errors.New("static: frame has no area")
	}
	return r.renderer.Render(f, opts.Scale, opts.Background)
}
