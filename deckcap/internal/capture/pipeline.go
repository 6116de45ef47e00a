package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
)

// Describer is implemented by targets that can report the slide's title and
// speaker notes (as HTML or plain text).
type Describer interface {
	Describe(ctx context.Context) (title, notesHTML string, err error)
}

// Pipeline runs Readiness -> Normalize -> Rasterize as one retried unit.
type Pipeline struct {
	Prober     *Prober
	Normalizer Normalizer
	Adapter    *Adapter
	Retrier    *Retrier
	Logger     *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Once performs a single, unretried capture of t.
func (p *Pipeline) Once(ctx context.Context, t Target) (Bitmap, error) {
	if err := p.Prober.Wait(ctx, t); err != nil {
		return Bitmap{}, err
	}

	box, err := t.Box(ctx)
	if err != nil {
		return Bitmap{}, newError(KindZeroSizeTarget, fmt.Errorf("%w: measure: %w", ErrZeroSizeTarget, err))
	}
	if box.Empty() {
		return Bitmap{}, newError(KindZeroSizeTarget, fmt.Errorf("%w: box collapsed to %.0fx%.0f", ErrZeroSizeTarget, box.Width, box.Height))
	}

	restore := NoRestore
	if p.Normalizer != nil {
		r, err := p.Normalizer.Normalize(ctx, t, box)
		if r != nil {
			restore = r
		}
		if err != nil {
			p.restore(ctx, t, restore)
			return Bitmap{}, newError(KindRasterizer, fmt.Errorf("%w: normalize: %w", ErrRasterizer, err))
		}
	}
	defer p.restore(ctx, t, restore)

	return p.Adapter.Rasterize(ctx, t, box)
}

func (p *Pipeline) restore(ctx context.Context, t Target, r Restore) {
	// Restoration must happen even when the run was cancelled.
	if err := r(context.WithoutCancel(ctx)); err != nil {
		p.logger().Error("capture: restore normalized state failed", "target", t.ID(), "error", err)
	}
}

// Capture captures slide through the retrier and encodes it as PNG.
func (p *Pipeline) Capture(ctx context.Context, slide int, t Target) (CapturedSlide, error) {
	var bm Bitmap
	err := p.Retrier.Do(ctx, slide, func(ctx context.Context, attempt int) error {
		p.logger().Debug("capture: attempt", "slide", slide, "attempt", attempt, "target", t.ID())
		b, err := p.Once(ctx, t)
		if err != nil {
			return err
		}
		bm = b
		return nil
	})
	if err != nil {
		return CapturedSlide{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, bm.Image); err != nil {
		return CapturedSlide{}, fmt.Errorf("capture: encode slide %d: %w", slide+1, err)
	}

	cs := CapturedSlide{
		Index:  slide,
		Width:  bm.Width(),
		Height: bm.Height(),
		PNG:    buf.Bytes(),
	}
	if d, ok := t.(Describer); ok {
		title, notes, err := d.Describe(ctx)
		if err != nil {
			p.logger().Debug("capture: describe failed", "slide", slide, "error", err)
		}
		cs.Title, cs.Notes = title, notes
	}
	return cs, nil
}
