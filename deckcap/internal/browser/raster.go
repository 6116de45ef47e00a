package browser

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

var (
	//go:embed js/pattern.js
	patternJS string
	//go:embed js/unpattern.js
	unpatternJS string
	//go:embed js/background.js
	backgroundJS string
)

// releaseTimeout bounds page cleanup after a capture, which runs even when
// the capture context is already done.
const releaseTimeout = 5 * time.Second

// Rasterizer screenshots the slide root through CDP at a device scale
// factor.
type Rasterizer struct {
	view   *View
	logger *slog.Logger
}

// NewRasterizer captures targets of v. A nil logger uses slog.Default().
func NewRasterizer(v *View, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{view: v, logger: logger}
}

// PatchPatterns replaces CanvasRenderingContext2D.prototype.createPattern
// with a variant returning null for zero-size sources. The release restores
// the original only if this call installed the patch.
func (r *Rasterizer) PatchPatterns(ctx context.Context, _ capture.Target) (func(), error) {
	p, err := r.view.page(ctx)
	if err != nil {
		return nil, err
	}
	res, err := p.Eval(patternJS)
	if err != nil {
		return nil, err
	}
	if !res.Value.Bool() {
		r.logger.Warn("browser: createPattern already patched, leaving as is")
		return func() {}, nil
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, err := p.Context(rctx).Eval(unpatternJS); err != nil {
			r.logger.Error("browser: restore createPattern", "error", err)
		}
	}, nil
}

func (r *Rasterizer) Rasterize(ctx context.Context, t capture.Target, box capture.Box, opts capture.RasterOptions) (image.Image, error) {
	tg, ok := t.(*Target)
	if !ok {
		return nil, fmt.Errorf("browser: cannot rasterize %T", t)
	}
	page, err := r.view.page(ctx)
	if err != nil {
		return nil, err
	}
	vp := r.view.tab.mgr.cfg.Viewport

	if err := setViewport(page, vp, opts.Scale); err != nil {
		return nil, fmt.Errorf("device scale %.2f: %w", opts.Scale, err)
	}
	defer func() {
		if err := setViewport(page.Context(context.WithoutCancel(ctx)), vp, 1); err != nil {
			r.logger.Warn("browser: reset device scale", "error", err)
		}
	}()

	el := tg.el.Context(ctx)
	res, err := el.Eval(backgroundJS, cssColor(opts.Background))
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	if !res.Value.Nil() {
		prior := res.Value.Str()
		defer func() {
			_, err := tg.el.Context(context.WithoutCancel(ctx)).Eval(`function (v) {
				if (v === '') this.style.removeProperty('background-color');
				else this.style.setProperty('background-color', v);
			}`, prior)
			if err != nil {
				r.logger.Warn("browser: reset background", "error", err)
			}
		}()
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// cssColor formats c as a CSS rgba() value.
func cssColor(c color.Color) string {
	if c == nil {
		return "rgba(255, 255, 255, 1)"
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	a := math.Round(float64(n.A)/255*1000) / 1000
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", n.R, n.G, n.B, a)
}
