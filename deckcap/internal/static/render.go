package static

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// PatternFunc builds a repeating fill from a tile image.
type PatternFunc func(dc *gg.Context, tile image.Image) gg.Pattern

// Patterns is the process-wide pattern constructor used by every Renderer.
// gg's image pattern divides by the tile size when sampling, so a zero-size
// tile panics mid-fill; the capture path swaps in SafePattern for the
// duration of one rasterization.
var Patterns = capture.NewPrimitive[PatternFunc](ImagePattern)

// ImagePattern is the stock constructor.
func ImagePattern(dc *gg.Context, tile image.Image) gg.Pattern {
	b := tile.Bounds()
	return dc.CreateImagePattern(gg.ImageBufFromImage(tile), 0, 0, b.Dx(), b.Dy())
}

// SafePattern returns nil (no fill) for a missing or zero-size tile.
func SafePattern(dc *gg.Context, tile image.Image) gg.Pattern {
	if tile == nil || tile.Bounds().Empty() {
		return nil
	}
	return ImagePattern(dc, tile)
}

// Renderer draws frames with gg.
type Renderer struct {
	fonts *fontSet
}

// NewRenderer creates a Renderer with the Go font family.
func NewRenderer() *Renderer { return &Renderer{fonts: &fontSet{}} }

// LoadFonts parses the embedded fonts once.
func (r *Renderer) LoadFonts(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.fonts.load()
}

// Render draws f at scale onto bg. A frame with no area yields an empty
// image.
func (r *Renderer) Render(f Frame, scale float64, bg color.Color) (image.Image, error) {
	w := int(math.Round(f.Width * scale))
	h := int(math.Round(f.Height * scale))
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rectangle{}), nil
	}
	if err := r.fonts.load(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()

	dc.SetColor(bg)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("static: fill background: %w", err)
	}
	if f.Background != "" {
		dc.SetHexColor(f.Background)
		dc.DrawRectangle(0, 0, float64(w), float64(h))
		if err := dc.Fill(); err != nil {
			return nil, fmt.Errorf("static: fill slide background: %w", err)
		}
	}

	for i, it := range f.Items {
		if it.Style.Opacity <= 0 {
			continue
		}
		if err := r.drawItem(dc, it, scale); err != nil {
			return nil, fmt.Errorf("static: element %d (%s): %w", i+1, it.Element.Kind, err)
		}
	}

	// Copy out: the context's pixmap is released on Close.
	src := dc.Image()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
	return out, nil
}

// rect is an element box after style and scale.
type rect struct{ x, y, w, h float64 }

func place(e Element, s Style, k float64) rect {
	w, h := e.W*s.Scale, e.H*s.Scale
	cx := e.X + e.W/2 + s.TranslateX
	cy := e.Y + e.H/2 + s.TranslateY
	return rect{x: (cx - w/2) * k, y: (cy - h/2) * k, w: w * k, h: h * k}
}

func (r *Renderer) setColor(dc *gg.Context, hex string, alpha float64) {
	c := gg.Hex(hex)
	dc.SetRGBA(c.R, c.G, c.B, c.A*alpha)
}

func (r *Renderer) drawItem(dc *gg.Context, it Item, k float64) error {
	e, s := it.Element, it.Style
	b := place(e, s, k)

	switch e.Kind {
	case KindRect:
		r.setColor(dc, e.Fill, s.Opacity)
		if e.Radius > 0 {
			dc.DrawRoundedRectangle(b.x, b.y, b.w, b.h, e.Radius*k*s.Scale)
		} else {
			dc.DrawRectangle(b.x, b.y, b.w, b.h)
		}
		return dc.Fill()

	case KindText:
		dc.SetFont(r.fonts.face(e.Bold, e.Size*k*s.Scale))
		r.setColor(dc, e.Color, s.Opacity)
		align, ax := gg.AlignLeft, 0.0
		x := b.x
		if e.Align == "center" {
			align, ax, x = gg.AlignCenter, 0.5, b.x+b.w/2
		}
		if b.w <= 0 {
			dc.DrawStringAnchored(e.Text, x, b.y, ax, 1)
			return nil
		}
		dc.DrawStringWrapped(e.Text, x, b.y, ax, 0, b.w, 1.3, align)
		return nil

	case KindImage:
		if it.Image == nil {
			return nil
		}
		dc.DrawImageEx(gg.ImageBufFromImage(it.Image), gg.DrawImageOptions{
			X: b.x, Y: b.y, DstWidth: b.w, DstHeight: b.h,
			Interpolation: gg.InterpBilinear,
			Opacity:       s.Opacity,
			BlendMode:     gg.BlendNormal,
		})
		return nil

	case KindPattern:
		p := Patterns.Load()(dc, dotTile(e, k))
		if p == nil {
			return nil
		}
		dc.SetFillPattern(p)
		dc.DrawRectangle(b.x, b.y, b.w, b.h)
		return dc.Fill()

	case KindPulse:
		rad := math.Min(b.w, b.h) / 2 * (1 + 0.35*s.Pulse)
		r.setColor(dc, e.Fill, s.Opacity*(1-0.5*s.Pulse))
		dc.DrawCircle(b.x+b.w/2, b.y+b.h/2, rad)
		return dc.Fill()

	case KindCanvas:
		return r.drawParticles(dc, it, b, k)
	}
	return nil
}

// dotTile draws one pattern cell: a dot of e.Color on e.Fill. A zero
// tile size yields an empty image.
func dotTile(e Element, k float64) image.Image {
	w := int(float64(e.TileW) * k)
	h := int(float64(e.TileH) * k)
	tile := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	if w <= 0 || h <= 0 {
		return tile
	}
	fill := gg.Hex(e.Fill).Color()
	dot := gg.Hex(e.Color).Color()
	draw.Draw(tile, tile.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	cx, cy := w/2, h/2
	rad := max(min(w, h)/6, 1)
	for y := cy - rad; y <= cy+rad; y++ {
		for x := cx - rad; x <= cx+rad; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= rad*rad {
				tile.Set(x, y, dot)
			}
		}
	}
	return tile
}

// drawParticles is the live-only canvas effect: drifting dots.
func (r *Renderer) drawParticles(dc *gg.Context, it Item, b rect, k float64) error {
	e := it.Element
	n := 24
	t := it.Clock.Seconds()
	r.setColor(dc, e.Color, 0.35*it.Style.Opacity)
	for i := 0; i < n; i++ {
		fx := math.Mod(float64(i)*0.618+t*0.05*float64(1+i%3), 1)
		fy := math.Mod(float64(i)*0.377+t*0.03, 1)
		dc.DrawCircle(b.x+fx*b.w, b.y+fy*b.h, 3*k)
		if err := dc.Fill(); err != nil {
			return err
		}
	}
	return nil
}

type fontSet struct {
	once    sync.Once
	err     error
	regular *text.FontSource
	bold    *text.FontSource

	mu    sync.Mutex
	faces map[faceKey]text.Face
}

type faceKey struct {
	bold bool
	size float64
}

func (f *fontSet) load() error {
	f.once.Do(func() {
		f.regular, f.err = text.NewFontSource(goregular.TTF)
		if f.err != nil {
			f.err = fmt.Errorf("static: load regular font: %w", f.err)
			return
		}
		f.bold, f.err = text.NewFontSource(gobold.TTF)
		if f.err != nil {
			f.err = fmt.Errorf("static: load bold font: %w", f.err)
			return
		}
		f.faces = make(map[faceKey]text.Face)
	})
	return f.err
}

func (f *fontSet) face(bold bool, size float64) text.Face {
	size = math.Max(1, math.Round(size*4)/4)
	key := faceKey{bold: bold, size: size}
	f.mu.Lock()
	defer f.mu.Unlock()
	if fc, ok := f.faces[key]; ok {
		return fc
	}
	src := f.regular
	if bold {
		src = f.bold
	}
	fc := src.Face(size)
	f.faces[key] = fc
	return fc
}
