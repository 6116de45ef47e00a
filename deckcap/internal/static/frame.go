package static

import (
	"image"
	"time"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// Item is one element with the style it is drawn in.
type Item struct {
	Element Element
	Style   Style
	Image   image.Image
	Clock   time.Duration
}

// Frame is a slide ready to draw.
type Frame struct {
	Width      float64
	Height     float64
	Background string
	Items      []Item
	Frozen     bool
}

func (f Frame) box() capture.Box { return capture.Box{Width: f.Width, Height: f.Height} }

// liveFrame is what the viewer sees elapsed after the slide was shown.
func liveFrame(d *Deck, s Slide, elapsed time.Duration, images *imageCache) Frame {
	f := Frame{Width: d.Width, Height: d.Height, Background: background(d, s)}
	for _, e := range s.Elements {
		f.Items = append(f.Items, Item{
			Element: e,
			Style:   Animate(e, elapsed),
			Image:   images.get(d.resolve(e.Src)),
			Clock:   elapsed,
		})
	}
	return f
}

// frozenFrame renders s through FinalState, pinned to box. Canvas
// elements are dropped: they only exist as live animations.
func frozenFrame(d *Deck, s Slide, box capture.Box, images *imageCache) Frame {
	f := Frame{Width: box.Width, Height: box.Height, Background: background(d, s), Frozen: true}
	for _, e := range s.Elements {
		if e.Kind == KindCanvas {
			continue
		}
		f.Items = append(f.Items, Item{
			Element: e,
			Style:   FinalState(Animate(e, 0)),
			Image:   images.get(d.resolve(e.Src)),
		})
	}
	return f
}

func background(d *Deck, s Slide) string {
	if s.Background != "" {
		return s.Background
	}
	return d.Background
}
