package static

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// View shows one slide of a Deck at a time and keeps the animation clock.
type View struct {
	deck     *Deck
	renderer *Renderer
	images   *imageCache
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	current int
	shownAt time.Time
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithClock replaces time.Now and the settle wait.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) ViewOption {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
		if sleep != nil {
			v.sleep = sleep
		}
	}
}

// WithRenderer shares a Renderer between views.
func WithRenderer(r *Renderer) ViewOption { return func(v *View) { v.renderer = r } }

// NewView mounts d on its first slide.
func NewView(d *Deck, opts ...ViewOption) *View {
	v := &View{
		deck:   d,
		images: newImageCache(),
		now:    time.Now,
		sleep:  capture.SleepCtx,
	}
	for _, o := range opts {
		o(v)
	}
	if v.renderer == nil {
		v.renderer = NewRenderer()
	}
	v.shownAt = v.now()
	return v
}

// Deck returns the mounted deck.
func (v *View) Deck() *Deck { return v.deck }

// Renderer returns the view's renderer.
func (v *View) Renderer() *Renderer { return v.renderer }

func (v *View) Show(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i < 0 || i >= len(v.deck.Slides) {
		return fmt.Errorf("static: slide %d out of range [1,%d]", i+1, len(v.deck.Slides))
	}
	v.mu.Lock()
	v.current = i
	v.shownAt = v.now()
	v.mu.Unlock()
	return nil
}

func (v *View) TotalSlides(context.Context) (int, error) { return len(v.deck.Slides), nil }

func (v *View) DisplayedSlide(context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, nil
}

func (v *View) CurrentTarget(context.Context) (capture.Target, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &Target{view: v, index: v.current}, nil
}

// WaitSettled returns once every entrance animation of the displayed slide
// has run to completion.
func (v *View) WaitSettled(ctx context.Context) error {
	v.mu.Lock()
	end := v.shownAt.Add(SettleTime(v.deck.Slides[v.current]))
	v.mu.Unlock()
	return v.sleep(ctx, end.Sub(v.now()))
}

// Frame returns what the viewer sees right now.
func (v *View) Frame() Frame {
	v.mu.Lock()
	i := v.current
	v.mu.Unlock()
	return v.frameOf(i)
}

func (v *View) frameOf(i int) Frame {
	v.mu.Lock()
	elapsed := v.now().Sub(v.shownAt)
	v.mu.Unlock()
	return liveFrame(v.deck, v.deck.Slides[i], elapsed, v.images)
}

// Target is the slide root of a View at one index. Normalization attaches
// a frozen frame to it; the live view itself is never modified.
type Target struct {
	view  *View
	index int

	mu     sync.Mutex
	frozen *Frame
}

func (t *Target) ID() string { return "static-slide-root" }

// Index is the slide this target was taken from.
func (t *Target) Index() int { return t.index }

func (t *Target) slide() Slide { return t.view.deck.Slides[t.index] }

func (t *Target) Box(ctx context.Context) (capture.Box, error) {
	if err := ctx.Err(); err != nil {
		return capture.Box{}, err
	}
	return capture.Box{Width: t.view.deck.Width, Height: t.view.deck.Height}, nil
}

func (t *Target) WaitFonts(ctx context.Context) error { return t.view.renderer.LoadFonts(ctx) }

func (t *Target) Images(context.Context) ([]capture.Asset, error) {
	var out []capture.Asset
	for _, e := range t.slide().Elements {
		if e.Kind == KindImage {
			out = append(out, &imageAsset{path: t.view.deck.resolve(e.Src), cache: t.view.images})
		}
	}
	return out, nil
}

func (t *Target) Describe(context.Context) (string, string, error) {
	s := t.slide()
	return s.Title, s.Notes, nil
}

// frame returns the frozen frame if normalized, else the live one.
func (t *Target) frame() Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen != nil {
		return *t.frozen
	}
	return t.view.frameOf(t.index)
}

// imageCache holds decoded images by path. Failed loads are remembered so
// an errored image counts as settled.
type imageCache struct {
	mu     sync.Mutex
	images map[string]image.Image
	errs   map[string]error
}

func newImageCache() *imageCache {
	return &imageCache{images: map[string]image.Image{}, errs: map[string]error{}}
}

func (c *imageCache) get(path string) image.Image {
	if path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.images[path]
}

func (c *imageCache) load(ctx context.Context, path string) error {
	c.mu.Lock()
	if _, ok := c.images[path]; ok {
		c.mu.Unlock()
		return nil
	}
	if err, ok := c.errs[path]; ok {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := os.Open(path)
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		ch <- result{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		c.mu.Lock()
		defer c.mu.Unlock()
		if r.err != nil {
			c.errs[path] = fmt.Errorf("static: load image %s: %w", path, r.err)
			return c.errs[path]
		}
		c.images[path] = r.img
		return nil
	}
}

type imageAsset struct {
	path  string
	cache *imageCache
}

func (a *imageAsset) Name() string                   { return a.path }
func (a *imageAsset) Wait(ctx context.Context) error { return a.cache.load(ctx, a.path) }
