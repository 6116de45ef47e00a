package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// DeckConfig describes how the deck web app exposes its slides.
type DeckConfig struct {
	// SlideSelector matches the root element of the displayed slide.
	SlideSelector string `yaml:"slide_selector" json:"slide_selector"`
	// MarkerSelector matches one element per slide (pager dots, sections).
	MarkerSelector string `yaml:"marker_selector" json:"marker_selector"`
	// ShowScript is a JS function of the 0-based index that displays it.
	ShowScript string `yaml:"show_script" json:"show_script"`
	// CurrentScript is a JS function returning the displayed index.
	CurrentScript string `yaml:"current_script" json:"current_script"`
	// Decorative selectors are hidden while capturing (pulsing dots).
	Decorative []string `yaml:"decorative" json:"decorative"`
}

// Defaults for a deck app that exposes window.deckcap, falling back to
// reveal.js.
const (
	DefaultSlideSelector  = "[data-slide-root]"
	DefaultMarkerSelector = "[data-slide-marker]"
	DefaultShowScript     = `(i) => window.deckcap ? window.deckcap.show(i) : window.Reveal.slide(i)`
	DefaultCurrentScript  = `() => window.deckcap ? window.deckcap.current() : window.Reveal.getIndices().h`
)

// ApplyDefaults fills empty fields.
func (c *DeckConfig) ApplyDefaults() {
	if c.SlideSelector == "" {
		c.SlideSelector = DefaultSlideSelector
	}
	if c.MarkerSelector == "" {
		c.MarkerSelector = DefaultMarkerSelector
	}
	if c.ShowScript == "" {
		c.ShowScript = DefaultShowScript
	}
	if c.CurrentScript == "" {
		c.CurrentScript = DefaultCurrentScript
	}
}

const elementTimeout = 5 * time.Second

// View drives the deck page.
type View struct {
	tab    *Tab
	cfg    DeckConfig
	logger *slog.Logger
}

// NewView wraps tab. A nil logger uses slog.Default().
func NewView(tab *Tab, cfg DeckConfig, logger *slog.Logger) *View {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &View{tab: tab, cfg: cfg, logger: logger}
}

// Config returns the effective deck configuration.
func (v *View) Config() DeckConfig { return v.cfg }

// Tab returns the underlying tab.
func (v *View) Tab() *Tab { return v.tab }

func (v *View) page(ctx context.Context) (*rod.Page, error) {
	p := v.tab.Page()
	if p == nil {
		return nil, errors.New("browser: tab is closed")
	}
	return p.Context(ctx), nil
}

func (v *View) Show(ctx context.Context, index int) error {
	p, err := v.page(ctx)
	if err != nil {
		return err
	}
	if _, err := p.Eval(v.cfg.ShowScript, index); err != nil {
		return fmt.Errorf("browser: show slide %d: %w", index+1, err)
	}
	return nil
}

func (v *View) TotalSlides(ctx context.Context) (int, error) {
	p, err := v.page(ctx)
	if err != nil {
		return 0, err
	}
	res, err := p.Eval(`(sel) => document.querySelectorAll(sel).length`, v.cfg.MarkerSelector)
	if err != nil {
		return 0, fmt.Errorf("browser: count slide markers: %w", err)
	}
	return res.Value.Int(), nil
}

func (v *View) DisplayedSlide(ctx context.Context) (int, error) {
	p, err := v.page(ctx)
	if err != nil {
		return 0, err
	}
	res, err := p.Eval(v.cfg.CurrentScript)
	if err != nil {
		return 0, fmt.Errorf("browser: read displayed slide: %w", err)
	}
	return res.Value.Int(), nil
}

// WaitSettled resolves when every finite CSS animation and transition in
// the slide root has finished.
func (v *View) WaitSettled(ctx context.Context) error {
	p, err := v.page(ctx)
	if err != nil {
		return err
	}
	_, err = p.Eval(settledJS, v.cfg.SlideSelector)
	return err
}

func (v *View) CurrentTarget(ctx context.Context) (capture.Target, error) {
	p, err := v.page(ctx)
	if err != nil {
		return nil, err
	}
	el, err := p.Timeout(elementTimeout).Element(v.cfg.SlideSelector)
	if err != nil {
		return nil, fmt.Errorf("browser: slide root %q: %w", v.cfg.SlideSelector, err)
	}
	return &Target{el: el.CancelTimeout(), selector: v.cfg.SlideSelector}, nil
}

const settledJS = `(sel) => {
	const root = document.querySelector(sel);
	if (!root || !document.getAnimations) return true;
	const running = document.getAnimations().filter((a) => {
		const t = a.effect && a.effect.target;
		if (!t || !root.contains(t)) return false;
		const end = a.effect.getComputedTiming().endTime;
		return Number.isFinite(end);
	});
	return Promise.all(running.map((a) => a.finished.catch(() => null))).then(() => true);
}`

// Target is the slide root element.
type Target struct {
	el       *rod.Element
	selector string
}

func (t *Target) ID() string { return t.selector }

// Element returns the rod element.
func (t *Target) Element() *rod.Element { return t.el }

// Box measures after one animation frame so pending layout is flushed.
func (t *Target) Box(ctx context.Context) (capture.Box, error) {
	res, err := t.el.Context(ctx).Eval(`function () {
		return new Promise((resolve) => requestAnimationFrame(() => {
			const r = this.getBoundingClientRect();
			resolve({width: r.width, height: r.height});
		}));
	}`)
	if err != nil {
		return capture.Box{}, fmt.Errorf("browser: measure slide root: %w", err)
	}
	return capture.Box{
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}

func (t *Target) WaitFonts(ctx context.Context) error {
	res, err := t.el.Context(ctx).Eval(`() => document.fonts ? document.fonts.ready.then(() => true) : false`)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return capture.ErrNoFontSignal
	}
	return nil
}

func (t *Target) Images(ctx context.Context) ([]capture.Asset, error) {
	imgs, err := t.el.Context(ctx).Elements("img")
	if err != nil {
		return nil, err
	}
	out := make([]capture.Asset, 0, len(imgs))
	for i, img := range imgs {
		name := fmt.Sprintf("img[%d]", i)
		if src, err := img.Attribute("src"); err == nil && src != nil {
			name = *src
		}
		out = append(out, &imageAsset{el: img, name: name})
	}
	return out, nil
}

// Describe reads the slide title and speaker notes from its markup.
func (t *Target) Describe(ctx context.Context) (string, string, error) {
	markup, err := t.el.Context(ctx).HTML()
	if err != nil {
		return "", "", err
	}
	title, notes := describeHTML(markup)
	return title, notes, nil
}

type imageAsset struct {
	el   *rod.Element
	name string
}

func (a *imageAsset) Name() string { return a.name }

// Wait resolves on load or error; both count as settled.
func (a *imageAsset) Wait(ctx context.Context) error {
	_, err := a.el.Context(ctx).Eval(`function () {
		if (this.complete) return true;
		return new Promise((resolve) => {
			this.addEventListener('load', () => resolve(true), {once: true});
			this.addEventListener('error', () => resolve(false), {once: true});
		});
	}`)
	return err
}

// describeHTML extracts a title (data-title, else the first heading) and
// the inner HTML of an aside.notes element.
func describeHTML(markup string) (title, notes string) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", ""
	}
	var heading string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if title == "" {
				if v := attr(n, "data-title"); v != "" {
					title = strings.TrimSpace(v)
				}
			}
			switch n.Data {
			case "h1", "h2", "h3":
				if heading == "" {
					heading = collapse(textOf(n))
				}
			case "aside":
				if notes == "" && hasClass(n, "notes") {
					notes = strings.TrimSpace(innerHTML(n))
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if title == "" {
		title = heading
	}
	return title, notes
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
