// Package deckcap exports a live slide deck (a web app in Chrome, or a
// static deck file) to PDF or PPTX. It captures every slide exactly as a
// viewer would see it once animations have settled, assembles one page per
// slide, and hands the document to sinks.
//
// deckcap captures, it does not author: slide content comes from the deck
// and is never rewritten.
package deckcap

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"time"

	"github.com/gogpu/gg"

	"github.com/hazyhaar/deckcap/deckcap/internal/assemble"
	"github.com/hazyhaar/deckcap/deckcap/internal/browser"
	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
	"github.com/hazyhaar/deckcap/deckcap/internal/config"
	"github.com/hazyhaar/deckcap/deckcap/internal/navigate"
	"github.com/hazyhaar/deckcap/deckcap/internal/orchestrator"
	"github.com/hazyhaar/deckcap/deckcap/internal/progress"
	"github.com/hazyhaar/deckcap/deckcap/internal/sink"
	"github.com/hazyhaar/deckcap/deckcap/internal/static"
	"github.com/hazyhaar/deckcap/deckcap/internal/store"
)

// Run is a snapshot of one export.
type Run = orchestrator.Run

// Progress is the user-visible progress record.
type Progress = progress.State

// Slide is one captured slide.
type Slide = capture.CapturedSlide

// Record is a persisted export run.
type Record = store.Record

// Export statuses.
const (
	StatusIdle       = orchestrator.StatusIdle
	StatusCapturing  = orchestrator.StatusCapturing
	StatusAssembling = orchestrator.StatusAssembling
	StatusComplete   = orchestrator.StatusComplete
	StatusFailed     = orchestrator.StatusFailed
)

var (
	// ErrBusy is returned when an export or capture already owns the deck.
	ErrBusy = orchestrator.ErrBusy
	// ErrNoHistory is returned by history calls when no store is configured.
	ErrNoHistory = errors.New("deckcap: run history is not enabled")
	// ErrNotFound is returned for unknown run IDs.
	ErrNotFound = store.ErrNotFound
	// ErrNotFailed is returned by Dismiss when no failed run is showing.
	ErrNotFailed = orchestrator.ErrNotFailed
	// ErrSlideRange is returned for slide indexes outside the deck.
	ErrSlideRange = errors.New("deckcap: slide out of range")
)

// Option customises New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	sinks     []sink.Sink
	deck      *static.Deck
	store     *store.Store
	afterFunc func(d time.Duration, f func()) func() bool
	now       func() time.Time
	err       error
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithSink adds a destination next to the configured ones.
func WithSink(s Sink) Option { return func(o *options) { o.sinks = append(o.sinks, s) } }

// WithDeckYAML uses an in-memory static deck instead of Config.Deck.
func WithDeckYAML(data []byte) Option {
	return func(o *options) {
		o.deck, o.err = static.ParseDeck(data)
	}
}

// WithStore uses an open store for history instead of Export.StorePath.
func WithStore(s *store.Store) Option { return func(o *options) { o.store = s } }

// withTimers replaces timers and the clock (tests).
func withTimers(after func(d time.Duration, f func()) func() bool, now func() time.Time) Option {
	return func(o *options) { o.afterFunc, o.now = after, now }
}

// Exporter owns one deck view and exports it on demand.
type Exporter struct {
	cfg      *Config
	logger   *slog.Logger
	view     navigate.View
	slot     *navigate.Slot
	single   *navigate.Driver
	pipeline *capture.Pipeline
	machine  *orchestrator.Machine
	store    *store.Store
	router   *sink.Router
	title    string
	closers  []func() error
}

// New builds an Exporter from cfg. For URL decks it launches (or connects
// to) Chrome and opens the deck; Close releases it.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Exporter, error) {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	check := *cfg
	if o.deck != nil {
		check.Deck.URL, check.Deck.File = "", "inline"
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}

	e := &Exporter{cfg: cfg, logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	format, err := assemble.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	var aopts []assemble.Option
	if !cfg.Export.WantBookmarks() {
		aopts = append(aopts, assemble.WithoutBookmarks())
	}
	asm, err := assemble.New(format, aopts...)
	if err != nil {
		return nil, err
	}

	var (
		norm capture.Normalizer
		rast capture.Rasterizer
		deck = o.deck
	)
	if deck == nil && check.Backend() == config.BackendStatic {
		if deck, err = static.LoadDeck(cfg.Deck.File); err != nil {
			return nil, err
		}
	}
	if deck != nil {
		view := static.NewView(deck)
		e.view, e.title = view, deck.Title
		norm, rast = static.Normalizer{}, static.NewRasterizer(view.Renderer())
	} else {
		view, err := e.openBrowser(ctx)
		if err != nil {
			return nil, err
		}
		e.view = view
		norm = browser.Normalizer{Decorative: cfg.Deck.Decorative}
		rast = browser.NewRasterizer(view, o.logger)
	}
	// Pages are always 1920x1080; each bitmap is centred and fitted.
	page := assemble.Landscape1080
	page.MaxPixelWidth = cfg.Export.MaxPixelWidth

	bg, err := parseColor(cfg.Export.Background)
	if err != nil {
		return nil, err
	}
	e.pipeline = &capture.Pipeline{
		Prober:     capture.NewProber(capture.WithProberLogger(o.logger)),
		Normalizer: norm,
		Adapter:    capture.NewAdapter(rast, capture.RasterOptions{Scale: cfg.Export.Scale, Background: bg}, o.logger),
		Retrier:    capture.NewRetrier(capture.WithRetryLogger(o.logger)),
		Logger:     o.logger,
	}

	e.slot = navigate.NewSlot(e.view)
	driver := navigate.NewDriver(e.slot, navigate.WithSettle(navigate.DeckSettle), navigate.WithLogger(o.logger))
	e.single = navigate.NewDriver(e.slot, navigate.WithSettle(navigate.SingleSettle), navigate.WithLogger(o.logger))

	sinks, err := buildSinks(cfg.Sinks, o.logger)
	if err != nil {
		return nil, err
	}
	e.router = sink.NewRouter(o.logger, append(sinks, o.sinks...)...)
	e.closers = append(e.closers, e.router.Close)

	e.store = o.store
	if e.store == nil && cfg.Export.StorePath != "" {
		if e.store, err = store.Open(cfg.Export.StorePath); err != nil {
			return nil, err
		}
		e.closers = append(e.closers, e.store.Close)
	}
	if e.store != nil {
		e.router.Add(e.store.Sink())
	}

	client := cfg.Export.Client
	if client == "" {
		client = e.title
	}
	e.machine, err = orchestrator.New(orchestrator.Config{
		Driver:     driver,
		Pipeline:   e.pipeline,
		Assembler:  asm,
		Page:       page,
		Reporter:   progress.New(o.logger),
		Sink:       e.router,
		Naming:     orchestrator.Naming{Brand: cfg.Export.Brand, Client: client, Now: o.now},
		AutoStart:  cfg.Export.AutoStart,
		AfterFunc:  o.afterFunc,
		OnComplete: e.record,
		OnFailed:   e.record,
		Logger:     o.logger,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() error { e.machine.Close(); return nil })

	ok = true
	return e, nil
}

func (e *Exporter) openBrowser(ctx context.Context) (*browser.View, error) {
	bc := e.cfg.Browser
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       bc.Remote,
		Headful:         bc.Headful,
		XvfbDisplay:     bc.XvfbDisplay,
		Stealth:         bc.Stealth,
		Viewport:        browser.Viewport{Width: bc.Width, Height: bc.Height},
		MemoryLimit:     bc.MemoryLimit,
		RecycleInterval: bc.RecycleInterval,
		BlockResources:  bc.BlockResources,
		Busy:            func() bool { return e.slot != nil && e.slot.Owner() != "" },
		Logger:          e.logger,
	})
	e.closers = append(e.closers, mgr.Close)
	if _, err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("deckcap: start browser: %w", err)
	}
	tab, err := browser.OpenTab(ctx, mgr, e.cfg.Deck.URL)
	if err != nil {
		return nil, fmt.Errorf("deckcap: open deck: %w", err)
	}
	e.closers = append(e.closers, tab.Close)

	dc := e.cfg.Deck
	return browser.NewView(tab, browser.DeckConfig{
		SlideSelector:  dc.SlideSelector,
		MarkerSelector: dc.MarkerSelector,
		ShowScript:     dc.ShowScript,
		CurrentScript:  dc.CurrentScript,
		Decorative:     dc.Decorative,
	}, e.logger), nil
}

// parseColor accepts #rgb, #rrggbb and #rrggbbaa.
func parseColor(hex string) (color.Color, error) {
	h := strings.TrimPrefix(hex, "#")
	switch len(h) {
	case 3, 6, 8:
	default:
		return nil, fmt.Errorf("deckcap: bad colour %q", hex)
	}
	for _, r := range h {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return nil, fmt.Errorf("deckcap: bad colour %q", hex)
		}
	}
	return gg.Hex(hex).Color(), nil
}

// Config returns the effective configuration.
func (e *Exporter) Config() *Config { return e.cfg }

// Format returns the output format.
func (e *Exporter) Format() string { return string(e.machine.Format()) }

// Start begins an export in the background. The channel yields the final
// run and closes.
func (e *Exporter) Start(ctx context.Context) (<-chan Run, error) {
	return e.machine.Start(ctx)
}

// Export runs one export to completion. A failed run is returned together
// with an error carrying its message.
func (e *Exporter) Export(ctx context.Context) (Run, error) {
	r, err := e.machine.Export(ctx)
	if r.ID != "" {
		e.record(r)
	}
	return r, err
}

// Status returns the current run with live progress.
func (e *Exporter) Status() Run { return e.machine.Snapshot() }

// Last returns the previous finished run.
func (e *Exporter) Last() Run { return e.machine.Last() }

// Dismiss acknowledges a failed run.
func (e *Exporter) Dismiss() error { return e.machine.Dismiss() }

// Subscribe streams progress changes until cancel is called.
func (e *Exporter) Subscribe() (<-chan Progress, func()) {
	return e.machine.Reporter().Subscribe()
}

// Mount and Unmount track whether a viewer is attached; with
// Export.AutoStart the first Mount starts an export.
func (e *Exporter) Mount(ctx context.Context) { e.machine.Mount(ctx) }

func (e *Exporter) Unmount() { e.machine.Unmount() }

// Slides returns the slides captured by the current or last export.
func (e *Exporter) Slides() []Slide { return e.machine.Slides() }

// CaptureSlide captures one slide with the short settle delay and puts the
// viewer back where it was. It fails with a busy error while an export
// owns the deck.
func (e *Exporter) CaptureSlide(ctx context.Context, index int) (Slide, error) {
	total, err := e.single.Total(ctx)
	if err != nil {
		return Slide{}, err
	}
	if index < 0 || index >= total {
		return Slide{}, fmt.Errorf("%w: %d not in [1,%d]", ErrSlideRange, index+1, total)
	}
	sess, err := e.single.Begin("single")
	if errors.Is(err, navigate.ErrSlotBusy) {
		return Slide{}, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	if err != nil {
		return Slide{}, err
	}
	defer sess.End()

	origin, err := e.single.Origin(ctx)
	if err != nil {
		return Slide{}, err
	}
	var out Slide
	err = sess.One(ctx, index, func(ctx context.Context, i int, t capture.Target) error {
		s, cerr := e.pipeline.Capture(ctx, i, t)
		out = s
		return cerr
	})
	if rerr := sess.Restore(ctx, origin); rerr != nil {
		e.logger.Warn("deckcap: restore after single capture", "origin", origin, "error", rerr)
	}
	return out, err
}

// Thumbnail captures slide index and scales it to width pixels.
func (e *Exporter) Thumbnail(ctx context.Context, index, width int) ([]byte, error) {
	s, err := e.CaptureSlide(ctx, index)
	if err != nil {
		return nil, err
	}
	return assemble.Thumbnail(s.PNG, width)
}

// History lists persisted runs, newest first.
func (e *Exporter) History(ctx context.Context, limit int) ([]Record, error) {
	if e.store == nil {
		return nil, ErrNoHistory
	}
	return e.store.ListRuns(ctx, limit)
}

// Get returns one persisted run.
func (e *Exporter) Get(ctx context.Context, id string) (Record, error) {
	if e.store == nil {
		return Record{}, ErrNoHistory
	}
	return e.store.GetRun(ctx, id)
}

// Artifact returns the stored document of run id.
func (e *Exporter) Artifact(ctx context.Context, id string) (Artifact, error) {
	if e.store == nil {
		return Artifact{}, ErrNoHistory
	}
	return e.store.Artifact(ctx, id)
}

func (e *Exporter) record(r Run) {
	if e.store == nil || r.ID == "" {
		return
	}
	err := e.store.SaveRun(context.Background(), store.Record{
		ID:         r.ID,
		Status:     string(r.Status),
		Format:     string(r.Format),
		Filename:   r.Filename,
		Total:      r.Total,
		Pages:      r.Pages,
		Size:       r.Size,
		Digest:     r.Digest,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	})
	if err != nil {
		e.logger.Error("deckcap: save run", "run", r.ID, "error", err)
	}
}

// Close stops timers and releases sinks, history and the browser.
func (e *Exporter) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
