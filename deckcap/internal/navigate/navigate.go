// Package navigate drives a live slide view through every slide, one at a
// time, and owns the single "displayed slide" resource while doing so.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// Settle delays used when the view gives no completion signal.
const (
	DeckSettle   = 1500 * time.Millisecond
	SingleSettle = 300 * time.Millisecond
)

// View is the live slide view.
type View interface {
	CurrentTarget(ctx context.Context) (capture.Target, error)
	Show(ctx context.Context, index int) error
	TotalSlides(ctx context.Context) (int, error)
	DisplayedSlide(ctx context.Context) (int, error)
}

// Settler is implemented by views that can signal that entrance animations
// and layout have finished after Show. The driver still bounds the wait by
// its settle delay.
type Settler interface {
	WaitSettled(ctx context.Context) error
}

// ErrSlotBusy is returned when the displayed slide already has an owner.
var ErrSlotBusy = errors.New("navigate: displayed slide is owned by another run")

// Slot is the single mutable "currently displayed slide". Only the holder
// of a Lease may change it.
type Slot struct {
	mu    sync.Mutex
	view  View
	owner string
}

// NewSlot wraps v.
func NewSlot(v View) *Slot { return &Slot{view: v} }

// View returns the wrapped view for read-only use.
func (s *Slot) View() View { return s.view }

// Owner returns the current lease holder, or "".
func (s *Slot) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Acquire takes exclusive ownership of the displayed slide.
func (s *Slot) Acquire(owner string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" {
		return nil, fmt.Errorf("%w (held by %s)", ErrSlotBusy, s.owner)
	}
	s.owner = owner
	return &Lease{slot: s, owner: owner}, nil
}

// Lease is exclusive write access to a Slot.
type Lease struct {
	slot     *Slot
	owner    string
	released bool
}

// Show displays slide index.
func (l *Lease) Show(ctx context.Context, index int) error {
	if l.released {
		return fmt.Errorf("navigate: lease of %s already released", l.owner)
	}
	return l.slot.view.Show(ctx, index)
}

// Release gives the slot back. It is idempotent.
func (l *Lease) Release() {
	l.slot.mu.Lock()
	defer l.slot.mu.Unlock()
	if !l.released && l.slot.owner == l.owner {
		l.slot.owner = ""
	}
	l.released = true
}

// Driver advances the view slide by slide and hands each settled slide to
// a capture callback. Navigation is strictly serialized.
type Driver struct {
	slot   *Slot
	settle time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithSettle sets the settle delay. Default: DeckSettle.
func WithSettle(d time.Duration) Option { return func(dr *Driver) { dr.settle = d } }

// WithSleep replaces the settle wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(dr *Driver) { dr.sleep = fn }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(dr *Driver) { dr.logger = l } }

// NewDriver creates a Driver over slot.
func NewDriver(slot *Slot, opts ...Option) *Driver {
	d := &Driver{
		slot:   slot,
		settle: DeckSettle,
		sleep:  capture.SleepCtx,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// CaptureFunc captures the settled slide index from t.
type CaptureFunc func(ctx context.Context, index int, t capture.Target) error

// Origin returns the slide displayed right now.
func (d *Driver) Origin(ctx context.Context) (int, error) {
	return d.slot.view.DisplayedSlide(ctx)
}

// Total counts the slides of the mounted view.
func (d *Driver) Total(ctx context.Context) (int, error) {
	n, err := d.slot.view.TotalSlides(ctx)
	if err != nil {
		return 0, fmt.Errorf("navigate: count slides: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("navigate: view has no slides")
	}
	return n, nil
}

// Run visits slides 0..total-1 in order. The first capture failure aborts
// the run: no slide is ever skipped.
func (d *Driver) Run(ctx context.Context, total int, fn CaptureFunc) error {
	s, err := d.Begin("driver")
	if err != nil {
		return err
	}
	defer s.End()
	return s.Run(ctx, total, fn)
}

// One visits a single slide.
func (d *Driver) One(ctx context.Context, index int, fn CaptureFunc) error {
	s, err := d.Begin("driver")
	if err != nil {
		return err
	}
	defer s.End()
	return s.One(ctx, index, fn)
}

// Restore puts the view back on origin.
func (d *Driver) Restore(ctx context.Context, origin int) error {
	s, err := d.Begin("restore")
	if err != nil {
		return err
	}
	defer s.End()
	return s.Restore(ctx, origin)
}

// Session holds the displayed slide across several navigations, so that
// nothing else moves the view between a run and its restore.
type Session struct {
	d     *Driver
	lease *Lease
}

// Begin takes the slot for owner until End.
func (d *Driver) Begin(owner string) (*Session, error) {
	lease, err := d.slot.Acquire(owner)
	if err != nil {
		return nil, err
	}
	return &Session{d: d, lease: lease}, nil
}

// Run visits slides 0..total-1 in order under the session's lease.
func (s *Session) Run(ctx context.Context, total int, fn CaptureFunc) error {
	return s.d.visit(ctx, s.lease, 0, total, fn)
}

// One visits slide index under the session's lease.
func (s *Session) One(ctx context.Context, index int, fn CaptureFunc) error {
	return s.d.visit(ctx, s.lease, index, index+1, fn)
}

// Restore puts the view back on origin. It runs even when ctx is
// cancelled, since a failed run must not strand the viewer.
func (s *Session) Restore(ctx context.Context, origin int) error {
	if err := s.lease.Show(context.WithoutCancel(ctx), origin); err != nil {
		return fmt.Errorf("navigate: restore slide %d: %w", origin+1, err)
	}
	s.d.logger.Debug("navigate: restored origin", "slide", origin)
	return nil
}

// End releases the slot. It is idempotent.
func (s *Session) End() { s.lease.Release() }

func (d *Driver) visit(ctx context.Context, lease *Lease, from, to int, fn CaptureFunc) error {
	for i := from; i < to; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := lease.Show(ctx, i); err != nil {
			return fmt.Errorf("navigate: show slide %d: %w", i+1, err)
		}
		if err := d.waitSettled(ctx); err != nil {
			return err
		}
		t, err := d.slot.view.CurrentTarget(ctx)
		if err != nil {
			return fmt.Errorf("navigate: capture target for slide %d: %w", i+1, err)
		}
		if err := fn(ctx, i, t); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) waitSettled(ctx context.Context) error {
	s, ok := d.slot.view.(Settler)
	if !ok {
		return d.sleep(ctx, d.settle)
	}
	sctx, cancel := context.WithTimeout(ctx, d.settle)
	defer cancel()
	err := s.WaitSettled(sctx)
	if err != nil && ctx.Err() == nil {
		// Signal lost or late: the full delay has elapsed either way.
		d.logger.Debug("navigate: settle signal missing", "error", err)
		return nil
	}
	return ctx.Err()
}
