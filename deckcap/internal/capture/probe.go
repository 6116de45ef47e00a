package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Fixed readiness budgets.
const (
	ImageTimeout    = 2 * time.Second
	BoxPollInterval = 100 * time.Millisecond
	BoxPollAttempts = 10
)

// Prober decides when a target is safe to rasterize: fonts settled, images
// loaded or errored, layout box non-zero. It never mutates the target.
type Prober struct {
	imageTimeout time.Duration
	interval     time.Duration
	attempts     int
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProberLogger sets the logger. Default: slog.Default().
func WithProberLogger(l *slog.Logger) ProberOption {
	return func(p *Prober) { p.logger = l }
}

// WithProberSleep replaces the wait used between layout polls.
func WithProberSleep(fn func(ctx context.Context, d time.Duration) error) ProberOption {
	return func(p *Prober) { p.sleep = fn }
}

// withImageTimeout shortens the per-image window in tests.
func withImageTimeout(d time.Duration) ProberOption {
	return func(p *Prober) { p.imageTimeout = d }
}

// NewProber creates a Prober with the fixed readiness budgets.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		imageTimeout: ImageTimeout,
		interval:     BoxPollInterval,
		attempts:     BoxPollAttempts,
		sleep:        SleepCtx,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Wait blocks until t is capture-safe. Only a layout box that never becomes
// non-zero is fatal; slow fonts and images are logged and tolerated.
func (p *Prober) Wait(ctx context.Context, t Target) error {
	if fw, ok := t.(FontWaiter); ok {
		if err := fw.WaitFonts(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, ErrNoFontSignal) {
				p.logger.Debug("probe: font wait failed, continuing", "target", t.ID(), "error", err)
			}
		}
	}

	if il, ok := t.(ImageLister); ok {
		if err := p.waitImages(ctx, t, il); err != nil {
			return err
		}
	}

	return p.waitBox(ctx, t)
}

func (p *Prober) waitImages(ctx context.Context, t Target, il ImageLister) error {
	assets, err := il.Images(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("probe: list images failed, continuing", "target", t.ID(), "error", err)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assets {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, p.imageTimeout)
			defer cancel()
			err := a.Wait(actx)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				p.logger.Warn("probe: image did not settle",
					"target", t.ID(), "asset", a.Name(),
					"kind", KindAssetTimeout, "timeout", p.imageTimeout)
			default:
				// An errored image is settled: it renders as broken.
				p.logger.Debug("probe: image errored", "target", t.ID(), "asset", a.Name(), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Prober) waitBox(ctx context.Context, t Target) error {
	var last Box
	err := PollUntil(ctx, func(ctx context.Context) (bool, error) {
		b, err := t.Box(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// Not mounted yet looks the same as zero-size.
			p.logger.Debug("probe: measure failed", "target", t.ID(), "error", err)
			return false, nil
		}
		last = b
		return !b.Empty(), nil
	}, PollOptions{Interval: p.interval, MaxAttempts: p.attempts, Sleep: p.sleep})

	if errors.Is(err, ErrPollExhausted) {
		return newError(KindZeroSizeTarget,
			fmt.Errorf("%w: last box %.0fx%.0f after %d polls", ErrZeroSizeTarget, last.Width, last.Height, p.attempts))
	}
	return err
}
