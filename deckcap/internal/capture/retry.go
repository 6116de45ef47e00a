package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Fixed retry budget: three attempts, linear backoff 300ms, 600ms.
const (
	MaxAttempts = 3
	BaseDelay   = 300 * time.Millisecond
)

// Retrier runs one slide capture up to MaxAttempts times, waiting
// BaseDelay*attempt between attempts. Every failure kind is retried the
// same way; the last attempt's error is the one returned.
type Retrier struct {
	attempts int
	base     time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithRetrySleep replaces the backoff wait. Tests use it to observe delays.
func WithRetrySleep(fn func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

// WithRetryLogger sets the logger. Default: slog.Default().
func WithRetryLogger(l *slog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = l }
}

// NewRetrier creates a Retrier with the fixed budget.
func NewRetrier(opts ...RetrierOption) *Retrier {
	r := &Retrier{
		attempts: MaxAttempts,
		base:     BaseDelay,
		sleep:    SleepCtx,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Attempts returns the attempt budget.
func (r *Retrier) Attempts() int { return r.attempts }

// Do calls op with attempt numbers 1..MaxAttempts until it succeeds.
// Context cancellation stops the loop with the context error.
func (r *Retrier) Do(ctx context.Context, slide int, op func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry: capture recovered", "slide", slide, "attempt", attempt)
			}
			return nil
		}
		lastErr = WithSlide(err, slide)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt == r.attempts {
			break
		}

		wait := r.base * time.Duration(attempt)
		r.logger.Warn("retry: capture attempt failed",
			"slide", slide,
			"attempt", attempt,
			"max_attempts", r.attempts,
			"kind", KindOf(err),
			"backoff_ms", wait.Milliseconds(),
			"error", err)

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	r.logger.Error("retry: capture exhausted", "slide", slide, "attempts", r.attempts, "error", lastErr)
	return fmt.Errorf("slide %d failed after %d attempts: %w", slide+1, r.attempts, lastErr)
}
