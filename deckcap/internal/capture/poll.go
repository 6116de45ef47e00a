package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned by PollUntil when the predicate never held.
var ErrPollExhausted = errors.New("capture: condition not met within poll budget")

// PollOptions bounds a PollUntil loop.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// Sleep replaces the wait between attempts. Default: context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// PollUntil evaluates pred until it reports true, an error, or the attempt
// budget runs out. Predicate errors abort the loop immediately.
func PollUntil(ctx context.Context, pred func(ctx context.Context) (bool, error), opts PollOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepCtx
	}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w (%d attempts)", ErrPollExhausted, opts.MaxAttempts)
}

// SleepCtx waits for d or until ctx is done.
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
