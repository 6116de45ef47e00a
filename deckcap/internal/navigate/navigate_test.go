package navigate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

type stubTarget struct{ id string }

func (s stubTarget) ID() string { return s.id }
func (s stubTarget) Box(context.Context) (capture.Box, error) {
	return capture.Box{Width: 1920, Height: 1080}, nil
}

type fakeView struct {
	mu      sync.Mutex
	total   int
	current int
	shows   []int
}

func (v *fakeView) CurrentTarget(context.Context) (capture.Target, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return stubTarget{id: "slide"}, nil
}

func (v *fakeView) Show(_ context.Context, i int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = i
	v.shows = append(v.shows, i)
	return nil
}

func (v *fakeView) TotalSlides(context.Context) (int, error) { return v.total, nil }

func (v *fakeView) DisplayedSlide(context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, nil
}

type settlingView struct {
	fakeView
	settled chan struct{}
}

func (v *settlingView) WaitSettled(ctx context.Context) error {
	select {
	case <-v.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recordSleeps(out *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*out = append(*out, d)
		return ctx.Err()
	}
}

func TestDriver_VisitsEverySlideInOrder(t *testing.T) {
	view := &fakeView{total: 5}
	var sleeps []time.Duration
	d := NewDriver(NewSlot(view), WithSleep(recordSleeps(&sleeps)))

	var got []int
	err := d.Run(context.Background(), 5, func(_ context.Context, i int, _ capture.Target) error {
		cur, _ := view.DisplayedSlide(context.Background())
		if cur != i {
			t.Errorf("capturing %d while slide %d displayed", i, cur)
		}
		got = append(got, i)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order: got %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("captured %d slides, want 5", len(got))
	}
	if len(sleeps) != 5 || sleeps[0] != DeckSettle {
		t.Errorf("sleeps = %v, want 5 x %v", sleeps, DeckSettle)
	}
}

func TestDriver_AbortsOnFirstFailure(t *testing.T) {
	view := &fakeView{total: 10}
	d := NewDriver(NewSlot(view), WithSleep(func(context.Context, time.Duration) error { return nil }))

	boom := errors.New("slide 4 failed after 3 attempts")
	var visited []int
	err := d.Run(context.Background(), 10, func(_ context.Context, i int, _ capture.Target) error {
		visited = append(visited, i)
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(visited) != 4 {
		t.Errorf("visited %v, want slides 0..3 only", visited)
	}
	if len(view.shows) != 4 {
		t.Errorf("navigated %d times, want 4", len(view.shows))
	}
}

func TestDriver_RestoreReturnsToOrigin(t *testing.T) {
	view := &fakeView{total: 3, current: 2}
	d := NewDriver(NewSlot(view), WithSleep(func(context.Context, time.Duration) error { return nil }))

	origin, err := d.Origin(context.Background())
	if err != nil || origin != 2 {
		t.Fatalf("origin = %d, %v", origin, err)
	}
	_ = d.Run(context.Background(), 3, func(context.Context, int, capture.Target) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Restore(ctx, origin); err != nil {
		t.Fatalf("restore with cancelled ctx: %v", err)
	}
	if cur, _ := view.DisplayedSlide(context.Background()); cur != 2 {
		t.Errorf("displayed = %d, want 2", cur)
	}
}

func TestDriver_SlotIsExclusive(t *testing.T) {
	view := &fakeView{total: 2}
	slot := NewSlot(view)
	lease, err := slot.Acquire("someone")
	if err != nil {
		t.Fatal(err)
	}
	d := NewDriver(slot, WithSleep(func(context.Context, time.Duration) error { return nil }))
	err = d.Run(context.Background(), 2, func(context.Context, int, capture.Target) error { return nil })
	if !errors.Is(err, ErrSlotBusy) {
		t.Fatalf("err = %v, want ErrSlotBusy", err)
	}
	lease.Release()
	lease.Release()
	if slot.Owner() != "" {
		t.Fatalf("owner = %q after release", slot.Owner())
	}
	if err := lease.Show(context.Background(), 1); err == nil {
		t.Error("released lease must not navigate")
	}
}

func TestDriver_SettlerSignalShortCircuits(t *testing.T) {
	view := &settlingView{fakeView: fakeView{total: 2}, settled: make(chan struct{})}
	close(view.settled)
	slept := false
	d := NewDriver(NewSlot(view), WithSettle(time.Hour), WithSleep(func(context.Context, time.Duration) error {
		slept = true
		return nil
	}))
	start := time.Now()
	if err := d.Run(context.Background(), 2, func(context.Context, int, capture.Target) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if slept {
		t.Error("flat sleep used despite settle signal")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("settle signal was not honored")
	}
}

func TestDriver_SettlerTimeoutIsBounded(t *testing.T) {
	view := &settlingView{fakeView: fakeView{total: 1}, settled: make(chan struct{})}
	d := NewDriver(NewSlot(view), WithSettle(20*time.Millisecond))
	called := false
	err := d.Run(context.Background(), 1, func(context.Context, int, capture.Target) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !called {
		t.Error("capture not reached after settle timeout")
	}
}

func TestDriver_One(t *testing.T) {
	view := &fakeView{total: 4}
	var sleeps []time.Duration
	d := NewDriver(NewSlot(view), WithSettle(SingleSettle), WithSleep(recordSleeps(&sleeps)))
	var got []int
	err := d.One(context.Background(), 2, func(_ context.Context, i int, _ capture.Target) error {
		got = append(got, i)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("got %v, want [2]", got)
	}
	if len(sleeps) != 1 || sleeps[0] != SingleSettle {
		t.Errorf("sleeps = %v", sleeps)
	}
}

func TestDriver_TotalRejectsEmptyView(t *testing.T) {
	d := NewDriver(NewSlot(&fakeView{}))
	if _, err := d.Total(context.Background()); err == nil {
		t.Fatal("want error for empty view")
	}
}

func TestSession_HoldsSlotUntilEnd(t *testing.T) {
	view := &fakeView{total: 3, current: 1}
	slot := NewSlot(view)
	d := NewDriver(slot, WithSleep(func(context.Context, time.Duration) error { return nil }))

	s, err := d.Begin("export")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background(), 3, func(context.Context, int, capture.Target) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := slot.Acquire("single"); !errors.Is(err, ErrSlotBusy) {
		t.Fatalf("acquire between run and restore: %v, want ErrSlotBusy", err)
	}
	if err := s.Restore(context.Background(), 1); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if cur, _ := view.DisplayedSlide(context.Background()); cur != 1 {
		t.Errorf("displayed = %d, want 1", cur)
	}
	s.End()
	s.End()
	if slot.Owner() != "" {
		t.Fatalf("owner = %q after End", slot.Owner())
	}
}
