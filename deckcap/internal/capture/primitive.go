package capture

import (
	"context"
	"sync"
)

// Primitive holds one process-wide rendering function that callers may
// temporarily replace. An override is a critical section: only one may be
// active at a time, and its release puts back the exact function reference
// that was installed before it.
type Primitive[F any] struct {
	sem    chan struct{}
	mu     sync.RWMutex
	fn     F
	active bool
}

// NewPrimitive creates a Primitive whose original function is fn.
func NewPrimitive[F any](fn F) *Primitive[F] {
	return &Primitive[F]{sem: make(chan struct{}, 1), fn: fn}
}

// Load returns the currently installed function.
func (p *Primitive[F]) Load() F {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fn
}

// Active reports whether an override is installed.
func (p *Primitive[F]) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Override installs fn until release is called. It blocks while another
// override is active or until ctx is done. release is idempotent.
func (p *Primitive[F]) Override(ctx context.Context, fn F) (release func(), err error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}

	p.mu.Lock()
	prev := p.fn
	p.fn = fn
	p.active = true
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.fn = prev
			p.active = false
			p.mu.Unlock()
			<-p.sem
		})
	}, nil
}
