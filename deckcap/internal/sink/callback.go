package sink

import "context"

// DeliverFunc receives an artifact in-process.
type DeliverFunc func(ctx context.Context, a Artifact) error

// Callback hands artifacts to a Go function, no serialisation. The HTTP
// handler uses it to keep artifacts in memory for download.
type Callback struct {
	fn DeliverFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn DeliverFunc) *Callback { return &Callback{fn: fn} }

func (c *Callback) Deliver(ctx context.Context, a Artifact) error {
	if c.fn != nil {
		return c.fn(ctx, a)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
