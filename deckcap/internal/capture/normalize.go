package capture

import "context"

// Restore undoes a normalization. It must be safe to call exactly once on
// every exit path, including after a failed rasterization.
type Restore func(ctx context.Context) error

// Normalizer forces a target into its settled appearance: every element
// fully opaque, every transform identity, animations and transitions off,
// decorative loops suppressed, unrasterizable canvases removed, and the
// root pinned to its measured pixel size.
//
// Implementations that can work on a copy of the subtree must not touch
// the live view; the others must record prior state and return a Restore
// that puts it back.
type Normalizer interface {
	Normalize(ctx context.Context, t Target, box Box) (Restore, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(ctx context.Context, t Target, box Box) (Restore, error)

func (f NormalizerFunc) Normalize(ctx context.Context, t Target, box Box) (Restore, error) {
	return f(ctx, t, box)
}

// NoRestore is returned by normalizers that never mutate live state.
func NoRestore(context.Context) error { return nil }
