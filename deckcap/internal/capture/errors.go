package capture

import (
	"errors"
	"fmt"
)

// Kind classifies a capture failure. The classification is used for
// logging and diagnostics only: the retrier treats every kind the same.
type Kind int

const (
	KindUnknown Kind = iota
	KindZeroSizeTarget
	KindAssetTimeout
	KindRasterizer
	KindEmptyCanvas
)

func (k Kind) String() string {
	switch k {
	case KindZeroSizeTarget:
		return "ZeroSizeTarget"
	case KindAssetTimeout:
		return "AssetTimeout"
	case KindRasterizer:
		return "RasterizerException"
	case KindEmptyCanvas:
		return "EmptyCanvas"
	default:
		return "Unknown"
	}
}

// Sentinels matched through errors.Is on an *Error.
var (
	ErrZeroSizeTarget = errors.New("capture target has a zero-size layout box")
	ErrAssetTimeout   = errors.New("asset did not settle within its safety window")
	ErrRasterizer     = errors.New("rasterizer failed")
	ErrEmptyCanvas    = errors.New("rasterizer produced an empty canvas")
)

// Error is a classified capture failure for one slide.
type Error struct {
	Kind  Kind
	Slide int // -1 when unknown
	Err   error
}

func (e *Error) Error() string {
	if e.Slide >= 0 {
		return fmt.Sprintf("capture: slide %d: %s: %v", e.Slide+1, e.Kind, e.Err)
	}
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match a kind sentinel even when Err wraps something else.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrZeroSizeTarget:
		return e.Kind == KindZeroSizeTarget
	case ErrAssetTimeout:
		return e.Kind == KindAssetTimeout
	case ErrRasterizer:
		return e.Kind == KindRasterizer
	case ErrEmptyCanvas:
		return e.Kind == KindEmptyCanvas
	}
	return false
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Slide: -1, Err: err}
}

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// WithSlide tags err with a slide index when it is a capture error.
func WithSlide(err error, slide int) error {
	var ce *Error
	if errors.As(err, &ce) && ce.Slide < 0 {
		cp := *ce
		cp.Slide = slide
		return &cp
	}
	return err
}
