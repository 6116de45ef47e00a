// Package capture forces one visual subtree into a settled state, rasterizes
// it and retries transient failures. It knows nothing about browsers or
// decks: backends plug in through Target, Normalizer and Rasterizer.
package capture

import (
	"context"
	"errors"
	"image"
)

// Box is a layout box in CSS pixels.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either dimension is zero or negative.
func (b Box) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Target is the root of the visual subtree showing the current slide.
type Target interface {
	// ID is stable across navigation.
	ID() string
	// Box returns the current layout box. Implementations may wait one
	// rendering frame before measuring.
	Box(ctx context.Context) (Box, error)
}

// ErrNoFontSignal is returned by FontWaiter when the host has no way to
// report font loading. The prober treats it as success.
var ErrNoFontSignal = errors.New("capture: host exposes no font-loading signal")

// FontWaiter is implemented by targets whose host loads web fonts.
type FontWaiter interface {
	WaitFonts(ctx context.Context) error
}

// Asset is one image inside a target.
type Asset interface {
	// Name identifies the asset in logs (usually its URL).
	Name() string
	// Wait blocks until the asset has loaded or errored.
	Wait(ctx context.Context) error
}

// ImageLister is implemented by targets that contain images.
type ImageLister interface {
	Images(ctx context.Context) ([]Asset, error)
}

// Bitmap is a decoded raster capture.
type Bitmap struct {
	Image image.Image
}

// Width of the bitmap in device pixels.
func (b Bitmap) Width() int {
	if b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dx()
}

// Height of the bitmap in device pixels.
func (b Bitmap) Height() int {
	if b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dy()
}

// CapturedSlide is the encoded result of one successful slide capture.
// It is never mutated after creation.
type CapturedSlide struct {
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    []byte `json:"-"`
	Title  string `json:"title,omitempty"`
	Notes  string `json:"notes,omitempty"`
}
