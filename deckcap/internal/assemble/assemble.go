// Package assemble turns an ordered set of captured slides into a
// downloadable document. Two strategies exist: PDF and PPTX.
package assemble

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// Format names an output strategy.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPPTX Format = "pptx"
)

// ParseFormat accepts "pdf" or "pptx" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPDF, "":
		return FormatPDF, nil
	case FormatPPTX:
		return FormatPPTX, nil
	}
	return "", fmt.Errorf("assemble: unknown format %q", s)
}

// Formats lists the supported formats.
func Formats() []Format { return []Format{FormatPDF, FormatPPTX} }

// Ext returns the file extension without dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type of documents in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatPPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/pdf"
	}
}

// PageSize is a page in CSS pixels (96 per inch).
type PageSize struct {
	Width  int
	Height int
	// MaxPixelWidth, when > 0, downscales wider bitmaps before embedding.
	MaxPixelWidth int
}

// Landscape1080 is the fixed 16:9 page used for every export.
var Landscape1080 = PageSize{Width: 1920, Height: 1080}

// Points returns the page size in PDF points.
func (p PageSize) Points() (w, h float64) {
	return float64(p.Width) * 0.75, float64(p.Height) * 0.75
}

// ProgressFunc is called once per embedded slide with 1-based cur.
type ProgressFunc func(cur, total int)

// Assembler writes a document of slides, in the given order, to w.
type Assembler interface {
	Format() Format
	Assemble(ctx context.Context, w io.Writer, slides []capture.CapturedSlide, page PageSize, progress ProgressFunc) (Result, error)
}

// Result describes a written document.
type Result struct {
	Pages int
	Bytes int64
}

// New returns the strategy for f.
func New(f Format, opts ...Option) (Assembler, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	switch f {
	case FormatPDF:
		return &PDF{bookmarks: !o.noBookmarks}, nil
	case FormatPPTX:
		return &PPTX{}, nil
	}
	return nil, fmt.Errorf("assemble: unknown format %q", f)
}

type options struct {
	noBookmarks bool
}

// Option configures New.
type Option func(*options)

// WithoutBookmarks disables the PDF outline.
func WithoutBookmarks() Option { return func(o *options) { o.noBookmarks = true } }

func report(progress ProgressFunc, cur, total int) {
	if progress != nil {
		progress(cur, total)
	}
}

func slideTitle(s capture.CapturedSlide) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return fmt.Sprintf("Slide %d", s.Index+1)
}
