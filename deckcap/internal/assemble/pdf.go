package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// PDF writes one landscape page per slide, the bitmap filling the page,
// plus an outline entry per slide.
type PDF struct {
	bookmarks bool
}

func (p *PDF) Format() Format { return FormatPDF }

// Assemble builds the document page by page so progress is reported as
// each slide is embedded.
func (p *PDF) Assemble(ctx context.Context, w io.Writer, slides []capture.CapturedSlide, page PageSize, progress ProgressFunc) (Result, error) {
	if len(slides) == 0 {
		return Result{}, errors.New("assemble: pdf: no slides")
	}
	if page.Width <= 0 || page.Height <= 0 {
		page = Landscape1080
	}
	conf := model.NewDefaultConfiguration()
	imp := importConfig(page)

	var doc []byte
	for i, s := range slides {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		img, err := Downscale(s.PNG, page.MaxPixelWidth)
		if err != nil {
			return Result{}, fmt.Errorf("assemble: pdf: slide %d: %w", s.Index+1, err)
		}

		var rs io.ReadSeeker
		if doc != nil {
			rs = bytes.NewReader(doc)
		}
		var out bytes.Buffer
		if err := api.ImportImages(rs, &out, []io.Reader{bytes.NewReader(img)}, imp, conf); err != nil {
			return Result{}, fmt.Errorf("assemble: pdf: embed slide %d: %w", s.Index+1, err)
		}
		doc = out.Bytes()
		report(progress, i+1, len(slides))
	}

	if p.bookmarks {
		bms := make([]pdfcpu.Bookmark, len(slides))
		for i, s := range slides {
			bms[i] = pdfcpu.Bookmark{Title: slideTitle(s), PageFrom: i + 1}
		}
		var out bytes.Buffer
		if err := api.AddBookmarks(bytes.NewReader(doc), &out, bms, true, conf); err != nil {
			return Result{}, fmt.Errorf("assemble: pdf: bookmarks: %w", err)
		}
		doc = out.Bytes()
	}

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc), model.NewDefaultConfiguration())
	if err != nil {
		return Result{}, fmt.Errorf("assemble: pdf: validate: %w", err)
	}
	if pctx.PageCount != len(slides) {
		return Result{}, fmt.Errorf("assemble: pdf: wrote %d pages for %d slides", pctx.PageCount, len(slides))
	}

	n, err := w.Write(doc)
	if err != nil {
		return Result{}, fmt.Errorf("assemble: pdf: write: %w", err)
	}
	return Result{Pages: pctx.PageCount, Bytes: int64(n)}, nil
}

func importConfig(page PageSize) *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	pw, ph := page.Points()
	imp.PageDim = &types.Dim{Width: pw, Height: ph}
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false
	return imp
}
