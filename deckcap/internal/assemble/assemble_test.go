package assemble

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func slides(t *testing.T, n int) []capture.CapturedSlide {
	t.Helper()
	out := make([]capture.CapturedSlide, n)
	for i := range out {
		out[i] = capture.CapturedSlide{
			Index:  i,
			Width:  64,
			Height: 36,
			PNG:    solidPNG(t, 64, 36, color.RGBA{uint8(40 * i), 80, 160, 255}),
		}
	}
	return out
}

func TestCollection_OrderedAndReplaces(t *testing.T) {
	c := NewCollection()
	data := []byte{1}
	for _, i := range []int{2, 0, 3, 1} {
		if err := c.Put(capture.CapturedSlide{Index: i, PNG: data}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Put(capture.CapturedSlide{Index: 1, PNG: data, Title: "again"}); err != nil {
		t.Fatal(err)
	}
	got := c.Slides()
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, s := range got {
		if s.Index != i {
			t.Fatalf("position %d holds slide %d", i, s.Index)
		}
	}
	if got[1].Title != "again" {
		t.Errorf("recapture not applied: %+v", got[1])
	}
	if !c.Complete(4) || c.Complete(5) {
		t.Error("Complete mismatch")
	}

	got[0].Index = 99
	if c.Slides()[0].Index != 0 {
		t.Error("Slides must return a copy")
	}
}

func TestCollection_RejectsInvalid(t *testing.T) {
	c := NewCollection()
	if err := c.Put(capture.CapturedSlide{Index: -1, PNG: []byte{1}}); err == nil {
		t.Error("negative index accepted")
	}
	if err := c.Put(capture.CapturedSlide{Index: 0}); err == nil {
		t.Error("empty image accepted")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"pdf", FormatPDF, true},
		{"PPTX", FormatPPTX, true},
		{"", FormatPDF, true},
		{"docx", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPDF_OnePagePerSlideWithProgress(t *testing.T) {
	a, err := New(FormatPDF)
	if err != nil {
		t.Fatal(err)
	}
	in := slides(t, 3)
	in[1].Title = "Market overview"

	var calls [][2]int
	var buf bytes.Buffer
	res, err := a.Assemble(context.Background(), &buf, in, Landscape1080, func(cur, total int) {
		calls = append(calls, [2]int{cur, total})
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if res.Pages != 3 {
		t.Errorf("pages = %d, want 3", res.Pages)
	}
	if len(calls) != 3 || calls[2] != [2]int{3, 3} {
		t.Errorf("progress calls = %v", calls)
	}
	for i, c := range calls {
		if c[0] != i+1 {
			t.Errorf("progress %d reported %d", i, c[0])
		}
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf.Bytes()), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("pdf invalid: %v", err)
	}
	if ctx.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", ctx.PageCount)
	}
}

func TestPDF_NoSlides(t *testing.T) {
	a, _ := New(FormatPDF)
	if _, err := a.Assemble(context.Background(), io.Discard, nil, Landscape1080, nil); err == nil {
		t.Fatal("want error for empty input")
	}
}

func TestPPTX_PartsInSlideOrder(t *testing.T) {
	a, err := New(FormatPPTX)
	if err != nil {
		t.Fatal(err)
	}
	in := slides(t, 3)
	in[0].Notes = "<p>Open with the <strong>headline</strong> number.</p>"

	var buf bytes.Buffer
	res, err := a.Assemble(context.Background(), &buf, in, Landscape1080, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if res.Pages != 3 || res.Bytes != int64(buf.Len()) {
		t.Errorf("result = %+v, buffer %d bytes", res, buf.Len())
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}
	for _, name := range []string{
		"[Content_Types].xml",
		"ppt/presentation.xml",
		"ppt/slides/slide1.xml",
		"ppt/slides/slide3.xml",
		"ppt/media/image2.png",
		"ppt/notesSlides/notesSlide1.xml",
		"ppt/notesMasters/notesMaster1.xml",
	} {
		if files[name] == nil {
			t.Errorf("missing part %s", name)
		}
	}
	if files["ppt/notesSlides/notesSlide2.xml"] != nil {
		t.Error("notes part written for slide without notes")
	}

	img2 := readPart(t, files["ppt/media/image2.png"])
	if !bytes.Equal(img2, in[1].PNG) {
		t.Error("image2.png is not slide index 1")
	}
	notes := string(readPart(t, files["ppt/notesSlides/notesSlide1.xml"]))
	if !strings.Contains(notes, "headline") || strings.Contains(notes, "<strong>") {
		t.Errorf("notes not converted: %s", notes)
	}
	pres := string(readPart(t, files["ppt/presentation.xml"]))
	if !strings.Contains(pres, `cx="12192000" cy="6858000"`) {
		t.Error("presentation is not 16:9")
	}
}

func readPart(t *testing.T, f *zip.File) []byte {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDownscale(t *testing.T) {
	src := solidPNG(t, 400, 200, color.White)
	out, err := Downscale(src, 100)
	if err != nil {
		t.Fatal(err)
	}
	w, h, err := pngSize(out)
	if err != nil {
		t.Fatal(err)
	}
	if w != 100 || h != 50 {
		t.Errorf("size = %dx%d, want 100x50", w, h)
	}
	same, _ := Downscale(src, 0)
	if !bytes.Equal(same, src) {
		t.Error("maxWidth 0 must be a no-op")
	}
}

func TestThumbnail(t *testing.T) {
	src := solidPNG(t, 320, 180, color.Black)
	out, err := Thumbnail(src, 160)
	if err != nil {
		t.Fatal(err)
	}
	w, h, _ := pngSize(out)
	if w != 160 || h != 90 {
		t.Errorf("thumbnail %dx%d", w, h)
	}
}
