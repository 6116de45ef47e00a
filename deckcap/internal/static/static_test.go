package static

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

const smallDeck = `
title: "Quarterly <em>review</em>"
width: 160
height: 90
background: "#0f172a"
slides:
  - title: "Revenue &amp; growth"
    notes: "<p>Lead with <b>revenue</b>.</p><script>alert(1)</script>"
    elements:
      - kind: rect
        x: 10
        y: 10
        w: 60
        h: 30
        fill: "#2563eb"
        radius: 4
        animation: {type: rise, delay_ms: 200, duration_ms: 600}
      - kind: text
        x: 10
        y: 50
        w: 140
        h: 20
        text: "<b>Q3</b> up 12%"
        size: 10
        color: "#ffffff"
        animation: {type: fade, duration_ms: 400}
      - kind: pulse
        x: 140
        y: 10
        w: 8
        h: 8
        fill: "#22c55e"
        decorative: true
      - kind: canvas
        x: 0
        y: 0
        w: 160
        h: 90
        color: "#94a3b8"
  - title: "Texture"
    elements:
      - kind: pattern
        x: 0
        y: 0
        w: 160
        h: 90
        tile_w: 0
        tile_h: 0
        fill: "#f1f5f9"
        color: "#cbd5e1"
      - kind: pattern
        x: 0
        y: 45
        w: 160
        h: 45
        tile_w: 8
        tile_h: 8
        fill: "#f1f5f9"
        color: "#64748b"
`

func mustDeck(t *testing.T) *Deck {
	t.Helper()
	d, err := ParseDeck([]byte(smallDeck))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestParseDeck_DefaultsAndSanitize(t *testing.T) {
	d := mustDeck(t)
	if d.Title != "Quarterly review" {
		t.Errorf("deck title = %q", d.Title)
	}
	s := d.Slides[0]
	if s.Title != "Revenue & growth" {
		t.Errorf("slide title = %q", s.Title)
	}
	if got := s.Elements[1].Text; got != "Q3 up 12%" {
		t.Errorf("text = %q", got)
	}
	if strings.Contains(s.Notes, "script") || !strings.Contains(s.Notes, "<b>revenue</b>") {
		t.Errorf("notes = %q", s.Notes)
	}
}

func TestParseDeck_Invalid(t *testing.T) {
	tests := map[string]string{
		"no slides":    "title: x\n",
		"unknown kind": "slides:\n  - elements:\n      - kind: video\n",
		"image no src": "slides:\n  - elements:\n      - kind: image\n",
		"negative":     "slides:\n  - elements:\n      - kind: rect\n        w: -1\n",
	}
	for name, src := range tests {
		if _, err := ParseDeck([]byte(src)); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestFinalState_Idempotent(t *testing.T) {
	inputs := []Style{
		{},
		{Opacity: 0.2, TranslateY: 30, Scale: 0.8, Pulse: 0.7},
		Rest,
	}
	for _, in := range inputs {
		once := FinalState(in)
		if twice := FinalState(once); twice != once {
			t.Errorf("FinalState not idempotent for %+v: %+v vs %+v", in, once, twice)
		}
		if once.Opacity != 1 || once.Scale != 1 || once.TranslateX != 0 || once.TranslateY != 0 || once.Pulse != 0 {
			t.Errorf("FinalState(%+v) = %+v", in, once)
		}
	}
}

func TestAnimate_EntranceCurve(t *testing.T) {
	e := Element{Kind: KindRect, Animation: Animation{Type: "rise", DelayMS: 200, DurationMS: 600}}
	start := Animate(e, 0)
	if start.Opacity != 0 || start.TranslateY != riseOffset {
		t.Errorf("start = %+v", start)
	}
	end := Animate(e, 800*time.Millisecond)
	if end != Rest {
		t.Errorf("end = %+v, want rest", end)
	}
	mid := Animate(e, 500*time.Millisecond)
	if mid.Opacity <= 0 || mid.Opacity >= 1 {
		t.Errorf("mid opacity = %v", mid.Opacity)
	}

	d := mustDeck(t)
	if got := SettleTime(d.Slides[0]); got != 800*time.Millisecond {
		t.Errorf("SettleTime = %v, want 800ms", got)
	}
}

func TestNormalizer_FrozenAndRepeatable(t *testing.T) {
	d := mustDeck(t)
	v := NewView(d)
	tgt, err := v.CurrentTarget(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	box, _ := tgt.Box(context.Background())

	var n Normalizer
	restore, err := n.Normalize(context.Background(), tgt, box)
	if err != nil {
		t.Fatal(err)
	}
	first := tgt.(*Target).frame()
	if !first.Frozen {
		t.Fatal("frame not frozen after normalize")
	}
	for _, it := range first.Items {
		if it.Element.Kind == KindCanvas {
			t.Error("canvas element kept in frozen frame")
		}
		if it.Style != Rest {
			t.Errorf("%s style = %+v", it.Element.Kind, it.Style)
		}
	}

	again, err := n.Normalize(context.Background(), tgt, box)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tgt.(*Target).frame(), first) {
		t.Error("second normalize changed the frozen frame")
	}
	_ = again(context.Background())
	if !tgt.(*Target).frame().Frozen {
		t.Error("nested restore dropped the first clone")
	}

	if err := restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	live := tgt.(*Target).frame()
	if live.Frozen {
		t.Error("restore left target frozen")
	}
	hasCanvas := false
	for _, it := range live.Items {
		hasCanvas = hasCanvas || it.Element.Kind == KindCanvas
	}
	if !hasCanvas {
		t.Error("live frame lost its canvas element")
	}
}

func TestView_WaitSettledUsesAnimationEnd(t *testing.T) {
	d := mustDeck(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration
	v := NewView(d, WithClock(func() time.Time { return now }, func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}))
	if err := v.Show(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if err := v.WaitSettled(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 800*time.Millisecond {
		t.Errorf("slept %v, want [800ms]", slept)
	}
	if err := v.Show(context.Background(), 5); err == nil {
		t.Error("out of range show accepted")
	}
}

func TestRender_SizeAndBackground(t *testing.T) {
	r := NewRenderer()
	f := Frame{Width: 100, Height: 50, Background: "#ff0000"}
	img, err := r.Render(f, 2, color.White)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("size = %v, want 200x100", b)
	}
	cr, cg, cb, _ := img.At(1, 1).RGBA()
	if cr>>8 < 200 || cg>>8 > 40 || cb>>8 > 40 {
		t.Errorf("corner = %d,%d,%d, want red", cr>>8, cg>>8, cb>>8)
	}

	empty, err := r.Render(Frame{}, 2, color.White)
	if err != nil {
		t.Fatal(err)
	}
	if !empty.Bounds().Empty() {
		t.Error("zero frame produced pixels")
	}
}

func TestSafePattern_ZeroTile(t *testing.T) {
	if p := SafePattern(nil, image.NewRGBA(image.Rectangle{})); p != nil {
		t.Error("zero tile produced a pattern")
	}
	if p := SafePattern(nil, nil); p != nil {
		t.Error("nil tile produced a pattern")
	}
}

func newPipeline() *capture.Pipeline {
	noSleep := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return &capture.Pipeline{
		Prober:     capture.NewProber(capture.WithProberSleep(noSleep)),
		Normalizer: Normalizer{},
		Adapter:    capture.NewAdapter(NewRasterizer(nil), capture.RasterOptions{Scale: 1}, nil),
		Retrier:    capture.NewRetrier(capture.WithRetrySleep(noSleep)),
	}
}

func TestPipeline_ZeroSizeTileCapturesUnderPatch(t *testing.T) {
	d := mustDeck(t)
	v := NewView(d)
	if err := v.Show(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	tgt, _ := v.CurrentTarget(context.Background())

	cs, err := newPipeline().Capture(context.Background(), 1, tgt)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if cs.Width != 160 || cs.Height != 90 || len(cs.PNG) == 0 {
		t.Errorf("captured %dx%d (%d bytes)", cs.Width, cs.Height, len(cs.PNG))
	}
	if cs.Title != "Texture" {
		t.Errorf("title = %q", cs.Title)
	}
	if Patterns.Active() {
		t.Error("pattern override still installed")
	}
	if reflect.ValueOf(Patterns.Load()).Pointer() != reflect.ValueOf(PatternFunc(ImagePattern)).Pointer() {
		t.Error("pattern constructor not restored to the stock function")
	}
	if tgt.(*Target).frame().Frozen {
		t.Error("target left frozen after capture")
	}
}

func TestPipeline_ImageAssets(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	f, err := os.Create(filepath.Join(dir, "logo.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	deckYAML := "width: 64\nheight: 36\nslides:\n  - elements:\n" +
		"      - {kind: image, src: logo.png, x: 0, y: 0, w: 16, h: 16}\n" +
		"      - {kind: image, src: missing.png, x: 20, y: 0, w: 16, h: 16}\n"
	path := filepath.Join(dir, "deck.yaml")
	if err := os.WriteFile(path, []byte(deckYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := LoadDeck(path)
	if err != nil {
		t.Fatal(err)
	}
	v := NewView(d)
	tgt, _ := v.CurrentTarget(context.Background())

	cs, err := newPipeline().Capture(context.Background(), 0, tgt)
	if err != nil {
		t.Fatalf("capture with one broken image: %v", err)
	}
	if cs.Width != 64 {
		t.Errorf("width = %d", cs.Width)
	}
	if v.images.get(filepath.Join(dir, "logo.png")) == nil {
		t.Error("logo not cached after readiness wait")
	}
}
