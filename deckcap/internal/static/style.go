package static

import (
	"math"
	"time"
)

// Style is the animatable state of one element.
type Style struct {
	Opacity    float64
	TranslateX float64
	TranslateY float64
	Scale      float64
	// Pulse is the phase of a decorative loop in [0,1]; 0 is at rest.
	Pulse float64
}

// Rest is the style of an element with no effect applied.
var Rest = Style{Opacity: 1, Scale: 1}

// FinalState is the visual state of any element once every entrance
// animation has finished and looping effects are stopped. It ignores its
// input's animated values, so FinalState(FinalState(s)) == FinalState(s).
func FinalState(Style) Style { return Rest }

// riseOffset is how far "rise" elements travel, in slide pixels.
const riseOffset = 40

// Animate returns the live style of e at elapsed time since its slide was
// shown.
func Animate(e Element, elapsed time.Duration) Style {
	s := Rest
	a := e.Animation
	if a.Type != "" && a.Type != "none" {
		p := 1.0
		if a.DurationMS > 0 {
			p = (float64(elapsed.Milliseconds()) - float64(a.DelayMS)) / float64(a.DurationMS)
		} else if elapsed < time.Duration(a.DelayMS)*time.Millisecond {
			p = 0
		}
		p = easeOut(clamp01(p))
		switch a.Type {
		case "fade":
			s.Opacity = p
		case "rise":
			s.Opacity = p
			s.TranslateY = (1 - p) * riseOffset
		case "zoom":
			s.Opacity = p
			s.Scale = 0.8 + 0.2*p
		}
	}
	if e.Decorative || e.Kind == KindPulse {
		// 1.2s loop.
		phase := math.Mod(elapsed.Seconds(), 1.2) / 1.2
		s.Pulse = 0.5 - 0.5*math.Cos(2*math.Pi*phase)
	}
	return s
}

// SettleTime is when every entrance animation on s has completed.
func SettleTime(s Slide) time.Duration {
	var end int
	for _, e := range s.Elements {
		a := e.Animation
		if a.Type == "" || a.Type == "none" {
			continue
		}
		end = max(end, a.DelayMS+a.DurationMS)
	}
	return time.Duration(end) * time.Millisecond
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func easeOut(p float64) float64 { return 1 - (1-p)*(1-p)*(1-p) }
