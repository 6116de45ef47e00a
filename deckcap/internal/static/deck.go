// Package static is the in-process live view: slides are data, shown with
// entrance animations for the viewer and captured through the pure
// FinalState style function, so capture never mutates what is on screen.
package static

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

// Element kinds.
const (
	KindText    = "text"
	KindRect    = "rect"
	KindImage   = "image"
	KindPattern = "pattern"
	KindPulse   = "pulse"
	KindCanvas  = "canvas"
)

// Deck is a slide deck as data.
type Deck struct {
	Title      string  `yaml:"title" json:"title"`
	Width      float64 `yaml:"width" json:"width"`
	Height     float64 `yaml:"height" json:"height"`
	Background string  `yaml:"background" json:"background"`
	Slides     []Slide `yaml:"slides" json:"slides"`

	dir string
}

// Slide is one slide.
type Slide struct {
	Title      string    `yaml:"title" json:"title"`
	Notes      string    `yaml:"notes" json:"notes"`
	Background string    `yaml:"background" json:"background"`
	Elements   []Element `yaml:"elements" json:"elements"`
}

// Element is one drawable on a slide. Geometry is in slide pixels.
type Element struct {
	Kind string  `yaml:"kind" json:"kind"`
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
	W    float64 `yaml:"w" json:"w"`
	H    float64 `yaml:"h" json:"h"`

	Text  string  `yaml:"text" json:"text"`
	Size  float64 `yaml:"size" json:"size"`
	Color string  `yaml:"color" json:"color"`
	Align string  `yaml:"align" json:"align"`
	Bold  bool    `yaml:"bold" json:"bold"`

	Fill   string  `yaml:"fill" json:"fill"`
	Radius float64 `yaml:"radius" json:"radius"`
	Src    string  `yaml:"src" json:"src"`

	// Pattern tile size; the tile is a dot of Color on Fill.
	TileW int `yaml:"tile_w" json:"tile_w"`
	TileH int `yaml:"tile_h" json:"tile_h"`

	// Decorative elements loop forever in the live view.
	Decorative bool      `yaml:"decorative" json:"decorative"`
	Animation  Animation `yaml:"animation" json:"animation"`
}

// Animation is an entrance effect.
type Animation struct {
	Type       string `yaml:"type" json:"type"` // fade, rise, zoom, none
	DelayMS    int    `yaml:"delay_ms" json:"delay_ms"`
	DurationMS int    `yaml:"duration_ms" json:"duration_ms"`
}

var (
	textPolicy  = bluemonday.StrictPolicy()
	notesPolicy = bluemonday.UGCPolicy()
)

// LoadDeck reads a YAML (or JSON) deck file. Relative image paths resolve
// against the file's directory.
func LoadDeck(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("static: read deck: %w", err)
	}
	d, err := ParseDeck(data)
	if err != nil {
		return nil, err
	}
	d.dir = filepath.Dir(path)
	return d, nil
}

// ParseDeck decodes, defaults, sanitizes and validates a deck.
func ParseDeck(data []byte) (*Deck, error) {
	var d Deck
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("static: parse deck: %w", err)
	}
	d.applyDefaults()
	d.sanitize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Deck) applyDefaults() {
	if d.Width <= 0 {
		d.Width = 1920
	}
	if d.Height <= 0 {
		d.Height = 1080
	}
	if d.Background == "" {
		d.Background = "#ffffff"
	}
	for i := range d.Slides {
		for j := range d.Slides[i].Elements {
			e := &d.Slides[i].Elements[j]
			if e.Kind == "" {
				e.Kind = KindText
			}
			if e.Kind == KindText && e.Size <= 0 {
				e.Size = 32
			}
			if e.Color == "" {
				e.Color = "#111827"
			}
			if e.Fill == "" {
				e.Fill = "#e5e7eb"
			}
		}
	}
}

// sanitize strips markup from display text; the generation service emits
// HTML fragments. Notes keep safe formatting for the PPTX converter.
func (d *Deck) sanitize() {
	d.Title = plain(d.Title)
	for i := range d.Slides {
		s := &d.Slides[i]
		s.Title = plain(s.Title)
		s.Notes = notesPolicy.Sanitize(s.Notes)
		for j := range s.Elements {
			s.Elements[j].Text = plain(s.Elements[j].Text)
		}
	}
}

func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// Validate checks the deck is renderable.
func (d *Deck) Validate() error {
	if len(d.Slides) == 0 {
		return errors.New("static: deck has no slides")
	}
	for i, s := range d.Slides {
		for j, e := range s.Elements {
			switch e.Kind {
			case KindText, KindRect, KindImage, KindPattern, KindPulse, KindCanvas:
			default:
				return fmt.Errorf("static: slide %d element %d: unknown kind %q", i+1, j+1, e.Kind)
			}
			if e.Kind == KindImage && e.Src == "" {
				return fmt.Errorf("static: slide %d element %d: image without src", i+1, j+1)
			}
			if e.W < 0 || e.H < 0 || e.TileW < 0 || e.TileH < 0 {
				return fmt.Errorf("static: slide %d element %d: negative size", i+1, j+1)
			}
		}
	}
	return nil
}

func (d *Deck) resolve(src string) string {
	if filepath.IsAbs(src) || d.dir == "" {
		return src
	}
	return filepath.Join(d.dir, src)
}
