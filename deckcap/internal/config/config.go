// Package config handles deckcap configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/deckcap/deckcap/internal/safe"
)

// Config is the top-level deckcap configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Deck    DeckConfig    `yaml:"deck"`
	Export  ExportConfig  `yaml:"export"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls Chrome lifecycle for URL decks.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Headful         bool          `yaml:"headful"`
	Stealth         bool          `yaml:"stealth"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	BlockResources  []string      `yaml:"block_resources"`
	XvfbDisplay     string        `yaml:"xvfb_display"`
}

// DeckConfig says where the deck lives and how its web app is driven.
// Exactly one of URL and File is set.
type DeckConfig struct {
	URL  string `yaml:"url"`
	File string `yaml:"file"`

	SlideSelector  string   `yaml:"slide_selector"`
	MarkerSelector string   `yaml:"marker_selector"`
	ShowScript     string   `yaml:"show_script"`
	CurrentScript  string   `yaml:"current_script"`
	Decorative     []string `yaml:"decorative"`
}

// ExportConfig controls the produced document.
type ExportConfig struct {
	Format        string  `yaml:"format"` // pdf | pptx
	Brand         string  `yaml:"brand"`
	Client        string  `yaml:"client"`
	Scale         float64 `yaml:"scale"`
	Background    string  `yaml:"background"`
	MaxPixelWidth int     `yaml:"max_pixel_width"`
	Bookmarks     *bool   `yaml:"bookmarks"`
	AutoStart     bool    `yaml:"auto_start"`
	StorePath     string  `yaml:"store_path"`
}

// WantBookmarks reports whether PDF outlines are written (default true).
func (e ExportConfig) WantBookmarks() bool { return e.Bookmarks == nil || *e.Bookmarks }

// SinkConfig defines an artifact destination.
type SinkConfig struct {
	Type    string        `yaml:"type"` // dir | webhook | manifest
	Path    string        `yaml:"path"` // dir, manifest ("-" for stdout)
	URL     string        `yaml:"url"`  // webhook
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Backend names the live view implementation.
type Backend string

const (
	BackendBrowser Backend = "browser"
	BackendStatic  Backend = "static"
)

// Backend returns which view the deck needs.
func (c *Config) Backend() Backend {
	if c.Deck.URL != "" {
		return BackendBrowser
	}
	return BackendStatic
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		c.Browser.Width, c.Browser.Height = 1920, 1080
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.BlockResources == nil {
		c.Browser.BlockResources = []string{"media"}
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	c.Export.Format = strings.ToLower(c.Export.Format)
	if c.Export.Format == "" {
		c.Export.Format = "pdf"
	}
	if c.Export.Brand == "" {
		c.Export.Brand = "Deck"
	}
	if c.Export.Scale <= 0 {
		c.Export.Scale = 2
	}
	if c.Export.Background == "" {
		c.Export.Background = "#ffffff"
	}
	if c.Export.MaxPixelWidth <= 0 {
		c.Export.MaxPixelWidth = 3840
	}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		s.Type = strings.ToLower(s.Type)
		if s.Type == "webhook" {
			if s.Retries <= 0 {
				s.Retries = 3
			}
			if s.Backoff <= 0 {
				s.Backoff = time.Second
			}
		}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate checks the configuration is usable for an export.
func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.Deck.URL != "" && c.Deck.File != "":
		errs = append(errs, errors.New("deck: url and file are mutually exclusive"))
	case c.Deck.URL == "" && c.Deck.File == "":
		errs = append(errs, errors.New("deck: one of url or file is required"))
	case c.Deck.URL != "":
		if err := safe.HTTPURL(c.Deck.URL); err != nil {
			errs = append(errs, fmt.Errorf("deck: %w", err))
		}
	}
	switch c.Export.Format {
	case "pdf", "pptx":
	default:
		errs = append(errs, fmt.Errorf("export: unknown format %q", c.Export.Format))
	}
	if !strings.HasPrefix(c.Export.Background, "#") {
		errs = append(errs, fmt.Errorf("export: background %q is not a hex colour", c.Export.Background))
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "dir", "manifest":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: %s sink needs a path", i, s.Type))
			}
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: webhook sink needs a url", i))
			} else if err := safe.HTTPURL(s.URL); err != nil {
				errs = append(errs, fmt.Errorf("sinks[%d]: %w", i, err))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
