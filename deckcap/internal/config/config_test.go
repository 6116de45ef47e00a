package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckcap.yaml")
	src := `
browser:
  remote: ws://chrome:9222/devtools/browser/abc
  recycle_interval: 30m
deck:
  url: http://reports.local/deck/42
  decorative: [".pulse-dot"]
export:
  format: PPTX
  brand: Acme
  client: Globex Corp
  bookmarks: false
sinks:
  - type: webhook
    url: http://hooks.local/in
  - type: dir
    path: /srv/exports
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Backend() != BackendBrowser {
		t.Errorf("backend = %s", cfg.Backend())
	}
	if cfg.Browser.RecycleInterval != 30*time.Minute {
		t.Errorf("recycle = %v", cfg.Browser.RecycleInterval)
	}
	if cfg.Export.Format != "pptx" || cfg.Export.WantBookmarks() {
		t.Errorf("export = %+v", cfg.Export)
	}
	if cfg.Sinks[0].Retries != 3 || cfg.Sinks[0].Backoff != time.Second {
		t.Errorf("webhook defaults = %+v", cfg.Sinks[0])
	}
	if len(cfg.Deck.Decorative) != 1 {
		t.Errorf("decorative = %v", cfg.Deck.Decorative)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Export.Format != "pdf" || cfg.Export.Brand != "Deck" || cfg.Export.Scale != 2 {
		t.Errorf("export defaults = %+v", cfg.Export)
	}
	if !cfg.Export.WantBookmarks() {
		t.Error("bookmarks default off")
	}
	if cfg.Browser.Width != 1920 || cfg.Browser.Height != 1080 {
		t.Errorf("viewport = %dx%d", cfg.Browser.Width, cfg.Browser.Height)
	}
	if len(cfg.Browser.BlockResources) != 1 || cfg.Browser.BlockResources[0] != "media" {
		t.Errorf("block = %v", cfg.Browser.BlockResources)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Backend() != BackendStatic {
		t.Errorf("backend = %s", cfg.Backend())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"no deck", func(c *Config) {}, "one of url or file"},
		{"both", func(c *Config) { c.Deck.URL, c.Deck.File = "http://x", "d.yaml" }, "mutually exclusive"},
		{"format", func(c *Config) { c.Deck.File = "d.yaml"; c.Export.Format = "docx" }, "unknown format"},
		{"sink", func(c *Config) { c.Deck.File = "d.yaml"; c.Sinks = []SinkConfig{{Type: "s3"}} }, "unknown type"},
		{"dir path", func(c *Config) { c.Deck.File = "d.yaml"; c.Sinks = []SinkConfig{{Type: "dir"}} }, "needs a path"},
		{"deck scheme", func(c *Config) { c.Deck.URL = "file:///tmp/deck.html" }, "only http and https"},
		{"webhook scheme", func(c *Config) {
			c.Deck.File = "d.yaml"
			c.Sinks = []SinkConfig{{Type: "webhook", URL: "ftp://hooks.local/in"}}
		}, "only http and https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	ok := Default()
	ok.Deck.File = "deck.yaml"
	if err := ok.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("export: [")); err == nil {
		t.Fatal("want error")
	}
}
