package deckcap

import (
	"github.com/hazyhaar/deckcap/deckcap/internal/config"
)

// Config is the top-level deckcap configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// DeckConfig says where the deck lives and how to drive it.
type DeckConfig = config.DeckConfig

// ExportConfig controls the produced document.
type ExportConfig = config.ExportConfig

// SinkConfig defines an artifact destination.
type SinkConfig = config.SinkConfig

// ServerConfig controls the HTTP API.
type ServerConfig = config.ServerConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return config.Default()
}
