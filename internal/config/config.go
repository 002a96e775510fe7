// Package config handles a11yview configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level a11yview configuration.
type Config struct {
	Browser        BrowserConfig         `yaml:"browser"`
	Server         ServerConfig          `yaml:"server"`
	Visibility     VisibilityConfig      `yaml:"visibility"`
	Visualizations []VisualizationConfig `yaml:"visualizations"`
	FeatureFlags   map[string]bool       `yaml:"feature_flags"`
}

// BrowserConfig controls the Chrome connection.
type BrowserConfig struct {
	Remote   string `yaml:"remote"`   // WebSocket URL; empty = launch local
	Headless *bool  `yaml:"headless"` // default true
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"` // empty = no server
}

// VisibilityConfig controls instance visibility polling.
type VisibilityConfig struct {
	Interval time.Duration `yaml:"interval"`
	Jitter   time.Duration `yaml:"jitter"`
}

// VisualizationConfig declares one visualization type and its optional
// assessment test steps.
type VisualizationConfig struct {
	Type  string   `yaml:"type"`
	Steps []string `yaml:"steps"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Headless == nil {
		v := true
		c.Browser.Headless = &v
	}
	if c.Visibility.Interval <= 0 {
		c.Visibility.Interval = 600 * time.Millisecond
	}
	if c.FeatureFlags == nil {
		c.FeatureFlags = make(map[string]bool)
	}
}
