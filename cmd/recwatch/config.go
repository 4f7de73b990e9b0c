package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level recwatch configuration.
type Config struct {
	Listen        string        `yaml:"listen"`
	DBPath        string        `yaml:"db_path"`
	RecordingsDir string        `yaml:"recordings_dir"`
	LogLevel      string        `yaml:"log_level"`
	Browser       BrowserConfig `yaml:"browser"`
	MCP           MCPConfig     `yaml:"mcp"`
}

// BrowserConfig controls session defaults and teardown bounds.
type BrowserConfig struct {
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	CloseTimeout      time.Duration `yaml:"close_timeout"`
	Headless          bool          `yaml:"headless"`
}

// MCPConfig enables the MCP stdio transport.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// loadConfig reads a YAML configuration file. An empty path yields the
// defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.DBPath == "" {
		c.DBPath = "db/recwatch.db"
	}
	if c.RecordingsDir == "" {
		c.RecordingsDir = "/tmp/recordings"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Browser.CloseTimeout <= 0 {
		c.Browser.CloseTimeout = 10 * time.Second
	}
}
