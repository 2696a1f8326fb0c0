// Package config loads the ctv YAML configuration file and applies
// environment overrides on top of it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ctv configuration
type Config struct {
	LogLevel string       `yaml:"log_level"` // debug, info, warn, error
	Encode   EncodeConfig `yaml:"encode"`
	Play     PlayConfig   `yaml:"play"`
	Serve    ServeConfig  `yaml:"serve"`
}

// EncodeConfig controls streams written by the gen command
type EncodeConfig struct {
	Framerate        uint32 `yaml:"framerate"`
	CompressionLevel int    `yaml:"compression_level"` // zstd level, 1-22
}

// PlayConfig controls playback pacing
type PlayConfig struct {
	Speed   float64 `yaml:"speed"`   // 2.0 plays twice as fast
	Buffer  int     `yaml:"buffer"`  // frames decoded ahead
	Unpaced bool    `yaml:"unpaced"` // render as fast as frames decode
}

// ServeConfig contains transport server settings
type ServeConfig struct {
	Addr         string        `yaml:"addr"`     // QUIC listen address
	APIAddr      string        `yaml:"api_addr"` // HTTPS API listen address, empty disables it
	Dir          string        `yaml:"dir"`      // directory of .ctv files to serve
	CertValidity time.Duration `yaml:"cert_validity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Encode: EncodeConfig{
			Framerate:        30,
			CompressionLevel: 3,
		},
		Play: PlayConfig{
			Speed:  1,
			Buffer: 30,
		},
		Serve: ServeConfig{
			Addr:         ":4443",
			APIAddr:      ":4444",
			Dir:          ".",
			CertValidity: 14 * 24 * time.Hour,
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// yields the defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyEnv(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CTV_LOG_LEVEL, CTV_ADDR, CTV_API_ADDR and
// CTV_DIR. A set DEBUG variable forces the debug level.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	cfg.LogLevel = envOr(getenv, "CTV_LOG_LEVEL", cfg.LogLevel)
	cfg.Serve.Addr = envOr(getenv, "CTV_ADDR", cfg.Serve.Addr)
	cfg.Serve.APIAddr = envOr(getenv, "CTV_API_ADDR", cfg.Serve.APIAddr)
	cfg.Serve.Dir = envOr(getenv, "CTV_DIR", cfg.Serve.Dir)
	if getenv("DEBUG") != "" {
		cfg.LogLevel = "debug"
	}
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}
