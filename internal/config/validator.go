package config

import (
	"fmt"
	"log/slog"
	"math"
)

// Validate checks the configuration, filling zero values that have a
// sensible default.
func Validate(cfg *Config) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log_level %q: want debug, info, warn or error", cfg.LogLevel)
	}

	if cfg.Encode.Framerate == 0 {
		return fmt.Errorf("encode.framerate must be > 0")
	}
	if cfg.Encode.CompressionLevel < 1 || cfg.Encode.CompressionLevel > 22 {
		return fmt.Errorf("encode.compression_level must be in 1..22, got %d", cfg.Encode.CompressionLevel)
	}

	if cfg.Play.Speed == 0 {
		cfg.Play.Speed = 1
	}
	if cfg.Play.Speed < 0 || math.IsNaN(cfg.Play.Speed) || math.IsInf(cfg.Play.Speed, 0) {
		return fmt.Errorf("play.speed must be a positive number, got %v", cfg.Play.Speed)
	}
	if cfg.Play.Buffer <= 0 {
		cfg.Play.Buffer = 30 // default
	}

	if cfg.Serve.Addr == "" {
		return fmt.Errorf("serve.addr is required")
	}
	if cfg.Serve.Dir == "" {
		cfg.Serve.Dir = "."
	}
	if cfg.Serve.CertValidity < 0 {
		return fmt.Errorf("serve.cert_validity must not be negative")
	}
	return nil
}
