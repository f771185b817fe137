// Package config loads engine settings from WATERMARK_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const prefix = "WATERMARK"

type Config struct {
	PreviewMaxWidth      int     `envconfig:"PREVIEW_MAX_WIDTH" default:"960"`
	PreviewMaxHeight     int     `envconfig:"PREVIEW_MAX_HEIGHT" default:"720"`
	DecodeWorkers        int     `envconfig:"DECODE_WORKERS" default:"4"`
	FontPath             string  `envconfig:"FONT_PATH"`
	PageSize             string  `envconfig:"PAGE_SIZE" default:"A4"`
	PageJPEGQuality      int     `envconfig:"PAGE_JPEG_QUALITY" default:"92"`
	QuickPositionPadding float64 `envconfig:"QUICK_POSITION_PADDING" default:"16"`
	RotationAwareHitTest bool    `envconfig:"ROTATION_AWARE_HIT_TEST" default:"false"`
	LogLevel             string  `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	return &Config{
		PreviewMaxWidth:      960,
		PreviewMaxHeight:     720,
		DecodeWorkers:        4,
		PageSize:             "A4",
		PageJPEGQuality:      92,
		QuickPositionPadding: 16,
		LogLevel:             "info",
	}
}

func (c *Config) Validate() error {
	if c.PreviewMaxWidth <= 0 || c.PreviewMaxHeight <= 0 {
		return fmt.Errorf("config: preview box %dx%d must be positive", c.PreviewMaxWidth, c.PreviewMaxHeight)
	}
	if c.DecodeWorkers < 1 {
		return fmt.Errorf("config: decode workers %d must be at least 1", c.DecodeWorkers)
	}
	if c.PageJPEGQuality < 1 || c.PageJPEGQuality > 100 {
		return fmt.Errorf("config: page jpeg quality %d out of range 1..100", c.PageJPEGQuality)
	}
	if c.QuickPositionPadding < 0 {
		return fmt.Errorf("config: quick position padding %v is negative", c.QuickPositionPadding)
	}
	if strings.TrimSpace(c.PageSize) == "" {
		return fmt.Errorf("config: page size is empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
