// Package config loads the frame grabber program settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the program settings. Zero fields take their defaults.
type Config struct {
	Device  string `yaml:"device"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Buffers uint32 `yaml:"buffers"` // mmap buffers requested from the driver
	Quality int    `yaml:"quality"` // JPEG quality 0-100

	Captures int           `yaml:"captures"`
	Interval time.Duration `yaml:"interval"` // pause between captures, e.g. "1s"
	Output   string        `yaml:"output"`   // file pattern with one %d for the frame number
	Raw      bool          `yaml:"raw"`      // also dump the raw YUYV frame next to each image

	// AcquireTimeout bounds each frame wait. Zero waits forever.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// Default returns the settings of the stock demonstration run: five
// 640x480 frames from /dev/video0, one second apart.
func Default() Config {
	return Config{
		Device:   "/dev/video0",
		Width:    640,
		Height:   480,
		Buffers:  4,
		Quality:  70,
		Captures: 5,
		Interval: time.Second,
		Output:   "frame%d.jpg",
		LogLevel: "info",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("device is required"))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("resolution %dx%d must be positive", c.Width, c.Height))
	}
	if c.Buffers < 2 {
		errs = append(errs, fmt.Errorf("buffers must be at least 2, got %d", c.Buffers))
	}
	if c.Quality < 0 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be between 0 and 100, got %d", c.Quality))
	}
	if c.Captures < 0 {
		errs = append(errs, fmt.Errorf("captures must not be negative, got %d", c.Captures))
	}
	if c.Interval < 0 || c.AcquireTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if strings.Count(c.Output, "%d") != 1 {
		errs = append(errs, fmt.Errorf("output %q must contain exactly one %%d", c.Output))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// FramePath returns the output path of capture n (1-based).
func (c *Config) FramePath(n int) string {
	return fmt.Sprintf(c.Output, n)
}
