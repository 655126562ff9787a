// Package config loads runtime configuration for the scanner.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ayusman/codescan/internal/decoder"
)

// Config holds runtime configuration for capture, decoding and serving.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	// Capture
	CameraID    int    `json:"camera_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	OpenTimeout string `json:"open_timeout"`

	// Decoding
	Formats   []string `json:"formats"`
	TryHarder bool     `json:"try_harder"`
	// MotionThreshold, when positive, skips decoding still frames that follow
	// a detection. It is the percentage of pixels that must change.
	MotionThreshold float64 `json:"motion_threshold"`

	// Cue
	Beep      bool `json:"beep"`
	CueBuffer int  `json:"cue_buffer"`

	// Server
	Addr              string `json:"addr"`
	StaticDir         string `json:"static_dir"`
	StopWhenUnwatched bool   `json:"stop_when_unwatched"`
	AutoStart         bool   `json:"auto_start"`

	// History store: a sqlite file path or a postgres:// URL. Empty disables history.
	DSN string `json:"dsn"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		CameraID:    0,
		Width:       1280,
		Height:      720,
		FPS:         30,
		OpenTimeout: "5s",
		TryHarder:   true,
		Beep:        true,
		CueBuffer:   16,
		Addr:        "127.0.0.1:8080",
		DSN:         "codescan.db",
	}
}

// Validate clamps values to safe ranges. It returns an error only for values
// that cannot be repaired, such as an unknown barcode format.
func (c *Config) Validate() error {
	if c.CameraID < 0 {
		c.CameraID = 0
	}
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.FPS <= 0 || c.FPS > 240 {
		c.FPS = 30
	}
	if d, err := time.ParseDuration(c.OpenTimeout); err != nil || d <= 0 {
		c.OpenTimeout = "5s"
	}
	if c.MotionThreshold < 0 || c.MotionThreshold > 100 {
		c.MotionThreshold = 0
	}
	if c.CueBuffer <= 0 {
		c.CueBuffer = 16
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}

	supported := make(map[decoder.Format]bool)
	for _, f := range decoder.AllFormats() {
		supported[f] = true
	}
	for i, f := range c.Formats {
		name := decoder.Format(strings.ToUpper(strings.TrimSpace(f)))
		if !supported[name] {
			return fmt.Errorf("unsupported barcode format %q", f)
		}
		c.Formats[i] = string(name)
	}
	return nil
}

// OpenTimeoutDuration returns OpenTimeout parsed, or 5s if it does not parse.
func (c *Config) OpenTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.OpenTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// DecoderConfig returns the decoder settings described by c.
func (c *Config) DecoderConfig() decoder.Config {
	cfg := decoder.Config{TryHarder: c.TryHarder}
	for _, f := range c.Formats {
		cfg.Formats = append(cfg.Formats, decoder.Format(f))
	}
	return cfg
}

// Load reads configuration from the given JSON file path. If the file does not
// exist it returns Default(). On a decode or validation error it returns the
// defaults with the error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
