// Package config loads the driver's configuration document. Per the spec,
// the document's schema and defaults are treated as an external collaborator
// of the core pipeline — this package exists so the rest of the program has
// something concrete to depend on, not because its internals are load
// bearing for the pipeline's invariants.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env"

	"github.com/scheerer/adalight-pipeline/internal/logging"
)

var logger = logging.New("config")

// ConfigError wraps any failure encountered while loading or validating the
// configuration document. It is always fatal to the process.
type ConfigError struct {
	Stage string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Stage, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// LEDPosition is a single grid cell `(x, y)` on a display, `0 <= x < H` and
// `0 <= y < V` for that display's DisplayConfig.
type LEDPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DisplayConfig describes one display's LED grid and wire order. An entry
// with HorizontalCount == VerticalCount == 0 is a skip placeholder: it
// exists in enumeration order but contributes zero LEDs.
type DisplayConfig struct {
	HorizontalCount int           `json:"horizontalCount"`
	VerticalCount   int           `json:"verticalCount"`
	Positions       []LEDPosition `json:"positions"`
}

// IsSkip reports whether this entry is a placeholder used only to align
// with OS display enumeration order.
func (d DisplayConfig) IsSkip() bool {
	return d.HorizontalCount == 0 && d.VerticalCount == 0
}

// LEDCount returns the number of LEDs this display contributes to the
// global color vector.
func (d DisplayConfig) LEDCount() int { return len(d.Positions) }

// OpcPixelRange is one contiguous run of output pixels on an OpcChannel,
// fed by an ordered list of (display, LED) source lookups.
type OpcPixelRange struct {
	PixelCount   int     `json:"pixelCount"`
	DisplayIndex [][]int `json:"displayIndex"`
}

// SampleCount returns the number of source LEDs feeding this range.
func (r OpcPixelRange) SampleCount() int {
	n := 0
	for _, d := range r.DisplayIndex {
		n += len(d)
	}
	return n
}

// OpcChannel is one OPC channel number plus its ordered pixel ranges.
type OpcChannel struct {
	Channel byte            `json:"channel"`
	Pixels  []OpcPixelRange `json:"pixels"`
}

// TotalPixelCount returns the sum of PixelCount across all ranges on this
// channel.
func (c OpcChannel) TotalPixelCount() int {
	n := 0
	for _, p := range c.Pixels {
		n += p.PixelCount
	}
	return n
}

// OpcServer is one configured OPC/TCP destination.
type OpcServer struct {
	Host         string       `json:"host"`
	Port         string       `json:"port"`
	AlphaChannel bool         `json:"alphaChannel"`
	Channels     []OpcChannel `json:"channels"`
}

// Config is the fully resolved, validated configuration for one run of the
// driver. MinBrightness, Fade, Timeout, FPSMax and ThrottleTimer may be
// overridden by the process environment after the document is parsed.
type Config struct {
	MinBrightness int             `json:"minBrightness" env:"MIN_BRIGHTNESS"`
	Fade          float64         `json:"fade" env:"FADE"`
	Timeout       int             `json:"timeout" env:"TIMEOUT_MS"`
	FPSMax        int             `json:"fpsMax" env:"FPS_MAX"`
	ThrottleTimer int             `json:"throttleTimer" env:"THROTTLE_TIMER_MS"`
	Displays      []DisplayConfig `json:"displays"`
	Servers       []OpcServer     `json:"servers"`
}

// TotalLEDCount sums LED counts across all configured displays, skipping
// placeholders (which always contribute zero).
func (c Config) TotalLEDCount() int {
	n := 0
	for _, d := range c.Displays {
		n += d.LEDCount()
	}
	return n
}

var commentLine = regexp.MustCompile(`(?m)^\s*//.*$`)

// Load reads, strips `//` line comments from, and parses the configuration
// document at path, applies any environment overrides, then validates the
// result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Stage: "read", Cause: err}
	}

	stripped := commentLine.ReplaceAll(raw, nil)

	var cfg Config
	if err := json.Unmarshal(stripped, &cfg); err != nil {
		return nil, &ConfigError{Stage: "parse", Cause: err}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, &ConfigError{Stage: "env-override", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Stage: "validate", Cause: err}
	}

	logger.With("displays", len(cfg.Displays), "servers", len(cfg.Servers), "totalLEDs", cfg.TotalLEDCount()).
		Info("configuration loaded")

	return &cfg, nil
}

// Validate checks the invariants spec.md leaves as load-time configuration
// errors: every displayIndex[i][j] must reference a real (display, LED)
// pair.
func (c Config) Validate() error {
	if c.Fade < 0 || c.Fade > 0.5 {
		return fmt.Errorf("fade must be within [0, 0.5], got %f", c.Fade)
	}
	if c.MinBrightness < 0 || c.MinBrightness > 255 {
		return fmt.Errorf("minBrightness must be within [0, 255], got %d", c.MinBrightness)
	}

	for si, server := range c.Servers {
		for ci, channel := range server.Channels {
			for ri, r := range channel.Pixels {
				for i, displayLEDs := range r.DisplayIndex {
					if i >= len(c.Displays) {
						return fmt.Errorf("servers[%d].channels[%d].pixels[%d].displayIndex references display %d, only %d configured",
							si, ci, ri, i, len(c.Displays))
					}
					ledCount := c.Displays[i].LEDCount()
					for _, led := range displayLEDs {
						if led < 0 || led >= ledCount {
							return fmt.Errorf("servers[%d].channels[%d].pixels[%d].displayIndex references display %d led %d, only %d LEDs configured",
								si, ci, ri, i, led, ledCount)
						}
					}
				}
			}
		}
	}

	return nil
}
