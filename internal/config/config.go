// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mosaic configuration.
type Config struct {
	Cache    Cache    `yaml:"cache"`
	Loader   Loader   `yaml:"loader"`
	Viewport Viewport `yaml:"viewport"`
	Render   Render   `yaml:"render"`
	Source   Source   `yaml:"source"`
	Action   Action   `yaml:"action"`
}

// Cache holds resource cache settings.
type Cache struct {
	Capacity int `yaml:"capacity"` // Max cached entries
}

// Loader holds load scheduling settings.
type Loader struct {
	MaxInFlight int           `yaml:"max_in_flight"`
	Retry       RetryConfig   `yaml:"retry"`
	HoldWindow  time.Duration `yaml:"hold_window"` // Dispatch deferral after interaction
}

// RetryConfig holds retry strategy settings.
type RetryConfig struct {
	ThumbnailAttempts int           `yaml:"thumbnail_attempts"`
	OriginalAttempts  int           `yaml:"original_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// Viewport holds visible-range estimation settings.
type Viewport struct {
	OverscanRows    int     `yaml:"overscan_rows"`
	AspectRatio     float64 `yaml:"aspect_ratio"`      // Fallback width/height for unmeasured tiles
	WorkingSetLimit int     `yaml:"working_set_limit"` // Collection size above which far items are skipped
}

// Render holds tile rendering settings.
type Render struct {
	Renderer string `yaml:"renderer"` // "halfblock" | "solid"
}

// Source holds collection scanning settings.
type Source struct {
	Extensions []string `yaml:"extensions"` // Recognized image extensions; empty means built-in defaults
}

// Action holds the external open command settings.
type Action struct {
	Command string `yaml:"command"` // Shell command; {path} expands to the item's file
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cache: Cache{
			Capacity: 512,
		},
		Loader: Loader{
			MaxInFlight: 12,
			Retry: RetryConfig{
				ThumbnailAttempts: 3,
				OriginalAttempts:  2,
				BackoffBase:       450 * time.Millisecond,
				BackoffMax:        5 * time.Second,
			},
			HoldWindow: 150 * time.Millisecond,
		},
		Viewport: Viewport{
			OverscanRows:    2,
			AspectRatio:     2.0,
			WorkingSetLimit: 2000,
		},
		Render: Render{
			Renderer: "halfblock",
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("config: cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	if c.Loader.MaxInFlight < 1 {
		return fmt.Errorf("config: loader.max_in_flight must be at least 1, got %d", c.Loader.MaxInFlight)
	}
	if c.Loader.Retry.ThumbnailAttempts < 0 {
		return fmt.Errorf("config: loader.retry.thumbnail_attempts must be non-negative, got %d", c.Loader.Retry.ThumbnailAttempts)
	}
	if c.Loader.Retry.OriginalAttempts < 0 {
		return fmt.Errorf("config: loader.retry.original_attempts must be non-negative, got %d", c.Loader.Retry.OriginalAttempts)
	}
	if c.Loader.Retry.BackoffBase <= 0 {
		return fmt.Errorf("config: loader.retry.backoff_base must be positive, got %v", c.Loader.Retry.BackoffBase)
	}
	if c.Loader.Retry.BackoffMax < c.Loader.Retry.BackoffBase {
		return fmt.Errorf("config: loader.retry.backoff_max must be at least backoff_base, got %v", c.Loader.Retry.BackoffMax)
	}
	if c.Loader.HoldWindow < 0 {
		return fmt.Errorf("config: loader.hold_window must be non-negative, got %v", c.Loader.HoldWindow)
	}
	if c.Viewport.OverscanRows < 0 {
		return fmt.Errorf("config: viewport.overscan_rows must be non-negative, got %d", c.Viewport.OverscanRows)
	}
	if c.Viewport.AspectRatio <= 0 {
		return fmt.Errorf("config: viewport.aspect_ratio must be positive, got %v", c.Viewport.AspectRatio)
	}
	if c.Viewport.WorkingSetLimit < 1 {
		return fmt.Errorf("config: viewport.working_set_limit must be at least 1, got %d", c.Viewport.WorkingSetLimit)
	}
	switch c.Render.Renderer {
	case "halfblock", "solid":
		// valid
	default:
		return fmt.Errorf("config: render.renderer must be \"halfblock\" or \"solid\", got %q", c.Render.Renderer)
	}
	for _, ext := range c.Source.Extensions {
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("config: source.extensions entries need a leading dot, got %q", ext)
		}
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: MOSAIC_CACHE_CAPACITY, MOSAIC_MAX_IN_FLIGHT,
// MOSAIC_RENDERER, MOSAIC_ACTION_COMMAND.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("MOSAIC_CACHE_CAPACITY"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("config: invalid MOSAIC_CACHE_CAPACITY %q: %w", v, err)
		}
		c.Cache.Capacity = n
	}
	if v := os.Getenv("MOSAIC_MAX_IN_FLIGHT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("config: invalid MOSAIC_MAX_IN_FLIGHT %q: %w", v, err)
		}
		c.Loader.MaxInFlight = n
	}
	if v := os.Getenv("MOSAIC_RENDERER"); v != "" {
		c.Render.Renderer = v
	}
	if v := os.Getenv("MOSAIC_ACTION_COMMAND"); v != "" {
		c.Action.Command = v
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", n)
	}
	return n, nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Cache    *rawCache    `yaml:"cache"`
	Loader   *rawLoader   `yaml:"loader"`
	Viewport *rawViewport `yaml:"viewport"`
	Render   *rawRender   `yaml:"render"`
	Source   *rawSource   `yaml:"source"`
	Action   *rawAction   `yaml:"action"`
}

type rawCache struct {
	Capacity *int `yaml:"capacity"`
}

type rawLoader struct {
	MaxInFlight *int            `yaml:"max_in_flight"`
	Retry       *rawRetryConfig `yaml:"retry"`
	HoldWindow  *time.Duration  `yaml:"hold_window"`
}

type rawRetryConfig struct {
	ThumbnailAttempts *int           `yaml:"thumbnail_attempts"`
	OriginalAttempts  *int           `yaml:"original_attempts"`
	BackoffBase       *time.Duration `yaml:"backoff_base"`
	BackoffMax        *time.Duration `yaml:"backoff_max"`
}

type rawViewport struct {
	OverscanRows    *int     `yaml:"overscan_rows"`
	AspectRatio     *float64 `yaml:"aspect_ratio"`
	WorkingSetLimit *int     `yaml:"working_set_limit"`
}

type rawRender struct {
	Renderer *string `yaml:"renderer"`
}

type rawSource struct {
	Extensions *[]string `yaml:"extensions"`
}

type rawAction struct {
	Command *string `yaml:"command"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.Cache != nil {
		if layer.Cache.Capacity != nil {
			c.Cache.Capacity = *layer.Cache.Capacity
		}
	}
	if layer.Loader != nil {
		if layer.Loader.MaxInFlight != nil {
			c.Loader.MaxInFlight = *layer.Loader.MaxInFlight
		}
		if layer.Loader.HoldWindow != nil {
			c.Loader.HoldWindow = *layer.Loader.HoldWindow
		}
		if layer.Loader.Retry != nil {
			if layer.Loader.Retry.ThumbnailAttempts != nil {
				c.Loader.Retry.ThumbnailAttempts = *layer.Loader.Retry.ThumbnailAttempts
			}
			if layer.Loader.Retry.OriginalAttempts != nil {
				c.Loader.Retry.OriginalAttempts = *layer.Loader.Retry.OriginalAttempts
			}
			if layer.Loader.Retry.BackoffBase != nil {
				c.Loader.Retry.BackoffBase = *layer.Loader.Retry.BackoffBase
			}
			if layer.Loader.Retry.BackoffMax != nil {
				c.Loader.Retry.BackoffMax = *layer.Loader.Retry.BackoffMax
			}
		}
	}
	if layer.Viewport != nil {
		if layer.Viewport.OverscanRows != nil {
			c.Viewport.OverscanRows = *layer.Viewport.OverscanRows
		}
		if layer.Viewport.AspectRatio != nil {
			c.Viewport.AspectRatio = *layer.Viewport.AspectRatio
		}
		if layer.Viewport.WorkingSetLimit != nil {
			c.Viewport.WorkingSetLimit = *layer.Viewport.WorkingSetLimit
		}
	}
	if layer.Render != nil {
		if layer.Render.Renderer != nil {
			c.Render.Renderer = *layer.Render.Renderer
		}
	}
	if layer.Source != nil {
		if layer.Source.Extensions != nil {
			c.Source.Extensions = *layer.Source.Extensions
		}
	}
	if layer.Action != nil {
		if layer.Action.Command != nil {
			c.Action.Command = *layer.Action.Command
		}
	}
}
