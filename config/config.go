// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/fluid/params"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all startup configuration.
type Config struct {
	Screen     ScreenConfig      `yaml:"screen"`
	Simulation SimulationConfig  `yaml:"simulation"`
	Parameters params.Parameters `yaml:"parameters"`
	Transport  TransportConfig   `yaml:"transport"`
	Stream     StreamConfig      `yaml:"stream"`
	Render     RenderConfig      `yaml:"render"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"`
	Title     string `yaml:"title"`
}

// Sorter names accepted by simulation.sorter.
const (
	SorterParallel   = "parallel"
	SorterSequential = "sequential"
)

// SimulationConfig holds pipeline construction settings. None of these can
// change after startup.
type SimulationConfig struct {
	Dimensions   int     `yaml:"dimensions"`    // 2 or 3
	LayoutMargin float64 `yaml:"layout_margin"` // gap between seeded particles, world units
	Workers      int     `yaml:"workers"`       // 0 = GOMAXPROCS
	Sorter       string  `yaml:"sorter"`
	TableSize    uint32  `yaml:"table_size"` // 0 = sized from the particle count
	MaxFrames    int     `yaml:"max_frames"` // 0 = run until stopped
}

// TransportConfig holds the TCP settings listener.
type TransportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// StreamConfig holds the WebSocket frame broadcaster.
type StreamConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Listen          string `yaml:"listen"`
	FrameIntervalMS int    `yaml:"frame_interval_ms"` // minimum gap between published frames
}

// Colour modes accepted by render.color_mode.
const (
	ColorSolid = "solid"
	ColorSpeed = "speed"
)

// RenderConfig holds particle drawing settings.
type RenderConfig struct {
	ColorMode      string  `yaml:"color_mode"`
	MaxSpeed       float64 `yaml:"max_speed"` // speed mapped to the hottest colour, scene units/s
	CircleSegments int     `yaml:"circle_segments"`
}

// TelemetryConfig holds stats and performance logging settings.
type TelemetryConfig struct {
	StatsWindowFrames int    `yaml:"stats_window_frames"`
	PerfWindowFrames  int    `yaml:"perf_window_frames"`
	LogStats          bool   `yaml:"log_stats"`
	OutputDir         string `yaml:"output_dir"` // empty disables CSV output
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	ScreenW32     float32       // Screen.Width as float32
	ScreenH32     float32       // Screen.Height as float32
	FrameInterval time.Duration // Stream.FrameIntervalMS as a duration
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{Parameters: params.Default()}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)
	c.Derived.FrameInterval = time.Duration(c.Stream.FrameIntervalMS) * time.Millisecond

	// scene_scale 0 maps the bounds diagonal to 50 scene units
	if c.Parameters.SceneScale == 0 {
		w := float64(c.Parameters.Bounds.Max[0] - c.Parameters.Bounds.Min[0])
		h := float64(c.Parameters.Bounds.Max[1] - c.Parameters.Bounds.Min[1])
		if d := math.Hypot(w, h); d > 0 {
			c.Parameters.SceneScale = float32(50 / d)
		}
	}
}

// Validate checks settings that cannot be corrected at runtime.
func (c *Config) Validate() error {
	var errs []error

	if d := c.Simulation.Dimensions; d != 2 && d != 3 {
		errs = append(errs, fmt.Errorf("simulation.dimensions must be 2 or 3, got %d", d))
	}
	if c.Simulation.LayoutMargin < 0 {
		errs = append(errs, fmt.Errorf("simulation.layout_margin must be >= 0, got %v", c.Simulation.LayoutMargin))
	}
	switch c.Simulation.Sorter {
	case SorterParallel, SorterSequential:
	default:
		errs = append(errs, fmt.Errorf("simulation.sorter must be %q or %q, got %q",
			SorterParallel, SorterSequential, c.Simulation.Sorter))
	}
	if ts := c.Simulation.TableSize; ts != 0 && ts&(ts-1) != 0 {
		errs = append(errs, fmt.Errorf("simulation.table_size must be a power of two, got %d", ts))
	}
	switch c.Render.ColorMode {
	case ColorSolid, ColorSpeed:
	default:
		errs = append(errs, fmt.Errorf("render.color_mode must be %q or %q, got %q",
			ColorSolid, ColorSpeed, c.Render.ColorMode))
	}
	if c.Render.CircleSegments < 3 {
		errs = append(errs, fmt.Errorf("render.circle_segments must be >= 3, got %d", c.Render.CircleSegments))
	}
	if err := c.Parameters.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("parameters: %w", err))
	}

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
