// Package config provides configuration loading and access for the solver.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/plume/grid"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Screen        ScreenConfig        `yaml:"screen"`
	Simulation    Simulation          `yaml:"simulation"`
	Interaction   InteractionConfig   `yaml:"interaction"`
	Visualization VisualizationConfig `yaml:"visualization"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Server        ServerConfig        `yaml:"server"`
	Compute       ComputeConfig       `yaml:"compute"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds window settings.
type ScreenConfig struct {
	Width      int `yaml:"width"`
	Height     int `yaml:"height"`
	TargetFPS  int `yaml:"target_fps"`
	PanelWidth int `yaml:"panel_width"` // parameter panel docked on the right
}

// Simulation is the solver snapshot latched by the driver once per frame.
type Simulation struct {
	Resolution          int     `yaml:"resolution"` // 256, 512 or 1024
	Precision           string  `yaml:"precision"`  // full or half
	DT                  float64 `yaml:"dt"`
	DensityDissipation  float64 `yaml:"density_dissipation"`
	VelocityDissipation float64 `yaml:"velocity_dissipation"`
	PressureIterations  int     `yaml:"pressure_iterations"`
	Vorticity           bool    `yaml:"vorticity"`
	Curl                float64 `yaml:"curl"`
	Gravity             bool    `yaml:"gravity"`
	GravityX            float64 `yaml:"gravity_x"`
	GravityY            float64 `yaml:"gravity_y"`
	SplatRadius         float64 `yaml:"splat_radius"`
	SplatDensity        float64 `yaml:"splat_density"`
	Aspect              float64 `yaml:"aspect"` // canvas width/height; 0 derives it from the screen
}

// InteractionConfig holds pointer handling parameters.
type InteractionConfig struct {
	PointerScale    float64 `yaml:"pointer_scale"`     // NDC pointer delta to splat velocity
	ResizeDebounceS float64 `yaml:"resize_debounce_s"` // quiet time before a window resize reallocates
}

// VisualizationConfig holds display settings.
type VisualizationConfig struct {
	Mode   string  `yaml:"mode"` // density, velocity, curl or pressure
	ColorA string  `yaml:"color_a"`
	ColorB string  `yaml:"color_b"`
	Bias   float64 `yaml:"bias"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"` // seconds of sim time per stats row
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// ServerConfig holds the websocket host settings.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	FrameRate int    `yaml:"frame_rate"`
	ReadLimit int64  `yaml:"read_limit"`
}

// ComputeConfig selects how kernels are executed.
type ComputeConfig struct {
	Backend  string `yaml:"backend"` // cpu or opencl
	Workers  int    `yaml:"workers"` // 0 uses GOMAXPROCS
	MaxCells int    `yaml:"max_cells"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32      float32        // Simulation.DT as float32
	CanvasW   int            // Screen.Width minus the panel
	CanvasH   int            // Screen.Height
	GridW     int            // grid width for Resolution at Aspect
	GridH     int            // grid height for Resolution at Aspect
	Precision grid.Precision // parsed Simulation.Precision
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
// If path is empty, only embedded defaults are used. The result is validated.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
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
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Simulation.DT)
	c.Derived.CanvasW = max(c.Screen.Width-c.Screen.PanelWidth, 1)
	c.Derived.CanvasH = max(c.Screen.Height, 1)

	// Aspect defaults to the canvas shape
	if c.Simulation.Aspect == 0 {
		c.Simulation.Aspect = float64(c.Derived.CanvasW) / float64(c.Derived.CanvasH)
	}
	c.Derived.GridW, c.Derived.GridH = GridSize(c.Simulation.Resolution, c.Simulation.Aspect)

	if p, err := grid.ParsePrecision(c.Simulation.Precision); err == nil {
		c.Derived.Precision = p
	}
}

// GridSize returns the grid dimensions for a nominal resolution on a surface
// of the given aspect ratio (width/height). The short side gets fewer cells.
func GridSize(resolution int, aspect float64) (int, int) {
	if aspect <= 0 {
		aspect = 1
	}
	w := roundInt(float64(resolution) * min(1, aspect))
	h := roundInt(float64(resolution) * min(1, 1/aspect))
	return w, h
}

func roundInt(v float64) int {
	return int(v + 0.5)
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
