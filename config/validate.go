package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pthm-cable/plume/grid"
)

var (
	// ErrOutOfRange marks a numeric parameter outside its documented range.
	ErrOutOfRange = errors.New("out of range")
	// ErrInvalid marks a parameter that is not one of its allowed values.
	ErrInvalid = errors.New("invalid value")
)

// ConfigurationError reports a parameter rejected at the configuration
// boundary. The previous valid configuration stays in effect.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s = %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Resolutions lists the accepted nominal grid resolutions.
var Resolutions = []int{256, 512, 1024}

// Modes lists the accepted visualization mode names.
var Modes = []string{"density", "velocity", "curl", "pressure"}

func outOfRange(field string, v any, bounds string) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Value:  v,
		Reason: "must be in " + bounds,
		Err:    ErrOutOfRange,
	}
}

func invalid(field string, v any, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: v, Reason: reason, Err: ErrInvalid}
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// Validate checks every section and returns the first violation.
func (c *Config) Validate() error {
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		return invalid("screen", fmt.Sprintf("%dx%d", c.Screen.Width, c.Screen.Height), "dimensions must be positive")
	}
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Visualization.Validate(); err != nil {
		return err
	}
	if c.Interaction.PointerScale < 0 {
		return outOfRange("interaction.pointer_scale", c.Interaction.PointerScale, "[0, inf]")
	}
	if c.Server.FrameRate < 1 || c.Server.FrameRate > 120 {
		return outOfRange("server.frame_rate", c.Server.FrameRate, "[1, 120]")
	}
	switch c.Compute.Backend {
	case "", "cpu", "opencl":
	default:
		return invalid("compute.backend", c.Compute.Backend, "must be cpu or opencl")
	}
	if c.Compute.Workers < 0 {
		return outOfRange("compute.workers", c.Compute.Workers, "[0, GOMAXPROCS]")
	}
	return nil
}

// Validate checks the solver snapshot against its documented ranges.
func (s Simulation) Validate() error {
	valid := false
	for _, r := range Resolutions {
		if s.Resolution == r {
			valid = true
			break
		}
	}
	if !valid {
		return invalid("simulation.resolution", s.Resolution, "must be one of 256, 512, 1024")
	}
	if _, err := grid.ParsePrecision(s.Precision); err != nil {
		return invalid("simulation.precision", s.Precision, "must be full or half")
	}
	if !(s.DT > 0 && s.DT <= 0.1) {
		return outOfRange("simulation.dt", s.DT, "(0, 0.1]")
	}
	if !inRange(s.DensityDissipation, 0.9, 1) {
		return outOfRange("simulation.density_dissipation", s.DensityDissipation, "[0.9, 1]")
	}
	if !inRange(s.VelocityDissipation, 0.9, 1) {
		return outOfRange("simulation.velocity_dissipation", s.VelocityDissipation, "[0.9, 1]")
	}
	if s.PressureIterations < 1 || s.PressureIterations > 50 {
		return outOfRange("simulation.pressure_iterations", s.PressureIterations, "[1, 50]")
	}
	if !inRange(s.Curl, 0, 50) {
		return outOfRange("simulation.curl", s.Curl, "[0, 50]")
	}
	if !inRange(s.GravityX, -100, 100) {
		return outOfRange("simulation.gravity_x", s.GravityX, "[-100, 100]")
	}
	if !inRange(s.GravityY, -100, 100) {
		return outOfRange("simulation.gravity_y", s.GravityY, "[-100, 100]")
	}
	if !inRange(s.SplatRadius, 0.001, 0.02) {
		return outOfRange("simulation.splat_radius", s.SplatRadius, "[0.001, 0.02]")
	}
	if !inRange(s.SplatDensity, 0, 2) {
		return outOfRange("simulation.splat_density", s.SplatDensity, "[0, 2]")
	}
	if !(s.Aspect > 0 && s.Aspect <= 16) {
		return outOfRange("simulation.aspect", s.Aspect, "(0, 16]")
	}
	return nil
}

// Validate checks the display settings.
func (v VisualizationConfig) Validate() error {
	mode := strings.ToLower(v.Mode)
	ok := false
	for _, m := range Modes {
		if mode == m {
			ok = true
			break
		}
	}
	if !ok {
		return invalid("visualization.mode", v.Mode, "must be density, velocity, curl or pressure")
	}
	if !isHexColor(v.ColorA) {
		return invalid("visualization.color_a", v.ColorA, "must be #rrggbb")
	}
	if !isHexColor(v.ColorB) {
		return invalid("visualization.color_b", v.ColorB, "must be #rrggbb")
	}
	if !inRange(v.Bias, 0.1, 10) {
		return outOfRange("visualization.bias", v.Bias, "[0.1, 10]")
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
