package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsLoadAndValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	s := cfg.Simulation
	if s.Resolution != 512 || s.PressureIterations != 20 || !s.Vorticity || s.Gravity {
		t.Errorf("unexpected solver defaults: %+v", s)
	}
	if s.DensityDissipation != 0.99 || s.VelocityDissipation != 0.99 {
		t.Errorf("unexpected dissipation defaults: %+v", s)
	}
	if s.Curl != 30 || s.GravityY != -50 || s.SplatRadius != 0.0025 || s.SplatDensity != 1 {
		t.Errorf("unexpected tunable defaults: %+v", s)
	}
	v := cfg.Visualization
	if v.Mode != "density" || v.ColorA != "#191970" || v.ColorB != "#ff4500" || v.Bias != 1 {
		t.Errorf("unexpected visualization defaults: %+v", v)
	}
	if cfg.Derived.DT32 != float32(0.016) {
		t.Errorf("DT32 = %v", cfg.Derived.DT32)
	}
}

func TestDerivedAspectAndGrid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	wantAspect := float64(cfg.Screen.Width-cfg.Screen.PanelWidth) / float64(cfg.Screen.Height)
	if math.Abs(cfg.Simulation.Aspect-wantAspect) > 1e-12 {
		t.Errorf("aspect = %f, want %f", cfg.Simulation.Aspect, wantAspect)
	}
	if cfg.Derived.GridW != 512 {
		t.Errorf("wide canvas should keep full width, got %d", cfg.Derived.GridW)
	}
	if cfg.Derived.GridH >= 512 {
		t.Errorf("wide canvas should shorten height, got %d", cfg.Derived.GridH)
	}
}

func TestGridSize(t *testing.T) {
	cases := []struct {
		res    int
		aspect float64
		w, h   int
	}{
		{512, 1, 512, 512},
		{512, 2, 512, 256},
		{512, 0.5, 256, 512},
		{256, 16.0 / 9.0, 256, 144},
		{1024, 0, 1024, 1024},
	}
	for _, c := range cases {
		w, h := GridSize(c.res, c.aspect)
		if w != c.w || h != c.h {
			t.Errorf("GridSize(%d, %f) = %dx%d, want %dx%d", c.res, c.aspect, w, h, c.w, c.h)
		}
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := []byte("simulation:\n  resolution: 256\n  curl: 10\nvisualization:\n  mode: curl\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Resolution != 256 || cfg.Simulation.Curl != 10 {
		t.Errorf("user values not applied: %+v", cfg.Simulation)
	}
	if cfg.Simulation.PressureIterations != 20 {
		t.Errorf("defaults lost on merge: %+v", cfg.Simulation)
	}
	if cfg.Visualization.Mode != "curl" {
		t.Errorf("mode = %q", cfg.Visualization.Mode)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("simulation:\n  pressure_iterations: -3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "simulation.pressure_iterations" || !errors.Is(err, ErrOutOfRange) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSimulationValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name  string
		mod   func(*Simulation)
		field string
	}{
		{"resolution", func(s *Simulation) { s.Resolution = 300 }, "simulation.resolution"},
		{"precision", func(s *Simulation) { s.Precision = "double" }, "simulation.precision"},
		{"iterations low", func(s *Simulation) { s.PressureIterations = 0 }, "simulation.pressure_iterations"},
		{"iterations high", func(s *Simulation) { s.PressureIterations = 51 }, "simulation.pressure_iterations"},
		{"dissipation", func(s *Simulation) { s.DensityDissipation = 0.5 }, "simulation.density_dissipation"},
		{"dissipation NaN", func(s *Simulation) { s.VelocityDissipation = math.NaN() }, "simulation.velocity_dissipation"},
		{"curl", func(s *Simulation) { s.Curl = -1 }, "simulation.curl"},
		{"gravity", func(s *Simulation) { s.GravityY = -101 }, "simulation.gravity_y"},
		{"splat radius", func(s *Simulation) { s.SplatRadius = 0.5 }, "simulation.splat_radius"},
		{"splat density", func(s *Simulation) { s.SplatDensity = 3 }, "simulation.splat_density"},
		{"aspect", func(s *Simulation) { s.Aspect = 0 }, "simulation.aspect"},
	}
	for _, c := range cases {
		s := base.Simulation
		c.mod(&s)
		err := s.Validate()
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigurationError, got %v", c.name, err)
			continue
		}
		if cfgErr.Field != c.field {
			t.Errorf("%s: field = %s, want %s", c.name, cfgErr.Field, c.field)
		}
	}

	if err := base.Simulation.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestVisualizationValidate(t *testing.T) {
	v := VisualizationConfig{Mode: "Velocity", ColorA: "#000000", ColorB: "#FFFFFF", Bias: 5}
	if err := v.Validate(); err != nil {
		t.Errorf("valid visualization rejected: %v", err)
	}
	v.ColorA = "red"
	if err := v.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for color, got %v", err)
	}
	v.ColorA = "#000000"
	v.Bias = 0
	if err := v.Validate(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for bias, got %v", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Simulation.Curl = 12
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Simulation.Curl != 12 {
		t.Errorf("curl = %f after round trip", back.Simulation.Curl)
	}
}

func TestMustInitAndCfg(t *testing.T) {
	MustInit("")
	if Cfg().Simulation.Resolution != 512 {
		t.Errorf("global config not initialized from defaults")
	}
}
