package ui

import (
	"testing"

	"github.com/pthm-cable/plume/config"
)

func init() {
	config.MustInit("")
}

func TestSliderBoundsAreValid(t *testing.T) {
	for _, s := range sliders {
		for _, v := range []float64{s.min, s.max} {
			cfg := *config.Cfg()
			s.set(&cfg, v)
			if err := cfg.Simulation.Validate(); err != nil {
				t.Errorf("%s = %v: %v", s.label, v, err)
			}
			if err := cfg.Visualization.Validate(); err != nil {
				t.Errorf("%s = %v: %v", s.label, v, err)
			}
		}
	}
}

func TestSliderGetSet(t *testing.T) {
	cfg := *config.Cfg()
	for _, s := range sliders {
		mid := (s.min + s.max) / 2
		s.set(&cfg, mid)
		got := s.get(&cfg)
		if s.format == "%.0f" {
			// integer fields round
			if got < mid-0.5 || got > mid+0.5 {
				t.Errorf("%s: set %v, got %v", s.label, mid, got)
			}
			continue
		}
		if got != mid {
			t.Errorf("%s: set %v, got %v", s.label, mid, got)
		}
	}
}

func TestResolutionIndex(t *testing.T) {
	for i, r := range config.Resolutions {
		if got := resolutionIndex(r); got != int32(i) {
			t.Errorf("resolutionIndex(%d) = %d, want %d", r, got, i)
		}
	}
	if got := resolutionIndex(333); got != 0 {
		t.Errorf("unknown resolution index = %d, want 0", got)
	}
	if got := resolutionLabels(); got != "256;512;1024" {
		t.Errorf("labels = %q", got)
	}
}

func TestHexColor(t *testing.T) {
	c := hexColor("#ff4500")
	if c.R != 0xff || c.G != 0x45 || c.B != 0 || c.A != 255 {
		t.Errorf("hexColor = %v", c)
	}
	if c := hexColor("nope"); c.R != 255 || c.B != 255 {
		t.Errorf("invalid color should fall back to magenta, got %v", c)
	}
}

func TestControlsPanelContains(t *testing.T) {
	p := NewControlsPanel(1020, 0, 260, 720)
	if !p.Contains(1100, 300) {
		t.Error("point inside panel not contained")
	}
	if p.Contains(500, 300) {
		t.Error("canvas point reported inside panel")
	}
}
