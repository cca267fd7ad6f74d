package display

import (
	"errors"
	"image"
	"testing"

	"github.com/pthm-cable/plume/grid"
)

var defaultParams = Params{Mode: Density, ColorA: "#191970", ColorB: "#ff4500", Bias: 1}

func field(t *testing.T, kind grid.Kind, w, h int) *grid.Field {
	t.Helper()
	f, err := grid.HostAllocator{}.Allocate(kind, w, h)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"density": Density, "Velocity": Velocity, "curl": Curl, "3": Pressure,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("temperature"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := ParseMode("4"); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestRampEndpoints(t *testing.T) {
	r, err := NewRamp("#191970", "#ff4500")
	if err != nil {
		t.Fatal(err)
	}
	lo := r.At(-3)
	if lo.R != 0x19 || lo.G != 0x19 || lo.B != 0x70 {
		t.Errorf("ramp start = %v, want #191970", lo)
	}
	hi := r.At(7)
	if hi.R != 0xff || hi.G != 0x45 || hi.B != 0x00 {
		t.Errorf("ramp end = %v, want #ff4500", hi)
	}
}

func TestRampRejectsBadColor(t *testing.T) {
	if _, err := NewRamp("#191970", "not-a-color"); err == nil {
		t.Error("expected error for invalid color")
	}
}

func TestDensityModeRampAndFlip(t *testing.T) {
	const w, h = 3, 2
	den := field(t, grid.Density, w, h)
	// Bottom-left cell saturated, the rest empty
	den.Store(0, 0, grid.Sample{1, 1, 1, 1})

	r := NewRenderer(nil)
	img, err := r.RenderImage(grid.Set{Density: den}, defaultParams)
	if err != nil {
		t.Fatal(err)
	}

	// Grid row 0 is image row h-1
	if c := img.RGBAAt(0, h-1); c.R != 0xff || c.G != 0x45 {
		t.Errorf("saturated cell = %v, want color B", c)
	}
	if c := img.RGBAAt(0, 0); c.R != 0x19 || c.B != 0x70 {
		t.Errorf("empty cell = %v, want color A", c)
	}
}

func TestCurlModeSigns(t *testing.T) {
	curl := field(t, grid.Curl, 3, 1)
	curl.Store(0, 0, grid.Sample{-10})
	curl.Store(2, 0, grid.Sample{10})

	r := NewRenderer(nil)
	p := defaultParams
	p.Mode = Curl
	img, err := r.RenderImage(grid.Set{Curl: curl}, p)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 0); c.B != 255 || c.R != 0 {
		t.Errorf("negative curl = %v, want blue", c)
	}
	if c := img.RGBAAt(1, 0); c.R != 128 || c.B != 128 {
		t.Errorf("zero curl = %v, want even mix", c)
	}
	if c := img.RGBAAt(2, 0); c.R != 255 || c.B != 0 {
		t.Errorf("positive curl = %v, want red", c)
	}
}

func TestVelocityModeHueAndValue(t *testing.T) {
	vel := field(t, grid.Velocity, 3, 1)
	// Pointing along -x: angle π maps to hue 1.0, i.e. red
	vel.Store(0, 0, grid.Sample{-100, 0})
	// Pointing along +x: angle 0 maps to hue 0.5, i.e. cyan
	vel.Store(1, 0, grid.Sample{100, 0})

	r := NewRenderer(nil)
	p := defaultParams
	p.Mode = Velocity
	img, err := r.RenderImage(grid.Set{Velocity: vel}, p)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 0); c.R != 255 || c.G != 0 || c.B != 0 {
		t.Errorf("-x velocity = %v, want red", c)
	}
	if c := img.RGBAAt(1, 0); c.R != 0 || c.G != 255 || c.B != 255 {
		t.Errorf("+x velocity = %v, want cyan", c)
	}
	if c := img.RGBAAt(2, 0); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("still cell = %v, want black", c)
	}
}

func TestPressureModeUsesRamp(t *testing.T) {
	p := field(t, grid.Pressure, 2, 1)
	p.Store(0, 0, grid.Sample{-1})
	p.Store(1, 0, grid.Sample{0.5})

	r := NewRenderer(nil)
	params := defaultParams
	params.Mode = Pressure
	params.Bias = 2
	img, err := r.RenderImage(grid.Set{Pressure: p}, params)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 0); c.R != 0x19 {
		t.Errorf("negative pressure = %v, want color A", c)
	}
	if c := img.RGBAAt(1, 0); c.R != 0xff {
		t.Errorf("pressure*bias = 1 gave %v, want color B", c)
	}
}

func TestRenderIsReadOnly(t *testing.T) {
	den := field(t, grid.Density, 4, 4)
	den.Store(1, 2, grid.Sample{0.3, 0.2, 0.1, 1})
	before := append([]float32(nil), den.Pix...)

	r := NewRenderer(nil)
	if _, err := r.RenderImage(grid.Set{Density: den}, defaultParams); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if den.Pix[i] != before[i] {
			t.Fatalf("render modified field at %d", i)
		}
	}
}

func TestRenderErrors(t *testing.T) {
	r := NewRenderer(nil)
	if _, err := r.RenderImage(grid.Set{}, defaultParams); !errors.Is(err, ErrNoField) {
		t.Errorf("expected ErrNoField, got %v", err)
	}

	den := field(t, grid.Density, 4, 4)
	if err := r.Render(grid.Set{Density: den}, defaultParams, image.NewRGBA(image.Rect(0, 0, 2, 2))); err == nil {
		t.Error("expected size mismatch error")
	}

	bad := defaultParams
	bad.ColorB = "#zzzzzz"
	if _, err := r.RenderImage(grid.Set{Density: den}, bad); err == nil {
		t.Error("expected ramp error for invalid color")
	}
}
