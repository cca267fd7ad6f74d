package display

import (
	"fmt"
	"image/color"
	"math"

	"github.com/crazy3lf/colorconv"
	"github.com/mazznoer/colorgrad"
)

// rampSteps is the resolution of the two-color lookup table.
const rampSteps = 256

// hueSteps is the resolution of the velocity hue wheel.
const hueSteps = 1024

// Ramp maps t in [0, 1] onto a linear blend between two colors.
type Ramp struct {
	a, b string
	lut  [rampSteps]color.RGBA
}

// NewRamp builds a ramp from two CSS hex colors such as "#191970".
func NewRamp(a, b string) (*Ramp, error) {
	grad, err := colorgrad.NewGradient().HtmlColors(a, b).Build()
	if err != nil {
		return nil, fmt.Errorf("building ramp %s..%s: %w", a, b, err)
	}
	r := &Ramp{a: a, b: b}
	for i, c := range grad.Colors(rampSteps) {
		cr, cg, cb, _ := c.RGBA()
		r.lut[i] = color.RGBA{R: uint8(cr >> 8), G: uint8(cg >> 8), B: uint8(cb >> 8), A: 255}
	}
	return r, nil
}

// At returns the ramp color at t, clamped to [0, 1]. NaN maps to the start.
func (r *Ramp) At(t float32) color.RGBA {
	if !(t > 0) {
		return r.lut[0]
	}
	if t >= 1 {
		return r.lut[rampSteps-1]
	}
	return r.lut[int(t*(rampSteps-1)+0.5)]
}

// Matches reports whether the ramp was built from colors a and b.
func (r *Ramp) Matches(a, b string) bool { return r.a == a && r.b == b }

// hueWheel holds fully saturated, full-value colors around the hue circle.
// An HSV color with saturation 1 is the wheel color scaled by its value.
type hueWheel [hueSteps][3]float32

func newHueWheel() *hueWheel {
	var w hueWheel
	for i := range w {
		hue := float64(i) / hueSteps * 360
		r, g, b, err := colorconv.HSVToRGB(hue, 1, 1)
		if err != nil {
			continue
		}
		w[i] = [3]float32{float32(r) / 255, float32(g) / 255, float32(b) / 255}
	}
	return &w
}

// at returns the color for hue h in turns, wrapped into [0, 1), at value v.
func (w *hueWheel) at(h, v float32) color.RGBA {
	h -= float32(math.Floor(float64(h)))
	i := int(h * hueSteps)
	if i >= hueSteps || i < 0 {
		i = 0
	}
	c := w[i]
	return color.RGBA{R: unit8(c[0] * v), G: unit8(c[1] * v), B: unit8(c[2] * v), A: 255}
}

func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// unit8 converts a [0, 1] channel to a byte.
func unit8(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
