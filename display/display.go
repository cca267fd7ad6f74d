// Package display converts simulation fields into a color image using one of
// four visualization modes.
package display

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/parallel"
)

// Mode selects which field is visualized.
type Mode int

const (
	Density Mode = iota
	Velocity
	Curl
	Pressure
)

var modeNames = [...]string{"density", "velocity", "curl", "pressure"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is one of the four modes.
func (m Mode) Valid() bool { return m >= Density && m <= Pressure }

// ParseMode accepts a mode name or its index.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Mode(n).Valid() {
		return Mode(n), nil
	}
	return Density, fmt.Errorf("unknown display mode %q", s)
}

// Params are the visualization uniforms.
type Params struct {
	Mode   Mode
	ColorA string
	ColorB string
	Bias   float32
}

// ParamsFromConfig converts the visualization section into display uniforms.
func ParamsFromConfig(v config.VisualizationConfig) (Params, error) {
	mode, err := ParseMode(v.Mode)
	if err != nil {
		return Params{}, err
	}
	return Params{Mode: mode, ColorA: v.ColorA, ColorB: v.ColorB, Bias: float32(v.Bias)}, nil
}

// ErrNoField is returned when the field for the selected mode is missing.
var ErrNoField = errors.New("display field missing")

var (
	curlNegative = [3]float32{0, 0, 1}
	curlPositive = [3]float32{1, 0, 0}
)

// Renderer turns fields into pixels. It caches the two-color ramp between
// frames and is not safe for concurrent use.
type Renderer struct {
	pool *parallel.Pool
	ramp *Ramp
	hue  *hueWheel
}

// NewRenderer creates a renderer. A nil pool renders on the calling goroutine.
func NewRenderer(pool *parallel.Pool) *Renderer {
	if pool == nil {
		pool = parallel.NewPool(1)
	}
	return &Renderer{pool: pool, hue: newHueWheel()}
}

// Ramp returns the ramp for a and b, rebuilding it if the colors changed.
func (r *Renderer) Ramp(a, b string) (*Ramp, error) {
	if r.ramp != nil && r.ramp.Matches(a, b) {
		return r.ramp, nil
	}
	ramp, err := NewRamp(a, b)
	if err != nil {
		return nil, err
	}
	r.ramp = ramp
	return ramp, nil
}

func (r *Renderer) source(f grid.Set, m Mode) (*grid.Field, error) {
	var src *grid.Field
	switch m {
	case Density:
		src = f.Density
	case Velocity:
		src = f.Velocity
	case Curl:
		src = f.Curl
	case Pressure:
		src = f.Pressure
	default:
		return nil, fmt.Errorf("display: invalid mode %s", m)
	}
	if src == nil {
		return nil, fmt.Errorf("display %s: %w", m, ErrNoField)
	}
	return src, nil
}

// Render writes one pixel per cell into dst, which must match the field
// resolution. Image row 0 is the top row of the grid.
func (r *Renderer) Render(f grid.Set, p Params, dst *image.RGBA) error {
	src, err := r.source(f, p.Mode)
	if err != nil {
		return err
	}
	b := dst.Bounds()
	if b.Dx() != src.W || b.Dy() != src.H {
		return fmt.Errorf("display: image %dx%d does not match field %dx%d", b.Dx(), b.Dy(), src.W, src.H)
	}
	ramp, err := r.Ramp(p.ColorA, p.ColorB)
	if err != nil {
		return err
	}

	shade := r.shader(p, ramp)
	r.pool.Run(src.H, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := dst.Pix[(src.H-1-y)*dst.Stride:]
			for x := 0; x < src.W; x++ {
				c := shade(src.At(x, y))
				i := x * 4
				row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, c.A
			}
		}
	})
	return nil
}

// RenderImage allocates an image sized to the fields and renders into it.
func (r *Renderer) RenderImage(f grid.Set, p Params) (*image.RGBA, error) {
	src, err := r.source(f, p.Mode)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, src.W, src.H))
	if err := r.Render(f, p, img); err != nil {
		return nil, err
	}
	return img, nil
}

// shader returns the per-cell color function for the mode.
func (r *Renderer) shader(p Params, ramp *Ramp) func(grid.Sample) color.RGBA {
	bias := p.Bias
	switch p.Mode {
	case Velocity:
		return func(s grid.Sample) color.RGBA {
			hue := float32(math.Atan2(float64(s[1]), float64(s[0])))/(2*math.Pi) + 0.5
			mag := float32(math.Hypot(float64(s[0]), float64(s[1]))) * bias * 0.1
			return r.hue.at(hue, clamp01(mag))
		}
	case Curl:
		return func(s grid.Sample) color.RGBA {
			t := clamp01(s[0]*bias*0.5 + 0.5)
			return color.RGBA{
				R: unit8(curlNegative[0] + (curlPositive[0]-curlNegative[0])*t),
				G: unit8(curlNegative[1] + (curlPositive[1]-curlNegative[1])*t),
				B: unit8(curlNegative[2] + (curlPositive[2]-curlNegative[2])*t),
				A: 255,
			}
		}
	case Pressure:
		return func(s grid.Sample) color.RGBA {
			return ramp.At(s[0] * bias)
		}
	default:
		return func(s grid.Sample) color.RGBA {
			l := float32(math.Sqrt(float64(s[0]*s[0] + s[1]*s[1] + s[2]*s[2])))
			return ramp.At(l * bias)
		}
	}
}
