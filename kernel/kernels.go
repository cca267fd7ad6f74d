// Package kernel implements the per-cell passes of the solver. Each kernel is
// a value holding its input fields and uniforms; Rows evaluates it for a band
// of destination rows. A kernel never reads the field it writes.
package kernel

import (
	"math"

	"github.com/pthm-cable/plume/grid"
)

// Kernel is one pass over a destination field.
type Kernel interface {
	Name() string
	// Inputs lists every field the pass reads.
	Inputs() []*grid.Field
	// Rows writes destination rows [y0, y1).
	Rows(dst *grid.Field, y0, y1 int)
}

// VorticityEpsilon is the gradient length below which vorticity confinement
// produces no force.
const VorticityEpsilon = 1e-5

// cellUV returns the uv of the centre of cell (x, y).
func cellUV(f *grid.Field, x, y int) (float32, float32) {
	return (float32(x) + 0.5) / float32(f.W), (float32(y) + 0.5) / float32(f.H)
}

// Advect moves Source along Velocity by semi-Lagrangian back-tracing and
// scales the result by Dissipation.
type Advect struct {
	Velocity    *grid.Field
	Source      *grid.Field
	DT          float32
	Dissipation float32
}

func (Advect) Name() string { return "advect" }

func (k Advect) Inputs() []*grid.Field { return []*grid.Field{k.Velocity, k.Source} }

func (k Advect) Rows(dst *grid.Field, y0, y1 int) {
	tx, ty := dst.TexelSize()
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			u, v := cellUV(dst, x, y)
			vel := k.Velocity.Fetch(x, y)
			s := k.Source.Sample(u-k.DT*vel[0]*tx, v-k.DT*vel[1]*ty)
			for c := range s {
				s[c] *= k.Dissipation
			}
			dst.Store(x, y, s)
		}
	}
}

// Splat adds a Gaussian blob of Value centred at Point (uv) to Target.
// Aspect is the surface width/height; it keeps the blob round on screen.
type Splat struct {
	Target *grid.Field
	Point  [2]float32
	Value  [3]float32
	Radius float32
	Aspect float32
}

func (Splat) Name() string { return "splat" }

func (k Splat) Inputs() []*grid.Field { return []*grid.Field{k.Target} }

func (k Splat) Rows(dst *grid.Field, y0, y1 int) {
	aspect := k.Aspect
	if aspect == 0 {
		aspect = 1
	}
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			u, v := cellUV(dst, x, y)
			px := (u - k.Point[0]) * aspect
			py := v - k.Point[1]
			w := float32(math.Exp(float64(-(px*px + py*py) / k.Radius)))
			base := k.Target.At(x, y)
			dst.Store(x, y, grid.Sample{
				base[0] + w*k.Value[0],
				base[1] + w*k.Value[1],
				base[2] + w*k.Value[2],
				1,
			})
		}
	}
}

// Force adds a uniform acceleration to Velocity.
type Force struct {
	Velocity *grid.Field
	Force    [2]float32
	DT       float32
}

func (Force) Name() string { return "force" }

func (k Force) Inputs() []*grid.Field { return []*grid.Field{k.Velocity} }

func (k Force) Rows(dst *grid.Field, y0, y1 int) {
	fx, fy := k.Force[0]*k.DT, k.Force[1]*k.DT
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			vel := k.Velocity.At(x, y)
			dst.Store(x, y, grid.Sample{vel[0] + fx, vel[1] + fy, 0, 1})
		}
	}
}

// Curl computes the scalar vorticity of Velocity with central differences.
type Curl struct {
	Velocity *grid.Field
}

func (Curl) Name() string { return "curl" }

func (k Curl) Inputs() []*grid.Field { return []*grid.Field{k.Velocity} }

func (k Curl) Rows(dst *grid.Field, y0, y1 int) {
	vel := k.Velocity
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			l := vel.FetchY(x-1, y)
			r := vel.FetchY(x+1, y)
			t := vel.FetchX(x, y+1)
			b := vel.FetchX(x, y-1)
			dst.Store(x, y, grid.Sample{0.5 * ((r - l) - (t - b)), 0, 0, 1})
		}
	}
}

// Vorticity applies vorticity confinement: a force perpendicular to the
// gradient of |curl|, scaled by Strength and the local curl.
type Vorticity struct {
	Velocity *grid.Field
	Curl     *grid.Field
	Strength float32
	DT       float32
}

func (Vorticity) Name() string { return "vorticity" }

func (k Vorticity) Inputs() []*grid.Field { return []*grid.Field{k.Velocity, k.Curl} }

func (k Vorticity) Rows(dst *grid.Field, y0, y1 int) {
	curl := k.Curl
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			l := curl.FetchX(x-1, y)
			r := curl.FetchX(x+1, y)
			t := curl.FetchX(x, y+1)
			b := curl.FetchX(x, y-1)
			c := curl.At(x, y)[0]

			nx := 0.5 * (abs32(r) - abs32(l))
			ny := 0.5 * (abs32(t) - abs32(b))
			n := float32(math.Sqrt(float64(nx*nx + ny*ny)))
			if n > VorticityEpsilon {
				nx /= n
				ny /= n
			} else {
				nx, ny = 0, 0
			}

			scale := k.Strength * c * k.DT
			vel := k.Velocity.At(x, y)
			dst.Store(x, y, grid.Sample{vel[0] + ny*scale, vel[1] - nx*scale, 0, 1})
		}
	}
}

// Divergence computes the central-difference divergence of Velocity.
type Divergence struct {
	Velocity *grid.Field
}

func (Divergence) Name() string { return "divergence" }

func (k Divergence) Inputs() []*grid.Field { return []*grid.Field{k.Velocity} }

func (k Divergence) Rows(dst *grid.Field, y0, y1 int) {
	vel := k.Velocity
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			l := vel.FetchX(x-1, y)
			r := vel.FetchX(x+1, y)
			t := vel.FetchY(x, y+1)
			b := vel.FetchY(x, y-1)
			dst.Store(x, y, grid.Sample{0.5 * ((r - l) + (t - b)), 0, 0, 1})
		}
	}
}

// Jacobi performs one relaxation step of the pressure Poisson equation.
type Jacobi struct {
	Pressure   *grid.Field
	Divergence *grid.Field
}

func (Jacobi) Name() string { return "jacobi" }

func (k Jacobi) Inputs() []*grid.Field { return []*grid.Field{k.Pressure, k.Divergence} }

func (k Jacobi) Rows(dst *grid.Field, y0, y1 int) {
	p := k.Pressure
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			sum := p.FetchX(x-1, y) + p.FetchX(x+1, y) + p.FetchX(x, y+1) + p.FetchX(x, y-1)
			div := k.Divergence.At(x, y)[0]
			dst.Store(x, y, grid.Sample{(sum - div) * 0.25, 0, 0, 1})
		}
	}
}

// GradientSubtract removes the pressure gradient from Velocity.
type GradientSubtract struct {
	Pressure *grid.Field
	Velocity *grid.Field
}

func (GradientSubtract) Name() string { return "gradient" }

func (k GradientSubtract) Inputs() []*grid.Field { return []*grid.Field{k.Pressure, k.Velocity} }

func (k GradientSubtract) Rows(dst *grid.Field, y0, y1 int) {
	p := k.Pressure
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			l := p.FetchX(x-1, y)
			r := p.FetchX(x+1, y)
			t := p.FetchX(x, y+1)
			b := p.FetchX(x, y-1)
			vel := k.Velocity.At(x, y)
			dst.Store(x, y, grid.Sample{vel[0] - 0.5*(r-l), vel[1] - 0.5*(t-b), 0, 1})
		}
	}
}

// Boundary copies Target into dst and overwrites the outermost ring with the
// adjacent interior value. With Reflect set, the wall-normal velocity
// component is negated (free-slip wall); otherwise the copy is unchanged
// (zero normal derivative).
type Boundary struct {
	Target  *grid.Field
	Reflect bool
}

func (Boundary) Name() string { return "boundary" }

func (k Boundary) Inputs() []*grid.Field { return []*grid.Field{k.Target} }

func (k Boundary) Rows(dst *grid.Field, y0, y1 int) {
	src := k.Target
	for y := y0; y < y1; y++ {
		bottom := y == 0
		top := y == dst.H-1
		for x := 0; x < dst.W; x++ {
			left := x == 0
			right := x == dst.W-1
			if !left && !right && !bottom && !top {
				dst.Store(x, y, src.At(x, y))
				continue
			}

			nx, ny := x, y
			switch {
			case left:
				nx++
			case right:
				nx--
			case bottom:
				ny++
			default:
				ny--
			}
			s := src.Fetch(nx, ny)
			if k.Reflect {
				if left || right {
					s[0] = -s[0]
				}
				if top || bottom {
					s[1] = -s[1]
				}
			}
			dst.Store(x, y, s)
		}
	}
}

// Clear writes (Value, Value, Value, 1) to every cell.
type Clear struct {
	Value float32
}

func (Clear) Name() string { return "clear" }

func (Clear) Inputs() []*grid.Field { return nil }

func (k Clear) Rows(dst *grid.Field, y0, y1 int) {
	s := grid.Sample{k.Value, k.Value, k.Value, 1}
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.W; x++ {
			dst.Store(x, y, s)
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
