package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/kernel"
)

// Row is one line of the convergence table.
type Row struct {
	Iterations        int     `csv:"iterations"`
	MeanAbsDivergence float64 `csv:"mean_abs_divergence"`
	MaxAbsDivergence  float64 `csv:"max_abs_divergence"`
	Reduction         float64 `csv:"reduction"` // relative to the unprojected field
}

// Fit summarizes the tail of the convergence curve.
type Fit struct {
	Initial float64 // mean |div| before projection
	Factor  float64 // geometric reduction per iteration
}

// bump fills vel with the gradient of a Gaussian centred on the grid: a
// purely compressive flow with no solenoidal part.
func bump(vel *grid.Field, sigma float64) {
	for y := 0; y < vel.H; y++ {
		for x := 0; x < vel.W; x++ {
			dx := float64(x) + 0.5 - float64(vel.W)/2
			dy := float64(y) + 0.5 - float64(vel.H)/2
			g := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			vel.Store(x, y, grid.Sample{float32(-g * dx), float32(-g * dy), 0, 1})
		}
	}
}

type study struct {
	d    kernel.Dispatcher
	vel  *grid.Field
	div  *grid.Field
	p    *grid.Field
	tmp  *grid.Field
	proj *grid.Field
	res  *grid.Field
	abs  []float64
}

func newStudy(d kernel.Dispatcher, a grid.Allocator, w, h int) (*study, error) {
	s := &study{d: d, abs: make([]float64, w*h)}
	for _, slot := range []struct {
		dst  **grid.Field
		kind grid.Kind
	}{
		{&s.vel, grid.Velocity},
		{&s.div, grid.Divergence},
		{&s.p, grid.Pressure},
		{&s.tmp, grid.Pressure},
		{&s.proj, grid.Velocity},
		{&s.res, grid.Divergence},
	} {
		f, err := a.Allocate(slot.kind, w, h)
		if err != nil {
			return nil, err
		}
		*slot.dst = f
	}
	return s, nil
}

// residual projects vel with the current pressure and returns the mean and
// max absolute divergence of the result.
func (s *study) residual() (float64, float64, error) {
	if err := s.d.Dispatch(kernel.GradientSubtract{Pressure: s.p, Velocity: s.vel}, s.proj); err != nil {
		return 0, 0, err
	}
	if err := s.d.Dispatch(kernel.Divergence{Velocity: s.proj}, s.res); err != nil {
		return 0, 0, err
	}
	var peak float64
	for i := range s.abs {
		v := math.Abs(float64(s.res.Pix[i*grid.Stride]))
		s.abs[i] = v
		peak = max(peak, v)
	}
	return stat.Mean(s.abs, nil), peak, nil
}

// Run relaxes the pressure from zero for up to maxIter Jacobi sweeps,
// recording the projected divergence after each sweep.
func Run(d kernel.Dispatcher, a grid.Allocator, w, h, maxIter int, sigma float64) ([]Row, Fit, error) {
	if maxIter < 1 {
		return nil, Fit{}, fmt.Errorf("max iterations must be positive, got %d", maxIter)
	}
	s, err := newStudy(d, a, w, h)
	if err != nil {
		return nil, Fit{}, err
	}
	bump(s.vel, sigma)
	if err := d.Dispatch(kernel.Divergence{Velocity: s.vel}, s.div); err != nil {
		return nil, Fit{}, err
	}

	initial, _, err := s.residual()
	if err != nil {
		return nil, Fit{}, err
	}
	if initial == 0 {
		return nil, Fit{}, fmt.Errorf("test field has no divergence")
	}

	rows := make([]Row, 0, maxIter)
	for i := 1; i <= maxIter; i++ {
		if err := d.Dispatch(kernel.Jacobi{Pressure: s.p, Divergence: s.div}, s.tmp); err != nil {
			return nil, Fit{}, err
		}
		if err := d.Dispatch(kernel.Boundary{Target: s.tmp}, s.p); err != nil {
			return nil, Fit{}, err
		}
		mean, peak, err := s.residual()
		if err != nil {
			return nil, Fit{}, err
		}
		rows = append(rows, Row{Iterations: i, MeanAbsDivergence: mean, MaxAbsDivergence: peak, Reduction: mean / initial})
	}
	return rows, Fit{Initial: initial, Factor: fitFactor(rows)}, nil
}

// fitFactor regresses log(mean |div|) on the iteration count over the
// second half of the curve and returns exp(slope).
func fitFactor(rows []Row) float64 {
	tail := rows[len(rows)/2:]
	if len(tail) < 2 {
		return math.NaN()
	}
	xs := make([]float64, 0, len(tail))
	ys := make([]float64, 0, len(tail))
	for _, r := range tail {
		if r.MeanAbsDivergence <= 0 {
			continue
		}
		xs = append(xs, float64(r.Iterations))
		ys = append(ys, math.Log(r.MeanAbsDivergence))
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return math.Exp(beta)
}
