package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/plume/grid"
)

// FieldStats summarizes the simulation fields at the end of a window.
type FieldStats struct {
	Frame   int32   `csv:"frame"`
	SimTime float64 `csv:"sim_time"`
	Width   int     `csv:"width"`
	Height  int     `csv:"height"`

	// Density (|rgb| per cell)
	TotalDensity float64 `csv:"total_density"`
	MaxDensity   float64 `csv:"max_density"`

	// Velocity
	MeanSpeed     float64 `csv:"mean_speed"`
	SpeedP90      float64 `csv:"speed_p90"`
	MaxSpeed      float64 `csv:"max_speed"`
	KineticEnergy float64 `csv:"kinetic_energy"` // 0.5 * sum |v|^2

	// Solver quality
	MeanAbsDivergence float64 `csv:"mean_abs_div"`
	MeanAbsCurl       float64 `csv:"mean_abs_curl"`
	PressureMin       float64 `csv:"pressure_min"`
	PressureMax       float64 `csv:"pressure_max"`

	// Events during window
	Splats          int `csv:"splats"`
	Resets          int `csv:"resets"`
	Resizes         int `csv:"resizes"`
	RejectedConfigs int `csv:"rejected_configs"`
}

// Measurer computes FieldStats, reusing its scratch buffers between calls.
type Measurer struct {
	a, b []float64
}

func (m *Measurer) scratch(n int) ([]float64, []float64) {
	if cap(m.a) < n {
		m.a = make([]float64, n)
		m.b = make([]float64, n)
	}
	return m.a[:n], m.b[:n]
}

// Measure fills the field-derived values of a FieldStats. Nil fields are
// skipped.
func (m *Measurer) Measure(set grid.Set) FieldStats {
	var s FieldStats

	if f := set.Density; f != nil {
		s.Width, s.Height = f.W, f.H
		mag, _ := m.scratch(f.W * f.H)
		for i := range mag {
			o := i * grid.Stride
			r, g, b := float64(f.Pix[o]), float64(f.Pix[o+1]), float64(f.Pix[o+2])
			mag[i] = math.Sqrt(r*r + g*g + b*b)
		}
		s.TotalDensity = floats.Sum(mag)
		s.MaxDensity = floats.Max(mag)
	}

	if f := set.Velocity; f != nil {
		s.Width, s.Height = f.W, f.H
		vx, vy := m.scratch(f.W * f.H)
		for i := range vx {
			o := i * grid.Stride
			vx[i], vy[i] = float64(f.Pix[o]), float64(f.Pix[o+1])
		}
		s.KineticEnergy = 0.5 * (floats.Dot(vx, vx) + floats.Dot(vy, vy))

		// Reuse vx for speeds
		for i := range vx {
			vx[i] = math.Hypot(vx[i], vy[i])
		}
		s.MeanSpeed = stat.Mean(vx, nil)
		s.MaxSpeed = floats.Max(vx)
		sort.Float64s(vx)
		s.SpeedP90 = stat.Quantile(0.9, stat.Empirical, vx, nil)
	}

	if f := set.Divergence; f != nil {
		s.MeanAbsDivergence = m.meanAbs(f)
	}
	if f := set.Curl; f != nil {
		s.MeanAbsCurl = m.meanAbs(f)
	}
	if f := set.Pressure; f != nil {
		p, _ := m.scratch(f.W * f.H)
		for i := range p {
			p[i] = float64(f.Pix[i*grid.Stride])
		}
		s.PressureMin = floats.Min(p)
		s.PressureMax = floats.Max(p)
	}
	return s
}

// meanAbs returns the mean absolute value of channel 0.
func (m *Measurer) meanAbs(f *grid.Field) float64 {
	v, _ := m.scratch(f.W * f.H)
	for i := range v {
		v[i] = math.Abs(float64(f.Pix[i*grid.Stride]))
	}
	return stat.Mean(v, nil)
}

// LogValue implements slog.LogValuer for structured logging.
func (s FieldStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frame", int(s.Frame)),
		slog.Float64("sim_time", s.SimTime),
		slog.Float64("total_density", s.TotalDensity),
		slog.Float64("max_density", s.MaxDensity),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("mean_abs_div", s.MeanAbsDivergence),
		slog.Float64("mean_abs_curl", s.MeanAbsCurl),
		slog.Float64("pressure_min", s.PressureMin),
		slog.Float64("pressure_max", s.PressureMax),
		slog.Int("splats", s.Splats),
		slog.Int("resets", s.Resets),
	)
}

// LogStats logs the window stats using slog.
func (s FieldStats) LogStats() {
	slog.Info("stats",
		"frame", s.Frame,
		"sim_time", s.SimTime,
		"grid", [2]int{s.Width, s.Height},
		"total_density", s.TotalDensity,
		"max_density", s.MaxDensity,
		"max_speed", s.MaxSpeed,
		"kinetic_energy", s.KineticEnergy,
		"mean_abs_div", s.MeanAbsDivergence,
		"mean_abs_curl", s.MeanAbsCurl,
		"splats", s.Splats,
		"resets", s.Resets,
		"resizes", s.Resizes,
		"rejected_configs", s.RejectedConfigs,
	)
}
