package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Phase names for the solver step, in pipeline order.
const (
	PhaseAdvectVelocity = "advect_velocity"
	PhaseSplat          = "splat"
	PhaseForce          = "force"
	PhaseVorticity      = "vorticity"
	PhaseDivergence     = "divergence"
	PhasePressure       = "pressure"
	PhaseGradient       = "gradient"
	PhaseAdvectDensity  = "advect_density"
	PhaseDisplay        = "display"
)

// Phases lists every phase in pipeline order.
var Phases = []string{
	PhaseAdvectVelocity, PhaseSplat, PhaseForce, PhaseVorticity,
	PhaseDivergence, PhasePressure, PhaseGradient, PhaseAdvectDensity,
	PhaseDisplay,
}

var phaseIndex = func() map[string]int {
	m := make(map[string]int, len(Phases))
	for i, p := range Phases {
		m[p] = i
	}
	return m
}()

// stepSample is the timing of one step. A negative phase entry means the
// phase did not run.
type stepSample struct {
	total  time.Duration
	phases []time.Duration
}

// PerfCollector times solver steps and their phases over a ring of the
// most recent steps. Phases not listed in Phases are ignored.
type PerfCollector struct {
	ring  []stepSample
	next  int
	count int

	cur        stepSample
	stepStart  time.Time
	phaseStart time.Time
	phase      int // index into Phases, -1 when idle

	lastFrame time.Time
	frameDur  time.Duration

	scratch []float64
}

// NewPerfCollector creates a collector averaging over window steps.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	p := &PerfCollector{
		ring:    make([]stepSample, window),
		phase:   -1,
		scratch: make([]float64, 0, window),
	}
	for i := range p.ring {
		p.ring[i].phases = make([]time.Duration, len(Phases))
	}
	p.cur.phases = make([]time.Duration, len(Phases))
	return p
}

// StartTick begins timing a solver step.
func (p *PerfCollector) StartTick() {
	p.stepStart = time.Now()
	for i := range p.cur.phases {
		p.cur.phases[i] = -1
	}
	p.phase = -1
}

// StartPhase closes the running phase and starts timing the named one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	if i, ok := phaseIndex[phase]; ok {
		p.phase = i
		p.phaseStart = now
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase < 0 {
		return
	}
	d := now.Sub(p.phaseStart)
	if p.cur.phases[p.phase] < 0 {
		p.cur.phases[p.phase] = 0
	}
	p.cur.phases[p.phase] += d
	p.phase = -1
}

// EndTick closes the step and stores it in the ring.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)

	slot := &p.ring[p.next]
	slot.total = now.Sub(p.stepStart)
	copy(slot.phases, p.cur.phases)

	p.next = (p.next + 1) % len(p.ring)
	if p.count < len(p.ring) {
		p.count++
	}
}

// RecordFrame marks a presented frame for FPS reporting.
func (p *PerfCollector) RecordFrame() {
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frameDur = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats summarizes the steps in the window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P95TickDuration time.Duration

	// Average phase duration over the steps that ran the phase, and its
	// share of the average step in percent.
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	TicksPerSecond float64

	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	out := PerfStats{
		PhaseAvg:      make(map[string]time.Duration),
		PhasePct:      make(map[string]float64),
		FrameDuration: p.frameDur,
	}
	if p.frameDur > 0 {
		out.FPS = float64(time.Second) / float64(p.frameDur)
	}
	if p.count == 0 {
		return out
	}

	steps := p.scratch[:0]
	for i := 0; i < p.count; i++ {
		steps = append(steps, float64(p.ring[i].total))
	}
	avg := stat.Mean(steps, nil)
	out.AvgTickDuration = time.Duration(avg)
	out.MinTickDuration = time.Duration(floats.Min(steps))
	out.MaxTickDuration = time.Duration(floats.Max(steps))
	sort.Float64s(steps)
	out.P95TickDuration = time.Duration(stat.Quantile(0.95, stat.Empirical, steps, nil))
	if avg > 0 {
		out.TicksPerSecond = float64(time.Second) / avg
	}

	for pi, name := range Phases {
		var sum time.Duration
		var n int
		for i := 0; i < p.count; i++ {
			if d := p.ring[i].phases[pi]; d >= 0 {
				sum += d
				n++
			}
		}
		if n == 0 {
			continue
		}
		// Averaged over every step so percentages add up to at most 100.
		mean := sum / time.Duration(p.count)
		out.PhaseAvg[name] = sum / time.Duration(n)
		if avg > 0 {
			out.PhasePct[name] = float64(mean) / avg * 100
		}
	}
	p.scratch = steps
	return out
}

// LogStats logs the summary at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "stats", s)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p95_step_us", s.P95TickDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct >= 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	Frame             int32   `csv:"frame"`
	AvgStepUS         int64   `csv:"avg_step_us"`
	MinStepUS         int64   `csv:"min_step_us"`
	MaxStepUS         int64   `csv:"max_step_us"`
	P95StepUS         int64   `csv:"p95_step_us"`
	StepsPerSec       float64 `csv:"steps_per_sec"`
	FPS               float64 `csv:"fps"`
	AdvectVelocityPct float64 `csv:"advect_velocity_pct"`
	SplatPct          float64 `csv:"splat_pct"`
	ForcePct          float64 `csv:"force_pct"`
	VorticityPct      float64 `csv:"vorticity_pct"`
	DivergencePct     float64 `csv:"divergence_pct"`
	PressurePct       float64 `csv:"pressure_pct"`
	GradientPct       float64 `csv:"gradient_pct"`
	AdvectDensityPct  float64 `csv:"advect_density_pct"`
	DisplayPct        float64 `csv:"display_pct"`
}

// ToCSV flattens s into a perf.csv row for the window ending at frame.
func (s PerfStats) ToCSV(frame int32) PerfStatsCSV {
	return PerfStatsCSV{
		Frame:             frame,
		AvgStepUS:         s.AvgTickDuration.Microseconds(),
		MinStepUS:         s.MinTickDuration.Microseconds(),
		MaxStepUS:         s.MaxTickDuration.Microseconds(),
		P95StepUS:         s.P95TickDuration.Microseconds(),
		StepsPerSec:       s.TicksPerSecond,
		FPS:               s.FPS,
		AdvectVelocityPct: s.PhasePct[PhaseAdvectVelocity],
		SplatPct:          s.PhasePct[PhaseSplat],
		ForcePct:          s.PhasePct[PhaseForce],
		VorticityPct:      s.PhasePct[PhaseVorticity],
		DivergencePct:     s.PhasePct[PhaseDivergence],
		PressurePct:       s.PhasePct[PhasePressure],
		GradientPct:       s.PhasePct[PhaseGradient],
		AdvectDensityPct:  s.PhasePct[PhaseAdvectDensity],
		DisplayPct:        s.PhasePct[PhaseDisplay],
	}
}
