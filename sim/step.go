package sim

import (
	"errors"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/kernel"
	"github.com/pthm-cable/plume/telemetry"
)

// Frame is the immutable input of one step, captured once at frame start.
type Frame struct {
	DT      float32
	Config  config.Simulation
	Pointer Pointer

	// Drag is set when the pointer is down. Delta is the velocity injected by
	// the drag splat and Point the splat centre in uv.
	Drag  bool
	Delta [2]float32
	Point [2]float32
}

// errInterrupted abandons the rest of a frame when a reset arrives.
var errInterrupted = errors.New("frame interrupted by reset")

// Step applies pending requests, captures the frame input and runs one
// solver iteration. A dt of zero or less uses the configured time step.
func (s *Simulator) Step(dt float32) error {
	if err := s.applyRequests(); err != nil {
		return err
	}
	if s.buf == nil || !s.configured {
		return ErrNotReady
	}

	f := s.capture(dt)
	s.setState(Stepping)
	err := s.advance(f)
	if errors.Is(err, errInterrupted) {
		s.logger.Debug("frame discarded", "frame", s.frame)
		return s.Reset()
	}
	s.setState(Ready)
	if err != nil {
		return err
	}
	s.frame++
	return nil
}

// applyRequests performs at most one pending resize, then a pending reset.
func (s *Simulator) applyRequests() error {
	s.mu.Lock()
	req := s.resizeReq
	s.resizeReq = nil
	s.mu.Unlock()

	if req != nil {
		if err := s.Resize(req[0], req[1]); err != nil {
			return err
		}
		// A fresh allocation is already clear.
		s.resetReq.Store(false)
	}
	if s.resetReq.Load() {
		return s.Reset()
	}
	return nil
}

// capture latches the config snapshot and pointer, and tracks the last
// pointer position for drag deltas.
func (s *Simulator) capture(dt float32) Frame {
	s.mu.Lock()
	p := s.pointer
	s.mu.Unlock()

	if dt <= 0 {
		dt = float32(s.cfg.DT)
	}
	f := Frame{DT: dt, Config: s.cfg, Pointer: p}

	cur := [2]float32{p.X, p.Y}
	if p.Down {
		if !s.dragging {
			s.last = cur
		}
		f.Drag = true
		f.Delta = [2]float32{
			(cur[0] - s.last[0]) * s.pointerScale,
			(cur[1] - s.last[1]) * s.pointerScale,
		}
		f.Point = [2]float32{cur[0]*0.5 + 0.5, cur[1]*0.5 + 0.5}
	}
	s.last = cur
	s.dragging = p.Down
	return f
}

// stage is one pipeline step, timed under phase.
type stage struct {
	phase string
	run   func() error
}

// advance runs the pipeline for one frame. It checks for a pending reset
// between stages.
func (s *Simulator) advance(f Frame) error {
	b := s.buf
	c := f.Config
	aspect := float32(b.w) / float32(b.h)
	radius := float32(c.SplatRadius)

	stages := []stage{
		{telemetry.PhaseAdvectVelocity, func() error {
			vel := b.velocity.Read()
			return s.apply(b.velocity, kernel.Advect{
				Velocity: vel, Source: vel, DT: f.DT, Dissipation: float32(c.VelocityDissipation),
			}, true)
		}},
		{telemetry.PhaseSplat, func() error {
			if !f.Drag {
				return nil
			}
			if s.collector != nil {
				s.collector.RecordSplat()
			}
			return s.apply(b.velocity, kernel.Splat{
				Target: b.velocity.Read(), Point: f.Point,
				Value:  [3]float32{f.Delta[0], f.Delta[1], 0},
				Radius: radius, Aspect: aspect,
			}, true)
		}},
		{telemetry.PhaseForce, func() error {
			if !c.Gravity {
				return nil
			}
			return s.apply(b.velocity, kernel.Force{
				Velocity: b.velocity.Read(),
				Force:    [2]float32{float32(c.GravityX), float32(c.GravityY)},
				DT:       f.DT,
			}, true)
		}},
		{telemetry.PhaseVorticity, func() error {
			if !c.Vorticity {
				return nil
			}
			if err := s.dispatcher.Dispatch(kernel.Curl{Velocity: b.velocity.Read()}, b.curl); err != nil {
				return err
			}
			return s.apply(b.velocity, kernel.Vorticity{
				Velocity: b.velocity.Read(), Curl: b.curl,
				Strength: float32(c.Curl), DT: f.DT,
			}, true)
		}},
		{telemetry.PhaseDivergence, func() error {
			return s.dispatcher.Dispatch(kernel.Divergence{Velocity: b.velocity.Read()}, b.divergence)
		}},
		{telemetry.PhasePressure, func() error {
			return s.project(b, c.PressureIterations)
		}},
		{telemetry.PhaseGradient, func() error {
			return s.apply(b.velocity, kernel.GradientSubtract{
				Pressure: b.pressure.Read(), Velocity: b.velocity.Read(),
			}, true)
		}},
		{telemetry.PhaseAdvectDensity, func() error {
			return s.apply(b.density, kernel.Advect{
				Velocity: b.velocity.Read(), Source: b.density.Read(),
				DT: f.DT, Dissipation: float32(c.DensityDissipation),
			}, false)
		}},
		{telemetry.PhaseSplat, func() error {
			if !f.Drag {
				return nil
			}
			d := float32(c.SplatDensity)
			return s.apply(b.density, kernel.Splat{
				Target: b.density.Read(), Point: f.Point,
				Value:  [3]float32{d, d, d},
				Radius: radius, Aspect: aspect,
			}, false)
		}},
	}

	for _, st := range stages {
		if s.resetReq.Load() {
			return errInterrupted
		}
		if s.perf != nil {
			s.perf.StartPhase(st.phase)
		}
		if err := st.run(); err != nil {
			return err
		}
	}
	return nil
}

// project relaxes pressure against the current divergence. Pressure is not
// cleared between frames, so each solve starts from the previous result.
func (s *Simulator) project(b *buffers, iterations int) error {
	for i := 0; i < iterations; i++ {
		err := s.dispatcher.Dispatch(kernel.Jacobi{
			Pressure: b.pressure.Read(), Divergence: b.divergence,
		}, b.pressure.Write())
		if err != nil {
			return err
		}
		b.pressure.Swap()
		if err := s.boundary(b.pressure, false); err != nil {
			return err
		}
	}
	return nil
}

// apply runs k into db's write slot, swaps, and enforces the boundary.
func (s *Simulator) apply(db *grid.DoubleBuffer, k kernel.Kernel, reflect bool) error {
	if err := s.dispatcher.Dispatch(k, db.Write()); err != nil {
		return err
	}
	db.Swap()
	return s.boundary(db, reflect)
}

// boundary rewrites the outer ring of db. Velocity reflects; scalars copy.
func (s *Simulator) boundary(db *grid.DoubleBuffer, reflect bool) error {
	if err := s.dispatcher.Dispatch(kernel.Boundary{Target: db.Read(), Reflect: reflect}, db.Write()); err != nil {
		return err
	}
	db.Swap()
	return nil
}
