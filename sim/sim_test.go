package sim

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/kernel"
	"github.com/pthm-cable/plume/parallel"
	"github.com/pthm-cable/plume/telemetry"
)

func init() {
	config.MustInit("")
}

func newSim(t *testing.T, w, h int) *Simulator {
	t.Helper()
	d := kernel.NewCPUDispatcher(parallel.NewPool(2))
	t.Cleanup(func() { d.Close() })

	s := New(d, grid.HostAllocator{}, nil)
	if err := s.Configure(config.Cfg().Simulation); err != nil {
		t.Fatal(err)
	}
	if w > 0 {
		if err := s.Resize(w, h); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

// drag moves the pointer in a small circle around the centre for n frames.
func drag(t *testing.T, s *Simulator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		a := float64(i) * 0.3
		s.PostPointer(Pointer{X: float32(0.3 * math.Cos(a)), Y: float32(0.3 * math.Sin(a)), Down: true})
		if err := s.Step(0); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	s.PostPointer(Pointer{})
}

// allZero reports whether every meaningful channel of f is zero.
func allZero(f *grid.Field) bool {
	n := f.Channels()
	for i := 0; i < f.W*f.H; i++ {
		for c := 0; c < n; c++ {
			if f.Pix[i*grid.Stride+c] != 0 {
				return false
			}
		}
	}
	return true
}

func maxDensity(f *grid.Field) float32 {
	var m float32
	for i := 0; i < f.W*f.H; i++ {
		o := i * grid.Stride
		m = max(m, f.Pix[o], f.Pix[o+1], f.Pix[o+2])
	}
	return m
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{
		Uninitialized: "uninitialized", Ready: "ready", Stepping: "stepping", Resetting: "resetting",
	} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}

func TestStepBeforeResize(t *testing.T) {
	s := newSim(t, 0, 0)
	if s.State() != Uninitialized {
		t.Fatalf("state = %v, want uninitialized", s.State())
	}
	if err := s.Step(0.016); !errors.Is(err, ErrNotReady) {
		t.Errorf("Step before Resize = %v, want ErrNotReady", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Reset before Resize = %v, want ErrNotReady", err)
	}
	if f := s.Fields(); f.Velocity != nil || f.Density != nil {
		t.Error("expected empty field set before Resize")
	}
}

func TestResetAfterDrag(t *testing.T) {
	s := newSim(t, 64, 64)
	drag(t, s, 100)

	f := s.Fields()
	if allZero(f.Density) || allZero(f.Velocity) {
		t.Fatal("drag should have injected density and velocity")
	}

	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want ready", s.State())
	}
	f = s.Fields()
	for _, fld := range []*grid.Field{f.Velocity, f.Density, f.Pressure, f.Divergence, f.Curl} {
		if !allZero(fld) {
			t.Errorf("%s not cleared by Reset", fld.Kind)
		}
	}
}

func TestRequestResetAppliesAtFrameStart(t *testing.T) {
	s := newSim(t, 32, 32)
	drag(t, s, 10)

	s.RequestReset()
	if err := s.Step(0); err != nil {
		t.Fatal(err)
	}
	f := s.Fields()
	if !allZero(f.Density) || !allZero(f.Velocity) {
		t.Error("expected zero fields after reset and an input-free frame")
	}
}

func TestResizeFailureKeepsState(t *testing.T) {
	s := newSim(t, 32, 16)
	drag(t, s, 5)
	before := append([]float32(nil), s.Fields().Density.Pix...)

	err := s.Resize(0, 16)
	var allocErr *grid.AllocationError
	if !errors.As(err, &allocErr) || !errors.Is(err, grid.ErrInvalidResolution) {
		t.Fatalf("Resize(0, 16) = %v, want AllocationError", err)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want ready", s.State())
	}
	if w, h := s.Size(); w != 32 || h != 16 {
		t.Errorf("size = %dx%d, want 32x16", w, h)
	}
	after := s.Fields().Density.Pix
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("failed resize modified the active buffers")
		}
	}
}

func TestResizeFailureFromUninitialized(t *testing.T) {
	s := newSim(t, 0, 0)
	if err := s.Resize(-1, 8); err == nil {
		t.Fatal("expected allocation error")
	}
	if s.State() != Uninitialized {
		t.Errorf("state = %v, want uninitialized", s.State())
	}
}

func TestRequestResizeReportsFailureFromStep(t *testing.T) {
	s := newSim(t, 16, 16)
	s.RequestResize(0, 0)
	if err := s.Step(0); !errors.Is(err, grid.ErrInvalidResolution) {
		t.Errorf("Step with bad resize = %v, want ErrInvalidResolution", err)
	}
	// The request is consumed; stepping continues on the old buffers
	if err := s.Step(0); err != nil {
		t.Errorf("Step after failed resize: %v", err)
	}

	s.RequestResize(8, 4)
	s.RequestResize(24, 12)
	if err := s.Step(0); err != nil {
		t.Fatal(err)
	}
	if w, h := s.Size(); w != 24 || h != 12 {
		t.Errorf("size = %dx%d, want last request 24x12", w, h)
	}
}

func TestConfigureRejectsInvalid(t *testing.T) {
	s := newSim(t, 16, 16)
	c := telemetry.NewCollector(1, 0.016)
	s.SetCollector(c)

	bad := config.Cfg().Simulation
	bad.PressureIterations = -1
	err := s.Configure(bad)
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, config.ErrOutOfRange) {
		t.Fatalf("Configure = %v, want ConfigurationError", err)
	}
	if s.Config().PressureIterations != config.Cfg().Simulation.PressureIterations {
		t.Error("rejected configuration was latched")
	}
	if stats := c.Flush(1, grid.Set{}); stats.RejectedConfigs != 1 {
		t.Errorf("rejected configs = %d, want 1", stats.RejectedConfigs)
	}
}

func TestDensityDecaysWithoutInput(t *testing.T) {
	s := newSim(t, 48, 48)
	drag(t, s, 10)

	prev := maxDensity(s.Fields().Density)
	if prev == 0 {
		t.Fatal("expected density after drag")
	}
	for i := 0; i < 30; i++ {
		if err := s.Step(0); err != nil {
			t.Fatal(err)
		}
		cur := maxDensity(s.Fields().Density)
		if cur > prev {
			t.Fatalf("frame %d: max density grew from %v to %v", i, prev, cur)
		}
		prev = cur
	}
}

func TestPointerLastValueWins(t *testing.T) {
	s := newSim(t, 16, 16)
	s.PostPointer(Pointer{X: -0.5, Y: 0.5, Down: true})
	s.PostPointer(Pointer{X: 0.25, Y: -0.25, Down: true})
	if err := s.Step(0); err != nil {
		t.Fatal(err)
	}
	if s.last != [2]float32{0.25, -0.25} {
		t.Errorf("last pointer = %v, want the final posted value", s.last)
	}
}

func TestDragDeltaAndPoint(t *testing.T) {
	s := newSim(t, 16, 16)

	// First drag frame has no delta
	s.PostPointer(Pointer{X: 0, Y: 0, Down: true})
	f := s.capture(0)
	if !f.Drag || f.Delta != [2]float32{} {
		t.Errorf("first drag frame = %+v, want zero delta", f)
	}
	if f.Point != [2]float32{0.5, 0.5} {
		t.Errorf("point = %v, want grid centre", f.Point)
	}

	s.PostPointer(Pointer{X: 0.1, Y: -0.2, Down: true})
	f = s.capture(0)
	if math.Abs(float64(f.Delta[0]-10)) > 1e-4 || math.Abs(float64(f.Delta[1]+20)) > 1e-4 {
		t.Errorf("delta = %v, want (10, -20)", f.Delta)
	}

	// Hovering tracks the pointer without splatting
	s.PostPointer(Pointer{X: 0.9, Y: 0.9})
	if f = s.capture(0); f.Drag {
		t.Error("released pointer should not drag")
	}
	if f.DT != float32(config.Cfg().Simulation.DT) {
		t.Errorf("dt = %v, want configured dt", f.DT)
	}
}

func TestDragInjectsVelocityAlongMotion(t *testing.T) {
	s := newSim(t, 64, 64)
	s.PostPointer(Pointer{X: 0, Y: 0, Down: true})
	if err := s.Step(0); err != nil {
		t.Fatal(err)
	}
	s.PostPointer(Pointer{X: 0.05, Y: 0, Down: true})
	if err := s.Step(0); err != nil {
		t.Fatal(err)
	}

	v := s.Fields().Velocity
	var sum float32
	for y := 24; y < 40; y++ {
		for x := 24; x < 40; x++ {
			sum += v.At(x, y)[0]
		}
	}
	if sum <= 0 {
		t.Errorf("net x velocity near the splat = %v, want positive", sum)
	}
}

func TestPerfPhasesRecorded(t *testing.T) {
	s := newSim(t, 32, 32)
	pc := telemetry.NewPerfCollector(4)
	s.SetPerfCollector(pc)

	pc.StartTick()
	if err := s.Step(0); err != nil {
		t.Fatal(err)
	}
	pc.EndTick()

	stats := pc.Stats()
	for _, phase := range []string{telemetry.PhaseAdvectVelocity, telemetry.PhasePressure, telemetry.PhaseAdvectDensity} {
		if _, ok := stats.PhaseAvg[phase]; !ok {
			t.Errorf("phase %s not recorded", phase)
		}
	}
}

func TestCollectorCountsEvents(t *testing.T) {
	s := newSim(t, 16, 16)
	c := telemetry.NewCollector(1, 0.016)
	s.SetCollector(c)

	drag(t, s, 3)
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	stats := c.Flush(s.Frame(), s.Fields())
	if stats.Splats != 3 {
		t.Errorf("splats = %d, want one per drag frame", stats.Splats)
	}
	if stats.Resets != 1 {
		t.Errorf("resets = %d, want 1", stats.Resets)
	}
}

func TestHalfPrecisionStep(t *testing.T) {
	d := kernel.NewCPUDispatcher(parallel.NewPool(1))
	defer d.Close()
	s := New(d, grid.HostAllocator{Precision: grid.Half}, nil)
	if err := s.Configure(config.Cfg().Simulation); err != nil {
		t.Fatal(err)
	}
	if err := s.Resize(32, 32); err != nil {
		t.Fatal(err)
	}
	drag(t, s, 5)
	if s.Fields().Density.Precision != grid.Half {
		t.Error("expected half precision fields")
	}
	if maxDensity(s.Fields().Density) == 0 {
		t.Error("expected density in half precision run")
	}
}

func TestRenderDisplay(t *testing.T) {
	s := newSim(t, 20, 10)
	p, err := display.ParamsFromConfig(config.Cfg().Visualization)
	if err != nil {
		t.Fatal(err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, 20, 10))
	if err := s.RenderDisplay(p, dst); err != nil {
		t.Fatal(err)
	}

	empty := newSim(t, 0, 0)
	if err := empty.RenderDisplay(p, dst); !errors.Is(err, ErrNotReady) {
		t.Errorf("RenderDisplay before Resize = %v, want ErrNotReady", err)
	}
}

func TestGridSize(t *testing.T) {
	if w, h := GridSize(512, 2); w != 512 || h != 256 {
		t.Errorf("GridSize(512, 2) = %dx%d, want 512x256", w, h)
	}
}

func TestFromConfig(t *testing.T) {
	d := kernel.NewCPUDispatcher(parallel.NewPool(1))
	defer d.Close()

	cfg := config.Cfg()
	s, err := FromConfig(cfg, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := s.Size(); w != cfg.Derived.GridW || h != cfg.Derived.GridH {
		t.Errorf("size = %dx%d, want %dx%d", w, h, cfg.Derived.GridW, cfg.Derived.GridH)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want ready", s.State())
	}
	if s.pointerScale != float32(cfg.Interaction.PointerScale) {
		t.Errorf("pointer scale = %v", s.pointerScale)
	}
}
