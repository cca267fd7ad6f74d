// Package sim drives the fluid solver: it owns the field buffers, latches a
// configuration snapshot and pointer state once per frame, and runs the kernel
// pipeline in a fixed order.
package sim

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/kernel"
	"github.com/pthm-cable/plume/telemetry"
)

// State is the driver lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Ready
	Stepping
	Resetting
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Stepping:
		return "stepping"
	case Resetting:
		return "resetting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrNotReady is returned when stepping or resetting before the first
// successful Resize.
var ErrNotReady = errors.New("simulation not ready")

// DefaultPointerScale converts a pointer delta in NDC to splat velocity.
const DefaultPointerScale = 100

// Pointer is the input state in normalized device coordinates ([-1, 1] on
// both axes, +y up). Down reports whether a drag is active.
type Pointer struct {
	X, Y float32
	Down bool
}

// buffers is one complete allocation. It is built whole or not at all.
type buffers struct {
	velocity   *grid.DoubleBuffer
	density    *grid.DoubleBuffer
	pressure   *grid.DoubleBuffer
	divergence *grid.Field
	curl       *grid.Field
	w, h       int
}

func newBuffers(a grid.Allocator, w, h int) (*buffers, error) {
	var (
		b   = &buffers{w: w, h: h}
		err error
	)
	if b.velocity, err = grid.NewDoubleBuffer(a, grid.Velocity, w, h); err != nil {
		return nil, err
	}
	if b.density, err = grid.NewDoubleBuffer(a, grid.Density, w, h); err != nil {
		return nil, err
	}
	if b.pressure, err = grid.NewDoubleBuffer(a, grid.Pressure, w, h); err != nil {
		return nil, err
	}
	if b.divergence, err = a.Allocate(grid.Divergence, w, h); err != nil {
		return nil, err
	}
	if b.curl, err = a.Allocate(grid.Curl, w, h); err != nil {
		return nil, err
	}
	return b, nil
}

// fields lists every allocation, both slots of each double buffer included.
func (b *buffers) fields() []*grid.Field {
	out := make([]*grid.Field, 0, 8)
	for _, db := range []*grid.DoubleBuffer{b.velocity, b.density, b.pressure} {
		out = append(out, db.Read(), db.Write())
	}
	return append(out, b.divergence, b.curl)
}

// forgetter is implemented by dispatchers that mirror fields on a device.
type forgetter interface {
	Forget(fields ...*grid.Field)
}

// Simulator runs the solver. Step, Resize, Reset and Configure must be called
// from a single goroutine; PostPointer, RequestReset and RequestResize are
// safe from any goroutine.
type Simulator struct {
	dispatcher kernel.Dispatcher
	alloc      grid.Allocator
	logger     *slog.Logger
	renderer   *display.Renderer

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector

	state      atomic.Int32
	buf        *buffers
	cfg        config.Simulation
	configured bool
	frame      int32

	pointerScale float32
	last         [2]float32
	dragging     bool

	// Mailbox written by input goroutines, drained at frame start.
	mu        sync.Mutex
	pointer   Pointer
	resizeReq *[2]int
	resetReq  atomic.Bool
}

// New creates a simulator in the Uninitialized state. Call Configure and
// Resize before stepping.
func New(d kernel.Dispatcher, a grid.Allocator, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		dispatcher:   d,
		alloc:        a,
		logger:       logger,
		renderer:     display.NewRenderer(nil),
		pointerScale: DefaultPointerScale,
	}
}

// SetPerfCollector attaches per-pass timing. The caller brackets each frame
// with StartTick and EndTick; the simulator only marks phases.
func (s *Simulator) SetPerfCollector(p *telemetry.PerfCollector) { s.perf = p }

// SetCollector attaches an event counter for splats, resets, resizes and
// rejected configurations.
func (s *Simulator) SetCollector(c *telemetry.Collector) { s.collector = c }

// SetRenderer replaces the display adapter, e.g. to share a worker pool.
func (s *Simulator) SetRenderer(r *display.Renderer) {
	if r != nil {
		s.renderer = r
	}
}

// SetPointerScale sets the NDC-delta to velocity factor for drag splats.
func (s *Simulator) SetPointerScale(scale float32) { s.pointerScale = scale }

// State returns the current lifecycle state.
func (s *Simulator) State() State { return State(s.state.Load()) }

func (s *Simulator) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st && (st == Ready || st == Uninitialized || prev == Uninitialized) {
		s.logger.Debug("sim state", "from", prev, "to", st)
	}
}

// Frame returns the number of completed steps.
func (s *Simulator) Frame() int32 { return s.frame }

// Config returns the latched configuration snapshot.
func (s *Simulator) Config() config.Simulation { return s.cfg }

// Size returns the current grid size, or zeros before the first Resize.
func (s *Simulator) Size() (int, int) {
	if s.buf == nil {
		return 0, 0
	}
	return s.buf.w, s.buf.h
}

// GridSize returns the grid dimensions for resolution at the given aspect.
func GridSize(resolution int, aspect float64) (int, int) {
	return config.GridSize(resolution, aspect)
}

// Configure validates cfg and latches it for subsequent frames. An invalid
// configuration is rejected and the previous snapshot stays in effect.
func (s *Simulator) Configure(cfg config.Simulation) error {
	if err := cfg.Validate(); err != nil {
		s.logger.Warn("rejected configuration", "error", err)
		if s.collector != nil {
			s.collector.RecordRejectedConfig()
		}
		return err
	}
	s.cfg = cfg
	s.configured = true
	return nil
}

// Resize allocates a new buffer set of w by h cells and clears it. On failure
// the previous buffers and state are kept. Resizing always discards the flow.
func (s *Simulator) Resize(w, h int) error {
	next, err := newBuffers(s.alloc, w, h)
	if err != nil {
		s.logger.Error("allocation failed", "width", w, "height", h, "error", err)
		return err
	}

	prevState := s.State()
	s.setState(Resetting)
	if err := s.clear(next); err != nil {
		s.setState(prevState)
		return fmt.Errorf("clearing %dx%d buffers: %w", w, h, err)
	}

	if s.buf != nil {
		if f, ok := s.dispatcher.(forgetter); ok {
			f.Forget(s.buf.fields()...)
		}
	}
	s.buf = next
	s.dragging = false
	s.setState(Ready)

	if s.collector != nil {
		s.collector.RecordResize()
	}
	s.logger.Info("grid allocated", "width", w, "height", h)
	return nil
}

// Reset clears every field to zero, pressure included. It is the only way
// back to Ready from any state.
func (s *Simulator) Reset() error {
	if s.buf == nil {
		return ErrNotReady
	}
	s.setState(Resetting)
	s.resetReq.Store(false)
	if err := s.clear(s.buf); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.dragging = false
	s.setState(Ready)

	if s.collector != nil {
		s.collector.RecordReset()
	}
	return nil
}

func (s *Simulator) clear(b *buffers) error {
	for _, f := range b.fields() {
		if err := s.dispatcher.Dispatch(kernel.Clear{}, f); err != nil {
			return err
		}
	}
	return nil
}

// PostPointer stores the latest pointer state. Only the most recent value
// posted before a frame starts is used.
func (s *Simulator) PostPointer(p Pointer) {
	s.mu.Lock()
	s.pointer = p
	s.mu.Unlock()
}

// RequestReset asks for a reset at the next frame boundary. A frame already
// in progress is abandoned.
func (s *Simulator) RequestReset() {
	s.resetReq.Store(true)
}

// RequestResize asks for a reallocation at the start of the next Step. Only
// the last request before that Step is applied.
func (s *Simulator) RequestResize(w, h int) {
	s.mu.Lock()
	s.resizeReq = &[2]int{w, h}
	s.mu.Unlock()
}

// Fields returns the current read view of every field. The set is empty
// before the first Resize.
func (s *Simulator) Fields() grid.Set {
	if s.buf == nil {
		return grid.Set{}
	}
	return grid.Set{
		Velocity:   s.buf.velocity.Read(),
		Density:    s.buf.density.Read(),
		Pressure:   s.buf.pressure.Read(),
		Divergence: s.buf.divergence,
		Curl:       s.buf.curl,
	}
}

// RenderDisplay maps the selected field into dst.
func (s *Simulator) RenderDisplay(p display.Params, dst *image.RGBA) error {
	if s.buf == nil {
		return ErrNotReady
	}
	return s.renderer.Render(s.Fields(), p, dst)
}

// FromConfig builds a configured, allocated simulator for cfg on d.
func FromConfig(cfg *config.Config, d kernel.Dispatcher, logger *slog.Logger) (*Simulator, error) {
	s := New(d, grid.HostAllocator{Precision: cfg.Derived.Precision, MaxCells: cfg.Compute.MaxCells}, logger)
	if cfg.Interaction.PointerScale > 0 {
		s.SetPointerScale(float32(cfg.Interaction.PointerScale))
	}
	if err := s.Configure(cfg.Simulation); err != nil {
		return nil, err
	}
	if err := s.Resize(cfg.Derived.GridW, cfg.Derived.GridH); err != nil {
		return nil, err
	}
	return s, nil
}
