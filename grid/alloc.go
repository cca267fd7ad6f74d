package grid

import (
	"errors"
	"fmt"
)

// DefaultMaxCells bounds a single allocation at 4096×4096 cells.
const DefaultMaxCells = 4096 * 4096

var (
	// ErrInvalidResolution is returned for non-positive dimensions.
	ErrInvalidResolution = errors.New("invalid resolution")
	// ErrTooLarge is returned when a field would exceed the cell budget.
	ErrTooLarge = errors.New("resolution exceeds cell budget")
)

// AllocationError reports a field that could not be backed by storage.
type AllocationError struct {
	Kind Kind
	W, H int
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocating %s field %dx%d: %v", e.Kind, e.W, e.H, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Allocator reserves backing storage for fields.
type Allocator interface {
	Allocate(kind Kind, w, h int) (*Field, error)
}

// HostAllocator allocates fields in process memory.
type HostAllocator struct {
	Precision Precision
	// MaxCells caps W*H per field; zero means DefaultMaxCells.
	MaxCells int
}

// Allocate returns a zeroed field or an *AllocationError.
func (a HostAllocator) Allocate(kind Kind, w, h int) (*Field, error) {
	if w <= 0 || h <= 0 {
		return nil, &AllocationError{Kind: kind, W: w, H: h, Err: ErrInvalidResolution}
	}
	limit := a.MaxCells
	if limit <= 0 {
		limit = DefaultMaxCells
	}
	if w > limit/h {
		return nil, &AllocationError{Kind: kind, W: w, H: h, Err: ErrTooLarge}
	}
	return newField(kind, w, h, a.Precision), nil
}

// DoubleBuffer owns two allocations of the same field and tracks which one
// kernels read from. The other is the write target.
type DoubleBuffer struct {
	slots [2]*Field
	read  uint8
}

// NewDoubleBuffer allocates both slots. If the second allocation fails the
// first is dropped, so no half-built buffer escapes.
func NewDoubleBuffer(a Allocator, kind Kind, w, h int) (*DoubleBuffer, error) {
	first, err := a.Allocate(kind, w, h)
	if err != nil {
		return nil, err
	}
	second, err := a.Allocate(kind, w, h)
	if err != nil {
		return nil, err
	}
	return &DoubleBuffer{slots: [2]*Field{first, second}}, nil
}

// Read returns the allocation currently holding the latest state.
func (d *DoubleBuffer) Read() *Field { return d.slots[d.read] }

// Write returns the allocation the next pass renders into.
func (d *DoubleBuffer) Write() *Field { return d.slots[d.read^1] }

// Swap exchanges the read and write roles without touching storage.
func (d *DoubleBuffer) Swap() { d.read ^= 1 }

// Clear clears both slots.
func (d *DoubleBuffer) Clear(value float32) {
	d.slots[0].Clear(value)
	d.slots[1].Clear(value)
}

// Set groups the current read view of every field of one simulation.
type Set struct {
	Velocity   *Field
	Density    *Field
	Pressure   *Field
	Divergence *Field
	Curl       *Field
}
