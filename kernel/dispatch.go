package kernel

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/parallel"
)

// ErrAliased is returned when a kernel's destination is also one of its inputs.
var ErrAliased = errors.New("kernel destination aliases an input")

// ErrMismatch is returned when an input field does not share the
// destination's resolution.
var ErrMismatch = errors.New("kernel input resolution mismatch")

// Dispatcher executes kernels against a destination field. Dispatch returns
// once every destination cell has been written.
type Dispatcher interface {
	Dispatch(k Kernel, dst *grid.Field) error
	Close() error
}

// Check validates the kernel's inputs against dst.
func Check(k Kernel, dst *grid.Field) error {
	for _, in := range k.Inputs() {
		if in == nil {
			return fmt.Errorf("%s: nil input", k.Name())
		}
		if in == dst {
			return fmt.Errorf("%s: %w", k.Name(), ErrAliased)
		}
		if in.W != dst.W || in.H != dst.H {
			return fmt.Errorf("%s: %w (%dx%d vs %dx%d)", k.Name(), ErrMismatch, in.W, in.H, dst.W, dst.H)
		}
	}
	return nil
}

// CPUDispatcher runs kernels on a row-banded worker pool.
type CPUDispatcher struct {
	pool *parallel.Pool
}

// NewCPUDispatcher returns a dispatcher backed by pool. A nil pool creates one
// sized to GOMAXPROCS.
func NewCPUDispatcher(pool *parallel.Pool) *CPUDispatcher {
	if pool == nil {
		pool = parallel.NewPool(0)
	}
	return &CPUDispatcher{pool: pool}
}

// Dispatch evaluates k over every row of dst and rounds the result to the
// field's storage precision.
func (d *CPUDispatcher) Dispatch(k Kernel, dst *grid.Field) error {
	if err := Check(k, dst); err != nil {
		return err
	}
	d.pool.Run(dst.H, func(y0, y1 int) {
		k.Rows(dst, y0, y1)
		dst.Quantize(y0, y1)
	})
	return nil
}

// Close stops the worker pool.
func (d *CPUDispatcher) Close() error {
	d.pool.Close()
	return nil
}
