//go:build !opencl

package kernel

import (
	"errors"
	"log/slog"

	"github.com/pthm-cable/plume/grid"
)

// ErrNoOpenCL is returned by NewOpenCL in builds without the opencl tag.
var ErrNoOpenCL = errors.New("OpenCL support is not enabled; rebuild with -tags opencl")

// OpenCLDispatcher is unavailable in this build.
type OpenCLDispatcher struct{}

func NewOpenCL(_ *slog.Logger) (*OpenCLDispatcher, error) {
	return nil, ErrNoOpenCL
}

func (d *OpenCLDispatcher) Dispatch(Kernel, *grid.Field) error { return ErrNoOpenCL }

func (d *OpenCLDispatcher) Forget(...*grid.Field) {}

func (d *OpenCLDispatcher) DeviceName() string { return "" }

func (d *OpenCLDispatcher) Close() error { return nil }
