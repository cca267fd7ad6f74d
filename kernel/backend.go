package kernel

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pthm-cable/plume/parallel"
)

// Backend names accepted by NewDispatcher.
const (
	BackendCPU    = "cpu"
	BackendOpenCL = "opencl"
)

// NewDispatcher returns a dispatcher for backend and a short description of
// where kernels run. An unavailable OpenCL device falls back to the CPU.
func NewDispatcher(backend string, workers int, logger *slog.Logger) (Dispatcher, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(backend) {
	case "", BackendCPU:
	case BackendOpenCL:
		d, err := NewOpenCL(logger)
		if err == nil {
			return d, BackendOpenCL + ":" + d.DeviceName(), nil
		}
		logger.Warn("opencl unavailable, using cpu", "error", err)
	default:
		return nil, "", fmt.Errorf("unknown compute backend %q", backend)
	}
	pool := parallel.NewPool(workers)
	return NewCPUDispatcher(pool), fmt.Sprintf("%s:%d", BackendCPU, pool.Workers()), nil
}
