package telemetry

import "github.com/pthm-cable/plume/grid"

// Collector accumulates events within time windows and produces FieldStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float32

	// Current window tracking
	windowStartTick int32
	measurer        Measurer

	// Event counters for current window
	splats          int
	resets          int
	resizes         int
	rejectedConfigs int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per step (used for step-to-time conversion)
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := int32(windowDurationSec / float64(dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordSplat records a pointer splat.
func (c *Collector) RecordSplat() {
	c.splats++
}

// RecordReset records a field reset.
func (c *Collector) RecordReset() {
	c.resets++
}

// RecordResize records a grid reallocation.
func (c *Collector) RecordResize() {
	c.resizes++
}

// RecordRejectedConfig records a configuration rejected at the boundary.
func (c *Collector) RecordRejectedConfig() {
	c.rejectedConfigs++
}

// ShouldFlush returns true if the current window has ended.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush measures the fields, attaches the window's event counts and starts
// a new window.
func (c *Collector) Flush(currentTick int32, set grid.Set) FieldStats {
	stats := c.measurer.Measure(set)
	stats.Frame = currentTick
	stats.SimTime = float64(currentTick) * float64(c.dt)
	stats.Splats = c.splats
	stats.Resets = c.resets
	stats.Resizes = c.resizes
	stats.RejectedConfigs = c.rejectedConfigs

	c.windowStartTick = currentTick
	c.splats = 0
	c.resets = 0
	c.resizes = 0
	c.rejectedConfigs = 0

	return stats
}
