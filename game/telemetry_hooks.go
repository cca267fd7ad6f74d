package game

// flushTelemetry writes field and perf stats when the stats window ends.
func (g *Game) flushTelemetry() {
	frame := g.sim.Frame()
	if !g.collector.ShouldFlush(frame) {
		return
	}

	stats := g.collector.Flush(frame, g.sim.Fields())
	perfStats := g.perfCollector.Stats()

	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if g.outputManager != nil {
		if err := g.outputManager.WriteStats(stats); err != nil {
			g.logger.Error("failed to write stats", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, frame); err != nil {
			g.logger.Error("failed to write perf", "error", err)
		}
	}
}
