package game

import "log/slog"

// flushTelemetry emits window stats once the collector's window is full.
func (g *Game) flushTelemetry() {
	frame := g.pipeline.Frame()
	if !g.collector.ShouldFlush(frame) {
		return
	}

	stats := g.collector.Flush(g.report, g.set, g.snapshot, g.version)
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	// Log stats if enabled (console output)
	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}
	if stats.NonFinite > 0 {
		slog.Warn("non-finite particle states reset", "frames", stats.WindowEndFrame-stats.WindowStartFrame, "count", stats.NonFinite)
	}

	// Write to CSV if output manager is enabled
	if g.outputManager != nil {
		if err := g.outputManager.WriteFrames(stats); err != nil {
			slog.Error("failed to write frame stats", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndFrame); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}
