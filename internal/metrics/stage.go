package metrics

import "bsefeed/logger"

// StageStats holds the counters a pipeline stage accumulates between two
// periodic reports. All fields are plain int64s: the supervisor owns the
// single goroutine that increments them, so no atomics are needed.
type StageStats struct {
	Processed    int64
	ErrorsCount  int64
	DroppedCount int64
}

// ReportStage emits the stage's processed/error/drop counters through the
// configured logger, one call per pipeline stage (decoder, decompressor,
// sink, and so on).
func ReportStage(log *logger.Log, component string, stats StageStats) {
	l := log.WithComponent(component)

	errorRate := float64(0)
	if stats.Processed+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(stats.Processed+stats.ErrorsCount)
	}

	l.LogMetric(component, "records_processed", stats.Processed, "counter", logger.Fields{})
	l.LogMetric(component, "errors_count", stats.ErrorsCount, "counter", logger.Fields{})
	l.LogMetric(component, "dropped_count", stats.DroppedCount, "counter", logger.Fields{})
	l.LogMetric(component, "error_rate", errorRate, "gauge", logger.Fields{})

	entry := l.WithFields(logger.Fields{
		"records_processed": stats.Processed,
		"errors_count":       stats.ErrorsCount,
		"dropped_count":      stats.DroppedCount,
		"error_rate":         errorRate,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " stage metrics")
		return
	}
	entry.Info(component + " stage metrics")
}
