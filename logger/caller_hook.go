package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook adjusts the caller reported by logrus so it points
// to the original call site outside of the logger package.
type callerHook struct{}

// Levels returns all log levels for this hook.
func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire sets the entry's Caller to the first frame outside of logrus, this
// package, and the pipeline's metrics-reporting wrappers
// (internal/metrics.ReportStage/ReportWriter/EmitDropMetric). Without the
// latter exclusion, every stage-metric log line would report metrics/
// stage.go or metrics/drop.go as its caller instead of the pipeline or
// sink code that actually triggered it.
func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// Skip runtime.Callers, this method, logrus internals and our wrappers.
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		fn := frame.Function
		if strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "bsefeed/logger") || strings.Contains(fn, "bsefeed/internal/metrics") {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}
