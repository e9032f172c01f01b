package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric name constants published to CloudWatch by logReport. cloudwatch.go's
// default dashboard graphs these same names, so the two never drift apart.
const (
	MetricGoroutines    = "BSEFeed-Goroutines"
	MetricHeapMB        = "BSEFeed-HeapMB"
	MetricStageWarnings = "BSEFeed-StageWarnings"
	MetricStageErrors   = "BSEFeed-StageErrors"
)

type stageStat struct {
	warns  int64
	errors int64
}

var stages sync.Map // map[string]*stageStat

func recordWarn(component string) {
	atomic.AddInt64(&stat(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&stat(component).errors, 1)
}

func stat(component string) *stageStat {
	v, _ := stages.LoadOrStore(component, &stageStat{})
	return v.(*stageStat)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of process and per-stage statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

// logReport emits a process-wide snapshot: goroutine count and heap usage
// from runtime.MemStats (no ecosystem library in the retrieved pack declares
// a system-metrics dependency, so this stays on the standard library) plus
// the accumulated warn/error counters per pipeline stage.
func logReport(ctx context.Context, log *Log) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stageData := map[string]map[string]int64{}
	stages.Range(func(k, v any) bool {
		name := k.(string)
		s := v.(*stageStat)
		stageData[name] = map[string]int64{
			"warns":  atomic.LoadInt64(&s.warns),
			"errors": atomic.LoadInt64(&s.errors),
		}
		return true
	})

	heapMB := int64(mem.HeapAlloc) / 1024 / 1024

	log.WithComponent("report").WithFields(Fields{
		"goroutines": runtime.NumGoroutine(),
		"heap_mb":    heapMB,
		"stages":     stageData,
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String(MetricGoroutines), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
		{MetricName: aws.String(MetricHeapMB), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(heapMB))},
	}
	for name, counts := range stageData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String(MetricStageWarnings),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(counts["warns"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String(MetricStageErrors),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(counts["errors"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
