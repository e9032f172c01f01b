// Package sink owns the two required daily output writers (JSON, CSV)
// behind a single Save entry point, plus an optional archival mirror
// (S3 + Parquet) built on the same buffer-then-upload idiom.
package sink

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"bsefeed/internal/metrics"
	"bsefeed/internal/normalizer"
	"bsefeed/logger"
)

// Stats tallies save outcomes for periodic stage reporting.
type Stats struct {
	Saved        int64
	JSONFailures int64
	CSVFailures  int64
}

// Sink owns the JSON and CSV daily writers. Both are opened lazily on
// first Save and reopened at date rollover.
type Sink struct {
	jsonDir string
	csvDir  string
	log     *logger.Log

	json *jsonWriter
	csv  *csvWriter

	archiver *Archiver

	stats Stats
}

// New returns a Sink that writes daily files under jsonDir and csvDir.
// archiver may be nil when archival is disabled.
func New(jsonDir, csvDir string, log *logger.Log, archiver *Archiver) *Sink {
	return &Sink{
		jsonDir:  jsonDir,
		csvDir:   csvDir,
		log:      log,
		json:     newJSONWriter(jsonDir),
		csv:      newCSVWriter(csvDir),
		archiver: archiver,
	}
}

// Save persists one quote to both writers. A failure in one writer is
// logged and counted but never blocks the other writer or the caller; a
// save is never retried.
func (s *Sink) Save(q normalizer.Quote) {
	today := time.Now().Format("20060102")

	rotatedJSON, err := s.json.write(today, q)
	if err != nil {
		s.stats.JSONFailures++
		s.log.WithComponent("sink").WithToken(q.Token).WithError(err).Error("json write failed")
		metrics.EmitDropMetric(s.log, "sink", metrics.DropReasonSinkWriteFailed, strconv.FormatUint(uint64(q.Token), 10), "json: "+err.Error())
	} else if rotatedJSON != "" {
		s.archive(rotatedJSON, rotatedDate(rotatedJSON))
	}

	rotatedCSV, err := s.csv.write(today, q)
	if err != nil {
		s.stats.CSVFailures++
		s.log.WithComponent("sink").WithToken(q.Token).WithError(err).Error("csv write failed")
		metrics.EmitDropMetric(s.log, "sink", metrics.DropReasonSinkWriteFailed, strconv.FormatUint(uint64(q.Token), 10), "csv: "+err.Error())
	} else if rotatedCSV != "" {
		s.archive(rotatedCSV, rotatedDate(rotatedCSV))
	}

	if s.archiver != nil {
		s.archiver.AddQuote(q)
	}

	s.stats.Saved++
}

// rotatedDate extracts the "YYYYMMDD" prefix a dailyFile names its
// rotated-away file after, for labeling the matching Parquet flush.
func rotatedDate(path string) string {
	base := filepath.Base(path)
	if len(base) < 8 {
		return base
	}
	return base[:8]
}

func (s *Sink) archive(path, date string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(path); err != nil {
		s.log.WithComponent("sink").WithError(err).WithFields(logger.Fields{"path": path}).Warn("archive failed")
	}
	if err := s.archiver.Flush(date); err != nil {
		s.log.WithComponent("sink").WithError(err).WithFields(logger.Fields{"date": date}).Warn("parquet flush failed")
	}
}

// Stats returns a snapshot of save counters.
func (s *Sink) Stats() Stats { return s.stats }

// ReportMetrics emits per-writer batch/file/byte counters through
// internal/metrics.ReportWriter, independently of the stage-level
// counters ReportStage covers.
func (s *Sink) ReportMetrics() {
	metrics.ReportWriter(s.log, "sink_json", s.json.writerStats(s.stats.JSONFailures))
	metrics.ReportWriter(s.log, "sink_csv", s.csv.writerStats(s.stats.CSVFailures))
}

// Close flushes and closes both daily files. Called once at shutdown.
func (s *Sink) Close() error {
	var firstErr error
	if err := s.json.close(); err != nil {
		firstErr = fmt.Errorf("sink: close json writer: %w", err)
	}
	if err := s.csv.close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sink: close csv writer: %w", err)
	}
	return firstErr
}
