// Package pipeline runs a single-threaded, cooperative run loop: one
// goroutine executes receive -> decode -> decompress -> normalize ->
// save, with the bounded receive as the sole blocking yield and
// cancellation-observation point. No channel or worker pool sits between
// stages; the per-datagram work is cheap enough that a fan-out would only
// add synchronization cost without raising throughput.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bsefeed/internal/contractmaster"
	"bsefeed/internal/decompress"
	"bsefeed/internal/metrics"
	"bsefeed/internal/normalizer"
	"bsefeed/internal/receiver"
	"bsefeed/internal/sink"
	"bsefeed/internal/wire"
	"bsefeed/logger"
)

// datagramSource is the receive-side seam Supervisor depends on. The
// production implementation is *receiver.Receiver; tests substitute a
// loopback-backed fake rather than joining a real multicast group.
type datagramSource interface {
	NextDatagram(ctx context.Context) (receiver.Datagram, error)
	Close() error
}

// Supervisor wires one Receiver, Decoder, Decompressor, Normalizer and
// Sink into the cooperative run loop.
type Supervisor struct {
	receiver datagramSource
	cm       *contractmaster.ContractMaster
	sink     *sink.Sink
	log      *logger.Log
	warner   *normalizer.UnknownTokenWarner

	wireStats       *wire.Stats
	decompressStats *decompress.Stats
}

// New builds a Supervisor.
func New(r *receiver.Receiver, cm *contractmaster.ContractMaster, s *sink.Sink, log *logger.Log) *Supervisor {
	return newSupervisor(r, cm, s, log)
}

func newSupervisor(r datagramSource, cm *contractmaster.ContractMaster, s *sink.Sink, log *logger.Log) *Supervisor {
	return &Supervisor{
		receiver:        r,
		cm:              cm,
		sink:            s,
		log:             log,
		warner:          normalizer.NewUnknownTokenWarner(),
		wireStats:       wire.NewStats(),
		decompressStats: &decompress.Stats{},
	}
}

// Run executes the pipeline loop until ctx is cancelled or the receiver
// reports a fatal socket error. A cancellation observed between receive
// attempts returns nil (graceful shutdown); any other receiver error is
// returned to the caller as fatal.
func (sp *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		dgram, err := sp.receiver.NextDatagram(ctx)
		if err != nil {
			if errors.Is(err, receiver.ErrTimeout) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		sp.processDatagram(dgram.Payload)
	}
}

func (sp *Supervisor) processDatagram(payload []byte) {
	sp.wireStats.DatagramsObserved++

	header, err := wire.DecodeHeader(payload)
	if err != nil {
		var decodeErr *wire.DecodeError
		reason, detail := "", err.Error()
		if errors.As(err, &decodeErr) {
			sp.wireStats.Failures[decodeErr.Reason]++
			reason = string(decodeErr.Reason)
			detail = decodeErr.Detail
		}
		metrics.EmitDropMetric(sp.log, "decoder", metrics.DropReasonMalformedHeader, "", reason+": "+detail)
		return
	}
	sp.wireStats.HeadersAccepted++

	if header.BadTimestamp {
		sp.wireStats.Failures[wire.ReasonBadTimestamp]++
		sp.log.WithComponent("decoder").Warn("bad timestamp in header, falling back to wall clock")
	}

	// format_id 0x0234 (564) is the canonical uncompressed variant; any
	// other accepted format_id (legacy 300) carries depth differentially
	// and must be decompressed.
	compressed := header.FormatID != wire.FormatCanonical
	records := wire.DecodeRecords(header, payload, compressed, sp.wireStats)

	now := time.Now()
	for _, rec := range records {
		if rec.Empty {
			continue
		}
		sp.processRecord(rec, header, now)
	}
}

func (sp *Supervisor) processRecord(rec wire.RawRecord, header wire.PacketHeader, now time.Time) {
	depthRec, ok := decompress.Decompress(rec, sp.decompressStats)
	if !ok {
		metrics.EmitDropMetric(sp.log, "decompressor", metrics.DropReasonDecompressFailed, strconv.FormatUint(uint64(rec.Token), 10), "")
		return
	}

	ts := normalizer.Timestamp{Hour: int(header.Hour), Minute: int(header.Minute), Second: int(header.Second), Now: now}
	if header.BadTimestamp {
		ts.Hour, ts.Minute, ts.Second = now.Hour(), now.Minute(), now.Second()
	}
	quote, ok, unknown := normalizer.Normalize(depthRec, sp.cm, ts)
	if !ok {
		metrics.EmitDropMetric(sp.log, "normalizer", metrics.DropReasonInvalidQuote, strconv.FormatUint(uint64(rec.Token), 10), "")
		return
	}
	if unknown {
		sp.warner.Warn(sp.log, rec.Token)
	}

	sp.sink.Save(quote)
}

// Close releases the receiver socket and flushes the sink's output files.
// Called once at shutdown.
func (sp *Supervisor) Close() error {
	sinkErr := sp.sink.Close()
	recvErr := sp.receiver.Close()
	if sinkErr != nil {
		return sinkErr
	}
	return recvErr
}

// ReportStats emits the accumulated decoder/decompressor/sink counters
// through internal/metrics.ReportStage, one call per component, on a
// periodic schedule set by the caller.
func (sp *Supervisor) ReportStats() {
	sinkStats := sp.sink.Stats()

	metrics.ReportStage(sp.log, "decoder", metrics.StageStats{
		Processed:    sp.wireStats.HeadersAccepted,
		ErrorsCount:  sp.wireStats.DatagramsObserved - sp.wireStats.HeadersAccepted,
		DroppedCount: sp.wireStats.DatagramsObserved - sp.wireStats.HeadersAccepted,
	})
	metrics.ReportStage(sp.log, "decompressor", metrics.StageStats{
		Processed:    sp.decompressStats.RecordsDecompressed,
		ErrorsCount:  sp.decompressStats.OverrunErrors,
		DroppedCount: sp.decompressStats.OverrunErrors,
	})
	metrics.ReportStage(sp.log, "sink", metrics.StageStats{
		Processed:    sinkStats.Saved,
		ErrorsCount:  sinkStats.JSONFailures + sinkStats.CSVFailures,
		DroppedCount: sinkStats.JSONFailures + sinkStats.CSVFailures,
	})
	sp.sink.ReportMetrics()

	entry := sp.log.WithComponent("pipeline")
	logger.LogDataFlowEntry(entry, "decoder", "decompressor", int(sp.decompressStats.RecordsDecompressed), "quote")
	logger.LogDataFlowEntry(entry, "decompressor", "sink", int(sinkStats.Saved), "quote")
}
