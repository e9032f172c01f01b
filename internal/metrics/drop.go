package metrics

import "bsefeed/logger"

// DropReason identifies why a datagram or record never reached the sink.
type DropReason string

const (
	// DropReasonMalformedHeader records datagrams whose 36-byte header failed
	// validation (bad magic, unsupported format, length mismatch).
	DropReasonMalformedHeader DropReason = "malformed_header_dropped"
	// DropReasonMalformedRecord records records that failed the 264-byte
	// stride parse.
	DropReasonMalformedRecord DropReason = "malformed_record_dropped"
	// DropReasonDecompressFailed records records whose decompression
	// overran the compressed region (including a side terminator where a
	// scalar or mid-level field was expected).
	DropReasonDecompressFailed DropReason = "decompress_failed_dropped"
	// DropReasonInvalidQuote records records that failed normalization's
	// hard validation (ltp<=0). Unknown tokens are deliberately not a
	// drop reason here: an unknown token still emits the quote, only
	// warning once per token (internal/normalizer.UnknownTokenWarner).
	DropReasonInvalidQuote DropReason = "invalid_quote_dropped"
	// DropReasonSinkWriteFailed records quotes that decoded and normalized
	// cleanly but could not be persisted.
	DropReasonSinkWriteFailed DropReason = "sink_write_failed_dropped"
)

// EmitDropMetric logs and emits a metric for a single dropped unit of work.
// Callers invoke this once per dropped datagram/record so the counter value
// is always 1; optional fields (token, reason detail) are attached for
// downstream aggregation.
func EmitDropMetric(log *logger.Log, component string, reason DropReason, token string, detail string) {
	fields := logger.Fields{}
	if token != "" {
		fields["token"] = token
	}
	if detail != "" {
		fields["detail"] = detail
	}
	log.WithComponent(component).LogMetric(component, string(reason), int64(1), "counter", fields)
}
