package wire

import "encoding/binary"

// Record field offsets within a 264-byte canonical record block. ltq sits
// in the 8-byte gap between volume (ending at 28) and ltp (starting at
// 36); see DESIGN.md's Open Question resolution for how that gap was
// resolved.
const (
	offsetToken      = 0
	offsetPrevClose  = 4
	offsetOpenHint   = 8
	offsetHighHint   = 12
	offsetLowHint    = 16
	offsetNumTrades  = 20
	offsetVolume     = 24
	offsetLTQ        = 28
	offsetLTP        = 36
	// CompressedCursorOffset is the byte offset, within a record block,
	// where the compressed region begins, immediately after ltp.
	CompressedCursorOffset = 40
)

// RawRecord is one instrument's pre-decompression data, decoded straight
// off the wire from a single record block.
type RawRecord struct {
	Token      uint32
	PrevClose  int32
	OpenHint   int32
	HighHint   int32
	LowHint    int32
	NumTrades  uint32
	Volume     uint32
	LTQ        uint64
	LTP        int32

	// Empty marks a record whose token is 0 or 1: no instrument data,
	// excluded from further processing.
	Empty bool
	// Compressed marks whether this record's depth/OHLC must be
	// reconstructed by internal/decompress (true) or is already fully
	// resolved from the hints above (false, canonical 0x0234 datagrams).
	Compressed bool
	// CompressedRegion is the byte slice of this record's compressed region,
	// used as the cursor source for internal/decompress.
	CompressedRegion []byte
}

// Stats accumulates per-run Decoder counters, reported through
// internal/metrics alongside the other pipeline stages' counters.
type Stats struct {
	DatagramsObserved int64
	HeadersAccepted   int64
	RecordsEmpty      int64
	RecordsNonEmpty   int64
	Failures          map[FailureReason]int64
}

// NewStats returns a zeroed Stats with its Failures map initialized.
func NewStats() *Stats {
	return &Stats{Failures: make(map[FailureReason]int64)}
}

func (s *Stats) countFailure(reason FailureReason) {
	if s.Failures == nil {
		s.Failures = make(map[FailureReason]int64)
	}
	s.Failures[reason]++
}

// DecodeRecords parses the record blocks following the header, given the
// already-decoded header and the full datagram payload. compressed selects
// whether records are treated as the uncompressed 0x0234 variant (false,
// depth already resolved from the hint fields) or the legacy/alternate
// compressed variant (true, depth reconstructed by internal/decompress).
func DecodeRecords(header PacketHeader, payload []byte, compressed bool, stats *Stats) []RawRecord {
	stride := header.RecordStride()
	count := header.NumRecords()
	records := make([]RawRecord, 0, count)

	for i := 0; i < count; i++ {
		start := HeaderSize + i*stride
		end := start + stride
		if end > len(payload) {
			break
		}
		block := payload[start:end]
		rec := decodeRecordBlock(block, compressed)
		if rec.Empty {
			stats.RecordsEmpty++
		} else {
			stats.RecordsNonEmpty++
		}
		records = append(records, rec)
	}

	return records
}

func decodeRecordBlock(block []byte, compressed bool) RawRecord {
	token := binary.LittleEndian.Uint32(block[offsetToken : offsetToken+4])

	rec := RawRecord{
		Token:      token,
		PrevClose:  int32(binary.LittleEndian.Uint32(block[offsetPrevClose : offsetPrevClose+4])),
		OpenHint:   int32(binary.LittleEndian.Uint32(block[offsetOpenHint : offsetOpenHint+4])),
		HighHint:   int32(binary.LittleEndian.Uint32(block[offsetHighHint : offsetHighHint+4])),
		LowHint:    int32(binary.LittleEndian.Uint32(block[offsetLowHint : offsetLowHint+4])),
		NumTrades:  binary.LittleEndian.Uint32(block[offsetNumTrades : offsetNumTrades+4]),
		Volume:     binary.LittleEndian.Uint32(block[offsetVolume : offsetVolume+4]),
		LTQ:        binary.LittleEndian.Uint64(block[offsetLTQ : offsetLTQ+8]),
		LTP:        int32(binary.LittleEndian.Uint32(block[offsetLTP : offsetLTP+4])),
		Compressed: compressed,
	}

	if token == 0 || token == 1 {
		rec.Empty = true
		return rec
	}

	if compressed && len(block) > CompressedCursorOffset {
		rec.CompressedRegion = block[CompressedCursorOffset:]
	}

	return rec
}
