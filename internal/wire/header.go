// Package wire decodes the BSE Direct NFCAST datagram framing: the 36-byte
// header and the fixed-stride record blocks that follow it. Every multi-byte
// field in this layer is little-endian; the compressed region each record
// points into (package internal/decompress) is big-endian.
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed byte length of the PacketHeader.
	HeaderSize = 36

	// RecordStrideCanonical is the per-record byte stride for the
	// canonical 564-byte format (format_id 0x0234).
	RecordStrideCanonical = 264

	// FormatCanonical is the production datagram length/format_id.
	FormatCanonical = 564
	// FormatLegacy is an accepted legacy datagram length/format_id.
	FormatLegacy = 300

	// MessageTypeMarketPicture is a 4-byte-instrument-code market picture.
	MessageTypeMarketPicture = 2020
	// MessageTypeComplexMarketPicture is an 8-byte-instrument-code variant.
	MessageTypeComplexMarketPicture = 2021
)

// FailureReason categorizes why a datagram or record was rejected.
type FailureReason string

const (
	ReasonBadLeadingBytes       FailureReason = "bad_leading_bytes"
	ReasonUnsupportedMsgType    FailureReason = "unsupported_message_type"
	ReasonLengthMismatch        FailureReason = "length_mismatch"
	ReasonBadTimestamp          FailureReason = "bad_timestamp"
)

// PacketHeader is the decoded, immutable 36-byte datagram header.
type PacketHeader struct {
	FormatID    uint16
	MessageType uint16
	Hour        uint16
	Minute      uint16
	Second      uint16
	// BadTimestamp is set when Hour/Minute/Second failed range validation;
	// the caller should fall back to wall-clock time and log a warning.
	BadTimestamp bool
}

// RecordStride returns the per-record byte stride implied by this header's
// format: (format_id - 36) / 2.
func (h PacketHeader) RecordStride() int {
	return int(h.FormatID-HeaderSize) / 2
}

// NumRecords returns the record count implied by the header:
// num_records == (format_id - 36) / record_stride.
func (h PacketHeader) NumRecords() int {
	stride := h.RecordStride()
	if stride <= 0 {
		return 0
	}
	return int(h.FormatID-HeaderSize) / stride
}

// DecodeError reports a rejected datagram or record, carrying the
// categorized reason counted by Stats.
type DecodeError struct {
	Reason FailureReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// DecodeHeader parses the first 36 bytes of payload into a PacketHeader.
// The length-mismatch check (format_id == len(payload)) and the
// unsupported-message-type check are both performed here so a caller never
// proceeds to record parsing on a datagram that fails either.
func DecodeHeader(payload []byte) (PacketHeader, error) {
	if len(payload) < HeaderSize {
		return PacketHeader{}, &DecodeError{Reason: ReasonLengthMismatch, Detail: "payload shorter than header"}
	}

	if payload[0] != 0 || payload[1] != 0 || payload[2] != 0 || payload[3] != 0 {
		return PacketHeader{}, &DecodeError{Reason: ReasonBadLeadingBytes}
	}

	formatID := binary.LittleEndian.Uint16(payload[4:6])
	if int(formatID) != len(payload) {
		return PacketHeader{}, &DecodeError{Reason: ReasonLengthMismatch,
			Detail: fmt.Sprintf("format_id=%d len=%d", formatID, len(payload))}
	}
	if formatID != FormatCanonical && formatID != FormatLegacy {
		return PacketHeader{}, &DecodeError{Reason: ReasonLengthMismatch,
			Detail: fmt.Sprintf("unrecognized format_id=%d", formatID)}
	}

	messageType := binary.LittleEndian.Uint16(payload[8:10])
	if messageType != MessageTypeMarketPicture && messageType != MessageTypeComplexMarketPicture {
		return PacketHeader{}, &DecodeError{Reason: ReasonUnsupportedMsgType,
			Detail: fmt.Sprintf("message_type=%d", messageType)}
	}

	hour := binary.LittleEndian.Uint16(payload[20:22])
	minute := binary.LittleEndian.Uint16(payload[22:24])
	second := binary.LittleEndian.Uint16(payload[24:26])
	badTimestamp := hour >= 24 || minute >= 60 || second >= 60

	return PacketHeader{
		FormatID:     formatID,
		MessageType:  messageType,
		Hour:         hour,
		Minute:       minute,
		Second:       second,
		BadTimestamp: badTimestamp,
	}, nil
}
