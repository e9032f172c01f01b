// Package decompress reconstructs the NFCAST differential-compressed
// market-depth region of a record: a cascading series of 2-byte big-endian
// signed differentials against running base values, with sentinel values
// that escape to an absolute 4-byte value or terminate a depth side.
package decompress

import (
	"encoding/binary"
	"fmt"
)

const (
	escapeAbsolute  = 32767
	terminatorBid   = 32766
	terminatorAsk   = -32766
	maxDepthLevels  = 5
)

// ErrOverrun is returned when a decode step would read past the end of the
// record's compressed region. This is a non-fatal, per-record error: the
// partial result is discarded and a counter incremented, but the
// datagram's remaining records are unaffected.
var ErrOverrun = fmt.Errorf("decompress: read past end of compressed region")

// Cursor walks a record's compressed region. All reads are big-endian,
// the only part of the datagram that is.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor wraps a record's compressed region for sequential decoding.
func NewCursor(region []byte) *Cursor {
	return &Cursor{data: region}
}

// field decodes one differential value against base. ok is false when
// the side terminator was hit; err is ErrOverrun on a bounds violation.
func (c *Cursor) field(base int64) (value int64, ok bool, err error) {
	if c.pos+2 > len(c.data) {
		return 0, false, ErrOverrun
	}
	d := int16(binary.BigEndian.Uint16(c.data[c.pos : c.pos+2]))
	c.pos += 2

	switch d {
	case escapeAbsolute:
		if c.pos+4 > len(c.data) {
			return 0, false, ErrOverrun
		}
		v := int32(binary.BigEndian.Uint32(c.data[c.pos : c.pos+4]))
		c.pos += 4
		return int64(v), true, nil
	case terminatorBid, terminatorAsk:
		return 0, false, nil
	default:
		return base + int64(d), true, nil
	}
}

// Field decodes one price/quantity differential against base. The boolean
// "terminated" distinguishes a side terminator from a decoded value; it
// ends a side only in the best-5 depth loop. Scalar fields (open, high,
// low, ...) never legitimately hit a terminator, and any occurrence there
// is treated as an overrun by the caller.
func (c *Cursor) Field(base int64) (value int64, terminated bool, err error) {
	v, ok, err := c.field(base)
	if err != nil {
		return 0, false, err
	}
	return v, !ok, nil
}
