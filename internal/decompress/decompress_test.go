package decompress

import (
	"encoding/binary"
	"testing"

	"bsefeed/internal/wire"
)

func be16(v int16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func TestDecompressUncompressedPassesThroughHints(t *testing.T) {
	rec := wire.RawRecord{
		Token:     873870,
		OpenHint:  1000,
		HighHint:  1100,
		LowHint:   900,
		LTP:       120775,
		PrevClose: 120000,
		Volume:    480,
	}
	stats := &Stats{}
	dr, ok := Decompress(rec, stats)
	if !ok {
		t.Fatalf("expected success")
	}
	if dr.Close != 120775 || dr.Open != 1000 || dr.High != 1100 || dr.Low != 900 {
		t.Errorf("unexpected depth record: %+v", dr)
	}
	if len(dr.BidLevels) != 0 || len(dr.AskLevels) != 0 {
		t.Errorf("expected no depth for uncompressed variant")
	}
}

func TestCursorFieldPlainDifferential(t *testing.T) {
	region := be16(15)
	c := NewCursor(region)
	v, terminated, err := c.Field(1000)
	if err != nil || terminated {
		t.Fatalf("unexpected result: v=%d terminated=%v err=%v", v, terminated, err)
	}
	if v != 1015 {
		t.Errorf("expected 1015, got %d", v)
	}
}

func TestCursorFieldEscapeAbsolute(t *testing.T) {
	region := append(be16(escapeAbsolute), be32(40000)...)
	c := NewCursor(region)
	v, terminated, err := c.Field(999999)
	if err != nil || terminated {
		t.Fatalf("unexpected result: v=%d terminated=%v err=%v", v, terminated, err)
	}
	if v != 40000 {
		t.Errorf("expected escaped absolute value 40000, got %d", v)
	}
}

func TestCursorFieldBidTerminator(t *testing.T) {
	region := be16(terminatorBid)
	c := NewCursor(region)
	_, terminated, err := c.Field(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !terminated {
		t.Errorf("expected terminator")
	}
}

func TestCursorFieldOverrun(t *testing.T) {
	c := NewCursor([]byte{0x01})
	_, _, err := c.Field(1000)
	if err != ErrOverrun {
		t.Fatalf("expected ErrOverrun, got %v", err)
	}
}

func TestReadDepthSideCascadingBases(t *testing.T) {
	var region []byte
	region = append(region, be16(0)...)   // price: base+0
	region = append(region, be16(15)...)  // qty: base+15
	region = append(region, be16(-5)...)  // orders: base-5
	region = append(region, be16(-10)...) // implied: base-10
	region = append(region, be16(terminatorBid)...)

	c := NewCursor(region)
	levels, err := readDepthSide(c, 1000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(levels))
	}
	lvl := levels[0]
	if lvl.PricePaise != 1000 || lvl.Quantity != 25 || lvl.OrderCount != 5 {
		t.Errorf("unexpected level: %+v", lvl)
	}
}
