package decompress

import "bsefeed/internal/wire"

// DepthLevel is one price/quantity/order-count level.
type DepthLevel struct {
	PricePaise int64
	Quantity   int64
	OrderCount int64
}

// DepthRecord is a fully reconstructed, still paise-scaled market picture
// for one instrument.
type DepthRecord struct {
	Token     uint32
	Open      int64
	High      int64
	Low       int64
	Close     int64 // == ltp
	PrevClose int64
	Volume    uint32
	BidLevels []DepthLevel
	AskLevels []DepthLevel
}

// Stats accumulates per-run Decompressor counters.
type Stats struct {
	RecordsDecompressed int64
	OverrunErrors       int64
}

// Decompress reconstructs a DepthRecord from a RawRecord. For an
// uncompressed (0x0234 canonical) record it synthesizes the DepthRecord
// directly from the decoder's hints with no depth. For a compressed
// record it walks the cursor through the differential field order, then
// the cascading best-5 bid and ask depth. A cursor overrun anywhere in a
// record discards that record's result (ok=false) without affecting any
// other record.
func Decompress(rec wire.RawRecord, stats *Stats) (DepthRecord, bool) {
	if !rec.Compressed {
		stats.RecordsDecompressed++
		return DepthRecord{
			Token:     rec.Token,
			Open:      int64(rec.OpenHint),
			High:      int64(rec.HighHint),
			Low:       int64(rec.LowHint),
			Close:     int64(rec.LTP),
			PrevClose: int64(rec.PrevClose),
			Volume:    rec.Volume,
		}, true
	}

	baseRate := int64(rec.LTP)
	baseQty := int64(rec.LTQ)
	cursor := NewCursor(rec.CompressedRegion)

	// Leading scalar fields: open, prev_close, high, low, reserved,
	// indicative_eq_price, indicative_eq_qty, total_bid_qty,
	// total_offer_qty, lower_circuit, upper_circuit, weighted_average,
	// each against base_rate if a price, else base_qty. Only the fields
	// DepthRecord actually surfaces are retained; the rest are consumed
	// from the cursor to keep it positioned correctly for depth decode.
	open, err := readScalar(cursor, baseRate)
	if err != nil {
		stats.OverrunErrors++
		return DepthRecord{}, false
	}
	prevClose, err := readScalar(cursor, baseRate)
	if err != nil {
		stats.OverrunErrors++
		return DepthRecord{}, false
	}
	high, err := readScalar(cursor, baseRate)
	if err != nil {
		stats.OverrunErrors++
		return DepthRecord{}, false
	}
	low, err := readScalar(cursor, baseRate)
	if err != nil {
		stats.OverrunErrors++
		return DepthRecord{}, false
	}

	// reserved, indicative_eq_price, indicative_eq_qty, total_bid_qty,
	// total_offer_qty, lower_circuit, upper_circuit, weighted_average:
	// consumed in order against base_rate/base_qty and discarded.
	// DepthRecord has no field for any of them.
	remainingScalarBases := []int64{baseRate, baseRate, baseQty, baseQty, baseQty, baseRate, baseRate, baseRate}
	for _, base := range remainingScalarBases {
		if _, err := readScalar(cursor, base); err != nil {
			stats.OverrunErrors++
			return DepthRecord{}, false
		}
	}

	bidLevels, err := readDepthSide(cursor, baseRate, baseQty)
	if err != nil {
		stats.OverrunErrors++
		return DepthRecord{}, false
	}
	askLevels, err := readDepthSide(cursor, baseRate, baseQty)
	if err != nil {
		stats.OverrunErrors++
		return DepthRecord{}, false
	}

	stats.RecordsDecompressed++
	return DepthRecord{
		Token:     rec.Token,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     baseRate,
		PrevClose: prevClose,
		Volume:    rec.Volume,
		BidLevels: bidLevels,
		AskLevels: askLevels,
	}, true
}

// readScalar decodes a single non-depth field. A terminator sentinel here
// is never expected in this field order and is treated as an overrun:
// scalar fields never legitimately terminate.
func readScalar(c *Cursor, base int64) (int64, error) {
	v, terminated, err := c.Field(base)
	if err != nil {
		return 0, err
	}
	if terminated {
		return 0, ErrOverrun
	}
	return v, nil
}

// readDepthSide decodes up to maxDepthLevels cascading levels for one side
// of the book: level 1's bases are (base_rate, base_qty, base_qty,
// base_qty); level i+1's bases are level i's decoded (price, qty, orders,
// implied) values. A terminator on the first field of a level ends the
// side immediately with no partial level.
func readDepthSide(c *Cursor, baseRate, baseQty int64) ([]DepthLevel, error) {
	levels := make([]DepthLevel, 0, maxDepthLevels)
	basePrice, baseQuantity, baseOrders, baseImplied := baseRate, baseQty, baseQty, baseQty

	for i := 0; i < maxDepthLevels; i++ {
		price, terminated, err := c.Field(basePrice)
		if err != nil {
			return nil, err
		}
		if terminated {
			break
		}
		qty, terminated, err := c.Field(baseQuantity)
		if err != nil {
			return nil, err
		}
		if terminated {
			return nil, ErrOverrun
		}
		orders, terminated, err := c.Field(baseOrders)
		if err != nil {
			return nil, err
		}
		if terminated {
			return nil, ErrOverrun
		}
		implied, terminated, err := c.Field(baseImplied)
		if err != nil {
			return nil, err
		}
		if terminated {
			return nil, ErrOverrun
		}

		levels = append(levels, DepthLevel{PricePaise: price, Quantity: qty, OrderCount: orders})
		basePrice, baseQuantity, baseOrders, baseImplied = price, qty, orders, implied
	}

	return levels, nil
}
