package sink

import (
	"encoding/json"
	"fmt"

	"bsefeed/internal/metrics"
	"bsefeed/internal/normalizer"
)

// jsonRecord is the on-disk shape of one line in *_quotes.json. It mirrors
// normalizer.Quote field-for-field but carries json tags matching the
// output column names and keeps depth as structured arrays (only the CSV
// writer flattens depth into six columns).
type jsonRecord struct {
	Token      uint32           `json:"token"`
	Symbol     string           `json:"symbol"`
	SymbolName string           `json:"symbol_name"`
	Expiry     string           `json:"expiry"`
	OptionType string           `json:"option_type"`
	Strike     float64          `json:"strike"`
	Timestamp  string           `json:"timestamp"`
	Open       float64          `json:"open"`
	High       float64          `json:"high"`
	Low        float64          `json:"low"`
	Close      float64          `json:"close"`
	LTP        float64          `json:"ltp"`
	Volume     uint32           `json:"volume"`
	PrevClose  float64          `json:"prev_close"`
	BidLevels  []jsonDepthLevel `json:"bid_levels"`
	AskLevels  []jsonDepthLevel `json:"ask_levels"`
}

type jsonDepthLevel struct {
	Price      float64 `json:"price"`
	Quantity   int64   `json:"quantity"`
	OrderCount int64   `json:"order_count"`
}

func toJSONRecord(q normalizer.Quote) jsonRecord {
	return jsonRecord{
		Token:      q.Token,
		Symbol:     q.Symbol,
		SymbolName: q.SymbolName,
		Expiry:     q.Expiry,
		OptionType: q.OptionType,
		Strike:     q.Strike,
		Timestamp:  q.Timestamp,
		Open:       q.Open,
		High:       q.High,
		Low:        q.Low,
		Close:      q.Close,
		LTP:        q.LTP,
		Volume:     q.Volume,
		PrevClose:  q.PrevClose,
		BidLevels:  toJSONLevels(q.BidLevels),
		AskLevels:  toJSONLevels(q.AskLevels),
	}
}

func toJSONLevels(levels []normalizer.DepthLevel) []jsonDepthLevel {
	out := make([]jsonDepthLevel, len(levels))
	for i, lvl := range levels {
		out[i] = jsonDepthLevel{Price: lvl.Price, Quantity: lvl.Quantity, OrderCount: lvl.OrderCount}
	}
	return out
}

// jsonWriter appends one JSON object per line to YYYYMMDD_quotes.json, in
// append mode.
type jsonWriter struct {
	df *dailyFile

	batchesWritten int64
	bytesWritten   int64
}

func newJSONWriter(dir string) *jsonWriter {
	return &jsonWriter{df: newDailyFile(dir, "_quotes.json", nil)}
}

// write appends q to the current day's file, rotating first if the date
// has changed. It returns the path of a file rotated away this call, or
// "" if none.
func (w *jsonWriter) write(date string, q normalizer.Quote) (rotated string, err error) {
	rotated, err = w.df.ensure(date)
	if err != nil {
		return "", err
	}

	line, err := json.Marshal(toJSONRecord(q))
	if err != nil {
		return rotated, fmt.Errorf("marshal quote: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.df.file.Write(line); err != nil {
		return rotated, fmt.Errorf("write quote: %w", err)
	}
	w.batchesWritten++
	w.bytesWritten += int64(len(line))
	return rotated, nil
}

func (w *jsonWriter) close() error { return w.df.close() }

func (w *jsonWriter) writerStats(errors int64) metrics.WriterStats {
	return metrics.WriterStats{
		BatchesWritten: w.batchesWritten,
		FilesWritten:   w.df.filesOpened,
		BytesWritten:   w.bytesWritten,
		ErrorsCount:    errors,
	}
}
